// Package report summarizes a run: per-file outcomes, record counts by
// source and panel, and data-quality flags.
package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/dtnitsch/ffrate-extractor/models"
	"github.com/dtnitsch/ffrate-extractor/pkg/combiner"
	"github.com/dtnitsch/ffrate-extractor/pkg/storage"
	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"
)

// File statuses.
const (
	StatusExtracted = "extracted"
	StatusEmpty     = "empty"
	StatusFailed    = "failed"
)

// failureNotes mark a file that could not be searched at all.
var failureNotes = []string{
	models.NoteDownloadFailed,
	models.NoteNotDownloaded,
	models.NoteParseError,
	models.NoteExtractionPanic,
}

// FileOutcome is what happened to one manifest entry.
type FileOutcome struct {
	URL        string        `yaml:"url"`
	LocalPath  string        `yaml:"local_path,omitempty"`
	Format     models.Format `yaml:"format"`
	Status     string        `yaml:"status"`
	Source     models.Source `yaml:"source,omitempty"`
	Records    int           `yaml:"records"`
	CacheHit   bool          `yaml:"cache_hit,omitempty"`
	Downloaded bool          `yaml:"downloaded,omitempty"`
	Notes      string        `yaml:"notes,omitempty"`
}

// Classify derives a file outcome from the records extracted for it.
func Classify(entry models.ManifestEntry, local models.LocalFile, records []models.ExtractionRecord) FileOutcome {
	out := FileOutcome{
		URL:        entry.FileURL,
		LocalPath:  local.LocalPath,
		Format:     entry.Format,
		CacheHit:   local.CacheHit,
		Downloaded: !local.CacheHit && local.ContentHash != "",
		Status:     StatusEmpty,
	}
	for _, r := range records {
		if r.HasValues() {
			out.Records++
			out.Source = r.Source
			out.Status = StatusExtracted
		}
	}
	if out.Status == StatusExtracted {
		return out
	}
	for _, r := range records {
		out.Source = r.Source
		out.Notes = r.Notes
		for _, n := range failureNotes {
			if r.HasNote(n) {
				out.Status = StatusFailed
			}
		}
	}
	return out
}

// Summary is the end-of-run report, printed and saved as summary.yaml.
type Summary struct {
	RunID          string                 `yaml:"run_id"`
	StartedAt      time.Time              `yaml:"started_at"`
	FinishedAt     time.Time              `yaml:"finished_at"`
	Entries        int                    `yaml:"entries"`
	Downloaded     int                    `yaml:"downloaded"`
	CacheHits      int                    `yaml:"cache_hits"`
	Extracted      int                    `yaml:"files_extracted"`
	Empty          int                    `yaml:"files_empty"`
	Failed         int                    `yaml:"files_failed"`
	Records        int                    `yaml:"records"`
	WithMedian     int                    `yaml:"records_with_median"`
	MissingMedian  int                    `yaml:"records_missing_median"`
	Flagged        int                    `yaml:"order_violations"`
	Duplicates     int                    `yaml:"duplicates_dropped"`
	BySource       map[string]int         `yaml:"by_source"`
	ByPanel        map[string]int         `yaml:"by_panel"`
	OutputFile     string                 `yaml:"output_file,omitempty"`
	ComparisonFile string                 `yaml:"comparison_file,omitempty"`
	Comparison     *combiner.CompareStats `yaml:"comparison,omitempty"`
	Problems       []FileOutcome          `yaml:"problems,omitempty"`
}

// Build tallies files and the merged table.
func Build(runID string, files []FileOutcome, merged combiner.Merged, flagged int) Summary {
	s := Summary{
		RunID:      runID,
		Entries:    len(files),
		Records:    len(merged.Records),
		Flagged:    flagged,
		Duplicates: merged.Duplicates,
		BySource:   make(map[string]int),
		ByPanel:    make(map[string]int),
	}
	for _, f := range files {
		if f.CacheHit {
			s.CacheHits++
		}
		if f.Downloaded {
			s.Downloaded++
		}
		switch f.Status {
		case StatusExtracted:
			s.Extracted++
		case StatusFailed:
			s.Failed++
			s.Problems = append(s.Problems, f)
		default:
			s.Empty++
			s.Problems = append(s.Problems, f)
		}
	}
	for _, r := range merged.Records {
		s.BySource[string(r.Source)]++
		s.ByPanel[string(r.Panel)]++
		if r.Pctl50 != nil {
			s.WithMedian++
		} else {
			s.MissingMedian++
		}
	}
	return s
}

// NewTable returns a rounded go-pretty table writing to w.
func NewTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Render prints the summary tables. verbose adds one row per problem file.
func Render(w io.Writer, s Summary, verbose bool) {
	t := NewTable(w)
	t.SetTitle("Run " + s.RunID)
	t.AppendHeader(table.Row{"Metric", "Count"})
	t.AppendRows([]table.Row{
		{"Survey files", s.Entries},
		{"Downloaded", s.Downloaded},
		{"Cached", s.CacheHits},
		{"Files with values", s.Extracted},
		{"Files without values", s.Empty},
		{"Files failed", s.Failed},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Records", s.Records},
		{"With median", s.WithMedian},
		{"Missing median", s.MissingMedian},
		{"Order violations", s.Flagged},
		{"Duplicates dropped", s.Duplicates},
	})
	t.Render()

	if len(s.BySource) > 0 {
		bt := NewTable(w)
		bt.AppendHeader(table.Row{"Source", "Records"})
		for _, k := range sortedKeys(s.BySource) {
			bt.AppendRow(table.Row{k, s.BySource[k]})
		}
		bt.Render()
	}

	if s.Comparison != nil {
		RenderComparison(w, *s.Comparison)
	}

	if verbose && len(s.Problems) > 0 {
		pt := NewTable(w)
		pt.SetTitle("Files without values")
		pt.AppendHeader(table.Row{"Status", "URL", "Notes"})
		for _, p := range s.Problems {
			pt.AppendRow(table.Row{p.Status, p.URL, p.Notes})
		}
		pt.Render()
	}
}

// RenderComparison prints the reference comparison totals.
func RenderComparison(w io.Writer, c combiner.CompareStats) {
	ct := NewTable(w)
	ct.SetTitle("Reference comparison")
	ct.AppendHeader(table.Row{"Metric", "Value"})
	ct.AppendRows([]table.Row{
		{"Matched months", c.Matched},
		{"Mean abs diff", fmt.Sprintf("%.3f", c.MeanAbsDiff)},
		{"Max abs diff", fmt.Sprintf("%.3f", c.MaxAbsDiff)},
		{"Within 0.10", c.Within10bp},
		{"Within 0.25", c.Within25bp},
		{"Over tolerance", c.Flagged},
		{"Reference only", c.ReferenceOnly},
		{"Extract only", c.ExtractOnly},
	})
	ct.Render()
}

// WriteYAML saves the summary at path.
func WriteYAML(path string, s Summary) error {
	data, err := yaml.Marshal(&s)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	st := &storage.Storage{}
	if err := st.SaveFile(path, data); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}
