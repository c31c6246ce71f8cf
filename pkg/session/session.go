// Package session lays out per-run artifact directories under the output
// directory and keeps the runs index (index.yaml) current.
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// RunInfo is one entry of index.yaml.
type RunInfo struct {
	RunID      string    `yaml:"run_id"`
	Created    time.Time `yaml:"created"`
	StartYear  int       `yaml:"start_year"`
	EndYear    int       `yaml:"end_year"`
	Entries    int       `yaml:"entries"`
	Records    int       `yaml:"records"`
	Succeeded  int       `yaml:"succeeded"`
	Failed     int       `yaml:"failed"`
	Flagged    int       `yaml:"flagged"`
	OutputFile string    `yaml:"output_file"`
}

// RunIndex represents the index.yaml file.
type RunIndex struct {
	Runs []RunInfo `yaml:"runs"`
}

// GenerateRunID creates a timestamp-first run ID.
// Format: YYYY-MM-DDTHH-MM-SS-{hash}, the hash derived from the run parameters.
func GenerateRunID(now time.Time, params ...string) string {
	h := sha256.New()
	for _, p := range params {
		h.Write([]byte(p))
		h.Write([]byte("\n"))
	}
	shortHash := hex.EncodeToString(h.Sum(nil)[:6])
	return fmt.Sprintf("%s-%s", now.UTC().Format("2006-01-02T15-04-05"), shortHash)
}

// GetRunDir returns the full path to a run directory.
func GetRunDir(baseDir, runID string) string {
	return filepath.Join(baseDir, "runs", runID)
}

// GetRunsIndexPath returns the path to the runs index file.
func GetRunsIndexPath(baseDir string) string {
	return filepath.Join(baseDir, "index.yaml")
}

// EnsureRunDir creates the run directory if it doesn't exist.
func EnsureRunDir(baseDir, runID string) (string, error) {
	dir := GetRunDir(baseDir, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create run directory: %w", err)
	}
	return dir, nil
}

// ReadRunIndex loads index.yaml; a missing file is an empty index.
func ReadRunIndex(baseDir string) (RunIndex, error) {
	var index RunIndex
	data, err := os.ReadFile(GetRunsIndexPath(baseDir))
	if os.IsNotExist(err) {
		return index, nil
	}
	if err != nil {
		return index, fmt.Errorf("failed to read run index: %w", err)
	}
	if err := yaml.Unmarshal(data, &index); err != nil {
		return index, fmt.Errorf("failed to parse run index: %w", err)
	}
	return index, nil
}

// UpdateRunIndex adds or replaces a run entry in index.yaml, newest first.
func UpdateRunIndex(baseDir string, info RunInfo) error {
	index, err := ReadRunIndex(baseDir)
	if err != nil {
		return err
	}

	found := false
	for i, r := range index.Runs {
		if r.RunID == info.RunID {
			index.Runs[i] = info
			found = true
			break
		}
	}
	if !found {
		index.Runs = append(index.Runs, info)
	}

	// Timestamp-first IDs sort chronologically.
	sort.Slice(index.Runs, func(i, j int) bool {
		return index.Runs[i].RunID > index.Runs[j].RunID
	})

	output, err := yaml.Marshal(&index)
	if err != nil {
		return fmt.Errorf("failed to marshal run index: %w", err)
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(GetRunsIndexPath(baseDir), output, 0o644); err != nil {
		return fmt.Errorf("failed to write run index: %w", err)
	}
	return nil
}

// GenerateFieldsReference writes FIELDS.yaml describing the output table
// columns, unless it already exists.
func GenerateFieldsReference(baseDir string) error {
	fieldsPath := filepath.Join(baseDir, "FIELDS.yaml")
	if _, err := os.Stat(fieldsPath); err == nil {
		return nil
	}

	content := `# Output table fields
fields:
  survey_date: date (YYYY-MM-01, first of the survey month)
  panel: [Combined, SPD, Dealer, SMP, Participant]
  concept: ff_longer_run_target
  pctl25: float (percent, empty when not found)
  pctl50: float (percent, median)
  pctl75: float (percent)
  source: [xlsx, pdf_text, pdf_ocr]
  file_url: string (survey document URL)
  local_path: string (downloaded copy)
  pdf_page: int (1-based, documents only)
  notes: string ("; "-separated)

notes:
  question_not_present: the longer-run question was not found
  values_not_parsed: the question was found but no percentiles parsed
  no_text_layer: the document has no usable embedded text
  ocr_skipped: OCR was disabled for this run
  ocr_unavailable: the OCR engine or page renderer could not run
  parse_error: the file could not be read
  download_failed: the file could not be downloaded
  not_downloaded: offline run and no local copy
  extraction_panic: an extractor crashed on this file
  pctl_order_violation: pctl25 <= pctl50 <= pctl75 does not hold

layout:
  runs: runs/{run-id}/summary.yaml
  index: index.yaml (all runs, newest first)
`
	if err := os.WriteFile(fieldsPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write FIELDS.yaml: %w", err)
	}
	return nil
}
