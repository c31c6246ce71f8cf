package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dtnitsch/ffrate-extractor/internal/common"
	"github.com/dtnitsch/ffrate-extractor/models"
	"github.com/dtnitsch/ffrate-extractor/pkg/extractors"
	"github.com/dtnitsch/ffrate-extractor/pkg/fetcher"
	"github.com/dtnitsch/ffrate-extractor/pkg/manifest"
	"github.com/dtnitsch/ffrate-extractor/pkg/output"
	"github.com/dtnitsch/ffrate-extractor/pkg/report"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

// RunConfigFromFlags collects the run flags shared by run and manifest.
func RunConfigFromFlags(c *cli.Context) (models.RunConfig, error) {
	cfg := models.RunConfig{
		PageURL:        c.String("page-url"),
		StartYear:      c.Int("start-year"),
		EndYear:        c.Int("end-year"),
		DataDir:        c.String("data-dir"),
		OutputDir:      c.String("output-dir"),
		OutputFile:     c.String("output-file"),
		ConfigPath:     c.String("config"),
		Redownload:     c.Bool("redownload"),
		OCREnabled:     !c.Bool("no-ocr"),
		PreferXLSX:     c.Bool("prefer-xlsx"),
		SkipDownload:   c.Bool("skip-download"),
		MaxFiles:       c.Int("max-files"),
		Timeout:        c.Duration("timeout"),
		RatePerSec:     c.Float64("rate"),
		ManifestMaxAge: c.Duration("manifest-max-age"),
		ReferencePath:  c.String("reference"),
		Tolerance:      c.Float64("tolerance"),
	}
	if cfg.EndYear == 0 {
		cfg.EndYear = time.Now().Year()
	}
	if err := common.ValidateYears(cfg.StartYear, cfg.EndYear); err != nil {
		return cfg, err
	}
	if cfg.MaxFiles < 0 {
		return cfg, fmt.Errorf("--max-files must not be negative")
	}
	cutoff, err := common.ParseMonth(c.String("cutoff"))
	if err != nil {
		return cfg, fmt.Errorf("invalid --cutoff: %w", err)
	}
	cfg.Cutoff = cutoff
	return cfg, nil
}

func newFetcher(c *cli.Context) *fetcher.Fetcher {
	return fetcher.NewFetcher(nil, c.String("user-agent"))
}

// RunAction executes the full batch and prints the summary.
func RunAction(c *cli.Context) error {
	logger := common.NewLogger(os.Stderr, c.Bool("verbose"), c.Bool("quiet"))
	cfg, err := RunConfigFromFlags(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	res, err := New(cfg, newFetcher(c), logger).Run(c.Context)
	if err != nil {
		logger.Error("run failed", "error", err)
		return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
	}

	report.Render(os.Stdout, res.Summary, c.Bool("verbose"))
	fmt.Printf("\nTable: %s\n", res.OutputPath)
	if res.ComparisonPath != "" {
		fmt.Printf("Comparison: %s\n", res.ComparisonPath)
	}
	if res.RunDir != "" {
		fmt.Printf("Run summary: %s\n", filepath.Join(res.RunDir, "summary.yaml"))
	}
	return nil
}

// ManifestAction prints the scraped and selected manifest.
func ManifestAction(c *cli.Context) error {
	logger := common.NewLogger(os.Stderr, c.Bool("verbose"), c.Bool("quiet"))
	cfg, err := RunConfigFromFlags(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	entries, err := New(cfg, newFetcher(c), logger).Manifest(c.Context)
	if err != nil {
		logger.Error("manifest failed", "error", err)
		return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
	}

	switch strings.ToLower(c.String("format")) {
	case "yaml":
		return printYAML(entries)
	case "json":
		return printJSON(entries)
	}

	t := report.NewTable(os.Stdout)
	t.AppendHeader(table.Row{"Survey date", "Hint", "Format", "Kind", "URL"})
	for _, e := range entries {
		t.AppendRow(table.Row{e.SurveyDate.Format("2006-01"), e.PanelHint, e.Format, e.Kind, e.FileURL})
	}
	t.AppendFooter(table.Row{"", "", "", "Total", len(entries)})
	t.Render()
	return nil
}

// ExtractAction runs the extractor chain on local files and prints the records.
func ExtractAction(c *cli.Context) error {
	logger := common.NewLogger(os.Stderr, c.Bool("verbose"), c.Bool("quiet"))
	if c.NArg() == 0 {
		return cli.Exit("Error: no files given\n\nUsage: ffx extract [--date 2024-01] [--panel-hint spd] FILE...", 1)
	}

	matcher, err := Matcher(models.RunConfig{ConfigPath: c.String("config"), OCREnabled: !c.Bool("no-ocr")})
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
	}
	date, err := common.ParseMonth(c.String("date"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: invalid --date: %v", err), 1)
	}

	router := extractors.NewRouter(matcher, extractors.Engines{}, logger)
	var records []models.ExtractionRecord
	for _, path := range c.Args().Slice() {
		file, err := LocalFileFor(path, date, c.String("panel-hint"))
		if err != nil {
			return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
		}
		got := router.Extract(c.Context, file)
		logger.Debug("file extracted", "path", path, "records", len(got))
		records = append(records, got...)
	}

	if strings.ToLower(c.String("format")) == "json" {
		return printJSON(records)
	}
	return printYAML(records)
}

// LocalFileFor describes a file given on the command line. A zero date and
// an empty hint are derived from the filename.
func LocalFileFor(path string, date time.Time, hint string) (models.LocalFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return models.LocalFile{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return models.LocalFile{}, fmt.Errorf("%s is a directory", path)
	}

	name := filepath.Base(path)
	format := models.Format(strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), "."))
	if date.IsZero() {
		d, ok := manifest.SurveyDate(name, "")
		if !ok {
			return models.LocalFile{}, fmt.Errorf("cannot infer survey date from %s; pass --date", name)
		}
		date = d
	}

	panelHint := models.ParseSurveyType(hint)
	if hint == "" {
		panelHint = manifest.PanelHint(name, "", format, date.Year())
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return models.LocalFile{
		Entry: models.ManifestEntry{
			SurveyDate: date,
			PanelHint:  panelHint,
			Format:     format,
			Kind:       models.KindResults,
			FileURL:    "file://" + filepath.ToSlash(abs),
		},
		LocalPath:    path,
		DownloadedAt: info.ModTime().UTC(),
		CacheHit:     true,
		SizeBytes:    info.Size(),
	}, nil
}

// CompareAction compares an existing output table against a reference series.
func CompareAction(c *cli.Context) error {
	logger := common.NewLogger(os.Stderr, c.Bool("verbose"), c.Bool("quiet"))
	if c.String("reference") == "" {
		return cli.Exit("Error: --reference is required", 1)
	}
	cutoff, err := common.ParseMonth(c.String("cutoff"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: invalid --cutoff: %v", err), 1)
	}

	input := c.String("input")
	if input == "" {
		input = filepath.Join(c.String("output-dir"), c.String("output-file"))
	}
	out := c.String("output")
	if out == "" {
		out = filepath.Join(c.String("output-dir"), ComparisonFile)
	}

	records, err := output.ReadTableFile(input)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
	}
	stats, err := Compare(records, c.String("reference"), cutoff, c.Float64("tolerance"), out)
	if err != nil {
		logger.Error("comparison failed", "error", err)
		return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
	}

	report.RenderComparison(os.Stdout, stats)
	fmt.Printf("\nComparison: %s\n", out)
	return nil
}

func printYAML(v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Print(string(data))
	return nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
