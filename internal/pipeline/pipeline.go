// Package pipeline runs the scrape, download, extract and merge stages and
// exposes them as cli actions.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dtnitsch/ffrate-extractor/models"
	"github.com/dtnitsch/ffrate-extractor/pkg/caching"
	"github.com/dtnitsch/ffrate-extractor/pkg/combiner"
	"github.com/dtnitsch/ffrate-extractor/pkg/db"
	"github.com/dtnitsch/ffrate-extractor/pkg/downloader"
	"github.com/dtnitsch/ffrate-extractor/pkg/extractor"
	"github.com/dtnitsch/ffrate-extractor/pkg/extractors"
	"github.com/dtnitsch/ffrate-extractor/pkg/fetcher"
	"github.com/dtnitsch/ffrate-extractor/pkg/manifest"
	"github.com/dtnitsch/ffrate-extractor/pkg/output"
	"github.com/dtnitsch/ffrate-extractor/pkg/report"
	"github.com/dtnitsch/ffrate-extractor/pkg/session"
)

// ComparisonFile is the workbook written next to the output table when a
// reference series is given.
const ComparisonFile = "comparison.xlsx"

// ErrNoEntries is returned when the index page lists no survey files in range.
var ErrNoEntries = errors.New("no survey files found")

// Pipeline is one configured batch run.
type Pipeline struct {
	cfg     models.RunConfig
	logger  *slog.Logger
	fetcher *fetcher.Fetcher
	// Engines override the document backends; zero values use the defaults.
	Engines extractors.Engines
}

// Result is what a finished run produced.
type Result struct {
	RunID          string
	RunDir         string
	OutputPath     string
	ComparisonPath string
	Summary        report.Summary
}

// New returns a pipeline. A nil fetcher uses the default client.
func New(cfg models.RunConfig, f *fetcher.Fetcher, logger *slog.Logger) *Pipeline {
	if f == nil {
		f = fetcher.NewFetcher(nil, "")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{cfg: cfg, logger: logger, fetcher: f}
}

// Matcher loads the extractor config and applies the OCR switch.
func Matcher(cfg models.RunConfig) (*extractor.Matcher, error) {
	xcfg, err := extractor.LoadConfig(cfg.ConfigPath)
	if err != nil {
		return nil, err
	}
	xcfg.OCR.Enabled = xcfg.OCR.Enabled && cfg.OCREnabled
	return extractor.NewMatcher(xcfg)
}

// Manifest scrapes the index page and applies the format selection and
// file cap.
func (p *Pipeline) Manifest(ctx context.Context) ([]models.ManifestEntry, error) {
	cache, err := caching.NewCache(filepath.Join(p.cfg.DataDir, ".cache"), p.cfg.ManifestMaxAge)
	if err != nil {
		return nil, err
	}
	scraper := manifest.NewScraper(p.fetcher, cache, p.logger)
	scraper.Refresh = p.cfg.Redownload && !p.cfg.SkipDownload

	entries, err := scraper.Scrape(ctx, p.cfg.PageURL, p.cfg.StartYear, p.cfg.EndYear)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w on %s for %d-%d", ErrNoEntries, p.cfg.PageURL, p.cfg.StartYear, p.cfg.EndYear)
	}
	entries = manifest.Select(entries, p.cfg.PreferXLSX)
	if p.cfg.MaxFiles > 0 && len(entries) > p.cfg.MaxFiles {
		entries = entries[:p.cfg.MaxFiles]
	}
	return entries, nil
}

// Run executes a full batch. Per-file problems end up in the table as
// null rows; only setup, manifest and output failures are returned.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	startedAt := time.Now().UTC()
	cfg := p.cfg

	matcher, err := Matcher(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load extractor config: %w", err)
	}

	ledger, err := db.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	defer ledger.Close()

	runID := session.GenerateRunID(startedAt, cfg.PageURL,
		strconv.Itoa(cfg.StartYear), strconv.Itoa(cfg.EndYear),
		strconv.FormatBool(cfg.OCREnabled), strconv.FormatBool(cfg.PreferXLSX),
		strconv.Itoa(cfg.MaxFiles))
	ledgerRun, err := ledger.CreateRun(runID, startedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}
	p.logger.Info("run started", "run_id", runID, "start_year", cfg.StartYear, "end_year", cfg.EndYear,
		"ocr", matcher.Config().OCR.Enabled, "offline", cfg.SkipDownload)

	res, err := p.run(ctx, runID, startedAt, ledgerRun, ledger, matcher)
	if err != nil {
		if ferr := ledger.FinishRun(ledgerRun, db.RunFailed, db.RunStats{}); ferr != nil {
			p.logger.Warn("failed to close run in ledger", "run_id", runID, "error", ferr)
		}
		return nil, err
	}

	s := res.Summary
	if err := ledger.FinishRun(ledgerRun, db.RunCompleted, db.RunStats{
		Entries:    s.Entries,
		Records:    s.Records,
		Succeeded:  s.Extracted,
		Failed:     s.Failed,
		Flagged:    s.Flagged,
		Duplicates: s.Duplicates,
		OutputPath: res.OutputPath,
	}); err != nil {
		p.logger.Warn("failed to close run in ledger", "run_id", runID, "error", err)
	}
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, runID string, startedAt time.Time, ledgerRun int64, ledger *db.DB, matcher *extractor.Matcher) (*Result, error) {
	cfg := p.cfg

	entries, err := p.Manifest(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build manifest: %w", err)
	}
	p.logger.Info("manifest ready", "entries", len(entries))

	dl := downloader.New(p.fetcher, ledger, downloader.Options{
		DataDir:    cfg.DataDir,
		Timeout:    cfg.Timeout,
		RatePerSec: cfg.RatePerSec,
		Offline:    cfg.SkipDownload,
	}, p.logger)
	router := extractors.NewRouter(matcher, p.Engines, p.logger)
	p.logger.Debug("extractors ready",
		"xlsx", router.Tiers(models.FormatXLSX), "pdf", router.Tiers(models.FormatPDF))

	var all []models.ExtractionRecord
	outcomes := make([]report.FileOutcome, 0, len(entries))
	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run interrupted after %d of %d files: %w", i, len(entries), err)
		}
		local, records := p.processEntry(ctx, dl, router, entry)
		all = append(all, records...)

		outcome := report.Classify(entry, local, records)
		outcomes = append(outcomes, outcome)
		p.logFile(i+1, len(entries), outcome)

		if err := ledger.RecordRunFile(ledgerRun, db.RunFile{
			URL:       outcome.URL,
			LocalPath: outcome.LocalPath,
			Status:    outcome.Status,
			Source:    string(outcome.Source),
			Records:   outcome.Records,
			Notes:     outcome.Notes,
		}); err != nil {
			p.logger.Warn("failed to record file outcome", "url", entry.FileURL, "error", err)
		}
	}

	merged := combiner.Merge(all...)
	flagged := combiner.Flag(merged.Records)

	res := &Result{
		RunID:      runID,
		OutputPath: filepath.Join(cfg.OutputDir, cfg.OutputFile),
	}
	if err := output.WriteTableFile(res.OutputPath, merged.Records); err != nil {
		return nil, err
	}
	p.logger.Info("table written", "path", res.OutputPath, "records", len(merged.Records))

	summary := report.Build(runID, outcomes, merged, flagged)
	summary.StartedAt = startedAt
	summary.OutputFile = res.OutputPath

	if cfg.ReferencePath != "" {
		res.ComparisonPath = filepath.Join(cfg.OutputDir, ComparisonFile)
		stats, err := Compare(merged.Records, cfg.ReferencePath, cfg.Cutoff, cfg.Tolerance, res.ComparisonPath)
		if err != nil {
			p.logger.Error("reference comparison failed", "reference", cfg.ReferencePath, "error", err)
			res.ComparisonPath = ""
		} else {
			summary.Comparison = &stats
			summary.ComparisonFile = res.ComparisonPath
		}
	}
	summary.FinishedAt = time.Now().UTC()
	res.Summary = summary

	p.writeRunArtifacts(res)
	return res, nil
}

// processEntry downloads and extracts one file. It never fails: problems
// become null records.
func (p *Pipeline) processEntry(ctx context.Context, dl *downloader.Downloader, router *extractor.Router, entry models.ManifestEntry) (local models.LocalFile, records []models.ExtractionRecord) {
	local = models.LocalFile{Entry: entry}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("file processing panicked", "url", entry.FileURL, "panic", r)
			records = []models.ExtractionRecord{
				models.NullRecord(local, sourceFor(entry.Format), fmt.Sprintf("%s: %v", models.NoteExtractionPanic, r)),
			}
		}
	}()

	got, err := dl.Download(ctx, entry, p.cfg.Redownload)
	if err != nil {
		note := fmt.Sprintf("%s: %v", models.NoteDownloadFailed, err)
		if errors.Is(err, downloader.ErrNotCached) {
			note = models.NoteNotDownloaded
		}
		p.logger.Warn("download failed", "url", entry.FileURL, "error", err)
		return local, []models.ExtractionRecord{models.NullRecord(local, sourceFor(entry.Format), note)}
	}
	local = got
	return local, router.Extract(ctx, local)
}

func (p *Pipeline) logFile(n, total int, f report.FileOutcome) {
	attrs := []any{"n", n, "of", total, "url", f.URL, "status", f.Status, "source", f.Source, "records", f.Records}
	if f.Notes != "" {
		attrs = append(attrs, "notes", f.Notes)
	}
	switch f.Status {
	case report.StatusFailed:
		p.logger.Warn("file failed", attrs...)
	default:
		p.logger.Debug("file processed", attrs...)
	}
}

// writeRunArtifacts saves summary.yaml, the runs index and FIELDS.yaml.
// Failures here are logged; the table is already written.
func (p *Pipeline) writeRunArtifacts(res *Result) {
	base := p.cfg.OutputDir
	dir, err := session.EnsureRunDir(base, res.RunID)
	if err != nil {
		p.logger.Warn("failed to create run directory", "error", err)
		return
	}
	res.RunDir = dir

	if err := report.WriteYAML(filepath.Join(dir, "summary.yaml"), res.Summary); err != nil {
		p.logger.Warn("failed to write run summary", "error", err)
	}
	s := res.Summary
	if err := session.UpdateRunIndex(base, session.RunInfo{
		RunID:      res.RunID,
		Created:    s.StartedAt,
		StartYear:  p.cfg.StartYear,
		EndYear:    p.cfg.EndYear,
		Entries:    s.Entries,
		Records:    s.Records,
		Succeeded:  s.Extracted,
		Failed:     s.Failed,
		Flagged:    s.Flagged,
		OutputFile: res.OutputPath,
	}); err != nil {
		p.logger.Warn("failed to update runs index", "error", err)
	}
	if err := session.GenerateFieldsReference(base); err != nil {
		p.logger.Warn("failed to generate FIELDS.yaml reference", "error", err)
	}
}

// Compare joins records with the reference workbook at refPath and writes
// the comparison workbook to outPath.
func Compare(records []models.ExtractionRecord, refPath string, cutoff time.Time, tolerance float64, outPath string) (combiner.CompareStats, error) {
	reference, err := output.LoadReference(refPath, output.DefaultReferenceLayout())
	if err != nil {
		return combiner.CompareStats{}, err
	}
	rows, stats := combiner.Compare(records, reference, combiner.DefaultSelectionRule(cutoff), tolerance)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return stats, fmt.Errorf("failed to create comparison directory: %w", err)
	}
	if err := output.WriteComparison(outPath, rows); err != nil {
		return stats, err
	}
	return stats, nil
}

// sourceFor is the tier a format starts at, used for rows emitted before
// any tier ran.
func sourceFor(format models.Format) models.Source {
	if format == models.FormatPDF {
		return models.SourcePDFText
	}
	return models.SourceXLSX
}
