package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	dbcmd "github.com/dtnitsch/ffrate-extractor/internal/db"
	"github.com/dtnitsch/ffrate-extractor/internal/pipeline"
	"github.com/dtnitsch/ffrate-extractor/models"
	"github.com/dtnitsch/ffrate-extractor/pkg/fetcher"
	"github.com/dtnitsch/ffrate-extractor/pkg/help"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

const (
	defaultDataDir    = "data_raw"
	defaultOutputDir  = "data_out"
	defaultOutputFile = "nyfed_ff_longrun_percentiles.csv"
)

func logFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "log per-file detail", EnvVars: []string{"FFX_VERBOSE"}},
		&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "only log errors", EnvVars: []string{"FFX_QUIET"}},
	}
}

func dirFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "data-dir", Value: defaultDataDir, Usage: "downloaded files, page cache and ledger", EnvVars: []string{"FFX_DATA_DIR"}},
		&cli.StringFlag{Name: "output-dir", Value: defaultOutputDir, Usage: "output table, comparison and run summaries", EnvVars: []string{"FFX_OUTPUT_DIR"}},
		&cli.StringFlag{Name: "output-file", Value: defaultOutputFile, Usage: "output table filename", EnvVars: []string{"FFX_OUTPUT_FILE"}},
	}
}

func extractorFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Usage: "yaml extractor config overlay", EnvVars: []string{"FFX_CONFIG"}},
		&cli.BoolFlag{Name: "no-ocr", Usage: "disable the OCR fallback", EnvVars: []string{"FFX_NO_OCR"}},
	}
}

func compareFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "reference", Usage: "reference series workbook (xlsx)", EnvVars: []string{"FFX_REFERENCE"}},
		&cli.StringFlag{Name: "cutoff", Value: "2025-01", Usage: "month from which the combined panel is compared", EnvVars: []string{"FFX_CUTOFF"}},
		&cli.Float64Flag{Name: "tolerance", Value: 0.125, Usage: "median difference above which a row is flagged", EnvVars: []string{"FFX_TOLERANCE"}},
	}
}

func runFlags() []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{Name: "page-url", Value: models.DefaultPageURL, Usage: "survey index page", EnvVars: []string{"FFX_PAGE_URL"}},
		&cli.IntFlag{Name: "start-year", Value: 2011, Usage: "first survey year", EnvVars: []string{"FFX_START_YEAR"}},
		&cli.IntFlag{Name: "end-year", Value: time.Now().Year(), Usage: "last survey year", EnvVars: []string{"FFX_END_YEAR"}},
		&cli.BoolFlag{Name: "redownload", Usage: "fetch files even when present on disk", EnvVars: []string{"FFX_REDOWNLOAD"}},
		&cli.BoolFlag{Name: "skip-download", Usage: "only use files already on disk", EnvVars: []string{"FFX_SKIP_DOWNLOAD"}},
		&cli.IntFlag{Name: "max-files", Usage: "process at most this many files (0 = all)", EnvVars: []string{"FFX_MAX_FILES"}},
		&cli.BoolFlag{Name: "prefer-xlsx", Value: true, Usage: "skip results PDFs for meetings that have a data spreadsheet", EnvVars: []string{"FFX_PREFER_XLSX"}},
		&cli.DurationFlag{Name: "timeout", Value: 60 * time.Second, Usage: "per-file download timeout", EnvVars: []string{"FFX_TIMEOUT"}},
		&cli.Float64Flag{Name: "rate", Value: 2, Usage: "downloads per second (0 = unpaced)", EnvVars: []string{"FFX_RATE"}},
		&cli.DurationFlag{Name: "manifest-max-age", Value: 24 * time.Hour, Usage: "reuse the cached index page for this long", EnvVars: []string{"FFX_MANIFEST_MAX_AGE"}},
		&cli.StringFlag{Name: "user-agent", Value: fetcher.DefaultUserAgent, Usage: "HTTP User-Agent", EnvVars: []string{"FFX_USER_AGENT"}},
	}
	flags = append(flags, dirFlags()...)
	flags = append(flags, extractorFlags()...)
	flags = append(flags, compareFlags()...)
	return append(flags, logFlags()...)
}

func concat(groups ...[]cli.Flag) []cli.Flag {
	var out []cli.Flag
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func newApp() *cli.App {
	return &cli.App{
		Name:   "ffx",
		Usage:  "extract longer-run federal funds rate percentiles from the NY Fed market expectations surveys",
		Flags:  runFlags(),
		Action: pipeline.RunAction,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "scrape, download and extract every survey file, then write the table",
				Flags:  runFlags(),
				Action: pipeline.RunAction,
			},
			{
				Name:  "manifest",
				Usage: "print the survey files that a run would process",
				Flags: append(runFlags(),
					&cli.StringFlag{Name: "format", Value: "table", Usage: "table, yaml or json"},
				),
				Action: pipeline.ManifestAction,
			},
			{
				Name:      "extract",
				Usage:     "run the extractor on local files",
				ArgsUsage: "FILE...",
				Flags: concat(extractorFlags(), logFlags(), []cli.Flag{
					&cli.StringFlag{Name: "date", Usage: "survey month (YYYY-MM); inferred from the filename when empty"},
					&cli.StringFlag{Name: "panel-hint", Usage: "spd, smp or sme; inferred from the filename when empty"},
					&cli.StringFlag{Name: "format", Value: "yaml", Usage: "yaml or json"},
				}),
				Action: pipeline.ExtractAction,
			},
			{
				Name:  "compare",
				Usage: "compare an existing output table with a reference series",
				Flags: concat(dirFlags(), compareFlags(), logFlags(), []cli.Flag{
					&cli.StringFlag{Name: "input", Usage: "output table to compare (default: output-dir/output-file)"},
					&cli.StringFlag{Name: "output", Usage: "comparison workbook (default: output-dir/" + pipeline.ComparisonFile + ")"},
				}),
				Action: pipeline.CompareAction,
			},
			{
				Name:  "quickstart",
				Usage: "print common commands and output locations",
				Action: func(c *cli.Context) error {
					fmt.Print(help.ColdstartYAML)
					return nil
				},
			},
			{
				Name:  "db",
				Usage: "inspect the download and run ledger",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "data-dir", Value: defaultDataDir, EnvVars: []string{"FFX_DATA_DIR"}},
				},
				Subcommands: []*cli.Command{
					{
						Name:   "runs",
						Usage:  "list recent runs",
						Flags:  []cli.Flag{&cli.IntFlag{Name: "limit", Value: 20}},
						Action: dbcmd.RunsAction,
					},
					{
						Name:      "run",
						Usage:     "show per-file outcomes of a run (latest when no id is given)",
						ArgsUsage: "[id]",
						Flags:     []cli.Flag{&cli.BoolFlag{Name: "problems", Usage: "only files without values"}},
						Action:    dbcmd.RunAction,
					},
					{
						Name:   "downloads",
						Usage:  "list downloaded files",
						Flags:  []cli.Flag{&cli.IntFlag{Name: "limit"}},
						Action: dbcmd.DownloadsAction,
					},
				},
			},
		},
	}
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Error: failed to load .env: %v\n", err)
		os.Exit(1)
	}

	if err := newApp().Run(os.Args); err != nil {
		var exitErr cli.ExitCoder
		if !errors.As(err, &exitErr) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
