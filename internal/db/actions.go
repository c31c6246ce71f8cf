package db

import (
	"fmt"
	"os"

	dbpkg "github.com/dtnitsch/ffrate-extractor/pkg/db"
	"github.com/dtnitsch/ffrate-extractor/pkg/report"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v2"
)

func openLedger(c *cli.Context) (*dbpkg.DB, error) {
	database, err := dbpkg.Open(c.String("data-dir"))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return database, nil
}

// RunsAction lists recent runs.
func RunsAction(c *cli.Context) error {
	database, err := openLedger(c)
	if err != nil {
		return err
	}
	defer database.Close()

	runs, err := database.ListRuns(c.Int("limit"))
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No runs found")
		return nil
	}

	t := report.NewTable(os.Stdout)
	t.AppendHeader(table.Row{"ID", "Started", "Status", "Files", "OK", "Failed", "Records", "Flagged", "Output"})
	for _, r := range runs {
		t.AppendRow(table.Row{
			r.RunID,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Status,
			r.Entries,
			r.Succeeded,
			r.Failed,
			r.Records,
			r.Flagged,
			r.OutputPath,
		})
	}
	t.Render()

	fmt.Printf("\nTotal: %d runs\n", len(runs))
	fmt.Printf("\nTip: Use 'ffx db run <id>' to see per-file outcomes\n")
	return nil
}

// RunAction shows one run and its per-file outcomes.
func RunAction(c *cli.Context) error {
	database, err := openLedger(c)
	if err != nil {
		return err
	}
	defer database.Close()

	runID, err := GetRunIDOrLatest(c, database)
	if err != nil {
		return err
	}
	run, err := database.GetRun(runID)
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}
	files, err := database.GetRunFiles(runID)
	if err != nil {
		return fmt.Errorf("failed to get run files: %w", err)
	}

	finished := "(running)"
	if run.FinishedAt.Valid {
		finished = run.FinishedAt.Time.Local().Format("2006-01-02 15:04:05")
	}
	fmt.Printf("Run %d  %s\n", run.RunID, run.RunKey)
	fmt.Printf("Started:   %s\n", run.StartedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("Finished:  %s\n", finished)
	fmt.Printf("Status:    %s\n", run.Status)
	fmt.Printf("Files:     %d total (%d with values, %d failed)\n", run.Entries, run.Succeeded, run.Failed)
	fmt.Printf("Records:   %d (%d flagged, %d duplicates dropped)\n", run.Records, run.Flagged, run.Duplicates)
	if run.OutputPath != "" {
		fmt.Printf("Output:    %s\n", run.OutputPath)
	}

	if len(files) == 0 {
		return nil
	}
	fmt.Println()
	t := report.NewTable(os.Stdout)
	t.AppendHeader(table.Row{"#", "Status", "Source", "Records", "URL", "Notes"})
	for i, f := range files {
		if c.Bool("problems") && f.Status == dbpkg.FileExtracted {
			continue
		}
		t.AppendRow(table.Row{i + 1, f.Status, f.Source, f.Records, f.URL, f.Notes})
	}
	t.Render()
	return nil
}

// DownloadsAction lists the download ledger.
func DownloadsAction(c *cli.Context) error {
	database, err := openLedger(c)
	if err != nil {
		return err
	}
	defer database.Close()

	downloads, err := database.ListDownloads(c.Int("limit"))
	if err != nil {
		return fmt.Errorf("failed to list downloads: %w", err)
	}
	if len(downloads) == 0 {
		fmt.Println("No downloads recorded")
		return nil
	}

	t := report.NewTable(os.Stdout)
	t.AppendHeader(table.Row{"Survey", "Format", "Size", "Hash", "Downloaded", "Path"})
	for _, d := range downloads {
		t.AppendRow(table.Row{
			d.SurveyDate,
			d.Format,
			formatBytes(d.SizeBytes),
			shortHash(d.ContentHash),
			d.DownloadedAt.Local().Format("2006-01-02 15:04"),
			d.LocalPath,
		})
	}
	t.Render()

	fmt.Printf("\nTotal: %d files\n", len(downloads))
	return nil
}
