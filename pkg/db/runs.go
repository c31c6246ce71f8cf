package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Run file statuses.
const (
	FileExtracted = "extracted"
	FileEmpty     = "empty"
	FileFailed    = "failed"
)

// Run represents one pipeline invocation
type Run struct {
	RunID      int64
	RunKey     string
	StartedAt  time.Time
	FinishedAt sql.NullTime
	Status     string
	Entries    int
	Records    int
	Succeeded  int
	Failed     int
	Flagged    int
	Duplicates int
	OutputPath string
}

// RunStats are the totals written when a run finishes.
type RunStats struct {
	Entries    int
	Records    int
	Succeeded  int
	Failed     int
	Flagged    int
	Duplicates int
	OutputPath string
}

// RunFile is the outcome of one manifest entry within a run.
type RunFile struct {
	URL       string
	LocalPath string
	Status    string
	Source    string
	Records   int
	Notes     string
}

// CreateRun starts a run row keyed by runKey.
func (db *DB) CreateRun(runKey string, startedAt time.Time) (int64, error) {
	result, err := db.Exec(`
		INSERT INTO runs (run_key, started_at, status) VALUES (?, ?, ?)
	`, runKey, startedAt.UTC(), RunRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to create run: %w", err)
	}
	runID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get run ID: %w", err)
	}
	return runID, nil
}

// FinishRun stores the final totals and status of a run.
func (db *DB) FinishRun(runID int64, status string, stats RunStats) error {
	_, err := db.Exec(`
		UPDATE runs
		SET finished_at = ?, status = ?, entries = ?, records = ?, succeeded = ?,
		    failed = ?, flagged = ?, duplicates = ?, output_path = ?
		WHERE run_id = ?
	`, time.Now().UTC(), status, stats.Entries, stats.Records, stats.Succeeded,
		stats.Failed, stats.Flagged, stats.Duplicates, stats.OutputPath, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// RecordRunFile upserts the outcome of one file within a run.
func (db *DB) RecordRunFile(runID int64, f RunFile) error {
	_, err := db.Exec(`
		INSERT INTO run_files (run_id, url, local_path, status, source, records, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, url) DO UPDATE SET
			local_path = excluded.local_path,
			status = excluded.status,
			source = excluded.source,
			records = excluded.records,
			notes = excluded.notes
	`, runID, f.URL, f.LocalPath, f.Status, f.Source, f.Records, f.Notes)
	if err != nil {
		return fmt.Errorf("failed to record run file: %w", err)
	}
	return nil
}

// ListRuns returns runs newest first. A limit of 0 lists all.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	query := runSelect + " ORDER BY started_at DESC, run_id DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// GetRun returns a run by id, or ErrNotFound.
func (db *DB) GetRun(runID int64) (*Run, error) {
	r, err := scanRun(db.QueryRow(runSelect+" WHERE run_id = ?", runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %d", ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return r, nil
}

// GetRunFiles lists the per-file outcomes of a run in insertion order.
func (db *DB) GetRunFiles(runID int64) ([]RunFile, error) {
	rows, err := db.Query(`
		SELECT url, COALESCE(local_path, ''), status, COALESCE(source, ''), records, COALESCE(notes, '')
		FROM run_files WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run files: %w", err)
	}
	defer rows.Close()

	var files []RunFile
	for rows.Next() {
		var f RunFile
		if err := rows.Scan(&f.URL, &f.LocalPath, &f.Status, &f.Source, &f.Records, &f.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan run file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

const runSelect = `
	SELECT run_id, run_key, started_at, finished_at, status, entries, records,
	       succeeded, failed, flagged, duplicates, COALESCE(output_path, '')
	FROM runs`

func scanRun(s scanner) (*Run, error) {
	var r Run
	if err := s.Scan(&r.RunID, &r.RunKey, &r.StartedAt, &r.FinishedAt, &r.Status, &r.Entries,
		&r.Records, &r.Succeeded, &r.Failed, &r.Flagged, &r.Duplicates, &r.OutputPath); err != nil {
		return nil, err
	}
	return &r, nil
}
