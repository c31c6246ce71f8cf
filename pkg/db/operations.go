package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Download is a ledger row for one fetched survey file.
type Download struct {
	DownloadID   int64
	URL          string
	LocalPath    string
	ContentHash  string
	SizeBytes    int64
	SurveyDate   string
	Format       string
	DownloadedAt time.Time
}

// RecordDownload inserts or refreshes the ledger row for d.URL and returns its id.
func (db *DB) RecordDownload(d Download) (int64, error) {
	if d.DownloadedAt.IsZero() {
		d.DownloadedAt = time.Now().UTC()
	}
	_, err := db.Exec(`
		INSERT INTO downloads (url, local_path, content_hash, size_bytes, survey_date, format, downloaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			local_path = excluded.local_path,
			content_hash = excluded.content_hash,
			size_bytes = excluded.size_bytes,
			survey_date = excluded.survey_date,
			format = excluded.format,
			downloaded_at = excluded.downloaded_at
	`, d.URL, d.LocalPath, d.ContentHash, d.SizeBytes, d.SurveyDate, d.Format, d.DownloadedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to record download: %w", err)
	}

	var id int64
	if err := db.QueryRow("SELECT download_id FROM downloads WHERE url = ?", d.URL).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to get download ID: %w", err)
	}
	return id, nil
}

// GetDownload returns the ledger row for url, or ErrNotFound.
func (db *DB) GetDownload(url string) (*Download, error) {
	row := db.QueryRow(`
		SELECT download_id, url, local_path, content_hash, size_bytes,
		       COALESCE(survey_date, ''), COALESCE(format, ''), downloaded_at
		FROM downloads WHERE url = ?
	`, url)
	d, err := scanDownload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, url)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get download: %w", err)
	}
	return d, nil
}

// ListDownloads returns the most recent downloads first. A limit of 0 lists all.
func (db *DB) ListDownloads(limit int) ([]Download, error) {
	query := `
		SELECT download_id, url, local_path, content_hash, size_bytes,
		       COALESCE(survey_date, ''), COALESCE(format, ''), downloaded_at
		FROM downloads
		ORDER BY downloaded_at DESC, download_id DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list downloads: %w", err)
	}
	defer rows.Close()

	var downloads []Download
	for rows.Next() {
		d, err := scanDownload(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan download: %w", err)
		}
		downloads = append(downloads, *d)
	}
	return downloads, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDownload(s scanner) (*Download, error) {
	var d Download
	if err := s.Scan(&d.DownloadID, &d.URL, &d.LocalPath, &d.ContentHash, &d.SizeBytes,
		&d.SurveyDate, &d.Format, &d.DownloadedAt); err != nil {
		return nil, err
	}
	return &d, nil
}
