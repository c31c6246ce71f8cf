package db

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

// setupTestDB creates an in-memory SQLite database for testing
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	database := &DB{path: ":memory:"}
	var err error
	database.DB, err = openDB(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	// Every pooled connection would otherwise get its own empty database.
	database.SetMaxOpenConns(1)

	if err := database.InitSchema(); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}

	return database
}

func TestOpenCreatesSchema(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ledger")
	database, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer database.Close()

	if database.Path() != filepath.Join(dir, DefaultDBName) {
		t.Errorf("Path() = %s", database.Path())
	}
	if err := database.ensureSchemaExists(); err != nil {
		t.Errorf("ensureSchemaExists() on an initialized database: %v", err)
	}
}

func TestRecordDownload(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	first := Download{
		URL:         "https://example.com/2024/dec-2024-data.xlsx",
		LocalPath:   "data_raw/dec-2024-data.xlsx",
		ContentHash: "aaa",
		SizeBytes:   100,
		SurveyDate:  "2024-12-01",
		Format:      "xlsx",
	}
	id1, err := db.RecordDownload(first)
	if err != nil {
		t.Fatalf("RecordDownload() error = %v", err)
	}

	second := first
	second.ContentHash = "bbb"
	second.SizeBytes = 120
	id2, err := db.RecordDownload(second)
	if err != nil {
		t.Fatalf("RecordDownload() error = %v", err)
	}
	if id1 != id2 {
		t.Errorf("re-download got a new ID: %d != %d", id2, id1)
	}

	got, err := db.GetDownload(first.URL)
	if err != nil {
		t.Fatalf("GetDownload() error = %v", err)
	}
	if got.ContentHash != "bbb" || got.SizeBytes != 120 {
		t.Errorf("GetDownload() = %+v, want refreshed hash and size", got)
	}
	if got.DownloadedAt.IsZero() {
		t.Error("DownloadedAt was not set")
	}
}

func TestGetDownloadNotFound(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	_, err := db.GetDownload("https://example.com/missing.pdf")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetDownload() error = %v, want ErrNotFound", err)
	}
}

func TestListDownloads(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	urls := []string{"https://x/a.pdf", "https://x/b.pdf", "https://x/c.pdf"}
	for i, u := range urls {
		if _, err := db.RecordDownload(Download{
			URL: u, LocalPath: u, ContentHash: "h", SizeBytes: 1,
			DownloadedAt: base.Add(time.Duration(i) * time.Hour),
		}); err != nil {
			t.Fatalf("RecordDownload() error = %v", err)
		}
	}

	all, err := db.ListDownloads(0)
	if err != nil {
		t.Fatalf("ListDownloads() error = %v", err)
	}
	if len(all) != 3 || all[0].URL != "https://x/c.pdf" {
		t.Errorf("ListDownloads(0) = %+v, want newest first", all)
	}

	limited, err := db.ListDownloads(2)
	if err != nil {
		t.Fatalf("ListDownloads() error = %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("ListDownloads(2) returned %d rows", len(limited))
	}
}

func TestRunLifecycle(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	runID, err := db.CreateRun("20250101-000000-abc", time.Now())
	if err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}

	run, err := db.GetRun(runID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Status != RunRunning || run.FinishedAt.Valid {
		t.Errorf("new run = %+v, want running and unfinished", run)
	}

	files := []RunFile{
		{URL: "https://x/a.xlsx", LocalPath: "a.xlsx", Status: FileExtracted, Source: "xlsx", Records: 2},
		{URL: "https://x/b.pdf", Status: FileFailed, Notes: "download_failed: timeout"},
	}
	for _, f := range files {
		if err := db.RecordRunFile(runID, f); err != nil {
			t.Fatalf("RecordRunFile() error = %v", err)
		}
	}
	// Upsert on the same URL replaces the outcome.
	files[1].Status = FileEmpty
	files[1].Notes = "question_not_present"
	if err := db.RecordRunFile(runID, files[1]); err != nil {
		t.Fatalf("RecordRunFile() error = %v", err)
	}

	got, err := db.GetRunFiles(runID)
	if err != nil {
		t.Fatalf("GetRunFiles() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("GetRunFiles() returned %d files, want 2", len(got))
	}
	if got[1] != files[1] {
		t.Errorf("GetRunFiles()[1] = %+v, want %+v", got[1], files[1])
	}

	stats := RunStats{Entries: 2, Records: 3, Succeeded: 1, Failed: 1, Flagged: 0, OutputPath: "out.csv"}
	if err := db.FinishRun(runID, RunCompleted, stats); err != nil {
		t.Fatalf("FinishRun() error = %v", err)
	}
	run, err = db.GetRun(runID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Status != RunCompleted || !run.FinishedAt.Valid || run.Records != 3 || run.OutputPath != "out.csv" {
		t.Errorf("finished run = %+v", run)
	}
}

func TestListRuns(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, key := range []string{"r1", "r2", "r3"} {
		if _, err := db.CreateRun(key, base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("CreateRun() error = %v", err)
		}
	}

	runs, err := db.ListRuns(2)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 2 || runs[0].RunKey != "r3" || runs[1].RunKey != "r2" {
		t.Errorf("ListRuns(2) = %+v, want r3, r2", runs)
	}

	if _, err := db.CreateRun("r1", base); err == nil {
		t.Error("CreateRun() with a duplicate key should fail")
	}
	if _, err := db.GetRun(999); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRun(999) error = %v, want ErrNotFound", err)
	}
}
