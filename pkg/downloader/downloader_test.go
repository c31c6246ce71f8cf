package downloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dtnitsch/ffrate-extractor/models"
	"github.com/dtnitsch/ffrate-extractor/pkg/db"
	"github.com/dtnitsch/ffrate-extractor/pkg/fetcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const payload = "%PDF-1.4 fake survey results"

func fileServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		if r.URL.Path == "/missing/2020/x.pdf" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(payload))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func entry(srv *httptest.Server, p string) models.ManifestEntry {
	return models.ManifestEntry{
		SurveyDate: time.Date(2014, time.April, 1, 0, 0, 0, 0, time.UTC),
		Format:     models.FormatPDF,
		Kind:       models.KindResults,
		FileURL:    srv.URL + p,
	}
}

func openLedger(t *testing.T) *db.DB {
	t.Helper()
	ledger, err := db.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })
	return ledger
}

func TestDownloadThenCacheHit(t *testing.T) {
	var hits int32
	srv := fileServer(t, &hits)
	ledger := openLedger(t)
	dir := t.TempDir()
	d := New(fetcher.NewFetcher(srv.Client(), ""), ledger, Options{DataDir: dir, Timeout: 5 * time.Second}, nil)
	e := entry(srv, "/survey/2014/April_result.pdf")

	first, err := d.Download(context.Background(), e, false)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)
	assert.Equal(t, filepath.Join(dir, "2014-April_result.pdf"), first.LocalPath)
	sum := sha256.Sum256([]byte(payload))
	assert.Equal(t, hex.EncodeToString(sum[:]), first.ContentHash)
	assert.Equal(t, int64(len(payload)), first.SizeBytes)

	row, err := ledger.GetDownload(e.FileURL)
	require.NoError(t, err)
	assert.Equal(t, first.ContentHash, row.ContentHash)
	assert.Equal(t, "2014-04-01", row.SurveyDate)

	second, err := d.Download(context.Background(), e, false)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.ContentHash, second.ContentHash)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	_, err = d.Download(context.Background(), e, true)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestCacheHitWithoutLedgerRowHashesFile(t *testing.T) {
	var hits int32
	srv := fileServer(t, &hits)
	ledger := openLedger(t)
	dir := t.TempDir()
	e := entry(srv, "/survey/2014/April_result.pdf")
	require.NoError(t, os.WriteFile(LocalPath(dir, e.FileURL), []byte(payload), 0o644))

	local, err := New(fetcher.NewFetcher(srv.Client(), ""), ledger, Options{DataDir: dir}, nil).Download(context.Background(), e, false)
	require.NoError(t, err)
	assert.True(t, local.CacheHit)
	assert.Zero(t, atomic.LoadInt32(&hits))

	row, err := ledger.GetDownload(e.FileURL)
	require.NoError(t, err)
	assert.Equal(t, local.ContentHash, row.ContentHash)
}

func TestOfflineMode(t *testing.T) {
	var hits int32
	srv := fileServer(t, &hits)
	dir := t.TempDir()
	d := New(fetcher.NewFetcher(srv.Client(), ""), nil, Options{DataDir: dir, Offline: true}, nil)

	missing := entry(srv, "/survey/2015/May_result.pdf")
	_, err := d.Download(context.Background(), missing, false)
	assert.ErrorIs(t, err, ErrNotCached)

	present := entry(srv, "/survey/2014/April_result.pdf")
	require.NoError(t, os.WriteFile(LocalPath(dir, present.FileURL), []byte(payload), 0o644))
	local, err := d.Download(context.Background(), present, true)
	require.NoError(t, err)
	assert.True(t, local.CacheHit)
	assert.Zero(t, atomic.LoadInt32(&hits))
}

func TestDownloadFailureLeavesNoFile(t *testing.T) {
	var hits int32
	srv := fileServer(t, &hits)
	dir := t.TempDir()
	d := New(fetcher.NewFetcher(srv.Client(), ""), nil, Options{DataDir: dir}, nil)

	local, err := d.Download(context.Background(), entry(srv, "/missing/2020/x.pdf"), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	_, statErr := os.Stat(local.LocalPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDownloadTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	d := New(fetcher.NewFetcher(srv.Client(), ""), nil, Options{DataDir: t.TempDir(), Timeout: 50 * time.Millisecond}, nil)
	_, err := d.Download(context.Background(), entry(srv, "/survey/2014/slow.pdf"), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocalPath(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://x.org/medialibrary/survey/2014/April_result.pdf", "2014-April_result.pdf"},
		{"https://x.org/medialibrary/survey/2025/oct-2025-data.xlsx", "oct-2025-data.xlsx"},
		{"https://x.org/files/results.pdf", "results.pdf"},
		{"https://x.org/survey/2013/December%20result.pdf", "2013-December result.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, filepath.Join("data", tt.want), LocalPath("data", tt.url))
		})
	}
}
