// Package downloader materializes manifest entries on disk, skipping files
// that are already present and recording every fetch in the ledger.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dtnitsch/ffrate-extractor/models"
	"github.com/dtnitsch/ffrate-extractor/pkg/db"
	"github.com/dtnitsch/ffrate-extractor/pkg/fetcher"
	"github.com/dtnitsch/ffrate-extractor/pkg/manifest"
	"github.com/dtnitsch/ffrate-extractor/pkg/storage"
	"golang.org/x/time/rate"
)

// ErrNotCached is returned in offline mode for files that were never downloaded.
var ErrNotCached = errors.New("file not downloaded")

// Ledger records downloads. *db.DB satisfies it.
type Ledger interface {
	RecordDownload(d db.Download) (int64, error)
	GetDownload(url string) (*db.Download, error)
}

// Options configure a Downloader.
type Options struct {
	DataDir string
	// Timeout bounds each file transfer. Zero means no per-file limit.
	Timeout time.Duration
	// RatePerSec paces network fetches. Zero or less disables pacing.
	RatePerSec float64
	// Offline serves only files already on disk.
	Offline bool
}

type Downloader struct {
	fetcher *fetcher.Fetcher
	storage *storage.Storage
	ledger  Ledger
	limiter *rate.Limiter
	opts    Options
	logger  *slog.Logger
}

// New returns a Downloader. ledger may be nil.
func New(f *fetcher.Fetcher, ledger Ledger, opts Options, logger *slog.Logger) *Downloader {
	if f == nil {
		f = fetcher.NewFetcher(nil, "")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	limit := rate.Inf
	if opts.RatePerSec > 0 {
		limit = rate.Limit(opts.RatePerSec)
	}
	return &Downloader{
		fetcher: f,
		storage: &storage.Storage{},
		ledger:  ledger,
		limiter: rate.NewLimiter(limit, 1),
		opts:    opts,
		logger:  logger,
	}
}

// LocalPath maps a file URL into dataDir. The URL's year segment prefixes
// the filename when the name does not already carry it, so files that share
// a name across years do not collide.
func LocalPath(dataDir, fileURL string) string {
	p := fileURL
	if u, err := url.Parse(fileURL); err == nil {
		p = u.Path
	}
	name := path.Base(p)
	if year, ok := manifest.URLYear(p); ok {
		y := strconv.Itoa(year)
		if !strings.Contains(name, y) {
			name = y + "-" + name
		}
	}
	return filepath.Join(dataDir, name)
}

// Download returns the local copy of entry, fetching it unless it is
// already on disk and force is false.
func (d *Downloader) Download(ctx context.Context, entry models.ManifestEntry, force bool) (models.LocalFile, error) {
	local := models.LocalFile{
		Entry:     entry,
		LocalPath: LocalPath(d.opts.DataDir, entry.FileURL),
	}

	if d.storage.HasFile(local.LocalPath) && (!force || d.opts.Offline) {
		return d.cached(local)
	}
	if d.opts.Offline {
		return local, fmt.Errorf("%w: %s", ErrNotCached, local.LocalPath)
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return local, fmt.Errorf("failed to wait for rate limiter: %w", err)
	}
	if d.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	written, err := d.storage.WriteAtomic(local.LocalPath, func(w io.Writer) error {
		_, err := d.fetcher.Stream(ctx, entry.FileURL, w)
		return err
	})
	if err != nil {
		return local, fmt.Errorf("failed to download %s: %w", entry.FileURL, err)
	}

	local.DownloadedAt = time.Now().UTC()
	local.ContentHash = written.ContentHash
	local.SizeBytes = written.SizeBytes
	d.logger.Info("downloaded", "url", entry.FileURL, "path", local.LocalPath,
		"bytes", written.SizeBytes, "duration", time.Since(start).Round(time.Millisecond))

	d.record(local)
	return local, nil
}

func (d *Downloader) cached(local models.LocalFile) (models.LocalFile, error) {
	local.CacheHit = true
	if stats, err := d.storage.GetFileStats(local.LocalPath); err == nil {
		local.SizeBytes = stats.SizeBytes
		local.DownloadedAt = stats.ModTime.UTC()
	}

	if d.ledger != nil {
		if row, err := d.ledger.GetDownload(local.Entry.FileURL); err == nil && row.LocalPath == local.LocalPath && row.SizeBytes == local.SizeBytes {
			local.ContentHash = row.ContentHash
			local.DownloadedAt = row.DownloadedAt
		}
	}
	if local.ContentHash == "" {
		hash, err := d.storage.HashFile(local.LocalPath)
		if err != nil {
			return local, err
		}
		local.ContentHash = hash
		d.record(local)
	}

	d.logger.Debug("using cached file", "url", local.Entry.FileURL, "path", local.LocalPath)
	return local, nil
}

// record writes the ledger row. Ledger failures are logged, not fatal.
func (d *Downloader) record(local models.LocalFile) {
	if d.ledger == nil {
		return
	}
	_, err := d.ledger.RecordDownload(db.Download{
		URL:          local.Entry.FileURL,
		LocalPath:    local.LocalPath,
		ContentHash:  local.ContentHash,
		SizeBytes:    local.SizeBytes,
		SurveyDate:   local.Entry.SurveyDate.Format(time.DateOnly),
		Format:       string(local.Entry.Format),
		DownloadedAt: local.DownloadedAt,
	})
	if err != nil {
		d.logger.Warn("failed to record download", "url", local.Entry.FileURL, "error", err)
	}
}
