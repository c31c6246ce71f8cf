package manifest

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dtnitsch/ffrate-extractor/models"
	"github.com/dtnitsch/ffrate-extractor/pkg/caching"
	"github.com/dtnitsch/ffrate-extractor/pkg/fetcher"
)

// Scraper builds the survey manifest from the index page.
type Scraper struct {
	fetcher *fetcher.Fetcher
	cache   *caching.Cache
	logger  *slog.Logger

	// Refresh bypasses the page cache for the next fetch.
	Refresh bool
}

// NewScraper returns a Scraper. cache may be nil.
func NewScraper(f *fetcher.Fetcher, cache *caching.Cache, logger *slog.Logger) *Scraper {
	if f == nil {
		f = fetcher.NewFetcher(nil, "")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scraper{fetcher: f, cache: cache, logger: logger}
}

// Scrape fetches pageURL and returns the survey documents dated within
// [startYear, endYear], deduplicated by URL and sorted by (date, url).
func (s *Scraper) Scrape(ctx context.Context, pageURL string, startYear, endYear int) ([]models.ManifestEntry, error) {
	body, err := s.page(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	doc, err := fetcher.ParseHtml(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse survey index: %w", err)
	}

	entries, err := s.Parse(pageURL, doc)
	if err != nil {
		return nil, err
	}
	entries = Filter(entries, startYear, endYear)
	Sort(entries)

	s.logger.Info("manifest scraped", "url", pageURL, "entries", len(entries),
		"start_year", startYear, "end_year", endYear)
	return entries, nil
}

func (s *Scraper) page(ctx context.Context, pageURL string) ([]byte, error) {
	if s.Refresh {
		if err := s.cache.Invalidate(pageURL); err != nil {
			s.logger.Warn("failed to drop cached survey index", "url", pageURL, "error", err)
		}
	} else if body, ok := s.cache.Get(pageURL); ok {
		s.logger.Debug("survey index served from cache", "url", pageURL)
		return body, nil
	}
	body, err := s.fetcher.GetHtmlBytes(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch survey index: %w", err)
	}
	if err := s.cache.Set(pageURL, body); err != nil {
		s.logger.Warn("failed to cache survey index", "url", pageURL, "error", err)
	}
	return body, nil
}

// Parse walks every anchor on the page and returns one entry per survey
// document link. Links without a recognizable date are logged and skipped.
func (s *Scraper) Parse(pageURL string, doc *goquery.Document) ([]models.ManifestEntry, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page URL: %w", err)
	}

	seen := make(map[string]bool)
	var entries []models.ManifestEntry
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		text := strings.Join(strings.Fields(a.Text()), " ")

		entry, ok := s.entryFor(base, href, text)
		if !ok || seen[entry.FileURL] {
			return
		}
		seen[entry.FileURL] = true
		entries = append(entries, entry)
	})
	return entries, nil
}

func (s *Scraper) entryFor(base *url.URL, href, text string) (models.ManifestEntry, bool) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		s.logger.Warn("malformed link", "href", href, "error", err)
		return models.ManifestEntry{}, false
	}
	abs := base.ResolveReference(ref)
	abs.Fragment = ""

	format, ok := formatOf(abs.Path)
	if !ok {
		return models.ManifestEntry{}, false
	}
	name := Filename(abs.Path)
	if isQuestionnaire(name, format) {
		s.logger.Debug("skipping questionnaire", "url", abs.String())
		return models.ManifestEntry{}, false
	}

	date, ok := SurveyDate(abs.Path, text)
	if !ok {
		s.logger.Warn("no survey date for link", "url", abs.String(), "text", text)
		return models.ManifestEntry{}, false
	}

	kind := models.KindResults
	if format != models.FormatPDF {
		kind = models.KindData
	}
	return models.ManifestEntry{
		SurveyDate: date,
		PanelHint:  PanelHint(abs.Path, text, format, date.Year()),
		Format:     format,
		Kind:       kind,
		FileURL:    abs.String(),
		LinkText:   text,
	}, true
}
