package manifest

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dtnitsch/ffrate-extractor/models"
	"github.com/dtnitsch/ffrate-extractor/pkg/caching"
	"github.com/dtnitsch/ffrate-extractor/pkg/fetcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const indexPage = `<html><body>
<ul>
  <li><a href="/medialibrary/media/markets/survey/2025/oct-2025-data.xlsx">October 2025 Data</a></li>
  <li><a href="/medialibrary/media/markets/survey/2025/oct-2025-sme-results.pdf">Results</a></li>
  <li><a href="/medialibrary/media/markets/survey/2024/dec-2024-data.xlsx">Data</a></li>
  <li><a href="/medialibrary/media/markets/survey/2024/dec-2024-data.xlsx#sheet">Data (again)</a></li>
  <li><a href="/medialibrary/media/markets/survey/2024/dec-2024-spd-results.pdf">Dealers</a></li>
  <li><a href="/medialibrary/media/markets/survey/2024/dec-2024-smp-results.pdf">Participants</a></li>
  <li><a href="/medialibrary/media/markets/survey/2024/dec-2024-spd-survey.pdf">Questions</a></li>
  <li><a href="/medialibrary/media/markets/survey/2014/mp_January_result.pdf">January 2014</a></li>
  <li><a href="/medialibrary/media/markets/survey/2013/December_result.pdf">December 2013</a></li>
  <li><a href="/medialibrary/media/markets/survey/misc/results.pdf">Results</a></li>
  <li><a href="https://other.example.com/2011/jan-2011-spd-results.pdf">Old</a></li>
  <li><a href="/about.html">About</a></li>
  <li><a>No link</a></li>
</ul>
</body></html>`

func indexServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		_, _ = w.Write([]byte(indexPage))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestScrape(t *testing.T) {
	var hits int32
	srv := indexServer(t, &hits)
	s := NewScraper(fetcher.NewFetcher(srv.Client(), ""), nil, nil)

	entries, err := s.Scrape(context.Background(), srv.URL+"/markets/survey", 2012, 2025)
	require.NoError(t, err)

	type row struct {
		date string
		file string
		hint models.SurveyType
		kind models.FileKind
	}
	var got []row
	for _, e := range entries {
		got = append(got, row{e.SurveyDate.Format("2006-01-02"), path.Base(e.FileURL), e.PanelHint, e.Kind})
	}
	assert.Equal(t, []row{
		{"2013-12-01", "December_result.pdf", models.SurveySPD, models.KindResults},
		{"2014-01-01", "mp_January_result.pdf", models.SurveySMP, models.KindResults},
		{"2024-12-01", "dec-2024-data.xlsx", models.SurveyMerged, models.KindData},
		{"2024-12-01", "dec-2024-smp-results.pdf", models.SurveySMP, models.KindResults},
		{"2024-12-01", "dec-2024-spd-results.pdf", models.SurveySPD, models.KindResults},
		{"2025-10-01", "oct-2025-data.xlsx", models.SurveyMerged, models.KindData},
		{"2025-10-01", "oct-2025-sme-results.pdf", models.SurveyMerged, models.KindResults},
	}, got)
	assert.Equal(t, srv.URL+"/medialibrary/media/markets/survey/2025/oct-2025-data.xlsx", entries[5].FileURL)
	assert.Equal(t, "October 2025 Data", entries[5].LinkText)
}

func TestScrapeUsesPageCache(t *testing.T) {
	var hits int32
	srv := indexServer(t, &hits)
	cache, err := caching.NewCache(t.TempDir(), time.Hour)
	require.NoError(t, err)
	s := NewScraper(fetcher.NewFetcher(srv.Client(), ""), cache, nil)

	for i := 0; i < 2; i++ {
		_, err := s.Scrape(context.Background(), srv.URL, 0, 0)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	s.Refresh = true
	_, err = s.Scrape(context.Background(), srv.URL, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestScrapeRefreshDropsCachedPage(t *testing.T) {
	var hits int32
	var down atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if down.Load() {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(indexPage))
	}))
	defer srv.Close()
	cache, err := caching.NewCache(t.TempDir(), time.Hour)
	require.NoError(t, err)
	s := NewScraper(fetcher.NewFetcher(srv.Client(), ""), cache, nil)

	_, err = s.Scrape(context.Background(), srv.URL, 0, 0)
	require.NoError(t, err)

	down.Store(true)
	s.Refresh = true
	_, err = s.Scrape(context.Background(), srv.URL, 0, 0)
	require.Error(t, err)

	s.Refresh = false
	_, err = s.Scrape(context.Background(), srv.URL, 0, 0)
	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestScrapeWarnsOnMalformedLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body>
<a href="/survey/2024/dec-2024-spd-%zz-results.pdf">Broken</a>
<a href="/survey/2024/dec-2024-smp-results.pdf">Participants</a>
</body></html>`))
	}))
	defer srv.Close()
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))

	entries, err := NewScraper(fetcher.NewFetcher(srv.Client(), ""), nil, logger).Scrape(context.Background(), srv.URL, 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.SurveySMP, entries[0].PanelHint)
	assert.Contains(t, logs.String(), "malformed link")
	assert.Contains(t, logs.String(), "%zz")
}

func TestScrapeUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewScraper(fetcher.NewFetcher(srv.Client(), ""), nil, nil).Scrape(context.Background(), srv.URL, 0, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestSelect(t *testing.T) {
	var hits int32
	srv := indexServer(t, &hits)
	entries, err := NewScraper(fetcher.NewFetcher(srv.Client(), ""), nil, nil).Scrape(context.Background(), srv.URL, 2012, 2025)
	require.NoError(t, err)

	preferred := Select(entries, true)
	var files []string
	for _, e := range preferred {
		files = append(files, path.Base(e.FileURL))
	}
	assert.Equal(t, []string{
		"December_result.pdf",
		"mp_January_result.pdf",
		"dec-2024-data.xlsx",
		"oct-2025-data.xlsx",
	}, files)

	assert.Len(t, Select(entries, false), len(entries))
}

func TestSurveyDate(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		text   string
		want   string
		wantOK bool
	}{
		{"month-year filename", "/survey/2025/oct-2025-data.xlsx", "", "2025-10-01", true},
		{"full month name", "/survey/2013/December_result.pdf", "", "2013-12-01", true},
		{"year in filename only", "/files/sme_jan2023_data.xlsx", "", "2023-01-01", true},
		{"first of two months", "/survey/2024/apr-may-2024-results.pdf", "", "2024-04-01", true},
		{"month from link text", "/survey/2024/results.pdf", "Jul/Aug 2024", "2024-07-01", true},
		{"numeric link text", "/survey/results.pdf", "03/2019", "2019-03-01", true},
		{"no date", "/survey/results.pdf", "Results", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SurveyDate(tt.path, tt.text)
			require.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.want, got.Format("2006-01-02"))
			}
		})
	}
}

func TestPanelHint(t *testing.T) {
	tests := []struct {
		path   string
		text   string
		format models.Format
		year   int
		want   models.SurveyType
	}{
		{"/2014/mp_January_result.pdf", "", models.FormatPDF, 2014, models.SurveySMP},
		{"/2013/December_result.pdf", "", models.FormatPDF, 2013, models.SurveySPD},
		{"/2019/results.pdf", "", models.FormatPDF, 2019, models.SurveyUnknown},
		{"/2024/dec-2024-data.xlsx", "", models.FormatXLSX, 2024, models.SurveyMerged},
		{"/2019/data.xlsx", "", models.FormatXLSX, 2019, models.SurveyUnknown},
		{"/2020/x-results.pdf", "Survey of Market Participants", models.FormatPDF, 2020, models.SurveySMP},
		{"/2020/x-results.pdf", "Survey of Primary Dealers", models.FormatPDF, 2020, models.SurveySPD},
	}
	for _, tt := range tests {
		t.Run(tt.path+"/"+tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, PanelHint(tt.path, tt.text, tt.format, tt.year))
		})
	}
}

func TestFilter(t *testing.T) {
	entries := []models.ManifestEntry{
		{SurveyDate: time.Date(2011, 1, 1, 0, 0, 0, 0, time.UTC)},
		{SurveyDate: time.Date(2015, 6, 1, 0, 0, 0, 0, time.UTC)},
		{SurveyDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	assert.Len(t, Filter(entries, 2012, 2024), 1)
	assert.Len(t, Filter(entries, 0, 0), 3)
	assert.Len(t, Filter(entries, 2015, 0), 2)
}
