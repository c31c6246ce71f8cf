package models

import "time"

// Format is the file format of a survey document.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
	FormatPDF  Format = "pdf"
)

// FileKind separates data spreadsheets from results documents.
type FileKind string

const (
	KindData    FileKind = "data"
	KindResults FileKind = "results"
)

// ManifestEntry is one downloadable survey document discovered on the index page.
type ManifestEntry struct {
	SurveyDate time.Time  `json:"survey_date" yaml:"survey_date"`
	PanelHint  SurveyType `json:"panel_hint,omitempty" yaml:"panel_hint,omitempty"`
	Format     Format     `json:"format" yaml:"format"`
	Kind       FileKind   `json:"kind" yaml:"kind"`
	FileURL    string     `json:"file_url" yaml:"file_url"`
	LinkText   string     `json:"link_text,omitempty" yaml:"link_text,omitempty"`
}

// LocalFile is a manifest entry materialized on disk.
type LocalFile struct {
	Entry        ManifestEntry `json:"entry" yaml:"entry"`
	LocalPath    string        `json:"local_path" yaml:"local_path"`
	DownloadedAt time.Time     `json:"downloaded_at" yaml:"downloaded_at"`
	CacheHit     bool          `json:"cache_hit" yaml:"cache_hit"`
	ContentHash  string        `json:"content_hash,omitempty" yaml:"content_hash,omitempty"`
	SizeBytes    int64         `json:"size_bytes,omitempty" yaml:"size_bytes,omitempty"`
}

// MonthStart truncates t to the first day of its month in UTC.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
