// Package models defines the data structures shared by the scraper,
// downloader, extractors and combiner.
package models

import "time"

// DefaultPageURL is the survey index page listing every data and results file.
const DefaultPageURL = "https://www.newyorkfed.org/markets/market-intelligence/survey-of-market-expectations"

// RunConfig holds runtime configuration for a pipeline run.
// All values come from CLI flags (or their FFX_* environment variables).
type RunConfig struct {
	PageURL        string
	StartYear      int
	EndYear        int
	DataDir        string
	OutputDir      string
	OutputFile     string
	ConfigPath     string
	Redownload     bool
	OCREnabled     bool
	PreferXLSX     bool
	SkipDownload   bool
	MaxFiles       int
	Timeout        time.Duration
	RatePerSec     float64
	ManifestMaxAge time.Duration

	// Optional comparison against an external reference series.
	ReferencePath string
	Cutoff        time.Time
	Tolerance     float64
}
