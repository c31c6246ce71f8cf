// Package manifest discovers survey documents on the index page and turns
// each link into a dated, panel-hinted manifest entry.
package manifest

import (
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/dtnitsch/ffrate-extractor/models"
)

var months = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "sept": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

var fullMonthNames = []string{
	"january", "february", "march", "april", "may", "june", "july",
	"august", "september", "october", "november", "december",
}

var (
	yearSegment = regexp.MustCompile(`/((?:19|20)\d{2})/`)
	yearToken   = regexp.MustCompile(`(?:^|\D)((?:19|20)\d{2})(?:\D|$)`)
	numericDate = regexp.MustCompile(`\b(0?[1-9]|1[0-2])/((?:19|20)\d{2})\b`)
)

// tokens splits s into lowercase letter runs and digit runs.
func tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// alphaTokens splits s into lowercase letter runs, so "oct2025" yields "oct".
func alphaTokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
}

// Filename returns the unescaped last path element of a URL path.
func Filename(urlPath string) string {
	return path.Base(urlPath)
}

// URLYear returns the year of the /YYYY/ segment in a URL path.
func URLYear(urlPath string) (int, bool) {
	m := yearSegment.FindStringSubmatch(urlPath)
	if m == nil {
		return 0, false
	}
	y, err := strconv.Atoi(m[1])
	return y, err == nil
}

func monthOf(s string) (time.Month, bool) {
	for _, tok := range alphaTokens(s) {
		if m, ok := months[tok]; ok {
			return m, true
		}
	}
	lower := strings.ToLower(s)
	for i, name := range fullMonthNames {
		if strings.Contains(lower, name) {
			return time.Month(i + 1), true
		}
	}
	return 0, false
}

func yearOf(s string) (int, bool) {
	m := yearToken.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	y, err := strconv.Atoi(m[1])
	return y, err == nil
}

// SurveyDate derives the first-of-month survey date from a link. The year
// comes from the /YYYY/ path segment or a year in the filename, the month
// from a month token in the filename; the link text is the fallback for both.
func SurveyDate(urlPath, linkText string) (time.Time, bool) {
	name := Filename(urlPath)

	year, ok := URLYear(urlPath)
	if !ok {
		year, ok = yearOf(name)
	}
	if !ok {
		year, ok = yearOf(linkText)
	}

	month, mok := monthOf(name)
	if !mok {
		month, mok = monthOf(linkText)
	}
	if !mok {
		if m := numericDate.FindStringSubmatch(linkText); m != nil {
			n, _ := strconv.Atoi(m[1])
			month, mok = time.Month(n), true
			if !ok {
				year, _ = strconv.Atoi(m[2])
				ok = true
			}
		}
	}

	if !ok || !mok {
		return time.Time{}, false
	}
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC), true
}

// PanelHint classifies the survey behind a file from its name and link text.
// Unknown is a valid answer.
func PanelHint(urlPath, linkText string, format models.Format, year int) models.SurveyType {
	name := strings.ToLower(Filename(urlPath))
	for _, src := range []string{name, linkText} {
		for _, tok := range tokens(src) {
			switch tok {
			case "sme", "merged", "combined":
				return models.SurveyMerged
			case "spd", "pd", "primary", "dealer", "dealers":
				return models.SurveySPD
			case "smp", "mp", "participant", "participants":
				return models.SurveySMP
			}
		}
	}

	isData := format == models.FormatXLSX || format == models.FormatXLS
	switch {
	case isData && year >= 2023:
		return models.SurveyMerged
	case year > 0 && year < 2015 && !strings.HasPrefix(name, "mp_") && !strings.HasPrefix(name, "mp-"):
		return models.SurveySPD
	}
	return models.SurveyUnknown
}

// formatOf maps a file extension to a supported format.
func formatOf(urlPath string) (models.Format, bool) {
	switch strings.ToLower(path.Ext(urlPath)) {
	case ".xlsx":
		return models.FormatXLSX, true
	case ".xls":
		return models.FormatXLS, true
	case ".pdf":
		return models.FormatPDF, true
	}
	return "", false
}

// isQuestionnaire reports survey question documents, which carry no results.
func isQuestionnaire(name string, format models.Format) bool {
	name = strings.ToLower(name)
	return format == models.FormatPDF && strings.Contains(name, "survey") && !strings.Contains(name, "result")
}

// Filter keeps entries whose survey year lies in [startYear, endYear].
// A zero bound is open.
func Filter(entries []models.ManifestEntry, startYear, endYear int) []models.ManifestEntry {
	out := make([]models.ManifestEntry, 0, len(entries))
	for _, e := range entries {
		y := e.SurveyDate.Year()
		if startYear > 0 && y < startYear {
			continue
		}
		if endYear > 0 && y > endYear {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Sort orders entries by survey date, then URL.
func Sort(entries []models.ManifestEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].SurveyDate.Equal(entries[j].SurveyDate) {
			return entries[i].SurveyDate.Before(entries[j].SurveyDate)
		}
		return entries[i].FileURL < entries[j].FileURL
	})
}

// Select picks the files to download. Per survey date, spreadsheets are
// kept and results documents only when no spreadsheet exists for that date.
// With preferXLSX false every entry is kept.
func Select(entries []models.ManifestEntry, preferXLSX bool) []models.ManifestEntry {
	if !preferXLSX {
		return append([]models.ManifestEntry(nil), entries...)
	}
	hasXLSX := make(map[time.Time]bool)
	for _, e := range entries {
		if e.Format == models.FormatXLSX {
			hasXLSX[e.SurveyDate] = true
		}
	}
	out := make([]models.ManifestEntry, 0, len(entries))
	for _, e := range entries {
		if e.Format == models.FormatPDF && hasXLSX[e.SurveyDate] {
			continue
		}
		out = append(out, e)
	}
	return out
}
