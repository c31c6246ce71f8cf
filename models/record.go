package models

import (
	"strings"
	"time"
)

// ConceptLongerRun is the single concept label carried by every record.
const ConceptLongerRun = "ff_longer_run_target"

// Source records which extraction tier produced a record.
type Source string

const (
	SourceXLSX    Source = "xlsx"
	SourcePDFText Source = "pdf_text"
	SourcePDFOCR  Source = "pdf_ocr"
)

// Rank orders sources by confidence, lowest first.
func (s Source) Rank() int {
	switch s {
	case SourceXLSX:
		return 0
	case SourcePDFText:
		return 1
	case SourcePDFOCR:
		return 2
	default:
		return 9
	}
}

// Notes attached to records that did not yield values, or that were flagged.
const (
	NoteQuestionNotPresent = "question_not_present"
	NoteValuesNotParsed    = "values_not_parsed"
	NoteNoTextLayer        = "no_text_layer"
	NoteOCRSkipped         = "ocr_skipped"
	NoteOCRUnavailable     = "ocr_unavailable"
	NoteParseError         = "parse_error"
	NoteDownloadFailed     = "download_failed"
	NoteNotDownloaded      = "not_downloaded"
	NoteExtractionPanic    = "extraction_panic"
	NoteOrderViolation     = "pctl_order_violation"
)

// ExtractionRecord is one (survey_date, panel) observation.
type ExtractionRecord struct {
	SurveyDate time.Time `json:"survey_date" yaml:"survey_date"`
	Panel      Panel     `json:"panel" yaml:"panel"`
	Concept    string    `json:"concept" yaml:"concept"`
	Pctl25     *float64  `json:"pctl25" yaml:"pctl25"`
	Pctl50     *float64  `json:"pctl50" yaml:"pctl50"`
	Pctl75     *float64  `json:"pctl75" yaml:"pctl75"`
	Source     Source    `json:"source" yaml:"source"`
	FileURL    string    `json:"file_url" yaml:"file_url"`
	LocalPath  string    `json:"local_path" yaml:"local_path"`
	PDFPage    *int      `json:"pdf_page,omitempty" yaml:"pdf_page,omitempty"`
	Notes      string    `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// NewRecord starts a record for the given file with the fixed concept.
func NewRecord(file LocalFile, panel Panel, source Source) ExtractionRecord {
	return ExtractionRecord{
		SurveyDate: MonthStart(file.Entry.SurveyDate),
		Panel:      panel,
		Concept:    ConceptLongerRun,
		Source:     source,
		FileURL:    file.Entry.FileURL,
		LocalPath:  file.LocalPath,
	}
}

// NullRecord is the placeholder emitted when a file was searched and
// nothing usable was found.
func NullRecord(file LocalFile, source Source, notes ...string) ExtractionRecord {
	rec := NewRecord(file, file.Entry.PanelHint.DefaultPanel(), source)
	for _, n := range notes {
		rec.AddNote(n)
	}
	return rec
}

// HasValues reports whether at least one percentile is present.
func (r ExtractionRecord) HasValues() bool {
	return r.Pctl25 != nil || r.Pctl50 != nil || r.Pctl75 != nil
}

// Complete reports whether all three percentiles are present.
func (r ExtractionRecord) Complete() bool {
	return r.Pctl25 != nil && r.Pctl50 != nil && r.Pctl75 != nil
}

// OrderViolation reports pctl25 <= pctl50 <= pctl75 being broken. Records
// missing any percentile never violate.
func (r ExtractionRecord) OrderViolation() bool {
	if !r.Complete() {
		return false
	}
	return *r.Pctl25 > *r.Pctl50 || *r.Pctl50 > *r.Pctl75
}

// AddNote appends a note, separated by "; ", skipping duplicates.
func (r *ExtractionRecord) AddNote(note string) {
	note = strings.TrimSpace(note)
	if note == "" {
		return
	}
	if r.Notes == "" {
		r.Notes = note
		return
	}
	for _, existing := range strings.Split(r.Notes, "; ") {
		if existing == note {
			return
		}
	}
	r.Notes += "; " + note
}

// HasNote reports whether notes contain the given entry or an entry
// starting with "<note>:".
func (r ExtractionRecord) HasNote(note string) bool {
	for _, existing := range strings.Split(r.Notes, "; ") {
		if existing == note || strings.HasPrefix(existing, note+":") {
			return true
		}
	}
	return false
}

// Float returns a pointer to v, for building records.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v, for building records.
func Int(v int) *int { return &v }
