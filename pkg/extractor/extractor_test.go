package extractor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dtnitsch/ffrate-extractor/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStrategy struct {
	name    string
	source  models.Source
	records []models.ExtractionRecord
	err     error
	panics  bool
	calls   int
}

func (f *fakeStrategy) Name() string          { return f.name }
func (f *fakeStrategy) Source() models.Source { return f.source }

func (f *fakeStrategy) Attempt(ctx context.Context, doc *Document) ([]models.ExtractionRecord, error) {
	f.calls++
	if f.panics {
		panic("boom")
	}
	return f.records, f.err
}

func testFile() models.LocalFile {
	return models.LocalFile{
		Entry: models.ManifestEntry{
			SurveyDate: time.Date(2024, time.June, 12, 0, 0, 0, 0, time.UTC),
			PanelHint:  models.SurveySPD,
			Format:     models.FormatPDF,
			FileURL:    "https://example.com/2024/spd_june_result.pdf",
		},
		LocalPath: "data_raw/2024-spd_june_result.pdf",
	}
}

func TestChainStopsAtFirstMatch(t *testing.T) {
	file := testFile()
	rec := models.NewRecord(file, models.PanelSPD, models.SourcePDFText)
	rec.Pctl50 = models.Float(3.13)

	text := &fakeStrategy{name: "text", source: models.SourcePDFText, records: []models.ExtractionRecord{rec}}
	ocr := &fakeStrategy{name: "ocr", source: models.SourcePDFOCR}

	got := NewChain(nil, text, ocr).Run(context.Background(), file)
	assert.Equal(t, []models.ExtractionRecord{rec}, got)
	assert.Equal(t, 0, ocr.calls)
}

func TestChainFallsThroughOnMiss(t *testing.T) {
	file := testFile()
	rec := models.NewRecord(file, models.PanelSPD, models.SourcePDFOCR)
	rec.Pctl50 = models.Float(3.0)

	text := &fakeStrategy{name: "text", source: models.SourcePDFText, err: NoMatch(models.NoteNoTextLayer)}
	ocr := &fakeStrategy{name: "ocr", source: models.SourcePDFOCR, records: []models.ExtractionRecord{rec}}

	got := NewChain(nil, text, ocr).Run(context.Background(), file)
	require.Len(t, got, 1)
	assert.Equal(t, models.SourcePDFOCR, got[0].Source)
	assert.Equal(t, 1, text.calls)
}

func TestChainSkippedTierKeepsEarlierSource(t *testing.T) {
	text := &fakeStrategy{name: "text", source: models.SourcePDFText, err: NoMatch(models.NoteValuesNotParsed)}
	ocr := &fakeStrategy{name: "ocr", source: models.SourcePDFOCR, err: Skip(models.NoteOCRSkipped)}

	got := NewChain(nil, text, ocr).Run(context.Background(), testFile())
	require.Len(t, got, 1)
	assert.Equal(t, models.SourcePDFText, got[0].Source)
	assert.Equal(t, "values_not_parsed; ocr_skipped", got[0].Notes)
	assert.Equal(t, models.PanelSPD, got[0].Panel)
	assert.False(t, got[0].HasValues())
}

func TestChainVerdictReplacesNotes(t *testing.T) {
	text := &fakeStrategy{name: "text", source: models.SourcePDFText, err: NoMatch(models.NoteNoTextLayer)}
	ocr := &fakeStrategy{name: "ocr", source: models.SourcePDFOCR, err: Verdict(models.NoteQuestionNotPresent)}

	got := NewChain(nil, text, ocr).Run(context.Background(), testFile())
	require.Len(t, got, 1)
	assert.Equal(t, models.SourcePDFOCR, got[0].Source)
	assert.Equal(t, models.NoteQuestionNotPresent, got[0].Notes)
}

func TestChainRecoversPanics(t *testing.T) {
	bad := &fakeStrategy{name: "text", source: models.SourcePDFText, panics: true}
	next := &fakeStrategy{name: "ocr", source: models.SourcePDFOCR, err: NoMatch(models.NoteQuestionNotPresent)}

	got := NewChain(nil, bad, next).Run(context.Background(), testFile())
	require.Len(t, got, 1)
	assert.Equal(t, 1, next.calls)
	assert.True(t, got[0].HasNote(models.NoteExtractionPanic))
	assert.True(t, got[0].HasNote(models.NoteQuestionNotPresent))
}

func TestChainReportsOtherErrors(t *testing.T) {
	s := &fakeStrategy{name: "xlsx", source: models.SourceXLSX, err: errors.New("zip: not a valid zip file")}

	got := NewChain(nil, s).Run(context.Background(), testFile())
	require.Len(t, got, 1)
	assert.Equal(t, models.SourceXLSX, got[0].Source)
	assert.Equal(t, "parse_error: zip: not a valid zip file", got[0].Notes)
}

func TestMissUnwrapsToErrNoMatch(t *testing.T) {
	assert.True(t, errors.Is(NoMatch("x"), ErrNoMatch))
	assert.True(t, errors.Is(Skip(), ErrNoMatch))
	assert.Equal(t, "no match: a; b", NoMatch("a", "b").Error())
}

func TestRouterUnsupportedFormat(t *testing.T) {
	file := testFile()
	file.Entry.Format = "docx"

	got := NewRouter().Extract(context.Background(), file)
	require.Len(t, got, 1)
	assert.True(t, got[0].HasNote(models.NoteParseError))
}

func TestRouterDispatchesByFormat(t *testing.T) {
	file := testFile()
	pdf := &fakeStrategy{name: "text", source: models.SourcePDFText, err: NoMatch(models.NoteQuestionNotPresent)}
	xlsx := &fakeStrategy{name: "xlsx", source: models.SourceXLSX, err: NoMatch(models.NoteQuestionNotPresent)}

	r := NewRouter().
		Handle(models.FormatPDF, NewChain(nil, pdf)).
		Handle(models.FormatXLSX, NewChain(nil, xlsx))
	r.Extract(context.Background(), file)

	assert.Equal(t, 1, pdf.calls)
	assert.Equal(t, 0, xlsx.calls)
}
