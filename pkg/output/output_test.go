package output

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dtnitsch/ffrate-extractor/models"
	"github.com/dtnitsch/ffrate-extractor/pkg/combiner"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleRecords() []models.ExtractionRecord {
	return []models.ExtractionRecord{
		{
			SurveyDate: time.Date(2024, time.December, 1, 0, 0, 0, 0, time.UTC),
			Panel:      models.PanelSPD,
			Concept:    models.ConceptLongerRun,
			Pctl25:     models.Float(3.0),
			Pctl50:     models.Float(3.13),
			Pctl75:     models.Float(3.25),
			Source:     models.SourcePDFText,
			FileURL:    "https://x/a.pdf",
			LocalPath:  "data/a.pdf",
			PDFPage:    models.Int(4),
		},
		{
			SurveyDate: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
			Panel:      models.PanelCombined,
			Concept:    models.ConceptLongerRun,
			Source:     models.SourcePDFText,
			FileURL:    "https://x/b.pdf",
			LocalPath:  "data/b.pdf",
			Notes:      "question_not_present; ocr_skipped",
		},
	}
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, sampleRecords()))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "survey_date,panel,concept,pctl25,pctl50,pctl75,source,file_url,local_path,pdf_page,notes", lines[0])
	assert.Equal(t, "2024-12-01,SPD,ff_longer_run_target,3.00,3.13,3.25,pdf_text,https://x/a.pdf,data/a.pdf,4,", lines[1])
	assert.Equal(t, "2025-01-01,Combined,ff_longer_run_target,,,,pdf_text,https://x/b.pdf,data/b.pdf,,question_not_present; ocr_skipped", lines[2])

	back, err := ReadTable(&buf)
	require.NoError(t, err)
	if diff := cmp.Diff(sampleRecords(), back); diff != "" {
		t.Errorf("ReadTable() mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteTableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "table.csv")
	require.NoError(t, WriteTableFile(path, sampleRecords()))

	back, err := ReadTableFile(path)
	require.NoError(t, err)
	assert.Len(t, back, 2)

	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	assert.Error(t, WriteTableFile(filepath.Join(blocker, "table.csv"), sampleRecords()))
}

func TestReadTableRejectsBadValues(t *testing.T) {
	in := "survey_date,panel,concept,pctl25,pctl50,pctl75,source,file_url,local_path,pdf_page,notes\n" +
		"2024-12-01,SPD,ff_longer_run_target,abc,,,xlsx,u,p,,\n"
	_, err := ReadTable(strings.NewReader(in))
	assert.Error(t, err)
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "3.00", FormatValue(models.Float(3)))
	assert.Equal(t, "3.13", FormatValue(models.Float(3.13)))
	assert.Equal(t, "3.125", FormatValue(models.Float(3.125)))
	assert.Equal(t, "-0.50", FormatValue(models.Float(-0.5)))
	assert.Equal(t, "", FormatValue(nil))
}

func writeReference(t *testing.T) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	rows := [][]any{
		{"Hartley r-star estimates"},
		{"source: example"},
		{"", "Date", "U.S.", "p25", "p75"},
		{"", "label", "median", "low", "high"},
		{"", time.Date(2024, time.June, 30, 0, 0, 0, 0, time.UTC), 2.7, 2.2, 3.1},
		{"", "2025-03-15", "3.5%", "", ""},
		{"", time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC), "", 1, 2},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &r))
	}
	path := filepath.Join(t.TempDir(), "reference.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestLoadReference(t *testing.T) {
	path := writeReference(t)

	layouts := map[string]ReferenceLayout{
		"default": DefaultReferenceLayout(),
		"by name": {HeaderRow: 3, DateColumn: "date", MedianColumn: "u.s.", P25Column: "p25", P75Column: "p75"},
	}
	for name, layout := range layouts {
		t.Run(name, func(t *testing.T) {
			points, err := LoadReference(path, layout)
			require.NoError(t, err)
			want := []combiner.ReferencePoint{
				{Date: time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC), Median: models.Float(2.7), Pctl25: models.Float(2.2), Pctl75: models.Float(3.1)},
				{Date: time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC), Median: models.Float(3.5)},
			}
			if diff := cmp.Diff(want, points); diff != "" {
				t.Errorf("LoadReference() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadReferenceMissingColumn(t *testing.T) {
	path := writeReference(t)
	_, err := LoadReference(path, ReferenceLayout{HeaderRow: 3, DateColumn: "Date", MedianColumn: "Euro Area"})
	assert.Error(t, err)
}

func TestWriteComparison(t *testing.T) {
	rows := []combiner.ComparisonRow{
		{
			Date: time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC), Panel: models.PanelSPD, Source: models.SourcePDFText,
			OurPctl25: models.Float(2.5), OurMedian: models.Float(2.75), OurPctl75: models.Float(3),
			RefMedian: models.Float(2.7), MedianDiff: models.Float(0.05), AbsDiff: models.Float(0.05),
		},
		{
			Date: time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC), Panel: models.PanelCombined, Source: models.SourceXLSX,
			OurMedian: models.Float(3), RefMedian: models.Float(3.5),
			MedianDiff: models.Float(-0.5), AbsDiff: models.Float(0.5), Flag: combiner.FlagExceedsTolerance,
		},
	}
	path := filepath.Join(t.TempDir(), "comparison.xlsx")
	require.NoError(t, WriteComparison(path, rows))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{ComparisonSheet}, f.GetSheetList())
	for cell, want := range map[string]string{
		"A1": "date", "I1": "median_diff", "L1": "flag",
		"A2": "2024-06-01", "B2": "SPD", "D2": "2.75", "F2": "", "G2": "2.7",
		"I3": "-0.5", "K3": "xlsx", "L3": "exceeds_tolerance",
	} {
		got, err := f.GetCellValue(ComparisonSheet, cell)
		require.NoError(t, err)
		assert.Equal(t, want, got, cell)
	}
}
