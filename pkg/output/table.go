// Package output reads and writes the pipeline artifacts: the percentile
// table (CSV), the external reference series and the comparison workbook.
package output

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dtnitsch/ffrate-extractor/models"
	"github.com/dtnitsch/ffrate-extractor/pkg/storage"
	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
)

// Row is one line of the output table. Nulls are empty cells.
type Row struct {
	SurveyDate string `csv:"survey_date"`
	Panel      string `csv:"panel"`
	Concept    string `csv:"concept"`
	Pctl25     string `csv:"pctl25"`
	Pctl50     string `csv:"pctl50"`
	Pctl75     string `csv:"pctl75"`
	Source     string `csv:"source"`
	FileURL    string `csv:"file_url"`
	LocalPath  string `csv:"local_path"`
	PDFPage    string `csv:"pdf_page"`
	Notes      string `csv:"notes"`
}

// FormatValue renders a percentile with at least two decimals; nil is empty.
func FormatValue(v *float64) string {
	if v == nil {
		return ""
	}
	d := decimal.NewFromFloat(*v)
	if d.Exponent() >= -2 {
		return d.StringFixed(2)
	}
	return d.String()
}

func parseValue(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ToRow converts a record for writing.
func ToRow(r models.ExtractionRecord) Row {
	row := Row{
		SurveyDate: r.SurveyDate.Format(time.DateOnly),
		Panel:      string(r.Panel),
		Concept:    r.Concept,
		Pctl25:     FormatValue(r.Pctl25),
		Pctl50:     FormatValue(r.Pctl50),
		Pctl75:     FormatValue(r.Pctl75),
		Source:     string(r.Source),
		FileURL:    r.FileURL,
		LocalPath:  r.LocalPath,
		Notes:      r.Notes,
	}
	if r.PDFPage != nil {
		row.PDFPage = strconv.Itoa(*r.PDFPage)
	}
	return row
}

// FromRow parses a table row back into a record.
func FromRow(row Row) (models.ExtractionRecord, error) {
	date, err := time.Parse(time.DateOnly, strings.TrimSpace(row.SurveyDate))
	if err != nil {
		return models.ExtractionRecord{}, fmt.Errorf("invalid survey_date %q: %w", row.SurveyDate, err)
	}
	rec := models.ExtractionRecord{
		SurveyDate: date,
		Panel:      models.Panel(row.Panel),
		Concept:    row.Concept,
		Source:     models.Source(row.Source),
		FileURL:    row.FileURL,
		LocalPath:  row.LocalPath,
		Notes:      row.Notes,
	}
	for _, f := range []struct {
		raw string
		dst **float64
	}{{row.Pctl25, &rec.Pctl25}, {row.Pctl50, &rec.Pctl50}, {row.Pctl75, &rec.Pctl75}} {
		v, err := parseValue(f.raw)
		if err != nil {
			return rec, fmt.Errorf("invalid percentile %q for %s: %w", f.raw, row.SurveyDate, err)
		}
		*f.dst = v
	}
	if p := strings.TrimSpace(row.PDFPage); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return rec, fmt.Errorf("invalid pdf_page %q: %w", p, err)
		}
		rec.PDFPage = &n
	}
	return rec, nil
}

// WriteTable writes records as CSV to w, header first.
func WriteTable(w io.Writer, records []models.ExtractionRecord) error {
	rows := make([]Row, 0, len(records))
	for _, r := range records {
		rows = append(rows, ToRow(r))
	}
	if err := gocsv.Marshal(&rows, w); err != nil {
		return fmt.Errorf("failed to write table: %w", err)
	}
	return nil
}

// WriteTableFile writes the table to path through a temp file, so a failed
// run never leaves a truncated table behind.
func WriteTableFile(path string, records []models.ExtractionRecord) error {
	s := &storage.Storage{}
	if _, err := s.WriteAtomic(path, func(w io.Writer) error {
		return WriteTable(w, records)
	}); err != nil {
		return fmt.Errorf("failed to write output table %s: %w", path, err)
	}
	return nil
}

// ReadTable parses a table written by WriteTable.
func ReadTable(r io.Reader) ([]models.ExtractionRecord, error) {
	var rows []Row
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("failed to read table: %w", err)
	}
	records := make([]models.ExtractionRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := FromRow(row)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// ReadTableFile opens path and parses it with ReadTable.
func ReadTableFile(path string) ([]models.ExtractionRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open table: %w", err)
	}
	defer f.Close()
	return ReadTable(f)
}
