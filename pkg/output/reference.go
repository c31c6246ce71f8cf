package output

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dtnitsch/ffrate-extractor/models"
	"github.com/dtnitsch/ffrate-extractor/pkg/combiner"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// ReferenceLayout locates a reference series inside a workbook. Columns
// are header names (case-insensitive) or column letters.
type ReferenceLayout struct {
	Sheet        string `yaml:"sheet"`
	HeaderRow    int    `yaml:"header_row"`
	DateColumn   string `yaml:"date_column"`
	MedianColumn string `yaml:"median_column"`
	P25Column    string `yaml:"p25_column"`
	P75Column    string `yaml:"p75_column"`
}

// DefaultReferenceLayout matches the published r-star workbook: headers on
// row 3, dates in B, the U.S. median under "U.S." and its band in D and E.
func DefaultReferenceLayout() ReferenceLayout {
	return ReferenceLayout{
		HeaderRow:    3,
		DateColumn:   "B",
		MedianColumn: "U.S.",
		P25Column:    "D",
		P75Column:    "E",
	}
}

var columnLetters = regexp.MustCompile(`^[A-Za-z]{1,3}$`)

var dateLayouts = []string{
	time.DateOnly,
	time.DateTime,
	time.RFC3339,
	"2006-01",
	"01/02/2006",
	"1/2/2006",
	"1/2/06",
	"01-02-06",
	"Jan 2006",
	"January 2006",
}

// column resolves name against the header row, falling back to a column
// letter. Returns a 0-based index, or -1 for an empty name.
func column(header []string, name string) (int, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return -1, nil
	}
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i, nil
		}
	}
	if columnLetters.MatchString(name) {
		n, err := excelize.ColumnNameToNumber(strings.ToUpper(name))
		if err == nil {
			return n - 1, nil
		}
	}
	return -1, fmt.Errorf("column %q not found in reference header", name)
}

func parseReferenceDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if serial, err := strconv.ParseFloat(raw, 64); err == nil {
		if serial < 1 || serial > 2958465 {
			return time.Time{}, false
		}
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, false
		}
		return models.MonthStart(t), true
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return models.MonthStart(t), true
		}
	}
	return time.Time{}, false
}

func parseReferenceValue(raw string) *float64 {
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "%")
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return nil
	}
	v, _ := d.Round(4).Float64()
	return &v
}

func at(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// LoadReference reads a reference series. Rows whose date does not parse
// (label rows, notes) are skipped. Values are taken as percent.
func LoadReference(path string, layout ReferenceLayout) ([]combiner.ReferencePoint, error) {
	f, err := excelize.OpenFile(path, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open reference workbook: %w", err)
	}
	defer f.Close()

	sheet := layout.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read reference sheet %q: %w", sheet, err)
	}

	headerRow := layout.HeaderRow
	if headerRow < 1 {
		headerRow = 1
	}
	if len(rows) < headerRow {
		return nil, fmt.Errorf("reference sheet %q has no header row %d", sheet, headerRow)
	}
	header := rows[headerRow-1]

	dateIdx, err := column(header, layout.DateColumn)
	if err != nil {
		return nil, err
	}
	medianIdx, err := column(header, layout.MedianColumn)
	if err != nil {
		return nil, err
	}
	if dateIdx < 0 || medianIdx < 0 {
		return nil, fmt.Errorf("reference layout needs date and median columns")
	}
	p25Idx, err := column(header, layout.P25Column)
	if err != nil {
		return nil, err
	}
	p75Idx, err := column(header, layout.P75Column)
	if err != nil {
		return nil, err
	}

	var points []combiner.ReferencePoint
	for _, row := range rows[headerRow:] {
		date, ok := parseReferenceDate(at(row, dateIdx))
		if !ok {
			continue
		}
		median := parseReferenceValue(at(row, medianIdx))
		if median == nil {
			continue
		}
		points = append(points, combiner.ReferencePoint{
			Date:   date,
			Median: median,
			Pctl25: parseReferenceValue(at(row, p25Idx)),
			Pctl75: parseReferenceValue(at(row, p75Idx)),
		})
	}
	return points, nil
}
