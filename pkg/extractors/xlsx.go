package extractors

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dtnitsch/ffrate-extractor/models"
	"github.com/dtnitsch/ffrate-extractor/pkg/extractor"
	"github.com/xuri/excelize/v2"
)

// headerScanRows bounds how many leading rows are searched for a header.
const headerScanRows = 10

// Spreadsheet extracts records from xlsx data files.
type Spreadsheet struct {
	matcher *extractor.Matcher
	logger  *slog.Logger
}

// NewSpreadsheet builds the spreadsheet tier.
func NewSpreadsheet(m *extractor.Matcher, logger *slog.Logger) *Spreadsheet {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Spreadsheet{matcher: m, logger: logger}
}

func (s *Spreadsheet) Name() string          { return "xlsx" }
func (s *Spreadsheet) Source() models.Source { return models.SourceXLSX }

// Attempt reads every sheet of the workbook. The first sheet to report a
// panel wins for that panel.
func (s *Spreadsheet) Attempt(ctx context.Context, doc *extractor.Document) ([]models.ExtractionRecord, error) {
	f, err := excelize.OpenFile(doc.File.LocalPath, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	hint := doc.File.Entry.PanelHint
	found := extractor.NewPanelSet()
	located := false
	for _, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			s.logger.Warn("failed to read sheet", "file", doc.File.LocalPath, "sheet", sheet, "error", err)
			continue
		}
		values, ok := s.parseSheet(rows, hint)
		located = located || ok
		for _, pv := range values {
			for p, v := range pv.Values {
				found.Set(pv.Panel, p, v)
			}
		}
	}

	panels := found.List()
	if len(panels) == 0 {
		if located {
			return nil, extractor.NoMatch(models.NoteValuesNotParsed)
		}
		return nil, extractor.NoMatch(models.NoteQuestionNotPresent)
	}

	records := make([]models.ExtractionRecord, 0, len(panels))
	seen := make(map[models.Panel]bool)
	for _, pv := range panels {
		panel := pv.Panel
		if single, ok := hint.SinglePanel(); ok && panel == models.PanelCombined {
			panel = single
		}
		if seen[panel] {
			continue
		}
		seen[panel] = true
		rec := models.NewRecord(doc.File, panel, models.SourceXLSX)
		pv.Apply(&rec)
		records = append(records, rec)
	}
	return records, nil
}

// sheetLayout records which columns play which role.
type sheetLayout struct {
	header      []string
	tag         int
	question    int
	aggregation int
	value       int
	panel       int
}

func (s *Spreadsheet) layout(header []string) sheetLayout {
	cfg := s.matcher.Config()
	return sheetLayout{
		header:      header,
		tag:         findColumn(header, cfg.TagColumns),
		question:    findColumn(header, cfg.QuestionColumns),
		aggregation: findColumn(header, cfg.AggregationColumns),
		value:       findColumn(header, cfg.ValueColumns),
		panel:       findColumn(header, cfg.PanelColumns),
	}
}

func (l sheetLayout) long() bool { return l.aggregation >= 0 && l.value >= 0 }

func findColumn(header []string, aliases []string) int {
	for _, alias := range aliases {
		for i, h := range header {
			if extractor.MatchesAny(h, []string{alias}) {
				return i
			}
		}
	}
	return -1
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// parseSheet finds the question rows by tag, then by question text, and
// reads them in long or wide layout. A sheet without a tag or question
// column is searched by text in every column, below the first row that
// carries percentile headers. The bool reports whether the question was
// located at all.
func (s *Spreadsheet) parseSheet(rows [][]string, hint models.SurveyType) ([]extractor.PanelValues, bool) {
	headerIdx := -1
	var l sheetLayout
	for i := 0; i < len(rows) && i < headerScanRows; i++ {
		candidate := s.layout(rows[i])
		if candidate.tag >= 0 || candidate.question >= 0 {
			headerIdx, l = i, candidate
			break
		}
	}
	if headerIdx < 0 {
		for i := 0; i < len(rows) && i < headerScanRows; i++ {
			candidate := s.layout(rows[i])
			if candidate.long() || s.hasPercentileHeader(rows[i]) {
				headerIdx, l = i, candidate
				break
			}
		}
	}
	if headerIdx < 0 {
		return nil, false
	}
	data := rows[headerIdx+1:]

	matched := s.tagRows(data, l)
	if len(matched) == 0 {
		if l.question < 0 {
			l.question = s.questionColumn(data)
		}
		matched = s.questionRows(data, l)
	}
	if len(matched) == 0 {
		return nil, false
	}
	if l.long() {
		return s.readLong(matched, l, hint), true
	}
	return s.readWide(matched[0], l, hint), true
}

func (s *Spreadsheet) hasPercentileHeader(header []string) bool {
	for _, h := range header {
		if _, ok := s.matcher.PercentileOf(h); ok {
			return true
		}
	}
	return false
}

// questionColumn returns the first column holding the question text, or -1.
func (s *Spreadsheet) questionColumn(data [][]string) int {
	for _, row := range data {
		for i := range row {
			if s.matcher.MatchesQuestion(cell(row, i)) {
				return i
			}
		}
	}
	return -1
}

// tagRows returns the rows carrying the most preferred value tag present.
func (s *Spreadsheet) tagRows(data [][]string, l sheetLayout) [][]string {
	if l.tag < 0 {
		return nil
	}
	best := -1
	var out [][]string
	for _, row := range data {
		rank, ok := s.matcher.TagRank(cell(row, l.tag))
		switch {
		case !ok:
		case best == -1 || rank < best:
			best = rank
			out = [][]string{row}
		case rank == best:
			out = append(out, row)
		}
	}
	return out
}

// questionRows returns the rows sharing the first matching question text.
func (s *Spreadsheet) questionRows(data [][]string, l sheetLayout) [][]string {
	if l.question < 0 {
		return nil
	}
	var first string
	var out [][]string
	for _, row := range data {
		text := cell(row, l.question)
		if first == "" {
			if !s.matcher.MatchesQuestion(text) {
				continue
			}
			first = text
		}
		if text == first {
			out = append(out, row)
		}
	}
	return out
}

// readLong handles one row per (panel, statistic).
func (s *Spreadsheet) readLong(rows [][]string, l sheetLayout, hint models.SurveyType) []extractor.PanelValues {
	found := extractor.NewPanelSet()
	for _, row := range rows {
		p, ok := s.matcher.PercentileOf(cell(row, l.aggregation))
		if !ok {
			continue
		}
		v, ok := extractor.ParseValue(cell(row, l.value))
		if !ok {
			continue
		}
		found.Set(s.panelFromCell(cell(row, l.panel), hint), p, v)
	}
	return found.List()
}

// readWide handles one row with a column per (panel, statistic).
func (s *Spreadsheet) readWide(row []string, l sheetLayout, hint models.SurveyType) []extractor.PanelValues {
	found := extractor.NewPanelSet()
	rowPanel := s.panelFromCell(cell(row, l.panel), hint)
	for i, h := range l.header {
		if i == l.tag || i == l.question || i == l.panel {
			continue
		}
		p, ok := s.matcher.PercentileOf(h)
		if !ok {
			continue
		}
		v, ok := extractor.ParseValue(cell(row, i))
		if !ok {
			continue
		}
		panel, named := s.matcher.PanelOf(h)
		if !named {
			panel = rowPanel
		}
		found.Set(panel, p, v)
	}
	return found.List()
}

func (s *Spreadsheet) panelFromCell(v string, hint models.SurveyType) models.Panel {
	if v == "" {
		return hint.DefaultPanel()
	}
	if p, ok := models.ParsePanel(v); ok {
		return p
	}
	if p, ok := s.matcher.PanelOf(v); ok {
		return p
	}
	s.logger.Debug("unrecognized panel label", "label", v)
	return hint.DefaultPanel()
}
