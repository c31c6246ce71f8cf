package extractors

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"github.com/dtnitsch/ffrate-extractor/models"
	"github.com/dtnitsch/ffrate-extractor/pkg/extractor"
	"github.com/ledongthuc/pdf"
)

// PageText is the embedded text of one page, in one or more renderings,
// most faithful first.
type PageText struct {
	Number   int
	Variants []string
}

// TextLayer reads the embedded text of a PDF page by page.
type TextLayer interface {
	PageTexts(ctx context.Context, path string) ([]PageText, error)
}

// PDFTextLayer reads text layers with ledongthuc/pdf. Each page yields the
// content-stream text and a rendering rebuilt row by row from glyph
// positions, which keeps table columns on one line.
type PDFTextLayer struct{}

func (PDFTextLayer) PageTexts(ctx context.Context, path string) ([]PageText, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	pages := make([]PageText, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pt := PageText{Number: i}
		page := r.Page(i)
		if !page.V.IsNull() {
			if text, err := page.GetPlainText(nil); err == nil && strings.TrimSpace(text) != "" {
				pt.Variants = append(pt.Variants, text)
			}
			if rows := rowText(page); rows != "" {
				pt.Variants = append(pt.Variants, rows)
			}
		}
		pages = append(pages, pt)
	}
	return pages, nil
}

// rowText rebuilds page text from glyph rows, inserting a space wherever
// the horizontal gap between glyphs is wider than a fraction of the font size.
func rowText(page pdf.Page) (out string) {
	defer func() {
		if recover() != nil {
			out = ""
		}
	}()
	rows, err := page.GetTextByRow()
	if err != nil {
		return ""
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Position > rows[j].Position })

	var b strings.Builder
	for _, row := range rows {
		glyphs := row.Content
		sort.SliceStable(glyphs, func(i, j int) bool { return glyphs[i].X < glyphs[j].X })
		var line strings.Builder
		for i, g := range glyphs {
			if i > 0 {
				prev := glyphs[i-1]
				gap := g.X - (prev.X + prev.W)
				threshold := prev.FontSize * 0.2
				if prev.W == 0 {
					gap = g.X - prev.X
					threshold = prev.FontSize * 0.9
				}
				if threshold <= 0 {
					threshold = 1
				}
				if gap > threshold {
					line.WriteByte(' ')
				}
			}
			line.WriteString(g.S)
		}
		if s := strings.TrimSpace(line.String()); s != "" {
			b.WriteString(s)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// usableText reports whether text looks like a real text layer rather than
// an empty or garbled one.
func usableText(text string, minChars int) bool {
	text = strings.TrimSpace(text)
	if len(text) < minChars {
		return false
	}
	var good, total int
	for _, r := range text {
		total++
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || strings.ContainsRune(".,:;%()-/", r) {
			good++
		}
	}
	return float64(good)/float64(total) >= 0.6
}

// PDFText is the embedded-text tier for results documents.
type PDFText struct {
	matcher *extractor.Matcher
	layer   TextLayer
	logger  *slog.Logger
}

// NewPDFText builds the text tier. A nil layer uses PDFTextLayer.
func NewPDFText(m *extractor.Matcher, layer TextLayer, logger *slog.Logger) *PDFText {
	if layer == nil {
		layer = PDFTextLayer{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &PDFText{matcher: m, layer: layer, logger: logger}
}

func (t *PDFText) Name() string          { return "pdf_text" }
func (t *PDFText) Source() models.Source { return models.SourcePDFText }

// Attempt scans pages in order and returns the records of the first page
// whose question section parses. Pages where the question appears are
// recorded on doc for the OCR tier.
func (t *PDFText) Attempt(ctx context.Context, doc *extractor.Document) ([]models.ExtractionRecord, error) {
	pages, err := t.layer.PageTexts(ctx, doc.File.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read text layer: %w", err)
	}

	minChars := t.matcher.Config().MinTextChars
	hint := doc.File.Entry.PanelHint
	anyUsable, questionSeen := false, false

	for _, pt := range pages {
		page := extractor.Page{Number: pt.Number}
		for _, v := range pt.Variants {
			if usableText(v, minChars) {
				page.Usable = true
				break
			}
		}
		doc.Pages = append(doc.Pages, page)
		if !page.Usable {
			continue
		}
		anyUsable = true

		candidate := false
		for _, v := range pt.Variants {
			section, ok := t.matcher.Section(v)
			if !ok {
				continue
			}
			candidate = true
			mt, ok := t.matcher.ParseValues(section, hint)
			if !ok {
				continue
			}
			t.logger.Debug("text layer matched", "file", doc.File.LocalPath, "page", pt.Number, "pattern", mt.Pattern)
			return pageRecords(doc.File, mt, models.SourcePDFText, pt.Number), nil
		}
		if candidate {
			questionSeen = true
			doc.Candidates = append(doc.Candidates, pt.Number)
		}
	}

	switch {
	case !anyUsable:
		return nil, extractor.NoMatch(models.NoteNoTextLayer)
	case questionSeen:
		return nil, extractor.NoMatch(models.NoteValuesNotParsed)
	default:
		return nil, extractor.NoMatch(models.NoteQuestionNotPresent)
	}
}

// pageRecords turns a parsed section into one record per panel.
func pageRecords(file models.LocalFile, mt extractor.Match, source models.Source, page int) []models.ExtractionRecord {
	records := make([]models.ExtractionRecord, 0, len(mt.Panels))
	for _, pv := range mt.Panels {
		rec := models.NewRecord(file, pv.Panel, source)
		pv.Apply(&rec)
		rec.PDFPage = models.Int(page)
		records = append(records, rec)
	}
	return records
}
