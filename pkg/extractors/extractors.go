// Package extractors implements the extraction tiers for each survey file
// format and wires them into a router.
package extractors

import (
	"log/slog"

	"github.com/dtnitsch/ffrate-extractor/models"
	"github.com/dtnitsch/ffrate-extractor/pkg/extractor"
)

// Engines are the document backends. Zero values select the defaults:
// ledongthuc/pdf for text, go-fitz for rendering and tesseract for OCR.
type Engines struct {
	TextLayer  TextLayer
	Rasterizer Rasterizer
	Recognizer Recognizer
}

// NewRouter builds the format router: spreadsheets go through the xlsx
// tier, documents through the text tier and then OCR.
func NewRouter(m *extractor.Matcher, engines Engines, logger *slog.Logger) *extractor.Router {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	xlsx := extractor.NewChain(logger, NewSpreadsheet(m, logger))
	pdf := extractor.NewChain(logger,
		NewPDFText(m, engines.TextLayer, logger),
		NewOCR(m, engines.Rasterizer, engines.Recognizer, logger),
	)
	return extractor.NewRouter().
		Handle(models.FormatXLSX, xlsx).
		Handle(models.FormatPDF, pdf)
}
