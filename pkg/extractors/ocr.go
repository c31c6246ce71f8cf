package extractors

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/dtnitsch/ffrate-extractor/models"
	"github.com/dtnitsch/ffrate-extractor/pkg/extractor"
	fitz "github.com/gen2brain/go-fitz"
)

// ErrUnavailable is returned when the OCR engine cannot be run at all.
var ErrUnavailable = errors.New("ocr engine unavailable")

// Rasterizer opens documents for page rendering.
type Rasterizer interface {
	Open(path string) (RenderedDoc, error)
}

// RenderedDoc renders single pages of an open document.
type RenderedDoc interface {
	NumPage() int
	// Image renders the 0-based page idx at dpi.
	Image(idx int, dpi float64) (image.Image, error)
	Close() error
}

// Recognizer turns a page image into text.
type Recognizer interface {
	// Available returns an error wrapping ErrUnavailable when the engine
	// cannot run.
	Available() error
	Recognize(ctx context.Context, img image.Image) (string, error)
}

// FitzRasterizer renders pages with MuPDF through go-fitz.
type FitzRasterizer struct{}

func (FitzRasterizer) Open(path string) (RenderedDoc, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf for rendering: %w", err)
	}
	return fitzDoc{doc: doc}, nil
}

type fitzDoc struct {
	doc *fitz.Document
}

func (d fitzDoc) NumPage() int { return d.doc.NumPage() }

func (d fitzDoc) Image(idx int, dpi float64) (image.Image, error) {
	img, err := d.doc.ImageDPI(idx, dpi)
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", idx+1, err)
	}
	return img, nil
}

func (d fitzDoc) Close() error { return d.doc.Close() }

// Tesseract runs the tesseract command line tool, feeding it PNG on stdin.
type Tesseract struct {
	Binary   string
	Language string
}

func (t Tesseract) Available() error {
	if _, err := exec.LookPath(t.Binary); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (t Tesseract) Recognize(ctx context.Context, img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode page image: %w", err)
	}
	args := []string{"stdin", "stdout"}
	if t.Language != "" {
		args = append(args, "-l", t.Language)
	}
	args = append(args, "--psm", "6")

	cmd := exec.CommandContext(ctx, t.Binary, args...)
	cmd.Stdin = &buf
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return "", fmt.Errorf("tesseract failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return string(out), nil
}

// OCR is the fallback tier: render pages, recognize them and reapply the
// section patterns.
type OCR struct {
	matcher    *extractor.Matcher
	rasterizer Rasterizer
	recognizer Recognizer
	logger     *slog.Logger
}

// NewOCR builds the OCR tier. Nil engines use go-fitz and tesseract.
func NewOCR(m *extractor.Matcher, r Rasterizer, rec Recognizer, logger *slog.Logger) *OCR {
	cfg := m.Config().OCR
	if r == nil {
		r = FitzRasterizer{}
	}
	if rec == nil {
		rec = Tesseract{Binary: cfg.Binary, Language: cfg.Language}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &OCR{matcher: m, rasterizer: r, recognizer: rec, logger: logger}
}

func (o *OCR) Name() string          { return "pdf_ocr" }
func (o *OCR) Source() models.Source { return models.SourcePDFOCR }

// Attempt recognizes the pages the text tier flagged (or the first
// MaxPages when none were flagged), then pages without a usable text
// layer, then up to ExtraPages more.
func (o *OCR) Attempt(ctx context.Context, doc *extractor.Document) ([]models.ExtractionRecord, error) {
	cfg := o.matcher.Config().OCR
	if !cfg.Enabled {
		return nil, extractor.Skip(models.NoteOCRSkipped)
	}
	if err := o.recognizer.Available(); err != nil {
		o.logger.Warn("ocr unavailable", "file", doc.File.LocalPath, "error", err)
		return nil, extractor.Skip(fmt.Sprintf("%s: %v", models.NoteOCRUnavailable, err))
	}

	rendered, err := o.rasterizer.Open(doc.File.LocalPath)
	if err != nil {
		return nil, extractor.Skip(fmt.Sprintf("%s: %v", models.NoteOCRUnavailable, err))
	}
	defer rendered.Close()

	hint := doc.File.Entry.PanelHint
	questionSeen := false
	for _, n := range PageOrder(doc.Candidates, doc.UnusablePages(), rendered.NumPage(), cfg.MaxPages, cfg.ExtraPages) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := o.recognizePage(ctx, rendered, n, cfg)
		if errors.Is(err, ErrUnavailable) {
			return nil, extractor.Skip(fmt.Sprintf("%s: %v", models.NoteOCRUnavailable, err))
		}
		if err != nil {
			o.logger.Warn("ocr failed for page", "file", doc.File.LocalPath, "page", n, "error", err)
			continue
		}
		section, ok := o.matcher.Section(text)
		if !ok {
			continue
		}
		questionSeen = true
		mt, ok := o.matcher.ParseValues(section, hint)
		if !ok {
			continue
		}
		o.logger.Debug("ocr matched", "file", doc.File.LocalPath, "page", n, "pattern", mt.Pattern)
		return pageRecords(doc.File, mt, models.SourcePDFOCR, n), nil
	}

	if questionSeen {
		return nil, extractor.Verdict(models.NoteValuesNotParsed)
	}
	return nil, extractor.Verdict(models.NoteQuestionNotPresent)
}

func (o *OCR) recognizePage(ctx context.Context, rendered RenderedDoc, page int, cfg extractor.OCRConfig) (string, error) {
	img, err := rendered.Image(page-1, cfg.DPI)
	if err != nil {
		return "", err
	}
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	return o.recognizer.Recognize(ctx, img)
}

// PageOrder lists the 1-based pages to recognize: the candidates (or the
// first maxPages when there are none), then the unusable pages, followed
// by up to extra further pages in document order.
func PageOrder(candidates, unusable []int, total, maxPages, extra int) []int {
	seen := make(map[int]bool)
	var order []int
	add := func(n int) bool {
		if n < 1 || n > total || seen[n] {
			return false
		}
		seen[n] = true
		order = append(order, n)
		return true
	}

	if len(candidates) > 0 {
		for _, n := range candidates {
			add(n)
		}
	} else {
		for n := 1; n <= total && n <= maxPages; n++ {
			add(n)
		}
	}
	for _, n := range unusable {
		add(n)
	}
	added := 0
	for n := 1; n <= total && added < extra; n++ {
		if add(n) {
			added++
		}
	}
	return order
}
