// Package extractor holds the tiered extraction machinery: the shared
// matcher and config, the strategy chain, and the format router.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dtnitsch/ffrate-extractor/models"
)

// ErrNoMatch is returned (wrapped in a *Miss) by a strategy that ran but
// found nothing, handing control to the next strategy.
var ErrNoMatch = errors.New("no match")

// Miss describes why a strategy produced no records.
type Miss struct {
	Notes []string
	// Skipped is set when the strategy did not run at all, so the null
	// record keeps the source of the previous tier.
	Skipped bool
	// Supersede replaces the notes of earlier tiers, for a tier whose
	// verdict covers the whole document.
	Supersede bool
}

func (m *Miss) Error() string {
	if len(m.Notes) == 0 {
		return ErrNoMatch.Error()
	}
	return ErrNoMatch.Error() + ": " + strings.Join(m.Notes, "; ")
}

func (m *Miss) Unwrap() error { return ErrNoMatch }

// NoMatch builds a *Miss carrying notes.
func NoMatch(notes ...string) error {
	return &Miss{Notes: notes}
}

// Verdict builds a *Miss whose notes replace those of earlier tiers.
func Verdict(notes ...string) error {
	return &Miss{Notes: notes, Supersede: true}
}

// Skip builds a *Miss for a strategy that declined to run.
func Skip(notes ...string) error {
	return &Miss{Notes: notes, Skipped: true}
}

// Page is what the text tier learned about one page.
type Page struct {
	Number int // 1-based
	// Usable is false for an empty or garbled text layer.
	Usable bool
}

// Document is the state shared by the strategies of one chain run. Earlier
// tiers record what they learned about the file for later tiers.
type Document struct {
	File       models.LocalFile
	Pages      []Page
	Candidates []int // 1-based pages where the question text was found
}

// UnusablePages returns the pages whose text layer was empty or garbled.
func (d *Document) UnusablePages() []int {
	var out []int
	for _, p := range d.Pages {
		if !p.Usable {
			out = append(out, p.Number)
		}
	}
	return out
}

// Strategy is one extraction tier.
type Strategy interface {
	Name() string
	Source() models.Source
	// Attempt returns records, or an error wrapping ErrNoMatch when the
	// tier found nothing. Other errors end the tier but not the chain.
	Attempt(ctx context.Context, doc *Document) ([]models.ExtractionRecord, error)
}

// Chain runs strategies in order until one yields records.
type Chain struct {
	strategies []Strategy
	logger     *slog.Logger
}

// NewChain builds a chain. A nil logger discards output.
func NewChain(logger *slog.Logger, strategies ...Strategy) *Chain {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Chain{strategies: strategies, logger: logger}
}

// Strategies returns the tier names in order.
func (c *Chain) Strategies() []string {
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name()
	}
	return names
}

// Run extracts records from file. It never fails: when every tier misses,
// a single null record carries the accumulated notes and the source of the
// last tier that ran.
func (c *Chain) Run(ctx context.Context, file models.LocalFile) []models.ExtractionRecord {
	doc := &Document{File: file}
	var notes []string
	source := models.Source("")

	for _, s := range c.strategies {
		if err := ctx.Err(); err != nil {
			notes = append(notes, fmt.Sprintf("%s: %v", models.NoteParseError, err))
			break
		}
		records, err := c.attempt(ctx, s, doc)
		if err == nil && len(records) > 0 {
			c.logger.Debug("strategy matched", "strategy", s.Name(), "file", file.LocalPath, "records", len(records))
			return records
		}

		var miss *Miss
		switch {
		case err == nil:
			source = s.Source()
		case errors.As(err, &miss):
			if !miss.Skipped {
				source = s.Source()
			}
			if miss.Supersede {
				notes = nil
			}
			notes = append(notes, miss.Notes...)
		default:
			source = s.Source()
			notes = append(notes, fmt.Sprintf("%s: %v", models.NoteParseError, err))
		}
		c.logger.Debug("strategy missed", "strategy", s.Name(), "file", file.LocalPath, "error", err)
	}

	if source == "" && len(c.strategies) > 0 {
		source = c.strategies[0].Source()
	}
	return []models.ExtractionRecord{models.NullRecord(file, source, notes...)}
}

// attempt isolates a strategy panic so the remaining tiers still run.
func (c *Chain) attempt(ctx context.Context, s Strategy, doc *Document) (records []models.ExtractionRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("strategy panicked", "strategy", s.Name(), "file", doc.File.LocalPath, "panic", r)
			records = nil
			err = NoMatch(fmt.Sprintf("%s: %v", models.NoteExtractionPanic, r))
		}
	}()
	return s.Attempt(ctx, doc)
}

// Router dispatches files to the chain for their format.
type Router struct {
	chains map[models.Format]*Chain
}

// NewRouter builds an empty router.
func NewRouter() *Router {
	return &Router{chains: make(map[models.Format]*Chain)}
}

// Handle registers the chain used for format.
func (r *Router) Handle(format models.Format, chain *Chain) *Router {
	r.chains[format] = chain
	return r
}

// Tiers returns the strategy names registered for format, in order.
func (r *Router) Tiers(format models.Format) []string {
	chain, ok := r.chains[format]
	if !ok {
		return nil
	}
	return chain.Strategies()
}

// Extract runs the chain registered for the file's format.
func (r *Router) Extract(ctx context.Context, file models.LocalFile) []models.ExtractionRecord {
	chain, ok := r.chains[file.Entry.Format]
	if !ok {
		return []models.ExtractionRecord{models.NullRecord(file, "",
			fmt.Sprintf("%s: unsupported format %q", models.NoteParseError, file.Entry.Format))}
	}
	return chain.Run(ctx, file)
}
