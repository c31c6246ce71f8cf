// Package combiner merges per-file extraction records into the final
// table: one row per (survey_date, panel), deterministically ordered.
package combiner

import (
	"sort"
	"time"

	"github.com/dtnitsch/ffrate-extractor/models"
)

type key struct {
	date  time.Time
	panel models.Panel
}

// Merged is the deduplicated, ordered table.
type Merged struct {
	Records []models.ExtractionRecord
	// Duplicates counts records dropped in favor of a better one for the same key.
	Duplicates int
}

// Merge keys records by (survey_date, panel) after canonicalizing panel
// labels and keeps the best record per key: the lower source rank wins,
// so a spreadsheet record beats any document record even when it is null.
// Within one source a record with values beats a null placeholder, then
// the more complete record wins. Ties keep the earlier record.
func Merge(records ...models.ExtractionRecord) Merged {
	best := make(map[key]int)
	var out []models.ExtractionRecord
	dups := 0

	for _, rec := range records {
		rec.SurveyDate = models.MonthStart(rec.SurveyDate)
		if p, ok := models.ParsePanel(string(rec.Panel)); ok {
			rec.Panel = p
		}
		k := key{date: rec.SurveyDate, panel: rec.Panel}

		i, seen := best[k]
		if !seen {
			best[k] = len(out)
			out = append(out, rec)
			continue
		}
		dups++
		if better(rec, out[i]) {
			out[i] = rec
		}
	}

	Order(out)
	return Merged{Records: out, Duplicates: dups}
}

func better(a, b models.ExtractionRecord) bool {
	if ra, rb := a.Source.Rank(), b.Source.Rank(); ra != rb {
		return ra < rb
	}
	return valueCount(a) > valueCount(b)
}

func valueCount(r models.ExtractionRecord) int {
	n := 0
	for _, v := range []*float64{r.Pctl25, r.Pctl50, r.Pctl75} {
		if v != nil {
			n++
		}
	}
	return n
}

// Order sorts records by survey date, then by the fixed panel order, with
// unknown panels last in alphabetical order.
func Order(records []models.ExtractionRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.SurveyDate.Equal(b.SurveyDate) {
			return a.SurveyDate.Before(b.SurveyDate)
		}
		if ra, rb := a.Panel.Rank(), b.Panel.Rank(); ra != rb {
			return ra < rb
		}
		return a.Panel < b.Panel
	})
}

// Flag notes percentile order violations in place and returns how many
// records were flagged.
func Flag(records []models.ExtractionRecord) int {
	n := 0
	for i := range records {
		if records[i].OrderViolation() {
			records[i].AddNote(models.NoteOrderViolation)
			n++
		}
	}
	return n
}
