package combiner

import (
	"sort"
	"time"

	"github.com/dtnitsch/ffrate-extractor/models"
	"github.com/shopspring/decimal"
)

// Comparison flags.
const (
	FlagExceedsTolerance = "exceeds_tolerance"
	FlagReferenceOnly    = "reference_only"
	FlagExtractOnly      = "extract_only"
)

// ReferencePoint is one observation of an external series.
type ReferencePoint struct {
	Date   time.Time
	Pctl25 *float64
	Median *float64
	Pctl75 *float64
}

// SelectionRule picks which of our panels stands for a survey date:
// Before applies to dates earlier than Cutoff, After to the rest. Each
// list is tried in order and the first panel with a median wins.
type SelectionRule struct {
	Cutoff time.Time
	Before []models.Panel
	After  []models.Panel
}

// DefaultSelectionRule compares dealers before cutoff and the combined
// panel from cutoff on, each falling back to the other.
func DefaultSelectionRule(cutoff time.Time) SelectionRule {
	return SelectionRule{
		Cutoff: models.MonthStart(cutoff),
		Before: []models.Panel{models.PanelSPD, models.PanelDealer, models.PanelCombined},
		After:  []models.Panel{models.PanelCombined, models.PanelSPD, models.PanelDealer},
	}
}

func (r SelectionRule) panels(date time.Time) []models.Panel {
	if date.Before(r.Cutoff) {
		return r.Before
	}
	return r.After
}

// ComparisonRow is one month of the outer join between our table and the
// reference series.
type ComparisonRow struct {
	Date       time.Time
	Panel      models.Panel
	Source     models.Source
	OurPctl25  *float64
	OurMedian  *float64
	OurPctl75  *float64
	RefPctl25  *float64
	RefMedian  *float64
	RefPctl75  *float64
	MedianDiff *float64
	AbsDiff    *float64
	Flag       string
}

// CompareStats summarizes the matched months.
type CompareStats struct {
	Matched       int     `yaml:"matched"`
	ReferenceOnly int     `yaml:"reference_only"`
	ExtractOnly   int     `yaml:"extract_only"`
	Flagged       int     `yaml:"over_tolerance"`
	MeanAbsDiff   float64 `yaml:"mean_abs_diff"`
	MaxAbsDiff    float64 `yaml:"max_abs_diff"`
	ExactMatches  int     `yaml:"exact_matches"`
	Within10bp    int     `yaml:"within_10bp"`
	Within25bp    int     `yaml:"within_25bp"`
}

// Compare outer-joins records with the reference series on month. Rows
// whose absolute median difference exceeds tolerance are flagged, never
// dropped. Rows are ordered by date.
func Compare(records []models.ExtractionRecord, reference []ReferencePoint, rule SelectionRule, tolerance float64) ([]ComparisonRow, CompareStats) {
	byDate := make(map[time.Time]map[models.Panel]models.ExtractionRecord)
	for _, rec := range records {
		if rec.Pctl50 == nil {
			continue
		}
		d := models.MonthStart(rec.SurveyDate)
		if byDate[d] == nil {
			byDate[d] = make(map[models.Panel]models.ExtractionRecord)
		}
		if _, ok := byDate[d][rec.Panel]; !ok {
			byDate[d][rec.Panel] = rec
		}
	}

	rows := make(map[time.Time]*ComparisonRow)
	for d, panels := range byDate {
		for _, p := range rule.panels(d) {
			rec, ok := panels[p]
			if !ok {
				continue
			}
			rows[d] = &ComparisonRow{
				Date:      d,
				Panel:     rec.Panel,
				Source:    rec.Source,
				OurPctl25: rec.Pctl25,
				OurMedian: rec.Pctl50,
				OurPctl75: rec.Pctl75,
			}
			break
		}
	}

	for _, ref := range reference {
		if ref.Median == nil {
			continue
		}
		d := models.MonthStart(ref.Date)
		row, ok := rows[d]
		if !ok {
			row = &ComparisonRow{Date: d}
			rows[d] = row
		}
		if row.RefMedian != nil {
			continue
		}
		row.RefPctl25, row.RefMedian, row.RefPctl75 = ref.Pctl25, ref.Median, ref.Pctl75
	}

	out := make([]ComparisonRow, 0, len(rows))
	var stats CompareStats
	var sumAbs decimal.Decimal
	for _, row := range rows {
		switch {
		case row.OurMedian == nil:
			row.Flag = FlagReferenceOnly
			stats.ReferenceOnly++
		case row.RefMedian == nil:
			row.Flag = FlagExtractOnly
			stats.ExtractOnly++
		default:
			diff := decimal.NewFromFloat(*row.OurMedian).Sub(decimal.NewFromFloat(*row.RefMedian)).Round(4)
			abs := diff.Abs()
			d, _ := diff.Float64()
			a, _ := abs.Float64()
			row.MedianDiff, row.AbsDiff = &d, &a

			stats.Matched++
			sumAbs = sumAbs.Add(abs)
			if a > stats.MaxAbsDiff {
				stats.MaxAbsDiff = a
			}
			if a < 0.01 {
				stats.ExactMatches++
			}
			if a <= 0.1 {
				stats.Within10bp++
			}
			if a <= 0.25 {
				stats.Within25bp++
			}
			if a > tolerance {
				row.Flag = FlagExceedsTolerance
				stats.Flagged++
			}
		}
		out = append(out, *row)
	}
	if stats.Matched > 0 {
		stats.MeanAbsDiff, _ = sumAbs.Div(decimal.NewFromInt(int64(stats.Matched))).Round(4).Float64()
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, stats
}
