package extractor

import (
	"sort"
	"strings"

	"github.com/dtnitsch/ffrate-extractor/models"
	"github.com/shopspring/decimal"
)

// maxTableRows bounds how far below a header line table rows are read.
const maxTableRows = 8

// PanelValues holds the percentiles found for one panel.
type PanelValues struct {
	Panel  models.Panel
	Values map[Percentile]float64
}

// Apply copies the values onto rec.
func (pv PanelValues) Apply(rec *models.ExtractionRecord) {
	if v, ok := pv.Values[P25]; ok {
		rec.Pctl25 = models.Float(v)
	}
	if v, ok := pv.Values[P50]; ok {
		rec.Pctl50 = models.Float(v)
	}
	if v, ok := pv.Values[P75]; ok {
		rec.Pctl75 = models.Float(v)
	}
}

// Match is the outcome of parsing one document section.
type Match struct {
	Pattern string
	Panels  []PanelValues
}

// strong reports whether some panel carries at least two percentiles.
func (mt Match) strong() bool {
	for _, p := range mt.Panels {
		if len(p.Values) >= 2 {
			return true
		}
	}
	return false
}

// ParseValues applies the configured patterns to a section in priority
// order. The first pattern yielding two or more percentiles for a panel
// wins; failing that, the first pattern yielding anything is used.
func (m *Matcher) ParseValues(section string, hint models.SurveyType) (Match, bool) {
	var partial *Match
	for _, name := range m.cfg.PatternOrder {
		var panels []PanelValues
		switch name {
		case PatternVertical:
			panels = m.parseVertical(section, hint)
		case PatternTabular:
			panels = m.parseTabular(section, hint)
		}
		if len(panels) == 0 {
			continue
		}
		mt := Match{Pattern: name, Panels: panels}
		if mt.strong() {
			return mt, true
		}
		if partial == nil {
			partial = &mt
		}
	}
	if partial != nil {
		return *partial, true
	}
	return Match{}, false
}

// docNumbers parses printed values. Documents print percent already, so the
// values are only rounded. Any value outside the plausible range rejects the
// whole group.
func (m *Matcher) docNumbers(s string) ([]float64, bool) {
	raw := m.number.FindAllString(s, -1)
	if len(raw) == 0 {
		return nil, false
	}
	out := make([]float64, 0, len(raw))
	for _, r := range raw {
		d, err := decimal.NewFromString(r)
		if err != nil {
			return nil, false
		}
		v := d.Round(precision).InexactFloat64()
		if !m.inRange(v) {
			return nil, false
		}
		out = append(out, v)
	}
	return out, true
}

// parseVertical reads "label: value" lines. Several values on one line are
// assigned to the panels of the closest preceding header naming the same
// number of panels.
func (m *Matcher) parseVertical(section string, hint models.SurveyType) []PanelValues {
	collected := NewPanelSet()
	for _, p := range Percentiles {
		for _, loc := range m.vertical[p].FindAllStringSubmatchIndex(section, -1) {
			nums, ok := m.docNumbers(section[loc[2]:loc[3]])
			if !ok {
				continue
			}
			panels := []models.Panel{hint.DefaultPanel()}
			if len(nums) > 1 {
				if header := m.headerAbove(section[:loc[0]], len(nums)); header != nil {
					panels = header
				}
			}
			for i, panel := range panels {
				collected.Set(panel, p, nums[i])
			}
			break
		}
	}
	return collected.List()
}

// headerAbove finds the nearest line before the end of text that names
// exactly n panels.
func (m *Matcher) headerAbove(text string, n int) []models.Panel {
	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if cols := m.PanelColumns(lines[i]); len(cols) == n {
			return cols
		}
	}
	return nil
}

// headerColumns maps each percentile to its column index when line is a
// table header naming all three in ascending order.
func (m *Matcher) headerColumns(line string) (map[Percentile]int, bool) {
	h := normalizeHeader(line)
	tokens := m.ordinal.FindAllString(h, -1)
	cols := make(map[Percentile]int)
	for i, tok := range tokens {
		p, ok := m.PercentileOf(tok)
		if !ok {
			continue
		}
		if _, dup := cols[p]; !dup {
			cols[p] = i
		}
	}
	if len(cols) != len(Percentiles) {
		return nil, false
	}
	if cols[P25] >= cols[P50] || cols[P50] >= cols[P75] {
		return nil, false
	}
	return cols, true
}

// parseTabular reads a header row naming the percentiles followed by one
// row per panel.
func (m *Matcher) parseTabular(section string, hint models.SurveyType) []PanelValues {
	lines := strings.Split(section, "\n")
	for i, line := range lines {
		cols, ok := m.headerColumns(line)
		if !ok {
			continue
		}
		need := max(cols[P25], cols[P50], cols[P75]) + 1
		collected := NewPanelSet()
		started := false
		for _, row := range lines[i+1 : min(len(lines), i+1+maxTableRows)] {
			loc := m.number.FindStringIndex(row)
			if loc == nil {
				if started {
					break
				}
				continue
			}
			nums, ok := m.docNumbers(row[loc[0]:])
			if !ok || len(nums) < need {
				if started {
					break
				}
				continue
			}
			panel, named := m.PanelOf(row[:loc[0]])
			if !named {
				if started {
					break
				}
				panel = hint.DefaultPanel()
			}
			started = true
			if collected.Has(panel) {
				continue
			}
			for p, idx := range cols {
				collected.Set(panel, p, nums[idx])
			}
			if _, single := hint.SinglePanel(); single && !named {
				break
			}
		}
		if list := collected.List(); len(list) > 0 {
			return list
		}
	}
	return nil
}

// PanelSet accumulates values per panel; the first value seen wins.
type PanelSet map[models.Panel]map[Percentile]float64

// NewPanelSet returns an empty set.
func NewPanelSet() PanelSet { return make(PanelSet) }

// Has reports whether any value is recorded for p.
func (s PanelSet) Has(p models.Panel) bool { return len(s[p]) > 0 }

// Set records v unless a value for (panel, p) already exists.
func (s PanelSet) Set(panel models.Panel, p Percentile, v float64) {
	if s[panel] == nil {
		s[panel] = make(map[Percentile]float64)
	}
	if _, ok := s[panel][p]; !ok {
		s[panel][p] = v
	}
}

// List returns the panels in output order.
func (s PanelSet) List() []PanelValues {
	out := make([]PanelValues, 0, len(s))
	for panel, values := range s {
		out = append(out, PanelValues{Panel: panel, Values: values})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Panel.Rank() != out[j].Panel.Rank() {
			return out[i].Panel.Rank() < out[j].Panel.Rank()
		}
		return out[i].Panel < out[j].Panel
	})
	return out
}
