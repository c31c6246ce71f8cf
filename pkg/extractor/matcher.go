package extractor

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/dtnitsch/ffrate-extractor/models"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Percentile identifies one of the three extracted statistics.
type Percentile int

const (
	P25 Percentile = iota
	P50
	P75
)

// Percentiles lists the statistics in output order.
var Percentiles = []Percentile{P25, P50, P75}

func (p Percentile) key() string {
	switch p {
	case P25:
		return "pctl25"
	case P50:
		return "pctl50"
	default:
		return "pctl75"
	}
}

func (p Percentile) String() string { return p.key() }

// questionWindow bounds how far apart the two question tokens may sit.
const questionWindow = 300

// Matcher is the compiled form of a Config.
type Matcher struct {
	cfg         Config
	longerRun   []*regexp.Regexp
	fedFunds    []*regexp.Regexp
	labels      map[Percentile]*regexp.Regexp
	vertical    map[Percentile]*regexp.Regexp
	ordinal     *regexp.Regexp
	number      *regexp.Regexp
	panelLabels []string
}

// NewMatcher compiles cfg.
func NewMatcher(cfg Config) (*Matcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Matcher{
		cfg:      cfg,
		labels:   make(map[Percentile]*regexp.Regexp),
		vertical: make(map[Percentile]*regexp.Regexp),
		ordinal:  regexp.MustCompile(`(?i)\b\d{1,2}(?:st|nd|rd|th)\b|\bp(?:ctl)?\s?\d{2}\b|\bmedian\b|\bmean\b|\baverage\b`),
		number:   regexp.MustCompile(`-?\d+(?:\.\d+)?\b`),
	}
	for _, p := range cfg.LongerRunPatterns {
		m.longerRun = append(m.longerRun, regexp.MustCompile(`(?i)`+p))
	}
	for _, p := range cfg.FederalFundsPatterns {
		m.fedFunds = append(m.fedFunds, regexp.MustCompile(`(?i)`+p))
	}
	for _, p := range Percentiles {
		alts := cfg.PercentileLabels[p.key()]
		if len(alts) == 0 {
			return nil, fmt.Errorf("no labels configured for %s", p)
		}
		group := `(?:` + strings.Join(alts, `|`) + `)`
		m.labels[p] = regexp.MustCompile(`(?i)` + group)
		// The value may sit on the line after its label, but never further.
		m.vertical[p] = regexp.MustCompile(`(?i)` + group + `[ \t]*[:=]?[ \t]*(?:\r?\n[ \t]*)?((?:-?\d+(?:\.\d+)?\b[ \t]*%?[ \t]*)+)`)
	}
	for label := range cfg.PanelLabels {
		m.panelLabels = append(m.panelLabels, strings.ToLower(label))
	}
	// Longest label first so "participant" is tried before "all".
	sort.Slice(m.panelLabels, func(i, j int) bool {
		if len(m.panelLabels[i]) != len(m.panelLabels[j]) {
			return len(m.panelLabels[i]) > len(m.panelLabels[j])
		}
		return m.panelLabels[i] < m.panelLabels[j]
	})
	return m, nil
}

// MustMatcher is NewMatcher for configs known to be valid.
func MustMatcher(cfg Config) *Matcher {
	m, err := NewMatcher(cfg)
	if err != nil {
		panic(err)
	}
	return m
}

// Config returns the configuration the matcher was built from.
func (m *Matcher) Config() Config { return m.cfg }

// foldSeparators makes keyword matching insensitive to underscores.
func foldSeparators(s string) string {
	return strings.ReplaceAll(s, "_", " ")
}

// MatchesQuestion reports whether text mentions both a longer-run token and
// a federal-funds token.
func (m *Matcher) MatchesQuestion(text string) bool {
	text = foldSeparators(text)
	return anyMatch(m.longerRun, text) && anyMatch(m.fedFunds, text)
}

func anyMatch(res []*regexp.Regexp, text string) bool {
	for _, re := range res {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// QuestionSpan locates the first place both tokens occur within
// questionWindow characters of each other.
func (m *Matcher) QuestionSpan(text string) (start, end int, ok bool) {
	folded := foldSeparators(text)
	var lrMatches [][]int
	for _, re := range m.longerRun {
		lrMatches = append(lrMatches, re.FindAllStringIndex(folded, -1)...)
	}
	sort.Slice(lrMatches, func(i, j int) bool { return lrMatches[i][0] < lrMatches[j][0] })

	for _, lr := range lrMatches {
		lo := max(0, lr[0]-questionWindow)
		hi := min(len(folded), lr[1]+questionWindow)
		best := -1
		var bestLoc []int
		for _, re := range m.fedFunds {
			loc := re.FindStringIndex(folded[lo:hi])
			if loc == nil {
				continue
			}
			if best == -1 || loc[0] < best {
				best = loc[0]
				bestLoc = []int{loc[0] + lo, loc[1] + lo}
			}
		}
		if bestLoc != nil {
			return min(lr[0], bestLoc[0]), max(lr[1], bestLoc[1]), true
		}
	}
	return 0, 0, false
}

// Section cuts the window around the question, or reports false when the
// question is absent.
func (m *Matcher) Section(text string) (string, bool) {
	start, end, ok := m.QuestionSpan(text)
	if !ok {
		return "", false
	}
	lo := max(0, start-m.cfg.SectionBefore)
	hi := min(len(text), end+m.cfg.SectionAfter)
	return text[lo:hi], true
}

// TagRank reports whether a cell holds one of the configured value tags and
// how preferred it is (0 is best). A cell merely containing the primary tag
// ranks after every exact tag.
func (m *Matcher) TagRank(cell string) (int, bool) {
	v := strings.ToLower(strings.TrimSpace(cell))
	if v == "" {
		return 0, false
	}
	for i, tag := range m.cfg.ValueTags {
		if v == strings.ToLower(tag) {
			return i, true
		}
	}
	if len(m.cfg.ValueTags) > 0 && strings.Contains(v, strings.ToLower(m.cfg.ValueTags[0])) {
		return len(m.cfg.ValueTags), true
	}
	return 0, false
}

// normalizeHeader lowercases a header and turns separators into spaces.
func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.NewReplacer("_", " ", "-", " ", "/", " ", ".", " ").Replace(h)
}

// PercentileOf classifies a header or row label as a percentile.
func (m *Matcher) PercentileOf(label string) (Percentile, bool) {
	h := normalizeHeader(label)
	for _, p := range Percentiles {
		if m.labels[p].MatchString(h) {
			return p, true
		}
	}
	return 0, false
}

// PanelOf finds a known panel label among the words of s. Matching is
// case and accent folded. Labels longer than three letters tolerate one
// extra character, so "Dealers" resolves to Dealer while "spread" does not
// resolve to SPD.
func (m *Matcher) PanelOf(s string) (models.Panel, bool) {
	for _, word := range strings.Fields(normalizeHeader(s)) {
		if p, ok := m.panelForWord(word); ok {
			return p, true
		}
	}
	return "", false
}

func (m *Matcher) panelForWord(word string) (models.Panel, bool) {
	for _, label := range m.panelLabels {
		rank := fuzzy.RankMatchNormalizedFold(label, word)
		if rank == 0 || (rank == 1 && len(label) > 3) {
			return m.cfg.PanelLabels[label], true
		}
	}
	return "", false
}

// PanelColumns returns the panels named on a line, in column order, when the
// line names at least two distinct panels.
func (m *Matcher) PanelColumns(line string) []models.Panel {
	var panels []models.Panel
	seen := make(map[models.Panel]bool)
	for _, word := range strings.Fields(normalizeHeader(line)) {
		p, ok := m.panelForWord(word)
		if !ok || seen[p] {
			continue
		}
		seen[p] = true
		panels = append(panels, p)
	}
	if len(panels) < 2 {
		return nil
	}
	return panels
}

// MatchesAny reports whether h equals one of the aliases after header
// normalization.
func MatchesAny(h string, aliases []string) bool {
	n := normalizeHeader(h)
	for _, a := range aliases {
		if n == normalizeHeader(a) {
			return true
		}
	}
	return false
}
