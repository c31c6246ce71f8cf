package extractor

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/dtnitsch/ffrate-extractor/models"
	"gopkg.in/yaml.v3"
)

// Pattern names accepted in Config.PatternOrder.
const (
	PatternVertical = "vertical"
	PatternTabular  = "tabular"
)

// OCRConfig controls the optical character recognition tier.
type OCRConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Binary     string        `yaml:"binary"`
	Language   string        `yaml:"language"`
	DPI        float64       `yaml:"dpi"`
	MaxPages   int           `yaml:"max_pages"`   // pages OCR'd when no candidate page is known
	ExtraPages int           `yaml:"extra_pages"` // further pages tried when candidates fail
	Timeout    time.Duration `yaml:"timeout"`
}

// Config holds every fixed identifier and heuristic the extractors share.
// Extractors receive it explicitly so tests can inject their own.
type Config struct {
	Concept string `yaml:"concept"`

	// ValueTags identify the question row in tagged spreadsheets, most
	// preferred first.
	ValueTags []string `yaml:"value_tags"`

	// LongerRunPatterns and FederalFundsPatterns must both match for text
	// to count as the longer-run federal funds rate question.
	LongerRunPatterns    []string `yaml:"longer_run_patterns"`
	FederalFundsPatterns []string `yaml:"federal_funds_patterns"`

	// Header aliases used by the spreadsheet extractor.
	TagColumns         []string `yaml:"tag_columns"`
	QuestionColumns    []string `yaml:"question_columns"`
	AggregationColumns []string `yaml:"aggregation_columns"`
	ValueColumns       []string `yaml:"value_columns"`
	PanelColumns       []string `yaml:"panel_columns"`

	// PanelLabels maps lowercase labels found in headers and documents to panels.
	PanelLabels map[string]models.Panel `yaml:"panel_labels"`

	// Percentile label regexes, keyed by pctl25, pctl50 and pctl75.
	PercentileLabels map[string][]string `yaml:"percentile_labels"`

	// PatternOrder is the fixed priority of document layouts.
	PatternOrder []string `yaml:"pattern_order"`

	// Characters kept before and after a question match when cutting a
	// document section.
	SectionBefore int `yaml:"section_before"`
	SectionAfter  int `yaml:"section_after"`

	// MinTextChars is the shortest page text treated as a usable text layer.
	MinTextChars int `yaml:"min_text_chars"`

	// Values parsed out of documents outside [MinValue, MaxValue] percent
	// are discarded as misreads.
	MinValue float64 `yaml:"min_value"`
	MaxValue float64 `yaml:"max_value"`

	OCR OCRConfig `yaml:"ocr"`
}

// DefaultConfig returns the identifiers used by the published surveys.
func DefaultConfig() Config {
	return Config{
		Concept: models.ConceptLongerRun,
		ValueTags: []string{
			"fftr_modalpe_longerrun",
			"fftr_longerrun",
			"fed_funds_longerrun",
			"federal_funds_longerrun",
		},
		LongerRunPatterns: []string{
			`longer[\s-]*run`,
			`long[\s-]*run`,
			`longrun`,
		},
		FederalFundsPatterns: []string{
			`federal[\s-]*funds`,
			`fed[\s-]*funds`,
			`fftr`,
			`target[\s-]*rate`,
		},
		TagColumns:         []string{"value_tag", "valuetag", "tag", "concept", "variable", "series_name"},
		QuestionColumns:    []string{"question_text", "question", "description", "label"},
		AggregationColumns: []string{"aggregation", "aggregation_type", "statistic", "stat", "agg"},
		ValueColumns:       []string{"aggregation_value", "value", "result", "estimate"},
		PanelColumns:       []string{"panel_type", "panel", "respondent_type", "survey_type"},
		PanelLabels: map[string]models.Panel{
			"combined":    models.PanelCombined,
			"all":         models.PanelCombined,
			"total":       models.PanelCombined,
			"spd":         models.PanelSPD,
			"smp":         models.PanelSMP,
			"dealer":      models.PanelDealer,
			"participant": models.PanelParticipant,
		},
		PercentileLabels: map[string][]string{
			"pctl25": {`25th(?:\s*p(?:e?r)?c?e?n?t?i?l?e?\.?)?`, `25\s*percentile`, `\bpctl[\s_]?25\b`, `\bp[\s_]?25\b`},
			"pctl50": {`median`, `50th(?:\s*p(?:e?r)?c?e?n?t?i?l?e?\.?)?`, `50\s*percentile`, `\bpctl[\s_]?50\b`, `\bp[\s_]?50\b`},
			"pctl75": {`75th(?:\s*p(?:e?r)?c?e?n?t?i?l?e?\.?)?`, `75\s*percentile`, `\bpctl[\s_]?75\b`, `\bp[\s_]?75\b`},
		},
		PatternOrder:  []string{PatternVertical, PatternTabular},
		SectionBefore: 500,
		SectionAfter:  1500,
		MinTextChars:  20,
		MinValue:      -5,
		MaxValue:      25,
		OCR: OCRConfig{
			Enabled:    true,
			Binary:     "tesseract",
			Language:   "eng",
			DPI:        200,
			MaxPages:   5,
			ExtraPages: 10,
			Timeout:    2 * time.Minute,
		},
	}
}

// LoadConfig overlays a yaml file onto DefaultConfig. An empty path returns
// the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read extractor config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse extractor config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks that every pattern compiles and the pattern order is known.
func (c Config) Validate() error {
	if len(c.ValueTags) == 0 && (len(c.LongerRunPatterns) == 0 || len(c.FederalFundsPatterns) == 0) {
		return fmt.Errorf("config needs value_tags or both keyword pattern lists")
	}
	all := append(append([]string{}, c.LongerRunPatterns...), c.FederalFundsPatterns...)
	for _, labels := range c.PercentileLabels {
		all = append(all, labels...)
	}
	for _, p := range all {
		if _, err := regexp.Compile(`(?i)` + p); err != nil {
			return fmt.Errorf("invalid pattern %q: %w", p, err)
		}
	}
	for _, name := range c.PatternOrder {
		if name != PatternVertical && name != PatternTabular {
			return fmt.Errorf("unknown pattern %q in pattern_order", name)
		}
	}
	return nil
}
