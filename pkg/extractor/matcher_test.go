package extractor

import (
	"strings"
	"testing"

	"github.com/dtnitsch/ffrate-extractor/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMatcher(t *testing.T) *Matcher {
	t.Helper()
	m, err := NewMatcher(DefaultConfig())
	require.NoError(t, err)
	return m
}

func TestMatchesQuestion(t *testing.T) {
	m := testMatcher(t)
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"plain", "What is your estimate of the target federal funds rate over the longer run?", true},
		{"hyphenated", "Longer-run FED FUNDS target", true},
		{"underscored tag", "fftr_modalpe_longerrun", true},
		{"missing longer run", "federal funds rate at the end of 2025", false},
		{"missing federal funds", "longer run inflation expectations", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.MatchesQuestion(tt.text))
		})
	}
}

func TestSectionWindow(t *testing.T) {
	m := testMatcher(t)
	text := strings.Repeat("x", 900) + " longer run federal funds rate " + strings.Repeat("y", 3000)

	section, ok := m.Section(text)
	require.True(t, ok)
	assert.Contains(t, section, "longer run federal funds rate")
	assert.Equal(t, 500, strings.Index(section, "longer run"))
	assert.Less(t, len(section), 500+len("longer run federal funds rate")+1500+2)

	_, ok = m.Section("nothing to see here")
	assert.False(t, ok)
}

func TestQuestionSpanRequiresProximity(t *testing.T) {
	m := testMatcher(t)
	text := "longer run inflation" + strings.Repeat(" filler", 200) + " federal funds"
	_, _, ok := m.QuestionSpan(text)
	assert.False(t, ok)
	assert.True(t, m.MatchesQuestion(text))
}

func TestTagRank(t *testing.T) {
	m := testMatcher(t)

	rank, ok := m.TagRank("fftr_modalpe_longerrun")
	assert.True(t, ok)
	assert.Equal(t, 0, rank)

	rank, ok = m.TagRank(" FFTR_LONGERRUN ")
	assert.True(t, ok)
	assert.Equal(t, 1, rank)

	rank, ok = m.TagRank("fftr_modalpe_longerrun_dealer")
	assert.True(t, ok)
	assert.Equal(t, len(DefaultConfig().ValueTags), rank)

	_, ok = m.TagRank("pce_longerrun")
	assert.False(t, ok)
}

func TestPercentileOf(t *testing.T) {
	m := testMatcher(t)
	tests := []struct {
		header string
		want   Percentile
		ok     bool
	}{
		{"Dealer_p25", P25, true},
		{"25th Percentile", P25, true},
		{"25th Pctl.", P25, true},
		{"Median", P50, true},
		{"pctl_50", P50, true},
		{"Participant_p75", P75, true},
		{"75th percentile", P75, true},
		{"Dealer_mean", 0, false},
		{"survey_date", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, ok := m.PercentileOf(tt.header)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestPanelOf(t *testing.T) {
	m := testMatcher(t)
	tests := []struct {
		label string
		want  models.Panel
		ok    bool
	}{
		{"Dealer_p25", models.PanelDealer, true},
		{"Dealers", models.PanelDealer, true},
		{"Market Participants", models.PanelParticipant, true},
		{"SPD", models.PanelSPD, true},
		{"smp median", models.PanelSMP, true},
		{"Combined", models.PanelCombined, true},
		{"spread", "", false},
		{"median", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, ok := m.PanelOf(tt.label)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPanelColumns(t *testing.T) {
	m := testMatcher(t)
	assert.Equal(t,
		[]models.Panel{models.PanelDealer, models.PanelParticipant, models.PanelCombined},
		m.PanelColumns("            Dealers   Participants   Combined"))
	assert.Nil(t, m.PanelColumns("Dealers only"))
}

func TestNewMatcherRejectsBadPattern(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LongerRunPatterns = []string{"longer(run"}
	_, err := NewMatcher(cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.PatternOrder = []string{"diagonal"}
	_, err = NewMatcher(cfg)
	assert.Error(t, err)
}
