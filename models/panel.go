package models

import "strings"

// Panel identifies the surveyed sub-population a record describes.
type Panel string

const (
	PanelCombined    Panel = "Combined"
	PanelSPD         Panel = "SPD"
	PanelDealer      Panel = "Dealer"
	PanelSMP         Panel = "SMP"
	PanelParticipant Panel = "Participant"
)

// PanelOrder is the fixed output ordering within a survey date.
var PanelOrder = []Panel{PanelCombined, PanelSPD, PanelDealer, PanelSMP, PanelParticipant}

// Rank returns the position of p in PanelOrder, or len(PanelOrder) for
// panels outside the known set.
func (p Panel) Rank() int {
	for i, known := range PanelOrder {
		if p == known {
			return i
		}
	}
	return len(PanelOrder)
}

// panelAliases maps lowercased labels seen in spreadsheets and documents
// to the canonical panel.
var panelAliases = map[string]Panel{
	"combined":           PanelCombined,
	"all":                PanelCombined,
	"total":              PanelCombined,
	"merged":             PanelCombined,
	"spd":                PanelSPD,
	"smp":                PanelSMP,
	"dealer":             PanelDealer,
	"dealers":            PanelDealer,
	"primary_dealer":     PanelDealer,
	"primary dealer":     PanelDealer,
	"primary dealers":    PanelDealer,
	"participant":        PanelParticipant,
	"participants":       PanelParticipant,
	"market_participant": PanelParticipant,
	"market participant": PanelParticipant,
}

// ParsePanel canonicalizes a free-form panel label. The second return value
// is false when the label is not recognized.
func ParsePanel(label string) (Panel, bool) {
	key := strings.ToLower(strings.TrimSpace(label))
	key = strings.ReplaceAll(key, "-", "_")
	if p, ok := panelAliases[key]; ok {
		return p, true
	}
	if p, ok := panelAliases[strings.ReplaceAll(key, "_", " ")]; ok {
		return p, true
	}
	return Panel(strings.TrimSpace(label)), false
}

// SurveyType is the survey a manifest entry belongs to, used as a panel hint.
type SurveyType string

const (
	SurveySPD     SurveyType = "SPD"
	SurveySMP     SurveyType = "SMP"
	SurveyMerged  SurveyType = "Merged"
	SurveyUnknown SurveyType = ""
)

// SinglePanel reports the panel implied by a single-survey document.
// Merged and unknown surveys carry no implied panel.
func (s SurveyType) SinglePanel() (Panel, bool) {
	switch s {
	case SurveySPD:
		return PanelSPD, true
	case SurveySMP:
		return PanelSMP, true
	default:
		return "", false
	}
}

// DefaultPanel is the panel used when a document offers no breakdown.
func (s SurveyType) DefaultPanel() Panel {
	if p, ok := s.SinglePanel(); ok {
		return p
	}
	return PanelCombined
}

// ParseSurveyType accepts the spellings used on the command line.
func ParseSurveyType(s string) SurveyType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "spd", "dealer", "dealers":
		return SurveySPD
	case "smp", "participant", "participants":
		return SurveySMP
	case "merged", "sme", "combined":
		return SurveyMerged
	default:
		return SurveyUnknown
	}
}
