package extractor

import (
	"strings"

	"github.com/shopspring/decimal"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// precision is the number of decimal places kept after normalization.
const precision = 4

// Normalize converts a fraction to percent. Values below 1 are read as
// fractions and multiplied by 100; everything else is already in percent.
// The result is rounded to four decimal places.
func Normalize(v float64) float64 {
	return normalizeDecimal(decimal.NewFromFloat(v))
}

func normalizeDecimal(d decimal.Decimal) float64 {
	if d.LessThan(one) {
		d = d.Mul(hundred)
	}
	return d.Round(precision).InexactFloat64()
}

// missingMarkers are cell contents meaning "no value".
var missingMarkers = map[string]bool{
	"":    true,
	"-":   true,
	"--":  true,
	"na":  true,
	"n/a": true,
	"nan": true,
	"nm":  true,
	".":   true,
}

// ParseValue reads a spreadsheet or document value as a percent. A trailing
// percent sign marks the value as already being in percent, so "0.5%" stays
// 0.5 while a bare 0.5 becomes 50.
func ParseValue(raw string) (float64, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if missingMarkers[s] {
		return 0, false
	}
	percent := strings.HasSuffix(s, "%")
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	s = strings.ReplaceAll(s, ",", "")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	if percent {
		return d.Round(precision).InexactFloat64(), true
	}
	return normalizeDecimal(d), true
}

// inRange reports whether a normalized value is plausible for a policy rate.
func (m *Matcher) inRange(v float64) bool {
	return v >= m.cfg.MinValue && v <= m.cfg.MaxValue
}
