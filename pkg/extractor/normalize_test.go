package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0.0313, 3.13},
		{0.03, 3},
		{0.02875, 2.875},
		{0.5, 50},
		{0.999, 99.9},
		{0, 0},
		{1, 1},
		{3.13, 3.13},
		{2.875, 2.875},
		{3.123456, 3.1235},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), "Normalize(%v)", tt.in)
	}
}

func TestNormalizeIsIdempotentAboveOne(t *testing.T) {
	for _, v := range []float64{0.0313, 0.025, 0.0375, 0.02} {
		once := Normalize(v)
		assert.Equal(t, once, Normalize(once))
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"0.0313", 3.13, true},
		{" 3.13 ", 3.13, true},
		{"3.13%", 3.13, true},
		{"0.5%", 0.5, true},
		{"2.5", 2.5, true},
		{"n/a", 0, false},
		{"NA", 0, false},
		{"-", 0, false},
		{"", 0, false},
		{"three", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseValue(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
