package parse

import (
	"math"
	"testing"
)

func TestFormattedNumber_Suffixes(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  float64
	}{
		{"thousands suffix", "12.5K", 12500},
		{"lowercase suffix", "12.5k", 12500},
		{"millions suffix", "3M", 3_000_000},
		{"billions suffix", "1.2B", 1_200_000_000},
		{"dollar and comma", "$1,000", 1000},
		{"dollar comma suffix", "$2,500.5K", 2_500_500},
		{"negative suffix", "-4.2K", -4200},
		{"plain string", "42.75", 42.75},
		{"empty string", "", 0},
		{"whitespace", "   ", 0},
		{"garbage", "abc", 0},
		{"suffix only", "K", 0},
		{"native float", 12.5, 12.5},
		{"native int", 7, 7},
		{"nil", nil, 0},
		{"nan", math.NaN(), 0},
		{"positive inf", math.Inf(1), 0},
		{"bool is foreign", true, 0},
		{"map is foreign", map[string]any{"x": 1}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormattedNumber(tt.input)
			if got != tt.want {
				t.Errorf("FormattedNumber(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestPriceChange_Threshold(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  float64
	}{
		{"percentage scaled down", 5.0, 0.05},
		{"fraction unchanged", 0.12, 0.12},
		{"below threshold", 1.4, 1.4},
		{"above threshold", 1.6, 0.016},
		{"negative percentage", -25.0, -0.25},
		{"negative fraction", -0.3, -0.3},
		{"string percentage", "80", 0.8},
		{"zero", 0.0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PriceChange(tt.input)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("PriceChange(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
