// Package parse coerces loosely-typed upstream values into canonical
// numbers and timestamps. All parsers are total functions: no input panics,
// worst case returns the documented zero value.
package parse

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// PriceChangeFractionThreshold is the heuristic dividing line between a
// price change reported as a fraction (0.12 = 12%) and one reported as a
// percentage already multiplied by 100 (12 = 12%). Magnitudes above the
// threshold are divided by 100. Upstream sources disagree on the convention;
// the threshold is a guess pending confirmation against real feed data.
const PriceChangeFractionThreshold = 1.5

// suffixed matches a signed decimal with an optional K/M/B magnitude suffix.
var suffixed = regexp.MustCompile(`^([+-]?\d*\.?\d+)([KkMmBb])?$`)

// FormattedNumber coerces a formatted upstream value into a float64.
// Strings may carry a leading $, thousands separators and a K/M/B suffix
// ("12.5K" -> 12500, "$1,000" -> 1000). nil, empty strings, NaN and any
// unparseable or foreign-typed value resolve to 0.
func FormattedNumber(value any) float64 {
	switch v := value.(type) {
	case nil:
		return 0
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0
		}
		return v
	case float32:
		return FormattedNumber(float64(v))
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case uint64:
		return float64(v)
	case string:
		return formattedString(v)
	default:
		return 0
	}
}

func formattedString(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")

	if m := suffixed.FindStringSubmatch(s); m != nil {
		n, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0
		}
		switch strings.ToUpper(m[2]) {
		case "K":
			n *= 1e3
		case "M":
			n *= 1e6
		case "B":
			n *= 1e9
		}
		return n
	}

	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	return n
}

// PriceChange coerces a price-change value into a fraction. Values whose
// magnitude exceeds PriceChangeFractionThreshold are treated as percentages
// already multiplied by 100 and divided down; smaller values are assumed to
// be fractions already.
func PriceChange(value any) float64 {
	n := FormattedNumber(value)
	if math.Abs(n) > PriceChangeFractionThreshold {
		return n / 100
	}
	return n
}
