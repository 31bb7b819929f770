package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Approximate relative-age unit durations.
const (
	monthMs = 30 * 24 * time.Hour / time.Millisecond
	yearMs  = 365 * 24 * time.Hour / time.Millisecond
)

// isoLike matches ISO-8601-ish timestamps with optional fractional seconds
// and an optional zone designator.
var isoLike = regexp.MustCompile(
	`^(\d{4}-\d{2}-\d{2})[T ](\d{2}:\d{2}:\d{2})(?:\.(\d{1,6}))?(Z|[+-]\d{2}:?\d{2})?$`)

// relativeAge matches relative-age strings like "5m", "2h ago", "1mo", "3d".
var relativeAge = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*(s|sec|m|min|h|hr|d|mo|y)\s*(?:ago)?$`)

// FormattedAge parses an upstream age value into milliseconds since epoch.
// It accepts ISO-8601-like timestamps (sub-second precision truncated to
// milliseconds, UTC implied when no zone is given) and relative-age strings
// ("5m ago", "2h", "3d", "1mo", "now"). Unparseable input returns 0, which
// callers must treat as "unknown", never as the epoch start.
func FormattedAge(age string) int64 {
	return formattedAgeAt(age, time.Now())
}

// formattedAgeAt is FormattedAge against an explicit clock, for tests.
func formattedAgeAt(age string, now time.Time) int64 {
	age = strings.TrimSpace(age)
	if age == "" {
		return 0
	}

	if m := isoLike.FindStringSubmatch(age); m != nil {
		return parseISO(m)
	}

	lower := strings.ToLower(age)
	if lower == "now" || lower == "just now" {
		return now.UnixMilli()
	}

	if m := relativeAge.FindStringSubmatch(lower); m != nil {
		n, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0
		}
		var unit time.Duration
		switch m[2] {
		case "s", "sec":
			unit = time.Second
		case "m", "min":
			unit = time.Minute
		case "h", "hr":
			unit = time.Hour
		case "d":
			unit = 24 * time.Hour
		case "mo":
			unit = time.Duration(monthMs) * time.Millisecond
		case "y":
			unit = time.Duration(yearMs) * time.Millisecond
		}
		return now.Add(-time.Duration(n * float64(unit))).UnixMilli()
	}

	return 0
}

// parseISO assembles a truncated RFC3339 string from isoLike submatches and
// parses it. Fractional seconds beyond milliseconds are discarded.
func parseISO(m []string) int64 {
	frac := m[3]
	if len(frac) > 3 {
		frac = frac[:3]
	}
	s := m[1] + "T" + m[2]
	if frac != "" {
		s += "." + frac
	}
	zone := m[4]
	if zone == "" {
		zone = "Z"
	} else if len(zone) == 5 { // +0000 -> +00:00
		zone = zone[:3] + ":" + zone[3:]
	}
	t, err := time.Parse(time.RFC3339, s+zone)
	if err != nil {
		return 0
	}
	return t.UnixMilli()
}

// HumanReadableAge formats an upstream age value as a coarse human-readable
// age ("2y", "3mo", "5d", "2h", "14m", "30s", "now"). Ages under ten seconds
// render as "now". Unparseable input returns an empty string.
func HumanReadableAge(age string) string {
	return humanReadableAgeAt(age, time.Now())
}

func humanReadableAgeAt(age string, now time.Time) string {
	ts := formattedAgeAt(age, now)
	if ts == 0 {
		return ""
	}

	elapsed := now.UnixMilli() - ts
	if elapsed < 0 {
		elapsed = 0
	}

	switch {
	case elapsed >= int64(yearMs):
		return fmt.Sprintf("%dy", elapsed/int64(yearMs))
	case elapsed >= int64(monthMs):
		return fmt.Sprintf("%dmo", elapsed/int64(monthMs))
	case elapsed >= int64(24*time.Hour/time.Millisecond):
		return fmt.Sprintf("%dd", elapsed/int64(24*time.Hour/time.Millisecond))
	case elapsed >= int64(time.Hour/time.Millisecond):
		return fmt.Sprintf("%dh", elapsed/int64(time.Hour/time.Millisecond))
	case elapsed >= int64(time.Minute/time.Millisecond):
		return fmt.Sprintf("%dm", elapsed/int64(time.Minute/time.Millisecond))
	case elapsed < 10_000:
		return "now"
	default:
		return fmt.Sprintf("%ds", elapsed/1000)
	}
}
