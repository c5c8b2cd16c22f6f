package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// sizeUnits maps size suffixes to their byte multiplier
var sizeUnits = map[string]int64{
	"B":  1,
	"KB": 1 << 10,
	"MB": 1 << 20,
	"GB": 1 << 30,
	"TB": 1 << 40,
	"PB": 1 << 50,
}

// sizeOrder lists units largest-first for formatting
var sizeOrder = []string{"PB", "TB", "GB", "MB", "KB", "B"}

// durationUnits maps duration suffixes to their base duration
var durationUnits = map[string]time.Duration{
	"ms": time.Millisecond,
	"s":  time.Second,
	"m":  time.Minute,
	"h":  time.Hour,
	"d":  24 * time.Hour,
	"w":  7 * 24 * time.Hour,
}

// ParseSize parses a size string like "2TB" or "1.5GB" into bytes.
// Unrecognized units are rejected with a descriptive error.
func ParseSize(s string) (int64, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, fmt.Errorf("empty size string")
	}

	i := 0
	for i < len(trimmed) && (trimmed[i] >= '0' && trimmed[i] <= '9' || trimmed[i] == '.') {
		i++
	}
	numPart := trimmed[:i]
	unitPart := strings.ToUpper(strings.TrimSpace(trimmed[i:]))

	if numPart == "" {
		return 0, fmt.Errorf("invalid size %q: missing numeric value", s)
	}

	value, err := strconv.ParseFloat(numPart, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if value < 0 {
		return 0, fmt.Errorf("invalid size %q: negative value", s)
	}

	if unitPart == "" {
		unitPart = "B"
	}
	multiplier, ok := sizeUnits[unitPart]
	if !ok {
		return 0, fmt.Errorf("invalid size %q: unknown unit %q (expected one of B, KB, MB, GB, TB, PB)", s, unitPart)
	}

	return int64(value * float64(multiplier)), nil
}

// FormatSize formats a byte count using the largest unit that keeps the
// value at or above 1, e.g. 1536 -> "1.5KB"
func FormatSize(bytes int64) string {
	if bytes < 0 {
		return fmt.Sprintf("-%s", FormatSize(-bytes))
	}
	for _, unit := range sizeOrder {
		multiplier := sizeUnits[unit]
		if bytes >= multiplier {
			value := float64(bytes) / float64(multiplier)
			if value == float64(int64(value)) {
				return fmt.Sprintf("%d%s", int64(value), unit)
			}
			return fmt.Sprintf("%.2f%s", value, unit)
		}
	}
	return "0B"
}

// ParseDurationString parses a duration string like "90s", "5m" or "1w".
// Unlike time.ParseDuration it supports days and weeks and rejects
// unrecognized units with a descriptive error.
func ParseDurationString(s string) (time.Duration, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, fmt.Errorf("empty duration string")
	}

	i := 0
	for i < len(trimmed) && (trimmed[i] >= '0' && trimmed[i] <= '9' || trimmed[i] == '.') {
		i++
	}
	numPart := trimmed[:i]
	unitPart := strings.TrimSpace(trimmed[i:])

	if numPart == "" {
		return 0, fmt.Errorf("invalid duration %q: missing numeric value", s)
	}

	value, err := strconv.ParseFloat(numPart, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if value < 0 {
		return 0, fmt.Errorf("invalid duration %q: negative value", s)
	}

	base, ok := durationUnits[unitPart]
	if !ok {
		return 0, fmt.Errorf("invalid duration %q: unknown unit %q (expected one of ms, s, m, h, d, w)", s, unitPart)
	}

	return time.Duration(value * float64(base)), nil
}
