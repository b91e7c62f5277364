// Package attrs extracts typed values from raw listing field maps.
//
// Collector payloads carry map[string]any fields whose value types drift by
// platform: a price arrives as float64 from one feed, "$2,500,000" from
// another, json.Number from a third. Extractors coerce those shapes without
// ever failing hard. A miss is (zero, false), never a panic, so a malformed
// field degrades one sub-score instead of aborting the listing.
package attrs

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// String returns the first present, non-empty string among keys.
func String(fields map[string]any, keys ...string) (string, bool) {
	for _, key := range keys {
		v, ok := fields[key]
		if !ok {
			continue
		}
		if s, ok := v.(string); ok {
			s = strings.TrimSpace(s)
			if s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// Float returns the first present numeric value among keys, coercing ints,
// json.Number, and currency-formatted strings ("$2,500,000", "1,200 sqft").
func Float(fields map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		v, ok := fields[key]
		if !ok {
			continue
		}
		if f, ok := coerceFloat(v); ok {
			return f, true
		}
	}
	return 0, false
}

// Int is Float truncated; fractional values still resolve (days-on-market
// feeds occasionally deliver 12.0).
func Int(fields map[string]any, keys ...string) (int, bool) {
	f, ok := Float(fields, keys...)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// Time returns the first present timestamp among keys, accepting time.Time,
// RFC3339, and date-only strings.
func Time(fields map[string]any, keys ...string) (time.Time, bool) {
	for _, key := range keys {
		v, ok := fields[key]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case time.Time:
			if !t.IsZero() {
				return t, true
			}
		case string:
			s := strings.TrimSpace(t)
			if s == "" {
				continue
			}
			if parsed, err := time.Parse(time.RFC3339, s); err == nil {
				return parsed, true
			}
			if parsed, err := time.Parse("2006-01-02", s); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

func coerceFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		return parseNumericString(n)
	default:
		return 0, false
	}
}

// parseNumericString strips currency and grouping decoration before parsing.
// "PRICE UPON REQUEST" and friends fall out as non-numeric.
func parseNumericString(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		case r == ',', r == '$', r == ' ':
			// grouping and currency decoration
		default:
			// unit suffixes ("sqft", "SF") end the numeric portion
			if b.Len() > 0 {
				f, err := strconv.ParseFloat(b.String(), 64)
				return f, err == nil
			}
			return 0, false
		}
	}
	if b.Len() == 0 {
		return 0, false
	}
	f, err := strconv.ParseFloat(b.String(), 64)
	return f, err == nil
}
