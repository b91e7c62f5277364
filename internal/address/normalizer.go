// Package address canonicalizes street addresses so the same property
// extracted from different platforms produces the same matching key.
package address

import (
	"regexp"
	"strings"
)

var (
	whitespaceRe  = regexp.MustCompile(`\s+`)
	punctuationRe = regexp.MustCompile(`[^\w\s-]`)
	leadingZeroRe = regexp.MustCompile(`\b0+(\d+)\b`)
	unitRe        = regexp.MustCompile(`\b(UNIT|APT|SUITE|STE)\s*`)
)

type expansion struct {
	re   *regexp.Regexp
	full string
}

func buildExpansions(pairs [][2]string) []expansion {
	out := make([]expansion, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, expansion{
			re:   regexp.MustCompile(`\b` + p[0] + `\b`),
			full: p[1],
		})
	}
	return out
}

// Street suffixes expand before directionals so "W ST" becomes
// "W STREET" before the W is widened to WEST.
var streetSuffixes = buildExpansions([][2]string{
	{"ST", "STREET"},
	{"AVE", "AVENUE"},
	{"BLVD", "BOULEVARD"},
	{"DR", "DRIVE"},
	{"RD", "ROAD"},
	{"LN", "LANE"},
	{"CT", "COURT"},
	{"PL", "PLACE"},
	{"TER", "TERRACE"},
	{"WAY", "WAY"},
	{"CIR", "CIRCLE"},
	{"PKWY", "PARKWAY"},
})

var directionals = buildExpansions([][2]string{
	{"N", "NORTH"},
	{"S", "SOUTH"},
	{"E", "EAST"},
	{"W", "WEST"},
	{"NE", "NORTHEAST"},
	{"NW", "NORTHWEST"},
	{"SE", "SOUTHEAST"},
	{"SW", "SOUTHWEST"},
})

// Normalize canonicalizes an address for matching: uppercase, collapsed
// whitespace, punctuation stripped (hyphens kept), abbreviations expanded,
// leading zeros removed from numbers, unit designators unified to UNIT.
// Normalize is idempotent.
func Normalize(address string) string {
	if address == "" {
		return ""
	}

	addr := strings.ToUpper(strings.TrimSpace(address))
	// "#" must become a designator before punctuation stripping eats it.
	addr = strings.ReplaceAll(addr, "#", " UNIT ")
	addr = punctuationRe.ReplaceAllString(addr, "")
	// Collapse after stripping: removed punctuation can leave double spaces.
	addr = whitespaceRe.ReplaceAllString(addr, " ")

	for _, e := range streetSuffixes {
		addr = e.re.ReplaceAllString(addr, e.full)
	}
	for _, e := range directionals {
		addr = e.re.ReplaceAllString(addr, e.full)
	}

	addr = leadingZeroRe.ReplaceAllString(addr, "$1")
	addr = unitRe.ReplaceAllString(addr, "UNIT ")

	return strings.TrimSpace(addr)
}
