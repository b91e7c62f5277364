package address

import (
	"regexp"
	"strings"
)

var stateZipRe = regexp.MustCompile(`^([A-Z]{2})\s*(\d{5}(?:-\d{4})?)?`)

// Components is a best-effort split of a comma-separated address.
type Components struct {
	FullAddress string
	Street      string
	City        string
	State       string
	Zip         string
}

// Extract splits "123 Main Street, Seattle, WA 98101" into its parts.
// Anything it cannot place stays empty; callers treat missing components as
// absent, never as a parse failure for the whole listing.
func Extract(address string) Components {
	c := Components{FullAddress: address}

	parts := strings.Split(address, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	if len(parts) >= 1 {
		c.Street = parts[0]
	}
	if len(parts) >= 2 {
		c.City = parts[1]
	}
	if len(parts) >= 3 {
		if m := stateZipRe.FindStringSubmatch(parts[2]); m != nil {
			c.State = m[1]
			c.Zip = m[2]
		}
	}
	return c
}

// Slug builds a lowercase "city-st" key for candidate indexing. Empty when
// either component is missing, which keeps unkeyable listings out of the
// index rather than bucketing them together.
func Slug(city, state string) string {
	city = strings.ToLower(strings.TrimSpace(city))
	state = strings.ToLower(strings.TrimSpace(state))
	if city == "" || state == "" {
		return ""
	}
	return strings.ReplaceAll(city, " ", "-") + "-" + state
}
