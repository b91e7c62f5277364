package match

import (
	"platbook/internal/address"
	"platbook/internal/listing/models"
	properties "platbook/internal/property/models"
	id "platbook/pkg/domain"
)

// Profile is the identity surface of a listing or property used for scoring.
// Absent fields stay zero; the scorer treats them as contributing nothing
// rather than as mismatches.
type Profile struct {
	Address string // normalized
	City    string
	State   string
	Zip     string

	PropertyType id.PropertyType

	SizeSqft float64
	HasSize  bool

	Price    float64
	HasPrice bool
}

// FromListing builds a scoring profile from a raw record. City, state and zip
// fall back to components extracted from the full address when the platform
// did not supply them separately.
func FromListing(rec *models.RawListingRecord) Profile {
	var p Profile

	rawAddr, _ := rec.Address()
	p.Address = address.Normalize(rawAddr)
	p.City, _ = rec.City()
	p.State, _ = rec.State()
	p.Zip, _ = rec.Zip()

	if (p.City == "" || p.State == "") && rawAddr != "" {
		c := address.Extract(rawAddr)
		if p.City == "" {
			p.City = c.City
		}
		if p.State == "" {
			p.State = c.State
		}
		if p.Zip == "" {
			p.Zip = c.Zip
		}
	}

	if t, ok := rec.PropertyType(); ok {
		p.PropertyType = t
	}
	if size, ok := rec.SizeSqft(); ok && size > 0 {
		p.SizeSqft = size
		p.HasSize = true
	}
	if price, ok := rec.Price(); ok && price > 0 {
		p.Price = price
		p.HasPrice = true
	}
	return p
}

// FromEntity builds the canonical-side profile of a consolidated property,
// the representation new listings are scored against.
func FromEntity(e *properties.PropertyEntity) Profile {
	var p Profile

	if addr, ok := e.Address(); ok {
		p.Address = address.Normalize(addr)
	}
	p.City, _ = e.City()
	p.State, _ = e.State()
	p.Zip, _ = e.Zip()

	if t, ok := e.PropertyType(); ok {
		p.PropertyType = id.PropertyType(t)
	}
	if size, ok := e.Float(id.FieldSizeSqft); ok && size > 0 {
		p.SizeSqft = size
		p.HasSize = true
	}
	if price, ok := e.Float(id.FieldPrice); ok && price > 0 {
		p.Price = price
		p.HasPrice = true
	}
	return p
}

// SlugKey buckets the profile for candidate lookup: city-state when known,
// the zip as a fallback, empty when the profile cannot be bucketed at all.
func (p Profile) SlugKey() string {
	if slug := address.Slug(p.City, p.State); slug != "" {
		return slug
	}
	if p.Zip != "" {
		return "zip:" + p.Zip
	}
	return ""
}
