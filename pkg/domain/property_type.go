package domain

import "strings"

// PropertyType is the canonical asset-class vocabulary. Collector feeds use
// platform-specific type labels; CanonicalPropertyType folds them into this
// set before matching and mandate checks so the same building advertised as
// "MULTI_FAMILY" and "Multifamily" compares equal.
type PropertyType string

const (
	PropertyTypeMultifamily PropertyType = "MULTIFAMILY"
	PropertyTypeOffice      PropertyType = "OFFICE"
	PropertyTypeRetail      PropertyType = "RETAIL"
	PropertyTypeIndustrial  PropertyType = "INDUSTRIAL"
	PropertyTypeMixedUse    PropertyType = "MIXED-USE"
	PropertyTypeCondo       PropertyType = "CONDO"
	PropertyTypeTownhouse   PropertyType = "TOWNHOUSE"
	PropertyTypeLand        PropertyType = "LAND"
)

// typeAliases folds collector vocabularies into canonical classes. Keys are
// post-normalization (uppercase, underscores collapsed).
var typeAliases = map[string]PropertyType{
	"MULTI_FAMILY": PropertyTypeMultifamily,
	"MULTI-FAMILY": PropertyTypeMultifamily,
	"APARTMENT":    PropertyTypeMultifamily,
	"APARTMENTS":   PropertyTypeMultifamily,
	"MIXED_USE":    PropertyTypeMixedUse,
	"MIXEDUSE":     PropertyTypeMixedUse,
	"LOT":          PropertyTypeLand,
	"FARM":         PropertyTypeLand,
	"CONDOMINIUM":  PropertyTypeCondo,
	"TOWNHOME":     PropertyTypeTownhouse,
}

// CanonicalPropertyType normalizes a raw type label. Unknown labels pass
// through uppercased with interior whitespace collapsed to underscores, so
// unrecognized classes still compare consistently. Empty input stays empty
// (treated as an absent field by the matcher).
func CanonicalPropertyType(raw string) PropertyType {
	t := strings.ToUpper(strings.TrimSpace(raw))
	if t == "" {
		return ""
	}
	t = strings.Join(strings.Fields(t), "_")
	if canonical, ok := typeAliases[t]; ok {
		return canonical
	}
	return PropertyType(t)
}

func (t PropertyType) String() string { return string(t) }

func (t PropertyType) IsZero() bool { return t == "" }
