package domain

// Field names a property attribute tracked through consolidation and the
// freshness cache. The engine consolidates arbitrary collector fields, but
// precedence, conflict severity, mandate checks and cache tiering key off
// this canonical set.
type Field string

const (
	FieldAddress       Field = "address"
	FieldCity          Field = "city"
	FieldState         Field = "state"
	FieldZip           Field = "zip"
	FieldParcelID      Field = "parcel_id"
	FieldPropertyType  Field = "property_type"
	FieldPrice         Field = "price"
	FieldStatus        Field = "status"
	FieldDaysOnMarket  Field = "days_on_market"
	FieldBrokerContact Field = "broker_contact"
	FieldSizeSqft      Field = "size_sqft"
	FieldYearBuilt     Field = "year_built"
	FieldUnits         Field = "units"
	FieldPricePerSqft  Field = "price_per_sqft"

	FieldDeedRecords    Field = "deed_records"
	FieldSaleHistory    Field = "sale_history"
	FieldParcelGeometry Field = "parcel_geometry"
	FieldTaxAssessment  Field = "tax_assessment"
	FieldOwnership      Field = "ownership"
	FieldZoning         Field = "zoning"
	FieldEnvironmental  Field = "environmental"
	FieldDemographics   Field = "demographics"
	FieldDistances      Field = "distances"
)

// volatileFields change between observations of the same property; recency
// wins precedence for them (trust rank breaks ties only).
var volatileFields = map[Field]bool{
	FieldPrice:         true,
	FieldStatus:        true,
	FieldDaysOnMarket:  true,
	FieldBrokerContact: true,
}

// identityFields define which physical property an entity is. A material
// conflict on one of these with no resolvable precedence makes the entity
// irreconcilable.
var identityFields = map[Field]bool{
	FieldAddress:      true,
	FieldCity:         true,
	FieldState:        true,
	FieldZip:          true,
	FieldParcelID:     true,
	FieldPropertyType: true,
}

// criticalFields must be present for an entity to be usable.
var criticalFields = []Field{
	FieldPrice,
	FieldSizeSqft,
	FieldPropertyType,
}

// IsVolatile reports whether recency-first precedence applies to the field.
func (f Field) IsVolatile() bool { return volatileFields[f] }

// IsIdentity reports whether the field is identity-defining.
func (f Field) IsIdentity() bool { return identityFields[f] }

// CriticalFields returns the fields a usable entity must carry.
func CriticalFields() []Field {
	out := make([]Field, len(criticalFields))
	copy(out, criticalFields)
	return out
}

func (f Field) String() string { return string(f) }
