package policy

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	id "platbook/pkg/domain"
	platstrings "platbook/pkg/platform/strings"
)

// Policy is the operator-tunable resolution policy: investment mandate,
// platform trust ranking, match thresholds, conflict severity bands and cache
// TTL overrides. Loaded once at startup and treated as immutable afterwards.
type Policy struct {
	Match      Match       `yaml:"match"`
	Mandate    Mandate     `yaml:"mandate"`
	Flags      Flags       `yaml:"flags"`
	Conflicts  Conflicts   `yaml:"conflicts"`
	Trust      Trust       `yaml:"trust"`
	Cache      Cache       `yaml:"cache"`
	Ingest     Ingest      `yaml:"ingest"`
	Collectors []Collector `yaml:"collectors"`
}

// Match holds the similarity score bucket boundaries.
type Match struct {
	AutoThreshold   float64 `yaml:"auto_threshold"`
	ReviewThreshold float64 `yaml:"review_threshold"`
}

// Mandate defines the investment box. Listings outside it are discarded, not
// flagged. An empty States list means no geographic restriction.
type Mandate struct {
	PropertyTypes   []string `yaml:"property_types"`
	States          []string `yaml:"states"`
	MinPrice        float64  `yaml:"min_price"`
	MaxPrice        float64  `yaml:"max_price"`
	MaxSizeSqft     float64  `yaml:"max_size_sqft"`
	MaxDaysOnMarket int      `yaml:"max_days_on_market"`
}

// Flags tunes the usable-vs-flagged boundary.
type Flags struct {
	StaleDaysOnMarket     int     `yaml:"stale_days_on_market"`
	OutlierMinComparables int     `yaml:"outlier_min_comparables"`
	OutlierZScore         float64 `yaml:"outlier_z_score"`
}

// Conflicts holds the variance bands above which a disagreement is material.
type Conflicts struct {
	MaterialPriceVariance float64 `yaml:"material_price_variance"`
	MaterialSizeVariance  float64 `yaml:"material_size_variance"`
}

// Trust ranks platforms for precedence tie-breaks. Higher outranks lower;
// platforms absent from the map rank below every configured source.
type Trust struct {
	Ranks map[string]int `yaml:"ranks"`
}

// Cache holds tier TTLs in whole days plus per-field overrides. Overrides are
// clamped to the owning tier's legal range by the cache manager.
type Cache struct {
	SemiMutableTTLDays           int            `yaml:"semi_mutable_ttl_days"`
	VolatileTTLDays              int            `yaml:"volatile_ttl_days"`
	FieldTTLDays                 map[string]int `yaml:"field_ttl_days"`
	AmplifiedConfidenceThreshold float64        `yaml:"amplified_confidence_threshold"`
}

// Ingest caps batch submissions.
type Ingest struct {
	MaxBatchSize int `yaml:"max_batch_size"`
}

// Collector binds a scraping platform to the bcrypt hash of its API key.
type Collector struct {
	Platform string `yaml:"platform"`
	KeyHash  string `yaml:"key_hash"`
}

// Default returns the shipped policy. Operators override pieces of it via the
// policy file; anything they leave out keeps these values.
func Default() Policy {
	return Policy{
		Match: Match{
			AutoThreshold:   0.85,
			ReviewThreshold: 0.70,
		},
		Mandate: Mandate{
			PropertyTypes:   []string{"MULTIFAMILY", "OFFICE", "RETAIL", "INDUSTRIAL", "MIXED-USE"},
			MinPrice:        100_000,
			MaxPrice:        50_000_000,
			MaxSizeSqft:     1_000_000,
			MaxDaysOnMarket: 365,
		},
		Flags: Flags{
			StaleDaysOnMarket:     180,
			OutlierMinComparables: 5,
			OutlierZScore:         3,
		},
		Conflicts: Conflicts{
			MaterialPriceVariance: 0.20,
			MaterialSizeVariance:  0.15,
		},
		Trust: Trust{
			Ranks: map[string]int{
				"county-records": 100,
				"enrichment":     90,
				"crexi":          60,
				"loopnet":        55,
				"realtor":        40,
				"zillow":         35,
			},
		},
		Cache: Cache{
			SemiMutableTTLDays:           60,
			VolatileTTLDays:              3,
			AmplifiedConfidenceThreshold: 0.80,
		},
		Ingest: Ingest{
			MaxBatchSize: 500,
		},
	}
}

// Load reads the policy file at path and overlays it on the defaults. An
// empty path returns the defaults untouched.
func Load(path string) (Policy, error) {
	p := Default()
	if path == "" {
		return p, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy file: %w", err)
	}
	if err := yaml.Unmarshal(b, &p); err != nil {
		return Policy{}, fmt.Errorf("parse policy file %s: %w", path, err)
	}
	p.normalize()
	if err := p.Validate(); err != nil {
		return Policy{}, fmt.Errorf("policy file %s: %w", path, err)
	}
	return p, nil
}

// normalize folds the operator-supplied list fields to their canonical case.
// Mandate checks compare exact strings, so "tx" in the file must become "TX"
// before the first listing arrives.
func (p *Policy) normalize() {
	p.Mandate.PropertyTypes = platstrings.DedupeAndTrimUpper(p.Mandate.PropertyTypes)
	p.Mandate.States = platstrings.DedupeAndTrimUpper(p.Mandate.States)
}

// Validate rejects policies that would make the engine misbehave rather than
// letting them fail deep inside a pipeline run.
func (p Policy) Validate() error {
	if p.Match.ReviewThreshold <= 0 || p.Match.ReviewThreshold >= 1 {
		return fmt.Errorf("match.review_threshold must be in (0,1), got %v", p.Match.ReviewThreshold)
	}
	if p.Match.AutoThreshold <= p.Match.ReviewThreshold || p.Match.AutoThreshold >= 1 {
		return fmt.Errorf("match.auto_threshold must be in (review_threshold,1), got %v", p.Match.AutoThreshold)
	}
	if p.Mandate.MinPrice < 0 || p.Mandate.MaxPrice <= p.Mandate.MinPrice {
		return fmt.Errorf("mandate price band [%v,%v] is not a valid range", p.Mandate.MinPrice, p.Mandate.MaxPrice)
	}
	if p.Mandate.MaxSizeSqft <= 0 {
		return fmt.Errorf("mandate.max_size_sqft must be positive, got %v", p.Mandate.MaxSizeSqft)
	}
	if p.Mandate.MaxDaysOnMarket <= 0 {
		return fmt.Errorf("mandate.max_days_on_market must be positive, got %d", p.Mandate.MaxDaysOnMarket)
	}
	if p.Flags.StaleDaysOnMarket <= 0 || p.Flags.StaleDaysOnMarket > p.Mandate.MaxDaysOnMarket {
		return fmt.Errorf("flags.stale_days_on_market must be in (0,%d], got %d", p.Mandate.MaxDaysOnMarket, p.Flags.StaleDaysOnMarket)
	}
	if p.Flags.OutlierMinComparables < 2 {
		return fmt.Errorf("flags.outlier_min_comparables must be at least 2, got %d", p.Flags.OutlierMinComparables)
	}
	if p.Flags.OutlierZScore <= 0 {
		return fmt.Errorf("flags.outlier_z_score must be positive, got %v", p.Flags.OutlierZScore)
	}
	if p.Conflicts.MaterialPriceVariance <= 0 || p.Conflicts.MaterialSizeVariance <= 0 {
		return fmt.Errorf("conflict variance bands must be positive")
	}
	if p.Cache.SemiMutableTTLDays < 30 || p.Cache.SemiMutableTTLDays > 90 {
		return fmt.Errorf("cache.semi_mutable_ttl_days must be in [30,90], got %d", p.Cache.SemiMutableTTLDays)
	}
	if p.Cache.VolatileTTLDays < 1 || p.Cache.VolatileTTLDays > 7 {
		return fmt.Errorf("cache.volatile_ttl_days must be in [1,7], got %d", p.Cache.VolatileTTLDays)
	}
	if p.Cache.AmplifiedConfidenceThreshold <= 0 || p.Cache.AmplifiedConfidenceThreshold > 1 {
		return fmt.Errorf("cache.amplified_confidence_threshold must be in (0,1], got %v", p.Cache.AmplifiedConfidenceThreshold)
	}
	if p.Ingest.MaxBatchSize <= 0 {
		return fmt.Errorf("ingest.max_batch_size must be positive, got %d", p.Ingest.MaxBatchSize)
	}
	for i, c := range p.Collectors {
		if _, err := id.ParsePlatform(c.Platform); err != nil {
			return fmt.Errorf("collectors[%d]: %w", i, err)
		}
		if c.KeyHash == "" {
			return fmt.Errorf("collectors[%d] (%s): key_hash is required", i, c.Platform)
		}
	}
	return nil
}

// TrustRank returns the precedence rank for a source platform.
func (p Policy) TrustRank(platform id.Platform) int {
	return p.Trust.Ranks[platform.String()]
}

// AllowsPropertyType reports whether the canonical type sits inside the
// mandate. An empty mandate list admits every type.
func (p Policy) AllowsPropertyType(t id.PropertyType) bool {
	if len(p.Mandate.PropertyTypes) == 0 {
		return true
	}
	for _, allowed := range p.Mandate.PropertyTypes {
		if id.CanonicalPropertyType(allowed) == t {
			return true
		}
	}
	return false
}

// AllowsState reports whether a two-letter state code sits inside the
// geographic mandate. An empty list means no restriction.
func (p Policy) AllowsState(state string) bool {
	if len(p.Mandate.States) == 0 {
		return true
	}
	for _, s := range p.Mandate.States {
		if s == state {
			return true
		}
	}
	return false
}

// SemiMutableTTL returns the configured semi-mutable tier TTL.
func (p Policy) SemiMutableTTL() time.Duration {
	return time.Duration(p.Cache.SemiMutableTTLDays) * 24 * time.Hour
}

// VolatileTTL returns the configured volatile tier TTL.
func (p Policy) VolatileTTL() time.Duration {
	return time.Duration(p.Cache.VolatileTTLDays) * 24 * time.Hour
}

// FieldTTL returns the per-field TTL override, if one is configured.
func (p Policy) FieldTTL(field id.Field) (time.Duration, bool) {
	days, ok := p.Cache.FieldTTLDays[field.String()]
	if !ok || days <= 0 {
		return 0, false
	}
	return time.Duration(days) * 24 * time.Hour, true
}
