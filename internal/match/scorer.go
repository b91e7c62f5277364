// Package match scores how likely two listings describe the same physical
// property and buckets the result into auto-match, manual review or distinct.
package match

import (
	"math"
	"strings"

	"platbook/internal/policy"
)

// Component weights. They sum to 1 so the total stays in [0,1].
const (
	weightAddress  = 0.40
	weightLocation = 0.20
	weightType     = 0.15
	weightSize     = 0.15
	weightPrice    = 0.10
)

// Bucket classifies a match score.
type Bucket string

const (
	BucketAutoMatch Bucket = "auto_match"
	BucketReview    Bucket = "manual_review"
	BucketDistinct  Bucket = "distinct"
)

// Result carries the component sub-scores (each in [0,1]) and the weighted
// total. Sub-scores are kept so review items can show why a pair landed in
// the tentative band.
type Result struct {
	Total float64 `json:"total"`

	Address      float64 `json:"address"`
	Location     float64 `json:"location"`
	PropertyType float64 `json:"property_type"`
	Size         float64 `json:"size"`
	Price        float64 `json:"price"`

	Bucket Bucket `json:"bucket"`
}

// Scorer computes identity-match scores. Scoring is symmetric:
// Score(a,b) == Score(b,a).
type Scorer struct {
	autoThreshold   float64
	reviewThreshold float64
}

func NewScorer(pol policy.Policy) *Scorer {
	return &Scorer{
		autoThreshold:   pol.Match.AutoThreshold,
		reviewThreshold: pol.Match.ReviewThreshold,
	}
}

// Score computes the weighted similarity between two profiles.
func (s *Scorer) Score(a, b Profile) Result {
	r := Result{
		Address:      addressScore(a.Address, b.Address),
		Location:     locationScore(a, b),
		PropertyType: typeScore(a.PropertyType.String(), b.PropertyType.String()),
		Size:         sizeScore(a, b),
		Price:        priceScore(a, b),
	}
	r.Total = weightAddress*r.Address +
		weightLocation*r.Location +
		weightType*r.PropertyType +
		weightSize*r.Size +
		weightPrice*r.Price
	r.Bucket = s.bucket(r.Total)
	return r
}

func (s *Scorer) bucket(total float64) Bucket {
	switch {
	case total > s.autoThreshold:
		return BucketAutoMatch
	case total >= s.reviewThreshold:
		return BucketReview
	default:
		return BucketDistinct
	}
}

// addressScore: exact normalized match scores 1, one address containing the
// other scores 0.75, anything else (or either side missing) scores 0.
func addressScore(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 0.75
	}
	return 0
}

// locationScore splits its weight 35/35/30 across city, state and zip.
func locationScore(a, b Profile) float64 {
	var score float64
	if a.City != "" && b.City != "" && strings.EqualFold(a.City, b.City) {
		score += 0.35
	}
	if a.State != "" && b.State != "" && strings.EqualFold(a.State, b.State) {
		score += 0.35
	}
	if a.Zip != "" && b.Zip != "" && a.Zip == b.Zip {
		score += 0.30
	}
	return score
}

func typeScore(a, b string) float64 {
	if a != "" && b != "" && a == b {
		return 1
	}
	return 0
}

// sizeScore bands on relative variance: under 5% full credit, under 10% two
// thirds, under 15% one third.
func sizeScore(a, b Profile) float64 {
	if !a.HasSize || !b.HasSize {
		return 0
	}
	switch v := variance(a.SizeSqft, b.SizeSqft); {
	case v < 0.05:
		return 1
	case v < 0.10:
		return 2.0 / 3.0
	case v < 0.15:
		return 1.0 / 3.0
	default:
		return 0
	}
}

// priceScore bands on relative variance: under 5% full credit, under 20%
// half credit.
func priceScore(a, b Profile) float64 {
	if !a.HasPrice || !b.HasPrice {
		return 0
	}
	switch v := variance(a.Price, b.Price); {
	case v < 0.05:
		return 1
	case v < 0.20:
		return 0.5
	default:
		return 0
	}
}

// variance is |a-b| relative to the larger magnitude.
func variance(a, b float64) float64 {
	m := max(math.Abs(a), math.Abs(b))
	if m == 0 {
		return 0
	}
	return math.Abs(a-b) / m
}
