package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "platbook/pkg/domain-errors"
)

// TestParseUUID_Invariants validates the parsing invariant:
// IDs must be valid, non-empty, non-nil UUIDs.
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParsePropertyID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParsePropertyID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParsePropertyID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParsePropertyID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, PropertyID(validUUID), id)
	})
}

// TestTypeDistinction verifies the compiler enforces type safety.
// This is a compile-time check - if this compiles, the invariant holds.
func TestTypeDistinction(t *testing.T) {
	propertyID := PropertyID(uuid.New())
	groupID := GroupID(uuid.New())

	// These would fail to compile if types were interchangeable:
	// var _ PropertyID = groupID   // compile error
	// var _ GroupID = propertyID   // compile error

	// Verify they're distinct at runtime too
	assert.NotEqual(t, uuid.UUID(propertyID), uuid.UUID(groupID))
}

// TestParseID_TrustBoundaryInvariants validates parsing rules at API entry
// points: attack vectors and malformed ids must be rejected before they
// reach a store.
func TestParseID_TrustBoundaryInvariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		// Attack vectors
		{"SQL injection attempt", "'; DROP TABLE properties;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Unicode zero-width space", "550e8400​-e29b-41d4-a716-446655440000", true},

		// Edge cases
		{"Empty string", "", true},
		{"Nil UUID", uuid.Nil.String(), true},
		{"Whitespace only", "   ", true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},

		// Valid
		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePropertyID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

// TestAllIDTypes_ConsistentBehavior ensures all ID types share identical
// parsing behavior; inconsistent validation across ID types would let a
// malformed id through one boundary but not another.
func TestAllIDTypes_ConsistentBehavior(t *testing.T) {
	validUUID := uuid.New().String()
	invalidInputs := []string{"", "invalid", uuid.Nil.String()}

	t.Run("all accept valid UUID", func(t *testing.T) {
		_, errProperty := ParsePropertyID(validUUID)
		_, errGroup := ParseGroupID(validUUID)
		_, errListing := ParseListingID(validUUID)
		_, errEvent := ParseEventID(validUUID)
		_, errReview := ParseReviewID(validUUID)

		require.NoError(t, errProperty)
		require.NoError(t, errGroup)
		require.NoError(t, errListing)
		require.NoError(t, errEvent)
		require.NoError(t, errReview)
	})

	for _, input := range invalidInputs {
		t.Run("all reject: "+input, func(t *testing.T) {
			_, errProperty := ParsePropertyID(input)
			_, errGroup := ParseGroupID(input)
			_, errListing := ParseListingID(input)
			_, errEvent := ParseEventID(input)
			_, errReview := ParseReviewID(input)

			require.Error(t, errProperty)
			require.Error(t, errGroup)
			require.Error(t, errListing)
			require.Error(t, errEvent)
			require.Error(t, errReview)
		})
	}
}

// TestIDTextRoundTrip ensures ids survive text marshalling, which is what
// JSON responses and SQL scans rely on.
func TestIDTextRoundTrip(t *testing.T) {
	original := NewPropertyID()

	text, err := original.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, original.String(), string(text))

	var decoded PropertyID
	require.NoError(t, decoded.UnmarshalText(text))
	assert.Equal(t, original, decoded)
}
