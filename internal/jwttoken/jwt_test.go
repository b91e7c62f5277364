package jwttoken

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "platbook/pkg/domain-errors"
	"platbook/pkg/platform/sentinel"
)

var testService = NewService("test-signing-key-at-least-32-bytes!", "platbook-test")

func Test_GenerateReviewerToken(t *testing.T) {
	t.Run("round trips subject and role", func(t *testing.T) {
		token, err := testService.GenerateReviewerToken("reviewer-1", time.Hour)
		require.NoError(t, err)
		require.NotEmpty(t, token)

		claims, err := testService.ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, "reviewer-1", claims.Subject)
		assert.Equal(t, "reviewer", claims.Role)
		assert.Equal(t, "platbook-test", claims.Issuer)
		assert.NotEmpty(t, claims.ID)
	})

	t.Run("rejects empty subject", func(t *testing.T) {
		_, err := testService.GenerateReviewerToken("", time.Hour)
		require.ErrorIs(t, err, dErrors.New(dErrors.CodeInvalidInput, "subject cannot be empty"))
	})
}

func Test_ValidateToken(t *testing.T) {
	t.Run("rejects garbage", func(t *testing.T) {
		_, err := testService.ValidateToken("not-a-token")
		require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "invalid token"))
	})

	t.Run("rejects expired token", func(t *testing.T) {
		token, err := testService.GenerateReviewerToken("reviewer-1", -time.Minute)
		require.NoError(t, err)

		_, err = testService.ValidateToken(token)
		require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "token has expired"))
		require.ErrorIs(t, err, sentinel.ErrExpired)
	})

	t.Run("rejects token signed with a different key", func(t *testing.T) {
		other := NewService("another-signing-key-also-32-bytes!!", "platbook-test")
		token, err := other.GenerateReviewerToken("reviewer-1", time.Hour)
		require.NoError(t, err)

		_, err = testService.ValidateToken(token)
		require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "invalid token"))
	})
}
