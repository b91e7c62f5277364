package collector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"platbook/internal/policy"
	id "platbook/pkg/domain"
	dErrors "platbook/pkg/domain-errors"
	"platbook/pkg/secrets"
)

func newTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()

	secret, err := secrets.Generate()
	require.NoError(t, err)
	hash, err := secrets.Hash(secret)
	require.NoError(t, err)

	reg, err := NewRegistry([]policy.Collector{
		{Platform: "crexi", KeyHash: hash},
	})
	require.NoError(t, err)
	return reg, secret
}

func TestRegistry_AuthenticateKey(t *testing.T) {
	reg, secret := newTestRegistry(t)
	ctx := context.Background()

	t.Run("valid key resolves platform", func(t *testing.T) {
		platform, err := reg.AuthenticateKey(ctx, "crexi."+secret)
		require.NoError(t, err)
		assert.Equal(t, id.PlatformCrexi, platform)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := reg.AuthenticateKey(ctx, "crexi.wrong")
		require.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("unregistered platform", func(t *testing.T) {
		_, err := reg.AuthenticateKey(ctx, "loopnet."+secret)
		require.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("malformed key", func(t *testing.T) {
		for _, key := range []string{"", "crexi", ".secret", "crexi."} {
			_, err := reg.AuthenticateKey(ctx, key)
			require.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized), "key %q", key)
		}
	})
}

func TestNewRegistry(t *testing.T) {
	t.Run("rejects duplicate platform", func(t *testing.T) {
		_, err := NewRegistry([]policy.Collector{
			{Platform: "crexi", KeyHash: "h1"},
			{Platform: "crexi", KeyHash: "h2"},
		})
		require.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects unparseable platform", func(t *testing.T) {
		_, err := NewRegistry([]policy.Collector{{Platform: "  ", KeyHash: "h"}})
		require.Error(t, err)
	})
}
