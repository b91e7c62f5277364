package collector

import (
	"context"
	"strings"

	"platbook/internal/policy"
	id "platbook/pkg/domain"
	dErrors "platbook/pkg/domain-errors"
	"platbook/pkg/secrets"
)

// Registry authenticates scraping collectors. Keys take the form
// "<platform>.<secret>"; the platform prefix selects the bcrypt hash so each
// request costs exactly one verification.
type Registry struct {
	hashes map[id.Platform]string
}

func NewRegistry(collectors []policy.Collector) (*Registry, error) {
	hashes := make(map[id.Platform]string, len(collectors))
	for _, c := range collectors {
		platform, err := id.ParsePlatform(c.Platform)
		if err != nil {
			return nil, err
		}
		if _, exists := hashes[platform]; exists {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "duplicate collector platform: "+c.Platform)
		}
		hashes[platform] = c.KeyHash
	}
	return &Registry{hashes: hashes}, nil
}

// AuthenticateKey resolves an API key to its platform. Unknown platforms and
// wrong secrets return the same error so callers cannot probe which platforms
// are registered.
func (r *Registry) AuthenticateKey(ctx context.Context, key string) (id.Platform, error) {
	prefix, secret, ok := strings.Cut(key, ".")
	if !ok || prefix == "" || secret == "" {
		return "", errInvalidKey()
	}

	platform, err := id.ParsePlatform(prefix)
	if err != nil {
		return "", errInvalidKey()
	}

	hash, registered := r.hashes[platform]
	if !registered {
		return "", errInvalidKey()
	}
	if err := secrets.Verify(secret, hash); err != nil {
		return "", errInvalidKey()
	}
	return platform, nil
}

func errInvalidKey() error {
	return dErrors.New(dErrors.CodeUnauthorized, "invalid collector key")
}
