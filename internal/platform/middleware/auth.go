package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	id "platbook/pkg/domain"
	"platbook/pkg/platform/sentinel"
	"platbook/pkg/requestcontext"
)

// CollectorAuthenticator resolves a collector API key to its platform.
type CollectorAuthenticator interface {
	AuthenticateKey(ctx context.Context, key string) (id.Platform, error)
}

// ReviewerClaims represents the claims we expect from the reviewer token
// validator.
type ReviewerClaims struct {
	Subject string
	Role    string
}

// ReviewerValidator defines the interface for validating reviewer tokens.
type ReviewerValidator interface {
	ValidateToken(tokenString string) (*ReviewerClaims, error)
}

const bearerPrefix = "Bearer "

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}

// RequireCollector authenticates collector requests by API key and stores
// the resolved platform in the request context.
func RequireCollector(auth CollectorAuthenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix)
			if !ok || key == "" {
				logger.WarnContext(ctx, "collector request without credentials",
					"request_id", requestcontext.RequestID(ctx),
					"path", r.URL.Path,
				)
				writeUnauthorized(w, "Missing or invalid Authorization header")
				return
			}

			platform, err := auth.AuthenticateKey(ctx, key)
			if err != nil {
				logger.WarnContext(ctx, "collector key rejected",
					"request_id", requestcontext.RequestID(ctx),
					"remote_ip", requestcontext.ClientIP(ctx),
					"error", err,
				)
				writeUnauthorized(w, "Invalid collector key")
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithPlatform(ctx, platform)))
		})
	}
}

// RequireReviewer authenticates manual-review endpoints with a reviewer JWT
// and stores the reviewer subject in the request context.
func RequireReviewer(validator ReviewerValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix)
			if !ok || token == "" {
				writeUnauthorized(w, "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "reviewer token rejected",
					"request_id", requestcontext.RequestID(ctx),
					"error", err,
				)
				if errors.Is(err, sentinel.ErrExpired) {
					writeUnauthorized(w, "Token expired")
					return
				}
				writeUnauthorized(w, "Invalid token")
				return
			}
			if claims.Role != "reviewer" {
				writeUnauthorized(w, "Token lacks reviewer role")
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithReviewer(ctx, claims.Subject)))
		})
	}
}

// RequireAdmin gates operational endpoints behind a shared token. An empty
// configured token disables the endpoints rather than leaving them open.
func RequireAdmin(token string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if token == "" {
				logger.WarnContext(ctx, "admin endpoint hit with no admin token configured",
					"path", r.URL.Path,
				)
				writeUnauthorized(w, "Admin access not configured")
				return
			}

			presented, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix)
			if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				logger.WarnContext(ctx, "admin token rejected",
					"request_id", requestcontext.RequestID(ctx),
					"remote_ip", requestcontext.ClientIP(ctx),
				)
				writeUnauthorized(w, "Invalid admin token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
