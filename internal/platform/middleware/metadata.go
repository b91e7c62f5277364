package middleware

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"platbook/pkg/requestcontext"
)

// ClientMetadata extracts the client IP and a compact User-Agent summary and
// adds them to the context. The journal records both per intake so collector
// traffic can be traced back to a scraper build.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIPFromRequest(r)
		ua := summarizeUserAgent(r.Header.Get("User-Agent"))
		ctx := requestcontext.WithClientMetadata(r.Context(), ip, ua)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// summarizeUserAgent collapses a raw User-Agent into "name/version" (or the
// bot name). Collector SDKs send strings like "zillow-agent/2.3.1"; browser
// strings from the review UI get folded the same way.
func summarizeUserAgent(raw string) string {
	if raw == "" {
		return ""
	}
	ua := useragent.New(raw)
	if ua.Bot() {
		if name, _ := ua.Browser(); name != "" {
			return name
		}
		return "bot"
	}
	name, version := ua.Browser()
	if name == "" {
		// Non-browser clients keep their first token verbatim.
		if idx := strings.IndexByte(raw, ' '); idx > 0 {
			return raw[:idx]
		}
		return raw
	}
	if version == "" {
		return name
	}
	return name + "/" + version
}

// ClientIPFromRequest extracts the real client IP from the request, handling proxies and load balancers.
func ClientIPFromRequest(r *http.Request) string {
	// Check X-Forwarded-For header first (standard for proxied requests)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// X-Forwarded-For can contain multiple IPs (client, proxy1, proxy2, ...)
		// Take the first IP which is the original client
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	// Check X-Real-IP header (used by nginx and other proxies)
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// Fall back to RemoteAddr (direct connection)
	// RemoteAddr is in format "ip:port", so we need to strip the port
	if addr := r.RemoteAddr; addr != "" {
		// For IPv6, format is [::1]:port
		// For IPv4, format is 127.0.0.1:port
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return addr[:idx]
		}
		return addr
	}

	return "unknown"
}
