package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/mssola/useragent"
)

type metadataKey struct{}

// ClientMetadata enriches audit events with where the request came from.
type ClientMetadata struct {
	IP        string
	UserAgent string
	Device    string // human-readable, e.g. "Chrome on macOS"
}

// MetadataFrom retrieves client metadata from the context.
func MetadataFrom(ctx context.Context) (ClientMetadata, bool) {
	meta, ok := ctx.Value(metadataKey{}).(ClientMetadata)
	return meta, ok
}

// Metadata extracts client IP and user agent once per request so downstream
// audit writers do not reparse headers.
func Metadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta := ClientMetadata{
			IP:        clientIP(r),
			UserAgent: r.UserAgent(),
			Device:    deviceName(r.UserAgent()),
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), metadataKey{}, meta)))
	})
}

// clientIP prefers the first X-Forwarded-For hop, set by the edge proxy.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if first, _, ok := strings.Cut(forwarded, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(forwarded)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// deviceName renders "Browser on OS" from the user agent string.
func deviceName(userAgentString string) string {
	if userAgentString == "" {
		return ""
	}

	ua := useragent.New(userAgentString)
	browser, _ := ua.Browser()
	os := ua.OSInfo().Name

	browser = strings.TrimSpace(browser)
	os = strings.TrimSpace(os)
	switch {
	case browser == "" && os == "":
		return ""
	case browser == "":
		return os
	case os == "":
		return browser
	}
	return browser + " on " + os
}
