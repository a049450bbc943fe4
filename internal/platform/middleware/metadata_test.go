package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chromeOnMac = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func captureMetadata(t *testing.T, setup func(*http.Request)) ClientMetadata {
	t.Helper()
	var captured ClientMetadata
	handler := Metadata(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta, ok := MetadataFrom(r.Context())
		require.True(t, ok)
		captured = meta
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/files", nil)
	req.RemoteAddr = "192.0.2.10:53211"
	if setup != nil {
		setup(req)
	}
	handler.ServeHTTP(httptest.NewRecorder(), req)
	return captured
}

func TestMetadata_RemoteAddrFallback(t *testing.T) {
	meta := captureMetadata(t, nil)
	assert.Equal(t, "192.0.2.10", meta.IP)
}

func TestMetadata_ForwardedForWins(t *testing.T) {
	meta := captureMetadata(t, func(r *http.Request) {
		r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	})
	assert.Equal(t, "203.0.113.7", meta.IP)
}

func TestMetadata_RealIP(t *testing.T) {
	meta := captureMetadata(t, func(r *http.Request) {
		r.Header.Set("X-Real-IP", "198.51.100.4")
	})
	assert.Equal(t, "198.51.100.4", meta.IP)
}

func TestMetadata_DeviceName(t *testing.T) {
	meta := captureMetadata(t, func(r *http.Request) {
		r.Header.Set("User-Agent", chromeOnMac)
	})
	assert.Equal(t, chromeOnMac, meta.UserAgent)
	assert.Contains(t, meta.Device, "Chrome")
}

func TestMetadata_EmptyUserAgent(t *testing.T) {
	meta := captureMetadata(t, nil)
	assert.Empty(t, meta.Device)
}
