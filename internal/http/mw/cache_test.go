package mw

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// ========================================
// Cache Header Tests
// ========================================

func TestCacheHeaders(t *testing.T) {
	cfg := DefaultCacheConfig()
	handler := CacheHeaders(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		method string
		path   string
		want   string
	}{
		{"health is publicly cacheable", http.MethodGet, "/api/v1/health", "public"},
		{"liveness probe never cached", http.MethodGet, "/healthz", "no-store"},
		{"readiness probe never cached", http.MethodGet, "/readyz", "no-store"},
		{"unmatched GET gets default", http.MethodGet, "/api/v1/memory/user_1", "private, no-cache"},
		{"POST is always no-store", http.MethodPost, "/api/v1/concept-search", "no-store"},
		{"webhook POST is no-store", http.MethodPost, "/webhook/stripe", "no-store"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			got := rec.Header().Get("Cache-Control")
			if !strings.HasPrefix(got, tt.want) {
				t.Errorf("Cache-Control = %q, want prefix %q", got, tt.want)
			}
		})
	}
}

func TestCacheHeaders_EmptyDefaultSetsNothing(t *testing.T) {
	handler := CacheHeaders(CacheConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Cache-Control"); got != "" {
		t.Errorf("Cache-Control = %q, want unset", got)
	}
}
