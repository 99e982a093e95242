package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf(t *testing.T) {
	if got := KindOf(nil); got != "" {
		t.Errorf("KindOf(nil) = %q, want empty", got)
	}
	if got := KindOf(errors.New("plain")); got != KindRuntime {
		t.Errorf("KindOf(plain) = %q, want %q", got, KindRuntime)
	}
	if got := KindOf(New(KindDuplicate, "already active")); got != KindDuplicate {
		t.Errorf("KindOf = %q, want %q", got, KindDuplicate)
	}

	// Kind survives wrapping with fmt.Errorf.
	wrapped := fmt.Errorf("outer: %w", New(KindNotFound, "no such record"))
	if got := KindOf(wrapped); got != KindNotFound {
		t.Errorf("KindOf(wrapped) = %q, want %q", got, KindNotFound)
	}
}

func TestErrorMessage(t *testing.T) {
	e := Wrap(KindUnavailable, "search backend", errors.New("connection refused"))
	if e.Error() != "search backend: connection refused" {
		t.Errorf("Error() = %q", e.Error())
	}
	if !errors.Is(e, e.Err) {
		t.Error("wrapped cause should be reachable via errors.Is")
	}

	bare := New(KindRuntime, "boom")
	if bare.Error() != "boom" {
		t.Errorf("Error() = %q, want %q", bare.Error(), "boom")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindInvalidArgument, http.StatusBadRequest},
		{KindDuplicate, http.StatusConflict},
		{KindNotFound, http.StatusNotFound},
		{KindPreconditionFailed, http.StatusPreconditionFailed},
		{KindUnavailable, http.StatusServiceUnavailable},
		{KindRuntime, http.StatusInternalServerError},
		{KindUnauthorized, http.StatusUnauthorized},
		{Kind("unknown"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := tt.kind.HTTPStatus(); got != tt.want {
			t.Errorf("HTTPStatus(%q) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestSuggestedAction(t *testing.T) {
	if got := KindUnavailable.SuggestedAction(); got != "retry" {
		t.Errorf("SuggestedAction(unavailable) = %q, want retry", got)
	}
	if got := KindInvalidArgument.SuggestedAction(); got != "use_different_input" {
		t.Errorf("SuggestedAction(invalid_argument) = %q, want use_different_input", got)
	}
	if got := KindRuntime.SuggestedAction(); got != "contact_support" {
		t.Errorf("SuggestedAction(runtime) = %q, want contact_support", got)
	}
}
