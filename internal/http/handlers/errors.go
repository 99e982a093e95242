package handlers

import (
	"net/http"

	"github.com/wandersure/wandersure-api/internal/errs"
)

// APIError is the wire shape for a failed request. Status travels out of
// band so the JSON body serializes exactly as documented.
type APIError struct {
	Status          int    `json:"-"`
	Title           string `json:"title"`
	Detail          string `json:"detail"`
	Kind            string `json:"kind,omitempty"`
	SuggestedAction string `json:"suggested_action,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Detail
}

// GetStatus implements huma.StatusError.
func (e *APIError) GetStatus() int {
	return e.Status
}

// NewAPIError converts a core error into the transport shape. The error's
// kind picks the status code and the suggested recovery action; unkinded
// errors surface as 500 runtime.
func NewAPIError(err error) *APIError {
	kind := errs.KindOf(err)
	status := kind.HTTPStatus()
	return &APIError{
		Status:          status,
		Title:           http.StatusText(status),
		Detail:          err.Error(),
		Kind:            string(kind),
		SuggestedAction: kind.SuggestedAction(),
	}
}

// errServiceUnavailable reports a component whose backing store or API was
// not configured at startup.
func errServiceUnavailable(component string) *APIError {
	return NewAPIError(errs.Newf(errs.KindUnavailable, "%s is not configured", component))
}
