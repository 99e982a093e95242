package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
)

// LivezOutput represents liveness probe response.
type LivezOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// Livez reports process liveness. It never touches downstream stores, so a
// slow database cannot get the pod restarted.
func Livez(ctx context.Context, input *struct{}) (*LivezOutput, error) {
	out := &LivezOutput{}
	out.Body.Status = "ok"
	return out, nil
}

// DBPinger is the slice of *sql.DB the readiness probe needs.
type DBPinger interface {
	PingContext(ctx context.Context) error
}

// StorePinger reports whether the configured read stores are reachable.
type StorePinger interface {
	PingStores(ctx context.Context) error
}

// ReadyzOutput represents readiness probe response.
type ReadyzOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// ReadyzHandler checks backing stores for the readiness probe.
type ReadyzHandler struct {
	db     DBPinger
	stores StorePinger
}

// NewReadyzHandler creates a readiness handler. Either dependency may be
// nil; nil checks are skipped.
func NewReadyzHandler(db DBPinger, stores StorePinger) *ReadyzHandler {
	return &ReadyzHandler{db: db, stores: stores}
}

// Readyz reports readiness. The instance is ready when the payment database
// and every configured read store answer a ping.
func (h *ReadyzHandler) Readyz(ctx context.Context, input *struct{}) (*ReadyzOutput, error) {
	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			return nil, huma.Error503ServiceUnavailable("database not ready", err)
		}
	}
	if h.stores != nil {
		if err := h.stores.PingStores(ctx); err != nil {
			return nil, huma.Error503ServiceUnavailable("stores not ready", err)
		}
	}
	out := &ReadyzOutput{}
	out.Body.Status = "ok"
	return out, nil
}
