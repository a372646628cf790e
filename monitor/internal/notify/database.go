package notify

import (
	"context"

	"github.com/healthwatch/healthwatch/pkg/types"
)

// AlertWriter persists alerts keyed by id. *store.Store implements it.
type AlertWriter interface {
	UpsertAlert(ctx context.Context, a types.Alert) error
}

// DatabaseHandler records every alert, fired or resolved, in the alert store.
type DatabaseHandler struct {
	w AlertWriter
}

// NewDatabaseHandler returns a handler writing through w.
func NewDatabaseHandler(w AlertWriter) *DatabaseHandler {
	return &DatabaseHandler{w: w}
}

func (h *DatabaseHandler) Name() string { return "database" }

// ShouldHandle accepts all severities.
func (h *DatabaseHandler) ShouldHandle(types.Alert) bool { return true }

func (h *DatabaseHandler) Handle(ctx context.Context, a types.Alert) error {
	return h.w.UpsertAlert(ctx, a)
}
