package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/healthwatch/healthwatch/pkg/types"
)

// WebhookPayload is the JSON document POSTed to generic webhooks.
type WebhookPayload struct {
	ID         string          `json:"id"`
	Type       types.AlertType `json:"type"`
	Severity   types.Severity  `json:"severity"`
	Title      string          `json:"title"`
	Message    string          `json:"message"`
	Metadata   any             `json:"metadata"`
	Timestamp  time.Time       `json:"timestamp"`
	Resolved   bool            `json:"resolved"`
	ResolvedAt *time.Time      `json:"resolvedAt"`
	Source     string          `json:"source"`
}

// WebhookHandler POSTs error and critical alerts to every configured URL.
type WebhookHandler struct {
	urls   []string
	source string
	client *http.Client
}

// NewWebhookHandler returns a handler for urls. source is reported in every
// payload.
func NewWebhookHandler(urls []string, source string) *WebhookHandler {
	us := make([]string, len(urls))
	copy(us, urls)
	return &WebhookHandler{urls: us, source: source, client: newHTTPClient()}
}

func (h *WebhookHandler) Name() string { return "webhook" }

// ShouldHandle accepts error and critical alerts.
func (h *WebhookHandler) ShouldHandle(a types.Alert) bool {
	return acceptsSeverity(a, types.SeverityError, types.SeverityCritical)
}

// Handle posts to all URLs in parallel. A failing URL is logged and does not
// affect the others; the first failure is returned.
func (h *WebhookHandler) Handle(ctx context.Context, a types.Alert) error {
	payload := WebhookPayload{
		ID:         a.ID,
		Type:       a.Type,
		Severity:   a.Severity,
		Title:      a.Title,
		Message:    a.Message,
		Metadata:   a.Metadata,
		Timestamp:  a.Timestamp,
		Resolved:   a.Resolved,
		ResolvedAt: a.ResolvedAt,
		Source:     h.source,
	}

	var g errgroup.Group
	for _, url := range h.urls {
		g.Go(func() error {
			hdr := http.Header{}
			hdr.Set("X-Delivery-ID", uuid.NewString())
			hdr.Set("X-Alert-ID", a.ID)
			if err := postJSON(ctx, h.client, url, payload, hdr); err != nil {
				slog.Warn("notify: webhook delivery failed", "url", url, "id", a.ID, "err", err)
				return fmt.Errorf("webhook %s: %w", url, err)
			}
			return nil
		})
	}
	return g.Wait()
}
