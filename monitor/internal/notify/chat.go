package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/healthwatch/healthwatch/pkg/types"
)

// ChatHandler posts alerts to a Slack-compatible incoming webhook.
type ChatHandler struct {
	url    string
	client *http.Client
}

// NewChatHandler returns a handler posting to url.
func NewChatHandler(url string) *ChatHandler {
	return &ChatHandler{url: url, client: newHTTPClient()}
}

func (h *ChatHandler) Name() string { return "chat" }

// ShouldHandle accepts everything except info.
func (h *ChatHandler) ShouldHandle(a types.Alert) bool {
	return acceptsSeverity(a, types.SeverityWarning, types.SeverityError, types.SeverityCritical)
}

func (h *ChatHandler) Handle(ctx context.Context, a types.Alert) error {
	if err := postJSON(ctx, h.client, h.url, chatPayload(a), nil); err != nil {
		return fmt.Errorf("chat: %w", err)
	}
	return nil
}

type chatField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type chatAttachment struct {
	Fallback string      `json:"fallback"`
	Color    string      `json:"color"`
	Title    string      `json:"title"`
	Text     string      `json:"text"`
	Fields   []chatField `json:"fields"`
	Ts       int64       `json:"ts"`
}

type chatMessage struct {
	Text        string           `json:"text"`
	Attachments []chatAttachment `json:"attachments"`
}

func chatPayload(a types.Alert) chatMessage {
	status, color, ts := "FIRING", severityColor(a.Severity), a.Timestamp
	if a.Resolved {
		status, color = "RESOLVED", resolvedColor
		if a.ResolvedAt != nil {
			ts = *a.ResolvedAt
		}
	}
	headline := fmt.Sprintf("%s *%s* %s", severityLabel(a.Severity), status, a.Title)
	return chatMessage{
		Text: headline,
		Attachments: []chatAttachment{{
			Fallback: fmt.Sprintf("%s %s: %s", severityLabel(a.Severity), a.Title, a.Message),
			Color:    color,
			Title:    a.Title,
			Text:     a.Message,
			Fields: []chatField{
				{Title: "Type", Value: string(a.Type), Short: true},
				{Title: "Severity", Value: string(a.Severity), Short: true},
				{Title: "Status", Value: strings.ToLower(status), Short: true},
				{Title: "Alert ID", Value: a.ID, Short: true},
			},
			Ts: ts.Unix(),
		}},
	}
}

const resolvedColor = "#2EB67D"

func severityLabel(s types.Severity) string {
	return "[" + strings.ToUpper(string(s)) + "]"
}

func severityColor(s types.Severity) string {
	switch s {
	case types.SeverityCritical:
		return "#FF4F6A"
	case types.SeverityError:
		return "#FF7A45"
	case types.SeverityWarning:
		return "#FFAB40"
	default:
		return "#00D4FF"
	}
}
