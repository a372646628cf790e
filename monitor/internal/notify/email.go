package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/healthwatch/healthwatch/pkg/types"
)

// Sender delivers a fully formed RFC 5322 message.
type Sender interface {
	Send(ctx context.Context, from string, to []string, msg []byte) error
}

// SMTPSender sends through an SMTP relay with optional PLAIN auth.
type SMTPSender struct {
	Host     string
	Port     int
	Username string
	Password string
}

// Send implements Sender. net/smtp has no context support, so ctx is only
// checked before dialing.
func (s SMTPSender) Send(ctx context.Context, from string, to []string, msg []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var auth smtp.Auth
	if s.Username != "" && s.Password != "" {
		auth = smtp.PlainAuth("", s.Username, s.Password, s.Host)
	}
	addr := net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	if err := smtp.SendMail(addr, auth, from, to, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// priority is the per-severity mail priority.
type priority struct {
	importance string // Importance header
	xPriority  int    // X-Priority header, 1 highest
}

var priorities = map[types.Severity]priority{
	types.SeverityCritical: {importance: "high", xPriority: 1},
	types.SeverityError:    {importance: "normal", xPriority: 3},
}

// EmailHandler mails error and critical alerts to the recipient configured
// for the alert's severity.
type EmailHandler struct {
	from       string
	recipients map[types.Severity]string
	sender     Sender
	now        func() time.Time
}

// NewEmailHandler returns a handler sending from the given address.
// recipients maps a severity name to one address.
func NewEmailHandler(from string, recipients map[string]string, sender Sender) *EmailHandler {
	rs := make(map[types.Severity]string, len(recipients))
	for sev, addr := range recipients {
		if addr = strings.TrimSpace(addr); addr != "" {
			rs[types.Severity(sev)] = addr
		}
	}
	return &EmailHandler{from: from, recipients: rs, sender: sender, now: time.Now}
}

func (h *EmailHandler) Name() string { return "email" }

// ShouldHandle accepts error and critical alerts.
func (h *EmailHandler) ShouldHandle(a types.Alert) bool {
	return acceptsSeverity(a, types.SeverityError, types.SeverityCritical)
}

// Handle sends the alert. Without a recipient for the severity it returns
// nil without touching the network.
func (h *EmailHandler) Handle(ctx context.Context, a types.Alert) error {
	to, ok := h.recipients[a.Severity]
	if !ok {
		return nil
	}
	msg, err := h.buildMessage(a, to)
	if err != nil {
		return fmt.Errorf("email: %w", err)
	}
	if err := h.sender.Send(ctx, h.from, []string{to}, msg); err != nil {
		return fmt.Errorf("email: %w", err)
	}
	return nil
}

func (h *EmailHandler) buildMessage(a types.Alert, to string) ([]byte, error) {
	from, err := sanitizeHeader("from address", h.from)
	if err != nil {
		return nil, err
	}
	rcpt, err := sanitizeHeader("recipient", to)
	if err != nil {
		return nil, err
	}
	title, err := sanitizeHeader("title", a.Title)
	if err != nil {
		return nil, err
	}

	status := "FIRING"
	if a.Resolved {
		status = "RESOLVED"
	}
	subject := fmt.Sprintf("%s %s: %s", severityLabel(a.Severity), status, title)

	body, err := renderEmailBody(a)
	if err != nil {
		return nil, err
	}

	p := priorities[a.Severity]
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", rcpt)
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	fmt.Fprintf(&buf, "Date: %s\r\n", h.now().UTC().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&buf, "X-Priority: %d\r\n", p.xPriority)
	fmt.Fprintf(&buf, "Importance: %s\r\n", p.importance)
	fmt.Fprintf(&buf, "X-Alert-ID: %s\r\n", a.ID)
	buf.WriteString("\r\n")
	buf.Write(body)
	return buf.Bytes(), nil
}

var emailTemplate = template.Must(template.New("alert").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif;">
  <h2 style="color: {{.Color}};">{{.Title}}</h2>
  <p>{{.Message}}</p>
  <table cellpadding="4">
    <tr><td><b>Type</b></td><td>{{.Type}}</td></tr>
    <tr><td><b>Severity</b></td><td>{{.Severity}}</td></tr>
    <tr><td><b>Status</b></td><td>{{.Status}}</td></tr>
    <tr><td><b>Fired at</b></td><td>{{.Timestamp}}</td></tr>
    {{- if .ResolvedAt}}
    <tr><td><b>Resolved at</b></td><td>{{.ResolvedAt}}</td></tr>
    {{- end}}
    <tr><td><b>Alert ID</b></td><td>{{.ID}}</td></tr>
  </table>
  <h3>Metadata</h3>
  <pre>{{.Metadata}}</pre>
</body>
</html>
`))

type emailView struct {
	ID, Type, Severity, Status string
	Title, Message, Color      string
	Timestamp, ResolvedAt      string
	Metadata                   string
}

func renderEmailBody(a types.Alert) ([]byte, error) {
	meta, err := json.MarshalIndent(a.Metadata, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	v := emailView{
		ID:        a.ID,
		Type:      string(a.Type),
		Severity:  string(a.Severity),
		Status:    "firing",
		Title:     a.Title,
		Message:   a.Message,
		Color:     severityColor(a.Severity),
		Timestamp: a.Timestamp.UTC().Format(time.RFC3339),
		Metadata:  string(meta),
	}
	if a.Resolved {
		v.Status = "resolved"
		if a.ResolvedAt != nil {
			v.ResolvedAt = a.ResolvedAt.UTC().Format(time.RFC3339)
		}
	}
	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, v); err != nil {
		return nil, fmt.Errorf("render body: %w", err)
	}
	return buf.Bytes(), nil
}

// sanitizeHeader rejects header values that could break out of the header.
func sanitizeHeader(field, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if strings.ContainsAny(trimmed, "\r\n") {
		return "", fmt.Errorf("%s contains newline characters", field)
	}
	return trimmed, nil
}
