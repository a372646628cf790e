package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/healthwatch/healthwatch/monitor/internal/config"
	"github.com/healthwatch/healthwatch/pkg/types"
)

type memWriter struct {
	mu   sync.Mutex
	rows map[string]types.Alert
}

func (w *memWriter) UpsertAlert(_ context.Context, a types.Alert) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.rows == nil {
		w.rows = make(map[string]types.Alert)
	}
	w.rows[a.ID] = a
	return nil
}

type fakeSender struct {
	mu    sync.Mutex
	calls int
	to    []string
	msg   string
	err   error
}

func (f *fakeSender) Send(_ context.Context, _ string, to []string, msg []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.to = to
	f.msg = string(msg)
	return f.err
}

func TestInfoAlert_EmailSkippedDatabaseRecords(t *testing.T) {
	db := &memWriter{}
	sender := &fakeSender{}
	email := NewEmailHandler("monitor@example.com", map[string]string{"critical": "oncall@example.com"}, sender)
	m := NewManager([]Handler{NewDatabaseHandler(db), email})

	a := testAlert("cache-miss-high-1", types.SeverityInfo)
	m.HandleAlert(context.Background(), a)

	if sender.calls != 0 {
		t.Errorf("sender calls: got %d, want 0", sender.calls)
	}
	if _, ok := db.rows[a.ID]; !ok {
		t.Error("database handler did not record the info alert")
	}
}

func TestEmailHandler_NoRecipientForSeverity(t *testing.T) {
	sender := &fakeSender{}
	h := NewEmailHandler("monitor@example.com", map[string]string{"critical": "oncall@example.com"}, sender)

	a := testAlert("error-rate-high-1", types.SeverityError)
	if !h.ShouldHandle(a) {
		t.Fatal("email handler should accept error alerts")
	}
	if err := h.Handle(context.Background(), a); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if sender.calls != 0 {
		t.Errorf("sender calls: got %d, want 0", sender.calls)
	}
}

func TestEmailHandler_Message(t *testing.T) {
	sender := &fakeSender{}
	h := NewEmailHandler("monitor@example.com", map[string]string{"critical": "oncall@example.com"}, sender)

	a := testAlert("db-connection-lost-1", types.SeverityCritical)
	a.Title = "Database connection lost"
	a.Metadata = map[string]any{"database": map[string]any{"connected": false}}
	if err := h.Handle(context.Background(), a); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if sender.calls != 1 {
		t.Fatalf("sender calls: got %d, want 1", sender.calls)
	}
	if len(sender.to) != 1 || sender.to[0] != "oncall@example.com" {
		t.Errorf("to: got %v", sender.to)
	}
	for _, want := range []string{
		"Subject: [CRITICAL] FIRING: Database connection lost",
		"X-Priority: 1",
		"Importance: high",
		"Content-Type: text/html",
		"db-connection-lost-1",
		"&#34;connected&#34;: false",
	} {
		if !strings.Contains(sender.msg, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestEmailHandler_RejectsHeaderInjection(t *testing.T) {
	sender := &fakeSender{}
	h := NewEmailHandler("monitor@example.com", map[string]string{"error": "ops@example.com"}, sender)

	a := testAlert("x", types.SeverityError)
	a.Title = "hi\r\nBcc: victim@example.com"
	if err := h.Handle(context.Background(), a); err == nil {
		t.Fatal("expected error for title with newline")
	}
	if sender.calls != 0 {
		t.Errorf("sender calls: got %d, want 0", sender.calls)
	}
}

func TestEmailHandler_SenderError(t *testing.T) {
	sender := &fakeSender{err: errors.New("connection refused")}
	h := NewEmailHandler("monitor@example.com", map[string]string{"error": "ops@example.com"}, sender)
	if err := h.Handle(context.Background(), testAlert("x", types.SeverityError)); err == nil {
		t.Fatal("expected sender error to propagate to the manager")
	}
}

func TestChatHandler(t *testing.T) {
	recv := make(chan chatMessage, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var m chatMessage
		if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
			t.Errorf("decode: %v", err)
		}
		recv <- m
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := NewChatHandler(srv.URL)
	if h.ShouldHandle(testAlert("i", types.SeverityInfo)) {
		t.Error("chat handler should reject info")
	}
	if !h.ShouldHandle(testAlert("w", types.SeverityWarning)) {
		t.Error("chat handler should accept warning")
	}

	if err := h.Handle(context.Background(), testAlert("cpu-high-1", types.SeverityWarning)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	got := <-recv
	if len(got.Attachments) != 1 {
		t.Fatalf("attachments: got %d, want 1", len(got.Attachments))
	}
	if got.Attachments[0].Color != "#FFAB40" {
		t.Errorf("color: got %q, want #FFAB40", got.Attachments[0].Color)
	}
	if !strings.Contains(got.Text, "[WARNING]") {
		t.Errorf("text: got %q", got.Text)
	}
}

func TestChatHandler_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewChatHandler(srv.URL).Handle(context.Background(), testAlert("x", types.SeverityError))
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadRequest {
		t.Fatalf("got %v, want StatusError 400", err)
	}
}

func TestWebhookHandler_PerURLFailureIsolated(t *testing.T) {
	type delivery struct {
		id      string
		payload WebhookPayload
	}
	var okHits atomic.Int64
	recv := make(chan delivery, 1)
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		okHits.Add(1)
		var d delivery
		d.id = r.Header.Get("X-Delivery-ID")
		_ = json.NewDecoder(r.Body).Decode(&d.payload)
		recv <- d
		w.WriteHeader(http.StatusAccepted)
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	h := NewWebhookHandler([]string{bad.URL, good.URL}, "healthwatch-test")
	a := testAlert("error-rate-high-1", types.SeverityError)
	resolvedAt := a.Timestamp.Add(time.Minute)
	a.Resolved, a.ResolvedAt = true, &resolvedAt

	if err := h.Handle(context.Background(), a); err == nil {
		t.Error("expected an error from the failing URL")
	}
	if got := okHits.Load(); got != 1 {
		t.Fatalf("good endpoint hits: got %d, want 1", got)
	}
	d := <-recv
	payload, deliveryID := d.payload, d.id
	if payload.ID != a.ID || payload.Source != "healthwatch-test" || !payload.Resolved {
		t.Errorf("payload: got %+v", payload)
	}
	if payload.ResolvedAt == nil || !payload.ResolvedAt.Equal(resolvedAt) {
		t.Errorf("resolvedAt: got %v, want %v", payload.ResolvedAt, resolvedAt)
	}
	if deliveryID == "" {
		t.Error("X-Delivery-ID header missing")
	}
}

func TestWebhookHandler_ShouldHandle(t *testing.T) {
	h := NewWebhookHandler([]string{"http://unused"}, "x")
	for sev, want := range map[types.Severity]bool{
		types.SeverityInfo:     false,
		types.SeverityWarning:  false,
		types.SeverityError:    true,
		types.SeverityCritical: true,
	} {
		if got := h.ShouldHandle(testAlert("x", sev)); got != want {
			t.Errorf("%s: got %v, want %v", sev, got, want)
		}
	}
}

func TestBuildHandlers(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.NotificationsConfig
		want []string
	}{
		{"database only", config.NotificationsConfig{}, []string{"database"}},
		{
			"all channels",
			config.NotificationsConfig{
				Email: config.EmailConfig{
					SMTPHost:   "smtp.example.com",
					SMTPPort:   587,
					From:       "monitor@example.com",
					Recipients: map[string]string{"critical": "oncall@example.com"},
				},
				ChatWebhookURL: "https://hooks.example.com/chat",
				WebhookURLs:    []string{"https://a.example.com", "https://b.example.com"},
			},
			[]string{"database", "email", "chat", "webhook"},
		},
		{
			"blank recipient disables email",
			config.NotificationsConfig{Email: config.EmailConfig{Recipients: map[string]string{"error": " "}}},
			[]string{"database"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			hs := BuildHandlers(tc.cfg, &memWriter{})
			got := NewManager(hs).Handlers()
			if strings.Join(got, ",") != strings.Join(tc.want, ",") {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}
