package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// clearEnv blanks every override so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvInterval, EnvEmailError, EnvEmailCritical, EnvChatWebhook, EnvWebhookURLs} {
		t.Setenv(k, "")
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Monitor.Interval != DefaultInterval {
		t.Errorf("interval: got %v, want %v", cfg.Monitor.Interval, DefaultInterval)
	}
	if cfg.Monitor.HTTPPort != DefaultHTTPPort {
		t.Errorf("http_port: got %d, want %d", cfg.Monitor.HTTPPort, DefaultHTTPPort)
	}
	if cfg.Database.ProbeTimeout != DefaultProbeTimeout {
		t.Errorf("probe_timeout: got %v, want %v", cfg.Database.ProbeTimeout, DefaultProbeTimeout)
	}
	if cfg.Storage.Retention != DefaultRetention {
		t.Errorf("retention: got %v, want %v", cfg.Storage.Retention, DefaultRetention)
	}
	if cfg.Notifications.Email.Enabled() {
		t.Error("email should be disabled without recipients")
	}
	if cfg.Notifications.ChatWebhookURL != "" || len(cfg.Notifications.WebhookURLs) != 0 {
		t.Error("chat and webhook channels should be unset by default")
	}
}

func TestLoad_FullFile(t *testing.T) {
	clearEnv(t)
	cfg := loadFromString(t, `
monitor:
  interval: 10s
  http_port: 9100
  auth:
    mode: apikey
    key_env: HW_KEY
database:
  path: /tmp/hw.db
  probe_timeout: 2s
queue:
  endpoint: http://queue:9090/metrics
notifications:
  email:
    smtp_host: smtp.example.com
    from: monitor@example.com
    recipients:
      critical: oncall@example.com
  chat_webhook_url: https://chat.example.com/hook
  webhook_urls:
    - https://a.example.com
    - https://b.example.com
`)
	if cfg.Monitor.Interval != 10*time.Second {
		t.Errorf("interval: got %v, want 10s", cfg.Monitor.Interval)
	}
	if cfg.Monitor.Auth.Mode != "apikey" {
		t.Errorf("auth.mode: got %q, want apikey", cfg.Monitor.Auth.Mode)
	}
	if cfg.Monitor.Auth.EffectiveHeader() != "x-api-key" {
		t.Errorf("auth header: got %q, want x-api-key", cfg.Monitor.Auth.EffectiveHeader())
	}
	if cfg.Queue.PendingMetric != DefaultQueuePendingMetric {
		t.Errorf("queue pending metric default lost: got %q", cfg.Queue.PendingMetric)
	}
	if cfg.Notifications.Email.SMTPPort != DefaultSMTPPort {
		t.Errorf("smtp_port: got %d, want %d", cfg.Notifications.Email.SMTPPort, DefaultSMTPPort)
	}
	if got := cfg.Notifications.Email.Recipients["critical"]; got != "oncall@example.com" {
		t.Errorf("critical recipient: got %q", got)
	}
	if len(cfg.Notifications.WebhookURLs) != 2 {
		t.Errorf("webhook_urls: got %d, want 2", len(cfg.Notifications.WebhookURLs))
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvInterval, "1500")
	t.Setenv(EnvEmailCritical, "pager@example.com")
	t.Setenv(EnvChatWebhook, "https://chat.example.com/env")
	t.Setenv(EnvWebhookURLs, "https://x.example.com, ,https://y.example.com")

	cfg := loadFromString(t, `
notifications:
  email:
    smtp_host: smtp.example.com
    from: monitor@example.com
`)
	if cfg.Monitor.Interval != 1500*time.Millisecond {
		t.Errorf("interval: got %v, want 1.5s", cfg.Monitor.Interval)
	}
	if got := cfg.Notifications.Email.Recipients["critical"]; got != "pager@example.com" {
		t.Errorf("critical recipient: got %q", got)
	}
	if cfg.Notifications.ChatWebhookURL != "https://chat.example.com/env" {
		t.Errorf("chat url: got %q", cfg.Notifications.ChatWebhookURL)
	}
	want := []string{"https://x.example.com", "https://y.example.com"}
	if len(cfg.Notifications.WebhookURLs) != len(want) {
		t.Fatalf("webhook urls: got %v, want %v", cfg.Notifications.WebhookURLs, want)
	}
	for i := range want {
		if cfg.Notifications.WebhookURLs[i] != want[i] {
			t.Errorf("webhook url[%d]: got %q, want %q", i, cfg.Notifications.WebhookURLs[i], want[i])
		}
	}
}

func TestLoad_BadIntervalEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvInterval, "soon")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for non-numeric interval, got nil")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"zero interval", "monitor:\n  interval: 0s\n"},
		{"bad port", "monitor:\n  http_port: 70000\n"},
		{"bad auth mode", "monitor:\n  auth:\n    mode: magic\n"},
		{"info recipient", "notifications:\n  email:\n    smtp_host: h\n    from: f@x\n    recipients:\n      info: a@x\n"},
		{"recipient without host", "notifications:\n  email:\n    from: f@x\n    recipients:\n      error: a@x\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			if _, err := loadStringErr(t, tc.yaml); err == nil {
				t.Fatal("expected validation error, got nil")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestAuthConfig_Key(t *testing.T) {
	t.Setenv("TEST_API_KEY", "supersecret")
	a := AuthConfig{Mode: "apikey", KeyEnv: "TEST_API_KEY"}
	if got := a.Key(); got != "supersecret" {
		t.Errorf("Key(): got %q, want %q", got, "supersecret")
	}
	if got := (AuthConfig{Mode: "apikey"}).Key(); got != "" {
		t.Errorf("Key() with no KeyEnv: got %q, want empty", got)
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("monitor:\n  interval: 30s\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	initial, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	got := make(chan *Config, 4)
	go func() {
		_ = Watch(ctx, path, initial, func(c *Config) { got <- c })
	}()

	// Rewrite until the watcher has registered; the gap exceeds the debounce.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(300 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case c := <-got:
			if c.Monitor.Interval != 5*time.Second {
				t.Fatalf("reloaded interval: got %v, want 5s", c.Monitor.Interval)
			}
			return
		case <-tick.C:
			_ = os.WriteFile(path, []byte("monitor:\n  interval: 5s\n"), 0o600)
		case <-deadline:
			t.Fatal("timed out waiting for reload")
		}
	}
}

func TestWatch_UnchangedContentIsIgnored(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte("monitor:\n  interval: 30s\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	initial, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 4)
	go func() {
		_ = Watch(ctx, path, initial, func(c *Config) { got <- c })
	}()

	time.Sleep(200 * time.Millisecond)
	for i := 0; i < 3; i++ {
		_ = os.WriteFile(path, body, 0o600)
		time.Sleep(20 * time.Millisecond)
	}

	select {
	case c := <-got:
		t.Fatalf("onChange called for identical content: interval %v", c.Monitor.Interval)
	case <-time.After(500 * time.Millisecond):
	}
}

// loadFromString writes yaml to a temp file and calls Load, failing on error.
func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := loadStringErr(t, content)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	return cfg
}

// loadStringErr writes yaml to a temp file and calls Load, returning any error.
func loadStringErr(t *testing.T, content string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return Load(path)
}
