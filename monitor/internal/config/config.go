package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultInterval     = 30 * time.Second
	DefaultHTTPPort     = 8080
	DefaultDBPath       = "healthwatch.db"
	DefaultProbeTimeout = 5 * time.Second
	DefaultRetention    = 7 * 24 * time.Hour
	DefaultSMTPPort     = 587
	DefaultSource       = "healthwatch"
	DefaultDispatchBuf  = 256

	DefaultQueuePendingMetric = "job_queue_pending"
	DefaultQueueActiveMetric  = "job_queue_active"
)

// Environment variables that override file values.
const (
	EnvInterval      = "MONITOR_INTERVAL_MS"
	EnvEmailError    = "ALERT_EMAIL_ERROR"
	EnvEmailCritical = "ALERT_EMAIL_CRITICAL"
	EnvChatWebhook   = "CHAT_WEBHOOK_URL"
	EnvWebhookURLs   = "ALERT_WEBHOOK_URLS"
)

// Config is the full monitor configuration. Fields map 1:1 to config.example.yaml.
type Config struct {
	Monitor       MonitorConfig       `yaml:"monitor"`
	Database      DatabaseConfig      `yaml:"database"`
	Storage       StorageConfig       `yaml:"storage"`
	Queue         QueueConfig         `yaml:"queue"`
	Notifications NotificationsConfig `yaml:"notifications"`
}

// MonitorConfig holds scheduling and HTTP settings.
type MonitorConfig struct {
	// Interval is the collection tick period.
	Interval time.Duration `yaml:"interval"`

	// HTTPPort serves the read API, /metrics and the WebSocket stream.
	HTTPPort int `yaml:"http_port"`

	// Auth protects the read API.
	Auth AuthConfig `yaml:"auth"`

	// RateLimit is the allowed read API requests per second; 0 disables limiting.
	RateLimit float64 `yaml:"rate_limit"`

	// DispatchBuffer bounds the queue of transitions waiting for notification.
	DispatchBuffer int `yaml:"dispatch_buffer"`
}

// AuthConfig controls read API authentication.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header to read the key from. Defaults to "x-api-key".
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// DatabaseConfig locates the persistent store that is both probed and written.
type DatabaseConfig struct {
	// Path is the SQLite database file.
	Path string `yaml:"path"`

	// ProbeTimeout bounds the per-tick round-trip query.
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

// StorageConfig controls historical snapshot retention.
type StorageConfig struct {
	// Retention is how long system_metrics rows are kept.
	Retention time.Duration `yaml:"retention"`
}

// QueueConfig optionally points at a remote job queue's Prometheus endpoint.
// When Endpoint is empty the in-process queue counters are used.
type QueueConfig struct {
	Endpoint      string `yaml:"endpoint"`
	PendingMetric string `yaml:"pending_metric"`
	ActiveMetric  string `yaml:"active_metric"`
}

// NotificationsConfig configures the optional notification channels.
type NotificationsConfig struct {
	// Source is reported in generic webhook payloads.
	Source string `yaml:"source"`

	Email EmailConfig `yaml:"email"`

	// ChatWebhookURL enables the chat handler when non-empty.
	ChatWebhookURL string `yaml:"chat_webhook_url"`

	// WebhookURLs enables the generic webhook handler when non-empty.
	WebhookURLs []string `yaml:"webhook_urls"`
}

// EmailConfig configures SMTP delivery.
type EmailConfig struct {
	SMTPHost    string `yaml:"smtp_host"`
	SMTPPort    int    `yaml:"smtp_port"`
	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
	From        string `yaml:"from"`

	// Recipients maps a severity (error, critical) to a recipient address.
	Recipients map[string]string `yaml:"recipients"`
}

// Password returns the SMTP password resolved from the environment.
func (e EmailConfig) Password() string {
	if e.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(e.PasswordEnv)
}

// Enabled reports whether at least one recipient is configured.
func (e EmailConfig) Enabled() bool {
	for _, r := range e.Recipients {
		if strings.TrimSpace(r) != "" {
			return true
		}
	}
	return false
}

// Load reads the YAML config file at path, or uses defaults alone when path
// is empty, then applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Monitor: MonitorConfig{
			Interval:       DefaultInterval,
			HTTPPort:       DefaultHTTPPort,
			DispatchBuffer: DefaultDispatchBuf,
		},
		Database: DatabaseConfig{
			Path:         DefaultDBPath,
			ProbeTimeout: DefaultProbeTimeout,
		},
		Storage: StorageConfig{
			Retention: DefaultRetention,
		},
		Queue: QueueConfig{
			PendingMetric: DefaultQueuePendingMetric,
			ActiveMetric:  DefaultQueueActiveMetric,
		},
		Notifications: NotificationsConfig{
			Source: DefaultSource,
			Email: EmailConfig{
				SMTPPort: DefaultSMTPPort,
			},
		},
	}
}

// applyEnv overlays environment variables on top of file values.
func applyEnv(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv(EnvInterval)); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s=%q is not an integer", EnvInterval, v)
		}
		cfg.Monitor.Interval = time.Duration(ms) * time.Millisecond
	}

	for sev, env := range map[string]string{"error": EnvEmailError, "critical": EnvEmailCritical} {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			if cfg.Notifications.Email.Recipients == nil {
				cfg.Notifications.Email.Recipients = make(map[string]string)
			}
			cfg.Notifications.Email.Recipients[sev] = v
		}
	}

	if v := strings.TrimSpace(os.Getenv(EnvChatWebhook)); v != "" {
		cfg.Notifications.ChatWebhookURL = v
	}

	if v := os.Getenv(EnvWebhookURLs); strings.TrimSpace(v) != "" {
		cfg.Notifications.WebhookURLs = SplitURLs(v)
	}
	return nil
}

// SplitURLs parses a comma-separated URL list, dropping blanks.
func SplitURLs(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	if cfg.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor.interval must be positive")
	}
	if cfg.Monitor.HTTPPort < 0 || cfg.Monitor.HTTPPort > 65535 {
		return fmt.Errorf("monitor.http_port %d is out of range [0, 65535]", cfg.Monitor.HTTPPort)
	}
	if cfg.Monitor.RateLimit < 0 {
		return fmt.Errorf("monitor.rate_limit must not be negative")
	}
	if cfg.Monitor.DispatchBuffer <= 0 {
		return fmt.Errorf("monitor.dispatch_buffer must be positive")
	}
	switch cfg.Monitor.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("monitor.auth.mode %q unknown: want apikey|none", cfg.Monitor.Auth.Mode)
	}
	if cfg.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if cfg.Database.ProbeTimeout <= 0 {
		return fmt.Errorf("database.probe_timeout must be positive")
	}
	if cfg.Storage.Retention < 0 {
		return fmt.Errorf("storage.retention must not be negative")
	}
	for sev := range cfg.Notifications.Email.Recipients {
		switch sev {
		case "error", "critical":
		default:
			return fmt.Errorf("notifications.email.recipients: severity %q never reaches the email channel", sev)
		}
	}
	if cfg.Notifications.Email.Enabled() {
		if cfg.Notifications.Email.SMTPHost == "" {
			return fmt.Errorf("notifications.email.smtp_host is required when recipients are set")
		}
		if cfg.Notifications.Email.From == "" {
			return fmt.Errorf("notifications.email.from is required when recipients are set")
		}
	}
	return nil
}
