package notify

import (
	"log/slog"

	"github.com/healthwatch/healthwatch/monitor/internal/config"
)

// BuildHandlers returns the handler set for cfg in registration order:
// database (always), then email, chat and webhook when configured.
// An unconfigured channel is skipped without error.
func BuildHandlers(cfg config.NotificationsConfig, db AlertWriter) []Handler {
	hs := []Handler{NewDatabaseHandler(db)}

	if cfg.Email.Enabled() {
		sender := SMTPSender{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password(),
		}
		hs = append(hs, NewEmailHandler(cfg.Email.From, cfg.Email.Recipients, sender))
	}
	if cfg.ChatWebhookURL != "" {
		hs = append(hs, NewChatHandler(cfg.ChatWebhookURL))
	}
	if len(cfg.WebhookURLs) > 0 {
		hs = append(hs, NewWebhookHandler(cfg.WebhookURLs, cfg.Source))
	}

	names := make([]string, len(hs))
	for i, h := range hs {
		names[i] = h.Name()
	}
	slog.Info("notify: handlers registered", "handlers", names)
	return hs
}
