package notify

import (
	"context"

	"github.com/healthwatch/healthwatch/pkg/types"
)

// Handler delivers alerts through one channel.
type Handler interface {
	// Name identifies the handler in logs and metrics.
	Name() string
	// ShouldHandle reports whether the handler accepts a.
	ShouldHandle(a types.Alert) bool
	// Handle delivers a. Errors are logged by the Manager.
	Handle(ctx context.Context, a types.Alert) error
}

// Recorder observes dispatch outcomes. The telemetry package implements it.
type Recorder interface {
	HandlerResult(handler string, err error)
	QueueDropped()
}

type nopRecorder struct{}

func (nopRecorder) HandlerResult(string, error) {}
func (nopRecorder) QueueDropped()               {}

// acceptsSeverity is the shared ShouldHandle predicate for handlers that only
// care about a fixed set of severities.
func acceptsSeverity(a types.Alert, allowed ...types.Severity) bool {
	for _, s := range allowed {
		if a.Severity == s {
			return true
		}
	}
	return false
}
