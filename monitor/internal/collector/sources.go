package collector

import (
	"context"
	"time"

	"github.com/healthwatch/healthwatch/monitor/internal/appstats"
	"github.com/healthwatch/healthwatch/monitor/internal/sources"
	"github.com/healthwatch/healthwatch/pkg/types"
)

// SystemSource reads host and process counters.
type SystemSource interface {
	Sample(ctx context.Context) (sources.SystemSample, error)
}

// DatabaseProber measures store connectivity with a trivial round trip and
// reports the number of open connections.
type DatabaseProber interface {
	Probe(ctx context.Context) (int, error)
}

// AppStats reads the application counters.
type AppStats interface {
	Stats() appstats.Stats
}

// QueueSource reports job queue depth from an external system.
type QueueSource interface {
	Depth(ctx context.Context) (sources.QueueDepth, error)
}

// SnapshotWriter persists snapshots.
type SnapshotWriter interface {
	InsertSnapshot(ctx context.Context, s types.Snapshot) error
}

// Evaluator is the rule engine.
type Evaluator interface {
	Evaluate(s types.Snapshot) []types.Transition
}

// Dispatcher accepts alert transitions for asynchronous delivery.
// Enqueue must not block.
type Dispatcher interface {
	Enqueue(tr types.Transition)
}

// Publisher is the real-time push channel.
type Publisher interface {
	PublishMetrics(s types.Snapshot)
	PublishAlert(tr types.Transition)
}

// Observer receives tick-level telemetry.
type Observer interface {
	ObserveSnapshot(s types.Snapshot)
	AlertTransition(tr types.Transition)
	TickDone(d time.Duration)
	TickSkipped()
	StoreError(op string)
}

type nopObserver struct{}

func (nopObserver) ObserveSnapshot(types.Snapshot)   {}
func (nopObserver) AlertTransition(types.Transition) {}
func (nopObserver) TickDone(time.Duration)           {}
func (nopObserver) TickSkipped()                     {}
func (nopObserver) StoreError(string)                {}

type nopPublisher struct{}

func (nopPublisher) PublishMetrics(types.Snapshot) {}
func (nopPublisher) PublishAlert(types.Transition) {}
