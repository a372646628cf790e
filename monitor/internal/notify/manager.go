package notify

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/healthwatch/healthwatch/pkg/types"
)

const (
	// DefaultBufferSize is the queue capacity between the tick and dispatch.
	DefaultBufferSize = 256
	// DefaultDispatchTimeout bounds one HandleAlert call.
	DefaultDispatchTimeout = 30 * time.Second
)

// Option configures a Manager.
type Option func(*Manager)

// WithBufferSize sets the queue capacity. Values below 1 are ignored.
func WithBufferSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.buf = make(chan types.Alert, n)
		}
	}
}

// WithDispatchTimeout bounds each dispatch. Values <= 0 are ignored.
func WithDispatchTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithRecorder attaches a dispatch outcome recorder.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) {
		if r != nil {
			m.rec = r
		}
	}
}

// Manager dispatches alerts to its handlers.
type Manager struct {
	handlers []Handler
	buf      chan types.Alert
	timeout  time.Duration
	rec      Recorder
}

// NewManager creates a Manager. Handlers are consulted in the given order;
// the set is fixed for the Manager's lifetime.
func NewManager(handlers []Handler, opts ...Option) *Manager {
	hs := make([]Handler, len(handlers))
	copy(hs, handlers)
	m := &Manager{
		handlers: hs,
		buf:      make(chan types.Alert, DefaultBufferSize),
		timeout:  DefaultDispatchTimeout,
		rec:      nopRecorder{},
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Handlers returns the registered handler names in order.
func (m *Manager) Handlers() []string {
	names := make([]string, len(m.handlers))
	for i, h := range m.handlers {
		names[i] = h.Name()
	}
	return names
}

// Enqueue hands a transition to the dispatch queue without blocking.
// If the queue is full the oldest pending alert is evicted.
func (m *Manager) Enqueue(tr types.Transition) {
	select {
	case m.buf <- tr.Alert:
		return
	default:
	}
	select {
	case old := <-m.buf:
		m.rec.QueueDropped()
		slog.Warn("notify: queue full, evicted oldest alert",
			"evicted", old.ID,
			"buffer_cap", cap(m.buf),
		)
	default:
	}
	select {
	case m.buf <- tr.Alert:
	default:
		m.rec.QueueDropped()
		slog.Warn("notify: queue full, dropped alert", "id", tr.Alert.ID, "kind", tr.Kind)
	}
}

// Run drains the queue, dispatching alerts one at a time in arrival order.
// When ctx is cancelled, alerts already queued are still dispatched before
// Run returns.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			m.drain(ctx)
			return
		case a := <-m.buf:
			m.dispatch(ctx, a)
		}
	}
}

func (m *Manager) drain(ctx context.Context) {
	for {
		select {
		case a := <-m.buf:
			m.dispatch(ctx, a)
		default:
			return
		}
	}
}

// dispatch runs HandleAlert on a context detached from ctx's cancellation so
// an in-flight delivery is allowed to finish during shutdown.
func (m *Manager) dispatch(ctx context.Context, a types.Alert) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	defer cancel()
	m.HandleAlert(dctx, a)
}

// HandleAlert runs every handler that accepts a concurrently and returns once
// all of them have finished. Handler failures are logged, never returned.
func (m *Manager) HandleAlert(ctx context.Context, a types.Alert) {
	var g errgroup.Group
	selected := 0
	for _, h := range m.handlers {
		if !h.ShouldHandle(a) {
			continue
		}
		selected++
		g.Go(func() error {
			err := m.invoke(ctx, h, a)
			m.rec.HandlerResult(h.Name(), err)
			if err != nil {
				slog.Error("notify: handler failed",
					"handler", h.Name(),
					"id", a.ID,
					"type", a.Type,
					"resolved", a.Resolved,
					"err", err,
				)
				return nil
			}
			slog.Debug("notify: delivered",
				"handler", h.Name(),
				"id", a.ID,
				"resolved", a.Resolved,
			)
			return nil
		})
	}
	_ = g.Wait()

	if selected == 0 {
		slog.Debug("notify: no handler accepted alert", "id", a.ID, "severity", a.Severity)
	}
}

// invoke calls h.Handle, converting a panic into an error so one broken
// handler cannot take down the dispatch loop.
func (m *Manager) invoke(ctx context.Context, h Handler, a types.Alert) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return h.Handle(ctx, a)
}
