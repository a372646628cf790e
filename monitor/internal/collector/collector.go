package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/healthwatch/healthwatch/pkg/types"
)

const (
	// DefaultInterval is the tick interval when none is configured.
	DefaultInterval = 30 * time.Second
	// DefaultProbeTimeout bounds the per-tick database probe.
	DefaultProbeTimeout = 5 * time.Second
)

// Deps are the collaborators of a Collector. System, Database, App, Engine
// and Dispatcher are required; the rest are optional.
type Deps struct {
	System     SystemSource
	Database   DatabaseProber
	App        AppStats
	Queue      QueueSource
	Store      SnapshotWriter
	Engine     Evaluator
	Dispatcher Dispatcher
	Publisher  Publisher
	Observer   Observer
}

func (d Deps) validate() error {
	var missing []error
	if d.System == nil {
		missing = append(missing, errors.New("system source"))
	}
	if d.Database == nil {
		missing = append(missing, errors.New("database prober"))
	}
	if d.App == nil {
		missing = append(missing, errors.New("app stats"))
	}
	if d.Engine == nil {
		missing = append(missing, errors.New("rule engine"))
	}
	if d.Dispatcher == nil {
		missing = append(missing, errors.New("dispatcher"))
	}
	if len(missing) > 0 {
		return fmt.Errorf("collector: missing dependencies: %w", errors.Join(missing...))
	}
	return nil
}

// Collector produces one Snapshot per tick and pushes it through the pipeline.
type Collector struct {
	deps         Deps
	probeTimeout time.Duration
	now          func() time.Time // injectable for deterministic tests

	busy   sync.Mutex // held for the duration of a tick
	latest atomic.Pointer[types.Snapshot]

	mu         sync.Mutex
	interval   time.Duration
	intervalCh chan time.Duration // signals Run to reset the ticker
}

// New creates a Collector. Non-positive durations select the defaults.
func New(deps Deps, interval, probeTimeout time.Duration) (*Collector, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if deps.Publisher == nil {
		deps.Publisher = nopPublisher{}
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if probeTimeout <= 0 {
		probeTimeout = DefaultProbeTimeout
	}
	return &Collector{
		deps:         deps,
		probeTimeout: probeTimeout,
		now:          time.Now,
		interval:     interval,
		intervalCh:   make(chan time.Duration, 1),
	}, nil
}

// Latest returns the most recent snapshot and whether one exists yet.
func (c *Collector) Latest() (types.Snapshot, bool) {
	p := c.latest.Load()
	if p == nil {
		return types.Snapshot{}, false
	}
	return *p, true
}

// Interval returns the current tick interval.
func (c *Collector) Interval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interval
}

// UpdateInterval changes the tick interval at runtime. Non-positive values
// are ignored.
func (c *Collector) UpdateInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	if c.interval == d {
		c.mu.Unlock()
		return
	}
	c.interval = d
	c.mu.Unlock()

	// Replace any pending update so the loop sees the latest value.
	select {
	case <-c.intervalCh:
	default:
	}
	select {
	case c.intervalCh <- d:
	default:
	}
	slog.Info("collector: interval updated", "interval", d)
}

// Run ticks once immediately, then every interval until ctx is cancelled.
func (c *Collector) Run(ctx context.Context) {
	ticker := time.NewTicker(c.Interval())
	defer ticker.Stop()

	slog.Info("collector: started", "interval", c.Interval())
	c.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("collector: stopped")
			return
		case d := <-c.intervalCh:
			ticker.Reset(d)
		case <-ticker.C:
			if ctx.Err() != nil {
				slog.Info("collector: stopped")
				return
			}
			c.Tick(ctx)
		}
	}
}

// Tick runs one collect, persist, publish, evaluate and dispatch cycle.
// If another tick is in progress it returns immediately. A tick whose ctx
// is cancelled before or during collection is dropped, since its sources
// report shutdown rather than the state of the system.
func (c *Collector) Tick(ctx context.Context) {
	if !c.busy.TryLock() {
		c.deps.Observer.TickSkipped()
		slog.Warn("collector: previous tick still running, skipping")
		return
	}
	defer c.busy.Unlock()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("collector: tick panicked",
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()

	if ctx.Err() != nil {
		return
	}
	start := c.now()
	snap := c.collect(ctx, start)
	if ctx.Err() != nil {
		slog.Info("collector: tick abandoned, shutting down")
		return
	}
	c.latest.Store(&snap)

	if c.deps.Store != nil {
		if err := c.deps.Store.InsertSnapshot(ctx, snap); err != nil {
			c.deps.Observer.StoreError("insert_snapshot")
			slog.Warn("collector: persist snapshot failed", "err", err)
		}
	}

	c.deps.Publisher.PublishMetrics(snap)
	c.deps.Observer.ObserveSnapshot(snap)

	for _, tr := range c.deps.Engine.Evaluate(snap) {
		c.deps.Dispatcher.Enqueue(tr)
		c.deps.Publisher.PublishAlert(tr)
		c.deps.Observer.AlertTransition(tr)
	}

	c.deps.Observer.TickDone(c.now().Sub(start))
}

// collect builds the normalized snapshot for one tick. Every source failure
// degrades the affected fields instead of failing the tick.
func (c *Collector) collect(ctx context.Context, ts time.Time) types.Snapshot {
	snap := types.Snapshot{Timestamp: ts}

	sys, err := c.deps.System.Sample(ctx)
	if err != nil {
		slog.Warn("collector: system sample incomplete", "err", err)
	}
	snap.CPU = sys.CPU
	snap.Memory = sys.Memory
	snap.Process = sys.Process

	st := c.deps.App.Stats()
	snap.Application = types.ApplicationStats{
		ActiveConnections: st.ActiveConnections,
		QueueSize:         st.QueueSize,
		ActiveJobs:        st.ActiveJobs,
		CacheHitRate:      st.CacheHitRate,
		ErrorRate:         st.ErrorRate,
	}

	if c.deps.Queue != nil {
		depth, err := c.deps.Queue.Depth(ctx)
		if err != nil {
			slog.Warn("collector: queue depth unavailable, using in-process counters", "err", err)
		} else {
			snap.Application.QueueSize = depth.Pending
			snap.Application.ActiveJobs = depth.Active
		}
	}

	snap.Database = c.probe(ctx)
	return snap.Normalize()
}

// probe times one database round trip bounded by the probe timeout. On
// failure the response time is the time until the failure.
func (c *Collector) probe(ctx context.Context) types.DatabaseStats {
	pctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	start := c.now()
	conns, err := c.deps.Database.Probe(pctx)
	rtt := c.now().Sub(start)

	ds := types.DatabaseStats{
		Connected:    err == nil,
		ResponseTime: float64(rtt) / float64(time.Millisecond),
	}
	if err != nil {
		slog.Warn("collector: database probe failed", "err", err, "elapsed", rtt)
		return ds
	}
	ds.ActiveConnections = conns
	return ds
}
