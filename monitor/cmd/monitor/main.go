package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/healthwatch/healthwatch/monitor/internal/alerts"
	"github.com/healthwatch/healthwatch/monitor/internal/api"
	"github.com/healthwatch/healthwatch/monitor/internal/appstats"
	"github.com/healthwatch/healthwatch/monitor/internal/collector"
	"github.com/healthwatch/healthwatch/monitor/internal/config"
	"github.com/healthwatch/healthwatch/monitor/internal/notify"
	"github.com/healthwatch/healthwatch/monitor/internal/sources"
	"github.com/healthwatch/healthwatch/monitor/internal/store"
	"github.com/healthwatch/healthwatch/monitor/internal/telemetry"
	"github.com/healthwatch/healthwatch/monitor/internal/ws"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "path to config file; empty uses defaults plus environment")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "invalid -log-level %q\n", *logLevel)
		os.Exit(2)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(*configPath); err != nil {
		slog.Error("monitor exited with error", "err", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	started := time.Now()
	slog.Info("healthwatch monitor starting", "config", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"interval", cfg.Monitor.Interval,
		"http_port", cfg.Monitor.HTTPPort,
		"auth_mode", cfg.Monitor.Auth.Mode,
		"db_path", cfg.Database.Path,
		"retention", cfg.Storage.Retention,
		"queue_endpoint", cfg.Queue.Endpoint,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Alert and snapshot store, also probed every tick.
	st, err := store.Open(ctx, cfg.Database.Path, cfg.Storage.Retention)
	if err != nil {
		return err
	}
	defer st.Close()
	go st.Run(ctx)

	// The rule engine starts with no active alerts, so anything still open
	// belongs to a previous run and would never be resolved.
	if n, err := st.ResolveStale(ctx, time.Now()); err != nil {
		slog.Warn("could not resolve alerts from a previous run", "err", err)
	} else if n > 0 {
		slog.Warn("resolved alerts left open by a previous run", "count", n)
	}

	metrics := telemetry.New()
	tracker := appstats.New()
	engine := alerts.New(nil)

	// Handler set is fixed for the lifetime of the process.
	manager := notify.NewManager(
		notify.BuildHandlers(cfg.Notifications, st),
		notify.WithBufferSize(cfg.Monitor.DispatchBuffer),
		notify.WithRecorder(metrics),
	)
	// The dispatcher outlives ctx so the collector's last tick can still
	// enqueue. It is cancelled once the collector has stopped.
	dispatchCtx, cancelDispatch := context.WithCancel(context.Background())
	defer cancelDispatch()
	dispatchDone := make(chan struct{})
	go func() {
		manager.Run(dispatchCtx)
		close(dispatchDone)
	}()

	hub := ws.New()
	go hub.Run(ctx)

	deps := collector.Deps{
		System:     sources.NewSystem(started),
		Database:   st,
		App:        tracker,
		Store:      st,
		Engine:     engine,
		Dispatcher: manager,
		Publisher:  hub,
		Observer:   metrics,
	}
	if cfg.Queue.Endpoint != "" {
		deps.Queue = sources.NewQueue(cfg.Queue.Endpoint, cfg.Queue.PendingMetric, cfg.Queue.ActiveMetric)
	}
	coll, err := collector.New(deps, cfg.Monitor.Interval, cfg.Database.ProbeTimeout)
	if err != nil {
		return err
	}
	collectDone := make(chan struct{})
	go func() {
		coll.Run(ctx)
		close(collectDone)
	}()

	// Only the tick interval is hot-reloadable.
	if configPath != "" {
		go func() {
			err := config.Watch(ctx, configPath, cfg, func(next *config.Config) {
				coll.UpdateInterval(next.Monitor.Interval)
			})
			if err != nil {
				slog.Warn("config watch disabled", "err", err)
			}
		}()
	}

	routes := api.New(api.Deps{
		Snapshots: coll,
		Alerts:    engine,
		Handlers:  manager.Handlers(),
		Metrics:   metrics.Handler(),
		Stream:    hub,
		Started:   started,
	})
	var handler http.Handler = routes
	handler = api.APIKey(cfg.Monitor.Auth.Mode, cfg.Monitor.Auth.EffectiveHeader(), cfg.Monitor.Auth.Key())(handler)
	handler = api.RateLimit(cfg.Monitor.RateLimit)(handler)
	handler = tracker.Middleware(handler)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Monitor.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Monitor.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("healthwatch monitor shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck

	if !drainPipeline(shutdownCtx, collectDone, cancelDispatch, dispatchDone) {
		slog.Warn("notification dispatch did not drain before shutdown timeout")
	}
	return nil
}

// drainPipeline waits for the collector to stop, then cancels the dispatcher
// and waits for it to flush its queue. It reports false if ctx expires first.
func drainPipeline(ctx context.Context, collectDone <-chan struct{}, cancelDispatch context.CancelFunc, dispatchDone <-chan struct{}) bool {
	select {
	case <-collectDone:
	case <-ctx.Done():
		return false
	}
	cancelDispatch()
	select {
	case <-dispatchDone:
		return true
	case <-ctx.Done():
		return false
	}
}
