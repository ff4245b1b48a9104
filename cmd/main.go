package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/okian/drillbook/internal/adapters/catalog"
	"github.com/okian/drillbook/internal/adapters/http/api"
	feedbackbus "github.com/okian/drillbook/internal/adapters/mq/bus"
	app "github.com/okian/drillbook/internal/app"
	"github.com/okian/drillbook/internal/config"
	"github.com/okian/drillbook/internal/domain/model"
	"github.com/okian/drillbook/pkg/logger"
	"github.com/okian/drillbook/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second

	serviceMetricsInterval = 5 * time.Second
)

func main() {
	// Disable default Go metrics collection; the custom registry carries
	// only the service's own metrics.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	bus := feedbackbus.NewInMemoryBus(feedbackbus.WithBufferSize(cfg.BusBufferSize))
	defer func() { _ = bus.Close() }()

	source := catalog.NewMemorySource()
	seedCatalog(source)

	svc := app.New(
		app.WithLogger(log),
		app.WithSource(source),
		app.WithBus(bus),
		app.WithScope(catalog.Scope(cfg.Scope)),
		app.WithIdentityCacheSize(cfg.IdentityCacheSize),
		app.WithRefreshDebounce(time.Duration(cfg.RefreshDebounceMS)*time.Millisecond),
	)
	if err := svc.Start(ctx); err != nil {
		os.Stderr.WriteString("failed to start service: " + err.Error() + "\n")
		return
	}
	defer svc.Stop()

	// Start service metrics updater
	go startServiceMetricsUpdater(ctx, svc)

	mux := http.NewServeMux()
	apiServer := api.NewServer(svc, svc)
	apiServer.Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			os.Stderr.WriteString("HTTP server failed: " + err.Error() + "\n")
		}
	}()

	<-ctx.Done()
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
}

// seedCatalog loads a starter set of exercises so the server has data to
// serve before any upstream sync is wired in.
func seedCatalog(source *catalog.MemorySource) {
	source.SeedExercises([]model.Exercise{
		{ID: "ex-juggling", Title: "Juggling", Description: "Keep the ball up with alternating feet", VideoIdentity: "https://youtu.be/jg-101"},
		{ID: "ex-wall-pass", Title: "Wall Pass", Description: "One-touch passing against a rebound wall", VideoIdentity: "https://youtu.be/wp-201"},
		{ID: "ex-cone-dribble", Title: "Cone Dribble", Description: "Slalom through five cones at speed", VideoIdentity: "https://youtu.be/cd-301"},
	})
	source.SeedTasks([]model.Task{
		{ID: "t-juggling", Title: "Juggling", Description: "Keep the ball up with alternating feet", VideoIdentity: "https://youtu.be/jg-101"},
	})
	source.SeedLinks([]model.ExplicitLink{
		{TaskID: "t-juggling", ExerciseID: "ex-juggling"},
	})
}

// startServiceMetricsUpdater starts a background goroutine that refreshes
// service-level gauges from the service stats.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

// updateServiceMetrics pushes the current service stats into the gauges.
func updateServiceMetrics(svc *app.Service) {
	stats := svc.GetStats()

	if exercises, ok := stats["exercises"].(int); ok {
		metrics.UpdateExercisesTotal(exercises)
	}

	if overrides, ok := stats["overrides"].(int); ok {
		metrics.UpdateOverlaySize(overrides)
	}

	if pending, ok := stats["pendingRollbacks"].(int); ok {
		metrics.UpdatePendingRollbacks(pending)
	}

	if tracked, ok := stats["trackedIdentities"].(int64); ok {
		metrics.UpdateIdentitySize(tracked)
	}
}
