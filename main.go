package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/speedrun-hq/rerunner/pkg/circuitbreaker"
	"github.com/speedrun-hq/rerunner/pkg/config"
	"github.com/speedrun-hq/rerunner/pkg/health"
	"github.com/speedrun-hq/rerunner/pkg/logger"
	"github.com/speedrun-hq/rerunner/pkg/marker"
	"github.com/speedrun-hq/rerunner/pkg/rescheduler"
)

func main() {
	// Load configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger := logger.NewStdLogger(cfg.LoggerConfig.Coloring, cfg.LoggerConfig.Level)

	store, closeStore, err := openMarkerStore(cfg.Markers)
	if err != nil {
		log.Fatalf("Failed to open marker store: %v", err)
	}
	defer closeStore()

	breakers := circuitbreaker.NewRegistry(
		cfg.CircuitBreaker.Enabled,
		cfg.CircuitBreaker.Threshold,
		cfg.CircuitBreaker.WindowDuration,
		cfg.CircuitBreaker.ResetTimeout,
		appLogger,
	)

	service, err := rescheduler.NewService(rescheduler.Options{
		Store:      store,
		Submitter:  rescheduler.NewHTTPSubmitter(cfg.SubmitURL),
		Policies:   cfg.PolicyFor,
		Breakers:   breakers,
		Logger:     appLogger,
		Capacity:   cfg.Queue.Capacity,
		MaxPerTick: cfg.Queue.MaxPerTick,
		Tick:       cfg.Queue.Tick,
	})
	if err != nil {
		log.Fatalf("Failed to create rescheduler service: %v", err)
	}

	// Set up context with cancellation on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		service.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return health.NewServer(cfg.MetricsPort, service, appLogger).Start(gctx)
	})

	appLogger.Info("Starting the rerunner service (%d job policies loaded)", len(cfg.Policies))
	if err := g.Wait(); err != nil {
		appLogger.Error("Rerunner stopped: %v", err)
		return
	}
	appLogger.Info("Received termination signal, shut down gracefully")
}

func openMarkerStore(cfg config.MarkerConfig) (marker.Store, func(), error) {
	if cfg.Store != config.MarkerStoreSQLite {
		return marker.NewMemoryStore(), func() {}, nil
	}

	store, err := marker.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { _ = store.Close() }, nil
}
