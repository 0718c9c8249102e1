// Package main implements the NexusKit daemon: the event-ingestion and
// resilience core of the Amadeus enrichment platform. It subscribes to the
// Nexus event bus, routes enrichment events through registered handlers,
// batches detected patterns and feeds them to the pattern orchestrator.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/amadeus-ai/nexuskit/batcher"
	"github.com/amadeus-ai/nexuskit/config"
	"github.com/amadeus-ai/nexuskit/enrichment"
	"github.com/amadeus-ai/nexuskit/errors"
	"github.com/amadeus-ai/nexuskit/fallback"
	"github.com/amadeus-ai/nexuskit/health"
	"github.com/amadeus-ai/nexuskit/inference"
	"github.com/amadeus-ai/nexuskit/metric"
	"github.com/amadeus-ai/nexuskit/natsbus"
	"github.com/amadeus-ai/nexuskit/orchestrator"
	"github.com/amadeus-ai/nexuskit/storage"
	"github.com/amadeus-ai/nexuskit/stream"
)

const (
	Version = "0.1.0"
	appName = "nexuskit"

	// patternPrefix marks events carrying detected pattern records.
	patternPrefix = "pattern."

	monitorTimeout  = 30 * time.Second
	shutdownTimeout = 30 * time.Second
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("daemon failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return err
	}
	if cliCfg.LogLevel != "" {
		cfg.Log.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Log.Format = cliCfg.LogFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cliCfg.Validate {
		fmt.Println("configuration is valid")
		return nil
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	logger.Info("starting nexuskit",
		"config_path", cliCfg.ConfigPath,
		"queue_capacity", cfg.Stream.QueueCapacity,
		"workers", cfg.Stream.WorkerCount,
	)

	ctx := context.Background()

	// Metrics and health surface
	registry := metric.NewRegistry()
	core := registry.Core()
	monitor := health.NewMonitor()
	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		metricsSrv = serveMetrics(cfg.Metrics.Addr, registry, monitor, logger)
	}

	// Storage
	store, err := storage.NewSQLiteStore(cfg.Storage.Path, storage.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	// Event bus
	bus := natsbus.NewClient(cfg.Bus.URL,
		natsbus.WithName(cfg.Bus.Name),
		natsbus.WithTimeout(cfg.Bus.ConnectTimeout),
		natsbus.WithLogger(logger),
		natsbus.WithMetrics(core),
	)
	connectCtx, cancelConnect := context.WithTimeout(ctx, cfg.Bus.ConnectTimeout)
	err = bus.Connect(connectCtx)
	cancelConnect()
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
		if err := bus.Close(closeCtx); err != nil {
			logger.Warn("bus close", "error", err)
		}
	}()

	// Inference adapters
	models := inference.NewRegistry()
	if cfg.Inference.Enabled {
		adapterOpts := []inference.OpenAIOption{inference.WithOpenAILogger(logger)}
		if cfg.Inference.Model != "" {
			adapterOpts = append(adapterOpts, inference.WithModel(cfg.Inference.Model))
		}
		if cfg.Inference.BaseURL != "" {
			adapterOpts = append(adapterOpts, inference.WithBaseURL(cfg.Inference.BaseURL))
		}
		if err := models.Register(cfg.Inference.Adapter,
			inference.NewOpenAIClient(cfg.Inference.APIKey, adapterOpts...)); err != nil {
			return err
		}
	}

	// Orchestration
	campaigns := orchestrator.NewCampaignManager()
	for _, c := range cfg.Orchestrator.Campaigns {
		campaigns.Register(c.ID, c.Goal, c.Budget)
	}
	kpis := orchestrator.NewKPICollector(cfg.Orchestrator.KPIWindow)
	orch := orchestrator.New(store, campaigns,
		orchestrator.WithLogger(logger),
		orchestrator.WithKPICollector(kpis),
		orchestrator.WithAnomalyTokenCost(cfg.Orchestrator.AnomalyTokenCost),
		orchestrator.WithFallbackOptions(
			fallback.WithMaxRetries(cfg.Fallback.MaxRetries),
			fallback.WithBackoffFactor(cfg.Fallback.BackoffFactor),
			fallback.WithInitialDelay(cfg.Fallback.InitialDelay),
			fallback.WithMetrics(core),
		),
	)

	patterns := batcher.New(cfg.Batcher.Size, cfg.Batcher.Interval,
		func(batch []orchestrator.Pattern) {
			monitorCtx, cancel := context.WithTimeout(ctx, monitorTimeout)
			defer cancel()
			if _, err := orch.Monitor(monitorCtx, batch); err != nil {
				logger.Error("pattern batch processing", "error", err)
			}
		},
		batcher.WithLogger[orchestrator.Pattern](logger),
		batcher.WithMetrics[orchestrator.Pattern](core),
	)
	if err := patterns.Start(ctx); err != nil {
		return err
	}

	// Stream pipeline
	client, err := stream.NewClient(bus,
		stream.WithQueueCapacity(cfg.Stream.QueueCapacity),
		stream.WithPopTimeout(cfg.Stream.PopTimeout),
		stream.WithSummaryLogging(cfg.Stream.SummaryInterval),
		stream.WithLogger(logger),
		stream.WithMetrics(core),
		stream.WithQueueMetrics(registry),
	)
	if err != nil {
		return err
	}

	dispatcher := enrichment.NewDispatcher(client, enrichment.WithLogger(logger))
	if cfg.Inference.Enabled {
		for _, prefix := range cfg.Enrichment.Prefixes {
			if err := dispatcher.Register(prefix,
				enrichment.AIHandler(models, cfg.Inference.Adapter)); err != nil {
				return err
			}
		}
	}

	handler := func(ctx context.Context, event stream.Event) error {
		if strings.HasPrefix(event.Type, patternPrefix) {
			var pattern orchestrator.Pattern
			if err := json.Unmarshal(event.Payload, &pattern); err != nil {
				return errors.WrapInvalid(err, "main", "handler", "decode pattern event")
			}
			patterns.Add(pattern)
			return nil
		}
		return dispatcher.Handle(ctx, event)
	}

	filter := stream.Filter{EventTypes: cfg.Stream.EventTypes}
	if err := client.Subscribe(ctx, filter, handler, cfg.Stream.WorkerCount); err != nil {
		return err
	}

	registerProbes(monitor, bus, client, store)

	// Run until interrupted.
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()
	logger.Info("shutdown signal received")

	// Drain in pipeline order: stop accepting events, flush the batch
	// buffer, persist the final KPI report, then tear down transports.
	client.Stop()
	if err := patterns.Stop(); err != nil {
		logger.Warn("batcher stop", "error", err)
	}

	persistCtx, cancelPersist := context.WithTimeout(ctx, shutdownTimeout)
	if err := kpis.Persist(persistCtx, store); err != nil {
		logger.Warn("kpi report persistence", "error", err)
	}
	cancelPersist()

	if metricsSrv != nil {
		srvCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := metricsSrv.Shutdown(srvCtx); err != nil {
			logger.Warn("metrics server shutdown", "error", err)
		}
		cancel()
	}

	logger.Info("nexuskit stopped")
	return nil
}

// registerProbes wires the liveness probes evaluated by /healthz.
func registerProbes(monitor *health.Monitor, bus *natsbus.Client, client *stream.Client, store storage.MetadataStore) {
	monitor.Register("bus", func() health.Status {
		if !bus.Connected() {
			return health.NewUnhealthy("bus", "not connected")
		}
		return health.NewHealthy("bus", "connected")
	})

	monitor.Register("queue", func() health.Status {
		stats := client.QueueStats()
		if stats.DropRate > 0.5 {
			return health.NewDegraded("queue", "dropping more than half of incoming events")
		}
		return health.NewHealthy("queue", "")
	})

	monitor.Register("storage", func() health.Status {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := store.GetMetadata(ctx, "healthcheck"); err != nil {
			return health.NewUnhealthy("storage", "query failed")
		}
		return health.NewHealthy("storage", "")
	})
}

// serveMetrics exposes the prometheus registry on /metrics and the health
// report on /healthz.
func serveMetrics(addr string, registry *metric.Registry, monitor *health.Monitor, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", registry.Handler())
	mux.Handle("/healthz", monitor.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics endpoint listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}
