package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"finos/internal/backend"
	"finos/internal/cache"
	"finos/internal/cli"
	"finos/internal/core"
	apphttp "finos/internal/http"
	"finos/internal/ingest"
	"finos/internal/log"
	"finos/internal/metrics"
	promcollector "finos/internal/metrics/prometheus"
	"finos/internal/services"
	"finos/internal/storage"
	"finos/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig(slog.Default())
	logger := cli.SetupLogger(cfg.LogLevel, cfg.LogFormat)
	boot := logger.WithComponent(log.ComponentApp)
	startCtx := context.Background()

	repo := cli.InitSQLite(logger.Logger, cfg.SQLiteDBPath)
	defer func() {
		if err := repo.Close(); err != nil {
			boot.Error("Failed to close SQLite repository", log.FieldError, err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := promcollector.NewCollector("finos")
	if err := collector.Register(registry); err != nil {
		boot.Error("Failed to register metrics", log.FieldError, err)
		os.Exit(1)
	}

	ingestClient, err := ingest.NewClient(ingest.Config{
		BaseURL:     cfg.IngestBaseURL,
		Timeout:     cfg.IngestTimeout,
		MaxFailures: uint32(cfg.BreakerMaxFailures),
		OpenTimeout: cfg.BreakerOpenTimeout,
	}, collector)
	if err != nil {
		boot.Error("Failed to create ingest client", log.FieldError, err, "base_url", cfg.IngestBaseURL)
		os.Exit(1)
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		boot.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	factory := backend.NewFactory(logger.Logger)
	syncBackend, err := factory.CreateSyncBackend(startCtx, backendCfg, ingestClient)
	if err != nil {
		boot.Error("Failed to initialize sync backend", log.FieldError, err)
		os.Exit(1)
	}

	controller := services.NewSyncController(syncBackend.Trigger, nil, repo, metrics.SyncObserver{Collector: collector})

	conv := core.NewConverter()
	svcCfg := services.DefaultReceiptServiceConfig()
	svcCfg.FallbackOwner = cfg.FallbackOwner
	receipts := services.NewReceiptService(ingestClient, ingestClient, controller, repo, conv, svcCfg)
	receipts.DashboardCache().OnLookup(collector.RecordDashboard)

	caches := cache.NewManager()
	caches.Register(receipts.DashboardCache())
	caches.StartCleanup(5 * time.Minute)

	if cfg.Account != "" {
		prev, err := repo.LoadSyncStatus(startCtx, cfg.Account)
		switch {
		case err == nil:
			boot.Info("Previous sync status", log.FieldAccount, cfg.Account,
				log.FieldSyncState, prev.State, "message", prev.Message)
		case !errors.Is(err, storage.ErrNotFound):
			boot.Warn("Failed to load previous sync status", log.FieldAccount, cfg.Account, log.FieldError, err)
		}
	}
	receipts.SetAccount(startCtx, cfg.Account, cfg.ProfileLastSynced)

	exporter := factory.CreateExporter(startCtx, backendCfg, conv)

	refresher := worker.NewRefreshWorker(receipts, receipts.Account, syncBackend.Events, collector,
		worker.RefreshWorkerConfig{Interval: cfg.RefreshInterval})

	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		metricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Options{
		Receipts:        receipts,
		Sync:            controller,
		Exporter:        exporter,
		Converter:       conv,
		DisplayCurrency: cfg.DisplayCurrency,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		Metrics:         metricsHandler,
		Ready:           repo.Ping,
		Logger:          logger,
	})
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 90 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger.Logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			boot.Error("Server shutdown error", log.FieldError, err)
		}
		if err := refresher.Stop(shutdownCtx); err != nil {
			boot.Warn("Refresh worker stop error", log.FieldError, err)
		}
		caches.Stop()
		if syncBackend.Cleanup != nil {
			if err := syncBackend.Cleanup(); err != nil {
				boot.Warn("Sync backend cleanup error", log.FieldError, err)
			}
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		boot.Info("Starting finos server", "port", cfg.Port, log.FieldAccount, cfg.Account,
			"sync_trigger", cfg.SyncTrigger, "display_currency", cfg.DisplayCurrency)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := refresher.Start(gctx); err != nil {
			return fmt.Errorf("start refresh worker: %w", err)
		}
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		boot.Error("finos stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	<-done
	boot.Info("Server stopped gracefully")
}
