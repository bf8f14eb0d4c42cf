package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/couchcryptid/capacity-forecast-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/capacity-forecast-etl/internal/adapter/filestore"
	httpadapter "github.com/couchcryptid/capacity-forecast-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/capacity-forecast-etl/internal/adapter/kafka"
	"github.com/couchcryptid/capacity-forecast-etl/internal/config"
	"github.com/couchcryptid/capacity-forecast-etl/internal/domain"
	"github.com/couchcryptid/capacity-forecast-etl/internal/observability"
	"github.com/couchcryptid/capacity-forecast-etl/internal/pipeline"
	"github.com/couchcryptid/capacity-forecast-etl/internal/store"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	reports := filestore.NewReportStore(cfg.ReportsDir)
	incidents := filestore.NewIncidentStore(cfg.StatusesDir, cfg.ExcludedStatusYears, logger)
	transformer := pipeline.NewCachedTransformer(pipeline.NewTransformer(logger), cfg.ParseCacheSize, metrics)

	var loaders pipeline.MultiLoader
	if cfg.WantsFormat(config.FormatCSV) {
		loaders = append(loaders, csvfile.NewWriter(cfg.OutputDir, logger))
	}
	if cfg.WantsFormat(config.FormatParquet) {
		loaders = append(loaders, store.NewParquetStore(filepath.Join(cfg.OutputDir, "parquet"), logger))
	}

	var (
		closers []func() error
		history httpadapter.RunHistory
	)
	if cfg.LedgerPath != "" {
		ledger, err := store.NewLedger(cfg.LedgerPath)
		if err != nil {
			logger.Error("failed to open run ledger", "path", cfg.LedgerPath, "error", err)
			return 1
		}
		loaders = append(loaders, ledger)
		history = ledger
		closers = append(closers, ledger.Close)
		logger.Info("run ledger enabled", "path", cfg.LedgerPath)
	}
	if cfg.KafkaEnabled {
		writer := kafkaadapter.NewWriter(cfg, logger, metrics)
		loaders = append(loaders, writer)
		closers = append(closers, writer.Close)
		logger.Info("kafka sink enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaSinkTopic)
	}
	defer func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Error("close error", "error", err)
			}
		}
	}()

	p := pipeline.New(reports, incidents, transformer, loaders, logger, metrics, pipeline.Options{
		Workers:     cfg.ParseWorkers,
		RunInterval: cfg.RunInterval,
		Incidents:   domain.IncidentOptions{ExpandSpans: cfg.ExpandIncidentSpans},
		Clean: domain.CleanOptions{
			DropPrefixes: cfg.DropColumnPrefixes,
			Before:       cfg.EndDate,
		},
	})

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, history, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Run the pipeline in the foreground: once, or until a signal in interval mode.
	exitCode := 0
	if err := p.Run(ctx); err != nil {
		logger.Error("pipeline error", "error", err)
		exitCode = 1
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return exitCode
}
