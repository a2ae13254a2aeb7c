package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tally/internal/amqp"
	"tally/internal/config"
	"tally/internal/export"
	applog "tally/internal/log"
	"tally/internal/storage"
	"tally/internal/worker"
)

func main() {
	_ = godotenv.Load()

	logCfg := applog.DefaultConfig()
	logCfg.Component = applog.ComponentWorker
	applog.SetDefault(applog.New(logCfg))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("configuration validation failed", "error", err)
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		slog.Error("AMQP_URL is required for the rollup worker")
		os.Exit(1)
	}

	repo, err := storage.New(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err, "path", cfg.DBPath)
		os.Exit(1)
	}
	defer repo.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var appender worker.ExpenseAppender
	if cfg.SheetsSpreadsheetID != "" {
		exporter, err := export.NewSheetsExporter(ctx, cfg.SheetsSpreadsheetID, cfg.SheetsSheetName)
		if err != nil {
			slog.Error("failed to initialize sheets exporter", "error", err)
			os.Exit(1)
		}
		appender = exporter
		slog.Info("sheets mirror enabled", "spreadsheet_id", cfg.SheetsSpreadsheetID, "sheet", cfg.SheetsSheetName)
	} else {
		slog.Info("sheets mirror disabled - no SHEETS_SPREADSHEET_ID provided")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		slog.Error("failed to connect to AMQP", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	w := worker.New(repo, appender, worker.Config{
		BatchSize:         cfg.RollupBatchSize,
		ReconcileInterval: cfg.ReconcileInterval,
	})
	if err := w.Start(ctx); err != nil {
		slog.Error("failed to start rollup worker", "error", err)
		os.Exit(1)
	}

	go func() {
		if err := amqpClient.ConsumeChanges(ctx, func(event *amqp.ChangeEvent) error {
			return w.HandleChange(ctx, event)
		}); err != nil {
			slog.Error("AMQP consumer stopped", "error", err)
			cancel()
		}
	}()

	slog.Info("rollup worker started",
		"queue", cfg.AMQPQueue,
		"reconcile_interval", cfg.ReconcileInterval.String())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := w.Stop(stopCtx); err != nil {
		slog.Error("rollup worker stop error", "error", err)
	}

	slog.Info("worker stopped")
}
