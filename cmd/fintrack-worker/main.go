package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/amqp"
	"fintrack/internal/backend"
	"fintrack/internal/cli"
	"fintrack/internal/log"
	"fintrack/internal/sheets"
	gsheet "fintrack/internal/sheets/google"
	sheetmem "fintrack/internal/sheets/memory"
	"fintrack/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger)

	logger.Info("Starting fintrack-worker")

	factory := backend.NewFactory(logger.WithComponent(log.ComponentBackend))
	result, err := factory.CreateStore(backend.Type(cfg.DataBackend), cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize storage backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	if result.Cleanup != nil {
		defer func() {
			if err := result.Cleanup(); err != nil {
				logger.Error("Storage cleanup failed", "error", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Without a spreadsheet target the worker still runs: entries land in an
	// in-memory ledger, which keeps local development broker-complete.
	var ledger sheets.LedgerAppender
	if cfg.HasSheetsExport() {
		client, err := gsheet.NewFromEnv(ctx)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		ledger = client
		logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		ledger = sheetmem.NewLedger()
		logger.Warn("No spreadsheet configured, exporting to in-memory ledger")
	}

	exportWorker := worker.NewExportWorker(result.Store, ledger, cfg.ExportBatchSize)

	g, ctx := errgroup.WithContext(ctx)

	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()

		g.Go(func() error {
			return amqpClient.ConsumeTransactionEvents(ctx, func(msg *amqp.TransactionEventMessage) error {
				return exportWorker.HandleEvent(ctx, msg)
			})
		})
	} else {
		logger.Warn("No AMQP URL configured, relying on the pending scan only")
	}

	g.Go(func() error {
		return exportWorker.RunPendingScan(ctx, cfg.ExportInterval)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}
