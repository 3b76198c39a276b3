package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/backend"
	"fintrack/internal/cli"
	apphttp "fintrack/internal/http"
	"fintrack/internal/log"
	"fintrack/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

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
	store := result.Store

	// The AMQP broker is optional: without it mutations still commit, only
	// the export events are skipped and the worker's pending scan takes over.
	var events services.EventPublisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
		} else {
			defer amqpClient.Close()
			events = amqpClient
			logger.Info("Initialized AMQP client",
				"exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	ledger := services.NewLedgerService(store, events, services.BalanceStrategy(cfg.BalanceStrategy))
	dashboards := services.NewDashboardService(store, store)

	srv := apphttp.NewServer(":"+cfg.Port, logger.WithComponent(log.ComponentHTTP), apphttp.Dependencies{
		Ledger:     ledger,
		Users:      store,
		Reader:     store,
		Dashboards: dashboards,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	})

	logger.Info("Starting fintrack server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"balance_strategy", cfg.BalanceStrategy)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
