package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"tally/internal/api"
	"tally/internal/config"
	"tally/internal/events"
	"tally/internal/tables"
	"tally/internal/tables/google"
	"tally/internal/tables/memory"
	"tally/internal/tables/sqlite"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting tally-sync")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var backend tables.Tables
	switch cfg.SyncBackend {
	case "sheets":
		client, err := google.New(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleTransactionsSheet, cfg.GoogleTodosSheet)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets tables", "error", err, "spreadsheet_id", cfg.GoogleSpreadsheetID)
			os.Exit(1)
		}
		backend = client
		logger.Info("Initialized Google Sheets backend", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	case "memory":
		backend = memory.New()
		logger.Info("Initialized memory backend")
	default:
		db, err := sqlite.New(cfg.SQLiteDBPath)
		if err != nil {
			logger.Error("Failed to initialize SQLite tables", "error", err, "path", cfg.SQLiteDBPath)
			os.Exit(1)
		}
		defer db.Close()
		backend = db
		logger.Info("Initialized SQLite backend", "path", cfg.SQLiteDBPath)
	}

	// Mutation events are optional: without an AMQP URL the endpoint just
	// serves requests.
	opts := api.Options{Tables: backend, CORSOrigins: cfg.CORSOrigins}
	if cfg.AMQPURL != "" {
		publisher, err := events.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP publisher", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		opts.Events = publisher
		logger.Info("AMQP publisher initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	apiServer := api.NewServer(opts)

	srv := &http.Server{
		Addr:           ":" + cfg.SyncPort,
		Handler:        apiServer.Handler(),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 16, // 64KB
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting sync endpoint", "port", cfg.SyncPort, "backend", cfg.SyncBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Sync endpoint error", "error", err)
		os.Exit(1)
	}
	logger.Info("Sync endpoint stopped gracefully")
}
