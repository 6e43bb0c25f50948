package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dvloznov/finance-ledger/internal/api/handlers"
	"github.com/dvloznov/finance-ledger/internal/api/middleware"
	"github.com/dvloznov/finance-ledger/internal/app"
	"github.com/dvloznov/finance-ledger/internal/config"
	"github.com/dvloznov/finance-ledger/internal/logger"
)

// importTTL is how long an untouched import stays open.
const importTTL = 24 * time.Hour

func main() {
	// Parse command-line flags
	var (
		configPath = flag.String("config", "", "path to config.toml (or set LEDGER_CONFIG)")
		port       = flag.Int("port", 0, "HTTP server port (overrides server.port)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot := logger.New()
		boot.Fatal().Err(err).Msg("Failed to load config")
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	log, err := logger.NewFromConfig(cfg.Log.Level, cfg.Log.Format, os.Stdout)
	if err != nil {
		boot := logger.New()
		boot.Fatal().Err(err).Msg("Failed to create logger")
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise services")
	}

	// Start repair workers in background
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()
	if err := a.StartWorkers(workerCtx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start repair workers")
	}

	// Drop abandoned imports
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case now := <-ticker.C:
				if n := a.Imports.Prune(now.Add(-importTTL)); n > 0 {
					log.Info().Int("pruned", n).Msg("Pruned abandoned imports")
				}
			}
		}
	}()

	// Initialize handlers
	h := &handlers.Handlers{
		Accounts:     handlers.NewAccountsHandler(a.Store, log),
		Transactions: handlers.NewTransactionsHandler(a.Store, a.Ledger, log),
		Sessions:     handlers.NewSessionsHandler(a.Store, a.Store, a.Ledger, a.Queue, log),
		Imports:      handlers.NewImportsHandler(a.Imports, log),
		Categories:   handlers.NewCategoriesHandler(a.Rules),
		Jobs:         handlers.NewJobsHandler(a.JobStore, log),
	}

	mux := http.NewServeMux()
	h.Register(mux)

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(
					middleware.Auth(mux),
				),
			),
		),
	)

	addr := ":" + strconv.Itoa(cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", addr).Str("backend", cfg.Storage.Backend).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop accepting jobs, wait for in-flight repairs, close the store
	if err := a.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}
