package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dvloznov/finance-ledger/internal/app"
	"github.com/dvloznov/finance-ledger/internal/config"
	"github.com/dvloznov/finance-ledger/internal/jobs"
	"github.com/dvloznov/finance-ledger/internal/logger"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "", "path to config.toml (or set LEDGER_CONFIG)")
	users := flag.String("users", os.Getenv("LEDGER_USERS"), "comma-separated user IDs whose sessions are swept")
	interval := flag.Duration("interval", time.Hour, "time between sweeps")
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.NewFromConfig(cfg.Log.Level, cfg.Log.Format, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	userIDs := splitUsers(*users)
	if len(userIDs) == 0 {
		log.Fatal().Msg("No users to sweep, set -users or LEDGER_USERS")
	}

	// Create context that cancels on interrupt
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize ledger services")
	}
	if err := a.StartWorkers(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	log.Info().
		Strs("users", userIDs).
		Dur("interval", *interval).
		Msg("Session repair worker started")

	run := func() {
		n, err := sweep(ctx, a, userIDs, log)
		if err != nil {
			log.Error().Err(err).Msg("Sweep finished with errors")
		}
		log.Info().Int("queued", n).Msg("Sweep queued repair jobs")
	}

	run()
	if !*once {
		ticker := time.NewTicker(*interval)
		defer ticker.Stop()
	loop:
		for {
			select {
			case <-ticker.C:
				run()
			case <-ctx.Done():
				break loop
			}
		}
	}

	log.Info().Msg("Shutting down worker service...")

	// Stop the queue and wait for in-flight jobs
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if *once {
		waitIdle(shutdownCtx, a)
	}
	if err := a.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	log.Info().Msg("Worker service exited")
}

// sweep queues a background repair job for every session of every user.
// It returns the number of jobs queued.
func sweep(ctx context.Context, a *app.App, userIDs []string, log zerolog.Logger) (int, error) {
	publisher := jobs.NewRepairPublisher(a.Queue, a.Config.Jobs.MaxRetries)
	queued := 0
	for _, userID := range userIDs {
		list, err := a.Ledger.List(ctx, userID)
		if err != nil {
			return queued, fmt.Errorf("sweep: listing sessions of %s: %w", userID, err)
		}
		for _, sess := range list {
			if err := publisher.PublishSweep(ctx, userID, sess.ID); err != nil {
				return queued, fmt.Errorf("sweep: %w", err)
			}
			queued++
		}
		log.Debug().Str("user_id", userID).Int("sessions", len(list)).Msg("Queued user sessions")
	}
	return queued, nil
}

// waitIdle blocks until no job is pending, running or retrying.
func waitIdle(ctx context.Context, a *app.App) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if idle(ctx, a) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func idle(ctx context.Context, a *app.App) bool {
	for _, status := range []jobs.JobStatus{jobs.JobStatusPending, jobs.JobStatusRunning, jobs.JobStatusRetrying} {
		list, err := a.JobStore.ListJobs(ctx, jobs.JobFilter{Status: status, Limit: 1})
		if err != nil || len(list) > 0 {
			return false
		}
	}
	return true
}

func splitUsers(s string) []string {
	var out []string
	for _, u := range strings.Split(s, ",") {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}
