// Package app wires configuration into the ledger services shared by the
// API server, the CLI and the repair worker.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dvloznov/finance-ledger/internal/categorize"
	"github.com/dvloznov/finance-ledger/internal/config"
	"github.com/dvloznov/finance-ledger/internal/gcsuploader"
	infraBQ "github.com/dvloznov/finance-ledger/internal/infra/bigquery"
	"github.com/dvloznov/finance-ledger/internal/jobs"
	"github.com/dvloznov/finance-ledger/internal/jobs/inmemory"
	"github.com/dvloznov/finance-ledger/internal/parsers"
	"github.com/dvloznov/finance-ledger/internal/pipeline"
	"github.com/dvloznov/finance-ledger/internal/reconcile"
	"github.com/dvloznov/finance-ledger/internal/sessions"
	"github.com/dvloznov/finance-ledger/internal/store"
	"github.com/dvloznov/finance-ledger/internal/store/memory"
	"github.com/dvloznov/finance-ledger/internal/store/sqlite"
	"github.com/rs/zerolog"
)

// App holds the long-lived services.
type App struct {
	Config    config.Config
	Log       zerolog.Logger
	Store     store.Store
	Rules     *categorize.Categorizer
	Parser    *parsers.Service
	Ledger    *sessions.Ledger
	Committer *pipeline.Committer
	JobStore  *inmemory.Store
	Queue     *inmemory.Queue
	Imports   *reconcile.Registry
	Storage   gcsuploader.StorageService
}

// OpenStore opens the configured backend.
func OpenStore(ctx context.Context, cfg config.StorageConfig) (store.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return memory.NewStore(), nil
	case config.BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("OpenStore: creating data directory: %w", err)
		}
		return sqlite.Open(cfg.SQLitePath)
	case config.BackendBigQuery:
		return infraBQ.NewStore(ctx, infraBQ.Dataset{
			ProjectID: cfg.BigQueryProject,
			DatasetID: cfg.BigQueryDataset,
		})
	}
	return nil, fmt.Errorf("OpenStore: unknown backend %q", cfg.Backend)
}

// New builds every service from cfg. The repair queue is created but not
// started; call StartWorkers.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger) (*App, error) {
	st, err := OpenStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	rules, err := categorize.Default()
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("New: loading category rules: %w", err)
	}

	var suggester categorize.Suggester
	if cfg.LLM.Enabled {
		if key := cfg.LLM.APIKey(); key != "" {
			g, err := categorize.NewGeminiSuggester(ctx, rules, key, cfg.LLM.Model, log)
			if err != nil {
				log.Warn().Err(err).Msg("Gemini suggestions disabled")
			} else {
				suggester = g
			}
		} else {
			log.Warn().Str("env", cfg.LLM.APIKeyEnv).Msg("LLM enabled but no API key set, using rules only")
		}
	}

	a := &App{
		Config:   cfg,
		Log:      log,
		Store:    st,
		Rules:    rules,
		Parser:   parsers.NewService(rules, suggester, log),
		Ledger:   sessions.NewLedger(st, log, sessions.WithEmptySessionGrace(cfg.Jobs.EmptySessionGrace)),
		JobStore: inmemory.NewStore(),
		Storage:  gcsuploader.NewGCSStorageService(),
	}
	a.Queue = inmemory.NewQueue(cfg.Jobs.Buffer, a.JobStore,
		inmemory.WithWorkers(cfg.Jobs.Workers),
		inmemory.WithMaxRetries(cfg.Jobs.MaxRetries),
	)
	a.Committer = pipeline.NewCommitter(a.Ledger, st, pipeline.NewValidator(rules),
		jobs.NewRepairPublisher(a.Queue, cfg.Jobs.MaxRetries), log)

	deps := reconcile.Deps{
		Parser:       a.Parser,
		Committer:    a.Committer,
		Transactions: st,
		Tagger:       rules,
		Log:          log,
	}
	if cfg.GCS.Bucket != "" {
		deps.Archiver = gcsuploader.NewStatementArchive(a.Storage, cfg.GCS.Bucket)
	} else {
		log.Info().Msg("No GCS bucket configured, statements will not be archived")
	}
	a.Imports = reconcile.NewRegistry(deps)

	log.Info().
		Str("backend", cfg.Storage.Backend).
		Bool("llm", suggester != nil).
		Bool("archive", deps.Archiver != nil).
		Msg("Ledger services ready")
	return a, nil
}

// StartWorkers starts consuming repair jobs until ctx is cancelled.
func (a *App) StartWorkers(ctx context.Context) error {
	return a.Queue.Start(ctx, jobs.RepairHandler(a.Ledger, a.Log))
}

// Close drains the queue and closes the store.
func (a *App) Close(ctx context.Context) error {
	qerr := a.Queue.Stop(ctx)
	return errors.Join(qerr, a.Store.Close())
}
