package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dvloznov/finance-ledger/internal/config"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/store/memory"
	"github.com/dvloznov/finance-ledger/internal/store/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(backend string) config.Config {
	return config.Config{
		Server:  config.ServerConfig{Port: 8080},
		Storage: config.StorageConfig{Backend: backend},
		Jobs:    config.JobsConfig{Buffer: 4, Workers: 1, MaxRetries: 1},
		UI:      config.UIConfig{Currency: "USD"},
	}
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	st, err := OpenStore(ctx, config.StorageConfig{Backend: config.BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, st)

	path := filepath.Join(t.TempDir(), "nested", "ledger.db")
	st, err = OpenStore(ctx, config.StorageConfig{Backend: config.BackendSQLite, SQLitePath: path})
	require.NoError(t, err)
	assert.IsType(t, &sqlite.Store{}, st)
	require.NoError(t, st.Close())

	_, err = OpenStore(ctx, config.StorageConfig{Backend: "postgres"})
	assert.Error(t, err)
}

func TestNewWiresImportsToStore(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(config.BackendMemory), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, a.StartWorkers(ctx))
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	wf := a.Imports.Start("u1")
	csv := "Date,Description,Type,Amount,Current balance,Status\n2024-01-05,TARGET 0042,Debit Card,-20.00,100,Posted\n"
	_, err = wf.Upload(ctx, "s.csv", []byte(csv), "auto")
	require.NoError(t, err)
	view, err := wf.Commit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, view.Committed)

	list, err := a.Ledger.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, domain.UploadBulk, list[0].UploadType)
}
