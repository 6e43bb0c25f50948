package main

import (
	"context"
	"crypto/sha256"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/finance-ledger/internal/config"
	"github.com/dvloznov/finance-ledger/internal/logger"
	"github.com/dvloznov/finance-ledger/internal/store/sqlite"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
)

// Migration represents a single migration file
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// AppliedMigration represents a migration that has already been applied
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
	Checksum  string
	AppliedBy string
}

// filenamePattern matches migration files: 0001_name.sql
var filenamePattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

// target is the BigQuery dataset migrations run against.
type target struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	appliedBy string
}

func (t target) table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", t.projectID, t.datasetID, name)
}

func main() {
	var (
		configPath    = flag.String("config", "", "path to config.toml (or set LEDGER_CONFIG)")
		backend       = flag.String("backend", "", "sqlite or bigquery (default storage.backend)")
		projectID     = flag.String("project", "", "GCP project ID (default storage.bigquery_project)")
		datasetID     = flag.String("dataset", "", "BigQuery dataset ID (default storage.bigquery_dataset)")
		sqlitePath    = flag.String("sqlite", "", "SQLite database path (default storage.sqlite_path)")
		appliedBy     = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
		migrationsDir = flag.String("migrations", "migrations/bigquery", "Path to BigQuery migrations directory")
		dryRun        = flag.Bool("dry-run", false, "list pending migrations without applying them")
	)
	flag.Parse()

	log := logger.New()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if *backend == "" {
		*backend = cfg.Storage.Backend
	}

	switch *backend {
	case config.BackendSQLite:
		path := firstNonEmpty(*sqlitePath, cfg.Storage.SQLitePath)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			log.Fatal().Err(err).Msg("Failed to create data directory")
		}
		if err := sqlite.Migrate(path); err != nil {
			log.Fatal().Err(err).Str("path", path).Msg("SQLite migration failed")
		}
		log.Info().Str("path", path).Msg("SQLite schema is up to date")

	case config.BackendBigQuery:
		project := firstNonEmpty(*projectID, cfg.Storage.BigQueryProject)
		dataset := firstNonEmpty(*datasetID, cfg.Storage.BigQueryDataset)
		if project == "" {
			log.Fatal().Msg("Error: -project flag or storage.bigquery_project is required")
		}
		if err := migrateBigQuery(context.Background(), log, project, dataset, *appliedBy, *migrationsDir, *dryRun); err != nil {
			log.Fatal().Err(err).Msg("BigQuery migration failed")
		}

	default:
		log.Fatal().Str("backend", *backend).Msg("Nothing to migrate for this backend")
	}
}

func migrateBigQuery(ctx context.Context, log zerolog.Logger, projectID, datasetID, appliedBy, dir string, dryRun bool) error {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return fmt.Errorf("creating BigQuery client: %w", err)
	}
	defer client.Close()

	t := target{client: client, projectID: projectID, datasetID: datasetID, appliedBy: appliedBy}
	log.Info().Str("project", projectID).Str("dataset", datasetID).Msg("Connected to BigQuery")

	// Ensure schema_migrations table exists
	if err := t.ensureSchemaMigrationsTable(ctx); err != nil {
		return fmt.Errorf("ensuring schema_migrations table: %w", err)
	}

	migrations, err := readMigrations(resolveDir(dir), projectID, datasetID, log)
	if err != nil {
		return err
	}
	log.Info().Int("count", len(migrations)).Msg("Found migration files")

	applied, err := t.getAppliedMigrations(ctx)
	if err != nil {
		return err
	}
	log.Info().Int("count", len(applied)).Msg("Found applied migrations")

	pending, drifted := plan(migrations, applied)
	for _, m := range drifted {
		log.Warn().Int("version", m.Version).Str("name", m.Name).Msg("Applied migration file has changed since it ran")
	}

	for _, m := range pending {
		if dryRun {
			log.Info().Msgf("  [PENDING] %04d_%s", m.Version, m.Name)
			continue
		}
		log.Info().Msgf("  [RUN]  %04d_%s", m.Version, m.Name)
		if err := t.executeMigration(ctx, m); err != nil {
			return fmt.Errorf("executing %04d_%s: %w", m.Version, m.Name, err)
		}
		if err := t.recordMigration(ctx, m); err != nil {
			return fmt.Errorf("recording %04d_%s: %w", m.Version, m.Name, err)
		}
		log.Info().Msgf("  [OK]   %04d_%s", m.Version, m.Name)
	}

	switch {
	case len(pending) == 0:
		log.Info().Msg("No new migrations to apply. Database is up to date.")
	case dryRun:
		log.Info().Int("pending", len(pending)).Msg("Dry run, nothing applied")
	default:
		log.Info().Int("applied", len(pending)).Msg("Migrations applied")
	}
	return nil
}

// plan returns the migrations not yet applied, in version order, and the
// applied ones whose file checksum no longer matches.
func plan(migrations []Migration, applied []AppliedMigration) (pending, drifted []Migration) {
	byVersion := make(map[int]AppliedMigration, len(applied))
	for _, am := range applied {
		byVersion[am.Version] = am
	}
	for _, m := range migrations {
		am, ok := byVersion[m.Version]
		if !ok {
			pending = append(pending, m)
			continue
		}
		if am.Checksum != "" && am.Checksum != m.Checksum {
			drifted = append(drifted, m)
		}
	}
	return pending, drifted
}

// resolveDir falls back to the repository root when run from cmd/migrate.
func resolveDir(dir string) string {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if alt := filepath.Join("..", "..", dir); dirExists(alt) {
			return alt
		}
	}
	return dir
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// readMigrations reads all migration files from dir, substituting the
// project and dataset placeholders.
func readMigrations(dir, projectID, datasetID string, log zerolog.Logger) ([]Migration, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	var migrations []Migration
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		version, name, ok := parseFilename(file.Name())
		if !ok {
			log.Warn().Str("file", file.Name()).Msg("Skipping file with invalid format")
			continue
		}

		content, err := os.ReadFile(filepath.Join(dir, file.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading file %s: %w", file.Name(), err)
		}

		sql := string(content)
		sql = strings.ReplaceAll(sql, "{{PROJECT_ID}}", projectID)
		sql = strings.ReplaceAll(sql, "{{DATASET_ID}}", datasetID)

		// Checksum covers the file before substitution so the same migration
		// matches across projects.
		migrations = append(migrations, Migration{
			Version:  version,
			Name:     name,
			Filename: file.Name(),
			SQL:      sql,
			Checksum: checksum(content),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

func parseFilename(filename string) (int, string, bool) {
	matches := filenamePattern.FindStringSubmatch(filename)
	if matches == nil {
		return 0, "", false
	}
	version, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, "", false
	}
	return version, matches[2], true
}

func checksum(content []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(content))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// ensureSchemaMigrationsTable creates the schema_migrations table if it doesn't exist
func (t target) ensureSchemaMigrationsTable(ctx context.Context) error {
	return t.run(ctx, t.client.Query(`
		CREATE TABLE IF NOT EXISTS `+t.table("schema_migrations")+` (
			version       INT64 NOT NULL,
			name          STRING NOT NULL,
			applied_at    TIMESTAMP NOT NULL,
			checksum      STRING,
			applied_by    STRING
		)
	`))
}

// getAppliedMigrations retrieves the list of already applied migrations
func (t target) getAppliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	query := t.client.Query(`
		SELECT version, name, applied_at, checksum, applied_by
		FROM ` + t.table("schema_migrations") + `
		ORDER BY version ASC
	`)
	it, err := query.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}

	var applied []AppliedMigration
	for {
		var row struct {
			Version   int64               `bigquery:"version"`
			Name      string              `bigquery:"name"`
			AppliedAt time.Time           `bigquery:"applied_at"`
			Checksum  bigquery.NullString `bigquery:"checksum"`
			AppliedBy bigquery.NullString `bigquery:"applied_by"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating results: %w", err)
		}
		applied = append(applied, AppliedMigration{
			Version:   int(row.Version),
			Name:      row.Name,
			AppliedAt: row.AppliedAt,
			Checksum:  row.Checksum.StringVal,
			AppliedBy: row.AppliedBy.StringVal,
		})
	}
	return applied, nil
}

// executeMigration executes a single migration SQL
func (t target) executeMigration(ctx context.Context, m Migration) error {
	return t.run(ctx, t.client.Query(m.SQL))
}

// recordMigration records a successfully applied migration in schema_migrations
func (t target) recordMigration(ctx context.Context, m Migration) error {
	query := t.client.Query(`
		INSERT INTO ` + t.table("schema_migrations") + `
		(version, name, applied_at, checksum, applied_by)
		VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)
	`)
	query.Parameters = []bigquery.QueryParameter{
		{Name: "version", Value: m.Version},
		{Name: "name", Value: m.Name},
		{Name: "checksum", Value: m.Checksum},
		{Name: "applied_by", Value: t.appliedBy},
	}
	return t.run(ctx, query)
}

func (t target) run(ctx context.Context, query *bigquery.Query) error {
	job, err := query.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}
