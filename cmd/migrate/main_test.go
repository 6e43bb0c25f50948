package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseFilename(t *testing.T) {
	tests := []struct {
		filename string
		valid    bool
		version  int
		name     string
	}{
		{"0001_init.sql", true, 1, "init"},
		{"0012_add_tag_index.sql", true, 12, "add_tag_index"},
		{"001_invalid.sql", false, 0, ""},
		{"0001_test", false, 0, ""},
		{"0001.sql", false, 0, ""},
		{"invalid_0001_test.sql", false, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, ok := parseFilename(tt.filename)
			if ok != tt.valid {
				t.Errorf("parseFilename(%q) valid = %v, want %v", tt.filename, ok, tt.valid)
			}
			if version != tt.version {
				t.Errorf("parseFilename(%q) version = %d, want %d", tt.filename, version, tt.version)
			}
			if name != tt.name {
				t.Errorf("parseFilename(%q) name = %q, want %q", tt.filename, name, tt.name)
			}
		})
	}
}

func TestReadMigrations(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"0002_second.sql": "ALTER TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.transactions` ADD COLUMN note STRING;",
		"0001_init.sql":   "CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.transactions` (id STRING);",
		"README.md":       "not a migration",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	got, err := readMigrations(dir, "proj", "ledger", zerolog.Nop())
	if err != nil {
		t.Fatalf("readMigrations failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 migrations, got %d", len(got))
	}
	if got[0].Version != 1 || got[0].Name != "init" {
		t.Errorf("Expected 0001_init first, got %d_%s", got[0].Version, got[0].Name)
	}
	if !strings.Contains(got[0].SQL, "`proj.ledger.transactions`") {
		t.Errorf("Expected placeholders substituted, got %s", got[0].SQL)
	}
	if strings.Contains(got[1].SQL, "{{") {
		t.Errorf("Unsubstituted placeholder in %s", got[1].SQL)
	}

	// Checksums ignore placeholder substitution.
	other, err := readMigrations(dir, "other", "ds", zerolog.Nop())
	if err != nil {
		t.Fatalf("readMigrations failed: %v", err)
	}
	if got[0].Checksum != other[0].Checksum {
		t.Error("Checksum changed with project and dataset")
	}
	if got[0].Checksum == got[1].Checksum {
		t.Error("Different migrations share a checksum")
	}
}

func TestRepositoryMigrationsParse(t *testing.T) {
	got, err := readMigrations(resolveDir("migrations/bigquery"), "p", "d", zerolog.Nop())
	if err != nil {
		t.Fatalf("readMigrations failed: %v", err)
	}
	if len(got) == 0 || got[0].Version != 1 {
		t.Fatalf("Expected migrations starting at version 1, got %d", len(got))
	}
	for _, table := range []string{"account_definitions", "account_records", "upload_sessions", "transactions"} {
		if !strings.Contains(got[0].SQL, "`p.d."+table+"`") {
			t.Errorf("Initial migration does not create %s", table)
		}
	}
}

func TestPlan(t *testing.T) {
	migrations := []Migration{
		{Version: 1, Name: "init", Checksum: "aaa"},
		{Version: 2, Name: "second", Checksum: "bbb"},
		{Version: 3, Name: "third", Checksum: "ccc"},
	}
	applied := []AppliedMigration{
		{Version: 1, Checksum: "aaa"},
		{Version: 2, Checksum: "changed"},
	}

	pending, drifted := plan(migrations, applied)
	if len(pending) != 1 || pending[0].Version != 3 {
		t.Errorf("Expected only version 3 pending, got %+v", pending)
	}
	if len(drifted) != 1 || drifted[0].Version != 2 {
		t.Errorf("Expected version 2 drifted, got %+v", drifted)
	}
}

func TestChecksumConsistency(t *testing.T) {
	content := []byte("CREATE TABLE test (id INT64);")

	checksum1 := checksum(content)
	checksum2 := checksum(content)
	if checksum1 != checksum2 {
		t.Errorf("Checksums should be consistent: %s != %s", checksum1, checksum2)
	}

	different := checksum([]byte("CREATE TABLE different (id INT64);"))
	if checksum1 == different {
		t.Error("Different content should produce different checksums")
	}
	if len(checksum1) != 64 {
		t.Errorf("Expected 64-character SHA256 hex, got %d characters", len(checksum1))
	}
}
