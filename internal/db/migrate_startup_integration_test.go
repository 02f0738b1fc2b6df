package db_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	dbfs "github.com/garnizeh/qna/db"
	"github.com/garnizeh/qna/internal/config"
	"github.com/garnizeh/qna/internal/db"
)

// TestMigrateOnStart_TempWorkdir follows the server's startup path: load a
// config file, open the database it names and run the embedded migrations.
func TestMigrateOnStart_TempWorkdir(t *testing.T) {
	ctx := context.Background()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	cfgY := "addr: \":0\"\n" +
		"database_path: '" + dbPath + "'\n" +
		"migrate_on_start: true\n" +
		"drafting:\n  provider: ollama\n  model: \"test-model\"\n"

	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(cfgY), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	// allow insecure default JWTSecret for this test
	t.Setenv("QNA_ENV", "development")
	t.Setenv("QNA_JWT_SECRET", "")

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate config: %v", err)
	}
	if !cfg.MigrateOnStart {
		t.Fatalf("expected migrate_on_start from file")
	}

	dbCtx, dbCancel := context.WithTimeout(ctx, cfg.APITimeout)
	defer dbCancel()

	d, err := db.New(dbCtx, cfg.DatabasePath, nil)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer d.Close()

	if err := db.Migrate(dbCtx, d, dbfs.Migrations, dbfs.SeedFiles); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}

	var count int
	if err := d.QueryRow(ctx, `SELECT COUNT(1) FROM schema_migrations`).Scan(&count); err != nil {
		t.Fatalf("scan schema_migrations count: %v", err)
	}
	if count == 0 {
		t.Fatalf("expected migrations recorded, got 0")
	}
}
