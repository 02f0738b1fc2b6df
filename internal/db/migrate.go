package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"
)

// Migrate applies migrations and seed files found in the embedded filesystems.
// It creates a `schema_migrations` table to track applied migrations and applies
// any SQL file under `migrations/` that has not yet been recorded, each in its
// own transaction. Seed files under `seed/` are upserted on every run:
//
//	seed/template_<name>_<version>.txt  -> ai_templates (name, version)
//	seed/schema_<version>.json          -> ai_schemas (version)
func Migrate(ctx context.Context, d *DB, migrationFS embed.FS, seedFS embed.FS) error {
	if _, err := d.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY, applied INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	const migDir = "migrations"
	files, err := listFiles(migrationFS, migDir, ".sql")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	for _, fname := range files {
		version := strings.TrimSuffix(fname, path.Ext(fname))

		var count int
		if err := d.QueryRow(ctx, `SELECT COUNT(1) FROM schema_migrations WHERE version = ?`, version).Scan(&count); err != nil {
			return fmt.Errorf("scan migration applied count: %w", err)
		}
		if count > 0 {
			continue
		}

		b, err := fs.ReadFile(migrationFS, path.Join(migDir, fname))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", fname, err)
		}
		err = d.WithTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, string(b)); err != nil {
				return fmt.Errorf("exec migration %s: %w", fname, err)
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, applied) VALUES (?, strftime('%s','now'))`, version); err != nil {
				return fmt.Errorf("record migration %s: %w", fname, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
		d.logger.Info("db: migration applied", slog.String("version", version))
	}

	return seed(ctx, d, seedFS)
}

func seed(ctx context.Context, d *DB, seedFS embed.FS) error {
	const seedDir = "seed"
	files, err := listFiles(seedFS, seedDir, "")
	if err != nil {
		// seeds are optional
		return nil
	}

	for _, fname := range files {
		b, err := fs.ReadFile(seedFS, path.Join(seedDir, fname))
		if err != nil {
			return fmt.Errorf("read seed %s: %w", fname, err)
		}

		switch {
		case strings.HasPrefix(fname, "template_") && strings.HasSuffix(fname, ".txt"):
			name, version, ok := splitTemplateSeed(fname)
			if !ok {
				d.logger.Warn("db: skipping malformed template seed", slog.String("file", fname))
				continue
			}
			meta := fmt.Sprintf(`{"owner":"system","description":"default %s template"}`, name)
			if _, err := d.Exec(ctx, `INSERT INTO ai_templates (name, version, template_text, schema_version, metadata, created, updated)
				VALUES (?, ?, ?, NULL, ?, strftime('%s','now'), strftime('%s','now'))
				ON CONFLICT (name, version) DO UPDATE SET template_text = excluded.template_text, updated = excluded.updated`,
				name, version, string(b), meta); err != nil {
				return fmt.Errorf("seed template %s: %w", fname, err)
			}
		case strings.HasPrefix(fname, "schema_") && strings.HasSuffix(fname, ".json"):
			version := strings.TrimSuffix(strings.TrimPrefix(fname, "schema_"), ".json")
			if _, err := d.Exec(ctx, `INSERT INTO ai_schemas (version, description, schema_json, created, updated)
				VALUES (?, ?, ?, strftime('%s','now'), strftime('%s','now'))
				ON CONFLICT (version) DO UPDATE SET schema_json = excluded.schema_json, updated = excluded.updated`,
				version, "built-in "+version+" schema", string(b)); err != nil {
				return fmt.Errorf("seed schema %s: %w", fname, err)
			}
		default:
			d.logger.Warn("db: unknown seed file", slog.String("file", fname))
		}
	}

	return nil
}

// splitTemplateSeed parses template_<name>_<version>.txt; the version is the
// part after the last underscore.
func splitTemplateSeed(fname string) (name, version string, ok bool) {
	base := strings.TrimSuffix(strings.TrimPrefix(fname, "template_"), ".txt")
	i := strings.LastIndex(base, "_")
	if i <= 0 || i == len(base)-1 {
		return "", "", false
	}
	return base[:i], base[i+1:], true
}

func listFiles(fsys fs.FS, dir, ext string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ext != "" && !strings.HasSuffix(strings.ToLower(e.Name()), ext) {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)
	return files, nil
}
