package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/garnizeh/qna/internal/models"
)

// Prompt templates and snapshot schemas. Timestamps are unix seconds, matching
// the seed rows written by the migration runner.

const schemaColumns = `id, version, description, schema_json, created, updated`

func scanSchema(s scanner) (*models.Schema, error) {
	var (
		sc   models.Schema
		desc sql.NullString
	)
	if err := s.Scan(&sc.ID, &sc.Version, &desc, &sc.SchemaJSON, &sc.Created, &sc.Updated); err != nil {
		return nil, err
	}
	sc.Description = desc.String
	return &sc, nil
}

// CreateSchema inserts a schema or replaces the one stored under version.
func (r *SQLiteRepo) CreateSchema(ctx context.Context, version, description, schemaJSON string) (int64, error) {
	var id int64
	err := r.conn.QueryRow(ctx, `INSERT INTO ai_schemas (version, description, schema_json, created, updated)
		VALUES (?, ?, ?, strftime('%s','now'), strftime('%s','now'))
		ON CONFLICT (version) DO UPDATE SET description = excluded.description, schema_json = excluded.schema_json, updated = excluded.updated
		RETURNING id`, version, description, schemaJSON).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store schema %s: %w", version, err)
	}
	return id, nil
}

func (r *SQLiteRepo) GetSchemaByVersion(ctx context.Context, version string) (*models.Schema, error) {
	sc, err := scanSchema(r.conn.QueryRow(ctx, `SELECT `+schemaColumns+` FROM ai_schemas WHERE version = ?`, version))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get schema %s: %w", version, err)
	}
	return sc, nil
}

func (r *SQLiteRepo) ListSchemas(ctx context.Context) ([]models.Schema, error) {
	rows, err := r.conn.QueryRows(ctx, `SELECT `+schemaColumns+` FROM ai_schemas ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("list schemas: %w", err)
	}
	defer rows.Close()

	out := []models.Schema{}
	for rows.Next() {
		sc, err := scanSchema(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sc)
	}
	return out, rows.Err()
}

func (r *SQLiteRepo) DeleteSchema(ctx context.Context, version string) error {
	_, err := r.conn.Exec(ctx, `DELETE FROM ai_schemas WHERE version = ?`, version)
	return err
}

const templateColumns = `id, name, version, template_text, schema_version, metadata, created, updated`

func scanTemplate(s scanner) (*models.Template, error) {
	var (
		t         models.Template
		schemaVer sql.NullString
		meta      sql.NullString
	)
	if err := s.Scan(&t.ID, &t.Name, &t.Version, &t.TemplateTxt, &schemaVer, &meta, &t.Created, &t.Updated); err != nil {
		return nil, err
	}
	t.SchemaVer = stringPtr(schemaVer)
	t.Metadata = stringPtr(meta)
	return &t, nil
}

// CreateTemplate inserts a template or replaces the one stored under (name, version).
func (r *SQLiteRepo) CreateTemplate(ctx context.Context, name, version, templateText string, schemaVersion *string, metadata *string) (int64, error) {
	var id int64
	err := r.conn.QueryRow(ctx, `INSERT INTO ai_templates (name, version, template_text, schema_version, metadata, created, updated)
		VALUES (?, ?, ?, ?, ?, strftime('%s','now'), strftime('%s','now'))
		ON CONFLICT (name, version) DO UPDATE SET template_text = excluded.template_text,
			schema_version = excluded.schema_version, metadata = excluded.metadata, updated = excluded.updated
		RETURNING id`, name, version, templateText, nullString(schemaVersion), nullString(metadata)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store template %s/%s: %w", name, version, err)
	}
	return id, nil
}

func (r *SQLiteRepo) GetTemplate(ctx context.Context, name, version string) (*models.Template, error) {
	t, err := scanTemplate(r.conn.QueryRow(ctx, `SELECT `+templateColumns+` FROM ai_templates WHERE name = ? AND version = ?`, name, version))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get template %s/%s: %w", name, version, err)
	}
	return t, nil
}

func (r *SQLiteRepo) ListTemplates(ctx context.Context) ([]models.Template, error) {
	rows, err := r.conn.QueryRows(ctx, `SELECT `+templateColumns+` FROM ai_templates ORDER BY name, version`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	out := []models.Template{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (r *SQLiteRepo) DeleteTemplate(ctx context.Context, name, version string) error {
	_, err := r.conn.Exec(ctx, `DELETE FROM ai_templates WHERE name = ? AND version = ?`, name, version)
	return err
}
