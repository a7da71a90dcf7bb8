// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/alex-klock/razor-mediator-4-tridion/internal/engine"
	"github.com/alex-klock/razor-mediator-4-tridion/internal/imports"
	"github.com/alex-klock/razor-mediator-4-tridion/internal/models"
)

// TemplateStore handles all template-related database operations.
type TemplateStore struct {
	db *sql.DB
}

// NewTemplateStore creates a new TemplateStore with the given database connection.
func NewTemplateStore(db *sql.DB) *TemplateStore {
	return &TemplateStore{db: db}
}

// templateColumns lists the columns selected in template queries.
const templateColumns = `id, kind, ref, webdav_url, publication, title, content, created_at, updated_at`

func scanTemplate(scanner interface{ Scan(...any) error }) (*models.Template, error) {
	var t models.Template
	err := scanner.Scan(
		&t.ID, &t.Kind, &t.Ref, &t.WebDavURL, &t.Publication,
		&t.Title, &t.Content, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// List returns all templates ordered by kind and ref.
func (s *TemplateStore) List() ([]models.Template, error) {
	rows, err := s.db.Query(`SELECT ` + templateColumns + ` FROM templates ORDER BY kind, ref`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var templates []models.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, *t)
	}
	return templates, rows.Err()
}

// FindByID retrieves a template by its UUID. Returns nil if not found.
func (s *TemplateStore) FindByID(id uuid.UUID) (*models.Template, error) {
	t, err := scanTemplate(s.db.QueryRow(`SELECT `+templateColumns+` FROM templates WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find template by id: %w", err)
	}
	return t, nil
}

// FindByRef retrieves a template by kind and reference. Returns nil if not
// found.
func (s *TemplateStore) FindByRef(kind engine.Kind, ref string) (*models.Template, error) {
	t, err := scanTemplate(s.db.QueryRow(
		`SELECT `+templateColumns+` FROM templates WHERE kind = $1 AND ref = $2`,
		kind, models.NormalizeRef(ref),
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find template %s %s: %w", kind, ref, err)
	}
	return t, nil
}

// FindAny retrieves a template of any kind by tcm URI, reference or WebDAV
// URL. Returns nil if not found.
func (s *TemplateStore) FindAny(ctx context.Context, ref string) (*models.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates WHERE ref = $1 ORDER BY kind LIMIT 1`
	arg := models.NormalizeRef(ref)
	if strings.HasPrefix(strings.ToLower(ref), "/webdav/") {
		query = `SELECT ` + templateColumns + ` FROM templates WHERE lower(webdav_url) = lower($1) ORDER BY kind LIMIT 1`
		arg = ref
	}

	t, err := scanTemplate(s.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find template %s: %w", ref, err)
	}
	return t, nil
}

// Lookup implements imports.Source over the templates table. The user is
// not checked: database access is already scoped to the host.
func (s *TemplateStore) Lookup(ctx context.Context, _ string, ref string) (*imports.Item, error) {
	t, err := s.FindAny(ctx, ref)
	if err != nil || t == nil {
		return nil, err
	}
	return &imports.Item{ID: t.Ref, WebDavURL: t.WebDavURL, Content: t.Content}, nil
}

// Upsert inserts a template or updates the one with the same kind and ref.
// UpdatedAt always moves forward so the cache sees the change.
func (s *TemplateStore) Upsert(t *models.Template) (*models.Template, error) {
	t.Normalize()
	if err := t.Validate(); err != nil {
		return nil, err
	}

	row := s.db.QueryRow(`
		INSERT INTO templates (kind, ref, webdav_url, publication, title, content)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (kind, ref)
		DO UPDATE SET webdav_url = EXCLUDED.webdav_url,
			publication = EXCLUDED.publication,
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			updated_at = now()
		RETURNING `+templateColumns,
		t.Kind, t.Ref, t.WebDavURL, t.Publication, t.Title, t.Content,
	)
	saved, err := scanTemplate(row)
	if err != nil {
		return nil, fmt.Errorf("upsert template %s: %w", t.Ref, err)
	}
	return saved, nil
}

// Delete removes a template and reports whether it existed.
func (s *TemplateStore) Delete(kind engine.Kind, ref string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM templates WHERE kind = $1 AND ref = $2`, kind, models.NormalizeRef(ref))
	if err != nil {
		return false, fmt.Errorf("delete template %s: %w", ref, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete template %s: %w", ref, err)
	}
	return n > 0, nil
}
