// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/alex-klock/razor-mediator-4-tridion/internal/engine"
	"github.com/alex-klock/razor-mediator-4-tridion/internal/models"
)

// templateRevisionColumns lists all columns for template_revisions SELECTs.
const templateRevisionColumns = `id, template_id, kind, ref, content, created_by, created_at`

// TemplateRevisionStore provides access to template revision data in PostgreSQL.
type TemplateRevisionStore struct {
	db *sql.DB
}

// NewTemplateRevisionStore creates a new TemplateRevisionStore backed by the given database.
func NewTemplateRevisionStore(db *sql.DB) *TemplateRevisionStore {
	return &TemplateRevisionStore{db: db}
}

// scanTemplateRevision scans a single template_revisions row into a TemplateRevision.
func scanTemplateRevision(scanner interface{ Scan(...any) error }) (*models.TemplateRevision, error) {
	var r models.TemplateRevision
	err := scanner.Scan(&r.ID, &r.TemplateID, &r.Kind, &r.Ref, &r.Content, &r.CreatedBy, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Create snapshots a stored template as a new revision.
func (s *TemplateRevisionStore) Create(t *models.Template, createdBy string) (*models.TemplateRevision, error) {
	row := s.db.QueryRow(`
		INSERT INTO template_revisions (template_id, kind, ref, content, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+templateRevisionColumns,
		t.ID, t.Kind, t.Ref, t.Content, createdBy,
	)
	r, err := scanTemplateRevision(row)
	if err != nil {
		return nil, fmt.Errorf("create template revision %s: %w", t.Ref, err)
	}
	return r, nil
}

// List returns all revisions of a template, newest first.
func (s *TemplateRevisionStore) List(kind engine.Kind, ref string) ([]models.TemplateRevision, error) {
	rows, err := s.db.Query(`
		SELECT `+templateRevisionColumns+`
		FROM template_revisions
		WHERE kind = $1 AND ref = $2
		ORDER BY created_at DESC, id
	`, kind, models.NormalizeRef(ref))
	if err != nil {
		return nil, fmt.Errorf("list template revisions: %w", err)
	}
	defer rows.Close()

	var revisions []models.TemplateRevision
	for rows.Next() {
		r, err := scanTemplateRevision(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template revision: %w", err)
		}
		revisions = append(revisions, *r)
	}
	return revisions, rows.Err()
}

// FindByID returns a single template revision by its ID.
func (s *TemplateRevisionStore) FindByID(id uuid.UUID) (*models.TemplateRevision, error) {
	row := s.db.QueryRow(`
		SELECT `+templateRevisionColumns+`
		FROM template_revisions
		WHERE id = $1
	`, id)
	r, err := scanTemplateRevision(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}
