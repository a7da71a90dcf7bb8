// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/alex-klock/razor-mediator-4-tridion/internal/extract"
	"github.com/alex-klock/razor-mediator-4-tridion/internal/models"
)

// BinaryStore handles multimedia items.
type BinaryStore struct {
	db *sql.DB
}

// NewBinaryStore creates a new BinaryStore with the given database connection.
func NewBinaryStore(db *sql.DB) *BinaryStore {
	return &BinaryStore{db: db}
}

const binaryColumns = `uri, webdav_url, filename, content_type, data, created_at`

func scanBinary(scanner interface{ Scan(...any) error }) (*models.Binary, error) {
	var b models.Binary
	if err := scanner.Scan(&b.URI, &b.WebDavURL, &b.Filename, &b.ContentType, &b.Data, &b.CreatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

// FindByURI retrieves a binary by tcm URI or WebDAV URL. Returns nil if
// not found.
func (s *BinaryStore) FindByURI(ctx context.Context, ref string) (*models.Binary, error) {
	query := `SELECT ` + binaryColumns + ` FROM binaries WHERE uri = $1`
	arg := models.NormalizeRef(ref)
	if strings.HasPrefix(strings.ToLower(ref), "/webdav/") {
		query = `SELECT ` + binaryColumns + ` FROM binaries WHERE lower(webdav_url) = lower($1) LIMIT 1`
		arg = ref
	}

	b, err := scanBinary(s.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find binary %s: %w", ref, err)
	}
	return b, nil
}

// ResolveBinary implements extract.Resolver.
func (s *BinaryStore) ResolveBinary(ctx context.Context, ref string) (*extract.Binary, error) {
	b, err := s.FindByURI(ctx, ref)
	if err != nil || b == nil {
		return nil, err
	}
	return &extract.Binary{URI: b.URI, Filename: b.Filename, ContentType: b.ContentType, Data: b.Data}, nil
}

// Upsert stores a binary, replacing any with the same URI.
func (s *BinaryStore) Upsert(b *models.Binary) error {
	b.URI = models.NormalizeRef(b.URI)
	if b.URI == "" || b.Filename == "" {
		return fmt.Errorf("binary uri and filename are required")
	}
	if b.ContentType == "" {
		b.ContentType = "application/octet-stream"
	}
	_, err := s.db.Exec(`
		INSERT INTO binaries (uri, webdav_url, filename, content_type, data)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (uri)
		DO UPDATE SET webdav_url = EXCLUDED.webdav_url, filename = EXCLUDED.filename,
			content_type = EXCLUDED.content_type, data = EXCLUDED.data`,
		b.URI, b.WebDavURL, b.Filename, b.ContentType, b.Data,
	)
	if err != nil {
		return fmt.Errorf("upsert binary %s: %w", b.URI, err)
	}
	return nil
}

// Delete removes a binary.
func (s *BinaryStore) Delete(uri string) error {
	if _, err := s.db.Exec(`DELETE FROM binaries WHERE uri = $1`, models.NormalizeRef(uri)); err != nil {
		return fmt.Errorf("delete binary %s: %w", uri, err)
	}
	return nil
}
