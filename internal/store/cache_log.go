// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// cache_log.go records compiled-template evictions in the database for
// debugging stale or failing templates.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/alex-klock/razor-mediator-4-tridion/internal/engine"
	"github.com/alex-klock/razor-mediator-4-tridion/internal/models"
)

// CacheLogStore handles cache eviction log operations.
type CacheLogStore struct {
	db *sql.DB
}

// NewCacheLogStore creates a new CacheLogStore.
func NewCacheLogStore(db *sql.DB) *CacheLogStore {
	return &CacheLogStore{db: db}
}

// Log records an eviction of each identity. Logging is best-effort:
// failures are reported and dropped.
func (s *CacheLogStore) Log(ctx context.Context, reason string, ids ...engine.Identity) {
	for _, id := range ids {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO cache_eviction_log (kind, ref, reason)
			VALUES ($1, $2, $3)
		`, id.Kind, id.ID, reason)
		if err != nil {
			slog.Warn("failed to log cache eviction",
				"identity", id.String(),
				"reason", reason,
				"error", err,
			)
			continue
		}
		slog.Debug("cache eviction logged", "identity", id.String(), "reason", reason)
	}
}

// RecentEntries returns the most recent evictions, newest first.
func (s *CacheLogStore) RecentEntries(limit int) ([]models.CacheLogEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, kind, ref, reason, evicted_at
		FROM cache_eviction_log
		ORDER BY evicted_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query cache log: %w", err)
	}
	defer rows.Close()

	var entries []models.CacheLogEntry
	for rows.Next() {
		var e models.CacheLogEntry
		if err := rows.Scan(&e.ID, &e.Identity.Kind, &e.Identity.ID, &e.Reason, &e.EvictedAt); err != nil {
			return nil, fmt.Errorf("scan cache log: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
