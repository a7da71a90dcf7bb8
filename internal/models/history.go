// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/alex-klock/razor-mediator-4-tridion/internal/engine"
)

// TemplateRevision is a snapshot of a template's content taken before the
// template was overwritten.
type TemplateRevision struct {
	ID         uuid.UUID   `json:"id"`
	TemplateID uuid.UUID   `json:"template_id"`
	Kind       engine.Kind `json:"kind"`
	Ref        string      `json:"ref"`
	Content    string      `json:"content"`
	CreatedBy  string      `json:"created_by,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// CacheLogEntry is one compiled-template eviction.
type CacheLogEntry struct {
	ID        int64           `json:"id"`
	Identity  engine.Identity `json:"identity"`
	Reason    string          `json:"reason"`
	EvictedAt time.Time       `json:"evicted_at"`
}
