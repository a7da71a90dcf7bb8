// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alex-klock/razor-mediator-4-tridion/internal/engine"
	"github.com/alex-klock/razor-mediator-4-tridion/internal/tcm"
)

// Template is a stored template item: a component or page template, or a
// building block other templates import.
type Template struct {
	ID          uuid.UUID   `json:"id"`
	Kind        engine.Kind `json:"kind"`
	Ref         string      `json:"ref"` // tcm URI or any stable identifier
	WebDavURL   string      `json:"webdav_url,omitempty"`
	Publication string      `json:"publication,omitempty"`
	Title       string      `json:"title,omitempty"`
	Content     string      `json:"content"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Identity returns the cache identity of the template.
func (t *Template) Identity() engine.Identity {
	return engine.NewIdentity(t.Kind, t.Ref)
}

// Normalize canonicalizes Ref when it is a tcm URI.
func (t *Template) Normalize() {
	t.Ref = NormalizeRef(t.Ref)
}

// Validate checks the fields required to store the template.
func (t *Template) Validate() error {
	if !t.Kind.Valid() {
		return errors.New("kind must be ComponentTemplate, PageTemplate or TemplateBuildingBlock")
	}
	if strings.TrimSpace(t.Ref) == "" {
		return errors.New("ref is required")
	}
	if t.WebDavURL != "" && !strings.HasPrefix(strings.ToLower(t.WebDavURL), "/webdav/") {
		return errors.New("webdav_url must start with /webdav/")
	}
	return nil
}

// NormalizeRef returns the canonical form of a tcm URI and any other
// reference trimmed.
func NormalizeRef(ref string) string {
	ref = strings.TrimSpace(ref)
	if uri, err := tcm.Parse(ref); err == nil {
		return uri.String()
	}
	return ref
}
