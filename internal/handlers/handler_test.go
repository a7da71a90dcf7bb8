// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// handler_test.go provides shared test infrastructure for the handler
// tests: in-memory repositories and output cache, a configured mediator
// and a router mounting the handlers.
package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/alex-klock/razor-mediator-4-tridion/internal/config"
	"github.com/alex-klock/razor-mediator-4-tridion/internal/engine"
	"github.com/alex-klock/razor-mediator-4-tridion/internal/imports"
	"github.com/alex-klock/razor-mediator-4-tridion/internal/mediator"
	"github.com/alex-klock/razor-mediator-4-tridion/internal/models"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// memTemplates is an in-memory TemplateRepository that also serves
// imports by reference or WebDAV URL.
type memTemplates struct {
	mu    sync.Mutex
	items map[engine.Identity]*models.Template
}

func newMemTemplates(ts ...*models.Template) *memTemplates {
	m := &memTemplates{items: make(map[engine.Identity]*models.Template)}
	for _, t := range ts {
		t.Normalize()
		if t.UpdatedAt.IsZero() {
			t.UpdatedAt = t0
		}
		m.items[t.Identity()] = t
	}
	return m
}

func (m *memTemplates) FindByRef(kind engine.Kind, ref string) (*models.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.items[engine.NewIdentity(kind, models.NormalizeRef(ref))]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (m *memTemplates) List() ([]models.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Template
	for _, t := range m.items {
		out = append(out, *t)
	}
	return out, nil
}

func (m *memTemplates) Upsert(t *models.Template) (*models.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	cp.UpdatedAt = time.Now()
	m.items[cp.Identity()] = &cp
	return &cp, nil
}

func (m *memTemplates) Delete(kind engine.Kind, ref string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := engine.NewIdentity(kind, models.NormalizeRef(ref))
	_, ok := m.items[id]
	delete(m.items, id)
	return ok, nil
}

func (m *memTemplates) Lookup(_ context.Context, _ string, ref string) (*imports.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.items {
		if t.Ref == ref || strings.EqualFold(t.WebDavURL, ref) {
			return &imports.Item{ID: t.Ref, WebDavURL: t.WebDavURL, Content: t.Content}, nil
		}
	}
	return nil, nil
}

// memBinaries is an in-memory BinaryRepository.
type memBinaries struct {
	mu    sync.Mutex
	items map[string]*models.Binary
}

func (m *memBinaries) Upsert(b *models.Binary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		m.items = make(map[string]*models.Binary)
	}
	m.items[b.URI] = b
	return nil
}

func (m *memBinaries) Delete(uri string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, uri)
	return nil
}

// memRevisions is an in-memory RevisionRepository.
type memRevisions struct {
	mu    sync.Mutex
	items []models.TemplateRevision
}

func (m *memRevisions) Create(t *models.Template, createdBy string) (*models.TemplateRevision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := models.TemplateRevision{
		TemplateID: t.ID,
		Kind:       t.Kind,
		Ref:        t.Ref,
		Content:    t.Content,
		CreatedBy:  createdBy,
		CreatedAt:  time.Now(),
	}
	m.items = append([]models.TemplateRevision{r}, m.items...)
	return &r, nil
}

func (m *memRevisions) List(kind engine.Kind, ref string) ([]models.TemplateRevision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.TemplateRevision
	for _, r := range m.items {
		if r.Kind == kind && r.Ref == models.NormalizeRef(ref) {
			out = append(out, r)
		}
	}
	return out, nil
}

// memEvictions records evictions the way the eviction log store does.
type memEvictions struct {
	mu      sync.Mutex
	entries []models.CacheLogEntry
}

func (m *memEvictions) record(ids ...engine.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.entries = append([]models.CacheLogEntry{{
			ID:        int64(len(m.entries) + 1),
			Identity:  id,
			Reason:    "evicted",
			EvictedAt: time.Now(),
		}}, m.entries...)
	}
}

func (m *memEvictions) RecentEntries(limit int) ([]models.CacheLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) > limit {
		return m.entries[:limit], nil
	}
	return m.entries, nil
}

// memOutput is an in-memory OutputCache recording invalidations.
type memOutput struct {
	mu          sync.Mutex
	items       map[string][]byte
	invalidated []engine.Identity
	cleared     int
}

func newMemOutput() *memOutput {
	return &memOutput{items: make(map[string][]byte)}
}

func (m *memOutput) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.items[key]
	return v, ok
}

func (m *memOutput) Set(_ context.Context, key string, output []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = output
}

func (m *memOutput) Invalidate(_ context.Context, ids ...engine.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidated = append(m.invalidated, ids...)
}

func (m *memOutput) InvalidateAll(_ context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string][]byte)
	m.cleared++
}

func (m *memOutput) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// newTestMediator returns a configured mediator reading imports from src.
func newTestMediator(t *testing.T, src imports.Source, cfg config.Mediator) *mediator.Mediator {
	t.Helper()
	m, err := mediator.New(mediator.Dependencies{Source: src, Logger: quietLogger})
	if err != nil {
		t.Fatalf("mediator.New: %v", err)
	}
	if err := m.Configure(cfg); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	return m
}

// testRouter mounts the handlers the way the service router does, without
// authentication.
func testRouter(render *Render, admin *Admin) http.Handler {
	r := chi.NewRouter()
	if render != nil {
		r.Post("/render/{kind}/*", render.Render)
	}
	if admin != nil {
		r.Get("/admin/cache", admin.CacheEntries)
		r.Get("/admin/cache/log", admin.CacheLog)
		r.Post("/admin/cache/sweep", admin.CacheSweep)
		r.Delete("/admin/cache/{kind}/*", admin.CacheEvict)
		r.Post("/admin/validate", admin.Validate)
		r.Get("/admin/templates", admin.TemplatesList)
		r.Put("/admin/templates", admin.TemplateSave)
		r.Delete("/admin/templates/{kind}/*", admin.TemplateDelete)
		r.Get("/admin/revisions/{kind}/*", admin.TemplateRevisions)
		r.Put("/admin/binaries", admin.BinarySave)
		r.Delete("/admin/binaries/*", admin.BinaryDelete)
	}
	return r
}
