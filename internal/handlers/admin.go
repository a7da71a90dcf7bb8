// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/alex-klock/razor-mediator-4-tridion/internal/engine"
	"github.com/alex-klock/razor-mediator-4-tridion/internal/mediator"
	"github.com/alex-klock/razor-mediator-4-tridion/internal/middleware"
	"github.com/alex-klock/razor-mediator-4-tridion/internal/models"
)

// TemplateRepository stores templates. *store.TemplateStore implements it.
type TemplateRepository interface {
	TemplateFinder
	List() ([]models.Template, error)
	Upsert(t *models.Template) (*models.Template, error)
	Delete(kind engine.Kind, ref string) (bool, error)
}

// BinaryRepository stores binaries. *store.BinaryStore implements it.
type BinaryRepository interface {
	Upsert(b *models.Binary) error
	Delete(uri string) error
}

// RevisionRepository keeps previous template versions.
// *store.TemplateRevisionStore implements it.
type RevisionRepository interface {
	Create(t *models.Template, createdBy string) (*models.TemplateRevision, error)
	List(kind engine.Kind, ref string) ([]models.TemplateRevision, error)
}

// EvictionLog reads recorded cache evictions. *store.CacheLogStore
// implements it.
type EvictionLog interface {
	RecentEntries(limit int) ([]models.CacheLogEntry, error)
}

// Admin groups the cache and template administration handlers.
type Admin struct {
	mediator  *mediator.Mediator
	templates TemplateRepository
	binaries  BinaryRepository
	output    OutputCache
	revisions RevisionRepository
	evictions EvictionLog
}

// NewAdmin creates the admin handler group. templates, binaries and output
// may be nil; the endpoints using them then answer 503.
func NewAdmin(m *mediator.Mediator, templates TemplateRepository, binaries BinaryRepository, output OutputCache) *Admin {
	return &Admin{mediator: m, templates: templates, binaries: binaries, output: output}
}

// WithHistory enables template revisions and the eviction log endpoint.
// Either may be nil.
func (a *Admin) WithHistory(revisions RevisionRepository, evictions EvictionLog) *Admin {
	a.revisions = revisions
	a.evictions = evictions
	return a
}

func (a *Admin) handler(w http.ResponseWriter) *mediator.Handler {
	h := a.mediator.Handler()
	if h == nil {
		writeError(w, http.StatusServiceUnavailable, "mediator is not configured")
	}
	return h
}

// invalidate drops cached output for id. Building blocks are imported by
// other templates, so changing one drops all output.
func (a *Admin) invalidate(r *http.Request, id engine.Identity) {
	if a.output == nil {
		return
	}
	if id.Kind == engine.KindTemplateBuildingBlock {
		a.output.InvalidateAll(r.Context())
		return
	}
	a.output.Invalidate(r.Context(), id)
}

// evict drops the compiled template for id. Building blocks are inlined
// into the templates importing them, so changing one drops every entry.
func (a *Admin) evict(id engine.Identity) {
	h := a.mediator.Handler()
	if h == nil {
		return
	}
	if id.Kind != engine.KindTemplateBuildingBlock {
		h.Evict(id)
		return
	}
	for _, e := range h.Entries() {
		h.Evict(e.Identity)
	}
}

// --- Compiled template cache ---

// CacheEntries lists the compiled template cache.
func (a *Admin) CacheEntries(w http.ResponseWriter, r *http.Request) {
	h := a.handler(w)
	if h == nil {
		return
	}
	entries := h.Entries()
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(entries),
		"entries": entries,
	})
}

// CacheSweep runs the stale and expired sweeps now.
func (a *Admin) CacheSweep(w http.ResponseWriter, r *http.Request) {
	stale, expired, err := a.mediator.Sweep()
	if err != nil {
		writeRenderError(w, engine.Identity{}, err)
		return
	}
	slog.Info("cache swept", "admin", middleware.AdminFromCtx(r.Context()), "stale", stale, "expired", expired)
	writeJSON(w, http.StatusOK, map[string]int{"stale": stale, "expired": expired})
}

// CacheEvict removes one template from the compiled cache and its rendered
// output from the output cache.
func (a *Admin) CacheEvict(w http.ResponseWriter, r *http.Request) {
	kind, id, err := templateParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h := a.handler(w)
	if h == nil {
		return
	}

	ident := engine.NewIdentity(kind, models.NormalizeRef(id))
	a.invalidate(r, ident)
	if !h.Evict(ident) {
		writeError(w, http.StatusNotFound, "template is not cached")
		return
	}
	slog.Info("template evicted", "admin", middleware.AdminFromCtx(r.Context()), "identity", ident.String())
	w.WriteHeader(http.StatusNoContent)
}

// cacheLogLimit bounds the eviction log response.
const cacheLogLimit = 100

// CacheLog lists the most recent compiled-template evictions.
func (a *Admin) CacheLog(w http.ResponseWriter, r *http.Request) {
	if a.evictions == nil {
		writeError(w, http.StatusServiceUnavailable, "eviction log is not configured")
		return
	}
	entries, err := a.evictions.RecentEntries(cacheLogLimit)
	if err != nil {
		slog.Error("read eviction log failed", "error", err)
		writeError(w, http.StatusInternalServerError, "read eviction log failed")
		return
	}
	if entries == nil {
		entries = []models.CacheLogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// --- Validation ---

type validateRequest struct {
	Kind        string `json:"kind"`
	ID          string `json:"id"`
	Content     string `json:"content"`
	WebDavURL   string `json:"webdav_url"`
	Publication string `json:"publication"`
}

type validateResponse struct {
	Valid      bool     `json:"valid"`
	Content    string   `json:"content"`
	References []string `json:"references"`
}

// Validate compiles submitted template source without rendering it and
// returns the content as it would be saved with its import references.
// A cached template is never replaced by unsaved source.
func (a *Admin) Validate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	kind, err := engine.ParseKind(req.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	if a.handler(w) == nil {
		return
	}

	ref := models.NormalizeRef(req.ID)
	tmpl := FromModel(&models.Template{
		Kind:        kind,
		Ref:         ref,
		WebDavURL:   req.WebDavURL,
		Publication: req.Publication,
		Content:     req.Content,
		UpdatedAt:   time.Now(),
	})
	if err := a.mediator.Validate(r.Context(), tmpl); err != nil {
		writeRenderError(w, tmpl.Identity, err)
		return
	}

	writeJSON(w, http.StatusOK, validateResponse{
		Valid:      true,
		Content:    a.mediator.PrepareForSave(tmpl),
		References: a.mediator.References(tmpl),
	})
}

// --- Stored templates ---

// TemplatesList lists stored templates.
func (a *Admin) TemplatesList(w http.ResponseWriter, r *http.Request) {
	if a.templates == nil {
		writeError(w, http.StatusServiceUnavailable, "template storage is not configured")
		return
	}
	list, err := a.templates.List()
	if err != nil {
		slog.Error("list templates failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list templates failed")
		return
	}
	if list == nil {
		list = []models.Template{}
	}
	writeJSON(w, http.StatusOK, list)
}

// TemplateSave stores a template. Relative import paths are rewritten
// first when the mediator is configured to, and the compiled and rendered
// caches drop the previous version.
func (a *Admin) TemplateSave(w http.ResponseWriter, r *http.Request) {
	if a.templates == nil {
		writeError(w, http.StatusServiceUnavailable, "template storage is not configured")
		return
	}

	var t models.Template
	if err := decodeJSON(w, r, &t); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	t.Content = a.mediator.PrepareForSave(FromModel(&t))
	a.keepRevision(r, &t)

	saved, err := a.templates.Upsert(&t)
	if err != nil {
		slog.Error("save template failed", "ref", t.Ref, "error", err)
		writeError(w, http.StatusInternalServerError, "save template failed")
		return
	}

	a.evict(saved.Identity())
	a.invalidate(r, saved.Identity())

	slog.Info("template saved", "admin", middleware.AdminFromCtx(r.Context()), "identity", saved.Identity().String())
	writeJSON(w, http.StatusOK, map[string]any{
		"template":   saved,
		"references": a.mediator.References(FromModel(saved)),
	})
}

// keepRevision snapshots the stored version of t when its content is
// about to change. Failures are logged and do not block the save.
func (a *Admin) keepRevision(r *http.Request, t *models.Template) {
	if a.revisions == nil {
		return
	}
	prev, err := a.templates.FindByRef(t.Kind, t.Ref)
	if err != nil {
		slog.Warn("load previous template failed", "ref", t.Ref, "error", err)
		return
	}
	if prev == nil || prev.Content == t.Content {
		return
	}
	if _, err := a.revisions.Create(prev, middleware.AdminFromCtx(r.Context())); err != nil {
		slog.Warn("save template revision failed", "ref", t.Ref, "error", err)
	}
}

// TemplateRevisions lists the previous versions of a stored template,
// newest first.
func (a *Admin) TemplateRevisions(w http.ResponseWriter, r *http.Request) {
	if a.revisions == nil {
		writeError(w, http.StatusServiceUnavailable, "template revisions are not configured")
		return
	}
	kind, id, err := templateParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	list, err := a.revisions.List(kind, id)
	if err != nil {
		slog.Error("list template revisions failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "list template revisions failed")
		return
	}
	if list == nil {
		list = []models.TemplateRevision{}
	}
	writeJSON(w, http.StatusOK, list)
}

// TemplateDelete removes a stored template and its cached versions.
func (a *Admin) TemplateDelete(w http.ResponseWriter, r *http.Request) {
	if a.templates == nil {
		writeError(w, http.StatusServiceUnavailable, "template storage is not configured")
		return
	}
	kind, id, err := templateParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ok, err := a.templates.Delete(kind, id)
	if err != nil {
		slog.Error("delete template failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "delete template failed")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "template not found")
		return
	}

	ident := engine.NewIdentity(kind, models.NormalizeRef(id))
	a.evict(ident)
	a.invalidate(r, ident)
	w.WriteHeader(http.StatusNoContent)
}

// --- Binaries ---

type binaryRequest struct {
	URI         string `json:"uri"`
	WebDavURL   string `json:"webdav_url"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"` // base64 in JSON
}

// BinarySave stores a multimedia item rendered templates can link to.
func (a *Admin) BinarySave(w http.ResponseWriter, r *http.Request) {
	if a.binaries == nil {
		writeError(w, http.StatusServiceUnavailable, "binary storage is not configured")
		return
	}

	var req binaryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.URI) == "" || strings.TrimSpace(req.Filename) == "" {
		writeError(w, http.StatusBadRequest, "uri and filename are required")
		return
	}

	b := &models.Binary{
		URI:         req.URI,
		WebDavURL:   req.WebDavURL,
		Filename:    req.Filename,
		ContentType: req.ContentType,
		Data:        req.Data,
	}
	if err := a.binaries.Upsert(b); err != nil {
		slog.Error("save binary failed", "uri", req.URI, "error", err)
		writeError(w, http.StatusInternalServerError, "save binary failed")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// BinaryDelete removes a stored binary.
func (a *Admin) BinaryDelete(w http.ResponseWriter, r *http.Request) {
	if a.binaries == nil {
		writeError(w, http.StatusServiceUnavailable, "binary storage is not configured")
		return
	}
	uri := chi.URLParam(r, "*")
	if uri == "" {
		writeError(w, http.StatusBadRequest, "binary uri is required")
		return
	}
	if err := a.binaries.Delete(uri); err != nil {
		slog.Error("delete binary failed", "uri", uri, "error", err)
		writeError(w, http.StatusInternalServerError, "delete binary failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
