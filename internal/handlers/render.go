// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/alex-klock/razor-mediator-4-tridion/internal/cache"
	"github.com/alex-klock/razor-mediator-4-tridion/internal/engine"
	"github.com/alex-klock/razor-mediator-4-tridion/internal/mediator"
)

// Render serves template renders. It checks the Valkey output cache before
// invoking the mediator, and stores rendered results on miss.
type Render struct {
	mediator *mediator.Mediator
	loader   Loader
	output   OutputCache
}

// NewRender creates the render handler. output may be nil when Valkey is
// not configured.
func NewRender(m *mediator.Mediator, loader Loader, output OutputCache) *Render {
	return &Render{mediator: m, loader: loader, output: output}
}

type renderRequest struct {
	Data       map[string]any `json:"data"`
	RenderMode string         `json:"render_mode,omitempty"`
}

type renderResponse struct {
	Identity engine.Identity        `json:"identity"`
	Output   string                 `json:"output"`
	Items    []mediator.PackageItem `json:"items"`
	Cached   bool                   `json:"cached"`
}

// templateParams reads the kind and id route parameters. The id is the
// route's trailing wildcard so file names with slashes can be used.
func templateParams(r *http.Request) (engine.Kind, string, error) {
	kind, err := engine.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		return "", "", err
	}
	id := strings.TrimSpace(chi.URLParam(r, "*"))
	if id == "" {
		return "", "", errors.New("template id is required")
	}
	return kind, id, nil
}

// Render renders one template with the JSON data of the request body and
// returns the output along with every item pushed into the package.
func (h *Render) Render(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	kind, id, err := templateParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req renderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tmpl, err := h.loader.Load(ctx, kind, id)
	if errors.Is(err, ErrTemplateNotFound) {
		writeError(w, http.StatusNotFound, "template not found")
		return
	}
	if err != nil {
		slog.Error("load template failed", "kind", kind, "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "load template failed")
		return
	}

	var key string
	if h.output != nil {
		if key, err = cache.Key(tmpl.Identity, tmpl.RevisionDate, req); err != nil {
			slog.Warn("output cache key failed", "identity", tmpl.Identity.String(), "error", err)
			key = ""
		} else if raw, ok := h.output.Get(ctx, key); ok {
			var resp renderResponse
			if err := json.Unmarshal(raw, &resp); err == nil {
				resp.Cached = true
				writeJSON(w, http.StatusOK, resp)
				return
			}
		}
	}

	tmpl.RenderMode = req.RenderMode
	pkg := mediator.NewMapPackage(req.Data)
	output, err := h.mediator.Transform(ctx, tmpl, pkg)
	if err != nil {
		writeRenderError(w, tmpl.Identity, err)
		return
	}

	resp := renderResponse{
		Identity: tmpl.Identity,
		Output:   output,
		Items:    pkg.Pushed(),
	}
	if key != "" {
		if raw, err := json.Marshal(resp); err == nil {
			h.output.Set(ctx, key, raw)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
