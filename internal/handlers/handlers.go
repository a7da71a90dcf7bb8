// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package handlers contains the HTTP handlers of the mediator service.
// Handlers are grouped by concern (render, admin) and receive their
// dependencies through the handler struct.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/alex-klock/razor-mediator-4-tridion/internal/engine"
	"github.com/alex-klock/razor-mediator-4-tridion/internal/imports"
	"github.com/alex-klock/razor-mediator-4-tridion/internal/mediator"
)

// maxBodyBytes caps request bodies; templates and binaries travel as JSON.
const maxBodyBytes = 16 << 20

// OutputCache stores rendered responses. *cache.OutputCache implements it.
type OutputCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, output []byte)
	Invalidate(ctx context.Context, ids ...engine.Identity)
	InvalidateAll(ctx context.Context)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON reads the request body into v. An empty body leaves v as is.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// compileFailure is the body returned for a template that does not compile.
type compileFailure struct {
	Error       string              `json:"error"`
	Diagnostics []engine.Diagnostic `json:"diagnostics"`
}

// writeRenderError maps mediator errors to HTTP responses.
func writeRenderError(w http.ResponseWriter, id engine.Identity, err error) {
	var ce *engine.CompileError
	var ee *engine.ExecutionError
	switch {
	case errors.As(err, &ce):
		writeJSON(w, http.StatusUnprocessableEntity, compileFailure{
			Error:       "template compilation failed",
			Diagnostics: ce.Diagnostics,
		})
	case errors.As(err, &ee):
		slog.Warn("template execution failed", "identity", id.String(), "error", ee.Err)
		writeError(w, http.StatusUnprocessableEntity, ee.Error())
	case errors.Is(err, engine.ErrRegistration):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, mediator.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "mediator is not configured")
	case errors.Is(err, imports.ErrAdminUserRequired):
		slog.Error("render failed", "identity", id.String(), "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		slog.Error("render failed", "identity", id.String(), "error", err)
		writeError(w, http.StatusInternalServerError, "render failed")
	}
}
