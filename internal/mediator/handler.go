// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package mediator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alex-klock/razor-mediator-4-tridion/internal/engine"
)

// Request is one render of one template.
type Request struct {
	Identity engine.Identity
	Source   *string   // nil is rejected by the generator
	Modified time.Time // last modification of Source
	Data     any       // root value handed to the unit

	// Location of the template in the repository, used by preprocessing.
	URI              string
	WebDavURL        string
	PublicationTitle string

	RenderMode string // host render mode, exposed to the template

	// Scratch marks a throwaway identity: it is never reported to
	// OnEvict.
	Scratch bool
}

// Preprocessor rewrites template source before it is registered.
type Preprocessor interface {
	Preprocess(ctx context.Context, req Request, source string) (string, error)
}

// PreprocessorFunc adapts a function to Preprocessor.
type PreprocessorFunc func(ctx context.Context, req Request, source string) (string, error)

func (f PreprocessorFunc) Preprocess(ctx context.Context, req Request, source string) (string, error) {
	return f(ctx, req, source)
}

// Options configures a Handler.
type Options struct {
	Namespaces   []string
	References   []string
	Preprocessor Preprocessor
	Logger       *slog.Logger
	// OnEvict is called with identities removed from the cache by a
	// sweep, a failed compilation or an explicit eviction. It runs after
	// the compile lock is released.
	OnEvict func(ids ...engine.Identity)
}

// Handler sequences sweep, registration, compilation and instantiation
// under one lock and executes units outside of it.
type Handler struct {
	mu           sync.Mutex
	gen          *engine.Generator
	namespaces   []string
	references   []string
	preprocessor Preprocessor
	logger       *slog.Logger
	onEvict      func(ids ...engine.Identity)
}

// NewHandler returns a handler rendering through gen.
func NewHandler(gen *engine.Generator, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		gen:          gen,
		namespaces:   append([]string(nil), opts.Namespaces...),
		references:   append([]string(nil), opts.References...),
		preprocessor: opts.Preprocessor,
		logger:       logger,
		onEvict:      opts.OnEvict,
	}
}

// CompileAndExecute renders req and returns the trimmed output.
func (h *Handler) CompileAndExecute(ctx context.Context, req Request) (string, error) {
	unit, err := h.prepare(ctx, req)
	if err != nil {
		return "", err
	}

	unit.Initialize(&engine.Context{
		Identity:   req.Identity,
		RenderMode: req.RenderMode,
		Data:       req.Data,
		References: h.references,
		Logger:     h.logger,
	})
	if err := execute(req.Identity, unit); err != nil {
		return "", err
	}
	return strings.TrimSpace(unit.String()), nil
}

// CompileOnly registers and compiles req without executing it.
func (h *Handler) CompileOnly(ctx context.Context, req Request) error {
	_, err := h.prepare(ctx, req)
	return err
}

// prepare returns a fresh unit for req. Preprocessing may read other
// templates, so it runs before the lock is taken.
func (h *Handler) prepare(ctx context.Context, req Request) (engine.Unit, error) {
	source := req.Source
	if source != nil && h.preprocessor != nil {
		out, err := h.preprocessor.Preprocess(ctx, req, *source)
		if err != nil {
			return nil, fmt.Errorf("preprocess %s: %w", req.Identity, err)
		}
		source = &out
	}

	unit, evicted, err := h.compile(req, source)
	h.notify(evicted)
	return unit, err
}

// compile runs the locked part of prepare and returns the identities it
// removed from the cache.
func (h *Handler) compile(req Request, source *string) (engine.Unit, []engine.Identity, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	evicted := h.gen.SweepStale()
	if len(evicted) > 0 {
		h.logger.Debug("stale templates swept", "count", len(evicted))
	}
	if err := h.gen.Register(req.Identity, source, h.namespaces, req.Modified); err != nil {
		return nil, evicted, err
	}
	if err := h.gen.CompileAll(h.references); err != nil {
		evicted = append(evicted, h.evictFailed(req, err)...)
		return nil, evicted, fmt.Errorf("compile %s: %w", req.Identity, err)
	}
	unit, err := h.gen.Instantiate(req.Identity)
	return unit, evicted, err
}

// evictFailed logs a failed compilation and removes its batch from the
// cache so the next render starts from fresh source. It returns the
// identities to report. Caller holds h.mu.
func (h *Handler) evictFailed(req Request, err error) []engine.Identity {
	id := req.Identity
	ids := []engine.Identity{id}

	var ce *engine.CompileError
	if errors.As(err, &ce) {
		for _, d := range ce.Diagnostics {
			attrs := []any{
				"code", d.Code,
				"identity", d.Identity.String(),
				"line", d.Line,
				"column", d.Column,
				"message", d.Message,
			}
			if d.Severity == engine.SeverityWarning {
				h.logger.Warn("template compilation warning", attrs...)
				continue
			}
			if d.Line > 0 {
				attrs = append(attrs, "context", ce.Context(d.Line, 2))
			}
			h.logger.Error("template compilation error", attrs...)
		}
		for _, b := range ce.Identities {
			if b != id {
				ids = append(ids, b)
			}
		}
	} else {
		h.logger.Error("template compilation failed", "identity", id.String(), "error", err)
	}

	h.gen.RemoveAll(ids...)
	if req.Scratch {
		return ids[1:]
	}
	return ids
}

// execute runs u and converts errors and panics into *ExecutionError.
func execute(id engine.Identity, u engine.Unit) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &engine.ExecutionError{Identity: id, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := u.Execute(); err != nil {
		return &engine.ExecutionError{Identity: id, Err: err}
	}
	return nil
}

// Sweep removes stale entries and entries older than grace. It returns
// the number removed by each sweep.
func (h *Handler) Sweep(grace time.Duration) (stale, expired int) {
	h.mu.Lock()
	staleIDs := h.gen.SweepStale()
	expiredIDs := h.gen.SweepExpired(grace)
	h.mu.Unlock()

	h.notify(append(staleIDs, expiredIDs...))
	return len(staleIDs), len(expiredIDs)
}

// Evict removes one entry and reports whether it existed.
func (h *Handler) Evict(id engine.Identity) bool {
	if !h.Discard(id) {
		return false
	}
	h.notify([]engine.Identity{id})
	return true
}

// Discard removes one entry without reporting it to OnEvict.
func (h *Handler) Discard(id engine.Identity) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.gen.Remove(id)
}

// Entries lists the cached entries.
func (h *Handler) Entries() []engine.EntryInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.gen.Snapshot()
}

func (h *Handler) notify(ids []engine.Identity) {
	if h.onEvict != nil && len(ids) > 0 {
		h.onEvict(ids...)
	}
}
