// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package router sets up all HTTP routes and middleware chains for the
// mediator service. It organizes routes into render and admin groups with
// appropriate middleware stacks.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/alex-klock/razor-mediator-4-tridion/internal/handlers"
	"github.com/alex-klock/razor-mediator-4-tridion/internal/middleware"
)

// Options carries the handlers and guards the router wires up.
type Options struct {
	Render  *handlers.Render
	Admin   *handlers.Admin
	Limiter *middleware.RateLimiter // nil disables render rate limiting

	AdminUser         string
	AdminPasswordHash string
}

// New creates and returns the configured Chi router with all middleware
// and route groups wired up.
func New(opts Options) chi.Router {
	r := chi.NewRouter()

	// Global middleware, applied to every request.
	r.Use(chimw.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.APIHeaders)

	r.Get("/health", healthHandler)

	// Renders: template kind, then the template id (tcm URI or file name).
	r.Group(func(r chi.Router) {
		if opts.Limiter != nil {
			r.Use(opts.Limiter.Middleware)
		}
		r.Post("/render/{kind}/*", opts.Render.Render)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.AdminAuth(opts.AdminUser, opts.AdminPasswordHash))

		r.Get("/cache", opts.Admin.CacheEntries)
		r.Get("/cache/log", opts.Admin.CacheLog)
		r.Post("/cache/sweep", opts.Admin.CacheSweep)
		r.Delete("/cache/{kind}/*", opts.Admin.CacheEvict)

		r.Post("/validate", opts.Admin.Validate)

		r.Get("/templates", opts.Admin.TemplatesList)
		r.Put("/templates", opts.Admin.TemplateSave)
		r.Delete("/templates/{kind}/*", opts.Admin.TemplateDelete)
		r.Get("/revisions/{kind}/*", opts.Admin.TemplateRevisions)

		r.Put("/binaries", opts.Admin.BinarySave)
		r.Delete("/binaries/*", opts.Admin.BinaryDelete)
	})

	return r
}

// healthHandler returns a simple JSON health check response.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
