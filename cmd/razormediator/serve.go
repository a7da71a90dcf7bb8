// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alex-klock/razor-mediator-4-tridion/internal/cache"
	"github.com/alex-klock/razor-mediator-4-tridion/internal/config"
	"github.com/alex-klock/razor-mediator-4-tridion/internal/database"
	"github.com/alex-klock/razor-mediator-4-tridion/internal/engine"
	"github.com/alex-klock/razor-mediator-4-tridion/internal/filesource"
	"github.com/alex-klock/razor-mediator-4-tridion/internal/handlers"
	"github.com/alex-klock/razor-mediator-4-tridion/internal/imports"
	"github.com/alex-klock/razor-mediator-4-tridion/internal/mediator"
	"github.com/alex-klock/razor-mediator-4-tridion/internal/middleware"
	"github.com/alex-klock/razor-mediator-4-tridion/internal/router"
	"github.com/alex-klock/razor-mediator-4-tridion/internal/storage"
	"github.com/alex-klock/razor-mediator-4-tridion/internal/store"
	"github.com/alex-klock/razor-mediator-4-tridion/internal/sweeper"
)

func newServeCmd(g *globalOptions) *cobra.Command {
	var templatesDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the render and cache administration HTTP server",
		Long: `Run the HTTP server. Templates come from PostgreSQL and, when a
templates directory is given, from files watched for changes. Valkey
caches rendered output and S3 receives extracted binaries when configured.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if templatesDir != "" {
				cfg.TemplatesDir = templatesDir
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&templatesDir, "templates-dir", "", "directory of template files; overrides TEMPLATES_DIR")
	return cmd
}

// serve runs the server until ctx is done, then drains connections.
func serve(ctx context.Context, cfg *config.Config) error {
	slog.Info("configuration loaded", "env", cfg.Env, "addr", cfg.Addr())

	db, err := database.Connect(cfg.DSN())
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	if cfg.IsDev() {
		if err := database.Seed(db); err != nil {
			return fmt.Errorf("seed database: %w", err)
		}
	}

	templateStore := store.NewTemplateStore(db)
	binaryStore := store.NewBinaryStore(db)
	revisionStore := store.NewTemplateRevisionStore(db)
	cacheLog := store.NewCacheLogStore(db)

	// Rendered-output cache (optional).
	var outputCache *cache.OutputCache
	if cfg.ValkeyHost != "" {
		client, err := cache.ConnectValkey(cfg.ValkeyHost, cfg.ValkeyPort, cfg.ValkeyPassword)
		if err != nil {
			return fmt.Errorf("connect valkey: %w", err)
		}
		defer client.Close()
		outputCache = cache.NewOutputCache(client, cfg.OutputCacheTTL)
	} else {
		slog.Warn("valkey not configured, rendered output is not cached")
	}

	deps := mediator.Dependencies{
		Resolver: binaryStore,
		Logger:   slog.Default(),
	}

	// Binary publishing (optional; without it links point at the binary URI).
	storageClient, err := storage.New(
		cfg.S3Endpoint, cfg.S3Region, cfg.S3AccessKey, cfg.S3SecretKey,
		cfg.S3Bucket, cfg.S3PublicURL,
	)
	if err != nil {
		return fmt.Errorf("initialize s3 storage: %w", err)
	}
	if storageClient != nil {
		deps.Publisher = storageClient
		slog.Info("s3 storage connected", "endpoint", cfg.S3Endpoint, "bucket", storageClient.Bucket())
	} else {
		slog.Warn("s3 storage not configured, extracted binaries are not published")
	}

	// Template sources: the directory first, then the database.
	loaders := handlers.Loaders{}
	sources := imports.Sources{}
	var files *filesource.Source
	if cfg.TemplatesDir != "" {
		files, err = filesource.New(cfg.TemplatesDir)
		if err != nil {
			return err
		}
		loaders = append(loaders, handlers.NewDirLoader(files))
		sources = append(sources, files)
	}
	loaders = append(loaders, handlers.NewStoreLoader(templateStore))
	sources = append(sources, templateStore)
	deps.Source = sources

	// OnEvict runs on the render path after the compile lock is released.
	deps.OnEvict = func(ids ...engine.Identity) {
		if outputCache != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			outputCache.Invalidate(ctx, ids...)
			cancel()
		}
		go cacheLog.Log(context.Background(), "evicted", slices.Clone(ids)...)
	}

	m, err := mediator.New(deps)
	if err != nil {
		return err
	}
	if err := m.Configure(cfg.Mediator); err != nil {
		return err
	}

	limiter := middleware.NewRateLimiter(cfg.RenderRateLimit, time.Minute)

	if cfg.SweepSchedule != "" {
		sw, err := sweeper.New(cfg.SweepSchedule, func() (int, int, error) {
			limiter.Prune()
			return m.Sweep()
		})
		if err != nil {
			return err
		}
		sw.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			sw.Stop(stopCtx)
		}()
	}

	if files != nil {
		go func() {
			if err := files.Watch(ctx, files.Evictor(m.Handler())); err != nil {
				slog.Error("template watcher stopped", "error", err)
			}
		}()
	}

	// A nil *cache.OutputCache must not become a non-nil interface.
	var output handlers.OutputCache
	if outputCache != nil {
		output = outputCache
	}

	r := router.New(router.Options{
		Render:            handlers.NewRender(m, loaders, output),
		Admin:             handlers.NewAdmin(m, templateStore, binaryStore, output).WithHistory(revisionStore, cacheLog),
		Limiter:           limiter,
		AdminUser:         cfg.AdminUser,
		AdminPasswordHash: cfg.AdminPasswordHash,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	// Give active requests up to 30 seconds to complete.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}
