// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/horizon/internal/api"
	"github.com/starford/horizon/internal/boardservice"
	"github.com/starford/horizon/internal/catalog"
	"github.com/starford/horizon/internal/mcpserver"
	"github.com/starford/horizon/internal/sse"
	"github.com/starford/horizon/internal/storage"
)

const boardThrottle = 500 * time.Millisecond

// runtime holds the components shared by the HTTP and MCP entry points.
type runtime struct {
	cfg    *Config
	logger *slog.Logger
	store  *storage.FS
	db     *catalog.DB
}

func setup(opts []Option) (*application, *runtime, error) {
	app := &application{version: "dev", logOutput: os.Stdout}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("workspace_path", cfg.Workspace.Path),
		slog.String("settings_file", cfg.Workspace.SettingsFile),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// The workspace must already exist; Horizon never creates it.
	if fi, err := os.Stat(cfg.Workspace.Path); err != nil || !fi.IsDir() {
		return nil, nil, fmt.Errorf("workspace %s is not a directory", cfg.Workspace.Path)
	}

	store, err := storage.NewFS(cfg.Workspace.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := catalog.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("init catalog: %w", err)
	}

	return app, &runtime{cfg: cfg, logger: logger, store: store, db: db}, nil
}

// service builds the board session and runs the initial catalog sync.
// watched is set when watchWorkspace keeps the catalog current.
func (rt *runtime) service(events boardservice.Publisher, watched bool) (*boardservice.Service, error) {
	svc, err := boardservice.NewService(boardservice.Deps{
		Store:        rt.store,
		Catalog:      rt.db,
		Events:       events,
		SettingsFile: rt.cfg.Workspace.SettingsFile,
		Watched:      watched,
		Logger:       rt.logger,
	})
	if err != nil {
		return nil, err
	}

	// Run initial sync.
	if b, _ := svc.Settings(); b.StoryDirectory != "" {
		if err := catalog.Sync(rt.db, rt.store, b.StoryDirectory, rt.logger); err != nil {
			rt.logger.Warn("initial sync failed", slog.String("error", err.Error()))
		}
	}
	return svc, nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	_, rt, err := setup(opts)
	if err != nil {
		return err
	}
	defer rt.db.Close()
	cfg, logger := rt.cfg, rt.logger

	// SSE broker.
	broker := sse.NewBroker(boardThrottle)
	defer broker.Close()

	svc, err := rt.service(broker, true)
	if err != nil {
		return fmt.Errorf("init board: %w", err)
	}

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := rt.db.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"catalog unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api; the board page is served at the root.
	r.Mount("/api", api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker))
	r.Method(http.MethodGet, "/", api.PageHandler(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token))

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start file watcher with SSE callback.
	g.Go(func() error {
		return watchWorkspace(gCtx, rt, svc, broker)
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// Close the broker first so open event streams end and Shutdown
		// does not wait on them.
		broker.Close()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group once shutdown is requested so the watcher
// stops with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the board tools over MCP stdio until stdin closes.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, rt, err := setup(opts)
	if err != nil {
		return err
	}
	defer rt.db.Close()

	svc, err := rt.service(nil, false)
	if err != nil {
		return fmt.Errorf("init board: %w", err)
	}

	rt.logger.Info("MCP server starting", slog.String("version", app.version))
	if err := mcpserver.New(svc, app.version).ServeStdio(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

// watchWorkspace runs the catalog watcher and forwards its events to the
// broker. When the settings file points the board at another story
// directory, the watcher is restarted on the new one.
func watchWorkspace(ctx context.Context, rt *runtime, svc *boardservice.Service, broker *sse.Broker) error {
	for {
		b, _ := svc.Settings()
		storyDir := b.StoryDirectory

		wctx, cancel := context.WithCancel(ctx)
		restart := false
		err := catalog.Watch(wctx, rt.db, rt.store, storyDir, rt.cfg.Workspace.SettingsFile, rt.logger,
			func(kind, path string) {
				broker.PublishStoryEvent(kind, path)
				if kind != catalog.KindSettings {
					return
				}
				if nb, _ := svc.Settings(); nb.StoryDirectory != storyDir {
					restart = true
					cancel()
				}
			})
		cancel()

		switch {
		case ctx.Err() != nil:
			return nil
		case err != nil:
			rt.logger.Error("watcher failed", slog.String("error", err.Error()))
			return nil
		case !restart:
			return nil
		}

		rt.logger.Info("story directory changed, restarting watcher",
			slog.String("from", storyDir))
		if nb, _ := svc.Settings(); nb.StoryDirectory != "" {
			if err := catalog.Sync(rt.db, rt.store, nb.StoryDirectory, rt.logger); err != nil {
				rt.logger.Warn("sync failed", slog.String("error", err.Error()))
			}
		}
	}
}
