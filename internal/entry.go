// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/starford/notegraph/internal/api"
	"github.com/starford/notegraph/internal/index"
	"github.com/starford/notegraph/internal/mcpserver"
	"github.com/starford/notegraph/internal/noteservice"
	"github.com/starford/notegraph/internal/sse"
	"github.com/starford/notegraph/internal/storage"
)

const (
	graphThrottle   = 2 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Query is a one-shot read against the service. Its result is printed as
// indented JSON by RunQuery.
type Query func(ctx context.Context, svc *noteservice.Service) (any, error)

// backend is the vault, its index and the service built on them.
type backend struct {
	store *storage.FS
	db    *index.DB
	svc   *noteservice.Service
}

func (b *backend) Close() error {
	return b.db.Close()
}

func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout, version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

func (a *application) newLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(a.logOutput, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// openBackend prepares the vault directory, opens the index and brings it
// in line with the files on disk.
func openBackend(cfg *Config, logger *slog.Logger, opts ...noteservice.Option) (*backend, error) {
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	if err := index.Sync(db, store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	opts = append([]noteservice.Option{
		noteservice.WithLimits(cfg.Suggest.Limit, cfg.Search.Limit),
	}, opts...)

	return &backend{
		store: store,
		db:    db,
		svc:   noteservice.NewService(store, db, opts...),
	}, nil
}

// Run starts the HTTP server and the vault watcher and blocks until ctx is
// cancelled or a shutdown signal arrives.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.newLogger()

	logger.Info("Configuration loaded",
		slog.String("version", app.version),
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()),
		slog.Bool("auth_enabled", cfg.Auth.AuthEnabled()),
		slog.Int("suggest_limit", cfg.Suggest.Limit),
		slog.Int("search_limit", cfg.Search.Limit))

	broker := sse.NewBroker(graphThrottle)
	defer broker.Close()

	be, err := openBackend(cfg, logger, noteservice.WithEvents(broker.PublishNoteEvent))
	if err != nil {
		return err
	}
	defer be.Close()

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           newHTTPHandler(cfg, be, broker),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := index.Watch(gCtx, be.db, be.store, logger, broker.PublishNoteEvent); err != nil {
			return fmt.Errorf("watcher: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

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

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		// Unblock the watcher when shutdown came from a signal.
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

var errShutdown = errors.New("shutdown")

// newHTTPHandler assembles the root router: health probes, public
// attachment downloads and the authenticated /api tree, wrapped in CORS.
func newHTTPHandler(cfg *Config, be *backend, broker *sse.Broker) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	health := func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
	r.Get("/health/live", health)
	r.Get("/health/ready", health)

	r.Get("/attachments/{filename}", api.NewAttachmentHandler(be.store.Root()).ServeFile)

	r.Mount("/api", api.NewRouter(be.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker, be.store.Root()))

	if len(cfg.App.HTTP.CORSOrigins) == 0 {
		return r
	}
	return cors.New(cors.Options{
		AllowedOrigins: cfg.App.HTTP.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "If-Match"},
		ExposedHeaders: []string{"ETag", "Content-Length"},
		MaxAge:         86400,
	}).Handler(r)
}

// RunMCP serves the MCP tools on stdio. The watcher keeps the index current
// while the session is open.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	logger := app.newLogger()

	be, err := openBackend(app.config, logger)
	if err != nil {
		return err
	}
	defer be.Close()

	g, gCtx := errgroup.WithContext(ctx)
	watchCtx, stopWatch := context.WithCancel(gCtx)

	g.Go(func() error {
		return index.Watch(watchCtx, be.db, be.store, logger, nil)
	})

	g.Go(func() error {
		defer stopWatch()
		logger.Info("MCP server starting on stdio", slog.String("version", app.version))
		return mcpserver.New(be.svc, be.store, app.version).ServeStdio()
	})

	return g.Wait()
}

// RunQuery opens the vault, runs q once and writes its result to w.
func RunQuery(ctx context.Context, w io.Writer, q Query, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	logger := app.newLogger()

	be, err := openBackend(app.config, logger)
	if err != nil {
		return err
	}
	defer be.Close()

	res, err := q(ctx, be.svc)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
