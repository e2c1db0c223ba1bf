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

	"github.com/starford/quill/internal/agent"
	"github.com/starford/quill/internal/api"
	"github.com/starford/quill/internal/capability"
	"github.com/starford/quill/internal/mcpserver"
	"github.com/starford/quill/internal/models"
	"github.com/starford/quill/internal/notes"
	"github.com/starford/quill/internal/planner/anthropic"
	"github.com/starford/quill/internal/planner/openai"
	"github.com/starford/quill/internal/sandbox"
	"github.com/starford/quill/internal/sse"
	"github.com/starford/quill/internal/storage"
	"github.com/starford/quill/internal/watch"
)

// core is everything both the HTTP server and the MCP server need.
type core struct {
	cfg      *Config
	logger   *slog.Logger
	dir      *sandbox.Dir
	store    storage.Provider
	registry *capability.Registry
}

func setup(opts []Option) (*application, *core, error) {
	app := &application{logOut: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("notes_dir", cfg.Notes.Dir),
		slog.String("llm_provider", cfg.LLM.Provider),
		slog.String("llm_model", cfg.LLM.Model),
		slog.Int("max_turns", cfg.Agent.MaxTurns),
		slog.String("log_level", cfg.App.LogLevel.String()))

	dir, err := sandbox.New(cfg.Notes.Dir)
	if err != nil {
		return nil, nil, fmt.Errorf("init notes dir: %w", err)
	}
	store := storage.NewFS(dir)

	return app, &core{
		cfg:      cfg,
		logger:   logger,
		dir:      dir,
		store:    store,
		registry: capability.NewRegistry(notes.NewNotebook(store, logger)),
	}, nil
}

// newPlanner builds the planner for the configured provider.
func newPlanner(cfg LLMConfig) (agent.Planner, error) {
	switch cfg.Provider {
	case ProviderOpenAI, "":
		return openai.NewPlanner(
			openai.WithModel(cfg.Model),
			openai.WithAPIKey(cfg.APIKey),
			openai.WithBaseURL(cfg.BaseURL),
			openai.WithTemperature(cfg.Temperature),
			openai.WithMaxRetries(cfg.MaxRetries),
		)
	case ProviderAnthropic:
		model := cfg.Model
		if model == openai.DefaultModel {
			model = anthropic.DefaultModel
		}
		return anthropic.NewPlanner(
			anthropic.WithModel(model),
			anthropic.WithAPIKey(cfg.APIKey),
			anthropic.WithBaseURL(cfg.BaseURL),
			anthropic.WithTemperature(cfg.Temperature),
			anthropic.WithMaxTokens(cfg.MaxTokens),
			anthropic.WithMaxRetries(cfg.MaxRetries),
		)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// NewHandler assembles the full HTTP handler: middleware, health checks and
// the API routes.
func NewHandler(h *api.Handler, events http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints.
	r.Get("/health/live", healthOK)
	r.Get("/health/ready", healthOK)

	r.Mount("/", api.NewRouter(h, events))
	return r
}

func healthOK(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, c, err := setup(opts)
	if err != nil {
		return err
	}
	cfg, logger := c.cfg, c.logger

	planner := app.planner
	if planner == nil {
		if planner, err = newPlanner(cfg.LLM); err != nil {
			return fmt.Errorf("init planner: %w", err)
		}
	}

	runner, err := agent.New(planner, c.registry,
		agent.WithMaxTurns(cfg.Agent.MaxTurns),
		agent.WithSystemPrompt(cfg.Agent.SystemPrompt),
		agent.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("init agent: %w", err)
	}

	// SSE broker, seeded with the current listing.
	initial, err := c.store.List()
	if err != nil {
		logger.Warn("initial listing failed", slog.String("error", err.Error()))
	}
	broker := sse.NewBroker(initial, sse.DefaultListThrottle, logger)
	defer broker.Close()

	watcher := openWatcher(c.dir.Root(), c.store, logger)

	handler := NewHandler(api.NewHandler(runner, c.store, logger), broker)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Forward notes-directory changes to SSE clients.
	if watcher != nil {
		g.Go(func() error {
			return watcher.Run(gCtx, forward(broker))
		})
	}

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

		// Open SSE streams only end when their clients leave or the
		// broker closes.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		// A non-nil return cancels gCtx, which stops the watcher.
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

// openWatcher starts the change feed. It returns nil when no watch can be
// set up (e.g. the inotify limit is reached); /events then still serves the
// listing on connect.
func openWatcher(root string, store storage.Provider, logger *slog.Logger) *watch.Watcher {
	w, err := watch.Open(root, store, logger)
	if err != nil {
		logger.Warn("file watcher disabled", slog.String("root", root), slog.String("error", err.Error()))
		return nil
	}
	return w
}

func forward(b *sse.Broker) watch.Callback {
	return func(kind watch.Kind, note models.NoteInfo) {
		b.NoteChanged(sse.Change{Type: eventType(kind), Note: note})
	}
}

func eventType(k watch.Kind) string {
	switch k {
	case watch.Created:
		return sse.TypeNoteCreated
	case watch.Removed:
		return sse.TypeNoteRemoved
	default:
		return sse.TypeNoteUpdated
	}
}

// ServeMCP exposes the note capabilities over MCP stdio until stdin closes.
// Logs go to stderr unless WithLogOutput says otherwise.
func ServeMCP(_ context.Context, opts ...Option) error {
	_, c, err := setup(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	c.logger.Info("MCP server starting", slog.String("notes_dir", c.dir.Root()))
	return mcpserver.New(c.registry, c.store).ServeStdio()
}
