// Package ui serves the subject browser for a data root: live subject list,
// per-subject detail with checks and actions, and a JSON API for scripts.
package ui

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/fraser29/zfmrf/internal/checks"
	"github.com/fraser29/zfmrf/internal/state"
	"github.com/fraser29/zfmrf/internal/ui/notify"
	"github.com/fraser29/zfmrf/pkg/core"
	"github.com/fraser29/zfmrf/pkg/zfmrf"
)

// Config holds configuration for the UI server.
type Config struct {
	DataRoot      string
	SubjectPrefix string
	Lab           zfmrf.Config
	Store         core.Store
	Port          int
	Watch         bool
	Debounce      time.Duration
	ChecksFile    string
	Logger        *slog.Logger
}

// Server is the UI server for one data root.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	hub      *notify.Hub
	metrics  *Metrics
	handlers *Handlers
}

// NewServer creates a UI server, loading lab checks from the configured
// checks script.
func NewServer(cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 250 * time.Millisecond
	}

	scriptChecks, err := checks.LoadScript(cfg.ChecksFile, logger)
	if err != nil {
		return nil, err
	}
	runner := checks.NewRunner(logger, scriptChecks...)

	tmpl, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	hub := notify.NewHub()
	metrics := NewMetrics()
	return &Server{
		cfg:      cfg,
		logger:   logger,
		hub:      hub,
		metrics:  metrics,
		handlers: newHandlers(cfg, runner, hub, metrics, tmpl, logger),
	}, nil
}

// Hub returns the change hub, for callers that reindex outside the watcher.
func (s *Server) Hub() *notify.Hub {
	return s.hub
}

// Serve syncs the index with the data root, then serves HTTP until the
// context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	n, err := state.SyncIndex(ctx, s.cfg.Store, s.cfg.DataRoot, s.cfg.SubjectPrefix, s.logger)
	if err != nil {
		return fmt.Errorf("sync index: %w", err)
	}
	s.metrics.SetSubjectsIndexed(n)
	s.logger.Info("starting UI server",
		"addr", fmt.Sprintf("http://localhost:%d", s.cfg.Port), "subjects", n)

	eg, egctx := errgroup.WithContext(ctx)

	r := chi.NewMux()
	r.Use(
		middleware.Logger,
		middleware.Recoverer,
		middleware.Compress(5),
	)
	s.handlers.Routes(r)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Port),
		Handler: r,
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start the data root watcher if enabled
	if s.cfg.Watch {
		eg.Go(func() error {
			return s.watchFiles(egctx)
		})
	}

	// Start HTTP server
	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down UI server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
