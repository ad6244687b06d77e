package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/innowave/analytiqa/internal/db"
	"github.com/innowave/analytiqa/internal/importer"
	"github.com/innowave/analytiqa/internal/jobs"
	"github.com/innowave/analytiqa/internal/portal"
	"github.com/innowave/analytiqa/internal/stbtester"
)

// STB is the part of the stb-tester client exposed over the API.
type STB interface {
	NodeStatus(ctx context.Context) ([]stbtester.NodeStatus, error)
	TestCaseNames(ctx context.Context, branch string) ([]string, error)
	RunTests(ctx context.Context, req stbtester.RunRequest) (*stbtester.Job, error)
}

// Deps are the services the HTTP layer delegates to. STB may be nil.
type Deps struct {
	DB       *db.DB
	Portal   *portal.Service
	Importer *importer.Importer
	Jobs     *jobs.Queue
	STB      STB
}

type Server struct {
	db       *db.DB
	portal   *portal.Service
	importer *importer.Importer
	jobs     *jobs.Queue
	stb      STB
	http     *http.Server
	logger   *slog.Logger
}

func New(deps Deps, addr string, logger *slog.Logger) *Server {
	s := &Server{
		db:       deps.DB,
		portal:   deps.Portal,
		importer: deps.Importer,
		jobs:     deps.Jobs,
		stb:      deps.STB,
		logger:   logger,
	}
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	var handler http.Handler = mux
	handler = loggingMiddleware(logger, handler)
	handler = recoveryMiddleware(logger, handler)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) Run(ctx context.Context) error {
	go func() {
		s.logger.Info("listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("server error", "error", err)
		}
	}()

	<-ctx.Done()
	s.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	return nil
}
