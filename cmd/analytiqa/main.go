package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/innowave/analytiqa/internal/config"
	"github.com/innowave/analytiqa/internal/db"
	"github.com/innowave/analytiqa/internal/history"
	"github.com/innowave/analytiqa/internal/importer"
	"github.com/innowave/analytiqa/internal/jobs"
	"github.com/innowave/analytiqa/internal/portal"
	"github.com/innowave/analytiqa/internal/rules"
	s3client "github.com/innowave/analytiqa/internal/s3"
	"github.com/innowave/analytiqa/internal/server"
	"github.com/innowave/analytiqa/internal/stbtester"
)

func main() {
	cfg, err := config.Parse(os.Args[1:], os.Getenv)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "analytiqa: %v\n", err)
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("exiting", "error", err)
		os.Exit(1)
	}
	logger.Info("all background tasks stopped")
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	database, err := db.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = database.Close() }()

	if err := database.Seed(ctx, cfg.Reference.Seed()); err != nil {
		return fmt.Errorf("seed reference data: %w", err)
	}

	rec := history.NewRecorder(database, logger.With("component", "history"))
	dispatcher := rules.NewDispatcher(logger.With("component", "rules"))
	rules.NewEngine(database, rec, dispatcher, logger.With("component", "rules"))
	svc := portal.New(database, rec, dispatcher, logger.With("component", "portal"))
	imp := importer.New(database, logger.With("component", "importer"))
	queue := jobs.New(cfg.Jobs.Workers, cfg.Jobs.Buffer, logger.With("component", "jobs"))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return queue.Run(ctx) })

	deps := server.Deps{DB: database, Portal: svc, Importer: imp, Jobs: queue}

	if cfg.STB.Token != "" {
		client := stbtester.New(stbtester.Config{BaseURL: cfg.STB.URL, Token: cfg.STB.Token})
		deps.STB = client
		stbLog := logger.With("component", "stb-sync")
		logger.Info("stb-tester sync enabled", "url", cfg.STB.URL, "interval", cfg.STB.PollInterval)
		syncer := stbtester.NewSyncer(client, database, stbLog)
		g.Go(func() error {
			syncer.Run(ctx, cfg.STB.PollInterval)
			return nil
		})
	}

	if cfg.S3.Bucket != "" {
		s3Log := logger.With("component", "s3-sync")
		s3c, err := s3client.New(ctx, s3client.Config{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			Bucket:    cfg.S3.Bucket,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
		}, s3Log)
		if err != nil {
			return fmt.Errorf("create s3 client: %w", err)
		}
		logger.Info("s3 worksheet inbox enabled", "bucket", cfg.S3.Bucket, "endpoint", cfg.S3.Endpoint, "interval", cfg.S3.PollInterval)
		syncer := s3client.NewSyncer(s3c, imp, s3Log)
		g.Go(func() error {
			syncer.Run(ctx, cfg.S3.PollInterval)
			return nil
		})
	}

	srv := server.New(deps, cfg.Addr, logger.With("component", "http"))
	g.Go(func() error { return srv.Run(ctx) })

	return g.Wait()
}
