// Command worker consumes queued sign jobs from Redis.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/imagesigner/internal/config"
	"github.com/dharsanguruparan/imagesigner/internal/database"
	"github.com/dharsanguruparan/imagesigner/internal/logging"
	"github.com/dharsanguruparan/imagesigner/internal/repository"
	"github.com/dharsanguruparan/imagesigner/internal/s3storage"
	"github.com/dharsanguruparan/imagesigner/internal/signing"
	"github.com/dharsanguruparan/imagesigner/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error(err, "worker stopped")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger logr.Logger) error {
	switch {
	case cfg.SigningSecret == "":
		return errors.New("IMAGESIGNER_SIGNING_SECRET is required")
	case !cfg.QueueEnabled():
		return errors.New("IMAGESIGNER_REDIS_ADDR is required")
	case !cfg.DatabaseEnabled():
		return errors.New("IMAGESIGNER_DATABASE_URL is required")
	case !cfg.StorageEnabled():
		return errors.New("IMAGESIGNER_S3_ENDPOINT is required")
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		return err
	}

	store, err := s3storage.New(cfg)
	if err != nil {
		return err
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return err
	}

	issuer := signing.NewIssuer(signing.WithHost(cfg.ContentHost))
	processor := worker.NewProcessor(issuer, []byte(cfg.SigningSecret), repository.NewIssuanceRepository(pool), store, logger)

	srv := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, asynq.Config{
		Concurrency: cfg.Workers,
	})
	if err := srv.Start(processor.Handler()); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	logger.Info("worker started", "concurrency", cfg.Workers)
	<-ctx.Done()
	srv.Shutdown()
	return nil
}
