// Command server runs the image signer HTTP API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/imagesigner/internal/config"
	"github.com/dharsanguruparan/imagesigner/internal/database"
	"github.com/dharsanguruparan/imagesigner/internal/logging"
	"github.com/dharsanguruparan/imagesigner/internal/processing"
	"github.com/dharsanguruparan/imagesigner/internal/queue"
	"github.com/dharsanguruparan/imagesigner/internal/repository"
	"github.com/dharsanguruparan/imagesigner/internal/s3storage"
	"github.com/dharsanguruparan/imagesigner/internal/server"
	"github.com/dharsanguruparan/imagesigner/internal/signing"
	"github.com/dharsanguruparan/imagesigner/internal/storage"
	"github.com/dharsanguruparan/imagesigner/internal/tool"
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
		logger.Error(err, "server stopped")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger logr.Logger) error {
	backend, err := selectJobBackend(cfg)
	if err != nil {
		return err
	}

	issuer := signing.NewIssuer(signing.WithHost(cfg.ContentHost))
	deps := server.Deps{
		Tool:   tool.New(issuer),
		Logger: logger,
	}

	var ledger worker.Ledger
	if cfg.DatabaseEnabled() {
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()
		if err := database.EnsureSchema(ctx, pool); err != nil {
			return err
		}
		repo := repository.NewIssuanceRepository(pool)
		deps.Ledger, ledger = repo, repo
	} else {
		mem := storage.NewMemoryStore()
		deps.Ledger, ledger = mem, mem
	}

	switch backend {
	case backendQueue:
		client := asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer client.Close()
		deps.Jobs = queue.NewClient(client)
		if cfg.StorageEnabled() {
			store, err := s3storage.New(cfg)
			if err != nil {
				return err
			}
			deps.Manifests = store
			deps.Presigner = store
		}
	case backendInProcess:
		// No Redis: sign queued jobs in-process and keep manifests in memory.
		manifests := storage.NewManifestStore()
		proc := worker.NewProcessor(issuer, []byte(cfg.SigningSecret), ledger, manifests, logger.WithName("worker"))
		pool := processing.New(proc.Process, cfg.Workers, logger.WithName("pool"))
		pool.Start(ctx)
		deps.Jobs = pool
		deps.Manifests = manifests
	default:
		logger.Info("job endpoints disabled: neither a queue nor a signing secret is configured")
	}

	return server.New(cfg.Address, deps).Serve(ctx)
}

type jobBackend int

const (
	backendNone jobBackend = iota
	backendQueue
	backendInProcess
)

// selectJobBackend decides who signs queued jobs. The out-of-process worker
// records results in PostgreSQL, so the queue is only usable when this
// process reads the same database.
func selectJobBackend(cfg *config.Config) (jobBackend, error) {
	switch {
	case cfg.QueueEnabled():
		if !cfg.DatabaseEnabled() {
			return backendNone, fmt.Errorf("%w: IMAGESIGNER_REDIS_ADDR requires IMAGESIGNER_DATABASE_URL", config.ErrInvalidConfig)
		}
		return backendQueue, nil
	case cfg.SigningSecret != "":
		return backendInProcess, nil
	default:
		return backendNone, nil
	}
}
