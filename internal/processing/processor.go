// Package processing runs sign jobs on an in-process goroutine pool. It is the
// fallback when no Redis queue is configured.
package processing

import (
	"context"
	"errors"

	"github.com/go-logr/logr"

	"github.com/dharsanguruparan/imagesigner/internal/queue"
)

// ErrQueueFull is returned by Enqueue when the buffer is saturated.
var ErrQueueFull = errors.New("processing queue full")

// HandlerFunc processes a single job.
type HandlerFunc func(ctx context.Context, payload queue.SignPayload) error

// Pool consumes sign jobs with a fixed number of workers.
type Pool struct {
	handle  HandlerFunc
	queue   chan queue.SignPayload
	workers int
	logger  logr.Logger
}

// New builds a Pool with queue capacity tied to worker count.
func New(handle HandlerFunc, workers int, logger logr.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		handle:  handle,
		queue:   make(chan queue.SignPayload, workers*4),
		workers: workers,
		logger:  logger,
	}
}

// Start launches worker goroutines that run until ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		go p.worker(ctx)
	}
}

// Enqueue queues a job without blocking.
func (p *Pool) Enqueue(_ context.Context, payload queue.SignPayload) error {
	select {
	case p.queue <- payload:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *Pool) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-p.queue:
			// The handler records its own failures in the ledger.
			if err := p.handle(ctx, payload); err != nil {
				p.logger.V(1).Info("job failed", "issuance", payload.IssuanceID, "err", err.Error())
			}
		}
	}
}
