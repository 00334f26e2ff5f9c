package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// backfillJob is one pending embedding computation, tracked by entry key.
type backfillJob struct {
	key      string
	attempts int
}

// backfillPool is a bounded worker pool for asynchronous embedding backfill.
// Failures are retried on a delay rather than blocking the request path;
// a full queue drops the job (the scheduled BackfillMissingEmbeddings sweep
// catches anything dropped here).
type backfillPool struct {
	jobs        chan backfillJob
	process     func(ctx context.Context, key string) error
	logger      *slog.Logger
	retryDelay  time.Duration
	maxAttempts int

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func newBackfillPool(workers, queueSize int, process func(ctx context.Context, key string) error, logger *slog.Logger) *backfillPool {
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 64
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &backfillPool{
		jobs:        make(chan backfillJob, queueSize),
		process:     process,
		logger:      logger,
		retryDelay:  5 * time.Second,
		maxAttempts: 3,
		cancel:      cancel,
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker(ctx)
	}
	return p
}

// Submit enqueues a backfill without blocking. Returns false if the queue is full.
func (p *backfillPool) Submit(key string) bool {
	select {
	case p.jobs <- backfillJob{key: key, attempts: 0}:
		return true
	default:
		p.logger.Warn("embedding backfill queue full, dropping job",
			slog.String("entry_key", key),
		)
		return false
	}
}

// Close stops the workers and waits for in-flight jobs to finish.
func (p *backfillPool) Close() {
	p.cancel()
	p.wg.Wait()
}

func (p *backfillPool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.jobs:
			p.run(ctx, job)
		}
	}
}

func (p *backfillPool) run(ctx context.Context, job backfillJob) {
	err := p.process(ctx, job.key)
	if err == nil {
		return
	}

	job.attempts++
	p.logger.Warn("embedding backfill failed",
		slog.String("entry_key", job.key),
		slog.Int("attempt", job.attempts),
		slog.String("error", err.Error()),
	)

	if job.attempts >= p.maxAttempts {
		return
	}

	// Re-enqueue after a delay; drop silently if the pool is shutting down.
	time.AfterFunc(p.retryDelay, func() {
		select {
		case p.jobs <- job:
		default:
		}
	})
}
