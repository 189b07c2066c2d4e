package dispatch

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/aloonj/reefnotify/internal/backoff"
	"github.com/aloonj/reefnotify/internal/ratelimiter"
	"github.com/aloonj/reefnotify/internal/sender"
	"github.com/aloonj/reefnotify/internal/store"
)

// Pool manages the lifecycle of all dispatch workers. Workers do not talk to
// each other; they only share the job store, whose atomic claim keeps them
// from ever dispatching the same job twice.
type Pool struct {
	workers []*Worker
	wg      sync.WaitGroup
}

// NewPool creates n identical dispatch workers.
func NewPool(
	n int,
	st store.JobStore,
	snd sender.Sender,
	limiter *ratelimiter.TypeLimiters,
	policy backoff.Policy,
	opts Options,
	logger *zap.Logger,
	hooks MetricHooks,
) *Pool {
	workers := make([]*Worker, n)
	for i := range workers {
		workers[i] = NewWorker(
			i, st, snd, limiter, policy, opts,
			logger.With(zap.Int("worker_id", i)),
			hooks,
		)
	}
	return &Pool{workers: workers}
}

// Start launches all workers as goroutines. Cancelling ctx triggers a
// graceful shutdown of the entire pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.Run(ctx)
		}(w)
	}
}

// Wait blocks until every worker has returned after ctx is cancelled.
// Call this after cancelling the context so in-flight sends finish.
func (p *Pool) Wait() {
	p.wg.Wait()
}
