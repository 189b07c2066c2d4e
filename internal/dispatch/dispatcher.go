// Package dispatch runs the worker loop: claim due jobs, deliver them
// through the send collaborator, and record each outcome.
package dispatch

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aloonj/reefnotify/internal/backoff"
	"github.com/aloonj/reefnotify/internal/domain"
	"github.com/aloonj/reefnotify/internal/ratelimiter"
	"github.com/aloonj/reefnotify/internal/sender"
	"github.com/aloonj/reefnotify/internal/store"
)

// MetricHooks carries the metric callback functions injected by main.
// Using a struct keeps the worker metrics-agnostic. Nil hooks are no-ops.
type MetricHooks struct {
	OnCompleted   func(t domain.JobType, latency time.Duration)
	OnRescheduled func(t domain.JobType)
	OnFailed      func(t domain.JobType)
}

func (h *MetricHooks) fillDefaults() {
	if h.OnCompleted == nil {
		h.OnCompleted = func(domain.JobType, time.Duration) {}
	}
	if h.OnRescheduled == nil {
		h.OnRescheduled = func(domain.JobType) {}
	}
	if h.OnFailed == nil {
		h.OnFailed = func(domain.JobType) {}
	}
}

// Options bundles the dispatcher's tuning knobs.
type Options struct {
	Tick        time.Duration // claim poll interval
	BatchSize   int           // max jobs claimed per tick
	StaleAfter  time.Duration // processing jobs older than this are reclaimed
	MaxInFlight int           // concurrent sends per tick
}

// Worker is a single claim loop. Any number of workers may run concurrently,
// in one process or several: the store's atomic claim is the only
// coordination they need, so a crashed worker loses nothing: its in-flight
// jobs go stale and the next claim by any worker picks them back up.
type Worker struct {
	id      int
	store   store.JobStore
	snd     sender.Sender
	limiter *ratelimiter.TypeLimiters
	policy  backoff.Policy
	opts    Options
	logger  *zap.Logger
	hooks   MetricHooks
}

func NewWorker(
	id int,
	st store.JobStore,
	snd sender.Sender,
	limiter *ratelimiter.TypeLimiters,
	policy backoff.Policy,
	opts Options,
	logger *zap.Logger,
	hooks MetricHooks,
) *Worker {
	hooks.fillDefaults()
	return &Worker{
		id: id, store: st, snd: snd, limiter: limiter,
		policy: policy, opts: opts, logger: logger, hooks: hooks,
	}
}

// Run ticks until ctx is cancelled, dispatching one claimed batch per tick.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.opts.Tick)
	defer ticker.Stop()

	w.logger.Info("dispatch worker started",
		zap.Int("id", w.id), zap.Duration("tick", w.opts.Tick))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("dispatch worker stopping", zap.Int("id", w.id))
			return
		case <-ticker.C:
			w.dispatchDue(ctx)
		}
	}
}

// dispatchDue claims up to BatchSize due jobs and delivers them. Each job is
// sent on its own goroutine so one slow delivery does not delay the rest of
// the batch; MaxInFlight bounds the fan-out.
func (w *Worker) dispatchDue(ctx context.Context) {
	jobs, err := w.store.ClaimDue(ctx, w.opts.BatchSize, w.opts.StaleAfter)
	if err != nil {
		w.logger.Error("claim poll error", zap.Error(err))
		return
	}
	if len(jobs) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.opts.MaxInFlight)
	for _, j := range jobs {
		j := j
		g.Go(func() error {
			w.process(gctx, j)
			return nil
		})
	}
	_ = g.Wait()
}

// process makes exactly one send attempt for a claimed job and resolves it.
// Errors are handled per job: a failure here reschedules or fails this job
// and nothing else.
func (w *Worker) process(ctx context.Context, j *domain.Job) {
	log := w.logger.With(
		zap.String("job_id", j.ID),
		zap.String("type", string(j.Type)),
	)

	// Block here until the per-type rate limiter grants a token.
	if err := w.limiter.Wait(ctx, j.Type); err != nil {
		// ctx cancelled while waiting, worker is shutting down. The job
		// stays in processing and is reclaimed once it goes stale.
		return
	}

	start := time.Now().UTC()
	result, sendErr := w.snd.Send(ctx, j.Type, j.Payload)
	now := time.Now().UTC()
	attempts := j.Attempts + 1

	if sendErr != nil {
		w.resolveFailure(ctx, log, j, attempts, now, sendErr)
		return
	}

	applied, err := w.store.Resolve(ctx, j.ID, domain.Completed(attempts, now))
	if err != nil {
		log.Error("failed to record completion", zap.Error(err))
		return
	}
	if !applied {
		log.Debug("job already resolved elsewhere, skipping")
		return
	}

	w.hooks.OnCompleted(j.Type, now.Sub(start))
	log.Info("notification dispatched",
		zap.String("message_id", result.MessageID),
		zap.Int("attempts", attempts),
		zap.Duration("latency", now.Sub(start)))
}

// resolveFailure consults the backoff policy and either reschedules the job
// or marks it permanently failed.
func (w *Worker) resolveFailure(ctx context.Context, log *zap.Logger, j *domain.Job, attempts int, now time.Time, sendErr error) {
	decision := w.policy.Next(now, attempts, j.MaxAttempts, sendErr)

	var outcome domain.Outcome
	if decision.Terminal {
		outcome = domain.Exhausted(attempts, now, sendErr.Error())
	} else {
		outcome = domain.Rescheduled(attempts, now, decision.RetryAt, sendErr.Error())
	}

	applied, err := w.store.Resolve(ctx, j.ID, outcome)
	if err != nil {
		log.Error("failed to record send failure", zap.Error(err))
		return
	}
	if !applied {
		log.Debug("job already resolved elsewhere, skipping")
		return
	}

	if decision.Terminal {
		w.hooks.OnFailed(j.Type)
		log.Warn("notification permanently failed",
			zap.Int("attempts", attempts), zap.Error(sendErr))
		return
	}

	w.hooks.OnRescheduled(j.Type)
	log.Warn("send failed, rescheduled",
		zap.Int("attempts", attempts),
		zap.Time("next_attempt", decision.RetryAt),
		zap.Error(sendErr))
}
