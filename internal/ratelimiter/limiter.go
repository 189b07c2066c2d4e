package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/aloonj/reefnotify/internal/domain"
)

// TypeLimiters holds one token bucket limiter per job type so a burst of
// low-stock alerts cannot crowd out order confirmations at the delivery
// channel. Burst is set equal to the rate so no extra burst capacity is
// allowed beyond the configured per-second maximum.
type TypeLimiters struct {
	limiters map[domain.JobType]*rate.Limiter
}

// New creates a TypeLimiters with ratePerSec tokens per second per job type.
func New(ratePerSec int) *TypeLimiters {
	r := rate.Limit(ratePerSec)
	burst := ratePerSec

	return &TypeLimiters{
		limiters: map[domain.JobType]*rate.Limiter{
			domain.TypeOrderConfirmation: rate.NewLimiter(r, burst),
			domain.TypeStatusUpdate:      rate.NewLimiter(r, burst),
			domain.TypeBulletin:          rate.NewLimiter(r, burst),
			domain.TypeLowStock:          rate.NewLimiter(r, burst),
		},
	}
}

// Wait blocks until the type's limiter grants a token. Called by the
// dispatcher immediately before each send. Returns a non-nil error only if
// ctx is cancelled while waiting.
func (tl *TypeLimiters) Wait(ctx context.Context, t domain.JobType) error {
	l, ok := tl.limiters[t]
	if !ok {
		return nil
	}
	return l.Wait(ctx)
}
