// Package backoff holds the pure retry policy: a mapping from attempt count
// and send error to either a future retry time or terminal failure.
package backoff

import (
	"errors"
	"time"
)

// Decision is the outcome of consulting the policy after a failed attempt.
// Either Terminal is true, or RetryAt holds the earliest next attempt time.
type Decision struct {
	Terminal bool
	RetryAt  time.Time
}

// permanent is implemented by errors that can never succeed on retry
// (e.g. a rejected recipient). See sender.PermanentError.
type permanent interface {
	Permanent() bool
}

// Policy computes exponential backoff: Base doubles per attempt, capped at
// Cap. Delays are strictly positive and non-decreasing in the attempt count,
// so repeated failures can never starve the worker loop.
type Policy struct {
	Base time.Duration
	Cap  time.Duration
}

// Default matches the storefront's historical schedule: 30s, 60s, 120s, ...
// capped at one hour.
var Default = Policy{Base: 30 * time.Second, Cap: time.Hour}

// Next decides what happens after a failed send attempt. attempts is the
// count including the attempt that just failed.
func (p Policy) Next(now time.Time, attempts, maxAttempts int, err error) Decision {
	if attempts >= maxAttempts {
		return Decision{Terminal: true}
	}

	var perm permanent
	if errors.As(err, &perm) && perm.Permanent() {
		return Decision{Terminal: true}
	}

	return Decision{RetryAt: now.Add(p.Delay(attempts))}
}

// Delay returns the backoff duration after the given number of attempts.
func (p Policy) Delay(attempts int) time.Duration {
	d := p.Base
	if d <= 0 {
		d = time.Second
	}
	for i := 1; i < attempts; i++ {
		d *= 2
		if p.Cap > 0 && d >= p.Cap {
			return p.Cap
		}
	}
	if p.Cap > 0 && d > p.Cap {
		return p.Cap
	}
	return d
}
