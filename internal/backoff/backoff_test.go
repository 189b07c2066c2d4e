package backoff_test

import (
	"errors"
	"testing"
	"time"

	"github.com/aloonj/reefnotify/internal/backoff"
	"github.com/aloonj/reefnotify/internal/sender"
)

var errTransient = errors.New("connection reset")

func TestPolicy_TerminalAtMaxAttempts(t *testing.T) {
	p := backoff.Default
	now := time.Now()

	d := p.Next(now, 3, 3, errTransient)
	if !d.Terminal {
		t.Fatal("expected terminal decision once attempts reach maxAttempts")
	}

	d = p.Next(now, 5, 3, errTransient)
	if !d.Terminal {
		t.Fatal("expected terminal decision beyond maxAttempts")
	}
}

func TestPolicy_RetryBeforeMaxAttempts(t *testing.T) {
	p := backoff.Policy{Base: 30 * time.Second, Cap: time.Hour}
	now := time.Now()

	d := p.Next(now, 1, 3, errTransient)
	if d.Terminal {
		t.Fatal("expected retry decision before maxAttempts")
	}
	if !d.RetryAt.After(now) {
		t.Fatal("expected retry time strictly in the future")
	}
}

func TestPolicy_DelayMonotoneAndCapped(t *testing.T) {
	p := backoff.Policy{Base: 30 * time.Second, Cap: time.Hour}

	prev := time.Duration(0)
	for attempts := 1; attempts <= 12; attempts++ {
		d := p.Delay(attempts)
		if d <= 0 {
			t.Fatalf("attempt %d: delay must be positive, got %v", attempts, d)
		}
		if d < prev {
			t.Fatalf("attempt %d: delay %v decreased below %v", attempts, d, prev)
		}
		if d > p.Cap {
			t.Fatalf("attempt %d: delay %v exceeds cap %v", attempts, d, p.Cap)
		}
		prev = d
	}

	if p.Delay(1) != 30*time.Second {
		t.Fatalf("expected first delay to equal base, got %v", p.Delay(1))
	}
	if p.Delay(12) != time.Hour {
		t.Fatalf("expected large attempt counts clamped to cap, got %v", p.Delay(12))
	}
}

func TestPolicy_PermanentErrorShortcut(t *testing.T) {
	p := backoff.Default
	permErr := &sender.PermanentError{Reason: "recipient rejected"}

	d := p.Next(time.Now(), 1, 5, permErr)
	if !d.Terminal {
		t.Fatal("expected permanent errors to shortcut to terminal")
	}

	wrapped := errors.Join(errors.New("send"), permErr)
	d = p.Next(time.Now(), 1, 5, wrapped)
	if !d.Terminal {
		t.Fatal("expected wrapped permanent errors to shortcut to terminal")
	}
}

func TestPolicy_ZeroBaseStillPositive(t *testing.T) {
	p := backoff.Policy{}
	if d := p.Delay(1); d <= 0 {
		t.Fatalf("zero-value policy must still back off, got %v", d)
	}
}
