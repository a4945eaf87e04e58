// Package poll provides a bounded polling loop shared by every client
// that waits on a remote job (lipsync predictions, GPU worker jobs,
// storage propagation).
package poll

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned when the attempt budget is exhausted before
// the condition is met.
var ErrTimeout = errors.New("poll: attempt budget exhausted")

// Config controls a polling loop.
type Config struct {
	// Interval is the fixed delay between attempts.
	Interval time.Duration

	// MaxAttempts bounds the loop. Must be > 0.
	MaxAttempts int

	// Sleep is swapped out in tests. Defaults to a context-aware
	// time.Sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Fn is called once per attempt. Return done=true to stop the loop.
// A non-nil error stops the loop immediately and is returned as-is.
type Fn func(ctx context.Context, attempt int) (done bool, err error)

// Wait runs fn up to cfg.MaxAttempts times, sleeping cfg.Interval
// between attempts. The first attempt runs immediately. Attempt
// numbers passed to fn are 1-based.
func Wait(ctx context.Context, cfg Config, fn Fn) error {
	if cfg.MaxAttempts <= 0 {
		return errors.New("poll: MaxAttempts must be positive")
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = defaultSleep
	}

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		done, err := fn(ctx, attempt)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		if attempt == cfg.MaxAttempts {
			break
		}
		if err := sleep(ctx, cfg.Interval); err != nil {
			return err
		}
	}

	return ErrTimeout
}

func defaultSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
