package client

import (
	"context"
	"time"
)

// Reconnect backoff defaults.
const (
	DefaultMinBackoff = 500 * time.Millisecond
	DefaultMaxBackoff = 30 * time.Second
)

// nextBackoff doubles d, capped at max.
func nextBackoff(d, max time.Duration) time.Duration {
	d *= 2
	if d > max {
		return max
	}
	return d
}

func backoffBounds(min, max time.Duration) (time.Duration, time.Duration) {
	if min <= 0 {
		min = DefaultMinBackoff
	}
	if max < min {
		max = DefaultMaxBackoff
		if max < min {
			max = min
		}
	}
	return min, max
}

// sleepCtx waits for d or until ctx ends, reporting whether the wait finished.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// retry calls fn until it succeeds or returns an error permanent accepts,
// waiting with capped exponential backoff between attempts. Once ctx ends it
// returns ctx.Err().
func retry(ctx context.Context, min, max time.Duration, permanent func(error) bool, fn func() error) error {
	wait := min
	for {
		err := fn()
		if err == nil || permanent(err) {
			return err
		}
		if !sleepCtx(ctx, wait) {
			return ctx.Err()
		}
		wait = nextBackoff(wait, max)
	}
}
