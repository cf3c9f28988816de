// Package backoff holds the retry pacing shared by the poll loops.
package backoff

import (
	"context"
	"math/rand/v2"
	"time"
)

const defaultJitter = 250 * time.Millisecond

// Policy doubles the delay after each failure, starting at Base and capped
// at Max. Every wait gets up to Jitter extra.
type Policy struct {
	Base   time.Duration
	Max    time.Duration
	Jitter time.Duration
}

// Next returns the delay that follows current.
func (p Policy) Next(current time.Duration) time.Duration {
	if current <= 0 {
		current = p.Base
	}
	next := current * 2
	if p.Max > 0 && next > p.Max {
		return p.Max
	}
	return next
}

// WithJitter adds a random delay in [0, Jitter) to d. Zero stays zero.
func (p Policy) WithJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	window := p.Jitter
	if window <= 0 {
		window = defaultJitter
	}
	return d + rand.N(window)
}

// Sleep waits for d, returning early with ctx's error or when wake fires.
// A nil wake channel never fires.
func Sleep(ctx context.Context, d time.Duration, wake <-chan struct{}) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	case <-wake:
		return nil
	}
}
