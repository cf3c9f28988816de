package localstore

import (
	"context"
	"sync"
)

// Outcome is the terminal result of a single Put. It resolves exactly once:
// nil when the remote acknowledged the write, an error when it was rejected.
type Outcome struct {
	done chan struct{}
	once sync.Once
	err  error
}

// NewOutcome returns an unresolved outcome and the function that resolves it.
// Only the first call to resolve has any effect.
func NewOutcome() (*Outcome, func(error)) {
	o := &Outcome{done: make(chan struct{})}
	return o, o.resolve
}

func rejectedOutcome(err error) *Outcome {
	o, resolve := NewOutcome()
	resolve(err)
	return o
}

func (o *Outcome) resolve(err error) {
	o.once.Do(func() {
		o.err = err
		close(o.done)
	})
}

// Done is closed once the outcome resolves.
func (o *Outcome) Done() <-chan struct{} {
	return o.done
}

// Err returns the resolution error. It is only meaningful after Done is closed.
func (o *Outcome) Err() error {
	select {
	case <-o.done:
		return o.err
	default:
		return nil
	}
}

// Wait blocks until the outcome resolves or ctx ends.
func (o *Outcome) Wait(ctx context.Context) error {
	select {
	case <-o.done:
		return o.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
