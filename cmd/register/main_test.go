package main

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type blockingReplayer struct {
	running  atomic.Bool
	finished atomic.Bool
	err      error
}

func (b *blockingReplayer) Run(ctx context.Context) error {
	b.running.Store(true)
	<-ctx.Done()
	// Simulates a batch still settling after cancellation.
	time.Sleep(10 * time.Millisecond)
	b.finished.Store(true)
	if b.err != nil {
		return b.err
	}
	return ctx.Err()
}

func TestStartReplayWaitsForLoopToReturn(t *testing.T) {
	r := &blockingReplayer{}
	stop := startReplay(context.Background(), r)

	deadline := time.Now().Add(time.Second)
	for !r.running.Load() {
		if time.Now().After(deadline) {
			t.Fatal("replay loop never started")
		}
		time.Sleep(time.Millisecond)
	}

	if err := stop(); err != nil {
		t.Fatalf("expected cancellation to be swallowed, got %v", err)
	}
	if !r.finished.Load() {
		t.Fatal("stop returned before the replay loop finished")
	}
}

func TestStartReplayReportsLoopError(t *testing.T) {
	boom := errors.New("local database gone")
	stop := startReplay(context.Background(), &blockingReplayer{err: boom})
	if err := stop(); !errors.Is(err, boom) {
		t.Fatalf("expected loop error, got %v", err)
	}
}
