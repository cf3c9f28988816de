package backoff

import (
	"context"
	"testing"
	"time"
)

func TestPolicyNext(t *testing.T) {
	p := Policy{Base: time.Second, Max: 10 * time.Second}
	if got := p.Next(0); got != 2*time.Second {
		t.Fatalf("unexpected first backoff %v", got)
	}
	if got := p.Next(8 * time.Second); got != 10*time.Second {
		t.Fatalf("expected backoff capped, got %v", got)
	}
}

func TestPolicyWithJitter(t *testing.T) {
	p := Policy{Jitter: 100 * time.Millisecond}
	for i := 0; i < 50; i++ {
		d := p.WithJitter(time.Second)
		if d < time.Second || d >= time.Second+p.Jitter {
			t.Fatalf("jitter out of window: %v", d)
		}
	}
	if p.WithJitter(0) != 0 {
		t.Fatalf("expected zero duration to stay zero")
	}
}

func TestSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Hour, nil); err != context.Canceled {
		t.Fatalf("expected canceled, got %v", err)
	}

	wake := make(chan struct{}, 1)
	wake <- struct{}{}
	if err := Sleep(context.Background(), time.Hour, wake); err != nil {
		t.Fatalf("expected wake to end the sleep, got %v", err)
	}
}
