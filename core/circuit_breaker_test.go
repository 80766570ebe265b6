package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := NewCircuitBreaker(3, time.Hour)
	for i := 0; i < 3; i++ {
		if !b.Allow() {
			t.Fatalf("breaker tripped early at %d", i)
		}
		b.RecordFailure()
	}
	if b.Allow() {
		t.Fatalf("breaker still closed after 3 failures")
	}
}

func TestBreakerHalfOpenAfterCooldown(t *testing.T) {
	b := NewCircuitBreaker(1, 20*time.Millisecond)
	b.RecordFailure()
	if b.Allow() {
		t.Fatalf("breaker closed immediately after trip")
	}
	time.Sleep(30 * time.Millisecond)
	if !b.Allow() {
		t.Fatalf("breaker refused half-open probe")
	}
	// A half-open success closes it fully.
	b.RecordSuccess()
	if !b.Allow() {
		t.Fatalf("breaker not closed after success")
	}
}

func TestCallWithResilienceRetriesThenFails(t *testing.T) {
	b := NewCircuitBreaker(10, time.Hour)
	p := RetryPolicy{Attempts: 3, BaseWait: time.Millisecond, MaxWait: 2 * time.Millisecond}
	calls := 0
	err := CallWithResilience(context.Background(), b, p, func() error {
		calls++
		return errors.New("boom")
	})
	if !errors.Is(err, ErrSendFailure) {
		t.Fatalf("expected ErrSendFailure, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("op ran %d times, want 3", calls)
	}
}

func TestCallWithResilienceSucceedsMidway(t *testing.T) {
	b := NewCircuitBreaker(10, time.Hour)
	p := RetryPolicy{Attempts: 3, BaseWait: time.Millisecond, MaxWait: 2 * time.Millisecond}
	calls := 0
	err := CallWithResilience(context.Background(), b, p, func() error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("op ran %d times, want 2", calls)
	}
}

func TestCallWithResilienceFailsFastWhenOpen(t *testing.T) {
	b := NewCircuitBreaker(1, time.Hour)
	b.RecordFailure()
	calls := 0
	err := CallWithResilience(context.Background(), b, DefaultRetryPolicy(), func() error {
		calls++
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("op ran %d times behind an open breaker", calls)
	}
}

func TestRetryPolicyBackoffCaps(t *testing.T) {
	p := DefaultRetryPolicy()
	if got := p.backoff(1); got != 100*time.Millisecond {
		t.Fatalf("backoff(1) = %v", got)
	}
	if got := p.backoff(2); got != 200*time.Millisecond {
		t.Fatalf("backoff(2) = %v", got)
	}
	if got := p.backoff(10); got != 2*time.Second {
		t.Fatalf("backoff(10) = %v, want cap", got)
	}
}
