package core

// circuit_breaker.go – shared resilience wrapper for outbound network
// operations: a bounded exponential-backoff retry guarded by a circuit
// breaker. The breaker opens after consecutive failures and half-opens
// after a cooldown, letting one probe through.

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// CircuitBreaker trips open after a run of consecutive failures.
type CircuitBreaker struct {
	mu           sync.Mutex
	state        breakerState
	failures     int
	maxFailures  int
	openDuration time.Duration
	openedAt     time.Time
}

// NewCircuitBreaker opens after maxFailures consecutive failures and
// half-opens once openDuration has elapsed.
func NewCircuitBreaker(maxFailures int, openDuration time.Duration) *CircuitBreaker {
	if maxFailures <= 0 {
		maxFailures = 3
	}
	if openDuration <= 0 {
		openDuration = 5 * time.Second
	}
	return &CircuitBreaker{maxFailures: maxFailures, openDuration: openDuration}
}

// Allow reports whether a call may proceed. An open breaker transitions to
// half-open after its cooldown, admitting a single probe.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case breakerClosed:
		return true
	case breakerHalfOpen:
		// The single probe is already in flight.
		return false
	default:
		if time.Since(b.openedAt) >= b.openDuration {
			b.state = breakerHalfOpen
			return true
		}
		return false
	}
}

// RecordSuccess closes the breaker and clears the failure run.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	b.state = breakerClosed
	b.failures = 0
	b.mu.Unlock()
}

// RecordFailure extends the failure run, opening the breaker at the limit.
// A half-open probe failure reopens immediately.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.state == breakerHalfOpen || b.failures >= b.maxFailures {
		b.state = breakerOpen
		b.openedAt = time.Now()
	}
}

// RetryPolicy bounds an exponential backoff.
type RetryPolicy struct {
	Attempts int
	BaseWait time.Duration
	MaxWait  time.Duration
}

// DefaultRetryPolicy is the shared outbound policy: three attempts backing
// off from 100ms toward 2s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, BaseWait: 100 * time.Millisecond, MaxWait: 2 * time.Second}
}

// backoff returns the wait before attempt n (1-based).
func (p RetryPolicy) backoff(attempt int) time.Duration {
	wait := p.BaseWait << uint(attempt-1)
	if wait > p.MaxWait {
		wait = p.MaxWait
	}
	return wait
}

// CallWithResilience runs op through the breaker and retry policy. A tripped
// breaker fails fast with ErrCircuitOpen; exhausted retries surface the last
// error.
func CallWithResilience(ctx context.Context, b *CircuitBreaker, p RetryPolicy, op func() error) error {
	if !b.Allow() {
		return fmt.Errorf("%w: outbound call rejected", ErrCircuitOpen)
	}
	var last error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err := op(); err == nil {
			b.RecordSuccess()
			return nil
		} else {
			last = err
		}
		b.RecordFailure()
		if attempt == p.Attempts {
			break
		}
		if !b.Allow() {
			return fmt.Errorf("%w: outbound call rejected mid-retry", ErrCircuitOpen)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
		case <-time.After(p.backoff(attempt)):
		}
	}
	return fmt.Errorf("%w: %v", ErrSendFailure, last)
}
