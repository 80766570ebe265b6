package core

// message_queue.go – prioritized dispatch queues for the smart router.
// Four FIFOs keyed by priority plus a retry queue, each capped. Dispatch
// order is critical → high → normal → low → retry.

import (
	"fmt"
	"sync"
	"time"
)

// RouterMessageQueue owns the five capped FIFOs.
type RouterMessageQueue struct {
	mu     sync.Mutex
	limits QueueSizeLimits
	queues map[MessagePriority][]*QueuedMessage
	retry  []*QueuedMessage
}

// NewRouterMessageQueue builds the queues with the given caps.
func NewRouterMessageQueue(limits QueueSizeLimits) *RouterMessageQueue {
	if limits == (QueueSizeLimits{}) {
		limits = DefaultQueueSizeLimits()
	}
	return &RouterMessageQueue{
		limits: limits,
		queues: map[MessagePriority][]*QueuedMessage{
			PriorityCritical: nil,
			PriorityHigh:     nil,
			PriorityNormal:   nil,
			PriorityLow:      nil,
		},
	}
}

func (q *RouterMessageQueue) limitFor(p MessagePriority) int {
	switch p {
	case PriorityCritical:
		return q.limits.Critical
	case PriorityHigh:
		return q.limits.High
	case PriorityNormal:
		return q.limits.Normal
	default:
		return q.limits.Low
	}
}

// Enqueue appends m to its priority FIFO, failing when the queue is full.
func (q *RouterMessageQueue) Enqueue(m *QueuedMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.queues[m.Priority]) >= q.limitFor(m.Priority) {
		return fmt.Errorf("%w: priority %d", ErrQueueFull, m.Priority)
	}
	m.EnqueuedAt = time.Now()
	q.queues[m.Priority] = append(q.queues[m.Priority], m)
	return nil
}

// Requeue places a failed message on the retry queue with its backoff
// deadline. A full retry queue drops the message.
func (q *RouterMessageQueue) Requeue(m *QueuedMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.retry) >= q.limits.Retry {
		return fmt.Errorf("%w: retry", ErrQueueFull)
	}
	m.nextTry = time.Now().Add(retryBackoff(m.Attempts))
	q.retry = append(q.retry, m)
	return nil
}

// Dequeue pops the next dispatchable message, honouring the fixed priority
// order and retry backoff timestamps. It returns nil when nothing is ready.
func (q *RouterMessageQueue) Dequeue() *QueuedMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, p := range []MessagePriority{PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow} {
		if len(q.queues[p]) > 0 {
			m := q.queues[p][0]
			q.queues[p] = q.queues[p][1:]
			return m
		}
	}
	now := time.Now()
	for i, m := range q.retry {
		if m.nextTry.After(now) {
			continue
		}
		q.retry = append(q.retry[:i], q.retry[i+1:]...)
		return m
	}
	return nil
}

// Len reports the total queued message count across all queues.
func (q *RouterMessageQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.retry)
	for _, msgs := range q.queues {
		n += len(msgs)
	}
	return n
}

// retryBackoff waits 100ms·min(2^(n−1), 32) before attempt n+1.
func retryBackoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	factor := uint64(1) << uint(attempts-1)
	if factor > 32 {
		factor = 32
	}
	return time.Duration(factor) * 100 * time.Millisecond
}
