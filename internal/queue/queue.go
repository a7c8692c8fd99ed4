// Package queue implements ZenQueue's single shared FIFO: an unbounded
// sequence of opaque JSON values, with blocking pull semantics layered on
// top of a waitqueue.Semaphore.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/zenqueue/zenqueue/internal/waitqueue"
)

// ErrTimeout is raised by Pull and PullMany when a blocking wait expires
// before a value becomes available. It is distinct from waitqueue.ErrTimeout
// so that callers outside this package never need to import waitqueue to
// recognize a queue timeout.
var ErrTimeout = errors.New("queue: pull timed out")

// Queue is an unbounded FIFO of opaque values, safe for concurrent use by
// many producers and consumers. The zero value is not usable; use New.
type Queue struct {
	mu     sync.Mutex
	values []any

	sem *waitqueue.Semaphore
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{sem: waitqueue.New(0)}
}

// Push appends v to the tail and wakes the oldest blocked consumer, if any.
// Push never blocks and never fails: there is no backpressure on producers.
func (q *Queue) Push(v any) {
	q.mu.Lock()
	q.values = append(q.values, v)
	q.mu.Unlock()

	q.sem.Release()
}

// PushMany pushes each value in argument order. It is not atomic across
// pushes: a concurrently running Pull may observe a prefix of the batch.
func (q *Queue) PushMany(values ...any) {
	for _, v := range values {
		q.Push(v)
	}
}

// Pull removes and returns the head value, blocking until one is available
// or timeout elapses. A nil timeout blocks forever.
func (q *Queue) Pull(ctx context.Context, timeout *time.Duration) (any, error) {
	acquireCtx, cancel := withOptionalTimeout(ctx, timeout)
	defer cancel()

	if err := q.sem.Acquire(acquireCtx); err != nil {
		return nil, mapAcquireErr(err)
	}

	// Acquire succeeded, so the semaphore's own bookkeeping guarantees a
	// value is present: it was pushed at the moment of, or before, the
	// Release that fulfilled this Acquire.
	q.mu.Lock()
	defer q.mu.Unlock()
	v := q.values[0]
	q.values = q.values[1:]
	return v, nil
}

// PullMany attempts up to n pulls, each bounded by timeout (the same
// duration applied independently to every element, not a deadline for the
// whole batch).
//
// If n is nil and timeout is nil, PullMany never returns under normal
// operation: it pulls forever. This sink mode exists for draining/test
// tooling; it is not meant for ordinary consumers.
//
// Otherwise: n == 0 returns an empty, non-blocking result. If the first
// pull times out, PullMany raises ErrTimeout. If any later pull times out,
// PullMany returns the partial result gathered so far (length < n) without
// error.
func (q *Queue) PullMany(ctx context.Context, n *int, timeout *time.Duration) ([]any, error) {
	if n == nil && timeout == nil {
		var results []any
		for {
			v, err := q.Pull(ctx, nil)
			if err != nil {
				return results, err
			}
			results = append(results, v)
		}
	}

	want := -1 // unbounded
	if n != nil {
		want = *n
		if want == 0 {
			return []any{}, nil
		}
	}

	results := make([]any, 0, maxInt(want, 0))
	for i := 0; want < 0 || i < want; i++ {
		v, err := q.Pull(ctx, timeout)
		if err != nil {
			if errors.Is(err, ErrTimeout) {
				if len(results) == 0 {
					return nil, ErrTimeout
				}
				return results, nil
			}
			return results, err
		}
		results = append(results, v)
	}
	return results, nil
}

// Len returns the number of values currently buffered. It is a point-in-time
// snapshot for observability (see internal/metrics), not something callers
// should branch on.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.values)
}

// Waiting returns the number of callers currently blocked in Pull or
// PullMany, for the same observability purpose as Len.
func (q *Queue) Waiting() int {
	return q.sem.Waiting()
}

func withOptionalTimeout(ctx context.Context, timeout *time.Duration) (context.Context, context.CancelFunc) {
	if timeout == nil {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, *timeout)
}

func mapAcquireErr(err error) error {
	switch {
	case errors.Is(err, waitqueue.ErrTimeout):
		return ErrTimeout
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	default:
		return err
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
