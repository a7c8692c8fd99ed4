// Package waitqueue implements a counted permit primitive with FIFO waiter
// ordering, per-waiter timeout, and mass cancellation.
//
// A Semaphore is the concurrent-coordination core that every other piece of
// ZenQueue builds on: the queue's blocking pull, and the server's bounded
// connection pool, are both just semaphores with a payload attached.
package waitqueue

import (
	"container/list"
	"context"
	"errors"
	"sync"
)

// ErrTimeout is returned by Acquire when ctx carries a deadline and it
// elapses before a permit is handed to the caller. Cancellation of ctx
// itself (rather than deadline expiry) surfaces as ctx.Err().
var ErrTimeout = errors.New("waitqueue: acquire timed out")

// ErrCancelled is returned by Acquire when CancelAll runs while the caller
// is still waiting for a permit.
var ErrCancelled = errors.New("waitqueue: wait cancelled")

// waiter is a single suspended Acquire call. result carries exactly one
// value over its lifetime: true for a handed-off permit, false for
// cancellation. It is buffered so that Release and CancelAll never block
// while holding the semaphore's mutex.
type waiter struct {
	result chan bool
}

// Semaphore is a non-negative counter guarded by a FIFO list of waiters.
// The zero value is not usable; construct with New.
type Semaphore struct {
	mu      sync.Mutex
	count   int
	waiters *list.List // of *waiter, oldest at Front
}

// New creates a Semaphore with an initial permit count. A queue's
// semaphore starts at zero (no values available); a connection pool's
// semaphore starts at its capacity (every slot free).
func New(initial int) *Semaphore {
	return &Semaphore{
		count:   initial,
		waiters: list.New(),
	}
}

// Acquire decrements the counter, blocking until a permit is available, ctx
// is done, or CancelAll runs.
//
// Fast path: if the counter is already positive, Acquire decrements and
// returns immediately without ever touching the waiter list. Slow path: a
// waiter is appended to the tail of the list and Acquire suspends until
// exactly one of three things happens: a Release pops it from the head and
// hands it a permit, ctx.Done() fires, or CancelAll fails it. Whichever
// signal arrives first "wins"; the loser's action on the waiter is a no-op
// because both removal paths are serialized under mu.
func (s *Semaphore) Acquire(ctx context.Context) error {
	s.mu.Lock()
	if s.count > 0 {
		s.count--
		s.mu.Unlock()
		return nil
	}

	w := &waiter{result: make(chan bool, 1)}
	elem := s.waiters.PushBack(w)
	s.mu.Unlock()

	select {
	case ok := <-w.result:
		if ok {
			return nil
		}
		return ErrCancelled

	case <-ctx.Done():
		s.mu.Lock()
		if elem.Value != nil {
			// Still our own waiter: remove it before anyone can pop it.
			s.waiters.Remove(elem)
			elem.Value = nil
			s.mu.Unlock()
			if errors.Is(ctx.Err(), context.Canceled) {
				return ctx.Err()
			}
			return ErrTimeout
		}
		// Lost the race: a Release or CancelAll already claimed this
		// waiter and is about to (or has already) sent on w.result.
		s.mu.Unlock()
		if <-w.result {
			return nil
		}
		return ErrCancelled
	}
}

// Release increments the counter, or, if a waiter is queued, hands the
// permit directly to the oldest one (FIFO) instead of ever making it
// observable on the counter.
func (s *Semaphore) Release() {
	s.mu.Lock()
	if front := s.waiters.Front(); front != nil {
		s.waiters.Remove(front)
		w := front.Value.(*waiter)
		front.Value = nil
		s.mu.Unlock()
		w.result <- true
		return
	}
	s.count++
	s.mu.Unlock()
}

// CancelAll fails every queued waiter with ErrCancelled and empties the
// waiter list. The counter is untouched. It is not exposed to remote peers;
// the client package does not use it (its callers serialize on their own
// turn channel).
func (s *Semaphore) CancelAll() {
	s.mu.Lock()
	var failed []*waiter
	for elem := s.waiters.Front(); elem != nil; {
		next := elem.Next()
		w := elem.Value.(*waiter)
		elem.Value = nil
		failed = append(failed, w)
		elem = next
	}
	s.waiters.Init()
	s.mu.Unlock()

	for _, w := range failed {
		w.result <- false
	}
}

// Count returns the current permit count. It does not reflect the waiter
// list length; use Waiting for that.
func (s *Semaphore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Waiting returns the number of callers currently blocked in Acquire.
func (s *Semaphore) Waiting() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waiters.Len()
}
