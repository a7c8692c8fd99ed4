package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func dur(d time.Duration) *time.Duration { return &d }
func intp(n int) *int                    { return &n }

func TestSinglePushPull(t *testing.T) {
	q := New()
	q.Push("x")

	v, err := q.Pull(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "x" {
		t.Fatalf("got %v, want x", v)
	}
}

func TestEmptyPullTimeout(t *testing.T) {
	q := New()

	start := time.Now()
	_, err := q.Pull(context.Background(), dur(50*time.Millisecond))
	elapsed := time.Since(start)

	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if elapsed < 50*time.Millisecond || elapsed > 500*time.Millisecond {
		t.Fatalf("elapsed = %v, want within [0.05, 0.5]s", elapsed)
	}
}

func TestBlockingPullThenPush(t *testing.T) {
	q := New()
	type result struct {
		v   any
		err error
	}
	resCh := make(chan result, 1)

	start := time.Now()
	go func() {
		v, err := q.Pull(context.Background(), dur(2*time.Second))
		resCh <- result{v, err}
	}()

	time.Sleep(100 * time.Millisecond)
	q.Push(42)

	res := <-resCh
	elapsed := time.Since(start)

	if res.err != nil {
		t.Fatalf("unexpected error: %v", res.err)
	}
	if res.v != 42 {
		t.Fatalf("got %v, want 42", res.v)
	}
	if elapsed > time.Second {
		t.Fatalf("elapsed too long: %v", elapsed)
	}
}

func TestPullManyPartial(t *testing.T) {
	q := New()
	q.PushMany("a", "b", "c")

	got, err := q.PullMany(context.Background(), intp(5), dur(50*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []any{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestPullManyEmptyTimeout(t *testing.T) {
	q := New()

	_, err := q.PullMany(context.Background(), intp(5), dur(50*time.Millisecond))
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestPullManyZeroIsNonBlocking(t *testing.T) {
	q := New()

	start := time.Now()
	got, err := q.PullMany(context.Background(), intp(0), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %v, want empty", got)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("pull_many(0) blocked")
	}
}

func TestFIFOUnderContention(t *testing.T) {
	q := New()
	const n = 50

	go func() {
		for i := 0; i < n; i++ {
			q.Push(i)
		}
	}()

	for i := 0; i < n; i++ {
		v, err := q.Pull(context.Background(), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v != i {
			t.Fatalf("pull %d = %v, want %d", i, v, i)
		}
	}
}

func TestWaiterFairness(t *testing.T) {
	q := New()

	type result struct {
		id int
		v  any
	}
	resCh := make(chan result, 2)

	go func() {
		v, _ := q.Pull(context.Background(), dur(2*time.Second))
		resCh <- result{1, v}
	}()
	// Ensure the first consumer enqueues first.
	for q.sem.Waiting() != 1 {
		time.Sleep(time.Millisecond)
	}

	go func() {
		v, _ := q.Pull(context.Background(), dur(2*time.Second))
		resCh <- result{2, v}
	}()
	for q.sem.Waiting() != 2 {
		time.Sleep(time.Millisecond)
	}

	// Push one value at a time and wait for its consumer: once two woken
	// goroutines are runnable, which of them reports first is up to the
	// scheduler, not the queue.
	q.Push("first")
	first := <-resCh
	q.Push("second")
	second := <-resCh

	if first.id != 1 || second.id != 2 {
		t.Fatalf("fulfillment order = %d,%d want 1,2", first.id, second.id)
	}
	if first.v != "first" || second.v != "second" {
		t.Fatalf("values = %v,%v want first,second", first.v, second.v)
	}
}

func TestFanInFanOutFairness(t *testing.T) {
	q := New()
	const producers, perProducer, consumers = 10, 100, 10

	var wg sync.WaitGroup
	pushed := make(map[int]bool)
	var pushedMu sync.Mutex

	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				val := p*perProducer + i
				pushedMu.Lock()
				pushed[val] = true
				pushedMu.Unlock()
				q.Push(val)
			}
		}(p)
	}
	wg.Wait()

	pulled := make(map[int]bool)
	var pulledMu sync.Mutex
	var cwg sync.WaitGroup
	for c := 0; c < consumers; c++ {
		cwg.Add(1)
		go func() {
			defer cwg.Done()
			got, err := q.PullMany(context.Background(), intp(perProducer), dur(time.Second))
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			pulledMu.Lock()
			for _, v := range got {
				pulled[v.(int)] = true
			}
			pulledMu.Unlock()
		}()
	}
	cwg.Wait()

	if len(pulled) != producers*perProducer {
		t.Fatalf("pulled %d distinct values, want %d", len(pulled), producers*perProducer)
	}
	for v := range pushed {
		if !pulled[v] {
			t.Fatalf("value %d pushed but never pulled", v)
		}
	}
}
