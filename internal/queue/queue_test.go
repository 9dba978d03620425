package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestQueue_Enqueue_ReturnsResult(t *testing.T) {
	q := New(600, testLogger())
	defer q.Close()

	v, err := q.Enqueue(context.Background(), func(ctx context.Context) (any, error) {
		return "hello", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "hello" {
		t.Errorf("expected 'hello', got %v", v)
	}
}

func TestQueue_FailureIsolation(t *testing.T) {
	q := New(600, testLogger())
	defer q.Close()

	boom := errors.New("boom")
	_, err := q.Enqueue(context.Background(), func(ctx context.Context) (any, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom error, got %v", err)
	}

	// A failed item must not stop the queue.
	v, err := q.Enqueue(context.Background(), func(ctx context.Context) (any, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error after failure: %v", err)
	}
	if v != 42 {
		t.Errorf("expected 42, got %v", v)
	}
}

func TestQueue_SingleConcurrency(t *testing.T) {
	q := New(6000, testLogger())
	defer q.Close()

	var inFlight int32
	var maxInFlight int32
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = q.Enqueue(context.Background(), func(ctx context.Context) (any, error) {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					m := atomic.LoadInt32(&maxInFlight)
					if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return nil, nil
			})
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&maxInFlight); got != 1 {
		t.Errorf("expected at most 1 execute in flight, observed %d", got)
	}
}

func TestQueue_FIFOOrder(t *testing.T) {
	q := New(6000, testLogger())
	defer q.Close()

	var mu sync.Mutex
	var order []int
	var chans []<-chan Result

	for i := 0; i < 5; i++ {
		i := i
		chans = append(chans, q.EnqueueAsync(context.Background(), func(ctx context.Context) (any, error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return i, nil
		}))
	}

	for _, ch := range chans {
		<-ch
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != i {
			t.Fatalf("expected submission order, got %v", order)
		}
	}
}

func TestQueue_RateSpacingFromCompletion(t *testing.T) {
	// 600 calls/min = 100ms between dispatches, measured from completion.
	q := New(600, testLogger())
	defer q.Close()

	var times []time.Time
	var mu sync.Mutex
	var chans []<-chan Result

	for i := 0; i < 3; i++ {
		chans = append(chans, q.EnqueueAsync(context.Background(), func(ctx context.Context) (any, error) {
			mu.Lock()
			times = append(times, time.Now())
			mu.Unlock()
			time.Sleep(20 * time.Millisecond)
			return nil, nil
		}))
	}
	for _, ch := range chans {
		<-ch
	}

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(times); i++ {
		// Gap between starts = execution time (20ms) + spacing (100ms).
		gap := times[i].Sub(times[i-1])
		if gap < 110*time.Millisecond {
			t.Errorf("dispatch %d started %v after previous, want >= 110ms", i, gap)
		}
	}
}

func TestQueue_ContextCanceledBeforeDispatch(t *testing.T) {
	q := New(600, testLogger())
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Enqueue(ctx, func(ctx context.Context) (any, error) {
		t.Error("execute should not run for a canceled context")
		return nil, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestQueue_CloseRejectsPending(t *testing.T) {
	q := New(1, testLogger()) // 60s spacing keeps later items pending

	release := make(chan struct{})
	first := q.EnqueueAsync(context.Background(), func(ctx context.Context) (any, error) {
		<-release
		return nil, nil
	})
	second := q.EnqueueAsync(context.Background(), func(ctx context.Context) (any, error) {
		return nil, nil
	})

	q.Close()
	close(release)

	<-first
	res := <-second
	if !errors.Is(res.Err, context.Canceled) {
		t.Errorf("expected pending item rejected with context.Canceled, got %v", res.Err)
	}
}
