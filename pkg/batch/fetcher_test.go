package batch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNewFetcher_Defaults(t *testing.T) {
	f := NewFetcher(Config{}, zerolog.Nop())
	if f.config.MaxConcurrency != 1 {
		t.Errorf("MaxConcurrency = %d, want 1", f.config.MaxConcurrency)
	}
	if f.config.Timeout != 15*time.Second {
		t.Errorf("Timeout = %v, want 15s", f.config.Timeout)
	}
}

func TestFetchAll_SequentialOrderAndIsolation(t *testing.T) {
	batches, _ := Split([]string{"p1", "p2", "p3", "p4", "p5"}, 2, "")
	f := NewFetcher(DefaultConfig(), zerolog.Nop())

	var order []int
	results := f.FetchAll(context.Background(), batches, func(ctx context.Context, b Batch) ([]byte, error) {
		order = append(order, b.Index)
		if b.Index == 1 {
			return nil, errors.New("boom")
		}
		return []byte(strings.Join(b.IDs, ",")), nil
	})

	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if want := []int{0, 1, 2}; len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
		t.Errorf("fetch order = %v, want %v", order, want)
	}
	if results[0].Err != nil || string(results[0].Data) != "p1,p2" {
		t.Errorf("result 0 = %+v", results[0])
	}
	if results[1].Err == nil {
		t.Errorf("result 1 should carry the batch error")
	}
	if results[2].Err != nil || string(results[2].Data) != "p5" {
		t.Errorf("result 2 = %+v", results[2])
	}
}

func TestFetchAll_Parallel(t *testing.T) {
	batches, _ := Split(makeIDs(40), 3, "")
	f := NewFetcher(Config{MaxConcurrency: 4, Timeout: time.Second}, zerolog.Nop())

	var inFlight, peak int32
	var mu sync.Mutex
	results := f.FetchAll(context.Background(), batches, func(ctx context.Context, b Batch) ([]byte, error) {
		n := atomic.AddInt32(&inFlight, 1)
		mu.Lock()
		if n > peak {
			peak = n
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		if b.Index%5 == 0 {
			return nil, errors.New("flaky")
		}
		return []byte(b.IDs[0]), nil
	})

	if peak > 4 {
		t.Errorf("peak concurrency = %d, want <= 4", peak)
	}
	for i, r := range results {
		if r.Batch.Index != i {
			t.Errorf("results[%d] holds batch %d", i, r.Batch.Index)
		}
		if (i%5 == 0) != (r.Err != nil) {
			t.Errorf("results[%d].Err = %v", i, r.Err)
		}
		if r.Err == nil && string(r.Data) != batches[i].IDs[0] {
			t.Errorf("results[%d].Data = %q", i, r.Data)
		}
	}
}

func TestFetchAll_CancelledContextSkipsRemaining(t *testing.T) {
	batches, _ := Split(makeIDs(5), 1, "")
	f := NewFetcher(DefaultConfig(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	results := f.FetchAll(ctx, batches, func(ctx context.Context, b Batch) ([]byte, error) {
		calls++
		if b.Index == 1 {
			cancel()
		}
		return []byte("ok"), nil
	})

	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	for i, r := range results {
		if i < 2 && r.Err != nil {
			t.Errorf("results[%d] completed before cancel but has error %v", i, r.Err)
		}
		if i >= 2 && !errors.Is(r.Err, context.Canceled) {
			t.Errorf("results[%d].Err = %v, want context.Canceled", i, r.Err)
		}
	}
}

func TestFetchAll_PerBatchTimeout(t *testing.T) {
	batches, _ := Split([]string{"a"}, 1, "")
	f := NewFetcher(Config{MaxConcurrency: 1, Timeout: 10 * time.Millisecond}, zerolog.Nop())

	results := f.FetchAll(context.Background(), batches, func(ctx context.Context, b Batch) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	if !errors.Is(results[0].Err, context.DeadlineExceeded) {
		t.Errorf("Err = %v, want DeadlineExceeded", results[0].Err)
	}
}

func TestFetchAll_Empty(t *testing.T) {
	f := NewFetcher(DefaultConfig(), zerolog.Nop())
	results := f.FetchAll(context.Background(), nil, func(context.Context, Batch) ([]byte, error) {
		t.Fatal("fetch should not be called")
		return nil, nil
	})
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
}
