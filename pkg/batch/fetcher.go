package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config holds batch fetcher configuration.
type Config struct {
	// MaxConcurrency is the number of batches in flight at once.
	// 1 issues batches sequentially in order.
	MaxConcurrency int

	// Timeout per batch fetch.
	Timeout time.Duration
}

// DefaultConfig returns the sequential configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 1,
		Timeout:        15 * time.Second,
	}
}

// FetchFunc fetches one batch.
type FetchFunc func(ctx context.Context, b Batch) ([]byte, error)

// Result is the outcome of one batch. Err is set when the batch failed or
// was never attempted because the context ended.
type Result struct {
	Batch Batch
	Data  []byte
	Err   error
}

// Fetcher issues batch fetches.
type Fetcher struct {
	config Config
	logger zerolog.Logger
}

// NewFetcher creates a new batch fetcher.
func NewFetcher(config Config, logger zerolog.Logger) *Fetcher {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 1
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}

	return &Fetcher{
		config: config,
		logger: logger,
	}
}

// FetchAll fetches every batch and returns one result per batch, in batch
// order. A failed batch never affects the others.
func (f *Fetcher) FetchAll(ctx context.Context, batches []Batch, fn FetchFunc) []Result {
	results := make([]Result, len(batches))
	if len(batches) == 0 {
		return results
	}

	start := time.Now()
	if f.config.MaxConcurrency == 1 || len(batches) == 1 {
		for i, b := range batches {
			results[i] = f.fetchOne(ctx, b, fn)
		}
	} else {
		f.fetchParallel(ctx, batches, fn, results)
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	f.logger.Debug().
		Int("batches", len(batches)).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("Batch fetch complete")

	return results
}

func (f *Fetcher) fetchParallel(ctx context.Context, batches []Batch, fn FetchFunc, results []Result) {
	queue := make(chan job, len(batches))
	for i, b := range batches {
		queue <- job{pos: i, batch: b}
	}
	close(queue)

	out := make(chan jobResult, len(batches))
	workers := min(f.config.MaxConcurrency, len(batches))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go f.worker(ctx, queue, out, fn, &wg, i)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	for r := range out {
		results[r.pos] = r.result
	}
}

type job struct {
	pos   int
	batch Batch
}

type jobResult struct {
	pos    int
	result Result
}

// worker processes batches from the queue. Batches still queued after
// cancellation are reported as skipped.
func (f *Fetcher) worker(ctx context.Context, queue <-chan job, out chan<- jobResult, fn FetchFunc, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	processed := 0

	for j := range queue {
		out <- jobResult{pos: j.pos, result: f.fetchOne(ctx, j.batch, fn)}
		processed++
	}

	f.logger.Debug().
		Int("worker_id", workerID).
		Int("batches_processed", processed).
		Msg("Worker completed")
}

func (f *Fetcher) fetchOne(ctx context.Context, b Batch, fn FetchFunc) Result {
	if err := ctx.Err(); err != nil {
		return Result{Batch: b, Err: fmt.Errorf("batch %d skipped: %w", b.Index, err)}
	}

	batchCtx, cancel := context.WithTimeout(ctx, f.config.Timeout)
	data, err := fn(batchCtx, b)
	cancel()

	if err != nil {
		f.logger.Warn().
			Err(err).
			Int("batch", b.Index).
			Int("ids", len(b.IDs)).
			Msg("Batch fetch failed")
		return Result{Batch: b, Err: err}
	}
	return Result{Batch: b, Data: data}
}
