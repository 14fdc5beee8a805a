// Package batch runs lists of work items with a concurrency ceiling, per-item
// retries and aggregate failure reporting.
package batch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/data-power-io/commerce-export/libs/metrics"
	"go.uber.org/zap"
)

// Options configures a run.
type Options struct {
	// Name labels log lines and retry metrics, e.g. "categories".
	Name string

	// Concurrency is the batch size; all items of a batch run at once.
	Concurrency int

	// Retry is applied to every item independently.
	Retry RetryPolicy

	// BatchPause is slept between consecutive batches.
	BatchPause time.Duration

	Logger  *zap.Logger
	Metrics *metrics.ExportMetrics
}

// Outcome is the final state of one item: succeeded with Value, or failed with
// Err after Attempts tries.
type Outcome[R any] struct {
	Index    int
	Value    R
	Err      error
	Attempts int
}

// OK reports whether the item succeeded.
func (o Outcome[R]) OK() bool { return o.Err == nil }

// Failure describes one permanently failed item.
type Failure struct {
	Index int
	Item  string
	Err   error
}

// AggregateError lists every item that exhausted its retries.
type AggregateError struct {
	Name     string
	Total    int
	Failures []Failure
}

func (e *AggregateError) Error() string {
	var b strings.Builder
	name := e.Name
	if name == "" {
		name = "batch"
	}
	fmt.Fprintf(&b, "%s: %d of %d items failed", name, len(e.Failures), e.Total)
	for _, f := range e.Failures {
		fmt.Fprintf(&b, "; [%d] %s: %v", f.Index, f.Item, f.Err)
	}
	return b.String()
}

// Unwrap exposes the individual item errors to errors.Is/As.
func (e *AggregateError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// Run processes items and returns results in input order. If any item fails
// permanently the remaining items still run and an *AggregateError is returned.
func Run[T, R any](ctx context.Context, items []T, worker func(ctx context.Context, item T) (R, error), opts Options) ([]R, error) {
	outcomes := RunAll(ctx, items, worker, opts)

	results := make([]R, len(items))
	var failures []Failure
	for i, o := range outcomes {
		if o.Err != nil {
			failures = append(failures, Failure{Index: i, Item: fmt.Sprint(items[i]), Err: o.Err})
			continue
		}
		results[i] = o.Value
	}

	if len(failures) > 0 {
		return nil, &AggregateError{Name: opts.Name, Total: len(items), Failures: failures}
	}
	return results, nil
}

// RunAll processes items and returns one Outcome per item, in input order.
// It never fails as a whole; callers decide how to treat failed outcomes.
func RunAll[T, R any](ctx context.Context, items []T, worker func(ctx context.Context, item T) (R, error), opts Options) []Outcome[R] {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	policy := opts.Retry
	userOnRetry := policy.OnRetry
	policy.OnRetry = func(attempt int, err error) {
		opts.Metrics.RecordRetry(opts.Name)
		if userOnRetry != nil {
			userOnRetry(attempt, err)
		}
	}

	outcomes := make([]Outcome[R], len(items))
	for start := 0; start < len(items); start += concurrency {
		end := start + concurrency
		if end > len(items) {
			end = len(items)
		}

		if start > 0 && opts.BatchPause > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(opts.BatchPause):
			}
		}

		if err := ctx.Err(); err != nil {
			for i := start; i < len(items); i++ {
				outcomes[i] = Outcome[R]{Index: i, Err: err}
			}
			break
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				item := items[i]
				value, attempts, err := Retry(ctx, policy, func(ctx context.Context) (r R, err error) {
					defer Recover(&err)
					return worker(ctx, item)
				})
				outcomes[i] = Outcome[R]{Index: i, Value: value, Err: err, Attempts: attempts}
				if err != nil {
					logger.Warn("Batch item failed",
						zap.String("batch", opts.Name),
						zap.Int("index", i),
						zap.Int("attempts", attempts),
						zap.Error(err))
				}
			}(i)
		}
		wg.Wait()

		logger.Debug("Batch completed",
			zap.String("batch", opts.Name),
			zap.Int("from", start),
			zap.Int("to", end),
			zap.Int("total", len(items)))
	}

	return outcomes
}

// Chunk splits items into consecutive slices of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	if len(items) == 0 {
		return nil
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}
