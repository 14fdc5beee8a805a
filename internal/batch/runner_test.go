package batch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRunPreservesInputOrder(t *testing.T) {
	items := make([]int, 37)
	for i := range items {
		items[i] = i
	}

	rng := rand.New(rand.NewSource(7))
	delays := make([]time.Duration, len(items))
	for i := range delays {
		delays[i] = time.Duration(rng.Intn(5)) * time.Millisecond
	}

	results, err := Run(context.Background(), items, func(ctx context.Context, item int) (string, error) {
		time.Sleep(delays[item])
		return fmt.Sprintf("item-%d", item), nil
	}, Options{Name: "order", Concurrency: 8, Logger: zap.NewNop()})

	require.NoError(t, err)
	require.Len(t, results, len(items))
	for i, r := range results {
		assert.Equal(t, fmt.Sprintf("item-%d", i), r)
	}
}

func TestRunRespectsConcurrencyCeiling(t *testing.T) {
	var active, peak int32
	items := make([]int, 20)

	_, err := Run(context.Background(), items, func(ctx context.Context, _ int) (int, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return 0, nil
	}, Options{Concurrency: 4})

	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(4))
}

func TestRunRetriesThenSucceeds(t *testing.T) {
	var mu sync.Mutex
	calls := map[string]int{}

	results, err := Run(context.Background(), []string{"a", "b"}, func(ctx context.Context, item string) (string, error) {
		mu.Lock()
		calls[item]++
		n := calls[item]
		mu.Unlock()
		if item == "b" && n < 3 {
			return "", errors.New("temporary")
		}
		return item + "!", nil
	}, Options{Concurrency: 2, Retry: RetryPolicy{Retries: 2, Backoff: Fixed(time.Millisecond)}})

	require.NoError(t, err)
	assert.Equal(t, []string{"a!", "b!"}, results)
	assert.Equal(t, 1, calls["a"])
	assert.Equal(t, 3, calls["b"])
}

func TestRunAggregatesFailures(t *testing.T) {
	boom := errors.New("upstream 503")
	var calls int32

	_, err := Run(context.Background(), []string{"x", "y", "z"}, func(ctx context.Context, item string) (string, error) {
		atomic.AddInt32(&calls, 1)
		if item == "x" {
			return "ok", nil
		}
		return "", boom
	}, Options{Name: "categories", Concurrency: 2, Retry: RetryPolicy{Retries: 1}})

	require.Error(t, err)
	var agg *AggregateError
	require.ErrorAs(t, err, &agg)
	require.Len(t, agg.Failures, 2)
	assert.Equal(t, 1, agg.Failures[0].Index)
	assert.Equal(t, "y", agg.Failures[0].Item)
	assert.Equal(t, 2, agg.Failures[1].Index)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "categories: 2 of 3 items failed")
	// x once, y and z twice each
	assert.Equal(t, int32(5), atomic.LoadInt32(&calls))
}

func TestRunAllReportsOutcomes(t *testing.T) {
	outcomes := RunAll(context.Background(), []int{1, 2, 3}, func(ctx context.Context, item int) (int, error) {
		if item == 2 {
			return 0, errors.New("nope")
		}
		return item * 10, nil
	}, Options{Concurrency: 3, Retry: RetryPolicy{Retries: 2}})

	require.Len(t, outcomes, 3)
	assert.True(t, outcomes[0].OK())
	assert.Equal(t, 10, outcomes[0].Value)
	assert.False(t, outcomes[1].OK())
	assert.Equal(t, 3, outcomes[1].Attempts)
	assert.Equal(t, 30, outcomes[2].Value)
}

func TestRunAllRecoversWorkerPanic(t *testing.T) {
	var calls int32
	outcomes := RunAll(context.Background(), []int{1, 2, 3}, func(ctx context.Context, item int) (int, error) {
		if item == 2 {
			atomic.AddInt32(&calls, 1)
			var m map[string]int
			m["boom"] = 1
		}
		return item, nil
	}, Options{Concurrency: 3, Retry: RetryPolicy{Retries: 2}})

	require.Len(t, outcomes, 3)
	assert.True(t, outcomes[0].OK())
	assert.True(t, outcomes[2].OK())

	var panicErr *PanicError
	require.ErrorAs(t, outcomes[1].Err, &panicErr)
	assert.ErrorIs(t, outcomes[1].Err, ErrPanic)
	assert.NotEmpty(t, panicErr.Stack)
	assert.Equal(t, 1, outcomes[1].Attempts)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRunReportsWorkerPanic(t *testing.T) {
	_, err := Run(context.Background(), []string{"a", "b"}, func(ctx context.Context, item string) (string, error) {
		if item == "b" {
			panic("bad item")
		}
		return item, nil
	}, Options{Name: "test", Concurrency: 2})

	var agg *AggregateError
	require.ErrorAs(t, err, &agg)
	require.Len(t, agg.Failures, 1)
	assert.Equal(t, 1, agg.Failures[0].Index)
	assert.ErrorIs(t, agg.Failures[0].Err, ErrPanic)
}

func TestRunAllStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int32

	outcomes := RunAll(ctx, []int{1, 2, 3, 4}, func(ctx context.Context, item int) (int, error) {
		atomic.AddInt32(&calls, 1)
		cancel()
		return item, nil
	}, Options{Concurrency: 1})

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.True(t, outcomes[0].OK())
	for _, o := range outcomes[1:] {
		assert.ErrorIs(t, o.Err, context.Canceled)
	}
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	permanent := errors.New("not found")
	calls := 0
	_, attempts, err := Retry(context.Background(), RetryPolicy{
		Retries:   5,
		Retryable: func(err error) bool { return !errors.Is(err, permanent) },
	}, func(ctx context.Context) (int, error) {
		calls++
		return 0, permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

func TestRetryBackoffIsParameterizedByAttempt(t *testing.T) {
	var seen []int
	_, _, err := Retry(context.Background(), RetryPolicy{
		Retries: 3,
		Backoff: func(attempt int) time.Duration {
			seen = append(seen, attempt)
			return 0
		},
	}, func(ctx context.Context) (int, error) {
		return 0, errors.New("fail")
	})

	require.Error(t, err)
	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestLinearBackoff(t *testing.T) {
	b := Linear(100 * time.Millisecond)
	assert.Equal(t, 100*time.Millisecond, b(1))
	assert.Equal(t, 300*time.Millisecond, b(3))
}

func TestChunk(t *testing.T) {
	chunks := Chunk([]int{1, 2, 3, 4, 5}, 2)
	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, chunks)
	assert.Nil(t, Chunk([]int{}, 3))
}
