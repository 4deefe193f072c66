package parallel_test

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paveg/finwrangle/internal/parallel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorkerPool(t *testing.T) {
	assert.Equal(t, runtime.NumCPU(), parallel.NewWorkerPool(0).Workers())
	assert.Equal(t, runtime.NumCPU(), parallel.NewWorkerPool(-1).Workers())
	assert.Equal(t, 4, parallel.NewWorkerPool(4).Workers())
}

func TestProcessIndexedKeepsOrder(t *testing.T) {
	pool := parallel.NewWorkerPool(3)
	input := []string{"ACME", "BOLT", "CRUX", "DYNO"}

	results, err := parallel.ProcessIndexed(context.Background(), pool, input,
		func(_ context.Context, index int, ticker string) (string, error) {
			// later items finish first
			time.Sleep(time.Duration(len(input)-index) * time.Millisecond)
			return ticker + string(rune('0'+index)), nil
		})
	require.NoError(t, err)
	assert.Equal(t, []string{"ACME0", "BOLT1", "CRUX2", "DYNO3"}, results)
}

func TestProcessIndexedEmpty(t *testing.T) {
	results, err := parallel.ProcessIndexed(context.Background(), parallel.NewWorkerPool(2), []int{},
		func(_ context.Context, _ int, v int) (int, error) { return v, nil })
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestProcessIndexedBoundsConcurrency(t *testing.T) {
	pool := parallel.NewWorkerPool(4)

	var current, peak int64
	input := make([]int, 20)
	_, err := parallel.ProcessIndexed(context.Background(), pool, input,
		func(_ context.Context, _ int, _ int) (int, error) {
			n := atomic.AddInt64(&current, 1)
			for {
				p := atomic.LoadInt64(&peak)
				if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&current, -1)
			return 0, nil
		})
	require.NoError(t, err)

	assert.Greater(t, peak, int64(1), "expected concurrent execution")
	assert.LessOrEqual(t, peak, int64(4))
}

func TestProcessIndexedFirstErrorCancels(t *testing.T) {
	pool := parallel.NewWorkerPool(1)
	boom := errors.New("boom")

	var calls atomic.Int32
	_, err := parallel.ProcessIndexed(context.Background(), pool, []int{0, 1, 2, 3},
		func(_ context.Context, index int, _ int) (int, error) {
			calls.Add(1)
			if index == 1 {
				return 0, boom
			}
			return index, nil
		})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, int32(2), calls.Load(), "items after the failure are not started")
}

func TestProcessIndexedCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := parallel.ProcessIndexed(ctx, parallel.NewWorkerPool(2), []int{1, 2},
		func(_ context.Context, _ int, v int) (int, error) { return v, nil })
	assert.ErrorIs(t, err, context.Canceled)
}
