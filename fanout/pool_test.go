package fanout

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testJob struct {
	id    int
	delay time.Duration
	fail  bool
}

func TestNewPool(t *testing.T) {
	processor := func(context.Context, testJob) error { return nil }

	pool := NewPool(5, 100, processor)
	assert.Equal(t, 5, pool.workers)
	assert.Equal(t, 100, pool.queueSize)

	pool = NewPool(0, 0, processor)
	assert.Equal(t, DefaultWorkers(), pool.workers)
	assert.Equal(t, 1000, pool.queueSize)

	assert.Panics(t, func() { NewPool[testJob](5, 100, nil) })
}

func TestPool_StartStop(t *testing.T) {
	var processed atomic.Int64
	pool := NewPool(2, 10, func(context.Context, testJob) error {
		processed.Add(1)
		return nil
	})

	require.ErrorIs(t, pool.Submit(testJob{}), ErrPoolNotStarted)

	ctx := context.Background()
	require.NoError(t, pool.Start(ctx))
	require.ErrorIs(t, pool.Start(ctx), ErrPoolAlreadyStarted)

	for i := 0; i < 5; i++ {
		require.NoError(t, pool.Submit(testJob{id: i}))
	}

	// Stop drains queued jobs before returning.
	require.NoError(t, pool.Stop(5*time.Second))
	assert.Equal(t, int64(5), processed.Load())

	require.ErrorIs(t, pool.Submit(testJob{id: 999}), ErrPoolStopped)
	require.ErrorIs(t, pool.SubmitWait(ctx, testJob{id: 999}), ErrPoolStopped)
	require.NoError(t, pool.Stop(time.Second))
}

func TestPool_QueueFull(t *testing.T) {
	release := make(chan struct{})
	pool := NewPool(1, 2, func(context.Context, testJob) error {
		<-release
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))

	submitted, dropped := 0, 0
	for i := 0; i < 6; i++ {
		if err := pool.Submit(testJob{id: i}); err != nil {
			require.ErrorIs(t, err, ErrQueueFull)
			dropped++
		} else {
			submitted++
		}
	}
	close(release)
	require.NoError(t, pool.Stop(5*time.Second))

	assert.Positive(t, dropped)
	assert.Positive(t, submitted)
	assert.Equal(t, int64(dropped), pool.Stats().Dropped)
}

func TestPool_SubmitWaitBlocksUntilSpace(t *testing.T) {
	release := make(chan struct{})
	pool := NewPool(1, 1, func(context.Context, testJob) error {
		<-release
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop(5 * time.Second)

	// Fill the worker and the queue.
	require.NoError(t, pool.SubmitWait(context.Background(), testJob{id: 1}))
	require.Eventually(t, func() bool { return pool.Stats().QueueDepth == 0 }, time.Second, time.Millisecond)
	require.NoError(t, pool.SubmitWait(context.Background(), testJob{id: 2}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, pool.SubmitWait(ctx, testJob{id: 3}), context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() { done <- pool.SubmitWait(context.Background(), testJob{id: 4}) }()
	close(release)
	require.NoError(t, <-done)
}

func TestPool_ProcessingErrors(t *testing.T) {
	var success, failure atomic.Int64
	pool := NewPool(2, 10, func(_ context.Context, job testJob) error {
		if job.fail {
			failure.Add(1)
			return errors.New("simulated error")
		}
		success.Add(1)
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))

	for i := 0; i < 10; i++ {
		require.NoError(t, pool.Submit(testJob{id: i, fail: i%2 == 0}))
	}
	require.NoError(t, pool.Stop(5*time.Second))

	assert.Equal(t, int64(5), success.Load())
	assert.Equal(t, int64(5), failure.Load())

	stats := pool.Stats()
	assert.Equal(t, int64(10), stats.Processed)
	assert.Equal(t, int64(5), stats.Failed)
	assert.Equal(t, int64(10), stats.Submitted)
}

func TestPool_ContextCancellation(t *testing.T) {
	var processed atomic.Int64
	pool := NewPool(2, 10, func(ctx context.Context, job testJob) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(job.delay):
			processed.Add(1)
			return nil
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, pool.Start(ctx))
	for i := 0; i < 5; i++ {
		require.NoError(t, pool.Submit(testJob{id: i, delay: 50 * time.Millisecond}))
	}
	time.Sleep(10 * time.Millisecond)
	cancel()

	require.NoError(t, pool.Stop(5*time.Second))
	assert.Less(t, processed.Load(), int64(5))
}

func TestPool_ConcurrentSubmissions(t *testing.T) {
	var processed atomic.Int64
	pool := NewPool(5, 100, func(context.Context, testJob) error {
		processed.Add(1)
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))

	var wg sync.WaitGroup
	submitters, perSubmitter := 10, 10
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perSubmitter; j++ {
				assert.NoError(t, pool.SubmitWait(context.Background(), testJob{id: id*perSubmitter + j}))
			}
		}(i)
	}
	wg.Wait()
	require.NoError(t, pool.Stop(5*time.Second))

	assert.Equal(t, int64(submitters*perSubmitter), processed.Load())
}

func TestPool_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	pool := NewPool(2, 10, func(_ context.Context, job testJob) error {
		if job.fail {
			return errors.New("boom")
		}
		return nil
	}, WithRegisterer[testJob](reg, "test_pool"))
	require.NotNil(t, pool.metrics)
	require.NoError(t, pool.Start(context.Background()))

	for i := 0; i < 4; i++ {
		require.NoError(t, pool.Submit(testJob{id: i, fail: i == 0}))
	}
	require.NoError(t, pool.Stop(5*time.Second))

	assert.Equal(t, 4.0, testutil.ToFloat64(pool.metrics.submitted))
	assert.Equal(t, 4.0, testutil.ToFloat64(pool.metrics.processed))
	assert.Equal(t, 1.0, testutil.ToFloat64(pool.metrics.failed))
}
