package async

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/specialistvlad/livebind/internal/ctxlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuture_ThenRunsOnQueue(t *testing.T) {
	q := NewQueue()
	f := NewFuture[int](q)

	var got []int
	f.Then(func(v int, err error) {
		require.NoError(t, err)
		got = append(got, v)
	})

	require.True(t, f.Resolve(7))
	require.False(t, f.Resolve(8), "only the first settlement counts")
	assert.Empty(t, got, "continuations never run inline")

	require.Equal(t, 1, q.RunPending())
	assert.Equal(t, []int{7}, got)

	// Registering after settlement still goes through the queue.
	f.Then(func(v int, err error) { got = append(got, v*2) })
	assert.Equal(t, []int{7}, got)
	q.RunPending()
	assert.Equal(t, []int{7, 14}, got)
}

func TestFuture_PendingAndResult(t *testing.T) {
	q := NewQueue()
	f := NewFuture[string](q)
	assert.True(t, f.Pending())
	_, _, ok := f.Result()
	assert.False(t, ok)

	boom := errors.New("boom")
	f.Reject(boom)
	assert.False(t, f.Pending())
	_, err, ok := f.Result()
	assert.True(t, ok)
	assert.ErrorIs(t, err, boom)
}

func TestMap_PropagatesErrors(t *testing.T) {
	q := NewQueue()
	boom := errors.New("boom")

	ok := Map(Resolved(q, 2), func(v int) (int, error) { return v + 1, nil })
	rejected := NewFuture[int](q)
	rejected.Reject(boom)
	failed := Map(rejected, func(v int) (int, error) {
		t.Fatal("must not be called")
		return 0, nil
	})
	q.RunPending()

	v, err, settled := ok.Result()
	require.True(t, settled)
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	_, err, settled = failed.Result()
	require.True(t, settled)
	assert.ErrorIs(t, err, boom)
}

func TestQueue_RunPendingIncludesNestedPosts(t *testing.T) {
	q := NewQueue()
	var order []int
	q.Post(func() {
		order = append(order, 1)
		q.Post(func() { order = append(order, 3) })
	})
	q.Post(func() { order = append(order, 2) })

	assert.Equal(t, 3, q.RunPending())
	assert.Equal(t, []int{1, 2, 3}, order)
	assert.Zero(t, q.Len())
}

func TestQueue_WaitHonoursContext(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Wait(ctx), context.DeadlineExceeded)
}

func TestPool_GoSettlesThroughQueue(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	q := NewQueue()
	p := NewPool(ctx, 2)
	defer p.Close()

	const jobs = 10
	futures := make([]*Future[int], jobs)
	for i := range futures {
		futures[i] = Go(p, q, func() (int, error) { return i * i, nil })
	}

	var mu sync.Mutex
	sum := 0
	for _, f := range futures {
		f.Then(func(v int, err error) {
			mu.Lock()
			defer mu.Unlock()
			sum += v
		})
	}

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	done := 0
	for done < jobs {
		require.NoError(t, q.Wait(waitCtx))
		done += q.RunPending()
	}
	assert.Equal(t, 285, sum)
}

func TestPool_PanicRejects(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	q := NewQueue()
	p := NewPool(ctx, 1)
	f := Go(p, q, func() (int, error) { panic("kaboom") })
	p.Close()

	_, err, ok := f.Result()
	require.True(t, ok)
	assert.ErrorContains(t, err, "kaboom")
}

func TestPool_SubmitAfterClose(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	q := NewQueue()
	p := NewPool(ctx, 1)
	p.Close()

	f := Go(p, q, func() (int, error) { return 1, nil })
	_, err, ok := f.Result()
	require.True(t, ok)
	assert.Error(t, err)
}
