package queue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsTasks(t *testing.T) {
	p := NewPool(PoolConfig{Workers: 2, QueueSize: 8}, nil)

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Submit(func(ctx context.Context) {
			ran.Add(1)
		}))
	}

	require.NoError(t, p.Close())
	assert.Equal(t, int32(5), ran.Load())
}

func TestPoolBoundsConcurrency(t *testing.T) {
	p := NewPool(PoolConfig{Workers: 2, QueueSize: 16}, nil)
	defer p.Close()

	var inFlight, peak atomic.Int32
	done := make(chan struct{}, 8)

	for i := 0; i < 8; i++ {
		require.NoError(t, p.Submit(func(ctx context.Context) {
			cur := inFlight.Add(1)
			for {
				old := peak.Load()
				if cur <= old || peak.CompareAndSwap(old, cur) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			inFlight.Add(-1)
			done <- struct{}{}
		}))
	}

	for i := 0; i < 8; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("tasks did not complete")
		}
	}

	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestPoolQueueFull(t *testing.T) {
	p := NewPool(PoolConfig{Workers: 1, QueueSize: 1}, nil)
	defer p.Close()

	block := make(chan struct{})
	require.NoError(t, p.Submit(func(ctx context.Context) { <-block }))

	// Fill the queue, then the next submit must be rejected.
	var err error
	for i := 0; i < 3; i++ {
		err = p.Submit(func(ctx context.Context) {})
		if err != nil {
			break
		}
	}
	assert.ErrorIs(t, err, ErrQueueFull)
	close(block)
}

func TestPoolSubmitWaitHonorsContext(t *testing.T) {
	p := NewPool(PoolConfig{Workers: 1, QueueSize: 1}, nil)
	defer p.Close()

	block := make(chan struct{})
	defer close(block)
	started := make(chan struct{})
	require.NoError(t, p.Submit(func(ctx context.Context) {
		close(started)
		<-block
	}))
	<-started
	require.NoError(t, p.Submit(func(ctx context.Context) {}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := p.SubmitWait(ctx, func(ctx context.Context) {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPoolClosedRejectsSubmit(t *testing.T) {
	p := NewPool(PoolConfig{Workers: 1, QueueSize: 1}, nil)
	require.NoError(t, p.Close())

	err := p.Submit(func(ctx context.Context) {})
	assert.ErrorIs(t, err, ErrPoolClosed)
}
