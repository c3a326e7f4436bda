package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoroutinePool_RunsTasks(t *testing.T) {
	p := NewGoroutinePool(GoroutinePoolConfig{MaxWorkers: 4, QueueSize: 16})

	var n atomic.Int32
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) error {
			defer wg.Done()
			n.Add(1)
			return nil
		}))
	}
	wg.Wait()
	p.Close()

	assert.Equal(t, int32(10), n.Load())
	st := p.Stats()
	assert.Equal(t, int64(10), st.Accepted)
	assert.Equal(t, int64(10), st.Finished)
	assert.LessOrEqual(t, st.Workers, 4)
}

// occupy 让唯一的 worker 阻塞并填满长度为 1 的队列
func occupy(t *testing.T, p *GoroutinePool) chan struct{} {
	t.Helper()
	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started
	require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) error { return nil }))
	return release
}

func TestGoroutinePool_FullQueueRejects(t *testing.T) {
	p := NewGoroutinePool(GoroutinePoolConfig{MaxWorkers: 1, QueueSize: 1})
	defer p.Close()

	release := occupy(t, p)

	err := p.Submit(context.Background(), func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolFull)
	assert.Equal(t, int64(1), p.Stats().Rejected)
	close(release)
}

func TestGoroutinePool_GoOverflows(t *testing.T) {
	p := NewGoroutinePool(GoroutinePoolConfig{MaxWorkers: 1, QueueSize: 1})
	defer p.Close()

	release := occupy(t, p)

	// 池已占满，任务仍然执行
	done := make(chan struct{})
	assert.False(t, p.Go(context.Background(), func(ctx context.Context) error {
		close(done)
		return nil
	}))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("overflow task did not run")
	}
	assert.Equal(t, int64(1), p.Stats().Overflow)
	close(release)
}

func TestGoroutinePool_PanicIsContained(t *testing.T) {
	var recovered atomic.Value
	p := NewGoroutinePool(GoroutinePoolConfig{
		MaxWorkers:   1,
		QueueSize:    1,
		PanicHandler: func(v any) { recovered.Store(v) },
	})

	require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) error { panic("boom") }))
	p.Close()

	assert.Equal(t, "boom", recovered.Load())
	assert.Equal(t, int64(1), p.Stats().Failed)
}

func TestGoroutinePool_ClosedRejects(t *testing.T) {
	p := NewGoroutinePool(DefaultGoroutinePoolConfig())
	p.Close()
	p.Close()

	err := p.Submit(context.Background(), func(ctx context.Context) error { return errors.New("unreachable") })
	assert.ErrorIs(t, err, ErrPoolClosed)
}
