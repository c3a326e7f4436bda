// Package pool bounds the goroutines that carry outbound service calls.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrPoolClosed = errors.New("pool is closed")
	ErrPoolFull   = errors.New("pool is full")
)

// Task represents a unit of work.
type Task func(ctx context.Context) error

// GoroutinePool runs tasks on at most MaxWorkers goroutines fed by a bounded
// queue. Idle workers above one exit after IdleTimeout.
type GoroutinePool struct {
	maxWorkers  int32
	idleTimeout time.Duration
	onPanic     func(any)

	// mu 保护 closed 与队列发送，Close 之后不再有写入
	mu     sync.RWMutex
	closed bool
	queue  chan queued
	wg     sync.WaitGroup

	workers  atomic.Int32
	active   atomic.Int32
	accepted atomic.Int64
	finished atomic.Int64
	failed   atomic.Int64
	rejected atomic.Int64
	overflow atomic.Int64
}

type queued struct {
	ctx  context.Context
	task Task
}

// GoroutinePoolConfig configures the pool.
type GoroutinePoolConfig struct {
	MaxWorkers   int           `json:"max_workers"`
	QueueSize    int           `json:"queue_size"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
	PanicHandler func(any)     `json:"-"`
}

// DefaultGoroutinePoolConfig 默认 16 个 worker，队列为 worker 数的 4 倍
func DefaultGoroutinePoolConfig() GoroutinePoolConfig {
	return GoroutinePoolConfig{
		MaxWorkers:  16,
		QueueSize:   64,
		IdleTimeout: time.Minute,
	}
}

// NewGoroutinePool creates a pool. Workers are started lazily.
func NewGoroutinePool(config GoroutinePoolConfig) *GoroutinePool {
	if config.MaxWorkers < 1 {
		config.MaxWorkers = 1
	}
	if config.QueueSize < 1 {
		config.QueueSize = 1
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = time.Minute
	}
	return &GoroutinePool{
		maxWorkers:  int32(config.MaxWorkers),
		idleTimeout: config.IdleTimeout,
		onPanic:     config.PanicHandler,
		queue:       make(chan queued, config.QueueSize),
	}
}

// Submit queues task without blocking. It fails with ErrPoolFull when the
// queue is full and every worker is busy.
func (p *GoroutinePool) Submit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	item := queued{ctx: ctx, task: task}
	select {
	case p.queue <- item:
		p.accepted.Add(1)
		p.spawnIfNeeded()
		return nil
	default:
	}

	// 队列满：尝试再起一个 worker 后重试一次
	if p.spawn() {
		select {
		case p.queue <- item:
			p.accepted.Add(1)
			return nil
		default:
		}
	}
	p.rejected.Add(1)
	return ErrPoolFull
}

// Go runs task on the pool, or on a fresh goroutine when the pool rejects it.
// A call never waits for capacity. It reports whether the pool took the task.
func (p *GoroutinePool) Go(ctx context.Context, task Task) bool {
	if err := p.Submit(ctx, task); err == nil {
		return true
	}
	p.overflow.Add(1)
	go func() { _ = p.run(queued{ctx: ctx, task: task}) }()
	return false
}

func (p *GoroutinePool) spawnIfNeeded() {
	if p.workers.Load() < p.maxWorkers {
		p.spawn()
	}
}

func (p *GoroutinePool) spawn() bool {
	for {
		n := p.workers.Load()
		if n >= p.maxWorkers {
			return false
		}
		if p.workers.CompareAndSwap(n, n+1) {
			p.wg.Add(1)
			go p.worker()
			return true
		}
	}
}

func (p *GoroutinePool) worker() {
	defer p.wg.Done()
	defer p.workers.Add(-1)

	idle := time.NewTimer(p.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case item, ok := <-p.queue:
			if !ok {
				return
			}
			p.active.Add(1)
			if err := p.run(item); err != nil {
				p.failed.Add(1)
			}
			p.active.Add(-1)
			p.finished.Add(1)
			idle.Reset(p.idleTimeout)

		case <-idle.C:
			// 保留最后一个 worker
			if p.workers.Load() > 1 {
				return
			}
			idle.Reset(p.idleTimeout)
		}
	}
}

func (p *GoroutinePool) run(item queued) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if p.onPanic != nil {
				p.onPanic(r)
			}
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return item.task(item.ctx)
}

// Close stops accepting tasks, lets queued tasks drain and waits for the
// workers to exit.
func (p *GoroutinePool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	p.wg.Wait()
}

// Stats returns pool statistics.
func (p *GoroutinePool) Stats() GoroutinePoolStats {
	return GoroutinePoolStats{
		Workers:  int(p.workers.Load()),
		Active:   int(p.active.Load()),
		Queued:   len(p.queue),
		Accepted: p.accepted.Load(),
		Finished: p.finished.Load(),
		Failed:   p.failed.Load(),
		Rejected: p.rejected.Load(),
		Overflow: p.overflow.Load(),
	}
}

// GoroutinePoolStats contains pool statistics. Overflow counts tasks that
// Go ran outside the pool.
type GoroutinePoolStats struct {
	Workers  int   `json:"workers"`
	Active   int   `json:"active"`
	Queued   int   `json:"queued"`
	Accepted int64 `json:"accepted"`
	Finished int64 `json:"finished"`
	Failed   int64 `json:"failed"`
	Rejected int64 `json:"rejected"`
	Overflow int64 `json:"overflow"`
}
