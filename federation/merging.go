package federation

import (
	"context"
	"sync"
	"time"

	"github.com/catenax-ng/product-agents-edc-sub000/sparql"
)

// DefaultPollInterval is the merging iterator's sleep between scans.
const DefaultPollInterval = 10 * time.Millisecond

// future is the pending result of one dispatched group.
type future struct {
	done   chan struct{}
	cancel context.CancelFunc

	mu        sync.Mutex
	it        sparql.Iterator
	err       error
	discarded bool
}

func newFuture(cancel context.CancelFunc) *future {
	return &future{done: make(chan struct{}), cancel: cancel}
}

// completedFuture wraps an already known result.
func completedFuture(it sparql.Iterator, err error) *future {
	f := newFuture(func() {})
	f.complete(it, err)
	return f
}

func (f *future) complete(it sparql.Iterator, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	select {
	case <-f.done:
		return
	default:
	}
	if f.discarded {
		if it != nil {
			_ = it.Close()
		}
	} else {
		f.it, f.err = it, err
	}
	close(f.done)
}

func (f *future) ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// discard cancels the work and drops its result.
func (f *future) discard() {
	f.cancel()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discarded = true
	if f.it != nil {
		_ = f.it.Close()
		f.it = nil
	}
}

// MergingIterator drains a set of futures in completion order. With no
// current sub-iterator it scans for a completed future; when none is ready it
// sleeps for the poll interval. It has no deadline of its own and only stops
// early when ctx is done.
type MergingIterator struct {
	ctx     context.Context
	poll    time.Duration
	pending []*future
	current sparql.Iterator
	release context.CancelFunc // 当前 future 的上下文，结果读完后释放
	row     sparql.Binding
	err     error
	closed  bool
}

func newMergingIterator(ctx context.Context, poll time.Duration, futures []*future) *MergingIterator {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &MergingIterator{ctx: ctx, poll: poll, pending: futures}
}

// Next advances to the next row of any completed future.
func (m *MergingIterator) Next() bool {
	if m.closed || m.err != nil {
		return false
	}
	for {
		if m.current != nil {
			if m.current.Next() {
				m.row = m.current.Binding()
				return true
			}
			err := m.current.Err()
			_ = m.closeCurrent()
			if err != nil {
				m.fail(err)
				return false
			}
		}
		if len(m.pending) == 0 {
			return false
		}
		if f := m.takeReady(); f != nil {
			if f.err != nil {
				f.cancel()
				m.fail(f.err)
				return false
			}
			m.current, m.release = f.it, f.cancel
			continue
		}
		timer := time.NewTimer(m.poll)
		select {
		case <-m.ctx.Done():
			timer.Stop()
			m.fail(m.ctx.Err())
			return false
		case <-timer.C:
		}
	}
}

func (m *MergingIterator) takeReady() *future {
	for i, f := range m.pending {
		if !f.ready() {
			continue
		}
		m.pending = append(m.pending[:i], m.pending[i+1:]...)
		return f
	}
	return nil
}

func (m *MergingIterator) fail(err error) {
	m.err = err
	m.discardPending()
}

// Binding returns the current row.
func (m *MergingIterator) Binding() sparql.Binding { return m.row }

// Err returns the first error of any drained future.
func (m *MergingIterator) Err() error { return m.err }

// Close closes the current sub-iterator and cancels every outstanding future.
func (m *MergingIterator) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	err := m.closeCurrent()
	m.discardPending()
	return err
}

// closeCurrent closes the drained sub-iterator and cancels its call context.
func (m *MergingIterator) closeCurrent() error {
	var err error
	if m.current != nil {
		err = m.current.Close()
		m.current = nil
	}
	if m.release != nil {
		m.release()
		m.release = nil
	}
	return err
}

func (m *MergingIterator) discardPending() {
	for _, f := range m.pending {
		f.discard()
	}
	m.pending = nil
}
