package federation

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catenax-ng/product-agents-edc-sub000/sparql"
)

func lit(v string) sparql.Binding { return row("v", sparql.Literal(v)) }

func values(rows []sparql.Binding) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		t, _ := r.Get("v")
		out[i] = t.Value
	}
	return out
}

func TestMergingIterator_CompletionOrder(t *testing.T) {
	slow := newFuture(func() {})
	fast := newFuture(func() {})
	m := newMergingIterator(context.Background(), time.Millisecond, []*future{slow, fast})

	fast.complete(sparql.NewSliceIterator([]sparql.Binding{lit("fast-1"), lit("fast-2")}), nil)
	go func() {
		time.Sleep(20 * time.Millisecond)
		slow.complete(sparql.NewSliceIterator([]sparql.Binding{lit("slow")}), nil)
	}()

	rows, err := sparql.Collect(m)
	require.NoError(t, err)
	assert.Equal(t, []string{"fast-1", "fast-2", "slow"}, values(rows))
}

func TestMergingIterator_ErrorSurfaces(t *testing.T) {
	boom := errors.New("peer down")
	cancelled := make(chan struct{})
	failing := completedFuture(nil, boom)
	pending := newFuture(func() { close(cancelled) })

	m := newMergingIterator(context.Background(), time.Millisecond, []*future{failing, pending})
	assert.False(t, m.Next())
	assert.ErrorIs(t, m.Err(), boom)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("outstanding future was not cancelled")
	}
}

func TestMergingIterator_CloseCancelsOutstanding(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFuture(cancel)
	ready := completedFuture(sparql.NewSliceIterator([]sparql.Binding{lit("a"), lit("b")}), nil)

	m := newMergingIterator(context.Background(), time.Millisecond, []*future{ready, f})
	require.True(t, m.Next())
	require.NoError(t, m.Close())
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.False(t, m.Next())

	// a late result is discarded
	closed := &closeTracker{}
	f.complete(closed, nil)
	assert.True(t, closed.closed)
}

func TestMergingIterator_StopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	m := newMergingIterator(ctx, time.Millisecond, []*future{newFuture(func() {})})
	assert.False(t, m.Next())
	assert.ErrorIs(t, m.Err(), context.DeadlineExceeded)
}

func TestMergingIterator_ReleasesDrainedFutures(t *testing.T) {
	ctxA, cancelA := context.WithCancel(context.Background())
	ctxB, cancelB := context.WithCancel(context.Background())
	ctxErr, cancelErr := context.WithCancel(context.Background())
	defer cancelA()
	defer cancelB()
	defer cancelErr()

	a := newFuture(cancelA)
	a.complete(sparql.NewSliceIterator([]sparql.Binding{lit("a")}), nil)
	b := newFuture(cancelB)
	m := newMergingIterator(context.Background(), time.Millisecond, []*future{a, b})

	require.True(t, m.Next())
	assert.NoError(t, ctxA.Err(), "context stays live while rows are read")

	b.complete(sparql.NewSliceIterator([]sparql.Binding{lit("b")}), nil)
	require.True(t, m.Next())
	assert.ErrorIs(t, ctxA.Err(), context.Canceled, "drained future is released")
	assert.NoError(t, ctxB.Err())

	assert.False(t, m.Next())
	assert.ErrorIs(t, ctxB.Err(), context.Canceled)
	require.NoError(t, m.Err())

	failing := newFuture(cancelErr)
	failing.complete(nil, errors.New("peer down"))
	m = newMergingIterator(context.Background(), time.Millisecond, []*future{failing})
	assert.False(t, m.Next())
	assert.ErrorIs(t, ctxErr.Err(), context.Canceled, "failed future is released")
}

func TestExecutor_ReleasesCallContextAfterDrain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeResults(t, w, []string{"name"}, []sparql.Binding{row("name", sparql.Literal("n"))})
	}))
	defer srv.Close()

	e := newTestExecutor(t, Config{}, nil)
	it, err := e.Execute(context.Background(), &sparql.Service{Target: sparql.IRI(srv.URL), Sub: nameBGP},
		[]sparql.Binding{row("part", sparql.IRI("urn:p1"))})
	require.NoError(t, err)
	m, ok := it.(*MergingIterator)
	require.True(t, ok)
	require.Len(t, m.pending, 1)
	f := m.pending[0]

	var rows int
	for m.Next() {
		rows++
		assert.NotNil(t, m.release, "context stays live while rows are read")
	}
	require.NoError(t, m.Err())
	assert.Equal(t, 1, rows)
	assert.True(t, f.ready())
	assert.Nil(t, m.release, "call context is cancelled once drained, before Close")
	assert.False(t, m.closed)
	require.NoError(t, m.Close())
}

type closeTracker struct {
	sparql.SliceIterator
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}
