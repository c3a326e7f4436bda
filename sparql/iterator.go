package sparql

// Iterator streams bindings. Callers loop on Next, read Binding, then check
// Err once Next returns false. Close releases resources and may be called
// more than once.
type Iterator interface {
	Next() bool
	Binding() Binding
	Err() error
	Close() error
}

// SliceIterator iterates over an in-memory slice.
type SliceIterator struct {
	rows   []Binding
	pos    int
	cur    Binding
	closed bool
}

// NewSliceIterator wraps rows.
func NewSliceIterator(rows []Binding) *SliceIterator {
	return &SliceIterator{rows: rows}
}

// Next advances to the next row.
func (it *SliceIterator) Next() bool {
	if it.closed || it.pos >= len(it.rows) {
		return false
	}
	it.cur = it.rows[it.pos]
	it.pos++
	return true
}

// Binding returns the current row.
func (it *SliceIterator) Binding() Binding { return it.cur }

// Err always returns nil.
func (it *SliceIterator) Err() error { return nil }

// Close stops the iteration.
func (it *SliceIterator) Close() error {
	it.closed = true
	return nil
}

type errorIterator struct{ err error }

// NewErrorIterator returns an iterator that yields nothing and reports err.
func NewErrorIterator(err error) Iterator { return &errorIterator{err: err} }

func (it *errorIterator) Next() bool       { return false }
func (it *errorIterator) Binding() Binding { return Binding{} }
func (it *errorIterator) Err() error       { return it.err }
func (it *errorIterator) Close() error     { return nil }

// Collect drains and closes it.
func Collect(it Iterator) ([]Binding, error) {
	defer it.Close()
	var rows []Binding
	for it.Next() {
		rows = append(rows, it.Binding())
	}
	return rows, it.Err()
}
