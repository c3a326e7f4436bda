package agreement

import (
	"sort"
	"sync"
	"time"
)

// Each registry guards one logical map with its own mutex. Locks are held
// for a single map operation and never across IO.

type activeEntry struct {
	state State
	peer  string
	since time.Time
}

type activeRegistry struct {
	mu     sync.Mutex
	assets map[string]activeEntry
}

func newActiveRegistry() *activeRegistry {
	return &activeRegistry{assets: make(map[string]activeEntry)}
}

// activate adds asset in state ACTIVATING. It reports false if the asset is
// already active.
func (r *activeRegistry) activate(asset, peer string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.assets[asset]; exists {
		return false
	}
	r.assets[asset] = activeEntry{state: StateActivating, peer: peer, since: now}
	return true
}

// transition moves asset to the given state. It returns the previous state;
// ok is false when the asset is no longer active or the move is illegal.
func (r *activeRegistry) transition(asset string, to State, now time.Time) (from State, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, exists := r.assets[asset]
	if !exists {
		return StateInactive, false
	}
	if !CanTransition(entry.state, to) {
		return entry.state, false
	}
	from = entry.state
	entry.state = to
	entry.since = now
	r.assets[asset] = entry
	return from, true
}

func (r *activeRegistry) remove(asset string) (State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, exists := r.assets[asset]
	if !exists {
		return StateInactive, false
	}
	delete(r.assets, asset)
	return entry.state, true
}

// removeIf removes asset only while it is in state want.
func (r *activeRegistry) removeIf(asset string, want State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, exists := r.assets[asset]
	if !exists || entry.state != want {
		return false
	}
	delete(r.assets, asset)
	return true
}

func (r *activeRegistry) state(asset string) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.assets[asset]; ok {
		return entry.state
	}
	return StateInactive
}

func (r *activeRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.assets)
}

func (r *activeRegistry) snapshot() []AssetState {
	r.mu.Lock()
	out := make([]AssetState, 0, len(r.assets))
	for asset, entry := range r.assets {
		out = append(out, AssetState{AssetID: asset, State: entry.state, Since: entry.since})
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].AssetID < out[j].AssetID })
	return out
}

// recordMap is an asset-keyed map of records behind one mutex.
type recordMap[T any] struct {
	mu      sync.Mutex
	records map[string]T
}

func newRecordMap[T any]() *recordMap[T] {
	return &recordMap[T]{records: make(map[string]T)}
}

func (m *recordMap[T]) get(asset string) (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.records[asset]
	return v, ok
}

func (m *recordMap[T]) put(asset string, v T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[asset] = v
}

func (m *recordMap[T]) delete(asset string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, asset)
}

// deleteIf removes the record of asset only if match accepts the stored value.
func (m *recordMap[T]) deleteIf(asset string, match func(T) bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.records[asset]
	if !ok || !match(v) {
		return false
	}
	delete(m.records, asset)
	return true
}

// update applies fn to the record of asset while holding the lock. fn must
// not block.
func (m *recordMap[T]) update(asset string, fn func(T) T) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.records[asset]
	if !ok {
		return false
	}
	m.records[asset] = fn(v)
	return true
}

// find returns the first asset whose record satisfies match.
func (m *recordMap[T]) find(match func(T) bool) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for asset, v := range m.records {
		if match(v) {
			return asset, true
		}
	}
	return "", false
}
