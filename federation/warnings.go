package federation

import (
	"context"
	"sync"
)

// Warning is a non-fatal problem reported during federated execution, either
// locally (dropped bindings, degraded silent calls) or by a peer in the
// cx_warnings part of a multipart response.
type Warning struct {
	SourceTenant string `json:"source-tenant,omitempty"`
	SourceAsset  string `json:"source-asset,omitempty"`
	TargetTenant string `json:"target-tenant,omitempty"`
	TargetAsset  string `json:"target-asset,omitempty"`
	Problem      string `json:"problem"`
	Context      string `json:"context,omitempty"`
}

// Warnings collects warnings for one request. Safe for concurrent use.
type Warnings struct {
	mu    sync.Mutex
	items []Warning
}

// Add appends warnings.
func (w *Warnings) Add(ws ...Warning) {
	if w == nil || len(ws) == 0 {
		return
	}
	w.mu.Lock()
	w.items = append(w.items, ws...)
	w.mu.Unlock()
}

// List returns a copy of the collected warnings.
func (w *Warnings) List() []Warning {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Warning(nil), w.items...)
}

// Len returns the number of collected warnings.
func (w *Warnings) Len() int {
	if w == nil {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.items)
}

type warningsKey struct{}

// WithWarnings attaches a collector to ctx.
func WithWarnings(ctx context.Context, w *Warnings) context.Context {
	return context.WithValue(ctx, warningsKey{}, w)
}

// WarningsFrom returns the collector attached to ctx, or nil. A nil collector
// discards everything added to it.
func WarningsFrom(ctx context.Context) *Warnings {
	w, _ := ctx.Value(warningsKey{}).(*Warnings)
	return w
}
