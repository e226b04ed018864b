// internal/delivery/registry.go
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/user/insightflow/internal/types"
)

// Handler receives a generated insight.
type Handler func(ctx context.Context, insight *types.Insight) error

type entry struct {
	name          string
	minConfidence float64
	handler       Handler
}

// Registry fans insights out to registered handlers in registration order.
// Each handler has its own minimum confidence; insights below it are skipped.
type Registry struct {
	mu      sync.RWMutex
	entries []entry
}

// Result counts the outcome of one Deliver call.
type Result struct {
	Delivered int
	Skipped   int
	Failed    int
}

// NewRegistry creates an empty delivery registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a handler. name is only used in logs.
func (r *Registry) Register(name string, minConfidence float64, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry{name: name, minConfidence: minConfidence, handler: handler})
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Deliver runs every handler sequentially. Handler errors and panics are
// logged and counted, never returned, so one failing handler cannot stop the
// rest.
func (r *Registry) Deliver(ctx context.Context, insight *types.Insight) Result {
	r.mu.RLock()
	entries := make([]entry, len(r.entries))
	copy(entries, r.entries)
	r.mu.RUnlock()

	var res Result
	for _, e := range entries {
		if insight.Confidence < e.minConfidence {
			res.Skipped++
			continue
		}
		if err := invoke(ctx, e.handler, insight); err != nil {
			res.Failed++
			slog.Warn("insight callback failed", "callback", e.name, "insight_id", string(insight.ID), "error", err)
			continue
		}
		res.Delivered++
	}
	return res
}

func invoke(ctx context.Context, h Handler, insight *types.Insight) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return h(ctx, insight)
}
