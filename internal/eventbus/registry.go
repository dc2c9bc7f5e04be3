package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Handler receives events from a Registry.
type Handler[T any] func(ctx context.Context, ev T) error

// Registry maps subscriber identities to handlers. Notify iterates a snapshot,
// so handlers may add or remove registrations while being notified.
type Registry[T any] struct {
	mu       sync.RWMutex
	handlers map[string]Handler[T]
}

// NewRegistry returns an empty Registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{handlers: make(map[string]Handler[T])}
}

// Add registers h under id, replacing any previous handler.
func (r *Registry[T]) Add(id string, h Handler[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[id] = h
}

// Remove drops the handler registered under id and reports whether it existed.
func (r *Registry[T]) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.handlers[id]
	delete(r.handlers, id)
	return ok
}

// Len returns the number of registered handlers.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Notify calls every handler registered when Notify started, in id order.
// All handlers run; their errors are joined.
func (r *Registry[T]) Notify(ctx context.Context, ev T) error {
	r.mu.RLock()
	ids := make([]string, 0, len(r.handlers))
	snapshot := make(map[string]Handler[T], len(r.handlers))
	for id, h := range r.handlers {
		ids = append(ids, id)
		snapshot[id] = h
	}
	r.mu.RUnlock()
	sort.Strings(ids)

	var errs []error
	for _, id := range ids {
		if err := snapshot[id](ctx, ev); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
