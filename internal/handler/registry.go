package handler

import (
	"sync"
)

// Registry provides a shared name -> handler registry that remembers
// registration order.
type Registry[T any] struct {
	handlers map[string]T
	order    []string
	mu       sync.RWMutex
}

func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{
		handlers: make(map[string]T),
	}
}

// Set stores handler under name and reports whether an existing entry was
// replaced. A replaced name keeps its original position.
func (r *Registry[T]) Set(name string, handler T) (replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[name]; exists {
		replaced = true
	} else {
		r.order = append(r.order, name)
	}
	r.handlers[name] = handler
	return replaced
}

func (r *Registry[T]) Get(name string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[name]
	return h, ok
}

func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Range calls fn for every entry in registration order until fn returns
// false.
func (r *Registry[T]) Range(fn func(name string, handler T) bool) {
	r.mu.RLock()
	names := append([]string(nil), r.order...)
	handlers := make([]T, len(names))
	for i, name := range names {
		handlers[i] = r.handlers[name]
	}
	r.mu.RUnlock()

	for i, name := range names {
		if !fn(name, handlers[i]) {
			return
		}
	}
}
