// Package hook stores subscribers for named lifecycle events.
package hook

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyEvent = errors.New("hook: empty event name")
	ErrNilFunc    = errors.New("hook: nil func")
)

// Func is a subscriber. Returning an error stops the remaining subscribers
// of the same invocation.
type Func func(payload ...any) (any, error)

// Hook binds a Func to the event it wants to receive.
type Hook struct {
	Event string
	Func  Func
}

func Define(event string, fn Func) Hook {
	return Hook{Event: event, Func: fn}
}

// Registry maps event names to subscribers in registration order.
// Registration happens during setup; Invoke takes no lock.
type Registry struct {
	subscribers map[string][]Func
	events      []string
}

func NewRegistry() *Registry {
	return &Registry{subscribers: make(map[string][]Func)}
}

// Register appends fn to event. Registering twice calls fn twice.
func (r *Registry) Register(event string, fn Func) error {
	if event == "" {
		return ErrEmptyEvent
	}
	if fn == nil {
		return fmt.Errorf("%w for event %q", ErrNilFunc, event)
	}
	if _, ok := r.subscribers[event]; !ok {
		r.events = append(r.events, event)
	}
	r.subscribers[event] = append(r.subscribers[event], fn)
	return nil
}

func (r *Registry) Use(h Hook) error {
	return r.Register(h.Event, h.Func)
}

// Invoke calls every subscriber of event with payload and collects their
// results. An event nobody subscribed to yields an empty result. On error
// the results gathered so far are returned with it.
func (r *Registry) Invoke(event string, payload ...any) ([]any, error) {
	subs := r.subscribers[event]
	results := make([]any, 0, len(subs))
	for _, fn := range subs {
		v, err := fn(payload...)
		if err != nil {
			return results, err
		}
		results = append(results, v)
	}
	return results, nil
}

func (r *Registry) Len(event string) int {
	return len(r.subscribers[event])
}

// Events lists events with at least one subscriber, first registration
// first.
func (r *Registry) Events() []string {
	return append([]string(nil), r.events...)
}
