// Package dispatch delivers change events to subscribers without letting a
// slow or failing subscriber affect the producer or other subscribers.
package dispatch

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Subscription identifies a registered listener.
type Subscription string

// Listeners is a set of callbacks for events of type E.
// Registration is safe from any goroutine; delivery takes a snapshot so listeners
// may add or remove themselves while being called.
type Listeners[E any] struct {
	name   string
	logger *slog.Logger

	mu    sync.RWMutex
	order []Subscription
	fns   map[Subscription]func(E)
}

// NewListeners creates an empty listener set. The name is used in log output.
func NewListeners[E any](name string, logger *slog.Logger) *Listeners[E] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listeners[E]{
		name:   name,
		logger: logger,
		fns:    make(map[Subscription]func(E)),
	}
}

// Add registers fn and returns a handle for removing it.
func (l *Listeners[E]) Add(fn func(E)) Subscription {
	id := Subscription(uuid.NewString())
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fns[id] = fn
	l.order = append(l.order, id)
	return id
}

// Remove unregisters a listener. Unknown handles are ignored.
func (l *Listeners[E]) Remove(id Subscription) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.fns[id]; !ok {
		return
	}
	delete(l.fns, id)
	for i, s := range l.order {
		if s == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of registered listeners.
func (l *Listeners[E]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.order)
}

func (l *Listeners[E]) snapshot() []func(E) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.order) == 0 {
		return nil
	}
	out := make([]func(E), 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.fns[id])
	}
	return out
}

// Deliver calls every listener in registration order. A panicking listener is
// logged and skipped. Deliver returns false when nobody was listening.
func (l *Listeners[E]) Deliver(event E) bool {
	fns := l.snapshot()
	if len(fns) == 0 {
		return false
	}
	for _, fn := range fns {
		l.call(fn, event)
	}
	return true
}

func (l *Listeners[E]) call(fn func(E), event E) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("listener failed",
				"listeners", l.name,
				"error", fmt.Sprint(r))
		}
	}()
	fn(event)
}
