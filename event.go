package inlay

import (
	"maps"
	"slices"
	"sync"
)

// Disposable releases a resource or a subscription.
type Disposable interface {
	Dispose()
}

// DisposableFunc adapts a function to Disposable.
type DisposableFunc func()

// Dispose calls f.
func (f DisposableFunc) Dispose() { f() }

// Once wraps d so that only its first Dispose has an effect.
func Once(d Disposable) Disposable {
	var once sync.Once

	return DisposableFunc(func() {
		once.Do(d.Dispose)
	})
}

// DisposableStore accumulates disposables and releases them as a unit, in
// reverse order of addition. Anything added after Dispose is released
// immediately.
type DisposableStore struct {
	mu       sync.Mutex
	items    []Disposable
	disposed bool
}

// Add registers d with the store.
func (s *DisposableStore) Add(d Disposable) {
	if d == nil {
		return
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		d.Dispose()

		return
	}

	s.items = append(s.items, d)
	s.mu.Unlock()
}

// AddFunc registers fn with the store.
func (s *DisposableStore) AddFunc(fn func()) {
	s.Add(DisposableFunc(fn))
}

// Dispose releases everything in the store. Later calls are no-ops.
func (s *DisposableStore) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()

		return
	}

	s.disposed = true
	items := s.items
	s.items = nil
	s.mu.Unlock()

	for i := len(items) - 1; i >= 0; i-- {
		items[i].Dispose()
	}
}

// Len returns the number of pending disposables.
func (s *DisposableStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.items)
}

// Emitter is a broadcast signal without a payload.
//
// Listeners run synchronously on the goroutine that calls Fire. A listener
// removed while a Fire is in progress may still see that one firing.
type Emitter struct {
	mu        sync.Mutex
	next      int
	listeners map[int]func()
	closed    bool
}

// NewEmitter returns an open emitter.
func NewEmitter() *Emitter {
	return &Emitter{listeners: make(map[int]func())}
}

// Subscribe adds fn as a listener. The returned Disposable removes it.
// Subscribing to a closed emitter is a no-op.
func (e *Emitter) Subscribe(fn func()) Disposable {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return DisposableFunc(func() {})
	}

	id := e.next
	e.next++
	e.listeners[id] = fn

	return Once(DisposableFunc(func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}))
}

// Fire calls every current listener.
func (e *Emitter) Fire() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()

		return
	}

	fns := make([]func(), 0, len(e.listeners))
	for _, id := range slices.Sorted(maps.Keys(e.listeners)) {
		fns = append(fns, e.listeners[id])
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Listeners returns the number of active listeners.
func (e *Emitter) Listeners() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.listeners)
}

// Close drops every listener; later Fire and Subscribe calls do nothing.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
	clear(e.listeners)
}
