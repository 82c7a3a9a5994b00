package orders

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Guard deduplicates requests by key. Concurrent calls for one key share a
// single execution, and a successful result is replayed for ttl afterwards.
// Failures are not remembered, so a retry after an error runs again.
type Guard[T any] struct {
	ttl time.Duration
	now func() time.Time

	group singleflight.Group

	mu        sync.Mutex
	done      map[string]guardEntry[T]
	nextPrune time.Time
}

type guardEntry[T any] struct {
	result  T
	expires time.Time
}

func NewGuard[T any](ttl time.Duration) *Guard[T] {
	return &Guard[T]{
		ttl:  ttl,
		now:  time.Now,
		done: make(map[string]guardEntry[T]),
	}
}

// Do runs fn once per key. duplicate is true when the result came from an
// earlier or concurrent call rather than from this call's fn.
func (g *Guard[T]) Do(key string, fn func() (T, error)) (result T, duplicate bool, err error) {
	if cached, ok := g.lookup(key); ok {
		return cached, true, nil
	}

	executed := false
	v, err, _ := g.group.Do(key, func() (any, error) {
		// A call that finished between lookup and Do already stored its result
		if cached, ok := g.lookup(key); ok {
			return cached, nil
		}
		executed = true

		res, err := fn()
		if err != nil {
			return res, err
		}
		g.store(key, res)
		return res, nil
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	return v.(T), !executed, nil
}

// Forget drops the remembered result for key
func (g *Guard[T]) Forget(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.done, key)
}

// Len returns the number of remembered results, expired or not
func (g *Guard[T]) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.done)
}

func (g *Guard[T]) lookup(key string) (T, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, ok := g.done[key]
	if !ok {
		var zero T
		return zero, false
	}
	if !g.now().Before(entry.expires) {
		delete(g.done, key)
		var zero T
		return zero, false
	}
	return entry.result, true
}

func (g *Guard[T]) store(key string, result T) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.done[key] = guardEntry[T]{result: result, expires: now.Add(g.ttl)}

	if now.Before(g.nextPrune) {
		return
	}
	for k, entry := range g.done {
		if !now.Before(entry.expires) {
			delete(g.done, k)
		}
	}
	g.nextPrune = now.Add(g.ttl / 2)
}
