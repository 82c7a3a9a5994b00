// Package reconcile holds the merge rules a client applies to incoming
// events: patch a cached entity in place, or ask for a full refresh when the
// event names something the cache never loaded.
package reconcile

import (
	"sync"
	"time"

	"courier-backend/internal/events"
	"courier-backend/internal/models"
)

// Outcome says what a merge did
type Outcome int

const (
	// Patched means the cache entry was updated in place
	Patched Outcome = iota
	// Ignored means the event carried nothing to apply
	Ignored
	// NeedsRefresh means the cache is stale and must be reloaded from the store
	NeedsRefresh
)

func (o Outcome) String() string {
	switch o {
	case Patched:
		return "patched"
	case Ignored:
		return "ignored"
	default:
		return "needs_refresh"
	}
}

// MergeOrder applies an order event to cache. It never inserts an order the
// cache does not already hold. A cached order always ends up with the event's
// status; timestamps only decide between two copies of the same status, since
// they come from the server wall clock.
func MergeOrder(cache []models.Order, ev *events.OrderEvent) ([]models.Order, Outcome) {
	for i := range cache {
		if cache[i].ID != ev.Order.ID {
			continue
		}
		if cache[i].Status == ev.Order.Status && cache[i].UpdatedAt > ev.Order.UpdatedAt {
			return cache, Ignored
		}
		merged := make([]models.Order, len(cache))
		copy(merged, cache)
		merged[i] = ev.Order
		return merged, Patched
	}
	return cache, NeedsRefresh
}

// MergeNotification applies a notification event to cache. A deletion of an
// entry the cache lacks is already reflected and changes nothing.
func MergeNotification(cache []models.Notification, ev *events.NotificationEvent) ([]models.Notification, Outcome) {
	if ev.Kind == events.TypeNotificationCount {
		return cache, Ignored
	}

	idx := -1
	for i := range cache {
		if cache[i].ID == ev.NotificationID {
			idx = i
			break
		}
	}

	switch {
	case ev.Kind == events.TypeNotification:
		if idx >= 0 || ev.Notification == nil {
			return cache, Ignored
		}
		merged := make([]models.Notification, 0, len(cache)+1)
		merged = append(merged, *ev.Notification)
		return append(merged, cache...), Patched

	case ev.Action == events.NotificationDeleted:
		if idx < 0 {
			return cache, Ignored
		}
		merged := make([]models.Notification, 0, len(cache)-1)
		merged = append(merged, cache[:idx]...)
		return append(merged, cache[idx+1:]...), Patched

	default:
		if idx < 0 || ev.Notification == nil {
			return cache, NeedsRefresh
		}
		merged := make([]models.Notification, len(cache))
		copy(merged, cache)
		merged[idx] = *ev.Notification
		return merged, Patched
	}
}

// Dedup remembers recently seen event ids so a multi-tab or retried delivery
// is applied once.
type Dedup struct {
	mu    sync.Mutex
	limit int
	seen  map[string]struct{}
	order []string
}

// NewDedup remembers up to limit ids, forgetting the oldest first
func NewDedup(limit int) *Dedup {
	return &Dedup{limit: limit, seen: make(map[string]struct{}, limit)}
}

// First reports whether id has not been seen before, and records it
func (d *Dedup) First(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return false
	}
	d.seen[id] = struct{}{}
	d.order = append(d.order, id)
	if len(d.order) > d.limit {
		delete(d.seen, d.order[0])
		d.order = d.order[1:]
	}
	return true
}

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// Backoff is the reconnect delay before attempt n (starting at 0): 1s doubling, capped at 30s.
func Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 5 {
		return maxBackoff
	}
	return min(initialBackoff<<attempt, maxBackoff)
}
