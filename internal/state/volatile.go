package state

import (
	"sync"
	"time"
)

// Volatile is in-memory state that is reset on every run.
type Volatile struct {
	mu       sync.RWMutex
	values   map[string]any
	Throttle *Throttle
}

func NewVolatile(notifyLimit time.Duration) *Volatile {
	return &Volatile{
		values:   make(map[string]any),
		Throttle: NewThrottle(notifyLimit),
	}
}

func (v *Volatile) Get(key string) (any, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	val, ok := v.values[key]
	return val, ok
}

func (v *Volatile) Set(key string, value any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.values[key] = value
}

func (v *Volatile) Delete(key string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.values, key)
}

// Throttle remembers when each user was last notified so several plugins
// reacting to the same trigger do not ping the same person twice.
// It is a gate, not a queue: a refused notification is simply dropped.
type Throttle struct {
	mu     sync.Mutex
	limit  time.Duration
	lastAt map[string]time.Time
}

func NewThrottle(limit time.Duration) *Throttle {
	return &Throttle{
		limit:  limit,
		lastAt: make(map[string]time.Time),
	}
}

// ShouldNotify reports whether userID may be notified at now. On true the
// timestamp is recorded; on false nothing changes.
func (t *Throttle) ShouldNotify(userID string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if last, ok := t.lastAt[userID]; ok && now.Sub(last) < t.limit {
		return false
	}
	t.lastAt[userID] = now
	return true
}

// Prune forgets users whose window has elapsed and returns how many were dropped.
func (t *Throttle) Prune(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for id, last := range t.lastAt {
		if now.Sub(last) >= t.limit {
			delete(t.lastAt, id)
			n++
		}
	}
	return n
}

// Len returns the number of users currently tracked.
func (t *Throttle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.lastAt)
}
