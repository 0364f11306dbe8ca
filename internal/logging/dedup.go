package logging

import (
	"log/slog"
	"sync"
	"time"
)

// Deduplicator suppresses identical repeated log messages within a time
// window. The polling engine uses it so a project that fails every tick
// does not flood the log with the same warning.
type Deduplicator struct {
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewDeduplicator creates a deduplicator with the given suppression window.
func NewDeduplicator(window time.Duration) *Deduplicator {
	return &Deduplicator{
		window: window,
		now:    time.Now,
		seen:   make(map[string]time.Time),
	}
}

// ShouldLog reports whether a message with the given key should be emitted.
// The first call for a key always returns true; subsequent calls return
// false until the window has elapsed.
func (d *Deduplicator) ShouldLog(key string) bool {
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if last, ok := d.seen[key]; ok && now.Sub(last) < d.window {
		return false
	}
	d.seen[key] = now

	// Compact expired entries opportunistically so the map does not grow
	// without bound over the process lifetime.
	if len(d.seen) > 256 {
		for k, t := range d.seen {
			if now.Sub(t) >= d.window {
				delete(d.seen, k)
			}
		}
	}

	return true
}

// Warn logs a warning through the given logger unless an identical message
// was logged within the window.
func (d *Deduplicator) Warn(logger *slog.Logger, msg string, args ...any) {
	if d.ShouldLog(msg) {
		logger.Warn(msg, args...)
	}
}
