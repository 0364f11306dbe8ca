package mention

import "sync"

// Cache is the process-local set of note IDs already replied to (or
// confirmed handled). It only grows; restarts start empty and rely on the
// live duplicate check instead.
type Cache struct {
	mu   sync.Mutex
	seen map[int]struct{}
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{seen: make(map[int]struct{})}
}

// Seen reports whether the note ID was previously added.
func (c *Cache) Seen(id int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.seen[id]
	return ok
}

// Add records a note ID as handled.
func (c *Cache) Add(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen[id] = struct{}{}
}

// Len returns the number of cached IDs.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
