// Package respcache keeps specialist answers for repeated questions.
// Bounded and time-expiring: entries are keyed by the normalized query
// text, expire TTL after insertion (exclusive boundary), and the
// oldest-inserted entry is evicted when the cache is full.
package respcache

import (
	"sync"
	"time"

	"github.com/gestao-presente/orquestra/pkg/specialist"
	"github.com/gestao-presente/orquestra/pkg/textutil"
)

type entry struct {
	answer    specialist.Answer
	expiresAt time.Time
}

type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	max     int
	entries map[string]entry
	order   []string // live keys in insertion order
	now     func() time.Time
}

func New(ttl time.Duration, maxItems int) *Cache {
	return &Cache{
		ttl:     ttl,
		max:     maxItems,
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Fingerprint is the cache key for a query: trimmed, case-folded,
// whitespace-collapsed.
func Fingerprint(query string) string {
	return textutil.Normalize(query)
}

// Get returns the cached answer for a query, or false on miss or
// expiry. An entry queried exactly at its deadline is already expired.
func (c *Cache) Get(query string) (specialist.Answer, bool) {
	key := Fingerprint(query)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return specialist.Answer{}, false
	}
	if !c.now().Before(e.expiresAt) {
		c.remove(key)
		return specialist.Answer{}, false
	}
	return e.answer, true
}

// Put stores an answer. A full cache evicts its single oldest-inserted
// entry first, regardless of TTL state.
func (c *Cache) Put(query string, answer specialist.Answer) {
	key := Fingerprint(query)
	if key == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists {
		if c.max > 0 && len(c.order) >= c.max {
			c.remove(c.order[0])
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = entry{answer: answer, expiresAt: c.now().Add(c.ttl)}
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// remove deletes a key from both the map and the order slice.
// Callers hold the lock.
func (c *Cache) remove(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
