package orchestrator

import (
	"sync"
	"time"
)

// dedupSet is the bounded recent-message-id set. Insert-if-absent is
// atomic under the mutex; entries age out by TTL and the set evicts
// its oldest entry when full.
type dedupSet struct {
	mu  sync.Mutex
	ttl time.Duration
	max int

	entries map[string]time.Time
	order   []string
	now     func() time.Time
}

func newDedupSet(max int, ttl time.Duration) *dedupSet {
	return &dedupSet{
		ttl:     ttl,
		max:     max,
		entries: make(map[string]time.Time, max),
		now:     time.Now,
	}
}

// Add inserts the id and reports true when it was absent. A second Add
// within the TTL returns false.
func (d *dedupSet) Add(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.prune(now)

	if seen, ok := d.entries[id]; ok && now.Sub(seen) < d.ttl {
		return false
	}
	if _, ok := d.entries[id]; !ok {
		if len(d.order) >= d.max {
			d.evictOldest()
		}
		d.order = append(d.order, id)
	}
	d.entries[id] = now
	return true
}

func (d *dedupSet) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

func (d *dedupSet) prune(now time.Time) {
	kept := d.order[:0]
	for _, id := range d.order {
		if seen, ok := d.entries[id]; ok && now.Sub(seen) < d.ttl {
			kept = append(kept, id)
			continue
		}
		delete(d.entries, id)
	}
	d.order = kept
}

func (d *dedupSet) evictOldest() {
	id := d.order[0]
	d.order = d.order[1:]
	delete(d.entries, id)
}
