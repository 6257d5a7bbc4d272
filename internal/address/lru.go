package address

import (
	"container/list"
	"sync"
	"time"
)

// lruCache is the in-process layer of the address cache: validated records
// keyed by fingerprint, bounded by capacity, expired by TTL.
type lruCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*list.Element
	order    *list.List
	nowFn    func() time.Time
}

type lruEntry struct {
	key       string
	record    Record
	expiresAt time.Time
}

func newLRU(capacity int, ttl time.Duration) *lruCache {
	if capacity < 1 {
		capacity = 1
	}
	return &lruCache{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*list.Element, capacity),
		order:    list.New(),
		nowFn:    time.Now,
	}
}

func (c *lruCache) get(key string) (Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return Record{}, false
	}

	e := elem.Value.(*lruEntry)
	if c.nowFn().After(e.expiresAt) {
		c.removeElement(elem)
		return Record{}, false
	}

	c.order.MoveToFront(elem)
	return e.record, true
}

func (c *lruCache) put(key string, rec Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		e := elem.Value.(*lruEntry)
		e.record = rec
		e.expiresAt = c.nowFn().Add(c.ttl)
		return
	}

	if c.order.Len() >= c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.removeElement(oldest)
		}
	}

	elem := c.order.PushFront(&lruEntry{
		key:       key,
		record:    rec,
		expiresAt: c.nowFn().Add(c.ttl),
	})
	c.items[key] = elem
}

func (c *lruCache) flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element, c.capacity)
	c.order.Init()
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *lruCache) removeElement(elem *list.Element) {
	c.order.Remove(elem)
	e := elem.Value.(*lruEntry)
	delete(c.items, e.key)
}
