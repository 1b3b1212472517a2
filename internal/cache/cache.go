// Package cache keeps recently scored batches in memory so that a policy
// change or a repeated upload never re-runs the engines.
package cache

import (
	"container/list"
	"sync"

	"github.com/logaware/backend/internal/models"
)

// DefaultCapacity is used when a non-positive capacity is requested.
const DefaultCapacity = 16

// BatchCache is a bounded LRU of scored batches keyed by content fingerprint.
// It is safe for concurrent use.
type BatchCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	items    map[string]*list.Element
}

// New creates a cache holding at most capacity batches.
func New(capacity int) *BatchCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &BatchCache{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[string]*list.Element),
	}
}

// Get returns the batch stored under id and marks it recently used.
func (c *BatchCache) Get(id string) (*models.Batch, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[id]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*models.Batch), true
}

// Put stores batch under its ID, evicting the least recently used entry when
// full. It returns the ID of the evicted batch, if any.
func (c *BatchCache) Put(batch *models.Batch) (evicted string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[batch.ID]; ok {
		el.Value = batch
		c.order.MoveToFront(el)
		return ""
	}
	c.items[batch.ID] = c.order.PushFront(batch)
	if c.order.Len() <= c.capacity {
		return ""
	}
	oldest := c.order.Back()
	c.order.Remove(oldest)
	evicted = oldest.Value.(*models.Batch).ID
	delete(c.items, evicted)
	return evicted
}

// Remove drops id from the cache. It reports whether it was present.
func (c *BatchCache) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[id]
	if !ok {
		return false
	}
	c.order.Remove(el)
	delete(c.items, id)
	return true
}

// List returns the cached batches, most recently used first.
func (c *BatchCache) List() []*models.Batch {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*models.Batch, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*models.Batch))
	}
	return out
}

// Len returns the number of cached batches.
func (c *BatchCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
