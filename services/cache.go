package services

import (
	"sync"
	"time"

	"ticket-checkin/models"
)

// EventLists is one event's cached dashboard data: the most recently
// applied order and class pages.
type EventLists struct {
	Orders   *models.OrderPage
	Classes  *models.ClassPage
	PulledAt time.Time
}

// ListCache is the explicit cache object owned by the sync scheduler. It
// replaces ambient module-level list caches: invalidation on logout or
// event change goes through Invalidate/Reset, and connectivity state lives
// next to the data it qualifies. A failed pull never clears cached lists;
// it only flips the connectivity flag.
type ListCache struct {
	mu        sync.RWMutex
	lists     map[string]*EventLists
	hashes    map[string]uint64
	connected bool
	lastSync  time.Time
}

func NewListCache() *ListCache {
	return &ListCache{
		lists:     make(map[string]*EventLists),
		hashes:    make(map[string]uint64),
		connected: true,
	}
}

// Get returns the cached lists for an event, or nil when nothing has been
// pulled yet.
func (c *ListCache) Get(eventID string) *EventLists {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lists[eventID]
}

// FindOrder scans the cached pages for an order. Used for cheap local
// pre-checks; the authority remains the arbiter.
func (c *ListCache) FindOrder(orderID string) (*models.TicketOrder, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, lists := range c.lists {
		if lists.Orders == nil {
			continue
		}
		for i := range lists.Orders.Items {
			if lists.Orders.Items[i].ID == orderID {
				order := lists.Orders.Items[i]
				return &order, true
			}
		}
	}
	return nil, false
}

// apply stores a freshly pulled snapshot only if it differs structurally
// from what is cached (full-value hash, not timestamps). Reports whether
// anything changed. Every successful pull restores connectivity.
func (c *ListCache) apply(eventID string, lists *EventLists, hash uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.connected = true
	c.lastSync = time.Now()

	if prev, ok := c.hashes[eventID]; ok && prev == hash {
		return false
	}
	c.lists[eventID] = lists
	c.hashes[eventID] = hash
	return true
}

func (c *ListCache) markDisconnected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

// Connected reports whether the last pull reached the authority.
func (c *ListCache) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// LastSync reports when a pull last succeeded.
func (c *ListCache) LastSync() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSync
}

// Invalidate drops one event's cached lists so the next pull re-applies.
func (c *ListCache) Invalidate(eventID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.lists, eventID)
	delete(c.hashes, eventID)
}

// Reset clears everything; called on operator logout or event change.
func (c *ListCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lists = make(map[string]*EventLists)
	c.hashes = make(map[string]uint64)
}
