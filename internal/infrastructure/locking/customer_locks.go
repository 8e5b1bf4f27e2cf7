// Package locking provides keyed advisory locks used to serialize
// journey assembly per customer.
package locking

import "sync"

// CustomerLocks hands out one mutex per customer ID. Lock entries are
// reference counted and removed once the last holder releases, so the
// map does not grow with the customer population.
type CustomerLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func NewCustomerLocks() *CustomerLocks {
	return &CustomerLocks{locks: make(map[string]*lockEntry)}
}

// Lock acquires the advisory lock for customerID and returns the
// release function. Callers must invoke release exactly once.
func (c *CustomerLocks) Lock(customerID string) (release func()) {
	c.mu.Lock()
	entry, ok := c.locks[customerID]
	if !ok {
		entry = &lockEntry{}
		c.locks[customerID] = entry
	}
	entry.refs++
	c.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()
		c.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(c.locks, customerID)
		}
		c.mu.Unlock()
	}
}
