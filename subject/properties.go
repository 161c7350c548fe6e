// File: subject/properties.go
// Author: momentics <momentics@gmail.com>
//
// Thread-safe, propagation-aware property bag attached to graph nodes.

package subject

import "sync"

type entry struct {
	val        any
	propagated bool
}

// Properties is a string keyed bag of values. Propagated entries are copied
// to nodes derived from the owner (accepted sockets, data channels).
type Properties struct {
	mu    sync.RWMutex
	store map[string]entry
}

// Set stores a key-value pair with optional propagation flag.
func (c *Properties) Set(key string, value any, propagated bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		c.store = make(map[string]entry)
	}
	c.store[key] = entry{val: value, propagated: propagated}
}

// Get retrieves a value and its existence.
func (c *Properties) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.store[key]
	return e.val, ok
}

// Delete removes a key.
func (c *Properties) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
}

// Keys returns all keys.
func (c *Properties) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.store))
	for k := range c.store {
		keys = append(keys, k)
	}
	return keys
}

// IsPropagated reports propagation flag.
func (c *Properties) IsPropagated(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.store[key]
	return ok && e.propagated
}

// Inherit copies the propagated entries into dst.
func (c *Properties) Inherit(dst *Properties) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for k, e := range c.store {
		if e.propagated {
			dst.Set(k, e.val, true)
		}
	}
}
