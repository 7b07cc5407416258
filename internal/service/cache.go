package service

import "sync"

// memoCache memoizes analytical results keyed by (planId, plan fingerprint,
// params). The fingerprint in the key makes stale entries unreachable after
// any mutation; Invalidate additionally drops a plan's entries eagerly so the
// cache does not accumulate dead generations. Advisory: a miss just
// recomputes.
type memoCache struct {
	mu      sync.RWMutex
	entries map[memoKey]any
}

type memoKey struct {
	planID      string
	fingerprint string
	params      string
}

func newMemoCache() *memoCache {
	return &memoCache{entries: make(map[memoKey]any)}
}

func (c *memoCache) get(key memoKey) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *memoCache) put(key memoKey, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = v
}

// invalidate drops every entry of one plan, across all fingerprints.
func (c *memoCache) invalidate(planID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.planID == planID {
			delete(c.entries, k)
		}
	}
}
