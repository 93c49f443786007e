package app

import "sync"

// CycleLocks serializes the two operations that must not interleave for a
// given cycle: the duplicate-contribution check and the
// fully-funded -> paid transition. One mutex per cycle id, never a global
// lock, so contributions to different cycles proceed independently. The
// contribution service and the lifecycle sweep share one instance.
type CycleLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewCycleLocks() *CycleLocks {
	return &CycleLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for cycleID and returns its unlock func.
func (c *CycleLocks) Lock(cycleID string) func() {
	c.mu.Lock()
	l, ok := c.locks[cycleID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[cycleID] = l
	}
	c.mu.Unlock()

	l.Lock()
	return l.Unlock
}
