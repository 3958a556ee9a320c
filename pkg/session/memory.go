package session

import (
	"sync"
	"time"
)

// MemoryCache is an in-memory session cache. A background goroutine sweeps
// expired sessions on a fixed interval for the lifetime of the process;
// Get also removes expired entries lazily.
type MemoryCache struct {
	sessions      map[string]*Session
	mu            sync.RWMutex
	sweepInterval time.Duration
	stopSweep     chan struct{}
	sweepDone     chan struct{}
	closeOnce     sync.Once
}

// NewMemoryCache creates a new in-memory session cache. A sweepInterval of
// zero defaults to five minutes.
func NewMemoryCache(sweepInterval time.Duration) *MemoryCache {
	if sweepInterval == 0 {
		sweepInterval = 5 * time.Minute
	}

	c := &MemoryCache{
		sessions:      make(map[string]*Session),
		sweepInterval: sweepInterval,
		stopSweep:     make(chan struct{}),
		sweepDone:     make(chan struct{}),
	}

	go c.sweepLoop()

	return c
}

// Put stores a session keyed by its chat id.
func (c *MemoryCache) Put(chatID string, session *Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sessions[chatID] = session
	return nil
}

// Get retrieves a live session, removing it when found expired.
func (c *MemoryCache) Get(chatID string) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	session, exists := c.sessions[chatID]
	if !exists {
		return nil, ErrSessionNotFound
	}

	if session.Expired() {
		delete(c.sessions, chatID)
		return nil, ErrSessionNotFound
	}

	return session, nil
}

// Touch refreshes LastAccessed on reuse. ExpiresAt is never extended.
func (c *MemoryCache) Touch(chatID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	session, exists := c.sessions[chatID]
	if !exists || session.Expired() {
		return ErrSessionNotFound
	}

	session.LastAccessed = time.Now()
	return nil
}

// Delete removes a session.
func (c *MemoryCache) Delete(chatID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.sessions, chatID)
	return nil
}

// Sweep removes all expired sessions and returns the count removed.
func (c *MemoryCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for chatID, session := range c.sessions {
		if now.After(session.ExpiresAt) {
			delete(c.sessions, chatID)
			removed++
		}
	}
	return removed
}

// List returns all live sessions, optionally filtered by tenant.
func (c *MemoryCache) List(identifier string) ([]*Session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var sessions []*Session
	for _, session := range c.sessions {
		if session.Expired() {
			continue
		}
		if identifier != "" && session.Identifier != identifier {
			continue
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

// Count returns the number of stored sessions, expired included.
func (c *MemoryCache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}

func (c *MemoryCache) sweepLoop() {
	defer close(c.sweepDone)

	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.stopSweep:
			return
		}
	}
}

// Close stops the sweep goroutine.
func (c *MemoryCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopSweep)
		<-c.sweepDone
	})
	return nil
}
