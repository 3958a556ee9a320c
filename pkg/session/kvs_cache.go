package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/widgetgate/widgetgate/pkg/kvs"
)

// KVSCache implements session storage over any kvs.Store (Memory, LevelDB,
// Redis). Expiry rides on the store's native TTL, so Sweep mostly counts
// what the backend already dropped.
type KVSCache struct {
	kvs kvs.Store
}

// NewKVSCache creates a new KVS-backed session cache.
func NewKVSCache(store kvs.Store) *KVSCache {
	return &KVSCache{kvs: store}
}

// Put stores a session with a TTL running to its expiry.
func (c *KVSCache) Put(chatID string, session *Session) error {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return errors.New("session: session already expired")
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("session: failed to marshal: %w", err)
	}

	if err := c.kvs.Set(context.Background(), chatID, data, ttl); err != nil {
		return fmt.Errorf("session: failed to set in KVS: %w", err)
	}

	return nil
}

// Get retrieves a live session, removing it when found expired.
func (c *KVSCache) Get(chatID string) (*Session, error) {
	data, err := c.kvs.Get(context.Background(), chatID)
	if err != nil {
		if errors.Is(err, kvs.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("session: failed to get from KVS: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("session: failed to unmarshal: %w", err)
	}

	if session.Expired() {
		_ = c.Delete(chatID)
		return nil, ErrSessionNotFound
	}

	return &session, nil
}

// Touch refreshes LastAccessed on reuse. The stored TTL still runs to the
// original expiry.
func (c *KVSCache) Touch(chatID string) error {
	session, err := c.Get(chatID)
	if err != nil {
		return err
	}

	session.LastAccessed = time.Now()
	return c.Put(chatID, session)
}

// Delete removes a session.
func (c *KVSCache) Delete(chatID string) error {
	if err := c.kvs.Delete(context.Background(), chatID); err != nil {
		return fmt.Errorf("session: failed to delete from KVS: %w", err)
	}
	return nil
}

// Sweep walks all keys and removes entries whose expiry has passed.
// Backends with native TTL usually expire entries themselves, so the
// returned count only covers stragglers.
func (c *KVSCache) Sweep() int {
	ctx := context.Background()

	keys, err := c.kvs.List(ctx, "")
	if err != nil {
		return 0
	}

	removed := 0
	for _, key := range keys {
		data, err := c.kvs.Get(ctx, key)
		if err != nil {
			continue
		}
		var session Session
		if err := json.Unmarshal(data, &session); err != nil {
			continue
		}
		if session.Expired() {
			if c.kvs.Delete(ctx, key) == nil {
				removed++
			}
		}
	}
	return removed
}

// List returns all live sessions, optionally filtered by tenant.
func (c *KVSCache) List(identifier string) ([]*Session, error) {
	ctx := context.Background()

	keys, err := c.kvs.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("session: failed to list keys: %w", err)
	}

	sessions := make([]*Session, 0, len(keys))
	for _, key := range keys {
		session, err := c.Get(key)
		if err != nil {
			// Skip expired or unreadable sessions
			continue
		}
		if identifier != "" && session.Identifier != identifier {
			continue
		}
		sessions = append(sessions, session)
	}

	return sessions, nil
}

// Close closes the underlying KVS store.
func (c *KVSCache) Close() error {
	return c.kvs.Close()
}
