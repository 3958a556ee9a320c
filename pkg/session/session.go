// Package session caches resolved user identities keyed by opaque chat
// ids, with bounded lifetimes and periodic sweeping.
package session

import (
	"errors"
	"time"
)

// ErrSessionNotFound is returned when a session is absent or expired.
var ErrSessionNotFound = errors.New("session not found")

// UserInfo is a resolved identity from the tenant's userinfo endpoint.
type UserInfo struct {
	Subject  string `json:"sub"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

// Session binds a chat conversation id to a resolved user identity for a
// bounded time. Sessions are exclusively owned by the cache; no other
// component mutates them directly.
type Session struct {
	ChatID       string    `json:"chatId"`
	User         UserInfo  `json:"userInfo"`
	Identifier   string    `json:"identifier"` // Owning tenant
	CreatedAt    time.Time `json:"createdAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
	LastAccessed time.Time `json:"lastAccessed"`
}

// Expired reports whether the session's expiry has passed.
func (s *Session) Expired() bool {
	return time.Now().After(s.ExpiresAt)
}

// Cache is the interface for session storage.
type Cache interface {
	// Put stores a session keyed by its chat id.
	Put(chatID string, session *Session) error

	// Get retrieves a live session. Returns ErrSessionNotFound when absent
	// or expired; an expired entry is removed as a side effect.
	Get(chatID string) (*Session, error)

	// Touch refreshes LastAccessed (never ExpiresAt) on reuse.
	Touch(chatID string) error

	// Delete removes a session.
	Delete(chatID string) error

	// Sweep removes all entries whose expiry has passed and returns the
	// count removed, for observability.
	Sweep() int

	// List returns all live sessions, optionally filtered by tenant
	// identifier (empty string matches all).
	List(identifier string) ([]*Session, error)

	// Close releases resources and stops background sweeping.
	Close() error
}
