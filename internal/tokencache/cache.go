// Package tokencache holds the cached token state of a cloud-role credentials
// provider: the token itself, sealed in memory, and the instant it stops being
// usable.
//
// A Cache is not synchronized. The owning provider guards it with its own
// read/write lock so that the validity check and the refresh happen under the
// same lock discipline.
package tokencache

import (
	"fmt"
	"time"

	"github.com/systmms/cerberus-go/internal/secure"
)

// DefaultPadding is subtracted from every lease so tokens are refreshed
// before the server considers them expired.
const DefaultPadding = 60 * time.Second

// Cache stores one token and its expiry. Tokens are never persisted to disk.
type Cache struct {
	sealed    *secure.Sealed
	expiresAt time.Time
	padding   time.Duration
	now       func() time.Time
}

// New creates an empty cache. A nil clock means time.Now.
func New(padding time.Duration, now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	if padding < 0 {
		padding = 0
	}
	return &Cache{padding: padding, now: now}
}

// Get returns the cached token if one is present and its expiry is strictly
// in the future.
func (c *Cache) Get() (string, bool) {
	if c.sealed == nil {
		return "", false
	}
	if !c.expiresAt.After(c.now()) {
		return "", false
	}
	token, err := c.sealed.Reveal()
	if err != nil {
		return "", false
	}
	return token, true
}

// Set stores token with an expiry of now + lease - padding. A lease shorter
// than the padding yields an already expired entry, which forces the next
// caller to authenticate again.
func (c *Cache) Set(token string, lease time.Duration) error {
	sealed, err := secure.Seal(token)
	if err != nil {
		return fmt.Errorf("failed to cache token: %w", err)
	}
	if c.sealed != nil {
		c.sealed.Destroy()
	}
	c.sealed = sealed
	c.expiresAt = c.now().Add(lease - c.padding)
	return nil
}

// Clear removes the cached token
func (c *Cache) Clear() {
	if c.sealed != nil {
		c.sealed.Destroy()
	}
	c.sealed = nil
	c.expiresAt = time.Time{}
}

// Valid reports whether Get would succeed without revealing the token.
func (c *Cache) Valid() bool {
	return c.sealed != nil && c.expiresAt.After(c.now())
}

// ExpiresAt returns the expiration time of the current token.
// Returns zero time if no token is cached.
func (c *Cache) ExpiresAt() time.Time {
	return c.expiresAt
}

// TTL returns the remaining time until the token expires.
// Returns 0 if the token is expired or not set.
func (c *Cache) TTL() time.Duration {
	if c.sealed == nil {
		return 0
	}
	remaining := c.expiresAt.Sub(c.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}
