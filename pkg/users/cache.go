// Package users holds the process-lifetime user profile cache. Entries are
// never evicted during a run; concurrent misses for the same id coalesce
// into a single remote fetch.
package users

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/zeebeeCoder/slack-intel/pkg/models"
)

// FetchFunc loads one user profile from the remote API.
type FetchFunc func(ctx context.Context, userID string) (*models.User, error)

// Cache is a concurrent user_id → profile map with single-flight misses.
// It is an injected collaborator, not a singleton: tests supply their own.
type Cache struct {
	fetch FetchFunc

	mu    sync.RWMutex
	users map[string]*models.User
	group singleflight.Group
}

// New creates an empty cache that fills misses through fetch.
func New(fetch FetchFunc) *Cache {
	return &Cache{
		fetch: fetch,
		users: make(map[string]*models.User),
	}
}

// Lookup returns the cached profile without fetching. The second result is
// false when the id is unknown.
func (c *Cache) Lookup(userID string) (*models.User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.users[userID]
	return u, ok
}

// Get returns the profile for userID, fetching it on first use. Concurrent
// callers for the same unknown id share one underlying fetch; all receive
// the same result or the same error. Errors are not cached.
func (c *Cache) Get(ctx context.Context, userID string) (*models.User, error) {
	if u, ok := c.Lookup(userID); ok {
		return u, nil
	}

	v, err, _ := c.group.Do(userID, func() (interface{}, error) {
		if u, ok := c.Lookup(userID); ok {
			return u, nil
		}
		u, err := c.fetch(ctx, userID)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.users[userID] = u
		c.mu.Unlock()
		return u, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.User), nil
}

// Put inserts or replaces a profile.
func (c *Cache) Put(u *models.User) {
	if u == nil || u.ID == "" {
		return
	}
	c.mu.Lock()
	c.users[u.ID] = u
	c.mu.Unlock()
}

// Len returns the number of cached profiles.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.users)
}

// Snapshot returns a copy of the cache contents so external readers never
// touch the internal map or its lock.
func (c *Cache) Snapshot() map[string]models.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]models.User, len(c.users))
	for id, u := range c.users {
		out[id] = *u
	}
	return out
}
