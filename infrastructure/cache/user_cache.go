package cache

import (
	"strings"
	"sync"

	"railstock/models"
)

// UserCache caches users by device id.
type UserCache struct {
	mu    sync.RWMutex
	users map[string]models.User
}

func NewUserCache() *UserCache {
	return &UserCache{users: make(map[string]models.User)}
}

func (c *UserCache) Add(deviceID string, user models.User) {
	if c == nil || strings.TrimSpace(deviceID) == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	// A device belongs to one user; drop any other entry pointing at this user.
	for k, u := range c.users {
		if u.ID == user.ID && k != deviceID {
			delete(c.users, k)
		}
	}
	c.users[deviceID] = user
}

func (c *UserCache) Get(deviceID string) (models.User, bool) {
	if c == nil {
		return models.User{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.users[deviceID]
	return u, ok
}
