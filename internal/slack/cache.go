package slack

import "sync"

// UserNameCache maps user IDs to display names for the life of the process.
// It never evicts. Concurrent first lookups of the same ID may both hit the API;
// they store the same name.
type UserNameCache struct {
	mu    sync.RWMutex
	names map[string]string
}

func NewUserNameCache() *UserNameCache {
	return &UserNameCache{names: make(map[string]string)}
}

func (c *UserNameCache) Get(userID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.names[userID]
	return name, ok
}

func (c *UserNameCache) Set(userID, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names[userID] = name
}

func (c *UserNameCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.names)
}
