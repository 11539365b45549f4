package cache

import (
	"strings"
	"sync"

	"railstock/models"
)

// RailCache caches rails by code. Rails are reference data the ledger never
// writes, so entries only go stale when the catalog is reseeded; call Reset then.
type RailCache struct {
	mu    sync.RWMutex
	rails map[string]models.Rail
}

func NewRailCache() *RailCache {
	return &RailCache{rails: make(map[string]models.Rail)}
}

func (c *RailCache) Add(rail models.Rail) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rails[normalizeCode(rail.Code)] = rail
}

func (c *RailCache) Get(code string) (models.Rail, bool) {
	if c == nil {
		return models.Rail{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.rails[normalizeCode(code)]
	return r, ok
}

func (c *RailCache) Reset() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rails = make(map[string]models.Rail)
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
