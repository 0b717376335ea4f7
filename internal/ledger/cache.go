package ledger

import (
	"sync"

	"zentum/internal/model"
)

// Cache is the in-memory copy of account records read by HTTP and websocket
// handlers. It is written only with state the store has confirmed: the result
// of a successful commit or a fresh read. Entries never move to an older
// version, and a failed commit drops the entry instead of patching it.
type Cache struct {
	mu    sync.RWMutex
	items map[string]model.Account
}

func NewCache() *Cache {
	return &Cache{items: make(map[string]model.Account)}
}

func (c *Cache) Get(id string) (model.Account, bool) {
	c.mu.RLock()
	acc, ok := c.items[id]
	c.mu.RUnlock()
	if !ok {
		return model.Account{}, false
	}
	return acc.Clone(), true
}

// Put stores acc unless a newer version is already cached.
func (c *Cache) Put(acc model.Account) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.items[acc.ID]; ok && cur.Version > acc.Version {
		return false
	}
	c.items[acc.ID] = acc.Clone()
	return true
}

func (c *Cache) Invalidate(id string) {
	c.mu.Lock()
	delete(c.items, id)
	c.mu.Unlock()
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
