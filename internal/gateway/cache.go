package gateway

import (
	"sync"

	"spyoptions/internal/contracts"
)

// quoteCache holds the most recent quote per contract, updated by the
// gateway's read loop and read by the subscription manager when
// materializing a reconcile snapshot.
type quoteCache struct {
	mu     sync.RWMutex
	quotes map[contracts.ContractKey]contracts.Quote
}

func newQuoteCache() *quoteCache {
	return &quoteCache{quotes: make(map[contracts.ContractKey]contracts.Quote)}
}

func (c *quoteCache) set(key contracts.ContractKey, q contracts.Quote) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes[key] = q
}

func (c *quoteCache) get(key contracts.ContractKey) (contracts.Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.quotes[key]
	return q, ok
}

func (c *quoteCache) delete(key contracts.ContractKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.quotes, key)
}
