// Package price maintains the market data plane: historical candle
// bootstrap, the streaming kline feed and an in-memory candle cache.
package price

import (
	"sync"

	"MarginTradeBot/internal/models"
)

// Cache keeps the most recent candles per symbol, capped to a fixed
// window so long-running sessions stay bounded.
type Cache struct {
	mu      sync.RWMutex
	cap     int
	candles map[string][]models.Candle
}

func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 500
	}
	return &Cache{cap: capacity, candles: make(map[string][]models.Candle)}
}

// Append adds a candle and drops the oldest once the cap is reached.
func (c *Cache) Append(candle models.Candle) {
	symbol := models.NormalizeSymbol(candle.Symbol)
	c.mu.Lock()
	defer c.mu.Unlock()
	window := append(c.candles[symbol], candle)
	if len(window) > c.cap {
		window = window[len(window)-c.cap:]
	}
	c.candles[symbol] = window
}

// Recent returns up to n most recent candles for symbol, oldest first.
func (c *Cache) Recent(symbol string, n int) []models.Candle {
	symbol = models.NormalizeSymbol(symbol)
	c.mu.RLock()
	defer c.mu.RUnlock()
	window := c.candles[symbol]
	if n <= 0 || n > len(window) {
		n = len(window)
	}
	out := make([]models.Candle, n)
	copy(out, window[len(window)-n:])
	return out
}

// Len reports the cached candle count for symbol.
func (c *Cache) Len(symbol string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.candles[models.NormalizeSymbol(symbol)])
}
