package histprice

import (
	"fmt"
	"sync"
	"time"

	"github.com/moonwatch/signalrun/internal/atomicio"
	"github.com/moonwatch/signalrun/internal/models"
)

// Cache is the disk-backed historical price cache. Keys are
// (symbol, window_start_day, window_days) for OHLC windows and
// (symbol, day) for point-in-time lookups.
type Cache struct {
	mu      sync.Mutex
	path    string
	entries map[string]models.HistoricalPriceData
}

// NewCache loads (or creates) the cache file. A corrupt file is treated as
// empty.
func NewCache(path string) (*Cache, error) {
	c := &Cache{
		path:    path,
		entries: make(map[string]models.HistoricalPriceData),
	}
	if _, err := atomicio.ReadJSON(path, &c.entries); err != nil {
		return nil, err
	}
	if c.entries == nil {
		c.entries = make(map[string]models.HistoricalPriceData)
	}
	return c, nil
}

// WindowKey is the cache key for a forward OHLC window.
func WindowKey(symbol string, windowStart time.Time, windowDays int) string {
	return fmt.Sprintf("%s|%s|%dd", symbol, windowStart.UTC().Format("2006-01-02"), windowDays)
}

// SpotKey is the cache key for a point-in-time lookup.
func SpotKey(symbol string, t time.Time) string {
	return fmt.Sprintf("%s|%s|spot", symbol, t.UTC().Format("2006-01-02"))
}

// Get returns a copy of the cached record with Cached=true.
func (c *Cache) Get(key string) (models.HistoricalPriceData, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return models.HistoricalPriceData{}, false
	}
	entry.Cached = true
	return entry, true
}

// Put stores the record and persists the whole cache atomically.
func (c *Cache) Put(key string, data models.HistoricalPriceData) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data.Cached = false
	c.entries[key] = data
	return atomicio.WriteJSONAtomic(c.path, c.entries)
}

// Len reports the number of cached records.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
