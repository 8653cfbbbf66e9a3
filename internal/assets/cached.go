package assets

import (
	"fmt"
	"sync/atomic"

	"github.com/dgraph-io/ristretto/v2"
)

// CachedCatalog кеширует обращения к медленному каталогу
type CachedCatalog struct {
	inner  Catalog
	cache  *ristretto.Cache[string, *ChunkAsset]
	hits   atomic.Uint64
	misses atomic.Uint64
}

// CacheStats - счётчики обращений к кешу
type CacheStats struct {
	Hits   uint64
	Misses uint64
}

// NewCachedCatalog оборачивает каталог кешем. Стоимость ассета - число его клеток.
func NewCachedCatalog(inner Catalog, maxTiles int64) (*CachedCatalog, error) {
	if maxTiles <= 0 {
		maxTiles = 1 << 20
	}
	counters := max(maxTiles/16*10, 1024)
	cache, err := ristretto.NewCache(&ristretto.Config[string, *ChunkAsset]{
		NumCounters: counters,
		MaxCost:     maxTiles,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка создания кеша ассетов: %w", err)
	}
	return &CachedCatalog{inner: inner, cache: cache}, nil
}

// Asset ищет ассет сначала в кеше, затем во внутреннем каталоге
func (c *CachedCatalog) Asset(id string) (*ChunkAsset, bool) {
	if a, ok := c.cache.Get(id); ok {
		c.hits.Add(1)
		return a, true
	}
	c.misses.Add(1)

	a, ok := c.inner.Asset(id)
	if !ok {
		return nil, false
	}
	c.cache.Set(id, a, tileCost(a))
	c.cache.Wait()
	return a, true
}

// All проходит мимо кеша
func (c *CachedCatalog) All() []*ChunkAsset {
	return c.inner.All()
}

// Invalidate убирает ассет из кеша
func (c *CachedCatalog) Invalidate(id string) {
	c.cache.Del(id)
}

// Stats возвращает счётчики попаданий
func (c *CachedCatalog) Stats() CacheStats {
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Close освобождает кеш
func (c *CachedCatalog) Close() {
	c.cache.Close()
}

func tileCost(a *ChunkAsset) int64 {
	size := a.Size()
	cost := int64(size.X * size.Y)
	if cost < 1 {
		cost = 1
	}
	return cost
}
