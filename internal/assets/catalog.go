package assets

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Catalog отдаёт ассеты по идентификатору
type Catalog interface {
	Asset(id string) (*ChunkAsset, bool)
	All() []*ChunkAsset
}

// MemoryCatalog хранит ассеты в памяти
type MemoryCatalog struct {
	mu     sync.RWMutex
	assets map[string]*ChunkAsset
}

// NewMemoryCatalog создаёт каталог из набора ассетов
func NewMemoryCatalog(list ...*ChunkAsset) (*MemoryCatalog, error) {
	c := &MemoryCatalog{assets: make(map[string]*ChunkAsset, len(list))}
	for _, a := range list {
		if err := c.Put(a); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Put добавляет или заменяет ассет
func (c *MemoryCatalog) Put(a *ChunkAsset) error {
	if a == nil {
		return fmt.Errorf("пустой ассет")
	}
	if err := a.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.assets[a.ID] = a
	c.mu.Unlock()
	return nil
}

// Asset возвращает ассет по идентификатору
func (c *MemoryCatalog) Asset(id string) (*ChunkAsset, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.assets[id]
	return a, ok
}

// All возвращает ассеты, отсортированные по id
func (c *MemoryCatalog) All() []*ChunkAsset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*ChunkAsset, 0, len(c.assets))
	for _, a := range c.assets {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len возвращает число ассетов
func (c *MemoryCatalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.assets)
}

type catalogFile struct {
	Assets []*ChunkAsset `yaml:"assets"`
}

// ParseCatalog разбирает YAML-описание каталога
func ParseCatalog(data []byte) (*MemoryCatalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("ошибка разбора каталога: %w", err)
	}
	return NewMemoryCatalog(file.Assets...)
}

// LoadCatalog читает каталог ассетов из YAML-файла
func LoadCatalog(path string) (*MemoryCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения каталога %s: %w", path, err)
	}
	return ParseCatalog(data)
}
