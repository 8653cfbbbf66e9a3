package tilemap

import (
	"errors"
	"fmt"
	"sync"

	"github.com/annel0/chunkstream/internal/logging"
	"github.com/annel0/chunkstream/internal/vec"
	"github.com/annel0/chunkstream/internal/zone"
)

// ErrUnknownLayer возвращается при обращении к слою, которого нет в мире
var ErrUnknownLayer = errors.New("неизвестный слой")

// Tile - клетка слоя, поставленная загрузкой чанка
type Tile struct {
	AssetID    string
	TileID     uint32
	InstanceID string
}

// World - слоистая карта клеток в памяти. Реализует zone.Unloader и zone.LayerSet.
type World struct {
	mu       sync.RWMutex
	order    []string
	layers   map[string]map[vec.Vec2]Tile
	entities map[string]zone.EntityRef
	logger   *logging.Logger
}

// NewWorld создаёт мир с заданными слоями
func NewWorld(layers ...string) *World {
	w := &World{
		layers:   make(map[string]map[vec.Vec2]Tile, len(layers)),
		entities: make(map[string]zone.EntityRef),
		logger:   logging.GetComponentLogger("tilemap"),
	}
	for _, name := range layers {
		if _, exists := w.layers[name]; exists {
			continue
		}
		w.order = append(w.order, name)
		w.layers[name] = make(map[vec.Vec2]Tile)
	}
	return w
}

// ManagedLayers возвращает слои в порядке объявления
func (w *World) ManagedLayers() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]string, len(w.order))
	copy(out, w.order)
	return out
}

// HasLayer проверяет наличие слоя
func (w *World) HasLayer(layer string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.layers[layer]
	return ok
}

// Get возвращает клетку слоя
func (w *World) Get(layer string, pos vec.Vec2) (Tile, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	tile, ok := w.layers[layer][pos]
	return tile, ok
}

// Set ставит клетку
func (w *World) Set(layer string, pos vec.Vec2, tile Tile) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	cells, ok := w.layers[layer]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownLayer, layer)
	}
	cells[pos] = tile
	return nil
}

// ClearRegion стирает клетки слоя внутри прямоугольника
func (w *World) ClearRegion(layer string, region vec.Rect) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	cells, ok := w.layers[layer]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownLayer, layer)
	}

	removed := 0
	if region.Area() < len(cells) {
		region.ForEach(func(p vec.Vec2) {
			if _, ok := cells[p]; ok {
				delete(cells, p)
				removed++
			}
		})
	} else {
		for p := range cells {
			if region.ContainsPoint(p) {
				delete(cells, p)
				removed++
			}
		}
	}

	w.logger.Trace("слой %s: очищено %d клеток в %s", layer, removed, region)
	return nil
}

// SpawnEntity добавляет сущность
func (w *World) SpawnEntity(ref zone.EntityRef) {
	w.mu.Lock()
	w.entities[ref.ID] = ref
	w.mu.Unlock()
}

// DestroyEntities удаляет сущности. Отсутствующие пропускаются.
func (w *World) DestroyEntities(refs []zone.EntityRef) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, ref := range refs {
		if _, ok := w.entities[ref.ID]; !ok {
			w.logger.Warn("сущность %s (%s) уже удалена", ref.ID, ref.Kind)
			continue
		}
		delete(w.entities, ref.ID)
	}
	return nil
}

// Entity возвращает сущность по идентификатору
func (w *World) Entity(id string) (zone.EntityRef, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	ref, ok := w.entities[id]
	return ref, ok
}

// TileCount возвращает число клеток слоя
func (w *World) TileCount(layer string) int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.layers[layer])
}

// EntityCount возвращает число сущностей
func (w *World) EntityCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.entities)
}

// Stats возвращает число клеток по слоям, для логов
func (w *World) Stats() map[string]int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make(map[string]int, len(w.layers))
	for name, cells := range w.layers {
		out[name] = len(cells)
	}
	return out
}
