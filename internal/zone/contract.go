package zone

import "github.com/annel0/chunkstream/internal/vec"

// ContentFilter решает, переносить ли клетку ассета на слой при загрузке
type ContentFilter func(layer string, local vec.Vec2) bool

// ChunkSpec - запрос на размещение ассета в локаторе
type ChunkSpec struct {
	Locator   Locator
	AssetID   string
	AssetName string
	Offset    vec.Vec2
	Rotation  Rotation

	Invalid  bool // селектор не смог подобрать корректный ассет
	Reserved bool
	Immortal bool

	LayerMap map[string]string // слой ассета -> слой мира; nil означает совпадение имён
	Filter   ContentFilter
}

// LoadResult - результат загрузки одного ChunkSpec
type LoadResult struct {
	Spec         ChunkSpec
	Registration *Registration
	Err          error
}

// OK возвращает true, если загрузка удалась
func (r LoadResult) OK() bool {
	return r.Err == nil && r.Registration != nil
}

// Loader материализует чанки. Возвращает по одному результату на спецификацию в том же порядке.
type Loader interface {
	Load(specs []ChunkSpec) []LoadResult
}

// Unloader очищает содержимое выгружаемых зон
type Unloader interface {
	ClearRegion(layer string, region vec.Rect) error
	DestroyEntities(entities []EntityRef) error
}

// LayerSet перечисляет слои, которыми управляет движок
type LayerSet interface {
	ManagedLayers() []string
}
