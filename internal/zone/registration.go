package zone

import (
	"fmt"

	"github.com/annel0/chunkstream/internal/vec"
)

// Rotation - поворот ассета при загрузке, в градусах по часовой стрелке
type Rotation int

const (
	Rotate0   Rotation = 0
	Rotate90  Rotation = 90
	Rotate180 Rotation = 180
	Rotate270 Rotation = 270
)

// ParseRotation принимает только 0, 90, 180 и 270 (и их эквиваленты по модулю 360)
func ParseRotation(degrees int) (Rotation, error) {
	d := ((degrees % 360) + 360) % 360
	r := Rotation(d)
	if !r.Valid() {
		return Rotate0, fmt.Errorf("недопустимый поворот %d", degrees)
	}
	return r, nil
}

// Valid проверяет, что поворот кратен 90 градусам
func (r Rotation) Valid() bool {
	switch r {
	case Rotate0, Rotate90, Rotate180, Rotate270:
		return true
	}
	return false
}

func (r Rotation) String() string {
	return fmt.Sprintf("%d°", int(r))
}

// RotatedSize возвращает размер содержимого после поворота
func (r Rotation) RotatedSize(size vec.Vec2) vec.Vec2 {
	if r == Rotate90 || r == Rotate270 {
		return vec.Vec2{X: size.Y, Y: size.X}
	}
	return size
}

// Apply поворачивает локальную клетку внутри содержимого размера size.
// Результат лежит внутри RotatedSize(size).
func (r Rotation) Apply(local, size vec.Vec2) vec.Vec2 {
	switch r {
	case Rotate90:
		return vec.Vec2{X: size.Y - 1 - local.Y, Y: local.X}
	case Rotate180:
		return vec.Vec2{X: size.X - 1 - local.X, Y: size.Y - 1 - local.Y}
	case Rotate270:
		return vec.Vec2{X: local.Y, Y: size.X - 1 - local.X}
	default:
		return local
	}
}

// EntityRef - вспомогательный объект, созданный при загрузке чанка
type EntityRef struct {
	ID   string   `json:"id"`
	Kind string   `json:"kind"`
	Pos  vec.Vec2 `json:"pos"`
}

// Registration описывает один размещённый чанк-ассет
type Registration struct {
	Index           uint64 // порядковый номер вставки, назначает Store
	Locator         Locator
	SourceAssetID   string
	SourceAssetName string
	PlacementOffset vec.Vec2
	Rotation        Rotation

	// слой -> локальная клетка -> идентификатор экземпляра
	PositionToIDMaps map[string]map[vec.Vec2]string

	BundleAssetIDs   []string
	BundleAssetNames []string
	Bounds           vec.Rect // в локальных координатах содержимого
	SpawnedEntities  []EntityRef

	Immortal bool
	Reserved bool
}

// NewReserved создаёт запись, которая занимает локатор без содержимого
func NewReserved(loc Locator, assetID, assetName string, offset vec.Vec2) *Registration {
	return &Registration{
		Locator:         loc,
		SourceAssetID:   assetID,
		SourceAssetName: assetName,
		PlacementOffset: offset,
		Reserved:        true,
	}
}

// EraseRegion возвращает область сетки, которую надо очистить при выгрузке
func (r *Registration) EraseRegion() vec.Rect {
	return r.Bounds.Translate(r.PlacementOffset)
}

// InstanceCount возвращает число выданных идентификаторов экземпляров
func (r *Registration) InstanceCount() int {
	n := 0
	for _, ids := range r.PositionToIDMaps {
		n += len(ids)
	}
	return n
}

func (r *Registration) String() string {
	flags := ""
	if r.Reserved {
		flags += " reserved"
	}
	if r.Immortal {
		flags += " immortal"
	}
	return fmt.Sprintf("#%d %s [%s]%s", r.Index, r.Locator, r.SourceAssetID, flags)
}
