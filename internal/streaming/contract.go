package streaming

import (
	"fmt"

	"github.com/annel0/chunkstream/internal/vec"
	"github.com/annel0/chunkstream/internal/zone"
)

// Viewport отвечает на вопросы о камере
type Viewport interface {
	WorldToGrid(pos vec.Vec2Float) vec.Vec2
	VisibleGridExtent() vec.Vec2
}

// FixedViewport - камера с постоянным видимым размером
type FixedViewport struct {
	CellSize float64  // мировых единиц на клетку; 0 означает 1
	Extent   vec.Vec2 // видимая область в клетках
}

// WorldToGrid переводит мировую позицию в клетку сетки
func (v FixedViewport) WorldToGrid(pos vec.Vec2Float) vec.Vec2 {
	if v.CellSize > 0 && v.CellSize != 1 {
		pos = pos.Mul(1 / v.CellSize)
	}
	return pos.ToVec2()
}

// VisibleGridExtent возвращает видимую область в клетках
func (v FixedViewport) VisibleGridExtent() vec.Vec2 {
	return v.Extent
}

// LayoutContext - то, что селектор знает о зоне, которую надо заполнить
type LayoutContext struct {
	Store    *zone.Store
	Super    vec.Vec2 // координаты зоны в супер-сетке
	Tick     uint64
	UserData any
}

// Selector решает, какой ассет поставить в локатор.
// nil означает "оставить пустым и спросить позже".
type Selector interface {
	Initialize(c *Controller, userData any) bool
	Select(loc zone.Locator, ctx LayoutContext, managedLayers []string) *zone.ChunkSpec
}

// AssetTracker - необязательная часть селектора для учёта зависимостей
type AssetTracker interface {
	UsedAssets() []string
}

// LoadDecision - вердикт фильтра загрузки
type LoadDecision int

const (
	FillZone LoadDecision = iota
	LeaveZoneEmpty
	MarkZoneFilledButLeaveEmpty
	FillZoneAndMarkImmortal
)

func (d LoadDecision) String() string {
	switch d {
	case FillZone:
		return "fill"
	case LeaveZoneEmpty:
		return "leave-empty"
	case MarkZoneFilledButLeaveEmpty:
		return "reserve"
	case FillZoneAndMarkImmortal:
		return "fill-immortal"
	default:
		return fmt.Sprintf("LoadDecision(%d)", int(d))
	}
}

// UnloadFilter возвращает true, если зону вне вьюпорта можно выгрузить
type UnloadFilter func(reg *zone.Registration, userData any, store *zone.Store) bool

// LoadFilter выносит вердикт по спецификации от селектора
type LoadFilter func(userData any, store *zone.Store, spec *zone.ChunkSpec) LoadDecision

// TickOptions - параметры одного тика. Нулевое значение допустимо.
type TickOptions struct {
	Padding      *vec.Vec2 // в чанках; nil - значение контроллера по умолчанию
	UnloadFilter UnloadFilter
	LoadFilter   LoadFilter
	UserData     any
}
