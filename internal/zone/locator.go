// Package zone хранит учёт того, какой чанк занимает какой участок сетки.
package zone

import (
	"fmt"

	"github.com/annel0/chunkstream/internal/vec"
)

// Locator - выровненный по чанкам прямоугольник в клетках сетки.
// Является единственным ключом регистраций.
type Locator struct {
	Origin vec.Vec2 `json:"origin"`
	Size   vec.Vec2 `json:"size"`
}

// Rect возвращает прямоугольник локатора
func (l Locator) Rect() vec.Rect {
	return vec.NewRect(l.Origin, l.Size)
}

// Overlaps проверяет пересечение с ненулевой площадью
func (l Locator) Overlaps(other Locator) bool {
	return l.Rect().Overlaps(other.Rect())
}

// Contains проверяет, что other целиком лежит внутри l
func (l Locator) Contains(other Locator) bool {
	return l.Rect().ContainsRect(other.Rect())
}

// Empty возвращает true для локатора без площади
func (l Locator) Empty() bool {
	return l.Rect().Empty()
}

func (l Locator) String() string {
	return fmt.Sprintf("%s %dx%d", l.Origin, l.Size.X, l.Size.Y)
}

// Align округляет позицию вниз до кратного chunkSize относительно origin,
// по каждой оси независимо.
func Align(pos, origin vec.Vec2, chunkSize int) vec.Vec2 {
	if chunkSize <= 0 {
		return pos
	}
	return pos.Sub(origin).FloorDiv(chunkSize).Mul(chunkSize).Add(origin)
}

// IsAligned возвращает true, если позиция уже выровнена
func IsAligned(pos, origin vec.Vec2, chunkSize int) bool {
	return Align(pos, origin, chunkSize) == pos
}

// LocatorFor строит локатор для позиции. pos задаётся в абсолютных клетках сетки:
// origin участвует только в выравнивании, без align позиция берётся как есть.
// Нулевые dims означают квадрат chunkSize.
func LocatorFor(pos, origin vec.Vec2, chunkSize int, dims vec.Vec2, align bool) Locator {
	if align {
		pos = Align(pos, origin, chunkSize)
	}
	if dims.IsZero() {
		dims = vec.Vec2{X: chunkSize, Y: chunkSize}
	}
	return Locator{Origin: pos, Size: dims}
}

// GridToSuper переводит клетку сетки в координаты супер-сетки (один чанк = одна единица)
func GridToSuper(grid, origin vec.Vec2, chunkSize int) vec.Vec2 {
	return grid.Sub(origin).FloorDiv(chunkSize)
}

// SuperToGrid переводит координаты супер-сетки в угол чанка на сетке
func SuperToGrid(super, origin vec.Vec2, chunkSize int) vec.Vec2 {
	return super.Mul(chunkSize).Add(origin)
}

// Subdivide режет локатор на чанки размера chunkSize без зазоров и перекрытий.
// Края округляются наружу до целых чанков. Порядок - построчный.
func Subdivide(loc Locator, origin vec.Vec2, chunkSize int) []Locator {
	if loc.Empty() || chunkSize <= 0 {
		return nil
	}

	start := Align(loc.Origin, origin, chunkSize)
	last := loc.Rect().Max().Sub(vec.Vec2{X: 1, Y: 1})
	end := Align(last, origin, chunkSize).Add(vec.Vec2{X: chunkSize, Y: chunkSize})

	cols := (end.X - start.X) / chunkSize
	rows := (end.Y - start.Y) / chunkSize
	out := make([]Locator, 0, cols*rows)

	size := vec.Vec2{X: chunkSize, Y: chunkSize}
	for y := start.Y; y < end.Y; y += chunkSize {
		for x := start.X; x < end.X; x += chunkSize {
			out = append(out, Locator{Origin: vec.Vec2{X: x, Y: y}, Size: size})
		}
	}
	return out
}
