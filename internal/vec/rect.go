package vec

import "fmt"

// Rect - выровненный по осям прямоугольник: Min включительно, Min+Size исключительно
type Rect struct {
	Min  Vec2 `json:"min"`
	Size Vec2 `json:"size"`
}

// NewRect создаёт прямоугольник по углу и размеру
func NewRect(min, size Vec2) Rect {
	return Rect{Min: min, Size: size}
}

// Max возвращает правый нижний угол (исключительно)
func (r Rect) Max() Vec2 {
	return r.Min.Add(r.Size)
}

// Area возвращает площадь; вырожденный прямоугольник имеет площадь 0
func (r Rect) Area() int {
	if r.Empty() {
		return 0
	}
	return r.Size.X * r.Size.Y
}

// Empty возвращает true, если у прямоугольника нет площади
func (r Rect) Empty() bool {
	return r.Size.X <= 0 || r.Size.Y <= 0
}

// Overlaps проверяет пересечение с ненулевой площадью.
// Касание краями пересечением не считается.
func (r Rect) Overlaps(other Rect) bool {
	if r.Empty() || other.Empty() {
		return false
	}
	rMax, oMax := r.Max(), other.Max()
	return r.Min.X < oMax.X && other.Min.X < rMax.X &&
		r.Min.Y < oMax.Y && other.Min.Y < rMax.Y
}

// ContainsPoint проверяет, лежит ли точка внутри
func (r Rect) ContainsPoint(p Vec2) bool {
	max := r.Max()
	return p.X >= r.Min.X && p.X < max.X && p.Y >= r.Min.Y && p.Y < max.Y
}

// ContainsRect проверяет, что other целиком внутри r
func (r Rect) ContainsRect(other Rect) bool {
	if other.Empty() {
		return false
	}
	rMax, oMax := r.Max(), other.Max()
	return other.Min.X >= r.Min.X && other.Min.Y >= r.Min.Y &&
		oMax.X <= rMax.X && oMax.Y <= rMax.Y
}

// Translate сдвигает прямоугольник
func (r Rect) Translate(offset Vec2) Rect {
	return Rect{Min: r.Min.Add(offset), Size: r.Size}
}

// ForEach обходит все клетки прямоугольника построчно
func (r Rect) ForEach(fn func(p Vec2)) {
	max := r.Max()
	for y := r.Min.Y; y < max.Y; y++ {
		for x := r.Min.X; x < max.X; x++ {
			fn(Vec2{X: x, Y: y})
		}
	}
}

func (r Rect) String() string {
	return fmt.Sprintf("[%s+%dx%d]", r.Min, r.Size.X, r.Size.Y)
}
