package vec

import "fmt"

// Vec2 представляет 2D координаты в клетках сетки
type Vec2 struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

// Add складывает два вектора
func (v Vec2) Add(other Vec2) Vec2 {
	return Vec2{X: v.X + other.X, Y: v.Y + other.Y}
}

// Sub вычитает вектор
func (v Vec2) Sub(other Vec2) Vec2 {
	return Vec2{X: v.X - other.X, Y: v.Y - other.Y}
}

// Mul умножает вектор на скаляр
func (v Vec2) Mul(scalar int) Vec2 {
	return Vec2{X: v.X * scalar, Y: v.Y * scalar}
}

// FloorDiv делит покоординатно с округлением вниз (корректно для отрицательных)
func (v Vec2) FloorDiv(d int) Vec2 {
	return Vec2{X: FloorDiv(v.X, d), Y: FloorDiv(v.Y, d)}
}

// IsZero возвращает true для нулевого вектора
func (v Vec2) IsZero() bool {
	return v.X == 0 && v.Y == 0
}

func (v Vec2) String() string {
	return fmt.Sprintf("(%d,%d)", v.X, v.Y)
}

// FloorDiv делит a на b с округлением к минус бесконечности. b <= 0 даёт 0.
func FloorDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	q := a / b
	if a%b != 0 && a < 0 {
		q--
	}
	return q
}

// CeilDiv делит a на b с округлением к плюс бесконечности. b <= 0 даёт 0.
func CeilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return -FloorDiv(-a, b)
}
