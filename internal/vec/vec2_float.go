package vec

import "math"

// Vec2Float - позиция камеры в мировых единицах
type Vec2Float struct {
	X, Y float64
}

// ToVec2 возвращает клетку, в которую попадает точка (округление вниз)
func (v Vec2Float) ToVec2() Vec2 {
	return Vec2{X: int(math.Floor(v.X)), Y: int(math.Floor(v.Y))}
}

// Mul масштабирует позицию, например при переводе в клетки сетки
func (v Vec2Float) Mul(scalar float64) Vec2Float {
	return Vec2Float{X: v.X * scalar, Y: v.Y * scalar}
}
