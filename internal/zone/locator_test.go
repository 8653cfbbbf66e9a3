package zone

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/chunkstream/internal/vec"
)

func TestAlign_Idempotent(t *testing.T) {
	origins := []vec.Vec2{{X: 0, Y: 0}, {X: 3, Y: -5}, {X: -7, Y: 11}}
	for _, origin := range origins {
		for x := -40; x <= 40; x += 3 {
			for y := -40; y <= 40; y += 7 {
				p := vec.Vec2{X: x, Y: y}
				a := Align(p, origin, 16)
				assert.Equal(t, a, Align(a, origin, 16), "повторное выравнивание %s при начале %s", p, origin)
				assert.True(t, IsAligned(a, origin, 16))
				assert.LessOrEqual(t, a.X, p.X)
				assert.Greater(t, a.X+16, p.X)
			}
		}
	}
}

func TestAlign_NegativeCoordinates(t *testing.T) {
	assert.Equal(t, vec.Vec2{X: -16, Y: -32}, Align(vec.Vec2{X: -1, Y: -17}, vec.Vec2{}, 16))
	assert.Equal(t, vec.Vec2{X: 4, Y: 4}, Align(vec.Vec2{X: 10, Y: 19}, vec.Vec2{X: 4, Y: 4}, 16))
	assert.False(t, IsAligned(vec.Vec2{X: 1, Y: 0}, vec.Vec2{}, 16))
}

func TestLocatorFor(t *testing.T) {
	loc := LocatorFor(vec.Vec2{X: 16, Y: 0}, vec.Vec2{}, 16, vec.Vec2{}, true)
	assert.Equal(t, Locator{Origin: vec.Vec2{X: 16, Y: 0}, Size: vec.Vec2{X: 16, Y: 16}}, loc)

	loc = LocatorFor(vec.Vec2{X: 21, Y: 5}, vec.Vec2{}, 16, vec.Vec2{}, true)
	assert.Equal(t, vec.Vec2{X: 16, Y: 0}, loc.Origin)

	loc = LocatorFor(vec.Vec2{X: 21, Y: 5}, vec.Vec2{}, 16, vec.Vec2{X: 32, Y: 48}, false)
	assert.Equal(t, Locator{Origin: vec.Vec2{X: 21, Y: 5}, Size: vec.Vec2{X: 32, Y: 48}}, loc)
}

func TestLocatorFor_PositionIsAbsoluteWithShiftedOrigin(t *testing.T) {
	origin := vec.Vec2{X: 5, Y: -3}

	aligned := LocatorFor(vec.Vec2{X: 30, Y: 20}, origin, 16, vec.Vec2{}, true)
	assert.Equal(t, vec.Vec2{X: 21, Y: 13}, aligned.Origin, "выравнивание идёт от origin")
	assert.True(t, IsAligned(aligned.Origin, origin, 16))

	raw := LocatorFor(vec.Vec2{X: 30, Y: 20}, origin, 16, vec.Vec2{}, false)
	assert.Equal(t, vec.Vec2{X: 30, Y: 20}, raw.Origin, "без выравнивания origin не прибавляется")

	again := LocatorFor(aligned.Origin, origin, 16, vec.Vec2{}, false)
	assert.Equal(t, aligned, again, "выровненная позиция даёт тот же локатор в обоих режимах")
}

func TestSuperGridConversion(t *testing.T) {
	origin := vec.Vec2{X: 8, Y: -8}
	for _, super := range []vec.Vec2{{X: 0, Y: 0}, {X: -3, Y: 2}, {X: 5, Y: -1}} {
		grid := SuperToGrid(super, origin, 16)
		assert.True(t, IsAligned(grid, origin, 16))
		assert.Equal(t, super, GridToSuper(grid, origin, 16))
	}
}

func TestSubdivide_RoundsOutward(t *testing.T) {
	loc := Locator{Origin: vec.Vec2{X: 5, Y: 5}, Size: vec.Vec2{X: 20, Y: 12}}
	cells := Subdivide(loc, vec.Vec2{}, 16)

	require.Len(t, cells, 4, "5..25 по X и 5..17 по Y дают 2x2 чанка")
	assert.Equal(t, vec.Vec2{X: 0, Y: 0}, cells[0].Origin)
	assert.Equal(t, vec.Vec2{X: 16, Y: 0}, cells[1].Origin)
	assert.Equal(t, vec.Vec2{X: 0, Y: 16}, cells[2].Origin)
	assert.Equal(t, vec.Vec2{X: 16, Y: 16}, cells[3].Origin)

	for i, a := range cells {
		assert.Equal(t, vec.Vec2{X: 16, Y: 16}, a.Size)
		for j, b := range cells {
			if i != j {
				assert.False(t, a.Overlaps(b), "чанки %s и %s не должны пересекаться", a, b)
			}
		}
	}

	assert.Empty(t, Subdivide(Locator{Size: vec.Vec2{X: 0, Y: 16}}, vec.Vec2{}, 16))
}

func TestLocator_TouchingEdgesDoNotOverlap(t *testing.T) {
	a := Locator{Origin: vec.Vec2{X: 0, Y: 0}, Size: vec.Vec2{X: 16, Y: 16}}
	b := Locator{Origin: vec.Vec2{X: 16, Y: 0}, Size: vec.Vec2{X: 16, Y: 16}}
	big := Locator{Origin: vec.Vec2{X: 0, Y: 0}, Size: vec.Vec2{X: 64, Y: 64}}

	assert.False(t, a.Overlaps(b))
	assert.True(t, big.Overlaps(b))
	assert.True(t, big.Contains(b))
	assert.False(t, b.Contains(big))
}

func TestRotation(t *testing.T) {
	size := vec.Vec2{X: 3, Y: 2}
	for _, r := range []Rotation{Rotate0, Rotate90, Rotate180, Rotate270} {
		rotated := r.RotatedSize(size)
		bounds := vec.NewRect(vec.Vec2{}, rotated)
		seen := make(map[vec.Vec2]bool)
		vec.NewRect(vec.Vec2{}, size).ForEach(func(p vec.Vec2) {
			q := r.Apply(p, size)
			assert.True(t, bounds.ContainsPoint(q), "поворот %s вывел %s за пределы", r, q)
			assert.False(t, seen[q], "поворот %s должен быть биекцией", r)
			seen[q] = true
		})
	}

	assert.Equal(t, vec.Vec2{X: 1, Y: 0}, Rotate90.Apply(vec.Vec2{X: 0, Y: 0}, size))
	assert.Equal(t, vec.Vec2{X: 2, Y: 1}, Rotate180.Apply(vec.Vec2{X: 0, Y: 0}, size))

	r, err := ParseRotation(-90)
	require.NoError(t, err)
	assert.Equal(t, Rotate270, r)
	_, err = ParseRotation(45)
	assert.Error(t, err)
}
