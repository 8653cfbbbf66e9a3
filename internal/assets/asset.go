package assets

import (
	"errors"
	"fmt"

	"github.com/annel0/chunkstream/internal/vec"
)

// EmptyTile - пустая клетка, при загрузке не переносится
const EmptyTile uint32 = 0

// BundleRef - вложенный ассет, который чанк тянет за собой
type BundleRef struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// EntitySpawn описывает объект, создаваемый вместе с чанком
type EntitySpawn struct {
	Kind string   `yaml:"kind" json:"kind"`
	Pos  vec.Vec2 `yaml:"pos" json:"pos"`
}

// ChunkAsset - заготовка содержимого чанка. Слои хранятся строками: Layers[layer][y][x].
type ChunkAsset struct {
	ID       string                `yaml:"id" json:"id"`
	Name     string                `yaml:"name" json:"name"`
	Weight   float64               `yaml:"weight" json:"weight"`
	Layers   map[string][][]uint32 `yaml:"layers" json:"layers"`
	Bundle   []BundleRef           `yaml:"bundle,omitempty" json:"bundle,omitempty"`
	Entities []EntitySpawn         `yaml:"entities,omitempty" json:"entities,omitempty"`
}

// Size возвращает габарит ассета по всем слоям
func (a *ChunkAsset) Size() vec.Vec2 {
	var size vec.Vec2
	for _, rows := range a.Layers {
		if len(rows) > size.Y {
			size.Y = len(rows)
		}
		for _, row := range rows {
			if len(row) > size.X {
				size.X = len(row)
			}
		}
	}
	for _, e := range a.Entities {
		if e.Pos.X+1 > size.X {
			size.X = e.Pos.X + 1
		}
		if e.Pos.Y+1 > size.Y {
			size.Y = e.Pos.Y + 1
		}
	}
	return size
}

// Bounds возвращает минимальный прямоугольник с непустыми клетками и сущностями
func (a *ChunkAsset) Bounds() vec.Rect {
	minP := vec.Vec2{X: int(^uint(0) >> 1), Y: int(^uint(0) >> 1)}
	maxP := vec.Vec2{X: -1, Y: -1}
	include := func(p vec.Vec2) {
		minP.X, minP.Y = min(minP.X, p.X), min(minP.Y, p.Y)
		maxP.X, maxP.Y = max(maxP.X, p.X), max(maxP.Y, p.Y)
	}

	for _, rows := range a.Layers {
		for y, row := range rows {
			for x, tile := range row {
				if tile != EmptyTile {
					include(vec.Vec2{X: x, Y: y})
				}
			}
		}
	}
	for _, e := range a.Entities {
		include(e.Pos)
	}

	if maxP.X < 0 {
		return vec.Rect{}
	}
	return vec.NewRect(minP, maxP.Sub(minP).Add(vec.Vec2{X: 1, Y: 1}))
}

// BundleIDs возвращает идентификаторы и имена вложенных ассетов
func (a *ChunkAsset) BundleIDs() ([]string, []string) {
	if len(a.Bundle) == 0 {
		return nil, nil
	}
	ids := make([]string, len(a.Bundle))
	names := make([]string, len(a.Bundle))
	for i, b := range a.Bundle {
		ids[i], names[i] = b.ID, b.Name
	}
	return ids, names
}

// Validate проверяет ассет перед добавлением в каталог
func (a *ChunkAsset) Validate() error {
	if a.ID == "" {
		return errors.New("у ассета нет id")
	}
	if a.Weight < 0 {
		return fmt.Errorf("ассет %s: отрицательный вес %v", a.ID, a.Weight)
	}
	for _, e := range a.Entities {
		if e.Pos.X < 0 || e.Pos.Y < 0 {
			return fmt.Errorf("ассет %s: сущность %s вне ассета %s", a.ID, e.Kind, e.Pos)
		}
	}
	return nil
}
