package zone

import "github.com/annel0/chunkstream/internal/vec"

// InstanceRef указывает, где лежит экземпляр с данным идентификатором
type InstanceRef struct {
	Locator Locator
	Layer   string
	Local   vec.Vec2 // клетка внутри размещённого содержимого
	World   vec.Vec2 // та же клетка на сетке мира
}

// idTable - таблица идентификаторов экземпляров всех зон хранилища
type idTable struct {
	refs map[string]InstanceRef
}

func newIDTable(capacity int) *idTable {
	return &idTable{refs: make(map[string]InstanceRef, capacity)}
}

// bind вносит идентификаторы регистрации в таблицу
func (t *idTable) bind(reg *Registration) int {
	n := 0
	for layer, ids := range reg.PositionToIDMaps {
		for local, id := range ids {
			if id == "" {
				continue
			}
			t.refs[id] = InstanceRef{
				Locator: reg.Locator,
				Layer:   layer,
				Local:   local,
				World:   local.Add(reg.PlacementOffset),
			}
			n++
		}
	}
	return n
}

// unbind убирает идентификаторы регистрации. Идентификатор, уже
// перепривязанный к другой зоне, не трогаем.
func (t *idTable) unbind(reg *Registration) int {
	n := 0
	for _, ids := range reg.PositionToIDMaps {
		for _, id := range ids {
			ref, ok := t.refs[id]
			if !ok || ref.Locator != reg.Locator {
				continue
			}
			delete(t.refs, id)
			n++
		}
	}
	return n
}

func (t *idTable) lookup(id string) (InstanceRef, bool) {
	ref, ok := t.refs[id]
	return ref, ok
}

func (t *idTable) len() int {
	return len(t.refs)
}
