package assets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/chunkstream/internal/vec"
)

const catalogYAML = `
assets:
  - id: forest
    name: Лес
    weight: 3
    layers:
      ground:
        - [1, 1, 1]
        - [1, 0, 1]
      props:
        - [0, 0, 0]
        - [0, 7, 0]
    bundle:
      - id: tree
        name: Дерево
    entities:
      - kind: deer
        pos: {x: 3, y: 2}
  - id: empty
    name: Пустошь
    weight: 1
`

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalogYAML), 0644))

	catalog, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, 2, catalog.Len())

	forest, ok := catalog.Asset("forest")
	require.True(t, ok)
	assert.Equal(t, "Лес", forest.Name)
	assert.Equal(t, vec.Vec2{X: 4, Y: 3}, forest.Size(), "сущность расширяет габарит")
	assert.Equal(t, vec.NewRect(vec.Vec2{}, vec.Vec2{X: 4, Y: 3}), forest.Bounds())

	ids, names := forest.BundleIDs()
	assert.Equal(t, []string{"tree"}, ids)
	assert.Equal(t, []string{"Дерево"}, names)

	all := catalog.All()
	require.Len(t, all, 2)
	assert.Equal(t, "empty", all[0].ID)

	empty, _ := catalog.Asset("empty")
	assert.True(t, empty.Bounds().Empty())
}

func TestParseCatalog_RejectsInvalid(t *testing.T) {
	_, err := ParseCatalog([]byte("assets:\n  - name: безымянный\n"))
	assert.Error(t, err)

	_, err = ParseCatalog([]byte("assets: ["))
	assert.Error(t, err)
}

func TestBounds_TightAroundContent(t *testing.T) {
	a := &ChunkAsset{ID: "ring", Layers: map[string][][]uint32{
		"ground": {
			{0, 0, 0, 0},
			{0, 2, 2, 0},
			{0, 0, 2, 0},
		},
	}}
	assert.Equal(t, vec.NewRect(vec.Vec2{X: 1, Y: 1}, vec.Vec2{X: 2, Y: 2}), a.Bounds())
	assert.Equal(t, vec.Vec2{X: 4, Y: 3}, a.Size())
}

type countingCatalog struct {
	*MemoryCatalog
	lookups int
}

func (c *countingCatalog) Asset(id string) (*ChunkAsset, bool) {
	c.lookups++
	return c.MemoryCatalog.Asset(id)
}

func TestCachedCatalog(t *testing.T) {
	mem, err := NewMemoryCatalog(&ChunkAsset{ID: "a", Weight: 1, Layers: map[string][][]uint32{"ground": {{1}}}})
	require.NoError(t, err)
	inner := &countingCatalog{MemoryCatalog: mem}

	cached, err := NewCachedCatalog(inner, 1024)
	require.NoError(t, err)
	defer cached.Close()

	for i := 0; i < 3; i++ {
		a, ok := cached.Asset("a")
		require.True(t, ok)
		assert.Equal(t, "a", a.ID)
	}
	_, ok := cached.Asset("missing")
	assert.False(t, ok)

	stats := cached.Stats()
	assert.Equal(t, uint64(4), stats.Hits+stats.Misses)
	assert.LessOrEqual(t, inner.lookups, 4)
	assert.Len(t, cached.All(), 1)
}
