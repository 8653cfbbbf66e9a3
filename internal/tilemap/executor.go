package tilemap

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/annel0/chunkstream/internal/assets"
	"github.com/annel0/chunkstream/internal/logging"
	"github.com/annel0/chunkstream/internal/vec"
	"github.com/annel0/chunkstream/internal/zone"
)

// EntityLayer - имя, под которым сущности проходят через ContentFilter
const EntityLayer = "entities"

var (
	ErrUnknownAsset    = errors.New("ассет не найден в каталоге")
	ErrInvalidRotation = errors.New("недопустимый поворот")
)

// Executor материализует чанки в World. Реализует zone.Loader.
type Executor struct {
	world   *World
	catalog assets.Catalog
	newID   func() string
	logger  *logging.Logger
}

// NewExecutor создаёт исполнитель загрузки
func NewExecutor(world *World, catalog assets.Catalog) *Executor {
	return &Executor{
		world:   world,
		catalog: catalog,
		newID:   uuid.NewString,
		logger:  logging.GetComponentLogger("tilemap"),
	}
}

// Load загружает спецификации по порядку. Ошибка одной не мешает остальным.
func (e *Executor) Load(specs []zone.ChunkSpec) []zone.LoadResult {
	results := make([]zone.LoadResult, len(specs))
	for i, spec := range specs {
		reg, err := e.loadOne(spec)
		if err != nil {
			e.logger.Warn("не удалось загрузить %s в %s: %v", spec.AssetID, spec.Locator, err)
		}
		results[i] = zone.LoadResult{Spec: spec, Registration: reg, Err: err}
	}
	return results
}

func (e *Executor) loadOne(spec zone.ChunkSpec) (*zone.Registration, error) {
	asset, ok := e.catalog.Asset(spec.AssetID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, spec.AssetID)
	}
	if !spec.Rotation.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRotation, int(spec.Rotation))
	}

	size := asset.Size()
	reg := &zone.Registration{
		Locator:          spec.Locator,
		SourceAssetID:    asset.ID,
		SourceAssetName:  asset.Name,
		PlacementOffset:  spec.Offset,
		Rotation:         spec.Rotation,
		PositionToIDMaps: make(map[string]map[vec.Vec2]string),
		Bounds:           rotateRect(asset.Bounds(), spec.Rotation, size),
		Immortal:         spec.Immortal,
	}
	if spec.AssetName != "" {
		reg.SourceAssetName = spec.AssetName
	}
	reg.BundleAssetIDs, reg.BundleAssetNames = asset.BundleIDs()

	stamped := 0
	for assetLayer, rows := range asset.Layers {
		target := assetLayer
		if spec.LayerMap != nil {
			mapped, ok := spec.LayerMap[assetLayer]
			if !ok {
				continue
			}
			target = mapped
		}
		if !e.world.HasLayer(target) {
			e.logger.Debug("ассет %s: слой %s не управляется миром, пропуск", asset.ID, target)
			continue
		}

		ids := reg.PositionToIDMaps[target]
		if ids == nil {
			ids = make(map[vec.Vec2]string)
			reg.PositionToIDMaps[target] = ids
		}

		for y, row := range rows {
			for x, tileID := range row {
				if tileID == assets.EmptyTile {
					continue
				}
				local := spec.Rotation.Apply(vec.Vec2{X: x, Y: y}, size)
				if spec.Filter != nil && !spec.Filter(target, local) {
					continue
				}
				id := e.newID()
				tile := Tile{AssetID: asset.ID, TileID: tileID, InstanceID: id}
				if err := e.world.Set(target, spec.Offset.Add(local), tile); err != nil {
					return nil, err
				}
				ids[local] = id
				stamped++
			}
		}
	}

	for _, spawn := range asset.Entities {
		local := spec.Rotation.Apply(spawn.Pos, size)
		if spec.Filter != nil && !spec.Filter(EntityLayer, local) {
			continue
		}
		ref := zone.EntityRef{ID: e.newID(), Kind: spawn.Kind, Pos: spec.Offset.Add(local)}
		e.world.SpawnEntity(ref)
		reg.SpawnedEntities = append(reg.SpawnedEntities, ref)
	}

	e.logger.Trace("ассет %s загружен в %s: клеток %d, сущностей %d",
		asset.ID, spec.Offset, stamped, len(reg.SpawnedEntities))
	return reg, nil
}

// rotateRect поворачивает прямоугольник внутри содержимого размера size
func rotateRect(r vec.Rect, rot zone.Rotation, size vec.Vec2) vec.Rect {
	if r.Empty() {
		return r
	}
	a := rot.Apply(r.Min, size)
	b := rot.Apply(r.Max().Sub(vec.Vec2{X: 1, Y: 1}), size)
	lo := vec.Vec2{X: min(a.X, b.X), Y: min(a.Y, b.Y)}
	hi := vec.Vec2{X: max(a.X, b.X), Y: max(a.Y, b.Y)}
	return vec.NewRect(lo, hi.Sub(lo).Add(vec.Vec2{X: 1, Y: 1}))
}
