package persistence

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/annel0/chunkstream/internal/assets"
	"github.com/annel0/chunkstream/internal/logging"
	"github.com/annel0/chunkstream/internal/vec"
	"github.com/annel0/chunkstream/internal/zone"
)

// EnvelopeVersion - текущая версия формата
const EnvelopeVersion = 1

//go:embed envelope.schema.json
var envelopeSchema string

var schema = jsonschema.MustCompileString("envelope.schema.json", envelopeSchema)

var (
	ErrMalformed      = errors.New("повреждённый снимок зон")
	ErrAssetNotFound  = errors.New("исходный ассет не найден")
	ErrNoLoader       = errors.New("не задан исполнитель загрузки")
	ErrLoaderMismatch = errors.New("исполнитель вернул неожиданное число результатов")
)

// Envelope - внешний вид снимка хранилища
type Envelope struct {
	Version   int         `json:"version"`
	Store     string      `json:"store"`
	ChunkSize int         `json:"chunk_size"`
	Origin    vec.Vec2    `json:"origin"`
	Zones     []ZoneEntry `json:"zones"`
}

// ZoneEntry - одна регистрация в снимке
type ZoneEntry struct {
	Index            uint64       `json:"index"`
	Locator          zone.Locator `json:"locator"`
	SourceAssetID    string       `json:"source_asset_id"`
	SourceAssetName  string       `json:"source_asset_name,omitempty"`
	Offset           vec.Vec2     `json:"offset"`
	Rotation         int          `json:"rotation"`
	BundleAssetIDs   []string     `json:"bundle_asset_ids,omitempty"`
	BundleAssetNames []string     `json:"bundle_asset_names,omitempty"`
	Bounds           vec.Rect     `json:"bounds"`
	Reserved         bool         `json:"reserved,omitempty"`
	Immortal         bool         `json:"immortal,omitempty"`
}

// AssetResolver находит исходный ассет по идентификатору
type AssetResolver interface {
	Asset(id string) (*assets.ChunkAsset, bool)
}

// Codec сохраняет и восстанавливает набор регистраций
type Codec struct {
	loader   zone.Loader
	resolver AssetResolver
	logger   *logging.Logger

	mu      sync.Mutex
	scratch []ZoneEntry
}

// NewCodec создаёт кодек. resolver может быть nil - тогда ассеты проверяет только loader.
func NewCodec(loader zone.Loader, resolver AssetResolver) *Codec {
	return &Codec{
		loader:   loader,
		resolver: resolver,
		logger:   logging.GetPersistenceLogger(),
	}
}

// Serialize выгружает все регистрации по возрастанию Index
func (c *Codec) Serialize(store *zone.Store, pretty bool) ([]byte, error) {
	if !store.Initialized() {
		return nil, zone.ErrNotInitialized
	}

	regs := store.All()
	env := Envelope{
		Version:   EnvelopeVersion,
		Store:     store.Name(),
		ChunkSize: store.ChunkSize(),
		Origin:    store.Origin(),
		Zones:     make([]ZoneEntry, 0, len(regs)),
	}
	for _, reg := range regs {
		env.Zones = append(env.Zones, ZoneEntry{
			Index:            reg.Index,
			Locator:          reg.Locator,
			SourceAssetID:    reg.SourceAssetID,
			SourceAssetName:  reg.SourceAssetName,
			Offset:           reg.PlacementOffset,
			Rotation:         int(reg.Rotation),
			BundleAssetIDs:   reg.BundleAssetIDs,
			BundleAssetNames: reg.BundleAssetNames,
			Bounds:           reg.Bounds,
			Reserved:         reg.Reserved,
			Immortal:         reg.Immortal,
		})
	}

	var (
		data []byte
		err  error
	)
	if pretty {
		data, err = json.MarshalIndent(env, "", "  ")
	} else {
		data, err = json.Marshal(env)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации хранилища %s: %w", store.Name(), err)
	}

	c.logger.Debug("хранилище %s сериализовано: %d зон, %d байт", store.Name(), len(regs), len(data))
	return data, nil
}

// Decode проверяет снимок по схеме и разбирает его
func Decode(data []byte) (*Envelope, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := schema.Validate(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Version > EnvelopeVersion {
		return nil, fmt.Errorf("%w: версия %d новее поддерживаемой %d", ErrMalformed, env.Version, EnvelopeVersion)
	}
	return &env, nil
}

// Restore заново загружает зоны из снимка в store строго по возрастанию Index.
// Сбой отдельной записи попадает в её LoadResult, остальные продолжаются.
// Повреждённый снимок возвращает nil и ошибку.
func (c *Codec) Restore(data []byte, store *zone.Store, layerMap map[string]string, filter zone.ContentFilter) ([]zone.LoadResult, error) {
	env, err := Decode(data)
	if err != nil {
		c.logger.Error("не удалось восстановить хранилище %s: %v", store.Name(), err)
		return nil, err
	}
	if !store.Initialized() {
		c.logger.Error("не удалось восстановить хранилище %s: %v", store.Name(), zone.ErrNotInitialized)
		return nil, zone.ErrNotInitialized
	}
	if env.ChunkSize != store.ChunkSize() || env.Origin != store.Origin() {
		c.logger.Warn("снимок %s сделан для чанка %d с началом %s, хранилище использует %d и %s",
			env.Store, env.ChunkSize, env.Origin, store.ChunkSize(), store.Origin())
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.scratch = append(c.scratch[:0], env.Zones...)
	sort.SliceStable(c.scratch, func(i, j int) bool {
		return c.scratch[i].Index < c.scratch[j].Index
	})

	results := make([]zone.LoadResult, 0, len(c.scratch))
	failed := 0
	for _, entry := range c.scratch {
		res := c.restoreEntry(entry, store, layerMap, filter)
		if !res.OK() {
			failed++
			c.logger.Warn("зона #%d (%s в %s) не восстановлена: %v", entry.Index, entry.SourceAssetID, entry.Locator, res.Err)
		}
		results = append(results, res)
	}

	c.logger.Info("💾 Хранилище %s восстановлено: %d зон, сбоев %d", store.Name(), len(results)-failed, failed)
	return results, nil
}

func (c *Codec) restoreEntry(entry ZoneEntry, store *zone.Store, layerMap map[string]string, filter zone.ContentFilter) zone.LoadResult {
	spec := zone.ChunkSpec{
		Locator:   entry.Locator,
		AssetID:   entry.SourceAssetID,
		AssetName: entry.SourceAssetName,
		Offset:    entry.Offset,
		Reserved:  entry.Reserved,
		Immortal:  entry.Immortal,
		LayerMap:  layerMap,
		Filter:    filter,
	}

	rotation, err := zone.ParseRotation(entry.Rotation)
	if err != nil {
		return zone.LoadResult{Spec: spec, Err: err}
	}
	spec.Rotation = rotation

	if entry.Reserved {
		reg := zone.NewReserved(entry.Locator, entry.SourceAssetID, entry.SourceAssetName, entry.Offset)
		reg.Rotation = rotation
		reg.Immortal = entry.Immortal
		if err := store.Add(reg); err != nil {
			return zone.LoadResult{Spec: spec, Err: err}
		}
		return zone.LoadResult{Spec: spec, Registration: reg}
	}

	// занятые локатор и размещение проверяем до загрузки, чтобы не затереть чужие клетки
	if store.Contains(entry.Locator) {
		return zone.LoadResult{Spec: spec, Err: fmt.Errorf("%w: %s", zone.ErrDuplicateLocator, entry.Locator)}
	}
	if entry.SourceAssetID != "" {
		if existing, ok := store.FindByPlacement(entry.SourceAssetID, entry.Offset); ok {
			return zone.LoadResult{Spec: spec, Err: fmt.Errorf("%w: %s в %s (зона #%d)",
				zone.ErrDuplicatePlacement, entry.SourceAssetID, entry.Offset, existing.Index)}
		}
	}
	if c.resolver != nil {
		if _, ok := c.resolver.Asset(entry.SourceAssetID); !ok {
			return zone.LoadResult{Spec: spec, Err: fmt.Errorf("%w: %s", ErrAssetNotFound, entry.SourceAssetID)}
		}
	}
	if c.loader == nil {
		return zone.LoadResult{Spec: spec, Err: ErrNoLoader}
	}

	results := c.loader.Load([]zone.ChunkSpec{spec})
	if len(results) != 1 {
		return zone.LoadResult{Spec: spec, Err: fmt.Errorf("%w: %d", ErrLoaderMismatch, len(results))}
	}
	res := results[0]
	if !res.OK() {
		return res
	}

	reg := res.Registration
	if reg.Locator.Empty() {
		reg.Locator = entry.Locator
	}
	reg.Immortal = entry.Immortal
	if err := store.Add(reg); err != nil {
		if cerr := store.ClearContent(reg, true, true); cerr != nil {
			c.logger.Error("не удалось откатить зону %s: %v", reg.Locator, cerr)
		}
		return zone.LoadResult{Spec: spec, Err: err}
	}
	return res
}
