package selector

import (
	"math"
	"sort"
	"sync"

	"github.com/aquilax/go-perlin"

	"github.com/annel0/chunkstream/internal/assets"
	"github.com/annel0/chunkstream/internal/logging"
	"github.com/annel0/chunkstream/internal/streaming"
	"github.com/annel0/chunkstream/internal/zone"
)

// Options настраивает шумовой селектор
type Options struct {
	Seed           int64
	Scale          float64 // шаг шума на одну клетку супер-сетки
	EmptyThreshold float64 // ниже этого значения зона остаётся пустой (0..1)
	Rotate         bool    // разрешить случайные повороты
}

// DefaultOptions возвращает настройки по умолчанию
func DefaultOptions() Options {
	return Options{
		Seed:           1,
		Scale:          0.173,
		EmptyThreshold: 0.2,
		Rotate:         true,
	}
}

// NoiseSelector выбирает ассет для зоны по шуму Перлина в координатах супер-сетки.
// Одна и та же зона при одном сиде всегда получает один и тот же ассет.
type NoiseSelector struct {
	catalog assets.Catalog
	opts    Options
	noise   *perlin.Perlin
	logger  *logging.Logger

	mu    sync.Mutex
	pool  []*assets.ChunkAsset
	total float64
	store string
	used  map[string]struct{}
}

// New создаёт селектор поверх каталога
func New(catalog assets.Catalog, opts Options) *NoiseSelector {
	if opts.Scale == 0 {
		opts.Scale = DefaultOptions().Scale
	}
	alpha := 2.0  // Сглаживание шума
	beta := 2.0   // Частота шума
	n := int32(3) // Количество октав
	return &NoiseSelector{
		catalog: catalog,
		opts:    opts,
		noise:   perlin.NewPerlin(alpha, beta, n, opts.Seed),
		logger:  logging.GetComponentLogger("selector"),
		used:    make(map[string]struct{}),
	}
}

// Initialize собирает пул ассетов с положительным весом
func (s *NoiseSelector) Initialize(c *streaming.Controller, _ any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pool = s.pool[:0]
	s.total = 0
	for _, a := range s.catalog.All() {
		if a.Weight <= 0 {
			continue
		}
		s.pool = append(s.pool, a)
		s.total += a.Weight
	}
	sort.Slice(s.pool, func(i, j int) bool { return s.pool[i].ID < s.pool[j].ID })

	if c != nil {
		s.store = c.Store().Name()
	}

	if len(s.pool) == 0 {
		s.logger.Error("в каталоге нет ассетов с положительным весом")
		return false
	}
	s.logger.Info("🎲 Шумовой селектор для %s: %d ассетов, сид %d", s.store, len(s.pool), s.opts.Seed)
	return true
}

// Select выбирает ассет для локатора
func (s *NoiseSelector) Select(loc zone.Locator, ctx streaming.LayoutContext, _ []string) *zone.ChunkSpec {
	x := float64(ctx.Super.X) * s.opts.Scale
	y := float64(ctx.Super.Y) * s.opts.Scale

	if s.sample(x, y) < s.opts.EmptyThreshold {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pool) == 0 {
		return &zone.ChunkSpec{Locator: loc, Invalid: true}
	}

	asset := s.pick(s.sample(x+101.3, y+57.9))
	spec := &zone.ChunkSpec{
		Locator:   loc,
		AssetID:   asset.ID,
		AssetName: asset.Name,
		Offset:    loc.Origin,
	}
	if s.opts.Rotate {
		spec.Rotation = zone.Rotation(90 * int(math.Min(3, s.sample(x-33.7, y+211.1)*4)))
	}

	// Ассет, не влезающий в зону, перекрыл бы соседей
	size := spec.Rotation.RotatedSize(asset.Size())
	if !loc.Empty() && (size.X > loc.Size.X || size.Y > loc.Size.Y) {
		s.logger.Warn("ассет %s (%dx%d) не помещается в %s", asset.ID, size.X, size.Y, loc)
		spec.Invalid = true
		return spec
	}

	s.used[asset.ID] = struct{}{}
	return spec
}

// UsedAssets возвращает ассеты, которые селектор когда-либо выбирал
func (s *NoiseSelector) UsedAssets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.used))
	for id := range s.used {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// sample возвращает значение шума от 0 до 1
func (s *NoiseSelector) sample(x, y float64) float64 {
	v := (s.noise.Noise2D(x, y) + 1.0) / 2.0
	return math.Max(0, math.Min(1, v))
}

func (s *NoiseSelector) pick(r float64) *assets.ChunkAsset {
	target := r * s.total
	for _, a := range s.pool {
		if target < a.Weight {
			return a
		}
		target -= a.Weight
	}
	return s.pool[len(s.pool)-1]
}

var _ streaming.AssetTracker = (*NoiseSelector)(nil)
