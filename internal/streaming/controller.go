package streaming

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/annel0/chunkstream/internal/logging"
	"github.com/annel0/chunkstream/internal/vec"
	"github.com/annel0/chunkstream/internal/zone"
)

const tracerName = "github.com/annel0/chunkstream/internal/streaming"

// DefaultChunksInView подставляется, когда камера даёт вырожденную область
const DefaultChunksInView = 2

var (
	ErrTickInProgress  = errors.New("тик уже выполняется")
	ErrSelectorRefused = errors.New("селектор отказался инициализироваться")
	ErrMissingPart     = errors.New("не задан обязательный компонент контроллера")
)

// Options - настройки контроллера
type Options struct {
	DefaultPadding      vec.Vec2 // в чанках
	DefaultChunksInView int
	LayerMap            map[string]string // для спецификаций без собственного LayerMap
	Registry            *zone.Registry
	Metrics             *Metrics
	UserData            any // передаётся в Selector.Initialize
}

// Controller по тикам подгружает зоны вокруг вьюпорта и выгружает дальние.
// Тики не должны пересекаться: повторный вход получает ErrTickInProgress.
type Controller struct {
	store    *zone.Store
	selector Selector
	loader   zone.Loader
	viewport Viewport
	opts     Options
	logger   *logging.Logger

	ticking atomic.Bool
	tick    uint64

	mu         sync.RWMutex
	lastReport TickReport
}

// New создаёт контроллер и инициализирует селектор
func New(store *zone.Store, selector Selector, loader zone.Loader, viewport Viewport, opts Options) (*Controller, error) {
	switch {
	case store == nil:
		return nil, fmt.Errorf("%w: хранилище", ErrMissingPart)
	case selector == nil:
		return nil, fmt.Errorf("%w: селектор", ErrMissingPart)
	case loader == nil:
		return nil, fmt.Errorf("%w: исполнитель загрузки", ErrMissingPart)
	case viewport == nil:
		return nil, fmt.Errorf("%w: вьюпорт", ErrMissingPart)
	}
	if opts.DefaultChunksInView <= 0 {
		opts.DefaultChunksInView = DefaultChunksInView
	}

	c := &Controller{
		store:    store,
		selector: selector,
		loader:   loader,
		viewport: viewport,
		opts:     opts,
		logger:   logging.GetStreamingLogger(),
	}

	if !selector.Initialize(c, opts.UserData) {
		return nil, ErrSelectorRefused
	}

	c.logger.Info("🎥 Контроллер стриминга для %s готов, отступ по умолчанию %s", store.Name(), opts.DefaultPadding)
	return c, nil
}

// Store возвращает хранилище контроллера
func (c *Controller) Store() *zone.Store {
	return c.store
}

// LastReport возвращает отчёт последнего завершённого тика
func (c *Controller) LastReport() TickReport {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastReport
}

// ViewportLocator строит выровненный локатор вьюпорта с отступом padding (в чанках)
func (c *Controller) ViewportLocator(center vec.Vec2Float, padding vec.Vec2) zone.Locator {
	cs := c.store.ChunkSize()
	centerChunk := c.store.Align(c.viewport.WorldToGrid(center))

	extent := c.viewport.VisibleGridExtent()
	num := vec.Vec2{X: vec.CeilDiv(extent.X, cs), Y: vec.CeilDiv(extent.Y, cs)}
	if num.X <= 0 {
		num.X = c.opts.DefaultChunksInView
	}
	if num.Y <= 0 {
		num.Y = c.opts.DefaultChunksInView
	}
	padding.X, padding.Y = max(padding.X, 0), max(padding.Y, 0)

	back := vec.Vec2{X: num.X/2 + padding.X, Y: num.Y/2 + padding.Y}
	span := num.Add(padding.Mul(2))

	return zone.Locator{
		Origin: centerChunk.Sub(back.Mul(cs)),
		Size:   span.Mul(cs),
	}
}

// UpdateTick выполняет один проход стриминга вокруг center.
// Возвращает true, если селектор хотя бы раз выдал некорректную спецификацию.
func (c *Controller) UpdateTick(center vec.Vec2Float, opts TickOptions) (bool, error) {
	if !c.ticking.CompareAndSwap(false, true) {
		c.opts.Metrics.rejected()
		c.logger.Warn("тик отклонён: предыдущий ещё не завершён")
		return false, ErrTickInProgress
	}
	defer c.ticking.Store(false)

	if !c.store.Initialized() {
		c.logger.Error("тик невозможен: %v", zone.ErrNotInitialized)
		return false, zone.ErrNotInitialized
	}

	start := time.Now()
	c.tick++

	_, span := otel.Tracer(tracerName).Start(context.Background(), "streaming.UpdateTick")
	defer span.End()

	padding := c.opts.DefaultPadding
	if opts.Padding != nil {
		padding = *opts.Padding
	}

	viewport := c.ViewportLocator(center, padding)
	cells := zone.Subdivide(viewport, c.store.Origin(), c.store.ChunkSize())
	report := TickReport{Tick: c.tick, Viewport: viewport, Cells: len(cells)}

	inside, outside := c.store.Partition(viewport)

	c.unloadPass(outside, opts, &report)
	batch := c.selectPass(cells, inside, opts, &report)
	c.loadPass(batch, &report)

	report.Duration = time.Since(start)
	c.mu.Lock()
	c.lastReport = report
	c.mu.Unlock()

	c.opts.Metrics.observe(report, c.store.Len())
	span.SetAttributes(
		attribute.String("store", c.store.Name()),
		attribute.Int64("tick", int64(report.Tick)),
		attribute.Int("loaded", report.Loaded),
		attribute.Int("unloaded", report.Unloaded),
		attribute.Int("selector_errors", report.SelectorErrors),
	)
	if report.Unloaded > 0 || report.Loaded > 0 || report.Reserved > 0 || report.SelectorErrors > 0 {
		c.logger.Debug("%s", report)
	}

	return report.HadSelectorErrors(), nil
}

func (c *Controller) unloadPass(outside []*zone.Registration, opts TickOptions, report *TickReport) {
	batch := make([]*zone.Registration, 0, len(outside))
	for _, reg := range outside {
		if reg.Immortal {
			report.KeptImmortal++
			continue
		}
		if opts.UnloadFilter != nil && !opts.UnloadFilter(reg, opts.UserData, c.store) {
			report.KeptByFilter++
			continue
		}
		batch = append(batch, reg)
	}

	for _, reg := range batch {
		if err := c.store.Unload(reg, true, true); err != nil {
			report.UnloadFailures++
			continue
		}
		report.Unloaded++
	}
}

func (c *Controller) selectPass(cells []zone.Locator, inside map[zone.Locator]struct{}, opts TickOptions, report *TickReport) []zone.ChunkSpec {
	var batch []zone.ChunkSpec
	pending := make(map[placement]struct{})
	layers := c.store.ManagedLayers()
	origin, cs := c.store.Origin(), c.store.ChunkSize()

	for _, loc := range cells {
		if _, covered := inside[loc]; covered {
			continue
		}
		if c.store.Contains(loc) {
			continue
		}

		ctx := LayoutContext{
			Store:    c.store,
			Super:    zone.GridToSuper(loc.Origin, origin, cs),
			Tick:     c.tick,
			UserData: opts.UserData,
		}
		spec := c.selector.Select(loc, ctx, layers)
		if spec == nil {
			report.LeftEmpty++
			continue
		}
		if spec.Invalid {
			report.SelectorErrors++
			c.logger.Warn("селектор вернул некорректную спецификацию для %s (%s)", loc, spec.AssetID)
			continue
		}
		if spec.Locator.Empty() {
			spec.Locator = loc
		}
		if spec.LayerMap == nil {
			spec.LayerMap = c.opts.LayerMap
		}

		decision := FillZone
		if opts.LoadFilter != nil {
			decision = opts.LoadFilter(opts.UserData, c.store, spec)
		}

		switch decision {
		case FillZone:
		case LeaveZoneEmpty:
			report.Skipped++
			continue
		case MarkZoneFilledButLeaveEmpty:
			c.reserve(spec, report)
			continue
		case FillZoneAndMarkImmortal:
			spec.Immortal = true
		default:
			panic(fmt.Sprintf("streaming: недопустимое решение фильтра загрузки %d", int(decision)))
		}

		if spec.Reserved {
			c.reserve(spec, report)
			continue
		}
		if spec.AssetID != "" {
			key := placement{assetID: spec.AssetID, offset: spec.Offset}
			_, queued := pending[key]
			existing, placed := c.store.FindByPlacement(spec.AssetID, spec.Offset)
			if queued || placed {
				report.LoadFailures++
				if placed {
					c.logger.Warn("%s в %s уже размещён зоной #%d, %s пропущен", spec.AssetID, spec.Offset, existing.Index, loc)
				} else {
					c.logger.Warn("%s в %s уже выбран в этом тике, %s пропущен", spec.AssetID, spec.Offset, loc)
				}
				continue
			}
			pending[key] = struct{}{}
		}
		batch = append(batch, *spec)
	}
	return batch
}

// placement - ассет и его смещение, второй ключ уникальности зоны
type placement struct {
	assetID string
	offset  vec.Vec2
}

func (c *Controller) reserve(spec *zone.ChunkSpec, report *TickReport) {
	reg := zone.NewReserved(spec.Locator, spec.AssetID, spec.AssetName, spec.Offset)
	if err := c.store.Add(reg); err != nil {
		report.LoadFailures++
		return
	}
	report.Reserved++
}

func (c *Controller) loadPass(batch []zone.ChunkSpec, report *TickReport) {
	if len(batch) == 0 {
		return
	}

	results := c.loader.Load(batch)
	if len(results) != len(batch) {
		c.logger.Error("исполнитель вернул %d результатов на %d спецификаций", len(results), len(batch))
		if len(results) < len(batch) {
			report.LoadFailures += len(batch) - len(results)
		}
	}

	for _, res := range results {
		if !res.OK() {
			report.LoadFailures++
			continue
		}
		reg := res.Registration
		if reg.Locator.Empty() {
			reg.Locator = res.Spec.Locator
		}
		if res.Spec.Immortal {
			reg.Immortal = true
		}
		if err := c.store.Add(reg); err != nil {
			report.LoadFailures++
			if cerr := c.store.ClearContent(reg, true, true); cerr != nil {
				c.logger.Error("не удалось откатить загрузку %s: %v", reg.Locator, cerr)
			}
			continue
		}
		report.Loaded++
	}
}

// UsedAssets объединяет ассеты, о которых знает селектор, с загруженными по реестру
func (c *Controller) UsedAssets() []string {
	seen := make(map[string]struct{})
	if tracker, ok := c.selector.(AssetTracker); ok {
		for _, id := range tracker.UsedAssets() {
			seen[id] = struct{}{}
		}
	}
	if c.opts.Registry != nil {
		for _, id := range c.opts.Registry.LoadedAssets() {
			seen[id] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
