package streaming

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/annel0/chunkstream/internal/vec"
	"github.com/annel0/chunkstream/internal/zone"
)

type scriptedSelector struct {
	refuse bool
	ctrl   *Controller
	pick   func(loc zone.Locator, ctx LayoutContext) *zone.ChunkSpec
	calls  int
	used   []string
}

func (s *scriptedSelector) Initialize(c *Controller, _ any) bool {
	s.ctrl = c
	return !s.refuse
}

func (s *scriptedSelector) Select(loc zone.Locator, ctx LayoutContext, _ []string) *zone.ChunkSpec {
	s.calls++
	if s.pick != nil {
		return s.pick(loc, ctx)
	}
	return &zone.ChunkSpec{AssetID: "grass", Offset: loc.Origin}
}

func (s *scriptedSelector) UsedAssets() []string { return s.used }

type fakeLoader struct {
	batches int
	specs   []zone.ChunkSpec
}

func (l *fakeLoader) Load(specs []zone.ChunkSpec) []zone.LoadResult {
	l.batches++
	l.specs = append(l.specs, specs...)
	out := make([]zone.LoadResult, len(specs))
	for i, spec := range specs {
		if spec.AssetID == "broken" {
			out[i] = zone.LoadResult{Spec: spec, Err: errors.New("ассет повреждён")}
			continue
		}
		out[i] = zone.LoadResult{Spec: spec, Registration: &zone.Registration{
			Locator:         spec.Locator,
			SourceAssetID:   spec.AssetID,
			PlacementOffset: spec.Offset,
			Rotation:        spec.Rotation,
			Bounds:          vec.NewRect(vec.Vec2{}, vec.Vec2{X: 16, Y: 16}),
		}}
	}
	return out
}

type nopUnloader struct {
	cleared int
}

func (u *nopUnloader) ClearRegion(string, vec.Rect) error { u.cleared++; return nil }

func (u *nopUnloader) DestroyEntities([]zone.EntityRef) error { return nil }

type oneLayer struct{}

func (oneLayer) ManagedLayers() []string { return []string{"ground"} }

type fixture struct {
	store    *zone.Store
	selector *scriptedSelector
	loader   *fakeLoader
	unloader *nopUnloader
	ctrl     *Controller
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{selector: &scriptedSelector{}, loader: &fakeLoader{}, unloader: &nopUnloader{}}
	f.store = zone.NewStore("stream", f.unloader, oneLayer{})
	require.NoError(t, f.store.Initialize(16, vec.Vec2{}, 64))

	if opts.DefaultPadding.IsZero() {
		opts.DefaultPadding = vec.Vec2{X: 1, Y: 1}
	}
	ctrl, err := New(f.store, f.selector, f.loader, FixedViewport{Extent: vec.Vec2{X: 32, Y: 32}}, opts)
	require.NoError(t, err)
	f.ctrl = ctrl
	return f
}

var center = vec.Vec2Float{X: 40, Y: 40}

func TestViewportLocator_Scenario(t *testing.T) {
	f := newFixture(t, Options{})

	loc := f.ctrl.ViewportLocator(center, vec.Vec2{X: 1, Y: 1})
	assert.Equal(t, vec.Vec2{X: 0, Y: 0}, loc.Origin)
	assert.Equal(t, vec.Vec2{X: 64, Y: 64}, loc.Size)

	cells := zone.Subdivide(loc, f.store.Origin(), f.store.ChunkSize())
	require.Len(t, cells, 16)
	for _, cell := range cells {
		assert.Equal(t, vec.Vec2{X: 16, Y: 16}, cell.Size)
		assert.True(t, f.store.IsAligned(cell.Origin))
	}
}

func TestViewportLocator_DegenerateCamera(t *testing.T) {
	f := newFixture(t, Options{DefaultChunksInView: 3})
	f.ctrl.viewport = FixedViewport{}

	loc := f.ctrl.ViewportLocator(vec.Vec2Float{}, vec.Vec2{})
	assert.Equal(t, vec.Vec2{X: 48, Y: 48}, loc.Size)
	assert.True(t, f.store.IsAligned(loc.Origin))
}

func TestUpdateTick_FillsViewportOnce(t *testing.T) {
	f := newFixture(t, Options{})

	hadErrors, err := f.ctrl.UpdateTick(center, TickOptions{})
	require.NoError(t, err)
	assert.False(t, hadErrors)
	assert.Equal(t, 16, f.store.Len())
	assert.Equal(t, 1, f.loader.batches, "вся партия уходит исполнителю одним вызовом")
	assert.Equal(t, 16, f.ctrl.LastReport().Loaded)

	_, err = f.ctrl.UpdateTick(center, TickOptions{})
	require.NoError(t, err)
	assert.Equal(t, 16, f.selector.calls, "покрытые зоны селектор больше не спрашивают")
	assert.Equal(t, 0, f.ctrl.LastReport().Loaded)
}

func TestUpdateTick_MovingViewportUnloadsStaleZones(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.ctrl.UpdateTick(center, TickOptions{})
	require.NoError(t, err)

	_, err = f.ctrl.UpdateTick(vec.Vec2Float{X: 400, Y: 40}, TickOptions{})
	require.NoError(t, err)

	report := f.ctrl.LastReport()
	assert.Equal(t, 16, report.Unloaded)
	assert.Equal(t, 16, report.Loaded)
	assert.Equal(t, 16, f.store.Len())
	assert.Equal(t, 16, f.unloader.cleared)
}

func TestUpdateTick_ImmortalSurvivesAnyFilter(t *testing.T) {
	f := newFixture(t, Options{})

	far := &zone.Registration{
		Locator:         f.store.LocatorFor(vec.Vec2{X: 1600, Y: 1600}, vec.Vec2{}, true),
		SourceAssetID:   "shrine",
		PlacementOffset: vec.Vec2{X: 1600, Y: 1600},
		Immortal:        true,
	}
	mortal := &zone.Registration{
		Locator:         f.store.LocatorFor(vec.Vec2{X: 3200, Y: 0}, vec.Vec2{}, true),
		SourceAssetID:   "camp",
		PlacementOffset: vec.Vec2{X: 3200, Y: 0},
	}
	require.NoError(t, f.store.Add(far))
	require.NoError(t, f.store.Add(mortal))

	var offered []*zone.Registration
	unloadAll := func(reg *zone.Registration, _ any, _ *zone.Store) bool {
		offered = append(offered, reg)
		return true
	}

	_, err := f.ctrl.UpdateTick(center, TickOptions{UnloadFilter: unloadAll})
	require.NoError(t, err)

	assert.True(t, f.store.Contains(far.Locator), "бессмертная зона должна остаться")
	assert.False(t, f.store.Contains(mortal.Locator))
	assert.Equal(t, []*zone.Registration{mortal}, offered, "бессмертную зону фильтру не предлагают")

	report := f.ctrl.LastReport()
	assert.Equal(t, 1, report.Unloaded)
	assert.Equal(t, 1, report.KeptImmortal)
}

func TestUpdateTick_UnloadFilterKeepsZones(t *testing.T) {
	f := newFixture(t, Options{})
	reg := &zone.Registration{
		Locator:         f.store.LocatorFor(vec.Vec2{X: -800, Y: 0}, vec.Vec2{}, true),
		SourceAssetID:   "camp",
		PlacementOffset: vec.Vec2{X: -800, Y: 0},
	}
	require.NoError(t, f.store.Add(reg))

	type marker struct{ keep bool }
	keep := func(_ *zone.Registration, userData any, store *zone.Store) bool {
		assert.Same(t, f.store, store)
		return !userData.(*marker).keep
	}

	_, err := f.ctrl.UpdateTick(center, TickOptions{UnloadFilter: keep, UserData: &marker{keep: true}})
	require.NoError(t, err)
	assert.True(t, f.store.Contains(reg.Locator))
	assert.Equal(t, 1, f.ctrl.LastReport().KeptByFilter)
}

func TestUpdateTick_LoadDecisions(t *testing.T) {
	f := newFixture(t, Options{})

	decide := func(_ any, _ *zone.Store, spec *zone.ChunkSpec) LoadDecision {
		switch spec.Locator.Origin.X {
		case 0:
			return LeaveZoneEmpty
		case 16:
			return MarkZoneFilledButLeaveEmpty
		case 32:
			return FillZoneAndMarkImmortal
		default:
			return FillZone
		}
	}

	_, err := f.ctrl.UpdateTick(center, TickOptions{LoadFilter: decide})
	require.NoError(t, err)

	report := f.ctrl.LastReport()
	assert.Equal(t, 4, report.Skipped)
	assert.Equal(t, 4, report.Reserved)
	assert.Equal(t, 8, report.Loaded)
	assert.Equal(t, 12, f.store.Len())
	assert.Len(t, f.loader.specs, 8, "reserved-зоны исполнителю не передаются")

	for _, reg := range f.store.All() {
		switch reg.Locator.Origin.X {
		case 16:
			assert.True(t, reg.Reserved)
		case 32:
			assert.True(t, reg.Immortal)
		default:
			assert.False(t, reg.Reserved || reg.Immortal)
		}
	}

	// оставленные пустыми зоны спрашиваются снова на следующем тике
	before := f.selector.calls
	_, err = f.ctrl.UpdateTick(center, TickOptions{LoadFilter: decide})
	require.NoError(t, err)
	assert.Equal(t, before+4, f.selector.calls)
}

func TestUpdateTick_SelectorAndLoaderSoftErrors(t *testing.T) {
	f := newFixture(t, Options{})
	f.selector.pick = func(loc zone.Locator, ctx LayoutContext) *zone.ChunkSpec {
		switch ctx.Super.Y {
		case 0:
			return nil
		case 1:
			return &zone.ChunkSpec{AssetID: "???", Invalid: true}
		case 2:
			return &zone.ChunkSpec{AssetID: "broken", Offset: loc.Origin}
		default:
			return &zone.ChunkSpec{AssetID: "grass", Offset: loc.Origin}
		}
	}

	hadErrors, err := f.ctrl.UpdateTick(center, TickOptions{})
	require.NoError(t, err)
	assert.True(t, hadErrors)

	report := f.ctrl.LastReport()
	assert.Equal(t, 4, report.LeftEmpty)
	assert.Equal(t, 4, report.SelectorErrors)
	assert.Equal(t, 4, report.LoadFailures)
	assert.Equal(t, 4, report.Loaded)
	assert.Equal(t, 4, f.store.Len())
}

func TestUpdateTick_DuplicatePlacementNeverReachesLoader(t *testing.T) {
	f := newFixture(t, Options{})
	f.selector.pick = func(zone.Locator, LayoutContext) *zone.ChunkSpec {
		return &zone.ChunkSpec{AssetID: "lake", Offset: vec.Vec2{}}
	}

	_, err := f.ctrl.UpdateTick(center, TickOptions{})
	require.NoError(t, err)

	report := f.ctrl.LastReport()
	assert.Equal(t, 1, report.Loaded)
	assert.Equal(t, 15, report.LoadFailures, "повтор размещения в одной партии отбрасывается")
	assert.Len(t, f.loader.specs, 1)
	assert.Zero(t, f.unloader.cleared, "откат не должен чистить клетки занятой зоны")

	// на следующем тике размещение уже есть в хранилище
	_, err = f.ctrl.UpdateTick(center, TickOptions{})
	require.NoError(t, err)
	assert.Equal(t, 15, f.ctrl.LastReport().LoadFailures)
	assert.Len(t, f.loader.specs, 1)
	assert.Equal(t, 1, f.store.Len())

	reg, ok := f.store.FindByPlacement("lake", vec.Vec2{})
	require.True(t, ok)
	assert.Equal(t, uint64(1), reg.Index)
}

func TestUpdateTick_RequiresInitializedStore(t *testing.T) {
	store := zone.NewStore("raw", nil, nil)
	ctrl, err := New(store, &scriptedSelector{}, &fakeLoader{}, FixedViewport{Extent: vec.Vec2{X: 32, Y: 32}}, Options{})
	require.NoError(t, err)

	_, err = ctrl.UpdateTick(center, TickOptions{})
	assert.ErrorIs(t, err, zone.ErrNotInitialized)
}

func TestUpdateTick_RejectsReentry(t *testing.T) {
	f := newFixture(t, Options{})
	var inner error
	f.selector.pick = func(loc zone.Locator, _ LayoutContext) *zone.ChunkSpec {
		if inner == nil {
			_, inner = f.selector.ctrl.UpdateTick(center, TickOptions{})
		}
		return &zone.ChunkSpec{AssetID: "grass", Offset: loc.Origin}
	}

	_, err := f.ctrl.UpdateTick(center, TickOptions{})
	require.NoError(t, err)
	assert.ErrorIs(t, inner, ErrTickInProgress)
}

func TestUpdateTick_UnknownDecisionPanics(t *testing.T) {
	f := newFixture(t, Options{})
	bogus := func(any, *zone.Store, *zone.ChunkSpec) LoadDecision { return LoadDecision(42) }

	assert.Panics(t, func() {
		_, _ = f.ctrl.UpdateTick(center, TickOptions{LoadFilter: bogus})
	})
}

func TestNew_SelectorRefuses(t *testing.T) {
	store := zone.NewStore("s", nil, nil)
	_, err := New(store, &scriptedSelector{refuse: true}, &fakeLoader{}, FixedViewport{}, Options{})
	assert.ErrorIs(t, err, ErrSelectorRefused)

	_, err = New(store, nil, &fakeLoader{}, FixedViewport{}, Options{})
	assert.ErrorIs(t, err, ErrMissingPart)
}

func TestMetrics_CountTicksAndShareRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewMetrics(reg, "stream")
	second := NewMetrics(reg, "stream")
	assert.Same(t, first.Loaded, second.Loaded, "повторная регистрация отдаёт существующую метрику")

	f := newFixture(t, Options{Metrics: second})
	_, err := f.ctrl.UpdateTick(center, TickOptions{})
	require.NoError(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(first.Ticks))
	assert.Equal(t, float64(16), testutil.ToFloat64(first.Loaded))
	assert.Equal(t, float64(16), testutil.ToFloat64(first.Zones))
}

func TestUsedAssets_MergesTrackerAndRegistry(t *testing.T) {
	registry := zone.NewRegistry()
	f := newFixture(t, Options{})
	f.ctrl.opts.Registry = registry
	require.NoError(t, registry.Register(f.store))
	f.selector.used = []string{"grass", "sand"}

	_, err := f.ctrl.UpdateTick(center, TickOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"grass", "sand"}, f.ctrl.UsedAssets())
	assert.Equal(t, []string{"grass"}, registry.LoadedAssets())
}

func TestUpdateTick_RecordsSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	otel.SetTracerProvider(provider)
	defer provider.Shutdown(context.Background())

	f := newFixture(t, Options{})
	_, err := f.ctrl.UpdateTick(center, TickOptions{})
	require.NoError(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "streaming.UpdateTick", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.Int("loaded", 16))
}
