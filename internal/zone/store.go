package zone

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/annel0/chunkstream/internal/logging"
	"github.com/annel0/chunkstream/internal/vec"
)

// MinChunkSize - минимально допустимый размер чанка
const MinChunkSize = 4

// NormalizeChunkSize ограничивает размер снизу и округляет вверх до чётного
func NormalizeChunkSize(size int) int {
	if size < MinChunkSize {
		size = MinChunkSize
	}
	if size%2 != 0 {
		size++
	}
	return size
}

type placementKey struct {
	assetID string
	offset  vec.Vec2
}

// Store - единственный источник истины о том, какой чанк занимает какой локатор.
// Рассчитан на одного писателя: изменения идут из тика или между тиками.
type Store struct {
	name     string
	unloader Unloader
	layers   LayerSet
	logger   *logging.Logger

	mu          sync.RWMutex
	initialized bool
	chunkSize   int
	origin      vec.Vec2
	nextIndex   uint64
	zones       map[Locator]*Registration
	placements  map[placementKey]*Registration
	instances   *idTable

	handlersMu  sync.RWMutex
	handlers    []handlerEntry
	nextHandler uint64
	notifying   atomic.Int32
}

// NewStore создаёт хранилище. До Initialize все изменения отклоняются.
func NewStore(name string, unloader Unloader, layers LayerSet) *Store {
	return &Store{
		name:       name,
		unloader:   unloader,
		layers:     layers,
		logger:     logging.GetZoneLogger(),
		zones:      make(map[Locator]*Registration),
		placements: make(map[placementKey]*Registration),
		instances:  newIDTable(0),
	}
}

// Name возвращает имя хранилища
func (s *Store) Name() string {
	return s.name
}

// Initialize сбрасывает всё состояние. Повторный вызов стирает прежние
// регистрации, подписчики получают EventRemoved для каждой.
func (s *Store) Initialize(chunkSize int, origin vec.Vec2, capacityHint int) error {
	if err := s.guard(); err != nil {
		return s.reject("initialize", err)
	}

	normalized := NormalizeChunkSize(chunkSize)
	if normalized != chunkSize {
		s.logger.Warn("хранилище %s: размер чанка %d заменён на %d", s.name, chunkSize, normalized)
	}
	if capacityHint < 0 {
		capacityHint = 0
	}

	s.mu.Lock()
	wiped := s.sortedLocked(nil)
	s.chunkSize = normalized
	s.origin = origin
	s.nextIndex = 0
	s.zones = make(map[Locator]*Registration, capacityHint)
	s.placements = make(map[placementKey]*Registration, capacityHint)
	s.instances = newIDTable(capacityHint)
	s.initialized = true
	s.mu.Unlock()

	if len(wiped) > 0 {
		s.logger.Warn("хранилище %s: повторная инициализация стёрла %d зон", s.name, len(wiped))
		for _, reg := range wiped {
			s.notify(EventRemoved, reg)
		}
	}

	s.logger.Info("🗺️ Хранилище зон %s готово: чанк %d, начало %s", s.name, normalized, origin)
	return nil
}

// Initialized сообщает, вызывался ли Initialize
func (s *Store) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// ChunkSize возвращает размер чанка
func (s *Store) ChunkSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chunkSize
}

// Origin возвращает начало координат мира
func (s *Store) Origin() vec.Vec2 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.origin
}

// Align выравнивает позицию по настройкам хранилища
func (s *Store) Align(pos vec.Vec2) vec.Vec2 {
	cs, origin := s.config()
	return Align(pos, origin, cs)
}

// IsAligned проверяет выравнивание по настройкам хранилища
func (s *Store) IsAligned(pos vec.Vec2) bool {
	cs, origin := s.config()
	return IsAligned(pos, origin, cs)
}

// LocatorFor строит локатор по настройкам хранилища
func (s *Store) LocatorFor(pos, dims vec.Vec2, align bool) Locator {
	cs, origin := s.config()
	return LocatorFor(pos, origin, cs, dims, align)
}

// ManagedLayers возвращает слои, которые очищаются при выгрузке
func (s *Store) ManagedLayers() []string {
	if s.layers == nil {
		return nil
	}
	return s.layers.ManagedLayers()
}

// Add регистрирует зону и назначает ей следующий Index
func (s *Store) Add(reg *Registration) error {
	if err := s.guard(); err != nil {
		return s.reject("add", err)
	}
	if reg == nil {
		return s.reject("add", ErrNilRegistration)
	}
	if reg.Reserved && reg.Immortal {
		return s.reject("add", fmt.Errorf("%w: %s", ErrReservedImmortal, reg.Locator))
	}
	if reg.Locator.Empty() {
		return s.reject("add", fmt.Errorf("%w: %s", ErrInvalidLocator, reg.Locator))
	}

	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return s.reject("add", ErrNotInitialized)
	}
	if existing, ok := s.zones[reg.Locator]; ok {
		s.mu.Unlock()
		return s.reject("add", fmt.Errorf("%w: %s занят зоной #%d", ErrDuplicateLocator, reg.Locator, existing.Index))
	}
	key, keyed := placementOf(reg)
	if keyed {
		if existing, ok := s.placements[key]; ok {
			s.mu.Unlock()
			return s.reject("add", fmt.Errorf("%w: %s в %s (зона #%d)",
				ErrDuplicatePlacement, reg.SourceAssetID, reg.PlacementOffset, existing.Index))
		}
		s.placements[key] = reg
	}

	s.nextIndex++
	reg.Index = s.nextIndex
	s.zones[reg.Locator] = reg
	bound := s.instances.bind(reg)
	s.mu.Unlock()

	s.logger.Debug("хранилище %s: добавлена зона %s, экземпляров %d", s.name, reg, bound)
	s.notify(EventAdded, reg)
	return nil
}

// Remove удаляет зону из учёта. Для reserved-зон это и есть вся выгрузка.
func (s *Store) Remove(reg *Registration) error {
	if err := s.guard(); err != nil {
		return s.reject("remove", err)
	}
	if reg == nil {
		return s.reject("remove", ErrNilRegistration)
	}

	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return s.reject("remove", ErrNotInitialized)
	}
	stored, ok := s.zones[reg.Locator]
	if !ok {
		s.mu.Unlock()
		return s.reject("remove", fmt.Errorf("%w: %s", ErrNotFound, reg.Locator))
	}
	delete(s.zones, stored.Locator)
	if key, keyed := placementOf(stored); keyed && s.placements[key] == stored {
		delete(s.placements, key)
	}
	unbound := s.instances.unbind(stored)
	s.mu.Unlock()

	s.logger.Debug("хранилище %s: удалена зона %s, снято экземпляров %d", s.name, stored, unbound)
	s.notify(EventRemoved, stored)
	return nil
}

// Unload очищает содержимое зоны и снимает её с учёта.
// Reserved-зоны только снимаются с учёта, исполнитель не вызывается.
// Ошибка исполнителя прерывает выгрузку, регистрация остаётся.
func (s *Store) Unload(reg *Registration, destroyContent, destroyEntities bool) error {
	if err := s.guard(); err != nil {
		return s.reject("unload", err)
	}
	if reg == nil {
		return s.reject("unload", ErrNilRegistration)
	}

	s.mu.RLock()
	initialized := s.initialized
	stored := s.zones[reg.Locator]
	s.mu.RUnlock()

	if !initialized {
		return s.reject("unload", ErrNotInitialized)
	}
	if stored == nil {
		return s.reject("unload", fmt.Errorf("%w: %s", ErrNotFound, reg.Locator))
	}
	if stored.Reserved {
		return s.Remove(stored)
	}

	if err := s.ClearContent(stored, destroyContent, destroyEntities); err != nil {
		return s.reject("unload", err)
	}
	return s.Remove(stored)
}

// ClearContent стирает содержимое зоны через исполнитель, не трогая учёт.
// Нужен и для отката загрузки, которую не удалось зарегистрировать.
func (s *Store) ClearContent(reg *Registration, destroyContent, destroyEntities bool) error {
	if reg == nil {
		return ErrNilRegistration
	}
	if reg.Reserved {
		return nil
	}

	needEntities := destroyEntities && len(reg.SpawnedEntities) > 0
	if (destroyContent || needEntities) && s.unloader == nil {
		return ErrNoUnloader
	}

	if destroyContent {
		region := reg.EraseRegion()
		if !region.Empty() {
			for _, layer := range s.ManagedLayers() {
				if err := s.unloader.ClearRegion(layer, region); err != nil {
					return fmt.Errorf("очистка слоя %s в %s: %w", layer, region, err)
				}
			}
		}
	}

	if needEntities {
		if err := s.unloader.DestroyEntities(reg.SpawnedEntities); err != nil {
			return fmt.Errorf("удаление %d сущностей зоны %s: %w", len(reg.SpawnedEntities), reg.Locator, err)
		}
		reg.SpawnedEntities = nil
	}
	return nil
}

// Query возвращает регистрацию в локаторе
func (s *Store) Query(loc Locator) (*Registration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reg, ok := s.zones[loc]
	return reg, ok
}

// Contains проверяет, занят ли локатор
func (s *Store) Contains(loc Locator) bool {
	_, ok := s.Query(loc)
	return ok
}

// FindByPlacement ищет зону по вторичному ключу (ассет, смещение)
func (s *Store) FindByPlacement(assetID string, offset vec.Vec2) (*Registration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reg, ok := s.placements[placementKey{assetID: assetID, offset: offset}]
	return reg, ok
}

// LookupInstance находит экземпляр по идентификатору, выданному при загрузке
func (s *Store) LookupInstance(id string) (InstanceRef, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.instances.lookup(id)
}

// InstanceCount возвращает размер таблицы идентификаторов
func (s *Store) InstanceCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.instances.len()
}

// RegionQuery возвращает все зоны, пересекающие loc, по возрастанию Index
func (s *Store) RegionQuery(loc Locator) []*Registration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedLocked(func(reg *Registration) bool {
		return reg.Locator.Overlaps(loc)
	})
}

// Partition за один проход делит зоны на пересекающие viewport (их локаторы)
// и лежащие вне его (сами регистрации, по возрастанию Index).
func (s *Store) Partition(viewport Locator) (map[Locator]struct{}, []*Registration) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inside := make(map[Locator]struct{}, len(s.zones))
	var outside []*Registration
	for loc, reg := range s.zones {
		if loc.Overlaps(viewport) {
			inside[loc] = struct{}{}
		} else {
			outside = append(outside, reg)
		}
	}
	sortByIndex(outside)
	return inside, outside
}

// All возвращает все зоны по возрастанию Index
func (s *Store) All() []*Registration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedLocked(nil)
}

// LastN возвращает n последних добавленных зон по возрастанию Index
func (s *Store) LastN(n int) []*Registration {
	if n <= 0 {
		return nil
	}
	all := s.All()
	if n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

// Last возвращает последнюю добавленную зону
func (s *Store) Last() (*Registration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last *Registration
	for _, reg := range s.zones {
		if last == nil || reg.Index > last.Index {
			last = reg
		}
	}
	return last, last != nil
}

// Len возвращает число зон
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.zones)
}

// Subscribe добавляет обработчик уведомлений. Обработчики вызываются
// синхронно в порядке подписки.
func (s *Store) Subscribe(fn Handler) Subscription {
	if fn == nil {
		return Subscription{}
	}
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.nextHandler++
	s.handlers = append(s.handlers, handlerEntry{id: s.nextHandler, fn: fn})
	return Subscription{store: s, id: s.nextHandler}
}

func (s *Store) unsubscribe(id uint64) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	for i, h := range s.handlers {
		if h.id == id {
			s.handlers = append(s.handlers[:i], s.handlers[i+1:]...)
			return
		}
	}
}

func (s *Store) notify(t EventType, reg *Registration) {
	s.handlersMu.RLock()
	handlers := make([]handlerEntry, len(s.handlers))
	copy(handlers, s.handlers)
	s.handlersMu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	s.notifying.Add(1)
	defer s.notifying.Add(-1)

	ev := Event{Type: t, Store: s.name, Registration: reg}
	for _, h := range handlers {
		h.fn(ev)
	}
}

func (s *Store) guard() error {
	if s.notifying.Load() > 0 {
		return ErrReentrant
	}
	return nil
}

func (s *Store) reject(op string, err error) error {
	s.logger.Error("хранилище %s: %s: %v", s.name, op, err)
	return err
}

func (s *Store) config() (int, vec.Vec2) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chunkSize, s.origin
}

func (s *Store) sortedLocked(keep func(*Registration) bool) []*Registration {
	out := make([]*Registration, 0, len(s.zones))
	for _, reg := range s.zones {
		if keep == nil || keep(reg) {
			out = append(out, reg)
		}
	}
	sortByIndex(out)
	return out
}

func placementOf(reg *Registration) (placementKey, bool) {
	if reg.Reserved || reg.SourceAssetID == "" {
		return placementKey{}, false
	}
	return placementKey{assetID: reg.SourceAssetID, offset: reg.PlacementOffset}, true
}

func sortByIndex(regs []*Registration) {
	sort.Slice(regs, func(i, j int) bool {
		return regs[i].Index < regs[j].Index
	})
}
