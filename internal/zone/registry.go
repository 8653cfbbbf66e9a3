package zone

import (
	"fmt"
	"sort"
	"sync"

	"github.com/annel0/chunkstream/internal/logging"
)

// Registry связывает именованные хранилища и общий учёт загруженных ассетов.
// Принадлежит тому, кто собирает систему, и передаётся явно.
type Registry struct {
	mu     sync.RWMutex
	stores map[string]*Store
	subs   map[string]Subscription
	assets map[string]int
	logger *logging.Logger
}

// NewRegistry создаёт пустой реестр
func NewRegistry() *Registry {
	return &Registry{
		stores: make(map[string]*Store),
		subs:   make(map[string]Subscription),
		assets: make(map[string]int),
		logger: logging.GetZoneLogger(),
	}
}

// Register добавляет хранилище и начинает учитывать ассеты его зон
func (r *Registry) Register(store *Store) error {
	if store == nil {
		return ErrNilStore
	}

	r.mu.Lock()
	if _, exists := r.stores[store.Name()]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateStore, store.Name())
	}
	r.stores[store.Name()] = store
	r.mu.Unlock()

	// Зоны, добавленные до регистрации, тоже учитываем
	for _, reg := range store.All() {
		r.retainZone(reg)
	}

	sub := store.Subscribe(func(ev Event) {
		switch ev.Type {
		case EventAdded:
			r.retainZone(ev.Registration)
		case EventRemoved:
			r.releaseZone(ev.Registration)
		}
	})

	r.mu.Lock()
	r.subs[store.Name()] = sub
	r.mu.Unlock()

	r.logger.Info("📚 Хранилище %s зарегистрировано", store.Name())
	return nil
}

// Store возвращает хранилище по имени
func (r *Registry) Store(name string) (*Store, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stores[name]
	return s, ok
}

// Unregister убирает хранилище и снимает учёт его ассетов
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	store, ok := r.stores[name]
	if !ok {
		r.mu.Unlock()
		return false
	}
	sub := r.subs[name]
	delete(r.stores, name)
	delete(r.subs, name)
	r.mu.Unlock()

	sub.Unsubscribe()
	for _, reg := range store.All() {
		r.releaseZone(reg)
	}
	return true
}

// Names возвращает отсортированные имена хранилищ
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.stores))
	for name := range r.stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RetainAsset увеличивает счётчик использования ассета
func (r *Registry) RetainAsset(id string) int {
	if id == "" {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assets[id]++
	return r.assets[id]
}

// ReleaseAsset уменьшает счётчик; при нуле ассет считается выгруженным
func (r *Registry) ReleaseAsset(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.assets[id]
	if !ok {
		return 0
	}
	if n <= 1 {
		delete(r.assets, id)
		return 0
	}
	r.assets[id] = n - 1
	return n - 1
}

// LoadedAssets возвращает отсортированный список используемых ассетов
func (r *Registry) LoadedAssets() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.assets))
	for id := range r.assets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// reserved-зоны содержимого не имеют, ассеты за ними не числятся
func (r *Registry) retainZone(reg *Registration) {
	if reg == nil || reg.Reserved {
		return
	}
	r.RetainAsset(reg.SourceAssetID)
	for _, id := range reg.BundleAssetIDs {
		r.RetainAsset(id)
	}
}

func (r *Registry) releaseZone(reg *Registration) {
	if reg == nil || reg.Reserved {
		return
	}
	r.ReleaseAsset(reg.SourceAssetID)
	for _, id := range reg.BundleAssetIDs {
		r.ReleaseAsset(id)
	}
}
