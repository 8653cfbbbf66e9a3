package storage

import (
	"context"
	"sort"
	"sync"
)

// MemorySnapshotRepo - in-memory реализация SnapshotRepo для тестов и локального запуска
type MemorySnapshotRepo struct {
	mu        sync.RWMutex
	snapshots map[string][]byte
	closed    bool
}

// NewMemorySnapshotRepo создаёт пустое хранилище
func NewMemorySnapshotRepo() *MemorySnapshotRepo {
	return &MemorySnapshotRepo{snapshots: make(map[string][]byte)}
}

// Save сохраняет копию данных
func (r *MemorySnapshotRepo) Save(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	r.snapshots[name] = append([]byte(nil), data...)
	return nil
}

// Load возвращает копию данных
func (r *MemorySnapshotRepo) Load(ctx context.Context, name string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, false, ErrClosed
	}
	data, ok := r.snapshots[name]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

// Delete удаляет снимок
func (r *MemorySnapshotRepo) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	delete(r.snapshots, name)
	return nil
}

// List возвращает имена снимков
func (r *MemorySnapshotRepo) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, ErrClosed
	}
	names := make([]string, 0, len(r.snapshots))
	for name := range r.snapshots {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Close закрывает хранилище
func (r *MemorySnapshotRepo) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}
