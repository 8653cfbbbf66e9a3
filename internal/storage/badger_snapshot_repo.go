package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v3"

	"github.com/annel0/chunkstream/internal/logging"
)

const snapshotKeyPrefix = "snapshot:"

// BadgerSnapshotRepo хранит снимки в BadgerDB
type BadgerSnapshotRepo struct {
	db      *badger.DB
	dbPath  string
	mutex   sync.RWMutex
	isReady bool
	logger  *logging.Logger
}

// NewBadgerSnapshotRepo открывает (или создаёт) базу в dataPath/snapshots
func NewBadgerSnapshotRepo(dataPath string) (*BadgerSnapshotRepo, error) {
	dbPath := filepath.Join(dataPath, "snapshots")
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	repo := &BadgerSnapshotRepo{
		db:      db,
		dbPath:  dbPath,
		isReady: true,
		logger:  logging.GetStorageLogger(),
	}
	repo.logger.Info("🗄️ BadgerDB для снимков открыта: %s", dbPath)
	return repo, nil
}

// Close закрывает базу
func (r *BadgerSnapshotRepo) Close() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if !r.isReady {
		return nil
	}

	r.isReady = false
	return r.db.Close()
}

// Save сохраняет снимок
func (r *BadgerSnapshotRepo) Save(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if !r.isReady {
		return ErrClosed
	}

	err := r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(snapshotKey(name), data)
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения снимка %s: %w", name, err)
	}

	r.logger.Debug("снимок %s сохранён: %d байт", name, len(data))
	return nil
}

// Load загружает снимок
func (r *BadgerSnapshotRepo) Load(ctx context.Context, name string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if !r.isReady {
		return nil, false, ErrClosed
	}

	var data []byte
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey(name))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ошибка загрузки снимка %s: %w", name, err)
	}
	return data, true, nil
}

// Delete удаляет снимок
func (r *BadgerSnapshotRepo) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if !r.isReady {
		return ErrClosed
	}

	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(snapshotKey(name))
	})
}

// List перечисляет сохранённые снимки
func (r *BadgerSnapshotRepo) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if !r.isReady {
		return nil, ErrClosed
	}

	var names []string
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(snapshotKeyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			names = append(names, strings.TrimPrefix(key, snapshotKeyPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка перечисления снимков: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

func snapshotKey(name string) []byte {
	return []byte(snapshotKeyPrefix + name)
}
