package storage

import (
	"context"
	"errors"
)

// ErrClosed возвращается при обращении к закрытому хранилищу
var ErrClosed = errors.New("хранилище снимков закрыто")

// SnapshotRepo хранит сериализованные снимки хранилищ зон по имени.
type SnapshotRepo interface {
	// Save сохраняет снимок, заменяя предыдущий.
	// Параметры:
	//   ctx - контекст для отмены операции
	//   name - имя хранилища зон
	//   data - сериализованный снимок
	Save(ctx context.Context, name string, data []byte) error

	// Load загружает снимок.
	// Возвращает:
	//   []byte - данные снимка
	//   bool - false, если снимка ещё нет (первый запуск)
	//   error - ошибка при загрузке
	Load(ctx context.Context, name string) ([]byte, bool, error)

	// Delete удаляет снимок. Отсутствие снимка ошибкой не считается.
	Delete(ctx context.Context, name string) error

	// List возвращает отсортированные имена сохранённых снимков.
	List(ctx context.Context) ([]string, error)

	Close() error
}
