package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/annel0/chunkstream/internal/logging"
)

// RedisConfig содержит настройки подключения к Redis
type RedisConfig struct {
	Addr      string        // Адрес Redis сервера
	Password  string        // Пароль (пустой если не требуется)
	DB        int           // Номер базы данных
	KeyPrefix string        // Префикс для ключей
	TTL       time.Duration // Время жизни снимков, 0 - без срока
}

// DefaultRedisConfig возвращает конфигурацию по умолчанию
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "chunkstream:snapshot:",
	}
}

// RedisSnapshotRepo хранит снимки в Redis, чтобы их видели несколько процессов
type RedisSnapshotRepo struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    *logging.Logger
}

// NewRedisSnapshotRepo подключается к Redis и проверяет соединение
func NewRedisSnapshotRepo(ctx context.Context, config *RedisConfig) (*RedisSnapshotRepo, error) {
	if config == nil {
		config = DefaultRedisConfig()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	repo := &RedisSnapshotRepo{
		client:    client,
		keyPrefix: config.KeyPrefix,
		ttl:       config.TTL,
		logger:    logging.GetStorageLogger(),
	}
	repo.logger.Info("🔴 Connected to Redis at %s", config.Addr)
	return repo, nil
}

// Save сохраняет снимок
func (r *RedisSnapshotRepo) Save(ctx context.Context, name string, data []byte) error {
	if err := r.client.Set(ctx, r.keyPrefix+name, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", name, err)
	}
	return nil
}

// Load загружает снимок
func (r *RedisSnapshotRepo) Load(ctx context.Context, name string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, r.keyPrefix+name).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load snapshot %s: %w", name, err)
	}
	return data, true, nil
}

// Delete удаляет снимок
func (r *RedisSnapshotRepo) Delete(ctx context.Context, name string) error {
	return r.client.Del(ctx, r.keyPrefix+name).Err()
}

// List перечисляет снимки через SCAN
func (r *RedisSnapshotRepo) List(ctx context.Context) ([]string, error) {
	var names []string
	iter := r.client.Scan(ctx, 0, r.keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		names = append(names, strings.TrimPrefix(iter.Val(), r.keyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// Close закрывает соединение
func (r *RedisSnapshotRepo) Close() error {
	return r.client.Close()
}
