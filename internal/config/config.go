package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации стримера
type Config struct {
	Streaming StreamingConfig `yaml:"streaming"`
	Storage   StorageConfig   `yaml:"storage"`
	Redis     RedisConfig     `yaml:"redis"`
	NATS      NATSConfig      `yaml:"nats"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
	Assets    AssetsConfig    `yaml:"assets"`
}

type StreamingConfig struct {
	StoreName      string        `yaml:"store_name"`
	ChunkSize      int           `yaml:"chunk_size"`
	OriginX        int           `yaml:"origin_x"`
	OriginY        int           `yaml:"origin_y"`
	Padding        int           `yaml:"padding"`
	ChunksInView   int           `yaml:"chunks_in_view"`
	ViewportWidth  int           `yaml:"viewport_width"`
	ViewportHeight int           `yaml:"viewport_height"`
	TickInterval   time.Duration `yaml:"tick_interval"`
	Ticks          int           `yaml:"ticks"` // 0 - до сигнала остановки
	Seed           int64         `yaml:"seed"`
	EmptyThreshold float64       `yaml:"empty_threshold"`
	Layers         []string      `yaml:"layers"`
}

type StorageConfig struct {
	Backend      string        `yaml:"backend"` // badger | redis | memory
	DataPath     string        `yaml:"data_path"`
	Snapshot     string        `yaml:"snapshot"`
	Compress     bool          `yaml:"compress"`
	Pretty       bool          `yaml:"pretty"`
	SaveInterval time.Duration `yaml:"save_interval"`
}

type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
}

type NATSConfig struct {
	Enabled       bool          `yaml:"enabled"`
	URL           string        `yaml:"url"`
	Subject       string        `yaml:"subject"`
	NodeID        string        `yaml:"node_id"`
	MaxReconnects int           `yaml:"max_reconnects"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// TelemetryConfig включает экспорт трасс тиков по OTLP
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"` // host:port, пусто - localhost:4318
	Insecure bool   `yaml:"insecure"`
}

type LoggingConfig struct {
	Dir          string `yaml:"dir"`
	ConsoleLevel string `yaml:"console_level"`
	FileLevel    string `yaml:"file_level"`
	MaxSizeMB    int    `yaml:"max_size_mb"`
	MaxBackups   int    `yaml:"max_backups"`
	MaxAgeDays   int    `yaml:"max_age_days"`
	Compress     bool   `yaml:"compress"`
}

type AssetsConfig struct {
	CatalogPath string `yaml:"catalog_path"`
	CacheTiles  int64  `yaml:"cache_tiles"` // 0 - без кеша
}

// Default возвращает конфигурацию для локального запуска
func Default() *Config {
	return &Config{
		Streaming: StreamingConfig{
			StoreName:      "overworld",
			ChunkSize:      16,
			Padding:        1,
			ChunksInView:   2,
			ViewportWidth:  48,
			ViewportHeight: 32,
			TickInterval:   200 * time.Millisecond,
			Seed:           1,
			EmptyThreshold: 0.2,
			Layers:         []string{"ground", "decor"},
		},
		Storage: StorageConfig{
			Backend:      "badger",
			DataPath:     "data",
			Snapshot:     "overworld",
			Compress:     true,
			SaveInterval: 30 * time.Second,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "chunkstream:snapshot:",
		},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			Subject:       "chunkstream.zones",
			MaxReconnects: 10,
			ReconnectWait: 2 * time.Second,
		},
		Metrics:   MetricsConfig{Enabled: true},
		Telemetry: TelemetryConfig{Insecure: true},
		Logging: LoggingConfig{
			Dir:          "logs",
			ConsoleLevel: "info",
			FileLevel:    "debug",
			MaxSizeMB:    50,
			MaxBackups:   5,
			MaxAgeDays:   14,
		},
		Assets: AssetsConfig{
			CatalogPath: "configs/assets.yaml",
			CacheTiles:  1 << 20,
		},
	}
}

// GetMetricsPort возвращает порт метрик с поддержкой fallback значений
func (m *MetricsConfig) GetMetricsPort() int {
	return getIntWithEnvFallback(m.Port, "STREAMER_METRICS_PORT", 2112)
}

// GetChunkSize возвращает размер чанка с поддержкой fallback значений
func (s *StreamingConfig) GetChunkSize() int {
	return getIntWithEnvFallback(s.ChunkSize, "STREAMER_CHUNK_SIZE", 16)
}

// GetRedisAddr возвращает адрес Redis: config -> env -> default
func (r *RedisConfig) GetRedisAddr() string {
	return getStringWithEnvFallback(r.Addr, "STREAMER_REDIS_ADDR", "localhost:6379")
}

// GetURL возвращает адрес NATS: config -> env -> default
func (n *NATSConfig) GetURL() string {
	return getStringWithEnvFallback(n.URL, "STREAMER_NATS_URL", "nats://localhost:4222")
}

// getIntWithEnvFallback возвращает значение с приоритетом: config -> env -> default
func getIntWithEnvFallback(configValue int, envVar string, defaultValue int) int {
	if configValue > 0 {
		return configValue
	}

	if envVal := os.Getenv(envVar); envVal != "" {
		if v, err := strconv.Atoi(envVal); err == nil && v > 0 {
			return v
		}
	}

	return defaultValue
}

func getStringWithEnvFallback(configValue, envVar, defaultValue string) string {
	if configValue != "" {
		return configValue
	}
	if envVal := os.Getenv(envVar); envVal != "" {
		return envVal
	}
	return defaultValue
}

// Load читает YAML файл конфигурации поверх Default().
// Если path == "", пытается прочитать из ENV STREAMER_CONFIG, иначе возвращает Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("STREAMER_CONFIG")
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("ошибка разбора конфигурации %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет значения, без которых стример не запустится
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "badger", "redis", "memory":
	default:
		return fmt.Errorf("неизвестный backend хранилища %q", c.Storage.Backend)
	}
	if c.Streaming.EmptyThreshold < 0 || c.Streaming.EmptyThreshold > 1 {
		return fmt.Errorf("empty_threshold должен быть в диапазоне 0..1, получено %v", c.Streaming.EmptyThreshold)
	}
	if c.Streaming.ViewportWidth < 0 || c.Streaming.ViewportHeight < 0 {
		return fmt.Errorf("размер вьюпорта не может быть отрицательным")
	}
	return nil
}
