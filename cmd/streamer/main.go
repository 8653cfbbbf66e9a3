package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/annel0/chunkstream/internal/assets"
	"github.com/annel0/chunkstream/internal/config"
	"github.com/annel0/chunkstream/internal/logging"
	"github.com/annel0/chunkstream/internal/notify"
	"github.com/annel0/chunkstream/internal/observability"
	"github.com/annel0/chunkstream/internal/persistence"
	"github.com/annel0/chunkstream/internal/selector"
	"github.com/annel0/chunkstream/internal/storage"
	"github.com/annel0/chunkstream/internal/streaming"
	"github.com/annel0/chunkstream/internal/tilemap"
	"github.com/annel0/chunkstream/internal/vec"
	"github.com/annel0/chunkstream/internal/zone"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (по умолчанию STREAMER_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	if err := setupLogging(cfg.Logging); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()
	defer logging.GetLoggerManager().CloseAll()

	logging.Info("🎮 Запуск стримера зон: хранилище %s, чанк %d", cfg.Streaming.StoreName, cfg.Streaming.GetChunkSize())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.Error("❌ Стример остановлен с ошибкой: %v", err)
		os.Exit(1)
	}
	logging.Info("👋 Стример успешно остановлен")
}

func setupLogging(cfg config.LoggingConfig) error {
	consoleLevel, err := logging.ParseLevel(cfg.ConsoleLevel)
	if err != nil {
		return err
	}
	fileLevel, err := logging.ParseLevel(cfg.FileLevel)
	if err != nil {
		return err
	}
	logging.Configure(logging.Options{
		Dir:          cfg.Dir,
		MaxSizeMB:    cfg.MaxSizeMB,
		MaxBackups:   cfg.MaxBackups,
		MaxAgeDays:   cfg.MaxAgeDays,
		Compress:     cfg.Compress,
		ConsoleLevel: consoleLevel,
		FileLevel:    fileLevel,
	})
	return logging.InitDefaultLogger("streamer")
}

func openRepo(ctx context.Context, cfg *config.Config) (storage.SnapshotRepo, error) {
	var repo storage.SnapshotRepo
	switch cfg.Storage.Backend {
	case "badger":
		r, err := storage.NewBadgerSnapshotRepo(cfg.Storage.DataPath)
		if err != nil {
			return nil, err
		}
		repo = r
	case "redis":
		r, err := storage.NewRedisSnapshotRepo(ctx, &storage.RedisConfig{
			Addr:      cfg.Redis.GetRedisAddr(),
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       cfg.Redis.TTL,
		})
		if err != nil {
			return nil, err
		}
		repo = r
	default:
		repo = storage.NewMemorySnapshotRepo()
	}

	if cfg.Storage.Compress {
		repo = storage.NewCompressedRepo(repo)
	}
	return repo, nil
}

func openCatalog(cfg config.AssetsConfig) (assets.Catalog, func(), error) {
	base, err := assets.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, nil, err
	}
	logging.Info("📦 Каталог ассетов загружен: %d шт. из %s", base.Len(), cfg.CatalogPath)

	if cfg.CacheTiles <= 0 {
		return base, func() {}, nil
	}
	cached, err := assets.NewCachedCatalog(base, cfg.CacheTiles)
	if err != nil {
		return nil, nil, err
	}
	return cached, cached.Close, nil
}

func serveMetrics(port int) *http.Server {
	router := observability.NewMetricsRouter("chunkstream", prometheus.DefaultGatherer, prometheus.DefaultRegisterer)
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: router}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("❌ Ошибка сервера метрик: %v", err)
		}
	}()
	logging.Info("📊 Метрики Prometheus: http://localhost:%d/metrics", port)
	return srv
}

func run(ctx context.Context, cfg *config.Config) error {
	sc := cfg.Streaming

	repo, err := openRepo(ctx, cfg)
	if err != nil {
		return fmt.Errorf("хранилище снимков: %w", err)
	}
	defer repo.Close()

	catalog, closeCatalog, err := openCatalog(cfg.Assets)
	if err != nil {
		return fmt.Errorf("каталог ассетов: %w", err)
	}
	defer closeCatalog()

	world := tilemap.NewWorld(sc.Layers...)
	executor := tilemap.NewExecutor(world, catalog)

	store := zone.NewStore(sc.StoreName, world, world)
	origin := vec.Vec2{X: sc.OriginX, Y: sc.OriginY}
	if err := store.Initialize(sc.GetChunkSize(), origin, 256); err != nil {
		return err
	}

	registry := zone.NewRegistry()
	if err := registry.Register(store); err != nil {
		return err
	}

	if cfg.NATS.Enabled {
		pub, err := notify.Connect(&notify.Config{
			URL:           cfg.NATS.GetURL(),
			Subject:       cfg.NATS.Subject,
			NodeID:        cfg.NATS.NodeID,
			MaxReconnects: cfg.NATS.MaxReconnects,
			ReconnectWait: cfg.NATS.ReconnectWait,
		})
		if err != nil {
			logging.Warn("⚠️ NATS недоступен, уведомления о зонах отключены: %v", err)
		} else {
			pub.Attach(store)
			defer pub.Close()
		}
	}

	if cfg.Telemetry.Enabled {
		shutdown, err := observability.InitTelemetry(ctx, "chunkstream", cfg.Telemetry.Endpoint, cfg.Telemetry.Insecure)
		if err != nil {
			logging.Warn("⚠️ Трассировка отключена: %v", err)
		} else {
			defer shutdown(context.Background())
		}
	}

	var metrics *streaming.Metrics
	if cfg.Metrics.Enabled {
		metrics = streaming.NewMetrics(prometheus.DefaultRegisterer, store.Name())
		if pc, err := observability.NewProcessCollector(); err != nil {
			logging.Warn("метрики процесса недоступны: %v", err)
		} else if err := prometheus.Register(pc); err != nil {
			logging.Warn("метрики процесса не зарегистрированы: %v", err)
		}
		srv := serveMetrics(cfg.Metrics.GetMetricsPort())
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	sel := selector.New(catalog, selector.Options{
		Seed:           sc.Seed,
		Scale:          selector.DefaultOptions().Scale,
		EmptyThreshold: sc.EmptyThreshold,
		Rotate:         true,
	})

	viewport := streaming.FixedViewport{Extent: vec.Vec2{X: sc.ViewportWidth, Y: sc.ViewportHeight}}
	ctrl, err := streaming.New(store, sel, executor, viewport, streaming.Options{
		DefaultPadding:      vec.Vec2{X: sc.Padding, Y: sc.Padding},
		DefaultChunksInView: sc.ChunksInView,
		Registry:            registry,
		Metrics:             metrics,
	})
	if err != nil {
		return err
	}

	codec := persistence.NewCodec(executor, catalog)
	if err := restoreSnapshot(ctx, repo, codec, store, cfg.Storage.Snapshot); err != nil {
		return err
	}

	save := func() {
		if err := saveSnapshot(context.Background(), repo, codec, store, cfg.Storage); err != nil {
			logging.Error("❌ Не удалось сохранить снимок %s: %v", cfg.Storage.Snapshot, err)
		}
	}
	defer save()

	if sc.TickInterval <= 0 {
		sc.TickInterval = config.Default().Streaming.TickInterval
	}
	ticker := time.NewTicker(sc.TickInterval)
	defer ticker.Stop()
	var saveTick <-chan time.Time
	if cfg.Storage.SaveInterval > 0 {
		saver := time.NewTicker(cfg.Storage.SaveInterval)
		defer saver.Stop()
		saveTick = saver.C
	}

	logging.Info("✅ Стример запущен, тик каждые %v", sc.TickInterval)
	tickLoop(ctx, ticker.C, saveTick, sc.Ticks, save, func(step int) {
		center := walk(step, sc.GetChunkSize())
		if _, err := ctrl.UpdateTick(center, streaming.TickOptions{}); err != nil {
			logging.Warn("тик %d пропущен: %v", step, err)
			return
		}
		report := ctrl.LastReport()
		if report.Loaded > 0 || report.Unloaded > 0 {
			logging.Info("🔄 %s, тайлов: %v, активных ассетов: %d", report, world.Stats(), len(ctrl.UsedAssets()))
		}
	})
	return nil
}

// tickLoop вызывает tick на каждый сигнал ticks и save на каждый сигнал saves.
// Сохранение не считается тиком. maxTicks == 0 - до отмены ctx.
func tickLoop(ctx context.Context, ticks, saves <-chan time.Time, maxTicks int, save func(), tick func(step int)) {
	for step := 0; maxTicks == 0 || step < maxTicks; {
		select {
		case <-ctx.Done():
			logging.Info("📡 Получен сигнал остановки")
			return
		case <-saves:
			save()
			continue
		case <-ticks:
		}
		tick(step)
		step++
	}
}

// walk ведёт камеру по синусоиде вдоль оси X
func walk(step, chunkSize int) vec.Vec2Float {
	x := float64(step*chunkSize) / 4
	y := math.Sin(float64(step)/20) * float64(chunkSize*3)
	return vec.Vec2Float{X: x, Y: y}
}

func restoreSnapshot(ctx context.Context, repo storage.SnapshotRepo, codec *persistence.Codec, store *zone.Store, name string) error {
	data, found, err := repo.Load(ctx, name)
	if err != nil {
		return fmt.Errorf("чтение снимка %s: %w", name, err)
	}
	if !found {
		logging.Info("💾 Снимок %s не найден, начинаем с пустого мира", name)
		return nil
	}

	results, err := codec.Restore(data, store, nil, nil)
	if err != nil {
		logging.Warn("⚠️ Снимок %s повреждён и пропущен: %v", name, err)
		return nil
	}
	failed := 0
	for _, r := range results {
		if !r.OK() {
			failed++
		}
	}
	logging.Info("💾 Снимок %s: восстановлено %d из %d зон", name, len(results)-failed, len(results))
	return nil
}

func saveSnapshot(ctx context.Context, repo storage.SnapshotRepo, codec *persistence.Codec, store *zone.Store, cfg config.StorageConfig) error {
	data, err := codec.Serialize(store, cfg.Pretty)
	if err != nil {
		return err
	}
	if err := repo.Save(ctx, cfg.Snapshot, data); err != nil {
		return err
	}
	logging.Debug("снимок %s сохранён: %d зон, %d байт", cfg.Snapshot, store.Len(), len(data))
	return nil
}
