package streaming

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/annel0/chunkstream/internal/logging"
)

// Metrics содержит Prometheus-метрики контроллера
type Metrics struct {
	Ticks          prometheus.Counter
	RejectedTicks  prometheus.Counter
	TickDuration   prometheus.Histogram
	Loaded         prometheus.Counter
	Unloaded       prometheus.Counter
	Reserved       prometheus.Counter
	SelectorErrors prometheus.Counter
	LoadFailures   prometheus.Counter
	UnloadFailures prometheus.Counter
	Zones          prometheus.Gauge
}

// NewMetrics создаёт метрики для хранилища store и регистрирует их в reg.
// Повторная регистрация тех же метрик ошибкой не считается.
func NewMetrics(reg prometheus.Registerer, store string) *Metrics {
	labels := prometheus.Labels{"store": store}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "chunkstream",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
	}

	m := &Metrics{
		Ticks:          counter("ticks_total", "Выполненные тики стриминга"),
		RejectedTicks:  counter("ticks_rejected_total", "Тики, отклонённые из-за уже идущего тика"),
		Loaded:         counter("zones_loaded_total", "Загруженные зоны"),
		Unloaded:       counter("zones_unloaded_total", "Выгруженные зоны"),
		Reserved:       counter("zones_reserved_total", "Зоны, занятые без содержимого"),
		SelectorErrors: counter("selector_errors_total", "Некорректные спецификации от селектора"),
		LoadFailures:   counter("load_failures_total", "Сбои загрузки и регистрации"),
		UnloadFailures: counter("unload_failures_total", "Сбои выгрузки"),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "chunkstream",
			Name:        "tick_duration_seconds",
			Help:        "Длительность тика стриминга",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		Zones: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "chunkstream",
			Name:        "zones",
			Help:        "Зоны в хранилище после последнего тика",
			ConstLabels: labels,
		}),
	}

	if reg == nil {
		return m
	}

	m.Ticks = register(reg, m.Ticks)
	m.RejectedTicks = register(reg, m.RejectedTicks)
	m.TickDuration = register(reg, m.TickDuration)
	m.Loaded = register(reg, m.Loaded)
	m.Unloaded = register(reg, m.Unloaded)
	m.Reserved = register(reg, m.Reserved)
	m.SelectorErrors = register(reg, m.SelectorErrors)
	m.LoadFailures = register(reg, m.LoadFailures)
	m.UnloadFailures = register(reg, m.UnloadFailures)
	m.Zones = register(reg, m.Zones)
	return m
}

// register возвращает уже зарегистрированный экземпляр, если метрика есть в реестре
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing
		}
		return c
	}
	logging.Warn("Не удалось зарегистрировать метрику стриминга: %v", err)
	return c
}

func (m *Metrics) observe(r TickReport, zones int) {
	if m == nil {
		return
	}
	m.Ticks.Inc()
	m.TickDuration.Observe(r.Duration.Seconds())
	m.Loaded.Add(float64(r.Loaded))
	m.Unloaded.Add(float64(r.Unloaded))
	m.Reserved.Add(float64(r.Reserved))
	m.SelectorErrors.Add(float64(r.SelectorErrors))
	m.LoadFailures.Add(float64(r.LoadFailures))
	m.UnloadFailures.Add(float64(r.UnloadFailures))
	m.Zones.Set(float64(zones))
}

func (m *Metrics) rejected() {
	if m == nil {
		return
	}
	m.RejectedTicks.Inc()
}
