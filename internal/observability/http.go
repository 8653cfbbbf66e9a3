package observability

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// HTTPMetrics регистрирует базовые HTTP-метрики служебного сервера.
//
// Метрики:
// * <service>_http_request_duration_seconds{method,path,status} - histogram
// * <service>_http_requests_inflight - gauge
// * <service>_http_request_errors_total{method,path,status} - counter (4xx/5xx)
type HTTPMetrics struct {
	reqDuration *prometheus.HistogramVec
	reqInflight prometheus.Gauge
	reqErrors   *prometheus.CounterVec
}

// NewHTTPMetrics создаёт метрики и регистрирует их в reg
func NewHTTPMetrics(service string, reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		reqDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: service,
			Name:      "http_request_duration_seconds",
			Help:      "Длительность HTTP-запросов.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"method", "path", "status"}),
		reqInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: service,
			Name:      "http_requests_inflight",
			Help:      "Текущее количество обрабатываемых HTTP-запросов.",
		}),
		reqErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: service,
			Name:      "http_request_errors_total",
			Help:      "Число запросов, завершившихся ошибкой (4xx/5xx).",
		}, []string{"method", "path", "status"}),
	}

	m.reqDuration = register(reg, m.reqDuration)
	m.reqInflight = register(reg, m.reqInflight)
	m.reqErrors = register(reg, m.reqErrors)
	return m
}

// Handler возвращает gin.HandlerFunc для router.Use()
func (m *HTTPMetrics) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.reqInflight.Inc()
		c.Next()
		m.reqInflight.Dec()

		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path // для не-матченных маршрутов
		}
		method := c.Request.Method

		m.reqDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		if c.Writer.Status() >= 400 {
			m.reqErrors.WithLabelValues(method, path, status).Inc()
		}
	}
}

// NewMetricsRouter собирает gin-роутер служебного сервера: /metrics и /health.
// Метрики отдаются из gatherer, HTTP-метрики самого роутера регистрируются в reg.
func NewMetricsRouter(service string, gatherer prometheus.Gatherer, reg prometheus.Registerer) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(service))
	router.Use(NewHTTPMetrics(service, reg).Handler())

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": service})
	})
	return router
}

// register регистрирует коллектор, а при повторной регистрации возвращает уже существующий
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if reg == nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}
