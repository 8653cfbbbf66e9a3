package observability

import (
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/process"
)

// ProcessCollector отдаёт в Prometheus загрузку CPU и память процесса стримера
type ProcessCollector struct {
	proc    *process.Process
	cpu     *prometheus.Desc
	rss     *prometheus.Desc
	threads *prometheus.Desc
}

// NewProcessCollector создаёт коллектор для текущего процесса
func NewProcessCollector() (*ProcessCollector, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &ProcessCollector{
		proc:    proc,
		cpu:     prometheus.NewDesc("chunkstream_process_cpu_percent", "Загрузка CPU процессом", nil, nil),
		rss:     prometheus.NewDesc("chunkstream_process_rss_bytes", "Резидентная память процесса", nil, nil),
		threads: prometheus.NewDesc("chunkstream_process_threads", "Число потоков процесса", nil, nil),
	}, nil
}

// Describe реализует prometheus.Collector
func (c *ProcessCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.cpu
	ch <- c.rss
	ch <- c.threads
}

// Collect реализует prometheus.Collector. Недоступные значения пропускаются.
func (c *ProcessCollector) Collect(ch chan<- prometheus.Metric) {
	if pct, err := c.proc.CPUPercent(); err == nil {
		ch <- prometheus.MustNewConstMetric(c.cpu, prometheus.GaugeValue, pct)
	}
	if mem, err := c.proc.MemoryInfo(); err == nil && mem != nil {
		ch <- prometheus.MustNewConstMetric(c.rss, prometheus.GaugeValue, float64(mem.RSS))
	}
	if n, err := c.proc.NumThreads(); err == nil {
		ch <- prometheus.MustNewConstMetric(c.threads, prometheus.GaugeValue, float64(n))
	}
}
