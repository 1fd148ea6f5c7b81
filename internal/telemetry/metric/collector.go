package metric

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/procfs"

	"github.com/yndnr/admin-sidecar/internal/core/domain"
)

var (
	uptimeDesc = prometheus.NewDesc(
		"admin_service_uptime_seconds",
		"Whole seconds since the admin sidecar started.",
		nil, nil,
	)
	pidDesc = prometheus.NewDesc(
		"monitored_service_pid",
		"PID of the monitored service.",
		nil, nil,
	)
	memoryDesc = prometheus.NewDesc(
		"monitored_service_memory_bytes",
		"Resident set size of the monitored service in bytes.",
		nil, nil,
	)
	cpuDesc = prometheus.NewDesc(
		"monitored_service_cpu_seconds_total",
		"User and system CPU time consumed by the monitored service.",
		nil, nil,
	)
	threadsDesc = prometheus.NewDesc(
		"monitored_service_thread_count",
		"Number of threads of the monitored service.",
		nil, nil,
	)
	selfThreadsDesc = prometheus.NewDesc(
		"admin_service_thread_count",
		"Number of threads of the admin sidecar.",
		nil, nil,
	)
)

// ProcessCollector reads the monitored service and the sidecar itself from
// procfs at scrape time.
//
// A failed read drops the affected metrics from that scrape. Values are
// never zero-filled.
type ProcessCollector struct {
	fs      *procfs.FS
	runtime domain.Runtime
	now     func() time.Time
	logger  *slog.Logger
}

// ProcessCollectorOption configures a ProcessCollector.
type ProcessCollectorOption func(*ProcessCollector)

// WithNow sets the clock used for the uptime metric.
func WithNow(now func() time.Time) ProcessCollectorOption {
	return func(c *ProcessCollector) {
		c.now = now
	}
}

// WithLogger sets the logger for procfs read failures.
func WithLogger(logger *slog.Logger) ProcessCollectorOption {
	return func(c *ProcessCollector) {
		c.logger = logger
	}
}

// WithProcFS reads processes from the given procfs mount instead of /proc.
func WithProcFS(fs procfs.FS) ProcessCollectorOption {
	return func(c *ProcessCollector) {
		c.fs = &fs
	}
}

// NewProcessCollector creates a collector for rt.
func NewProcessCollector(rt domain.Runtime, opts ...ProcessCollectorOption) (*ProcessCollector, error) {
	c := &ProcessCollector{
		runtime: rt,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.fs == nil {
		fs, err := procfs.NewDefaultFS()
		if err != nil {
			return nil, err
		}
		c.fs = &fs
	}
	return c, nil
}

// Describe implements prometheus.Collector.
func (c *ProcessCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- uptimeDesc
	ch <- pidDesc
	ch <- memoryDesc
	ch <- cpuDesc
	ch <- threadsDesc
	ch <- selfThreadsDesc
}

// Collect implements prometheus.Collector.
func (c *ProcessCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(uptimeDesc, prometheus.GaugeValue,
		float64(c.runtime.Clock.Uptime(c.now())))
	ch <- prometheus.MustNewConstMetric(pidDesc, prometheus.GaugeValue,
		float64(c.runtime.Process.PID))

	c.collectService(ch)
	c.collectSelf(ch)
}

func (c *ProcessCollector) collectService(ch chan<- prometheus.Metric) {
	pid := c.runtime.Process.PID
	if pid <= 0 {
		return
	}

	proc, err := c.fs.Proc(pid)
	if err != nil {
		c.logger.Debug("monitored service not readable", "pid", pid, "error", err)
		return
	}

	if status, err := proc.NewStatus(); err == nil {
		ch <- prometheus.MustNewConstMetric(memoryDesc, prometheus.GaugeValue, float64(status.VmRSS))
	} else {
		c.logger.Debug("read process status failed", "pid", pid, "error", err)
	}

	if stat, err := proc.Stat(); err == nil {
		ch <- prometheus.MustNewConstMetric(cpuDesc, prometheus.CounterValue, stat.CPUTime())
		ch <- prometheus.MustNewConstMetric(threadsDesc, prometheus.GaugeValue, float64(stat.NumThreads))
	} else {
		c.logger.Debug("read process stat failed", "pid", pid, "error", err)
	}
}

func (c *ProcessCollector) collectSelf(ch chan<- prometheus.Metric) {
	self, err := c.fs.Self()
	if err != nil {
		c.logger.Debug("own process not readable", "error", err)
		return
	}
	stat, err := self.Stat()
	if err != nil {
		c.logger.Debug("read own stat failed", "error", err)
		return
	}
	ch <- prometheus.MustNewConstMetric(selfThreadsDesc, prometheus.GaugeValue, float64(stat.NumThreads))
}
