package pool

import (
	"github.com/prometheus/client_golang/prometheus"
)

// StatusSource is anything that can report pool Status. *Pool[T] satisfies it.
type StatusSource interface {
	Status() Status
}

// Collector exports pool status as Prometheus metrics.
type Collector struct {
	source StatusSource

	maxSize   *prometheus.Desc
	size      *prometheus.Desc
	available *prometheus.Desc
	inUse     *prometheus.Desc
	waiting   *prometheus.Desc
	created   *prometheus.Desc
	recycled  *prometheus.Desc
	discarded *prometheus.Desc
}

// NewCollector creates a collector for source. name is attached to every
// series as the "pool" label so several pools can share a registry.
func NewCollector(namespace, name string, source StatusSource) *Collector {
	labels := prometheus.Labels{"pool": name}
	desc := func(metric, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "pool", metric), help, nil, labels)
	}

	return &Collector{
		source:    source,
		maxSize:   desc("max_size", "Maximum number of objects the pool may hold"),
		size:      desc("size", "Objects currently owned by the pool, idle or in use"),
		available: desc("available", "Idle objects ready to be handed out"),
		inUse:     desc("in_use", "Objects checked out by callers"),
		waiting:   desc("waiting", "Callers waiting for a free slot"),
		created:   desc("created_total", "Objects created by the manager"),
		recycled:  desc("recycled_total", "Objects that passed a recycle check"),
		discarded: desc("discarded_total", "Objects discarded after failing recycle, expiring or pool close"),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.maxSize
	ch <- c.size
	ch <- c.available
	ch <- c.inUse
	ch <- c.waiting
	ch <- c.created
	ch <- c.recycled
	ch <- c.discarded
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.source.Status()

	ch <- prometheus.MustNewConstMetric(c.maxSize, prometheus.GaugeValue, float64(s.MaxSize))
	ch <- prometheus.MustNewConstMetric(c.size, prometheus.GaugeValue, float64(s.Size))
	ch <- prometheus.MustNewConstMetric(c.available, prometheus.GaugeValue, float64(s.Available))
	ch <- prometheus.MustNewConstMetric(c.inUse, prometheus.GaugeValue, float64(s.InUse))
	ch <- prometheus.MustNewConstMetric(c.waiting, prometheus.GaugeValue, float64(s.Waiting))
	ch <- prometheus.MustNewConstMetric(c.created, prometheus.CounterValue, float64(s.Created))
	ch <- prometheus.MustNewConstMetric(c.recycled, prometheus.CounterValue, float64(s.Recycled))
	ch <- prometheus.MustNewConstMetric(c.discarded, prometheus.CounterValue, float64(s.Discarded))
}
