package cache

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	hitsDesc   = prometheus.NewDesc("transcoderd_cache_hits_total", "Cache lookups that found a live entry", []string{"backend"}, nil)
	missesDesc = prometheus.NewDesc("transcoderd_cache_misses_total", "Cache lookups that found nothing", []string{"backend"}, nil)
	sizeDesc   = prometheus.NewDesc("transcoderd_cache_entries", "Entries currently held by the cache", []string{"backend"}, nil)
)

// Collector exports the Stats of a Cache on every scrape.
type Collector struct {
	backend string
	cache   Cache
}

// NewCollector returns a collector labelling c with backend.
func NewCollector(backend string, c Cache) *Collector {
	return &Collector{backend: backend, cache: c}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- hitsDesc
	ch <- missesDesc
	ch <- sizeDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.cache.Stats()
	ch <- prometheus.MustNewConstMetric(hitsDesc, prometheus.CounterValue, float64(s.Hits), c.backend)
	ch <- prometheus.MustNewConstMetric(missesDesc, prometheus.CounterValue, float64(s.Misses), c.backend)
	ch <- prometheus.MustNewConstMetric(sizeDesc, prometheus.GaugeValue, float64(s.CurrentSize), c.backend)
}

// Register adds the collector to reg, replacing one registered earlier
// for the same backend.
func Register(reg prometheus.Registerer, backend string, c Cache) error {
	col := NewCollector(backend, c)
	err := reg.Register(col)
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		reg.Unregister(are.ExistingCollector)
		return reg.Register(col)
	}
	return err
}
