// Package metrics exports translation pipeline counters as Prometheus
// metrics. The collector reads pipeline snapshots on scrape; it is never
// registered implicitly, callers decide which registry owns it.
package metrics

import (
	prom "github.com/prometheus/client_golang/prometheus"

	"xlate/translate"
)

const namespace = "xlate"

// Collector adapts a Pipeline's counters to the prometheus.Collector
// interface using const metrics, so scraping never synchronizes with the
// translation hot path beyond the relaxed counter loads.
type Collector struct {
	pipeline *translate.Pipeline

	translated   *prom.Desc
	blocks       *prom.Desc
	fallbacks    *prom.Desc
	timeSeconds  *prom.Desc
	cacheHits    *prom.Desc
	cacheMisses  *prom.Desc
	cacheHitRate *prom.Desc
	resultLen    *prom.Desc
}

// NewCollector builds a collector over p.
func NewCollector(p *translate.Pipeline) *Collector {
	return &Collector{
		pipeline: p,
		translated: prom.NewDesc(
			prom.BuildFQName(namespace, "", "instructions_translated_total"),
			"Instructions translated since pipeline creation.", nil, nil),
		blocks: prom.NewDesc(
			prom.BuildFQName(namespace, "", "blocks_total"),
			"Blocks translated or served from the result cache.", nil, nil),
		fallbacks: prom.NewDesc(
			prom.BuildFQName(namespace, "", "register_fallbacks_total"),
			"Register mappings served by the ordinal fallback.", nil, nil),
		timeSeconds: prom.NewDesc(
			prom.BuildFQName(namespace, "", "translation_seconds_total"),
			"Aggregate translation wall time.", nil, nil),
		cacheHits: prom.NewDesc(
			prom.BuildFQName(namespace, "", "cache_hits_total"),
			"Cache hits by cache.", []string{"cache"}, nil),
		cacheMisses: prom.NewDesc(
			prom.BuildFQName(namespace, "", "cache_misses_total"),
			"Cache misses by cache.", []string{"cache"}, nil),
		cacheHitRate: prom.NewDesc(
			prom.BuildFQName(namespace, "", "cache_hit_rate"),
			"Hit rate by cache.", []string{"cache"}, nil),
		resultLen: prom.NewDesc(
			prom.BuildFQName(namespace, "", "result_cache_entries"),
			"Blocks currently in the result cache.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prom.Desc) {
	ch <- c.translated
	ch <- c.blocks
	ch <- c.fallbacks
	ch <- c.timeSeconds
	ch <- c.cacheHits
	ch <- c.cacheMisses
	ch <- c.cacheHitRate
	ch <- c.resultLen
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prom.Metric) {
	s := c.pipeline.Stats()
	r := c.pipeline.HitRates()

	ch <- prom.MustNewConstMetric(c.translated, prom.CounterValue, float64(s.Translated))
	ch <- prom.MustNewConstMetric(c.blocks, prom.CounterValue, float64(s.Blocks))
	ch <- prom.MustNewConstMetric(c.fallbacks, prom.CounterValue, float64(s.MappingFallbacks))
	ch <- prom.MustNewConstMetric(c.timeSeconds, prom.CounterValue, float64(s.TimeNanos)/1e9)

	perCache := []struct {
		name         string
		hits, misses uint64
		hitRate      float64
	}{
		{"encoding", s.EncodingHits, s.EncodingMisses, r.Encoding},
		{"pattern", s.PatternHits, s.PatternMisses, r.Pattern},
		{"register", s.RegisterHits, s.RegisterMisses, r.Register},
		{"result", s.ResultHits, s.ResultMisses, r.Result},
	}
	for _, pc := range perCache {
		ch <- prom.MustNewConstMetric(c.cacheHits, prom.CounterValue, float64(pc.hits), pc.name)
		ch <- prom.MustNewConstMetric(c.cacheMisses, prom.CounterValue, float64(pc.misses), pc.name)
		ch <- prom.MustNewConstMetric(c.cacheHitRate, prom.GaugeValue, pc.hitRate, pc.name)
	}
	ch <- prom.MustNewConstMetric(c.resultLen, prom.GaugeValue, float64(s.ResultLen))
}
