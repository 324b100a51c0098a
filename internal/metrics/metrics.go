// Package metrics exposes recordb's lifecycle events as Prometheus
// instruments: ingest throughput, fast-path hit/miss counts, the
// cumulative number of tombstone marks, and query latency. It subscribes to the same observability.Dispatcher
// every other observer does, so wiring it in costs the caller nothing
// beyond a Register call.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/leengari/recordb/internal/observability"
)

// Collector is an observability.Observer that also implements
// prometheus.Collector, so it can be registered with a
// prometheus.Registry directly.
type Collector struct {
	recordsIngested prometheus.Counter
	ingestBatches   prometheus.Counter
	fastPathHits    prometheus.Counter
	fastPathMisses  prometheus.Counter
	tombstones      prometheus.Counter
	queryDuration   prometheus.Histogram

	queryStarted map[string]time.Time
}

// New creates a Collector with every instrument registered under the
// recordb_ namespace.
func New() *Collector {
	return &Collector{
		recordsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "recordb", Name: "records_ingested_total",
			Help: "Total records appended to the record log.",
		}),
		ingestBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "recordb", Name: "ingest_batches_total",
			Help: "Total Ingest/IngestWithSource calls.",
		}),
		fastPathHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "recordb", Name: "fast_path_hits_total",
			Help: "Queries served by the fast path without touching the embedded engine.",
		}),
		fastPathMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "recordb", Name: "fast_path_misses_total",
			Help: "Queries that fell through to the embedded engine.",
		}),
		tombstones: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "recordb", Name: "tombstones_marked_total",
			Help: "Total mark_deleted calls across every table.",
		}),
		queryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "recordb", Name: "query_duration_seconds",
			Help:    "Query wall-clock time from query_start to query_end.",
			Buckets: prometheus.DefBuckets,
		}),
		queryStarted: make(map[string]time.Time),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.recordsIngested.Describe(ch)
	c.ingestBatches.Describe(ch)
	c.fastPathHits.Describe(ch)
	c.fastPathMisses.Describe(ch)
	c.tombstones.Describe(ch)
	c.queryDuration.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.recordsIngested.Collect(ch)
	c.ingestBatches.Collect(ch)
	c.fastPathHits.Collect(ch)
	c.fastPathMisses.Collect(ch)
	c.tombstones.Collect(ch)
	c.queryDuration.Collect(ch)
}

// OnEvent implements observability.Observer.
//
// queryStarted is keyed by SQL text rather than a request id: a
// Database is owned by one task at a time, so there is no
// concurrent-query model within one instance; a second query_start
// for the same text before its query_end simply overwrites the start
// time, which is harmless for a latency histogram.
func (c *Collector) OnEvent(event observability.Event) {
	switch event.Type {
	case observability.EventIngestEnd:
		c.ingestBatches.Inc()
		if n, ok := event.Data.(int); ok {
			c.recordsIngested.Add(float64(n))
		}
	case observability.EventFastPathHit:
		c.fastPathHits.Inc()
	case observability.EventFastPathMiss:
		c.fastPathMisses.Inc()
	case observability.EventTombstoneMark:
		c.tombstones.Inc()
	case observability.EventQueryStart:
		if sql, ok := event.Data.(string); ok {
			c.queryStarted[sql] = event.Timestamp
		}
	case observability.EventQueryEnd:
		if sql, ok := event.Data.(string); ok {
			if started, ok := c.queryStarted[sql]; ok {
				c.queryDuration.Observe(event.Timestamp.Sub(started).Seconds())
				delete(c.queryStarted, sql)
			}
		}
	}
}
