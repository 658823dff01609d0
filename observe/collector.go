// Package observe exposes agent state to Prometheus. It only reads counters
// the tracer already maintains and does no aggregation of its own.
package observe

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kzs0/waypoint/trace"
)

// Source is the state a Collector reads on every scrape.
type Source interface {
	ActiveRequests() int64
	Descriptors() int
	ExportedSpans() uint64
	FailedExports() uint64
}

// DropCounter reports spans discarded before export.
type DropCounter interface {
	Dropped() uint64
}

var _ Source = (*trace.Tracer)(nil)

// Collector implements prometheus.Collector over a Source.
type Collector struct {
	source  Source
	dropped DropCounter

	active      *prometheus.Desc
	descriptors *prometheus.Desc
	exported    *prometheus.Desc
	failed      *prometheus.Desc
	drops       *prometheus.Desc
}

// NewCollector returns a collector for source. dropped may be nil.
func NewCollector(source Source, dropped DropCounter, labels prometheus.Labels) *Collector {
	return &Collector{
		source:  source,
		dropped: dropped,
		active: prometheus.NewDesc(
			"waypoint_active_requests",
			"Units of work currently between the entry and exit hooks.",
			nil, labels,
		),
		descriptors: prometheus.NewDesc(
			"waypoint_api_descriptors",
			"Distinct method descriptors registered with the tracer.",
			nil, labels,
		),
		exported: prometheus.NewDesc(
			"waypoint_exported_spans_total",
			"Spans the exporter accepted.",
			nil, labels,
		),
		failed: prometheus.NewDesc(
			"waypoint_failed_exports_total",
			"Spans the exporter rejected.",
			nil, labels,
		),
		drops: prometheus.NewDesc(
			"waypoint_dropped_spans_total",
			"Spans discarded because the export queue was full.",
			nil, labels,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.active
	ch <- c.descriptors
	ch <- c.exported
	ch <- c.failed
	if c.dropped != nil {
		ch <- c.drops
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, float64(c.source.ActiveRequests()))
	ch <- prometheus.MustNewConstMetric(c.descriptors, prometheus.GaugeValue, float64(c.source.Descriptors()))
	ch <- prometheus.MustNewConstMetric(c.exported, prometheus.CounterValue, float64(c.source.ExportedSpans()))
	ch <- prometheus.MustNewConstMetric(c.failed, prometheus.CounterValue, float64(c.source.FailedExports()))
	if c.dropped != nil {
		ch <- prometheus.MustNewConstMetric(c.drops, prometheus.CounterValue, float64(c.dropped.Dropped()))
	}
}
