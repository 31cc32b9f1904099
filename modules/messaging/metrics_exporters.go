package messaging

// Metrics exporters for fabric delivery statistics.
//
// PrometheusCollector is registered on a prometheus.Registerer and reads
// Stats on every scrape. DatadogStatsdExporter pushes the same counters to a
// DogStatsD endpoint on an interval.

import (
	"context"
	"fmt"
	"time"

	statsd "github.com/DataDog/datadog-go/v5/statsd"
	"github.com/prometheus/client_golang/prometheus"
)

// StatsSource is anything exposing fabric statistics.
type StatsSource interface {
	Stats() Stats
	EngineName() string
}

// PrometheusCollector implements prometheus.Collector for fabric stats:
//
//	<namespace>_published_total{engine="memory"}
//	<namespace>_delivered_total{engine="memory"}
//	<namespace>_dropped_total{engine="memory"}
//	<namespace>_invocations_total{engine="memory"}
//	<namespace>_failed_total{engine="memory"}
type PrometheusCollector struct {
	source          StatsSource
	publishedDesc   *prometheus.Desc
	deliveredDesc   *prometheus.Desc
	droppedDesc     *prometheus.Desc
	invocationsDesc *prometheus.Desc
	failedDesc      *prometheus.Desc
}

// NewPrometheusCollector creates a collector. namespace defaults to
// "fdc3_messaging".
func NewPrometheusCollector(source StatsSource, namespace string) *PrometheusCollector {
	if namespace == "" {
		namespace = "fdc3_messaging"
	}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(fmt.Sprintf("%s_%s_total", namespace, name), help, []string{"engine"}, nil)
	}
	return &PrometheusCollector{
		source:          source,
		publishedDesc:   desc("published", "Total published messages (cumulative)"),
		deliveredDesc:   desc("delivered", "Total delivered messages (cumulative)"),
		droppedDesc:     desc("dropped", "Total dropped messages (cumulative)"),
		invocationsDesc: desc("invocations", "Total service invocations (cumulative)"),
		failedDesc:      desc("failed", "Total failed handlers and invocations (cumulative)"),
	}
}

// Describe sends metric descriptors.
func (c *PrometheusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.publishedDesc
	ch <- c.deliveredDesc
	ch <- c.droppedDesc
	ch <- c.invocationsDesc
	ch <- c.failedDesc
}

// Collect emits the current counters as const metrics.
func (c *PrometheusCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.source.Stats()
	engine := c.source.EngineName()
	ch <- prometheus.MustNewConstMetric(c.publishedDesc, prometheus.CounterValue, float64(s.Published), engine)
	ch <- prometheus.MustNewConstMetric(c.deliveredDesc, prometheus.CounterValue, float64(s.Delivered), engine)
	ch <- prometheus.MustNewConstMetric(c.droppedDesc, prometheus.CounterValue, float64(s.Dropped), engine)
	ch <- prometheus.MustNewConstMetric(c.invocationsDesc, prometheus.CounterValue, float64(s.Invocations), engine)
	ch <- prometheus.MustNewConstMetric(c.failedDesc, prometheus.CounterValue, float64(s.Failed), engine)
}

// DatadogStatsdExporter periodically sends the cumulative counters as gauges
// tagged with engine:<name>.
type DatadogStatsdExporter struct {
	source   StatsSource
	client   statsd.ClientInterface
	interval time.Duration
	baseTags []string
}

// NewDatadogStatsdExporter creates an exporter. addr example: "127.0.0.1:8125".
// prefix defaults to "fdc3_messaging".
func NewDatadogStatsdExporter(source StatsSource, prefix, addr string, interval time.Duration, baseTags []string) (*DatadogStatsdExporter, error) {
	if source == nil {
		return nil, ErrNilEngine
	}
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}
	if prefix == "" {
		prefix = "fdc3_messaging"
	}
	client, err := statsd.New(addr, statsd.WithNamespace(prefix+"."))
	if err != nil {
		return nil, fmt.Errorf("messaging: creating statsd client: %w", err)
	}
	return &DatadogStatsdExporter{
		source:   source,
		client:   client,
		interval: interval,
		baseTags: baseTags,
	}, nil
}

// Run flushes on every tick until ctx is cancelled.
func (e *DatadogStatsdExporter) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.flush()
		}
	}
}

func (e *DatadogStatsdExporter) flush() {
	s := e.source.Stats()
	tags := append(append([]string(nil), e.baseTags...), "engine:"+e.source.EngineName())
	_ = e.client.Gauge("published_total", float64(s.Published), tags, 1)
	_ = e.client.Gauge("delivered_total", float64(s.Delivered), tags, 1)
	_ = e.client.Gauge("dropped_total", float64(s.Dropped), tags, 1)
	_ = e.client.Gauge("invocations_total", float64(s.Invocations), tags, 1)
	_ = e.client.Gauge("failed_total", float64(s.Failed), tags, 1)
}

// Close closes the statsd client.
func (e *DatadogStatsdExporter) Close() error {
	if e == nil || e.client == nil {
		return nil
	}
	if err := e.client.Close(); err != nil {
		return fmt.Errorf("messaging: closing statsd client: %w", err)
	}
	return nil
}
