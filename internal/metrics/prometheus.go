package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Collector mirrors emitted metrics into a Prometheus registry so a batch
// run can leave a textfile for node_exporter.
type Collector struct {
	registry *prometheus.Registry
	counters *prometheus.CounterVec
	gauges   *prometheus.GaugeVec
	id       MetricHandlerID
}

// NewCollector registers a metric handler feeding a fresh registry.
func NewCollector(namespace string) *Collector {
	namespace = strings.ToLower(strings.ReplaceAll(namespace, "-", "_"))
	if namespace == "" {
		namespace = "optionsflow"
	}
	labels := []string{"component", "metric", "reason"}
	c := &Collector{
		registry: prometheus.NewRegistry(),
		counters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Counter metrics emitted by pipeline components.",
		}, labels),
		gauges: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gauge",
			Help:      "Gauge metrics emitted by pipeline components.",
		}, labels),
	}
	c.registry.MustRegister(c.counters, c.gauges, collectors.NewGoCollector())
	c.id = RegisterMetricHandler(c.observe)
	return c
}

func (c *Collector) observe(m Metric) {
	v, ok := m.Float64()
	if !ok {
		return
	}
	reason, _ := m.Fields["reason"].(string)
	if m.Type == "counter" {
		if v < 0 {
			return
		}
		c.counters.WithLabelValues(m.Component, m.Name, reason).Add(v)
		return
	}
	c.gauges.WithLabelValues(m.Component, m.Name, reason).Set(v)
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Close stops receiving metrics.
func (c *Collector) Close() {
	UnregisterMetricHandler(c.id)
}

// WriteTextfile writes the registry in the text exposition format.
func (c *Collector) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create textfile directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write prometheus textfile: %w", err)
	}
	return nil
}
