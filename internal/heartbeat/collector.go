package heartbeat

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var componentUpDesc = prometheus.NewDesc(
	"edge_console_component_up",
	"1 when the console component is healthy or starting, 0 otherwise.",
	[]string{"component", "state"},
	nil,
)

var componentFailuresDesc = prometheus.NewDesc(
	"edge_console_component_consecutive_failures",
	"Consecutive failures reported by the console component.",
	[]string{"component"},
	nil,
)

// Collector exposes registry state as Prometheus metrics at scrape time.
type Collector struct {
	registry   *Registry
	staleAfter time.Duration
}

func NewCollector(registry *Registry, staleAfter time.Duration) *Collector {
	return &Collector{registry: registry, staleAfter: staleAfter}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- componentUpDesc
	ch <- componentFailuresDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.registry == nil {
		return
	}
	for _, component := range c.registry.Snapshot(c.staleAfter).Components {
		up := 0.0
		switch component.State {
		case StateHealthy, StateStarting:
			up = 1
		}
		ch <- prometheus.MustNewConstMetric(componentUpDesc, prometheus.GaugeValue, up, component.Name, component.State)
		ch <- prometheus.MustNewConstMetric(componentFailuresDesc, prometheus.GaugeValue, float64(component.Failures), component.Name)
	}
}
