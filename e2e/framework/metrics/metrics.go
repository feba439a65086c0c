package metrics

import (
	"bytes"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Collector captures run metrics and writes them as a Prometheus text file.
type Collector struct {
	registry         *prometheus.Registry
	scenariosTotal   *prometheus.CounterVec
	stepsTotal       *prometheus.CounterVec
	assertionsTotal  *prometheus.CounterVec
	scenarioDuration *prometheus.HistogramVec
	stepDuration     *prometheus.HistogramVec
	webVitals        *prometheus.GaugeVec
	scenarioInfo     *prometheus.GaugeVec
}

// NewCollector initializes a new metrics registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	collector := &Collector{
		registry: registry,
		scenariosTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "site_e2e_scenarios_total", Help: "Scenarios run, by verdict"},
			[]string{"status"},
		),
		stepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "site_e2e_steps_total", Help: "Steps run, by action and status"},
			[]string{"action", "status"},
		),
		assertionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "site_e2e_assertions_total", Help: "Assertions recorded, by kind and outcome"},
			[]string{"kind", "viewport", "passed"},
		),
		scenarioDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "site_e2e_scenario_duration_seconds",
				Help:    "Scenario duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"scenario", "status"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "site_e2e_step_duration_seconds",
				Help:    "Step duration in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"scenario", "action", "viewport", "status"},
		),
		webVitals: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "site_e2e_web_vital",
				Help: "Last observed web vital per scenario and viewport",
			},
			[]string{"scenario", "viewport", "metric"},
		),
		scenarioInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "site_e2e_scenario_info",
				Help: "Scenario metadata for traceability",
			},
			[]string{"scenario", "status", "browser", "base_url", "viewports", "component"},
		),
	}

	registry.MustRegister(
		collector.scenariosTotal,
		collector.stepsTotal,
		collector.assertionsTotal,
		collector.scenarioDuration,
		collector.stepDuration,
		collector.webVitals,
		collector.scenarioInfo,
	)
	return collector
}

// ObserveScenario records a scenario verdict.
func (c *Collector) ObserveScenario(name, status string, duration time.Duration) {
	c.scenariosTotal.WithLabelValues(status).Inc()
	c.scenarioDuration.WithLabelValues(name, status).Observe(duration.Seconds())
}

// ObserveStep records a step outcome.
func (c *Collector) ObserveStep(scenario, action, viewport, status string, duration time.Duration) {
	c.stepsTotal.WithLabelValues(action, status).Inc()
	c.stepDuration.WithLabelValues(scenario, action, viewport, status).Observe(duration.Seconds())
}

// ObserveAssertion counts one recorded assertion.
func (c *Collector) ObserveAssertion(kind, viewport string, passed bool) {
	if kind == "" {
		kind = "assertion"
	}
	label := "false"
	if passed {
		label = "true"
	}
	c.assertionsTotal.WithLabelValues(kind, viewport, label).Inc()
}

// ObserveWebVital stores the latest value of a performance metric.
func (c *Collector) ObserveWebVital(scenario, viewport, metric string, value float64) {
	c.webVitals.WithLabelValues(scenario, viewport, metric).Set(value)
}

// ObserveScenarioInfo records metadata for a scenario.
func (c *Collector) ObserveScenarioInfo(info ScenarioInfo) {
	c.scenarioInfo.WithLabelValues(info.Scenario, info.Status, info.Browser, info.BaseURL, info.Viewports, info.Component).Set(1)
}

// ScenarioInfo is a structured view of scenario metadata for metrics.
type ScenarioInfo struct {
	Scenario  string
	Status    string
	Browser   string
	BaseURL   string
	Viewports string
	Component string
}

// Gatherer exposes the registry, mainly for tests.
func (c *Collector) Gatherer() prometheus.Gatherer {
	return c.registry
}

// Write writes all metrics to a Prometheus text file.
func (c *Collector) Write(path string) error {
	metricFamilies, err := c.registry.Gather()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, family := range metricFamilies {
		if err := enc.Encode(family); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
