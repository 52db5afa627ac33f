// Package telemetry exports mode, hint, resource level and statistics
// metrics in the Prometheus format.
package telemetry

import (
	"context"
	"net/http"
	"time"

	"codeberg.org/mutker/socpowerd/internal/errors"
	"codeberg.org/mutker/socpowerd/internal/power"
	"codeberg.org/mutker/socpowerd/internal/resource"
	"codeberg.org/mutker/socpowerd/internal/stats"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "socpowerd"

// Collector owns a private registry so tests and embedders never touch the
// global one. It observes the arbiter, mirrors resource levels as a lock
// sink and records extracted statistics.
type Collector struct {
	registry *prometheus.Registry

	modes          *prometheus.GaugeVec
	hints          *prometheus.CounterVec
	levels         *prometheus.GaugeVec
	statValues     *prometheus.GaugeVec
	statErrors     *prometheus.CounterVec
	statTimestamps *prometheus.GaugeVec
	now            func() time.Time
}

// New creates a Collector. registry may be nil.
func New(registry *prometheus.Registry) (*Collector, error) {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,
		now:      time.Now,
		modes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mode_active",
			Help:      "Whether a performance mode is active (1) or not (0).",
		}, []string{"mode"}),
		hints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hints_total",
			Help:      "Power hints handled, by hint and outcome.",
		}, []string{"hint", "outcome"}),
		levels: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "resource_level",
			Help:      "Effective level applied per resource kind.",
		}, []string{"kind"}),
		statValues: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stat_value",
			Help:      "Last extracted power statistics counter.",
		}, []string{"table", "group", "param"}),
		statErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stat_extract_errors_total",
			Help:      "Failed statistics extractions, by table and error code.",
		}, []string{"table", "code"}),
		statTimestamps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stat_last_extract_timestamp_seconds",
			Help:      "Unix time of the last successful extraction.",
		}, []string{"table"}),
	}

	for _, col := range []prometheus.Collector{
		c.modes, c.hints, c.levels, c.statValues, c.statErrors, c.statTimestamps,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := registry.Register(col); err != nil {
			return nil, errors.New().Wrap(ErrRegister, err)
		}
	}

	c.modes.WithLabelValues("sustained").Set(0)
	c.modes.WithLabelValues("vr").Set(0)

	return c, nil
}

// HintHandled counts a hint outcome.
func (c *Collector) HintHandled(hint power.Hint, outcome power.Outcome) {
	c.hints.WithLabelValues(hint.String(), string(outcome)).Inc()
}

// ModesChanged records the active modes after a transition.
func (c *Collector) ModesChanged(sustained, vr bool) {
	c.modes.WithLabelValues("sustained").Set(boolToFloat(sustained))
	c.modes.WithLabelValues("vr").Set(boolToFloat(vr))
}

// Set mirrors an applied resource level.
func (c *Collector) Set(_ context.Context, kind resource.Kind, value int) error {
	c.levels.WithLabelValues(kind.String()).Set(float64(value))
	return nil
}

// Reset drops a resource level that is no longer requested.
func (c *Collector) Reset(_ context.Context, kind resource.Kind) error {
	c.levels.DeleteLabelValues(kind.String())
	return nil
}

func (c *Collector) RecordStats(table stats.Table, samples []stats.Sample) {
	for _, s := range samples {
		c.statValues.WithLabelValues(s.Table, s.Group, s.Param).Set(float64(s.Value))
	}
	c.statTimestamps.WithLabelValues(table.Name).Set(float64(c.now().Unix()))
}

func (c *Collector) RecordStatsError(table stats.Table, err error) {
	code, ok := errors.CodeOf(err)
	if !ok {
		code = errors.ErrInternal
	}
	c.statErrors.WithLabelValues(table.Name, string(code)).Inc()
}

// Handler serves the registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
