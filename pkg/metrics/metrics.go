// Package metrics exposes scan progress as Prometheus metrics.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-ptzscan/pkg/scan"
)

const namespace = "ptzscan"

// Collector bundles the scan metrics and satisfies scan.Observer.
type Collector struct {
	gatherer prometheus.Gatherer

	Probes        *prometheus.CounterVec
	Tracks        *prometheus.CounterVec
	Iterations    *prometheus.CounterVec
	Detections    prometheus.Counter
	SweepDuration prometheus.Histogram
	BaseTilt      prometheus.Gauge
	State         prometheus.Gauge
}

// New registers the scan metrics against reg, defaulting to the global
// registry when nil. Registering twice on the same registry returns the
// existing collectors.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	probes, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "probes_total",
		Help:      "Probe positions visited, labeled by result.",
	}, []string{"result"}))
	if err != nil {
		return nil, err
	}
	tracks, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tracks_total",
		Help:      "Tracking maneuvers, labeled by result.",
	}, []string{"result"}))
	if err != nil {
		return nil, err
	}
	iterations, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "iterations_total",
		Help:      "Completed sweeps, labeled by whether anything qualified.",
	}, []string{"found"}))
	if err != nil {
		return nil, err
	}
	detections, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "detections_total",
		Help:      "Detections returned by the detector, before thresholding.",
	}))
	if err != nil {
		return nil, err
	}
	duration, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sweep_duration_seconds",
		Help:      "Wall time of one sweep.",
		Buckets:   []float64{5, 10, 30, 60, 120, 300, 600, 1200},
	}))
	if err != nil {
		return nil, err
	}
	tilt, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "base_tilt_degrees",
		Help:      "Base tilt of the next sweep.",
	}))
	if err != nil {
		return nil, err
	}
	state, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "state",
		Help:      "Controller state: 0 idle, 1 sweeping, 2 tracking, 3 cooldown.",
	}))
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:      gatherer,
		Probes:        probes,
		Tracks:        tracks,
		Iterations:    iterations,
		Detections:    detections,
		SweepDuration: duration,
		BaseTilt:      tilt,
		State:         state,
	}, nil
}

// Handler exposes a /metrics handler for the collector's registry.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func (c *Collector) StateChanged(from, to scan.State) {
	if c == nil {
		return
	}
	c.State.Set(float64(to))
}

func (c *Collector) SweepStarted(iteration int, tilt float64) {
	if c == nil {
		return
	}
	c.BaseTilt.Set(tilt)
}

func (c *Collector) ProbeFinished(r scan.ProbeResult) {
	if c == nil {
		return
	}
	c.Probes.WithLabelValues(r.Outcome.String()).Inc()
	c.Detections.Add(float64(r.Detections))
}

func (c *Collector) TrackFinished(r scan.TrackResult) {
	if c == nil {
		return
	}
	c.Tracks.WithLabelValues(r.Outcome.String()).Inc()
}

func (c *Collector) SweepFinished(r scan.SweepResult) {
	if c == nil {
		return
	}
	c.Iterations.WithLabelValues(strconv.FormatBool(r.Found)).Inc()
	c.SweepDuration.Observe(r.Elapsed.Seconds())
	c.BaseTilt.Set(r.NextTilt)
}

var _ scan.Observer = (*Collector)(nil)

// register adds m to reg, returning the already registered collector of the
// same type when there is one.
func register[T prometheus.Collector](reg prometheus.Registerer, m T) (T, error) {
	if err := reg.Register(m); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("metrics: collector already registered with incompatible type: %v", err)
		}
		var zero T
		return zero, err
	}
	return m, nil
}
