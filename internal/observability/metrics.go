// Package observability bundles the Prometheus metrics of the mount link,
// the dispatcher and modeling runs.
package observability

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/unklstewy/mount-modeler/pkg/alignment"
	"github.com/unklstewy/mount-modeler/pkg/modeling"
	"github.com/unklstewy/mount-modeler/pkg/mount"
)

// Collector implements mount.Metrics and modeling.Metrics.
type Collector struct {
	gatherer prometheus.Gatherer

	Commands        *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
	Connected       prometheus.Gauge
	CycleDuration   *prometheus.HistogramVec
	QueueLength     prometheus.Gauge
	ArityMismatches *prometheus.CounterVec

	Slewing     prometheus.Gauge
	Tracking    prometheus.Gauge
	Temperature prometheus.Gauge

	ModelStars prometheus.Gauge
	ModelRMS   prometheus.Gauge

	Points      *prometheus.CounterVec
	Runs        *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec
}

var (
	_ mount.Metrics    = (*Collector)(nil)
	_ modeling.Metrics = (*Collector)(nil)
)

// NewCollector registers the metrics against reg, defaulting to the global
// Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}
	var err error

	if c.Commands, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mount_commands_total",
		Help: "Commands sent to the mount, labeled by command code and result.",
	}, []string{"command", "result"})); err != nil {
		return nil, err
	}
	if c.CommandDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mount_command_duration_seconds",
		Help:    "Round trip time of mount commands.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"command"})); err != nil {
		return nil, err
	}
	if c.Connected, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mount_connected",
		Help: "1 while the mount link is up.",
	})); err != nil {
		return nil, err
	}
	if c.CycleDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mount_poll_cycle_duration_seconds",
		Help:    "Duration of status polling cycles, labeled by cadence.",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
	}, []string{"cadence"})); err != nil {
		return nil, err
	}
	if c.QueueLength, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mount_command_queue_depth",
		Help: "User commands waiting for the dispatcher.",
	})); err != nil {
		return nil, err
	}
	if c.ArityMismatches, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mount_reply_arity_mismatch_total",
		Help: "Batched replies with an unexpected number of fields.",
	}, []string{"command"})); err != nil {
		return nil, err
	}
	if c.Slewing, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mount_slewing",
		Help: "1 while the mount slews.",
	})); err != nil {
		return nil, err
	}
	if c.Tracking, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mount_tracking",
		Help: "1 while the mount tracks.",
	})); err != nil {
		return nil, err
	}
	if c.Temperature, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mount_temperature_celsius",
		Help: "Mount electronics temperature.",
	})); err != nil {
		return nil, err
	}
	if c.ModelStars, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mount_model_stars",
		Help: "Stars in the active alignment model.",
	})); err != nil {
		return nil, err
	}
	if c.ModelRMS, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mount_model_rms_arcseconds",
		Help: "RMS error of the active alignment model.",
	})); err != nil {
		return nil, err
	}
	if c.Points, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "modeling_points_total",
		Help: "Modeling points that finished a stage.",
	}, []string{"stage"})); err != nil {
		return nil, err
	}
	if c.Runs, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "modeling_runs_total",
		Help: "Finished modeling runs, labeled by mode and outcome.",
	}, []string{"mode", "outcome"})); err != nil {
		return nil, err
	}
	if c.RunDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "modeling_run_duration_seconds",
		Help:    "Wall time of modeling runs.",
		Buckets: prometheus.ExponentialBuckets(30, 2, 9),
	}, []string{"mode"})); err != nil {
		return nil, err
	}

	return c, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// CommandSent records one exchange with the mount.
func (c *Collector) CommandSent(cmd string, elapsed time.Duration, err error) {
	if c == nil {
		return
	}
	code := CommandCode(cmd)
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.Commands.WithLabelValues(code, result).Inc()
	c.CommandDuration.WithLabelValues(code).Observe(elapsed.Seconds())
}

func (c *Collector) ConnectionChanged(connected bool) {
	if c == nil {
		return
	}
	c.Connected.Set(boolValue(connected))
}

func (c *Collector) CycleCompleted(cadence string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.CycleDuration.WithLabelValues(cadence).Observe(elapsed.Seconds())
}

func (c *Collector) QueueDepth(n int) {
	if c == nil {
		return
	}
	c.QueueLength.Set(float64(n))
}

func (c *Collector) ReplyArityMismatch(cmd string) {
	if c == nil {
		return
	}
	c.ArityMismatches.WithLabelValues(CommandCode(cmd)).Inc()
}

// ObserveSnapshot updates the mount state gauges. It fits
// Dispatcher.OnSnapshot.
func (c *Collector) ObserveSnapshot(s mount.Snapshot) {
	if c == nil {
		return
	}
	c.Slewing.Set(boolValue(s.Slewing))
	c.Tracking.Set(boolValue(s.TrackingState == mount.Tracking))
	c.Temperature.Set(s.MountTemperature)
}

// ObserveModel updates the alignment model gauges.
func (c *Collector) ObserveModel(m alignment.Model) {
	if c == nil {
		return
	}
	c.ModelStars.Set(float64(m.NumberStars))
	c.ModelRMS.Set(m.RMS)
}

func (c *Collector) PointFinished(stage string) {
	if c == nil {
		return
	}
	c.Points.WithLabelValues(stage).Inc()
}

func (c *Collector) RunFinished(mode, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.Runs.WithLabelValues(mode, outcome).Inc()
	c.RunDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
}

// CommandCode reduces a command to its alphabetic code so arguments do not
// become label values: "Sr12:00:00.00" and "Sr06:00:00.00" both give "Sr".
func CommandCode(cmd string) string {
	cmd = strings.TrimSuffix(strings.TrimPrefix(cmd, ":"), "#")
	end := 0
	for end < len(cmd) && end < 12 {
		ch := cmd[end]
		if !(ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z') {
			break
		}
		end++
	}
	if end == 0 {
		return "unknown"
	}
	return cmd[:end]
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// register adds col to reg, returning the already registered collector of
// the same type when there is one.
func register[T prometheus.Collector](reg prometheus.Registerer, col T) (T, error) {
	if err := reg.Register(col); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector already registered with incompatible type: %w", err)
		}
		var zero T
		return zero, err
	}
	return col, nil
}
