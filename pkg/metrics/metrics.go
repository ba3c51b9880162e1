// Package metrics exposes Prometheus collectors for device sessions. A CLI
// run writes them to a node-exporter textfile when asked.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/newtron-network/ogctl/pkg/dispatch"
)

const namespace = "ogctl"

// Operation outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

// Metrics holds the collectors on a private registry. All methods are safe
// on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	CommandsTotal     *prometheus.CounterVec
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	DeviceAlive       *prometheus.GaugeVec
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		CommandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands sent to devices, by result (ok, invalid, error)",
		}, []string{"device", "result"}),
		OperationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Configuration lifecycle operations, by outcome",
		}, []string{"device", "operation", "outcome"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of configuration lifecycle operations",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"operation"}),
		DeviceAlive: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_alive",
			Help:      "1 if the last liveness probe of the device succeeded",
		}, []string{"device"}),
	}
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ForDevice returns a dispatch.Recorder counting commands sent to device.
func (m *Metrics) ForDevice(device string) dispatch.Recorder {
	return deviceRecorder{m: m, device: device}
}

type deviceRecorder struct {
	m      *Metrics
	device string
}

func (r deviceRecorder) ObserveCommand(result string) {
	if r.m == nil {
		return
	}
	r.m.CommandsTotal.WithLabelValues(r.device, result).Inc()
}

// ObserveOperation records one lifecycle operation.
func (m *Metrics) ObserveOperation(device, operation, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(device, operation, outcome).Inc()
	if outcome != OutcomeSkipped {
		m.OperationDuration.WithLabelValues(operation).Observe(d.Seconds())
	}
}

// SetAlive records the result of a liveness probe.
func (m *Metrics) SetAlive(device string, alive bool) {
	if m == nil {
		return
	}
	v := 0.0
	if alive {
		v = 1
	}
	m.DeviceAlive.WithLabelValues(device).Set(v)
}

// WriteTextfile writes all collectors to path in the text exposition format,
// atomically, for the node-exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
