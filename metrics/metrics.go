package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/wippyai/wasm-bridge/heap"
	"github.com/wippyai/wasm-bridge/value"
)

// Metrics holds the bridge collectors.
type Metrics struct {
	// Handle heap
	HandlesLive  prometheus.Gauge
	HandleEvents *prometheus.CounterVec

	// Calls into modules
	Invocations      *prometheus.CounterVec
	InvokeDuration   prometheus.Histogram
	CompileDuration  prometheus.Histogram
	InstancesCreated prometheus.Counter
}

// New registers the collectors with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		HandlesLive: f.NewGauge(prometheus.GaugeOpts{
			Name: "wasmbridge_handles_live",
			Help: "Number of live dynamic handles across instances",
		}),
		HandleEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wasmbridge_handle_events_total",
			Help: "Handle lifecycle events by event type and value type",
		}, []string{"event", "type"}),
		Invocations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wasmbridge_invocations_total",
			Help: "Entrypoint invocations by outcome",
		}, []string{"outcome"}),
		InvokeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "wasmbridge_invoke_duration_seconds",
			Help:    "Entrypoint invocation time including the event loop drain",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		CompileDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "wasmbridge_compile_duration_seconds",
			Help:    "Module compilation time",
			Buckets: []float64{.001, .01, .1, .5, 1, 5, 10, 30},
		}),
		InstancesCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "wasmbridge_instances_created_total",
			Help: "Instances created",
		}),
	}
}

// OnHandleEvent implements heap.Observer.
func (m *Metrics) OnHandleEvent(e heap.Event) {
	switch e.Type {
	case heap.EventCreated:
		m.HandlesLive.Inc()
	case heap.EventReleased:
		m.HandlesLive.Dec()
	}
	m.HandleEvents.WithLabelValues(e.Type.String(), value.TypeOf(e.Value)).Inc()
}

// ObserveInvoke records one entrypoint invocation.
func (m *Metrics) ObserveInvoke(start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Invocations.WithLabelValues(outcome).Inc()
	m.InvokeDuration.Observe(time.Since(start).Seconds())
}

// ObserveCompile records one compilation.
func (m *Metrics) ObserveCompile(start time.Time) {
	m.CompileDuration.Observe(time.Since(start).Seconds())
}
