package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	// ClockNamespace is the metrics namespace
	ClockNamespace = "soc"
	// ClockSubsystem is the metrics subsystem
	ClockSubsystem = "clock"
)

var registerMetrics sync.Once

var (
	// Rate is the last resolved frequency of a clock, in Hz
	Rate = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: ClockNamespace,
			Subsystem: ClockSubsystem,
			Name:      "rate_hz",
			Help:      "Resolved clock frequency in Hz, 0 when the rate cannot be resolved",
		}, []string{"clock", "node"})

	// EnableCount is the number of enable votes held on a clock
	EnableCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: ClockNamespace,
			Subsystem: ClockSubsystem,
			Name:      "enable_count",
			Help:      "Number of consumers holding the clock enabled",
		}, []string{"clock", "node"})

	// State is the reconfiguration state of a clock
	State = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: ClockNamespace,
			Subsystem: ClockSubsystem,
			Name:      "state",
			Help:      "0 = STABLE, 1 = CHANGE_REQUESTED, 2 = AWAITING_ACK, 3 = FAILED",
		}, []string{"clock", "node"})

	// Parent reports the selected parent of a clock as a 1 valued series
	Parent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: ClockNamespace,
			Subsystem: ClockSubsystem,
			Name:      "parent",
			Help:      "1 for the parent currently selected by the clock",
		}, []string{"clock", "node", "parent"})

	// Events counts change events by kind
	Events = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ClockNamespace,
			Subsystem: ClockSubsystem,
			Name:      "events_total",
			Help:      "Clock change events by kind (rate, parent, enable, disable, failure)",
		}, []string{"clock", "node", "kind"})
)

// RegisterMetrics registers all the metrics with Prometheus
func RegisterMetrics(nodeName string) {
	registerMetrics.Do(func() {
		prometheus.MustRegister(Rate)
		prometheus.MustRegister(EnableCount)
		prometheus.MustRegister(State)
		prometheus.MustRegister(Parent)
		prometheus.MustRegister(Events)
		// the process and Go collectors add nothing a clock dashboard needs
		prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		prometheus.Unregister(collectors.NewGoCollector())
		NodeName = nodeName
	})
}
