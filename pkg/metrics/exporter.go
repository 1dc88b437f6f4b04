package metrics

import (
	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/clocktree"
	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/event"
)

// NodeName labels every series; set by RegisterMetrics
var NodeName string

// UpdateRateMetrics sets the Rate metric of one clock
func UpdateRateMetrics(clock string, rate uint64) {
	Rate.With(prometheus.Labels{"clock": clock, "node": NodeName}).Set(float64(rate))
}

// UpdateEnableCountMetrics sets the EnableCount metric of one clock
func UpdateEnableCountMetrics(clock string, count int) {
	EnableCount.With(prometheus.Labels{"clock": clock, "node": NodeName}).Set(float64(count))
}

// UpdateStateMetrics sets the State metric of one clock
func UpdateStateMetrics(clock string, state clocktree.State) {
	State.With(prometheus.Labels{"clock": clock, "node": NodeName}).Set(float64(state))
}

// UpdateParentMetrics moves the Parent series of a clock from old to new.
func UpdateParentMetrics(clock, old, new string) {
	if old != "" && old != new {
		Parent.Delete(prometheus.Labels{"clock": clock, "node": NodeName, "parent": old})
	}
	if new != "" {
		Parent.With(prometheus.Labels{"clock": clock, "node": NodeName, "parent": new}).Set(1)
	}
}

// Refresh rewrites every per-clock gauge from a tree snapshot. Clocks whose rate does
// not resolve report 0 Hz, clocks whose parent does not resolve have no parent series.
func Refresh(statuses []clocktree.Status) {
	for _, s := range statuses {
		UpdateRateMetrics(s.Name, s.Rate)
		UpdateEnableCountMetrics(s.Name, s.EnableCount)
		UpdateStateMetrics(s.Name, parseState(s.State))
		Parent.DeletePartialMatch(prometheus.Labels{"clock": s.Name, "node": NodeName})
		UpdateParentMetrics(s.Name, "", s.Parent)
	}
}

func parseState(s string) clocktree.State {
	for _, st := range []clocktree.State{clocktree.StateStable, clocktree.StateChangeRequested,
		clocktree.StateAwaitingAck, clocktree.StateFailed} {
		if st.String() == s {
			return st
		}
	}
	glog.Warningf("unknown clock state %q", s)
	return clocktree.StateFailed
}

// Recorder keeps the clock metrics current from change events.
type Recorder struct{}

// NewRecorder returns a Recorder ready to be registered on an event.Notifier.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) ID() string { return "metrics" }

func (r *Recorder) Notify(e event.ClockEvent) {
	Events.With(prometheus.Labels{"clock": e.Clock, "node": NodeName, "kind": string(e.Kind)}).Inc()
	switch e.Kind {
	case event.RateChanged:
		UpdateRateMetrics(e.Clock, e.NewRate)
	case event.ParentChanged:
		UpdateRateMetrics(e.Clock, e.NewRate)
		UpdateParentMetrics(e.Clock, e.OldParent, e.NewParent)
	case event.Enabled, event.Disabled:
		UpdateEnableCountMetrics(e.Clock, e.EnableCount)
	case event.Failed:
		UpdateStateMetrics(e.Clock, clocktree.StateFailed)
		UpdateRateMetrics(e.Clock, 0)
	}
}
