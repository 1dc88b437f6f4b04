package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DeleteClockMetrics removes every series of the named clocks
func DeleteClockMetrics(clocks ...string) {
	for _, clock := range clocks {
		labels := prometheus.Labels{"clock": clock, "node": NodeName}
		Rate.Delete(labels)
		EnableCount.Delete(labels)
		State.Delete(labels)
		Parent.DeletePartialMatch(labels)
		Events.DeletePartialMatch(labels)
	}
}
