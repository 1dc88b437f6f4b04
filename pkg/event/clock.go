// Package event carries clock change notifications from the clock tree to
// interested parties such as metrics and logging.
package event

import (
	"fmt"
	"time"

	"github.com/golang/glog"
)

// Kind is the type of change a ClockEvent reports.
type Kind string

const (
	RateChanged   Kind = "rate"
	ParentChanged Kind = "parent"
	Enabled       Kind = "enable"
	Disabled      Kind = "disable"
	Failed        Kind = "failure"
)

// ClockEvent describes one completed change on one clock.
type ClockEvent struct {
	Clock string
	ID    int
	Kind  Kind
	Time  time.Time

	OldRate uint64
	NewRate uint64

	OldParent string
	NewParent string

	EnableCount int
	// Err is set for Failed events.
	Err error
}

func (e ClockEvent) String() string {
	switch e.Kind {
	case RateChanged:
		return fmt.Sprintf("%s: rate %d -> %d Hz", e.Clock, e.OldRate, e.NewRate)
	case ParentChanged:
		return fmt.Sprintf("%s: parent %s -> %s (rate %d -> %d Hz)", e.Clock, e.OldParent, e.NewParent, e.OldRate, e.NewRate)
	case Enabled, Disabled:
		return fmt.Sprintf("%s: %s (count %d)", e.Clock, e.Kind, e.EnableCount)
	case Failed:
		return fmt.Sprintf("%s: failed: %v", e.Clock, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Clock, e.Kind)
}

// LogSubscriber writes every event to the log.
type LogSubscriber struct{}

func (LogSubscriber) ID() string { return "log" }

func (LogSubscriber) Notify(e ClockEvent) {
	if e.Kind == Failed {
		glog.Errorf("clock event %s", e)
		return
	}
	glog.Infof("clock event %s", e)
}
