package clocktree

import (
	"errors"
	"fmt"

	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/pll"
)

var (
	// ErrInvalidEncoding is returned when a PLL register field has no valid decoding.
	ErrInvalidEncoding = pll.ErrInvalidEncoding
	// ErrInvalidParentSelect is returned when a mux select value or a requested parent
	// does not map to a valid parent slot.
	ErrInvalidParentSelect = errors.New("invalid parent select")
	// ErrDivisorOutOfRange is returned when a divider ratio exceeds the node maximum or
	// no representable divisor meets the requested rate.
	ErrDivisorOutOfRange = errors.New("divisor out of range")
	// ErrCyclicDependency is returned when the parent graph contains a cycle.
	ErrCyclicDependency = errors.New("cyclic parent dependency")
	// ErrReconfigureTimeout is returned when a mux or divider change is not acknowledged
	// within the poll budget.
	ErrReconfigureTimeout = errors.New("reconfiguration not acknowledged")
	// ErrPLLLockTimeout is returned when a PLL does not report lock within the poll budget.
	ErrPLLLockTimeout = errors.New("pll lock timeout")
	// ErrMalformedDescriptor is returned by table validation.
	ErrMalformedDescriptor = errors.New("malformed clock descriptor")
	// ErrUnsupportedOperation is returned when a node lacks the capability an operation needs.
	ErrUnsupportedOperation = errors.New("operation not supported by clock")
	// ErrUnknownClock is returned for an ID or name outside the table.
	ErrUnknownClock = errors.New("unknown clock")
)

// Error records a failed operation on one clock.
type Error struct {
	Clock string
	Op    string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("clock %s: %s: %v", e.Clock, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func opError(n *node, op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) && ce.Clock == n.desc.Name && ce.Op == op {
		return err
	}
	return &Error{Clock: n.desc.Name, Op: op, Err: err}
}
