package clocktree

import (
	"fmt"

	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/pll"
)

// resolver computes rates for one query. The memo and the visiting set live only
// as long as the query; nothing is reused across calls.
type resolver struct {
	t        *Tree
	memo     map[ID]uint64
	visiting map[ID]bool
}

func (t *Tree) newResolver() *resolver {
	return &resolver{
		t:        t,
		memo:     map[ID]uint64{},
		visiting: map[ID]bool{},
	}
}

func (r *resolver) rate(id ID) (uint64, error) {
	if rate, ok := r.memo[id]; ok {
		return rate, nil
	}
	n, err := r.t.node(id)
	if err != nil {
		return 0, err
	}
	if r.visiting[id] {
		return 0, fmt.Errorf("%s revisited: %w", n.desc.Name, ErrCyclicDependency)
	}
	r.visiting[id] = true
	defer delete(r.visiting, id)

	rate, err := r.compute(n)
	if err != nil {
		return 0, err
	}
	r.memo[id] = rate
	return rate, nil
}

func (r *resolver) compute(n *node) (uint64, error) {
	d := n.desc
	if d.External != nil {
		return d.External.Rate, nil
	}
	slot, err := r.t.currentSlot(n)
	if err != nil {
		return 0, err
	}
	parentRate, err := r.rate(*d.Parents[slot])
	if err != nil {
		return 0, fmt.Errorf("%s: %w", r.t.name(*d.Parents[slot]), err)
	}

	switch {
	case d.PLL != nil:
		regs := pll.Registers{Control: r.t.read(d.PLL.Reg)}
		if d.PLL.BypassBit != nil {
			regs.Bypass = r.t.read(d.PLL.BypassReg)
		}
		return pll.Decode(parentRate, regs, d.PLL)
	case d.FixedDivider != nil:
		return parentRate / uint64(d.FixedDivider.Divisor), nil
	case d.Divider != nil:
		raw := d.Divider.Field.Get(r.t.read(d.Divider.Reg))
		div := d.Divider.Divisor(raw)
		if div > d.Divider.MaxDivisor() {
			return 0, fmt.Errorf("raw divider %d gives /%d, limit /%d: %w", raw, div, d.Divider.MaxDivisor(), ErrDivisorOutOfRange)
		}
		n.rawDiv = raw
		return parentRate / div, nil
	}
	return parentRate, nil
}

// currentSlot returns the parent slot in effect. A mux with a single valid slot
// ignores its select field.
func (t *Tree) currentSlot(n *node) (int, error) {
	d := n.desc
	if d.Mux == nil {
		return 0, nil
	}
	slots := d.validSlots()
	if len(slots) == 1 {
		n.parentSlot = slots[0]
		return slots[0], nil
	}
	sel := d.Mux.Select.Get(t.read(d.Mux.Reg))
	if sel >= MaxParents || d.Parents[sel] == nil {
		return 0, fmt.Errorf("select value %d: %w", sel, ErrInvalidParentSelect)
	}
	n.parentSlot = int(sel)
	return int(sel), nil
}

// Rate returns the current frequency of a clock in Hz, computed from the register
// contents of the clock and all of its ancestors. The gate state does not affect
// the result.
func (t *Tree) Rate(id ID) (uint64, error) {
	n, err := t.node(id)
	if err != nil {
		return 0, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	rate, err := t.newResolver().rate(id)
	return rate, opError(n, "get rate", err)
}

// Parent returns the parent currently feeding a clock.
func (t *Tree) Parent(id ID) (ID, error) {
	n, err := t.node(id)
	if err != nil {
		return 0, err
	}
	if n.desc.External != nil {
		return 0, opError(n, "get parent", ErrUnsupportedOperation)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	slot, err := t.currentSlot(n)
	if err != nil {
		return 0, opError(n, "get parent", err)
	}
	return *n.desc.Parents[slot], nil
}

// Status is a point-in-time view of one clock.
type Status struct {
	ID          ID     `json:"id"`
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Parent      string `json:"parent,omitempty"`
	Rate        uint64 `json:"rate"`
	EnableCount int    `json:"enableCount"`
	State       string `json:"state"`
	Error       string `json:"error,omitempty"`
}

// Snapshot resolves every clock in one pass under the tree lock, so all rates are
// consistent with each other.
func (t *Tree) Snapshot() []Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.newResolver()
	out := make([]Status, len(t.nodes))
	for i, n := range t.nodes {
		s := Status{
			ID:          n.desc.ID,
			Name:        n.desc.Name,
			Kind:        n.caps.String(),
			EnableCount: n.enableCount,
			State:       n.state.String(),
		}
		if n.desc.External == nil {
			if slot, err := t.currentSlot(n); err == nil {
				s.Parent = t.name(*n.desc.Parents[slot])
			}
		}
		rate, err := r.rate(n.desc.ID)
		if err != nil {
			s.Error = err.Error()
		} else {
			s.Rate = rate
		}
		out[i] = s
	}
	return out
}
