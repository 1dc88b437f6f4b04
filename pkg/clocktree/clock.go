package clocktree

import (
	"github.com/golang/glog"

	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/event"
)

// Clock is the published handle of one clock node.
type Clock struct {
	tree *Tree
	n    *node
	// own is the vote cast through Clock.Enable and Clock.Disable.
	own *Consumer
}

func newClock(t *Tree, n *node) *Clock {
	c := &Clock{tree: t, n: n}
	c.own = &Consumer{clock: c, name: n.desc.Name}
	return c
}

func (c *Clock) ID() ID                   { return c.n.desc.ID }
func (c *Clock) Name() string             { return c.n.desc.Name }
func (c *Clock) Capabilities() Capability { return c.n.caps }

// Rate returns the current frequency in Hz.
func (c *Clock) Rate() (uint64, error) {
	return c.tree.Rate(c.ID())
}

// SetRate programs the clock to the closest rate not above target.
func (c *Clock) SetRate(target uint64) (uint64, error) {
	return c.tree.SetRate(c.ID(), target)
}

// Parent returns the clock currently feeding this one.
func (c *Clock) Parent() (*Clock, error) {
	id, err := c.tree.Parent(c.ID())
	if err != nil {
		return nil, err
	}
	return c.tree.clocks[id], nil
}

// SetParent switches the clock to parent.
func (c *Clock) SetParent(parent *Clock) error {
	return c.tree.SetParent(c.ID(), parent.ID())
}

// Enable casts the handle's own vote to run the clock. Repeated calls are no-ops.
func (c *Clock) Enable() error {
	return c.own.Enable()
}

// Disable withdraws the vote cast by Enable. Repeated calls are no-ops.
func (c *Clock) Disable() error {
	return c.own.Disable()
}

// EnableCount returns the number of votes currently keeping the clock running.
func (c *Clock) EnableCount() int {
	c.tree.mu.Lock()
	defer c.tree.mu.Unlock()
	return c.n.enableCount
}

// State returns the reconfiguration state and the error that caused the last
// failure, if the clock is in StateFailed.
func (c *Clock) State() (State, error) {
	c.tree.mu.Lock()
	defer c.tree.mu.Unlock()
	return c.n.state, c.n.lastErr
}

// Consumer returns a new independent voter for this clock.
func (c *Clock) Consumer(name string) *Consumer {
	return &Consumer{clock: c, name: name}
}

func (c *Clock) String() string {
	return c.Name()
}

// Consumer holds at most one enable vote on a clock. The clock runs while any
// consumer holds a vote.
type Consumer struct {
	clock *Clock
	name  string
	// voted is guarded by the tree lock.
	voted bool
}

func (u *Consumer) Name() string  { return u.name }
func (u *Consumer) Clock() *Clock { return u.clock }

// Enabled reports whether the consumer currently holds a vote.
func (u *Consumer) Enabled() bool {
	t := u.clock.tree
	t.mu.Lock()
	defer t.mu.Unlock()
	return u.voted
}

// Enable casts the consumer's vote. The first vote on a clock ungates it and, for a
// PLL, waits for lock.
func (u *Consumer) Enable() error {
	t, n := u.clock.tree, u.clock.n
	t.mu.Lock()
	events, err := t.enable(n, u)
	t.mu.Unlock()
	t.publish(events)
	return opError(n, "enable", err)
}

// Disable withdraws the consumer's vote. The clock is gated when no vote remains.
func (u *Consumer) Disable() error {
	t, n := u.clock.tree, u.clock.n
	t.mu.Lock()
	events := t.disable(n, u)
	t.mu.Unlock()
	t.publish(events)
	return nil
}

func (t *Tree) enable(n *node, u *Consumer) ([]event.ClockEvent, error) {
	if u.voted {
		return nil, nil
	}
	if n.enableCount == 0 {
		if err := t.ungate(n); err != nil {
			return t.fail(n, err), err
		}
	}
	n.enableCount++
	u.voted = true
	glog.V(2).Infof("clock %s: enabled by %s (count %d)", n.desc.Name, u.name, n.enableCount)
	return []event.ClockEvent{{
		Clock:       n.desc.Name,
		ID:          int(n.desc.ID),
		Kind:        event.Enabled,
		EnableCount: n.enableCount,
	}}, nil
}

func (t *Tree) disable(n *node, u *Consumer) []event.ClockEvent {
	if !u.voted {
		return nil
	}
	u.voted = false
	n.enableCount--
	if n.enableCount == 0 {
		t.gate(n)
	}
	glog.V(2).Infof("clock %s: disabled by %s (count %d)", n.desc.Name, u.name, n.enableCount)
	return []event.ClockEvent{{
		Clock:       n.desc.Name,
		ID:          int(n.desc.ID),
		Kind:        event.Disabled,
		EnableCount: n.enableCount,
	}}
}

// ungate starts a clock: a PLL is enabled and locked, a gate bit is cleared.
func (t *Tree) ungate(n *node) error {
	d := n.desc
	if d.PLL != nil && (d.PLL.EnableBit != nil || d.PLL.StableBit != nil) {
		if err := t.lockPLL(n); err != nil {
			return err
		}
	}
	if d.Gate != nil {
		t.setBit(d.Gate.Reg, d.Gate.Bit, false)
	}
	return nil
}

func (t *Tree) gate(n *node) {
	d := n.desc
	if d.Gate != nil {
		t.setBit(d.Gate.Reg, d.Gate.Bit, true)
	}
	if d.PLL != nil && d.PLL.EnableBit != nil {
		t.setBit(d.PLL.Reg, *d.PLL.EnableBit, false)
	}
}

// Enable casts the default vote of a clock.
func (t *Tree) Enable(id ID) error {
	if _, err := t.node(id); err != nil {
		return err
	}
	return t.clocks[id].Enable()
}

// Disable withdraws the default vote of a clock.
func (t *Tree) Disable(id ID) error {
	if _, err := t.node(id); err != nil {
		return err
	}
	return t.clocks[id].Disable()
}
