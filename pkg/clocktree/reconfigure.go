package clocktree

import (
	"fmt"

	"github.com/golang/glog"

	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/event"
	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/pll"
	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/regmap"
)

// SetParent switches a mux clock to parent. Selecting the current parent is a
// no-op. A clock without a mux only accepts its fixed parent.
func (t *Tree) SetParent(id, parent ID) error {
	n, err := t.node(id)
	if err != nil {
		return err
	}
	if _, err := t.node(parent); err != nil {
		return opError(n, "set parent", err)
	}
	t.mu.Lock()
	events, err := t.setParent(n, parent)
	t.mu.Unlock()
	t.publish(events)
	return opError(n, "set parent", err)
}

// SetRate programs a clock as close as possible to target without exceeding it
// and returns the resulting rate. Dividers pick the smallest divisor that does not
// overshoot; PLLs are re-encoded and relocked.
func (t *Tree) SetRate(id ID, target uint64) (uint64, error) {
	n, err := t.node(id)
	if err != nil {
		return 0, err
	}
	t.mu.Lock()
	rate, events, err := t.setRate(n, target)
	t.mu.Unlock()
	t.publish(events)
	return rate, opError(n, "set rate", err)
}

// SetDivider writes a raw divider value directly.
func (t *Tree) SetDivider(id ID, raw uint32) error {
	n, err := t.node(id)
	if err != nil {
		return err
	}
	if n.desc.Divider == nil {
		return opError(n, "set divider", ErrUnsupportedOperation)
	}
	// a rejected argument never touches the node
	if err = checkRawDivider(n.desc.Divider, raw); err != nil {
		return opError(n, "set divider", err)
	}
	t.mu.Lock()
	oldRate, _ := t.newResolver().rate(id)
	var events []event.ClockEvent
	if err = t.setDivider(n, raw); err != nil {
		events = t.fail(n, err)
	} else {
		_, events = t.rateChanged(n, oldRate)
	}
	t.mu.Unlock()
	t.publish(events)
	return opError(n, "set divider", err)
}

func (t *Tree) setParent(n *node, parent ID) ([]event.ClockEvent, error) {
	d := n.desc
	slot := d.slotOf(parent)
	if slot < 0 {
		if d.Mux == nil {
			return nil, fmt.Errorf("%s is not the parent: %w", t.name(parent), ErrUnsupportedOperation)
		}
		return nil, fmt.Errorf("%s is not a parent candidate: %w", t.name(parent), ErrInvalidParentSelect)
	}
	if d.Mux == nil || len(d.validSlots()) == 1 {
		n.parentSlot = slot
		return nil, nil
	}

	cur := int(d.Mux.Select.Get(t.read(d.Mux.Reg)))
	if cur == slot && n.state != StateFailed {
		n.parentSlot = slot
		return nil, nil
	}
	oldParent := fmt.Sprintf("select %d", cur)
	if cur < MaxParents && d.Parents[cur] != nil {
		oldParent = t.name(*d.Parents[cur])
	}
	oldRate, _ := t.newResolver().rate(d.ID)

	n.state = StateChangeRequested
	f := t.freeze(n)
	t.update(d.Mux.Reg, func(v uint32) uint32 {
		return d.Mux.Select.Set(v, uint32(slot))
	})
	if d.Mux.BusyBit != nil {
		n.state = StateAwaitingAck
		if !t.poll(n, "parent switch", func() bool { return t.bitClear(d.Mux.StatusReg, d.Mux.BusyBit) }) {
			err := fmt.Errorf("switch to %s: %w", t.name(parent), ErrReconfigureTimeout)
			return t.fail(n, err), err
		}
	}
	t.thaw(n, f)
	n.state, n.lastErr = StateStable, nil
	n.parentSlot = slot

	newRate, _ := t.newResolver().rate(d.ID)
	glog.Infof("clock %s: parent %s -> %s", d.Name, oldParent, t.name(parent))
	return []event.ClockEvent{{
		Clock:     d.Name,
		ID:        int(d.ID),
		Kind:      event.ParentChanged,
		OldParent: oldParent,
		NewParent: t.name(parent),
		OldRate:   oldRate,
		NewRate:   newRate,
	}}, nil
}

func (t *Tree) setRate(n *node, target uint64) (uint64, []event.ClockEvent, error) {
	d := n.desc
	if d.Divider == nil && d.PLL == nil {
		return 0, nil, ErrUnsupportedOperation
	}
	r := t.newResolver()
	slot, err := t.currentSlot(n)
	if err != nil {
		return 0, nil, err
	}
	parentRate, err := r.rate(*d.Parents[slot])
	if err != nil {
		return 0, nil, fmt.Errorf("%s: %w", t.name(*d.Parents[slot]), err)
	}
	oldRate, oldErr := r.rate(d.ID)

	if d.Divider != nil {
		raw, err := chooseDivider(d.Divider, parentRate, target)
		if err != nil {
			return 0, nil, err
		}
		if oldErr == nil && raw == n.rawDiv && n.state != StateFailed {
			return oldRate, nil, nil
		}
		if err := t.setDivider(n, raw); err != nil {
			return 0, t.fail(n, err), err
		}
	} else {
		s, _, err := pll.Encode(parentRate, target, d.PLL)
		if err != nil {
			return 0, nil, fmt.Errorf("no setting for %d Hz from %d Hz: %w", target, parentRate, err)
		}
		if err := t.programPLL(n, s); err != nil {
			return 0, t.fail(n, err), err
		}
	}

	rate, events := t.rateChanged(n, oldRate)
	return rate, events, nil
}

// rateChanged re-resolves n after a successful write and reports the change.
func (t *Tree) rateChanged(n *node, oldRate uint64) (uint64, []event.ClockEvent) {
	newRate, err := t.newResolver().rate(n.desc.ID)
	if err != nil {
		glog.Warningf("clock %s: rate unreadable after change: %v", n.desc.Name, err)
		return 0, nil
	}
	if newRate == oldRate {
		return newRate, nil
	}
	glog.Infof("clock %s: rate %d -> %d Hz", n.desc.Name, oldRate, newRate)
	return newRate, []event.ClockEvent{{
		Clock:   n.desc.Name,
		ID:      int(n.desc.ID),
		Kind:    event.RateChanged,
		OldRate: oldRate,
		NewRate: newRate,
	}}
}

// chooseDivider returns the raw value of the smallest divisor d with
// parentRate/d <= target.
func chooseDivider(p *DividerParams, parentRate, target uint64) (uint32, error) {
	if target == 0 {
		return 0, fmt.Errorf("target rate 0 Hz: %w", ErrDivisorOutOfRange)
	}
	minDiv := uint64(1)
	if target < parentRate {
		minDiv = parentRate/(target+1) + 1
	}
	raw := (minDiv - 1 + uint64(p.Step) - 1) / uint64(p.Step)
	if raw > uint64(p.Field.Max()) || p.Divisor(uint32(raw)) > p.MaxDivisor() {
		return 0, fmt.Errorf("%d Hz cannot be divided down to %d Hz (limit /%d): %w",
			parentRate, target, p.MaxDivisor(), ErrDivisorOutOfRange)
	}
	return uint32(raw), nil
}

func checkRawDivider(p *DividerParams, raw uint32) error {
	if raw > p.Field.Max() || p.Divisor(raw) > p.MaxDivisor() {
		return fmt.Errorf("raw divider %d (limit /%d): %w", raw, p.MaxDivisor(), ErrDivisorOutOfRange)
	}
	return nil
}

// setDivider programs a raw value already checked by checkRawDivider or chooseDivider.
func (t *Tree) setDivider(n *node, raw uint32) error {
	p := n.desc.Divider
	n.state = StateChangeRequested
	f := t.freeze(n)
	t.update(p.Reg, func(v uint32) uint32 {
		v = p.Field.Set(v, raw)
		if p.ChangeBit != nil {
			v |= regmap.Bit(*p.ChangeBit)
		}
		if p.StopBit != nil && !f.stopped {
			v &^= regmap.Bit(*p.StopBit)
		}
		return v
	})
	if p.acked() {
		n.state = StateAwaitingAck
		ok := t.poll(n, "divider ack", func() bool {
			v := t.read(p.Reg)
			busy := p.BusyBit != nil && v&regmap.Bit(*p.BusyBit) != 0
			stable := p.StableBit == nil || v&regmap.Bit(*p.StableBit) != 0
			return !busy && stable
		})
		if !ok {
			return fmt.Errorf("divider /%d: %w", p.Divisor(raw), ErrReconfigureTimeout)
		}
	}
	t.thaw(n, f)
	n.rawDiv = raw
	n.state, n.lastErr = StateStable, nil
	return nil
}

// programPLL writes a new M/N/OD setting, takes the PLL out of bypass, enables it
// and waits for lock.
func (t *Tree) programPLL(n *node, s pll.Setting) error {
	p := n.desc.PLL
	glog.V(2).Infof("clock %s: programming %s", n.desc.Name, s)
	n.state = StateChangeRequested
	t.update(p.Reg, func(v uint32) uint32 {
		return s.Apply(v, p)
	})
	if p.BypassBit != nil {
		t.setBit(p.BypassReg, *p.BypassBit, false)
	}
	return t.lockPLL(n)
}

// lockPLL sets the enable bit of a PLL and waits for its stable bit.
func (t *Tree) lockPLL(n *node) error {
	p := n.desc.PLL
	n.state = StateChangeRequested
	if p.EnableBit != nil {
		t.setBit(p.Reg, *p.EnableBit, true)
	}
	if p.StableBit != nil {
		n.state = StateAwaitingAck
		if !t.poll(n, "pll lock", func() bool { return t.bitSet(p.Reg, p.StableBit) }) {
			return ErrPLLLockTimeout
		}
	}
	n.state, n.lastErr = StateStable, nil
	return nil
}

// frozen records what freeze changed so thaw can undo exactly that.
type frozen struct {
	gated   bool
	stopped bool
}

// freeze stops the output of a glitch-sensitive clock for the duration of a
// change: through its gate when it has one, otherwise through the divider stop bit.
// A clock that is already stopped is left alone.
func (t *Tree) freeze(n *node) frozen {
	d := n.desc
	if !d.GlitchSensitive {
		return frozen{}
	}
	if d.Gate != nil {
		if t.bitSet(d.Gate.Reg, &d.Gate.Bit) {
			return frozen{}
		}
		t.setBit(d.Gate.Reg, d.Gate.Bit, true)
		return frozen{gated: true}
	}
	if d.Divider != nil && d.Divider.StopBit != nil {
		if t.bitSet(d.Divider.Reg, d.Divider.StopBit) {
			return frozen{}
		}
		t.setBit(d.Divider.Reg, *d.Divider.StopBit, true)
		return frozen{stopped: true}
	}
	glog.Warningf("clock %s: glitch sensitive but has no gate or stop bit", d.Name)
	return frozen{}
}

func (t *Tree) thaw(n *node, f frozen) {
	d := n.desc
	if f.stopped {
		t.setBit(d.Divider.Reg, *d.Divider.StopBit, false)
	}
	if f.gated {
		t.setBit(d.Gate.Reg, d.Gate.Bit, false)
	}
}

// fail marks n as failed. The registers keep whatever was last written.
func (t *Tree) fail(n *node, err error) []event.ClockEvent {
	n.state, n.lastErr = StateFailed, err
	glog.Errorf("clock %s: %v", n.desc.Name, err)
	return []event.ClockEvent{{
		Clock: n.desc.Name,
		ID:    int(n.desc.ID),
		Kind:  event.Failed,
		Err:   err,
	}}
}
