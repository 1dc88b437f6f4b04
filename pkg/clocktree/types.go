package clocktree

import (
	"fmt"
	"strings"

	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/pll"
	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/regmap"
)

// ID is the dense handle of a clock node: its index in the table.
type ID int

// MaxParents is the number of parent slots of a node.
const MaxParents = 4

// Capability is a set of node kinds. A node may combine MUX, DIVIDER and GATE.
type Capability uint8

const (
	CapExternal Capability = 1 << iota
	CapPLL
	CapMux
	CapDivider
	CapFixedDivider
	CapGate
)

var capabilityNames = []struct {
	c    Capability
	name string
}{
	{CapExternal, "EXT"},
	{CapPLL, "PLL"},
	{CapMux, "MUX"},
	{CapDivider, "DIV"},
	{CapFixedDivider, "FIXDIV"},
	{CapGate, "GATE"},
}

// Has reports whether all capabilities in o are present.
func (c Capability) Has(o Capability) bool {
	return c&o == o
}

func (c Capability) String() string {
	if c == 0 {
		return "NONE"
	}
	var out []string
	for _, cn := range capabilityNames {
		if c&cn.c != 0 {
			out = append(out, cn.name)
			c &^= cn.c
		}
	}
	if c != 0 {
		out = append(out, fmt.Sprintf("Capability(%#x)", uint8(c)))
	}
	return strings.Join(out, "|")
}

// ExternalParams describes a clock entering the SoC at a fixed rate.
type ExternalParams struct {
	Rate uint64
}

// MuxParams locates the parent select field. The raw field value is the parent slot.
type MuxParams struct {
	Reg    uint32
	Select regmap.Field
	// StatusReg and BusyBit locate an optional switch-in-progress flag that is polled
	// until clear after the select field changes.
	StatusReg uint32
	BusyBit   *uint8
}

// DividerParams locates a programmable divider. The effective divisor of raw field
// value r is r*Step+1.
type DividerParams struct {
	Reg   uint32
	Field regmap.Field
	Step  uint32
	// Max is the largest effective divisor the hardware accepts. Zero means the
	// largest value the field can encode.
	Max uint32
	// ChangeBit is set to request a divider change.
	ChangeBit *uint8
	// BusyBit reads set while a change is in progress.
	BusyBit *uint8
	// StopBit stops the divider output while set.
	StopBit *uint8
	// StableBit reads set once the new ratio is in effect.
	StableBit *uint8
}

// Divisor returns the effective divisor of a raw field value.
func (p *DividerParams) Divisor(raw uint32) uint64 {
	return uint64(raw)*uint64(p.Step) + 1
}

// MaxDivisor returns the largest usable effective divisor.
func (p *DividerParams) MaxDivisor() uint64 {
	limit := p.Divisor(p.Field.Max())
	if p.Max != 0 && uint64(p.Max) < limit {
		return uint64(p.Max)
	}
	return limit
}

// acked reports whether a divider change has to be polled for completion.
func (p *DividerParams) acked() bool {
	return p.BusyBit != nil || p.StableBit != nil
}

// FixedDividerParams is a constant divisor with no hardware representation.
type FixedDividerParams struct {
	Divisor uint32
}

// GateParams locates the gate bit. A set bit stops the clock.
type GateParams struct {
	Reg uint32
	Bit uint8
}

// Descriptor is the immutable description of one clock node. The capabilities of a
// node follow from which parameter blocks are present.
type Descriptor struct {
	ID   ID
	Name string
	// Parents holds the candidate parents. With a mux, the slot index is the select
	// value and a nil slot is a reserved select value. Without one, slot 0 is the parent.
	Parents [MaxParents]*ID
	// GlitchSensitive nodes are gated, or their divider stopped, while the parent
	// select or the divider ratio changes.
	GlitchSensitive bool

	External     *ExternalParams
	PLL          *pll.Params
	Mux          *MuxParams
	Divider      *DividerParams
	FixedDivider *FixedDividerParams
	Gate         *GateParams
}

// Capabilities returns the capability set of the node.
func (d *Descriptor) Capabilities() Capability {
	var c Capability
	if d.External != nil {
		c |= CapExternal
	}
	if d.PLL != nil {
		c |= CapPLL
	}
	if d.Mux != nil {
		c |= CapMux
	}
	if d.Divider != nil {
		c |= CapDivider
	}
	if d.FixedDivider != nil {
		c |= CapFixedDivider
	}
	if d.Gate != nil {
		c |= CapGate
	}
	return c
}

// validSlots returns the indexes of the non-reserved parent slots.
func (d *Descriptor) validSlots() []int {
	var slots []int
	for i, p := range d.Parents {
		if p != nil {
			slots = append(slots, i)
		}
	}
	return slots
}

// slotOf returns the slot holding parent, or -1.
func (d *Descriptor) slotOf(parent ID) int {
	for i, p := range d.Parents {
		if p != nil && *p == parent {
			return i
		}
	}
	return -1
}

// Table is an ordered set of descriptors indexed by ID.
type Table []Descriptor

// Lookup returns the descriptor with the given name.
func (t Table) Lookup(name string) (*Descriptor, bool) {
	for i := range t {
		if t[i].Name == name {
			return &t[i], true
		}
	}
	return nil, false
}

// State is the reconfiguration state of a node.
type State int

const (
	StateStable State = iota
	StateChangeRequested
	StateAwaitingAck
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStable:
		return "STABLE"
	case StateChangeRequested:
		return "CHANGE_REQUESTED"
	case StateAwaitingAck:
		return "AWAITING_ACK"
	case StateFailed:
		return "FAILED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}
