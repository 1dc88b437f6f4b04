// Package hardwareconfig describes clock tables in YAML and turns them into
// clocktree tables.
package hardwareconfig

import (
	"fmt"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/clocktree"
	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/pll"
	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/regmap"
)

// ClockTable is the YAML-backed description of every clock of one SoC.
type ClockTable struct {
	// Name identifies the SoC model
	Name string `json:"name"`

	// Encodings defines OD tables by name. PLL entries may also name a built-in table.
	Encodings map[string][]int8 `json:"encodings,omitempty"`

	// Clocks lists the clocks in ID order
	Clocks []ClockSpec `json:"clocks"`

	// BootState is the register contents found at startup, used to seed a simulated port
	BootState []RegisterValue `json:"bootState,omitempty"`
}

// RegisterValue is the content of one register.
type RegisterValue struct {
	Reg   uint32 `json:"reg"`
	Value uint32 `json:"value"`
}

// Registers returns BootState as a map from offset to value.
func (ct *ClockTable) Registers() map[uint32]uint32 {
	regs := make(map[uint32]uint32, len(ct.BootState))
	for _, rv := range ct.BootState {
		regs[rv.Reg] = rv.Value
	}
	return regs
}

// ClockSpec describes one clock. The kind blocks present decide its capabilities.
type ClockSpec struct {
	Name string `json:"name"`
	// Parents are clock names; "" marks a reserved mux select value
	Parents         []string `json:"parents,omitempty"`
	GlitchSensitive bool     `json:"glitchSensitive,omitempty"`

	External     *ExternalSpec     `json:"external,omitempty"`
	PLL          *PLLSpec          `json:"pll,omitempty"`
	Mux          *MuxSpec          `json:"mux,omitempty"`
	Divider      *DividerSpec      `json:"divider,omitempty"`
	FixedDivider *FixedDividerSpec `json:"fixedDivider,omitempty"`
	Gate         *BitSpec          `json:"gate,omitempty"`
}

// ExternalSpec is an oscillator input.
type ExternalSpec struct {
	Rate uint64 `json:"rate"`
}

// BitSpec locates one bit of one register
type BitSpec struct {
	Reg uint32 `json:"reg"`
	Bit uint8  `json:"bit"`
}

// PLLSpec describes a PLL control register.
type PLLSpec struct {
	Reg            uint32       `json:"reg"`
	M              regmap.Field `json:"m"`
	// N must be written as "n" in YAML, a bare n key decodes as false
	N              regmap.Field `json:"n"`
	OD             regmap.Field `json:"od"`
	MOffset        uint32       `json:"mOffset"`
	NOffset        uint32       `json:"nOffset"`
	RateMultiplier uint32       `json:"rateMultiplier,omitempty"`
	// ODEncoding names an entry of ClockTable.Encodings or a built-in table
	ODEncoding string `json:"odEncoding"`
	// ODKind is "exponent" (default) or "direct"
	ODKind    string   `json:"odKind,omitempty"`
	Bypass    *BitSpec `json:"bypass,omitempty"`
	EnableBit *uint8   `json:"enableBit,omitempty"`
	StableBit *uint8   `json:"stableBit,omitempty"`
}

// MuxSpec describes a parent select field.
type MuxSpec struct {
	Reg    uint32       `json:"reg"`
	Select regmap.Field `json:"select"`
	// Busy is polled until clear after a switch
	Busy *BitSpec `json:"busy,omitempty"`
}

// DividerSpec describes a programmable divider.
type DividerSpec struct {
	Reg       uint32       `json:"reg"`
	Field     regmap.Field `json:"field"`
	Step      uint32       `json:"step"`
	Max       uint32       `json:"max,omitempty"`
	ChangeBit *uint8       `json:"changeBit,omitempty"`
	BusyBit   *uint8       `json:"busyBit,omitempty"`
	StopBit   *uint8       `json:"stopBit,omitempty"`
	StableBit *uint8       `json:"stableBit,omitempty"`
}

// FixedDividerSpec is a constant divisor.
type FixedDividerSpec struct {
	Divisor uint32 `json:"divisor"`
}

// Table converts the YAML description into a validated clocktree table. Every
// problem found is reported.
func (ct *ClockTable) Table() (clocktree.Table, error) {
	ids := make(map[string]clocktree.ID, len(ct.Clocks))
	for i, c := range ct.Clocks {
		if _, dup := ids[c.Name]; !dup {
			ids[c.Name] = clocktree.ID(i)
		}
	}

	var errs []error
	table := make(clocktree.Table, len(ct.Clocks))
	for i := range ct.Clocks {
		d, err := ct.descriptor(clocktree.ID(i), &ct.Clocks[i], ids)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		table[i] = d
	}
	if len(errs) > 0 {
		return nil, utilerrors.NewAggregate(errs)
	}
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("clock table %s: %w", ct.Name, err)
	}
	return table, nil
}

func (ct *ClockTable) descriptor(id clocktree.ID, c *ClockSpec, ids map[string]clocktree.ID) (clocktree.Descriptor, error) {
	bad := func(format string, args ...interface{}) error {
		return fmt.Errorf("clock %d (%q): %s: %w", id, c.Name, fmt.Sprintf(format, args...), clocktree.ErrMalformedDescriptor)
	}
	d := clocktree.Descriptor{
		ID:              id,
		Name:            c.Name,
		GlitchSensitive: c.GlitchSensitive,
	}

	if len(c.Parents) > clocktree.MaxParents {
		return d, bad("%d parents, at most %d allowed", len(c.Parents), clocktree.MaxParents)
	}
	for slot, name := range c.Parents {
		if name == "" {
			continue
		}
		pid, ok := ids[name]
		if !ok {
			return d, bad("unknown parent %q", name)
		}
		d.Parents[slot] = &pid
	}

	if c.External != nil {
		d.External = &clocktree.ExternalParams{Rate: c.External.Rate}
	}
	if c.PLL != nil {
		p, err := ct.pllParams(c.PLL)
		if err != nil {
			return d, bad("%v", err)
		}
		d.PLL = p
	}
	if c.Mux != nil {
		d.Mux = &clocktree.MuxParams{Reg: c.Mux.Reg, Select: c.Mux.Select}
		if c.Mux.Busy != nil {
			d.Mux.StatusReg = c.Mux.Busy.Reg
			d.Mux.BusyBit = &c.Mux.Busy.Bit
		}
	}
	if c.Divider != nil {
		d.Divider = &clocktree.DividerParams{
			Reg:       c.Divider.Reg,
			Field:     c.Divider.Field,
			Step:      c.Divider.Step,
			Max:       c.Divider.Max,
			ChangeBit: c.Divider.ChangeBit,
			BusyBit:   c.Divider.BusyBit,
			StopBit:   c.Divider.StopBit,
			StableBit: c.Divider.StableBit,
		}
	}
	if c.FixedDivider != nil {
		d.FixedDivider = &clocktree.FixedDividerParams{Divisor: c.FixedDivider.Divisor}
	}
	if c.Gate != nil {
		d.Gate = &clocktree.GateParams{Reg: c.Gate.Reg, Bit: c.Gate.Bit}
	}
	return d, nil
}

func (ct *ClockTable) pllParams(s *PLLSpec) (*pll.Params, error) {
	p := &pll.Params{
		Reg:            s.Reg,
		M:              s.M,
		N:              s.N,
		OD:             s.OD,
		MOffset:        s.MOffset,
		NOffset:        s.NOffset,
		RateMultiplier: s.RateMultiplier,
		EnableBit:      s.EnableBit,
		StableBit:      s.StableBit,
	}
	if s.Bypass != nil {
		p.BypassReg = s.Bypass.Reg
		p.BypassBit = &s.Bypass.Bit
	}

	switch s.ODKind {
	case "", "exponent":
		p.ODKind = pll.ODExponent
	case "direct":
		p.ODKind = pll.ODDirect
	default:
		return nil, fmt.Errorf("unknown od kind %q", s.ODKind)
	}

	if codes, ok := ct.Encodings[s.ODEncoding]; ok {
		e, err := pll.NewEncoding(codes)
		if err != nil {
			return nil, err
		}
		p.ODEncoding = e
		return p, nil
	}
	e, err := pll.LookupEncoding(s.ODEncoding)
	if err != nil {
		return nil, err
	}
	p.ODEncoding = e
	return p, nil
}
