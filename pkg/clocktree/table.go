package clocktree

import (
	"fmt"
	"strings"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/pll"
	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/regmap"
)

const (
	maxPLLFieldWidth = 16
	maxODFieldWidth  = 6
	maxMuxFieldWidth = 8
)

// Validate checks every structural invariant of the table and returns all problems
// found as one aggregate error. Per-node problems wrap ErrMalformedDescriptor and a
// parent cycle wraps ErrCyclicDependency.
func (t Table) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("empty clock table: %w", ErrMalformedDescriptor)
	}
	var errs []error
	names := sets.New[string]()
	for i := range t {
		d := &t[i]
		if d.Name != "" {
			if names.Has(d.Name) {
				errs = append(errs, malformed(i, d, "duplicate name"))
			}
			names.Insert(d.Name)
		}
		errs = append(errs, t.validateDescriptor(i, d)...)
	}
	if len(errs) > 0 {
		return utilerrors.NewAggregate(errs)
	}
	if err := t.checkAcyclic(); err != nil {
		return utilerrors.NewAggregate([]error{err})
	}
	return nil
}

// checkRegisters verifies that every register offset the table refers to is word
// aligned and inside the port window.
func (t Table) checkRegisters(size uint32) error {
	var errs []error
	for i := range t {
		d := &t[i]
		for _, off := range registersOf(d) {
			if off%4 != 0 {
				errs = append(errs, malformed(i, d, "register %#x not word aligned", off))
			} else if size < 4 || off > size-4 {
				errs = append(errs, malformed(i, d, "register %#x outside port window of %#x bytes", off, size))
			}
		}
	}
	return utilerrors.NewAggregate(errs)
}

func registersOf(d *Descriptor) []uint32 {
	var regs []uint32
	if d.PLL != nil {
		regs = append(regs, d.PLL.Reg)
		if d.PLL.BypassBit != nil {
			regs = append(regs, d.PLL.BypassReg)
		}
	}
	if d.Mux != nil {
		regs = append(regs, d.Mux.Reg)
		if d.Mux.BusyBit != nil {
			regs = append(regs, d.Mux.StatusReg)
		}
	}
	if d.Divider != nil {
		regs = append(regs, d.Divider.Reg)
	}
	if d.Gate != nil {
		regs = append(regs, d.Gate.Reg)
	}
	return regs
}

func malformed(i int, d *Descriptor, format string, args ...interface{}) error {
	return fmt.Errorf("clock %d (%q): %s: %w", i, d.Name, fmt.Sprintf(format, args...), ErrMalformedDescriptor)
}

func (t Table) validateDescriptor(i int, d *Descriptor) []error {
	var errs []error
	bad := func(format string, args ...interface{}) {
		errs = append(errs, malformed(i, d, format, args...))
	}

	if d.ID != ID(i) {
		bad("id %d does not match table index", d.ID)
	}
	if d.Name == "" {
		bad("empty name")
	}
	for slot, p := range d.Parents {
		if p != nil && (*p < 0 || int(*p) >= len(t)) {
			bad("parent slot %d refers to clock %d outside the table", slot, *p)
		}
	}

	caps := d.Capabilities()
	slots := d.validSlots()
	switch {
	case caps == 0:
		bad("no capability")
	case caps.Has(CapExternal):
		if caps != CapExternal {
			bad("external clock combined with %s", caps&^CapExternal)
		}
		if len(slots) != 0 {
			bad("external clock has parents")
		}
		if d.External.Rate == 0 {
			bad("external clock has no rate")
		}
		return errs
	case caps.Has(CapPLL):
		if caps&^(CapPLL|CapGate) != 0 {
			bad("pll combined with %s", caps&^(CapPLL|CapGate))
		}
		errs = append(errs, validatePLL(i, d, d.PLL)...)
	case caps.Has(CapFixedDivider):
		// a fixed divider has no register fields at all
		if caps != CapFixedDivider {
			bad("fixed divider combined with %s", caps&^CapFixedDivider)
		}
		if d.FixedDivider.Divisor == 0 {
			bad("fixed divisor is zero")
		}
	}

	if d.Mux != nil {
		f := d.Mux.Select
		if !f.Valid() || f.Width > maxMuxFieldWidth {
			bad("mux select field %s invalid", f)
		}
		if len(slots) == 0 {
			bad("mux has no valid parent")
		}
		for _, s := range slots {
			if uint32(s) > f.Max() {
				bad("parent slot %d not reachable through select field %s", s, f)
			}
		}
		if d.Mux.BusyBit != nil && *d.Mux.BusyBit > 31 {
			bad("mux busy bit %d out of range", *d.Mux.BusyBit)
		}
	} else if len(slots) != 1 || slots[0] != 0 {
		bad("clock without mux needs exactly one parent in slot 0")
	}

	if d.Divider != nil {
		errs = append(errs, validateDivider(i, d, d.Divider)...)
		if d.Mux != nil && d.Mux.Reg == d.Divider.Reg && d.Mux.Select.Mask()&d.Divider.Field.Mask() != 0 {
			bad("mux field %s overlaps divider field %s", d.Mux.Select, d.Divider.Field)
		}
	}
	if d.Gate != nil && d.Gate.Bit > 31 {
		bad("gate bit %d out of range", d.Gate.Bit)
	}
	if d.GlitchSensitive && d.Mux == nil && d.Divider == nil {
		bad("glitch sensitive clock has neither mux nor divider")
	}
	return errs
}

func validateDivider(i int, d *Descriptor, p *DividerParams) []error {
	var errs []error
	if !p.Field.Valid() {
		errs = append(errs, malformed(i, d, "divider field %s invalid", p.Field))
	}
	if p.Step == 0 {
		errs = append(errs, malformed(i, d, "divider step is zero"))
	}
	for name, b := range map[string]*uint8{"change": p.ChangeBit, "busy": p.BusyBit, "stop": p.StopBit, "stable": p.StableBit} {
		if b == nil {
			continue
		}
		if *b > 31 {
			errs = append(errs, malformed(i, d, "divider %s bit %d out of range", name, *b))
			continue
		}
		if p.Field.Valid() && p.Field.Mask()&regmap.Bit(*b) != 0 {
			errs = append(errs, malformed(i, d, "divider %s bit %d inside divide field %s", name, *b, p.Field))
		}
	}
	return errs
}

func validatePLL(i int, d *Descriptor, p *pll.Params) []error {
	var errs []error
	bad := func(format string, args ...interface{}) {
		errs = append(errs, malformed(i, d, format, args...))
	}
	for _, f := range []struct {
		name  string
		field regmap.Field
		limit uint8
	}{{"m", p.M, maxPLLFieldWidth}, {"n", p.N, maxPLLFieldWidth}, {"od", p.OD, maxODFieldWidth}} {
		if !f.field.Valid() || f.field.Width > f.limit {
			bad("pll %s field %s invalid", f.name, f.field)
		}
	}
	if p.M.Mask()&p.N.Mask() != 0 || p.M.Mask()&p.OD.Mask() != 0 || p.N.Mask()&p.OD.Mask() != 0 {
		bad("pll fields %s, %s and %s overlap", p.M, p.N, p.OD)
	}
	if p.ODEncoding == nil {
		bad("pll has no od encoding table")
	}
	for name, b := range map[string]*uint8{"bypass": p.BypassBit, "enable": p.EnableBit, "stable": p.StableBit} {
		if b != nil && *b > 31 {
			bad("pll %s bit %d out of range", name, *b)
		}
	}
	return errs
}

// checkAcyclic runs a depth-first search over every parent edge, mux candidates
// included, and reports the first cycle found.
func (t Table) checkAcyclic() error {
	const (
		white = iota
		grey
		black
	)
	color := make([]int, len(t))
	var path []ID
	var visit func(id ID) error
	visit = func(id ID) error {
		switch color[id] {
		case grey:
			return fmt.Errorf("%s: %w", t.cyclePath(path, id), ErrCyclicDependency)
		case black:
			return nil
		}
		color[id] = grey
		path = append(path, id)
		for _, p := range t[id].Parents {
			if p == nil {
				continue
			}
			if err := visit(*p); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		return nil
	}
	for i := range t {
		if err := visit(ID(i)); err != nil {
			return err
		}
	}
	return nil
}

func (t Table) cyclePath(path []ID, back ID) string {
	start := 0
	for i, id := range path {
		if id == back {
			start = i
			break
		}
	}
	var names []string
	for _, id := range path[start:] {
		names = append(names, t[id].Name)
	}
	names = append(names, t[back].Name)
	return strings.Join(names, " -> ")
}
