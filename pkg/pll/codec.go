// Package pll converts between PLL register encodings and output frequencies.
//
// A PLL output is parent * M * multiplier / (N * OD). M and N are stored as raw
// fields plus a fixed offset. OD is stored through a 64-entry lookup table in which
// most raw codes are reserved.
package pll

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/regmap"
)

// ErrInvalidEncoding is returned for reserved OD codes, a zero N and settings whose
// rate cannot be represented.
var ErrInvalidEncoding = errors.New("invalid PLL encoding")

// EncodingSize is the number of entries in an OD encoding table.
const EncodingSize = 64

// Encoding maps a raw OD field value to a divider code. -1 marks a reserved value.
type Encoding [EncodingSize]int8

// ODKind selects how the values of an Encoding are turned into a divider.
type ODKind int

const (
	// ODExponent tables hold exponents: the divider is 2^value.
	ODExponent ODKind = iota
	// ODDirect tables hold the divider itself.
	ODDirect
)

func (k ODKind) String() string {
	switch k {
	case ODExponent:
		return "exponent"
	case ODDirect:
		return "direct"
	}
	return fmt.Sprintf("ODKind(%d)", int(k))
}

// Params is the register layout of one PLL.
type Params struct {
	Reg            uint32
	M              regmap.Field
	N              regmap.Field
	OD             regmap.Field
	MOffset        uint32
	NOffset        uint32
	RateMultiplier uint32
	ODEncoding     *Encoding
	ODKind         ODKind
	// BypassReg and BypassBit locate the bypass control. A nil BypassBit means the
	// PLL cannot be bypassed.
	BypassReg uint32
	BypassBit *uint8
	EnableBit *uint8
	StableBit *uint8
}

// Registers carries the raw words the codec needs: the PLL control register and the
// register holding the bypass bit.
type Registers struct {
	Control uint32
	Bypass  uint32
}

// Setting is a raw M/N/OD field triple.
type Setting struct {
	M  uint32
	N  uint32
	OD uint32
}

func (s Setting) String() string {
	return fmt.Sprintf("M=%d N=%d OD=%d", s.M, s.N, s.OD)
}

// Apply packs the setting into a control register word.
func (s Setting) Apply(word uint32, p *Params) uint32 {
	word = p.M.Set(word, s.M)
	word = p.N.Set(word, s.N)
	return p.OD.Set(word, s.OD)
}

// Bypassed reports whether the bypass bit is set in the bypass register word.
func (p *Params) Bypassed(bypassWord uint32) bool {
	return p.BypassBit != nil && bypassWord&regmap.Bit(*p.BypassBit) != 0
}

func (p *Params) multiplier() uint64 {
	if p.RateMultiplier == 0 {
		return 1
	}
	return uint64(p.RateMultiplier)
}

// Divider returns the output divider for a raw OD field value.
func (p *Params) Divider(rawOD uint32) (uint64, error) {
	if p.ODEncoding == nil {
		return 0, fmt.Errorf("no OD encoding table: %w", ErrInvalidEncoding)
	}
	if rawOD >= EncodingSize {
		return 0, fmt.Errorf("OD code %d outside the encoding table: %w", rawOD, ErrInvalidEncoding)
	}
	v := p.ODEncoding[rawOD]
	if v < 0 {
		return 0, fmt.Errorf("OD code %d is reserved: %w", rawOD, ErrInvalidEncoding)
	}
	switch p.ODKind {
	case ODExponent:
		if v > 31 {
			return 0, fmt.Errorf("OD code %d exponent %d too large: %w", rawOD, v, ErrInvalidEncoding)
		}
		return uint64(1) << uint(v), nil
	case ODDirect:
		if v == 0 {
			return 0, fmt.Errorf("OD code %d divides by zero: %w", rawOD, ErrInvalidEncoding)
		}
		return uint64(v), nil
	}
	return 0, fmt.Errorf("unknown OD kind %v: %w", p.ODKind, ErrInvalidEncoding)
}

// Decode computes the PLL output frequency from the raw registers. It performs no
// register access.
func Decode(parentRate uint64, regs Registers, p *Params) (uint64, error) {
	if p.Bypassed(regs.Bypass) {
		return parentRate, nil
	}
	s := Setting{
		M:  p.M.Get(regs.Control),
		N:  p.N.Get(regs.Control),
		OD: p.OD.Get(regs.Control),
	}
	return rate(parentRate, s, p)
}

func rate(parentRate uint64, s Setting, p *Params) (uint64, error) {
	m := uint64(s.M) + uint64(p.MOffset)
	n := uint64(s.N) + uint64(p.NOffset)
	if n == 0 {
		return 0, fmt.Errorf("N is zero: %w", ErrInvalidEncoding)
	}
	od, err := p.Divider(s.OD)
	if err != nil {
		return 0, err
	}
	r, ok := mulDiv(parentRate, m*p.multiplier(), n*od)
	if !ok {
		return 0, fmt.Errorf("%v overflows the output rate: %w", s, ErrInvalidEncoding)
	}
	return r, nil
}

// Encode searches for the setting with the highest output rate at or below target.
// Ties are broken towards the smaller N and then the smaller OD. The chosen setting
// is checked by decoding it again before it is returned.
func Encode(parentRate, target uint64, p *Params) (Setting, uint64, error) {
	var best Setting
	var bestRate uint64
	found := false
	denom := parentRate * p.multiplier()
	if denom == 0 {
		return Setting{}, 0, fmt.Errorf("parent rate is zero: %w", ErrInvalidEncoding)
	}

	for rawOD := uint32(0); rawOD <= p.OD.Max() && rawOD < EncodingSize; rawOD++ {
		od, err := p.Divider(rawOD)
		if err != nil {
			continue
		}
		for rawN := uint32(0); rawN <= p.N.Max(); rawN++ {
			n := uint64(rawN) + uint64(p.NOffset)
			if n == 0 {
				continue
			}
			m, ok := mulDiv(target, n*od, denom)
			if !ok || m > uint64(p.M.Max())+uint64(p.MOffset) {
				m = uint64(p.M.Max()) + uint64(p.MOffset)
			}
			if m < uint64(p.MOffset) {
				continue
			}
			s := Setting{M: uint32(m - uint64(p.MOffset)), N: rawN, OD: rawOD}
			r, err := rate(parentRate, s, p)
			if err != nil || r > target {
				continue
			}
			if !found || r > bestRate {
				best, bestRate, found = s, r, true
			}
		}
	}
	if !found {
		return Setting{}, 0, fmt.Errorf("no setting reaches %d Hz or below from %d Hz: %w", target, parentRate, ErrInvalidEncoding)
	}

	check, err := Decode(parentRate, Registers{Control: best.Apply(0, p)}, p)
	if err != nil {
		return Setting{}, 0, err
	}
	if check != bestRate {
		return Setting{}, 0, fmt.Errorf("%v decodes to %d Hz, expected %d Hz: %w", best, check, bestRate, ErrInvalidEncoding)
	}
	return best, bestRate, nil
}

// mulDiv returns a*b/c truncated, computed in 128 bits. ok is false when the
// product overflows or the quotient does not fit in 64 bits.
func mulDiv(a, b, c uint64) (uint64, bool) {
	if c == 0 {
		return 0, false
	}
	if b != 0 && a > ^uint64(0)/b {
		hi, lo := bits.Mul64(a, b)
		if hi >= c {
			return 0, false
		}
		q, _ := bits.Div64(hi, lo, c)
		return q, true
	}
	return a * b / c, true
}
