// Package cgusim emulates the acknowledgment behaviour of a clock generation unit
// on top of an in-memory register region. PLLs report lock and dividers report
// completion a configurable number of register reads after they are changed.
package cgusim

import (
	"sync"

	"github.com/golang/glog"

	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/clocktree"
	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/regmap"
)

const (
	DefaultSize      = 0x1000
	DefaultLockReads = 3
	DefaultBusyReads = 2
)

type pllBits struct {
	enable *uint8
	stable *uint8
}

type divBits struct {
	change *uint8
	busy   *uint8
	stable *uint8
}

// Sim is a regmap.Port whose registers acknowledge PLL and divider changes like
// the hardware does.
type Sim struct {
	*regmap.Memory

	mu        sync.Mutex
	lockReads int
	busyReads int
	plls      map[uint32][]pllBits
	dividers  map[uint32][]divBits
	// pending counts the reads left until a register acknowledges
	pending map[uint32]int
	stuck   map[uint32]bool
}

// Option configures a Sim.
type Option func(*Sim)

// WithLockReads sets how many reads of a PLL register pass before it reports lock.
func WithLockReads(n int) Option {
	return func(s *Sim) { s.lockReads = n }
}

// WithBusyReads sets how many reads of a divider register pass before it clears busy.
func WithBusyReads(n int) Option {
	return func(s *Sim) { s.busyReads = n }
}

// WithRegisters seeds register contents.
func WithRegisters(regs map[uint32]uint32) Option {
	return func(s *Sim) {
		for off, v := range regs {
			s.Poke(off, v)
		}
	}
}

// New returns a simulated register region for the clocks of table.
func New(table clocktree.Table, size uint32, opts ...Option) *Sim {
	if size == 0 {
		size = DefaultSize
	}
	s := &Sim{
		Memory:    regmap.NewMemory(size),
		lockReads: DefaultLockReads,
		busyReads: DefaultBusyReads,
		plls:      map[uint32][]pllBits{},
		dividers:  map[uint32][]divBits{},
		pending:   map[uint32]int{},
		stuck:     map[uint32]bool{},
	}
	for i := range table {
		d := &table[i]
		if d.PLL != nil && d.PLL.StableBit != nil {
			s.plls[d.PLL.Reg] = append(s.plls[d.PLL.Reg], pllBits{enable: d.PLL.EnableBit, stable: d.PLL.StableBit})
		}
		if d.Divider != nil && (d.Divider.BusyBit != nil || d.Divider.StableBit != nil) {
			s.dividers[d.Divider.Reg] = append(s.dividers[d.Divider.Reg], divBits{
				change: d.Divider.ChangeBit,
				busy:   d.Divider.BusyBit,
				stable: d.Divider.StableBit,
			})
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	s.SetWriteHook(s.onWrite)
	s.SetReadHook(s.onRead)
	glog.Infof("cgusim: %d PLL and %d divider registers simulated", len(s.plls), len(s.dividers))
	return s
}

// Stick makes the register at off never acknowledge again, until Unstick.
func (s *Sim) Stick(off uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stuck[off] = true
}

func (s *Sim) Unstick(off uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.stuck, off)
}

// Pending reports whether the register at off has an acknowledgment outstanding.
func (s *Sim) Pending(off uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[off]
	return ok
}

func set(v uint32, bit *uint8, on bool) uint32 {
	if bit == nil {
		return v
	}
	if on {
		return v | regmap.Bit(*bit)
	}
	return v &^ regmap.Bit(*bit)
}

func isSet(v uint32, bit *uint8) bool {
	return bit != nil && v&regmap.Bit(*bit) != 0
}

// onWrite runs with the Memory lock held.
func (s *Sim) onWrite(off, old, v uint32) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.plls[off] {
		enabled := p.enable == nil || isSet(v, p.enable)
		// any write to a running PLL restarts the lock sequence; the stable bit is read only
		v = set(v, p.stable, isSet(old, p.stable))
		if !enabled {
			v = set(v, p.stable, false)
			delete(s.pending, off)
			continue
		}
		if v&^regmap.Bit(*p.stable) != old&^regmap.Bit(*p.stable) {
			v = set(v, p.stable, false)
			s.pending[off] = s.lockReads
		}
	}
	for _, d := range s.dividers[off] {
		if d.change != nil && !isSet(v, d.change) {
			continue
		}
		if v == old {
			continue
		}
		v = set(v, d.busy, true)
		v = set(v, d.stable, false)
		s.pending[off] = s.busyReads
	}
	return v
}

// onRead runs with the Memory lock held.
func (s *Sim) onRead(off, v uint32) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	left, ok := s.pending[off]
	if !ok || s.stuck[off] {
		return v
	}
	if left > 0 {
		s.pending[off] = left - 1
		return v
	}
	delete(s.pending, off)
	for _, p := range s.plls[off] {
		if p.enable == nil || isSet(v, p.enable) {
			v = set(v, p.stable, true)
		}
	}
	for _, d := range s.dividers[off] {
		v = set(v, d.busy, false)
		v = set(v, d.stable, true)
	}
	glog.V(4).Infof("cgusim: register %#04x acknowledged", off)
	return v
}
