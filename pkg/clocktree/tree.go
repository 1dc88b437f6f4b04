// Package clocktree models the clock generation tree of a system-on-chip and
// drives it through a register port.
//
// A Tree is built from a Table of node descriptors. It computes frequencies by
// walking parent chains, and reprograms muxes, dividers, gates and PLLs with the
// acknowledgment protocol each node declares. One lock serializes all register
// traffic of a tree, polling included.
package clocktree

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"k8s.io/utils/clock"

	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/event"
	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/regmap"
)

const (
	// DefaultPollInterval is the delay between two acknowledgment polls.
	DefaultPollInterval = time.Millisecond
	// DefaultPollRetries is the number of acknowledgment polls before a change times out.
	DefaultPollRetries = 100
)

// node is the runtime state of one clock. All fields are guarded by Tree.mu.
type node struct {
	desc *Descriptor
	caps Capability

	enableCount int
	parentSlot  int
	rawDiv      uint32
	state       State
	lastErr     error
}

// Tree owns the runtime state of every clock of one table and the port they are
// programmed through.
type Tree struct {
	mu     sync.Mutex
	port   regmap.Port
	nodes  []*node
	byName map[string]ID

	clock        clock.Clock
	pollInterval time.Duration
	pollRetries  int
	notifier     event.Notifier

	clocks []*Clock
}

type options struct {
	clock         clock.Clock
	pollInterval  time.Duration
	pollRetries   int
	notifier      event.Notifier
	externalRates map[string]uint64
}

// Option configures a Tree.
type Option func(*options)

// WithClock sets the time source used between acknowledgment polls.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithPollInterval sets the delay between acknowledgment polls.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) { o.pollInterval = d }
}

// WithPollRetries sets how many times an acknowledgment bit is polled before the
// change is reported as timed out.
func WithPollRetries(n int) Option {
	return func(o *options) { o.pollRetries = n }
}

// WithNotifier sets the receiver of change events.
func WithNotifier(n event.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithExternalRate overrides the rate of the external clock with the given name.
func WithExternalRate(name string, rate uint64) Option {
	return func(o *options) {
		if o.externalRates == nil {
			o.externalRates = map[string]uint64{}
		}
		o.externalRates[name] = rate
	}
}

// New validates table and binds it to port. The table is copied; later changes to
// the caller's slice do not affect the tree.
func New(table Table, port regmap.Port, opts ...Option) (*Tree, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if port == nil {
		return nil, fmt.Errorf("nil register port: %w", ErrMalformedDescriptor)
	}
	if o.pollRetries < 1 {
		return nil, fmt.Errorf("poll retries %d must be positive: %w", o.pollRetries, ErrMalformedDescriptor)
	}

	tbl := make(Table, len(table))
	copy(tbl, table)
	for name, rate := range o.externalRates {
		d, ok := tbl.Lookup(name)
		if !ok || d.External == nil {
			return nil, fmt.Errorf("rate override for %q: no such external clock: %w", name, ErrMalformedDescriptor)
		}
		d.External = &ExternalParams{Rate: rate}
	}
	if err := tbl.Validate(); err != nil {
		return nil, err
	}
	if s, ok := port.(regmap.Sized); ok {
		if err := tbl.checkRegisters(s.Size()); err != nil {
			return nil, err
		}
	}

	t := newTree(tbl, port, o)
	glog.Infof("clock tree: %d clocks bound, poll budget %d x %s", len(tbl), t.pollRetries, t.pollInterval)
	return t, nil
}

func defaultOptions() options {
	return options{
		clock:        clock.RealClock{},
		pollInterval: DefaultPollInterval,
		pollRetries:  DefaultPollRetries,
	}
}

// newTree builds the runtime state for an already validated table.
func newTree(tbl Table, port regmap.Port, o options) *Tree {
	t := &Tree{
		port:         tracePort{port},
		nodes:        make([]*node, len(tbl)),
		byName:       make(map[string]ID, len(tbl)),
		clock:        o.clock,
		pollInterval: o.pollInterval,
		pollRetries:  o.pollRetries,
		notifier:     o.notifier,
		clocks:       make([]*Clock, len(tbl)),
	}
	for i := range tbl {
		d := &tbl[i]
		n := &node{desc: d, caps: d.Capabilities()}
		t.nodes[i] = n
		t.byName[d.Name] = d.ID
		t.clocks[i] = newClock(t, n)
	}
	return t
}

// Len returns the number of clocks.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Descriptor returns the descriptor of a clock.
func (t *Tree) Descriptor(id ID) (Descriptor, error) {
	n, err := t.node(id)
	if err != nil {
		return Descriptor{}, err
	}
	return *n.desc, nil
}

// Clock returns the handle of a clock.
func (t *Tree) Clock(id ID) (*Clock, error) {
	if _, err := t.node(id); err != nil {
		return nil, err
	}
	return t.clocks[id], nil
}

// Lookup returns the handle of the clock with the given name.
func (t *Tree) Lookup(name string) (*Clock, bool) {
	id, ok := t.byName[name]
	if !ok {
		return nil, false
	}
	return t.clocks[id], true
}

// Clocks returns the handles of all clocks in ID order.
func (t *Tree) Clocks() []*Clock {
	out := make([]*Clock, len(t.clocks))
	copy(out, t.clocks)
	return out
}

func (t *Tree) node(id ID) (*node, error) {
	if id < 0 || int(id) >= len(t.nodes) {
		return nil, fmt.Errorf("clock id %d: %w", id, ErrUnknownClock)
	}
	return t.nodes[id], nil
}

func (t *Tree) name(id ID) string {
	if id < 0 || int(id) >= len(t.nodes) {
		return fmt.Sprintf("#%d", id)
	}
	return t.nodes[id].desc.Name
}

// tracePort logs every register access at V(4).
type tracePort struct {
	regmap.Port
}

func (p tracePort) Read32(off uint32) uint32 {
	v := p.Port.Read32(off)
	glog.V(4).Infof("clock tree: read  %#04x = %#08x", off, v)
	return v
}

func (p tracePort) Write32(off, v uint32) {
	glog.V(4).Infof("clock tree: write %#04x = %#08x", off, v)
	p.Port.Write32(off, v)
}

func (t *Tree) read(off uint32) uint32 {
	return t.port.Read32(off)
}

func (t *Tree) write(off, v uint32) {
	t.port.Write32(off, v)
}

func (t *Tree) update(off uint32, modify func(uint32) uint32) uint32 {
	return regmap.Update(t.port, off, modify)
}

func (t *Tree) setBit(off uint32, bit uint8, on bool) {
	regmap.SetBit(t.port, off, bit, on)
}

// publish hands events to the notifier. It must be called without t.mu held.
func (t *Tree) publish(events []event.ClockEvent) {
	if t.notifier == nil || len(events) == 0 {
		return
	}
	now := t.clock.Now()
	for i := range events {
		events[i].Time = now
	}
	t.notifier.Publish(events...)
}
