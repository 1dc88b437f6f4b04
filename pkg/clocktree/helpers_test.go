package clocktree

import (
	"sync"
	"time"

	testingclock "k8s.io/utils/clock/testing"
	"k8s.io/utils/ptr"

	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/event"
	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/pll"
	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/regmap"
)

const (
	extRate  = 24000000
	apllRate = 1200000000

	regCPCCR  = 0x00
	regCPPCR  = 0x0c
	regAPLL   = 0x10
	regCLKGR  = 0x20
	regDDRCDR = 0x2c
	regMSCCDR = 0x68

	apllBypass = 30
	apllEnable = 0
	apllStable = 3

	ddrGate = 31
	ceBit   = 29
	busyBit = 28
	stopBit = 27
)

const (
	idExt ID = iota
	idRTC
	idAPLL
	idSCLK
	idDDR
	idHalf
	idUART
	idMSC
	idMAC
)

// parents builds a parent slot array; -1 marks a reserved slot.
func parents(ids ...int) [MaxParents]*ID {
	var p [MaxParents]*ID
	for i, id := range ids {
		if id >= 0 {
			p[i] = ptr.To(ID(id))
		}
	}
	return p
}

func apllParams() *pll.Params {
	return &pll.Params{
		Reg:            regAPLL,
		M:              regmap.Field{Shift: 20, Width: 9},
		N:              regmap.Field{Shift: 14, Width: 6},
		OD:             regmap.Field{Shift: 11, Width: 3},
		MOffset:        1,
		NOffset:        1,
		RateMultiplier: 2,
		ODEncoding:     &pll.X1830ODEncoding,
		BypassReg:      regCPPCR,
		BypassBit:      ptr.To[uint8](apllBypass),
		EnableBit:      ptr.To[uint8](apllEnable),
		StableBit:      ptr.To[uint8](apllStable),
	}
}

func testTable() Table {
	return Table{
		{ID: idExt, Name: "ext", External: &ExternalParams{Rate: extRate}},
		{ID: idRTC, Name: "rtc", External: &ExternalParams{Rate: 32768}},
		{ID: idAPLL, Name: "apll", Parents: parents(int(idExt)), PLL: apllParams()},
		{
			ID: idSCLK, Name: "sclk", Parents: parents(int(idExt), int(idAPLL)),
			Mux: &MuxParams{Reg: regCPCCR, Select: regmap.Field{Shift: 30, Width: 2}},
		},
		{
			ID: idDDR, Name: "ddr", Parents: parents(-1, int(idSCLK), int(idAPLL)),
			GlitchSensitive: true,
			Mux:             &MuxParams{Reg: regDDRCDR, Select: regmap.Field{Shift: 30, Width: 2}},
			Divider: &DividerParams{
				Reg: regDDRCDR, Field: regmap.Field{Shift: 0, Width: 4}, Step: 1, Max: 8,
				ChangeBit: ptr.To[uint8](ceBit), BusyBit: ptr.To[uint8](busyBit), StopBit: ptr.To[uint8](stopBit),
			},
			Gate: &GateParams{Reg: regCLKGR, Bit: ddrGate},
		},
		{ID: idHalf, Name: "half", Parents: parents(int(idAPLL)), FixedDivider: &FixedDividerParams{Divisor: 2}},
		{ID: idUART, Name: "uart", Parents: parents(int(idExt)), Gate: &GateParams{Reg: regCLKGR, Bit: 14}},
		{
			ID: idMSC, Name: "msc", Parents: parents(int(idExt), int(idAPLL)),
			GlitchSensitive: true,
			Mux:             &MuxParams{Reg: regMSCCDR, Select: regmap.Field{Shift: 31, Width: 1}},
			Divider: &DividerParams{
				Reg: regMSCCDR, Field: regmap.Field{Shift: 0, Width: 8}, Step: 2,
				ChangeBit: ptr.To[uint8](ceBit), BusyBit: ptr.To[uint8](busyBit), StopBit: ptr.To[uint8](stopBit),
			},
		},
		{
			ID: idMAC, Name: "mac", Parents: parents(int(idExt), int(idAPLL)),
			Mux: &MuxParams{Reg: regCPCCR, Select: regmap.Field{Shift: 28, Width: 1}},
		},
	}
}

// newPort returns registers holding APLL at 1.2 GHz. The APLL stable bit follows
// its enable bit.
func newPort() *regmap.Memory {
	m := regmap.NewMemory(0x100)
	p := apllParams()
	m.Poke(regAPLL, pll.Setting{M: 49, N: 0, OD: 1}.Apply(0, p))
	m.SetReadHook(func(off, v uint32) uint32 {
		if off != regAPLL {
			return v
		}
		if v&regmap.Bit(apllEnable) != 0 {
			return v | regmap.Bit(apllStable)
		}
		return v &^ regmap.Bit(apllStable)
	})
	return m
}

func newFakeClock() *testingclock.FakeClock {
	return testingclock.NewFakeClock(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
}

type write struct {
	off uint32
	val uint32
}

// recordWrites logs every write to m. The returned function yields a copy of the log.
func recordWrites(m *regmap.Memory) func() []write {
	var mu sync.Mutex
	var log []write
	m.SetWriteHook(func(off, _, v uint32) uint32 {
		mu.Lock()
		defer mu.Unlock()
		log = append(log, write{off, v})
		return v
	})
	return func() []write {
		mu.Lock()
		defer mu.Unlock()
		return append([]write(nil), log...)
	}
}

type recorder struct {
	mu     sync.Mutex
	events []event.ClockEvent
}

func (r *recorder) ID() string { return "recorder" }

func (r *recorder) Notify(e event.ClockEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) get() []event.ClockEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.ClockEvent(nil), r.events...)
}
