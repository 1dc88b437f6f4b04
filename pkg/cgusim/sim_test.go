package cgusim_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/bindings"
	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/cgusim"
	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/clocktree"
	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/hardwareconfig"
	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/regmap"
)

const (
	regAPLL   = 0x10
	regDDRCDR = 0x2c
)

type fixture struct {
	sim   *cgusim.Sim
	tree  *clocktree.Tree
	clock *testingclock.FakeClock
	start time.Time
}

func newFixture(t *testing.T, opts ...clocktree.Option) *fixture {
	t.Helper()
	ct, err := hardwareconfig.LoadClockTable("ingenic/x1830")
	require.NoError(t, err)
	table, err := ct.Table()
	require.NoError(t, err)

	f := &fixture{
		sim:   cgusim.New(table, 0x100, cgusim.WithRegisters(ct.Registers())),
		clock: testingclock.NewFakeClock(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)),
	}
	f.start = f.clock.Now()
	opts = append([]clocktree.Option{clocktree.WithClock(f.clock), clocktree.WithPollInterval(time.Millisecond)}, opts...)
	f.tree, err = clocktree.New(table, f.sim, opts...)
	require.NoError(t, err)
	return f
}

func TestBootState(t *testing.T) {
	f := newFixture(t)
	testCases := []struct {
		id   clocktree.ID
		want uint64
	}{
		{bindings.X1830ClkAPLL, 1200000000},
		{bindings.X1830ClkMPLL, 600000000},
		{bindings.X1830ClkVPLL, 24000000},
		{bindings.X1830ClkCPU, 1200000000},
		{bindings.X1830ClkAHB0, 200000000},
		{bindings.X1830ClkDDR, 200000000},
		{bindings.X1830ClkMAC, 50000000},
		{bindings.X1830ClkSSIPLL, 100000000},
		{bindings.X1830ClkSSIPLLDiv2, 50000000},
	}
	for _, tc := range testCases {
		got, err := f.tree.Rate(tc.id)
		assert.NoError(t, err)
		assert.Equal(t, tc.want, got, bindings.X1830Names[tc.id])
	}
	for _, s := range f.tree.Snapshot() {
		assert.Empty(t, s.Error, s.Name)
	}
}

func TestPLLRelock(t *testing.T) {
	f := newFixture(t)

	// already running and locked
	require.NoError(t, f.tree.Enable(bindings.X1830ClkAPLL))
	assert.Zero(t, f.clock.Since(f.start))

	require.NoError(t, f.tree.Disable(bindings.X1830ClkAPLL))
	assert.Zero(t, f.sim.Peek(regAPLL)&regmap.Bit(3), "stable drops with enable")

	require.NoError(t, f.tree.Enable(bindings.X1830ClkAPLL))
	assert.Equal(t, 3*time.Millisecond, f.clock.Since(f.start))
	assert.NotZero(t, f.sim.Peek(regAPLL)&regmap.Bit(3))
	assert.False(t, f.sim.Pending(regAPLL))
}

func TestPLLSetRate(t *testing.T) {
	f := newFixture(t)

	got, err := f.tree.SetRate(bindings.X1830ClkMPLL, 1200000000)
	require.NoError(t, err)
	assert.Equal(t, uint64(1200000000), got)
	assert.Positive(t, int64(f.clock.Since(f.start)))

	rate, err := f.tree.Rate(bindings.X1830ClkAHB0)
	assert.NoError(t, err)
	assert.Equal(t, uint64(400000000), rate)
}

func TestDividerHandshake(t *testing.T) {
	f := newFixture(t)

	got, err := f.tree.SetRate(bindings.X1830ClkDDR, 300000000)
	require.NoError(t, err)
	assert.Equal(t, uint64(300000000), got)
	assert.Equal(t, 2*time.Millisecond, f.clock.Since(f.start))
	assert.Zero(t, f.sim.Peek(regDDRCDR)&regmap.Bit(28), "busy cleared")
	assert.False(t, f.sim.Pending(regDDRCDR))
}

func TestStuckDivider(t *testing.T) {
	f := newFixture(t, clocktree.WithPollRetries(5))
	f.sim.Stick(regDDRCDR)

	_, err := f.tree.SetRate(bindings.X1830ClkDDR, 300000000)
	assert.ErrorIs(t, err, clocktree.ErrReconfigureTimeout)
	assert.Equal(t, 4*time.Millisecond, f.clock.Since(f.start))
	assert.True(t, f.sim.Pending(regDDRCDR))

	f.sim.Unstick(regDDRCDR)
	got, err := f.tree.SetRate(bindings.X1830ClkDDR, 150000000)
	require.NoError(t, err)
	assert.Equal(t, uint64(150000000), got)
	ddr, ok := f.tree.Lookup("ddr")
	require.True(t, ok)
	s, lastErr := ddr.State()
	assert.Equal(t, clocktree.StateStable, s)
	assert.NoError(t, lastErr)
}

func TestWritesWithoutChangeBit(t *testing.T) {
	table := clocktree.Table{
		{ID: 0, Name: "ext", External: &clocktree.ExternalParams{Rate: 1000}},
	}
	sim := cgusim.New(table, 0)
	sim.Write32(0x40, 1)
	assert.Equal(t, uint32(1), sim.Read32(0x40))
	assert.False(t, sim.Pending(0x40))
	assert.Equal(t, uint32(cgusim.DefaultSize), sim.Size())
}
