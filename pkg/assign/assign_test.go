package assign

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/bindings"
	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/cgusim"
	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/clocktree"
	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/hardwareconfig"
)

const doc = `
assignments:
  - clock: ddr
    parent: sclk_a
    rate: 300000000
  - clock: uart0
    enabled: true
  - clock: msc0
    rate: 50000000
    enabled: true
`

func newTree(t *testing.T) *clocktree.Tree {
	t.Helper()
	ct, err := hardwareconfig.LoadClockTable("ingenic/x1830")
	require.NoError(t, err)
	table, err := ct.Table()
	require.NoError(t, err)
	fake := testingclock.NewFakeClock(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	tree, err := clocktree.New(table, cgusim.New(table, 0x100, cgusim.WithRegisters(ct.Registers())),
		clocktree.WithClock(fake))
	require.NoError(t, err)
	return tree
}

func enableCount(t *testing.T, tree *clocktree.Tree, id clocktree.ID) int {
	t.Helper()
	c, err := tree.Clock(id)
	require.NoError(t, err)
	return c.EnableCount()
}

func TestDecode(t *testing.T) {
	d, err := Decode([]byte(doc))
	require.NoError(t, err)
	require.Len(t, d.Assignments, 3)
	assert.Equal(t, "sclk_a", d.Assignments[0].Parent)
	assert.Nil(t, d.Assignments[0].Enabled)
	assert.True(t, *d.Assignments[1].Enabled)

	_, err = Decode([]byte("assignments:\n  - clock: ddr\n    frequency: 1\n"))
	assert.Error(t, err)
	_, err = Decode([]byte("assignments:\n  - rate: 1\n"))
	assert.Error(t, err)
}

func TestApply(t *testing.T) {
	tree := newTree(t)
	d, err := Decode([]byte(doc))
	require.NoError(t, err)
	a := NewApplier(tree)
	require.NoError(t, a.Apply(d))

	parent, err := tree.Parent(bindings.X1830ClkDDR)
	require.NoError(t, err)
	assert.Equal(t, bindings.X1830ClkSCLKA, parent)
	rate, err := tree.Rate(bindings.X1830ClkDDR)
	require.NoError(t, err)
	assert.Equal(t, uint64(300000000), rate)
	assert.Equal(t, 1, enableCount(t, tree, bindings.X1830ClkUART0))
	assert.Equal(t, 1, enableCount(t, tree, bindings.X1830ClkMSC0))

	// applying again holds the same single vote
	require.NoError(t, a.Apply(d))
	assert.Equal(t, 1, enableCount(t, tree, bindings.X1830ClkUART0))

	// dropping a clock from the document releases its vote
	d.Assignments = d.Assignments[:2]
	require.NoError(t, a.Apply(d))
	assert.Equal(t, 1, enableCount(t, tree, bindings.X1830ClkUART0))
	assert.Zero(t, enableCount(t, tree, bindings.X1830ClkMSC0))
}

func TestApplyCollectsErrors(t *testing.T) {
	tree := newTree(t)
	d, err := Decode([]byte(`
assignments:
  - clock: nope
    enabled: true
  - clock: cpu_mux
    parent: ext
  - clock: uart1
    enabled: true
  - clock: tcu
    rate: 1000
`))
	require.NoError(t, err)
	err = NewApplier(tree).Apply(d)
	require.Error(t, err)
	assert.ErrorIs(t, err, clocktree.ErrUnknownClock)
	assert.ErrorIs(t, err, clocktree.ErrInvalidParentSelect)
	assert.ErrorIs(t, err, clocktree.ErrUnsupportedOperation)
	assert.Equal(t, 1, enableCount(t, tree, bindings.X1830ClkUART1))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	tmp := filepath.Join(filepath.Dir(path), ".tmp-assignments")
	require.NoError(t, os.WriteFile(tmp, []byte(content), 0o644))
	require.NoError(t, os.Rename(tmp, path))
}

func TestWatcher(t *testing.T) {
	tree := newTree(t)
	path := filepath.Join(t.TempDir(), "assignments.yaml")
	writeFile(t, path, "assignments:\n  - clock: uart0\n    enabled: true\n")

	a := NewApplier(tree)
	require.NoError(t, a.ApplyFile(path))
	assert.Equal(t, 1, enableCount(t, tree, bindings.X1830ClkUART0))

	w, err := NewWatcher(path, a)
	require.NoError(t, err)
	applied := make(chan error, 16)
	w.OnApply(func(err error) { applied <- err })
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- w.Run(ctx) }()

	writeFile(t, path, "assignments:\n  - clock: uart1\n    enabled: true\n")
	select {
	case err = <-applied:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("assignments were not re-applied")
	}
	assert.Zero(t, enableCount(t, tree, bindings.X1830ClkUART0))
	assert.Equal(t, 1, enableCount(t, tree, bindings.X1830ClkUART1))

	cancel()
	assert.NoError(t, <-done)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
