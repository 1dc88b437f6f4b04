package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/ptr"

	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/clocktree"
	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/regmap"
	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/registry"
)

func newTree(t *testing.T, names ...string) *clocktree.Tree {
	t.Helper()
	table := clocktree.Table{{ID: 0, Name: names[0], External: &clocktree.ExternalParams{Rate: 24000000}}}
	for i, name := range names[1:] {
		var parents [clocktree.MaxParents]*clocktree.ID
		parents[0] = ptr.To(clocktree.ID(0))
		table = append(table, clocktree.Descriptor{
			ID:      clocktree.ID(i + 1),
			Name:    name,
			Parents: parents,
			Gate:    &clocktree.GateParams{Reg: 0x20, Bit: uint8(i)},
		})
	}
	tree, err := clocktree.New(table, regmap.NewMemory(0x100))
	require.NoError(t, err)
	return tree
}

func TestPublish(t *testing.T) {
	r := registry.New()
	tree := newTree(t, "ext", "uart0", "uart1")
	require.NoError(t, tree.Register(r))

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []string{"ext", "uart0", "uart1"}, r.Names())

	c, err := r.Get("uart1")
	require.NoError(t, err)
	rate, err := c.Rate()
	assert.NoError(t, err)
	assert.Equal(t, uint64(24000000), rate)

	_, err = r.Get("uart2")
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestPublishAllOrNothing(t *testing.T) {
	r := registry.New()
	require.NoError(t, newTree(t, "ext", "uart0").Register(r))

	// uart0 clashes, so i2c0 must not appear either
	err := newTree(t, "osc", "i2c0", "uart0").Register(r)
	assert.ErrorIs(t, err, registry.ErrDuplicate)
	assert.Equal(t, 2, r.Len())
	_, err = r.Get("i2c0")
	assert.ErrorIs(t, err, registry.ErrNotFound)

	require.NoError(t, newTree(t, "osc", "i2c0").Register(r))
	assert.Equal(t, []string{"ext", "osc", "i2c0", "uart0"}, r.Names())
}

func TestPublishDuplicateInBatch(t *testing.T) {
	r := registry.New()
	tree := newTree(t, "ext", "uart0")
	clocks := tree.Clocks()
	err := r.Publish(append(clocks, clocks[1]))
	assert.ErrorIs(t, err, registry.ErrDuplicate)
	assert.Zero(t, r.Len())
}
