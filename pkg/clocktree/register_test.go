package clocktree

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	published []*Clock
	err       error
}

func (f *fakePublisher) Publish(clocks []*Clock) error {
	if f.err != nil {
		return f.err
	}
	f.published = clocks
	return nil
}

func TestRegister(t *testing.T) {
	m := newPort()
	defaultRegisters(m)
	tree := newTestTree(t, m)

	pub := &fakePublisher{}
	require.NoError(t, tree.Register(pub))
	require.Len(t, pub.published, len(testTable()))
	for i, c := range pub.published {
		assert.Equal(t, ID(i), c.ID())
		assert.Equal(t, testTable()[i].Name, c.Name())
	}

	rate, err := pub.published[idDDR].Rate()
	assert.NoError(t, err)
	assert.Equal(t, uint64(apllRate/3), rate)
}

func TestRegisterFailure(t *testing.T) {
	refused := errors.New("refused")
	tree := newTestTree(t, newPort())
	err := tree.Register(&fakePublisher{err: refused})
	assert.ErrorIs(t, err, refused)
}

func TestBind(t *testing.T) {
	pub := &fakePublisher{}
	tree, err := Bind(testTable(), newPort(), pub)
	require.NoError(t, err)
	assert.Len(t, pub.published, tree.Len())

	// nothing is published for an invalid table
	pub = &fakePublisher{}
	tb := testTable()
	tb[3].Parents = parents(4, 0)
	_, err = Bind(tb, newPort(), pub)
	assert.ErrorIs(t, err, ErrCyclicDependency)
	assert.Empty(t, pub.published)
}
