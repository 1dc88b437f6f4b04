package clocktree

import (
	"fmt"

	"github.com/golang/glog"

	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/regmap"
)

// Publisher makes clocks visible to consumers. Publish receives every clock of a
// tree at once and either accepts all of them or none.
type Publisher interface {
	Publish(clocks []*Clock) error
}

// Register publishes every clock of the tree.
func (t *Tree) Register(p Publisher) error {
	if err := p.Publish(t.Clocks()); err != nil {
		return fmt.Errorf("publish %d clocks: %w", len(t.clocks), err)
	}
	glog.Infof("clock tree: published %d clocks", len(t.clocks))
	return nil
}

// Bind validates table, binds it to port and publishes the result. Nothing is
// published when any step fails.
func Bind(table Table, port regmap.Port, p Publisher, opts ...Option) (*Tree, error) {
	t, err := New(table, port, opts...)
	if err != nil {
		return nil, err
	}
	if err := t.Register(p); err != nil {
		return nil, err
	}
	return t, nil
}
