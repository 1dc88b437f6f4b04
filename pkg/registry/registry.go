// Package registry keeps the clocks published by a clock tree and hands them out
// to consumers by name.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/golang/glog"

	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/clocktree"
)

var (
	ErrDuplicate = errors.New("clock already registered")
	ErrNotFound  = errors.New("clock not registered")
)

// Registry is an in-memory clocktree.Publisher. A batch is committed whole or not
// at all.
type Registry struct {
	mu     sync.RWMutex
	clocks map[string]*clocktree.Clock
}

func New() *Registry {
	return &Registry{clocks: map[string]*clocktree.Clock{}}
}

// Publish implements clocktree.Publisher.
func (r *Registry) Publish(clocks []*clocktree.Clock) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	batch := make(map[string]*clocktree.Clock, len(clocks))
	for _, c := range clocks {
		if c == nil {
			return errors.New("nil clock in batch")
		}
		if _, ok := r.clocks[c.Name()]; ok {
			return fmt.Errorf("%s: %w", c.Name(), ErrDuplicate)
		}
		if _, ok := batch[c.Name()]; ok {
			return fmt.Errorf("%s twice in one batch: %w", c.Name(), ErrDuplicate)
		}
		batch[c.Name()] = c
	}
	for name, c := range batch {
		r.clocks[name] = c
	}
	glog.V(2).Infof("registry: %d clocks added, %d total", len(batch), len(r.clocks))
	return nil
}

// Get returns the clock registered under name.
func (r *Registry) Get(name string) (*clocktree.Clock, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clocks[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return c, nil
}

// Names returns the registered clock names ordered by ID, then name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clocks := make([]*clocktree.Clock, 0, len(r.clocks))
	for _, c := range r.clocks {
		clocks = append(clocks, c)
	}
	sort.Slice(clocks, func(i, j int) bool {
		if clocks[i].ID() != clocks[j].ID() {
			return clocks[i].ID() < clocks[j].ID()
		}
		return clocks[i].Name() < clocks[j].Name()
	})
	names := make([]string, len(clocks))
	for i, c := range clocks {
		names[i] = c.Name()
	}
	return names
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clocks)
}
