// Package assign applies clock assignments (parent, rate and enable state per clock)
// from a YAML document to a clock tree, and re-applies them when the document changes.
package assign

import (
	"fmt"
	"os"
	"sync"

	"github.com/golang/glog"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"sigs.k8s.io/yaml"

	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/clocktree"
)

// ConsumerName is the name of the enable vote held on behalf of the document.
const ConsumerName = "assigned-clocks"

// Assignment is the requested configuration of one clock. Empty fields are left alone.
type Assignment struct {
	Clock   string `json:"clock"`
	Parent  string `json:"parent,omitempty"`
	Rate    uint64 `json:"rate,omitempty"`
	Enabled *bool  `json:"enabled,omitempty"`
}

// Document is a list of assignments, applied in order.
type Document struct {
	Assignments []Assignment `json:"assignments"`
}

// Decode parses an assignments document. Unknown fields are rejected.
func Decode(data []byte) (*Document, error) {
	doc := &Document{}
	if err := yaml.UnmarshalStrict(data, doc); err != nil {
		return nil, fmt.Errorf("decode assignments: %w", err)
	}
	for i, a := range doc.Assignments {
		if a.Clock == "" {
			return nil, fmt.Errorf("assignment %d: missing clock name", i)
		}
	}
	return doc, nil
}

// LoadFile reads and decodes the assignments document at path.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read assignments %s: %w", path, err)
	}
	return Decode(data)
}

// Applier applies documents to one tree. The enable votes it casts persist between
// documents, so applying the same document twice changes nothing.
type Applier struct {
	mu        sync.Mutex
	tree      *clocktree.Tree
	consumers map[string]*clocktree.Consumer
}

func NewApplier(tree *clocktree.Tree) *Applier {
	return &Applier{
		tree:      tree,
		consumers: make(map[string]*clocktree.Consumer),
	}
}

// Apply walks the document in order, setting the parent, then the rate, then the
// enable state of every listed clock. A failing assignment does not stop the rest;
// every error is returned in one aggregate. Votes held for clocks that the document
// no longer enables are released.
func (a *Applier) Apply(doc *Document) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var errs []error
	wanted := make(map[string]bool)
	for _, as := range doc.Assignments {
		if as.Enabled != nil && *as.Enabled {
			wanted[as.Clock] = true
		}
		if err := a.apply(as); err != nil {
			glog.Errorf("assigned clock %s: %v", as.Clock, err)
			errs = append(errs, err)
		}
	}
	for name, u := range a.consumers {
		if !wanted[name] && u.Enabled() {
			glog.Infof("assigned clock %s: releasing enable", name)
			if err := u.Disable(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return utilerrors.NewAggregate(errs)
}

// ApplyFile loads the document at path and applies it.
func (a *Applier) ApplyFile(path string) error {
	doc, err := LoadFile(path)
	if err != nil {
		return err
	}
	glog.Infof("applying %d clock assignments from %s", len(doc.Assignments), path)
	return a.Apply(doc)
}

func (a *Applier) apply(as Assignment) error {
	c, ok := a.tree.Lookup(as.Clock)
	if !ok {
		return fmt.Errorf("%q: %w", as.Clock, clocktree.ErrUnknownClock)
	}
	if as.Parent != "" {
		p, ok := a.tree.Lookup(as.Parent)
		if !ok {
			return fmt.Errorf("%s: parent %q: %w", as.Clock, as.Parent, clocktree.ErrUnknownClock)
		}
		if err := c.SetParent(p); err != nil {
			return err
		}
	}
	if as.Rate != 0 {
		got, err := c.SetRate(as.Rate)
		if err != nil {
			return err
		}
		if got != as.Rate {
			glog.Warningf("assigned clock %s: requested %d Hz, got %d Hz", as.Clock, as.Rate, got)
		}
	}
	if as.Enabled == nil {
		return nil
	}
	u := a.consumer(c)
	if *as.Enabled {
		return u.Enable()
	}
	return u.Disable()
}

func (a *Applier) consumer(c *clocktree.Clock) *clocktree.Consumer {
	u, ok := a.consumers[c.Name()]
	if !ok {
		u = c.Consumer(ConsumerName)
		a.consumers[c.Name()] = u
	}
	return u
}
