package clocktree

import (
	"github.com/golang/glog"

	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/regmap"
)

// poll evaluates ready up to pollRetries times, sleeping pollInterval between
// attempts. It reports whether ready returned true.
func (t *Tree) poll(n *node, what string, ready func() bool) bool {
	start := t.clock.Now()
	for attempt := 1; ; attempt++ {
		if ready() {
			glog.V(3).Infof("clock %s: %s after %d polls (%s)", n.desc.Name, what, attempt, t.clock.Since(start))
			return true
		}
		if attempt >= t.pollRetries {
			glog.Warningf("clock %s: no %s after %d polls (%s)", n.desc.Name, what, attempt, t.clock.Since(start))
			return false
		}
		t.clock.Sleep(t.pollInterval)
	}
}

func (t *Tree) bitSet(off uint32, bit *uint8) bool {
	return bit == nil || t.read(off)&regmap.Bit(*bit) != 0
}

func (t *Tree) bitClear(off uint32, bit *uint8) bool {
	return bit == nil || t.read(off)&regmap.Bit(*bit) == 0
}
