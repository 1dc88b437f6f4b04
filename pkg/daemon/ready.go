package daemon

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/clocktree"
)

// ReadyTracker reports whether the daemon has applied its assignments and whether any
// clock is stuck in a failed reconfiguration.
type ReadyTracker struct {
	mutex   sync.Mutex
	applied bool
	tree    *clocktree.Tree
}

func (rt *ReadyTracker) Ready() (bool, string) {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()

	if !rt.applied {
		return false, "Clock assignments not applied"
	}
	var failed []string
	for _, s := range rt.tree.Snapshot() {
		if s.State == clocktree.StateFailed.String() {
			failed = append(failed, s.Name)
		}
	}
	if len(failed) > 0 {
		return false, fmt.Sprintf("Failed clock(s): %v", failed)
	}
	return true, ""
}

func (rt *ReadyTracker) setApplied(v bool) {
	rt.mutex.Lock()
	rt.applied = v
	rt.mutex.Unlock()
}

type readyHandler struct {
	tracker *ReadyTracker
}

func (h readyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if isReady, msg := h.tracker.Ready(); !isReady {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, "503: %s\n", msg)
	} else {
		w.WriteHeader(http.StatusOK)
	}
}

// clocksHandler serves the snapshot of every clock, or of one clock by name.
type clocksHandler struct {
	tree *clocktree.Tree
}

func (h clocksHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	statuses := h.tree.Snapshot()
	var body interface{} = statuses
	if name := r.PathValue("name"); name != "" {
		c, ok := h.tree.Lookup(name)
		if !ok {
			http.Error(w, fmt.Sprintf("unknown clock %q", name), http.StatusNotFound)
			return
		}
		body = statuses[c.ID()]
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		glog.Errorf("write clock status: %v", err)
	}
}

// Handler returns the HTTP endpoints of the daemon: /ready, /metrics and /clocks.
func (d *Daemon) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ready", readyHandler{tracker: d.tracker})
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("GET /clocks", clocksHandler{tree: d.tree})
	mux.Handle("GET /clocks/{name}", clocksHandler{tree: d.tree})
	return mux
}
