// Package daemon runs a clock tree as a long-lived service: it applies clock
// assignments, keeps them applied when their file changes, refreshes the clock metrics
// and serves status over HTTP.
package daemon

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"
	utilwait "k8s.io/apimachinery/pkg/util/wait"

	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/assign"
	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/clocktree"
	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/metrics"
)

const (
	// DefaultBindAddress serves /metrics, /ready and /clocks
	DefaultBindAddress = ":9091"
	// DefaultRefreshInterval is how often every clock's metrics are rewritten
	DefaultRefreshInterval = 30 * time.Second

	shutdownTimeout = 5 * time.Second
)

// Config holds the daemon settings taken from the command line.
type Config struct {
	NodeName        string
	BindAddress     string
	RefreshInterval time.Duration
	// AssignmentsPath is optional; when set the file is applied at start and watched.
	AssignmentsPath string
}

// Daemon serves one clock tree.
type Daemon struct {
	cfg     Config
	tree    *clocktree.Tree
	applier *assign.Applier
	tracker *ReadyTracker
}

func New(cfg Config, tree *clocktree.Tree) *Daemon {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	return &Daemon{
		cfg:     cfg,
		tree:    tree,
		applier: assign.NewApplier(tree),
		tracker: &ReadyTracker{tree: tree},
	}
}

// Applier returns the assignment applier used by the daemon.
func (d *Daemon) Applier() *assign.Applier {
	return d.applier
}

// Tracker returns the readiness tracker.
func (d *Daemon) Tracker() *ReadyTracker {
	return d.tracker
}

// Start applies the assignments file, if any. Assignment errors are logged and leave
// the daemon not ready; a missing or undecodable file is returned.
func (d *Daemon) Start() error {
	if d.cfg.AssignmentsPath == "" {
		d.tracker.setApplied(true)
		return nil
	}
	doc, err := assign.LoadFile(d.cfg.AssignmentsPath)
	if err != nil {
		return err
	}
	if err = d.applier.Apply(doc); err != nil {
		glog.Errorf("clock assignments from %s applied with errors: %v", d.cfg.AssignmentsPath, err)
		return nil
	}
	d.tracker.setApplied(true)
	return nil
}

// Run serves until ctx is cancelled or one of the workers fails.
func (d *Daemon) Run(ctx context.Context) error {
	metrics.RegisterMetrics(d.cfg.NodeName)
	g, ctx := errgroup.WithContext(ctx)

	server := &http.Server{Addr: d.cfg.BindAddress, Handler: d.Handler()}
	g.Go(func() error {
		glog.Infof("Starting status server on %s", d.cfg.BindAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		utilwait.UntilWithContext(ctx, func(context.Context) {
			metrics.Refresh(d.tree.Snapshot())
		}, d.cfg.RefreshInterval)
		return nil
	})

	if d.cfg.AssignmentsPath != "" {
		w, err := assign.NewWatcher(d.cfg.AssignmentsPath, d.applier)
		if err != nil {
			glog.Warningf("assignment reload disabled: %v", err)
		} else {
			w.OnApply(func(err error) { d.tracker.setApplied(err == nil) })
			g.Go(func() error { return w.Run(ctx) })
		}
	}

	return g.Wait()
}
