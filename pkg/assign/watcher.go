package assign

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/golang/glog"
)

// Watcher re-applies an assignments file whenever it changes. The directory holding
// the file is watched rather than the file itself, so that editors and ConfigMap
// mounts that replace the file are still noticed.
type Watcher struct {
	path    string
	dir     string
	applier *Applier
	watcher *fsnotify.Watcher
	onApply func(error)
}

func NewWatcher(path string, applier *Applier) (*Watcher, error) {
	w := &Watcher{
		path:    filepath.Clean(path),
		dir:     filepath.Dir(path),
		applier: applier,
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Watcher) open() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create assignments watcher: %w", err)
	}
	if err = fw.Add(w.dir); err != nil {
		fw.Close()
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.watcher = fw
	return nil
}

// OnApply registers a function called with the result of every re-apply. It must be
// called before Run.
func (w *Watcher) OnApply(f func(error)) {
	w.onApply = f
}

// relevant reports whether an event in the watched directory can change the file.
func (w *Watcher) relevant(e fsnotify.Event) bool {
	if e.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	base := filepath.Base(e.Name)
	if filepath.Clean(e.Name) == w.path {
		return true
	}
	// ConfigMap volumes swap a ..data symlink
	return strings.HasPrefix(base, "..data")
}

// Run blocks until ctx is cancelled. Apply errors are logged and do not stop the loop.
func (w *Watcher) Run(ctx context.Context) error {
	glog.Infof("watching %s for clock assignment changes", w.path)
	defer func() {
		if w.watcher != nil {
			w.watcher.Close()
		}
	}()
	events, errs := w.watcher.Events, w.watcher.Errors
	for {
		select {
		case e, ok := <-events:
			if !ok {
				glog.Error("assignments watcher channel closed, disabling assignment reload")
				events = nil
				continue
			}
			if !w.relevant(e) {
				continue
			}
			glog.Infof("assignments file changed: %s (op: %s)", e.Name, e.Op.String())
			err := w.applier.ApplyFile(w.path)
			if err != nil {
				glog.Errorf("apply clock assignments failed: %v", err)
			}
			if w.onApply != nil {
				w.onApply(err)
			}
		case err, ok := <-errs:
			if !ok {
				glog.Warning("assignments watcher error channel closed, recreating watcher")
				w.watcher.Close()
				if err = w.open(); err != nil {
					glog.Errorf("failed to recreate assignments watcher: %v", err)
					w.watcher = nil
					events, errs = nil, nil
					continue
				}
				events, errs = w.watcher.Events, w.watcher.Errors
				continue
			}
			glog.Errorf("assignments watcher error: %v", err)
		case <-ctx.Done():
			glog.Info("assignments watcher stopped")
			return nil
		}
	}
}
