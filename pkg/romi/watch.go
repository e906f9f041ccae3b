package romi

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/golang/glog"

	"github.com/robotalks/romi.go/pkg/brain"
	"github.com/robotalks/romi.go/pkg/control"
	"github.com/robotalks/romi.go/pkg/share"
)

// DefaultReloadDelay debounces bursts of writes from editors.
const DefaultReloadDelay = 200 * time.Millisecond

// GainsWatcher sends a gains command whenever the line gains in the
// profile file change.
type GainsWatcher struct {
	Path     string
	Commands *share.Queue[brain.Command]
	Current  control.Gains
	Delay    time.Duration
}

// Reload reads the profile and queues a gains command if they changed.
func (w *GainsWatcher) Reload() error {
	p, err := LoadProfile(w.Path)
	if err != nil {
		return err
	}
	gains := p.Brain.Line
	if gains == w.Current {
		return nil
	}
	if err := w.Commands.Put(brain.Command{Kind: brain.CmdGains, Gains: gains}); err != nil {
		return fmt.Errorf("queue gains: %w", err)
	}
	glog.Infof("profile: line gains %+v -> %+v", w.Current, gains)
	w.Current = gains
	return nil
}

// Run implements Runnable. The directory is watched because editors
// often replace the file instead of writing it.
func (w *GainsWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	abs, err := filepath.Abs(w.Path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", w.Path, err)
	}
	delay := w.Delay
	if delay <= 0 {
		delay = DefaultReloadDelay
	}

	var reload <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				reload = time.After(delay)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			glog.Warningf("profile watcher: %v", err)
		case <-reload:
			reload = nil
			if err := w.Reload(); err != nil {
				glog.Errorf("profile reload: %v", err)
			}
		}
	}
}
