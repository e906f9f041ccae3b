package romi

import (
	"context"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/romi.go/pkg/brain"
	"github.com/robotalks/romi.go/pkg/hal"
	"github.com/robotalks/romi.go/pkg/share"
)

// ButtonWatcher toggles the motors on each press of the blue button. The
// press is queued as a toggle command so the brain flips both enables in
// its own step.
type ButtonWatcher struct {
	Input    hal.EdgeInput
	Commands *share.Queue[brain.Command]
}

// Run implements Runnable.
func (w *ButtonWatcher) Run(ctx context.Context) error {
	for {
		if err := w.Input.WaitEdge(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			glog.Warningf("button: %v", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}
		if err := w.Commands.Put(brain.Command{Kind: brain.CmdToggle}); err != nil {
			glog.Warningf("button: toggle dropped: %v", err)
			continue
		}
		glog.Info("button: toggle motors")
	}
}
