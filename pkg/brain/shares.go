package brain

import "github.com/robotalks/romi.go/pkg/share"

// NewCommandQueue creates and registers the command queue.
func NewCommandQueue(r *share.Registry) *share.Queue[Command] {
	return share.RegisterQueue[Command](r, "brain.commands", 16, false)
}

// NewStatusShare creates and registers the status share.
func NewStatusShare(r *share.Registry) *share.Share[Status] {
	return share.RegisterShare(r, "brain.status", Status{State: StateName(StateWaitCalibration)})
}
