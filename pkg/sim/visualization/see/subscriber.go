// Package see is the adapter to visualize a 2D world in
// github.com/robotalks/see.
package see

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/robotalks/romi.go/pkg/cotask"
	"github.com/robotalks/romi.go/pkg/sim"
)

// Adapter is the visualization adapter to visualize using
// github.com/robotalks/see.
type Adapter struct {
	Config *Config
	Mapper ObjectMapper
	Writer io.Writer

	initial    bool
	updated    map[string]sim.Object
	removedIDs map[string]bool
}

// NewAdapter creates the adapter.
func NewAdapter(config *Config) *Adapter {
	return &Adapter{
		Config:  config,
		Writer:  os.Stdout,
		initial: true,
	}
}

// Subscribe is a helper to subscribe object changes.
func (a *Adapter) Subscribe(sub sim.ObjectsChangeSubscriber) *Adapter {
	sub.SubscribeObjectsChange(a)
	return a
}

// ObjectsChanged implements ObjectsChangeListener.
func (a *Adapter) ObjectsChanged(objs ...sim.Object) {
	if a.updated == nil {
		a.updated = make(map[string]sim.Object)
	}
	for _, obj := range objs {
		a.updated[obj.Name()] = obj
		if a.removedIDs != nil {
			delete(a.removedIDs, obj.Name())
		}
	}
}

// ObjectsRemoved implements ObjectsChangeListener.
func (a *Adapter) ObjectsRemoved(objs ...sim.Object) {
	if a.removedIDs == nil {
		a.removedIDs = make(map[string]bool)
	}
	for _, obj := range objs {
		a.removedIDs[ObjectID(obj.Name())] = true
		if a.updated != nil {
			delete(a.updated, obj.Name())
		}
	}
}

// Step implements cotask.Stepper.
func (a *Adapter) Step(cotask.TaskContext) (cotask.State, error) {
	n, err := a.ReportChanges()
	return cotask.State(n), err
}

// ReportChanges writes pending changes as one JSON line and returns the
// number of messages written.
func (a *Adapter) ReportChanges() (int, error) {
	var msgs []Message
	if a.initial {
		w, h := a.Config.W, a.Config.H
		msgs = []Message{
			{Action: ActionReset},
			{Action: ActionObject, Object: NewObject("corner", "corner-lt").With("loc", "lt").At(-w/2, -h/2).Radius(1)},
			{Action: ActionObject, Object: NewObject("corner", "corner-lb").With("loc", "lb").At(-w/2, h/2).Radius(1)},
			{Action: ActionObject, Object: NewObject("corner", "corner-rt").With("loc", "rt").At(w/2, -h/2).Radius(1)},
			{Action: ActionObject, Object: NewObject("corner", "corner-rb").With("loc", "rb").At(w/2, h/2).Radius(1)},
		}
		a.initial = false
		a.removedIDs = nil
	}

	for _, obj := range a.updated {
		vo, ok := obj.(VisibleObject)
		if !ok {
			continue
		}
		var mapped []Object
		if a.Mapper != nil {
			mapped = a.Mapper.MapObject(vo)
		} else {
			mapped = []Object{ObjectFrom("object", vo, a.Config.Scale)}
		}
		for _, o := range mapped {
			if o == nil {
				continue
			}
			msgs = append(msgs, Message{Action: ActionObject, Object: o})
		}
	}

	for id := range a.removedIDs {
		msgs = append(msgs, Message{
			Action:   ActionRemove,
			RemoveID: id,
		})
	}

	a.updated, a.removedIDs = nil, nil
	if len(msgs) == 0 {
		return 0, nil
	}
	encoded, err := json.Marshal(msgs)
	if err != nil {
		return 0, err
	}
	if _, err := fmt.Fprintln(a.Writer, string(encoded)); err != nil {
		return 0, err
	}
	return len(msgs), nil
}
