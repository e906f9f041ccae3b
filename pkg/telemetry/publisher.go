package telemetry

import (
	"context"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/romi.go/pkg/brain"
	"github.com/robotalks/romi.go/pkg/cotask"
	"github.com/robotalks/romi.go/pkg/share"
)

// Sink receives telemetry frames.
type Sink interface {
	Publish(context.Context, Frame) error
}

// SinkFunc is the func form of Sink.
type SinkFunc func(context.Context, Frame) error

// Publish implements Sink.
func (f SinkFunc) Publish(ctx context.Context, fr Frame) error {
	return f(ctx, fr)
}

// NewFrameQueue registers the queue between Publisher and Pump.
// Old frames are overwritten when sinks fall behind.
func NewFrameQueue(r *share.Registry) *share.Queue[Frame] {
	return share.RegisterQueue[Frame](r, "telemetry.frames", 8, true)
}

// Publisher samples the brain status each time it runs.
type Publisher struct {
	RobotID string
	Status  *share.Share[brain.Status]
	Out     *share.Queue[Frame]

	seq uint64
}

// Step implements cotask.Stepper.
func (p *Publisher) Step(cotask.TaskContext) (cotask.State, error) {
	p.seq++
	return 1, p.Out.Put(Frame{RobotID: p.RobotID, Seq: p.seq, Status: p.Status.Get()})
}

// Pump delivers queued frames to all sinks.
type Pump struct {
	In *share.Queue[Frame]

	lock   sync.Mutex
	sinks  []Sink
	failed map[int]int
}

// Add adds sinks.
func (p *Pump) Add(sinks ...Sink) *Pump {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.sinks = append(p.sinks, sinks...)
	return p
}

// Deliver sends one frame to all sinks.
func (p *Pump) Deliver(ctx context.Context, f Frame) {
	p.lock.Lock()
	sinks := p.sinks
	if p.failed == nil {
		p.failed = make(map[int]int)
	}
	p.lock.Unlock()
	for n, s := range sinks {
		err := s.Publish(ctx, f)
		p.lock.Lock()
		if err == nil {
			if p.failed[n] > 0 {
				glog.Infof("telemetry: sink %d recovered after %d failures", n, p.failed[n])
			}
			delete(p.failed, n)
		} else {
			if p.failed[n]++; p.failed[n] == 1 {
				glog.Warningf("telemetry: sink %d: %v", n, err)
			}
		}
		p.lock.Unlock()
	}
}

// Run implements Runnable.
func (p *Pump) Run(ctx context.Context) error {
	for {
		f, err := p.In.GetWait(ctx)
		if err != nil {
			return err
		}
		p.Deliver(ctx, f)
	}
}
