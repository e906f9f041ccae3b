// Package encoder decodes a quadrature encoder counter into wheel motion.
package encoder

import (
	"fmt"
	"math"
	"time"

	"github.com/robotalks/romi.go/pkg/cotask"
	"github.com/robotalks/romi.go/pkg/hal"
	"github.com/robotalks/romi.go/pkg/share"
)

// RomiTicksPerRev is 12 counts per motor revolution times the 120:1 gearbox.
const RomiTicksPerRev = 12 * 120

// Shares are the outputs and the zero request of an encoder.
type Shares struct {
	// Position in rad.
	Position *share.Share[float64]
	// Delta in rad since last update.
	Delta *share.Share[float64]
	// Speed in rad/s.
	Speed *share.Share[float64]
	// Zero resets the position when raised.
	Zero *share.Queue[bool]
}

// NewShares creates and registers encoder shares with a name prefix.
func NewShares(r *share.Registry, prefix string) Shares {
	return Shares{
		Position: share.RegisterShare(r, prefix+".pos", 0.0),
		Delta:    share.RegisterShare(r, prefix+".delta", 0.0),
		Speed:    share.RegisterShare(r, prefix+".speed", 0.0),
		Zero:     share.RegisterFlag(r, prefix+".zero"),
	}
}

// Encoder tracks the absolute position from a wrapping counter.
type Encoder struct {
	Name   string
	Shares Shares

	counter   hal.Counter
	ticks2rad float64

	started  bool
	last     uint32
	lastTime time.Time
	position int64
	delta    int64
}

// New creates an encoder.
func New(name string, counter hal.Counter, ticksPerRev int, shares Shares) *Encoder {
	if ticksPerRev <= 0 {
		ticksPerRev = RomiTicksPerRev
	}
	return &Encoder{
		Name:      name,
		Shares:    shares,
		counter:   counter,
		ticks2rad: 2 * math.Pi / float64(ticksPerRev),
	}
}

// Position returns the accumulated count.
func (e *Encoder) Position() int64 {
	return e.position
}

// Zero resets the accumulated count.
func (e *Encoder) Zero() {
	e.position = 0
}

// Update reads the counter and publishes position, delta and speed.
func (e *Encoder) Update(now time.Time) error {
	count, err := e.counter.Count()
	if err != nil {
		return fmt.Errorf("encoder %s: %w", e.Name, err)
	}
	if !e.started {
		e.started, e.last, e.lastTime = true, count, now
		e.publish(0)
		return nil
	}
	// the period may only be known once the counter is served.
	modulus := int64(e.counter.Period()) + 1
	delta := int64(count) - int64(e.last)
	if half := modulus / 2; delta > half {
		delta -= modulus
	} else if delta < -half {
		delta += modulus
	}
	dt := now.Sub(e.lastTime)
	e.last, e.lastTime = count, now
	e.delta = delta
	e.position += delta

	speed := 0.0
	if dt > 0 {
		speed = float64(delta) * e.ticks2rad / dt.Seconds()
	}
	e.publish(speed)
	return nil
}

func (e *Encoder) publish(speed float64) {
	e.Shares.Position.Put(float64(e.position) * e.ticks2rad)
	e.Shares.Delta.Put(float64(e.delta) * e.ticks2rad)
	e.Shares.Speed.Put(speed)
}

// Step implements cotask.Stepper.
func (e *Encoder) Step(tc cotask.TaskContext) (cotask.State, error) {
	if e.Shares.Zero.Any() {
		e.Zero()
		e.Shares.Zero.Clear()
	}
	return 1, e.Update(tc.Time())
}
