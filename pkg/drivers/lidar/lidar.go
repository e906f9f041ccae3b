// Package lidar converts the pulse width output of a Pololu distance
// sensor into millimeters.
package lidar

import (
	"context"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/romi.go/pkg/cotask"
	"github.com/robotalks/romi.go/pkg/hal"
	"github.com/robotalks/romi.go/pkg/share"
)

const (
	// NoReading is reported before any valid pulse.
	NoReading = 999.0
	// ZeroPulse is the pulse width in µs at zero distance.
	ZeroPulse = 1000.0
	// MMPerUS converts the pulse width beyond ZeroPulse to mm.
	MMPerUS = 0.75
)

// Shares of the sensor.
type Shares struct {
	// Distance in mm.
	Distance *share.Share[float64]
	// Pulse is the last measured pulse width in µs.
	Pulse *share.Share[float64]
}

// NewShares creates and registers lidar shares.
func NewShares(r *share.Registry) Shares {
	return Shares{
		Distance: share.RegisterShare(r, "lidar.distance", NoReading),
		Pulse:    share.RegisterShare(r, "lidar.pulse", 0.0),
	}
}

// Distance converts a pulse width in µs to mm.
// It returns NoReading when the pulse is shorter than ZeroPulse.
func Distance(pulseUS float64) float64 {
	if pulseUS < ZeroPulse {
		return NoReading
	}
	return MMPerUS * (pulseUS - ZeroPulse)
}

// Sensor updates distance from the pulse share.
type Sensor struct {
	Shares Shares
}

// New creates the sensor.
func New(shares Shares) *Sensor {
	return &Sensor{Shares: shares}
}

// Step implements cotask.Stepper.
func (s *Sensor) Step(cotask.TaskContext) (cotask.State, error) {
	s.Shares.Distance.Put(Distance(s.Shares.Pulse.Get()))
	return 1, nil
}

// Capture measures pulses from an input and writes them to the pulse share.
// It runs in its own goroutine, standing in for the edge interrupt.
type Capture struct {
	Input hal.PulseInput
	Pulse *share.Share[float64]
}

// Run implements Runnable.
func (c *Capture) Run(ctx context.Context) error {
	for {
		width, err := c.Input.WaitPulse(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			glog.Warningf("lidar capture: %v", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}
		c.Pulse.Put(float64(width) / float64(time.Microsecond))
	}
}
