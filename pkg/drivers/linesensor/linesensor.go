// Package linesensor turns the front reflectance sensors into a signed
// line position and detects the finish bar.
package linesensor

import (
	"fmt"

	"github.com/robotalks/romi.go/pkg/cotask"
	"github.com/robotalks/romi.go/pkg/hal"
	"github.com/robotalks/romi.go/pkg/share"
)

// Thresholds on the sum of the four outer channels.
const (
	LostSum        = 0.4
	FoundSum       = 0.3
	FinishArmSum   = 2.0
	FinishAbortSum = 1.0
	// OffLineValue is reported with the side the line was last seen on.
	OffLineValue = 2.0
)

// Weights of FL2, FL1, FR1 and FR2; the center channel doesn't contribute.
var weights = [5]float64{-2.5, -4, 0, 4, 2.5}

// Shares are the outputs of the line sensors.
type Shares struct {
	// Value is negative when the line is left of center.
	Value *share.Share[float64]
	Sum   *share.Share[float64]
	// Finish is raised when the finish bar was crossed.
	Finish *share.Queue[bool]
}

// NewShares creates and registers line sensor shares.
func NewShares(r *share.Registry) Shares {
	return Shares{
		Value:  share.RegisterShare(r, "line.value", 0.0),
		Sum:    share.RegisterShare(r, "line.sum", 0.0),
		Finish: share.RegisterFlag(r, "line.finish"),
	}
}

// Reading is one normalized sample of FL2, FL1, FC, FR1, FR2.
type Reading [5]float64

// Outer returns the sum of all channels except center.
func (r Reading) Outer() float64 {
	return r[0] + r[1] + r[3] + r[4]
}

// Sensors is the line sensor array.
type Sensors struct {
	Shares Shares

	channels [5]hal.ADC

	value   float64
	offLine bool
	armed   bool
}

// New creates line sensors from channels FL2, FL1, FC, FR1, FR2.
func New(channels [5]hal.ADC, shares Shares) *Sensors {
	return &Sensors{Shares: shares, channels: channels}
}

// Value returns the last computed value.
func (s *Sensors) Value() float64 { return s.value }

// OffLine reports whether the line is lost.
func (s *Sensors) OffLine() bool { return s.offLine }

// Read samples all channels.
func (s *Sensors) Read() (r Reading, err error) {
	for n, ch := range s.channels {
		raw, err := ch.Read()
		if err != nil {
			return r, fmt.Errorf("line sensor %d: %w", n, err)
		}
		r[n] = float64(raw) / hal.ADCMax
	}
	return r, nil
}

// Process updates the value and finish detection from one reading.
// It reports whether the finish bar was detected.
func (s *Sensors) Process(r Reading) bool {
	sum := r.Outer()
	switch {
	case sum < LostSum && s.value > 0:
		s.value, s.offLine = OffLineValue, true
	case sum < LostSum && s.value < 0:
		s.value, s.offLine = -OffLineValue, true
	default:
		s.value = 0
		for n, w := range weights {
			s.value += w * r[n]
		}
	}
	if s.offLine && sum > FoundSum {
		s.offLine = false
	}

	if sum > FinishArmSum {
		s.armed = true
	}
	if s.armed && sum < LostSum {
		s.armed = false
		return true
	}
	if s.armed && sum < FinishAbortSum {
		s.armed = false
	}
	return false
}

// Step implements cotask.Stepper.
func (s *Sensors) Step(cotask.TaskContext) (cotask.State, error) {
	r, err := s.Read()
	if err != nil {
		return 1, err
	}
	if s.Process(r) {
		s.Shares.Finish.Put(true)
	}
	s.Shares.Value.Put(s.value)
	s.Shares.Sum.Put(r.Outer())
	return 1, nil
}
