// Package control provides the closed loop controller used for line
// following.
package control

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrSaturation indicates only one saturation limit was given, or the
// limits are inverted.
var ErrSaturation = errors.New("saturation requires lower limit <= upper limit, both defined")

// ErrNotNumber is returned by Update for NaN or infinite inputs.
var ErrNotNumber = errors.New("controller inputs must be finite numbers")

// GainError reports an invalid gain.
type GainError struct {
	Gain  string
	Value float64
}

// Error implements error.
func (e *GainError) Error() string {
	if e.Gain == "Kp" {
		return fmt.Sprintf("proportional gain must be positive, got %v", e.Value)
	}
	return fmt.Sprintf("%s must be non-negative, got %v", e.Gain, e.Value)
}

// Gains of a PID controller.
type Gains struct {
	Kp float64 `yaml:"kp" json:"kp"`
	Ki float64 `yaml:"ki" json:"ki"`
	Kd float64 `yaml:"kd" json:"kd"`
}

// Validate checks Kp > 0, Ki >= 0 and Kd >= 0.
func (g Gains) Validate() error {
	if !(g.Kp > 0) {
		return &GainError{Gain: "Kp", Value: g.Kp}
	}
	if !(g.Ki >= 0) {
		return &GainError{Gain: "Ki", Value: g.Ki}
	}
	if !(g.Kd >= 0) {
		return &GainError{Gain: "Kd", Value: g.Kd}
	}
	return nil
}

// Limits clamp the output when set.
type Limits struct {
	Low, High *float64
}

// Saturate builds Limits from two values.
func Saturate(low, high float64) Limits {
	return Limits{Low: &low, High: &high}
}

// PID is a P/PI/PD/PID controller depending on non-zero gains.
type PID struct {
	gains  Gains
	limits Limits

	started  bool
	lastTime time.Time
	prevErr  float64
	integral float64

	// Terms of the last output.
	P, I, D float64
	Output  float64
}

// NewPID creates a controller.
func NewPID(gains Gains, limits Limits) (*PID, error) {
	if err := gains.Validate(); err != nil {
		return nil, err
	}
	if (limits.Low == nil) != (limits.High == nil) {
		return nil, ErrSaturation
	}
	if limits.Low != nil && *limits.Low > *limits.High {
		return nil, ErrSaturation
	}
	return &PID{gains: gains, limits: limits}, nil
}

// Gains returns the current gains.
func (c *PID) Gains() Gains {
	return c.gains
}

// SetGains replaces all gains at once.
func (c *PID) SetGains(g Gains) error {
	if err := g.Validate(); err != nil {
		return err
	}
	c.gains = g
	return nil
}

// SetKp changes the proportional gain.
func (c *PID) SetKp(v float64) error {
	g := c.gains
	g.Kp = v
	return c.SetGains(g)
}

// SetKi changes the integral gain. Zero turns integral control off.
func (c *PID) SetKi(v float64) error {
	g := c.gains
	g.Ki = v
	return c.SetGains(g)
}

// SetKd changes the derivative gain. Zero turns derivative control off.
func (c *PID) SetKd(v float64) error {
	g := c.gains
	g.Kd = v
	return c.SetGains(g)
}

// Reset clears the integral and derivative history.
func (c *PID) Reset() {
	c.started = false
	c.prevErr, c.integral = 0, 0
	c.P, c.I, c.D, c.Output = 0, 0, 0, 0
}

// Update computes the output for setpoint and feedback at now.
func (c *PID) Update(setpoint, feedback float64, now time.Time) (float64, error) {
	if !finite(setpoint) || !finite(feedback) {
		return c.Output, ErrNotNumber
	}
	e := setpoint - feedback
	var dt float64
	if c.started {
		dt = now.Sub(c.lastTime).Seconds()
	}
	c.lastTime = now

	c.P = c.gains.Kp * e
	if dt > 0 {
		c.integral += e * dt
	}
	c.I = c.gains.Ki * c.integral
	c.D = 0
	if c.started && dt > 0 {
		c.D = c.gains.Kd * (e - c.prevErr) / dt
	}
	c.started, c.prevErr = true, e

	out := c.P + c.I + c.D
	if c.limits.High != nil && out > *c.limits.High {
		out = *c.limits.High
	}
	if c.limits.Low != nil && out < *c.limits.Low {
		out = *c.limits.Low
	}
	c.Output = out
	return out, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
