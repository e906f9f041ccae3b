// Package motor drives a Romi DC motor through a PWM and a direction pin.
package motor

import (
	"fmt"

	"github.com/robotalks/romi.go/pkg/cotask"
	"github.com/robotalks/romi.go/pkg/hal"
	"github.com/robotalks/romi.go/pkg/share"
)

// MaxDuty is the largest duty magnitude in percent.
const MaxDuty = 100

// Shares are the commands of a motor.
type Shares struct {
	Enable *share.Share[bool]
	// Duty is the signed effort in percent, positive drives forward.
	Duty *share.Share[float64]
}

// NewShares creates and registers motor shares, enabled with zero duty.
func NewShares(r *share.Registry, prefix string) Shares {
	return Shares{
		Enable: share.RegisterShare(r, prefix+".enable", true),
		Duty:   share.RegisterShare(r, prefix+".duty", 0.0),
	}
}

// Motor applies the commands in its shares each step.
type Motor struct {
	Name   string
	Shares Shares

	pwm hal.PWM
	dir hal.DigitalOut

	applied float64
}

// New creates a motor.
func New(name string, pwm hal.PWM, dir hal.DigitalOut, shares Shares) *Motor {
	return &Motor{Name: name, Shares: shares, pwm: pwm, dir: dir}
}

// Clamp limits duty to [-MaxDuty, MaxDuty].
func Clamp(duty float64) float64 {
	if duty > MaxDuty {
		return MaxDuty
	}
	if duty < -MaxDuty {
		return -MaxDuty
	}
	return duty
}

// Applied returns the signed duty last sent to the driver.
func (m *Motor) Applied() float64 {
	return m.applied
}

// SetDuty drives the motor. Positive duty sets DIR low.
func (m *Motor) SetDuty(enabled bool, duty float64) error {
	if !enabled {
		m.applied = 0
		return m.pwm.SetPercent(0)
	}
	duty = Clamp(duty)
	reverse := duty < 0
	if err := m.dir.Set(reverse); err != nil {
		return fmt.Errorf("motor %s dir: %w", m.Name, err)
	}
	percent := duty
	if reverse {
		percent = -duty
	}
	if err := m.pwm.SetPercent(percent); err != nil {
		return fmt.Errorf("motor %s pwm: %w", m.Name, err)
	}
	m.applied = duty
	return nil
}

// Step implements cotask.Stepper.
func (m *Motor) Step(cotask.TaskContext) (cotask.State, error) {
	return 1, m.SetDuty(m.Shares.Enable.Get(), m.Shares.Duty.Get())
}

// Toggle flips both motors' enables when they agree and leaves them
// alone otherwise.
func Toggle(left, right *share.Share[bool]) {
	l, r := left.Get(), right.Get()
	if l != r {
		return
	}
	left.Put(!l)
	right.Put(!r)
}
