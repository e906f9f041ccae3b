// Package rpio drives the Romi motor PWM, DIR pins, the blue button and the
// LIDAR pulse input from Raspberry Pi GPIO.
package rpio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/golang/glog"
	"github.com/stianeikeland/go-rpio/v4"

	"github.com/robotalks/romi.go/pkg/hal"
)

// ErrPulseTimeout is returned when no complete pulse arrived in time.
var ErrPulseTimeout = errors.New("pulse timeout")

// Pins are BCM pin numbers.
type Pins struct {
	LeftPWM  int `yaml:"left_pwm"`
	LeftDir  int `yaml:"left_dir"`
	RightPWM int `yaml:"right_pwm"`
	RightDir int `yaml:"right_dir"`
	Button   int `yaml:"button"`
	Lidar    int `yaml:"lidar"`
	// PWMFrequency of the motor drivers in Hz.
	PWMFrequency int `yaml:"pwm_frequency"`
}

// DefaultPins match the Romi adapter board wiring.
func DefaultPins() Pins {
	return Pins{
		LeftPWM:      12,
		LeftDir:      5,
		RightPWM:     13,
		RightDir:     6,
		Button:       17,
		Lidar:        27,
		PWMFrequency: 20000,
	}
}

// pwmCycle is the PWM range, one step per percent.
const pwmCycle = 100

// GPIO owns the memory mapped GPIO registers.
type GPIO struct {
	pins        Pins
	left, right pwm
}

// Open maps GPIO memory and configures the pins.
func Open(pins Pins) (*GPIO, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("gpio: %w", err)
	}
	g := &GPIO{
		pins:  pins,
		left:  pwm{pin: rpio.Pin(pins.LeftPWM)},
		right: pwm{pin: rpio.Pin(pins.RightPWM)},
	}
	for _, p := range []rpio.Pin{g.left.pin, g.right.pin} {
		p.Mode(rpio.Pwm)
		p.Freq(pins.PWMFrequency * pwmCycle)
		rpio.SetDutyCycle(p, 0, pwmCycle)
	}
	for _, n := range []int{pins.LeftDir, pins.RightDir} {
		rpio.Pin(n).Output()
		rpio.Pin(n).Low()
	}
	button := rpio.Pin(pins.Button)
	button.Input()
	button.PullUp()
	button.Detect(rpio.FallEdge)
	lidar := rpio.Pin(pins.Lidar)
	lidar.Input()
	lidar.PullDown()
	glog.Infof("gpio: pins %+v", pins)
	return g, nil
}

// Close stops the motors and unmaps GPIO memory.
func (g *GPIO) Close() error {
	g.left.SetPercent(0)
	g.right.SetPercent(0)
	rpio.Pin(g.pins.Button).Detect(rpio.NoEdge)
	return rpio.Close()
}

// Attach installs motors, button and LIDAR into b.
func (g *GPIO) Attach(b *hal.Board) {
	b.Left.PWM, b.Left.Dir = &g.left, output(g.pins.LeftDir)
	b.Right.PWM, b.Right.Dir = &g.right, output(g.pins.RightDir)
	b.Button = &Button{Pin: g.pins.Button, Poll: 10 * time.Millisecond, Debounce: 200 * time.Millisecond}
	b.Lidar = &PulseIn{Pin: g.pins.Lidar, Timeout: 100 * time.Millisecond}
}

type pwm struct {
	pin rpio.Pin
}

func (p *pwm) SetPercent(percent float64) error {
	duty := uint32(math.Round(math.Max(0, math.Min(100, percent)) * pwmCycle / 100))
	rpio.SetDutyCycle(p.pin, duty, pwmCycle)
	return nil
}

type output int

func (o output) Set(high bool) error {
	if high {
		rpio.Pin(o).High()
	} else {
		rpio.Pin(o).Low()
	}
	return nil
}

// Button reports falling edges detected by the GPIO block.
type Button struct {
	Pin      int
	Poll     time.Duration
	Debounce time.Duration

	last time.Time
}

// WaitEdge implements hal.EdgeInput.
func (b *Button) WaitEdge(ctx context.Context) error {
	ticker := time.NewTicker(b.Poll)
	defer ticker.Stop()
	pin := rpio.Pin(b.Pin)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if !pin.EdgeDetected() {
			continue
		}
		now := time.Now()
		if now.Sub(b.last) < b.Debounce {
			continue
		}
		b.last = now
		return nil
	}
}

// PulseIn measures high pulses by polling the pin level.
type PulseIn struct {
	Pin     int
	Timeout time.Duration
}

// WaitPulse implements hal.PulseInput.
func (p *PulseIn) WaitPulse(ctx context.Context) (time.Duration, error) {
	pin := rpio.Pin(p.Pin)
	deadline := time.Now().Add(p.Timeout)
	wait := func(level rpio.State) (time.Time, error) {
		for n := 0; ; n++ {
			if pin.Read() == level {
				return time.Now(), nil
			}
			if n%1024 == 0 {
				if err := ctx.Err(); err != nil {
					return time.Time{}, err
				}
				if time.Now().After(deadline) {
					return time.Time{}, ErrPulseTimeout
				}
				runtime.Gosched()
			}
		}
	}
	// skip a pulse already in progress.
	if _, err := wait(rpio.Low); err != nil {
		return 0, err
	}
	rise, err := wait(rpio.High)
	if err != nil {
		return 0, err
	}
	fall, err := wait(rpio.Low)
	if err != nil {
		return 0, err
	}
	return fall.Sub(rise), nil
}
