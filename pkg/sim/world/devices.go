package world

import (
	"context"
	"math"
	"time"

	"github.com/robotalks/romi.go/pkg/hal"
)

// CounterPeriod is the auto-reload of the simulated encoder timers.
const CounterPeriod = 0xffff

// wheel is a motor with its encoder. The world lock guards all fields.
type wheel struct {
	w       *World
	percent float64
	reverse bool
	speed   float64
	angle   float64
}

func (m *wheel) SetPercent(percent float64) error {
	m.w.lock.Lock()
	defer m.w.lock.Unlock()
	m.percent = math.Max(0, math.Min(100, percent))
	return nil
}

func (m *wheel) Count() (uint32, error) {
	m.w.lock.Lock()
	defer m.w.lock.Unlock()
	ticks := int64(math.Floor(m.angle / (2 * math.Pi) * float64(m.w.cfg.TicksPerRev)))
	ticks %= CounterPeriod + 1
	if ticks < 0 {
		ticks += CounterPeriod + 1
	}
	return uint32(ticks), nil
}

func (m *wheel) Period() uint32 {
	return CounterPeriod
}

func (m *wheel) target() float64 {
	v := m.percent / 100 * m.w.cfg.MaxWheelSpeed
	if m.reverse {
		return -v
	}
	return v
}

func (m *wheel) advance(dt, lag float64) {
	alpha := 1.0
	if lag > 0 {
		alpha = 1 - math.Exp(-dt/lag)
	}
	m.speed += (m.target() - m.speed) * alpha
	m.angle += m.speed * dt
}

type dirPin struct {
	m *wheel
}

func (p dirPin) Set(high bool) error {
	p.m.w.lock.Lock()
	defer p.m.w.lock.Unlock()
	p.m.reverse = high
	return nil
}

type lineADC struct {
	w  *World
	ch int
}

func (a lineADC) Read() (uint16, error) {
	a.w.lock.Lock()
	defer a.w.lock.Unlock()
	return a.w.line[a.ch], nil
}

// pulseInput delivers lidar pulses measured by the world.
type pulseInput struct {
	ch chan time.Duration
}

func (p pulseInput) WaitPulse(ctx context.Context) (time.Duration, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case d := <-p.ch:
		return d, nil
	}
}

type button struct {
	ch chan struct{}
}

func (b button) WaitEdge(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.ch:
		return nil
	}
}

// Board returns the simulated devices.
func (w *World) Board() hal.Board {
	b := hal.Board{
		Left:   hal.Wheel{Encoder: w.left, PWM: w.left, Dir: dirPin{m: w.left}},
		Right:  hal.Wheel{Encoder: w.right, PWM: w.right, Dir: dirPin{m: w.right}},
		IMU:    w.imu,
		Lidar:  pulseInput{ch: w.pulses},
		Button: button{ch: w.presses},
	}
	for n := range b.Line {
		b.Line[n] = lineADC{w: w, ch: n}
	}
	return b
}
