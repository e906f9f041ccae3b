// Package hal defines the hardware interfaces used by drivers.
//
// Backends implement these interfaces on top of real hardware
// (GPIO, I2C, the serial coprocessor) or the simulation.
package hal

import (
	"context"
	"errors"
	"time"
)

// ErrNotSupported indicates the backend doesn't provide the device.
var ErrNotSupported = errors.New("not supported")

// Counter is a free running hardware counter, e.g. a timer in encoder mode.
type Counter interface {
	// Count reads the current counter value.
	Count() (uint32, error)
	// Period is the auto-reload value; the counter wraps from Period to 0.
	Period() uint32
}

// PWM drives a pulse width modulated output.
type PWM interface {
	SetPercent(percent float64) error
}

// DigitalOut is a GPIO output.
type DigitalOut interface {
	Set(high bool) error
}

// ADC reads an analog channel.
type ADC interface {
	Read() (uint16, error)
}

// RegisterBus accesses registers of a device, e.g. over I2C.
type RegisterBus interface {
	ReadRegs(reg byte, buf []byte) error
	WriteRegs(reg byte, data ...byte) error
}

// PulseInput measures high pulse widths on an input pin.
type PulseInput interface {
	// WaitPulse blocks until a complete pulse was seen and returns its width.
	WaitPulse(ctx context.Context) (time.Duration, error)
}

// EdgeInput reports falling edges on an input, e.g. a push button.
type EdgeInput interface {
	WaitEdge(ctx context.Context) error
}

// Wheel groups the devices of one wheel.
type Wheel struct {
	Encoder Counter
	PWM     PWM
	Dir     DigitalOut
}

// Board is what a backend provides to the robot.
type Board struct {
	Left, Right Wheel
	// FL2, FL1, FC, FR1, FR2
	Line   [5]ADC
	IMU    RegisterBus
	Lidar  PulseInput
	Button EdgeInput
}

// ADCMax is the full scale value of 12-bit ADCs.
const ADCMax = 4095
