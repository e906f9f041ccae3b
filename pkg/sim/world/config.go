package world

import (
	"time"

	"github.com/robotalks/romi.go/pkg/drivers/encoder"
)

// Config describes the simulated robot.
type Config struct {
	WheelRadius float64 `yaml:"wheel_radius"`
	TrackWidth  float64 `yaml:"track_width"`
	TicksPerRev int     `yaml:"ticks_per_rev"`
	// MaxWheelSpeed is the wheel speed in rad/s at 100% duty.
	MaxWheelSpeed float64       `yaml:"max_wheel_speed"`
	MotorLag      time.Duration `yaml:"motor_lag"`
	// Line sensors sit SensorForward ahead of the axle, SensorOffsets to
	// the left (FL2, FL1, FC, FR1, FR2).
	SensorForward float64    `yaml:"sensor_forward"`
	SensorOffsets [5]float64 `yaml:"sensor_offsets,flow"`
	SensorBlur    float64    `yaml:"sensor_blur"`
	// White is the ADC fraction read on the white floor.
	White        float64 `yaml:"white"`
	LidarForward float64 `yaml:"lidar_forward"`
	LidarRange   float64 `yaml:"lidar_range"`
	// Compass is the IMU heading (clockwise) of the world +X axis.
	Compass float64 `yaml:"compass"`
	// MaxStep bounds the integration step.
	MaxStep time.Duration `yaml:"max_step"`
	Track   string        `yaml:"track"`
}

// DefaultConfig matches a Pololu Romi.
func DefaultConfig() Config {
	return Config{
		WheelRadius:   0.035,
		TrackWidth:    0.141,
		TicksPerRev:   encoder.RomiTicksPerRev,
		MaxWheelSpeed: 15,
		MotorLag:      50 * time.Millisecond,
		SensorForward: 0.07,
		SensorOffsets: [5]float64{0.024, 0.012, 0, -0.012, -0.024},
		SensorBlur:    0.004,
		White:         0.02,
		LidarForward:  0.07,
		LidarRange:    1.3,
		Compass:       1.2,
		MaxStep:       50 * time.Millisecond,
		Track:         TrackLap,
	}
}
