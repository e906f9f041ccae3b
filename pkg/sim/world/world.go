// Package world simulates a Romi on a track: differential drive
// kinematics, wheel encoders, line sensors, the BNO055, the LIDAR and the
// blue button.
package world

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/romi.go/pkg/cotask"
	"github.com/robotalks/romi.go/pkg/drivers/bno055"
	"github.com/robotalks/romi.go/pkg/drivers/lidar"
	"github.com/robotalks/romi.go/pkg/hal"
	"github.com/robotalks/romi.go/pkg/sim"
)

// RobotName is the object name of the robot.
const RobotName = "robot/romi"

// RobotDiameter is the Romi chassis diameter.
const RobotDiameter = 0.165

// World is the simulated environment. It is stepped as a task before the
// drivers in each round.
type World struct {
	sim.ObjectsChangeCaster

	cfg   Config
	track *Track
	imu   *bno055.Emulator

	lock        sync.Mutex
	pose        sim.Pose2D
	left, right *wheel
	line        [5]uint16
	lastRange   float64
	last        time.Time
	published   bool

	pulses  chan time.Duration
	presses chan struct{}
}

// New creates a world with the robot at the track's start pose.
func New(cfg Config, track *Track) (*World, error) {
	if cfg.WheelRadius <= 0 || cfg.TrackWidth <= 0 || cfg.TicksPerRev <= 0 {
		return nil, fmt.Errorf("invalid robot geometry r=%v W=%v ticks=%d",
			cfg.WheelRadius, cfg.TrackWidth, cfg.TicksPerRev)
	}
	if track == nil {
		t, err := TrackByName(cfg.Track)
		if err != nil {
			return nil, err
		}
		track = t
	}
	w := &World{
		cfg:     cfg,
		track:   track,
		imu:     bno055.NewEmulator(),
		pose:    track.Start,
		pulses:  make(chan time.Duration, 1),
		presses: make(chan struct{}, 1),
	}
	w.left, w.right = &wheel{w: w}, &wheel{w: w}
	w.lock.Lock()
	w.sense()
	w.lock.Unlock()
	return w, nil
}

// Config returns the robot configuration.
func (w *World) Config() Config {
	return w.cfg
}

// Track returns the arena.
func (w *World) Track() *Track {
	return w.track
}

// IMU returns the BNO055 emulator.
func (w *World) IMU() *bno055.Emulator {
	return w.imu
}

// Pose returns the true robot pose.
func (w *World) Pose() sim.Pose2D {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.pose
}

// SetPose moves the robot.
func (w *World) SetPose(pose sim.Pose2D) {
	w.lock.Lock()
	w.pose = pose
	w.sense()
	w.lock.Unlock()
	w.ObjectsChanged(w.robot())
}

// WheelSpeeds returns the wheel speeds in rad/s.
func (w *World) WheelSpeeds() (left, right float64) {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.left.speed, w.right.speed
}

// Range returns the last measured obstacle range in m, +Inf if nothing
// was seen.
func (w *World) Range() float64 {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.lastRange
}

// Press simulates a press of the blue button.
func (w *World) Press() {
	select {
	case w.presses <- struct{}{}:
	default:
	}
}

// Advance integrates the world over dt.
func (w *World) Advance(dt time.Duration) {
	if dt <= 0 {
		return
	}
	if w.cfg.MaxStep > 0 && dt > w.cfg.MaxStep {
		glog.V(3).Infof("world: step %v clamped to %v", dt, w.cfg.MaxStep)
		dt = w.cfg.MaxStep
	}
	secs := dt.Seconds()
	w.lock.Lock()
	lag := w.cfg.MotorLag.Seconds()
	w.left.advance(secs, lag)
	w.right.advance(secs, lag)

	r := w.cfg.WheelRadius
	v := r * (w.left.speed + w.right.speed) / 2
	omega := r * (w.right.speed - w.left.speed) / w.cfg.TrackWidth
	theta := w.pose.Orientation.Radians()
	if math.Abs(omega) > 1e-9 {
		next := theta + omega*secs
		w.pose.X += v / omega * (math.Sin(next) - math.Sin(theta))
		w.pose.Y -= v / omega * (math.Cos(next) - math.Cos(theta))
		w.pose.Orientation = sim.AngleFromRadians(next)
	} else {
		w.pose.OffsetBy(w.pose.Orientation.Project(v * secs))
	}
	w.imu.SetRates(0, 0, -omega)
	w.sense()
	w.lock.Unlock()
}

// sense updates the sensor readings from the pose. The lock must be held.
func (w *World) sense() {
	for n, off := range w.cfg.SensorOffsets {
		dark := w.track.Darkness(w.pose.Local(w.cfg.SensorForward, off), w.cfg.SensorBlur)
		frac := w.cfg.White + (1-w.cfg.White)*dark
		w.line[n] = uint16(math.Round(frac * hal.ADCMax))
	}
	w.imu.SetOrientation(w.cfg.Compass-w.pose.Orientation.Radians(), 0, 0)

	dist, ok := w.track.Range(w.pose.Local(w.cfg.LidarForward, 0), w.pose.Orientation)
	if !ok {
		dist = math.Inf(1)
	}
	w.lastRange = dist
	mm := math.Min(dist, w.cfg.LidarRange) * 1000
	pulse := time.Duration((lidar.ZeroPulse + mm/lidar.MMPerUS) * float64(time.Microsecond))
	select {
	case <-w.pulses:
	default:
	}
	w.pulses <- pulse
}

// Step implements cotask.Stepper.
func (w *World) Step(tc cotask.TaskContext) (cotask.State, error) {
	now := tc.Time()
	if !w.last.IsZero() {
		w.Advance(now.Sub(w.last))
	}
	w.last = now
	if !w.published {
		w.published = true
		w.ObjectsChanged(w.staticObjects()...)
	}
	w.ObjectsChanged(w.robot())
	return 1, nil
}
