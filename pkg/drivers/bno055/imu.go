package bno055

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/glog"

	"github.com/robotalks/romi.go/pkg/cotask"
	"github.com/robotalks/romi.go/pkg/share"
)

// States of the IMU task.
const (
	StateStart     cotask.State = 1
	StateCalibrate cotask.State = 2
	StateSave      cotask.State = 3
	StateLoad      cotask.State = 4
	StateRun       cotask.State = 5
)

// Shares of the IMU.
type Shares struct {
	// Phi is the heading in rad relative to the zeroed direction,
	// increasing counter-clockwise, in [0, 2π).
	Phi *share.Share[float64]
	// Calibrated is raised once calibration is loaded or completed.
	Calibrated *share.Queue[bool]
	// Zero requests the current heading to become phi 0.
	Zero                   *share.Queue[bool]
	EulerX, EulerY, EulerZ *share.Share[float64]
	RateX, RateY, RateZ    *share.Share[float64]
	// Calib is the last calibration status.
	Calib *share.Share[CalibStatus]
	// Recalibrate requests a fresh calibration once running.
	Recalibrate *share.Queue[bool]
}

// NewShares creates and registers IMU shares.
func NewShares(r *share.Registry) Shares {
	return Shares{
		Phi:        share.RegisterShare(r, "imu.phi", 0.0),
		Calibrated: share.RegisterFlag(r, "imu.calibrated"),
		Zero:       share.RegisterFlag(r, "imu.zero"),
		EulerX:     share.RegisterShare(r, "imu.euler.x", 0.0),
		EulerY:     share.RegisterShare(r, "imu.euler.y", 0.0),
		EulerZ:     share.RegisterShare(r, "imu.euler.z", 0.0),
		RateX:      share.RegisterShare(r, "imu.rate.x", 0.0),
		RateY:      share.RegisterShare(r, "imu.rate.y", 0.0),
		RateZ:      share.RegisterShare(r, "imu.rate.z", 0.0),
		Calib:      share.RegisterShare(r, "imu.calib", CalibStatus{}),

		Recalibrate: share.RegisterFlag(r, "imu.recalibrate"),
	}
}

// IMU is the BNO055 task.
type IMU struct {
	Shares Shares
	Store  ProfileStore

	dev         *Device
	state       cotask.State
	initialized bool
	calib       CalibStatus
	heading     float64
	zero        float64
}

// NewIMU creates the IMU task. Store may be nil, then the sensor is
// calibrated on every start.
func NewIMU(dev *Device, store ProfileStore, shares Shares) *IMU {
	return &IMU{Shares: shares, Store: store, dev: dev, state: StateStart}
}

// State returns the current task state.
func (m *IMU) State() cotask.State {
	return m.state
}

// Recalibrate forgets the last calibration status and waits for the
// sensor to report full calibration again, then saves a fresh profile.
// Call it from the scheduling goroutine, other goroutines raise
// Shares.Recalibrate instead. It's ignored before the sensor started.
func (m *IMU) Recalibrate() {
	if m.state == StateStart {
		return
	}
	glog.Info("BNO055 recalibrating")
	m.calib = CalibStatus{}
	m.Shares.Calib.Put(m.calib)
	m.state = StateCalibrate
}

// Heading computes phi from the euler heading and the zero reference.
// The euler heading increases clockwise.
func Heading(zero, euler float64) float64 {
	if euler > zero {
		return zero - euler + 2*math.Pi
	}
	return zero - euler
}

// Step implements cotask.Stepper.
func (m *IMU) Step(cotask.TaskContext) (cotask.State, error) {
	if !m.initialized {
		if err := m.dev.Init(); err != nil {
			return m.state, err
		}
		m.initialized = true
	}
	if m.Shares.Recalibrate != nil && m.Shares.Recalibrate.Any() {
		m.Shares.Recalibrate.Clear()
		m.Recalibrate()
	}
	var err error
	switch m.state {
	case StateStart:
		err = m.start()
	case StateCalibrate:
		err = m.calibrate()
	case StateSave:
		err = m.save()
	case StateLoad:
		err = m.load()
	case StateRun:
		err = m.run()
	default:
		err = fmt.Errorf("bno055: invalid state %d", m.state)
	}
	return m.state, err
}

func (m *IMU) start() error {
	if err := m.dev.SetMode(ModeNDOF); err != nil {
		return err
	}
	if m.Store == nil {
		glog.Info("BNO055 requires calibration")
		m.state = StateCalibrate
		return nil
	}
	_, err := m.Store.LoadProfile()
	switch {
	case err == nil:
		glog.Info("BNO055 calibration profile found")
		m.state = StateLoad
	case errors.Is(err, ErrNoProfile):
		glog.Info("BNO055 requires calibration")
		m.state = StateCalibrate
	default:
		glog.Warningf("BNO055 calibration profile: %v, calibrating", err)
		m.state = StateCalibrate
	}
	return nil
}

func (m *IMU) calibrate() error {
	st, err := m.dev.CalibStatus()
	if err != nil {
		return err
	}
	if st != m.calib {
		glog.Infof("BNO055 calibration %s", st)
		m.calib = st
		m.Shares.Calib.Put(st)
	}
	if st.Complete() {
		glog.Info("BNO055 calibration complete")
		m.state = StateSave
	}
	return nil
}

func (m *IMU) save() error {
	if err := m.dev.SetMode(ModeConfig); err != nil {
		return err
	}
	offsets, err := m.dev.ReadOffsets()
	if err != nil {
		return err
	}
	if m.Store != nil {
		if err := m.Store.SaveProfile(ProfileFromOffsets(offsets)); err != nil {
			glog.Errorf("BNO055 save calibration profile: %v", err)
		} else {
			glog.Info("BNO055 calibration profile saved")
		}
	}
	if err := m.dev.SetMode(ModeNDOF); err != nil {
		return err
	}
	m.Shares.Calibrated.Put(true)
	m.state = StateRun
	return nil
}

func (m *IMU) load() error {
	p, err := m.Store.LoadProfile()
	if err != nil {
		glog.Warningf("BNO055 load calibration profile: %v, calibrating", err)
		m.state = StateCalibrate
		return nil
	}
	if err := m.dev.SetMode(ModeConfig); err != nil {
		return err
	}
	if err := m.dev.WriteOffsets(p.Offsets()); err != nil {
		return err
	}
	if err := m.dev.SetMode(ModeNDOF); err != nil {
		return err
	}
	m.Shares.Calibrated.Put(true)
	m.state = StateRun
	return nil
}

func (m *IMU) run() error {
	if m.Shares.Zero.Any() {
		m.Shares.Zero.Clear()
		m.zero = m.heading
		glog.Infof("BNO055 heading zeroed at %.3f rad", m.zero)
	}
	euler, err := m.dev.ReadEuler()
	if err != nil {
		return err
	}
	gyro, err := m.dev.ReadGyro()
	if err != nil {
		return err
	}
	m.heading = euler.Heading
	m.Shares.Phi.Put(Heading(m.zero, euler.Heading))
	m.Shares.EulerX.Put(euler.Heading)
	m.Shares.EulerY.Put(euler.Roll)
	m.Shares.EulerZ.Put(euler.Pitch)
	m.Shares.RateX.Put(gyro.X)
	m.Shares.RateY.Put(gyro.Y)
	m.Shares.RateZ.Put(gyro.Z)
	return nil
}
