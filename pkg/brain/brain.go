// Package brain decides what the robot does: it keeps the dead reckoned
// pose, runs maneuvers and missions, and drives the motors.
package brain

import (
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/romi.go/pkg/control"
	"github.com/robotalks/romi.go/pkg/cotask"
	"github.com/robotalks/romi.go/pkg/drivers/motor"
	"github.com/robotalks/romi.go/pkg/share"
)

// States of the brain task.
const (
	StateWaitCalibration cotask.State = 0
	StateIdle            cotask.State = 1
	StateManeuver        cotask.State = 2
	StateLap             cotask.State = 3
	StateCourse          cotask.State = 4
)

// StateName returns a readable name of a brain state.
func StateName(s cotask.State) string {
	switch s {
	case StateWaitCalibration:
		return "wait-calibration"
	case StateIdle:
		return "idle"
	case StateManeuver:
		return "maneuver"
	case StateLap:
		return "lap"
	case StateCourse:
		return "course"
	}
	return fmt.Sprintf("state(%d)", s)
}

// Config of the brain.
type Config struct {
	WheelRadius   float64       `yaml:"wheel_radius"`
	TrackWidth    float64       `yaml:"track_width"`
	Line          control.Gains `yaml:"line_gains"`
	LineDuty      float64       `yaml:"line_duty"`
	TurnDuty      float64       `yaml:"turn_duty"`
	TurnTolerance float64       `yaml:"turn_tolerance"`
	ObstacleMM    float64       `yaml:"obstacle_mm"`
	LapHalfX      float64       `yaml:"lap_half_x"`
	Detour        []Leg         `yaml:"detour"`
	Mission       Mission       `yaml:"mission"`
}

// DefaultConfig matches the Romi chassis and the course.
func DefaultConfig() Config {
	return Config{
		WheelRadius: 0.035,
		TrackWidth:  0.141,
		// the line value swings about ±4 within 1cm of the line.
		Line:          control.Gains{Kp: 0.2},
		LineDuty:      20,
		TurnDuty:      15,
		TurnTolerance: 0.02,
		ObstacleMM:    30,
		LapHalfX:      -0.2,
		Detour:        DefaultDetour,
		Mission:       MissionLap,
	}
}

// Shares the brain reads and writes.
type Shares struct {
	LeftDelta, RightDelta   *share.Share[float64]
	LeftSpeed, RightSpeed   *share.Share[float64]
	Phi, EulerX             *share.Share[float64]
	Calibrated, ZeroHeading *share.Queue[bool]
	Line                    *share.Share[float64]
	Finish                  *share.Queue[bool]
	Distance                *share.Share[float64]

	LeftDuty, RightDuty     *share.Share[float64]
	LeftEnable, RightEnable *share.Share[bool]

	Commands *share.Queue[Command]
	Status   *share.Share[Status]

	// Recalibrate is optional, it restarts the IMU calibration.
	Recalibrate *share.Queue[bool]
}

// Status is a snapshot published every step.
type Status struct {
	Time     time.Time `json:"time"`
	State    string    `json:"state"`
	Maneuver string    `json:"maneuver,omitempty"`
	Pose     Pose      `json:"pose"`

	// Wheel speeds in rad/s.
	WL float64 `json:"wl"`
	WR float64 `json:"wr"`

	DutyL     float64       `json:"duty_l"`
	DutyR     float64       `json:"duty_r"`
	Line      float64       `json:"line"`
	Distance  float64       `json:"distance"`
	EnabledL  bool          `json:"enabled_l"`
	EnabledR  bool          `json:"enabled_r"`
	LineGains control.Gains `json:"line_gains"`
}

// Brain is the mastermind task.
type Brain struct {
	Config Config
	Shares Shares

	line     *control.PID
	reckoner Reckoner
	state    cotask.State
	current  Maneuver
	// rezero resets the reckoner once the IMU applied a heading zero.
	rezero bool
}

// New creates a brain.
func New(cfg Config, shares Shares) (*Brain, error) {
	// the line controller starts soft until calibration is done.
	pid, err := control.NewPID(control.Gains{Kp: 0.1}, control.Saturate(-1, 1))
	if err != nil {
		return nil, err
	}
	if err := cfg.Line.Validate(); err != nil {
		return nil, fmt.Errorf("line gains: %w", err)
	}
	if cfg.Mission == "" {
		cfg.Mission = MissionLap
	}
	return &Brain{
		Config:   cfg,
		Shares:   shares,
		line:     pid,
		reckoner: Reckoner{WheelRadius: cfg.WheelRadius},
		state:    StateWaitCalibration,
	}, nil
}

// State returns the current state.
func (b *Brain) State() cotask.State {
	return b.state
}

// Pose returns the dead reckoned pose.
func (b *Brain) Pose() Pose {
	return b.reckoner.Pose()
}

// LineGains returns the gains of the line controller.
func (b *Brain) LineGains() control.Gains {
	return b.line.Gains()
}

// Drive sets both motor duties.
func (b *Brain) Drive(left, right float64) {
	b.Shares.LeftDuty.Put(left)
	b.Shares.RightDuty.Put(right)
}

// Start runs a maneuver in the given state, replacing the current one.
func (b *Brain) Start(state cotask.State, m Maneuver) {
	b.current, b.state = m, state
	glog.Infof("brain: %s %s", StateName(state), m.Name())
}

// StartMission starts a mission.
func (b *Brain) StartMission(m Mission) {
	switch m {
	case MissionLap:
		b.line.Reset()
		b.Start(StateLap, b.lapManeuver())
	case MissionCourse:
		b.line.Reset()
		b.Shares.Finish.Clear()
		b.Start(StateCourse, b.courseManeuver())
	default:
		b.Stop()
	}
}

// Stop abandons the current maneuver and stops the motors.
func (b *Brain) Stop() {
	b.current, b.state = nil, StateIdle
	b.Drive(0, 0)
}

// Step implements cotask.Stepper.
func (b *Brain) Step(tc cotask.TaskContext) (cotask.State, error) {
	now := tc.Time()
	if b.state == StateWaitCalibration {
		b.handleCommands(true)
		if b.Shares.Calibrated.Any() && b.Shares.EulerX.Get() != 0 {
			b.Shares.Calibrated.Clear()
			b.Shares.ZeroHeading.Put(true)
			if err := b.line.SetGains(b.Config.Line); err != nil {
				return b.state, err
			}
			b.reckoner.Reset()
			glog.Info("brain: calibrated")
			b.StartMission(b.Config.Mission)
		}
		b.publish(now)
		return StateWaitCalibration, nil
	}

	if b.rezero {
		b.rezero = false
		b.reckoner.Reset()
	}
	b.handleCommands(false)
	b.reckoner.Update(b.Shares.LeftDelta.Get(), b.Shares.RightDelta.Get(), b.Shares.Phi.Get())

	var err error
	switch b.state {
	case StateWaitCalibration:
		// a recalibrate command arrived in this step.
	case StateIdle:
		b.Drive(0, 0)
	case StateManeuver, StateLap, StateCourse:
		var done bool
		if b.current == nil {
			done = true
		} else {
			done, err = b.current.Step(b, now)
		}
		if done {
			pose := b.reckoner.Pose()
			glog.Infof("brain: %s done at X=%.3f Y=%.3f phi=%.3f", StateName(b.state), pose.X, pose.Y, pose.Phi)
			b.Stop()
		}
	default:
		err = fmt.Errorf("brain: invalid state %d", b.state)
	}
	b.publish(now)
	return b.state, err
}

func (b *Brain) handleCommands(waiting bool) {
	if b.Shares.Commands == nil {
		return
	}
	for {
		cmd, err := b.Shares.Commands.Get()
		if err != nil {
			return
		}
		glog.V(1).Infof("brain: command %s", cmd)
		switch cmd.Kind {
		case CmdToggle:
			motor.Toggle(b.Shares.LeftEnable, b.Shares.RightEnable)
			continue
		case CmdGains:
			if err := b.line.SetGains(cmd.Gains); err != nil {
				glog.Warningf("brain: %v", err)
			} else {
				b.Config.Line = cmd.Gains
			}
			continue
		case CmdRecalibrate:
			b.recalibrate()
			waiting = true
			continue
		}
		if waiting {
			glog.Warningf("brain: command %s ignored, waiting for calibration", cmd)
			continue
		}
		switch cmd.Kind {
		case CmdStop:
			b.Stop()
		case CmdLap:
			b.StartMission(MissionLap)
		case CmdCourse:
			b.StartMission(MissionCourse)
		case CmdFollow:
			duty := cmd.Value
			if duty == 0 {
				duty = b.Config.LineDuty
			}
			b.line.Reset()
			b.Start(StateManeuver, &LineFollow{Duty: duty})
		case CmdZero:
			// the IMU zeroes in its next step, the reckoner follows after.
			b.Shares.ZeroHeading.Put(true)
			b.rezero = true
		case CmdMove:
			duty := b.Config.LineDuty
			dist := cmd.Value
			if dist < 0 {
				duty, dist = -duty, -dist
			}
			b.Start(StateManeuver, &LineMove{Distance: dist, Duty: duty})
		case CmdTurn:
			b.Start(StateManeuver, b.turn(cmd.Value))
		default:
			glog.Warningf("brain: unknown command %q", cmd.Kind)
		}
	}
}

// recalibrate stops the robot and waits for the IMU to calibrate again.
func (b *Brain) recalibrate() {
	b.Stop()
	b.state = StateWaitCalibration
	b.rezero = false
	b.Shares.Calibrated.Clear()
	if b.Shares.Recalibrate != nil {
		b.Shares.Recalibrate.Put(true)
	}
	glog.Info("brain: recalibrating IMU")
}

func (b *Brain) publish(now time.Time) {
	if b.Shares.Status == nil {
		return
	}
	st := Status{
		Time:      now,
		State:     StateName(b.state),
		Pose:      b.reckoner.Pose(),
		WL:        b.Shares.LeftSpeed.Get(),
		WR:        b.Shares.RightSpeed.Get(),
		DutyL:     b.Shares.LeftDuty.Get(),
		DutyR:     b.Shares.RightDuty.Get(),
		Line:      b.Shares.Line.Get(),
		Distance:  b.Shares.Distance.Get(),
		EnabledL:  b.Shares.LeftEnable.Get(),
		EnabledR:  b.Shares.RightEnable.Get(),
		LineGains: b.line.Gains(),
	}
	if b.current != nil {
		st.Maneuver = b.current.Name()
	}
	b.Shares.Status.Put(st)
}
