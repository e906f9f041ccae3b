package brain

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/romi.go/pkg/control"
	"github.com/robotalks/romi.go/pkg/cotask"
	"github.com/robotalks/romi.go/pkg/share"
)

type harness struct {
	t      *testing.T
	brain  *Brain
	shares Shares
	now    time.Time
}

func newHarness(t *testing.T, cfg Config) *harness {
	r := share.NewRegistry()
	shares := Shares{
		LeftDelta:   share.RegisterShare(r, "l.delta", 0.0),
		RightDelta:  share.RegisterShare(r, "r.delta", 0.0),
		LeftSpeed:   share.RegisterShare(r, "l.speed", 0.0),
		RightSpeed:  share.RegisterShare(r, "r.speed", 0.0),
		Phi:         share.RegisterShare(r, "phi", 0.0),
		EulerX:      share.RegisterShare(r, "eul.x", 0.0),
		Calibrated:  share.RegisterFlag(r, "cal"),
		ZeroHeading: share.RegisterFlag(r, "zero"),
		Line:        share.RegisterShare(r, "line", 0.0),
		Finish:      share.RegisterFlag(r, "finish"),
		Distance:    share.RegisterShare(r, "dist", 999.0),
		LeftDuty:    share.RegisterShare(r, "l.duty", 0.0),
		RightDuty:   share.RegisterShare(r, "r.duty", 0.0),
		LeftEnable:  share.RegisterShare(r, "l.en", true),
		RightEnable: share.RegisterShare(r, "r.en", true),
		Commands:    NewCommandQueue(r),
		Status:      NewStatusShare(r),
		Recalibrate: share.RegisterFlag(r, "recal"),
	}
	b, err := New(cfg, shares)
	require.NoError(t, err)
	return &harness{t: t, brain: b, shares: shares, now: time.Unix(1000, 0)}
}

func (h *harness) step() cotask.State {
	h.now = h.now.Add(10 * time.Millisecond)
	st, err := h.brain.Step(cotask.NewTaskContext(context.Background(), h.now, nil))
	require.NoError(h.t, err)
	return st
}

func (h *harness) calibrate() {
	h.shares.Calibrated.Put(true)
	h.shares.EulerX.Put(1.0)
	h.step()
	h.shares.ZeroHeading.Clear()
	h.step()
}

func (h *harness) duties() (float64, float64) {
	return h.shares.LeftDuty.Get(), h.shares.RightDuty.Get()
}

func TestReckonerStraight(t *testing.T) {
	r := Reckoner{WheelRadius: 0.035}
	r.Update(0, 0, math.Pi/2)
	p := r.Update(10, 10, math.Pi/2)
	require.InDelta(t, 0, p.X, 1e-9)
	require.InDelta(t, 0.35, p.Y, 1e-9)
	require.InDelta(t, 0.35, r.Step, 1e-9)
}

func TestReckonerArc(t *testing.T) {
	r := Reckoner{WheelRadius: 1}
	r.Update(0, 0, 0)
	// quarter circle of radius 1: both wheels average π/2 of travel.
	p := r.Update(math.Pi/2, math.Pi/2, math.Pi/2)
	chord := math.Sqrt2
	require.InDelta(t, chord*math.Cos(math.Pi/4), p.X, 1e-9)
	require.InDelta(t, chord*math.Sin(math.Pi/4), p.Y, 1e-9)
}

func TestReckonerWrap(t *testing.T) {
	r := Reckoner{WheelRadius: 1}
	r.Update(0, 0, 2*math.Pi-0.0001)
	p := r.Update(1, 1, 0.0001)
	require.InDelta(t, 1, p.X, 1e-6)
	require.InDelta(t, 0, p.Y, 1e-6)
}

func TestNormalizeAngle(t *testing.T) {
	testCases := []struct{ in, out float64 }{
		{0, 0},
		{math.Pi, math.Pi},
		{-math.Pi, math.Pi},
		{3 * math.Pi / 2, -math.Pi / 2},
		{-3 * math.Pi / 2, math.Pi / 2},
		{4*math.Pi + 1, 1},
	}
	for _, tc := range testCases {
		require.InDelta(t, tc.out, NormalizeAngle(tc.in), 1e-9, "in=%v", tc.in)
	}
}

func TestWaitCalibration(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	require.Equal(t, StateWaitCalibration, h.step())

	// calibrated but no heading yet.
	h.shares.Calibrated.Put(true)
	require.Equal(t, StateWaitCalibration, h.step())

	h.shares.EulerX.Put(0.5)
	h.step()
	require.Equal(t, StateLap, h.brain.State())
	require.False(t, h.shares.Calibrated.Any())
	require.True(t, h.shares.ZeroHeading.Any())
	require.Equal(t, DefaultConfig().Line, h.brain.LineGains())
}

func TestCommandsIgnoredWhileWaiting(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	require.NoError(t, h.shares.Commands.Put(Command{Kind: CmdMove, Value: 1}))
	require.NoError(t, h.shares.Commands.Put(Command{Kind: CmdToggle}))
	h.step()
	require.Equal(t, StateWaitCalibration, h.brain.State())
	require.False(t, h.shares.LeftEnable.Get())
	require.False(t, h.shares.RightEnable.Get())
}

func TestLineFollowSteers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mission = MissionIdle
	h := newHarness(t, cfg)
	h.calibrate()
	require.Equal(t, StateIdle, h.brain.State())

	require.NoError(t, h.shares.Commands.Put(Command{Kind: CmdFollow}))
	// line is left of center: turn left.
	h.shares.Line.Put(-2)
	h.step()
	require.Equal(t, StateManeuver, h.brain.State())
	l, r := h.duties()
	require.InDelta(t, 20*(1-0.4), l, 1e-9)
	require.InDelta(t, 20*(1+0.4), r, 1e-9)

	// far off the line the correction saturates, no wheel reverses.
	for _, line := range []float64{-4.4, 4.4, -100, 100} {
		h.shares.Line.Put(line)
		h.step()
		l, r = h.duties()
		require.GreaterOrEqual(t, l, 0.0, "line=%v", line)
		require.GreaterOrEqual(t, r, 0.0, "line=%v", line)
		require.LessOrEqual(t, l, 40.0, "line=%v", line)
		require.LessOrEqual(t, r, 40.0, "line=%v", line)
		require.InDelta(t, 40, l+r, 1e-9)
	}
	l, r = h.duties()
	require.Equal(t, 40.0, l)
	require.Equal(t, 0.0, r)

	require.NoError(t, h.shares.Commands.Put(Command{Kind: CmdStop}))
	h.step()
	require.Equal(t, StateIdle, h.brain.State())
	l, r = h.duties()
	require.Zero(t, l)
	require.Zero(t, r)
}

func TestLapCompletes(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.calibrate()
	require.Equal(t, StateLap, h.brain.State())

	// drive around a circle of radius 0.5 counter-clockwise, starting
	// at the bottom heading +X.
	const radius, steps = 0.5, 200
	wheel := h.brain.Config.WheelRadius
	arc := 2 * math.Pi * radius / steps
	for i := 1; i <= steps+5 && h.brain.State() == StateLap; i++ {
		phi := math.Mod(float64(i)*2*math.Pi/steps, 2*math.Pi)
		h.shares.Phi.Put(phi)
		h.shares.LeftDelta.Put(arc / wheel)
		h.shares.RightDelta.Put(arc / wheel)
		h.step()
	}
	require.Equal(t, StateIdle, h.brain.State())
	require.InDelta(t, 0, h.brain.Pose().Y, 0.05)
}

func TestTurnManeuver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mission = MissionIdle
	h := newHarness(t, cfg)
	h.calibrate()

	require.NoError(t, h.shares.Commands.Put(Command{Kind: CmdTurn, Value: -math.Pi / 2}))
	h.step()
	l, r := h.duties()
	require.Equal(t, 15.0, l)
	require.Equal(t, -15.0, r)

	phi := 0.0
	for i := 0; i < 100 && h.brain.State() == StateManeuver; i++ {
		phi = math.Mod(phi-0.05+2*math.Pi, 2*math.Pi)
		h.shares.Phi.Put(phi)
		h.step()
	}
	require.Equal(t, StateIdle, h.brain.State())
	require.InDelta(t, 3*math.Pi/2, h.brain.Pose().Phi, 0.05)
}

func TestTurnAngles(t *testing.T) {
	testCases := []struct {
		name  string
		angle float64
		rate  float64
	}{
		{name: "quarter left", angle: math.Pi / 2, rate: 0.05},
		{name: "three quarters left", angle: 3 * math.Pi / 2, rate: 0.05},
		{name: "beyond half right", angle: -4, rate: 0.05},
		{name: "full turn left", angle: 2 * math.Pi, rate: 0.07},
		{name: "coarse steps right", angle: -3, rate: 0.4},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Mission = MissionIdle
			h := newHarness(t, cfg)
			h.calibrate()

			phi := 1.0
			h.shares.Phi.Put(phi)
			h.step()
			turn := h.brain.turn(tc.angle).(*Turn)
			h.brain.Start(StateManeuver, turn)
			h.step()
			sign := math.Copysign(1, tc.angle)
			l, r := h.duties()
			require.Equal(t, -sign*cfg.TurnDuty, l)
			require.Equal(t, sign*cfg.TurnDuty, r)

			n := 0
			for ; n < 1000 && h.brain.State() == StateManeuver; n++ {
				phi = math.Mod(phi+sign*tc.rate+2*math.Pi, 2*math.Pi)
				h.shares.Phi.Put(phi)
				h.step()
			}
			require.Equal(t, StateIdle, h.brain.State())
			target := math.Abs(tc.angle) - cfg.TurnTolerance
			require.GreaterOrEqual(t, sign*turn.Turned(), target)
			require.Less(t, sign*turn.Turned(), target+tc.rate+1e-9)
			require.InDelta(t, float64(n)*tc.rate, sign*turn.Turned(), 1e-9)
		})
	}
}

func TestMoveManeuver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mission = MissionIdle
	h := newHarness(t, cfg)
	h.calibrate()

	require.NoError(t, h.shares.Commands.Put(Command{Kind: CmdMove, Value: 0.095}))
	h.step()
	l, r := h.duties()
	require.Equal(t, 20.0, l)
	require.Equal(t, 20.0, r)
	// 1cm per step
	step := 0.01 / cfg.WheelRadius
	h.shares.LeftDelta.Put(step)
	h.shares.RightDelta.Put(step)
	n := 0
	for ; n < 50 && h.brain.State() == StateManeuver; n++ {
		h.step()
	}
	require.Equal(t, 10, n)
	require.InDelta(t, 0.1, h.brain.Pose().X, 1e-9)
	require.InDelta(t, 0, h.brain.Pose().Y, 1e-9)
}

func TestCourseSequence(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.brain.Config.Mission = MissionCourse
	h.calibrate()
	require.Equal(t, StateCourse, h.brain.State())
	seq := h.brain.current.(*Sequence)
	require.Len(t, seq.Steps, 11)

	h.step()
	require.Equal(t, 0, seq.Current())
	h.shares.Distance.Put(25)
	h.step()
	require.Equal(t, 1, seq.Current())
	l, r := h.duties()
	require.Equal(t, -15.0, l)
	require.Equal(t, 15.0, r)

	// jump through the detour by faking heading and travel. The sensors
	// sweep over the line on the way back and raise the finish flag.
	wheel := h.brain.Config.WheelRadius
	phi := 0.0
	h.shares.Finish.Put(true)
	for i := 0; i < 400 && seq.Current() < 9; i++ {
		switch step := seq.Steps[seq.Current()].(type) {
		case *Turn:
			if step.Angle > 0 {
				phi += 0.1
			} else {
				phi -= 0.1
			}
			phi = math.Mod(phi+2*math.Pi, 2*math.Pi)
			h.shares.LeftDelta.Put(0)
			h.shares.RightDelta.Put(0)
		case *LineMove:
			h.shares.LeftDelta.Put(0.02 / wheel)
			h.shares.RightDelta.Put(0.02 / wheel)
		}
		h.shares.Phi.Put(phi)
		h.step()
	}
	require.Equal(t, 9, seq.Current())
	require.False(t, h.shares.Finish.Any())
	h.shares.LeftDelta.Put(0)
	h.shares.RightDelta.Put(0)
	h.step()
	require.Equal(t, StateCourse, h.brain.State())

	h.shares.Finish.Put(true)
	h.step()
	require.Equal(t, StateIdle, h.brain.State())
	require.False(t, h.shares.Finish.Any())
	st := h.shares.Status.Get()
	require.Equal(t, "idle", st.State)
}

func TestZeroResetsOdometryAfterHeading(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mission = MissionIdle
	h := newHarness(t, cfg)
	h.calibrate()
	step := 0.01 / cfg.WheelRadius

	h.shares.Phi.Put(1.0)
	h.step()
	h.shares.LeftDelta.Put(step)
	h.shares.RightDelta.Put(step)
	h.step()
	require.InDelta(t, 1.0, h.brain.Pose().Phi, 1e-9)

	require.NoError(t, h.shares.Commands.Put(Command{Kind: CmdZero}))
	h.step()
	require.True(t, h.shares.ZeroHeading.Any())

	// the IMU applies the zero in the next round.
	h.shares.ZeroHeading.Clear()
	h.shares.Phi.Put(0)
	h.step()
	require.Equal(t, Pose{}, h.brain.Pose())

	h.step()
	p := h.brain.Pose()
	require.InDelta(t, 0.01, p.X, 1e-9)
	require.InDelta(t, 0, p.Y, 1e-9)
	require.Zero(t, p.Phi)
}

func TestRecalibrateCommand(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mission = MissionIdle
	h := newHarness(t, cfg)
	h.calibrate()

	require.NoError(t, h.shares.Commands.Put(Command{Kind: CmdFollow}))
	h.step()
	require.Equal(t, StateManeuver, h.brain.State())

	require.NoError(t, h.shares.Commands.Put(Command{Kind: CmdRecalibrate}))
	require.Equal(t, StateWaitCalibration, h.step())
	require.True(t, h.shares.Recalibrate.Any())
	l, r := h.duties()
	require.Zero(t, l)
	require.Zero(t, r)
	require.Equal(t, "wait-calibration", h.shares.Status.Get().State)

	// motion commands wait for the calibration.
	require.NoError(t, h.shares.Commands.Put(Command{Kind: CmdMove, Value: 1}))
	require.Equal(t, StateWaitCalibration, h.step())

	h.shares.Calibrated.Put(true)
	h.step()
	require.Equal(t, StateIdle, h.brain.State())
	require.True(t, h.shares.ZeroHeading.Any())
}

func TestParseCommand(t *testing.T) {
	testCases := []struct {
		in   string
		cmd  Command
		fail bool
	}{
		{in: "stop", cmd: Command{Kind: CmdStop}},
		{in: "MOVE 0.2", cmd: Command{Kind: CmdMove, Value: 0.2}},
		{in: "turn -1.57", cmd: Command{Kind: CmdTurn, Value: -1.57}},
		{in: "follow", cmd: Command{Kind: CmdFollow}},
		{in: "gains 7 0 0.5", cmd: Command{Kind: CmdGains, Gains: control.Gains{Kp: 7, Kd: 0.5}}},
		{in: "recalibrate", cmd: Command{Kind: CmdRecalibrate}},
		{in: "gains 0", fail: true},
		{in: "move NaN", fail: true},
		{in: "turn inf", fail: true},
		{in: "turn -Inf", fail: true},
		{in: "follow +Infinity", fail: true},
		{in: "gains 1 0 nan", fail: true},
		{in: "recalibrate now", fail: true},
		{in: "move", fail: true},
		{in: "move far", fail: true},
		{in: "stop now", fail: true},
		{in: "jump", fail: true},
		{in: "", fail: true},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			cmd, err := ParseCommand(tc.in)
			if tc.fail {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.cmd, cmd)
			reparsed, err := ParseCommand(cmd.String())
			require.NoError(t, err)
			require.Equal(t, cmd, reparsed)
		})
	}
}
