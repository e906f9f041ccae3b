package romi

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/romi.go/pkg/brain"
	"github.com/robotalks/romi.go/pkg/comm/mqtt"
	"github.com/robotalks/romi.go/pkg/cotask"
	"github.com/robotalks/romi.go/pkg/drivers/bno055"
	"github.com/robotalks/romi.go/pkg/drivers/encoder"
	"github.com/robotalks/romi.go/pkg/drivers/lidar"
	"github.com/robotalks/romi.go/pkg/drivers/linesensor"
	"github.com/robotalks/romi.go/pkg/drivers/motor"
	fx "github.com/robotalks/romi.go/pkg/framework"
	"github.com/robotalks/romi.go/pkg/metrics"
	"github.com/robotalks/romi.go/pkg/recorder"
	"github.com/robotalks/romi.go/pkg/share"
	"github.com/robotalks/romi.go/pkg/status"
	"github.com/robotalks/romi.go/pkg/telemetry"
)

// telemetryDivider is how many task periods pass between frames.
const telemetryDivider = 5

// Robot is the assembled controller.
type Robot struct {
	Config    *Config
	Profile   Profile
	Backend   *Backend
	Registry  *share.Registry
	Scheduler *cotask.Scheduler

	Encoders    [2]*encoder.Encoder
	Motors      [2]*motor.Motor
	IMU         *bno055.IMU
	Lidar       *lidar.Sensor
	LineSensors *linesensor.Sensors
	Brain       *brain.Brain

	Shares   brain.Shares
	Frames   *share.Queue[telemetry.Frame]
	Hub      *telemetry.Hub
	Pump     *telemetry.Pump
	Recorder *recorder.Recorder
	Bridge   *mqtt.Bridge
	Server   *status.Server
}

// New assembles the robot on a backend. Optional surfaces (MQTT,
// recorder) are created from the config.
func New(cfg *Config, p Profile, b *Backend) (*Robot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	r := &Robot{
		Config:    cfg,
		Profile:   p,
		Backend:   b,
		Registry:  share.NewRegistry(),
		Scheduler: cotask.NewScheduler(),
		Hub:       &telemetry.Hub{},
	}
	if cfg.Policy == "priority" {
		r.Scheduler.Policy = cotask.Priority
	}
	if err := r.build(); err != nil {
		return nil, err
	}
	if err := r.buildSurfaces(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Robot) taskOptions(period time.Duration) []cotask.Option {
	t := r.Profile.Tasks
	return []cotask.Option{
		cotask.WithPriority(t.Priority),
		cotask.WithPeriod(period),
		cotask.WithProfile(t.Profile),
		cotask.WithTrace(t.Trace),
	}
}

func (r *Robot) build() error {
	board, reg := r.Backend.Board, r.Registry
	ticks := r.Profile.Sim.TicksPerRev
	if r.Backend.World == nil {
		ticks = encoder.RomiTicksPerRev
	}

	encL, encR := encoder.NewShares(reg, "enc.left"), encoder.NewShares(reg, "enc.right")
	r.Encoders = [2]*encoder.Encoder{
		encoder.New("left", board.Left.Encoder, ticks, encL),
		encoder.New("right", board.Right.Encoder, ticks, encR),
	}
	imuShares := bno055.NewShares(reg)
	var store bno055.ProfileStore = &bno055.MemStore{}
	if r.Config.Calibration != "" && r.Backend.World == nil {
		store = &bno055.FileStore{Path: r.Config.Calibration}
	}
	r.IMU = bno055.NewIMU(bno055.NewDevice(board.IMU), store, imuShares)
	lidarShares := lidar.NewShares(reg)
	r.Lidar = lidar.New(lidarShares)
	lineShares := linesensor.NewShares(reg)
	r.LineSensors = linesensor.New(board.Line, lineShares)
	motL, motR := motor.NewShares(reg, "motor.left"), motor.NewShares(reg, "motor.right")
	r.Motors = [2]*motor.Motor{
		motor.New("left", board.Left.PWM, board.Left.Dir, motL),
		motor.New("right", board.Right.PWM, board.Right.Dir, motR),
	}

	r.Shares = brain.Shares{
		LeftDelta:   encL.Delta,
		RightDelta:  encR.Delta,
		LeftSpeed:   encL.Speed,
		RightSpeed:  encR.Speed,
		Phi:         imuShares.Phi,
		EulerX:      imuShares.EulerX,
		Calibrated:  imuShares.Calibrated,
		ZeroHeading: imuShares.Zero,
		Line:        lineShares.Value,
		Finish:      lineShares.Finish,
		Distance:    lidarShares.Distance,
		LeftDuty:    motL.Duty,
		RightDuty:   motR.Duty,
		LeftEnable:  motL.Enable,
		RightEnable: motR.Enable,
		Commands:    brain.NewCommandQueue(reg),
		Status:      brain.NewStatusShare(reg),
		Recalibrate: imuShares.Recalibrate,
	}
	cfg := r.Profile.Brain
	if r.Backend.World != nil {
		cfg.WheelRadius = r.Profile.Sim.WheelRadius
		cfg.TrackWidth = r.Profile.Sim.TrackWidth
	}
	var err error
	if r.Brain, err = brain.New(cfg, r.Shares); err != nil {
		return err
	}

	// same order as a round of the firmware: sensors, motors, brain.
	period := r.Profile.Tasks.Period
	r.Scheduler.AddTask(r.Backend.Tasks...)
	r.Scheduler.Add(
		cotask.NewTask("enc.left", r.Encoders[0], r.taskOptions(period)...),
		cotask.NewTask("enc.right", r.Encoders[1], r.taskOptions(period)...),
		cotask.NewTask("imu", r.IMU, r.taskOptions(period)...),
		cotask.NewTask("lidar", r.Lidar, r.taskOptions(period)...),
		cotask.NewTask("line", r.LineSensors, r.taskOptions(period)...),
		cotask.NewTask("motor.left", r.Motors[0], r.taskOptions(period)...),
		cotask.NewTask("motor.right", r.Motors[1], r.taskOptions(period)...),
		cotask.NewTask("brain", r.Brain, r.taskOptions(period)...),
	)

	r.Frames = telemetry.NewFrameQueue(reg)
	pub := &telemetry.Publisher{RobotID: r.Config.RobotID, Status: r.Shares.Status, Out: r.Frames}
	r.Scheduler.Add(cotask.NewTask("telemetry", pub,
		cotask.WithPriority(r.Profile.Tasks.Priority-1),
		cotask.WithPeriod(telemetryDivider*period)))
	r.Pump = (&telemetry.Pump{In: r.Frames}).Add(r.Hub)

	if board.Lidar != nil {
		r.Scheduler.AddRunnable(fx.NamedRun("lidar-capture", &lidar.Capture{Input: board.Lidar, Pulse: lidarShares.Pulse}))
	}
	if board.Button != nil {
		r.Scheduler.AddRunnable(fx.NamedRun("button", &ButtonWatcher{Input: board.Button, Commands: r.Shares.Commands}))
	}
	r.Scheduler.AddRunnable(r.Backend.Runnables...)
	r.Scheduler.AddRunnable(fx.NamedRun("telemetry-pump", r.Pump))
	return nil
}

func (r *Robot) buildSurfaces() error {
	cfg := r.Config
	codec, err := telemetry.CodecByName(cfg.Codec)
	if err != nil {
		return err
	}
	if cfg.Record != "" {
		if r.Recorder, err = recorder.Open(cfg.Record); err != nil {
			return err
		}
		r.Pump.Add(r.Recorder)
	}
	if cfg.MQTTURL != "" {
		q, err := mqtt.NewQueueFromURL(cfg.MQTTURL)
		if err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		r.Bridge = mqtt.NewBridge(q, mqtt.Meta{ID: cfg.RobotID, Backend: r.Backend.Name}, codec, r.Shares.Commands)
		r.Pump.Add(r.Bridge)
		r.Scheduler.AddRunnable(fx.NamedRun("mqtt", r.Bridge))
	}
	r.Server = &status.Server{
		Config:    cfg.Status,
		Scheduler: r.Scheduler,
		Registry:  r.Registry,
		Status:    r.Shares.Status,
		Commands:  r.Shares.Commands,
		Hub:       r.Hub,
		Codec:     telemetry.JSONCodec{},
		Gatherer:  metrics.NewRegistry(metrics.NewCollector(r.Scheduler, r.Registry)),
		Recorder:  r.Recorder,
	}
	if cfg.Status.Addr != "" {
		r.Scheduler.AddRunnable(fx.NamedRun("status", r.Server))
	}
	if cfg.Watch && cfg.Profile != "" {
		r.Scheduler.AddRunnable(fx.NamedRun("profile-watcher", &GainsWatcher{
			Path:     cfg.Profile,
			Commands: r.Shares.Commands,
			Current:  r.Profile.Brain.Line,
		}))
	}
	return nil
}

// Run runs the scheduler until ctx is done.
func (r *Robot) Run(ctx context.Context) error {
	if r.Recorder != nil {
		if _, err := r.Recorder.StartRun(ctx, r.Config.RobotID, r.Backend.Name, string(r.Profile.Brain.Mission)); err != nil {
			return err
		}
	}
	glog.Infof("romi %s: %s backend, %d tasks", r.Config.RobotID, r.Backend.Name, len(r.Scheduler.Tasks()))
	err := r.Scheduler.Run(ctx)
	r.stopMotors()
	return err
}

func (r *Robot) stopMotors() {
	for _, m := range r.Motors {
		if err := m.SetDuty(false, 0); err != nil {
			glog.Warningf("motor %s: %v", m.Name, err)
		}
	}
}

// Close releases the recorder and the backend.
func (r *Robot) Close() error {
	var errs fx.AggregatedError
	if r.Recorder != nil {
		errs.Add(r.Recorder.Close())
	}
	errs.Add(r.Backend.Close())
	return errs.Aggregate()
}

// Open loads the profile, creates the backend and assembles the robot.
func Open(cfg *Config) (*Robot, error) {
	p, err := LoadProfile(cfg.Profile)
	if err != nil {
		return nil, err
	}
	b, err := NewBackend(cfg, &p)
	if err != nil {
		return nil, err
	}
	r, err := New(cfg, p, b)
	if err != nil {
		b.Close()
		return nil, err
	}
	return r, nil
}
