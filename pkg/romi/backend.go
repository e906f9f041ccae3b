package romi

import (
	"fmt"
	"io"

	"github.com/golang/glog"
	"periph.io/x/conn/v3/physic"

	"github.com/robotalks/romi.go/pkg/cotask"
	fx "github.com/robotalks/romi.go/pkg/framework"
	"github.com/robotalks/romi.go/pkg/hal"
	"github.com/robotalks/romi.go/pkg/hal/coproc"
	"github.com/robotalks/romi.go/pkg/hal/periph"
	"github.com/robotalks/romi.go/pkg/hal/rpio"
	"github.com/robotalks/romi.go/pkg/sim/visualization/see"
	"github.com/robotalks/romi.go/pkg/sim/world"
)

// Backend provides the devices of the robot.
type Backend struct {
	Name  string
	Board hal.Board
	// Tasks run before the robot tasks each round, e.g. the world.
	Tasks []*cotask.Task
	// Runnables serve devices in the background.
	Runnables []fx.Runnable
	// World is set for the simulation.
	World *world.World

	closers []io.Closer
}

// Close releases devices.
func (b *Backend) Close() error {
	var errs fx.AggregatedError
	for n := len(b.closers) - 1; n >= 0; n-- {
		errs.Add(b.closers[n].Close())
	}
	return errs.Aggregate()
}

// NewBackend creates the backend named in the config.
func NewBackend(cfg *Config, p *Profile) (*Backend, error) {
	switch cfg.Backend {
	case BackendSim:
		return NewSimBackend(cfg, p)
	case BackendHW:
		return NewHardwareBackend(p)
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

// NewSimBackend simulates the robot on the profile's track.
func NewSimBackend(cfg *Config, p *Profile) (*Backend, error) {
	w, err := world.New(p.Sim, nil)
	if err != nil {
		return nil, err
	}
	b := &Backend{Name: BackendSim, Board: w.Board(), World: w}
	// the world runs at a higher priority so sensors see its latest state.
	b.Tasks = append(b.Tasks, cotask.NewTask("world", w,
		cotask.WithPriority(p.Tasks.Priority+1),
		cotask.WithPeriod(p.Tasks.Period),
		cotask.WithProfile(p.Tasks.Profile)))
	if cfg.Loopback {
		lb := coproc.NewLoopback(b.Board)
		lb.Poller.Attach(&b.Board)
		b.Runnables = append(b.Runnables, fx.NamedRun("coproc-loopback", lb))
		glog.Info("sim: encoders and line sensors served through coprocessor loopback")
	}
	if cfg.Visualize {
		vis := see.NewConfig().NewAdapter()
		vis.Mapper = world.Mapper(vis.Config.Scale)
		vis.Subscribe(w)
		b.Tasks = append(b.Tasks, cotask.NewTask("see", vis,
			cotask.WithPriority(p.Tasks.Priority-1),
			cotask.WithPeriod(5*p.Tasks.Period)))
	}
	glog.Infof("sim: track %s", w.Track().Name)
	return b, nil
}

// NewHardwareBackend opens GPIO, the IMU on I2C and the coprocessor.
func NewHardwareBackend(p *Profile) (*Backend, error) {
	hw := p.Hardware
	b := &Backend{Name: BackendHW}
	gpio, err := rpio.Open(hw.Pins)
	if err != nil {
		return nil, err
	}
	b.closers = append(b.closers, gpio)
	gpio.Attach(&b.Board)

	bus, err := periph.Open(hw.I2CBus, hw.IMUAddr, physic.Frequency(hw.I2CSpeed)*physic.Hertz)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.closers = append(b.closers, bus)
	b.Board.IMU = bus

	port, err := coproc.Open(hw.Serial, hw.Baud)
	if err != nil {
		b.Close()
		return nil, err
	}
	port.Poller.Attach(&b.Board)
	b.Runnables = append(b.Runnables, fx.NamedRun("coproc", port))
	return b, nil
}
