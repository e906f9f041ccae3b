package romi

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/robotalks/romi.go/pkg/brain"
	"github.com/robotalks/romi.go/pkg/drivers/bno055"
	"github.com/robotalks/romi.go/pkg/hal/rpio"
	"github.com/robotalks/romi.go/pkg/sim/world"
)

// TaskProfile configures the robot tasks.
type TaskProfile struct {
	Period   time.Duration `yaml:"period"`
	Priority int           `yaml:"priority"`
	Profile  bool          `yaml:"profile"`
	Trace    bool          `yaml:"trace"`
}

// HardwareProfile locates the devices on a real robot.
type HardwareProfile struct {
	Pins    rpio.Pins `yaml:"pins"`
	I2CBus  string    `yaml:"i2c_bus"`
	IMUAddr uint16    `yaml:"imu_addr"`
	// I2CSpeed in Hz.
	I2CSpeed int64  `yaml:"i2c_speed"`
	Serial   string `yaml:"serial"`
	Baud     int    `yaml:"baud"`
}

// Profile describes the robot and its mission.
type Profile struct {
	Brain    brain.Config    `yaml:"brain"`
	Tasks    TaskProfile     `yaml:"tasks"`
	Hardware HardwareProfile `yaml:"hardware"`
	Sim      world.Config    `yaml:"sim"`
}

// DefaultProfile is used when no profile file is given; a profile file
// overrides only what it mentions.
func DefaultProfile() Profile {
	return Profile{
		Brain: brain.DefaultConfig(),
		Tasks: TaskProfile{
			Period:   DefaultPeriod,
			Priority: 1,
			Profile:  true,
		},
		Hardware: HardwareProfile{
			Pins:     rpio.DefaultPins(),
			I2CBus:   "1",
			IMUAddr:  bno055.Address,
			I2CSpeed: 400000,
			Serial:   "/dev/ttyAMA0",
			Baud:     115200,
		},
		Sim: world.DefaultConfig(),
	}
}

// ParseProfile decodes YAML over the defaults.
func ParseProfile(data []byte) (Profile, error) {
	p := DefaultProfile()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return p, err
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// LoadProfile reads a profile file, or returns defaults when fn is empty.
func LoadProfile(fn string) (Profile, error) {
	if fn == "" {
		return DefaultProfile(), nil
	}
	data, err := os.ReadFile(fn)
	if err != nil {
		return Profile{}, err
	}
	p, err := ParseProfile(data)
	if err != nil {
		return p, fmt.Errorf("profile %s: %w", fn, err)
	}
	return p, nil
}

// Validate checks the profile.
func (p *Profile) Validate() error {
	if err := p.Brain.Line.Validate(); err != nil {
		return fmt.Errorf("brain.line_gains: %w", err)
	}
	if _, err := brain.ParseMission(string(p.Brain.Mission)); err != nil {
		return fmt.Errorf("brain.mission: %w", err)
	}
	if p.Tasks.Period <= 0 {
		return fmt.Errorf("tasks.period must be positive")
	}
	if _, err := world.TrackByName(p.Sim.Track); err != nil {
		return fmt.Errorf("sim.track: %w", err)
	}
	return nil
}
