// Package romi wires the Romi robot: backend devices, drivers, brain and
// the cooperative scheduler, plus the telemetry, command and status
// surfaces around them.
package romi

import (
	"flag"
	"fmt"
	"time"

	"github.com/robotalks/romi.go/pkg/env"
	"github.com/robotalks/romi.go/pkg/status"
)

// Backends.
const (
	BackendSim = "sim"
	BackendHW  = "hw"
)

// Config provides command line and environment options.
type Config struct {
	RobotID string
	Backend string
	// Profile is the YAML robot profile, empty for built-in defaults.
	Profile string
	// Calibration is where the BNO055 profile is kept, empty to keep it
	// in memory only.
	Calibration string
	// MQTTURL e.g. mqtt://host:port/topic-prefix, empty to disable.
	MQTTURL string
	// Codec of telemetry frames: proto or json.
	Codec string
	// Record is the SQLite file recording runs, empty to disable.
	Record string
	// Loopback routes simulated encoders and line sensors through the
	// coprocessor protocol.
	Loopback bool
	// Visualize writes the simulated world as JSON lines to stdout.
	Visualize bool
	// Watch reloads gains when the profile changes.
	Watch  bool
	Policy string
	Status status.Config
}

var defaultConfig = Config{
	Backend:     BackendSim,
	Calibration: "calibration.yaml",
	Codec:       "proto",
	Watch:       true,
	Policy:      "rr",
	Status:      status.Config{Addr: status.DefaultAddr},
}

func init() {
	env.LoadFiles(".env")
	defaultConfig.RobotID = env.MachineID()
	env.String("ID", &defaultConfig.RobotID)
	env.String("BACKEND", &defaultConfig.Backend)
	env.String("PROFILE", &defaultConfig.Profile)
	env.String("CALIBRATION", &defaultConfig.Calibration)
	env.String("MQTT_URL", &defaultConfig.MQTTURL)
	env.String("CODEC", &defaultConfig.Codec)
	env.String("RECORD", &defaultConfig.Record)
	env.Bool("LOOPBACK", &defaultConfig.Loopback)
	env.Bool("WATCH", &defaultConfig.Watch)
	env.String("STATUS_ADDR", &defaultConfig.Status.Addr)
}

// SetupFlags sets command line flags.
func SetupFlags() {
	c := &defaultConfig
	flag.StringVar(&c.RobotID, "id", c.RobotID, "Robot ID")
	flag.StringVar(&c.Backend, "backend", c.Backend, "Backend: sim or hw")
	flag.StringVar(&c.Profile, "profile", c.Profile, "Robot profile (YAML)")
	flag.StringVar(&c.Calibration, "calibration", c.Calibration, "IMU calibration profile file, empty to keep in memory")
	flag.StringVar(&c.MQTTURL, "mqtt", c.MQTTURL, "MQTT broker URL, e.g. mqtt://localhost:1883/")
	flag.StringVar(&c.Codec, "codec", c.Codec, "Telemetry codec: proto or json")
	flag.StringVar(&c.Record, "record", c.Record, "SQLite file to record runs into")
	flag.BoolVar(&c.Loopback, "loopback", c.Loopback, "Serve simulated sensors through the coprocessor protocol")
	flag.BoolVar(&c.Visualize, "see", c.Visualize, "Write simulation objects to stdout")
	flag.BoolVar(&c.Watch, "watch", c.Watch, "Reload gains when the profile changes")
	flag.StringVar(&c.Policy, "policy", c.Policy, "Scheduling policy: rr or priority")
	c.Status.SetupFlags()
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Validate checks option values.
func (c *Config) Validate() error {
	if c.RobotID == "" {
		return fmt.Errorf("robot id must be specified")
	}
	switch c.Backend {
	case BackendSim, BackendHW:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	switch c.Policy {
	case "rr", "priority":
	default:
		return fmt.Errorf("unknown policy %q", c.Policy)
	}
	return nil
}

// DefaultPeriod is the period of every robot task.
const DefaultPeriod = 10 * time.Millisecond
