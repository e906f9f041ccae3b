// Package sh is an interactive shell for robots reachable over MQTT.
package sh

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/romi.go/pkg/brain"
	"github.com/robotalks/romi.go/pkg/comm/mqtt"
	"github.com/robotalks/romi.go/pkg/env"
	"github.com/robotalks/romi.go/pkg/telemetry"
)

// Config locates the broker and the robot.
type Config struct {
	MQTTURL string
	RobotID string
	Timeout time.Duration
}

// DefaultMQTTURL is used when neither flag nor environment sets one.
const DefaultMQTTURL = "mqtt://localhost:1883"

var defaultConfig = Config{
	MQTTURL: DefaultMQTTURL,
	Timeout: 2 * time.Second,
}

func init() {
	env.String("MQTT_URL", &defaultConfig.MQTTURL)
	env.String("ID", &defaultConfig.RobotID)
	env.Duration("CLI_TIMEOUT", &defaultConfig.Timeout)
}

// SetupFlags registers the flags on the default config.
func SetupFlags() {
	flag.StringVar(&defaultConfig.MQTTURL, "mqtt", defaultConfig.MQTTURL, "MQTT broker URL.")
	flag.StringVar(&defaultConfig.RobotID, "id", defaultConfig.RobotID, "Robot to connect.")
	flag.DurationVar(&defaultConfig.Timeout, "timeout", defaultConfig.Timeout, "Discovery and reply timeout.")
}

// NewConfig returns a copy of the default config.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoConnect bool

	Shell  *ishell.Shell
	Config *Config
	Queue  *mqtt.Queue
	Remote *mqtt.Remote
}

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "
)

var (
	evalOnly   bool
	outputJSON bool

	commands = []*ishell.Cmd{
		&DiscoverCmd,
		&ConnectCmd,
		&DisconnectCmd,
		&StatusCmd,
		robotCmd(brain.CmdStop, "", "Stop and go idle."),
		robotCmd(brain.CmdLap, "", "Follow the line for one lap."),
		robotCmd(brain.CmdCourse, "", "Run the obstacle course."),
		robotCmd(brain.CmdFollow, "[DUTY]", "Follow the line until stopped."),
		robotCmd(brain.CmdToggle, "", "Toggle the motors."),
		robotCmd(brain.CmdZero, "", "Zero heading and odometry."),
		robotCmd(brain.CmdRecalibrate, "", "Calibrate the IMU again."),
		robotCmd(brain.CmdGains, "KP [KI [KD]]", "Set line following gains."),
		robotCmd(brain.CmdMove, "METERS", "Drive straight."),
		robotCmd(brain.CmdTurn, "RADIANS", "Turn in place."),
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeConnected wraps command func requires a connection.
func MustBeConnected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Remote == nil {
			c.Err(fmt.Errorf("not connected"))
			return
		}
		fn(c)
	}
}

// ParseArgs builds a command from its name and shell arguments.
func ParseArgs(kind brain.CommandKind, args []string) (brain.Command, error) {
	return brain.ParseCommand(strings.Join(append([]string{string(kind)}, args...), " "))
}

// FormatMeta prints a discovered robot.
func FormatMeta(m mqtt.Meta) string {
	return fmt.Sprintf("%s: %s backend, %s telemetry", m.ID, m.Backend, m.Codec)
}

// FormatFrame prints a telemetry frame on one line.
func FormatFrame(f telemetry.Frame) string {
	st := f.Status
	var w strings.Builder
	fmt.Fprintf(&w, "#%d %s", f.Seq, st.State)
	if st.Maneuver != "" {
		fmt.Fprintf(&w, "/%s", st.Maneuver)
	}
	fmt.Fprintf(&w, " pose=(%.3f, %.3f, %.1f°)", st.Pose.X, st.Pose.Y, st.Pose.Phi*180/math.Pi)
	fmt.Fprintf(&w, " duty=%.2f/%.2f", st.DutyL, st.DutyR)
	fmt.Fprintf(&w, " line=%.2f dist=%.3f", st.Line, st.Distance)
	if !st.EnabledL || !st.EnabledR {
		fmt.Fprintf(&w, " motors=%v/%v", st.EnabledL, st.EnabledR)
	}
	return w.String()
}

func (s *Shell) println(c *ishell.Context, v interface{}, text string) {
	if !s.OutputJSON {
		c.Println(text)
		return
	}
	out, err := json.Marshal(v)
	if err != nil {
		c.Err(err)
		return
	}
	c.Println(string(out))
}

// WithAutoConnect sets AutoConnect.
func (s *Shell) WithAutoConnect(en bool) *Shell {
	s.AutoConnect = en
	return s
}

func (s *Shell) queue() (*mqtt.Queue, error) {
	if s.Queue != nil {
		return s.Queue, nil
	}
	q, err := mqtt.NewQueueFromURL(s.Config.MQTTURL)
	if err != nil {
		return nil, err
	}
	token := q.Connect()
	if !token.WaitTimeout(s.Config.Timeout) {
		q.Close()
		return nil, fmt.Errorf("connect %s: timeout", s.Config.MQTTURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect %s: %w", s.Config.MQTTURL, err)
	}
	s.Queue = q
	return q, nil
}

// DiscoverRobots lists online robots.
func (s *Shell) DiscoverRobots(filter func(mqtt.Meta) bool) ([]mqtt.Meta, error) {
	q, err := s.queue()
	if err != nil {
		return nil, err
	}
	robots, err := mqtt.Discover(context.Background(), q, s.Config.Timeout)
	if err != nil || filter == nil {
		return robots, err
	}
	items := make([]mqtt.Meta, 0, len(robots))
	for _, m := range robots {
		if filter(m) {
			items = append(items, m)
		}
	}
	return items, nil
}

// SelectRobot discovers robots and asks for a choice.
func (s *Shell) SelectRobot(filter func(mqtt.Meta) bool) (*mqtt.Meta, error) {
	robots, err := s.DiscoverRobots(filter)
	if err != nil || len(robots) == 0 {
		return nil, err
	}
	var index int
	if len(robots) > 1 {
		if !s.Interactive {
			return nil, fmt.Errorf("more than 1 robots discovered in non-interactive mode")
		}
		items := make([]string, len(robots))
		for n, m := range robots {
			items[n] = FormatMeta(m)
		}
		index = s.Shell.MultiChoice(items, "Which one to connect?")
	}
	return &robots[index], nil
}

// Connect attaches the shell to a discovered robot.
func (s *Shell) Connect(meta mqtt.Meta) error {
	q, err := s.queue()
	if err != nil {
		return err
	}
	remote, err := mqtt.Attach(q, meta)
	if err != nil {
		return err
	}
	s.Disconnect()
	s.Remote = remote
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", meta.ID))
	return nil
}

// ConnectID connects the robot with the id when it is online.
func (s *Shell) ConnectID(id string) error {
	meta, err := s.SelectRobot(func(m mqtt.Meta) bool { return m.ID == id })
	if err != nil {
		return err
	}
	if meta == nil {
		return fmt.Errorf("robot %q is not online", id)
	}
	return s.Connect(*meta)
}

// Disconnect disconnects current robot.
func (s *Shell) Disconnect() {
	if s.Remote != nil {
		s.Remote.Close()
		s.Remote = nil
		s.Shell.SetPrompt(unconnectedPrompt)
	}
}

// Close disconnects and closes the broker connection.
func (s *Shell) Close() error {
	s.Disconnect()
	if s.Queue != nil {
		return s.Queue.Close()
	}
	return nil
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	defer s.Close()
	if s.AutoConnect && s.Config.RobotID != "" {
		if s.Interactive {
			s.Shell.Printf("Connecting %s ...\n", s.Config.RobotID)
		}
		if err := s.ConnectID(s.Config.RobotID); err != nil {
			log.Fatalf("connect %q failed: %v", s.Config.RobotID, err)
		}
	}

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

func robotCmd(kind brain.CommandKind, args, help string) *ishell.Cmd {
	return &ishell.Cmd{
		Name:     string(kind),
		Help:     strings.TrimSpace(args + " " + help),
		LongHelp: help,
		Func: MustBeConnected(func(c *ishell.Context) {
			cmd, err := ParseArgs(kind, c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			if err := ShellFrom(c).Remote.Send(cmd); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		}),
	}
}

var (
	// DiscoverCmd discovers robots.
	DiscoverCmd = ishell.Cmd{
		Name:    "discover",
		Aliases: []string{"list", "l"},
		Help:    "List online robots.",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			robots, err := s.DiscoverRobots(nil)
			if err != nil {
				c.Err(err)
				return
			}
			if s.OutputJSON {
				if robots == nil {
					robots = []mqtt.Meta{}
				}
				s.println(c, robots, "")
				return
			}
			if len(robots) == 0 {
				c.Println("No robots found")
				return
			}
			for _, m := range robots {
				c.Println(FormatMeta(m))
			}
		},
	}

	// ConnectCmd connects a robot.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "[ID]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if len(c.Args) > 0 {
				if err := s.ConnectID(c.Args[0]); err != nil {
					c.Err(err)
				}
				return
			}
			meta, err := s.SelectRobot(nil)
			if err != nil {
				c.Err(err)
				return
			}
			if meta == nil {
				c.Err(fmt.Errorf("no robot discovered"))
				return
			}
			if err := s.Connect(*meta); err != nil {
				c.Err(err)
			}
		},
	}

	// DisconnectCmd disconnects current robot.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}

	// StatusCmd waits for the next telemetry frame and prints it.
	StatusCmd = ishell.Cmd{
		Name:    "status",
		Aliases: []string{"s"},
		Help:    "Print the next telemetry frame.",
		Func: MustBeConnected(func(c *ishell.Context) {
			s := ShellFrom(c)
			ctx, cancel := context.WithTimeout(context.Background(), s.Config.Timeout)
			defer cancel()
			f, err := s.Remote.NextFrame(ctx)
			if err != nil {
				c.Err(fmt.Errorf("no telemetry: %w", err))
				return
			}
			s.println(c, f, FormatFrame(f))
			if msg := s.Remote.LastError.Get(); msg != "" {
				c.Printf("last error: %s\n", msg)
			}
		}),
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(NewConfig()).WithAutoConnect(true).Run(flag.Args()...)
}
