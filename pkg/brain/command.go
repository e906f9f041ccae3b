package brain

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/robotalks/romi.go/pkg/control"
)

// CommandKind identifies a remote command.
type CommandKind string

// Commands.
const (
	CmdStop   CommandKind = "stop"
	CmdLap    CommandKind = "lap"
	CmdCourse CommandKind = "course"
	CmdFollow CommandKind = "follow"
	CmdToggle CommandKind = "toggle"
	CmdZero   CommandKind = "zero"
	CmdGains  CommandKind = "gains"
	CmdMove   CommandKind = "move"
	CmdTurn   CommandKind = "turn"
	// CmdRecalibrate restarts the IMU calibration. The brain waits for it
	// like it does after power up.
	CmdRecalibrate CommandKind = "recalibrate"
)

// Command is a request from outside the scheduler.
type Command struct {
	Kind CommandKind `json:"kind"`
	// Distance in m for move, angle in rad for turn, duty for follow.
	Value float64       `json:"value,omitempty"`
	Gains control.Gains `json:"gains,omitempty"`
}

func (c Command) String() string {
	switch c.Kind {
	case CmdGains:
		return fmt.Sprintf("gains %g %g %g", c.Gains.Kp, c.Gains.Ki, c.Gains.Kd)
	case CmdMove, CmdTurn, CmdFollow:
		return fmt.Sprintf("%s %g", c.Kind, c.Value)
	}
	return string(c.Kind)
}

// ParseCommand parses the text form, e.g. "move 0.2" or "gains 7 0 0.1".
func ParseCommand(s string) (Command, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("empty command")
	}
	cmd := Command{Kind: CommandKind(strings.ToLower(fields[0]))}
	args := fields[1:]
	nums := make([]float64, len(args))
	for n, arg := range args {
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return cmd, fmt.Errorf("%s: invalid argument %q", cmd.Kind, arg)
		}
		nums[n] = v
	}
	switch cmd.Kind {
	case CmdStop, CmdLap, CmdCourse, CmdToggle, CmdZero, CmdRecalibrate:
		if len(nums) != 0 {
			return cmd, fmt.Errorf("%s takes no arguments", cmd.Kind)
		}
	case CmdMove, CmdTurn:
		if len(nums) != 1 {
			return cmd, fmt.Errorf("%s requires one argument", cmd.Kind)
		}
		cmd.Value = nums[0]
	case CmdFollow:
		if len(nums) > 1 {
			return cmd, fmt.Errorf("follow takes at most one argument")
		}
		if len(nums) == 1 {
			cmd.Value = nums[0]
		}
	case CmdGains:
		if len(nums) < 1 || len(nums) > 3 {
			return cmd, fmt.Errorf("gains requires Kp [Ki [Kd]]")
		}
		cmd.Gains.Kp = nums[0]
		if len(nums) > 1 {
			cmd.Gains.Ki = nums[1]
		}
		if len(nums) > 2 {
			cmd.Gains.Kd = nums[2]
		}
		if err := cmd.Gains.Validate(); err != nil {
			return cmd, err
		}
	default:
		return cmd, fmt.Errorf("unknown command %q", fields[0])
	}
	return cmd, nil
}
