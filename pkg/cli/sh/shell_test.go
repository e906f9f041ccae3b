package sh

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/romi.go/pkg/brain"
	"github.com/robotalks/romi.go/pkg/comm/mqtt"
	"github.com/robotalks/romi.go/pkg/control"
	"github.com/robotalks/romi.go/pkg/telemetry"
)

func TestParseArgs(t *testing.T) {
	testCases := []struct {
		kind brain.CommandKind
		args []string
		cmd  brain.Command
		err  bool
	}{
		{kind: brain.CmdStop, cmd: brain.Command{Kind: brain.CmdStop}},
		{kind: brain.CmdMove, args: []string{"0.3"}, cmd: brain.Command{Kind: brain.CmdMove, Value: 0.3}},
		{kind: brain.CmdGains, args: []string{"7", "0", "0.1"}, cmd: brain.Command{Kind: brain.CmdGains, Gains: control.Gains{Kp: 7, Kd: 0.1}}},
		{kind: brain.CmdRecalibrate, cmd: brain.Command{Kind: brain.CmdRecalibrate}},
		{kind: brain.CmdTurn, err: true},
		{kind: brain.CmdLap, args: []string{"now"}, err: true},
	}
	for _, tc := range testCases {
		t.Run(string(tc.kind), func(t *testing.T) {
			cmd, err := ParseArgs(tc.kind, tc.args)
			if tc.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.cmd, cmd)
		})
	}
}

func TestFormat(t *testing.T) {
	require.Equal(t, "r1: sim backend, proto telemetry",
		FormatMeta(mqtt.Meta{ID: "r1", Backend: "sim", Codec: "proto"}))

	f := telemetry.Frame{Seq: 4, Status: brain.Status{
		State:    "course",
		Maneuver: "turn",
		Pose:     brain.Pose{X: 0.5, Y: -0.25, Phi: math.Pi / 2},
		DutyL:    0.3,
		DutyR:    -0.3,
		Line:     0.1,
		Distance: 0.2,
		EnabledL: true,
	}}
	require.Equal(t,
		"#4 course/turn pose=(0.500, -0.250, 90.0°) duty=0.30/-0.30 line=0.10 dist=0.200 motors=true/false",
		FormatFrame(f))

	f.Status.Maneuver, f.Status.EnabledR = "", true
	require.NotContains(t, FormatFrame(f), "motors")
	require.Contains(t, FormatFrame(f), "#4 course pose=")
}
