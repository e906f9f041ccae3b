package brain

import (
	"fmt"
	"math"
	"strings"
)

// Mission is what the robot does once calibrated, or on command.
type Mission string

// Missions.
const (
	MissionIdle   Mission = "idle"
	MissionLap    Mission = "lap"
	MissionCourse Mission = "course"
)

// ParseMission parses a mission name.
func ParseMission(s string) (Mission, error) {
	switch m := Mission(strings.ToLower(strings.TrimSpace(s))); m {
	case MissionIdle, MissionLap, MissionCourse:
		return m, nil
	}
	return "", fmt.Errorf("unknown mission %q", s)
}

// Leg is one straight segment of the obstacle detour.
type Leg struct {
	// Turn before moving, rad, positive counter-clockwise.
	Turn float64 `yaml:"turn" json:"turn"`
	// Distance to move after turning, m.
	Distance float64 `yaml:"distance" json:"distance"`
}

// DefaultDetour goes around an obstacle on the left side of the track.
var DefaultDetour = []Leg{
	{Turn: math.Pi / 2, Distance: 0.2},
	{Turn: -math.Pi / 2, Distance: 0.4},
	{Turn: -math.Pi / 2, Distance: 0.2},
	{Turn: math.Pi / 2},
}

// lapWatcher completes a lap once the robot went behind the start
// (X below HalfX) and came back past X = 0.
type lapWatcher struct {
	HalfX float64
	half  bool
}

func (w *lapWatcher) done(b *Brain) bool {
	x := b.reckoner.Pose().X
	if !w.half && x < w.HalfX {
		w.half = true
	}
	return w.half && x > 0
}

func (b *Brain) lapManeuver() Maneuver {
	w := &lapWatcher{HalfX: b.Config.LapHalfX}
	return &Until{
		Maneuver: &LineFollow{Duty: b.Config.LineDuty},
		Cond:     w.done,
		Label:    "lap",
	}
}

func (b *Brain) courseManeuver() Maneuver {
	cfg := &b.Config
	steps := []Maneuver{
		&Until{
			Maneuver: &LineFollow{Duty: cfg.LineDuty},
			Cond: func(b *Brain) bool {
				return b.Shares.Distance.Get() <= cfg.ObstacleMM
			},
			Label: "obstacle",
		},
	}
	for _, leg := range cfg.Detour {
		if leg.Turn != 0 {
			steps = append(steps, b.turn(leg.Turn))
		}
		if leg.Distance > 0 {
			steps = append(steps, &LineMove{Distance: leg.Distance, Duty: cfg.LineDuty})
		}
	}
	steps = append(steps,
		// the sensors crossed the line on the way back, which can look
		// like the finish bar.
		&Do{Label: "rejoin", Fn: func(b *Brain) {
			b.line.Reset()
			b.Shares.Finish.Clear()
		}},
		&Until{
			Maneuver: &LineFollow{Duty: cfg.LineDuty},
			Cond: func(b *Brain) bool {
				return b.Shares.Finish.Any()
			},
			Label: "finish",
		},
		&Do{Label: "finished", Fn: func(b *Brain) {
			b.Shares.Finish.Clear()
		}},
	)
	return &Sequence{Label: "course", Steps: steps}
}

func (b *Brain) turn(angle float64) Maneuver {
	return &Turn{Angle: angle, Duty: b.Config.TurnDuty, Tolerance: b.Config.TurnTolerance}
}
