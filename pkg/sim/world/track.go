package world

import (
	"fmt"
	"math"

	"github.com/robotalks/romi.go/pkg/sim"
)

// Track is the arena: black lines on a white floor, finish bars and
// obstacles.
type Track struct {
	Name      string
	Lines     []sim.Shape
	LineWidth float64
	Bars      []sim.Shape
	BarWidth  float64
	// BarBlur is how far bar edges fade out. Finish tape has crisp edges
	// so the sensors leave it within one sample.
	BarBlur   float64
	Obstacles []sim.Circle
	Start     sim.Pose2D
}

// Track names.
const (
	TrackLap    = "lap"
	TrackCourse = "course"
)

// LapTrack is a circle of radius through the origin, driven counter
// clockwise from the origin heading +X.
func LapTrack(radius float64) *Track {
	return &Track{
		Name:      TrackLap,
		Lines:     []sim.Shape{sim.Circle{Center: sim.Pos2D{Y: radius}, Radius: radius}},
		LineWidth: 0.018,
	}
}

// CourseTrack is a straight line with an obstacle sitting on it and a
// finish bar where the line ends.
func CourseTrack(length, obstacleAt float64) *Track {
	return &Track{
		Name:      TrackCourse,
		Lines:     []sim.Shape{sim.Segment{B: sim.Pos2D{X: length}}},
		LineWidth: 0.018,
		Bars: []sim.Shape{sim.Segment{
			A: sim.Pos2D{X: length, Y: -0.06},
			B: sim.Pos2D{X: length, Y: 0.06},
		}},
		BarWidth:  0.03,
		Obstacles: []sim.Circle{{Center: sim.Pos2D{X: obstacleAt}, Radius: 0.05}},
	}
}

// TrackByName returns one of the built-in tracks.
func TrackByName(name string) (*Track, error) {
	switch name {
	case TrackLap, "":
		return LapTrack(0.5), nil
	case TrackCourse:
		return CourseTrack(2.0, 0.8), nil
	}
	return nil, fmt.Errorf("unknown track %q", name)
}

// Darkness is how black the floor is at p, 0 for white and 1 for the
// middle of a line. Line edges fade out over blur meters.
func (t *Track) Darkness(p sim.Pos2D, blur float64) float64 {
	dark := 0.0
	for _, l := range t.Lines {
		dark = math.Max(dark, fade(l.Distance(p)-t.LineWidth/2, blur))
	}
	for _, b := range t.Bars {
		dark = math.Max(dark, fade(b.Distance(p)-t.BarWidth/2, t.BarBlur))
	}
	return dark
}

// Range returns the distance along a ray to the nearest obstacle.
func (t *Track) Range(origin sim.Pos2D, dir sim.Angle) (float64, bool) {
	best, found := math.Inf(1), false
	for _, o := range t.Obstacles {
		if d, ok := o.RayHit(origin, dir); ok && d < best {
			best, found = d, true
		}
	}
	return best, found
}

func fade(d, blur float64) float64 {
	if d <= 0 {
		return 1
	}
	if blur <= 0 {
		return 0
	}
	return math.Exp(-d * d / (2 * blur * blur))
}
