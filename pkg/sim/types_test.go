package sim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAngle(t *testing.T) {
	require.InDelta(t, -math.Pi/2, AngleFromDegrees(270).Radians(), 1e-9)
	require.InDelta(t, 3*math.Pi/2, AngleFromDegrees(270).Positive(), 1e-9)
	require.InDelta(t, 0.5, AngleFromRadians(2*math.Pi+0.5).Radians(), 1e-9)
	require.InDelta(t, -math.Pi+0.1, AngleFromRadians(math.Pi).AddRadians(0.1).Radians(), 1e-9)
	p := AngleFromDegrees(90).Project(2)
	require.InDelta(t, 0, p.X, 1e-9)
	require.InDelta(t, 2, p.Y, 1e-9)
}

func TestPoseLocal(t *testing.T) {
	pose := Pose2D{Pos2D: Pos2D{X: 1, Y: 1}, Orientation: AngleFromDegrees(90)}
	p := pose.Local(0.5, 0.1)
	require.InDelta(t, 0.9, p.X, 1e-9)
	require.InDelta(t, 1.5, p.Y, 1e-9)
}

func TestShapes(t *testing.T) {
	seg := Segment{A: Pos2D{X: 0, Y: 0}, B: Pos2D{X: 2, Y: 0}}
	require.InDelta(t, 0.3, seg.Distance(Pos2D{X: 1, Y: -0.3}), 1e-9)
	require.InDelta(t, 1, seg.Distance(Pos2D{X: 3, Y: 0}), 1e-9)

	c := Circle{Center: Pos2D{Y: 0.5}, Radius: 0.5}
	require.InDelta(t, 0, c.Distance(Pos2D{}), 1e-9)
	require.InDelta(t, 0.1, c.Distance(Pos2D{Y: 0.1}), 1e-9)

	obstacle := Circle{Center: Pos2D{X: 1}, Radius: 0.1}
	d, ok := obstacle.RayHit(Pos2D{}, 0)
	require.True(t, ok)
	require.InDelta(t, 0.9, d, 1e-9)
	_, ok = obstacle.RayHit(Pos2D{}, AngleFromDegrees(90))
	require.False(t, ok)
	_, ok = obstacle.RayHit(Pos2D{}, AngleFromDegrees(180))
	require.False(t, ok)
}
