package sim

import (
	"math"

	fx "github.com/robotalks/romi.go/pkg/framework"
)

// Pos2D defines the position in 2D, in meters.
type Pos2D struct {
	X, Y float64
}

// Pose2D defines the pose in 2D.
type Pose2D struct {
	Pos2D
	Orientation Angle
}

// Size2D defines the rectangular size in 2D.
type Size2D struct {
	CX, CY float64
}

// Rect defines a rectangle in 2D.
type Rect struct {
	Pos2D
	Size2D
}

// Angle is the common representation of angle,
// supporting multiple units.
type Angle float64

// Shape is a 2D outline.
type Shape interface {
	// Distance from p to the outline, negative inside closed shapes.
	Distance(p Pos2D) float64
}

// Segment is a straight line between two points.
type Segment struct {
	A, B Pos2D
}

// Circle is a circle outline.
type Circle struct {
	Center Pos2D
	Radius float64
}

// Rectangular object provides an rectangluar outline dimension.
type Rectangular interface {
	OutlineRect() Rect
}

// Positionable2D object maintains a 2D position.
type Positionable2D interface {
	Position2D() Pose2D
}

// Object represents an object in the world.
type Object interface {
	fx.Named
}

// ObjectsChangeListener listens for object changes.
type ObjectsChangeListener interface {
	ObjectsChanged(...Object)
	ObjectsRemoved(...Object)
}

// ObjectsChangeSubscriber subscribes objects change notifications.
type ObjectsChangeSubscriber interface {
	SubscribeObjectsChange(ObjectsChangeListener)
}

// Add is a helper to add Pos2D.
func (p Pos2D) Add(p1 Pos2D) Pos2D {
	return Pos2D{X: p.X + p1.X, Y: p.Y + p1.Y}
}

// Sub subtracts p1.
func (p Pos2D) Sub(p1 Pos2D) Pos2D {
	return Pos2D{X: p.X - p1.X, Y: p.Y - p1.Y}
}

// Len is the distance to the origin.
func (p Pos2D) Len() float64 {
	return math.Hypot(p.X, p.Y)
}

// OffsetBy performs Add in-place.
func (p *Pos2D) OffsetBy(p1 Pos2D) *Pos2D {
	p.X += p1.X
	p.Y += p1.Y
	return p
}

// Local converts a point in the pose's frame into world coordinates.
// X points forward, Y to the left.
func (p Pose2D) Local(forward, left float64) Pos2D {
	c, s := p.Orientation.Cos(), p.Orientation.Sin()
	return Pos2D{X: p.X + forward*c - left*s, Y: p.Y + forward*s + left*c}
}

// Distance implements Shape.
func (s Segment) Distance(p Pos2D) float64 {
	d := s.B.Sub(s.A)
	l2 := d.X*d.X + d.Y*d.Y
	if l2 == 0 {
		return p.Sub(s.A).Len()
	}
	t := ((p.X-s.A.X)*d.X + (p.Y-s.A.Y)*d.Y) / l2
	t = math.Max(0, math.Min(1, t))
	return p.Sub(Pos2D{X: s.A.X + t*d.X, Y: s.A.Y + t*d.Y}).Len()
}

// Distance implements Shape. Points inside get the distance to the
// outline, the circle is treated as a ring.
func (c Circle) Distance(p Pos2D) float64 {
	return math.Abs(p.Sub(c.Center).Len() - c.Radius)
}

// RayHit returns the distance along a ray from origin in direction dir to
// the circle, or false if the ray misses it.
func (c Circle) RayHit(origin Pos2D, dir Angle) (float64, bool) {
	dx, dy := dir.Cos(), dir.Sin()
	ox, oy := origin.X-c.Center.X, origin.Y-c.Center.Y
	b := ox*dx + oy*dy
	cc := ox*ox + oy*oy - c.Radius*c.Radius
	disc := b*b - cc
	if disc < 0 {
		return 0, false
	}
	sq := math.Sqrt(disc)
	if t := -b - sq; t >= 0 {
		return t, true
	}
	if t := -b + sq; t >= 0 {
		// origin inside the circle.
		return 0, true
	}
	return 0, false
}
