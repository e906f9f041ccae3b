package world

import (
	"strconv"

	"github.com/robotalks/romi.go/pkg/sim"
	"github.com/robotalks/romi.go/pkg/sim/visualization/see"
)

// Object types for visualization.
const (
	TypeRobot    = "romi"
	TypeObstacle = "obstacle"
	TypeLine     = "line"
	TypeRing     = "ring"
	TypeBar      = "bar"
)

// object is a snapshot of something in the world.
type object struct {
	name  string
	typ   string
	pose  sim.Pose2D
	size  sim.Size2D
	shape sim.Shape
}

func (o *object) Name() string           { return o.name }
func (o *object) Position2D() sim.Pose2D { return o.pose }

func (o *object) OutlineRect() sim.Rect {
	return sim.Rect{Pos2D: o.pose.Pos2D, Size2D: o.size}
}

func (w *World) robot() sim.Object {
	return &object{
		name: RobotName,
		typ:  TypeRobot,
		pose: w.Pose(),
		size: sim.Size2D{CX: RobotDiameter, CY: RobotDiameter},
	}
}

func (w *World) staticObjects() []sim.Object {
	var objs []sim.Object
	add := func(prefix, typ string, shapes []sim.Shape) {
		for n, s := range shapes {
			objs = append(objs, &object{name: prefix + strconv.Itoa(n), typ: typ, shape: s})
		}
	}
	add("track/line/", TypeLine, w.track.Lines)
	add("track/bar/", TypeBar, w.track.Bars)
	for n, o := range w.track.Obstacles {
		objs = append(objs, &object{
			name: "obstacle/" + strconv.Itoa(n),
			typ:  TypeObstacle,
			pose: sim.Pose2D{Pos2D: o.Center},
			size: sim.Size2D{CX: 2 * o.Radius, CY: 2 * o.Radius},
		})
	}
	return objs
}

// Mapper maps world objects for see, scaling meters into mm.
func Mapper(scale float64) see.ObjectMapper {
	return see.MapObjectFunc(func(vo see.VisibleObject) []see.Object {
		o, ok := vo.(*object)
		if !ok {
			return []see.Object{see.ObjectFrom("object", vo, scale)}
		}
		switch s := o.shape.(type) {
		case sim.Segment:
			return []see.Object{see.NewObject(o.typ, see.ObjectID(o.name)).Points(scale, s.A, s.B)}
		case sim.Circle:
			return []see.Object{see.NewObject(TypeRing, see.ObjectID(o.name)).
				At(s.Center.X*scale, -s.Center.Y*scale).
				Radius(s.Radius * scale)}
		}
		return []see.Object{see.ObjectFrom(o.typ, o, scale)}
	})
}
