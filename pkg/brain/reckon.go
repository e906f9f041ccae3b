package brain

import "math"

// straightThreshold is the heading change below which a step is treated
// as a straight line.
const straightThreshold = 0.001

// Pose is the dead reckoned position in world coordinates. The world X
// axis points where the robot faced when the heading was zeroed.
type Pose struct {
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
	Phi float64 `json:"phi"`
}

// NormalizeAngle wraps an angle into (-π, π].
func NormalizeAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a <= -math.Pi {
		a += 2 * math.Pi
	} else if a > math.Pi {
		a -= 2 * math.Pi
	}
	return a
}

// Reckoner integrates wheel travel and heading into a Pose.
type Reckoner struct {
	WheelRadius float64

	pose   Pose
	primed bool
	// Distance travelled along the path in the last update, in m.
	Step float64
}

// Pose returns the current pose.
func (r *Reckoner) Pose() Pose {
	return r.pose
}

// Reset moves the origin to the current position. The next update only
// records the heading.
func (r *Reckoner) Reset() {
	r.pose = Pose{}
	r.primed = false
	r.Step = 0
}

// Update advances the pose. Wheel deltas are in rad, phi is the absolute
// heading in rad.
func (r *Reckoner) Update(leftDelta, rightDelta, phi float64) Pose {
	if !r.primed {
		r.primed = true
		r.pose.Phi = phi
		r.Step = 0
		return r.pose
	}
	theta := NormalizeAngle(phi - r.pose.Phi)
	lL, lR := r.WheelRadius*leftDelta, r.WheelRadius*rightDelta
	var d float64
	if math.Abs(theta) > straightThreshold {
		// chord of the arc
		d = (lL + lR) / theta * math.Sin(theta/2)
	} else {
		d = (lL + lR) / 2
	}
	mean := r.pose.Phi + theta/2
	r.pose.X += d * math.Cos(mean)
	r.pose.Y += d * math.Sin(mean)
	r.pose.Phi = phi
	r.Step = d
	return r.pose
}
