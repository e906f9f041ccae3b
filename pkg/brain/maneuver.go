package brain

import (
	"fmt"
	"math"
	"time"
)

// Maneuver is a motion performed over multiple steps.
type Maneuver interface {
	// Step drives the robot and reports completion.
	Step(b *Brain, now time.Time) (done bool, err error)
	Name() string
}

// LineMove drives straight until Distance meters were covered.
type LineMove struct {
	Distance float64
	Duty     float64

	covered float64
}

// Name implements Maneuver.
func (m *LineMove) Name() string {
	return fmt.Sprintf("move(%.3f)", m.Distance)
}

// Step implements Maneuver.
func (m *LineMove) Step(b *Brain, now time.Time) (bool, error) {
	m.covered += math.Abs(b.reckoner.Step)
	if m.covered >= m.Distance {
		return true, nil
	}
	b.Drive(m.Duty, m.Duty)
	return false, nil
}

// Turn spins in place through Angle rad, positive counter-clockwise.
// Angles beyond a full turn are allowed.
type Turn struct {
	Angle     float64
	Duty      float64
	Tolerance float64

	started bool
	last    float64
	turned  float64
}

// Name implements Maneuver.
func (m *Turn) Name() string {
	return fmt.Sprintf("turn(%.3f)", m.Angle)
}

// Turned returns the heading change accumulated so far.
func (m *Turn) Turned() float64 {
	return m.turned
}

// Step implements Maneuver.
// Heading changes between steps are unwrapped and summed. The turn
// completes once the sum is within Tolerance of Angle or past it.
func (m *Turn) Step(b *Brain, now time.Time) (bool, error) {
	phi := b.reckoner.Pose().Phi
	if !m.started {
		m.started, m.last = true, phi
	}
	m.turned += NormalizeAngle(phi - m.last)
	m.last = phi

	sign := 1.0
	if m.Angle < 0 {
		sign = -1
	}
	if sign*m.turned >= math.Abs(m.Angle)-m.Tolerance {
		return true, nil
	}
	b.Drive(-sign*m.Duty, sign*m.Duty)
	return false, nil
}

// LineFollow steers along the line. It never completes on its own.
type LineFollow struct {
	Duty float64
}

// Name implements Maneuver.
func (m *LineFollow) Name() string {
	return "follow"
}

// Step implements Maneuver.
func (m *LineFollow) Step(b *Brain, now time.Time) (bool, error) {
	// c is saturated to [-1, 1], the wheels never turn backwards.
	c, err := b.line.Update(0, b.Shares.Line.Get(), now)
	if err != nil {
		return false, err
	}
	b.Drive(m.Duty*(1-c), m.Duty*(1+c))
	return false, nil
}

// Until runs a maneuver until it completes or Cond becomes true.
// Cond is checked before each step.
type Until struct {
	Maneuver
	Cond  func(*Brain) bool
	Label string
}

// Name implements Maneuver.
func (m *Until) Name() string {
	if m.Label != "" {
		return m.Maneuver.Name() + " until " + m.Label
	}
	return m.Maneuver.Name()
}

// Step implements Maneuver.
func (m *Until) Step(b *Brain, now time.Time) (bool, error) {
	if m.Cond(b) {
		return true, nil
	}
	return m.Maneuver.Step(b, now)
}

// Sequence runs maneuvers one after another.
// A maneuver completing hands over to the next one in the same step.
type Sequence struct {
	Label string
	Steps []Maneuver

	current int
}

// Name implements Maneuver.
func (m *Sequence) Name() string {
	if m.current < len(m.Steps) {
		return fmt.Sprintf("%s[%d/%d] %s", m.Label, m.current+1, len(m.Steps), m.Steps[m.current].Name())
	}
	return m.Label
}

// Current returns the index of the running maneuver.
func (m *Sequence) Current() int {
	return m.current
}

// Step implements Maneuver.
func (m *Sequence) Step(b *Brain, now time.Time) (bool, error) {
	for m.current < len(m.Steps) {
		done, err := m.Steps[m.current].Step(b, now)
		if err != nil || !done {
			return false, err
		}
		m.current++
	}
	return true, nil
}

// Do runs a func once and completes.
type Do struct {
	Label string
	Fn    func(*Brain)
}

// Name implements Maneuver.
func (m *Do) Name() string {
	return m.Label
}

// Step implements Maneuver.
func (m *Do) Step(b *Brain, now time.Time) (bool, error) {
	m.Fn(b)
	return true, nil
}
