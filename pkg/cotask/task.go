package cotask

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
)

// ErrTaskDone is returned by a Stepper which has nothing more to do.
// The task is never scheduled again.
var ErrTaskDone = errors.New("task done")

// State is reported by a task after each step.
type State int

// TaskContext is passed to a Stepper.
type TaskContext interface {
	Context() context.Context
	// Time is the scheduling time of the current pass.
	Time() time.Time
	Task() *Task
}

// Stepper performs one step of a task.
type Stepper interface {
	Step(TaskContext) (State, error)
}

// StepFunc is func form of Stepper.
type StepFunc func(TaskContext) (State, error)

// Step implements Stepper.
func (f StepFunc) Step(tc TaskContext) (State, error) {
	return f(tc)
}

// TracePoint records a state change.
type TracePoint struct {
	Time  time.Time
	State State
}

// MaxTracePoints limits the trace kept per task.
const MaxTracePoints = 1024

// Option configures a Task.
type Option func(*Task)

// WithPriority sets the priority. Higher runs first.
func WithPriority(priority int) Option {
	return func(t *Task) { t.priority = priority }
}

// WithPeriod makes the task periodic. Zero period means the task
// only runs when Go is called.
func WithPeriod(period time.Duration) Option {
	return func(t *Task) { t.period = period }
}

// WithProfile enables run duration and lateness statistics.
func WithProfile(enabled bool) Option {
	return func(t *Task) { t.profile = enabled }
}

// WithTrace enables recording of state changes.
func WithTrace(enabled bool) Option {
	return func(t *Task) { t.trace = enabled }
}

// Task is a cooperatively scheduled unit of work.
type Task struct {
	name     string
	priority int
	period   time.Duration
	profile  bool
	trace    bool
	stepper  Stepper

	goFlag atomic.Bool
	wake   func()

	// only touched by the scheduling goroutine.
	nextRun time.Time
	started bool

	lock     sync.Mutex
	done     bool
	state    State
	stats    recorder
	points   []TracePoint
	failures uint64
	lastErr  string
}

// NewTask creates a Task.
func NewTask(name string, stepper Stepper, opts ...Option) *Task {
	t := &Task{name: name, stepper: stepper, profile: true}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name returns the task name.
func (t *Task) Name() string {
	return t.name
}

// Priority returns the priority.
func (t *Task) Priority() int {
	return t.priority
}

// Period returns the period, zero for event driven tasks.
func (t *Task) Period() time.Duration {
	return t.period
}

// AddToScheduler implements SchedulerAdder.
func (t *Task) AddToScheduler(s *Scheduler) {
	s.AddTask(t)
}

// Go requests the task to run in the next scheduling pass.
// It's safe to call from any goroutine.
func (t *Task) Go() {
	t.goFlag.Store(true)
	if wake := t.wake; wake != nil {
		wake()
	}
}

// Done reports whether the task has finished.
func (t *Task) Done() bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.done
}

// State returns the last reported state.
func (t *Task) State() State {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.state
}

// NextRun returns when a periodic task is due.
func (t *Task) NextRun() time.Time {
	return t.nextRun
}

func (t *Task) start(now time.Time) {
	if t.started {
		return
	}
	t.started = true
	if t.period > 0 {
		t.nextRun = now.Add(t.period)
	}
}

// Ready checks whether the task should run at now.
// A periodic task due at now gets its go flag set and its next run moved
// forward by exactly one period. A task which fell more than one period
// behind is re-anchored to now and the skipped periods are counted.
func (t *Task) Ready(now time.Time) bool {
	t.start(now)
	if t.period > 0 && !now.Before(t.nextRun) {
		late := now.Sub(t.nextRun)
		t.nextRun = t.nextRun.Add(t.period)
		skipped := uint64(0)
		if late >= t.period {
			skipped = uint64(late / t.period)
			t.nextRun = now.Add(t.period)
		}
		t.lock.Lock()
		if t.profile {
			t.stats.addLateness(late)
		}
		t.stats.overruns += skipped
		t.lock.Unlock()
		t.goFlag.Store(true)
	}
	if t.Done() {
		return false
	}
	return t.goFlag.Load()
}

// Schedule runs one step if the task is ready and reports whether it ran.
func (t *Task) Schedule(tc TaskContext) bool {
	if !t.Ready(tc.Time()) {
		return false
	}
	t.goFlag.Store(false)
	started := time.Now()
	state, err := t.stepper.Step(tc)
	elapsed := time.Since(started)

	t.lock.Lock()
	defer t.lock.Unlock()
	t.stats.runs++
	if t.profile {
		t.stats.addDuration(elapsed)
	}
	if t.trace && (state != t.state || len(t.points) == 0) {
		if len(t.points) >= MaxTracePoints {
			t.points = append(t.points[:0], t.points[1:]...)
		}
		t.points = append(t.points, TracePoint{Time: tc.Time(), State: state})
	}
	t.state = state
	switch {
	case err == nil:
	case errors.Is(err, ErrTaskDone):
		t.done = true
		glog.Infof("task %s done", t.name)
	default:
		t.failures++
		if msg := err.Error(); msg != t.lastErr {
			t.lastErr = msg
			glog.Errorf("task %s: %v", t.name, err)
		}
	}
	return true
}

// Stats returns a snapshot of task statistics.
func (t *Task) Stats() Stats {
	t.lock.Lock()
	defer t.lock.Unlock()
	s := t.stats.snapshot()
	s.Failures = t.failures
	return s
}

// ResetProfile clears statistics and trace.
func (t *Task) ResetProfile() {
	t.lock.Lock()
	t.stats.reset()
	t.points = nil
	t.failures = 0
	t.lock.Unlock()
}

// Trace returns recorded state changes.
func (t *Task) Trace() []TracePoint {
	t.lock.Lock()
	defer t.lock.Unlock()
	return append([]TracePoint(nil), t.points...)
}
