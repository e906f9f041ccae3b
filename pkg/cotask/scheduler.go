package cotask

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/robotalks/romi.go/pkg/framework"
)

// Policy selects how the scheduler picks tasks.
type Policy int

const (
	// RoundRobin runs every ready task once per pass.
	RoundRobin Policy = iota
	// Priority runs the first ready task of the highest priority group
	// per pass, rotating within the group.
	Priority
)

// SchedulerAdder provides specific logic to add components to scheduler.
type SchedulerAdder interface {
	AddToScheduler(*Scheduler)
}

// DefaultIdleSleep caps how long Run sleeps when no periodic task is due.
const DefaultIdleSleep = 100 * time.Millisecond

// Scheduler owns the task list.
type Scheduler struct {
	Clock     Clock
	Policy    Policy
	IdleSleep time.Duration

	lock    sync.RWMutex
	groups  []*taskGroup
	runners []framework.Runnable

	wakeCh chan struct{}
}

type taskGroup struct {
	priority int
	tasks    []*Task
	next     int
}

type taskContext struct {
	ctx  context.Context
	now  time.Time
	task *Task
}

func (c *taskContext) Context() context.Context { return c.ctx }
func (c *taskContext) Time() time.Time          { return c.now }
func (c *taskContext) Task() *Task              { return c.task }

// NewTaskContext creates a TaskContext for stepping a Stepper outside a
// Scheduler, e.g. in tests.
func NewTaskContext(ctx context.Context, now time.Time, task *Task) TaskContext {
	return &taskContext{ctx: ctx, now: now, task: task}
}

// NewScheduler creates a scheduler using the system clock.
func NewScheduler() *Scheduler {
	return &Scheduler{
		Clock:     SystemClock{},
		IdleSleep: DefaultIdleSleep,
		wakeCh:    make(chan struct{}, 1),
	}
}

// Add adds SchedulerAdders, tasks included.
func (s *Scheduler) Add(adders ...SchedulerAdder) *Scheduler {
	for _, adder := range adders {
		adder.AddToScheduler(s)
	}
	return s
}

// AddTask inserts tasks into their priority groups.
func (s *Scheduler) AddTask(tasks ...*Task) *Scheduler {
	s.lock.Lock()
	defer s.lock.Unlock()
	now := s.clock().Now()
	for _, t := range tasks {
		t.wake = s.Wake
		t.start(now)
		var group *taskGroup
		for _, g := range s.groups {
			if g.priority == t.priority {
				group = g
				break
			}
		}
		if group == nil {
			group = &taskGroup{priority: t.priority}
			s.groups = append(s.groups, group)
			sort.SliceStable(s.groups, func(i, j int) bool {
				return s.groups[i].priority > s.groups[j].priority
			})
		}
		group.tasks = append(group.tasks, t)
	}
	return s
}

// AddRunnable adds Runnables started together with Run.
func (s *Scheduler) AddRunnable(runnables ...framework.Runnable) *Scheduler {
	s.lock.Lock()
	s.runners = append(s.runners, runnables...)
	s.lock.Unlock()
	return s
}

// Tasks lists tasks, highest priority first.
func (s *Scheduler) Tasks() []*Task {
	s.lock.RLock()
	defer s.lock.RUnlock()
	var tasks []*Task
	for _, g := range s.groups {
		tasks = append(tasks, g.tasks...)
	}
	return tasks
}

// Task finds a task by name.
func (s *Scheduler) Task(name string) *Task {
	for _, t := range s.Tasks() {
		if t.name == name {
			return t
		}
	}
	return nil
}

// ResetProfiles clears statistics of all tasks.
func (s *Scheduler) ResetProfiles() {
	for _, t := range s.Tasks() {
		t.ResetProfile()
	}
}

// Wake interrupts the sleep in Run.
func (s *Scheduler) Wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

// RoundRobin runs every ready task once and returns how many ran.
func (s *Scheduler) RoundRobin(ctx context.Context) int {
	tc := &taskContext{ctx: ctx, now: s.clock().Now()}
	s.lock.RLock()
	defer s.lock.RUnlock()
	ran := 0
	for _, g := range s.groups {
		for _, t := range g.tasks {
			tc.task = t
			if t.Schedule(tc) {
				ran++
			}
		}
	}
	return ran
}

// PriorityPass runs at most one task: the next ready one in the highest
// priority group which has any. It reports whether a task ran.
func (s *Scheduler) PriorityPass(ctx context.Context) bool {
	tc := &taskContext{ctx: ctx, now: s.clock().Now()}
	s.lock.RLock()
	defer s.lock.RUnlock()
	for _, g := range s.groups {
		for i := range g.tasks {
			idx := (g.next + i) % len(g.tasks)
			t := g.tasks[idx]
			tc.task = t
			if t.Schedule(tc) {
				g.next = idx + 1
				return true
			}
		}
	}
	return false
}

// Pass runs one pass of the configured policy. With Priority it keeps
// running until no task is ready.
func (s *Scheduler) Pass(ctx context.Context) {
	if s.Policy == Priority {
		for s.PriorityPass(ctx) {
			if ctx.Err() != nil {
				return
			}
		}
		return
	}
	s.RoundRobin(ctx)
}

// Run implements Runnable.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.wakeCh == nil {
		s.wakeCh = make(chan struct{}, 1)
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.lock.RLock()
	runner := framework.NewRunnerWith(runCtx).Go(s.runners...)
	s.lock.RUnlock()

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			cancel()
			if err := runner.Wait(); err != nil {
				return err
			}
			return ctx.Err()
		case <-timer.C:
		case <-s.wakeCh:
		}
		s.Pass(ctx)
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.sleepDuration())
	}
}

func (s *Scheduler) sleepDuration() time.Duration {
	idle := s.IdleSleep
	if idle <= 0 {
		idle = DefaultIdleSleep
	}
	now := s.clock().Now()
	sleep := idle
	for _, t := range s.Tasks() {
		if t.period <= 0 || t.Done() {
			continue
		}
		if d := t.nextRun.Sub(now); d < sleep {
			sleep = d
		}
	}
	if sleep < 0 {
		sleep = 0
	}
	return sleep
}

func (s *Scheduler) clock() Clock {
	if s.Clock == nil {
		return SystemClock{}
	}
	return s.Clock
}
