package cotask

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/robotalks/romi.go/pkg/framework"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("github.com/golang/glog.(*fileSink).flushDaemon"))
}

var epoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

type countStepper struct {
	name  string
	runs  int
	order *[]string
	state State
	err   error
}

func (s *countStepper) Step(tc TaskContext) (State, error) {
	s.runs++
	if s.order != nil {
		*s.order = append(*s.order, s.name)
	}
	return s.state, s.err
}

func newTestScheduler() (*Scheduler, *ManualClock) {
	clock := NewManualClock(epoch)
	s := NewScheduler()
	s.Clock = clock
	return s, clock
}

func TestPeriodicTask(t *testing.T) {
	s, clock := newTestScheduler()
	st := &countStepper{}
	task := NewTask("t", st, WithPeriod(10*time.Millisecond))
	s.Add(task)
	ctx := context.Background()

	require.Equal(t, 0, s.RoundRobin(ctx))
	clock.Advance(9 * time.Millisecond)
	require.Equal(t, 0, s.RoundRobin(ctx))
	clock.Advance(1 * time.Millisecond)
	require.Equal(t, 1, s.RoundRobin(ctx))
	require.Equal(t, 0, s.RoundRobin(ctx))
	require.Equal(t, epoch.Add(20*time.Millisecond), task.NextRun())

	// 3ms late: next run stays on the grid.
	clock.Advance(13 * time.Millisecond)
	require.Equal(t, 1, s.RoundRobin(ctx))
	require.Equal(t, epoch.Add(30*time.Millisecond), task.NextRun())
	require.Equal(t, 3*time.Millisecond, task.Stats().MaxLate)

	// far behind: re-anchored.
	clock.Advance(50 * time.Millisecond)
	require.Equal(t, 1, s.RoundRobin(ctx))
	require.Equal(t, clock.Now().Add(10*time.Millisecond), task.NextRun())
	stats := task.Stats()
	require.Equal(t, uint64(3), stats.Runs)
	require.Equal(t, uint64(4), stats.Overruns)
	require.Equal(t, 3, st.runs)
}

func TestEventTask(t *testing.T) {
	s, _ := newTestScheduler()
	st := &countStepper{}
	task := NewTask("event", st)
	s.Add(task)
	ctx := context.Background()
	require.Equal(t, 0, s.RoundRobin(ctx))
	task.Go()
	task.Go()
	require.Equal(t, 1, s.RoundRobin(ctx))
	require.Equal(t, 0, s.RoundRobin(ctx))
	require.Equal(t, 1, st.runs)
}

func TestRoundRobinOrder(t *testing.T) {
	s, clock := newTestScheduler()
	var order []string
	for _, tc := range []struct {
		name string
		pri  int
	}{{"low", 1}, {"high-a", 3}, {"mid", 2}, {"high-b", 3}} {
		s.Add(NewTask(tc.name, &countStepper{name: tc.name, order: &order},
			WithPriority(tc.pri), WithPeriod(10*time.Millisecond)))
	}
	clock.Advance(10 * time.Millisecond)
	require.Equal(t, 4, s.RoundRobin(context.Background()))
	require.Equal(t, []string{"high-a", "high-b", "mid", "low"}, order)

	var names []string
	for _, task := range s.Tasks() {
		names = append(names, task.Name())
	}
	require.Equal(t, []string{"high-a", "high-b", "mid", "low"}, names)
	require.Equal(t, 2, s.Task("mid").Priority())
	require.Nil(t, s.Task("none"))
}

func TestPriorityPass(t *testing.T) {
	s, _ := newTestScheduler()
	var order []string
	tasks := map[string]*Task{}
	for _, tc := range []struct {
		name string
		pri  int
	}{{"a", 2}, {"b", 2}, {"c", 1}} {
		task := NewTask(tc.name, &countStepper{name: tc.name, order: &order}, WithPriority(tc.pri))
		tasks[tc.name] = task
		s.Add(task)
	}
	ctx := context.Background()
	tasks["a"].Go()
	tasks["b"].Go()
	tasks["c"].Go()
	require.True(t, s.PriorityPass(ctx))
	require.Equal(t, []string{"a"}, order)

	tasks["a"].Go()
	require.True(t, s.PriorityPass(ctx))
	require.True(t, s.PriorityPass(ctx))
	require.True(t, s.PriorityPass(ctx))
	require.False(t, s.PriorityPass(ctx))
	require.Equal(t, []string{"a", "b", "a", "c"}, order)
}

func TestTaskDoneAndErrors(t *testing.T) {
	s, clock := newTestScheduler()
	failing := &countStepper{err: errors.New("sensor offline")}
	finishing := &countStepper{err: ErrTaskDone}
	s.Add(
		NewTask("failing", failing, WithPeriod(time.Millisecond)),
		NewTask("finishing", finishing, WithPeriod(time.Millisecond)),
	)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		clock.Advance(time.Millisecond)
		s.RoundRobin(ctx)
	}
	require.Equal(t, 3, failing.runs)
	require.Equal(t, 1, finishing.runs)
	require.Equal(t, uint64(3), s.Task("failing").Stats().Failures)
	require.True(t, s.Task("finishing").Done())

	s.ResetProfiles()
	require.Zero(t, s.Task("failing").Stats().Failures)
}

func TestTrace(t *testing.T) {
	s, clock := newTestScheduler()
	st := &countStepper{}
	task := NewTask("traced", st, WithPeriod(time.Millisecond), WithTrace(true))
	s.Add(task)
	ctx := context.Background()
	for _, state := range []State{1, 1, 2, 2, 2, 1} {
		st.state = state
		clock.Advance(time.Millisecond)
		s.RoundRobin(ctx)
	}
	trace := task.Trace()
	require.Len(t, trace, 3)
	require.Equal(t, []State{1, 2, 1}, []State{trace[0].State, trace[1].State, trace[2].State})
	require.Equal(t, epoch.Add(3*time.Millisecond), trace[1].Time)

	var buf bytes.Buffer
	require.NoError(t, WriteTrace(&buf, task))
	require.True(t, strings.HasPrefix(buf.String(), "traced:\n"))
}

func TestReport(t *testing.T) {
	s, clock := newTestScheduler()
	s.Add(NewTask("encoder", &countStepper{}, WithPeriod(10*time.Millisecond), WithPriority(1)))
	s.Add(NewTask("button", &countStepper{}))
	for i := 0; i < 5; i++ {
		clock.Advance(10 * time.Millisecond)
		s.RoundRobin(context.Background())
	}
	var buf bytes.Buffer
	require.NoError(t, s.WriteReport(&buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	require.True(t, strings.HasPrefix(lines[0], "TASK"))
	require.Equal(t, []string{"encoder", "1", "10ms", "5", "0", "0"}, strings.Fields(lines[1])[:6])
	require.Equal(t, []string{"button", "0", "-", "0"}, strings.Fields(lines[2])[:4])
}

func TestStatsSkipFirstRuns(t *testing.T) {
	var r recorder
	for _, d := range []time.Duration{time.Second, time.Second, 2 * time.Millisecond, 4 * time.Millisecond} {
		r.addDuration(d)
	}
	s := r.snapshot()
	require.Equal(t, 3*time.Millisecond, s.AvgDuration)
	require.Equal(t, 4*time.Millisecond, s.MaxDuration)
	require.InDelta(t, float64(1414*time.Microsecond), float64(s.StdDuration), float64(time.Microsecond))
}

func TestRun(t *testing.T) {
	s := NewScheduler()
	ran := make(chan struct{}, 16)
	s.Add(NewTask("tick", StepFunc(func(tc TaskContext) (State, error) {
		select {
		case ran <- struct{}{}:
		default:
		}
		return 0, nil
	}), WithPeriod(time.Millisecond)))
	started := make(chan struct{})
	s.AddRunnable(framework.RunFunc(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}))
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()
	<-started
	for i := 0; i < 3; i++ {
		select {
		case <-ran:
		case <-time.After(time.Second):
			t.Fatal("task not scheduled")
		}
	}
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
}
