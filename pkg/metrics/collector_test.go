package metrics

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/romi.go/pkg/cotask"
	"github.com/robotalks/romi.go/pkg/share"
)

func TestCollectTasks(t *testing.T) {
	clock := cotask.NewManualClock(time.Unix(0, 0))
	s := cotask.NewScheduler()
	s.Clock = clock
	fail := errors.New("boom")
	s.Add(
		cotask.NewTask("ok", cotask.StepFunc(func(cotask.TaskContext) (cotask.State, error) {
			return 0, nil
		}), cotask.WithPeriod(10*time.Millisecond)),
		cotask.NewTask("bad", cotask.StepFunc(func(cotask.TaskContext) (cotask.State, error) {
			return 0, fail
		}), cotask.WithPeriod(10*time.Millisecond)),
	)
	ctx := context.Background()
	s.RoundRobin(ctx)
	for n := 0; n < 3; n++ {
		clock.Advance(10 * time.Millisecond)
		s.RoundRobin(ctx)
	}

	c := NewCollector(s, nil)
	expected := `
# HELP romi_task_runs_total Number of times a task stepped.
# TYPE romi_task_runs_total counter
romi_task_runs_total{task="bad"} 3
romi_task_runs_total{task="ok"} 3
# HELP romi_task_failures_total Number of steps returning an error.
# TYPE romi_task_failures_total counter
romi_task_failures_total{task="bad"} 3
romi_task_failures_total{task="ok"} 0
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"romi_task_runs_total", "romi_task_failures_total"))
}

func TestCollectShares(t *testing.T) {
	r := share.NewRegistry()
	share.RegisterShare(r, "line", 1.5)
	share.RegisterShare(r, "enabled", true)
	share.RegisterShare(r, "name", "ignored")
	q := share.RegisterQueue[int](r, "cmds", 2, false)
	require.NoError(t, q.Put(1))
	require.NoError(t, q.Put(2))
	require.Error(t, q.Put(3))

	c := NewCollector(nil, r)
	expected := `
# HELP romi_queue_capacity Queue capacity.
# TYPE romi_queue_capacity gauge
romi_queue_capacity{queue="cmds"} 2
# HELP romi_queue_length Items waiting in a queue.
# TYPE romi_queue_length gauge
romi_queue_length{queue="cmds"} 2
# HELP romi_share_value Current value of a numeric share.
# TYPE romi_share_value gauge
romi_share_value{share="enabled"} 1
romi_share_value{share="line"} 1.5
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"romi_queue_capacity", "romi_queue_length", "romi_share_value"))
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry(NewCollector(nil, nil))
	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}
