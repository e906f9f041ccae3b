package recorder

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/romi.go/pkg/brain"
	"github.com/robotalks/romi.go/pkg/telemetry"
)

func openTemp(t *testing.T) (*Recorder, string) {
	path := filepath.Join(t.TempDir(), "runs.db")
	r, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r, path
}

func frame(seq uint64, x float64) telemetry.Frame {
	return telemetry.Frame{
		RobotID: "r1",
		Seq:     seq,
		Status: brain.Status{
			Time:  time.Unix(10, int64(seq)*int64(10*time.Millisecond)),
			State: "lap",
			Pose:  brain.Pose{X: x, Y: 0.1, Phi: 0.2},
			WL:    1.5,
			WR:    1.6,
		},
	}
}

func TestMigrations(t *testing.T) {
	r, path := openTemp(t)
	version, dirty, err := r.Version()
	require.NoError(t, err)
	require.False(t, dirty)
	require.Equal(t, uint(1), version)
	require.NoError(t, r.Close())

	// reopening an up-to-date database is not an error
	r2, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, r2.Close())
}

func TestRecordRun(t *testing.T) {
	ctx := context.Background()
	r, _ := openTemp(t)

	require.ErrorIs(t, r.Publish(ctx, frame(1, 0)), ErrNoRun)

	run, err := r.StartRun(ctx, "r1", "sim", "lap")
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	active, ok := r.Active()
	require.True(t, ok)
	require.Equal(t, run.ID, active.ID)

	for seq := uint64(3); seq > 0; seq-- {
		require.NoError(t, r.Publish(ctx, frame(seq, float64(seq)/10)))
	}
	require.NoError(t, r.StopRun(ctx))
	_, ok = r.Active()
	require.False(t, ok)

	frames, err := r.Frames(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, frames, 3)
	for n, f := range frames {
		want := frame(uint64(n+1), float64(n+1)/10)
		require.Equal(t, want.Seq, f.Seq)
		require.Equal(t, "r1", f.RobotID)
		require.Equal(t, "lap", f.Status.State)
		require.InDelta(t, want.Status.Pose.X, f.Status.Pose.X, 1e-12)
		require.True(t, want.Status.Time.Equal(f.Status.Time))
	}

	runs, err := r.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, "sim", runs[0].Backend)
	require.Equal(t, "lap", runs[0].Mission)
	require.False(t, runs[0].Stopped.IsZero())
}

func TestStartRunStopsPrevious(t *testing.T) {
	ctx := context.Background()
	r, _ := openTemp(t)
	first, err := r.StartRun(ctx, "r1", "sim", "lap")
	require.NoError(t, err)
	second, err := r.StartRun(ctx, "r1", "sim", "course")
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	runs, err := r.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	stopped := map[string]bool{}
	for _, run := range runs {
		stopped[run.ID] = !run.Stopped.IsZero()
	}
	require.True(t, stopped[first.ID])
	require.False(t, stopped[second.ID])
}

func TestDeleteRun(t *testing.T) {
	ctx := context.Background()
	r, _ := openTemp(t)
	run, err := r.StartRun(ctx, "r1", "sim", "")
	require.NoError(t, err)
	require.NoError(t, r.Publish(ctx, frame(1, 0)))
	require.NoError(t, r.DeleteRun(ctx, run.ID))

	frames, err := r.Frames(ctx, run.ID)
	require.NoError(t, err)
	require.Empty(t, frames)
	require.Error(t, r.DeleteRun(ctx, run.ID))
	require.ErrorIs(t, r.Publish(ctx, frame(2, 0)), ErrNoRun)
}
