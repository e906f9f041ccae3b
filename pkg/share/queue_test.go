package share

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue[int]("q", 3, false)
	require.True(t, q.Empty())
	require.Equal(t, 3, q.Cap())
	for i := 1; i <= 3; i++ {
		require.NoError(t, q.Put(i))
	}
	require.True(t, q.Full())
	require.ErrorIs(t, q.Put(4), ErrQueueFull)
	for i := 1; i <= 3; i++ {
		v, err := q.Get()
		require.NoError(t, err)
		require.Equal(t, i, v)
	}
	_, err := q.Get()
	require.ErrorIs(t, err, ErrQueueEmpty)
}

func TestQueueOverwrite(t *testing.T) {
	q := NewQueue[int]("q", 2, true)
	for i := 1; i <= 5; i++ {
		require.NoError(t, q.Put(i))
	}
	require.Equal(t, uint64(3), q.Overruns())
	require.Equal(t, 2, q.Len())
	v, err := q.Peek()
	require.NoError(t, err)
	require.Equal(t, 4, v)
	v, _ = q.Get()
	require.Equal(t, 4, v)
	v, _ = q.Get()
	require.Equal(t, 5, v)
}

func TestFlag(t *testing.T) {
	f := NewFlag("done")
	require.False(t, f.Any())
	require.NoError(t, f.Put(true))
	require.NoError(t, f.Put(true))
	require.True(t, f.Any())
	require.Equal(t, 1, f.Len())
	f.Clear()
	require.False(t, f.Any())
}

func TestQueueWait(t *testing.T) {
	q := NewQueue[string]("q", 1, false)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan string)
	go func() {
		v, _ := q.GetWait(ctx)
		done <- v
	}()
	require.NoError(t, q.PutWait(ctx, "a"))
	require.Equal(t, "a", <-done)

	require.NoError(t, q.Put("b"))
	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Get()
	}()
	require.NoError(t, q.PutWait(ctx, "c"))
	v, err := q.Get()
	require.NoError(t, err)
	require.Equal(t, "c", v)
}

func TestQueueWaitCanceled(t *testing.T) {
	q := NewQueue[int]("q", 1, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := q.GetWait(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NoError(t, q.Put(1))
	require.ErrorIs(t, q.PutWait(ctx, 2), context.Canceled)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	s := RegisterShare(r, "speed", 1.5)
	q := RegisterQueue[int](r, "cmds", 4, false)
	RegisterFlag(r, "finish")
	require.NoError(t, q.Put(7))

	require.Equal(t, []string{"cmds", "finish", "speed"}, r.Names())
	require.Same(t, s, r.Lookup("speed"))

	var buf bytes.Buffer
	require.NoError(t, r.WriteAll(&buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Equal(t, []string{
		"Share speed: 1.5",
		"Queue cmds: 1/4, 0 overruns",
		"Queue finish: 0/1, 0 overruns",
	}, lines)

	RegisterShare(r, "speed", 2.0)
	require.Len(t, r.Items(), 3)
}
