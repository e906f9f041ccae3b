package lidar

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/romi.go/pkg/share"
)

func TestDistance(t *testing.T) {
	testCases := []struct {
		pulse float64
		mm    float64
	}{
		{0, NoReading},
		{999, NoReading},
		{1000, 0},
		{1040, 30},
		{2000, 750},
	}
	for _, tc := range testCases {
		require.Equalf(t, tc.mm, Distance(tc.pulse), "pulse %v", tc.pulse)
	}
}

func TestSensorStep(t *testing.T) {
	shares := NewShares(share.NewRegistry())
	s := New(shares)
	require.Equal(t, NoReading, shares.Distance.Get())
	shares.Pulse.Put(1400)
	_, err := s.Step(nil)
	require.NoError(t, err)
	require.Equal(t, 300.0, shares.Distance.Get())
}

type pulseSource chan time.Duration

func (p pulseSource) WaitPulse(ctx context.Context) (time.Duration, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case d := <-p:
		return d, nil
	}
}

func TestCapture(t *testing.T) {
	src := make(pulseSource)
	pulse := share.NewShare[float64]("pulse")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- (&Capture{Input: src, Pulse: pulse}).Run(ctx) }()
	src <- 1500 * time.Microsecond
	src <- 1200 * time.Microsecond
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	require.Equal(t, 1200.0, pulse.Get())
}
