package control

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGainsValidate(t *testing.T) {
	testCases := []struct {
		name  string
		gains Gains
		bad   string
	}{
		{"p only", Gains{Kp: 1}, ""},
		{"pid", Gains{Kp: 1, Ki: 0.5, Kd: 0.1}, ""},
		{"zero kp", Gains{Kp: 0}, "Kp"},
		{"negative kp", Gains{Kp: -1}, "Kp"},
		{"negative ki", Gains{Kp: 1, Ki: -0.1}, "Ki"},
		{"negative kd", Gains{Kp: 1, Kd: -0.1}, "Kd"},
		{"nan kp", Gains{Kp: math.NaN()}, "Kp"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.gains.Validate()
			if tc.bad == "" {
				require.NoError(t, err)
				return
			}
			var ge *GainError
			require.ErrorAs(t, err, &ge)
			require.Equal(t, tc.bad, ge.Gain)
		})
	}
}

func TestNewPIDLimits(t *testing.T) {
	high := 1.0
	_, err := NewPID(Gains{Kp: 1}, Limits{High: &high})
	require.ErrorIs(t, err, ErrSaturation)
	_, err = NewPID(Gains{Kp: 1}, Saturate(2, 1))
	require.ErrorIs(t, err, ErrSaturation)
	_, err = NewPID(Gains{Kp: 1}, Saturate(-1, 1))
	require.NoError(t, err)
}

func TestUpdate(t *testing.T) {
	c, err := NewPID(Gains{Kp: 2, Ki: 1, Kd: 0.5}, Limits{})
	require.NoError(t, err)
	t0 := time.Unix(100, 0)

	out, err := c.Update(1, 0, t0)
	require.NoError(t, err)
	require.InDelta(t, 2.0, out, 1e-9)

	// err 0.5 over 0.1s: P=1, I=0.05, D=0.5*(0.5-1)/0.1=-2.5
	out, err = c.Update(1, 0.5, t0.Add(100*time.Millisecond))
	require.NoError(t, err)
	require.InDelta(t, 1.0, c.P, 1e-9)
	require.InDelta(t, 0.05, c.I, 1e-9)
	require.InDelta(t, -2.5, c.D, 1e-9)
	require.InDelta(t, -1.45, out, 1e-9)

	// same timestamp: no integral, no derivative.
	out, err = c.Update(1, 0.5, t0.Add(100*time.Millisecond))
	require.NoError(t, err)
	require.InDelta(t, 1.05, out, 1e-9)

	c.Reset()
	out, err = c.Update(0, 1, t0.Add(time.Second))
	require.NoError(t, err)
	require.InDelta(t, -2.0, out, 1e-9)
}

func TestUpdateSaturates(t *testing.T) {
	c, err := NewPID(Gains{Kp: 10}, Saturate(-1, 1))
	require.NoError(t, err)
	now := time.Now()
	out, _ := c.Update(1, 0, now)
	require.Equal(t, 1.0, out)
	out, _ = c.Update(-1, 0, now)
	require.Equal(t, -1.0, out)
}

func TestUpdateRejectsNaN(t *testing.T) {
	c, err := NewPID(Gains{Kp: 1}, Limits{})
	require.NoError(t, err)
	_, err = c.Update(math.NaN(), 0, time.Now())
	require.ErrorIs(t, err, ErrNotNumber)
}

func TestSetGains(t *testing.T) {
	c, err := NewPID(Gains{Kp: 1}, Limits{})
	require.NoError(t, err)
	require.NoError(t, c.SetKp(7))
	require.NoError(t, c.SetKi(0.2))
	require.NoError(t, c.SetKd(0.01))
	require.Equal(t, Gains{Kp: 7, Ki: 0.2, Kd: 0.01}, c.Gains())
	require.Error(t, c.SetKp(0))
	require.Error(t, c.SetKi(-1))
	require.Equal(t, 7.0, c.Gains().Kp)
}
