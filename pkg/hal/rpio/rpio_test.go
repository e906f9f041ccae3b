package rpio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultPins(t *testing.T) {
	pins := DefaultPins()
	seen := make(map[int]string)
	for name, n := range map[string]int{
		"left pwm":  pins.LeftPWM,
		"left dir":  pins.LeftDir,
		"right pwm": pins.RightPWM,
		"right dir": pins.RightDir,
		"button":    pins.Button,
		"lidar":     pins.Lidar,
	} {
		other, dup := seen[n]
		require.False(t, dup, "%s shares pin %d with %s", name, n, other)
		seen[n] = name
	}
	// hardware PWM is only available on these pins.
	for _, n := range []int{pins.LeftPWM, pins.RightPWM} {
		require.Contains(t, []int{12, 13, 18, 19}, n)
	}
	require.Zero(t, pwmCycle%100)
}
