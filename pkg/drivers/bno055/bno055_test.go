package bno055

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/romi.go/pkg/cotask"
	"github.com/robotalks/romi.go/pkg/share"
)

func TestDecodeCalibStatus(t *testing.T) {
	st := DecodeCalibStatus(0b11_10_01_00)
	require.Equal(t, CalibStatus{Sys: 3, Gyr: 2, Acc: 1, Mag: 0}, st)
	require.False(t, st.Complete())
	require.True(t, DecodeCalibStatus(0xff).Complete())
}

func TestModeNames(t *testing.T) {
	for _, m := range []Mode{ModeConfig, ModeIMU, ModeCompass, ModeM4G, ModeNDOFFMCOff, ModeNDOF} {
		parsed, err := ParseMode(m.String())
		require.NoError(t, err)
		require.Equal(t, m, parsed)
	}
	_, err := ParseMode("AMG")
	require.Error(t, err)
}

func TestProfileOffsets(t *testing.T) {
	p := &Profile{
		AccOffset: [3]int16{-12, 5, 300},
		MagOffset: [3]int16{100, -200, 7},
		GyrOffset: [3]int16{-1, 0, 1},
		AccRadius: 1000,
		MagRadius: 712,
	}
	o := p.Offsets()
	require.Equal(t, byte(0xf4), o[0])
	require.Equal(t, byte(0xff), o[1])
	if diff := cmp.Diff(p, ProfileFromOffsets(o)); diff != "" {
		t.Errorf("profile mismatch (-want +got):\n%s", diff)
	}
}

func TestFileStore(t *testing.T) {
	store := &FileStore{Path: filepath.Join(t.TempDir(), "imu.yaml")}
	_, err := store.LoadProfile()
	require.ErrorIs(t, err, ErrNoProfile)
	p := &Profile{AccOffset: [3]int16{1, 2, 3}, MagRadius: 9}
	require.NoError(t, store.SaveProfile(p))
	loaded, err := store.LoadProfile()
	require.NoError(t, err)
	require.Equal(t, p, loaded)
}

func TestDeviceReadings(t *testing.T) {
	emu := NewEmulator()
	dev := NewDevice(emu)
	require.NoError(t, dev.Init())
	require.Equal(t, ModeConfig, emu.Mode())
	require.Equal(t, AxisRemap, emu.Reg(RegAxisRemap))
	require.Equal(t, AxisSign, emu.Reg(RegAxisSign))

	emu.SetOrientation(math.Pi/2, -0.1, 0.2)
	emu.SetRates(1, -2, 0.5)
	e, err := dev.ReadEuler()
	require.NoError(t, err)
	lsb := math.Pi / 180 / EulerLSBPerDeg
	require.InDelta(t, math.Pi/2, e.Heading, lsb)
	require.InDelta(t, -0.1, e.Roll, lsb)
	require.InDelta(t, 0.2, e.Pitch, lsb)
	g, err := dev.ReadGyro()
	require.NoError(t, err)
	require.InDelta(t, 1, g.X, 1/GyroLSBPerRadSec)
	require.InDelta(t, -2, g.Y, 1/GyroLSBPerRadSec)
	require.InDelta(t, 0.5, g.Z, 1/GyroLSBPerRadSec)

	emu.SetOrientation(-math.Pi/2, 0, 0)
	e, err = dev.ReadEuler()
	require.NoError(t, err)
	require.InDelta(t, 3*math.Pi/2, e.Heading, lsb)
}

func TestHeading(t *testing.T) {
	testCases := []struct {
		zero, euler, phi float64
	}{
		{0, 0, 0},
		{1, 0.5, 0.5},
		{1, 1.5, 2*math.Pi - 0.5},
		{0, 3 * math.Pi / 2, math.Pi / 2},
	}
	for _, tc := range testCases {
		require.InDelta(t, tc.phi, Heading(tc.zero, tc.euler), 1e-9)
	}
}

func stepIMU(t *testing.T, imu *IMU, n int) {
	tc := cotask.NewTaskContext(context.Background(), time.Now(), nil)
	for i := 0; i < n; i++ {
		_, err := imu.Step(tc)
		require.NoError(t, err)
	}
}

func TestIMUCalibrateAndSave(t *testing.T) {
	emu := NewEmulator()
	emu.PollsPerLevel = 1
	store := &MemStore{}
	shares := NewShares(share.NewRegistry())
	imu := NewIMU(NewDevice(emu), store, shares)

	stepIMU(t, imu, 1)
	require.Equal(t, StateCalibrate, imu.State())
	require.Equal(t, ModeNDOF, emu.Mode())

	stepIMU(t, imu, 12)
	require.Equal(t, StateSave, imu.State())
	require.True(t, shares.Calib.Get().Complete())
	require.False(t, shares.Calibrated.Any())

	stepIMU(t, imu, 1)
	require.Equal(t, StateRun, imu.State())
	require.Equal(t, ModeNDOF, emu.Mode())
	require.True(t, shares.Calibrated.Any())
	require.NotNil(t, store.Profile)
	require.Equal(t, int16(0x0a03), store.Profile.AccOffset[0])
}

func TestIMULoadProfile(t *testing.T) {
	emu := NewEmulator()
	p := &Profile{AccOffset: [3]int16{11, 22, 33}, MagRadius: 500}
	imu := NewIMU(NewDevice(emu), &MemStore{Profile: p}, NewShares(share.NewRegistry()))

	stepIMU(t, imu, 1)
	require.Equal(t, StateLoad, imu.State())
	stepIMU(t, imu, 1)
	require.Equal(t, StateRun, imu.State())
	require.Zero(t, emu.Dropped())
	require.Equal(t, byte(11), emu.Reg(RegOffsetBase))
	require.Equal(t, byte(0xf4), emu.Reg(RegOffsetBase+20))
	require.Equal(t, byte(0x01), emu.Reg(RegOffsetBase+21))
	require.True(t, imu.Shares.Calibrated.Any())
}

func TestIMURunHeading(t *testing.T) {
	emu := NewEmulator()
	emu.SetCalibrated()
	imu := NewIMU(NewDevice(emu), nil, NewShares(share.NewRegistry()))
	imu.state = StateRun

	emu.SetOrientation(1.0, 0, 0)
	stepIMU(t, imu, 1)
	require.InDelta(t, 2*math.Pi-1.0, imu.Shares.Phi.Get(), 1e-3)

	imu.Shares.Zero.Put(true)
	emu.SetOrientation(0.8, 0, 0)
	emu.SetRates(0, 0, 0.25)
	stepIMU(t, imu, 1)
	require.False(t, imu.Shares.Zero.Any())
	require.InDelta(t, 0.2, imu.Shares.Phi.Get(), 1e-3)
	require.InDelta(t, 0.8, imu.Shares.EulerX.Get(), 1e-3)
	require.InDelta(t, 0.25, imu.Shares.RateZ.Get(), 1e-3)
}

func TestIMURecalibrate(t *testing.T) {
	testCases := []struct {
		name  string
		state cotask.State
		next  cotask.State
		saved bool
	}{
		{name: "running", state: StateRun, next: StateRun, saved: true},
		{name: "not started", state: StateStart, next: StateRun},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			emu := NewEmulator()
			emu.SetCalibrated()
			store := &MemStore{Profile: &Profile{MagRadius: 500}}
			imu := NewIMU(NewDevice(emu), store, NewShares(share.NewRegistry()))
			imu.state = tc.state

			require.NoError(t, imu.Shares.Recalibrate.Put(true))
			stepIMU(t, imu, 2)
			require.False(t, imu.Shares.Recalibrate.Any())
			require.Equal(t, tc.next, imu.State())
			require.True(t, imu.Shares.Calibrated.Any())
			if tc.saved {
				require.NotEqual(t, int16(500), store.Profile.MagRadius)
				require.True(t, imu.Shares.Calib.Get().Complete())
			} else {
				require.Equal(t, int16(500), store.Profile.MagRadius)
			}
		})
	}
}
