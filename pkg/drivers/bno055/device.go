// Package bno055 drives the Bosch BNO055 absolute orientation sensor.
package bno055

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/robotalks/romi.go/pkg/hal"
)

// Address is the default I2C address.
const Address = 0x28

// Registers.
const (
	RegGyroData   byte = 0x14
	RegEulerData  byte = 0x1A
	RegCalibStat  byte = 0x35
	RegOprMode    byte = 0x3D
	RegPwrMode    byte = 0x3E
	RegAxisRemap  byte = 0x41
	RegAxisSign   byte = 0x42
	RegOffsetBase byte = 0x55
)

// OffsetsLen is the number of calibration offset registers, 0x55 to 0x6A.
const OffsetsLen = 22

// Axis configuration of the sensor as mounted on Romi.
const (
	AxisRemap   byte = 0x24
	AxisSign    byte = 0x05
	PowerNormal byte = 0x00
)

// Scales of the raw readings.
const (
	EulerLSBPerDeg   = 16.0
	GyroLSBPerRadSec = 900.0
)

// Mode is an operation mode.
type Mode byte

// Operation modes.
const (
	ModeConfig     Mode = 0x00
	ModeIMU        Mode = 0x08
	ModeCompass    Mode = 0x09
	ModeM4G        Mode = 0x0A
	ModeNDOFFMCOff Mode = 0x0B
	ModeNDOF       Mode = 0x0C
)

var modeNames = map[Mode]string{
	ModeConfig:     "CONFIG",
	ModeIMU:        "IMU",
	ModeCompass:    "COMPASS",
	ModeM4G:        "M4G",
	ModeNDOFFMCOff: "NDOF_FMC_OFF",
	ModeNDOF:       "NDOF",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("Mode(0x%02x)", byte(m))
}

// ParseMode finds a mode by name.
func ParseMode(name string) (Mode, error) {
	for m, n := range modeNames {
		if n == name {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown BNO055 mode %q", name)
}

// CalibStatus holds the 2-bit calibration levels, 3 is fully calibrated.
type CalibStatus struct {
	Sys, Gyr, Acc, Mag uint8
}

// Complete reports whether everything is fully calibrated.
func (s CalibStatus) Complete() bool {
	return s.Sys == 3 && s.Gyr == 3 && s.Acc == 3 && s.Mag == 3
}

func (s CalibStatus) String() string {
	return fmt.Sprintf("sys=%d gyr=%d acc=%d mag=%d", s.Sys, s.Gyr, s.Acc, s.Mag)
}

// DecodeCalibStatus splits the CALIB_STAT register.
func DecodeCalibStatus(b byte) CalibStatus {
	return CalibStatus{
		Sys: (b >> 6) & 3,
		Gyr: (b >> 4) & 3,
		Acc: (b >> 2) & 3,
		Mag: b & 3,
	}
}

// Euler angles in rad.
type Euler struct {
	Heading, Roll, Pitch float64
}

// Vector3 is a 3-axis reading.
type Vector3 struct {
	X, Y, Z float64
}

// Device talks to a BNO055 through a register bus.
type Device struct {
	bus hal.RegisterBus
}

// NewDevice wraps a register bus.
func NewDevice(bus hal.RegisterBus) *Device {
	return &Device{bus: bus}
}

// Init enters CONFIG mode, sets normal power and remaps the axes.
func (d *Device) Init() error {
	if err := d.SetMode(ModeConfig); err != nil {
		return err
	}
	if err := d.bus.WriteRegs(RegPwrMode, PowerNormal); err != nil {
		return fmt.Errorf("bno055 power mode: %w", err)
	}
	if err := d.bus.WriteRegs(RegAxisRemap, AxisRemap); err != nil {
		return fmt.Errorf("bno055 axis remap: %w", err)
	}
	if err := d.bus.WriteRegs(RegAxisSign, AxisSign); err != nil {
		return fmt.Errorf("bno055 axis sign: %w", err)
	}
	return nil
}

// SetMode writes the operation mode.
func (d *Device) SetMode(m Mode) error {
	if err := d.bus.WriteRegs(RegOprMode, byte(m)); err != nil {
		return fmt.Errorf("bno055 set mode %s: %w", m, err)
	}
	return nil
}

// CalibStatus reads CALIB_STAT.
func (d *Device) CalibStatus() (CalibStatus, error) {
	var b [1]byte
	if err := d.bus.ReadRegs(RegCalibStat, b[:]); err != nil {
		return CalibStatus{}, fmt.Errorf("bno055 calib status: %w", err)
	}
	return DecodeCalibStatus(b[0]), nil
}

// ReadOffsets reads calibration offsets. The device must be in CONFIG mode.
func (d *Device) ReadOffsets() (o Offsets, err error) {
	if err = d.bus.ReadRegs(RegOffsetBase, o[:]); err != nil {
		err = fmt.Errorf("bno055 read offsets: %w", err)
	}
	return
}

// WriteOffsets writes calibration offsets. The device must be in CONFIG mode.
func (d *Device) WriteOffsets(o Offsets) error {
	if err := d.bus.WriteRegs(RegOffsetBase, o[:]...); err != nil {
		return fmt.Errorf("bno055 write offsets: %w", err)
	}
	return nil
}

// ReadEuler reads heading (unsigned), roll and pitch.
func (d *Device) ReadEuler() (e Euler, err error) {
	var b [6]byte
	if err = d.bus.ReadRegs(RegEulerData, b[:]); err != nil {
		return e, fmt.Errorf("bno055 read euler: %w", err)
	}
	scale := math.Pi / 180 / EulerLSBPerDeg
	e.Heading = float64(binary.LittleEndian.Uint16(b[0:])) * scale
	e.Roll = float64(int16(binary.LittleEndian.Uint16(b[2:]))) * scale
	e.Pitch = float64(int16(binary.LittleEndian.Uint16(b[4:]))) * scale
	return e, nil
}

// ReadGyro reads angular velocities in rad/s.
func (d *Device) ReadGyro() (v Vector3, err error) {
	var b [6]byte
	if err = d.bus.ReadRegs(RegGyroData, b[:]); err != nil {
		return v, fmt.Errorf("bno055 read gyro: %w", err)
	}
	v.X = float64(int16(binary.LittleEndian.Uint16(b[0:]))) / GyroLSBPerRadSec
	v.Y = float64(int16(binary.LittleEndian.Uint16(b[2:]))) / GyroLSBPerRadSec
	v.Z = float64(int16(binary.LittleEndian.Uint16(b[4:]))) / GyroLSBPerRadSec
	return v, nil
}
