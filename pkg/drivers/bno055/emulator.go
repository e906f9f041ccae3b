package bno055

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
)

// Emulator is a register level BNO055 model implementing hal.RegisterBus.
// Orientation and rates are set by the simulation. Calibration levels
// rise while CALIB_STAT is polled in a fusion mode.
type Emulator struct {
	// PollsPerLevel is how many CALIB_STAT reads raise one sensor one level.
	PollsPerLevel int

	lock  sync.Mutex
	regs  [0x80]byte
	polls int
	// writes to offset registers outside CONFIG mode are dropped.
	dropped int
}

// NewEmulator creates an uncalibrated emulator in CONFIG mode.
func NewEmulator() *Emulator {
	return &Emulator{PollsPerLevel: 5}
}

// Mode returns the current operation mode.
func (e *Emulator) Mode() Mode {
	e.lock.Lock()
	defer e.lock.Unlock()
	return Mode(e.regs[RegOprMode])
}

// Reg returns a raw register value.
func (e *Emulator) Reg(reg byte) byte {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.regs[reg&0x7f]
}

// Dropped returns how many offset writes were ignored.
func (e *Emulator) Dropped() int {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.dropped
}

// SetCalibrated forces all calibration levels to 3.
func (e *Emulator) SetCalibrated() {
	e.lock.Lock()
	e.regs[RegCalibStat] = 0xff
	e.lock.Unlock()
}

// SetOrientation sets heading (clockwise, wrapped into [0, 2π)), roll and
// pitch in rad.
func (e *Emulator) SetOrientation(heading, roll, pitch float64) {
	heading = math.Mod(heading, 2*math.Pi)
	if heading < 0 {
		heading += 2 * math.Pi
	}
	scale := 180 / math.Pi * EulerLSBPerDeg
	e.lock.Lock()
	defer e.lock.Unlock()
	binary.LittleEndian.PutUint16(e.regs[RegEulerData:], uint16(math.Round(heading*scale))%5760)
	binary.LittleEndian.PutUint16(e.regs[RegEulerData+2:], uint16(int16(math.Round(roll*scale))))
	binary.LittleEndian.PutUint16(e.regs[RegEulerData+4:], uint16(int16(math.Round(pitch*scale))))
}

// SetRates sets angular velocities in rad/s.
func (e *Emulator) SetRates(x, y, z float64) {
	e.lock.Lock()
	defer e.lock.Unlock()
	for n, v := range []float64{x, y, z} {
		raw := math.Round(v * GyroLSBPerRadSec)
		raw = math.Max(math.MinInt16, math.Min(math.MaxInt16, raw))
		binary.LittleEndian.PutUint16(e.regs[int(RegGyroData)+n*2:], uint16(int16(raw)))
	}
}

// ReadRegs implements hal.RegisterBus.
func (e *Emulator) ReadRegs(reg byte, buf []byte) error {
	if int(reg)+len(buf) > len(e.regs) {
		return fmt.Errorf("bno055 emulator: read 0x%02x+%d out of range", reg, len(buf))
	}
	e.lock.Lock()
	defer e.lock.Unlock()
	if reg == RegCalibStat && Mode(e.regs[RegOprMode]) != ModeConfig {
		e.progressCalibration()
	}
	copy(buf, e.regs[reg:])
	return nil
}

// WriteRegs implements hal.RegisterBus.
func (e *Emulator) WriteRegs(reg byte, data ...byte) error {
	if int(reg)+len(data) > len(e.regs) {
		return fmt.Errorf("bno055 emulator: write 0x%02x+%d out of range", reg, len(data))
	}
	e.lock.Lock()
	defer e.lock.Unlock()
	end := reg + byte(len(data))
	if reg < RegOffsetBase+OffsetsLen && end > RegOffsetBase && Mode(e.regs[RegOprMode]) != ModeConfig {
		e.dropped++
		return nil
	}
	copy(e.regs[reg:], data)
	if reg <= RegOffsetBase && end >= RegOffsetBase+OffsetsLen {
		// a complete offset profile restores full calibration.
		e.regs[RegCalibStat] = 0xff
	}
	return nil
}

// caller holds the lock.
func (e *Emulator) progressCalibration() {
	e.polls++
	per := e.PollsPerLevel
	if per <= 0 {
		per = 1
	}
	if e.polls%per != 0 {
		return
	}
	st := e.regs[RegCalibStat]
	// mag first, then acc, gyr and sys.
	for shift := uint(0); shift < 8; shift += 2 {
		if lvl := (st >> shift) & 3; lvl < 3 {
			st += 1 << shift
			break
		}
	}
	e.regs[RegCalibStat] = st
	// offsets become meaningful once calibrated.
	if st == 0xff {
		for n := 0; n < OffsetsLen; n++ {
			e.regs[int(RegOffsetBase)+n] = byte(n*7 + 3)
		}
	}
}
