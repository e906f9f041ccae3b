// Package periph accesses I2C devices through periph.io.
package periph

import (
	"fmt"
	"sync"

	"github.com/golang/glog"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

var initOnce struct {
	sync.Once
	err error
}

// Init loads the host drivers once.
func Init() error {
	initOnce.Do(func() {
		state, err := host.Init()
		if err != nil {
			initOnce.err = fmt.Errorf("periph init: %w", err)
			return
		}
		for _, d := range state.Loaded {
			glog.V(2).Infof("periph: loaded driver %s", d)
		}
		for _, f := range state.Failed {
			glog.V(2).Infof("periph: driver %s", f)
		}
	})
	return initOnce.err
}

// Bus is a register device on an I2C bus. It implements hal.RegisterBus.
type Bus struct {
	dev    i2c.Dev
	closer i2c.BusCloser
	lock   sync.Mutex
}

// Open opens an I2C bus by name ("" for the first one, "1" for
// /dev/i2c-1) and addresses the device at addr.
func Open(name string, addr uint16, speed physic.Frequency) (*Bus, error) {
	if err := Init(); err != nil {
		return nil, err
	}
	bc, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", name, err)
	}
	if speed > 0 {
		if err := bc.SetSpeed(speed); err != nil {
			glog.Warningf("i2c %s: set speed %s: %v", bc, speed, err)
		}
	}
	glog.Infof("i2c: %s device 0x%02x", bc, addr)
	return &Bus{dev: i2c.Dev{Bus: bc, Addr: addr}, closer: bc}, nil
}

// ReadRegs implements hal.RegisterBus.
func (b *Bus) ReadRegs(reg byte, buf []byte) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	if err := b.dev.Tx([]byte{reg}, buf); err != nil {
		return fmt.Errorf("i2c read 0x%02x: %w", reg, err)
	}
	return nil
}

// WriteRegs implements hal.RegisterBus.
func (b *Bus) WriteRegs(reg byte, data ...byte) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	if err := b.dev.Tx(append([]byte{reg}, data...), nil); err != nil {
		return fmt.Errorf("i2c write 0x%02x: %w", reg, err)
	}
	return nil
}

// Close releases the bus.
func (b *Bus) Close() error {
	return b.closer.Close()
}

// Buses lists the registered I2C buses.
func Buses() ([]string, error) {
	if err := Init(); err != nil {
		return nil, err
	}
	var names []string
	for _, ref := range i2creg.All() {
		names = append(names, ref.Name)
	}
	return names, nil
}
