package coproc

import (
	"context"
	"fmt"

	"github.com/golang/glog"
	"go.bug.st/serial"

	fx "github.com/robotalks/romi.go/pkg/framework"
)

// Port is the coprocessor on a serial port.
type Port struct {
	Client *Client
	Poller *Poller

	port serial.Port
}

// Open opens the serial device.
func Open(device string, baud int) (*Port, error) {
	sp, err := serial.Open(device, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", device, err)
	}
	if err := sp.SetReadTimeout(DefaultTimeout); err != nil {
		sp.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", device, err)
	}
	glog.Infof("coproc: opened %s at %d baud", device, baud)
	client := NewClient(NewLink(sp))
	return &Port{Client: client, Poller: NewPoller(client), port: sp}, nil
}

// Ports lists serial devices.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}

// Run runs the link and the poller until ctx is done. The port is closed
// once ctx is done, which also ends a pending read.
func (p *Port) Run(ctx context.Context) error {
	return fx.RunWithContextCloser(ctx, p.port, func() error {
		return fx.NewRunnerWith(ctx).WithFailFast(true).Go(
			fx.NamedRun("coproc-link", p.Client),
			fx.NamedRun("coproc-poller", p.Poller),
		).Wait()
	})
}
