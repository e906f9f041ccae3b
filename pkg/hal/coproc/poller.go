package coproc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/romi.go/pkg/hal"
)

// ErrNoData is returned by devices before the first successful poll or
// when the last one is older than the poller's MaxAge.
var ErrNoData = errors.New("no coprocessor data")

// DefaultCounterPeriod is used until Info was read.
const DefaultCounterPeriod = 0xffff

// Poller reads counters and ADCs periodically and serves them as hal
// devices, so the drivers never block on the serial link.
type Poller struct {
	Client   *Client
	Interval time.Duration
	MaxAge   time.Duration

	lock     sync.Mutex
	counters [NumCounters]uint16
	adc      [NumADC]uint16
	updated  time.Time
	period   uint32
	failures int
}

// NewPoller creates a poller over the client.
func NewPoller(client *Client) *Poller {
	return &Poller{
		Client:   client,
		Interval: 5 * time.Millisecond,
		MaxAge:   100 * time.Millisecond,
		period:   DefaultCounterPeriod,
	}
}

// Run implements Runnable.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()
	infoRead := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if !p.Client.Link().State().Ready() {
			continue
		}
		if !infoRead {
			if info, err := p.Client.Info(ctx); err == nil {
				glog.Infof("coproc: firmware v%d, counter period %d", info.Version, info.CounterPeriod)
				p.lock.Lock()
				p.period = uint32(info.CounterPeriod)
				p.lock.Unlock()
				infoRead = true
			}
		}
		if err := p.Poll(ctx); err != nil && ctx.Err() == nil {
			p.lock.Lock()
			p.failures++
			n := p.failures
			p.lock.Unlock()
			if n == 1 || n%100 == 0 {
				glog.Warningf("coproc: poll failed (%d): %v", n, err)
			}
		}
	}
}

// Poll reads all channels once.
func (p *Poller) Poll(ctx context.Context) error {
	counters, err := p.Client.Counters(ctx)
	if err != nil {
		return err
	}
	adc, err := p.Client.ADC(ctx)
	if err != nil {
		return err
	}
	p.lock.Lock()
	p.counters, p.adc, p.updated, p.failures = counters, adc, time.Now(), 0
	p.lock.Unlock()
	return nil
}

func (p *Poller) fresh() error {
	if p.updated.IsZero() || (p.MaxAge > 0 && time.Since(p.updated) > p.MaxAge) {
		return ErrNoData
	}
	return nil
}

type counter struct {
	p  *Poller
	ch int
}

func (c counter) Count() (uint32, error) {
	c.p.lock.Lock()
	defer c.p.lock.Unlock()
	if err := c.p.fresh(); err != nil {
		return 0, err
	}
	return uint32(c.p.counters[c.ch]), nil
}

func (c counter) Period() uint32 {
	c.p.lock.Lock()
	defer c.p.lock.Unlock()
	return c.p.period
}

type adc struct {
	p  *Poller
	ch int
}

func (a adc) Read() (uint16, error) {
	a.p.lock.Lock()
	defer a.p.lock.Unlock()
	if err := a.p.fresh(); err != nil {
		return 0, err
	}
	return a.p.adc[a.ch], nil
}

// Counter returns encoder counter ch, 0 is left.
func (p *Poller) Counter(ch int) hal.Counter {
	return counter{p: p, ch: ch}
}

// Attach installs the encoder counters and line sensor ADCs into b.
func (p *Poller) Attach(b *hal.Board) {
	b.Left.Encoder, b.Right.Encoder = p.Counter(0), p.Counter(1)
	for n := range b.Line {
		b.Line[n] = adc{p: p, ch: n}
	}
}
