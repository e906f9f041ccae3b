package coproc

// LinkState reports the synchronization of the receive direction.
type LinkState int

// Link states, Ready and Receiving may be combined.
const (
	LinkSyncing   LinkState = 0
	LinkReady     LinkState = 0x01
	LinkReceiving LinkState = 0x02
)

// Ready reports whether frames can be exchanged.
func (s LinkState) Ready() bool { return s&LinkReady != 0 }

// Receiving reports a handshake or frame in progress.
func (s LinkState) Receiving() bool { return s&LinkReceiving != 0 }

func (s LinkState) String() string {
	switch s {
	case LinkSyncing:
		return "syncing"
	case LinkReceiving:
		return "handshake"
	case LinkReady:
		return "ready"
	}
	return "receiving"
}

type phase int

const (
	phaseWaitSync phase = iota // REQ sent, waiting for the peer
	phaseReqSeq                // got REQ, next byte is the peer seq
	phaseAckSeq                // got ACK during sync, next byte is the peer seq
	phaseIdle                  // in sync, waiting for a frame
	phaseIdleAck               // got ACK while in sync
	phaseCode
	phaseLen
	phaseData
)

// decoded is the outcome of feeding the decoder.
type decoded struct {
	// ctl is a control byte to send back, 0 for none.
	ctl   byte
	frame *Frame
	state LinkState
}

// decoder turns received bytes into frames.
type decoder struct {
	expect Seq
	phase  phase
	frame  *Frame
	filled int
}

func (d *decoder) state() LinkState {
	switch {
	case d.phase == phaseWaitSync:
		return LinkSyncing
	case d.phase == phaseIdle:
		return LinkReady
	case d.phase > phaseIdle:
		return LinkReady | LinkReceiving
	}
	return LinkReceiving
}

func (d *decoder) result(ctl byte, f *Frame) decoded {
	return decoded{ctl: ctl, frame: f, state: d.state()}
}

func (d *decoder) resync() decoded {
	d.phase, d.frame = phaseWaitSync, nil
	return d.result(ctlREQ, nil)
}

// expire is called when a handshake or frame didn't complete in time.
func (d *decoder) expire() decoded {
	if d.phase == phaseIdle {
		return d.result(0, nil)
	}
	return d.resync()
}

func (d *decoder) complete() decoded {
	f := d.frame
	d.phase, d.frame = phaseIdle, nil
	return d.result(0, f)
}

func (d *decoder) feed(b byte) decoded {
	switch d.phase {
	case phaseWaitSync:
		if b == ctlREQ {
			d.phase = phaseReqSeq
		} else if b == ctlACK {
			d.phase = phaseAckSeq
		}
	case phaseReqSeq, phaseAckSeq:
		seq := Seq(b)
		if !seq.Valid() {
			return d.resync()
		}
		reply := byte(0)
		if d.phase == phaseReqSeq {
			reply = ctlACK
		}
		d.expect, d.phase = seq, phaseIdle
		return d.result(reply, nil)
	case phaseIdle:
		switch {
		case b == ctlREQ:
			d.phase = phaseReqSeq
		case b == ctlACK:
			d.phase = phaseIdleAck
		case Seq(b) != d.expect:
			return d.resync()
		default:
			d.frame = &Frame{Seq: d.expect}
			d.expect = d.expect.Next()
			d.phase = phaseCode
		}
	case phaseIdleAck:
		if Seq(b) != d.expect {
			return d.resync()
		}
		d.phase = phaseIdle
	case phaseCode:
		d.frame.Code = b & codeMask
		n := int(b>>lenShift) & lenInline
		if n == lenInline {
			d.phase = phaseLen
		} else {
			return d.expectData(n)
		}
	case phaseLen:
		if b > MaxData {
			return d.resync()
		}
		return d.expectData(int(b))
	case phaseData:
		d.frame.Data[d.filled] = b
		if d.filled++; d.filled == len(d.frame.Data) {
			return d.complete()
		}
	}
	return d.result(0, nil)
}

func (d *decoder) expectData(n int) decoded {
	if n == 0 {
		return d.complete()
	}
	d.frame.Data, d.filled, d.phase = make([]byte, n), 0, phaseData
	return d.result(0, nil)
}
