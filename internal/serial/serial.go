package serial

import (
	"bytes"
	"encoding/gob"
	"io"
)

const (
	AddrSB uint16 = 0xFF01
	AddrSC uint16 = 0xFF02
)

const intSerial = 3

// InterruptRequester raises an IF bit.
type InterruptRequester func(bit int)

// Port is the link cable with nothing attached. Transfers on the internal
// clock complete immediately: the outgoing byte goes to Out and 0xFF is
// shifted in.
type Port struct {
	sb, sc byte
	Out    io.Writer
	req    InterruptRequester
}

func New(out io.Writer, req InterruptRequester) *Port {
	return &Port{Out: out, req: req}
}

func (p *Port) CPURead(addr uint16) byte {
	switch addr {
	case AddrSB:
		return p.sb
	case AddrSC:
		return 0x7E | p.sc
	}
	return 0xFF
}

func (p *Port) CPUWrite(addr uint16, value byte) {
	switch addr {
	case AddrSB:
		p.sb = value
	case AddrSC:
		p.sc = value & 0x81
		if value&0x81 == 0x81 {
			p.transfer()
		}
	}
}

func (p *Port) transfer() {
	if p.Out != nil {
		_, _ = p.Out.Write([]byte{p.sb})
	}
	p.sb = 0xFF
	p.sc &^= 0x80
	if p.req != nil {
		p.req(intSerial)
	}
}

// --- Save/Load state ---
type portState struct{ SB, SC byte }

func (p *Port) SaveState() []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(portState{SB: p.sb, SC: p.sc})
	return buf.Bytes()
}

func (p *Port) LoadState(data []byte) error {
	var s portState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return err
	}
	p.sb, p.sc = s.SB, s.SC
	return nil
}
