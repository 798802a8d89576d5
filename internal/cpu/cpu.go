package cpu

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/FabianRolfMatthiasNoll/dmgcore/internal/bus"
	"github.com/sirupsen/logrus"
)

// RegisterPair is the 16-bit view over two 8-bit registers. Hi is the
// high-order byte of the value.
type RegisterPair struct {
	Hi, Lo *byte
}

func (p *RegisterPair) Uint16() uint16 { return uint16(*p.Hi)<<8 | uint16(*p.Lo) }

func (p *RegisterPair) SetUint16(v uint16) {
	*p.Hi = byte(v >> 8)
	*p.Lo = byte(v)
}

// InvalidOpcodeError is returned by Step when the fetched byte has no
// instruction assigned. The simulation cannot continue past it.
type InvalidOpcodeError struct {
	Opcode byte
	PC     uint16
}

func (e *InvalidOpcodeError) Error() string {
	return fmt.Sprintf("cpu: invalid opcode %02X at %04X", e.Opcode, e.PC)
}

// Flags
const (
	flagZ byte = 1 << 7
	flagN byte = 1 << 6
	flagH byte = 1 << 5
	flagC byte = 1 << 4
)

var vectors = [5]uint16{0x40, 0x48, 0x50, 0x58, 0x60}

// CPU is the SM83 core. Every bus access made while executing costs 4
// cycles; Step reports the total for one instruction or interrupt dispatch.
type CPU struct {
	A, F byte
	B, C byte
	D, E byte
	H, L byte

	AF, BC, DE, HL *RegisterPair

	SP uint16
	PC uint16

	IME    bool
	halted bool

	cycles int
	bus    *bus.Bus
	trace  logrus.Ext1FieldLogger
}

// New creates a CPU on b with PC at 0 (the boot overlay entry point). A
// raised interrupt that is enabled in IE wakes a halted CPU.
func New(b *bus.Bus) *CPU {
	c := &CPU{bus: b, SP: 0xFFFE}
	c.AF = &RegisterPair{&c.A, &c.F}
	c.BC = &RegisterPair{&c.B, &c.C}
	c.DE = &RegisterPair{&c.D, &c.E}
	c.HL = &RegisterPair{&c.H, &c.L}
	b.OnInterrupt(func(bit int) {
		if c.halted && b.Read(bus.AddrIE)&(1<<uint(bit)) != 0 {
			c.halted = false
		}
	})
	return c
}

// SetPC allows tests or a boot stub to set the program counter.
func (c *CPU) SetPC(pc uint16) { c.PC = pc }

// Bus exposes the underlying bus for tests/tools.
func (c *CPU) Bus() *bus.Bus { return c.bus }

// Halted reports whether the CPU is waiting for an interrupt.
func (c *CPU) Halted() bool { return c.halted }

// SetTracer logs every executed instruction at trace level. nil turns it off.
func (c *CPU) SetTracer(log logrus.Ext1FieldLogger) { c.trace = log }

// ResetNoBoot sets registers to the DMG post-boot state.
func (c *CPU) ResetNoBoot() {
	c.AF.SetUint16(0x01B0)
	c.BC.SetUint16(0x0013)
	c.DE.SetUint16(0x00D8)
	c.HL.SetUint16(0x014D)
	c.SP = 0xFFFE
	c.PC = 0x0100
	c.IME = false
	c.halted = false
}

func (c *CPU) flag(f byte) bool { return c.F&f != 0 }

func (c *CPU) setZNHC(z, n, h, carry bool) {
	var f byte
	if z {
		f |= flagZ
	}
	if n {
		f |= flagN
	}
	if h {
		f |= flagH
	}
	if carry {
		f |= flagC
	}
	c.F = f
}

func (c *CPU) idle() { c.cycles += 4 }

func (c *CPU) read8(addr uint16) byte {
	c.cycles += 4
	return c.bus.Fetch(addr)
}

func (c *CPU) write8(addr uint16, v byte) {
	c.cycles += 4
	c.bus.Write(addr, v)
}

func (c *CPU) fetch8() byte {
	b := c.read8(c.PC)
	c.PC++
	return b
}

func (c *CPU) fetch16() uint16 {
	lo := uint16(c.fetch8())
	hi := uint16(c.fetch8())
	return lo | hi<<8
}

func (c *CPU) write16(addr uint16, v uint16) {
	c.write8(addr, byte(v))
	c.write8(addr+1, byte(v>>8))
}

// push16 stores the high byte first, each below the previous SP.
func (c *CPU) push16(v uint16) {
	c.idle()
	c.SP--
	c.write8(c.SP, byte(v>>8))
	c.SP--
	c.write8(c.SP, byte(v))
}

func (c *CPU) pop16() uint16 {
	lo := uint16(c.read8(c.SP))
	c.SP++
	hi := uint16(c.read8(c.SP))
	c.SP++
	return lo | hi<<8
}

// Step services a pending interrupt or executes one instruction and returns
// the cycles it took. A halted CPU burns 4 cycles per step until IE&IF is
// non-zero; whether the interrupt is then serviced depends on IME.
// Servicing an interrupt is a step of its own (20 cycles); the first
// instruction of the handler runs on the next call.
func (c *CPU) Step() (int, error) {
	c.cycles = 0

	pending := c.bus.Pending()
	if c.IME && pending != 0 {
		c.serviceInterrupt(pending)
		return c.cycles, nil
	}
	if c.halted {
		if pending != 0 {
			c.halted = false
		}
		return 4, nil
	}

	pc := c.PC
	op := c.fetch8()
	in := &InstructionSet[op]
	if in.fn == nil {
		return c.cycles, &InvalidOpcodeError{Opcode: op, PC: pc}
	}
	if c.trace != nil {
		c.trace.WithFields(logrus.Fields{
			"pc": fmt.Sprintf("%04X", pc),
			"af": fmt.Sprintf("%04X", c.AF.Uint16()),
			"bc": fmt.Sprintf("%04X", c.BC.Uint16()),
			"de": fmt.Sprintf("%04X", c.DE.Uint16()),
			"hl": fmt.Sprintf("%04X", c.HL.Uint16()),
			"sp": fmt.Sprintf("%04X", c.SP),
		}).Trace(in.name)
	}
	in.fn(c)
	return c.cycles, nil
}

// serviceInterrupt dispatches the highest priority pending source: two wait
// states, the PC push, then the jump to its vector.
func (c *CPU) serviceInterrupt(pending byte) {
	bit := 0
	for pending&(1<<uint(bit)) == 0 {
		bit++
	}
	c.IME = false
	c.halted = false
	c.bus.Write(bus.AddrIF, c.bus.Read(bus.AddrIF)&^(1<<uint(bit))&0x1F)
	c.idle()
	c.idle()
	c.push16(c.PC)
	c.PC = vectors[bit]
}

// --- Save/Load state ---
type cpuState struct {
	A, F, B, C, D, E, H, L byte
	SP, PC                 uint16
	IME, Halted            bool
}

func (c *CPU) SaveState() []byte {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	s := cpuState{
		A: c.A, F: c.F, B: c.B, C: c.C, D: c.D, E: c.E, H: c.H, L: c.L,
		SP: c.SP, PC: c.PC, IME: c.IME, Halted: c.halted,
	}
	_ = enc.Encode(s)
	return buf.Bytes()
}

func (c *CPU) LoadState(data []byte) error {
	var s cpuState
	dec := gob.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&s); err != nil {
		return err
	}
	c.A, c.F = s.A, s.F&0xF0
	c.B, c.C, c.D, c.E, c.H, c.L = s.B, s.C, s.D, s.E, s.H, s.L
	c.SP, c.PC, c.IME, c.halted = s.SP, s.PC, s.IME, s.Halted
	return nil
}
