package cart

import (
	"encoding/binary"
	"time"
)

// nowUnix is swapped out by tests.
var nowUnix = func() int64 { return time.Now().Unix() }

const (
	rtcSeconds = 0x08
	rtcMinutes = 0x09
	rtcHours   = 0x0A
	rtcDayLow  = 0x0B
	rtcDayHigh = 0x0C

	rtcSaveSize = 48
)

// mbc3 has a 7-bit ROM bank, four 8KB RAM banks and, on types 0x0F/0x10,
// a real-time clock whose registers share the A000-BFFF window with RAM.
//
//	0000-1FFF  RAM/RTC enable (0x0A in the low nibble)
//	2000-3FFF  ROM bank (0 written as 1)
//	4000-5FFF  RAM bank 0-3 or RTC register 08-0C
//	6000-7FFF  latch clock on a 0 then 1 write
type mbc3 struct {
	rom    []byte
	ram    []byte
	hasRTC bool
	r      mbc3Regs
}

type mbc3Regs struct {
	ROMBank    byte
	Select     byte
	RAMEnabled bool
	LatchPrev  byte

	Clock    rtcClock
	Latched  rtcClock
	LastWall int64
}

type rtcClock struct {
	Sec, Min, Hour byte
	Day            uint16 // 9 bits
	Halt, Carry    bool
}

func newMBC3(rom, ram []byte, hasRTC bool) *mbc3 {
	return &mbc3{
		rom:    rom,
		ram:    ram,
		hasRTC: hasRTC,
		r:      mbc3Regs{ROMBank: 1, LatchPrev: 0xFF, LastWall: nowUnix()},
	}
}

func (m *mbc3) CPURead(addr uint16) byte {
	switch {
	case addr < 0x4000:
		return romByte(m.rom, 0, addr)
	case addr < 0x8000:
		return romByte(m.rom, int(m.r.ROMBank), addr-0x4000)
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.r.RAMEnabled {
			return 0xFF
		}
		if m.r.Select >= rtcSeconds {
			if !m.hasRTC {
				return 0xFF
			}
			return m.r.Latched.reg(m.r.Select)
		}
		if i := ramIndex(m.ram, int(m.r.Select&0x03), addr); i >= 0 {
			return m.ram[i]
		}
	}
	return 0xFF
}

func (m *mbc3) CPUWrite(addr uint16, value byte) {
	switch {
	case addr < 0x2000:
		m.r.RAMEnabled = value&0x0F == 0x0A
	case addr < 0x4000:
		m.r.ROMBank = value & 0x7F
		if m.r.ROMBank == 0 {
			m.r.ROMBank = 1
		}
	case addr < 0x6000:
		if value <= 0x03 || (value >= rtcSeconds && value <= rtcDayHigh) {
			m.r.Select = value
		}
	case addr < 0x8000:
		if m.r.LatchPrev == 0x00 && value == 0x01 && m.hasRTC {
			m.tick()
			m.r.Latched = m.r.Clock
		}
		m.r.LatchPrev = value
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.r.RAMEnabled {
			return
		}
		if m.r.Select >= rtcSeconds {
			if m.hasRTC {
				m.tick()
				m.r.Clock.setReg(m.r.Select, value)
			}
			return
		}
		if i := ramIndex(m.ram, int(m.r.Select&0x03), addr); i >= 0 {
			m.ram[i] = value
		}
	}
}

// tick advances the live clock by the wall time elapsed since the last call.
func (m *mbc3) tick() {
	now := nowUnix()
	delta := now - m.r.LastWall
	m.r.LastWall = now
	if m.r.Clock.Halt || delta <= 0 {
		return
	}
	m.r.Clock.advance(delta)
}

func (c *rtcClock) advance(secs int64) {
	total := int64(c.Sec) + secs
	c.Sec = byte(total % 60)
	total = int64(c.Min) + total/60
	c.Min = byte(total % 60)
	total = int64(c.Hour) + total/60
	c.Hour = byte(total % 24)
	days := int64(c.Day) + total/24
	if days > 0x1FF {
		c.Carry = true
		days %= 0x200
	}
	c.Day = uint16(days)
}

func (c *rtcClock) reg(sel byte) byte {
	switch sel {
	case rtcSeconds:
		return c.Sec
	case rtcMinutes:
		return c.Min
	case rtcHours:
		return c.Hour
	case rtcDayLow:
		return byte(c.Day)
	case rtcDayHigh:
		v := byte(c.Day>>8) & 0x01
		if c.Halt {
			v |= 0x40
		}
		if c.Carry {
			v |= 0x80
		}
		return v
	}
	return 0xFF
}

func (c *rtcClock) setReg(sel, v byte) {
	switch sel {
	case rtcSeconds:
		c.Sec = v & 0x3F
	case rtcMinutes:
		c.Min = v & 0x3F
	case rtcHours:
		c.Hour = v & 0x1F
	case rtcDayLow:
		c.Day = c.Day&0x100 | uint16(v)
	case rtcDayHigh:
		c.Day = c.Day&0x0FF | uint16(v&0x01)<<8
		c.Halt = v&0x40 != 0
		c.Carry = v&0x80 != 0
	}
}

// saveClock appends the clock in the common 48-byte trailer layout: live and
// latched registers as little-endian uint32s, then the wall-clock timestamp.
func (m *mbc3) saveClock() []byte {
	if !m.hasRTC {
		return nil
	}
	m.tick()
	out := make([]byte, rtcSaveSize)
	for i := 0; i < 5; i++ {
		sel := byte(rtcSeconds + i)
		binary.LittleEndian.PutUint32(out[i*4:], uint32(m.r.Clock.reg(sel)))
		binary.LittleEndian.PutUint32(out[20+i*4:], uint32(m.r.Latched.reg(sel)))
	}
	binary.LittleEndian.PutUint64(out[40:], uint64(m.r.LastWall))
	return out
}

func (m *mbc3) loadClock(data []byte) {
	if !m.hasRTC || len(data) < rtcSaveSize {
		return
	}
	for i := 0; i < 5; i++ {
		sel := byte(rtcSeconds + i)
		m.r.Clock.setReg(sel, byte(binary.LittleEndian.Uint32(data[i*4:])))
		m.r.Latched.setReg(sel, byte(binary.LittleEndian.Uint32(data[20+i*4:])))
	}
	m.r.LastWall = int64(binary.LittleEndian.Uint64(data[40:]))
	// catch up on the time spent powered off
	m.tick()
}

func (m *mbc3) saveRegs() []byte            { return encodeRegs(m.r) }
func (m *mbc3) loadRegs(data []byte) error { return decodeRegs(data, &m.r) }
