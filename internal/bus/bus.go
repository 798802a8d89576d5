package bus

import (
	"bytes"
	"encoding/gob"

	"github.com/sirupsen/logrus"
)

// Peripheral is implemented by every memory-mapped device.
type Peripheral interface {
	CPURead(addr uint16) byte
	CPUWrite(addr uint16, value byte)
}

// Interrupt bits in IF/IE, highest priority first.
const (
	IntVBlank = 0
	IntSTAT   = 1
	IntTimer  = 2
	IntSerial = 3
	IntJoypad = 4
)

// Well-known register addresses owned by the bus itself.
const (
	AddrIF       uint16 = 0xFF0F
	AddrBootLock uint16 = 0xFF50
	AddrIE       uint16 = 0xFFFF
)

const bootSize = 0x100

// Bus is the 64KB address space. Each address is owned by exactly one peripheral;
// the bus owns WRAM (+echo), HRAM, IF, IE and the boot lock register.
type Bus struct {
	owners [0x10000]Peripheral

	wram [0x2000]byte // C000-DFFF, mirrored at E000-FDFF
	hram [0x7F]byte   // FF80-FFFE
	ie   byte
	ifr  byte

	boot       []byte
	bootActive bool
	bootLock   byte

	listeners []func(bit int)
	log       logrus.FieldLogger
}

// New creates a bus that owns the entire address range until peripherals are registered.
func New(log logrus.FieldLogger) *Bus {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		log = l
	}
	b := &Bus{log: log}
	b.RegisterRange(0x0000, 0xFFFF, b)
	return b
}

// RegisterRange binds every address in [low, high] to p. Later registrations win.
func (b *Bus) RegisterRange(low, high uint16, p Peripheral) {
	for addr := uint32(low); addr <= uint32(high); addr++ {
		b.owners[addr] = p
	}
}

// Owner returns the peripheral bound to addr.
func (b *Bus) Owner(addr uint16) Peripheral { return b.owners[addr] }

// Read resolves addr to its peripheral without the boot overlay. Peripherals (DMA,
// renderer) use it directly; it never costs CPU cycles.
func (b *Bus) Read(addr uint16) byte {
	p := b.owners[addr]
	if p == nil {
		return 0xFF
	}
	return p.CPURead(addr)
}

// Write resolves addr to its peripheral. The boot overlay never affects writes.
func (b *Bus) Write(addr uint16, value byte) {
	p := b.owners[addr]
	if p == nil {
		return
	}
	p.CPUWrite(addr, value)
}

// Fetch is the CPU's read path: while booting, 0x0000-0x00FF returns firmware bytes.
func (b *Bus) Fetch(addr uint16) byte {
	if b.bootActive && addr < bootSize {
		return b.boot[addr]
	}
	return b.Read(addr)
}

// SetBootROM installs a 256-byte firmware image and activates the overlay.
// Shorter images are ignored.
func (b *Bus) SetBootROM(data []byte) {
	if len(data) < bootSize {
		b.log.WithField("size", len(data)).Warn("boot image too small, ignoring")
		return
	}
	b.boot = make([]byte, bootSize)
	copy(b.boot, data[:bootSize])
	b.bootActive = true
	b.bootLock = 0
}

// BootActive reports whether the boot overlay is still mapped.
func (b *Bus) BootActive() bool { return b.bootActive }

// DisableBoot removes the overlay permanently, as if the firmware had finished.
func (b *Bus) DisableBoot() {
	b.bootActive = false
	b.bootLock = 0x01
}

// OnInterrupt registers fn to be called every time a peripheral raises an interrupt.
func (b *Bus) OnInterrupt(fn func(bit int)) {
	b.listeners = append(b.listeners, fn)
}

// RequestInterrupt sets the IF bit for the given source. It has the shape of
// the InterruptRequester callbacks that peripherals receive.
func (b *Bus) RequestInterrupt(bit int) {
	if bit < 0 || bit > IntJoypad {
		return
	}
	b.ifr |= 1 << uint(bit)
	for _, fn := range b.listeners {
		fn(bit)
	}
}

// Pending returns IE & IF restricted to the five interrupt sources.
func (b *Bus) Pending() byte { return b.ie & b.ifr & 0x1F }

// CPURead serves the regions the bus owns. Anything else reads as 0xFF.
func (b *Bus) CPURead(addr uint16) byte {
	switch {
	case addr >= 0xC000 && addr <= 0xDFFF:
		return b.wram[addr-0xC000]
	case addr >= 0xE000 && addr <= 0xFDFF:
		return b.wram[addr-0xE000]
	case addr >= 0xFF80 && addr <= 0xFFFE:
		return b.hram[addr-0xFF80]
	case addr == AddrIF:
		return 0xE0 | b.ifr
	case addr == AddrIE:
		return b.ie
	case addr == AddrBootLock:
		return 0xFE | b.bootLock
	default:
		return 0xFF
	}
}

// CPUWrite serves the regions the bus owns. Writes elsewhere are dropped.
func (b *Bus) CPUWrite(addr uint16, value byte) {
	switch {
	case addr >= 0xC000 && addr <= 0xDFFF:
		b.wram[addr-0xC000] = value
	case addr >= 0xE000 && addr <= 0xFDFF:
		b.wram[addr-0xE000] = value
	case addr >= 0xFF80 && addr <= 0xFFFE:
		b.hram[addr-0xFF80] = value
	case addr == AddrIF:
		b.ifr = value & 0x1F
	case addr == AddrIE:
		b.ie = value
	case addr == AddrBootLock:
		// once set, bit 0 sticks and the overlay is gone for good
		if value&0x01 != 0 && b.bootActive {
			b.bootActive = false
			b.log.Debug("boot overlay disabled")
		}
		b.bootLock |= value & 0x01
	}
}

// --- Save/Load state ---
type busState struct {
	WRAM       [0x2000]byte
	HRAM       [0x7F]byte
	IE, IF     byte
	Boot       []byte
	BootActive bool
	BootLock   byte
}

func (b *Bus) SaveState() []byte {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	s := busState{
		WRAM: b.wram, HRAM: b.hram, IE: b.ie, IF: b.ifr,
		Boot: b.boot, BootActive: b.bootActive, BootLock: b.bootLock,
	}
	_ = enc.Encode(s)
	return buf.Bytes()
}

func (b *Bus) LoadState(data []byte) error {
	var s busState
	dec := gob.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&s); err != nil {
		return err
	}
	b.wram, b.hram, b.ie, b.ifr = s.WRAM, s.HRAM, s.IE, s.IF
	b.boot, b.bootActive, b.bootLock = s.Boot, s.BootActive, s.BootLock
	return nil
}
