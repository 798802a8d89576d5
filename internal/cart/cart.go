package cart

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

var (
	ErrEmptyROM = errors.New("cart: empty ROM image")
	ErrNoHeader = errors.New("cart: ROM too small to contain header")
)

// Controller is one bank-switching protocol. It sees CPU addresses for the
// ROM window (0x0000-0x7FFF) and the external RAM window (0xA000-0xBFFF).
type Controller interface {
	CPURead(addr uint16) byte
	CPUWrite(addr uint16, value byte)
}

// stateful controllers persist their bank registers in save states.
type stateful interface {
	saveRegs() []byte
	loadRegs(data []byte) error
}

// clocked controllers persist extra data (the MBC3 clock) next to battery RAM.
type clocked interface {
	saveClock() []byte
	loadClock(data []byte)
}

// BatteryBacked is implemented by cartridges whose external RAM survives power-off.
type BatteryBacked interface {
	SaveRAM() []byte
	LoadRAM(data []byte)
}

// Cartridge owns the ROM image and external RAM and forwards all accesses to
// the controller picked from the header at load time.
type Cartridge struct {
	Header *Header

	rom []byte
	ram []byte
	mbc Controller
}

// Load parses the header and builds the matching controller. Unknown cartridge
// types fall back to ROM-only.
func Load(rom []byte, log logrus.FieldLogger) (*Cartridge, error) {
	if len(rom) == 0 {
		return nil, ErrEmptyROM
	}
	h, err := ParseHeader(rom)
	if err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	c := &Cartridge{Header: h, rom: rom}

	ramSize := h.RAMSizeBytes
	if h.Kind == KindMBC2 {
		ramSize = mbc2RAMSize
	}
	if ramSize > 0 {
		c.ram = make([]byte, ramSize)
	}

	switch h.Kind {
	case KindROMOnly:
		c.mbc = newROMOnly(rom, c.ram)
	case KindMBC1:
		c.mbc = newMBC1(rom, c.ram)
	case KindMBC2:
		c.mbc = newMBC2(rom, c.ram)
	case KindMBC3:
		c.mbc = newMBC3(rom, c.ram, h.HasRTC)
	case KindMBC5:
		c.mbc = newMBC5(rom, c.ram)
	default:
		log.WithFields(logrus.Fields{
			"type": fmt.Sprintf("%#02x", h.CartType),
		}).Warn("unsupported cartridge type, using ROM-only mapping")
		c.mbc = newROMOnly(rom, c.ram)
	}

	log.WithFields(logrus.Fields{
		"title": h.Title,
		"type":  h.CartTypeStr,
		"banks": h.ROMBanks,
		"ram":   ramSize,
	}).Info("cartridge loaded")
	return c, nil
}

func (c *Cartridge) CPURead(addr uint16) byte { return c.mbc.CPURead(addr) }

func (c *Cartridge) CPUWrite(addr uint16, value byte) { c.mbc.CPUWrite(addr, value) }

// ROM returns the raw image.
func (c *Cartridge) ROM() []byte { return c.rom }

// HasBattery reports whether RAM (or the clock) should be persisted.
func (c *Cartridge) HasBattery() bool { return c.Header.HasBattery }

// SaveRAM returns a copy of external RAM, followed by clock data for MBC3 carts
// with a timer. Returns nil when there is nothing to persist.
func (c *Cartridge) SaveRAM() []byte {
	out := append([]byte(nil), c.ram...)
	if ck, ok := c.mbc.(clocked); ok {
		out = append(out, ck.saveClock()...)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// LoadRAM restores external RAM and, when present, trailing clock data.
func (c *Cartridge) LoadRAM(data []byte) {
	n := copy(c.ram, data)
	if ck, ok := c.mbc.(clocked); ok && len(data) > n {
		ck.loadClock(data[n:])
	}
}

// --- Save/Load state ---
type cartState struct {
	RAM  []byte
	Regs []byte
}

func (c *Cartridge) SaveState() []byte {
	var buf bytes.Buffer
	s := cartState{RAM: append([]byte(nil), c.ram...)}
	if st, ok := c.mbc.(stateful); ok {
		s.Regs = st.saveRegs()
	}
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

func (c *Cartridge) LoadState(data []byte) error {
	var s cartState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return err
	}
	copy(c.ram, s.RAM)
	if st, ok := c.mbc.(stateful); ok && len(s.Regs) > 0 {
		return st.loadRegs(s.Regs)
	}
	return nil
}

// encodeRegs and decodeRegs gob a controller's register struct.
func encodeRegs(v any) []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(v)
	return buf.Bytes()
}

func decodeRegs(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

// romByte reads offset off within the given 16KB bank, wrapping the bank
// number to the image size like the address lines of a real cartridge.
// A partial last bank counts as a bank; its missing tail reads 0xFF.
func romByte(rom []byte, bank int, off uint16) byte {
	banks := (len(rom) + 0x3FFF) / 0x4000
	if banks == 0 {
		return 0xFF
	}
	i := (bank%banks)*0x4000 + int(off)
	if i < len(rom) {
		return rom[i]
	}
	return 0xFF
}

// ramIndex maps an A000-BFFF address in the given 8KB bank to an offset in ram,
// or -1 if the RAM is too small.
func ramIndex(ram []byte, bank int, addr uint16) int {
	i := bank*0x2000 + int(addr-0xA000)
	if len(ram) == 0 {
		return -1
	}
	if i >= len(ram) {
		// 2KB parts mirror inside the window
		i %= len(ram)
	}
	return i
}
