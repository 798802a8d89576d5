package ppu

import (
	"bytes"
	"encoding/gob"
)

const (
	ScreenWidth  = 160
	ScreenHeight = 144
)

// Timing modes as reported in STAT bits 0-1.
const (
	ModeHBlank = 0
	ModeVBlank = 1
	ModeOAM    = 2
	ModeVRAM   = 3
)

// Cycles spent in each mode per line.
const (
	oamCycles    = 80
	vramCycles   = 172
	hblankCycles = 204
	vblankCycles = 456

	LineCycles  = oamCycles + vramCycles + hblankCycles
	FrameCycles = LineCycles * 154

	dmaCycles = 752
)

// Register addresses.
const (
	AddrLCDC uint16 = 0xFF40
	AddrSTAT uint16 = 0xFF41
	AddrSCY  uint16 = 0xFF42
	AddrSCX  uint16 = 0xFF43
	AddrLY   uint16 = 0xFF44
	AddrLYC  uint16 = 0xFF45
	AddrDMA  uint16 = 0xFF46
	AddrBGP  uint16 = 0xFF47
	AddrOBP0 uint16 = 0xFF48
	AddrOBP1 uint16 = 0xFF49
	AddrWY   uint16 = 0xFF4A
	AddrWX   uint16 = 0xFF4B
)

const (
	intVBlank = 0
	intSTAT   = 1
)

// InterruptRequester is a callback signature to request IF bits (0:VBlank, 1:STAT, etc.).
type InterruptRequester func(bit int)

// Memory is the no-cost bus view used as the OAM DMA source.
type Memory interface {
	Read(addr uint16) byte
}

// PPU owns VRAM, OAM and the LCD registers and runs the per-line mode state
// machine. Scanlines are composed when mode 3 ends and handed to the Renderer.
type PPU struct {
	vram [0x2000]byte // 0x8000-0x9FFF
	oam  [0xA0]byte   // 0xFE00-0xFE9F

	lcdc byte // FF40
	stat byte // FF41 (mode bits 0-1, coincidence bit 2, enables bits 3-6)
	scy  byte // FF42
	scx  byte // FF43
	ly   byte // FF44
	lyc  byte // FF45
	dma  byte // FF46
	bgp  byte // FF47
	obp0 byte // FF48
	obp1 byte // FF49
	wy   byte // FF4A
	wx   byte // FF4B

	modeCycles   int
	dmaRemaining int

	mem      Memory
	req      InterruptRequester
	renderer Renderer
	line     Line
}

// New returns a PPU in its power-on state: VBlank on line 153 with a full
// line's worth of cycles already counted, so the first enabled update wraps to line 0.
func New(mem Memory, req InterruptRequester, r Renderer) *PPU {
	return &PPU{
		mem:        mem,
		req:        req,
		renderer:   r,
		stat:       0x85,
		ly:         153,
		modeCycles: vblankCycles,
	}
}

// SetRenderer swaps the scanline consumer.
func (p *PPU) SetRenderer(r Renderer) { p.renderer = r }

func (p *PPU) mode() byte { return p.stat & 0x03 }

func (p *PPU) setMode(m byte) { p.stat = p.stat&^0x03 | m&0x03 }

func (p *PPU) lcdOn() bool { return p.lcdc&0x80 != 0 }

func (p *PPU) request(bit int) {
	if p.req != nil {
		p.req(bit)
	}
}

// statIf raises STAT when the given enable bit is set.
func (p *PPU) statIf(enableBit uint) {
	if p.stat&(1<<enableBit) != 0 {
		p.request(intSTAT)
	}
}

// Update advances the mode state machine by cycles. Nothing but the DMA budget
// moves while the LCD is off.
func (p *PPU) Update(cycles int) {
	if p.dmaRemaining > 0 {
		p.dmaRemaining -= cycles
		if p.dmaRemaining < 0 {
			p.dmaRemaining = 0
		}
	}
	if !p.lcdOn() {
		return
	}
	p.modeCycles += cycles
	for {
		p.step()
		p.checkCoincidence()
		if p.modeCycles < p.threshold() {
			return
		}
	}
}

func (p *PPU) threshold() int {
	switch p.mode() {
	case ModeHBlank:
		return hblankCycles
	case ModeVBlank:
		return vblankCycles
	case ModeOAM:
		return oamCycles
	default:
		return vramCycles
	}
}

// step performs at most one mode transition.
func (p *PPU) step() {
	th := p.threshold()
	if p.modeCycles < th {
		return
	}
	p.modeCycles -= th

	switch p.mode() {
	case ModeHBlank:
		p.ly++
		if p.ly == ScreenHeight {
			p.setMode(ModeVBlank)
			p.request(intVBlank)
			if p.renderer != nil {
				p.renderer.PresentFrame()
			}
			p.statIf(4)
			return
		}
		p.setMode(ModeOAM)
		p.statIf(5)
	case ModeVBlank:
		p.ly++
		if p.ly == 154 {
			p.ly = 0
			p.setMode(ModeOAM)
			p.statIf(5)
		}
	case ModeOAM:
		p.setMode(ModeVRAM)
	case ModeVRAM:
		p.renderScanline()
		p.setMode(ModeHBlank)
		p.statIf(3)
	}
}

// checkCoincidence updates STAT bit 2. While LY == LYC the interrupt is
// requested on every evaluation, not only on the edge.
func (p *PPU) checkCoincidence() {
	if p.ly == p.lyc {
		p.stat |= 0x04
		p.statIf(6)
		return
	}
	p.stat &^= 0x04
}

func (p *PPU) startDMA(v byte) {
	p.dma = v
	p.dmaRemaining = dmaCycles
	if p.mem == nil {
		return
	}
	src := uint16(v) << 8
	for i := uint16(0); i < uint16(len(p.oam)); i++ {
		p.oam[i] = p.mem.Read(src | i)
	}
}

// DMARemaining reports the cycles left in the last OAM transfer. The CPU is
// not stalled while it runs.
func (p *PPU) DMARemaining() int { return p.dmaRemaining }

func (p *PPU) CPURead(addr uint16) byte {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		return p.vram[addr-0x8000]
	case addr >= 0xFE00 && addr <= 0xFE9F:
		return p.oam[addr-0xFE00]
	}
	switch addr {
	case AddrLCDC:
		return p.lcdc
	case AddrSTAT:
		return 0x80 | p.stat
	case AddrSCY:
		return p.scy
	case AddrSCX:
		return p.scx
	case AddrLY:
		return p.ly
	case AddrLYC:
		return p.lyc
	case AddrDMA:
		return p.dma
	case AddrBGP:
		return p.bgp
	case AddrOBP0:
		return p.obp0
	case AddrOBP1:
		return p.obp1
	case AddrWY:
		return p.wy
	case AddrWX:
		return p.wx
	}
	return 0xFF
}

func (p *PPU) CPUWrite(addr uint16, value byte) {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		p.vram[addr-0x8000] = value
		return
	case addr >= 0xFE00 && addr <= 0xFE9F:
		p.oam[addr-0xFE00] = value
		return
	}
	switch addr {
	case AddrLCDC:
		prev := p.lcdc
		p.lcdc = value
		switch {
		case prev&0x80 != 0 && value&0x80 == 0:
			// LCD off: LY and mode reset
			p.ly = 0
			p.modeCycles = 0
			p.setMode(ModeHBlank)
		case prev&0x80 == 0 && value&0x80 != 0:
			p.ly = 0
			p.modeCycles = 0
			p.setMode(ModeOAM)
			p.checkCoincidence()
		}
	case AddrSTAT:
		p.stat = p.stat&0x07 | value&0x78
	case AddrSCY:
		p.scy = value
	case AddrSCX:
		p.scx = value
	case AddrLY:
		// read-only; a write restarts the frame
		p.ly = 0
		p.modeCycles = 0
		if p.lcdOn() {
			p.setMode(ModeOAM)
		}
	case AddrLYC:
		p.lyc = value
	case AddrDMA:
		p.startDMA(value)
	case AddrBGP:
		p.bgp = value
	case AddrOBP0:
		p.obp0 = value
	case AddrOBP1:
		p.obp1 = value
	case AddrWY:
		p.wy = value
	case AddrWX:
		p.wx = value
	}
}

// Read implements VRAMReader over the PPU's own VRAM for the tile fetcher.
func (p *PPU) Read(addr uint16) byte {
	if addr >= 0x8000 && addr <= 0x9FFF {
		return p.vram[addr-0x8000]
	}
	return 0xFF
}

func (p *PPU) LY() byte   { return p.ly }
func (p *PPU) Mode() byte { return p.mode() }

// --- Save/Load state ---
type ppuState struct {
	VRAM         [0x2000]byte
	OAM          [0xA0]byte
	LCDC, STAT   byte
	SCY, SCX     byte
	LY, LYC, DMA byte
	BGP          byte
	OBP0, OBP1   byte
	WY, WX       byte
	ModeCycles   int
	DMARemaining int
}

func (p *PPU) SaveState() []byte {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	s := ppuState{
		VRAM: p.vram, OAM: p.oam,
		LCDC: p.lcdc, STAT: p.stat, SCY: p.scy, SCX: p.scx, LY: p.ly, LYC: p.lyc, DMA: p.dma,
		BGP: p.bgp, OBP0: p.obp0, OBP1: p.obp1, WY: p.wy, WX: p.wx,
		ModeCycles: p.modeCycles, DMARemaining: p.dmaRemaining,
	}
	_ = enc.Encode(s)
	return buf.Bytes()
}

func (p *PPU) LoadState(data []byte) error {
	var s ppuState
	dec := gob.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&s); err != nil {
		return err
	}
	p.vram, p.oam = s.VRAM, s.OAM
	p.lcdc, p.stat, p.scy, p.scx, p.ly, p.lyc, p.dma = s.LCDC, s.STAT, s.SCY, s.SCX, s.LY, s.LYC, s.DMA
	p.bgp, p.obp0, p.obp1, p.wy, p.wx = s.BGP, s.OBP0, s.OBP1, s.WY, s.WX
	p.modeCycles, p.dmaRemaining = s.ModeCycles, s.DMARemaining
	return nil
}
