package cart

// 512 half-bytes of built-in RAM.
const mbc2RAMSize = 512

// mbc2 decodes register writes below 0x4000 by address bit 8: clear selects
// RAM enable, set selects the 4-bit ROM bank.
type mbc2 struct {
	rom []byte
	ram []byte
	r   mbc2Regs
}

type mbc2Regs struct {
	ROMBank    byte
	RAMEnabled bool
}

func newMBC2(rom, ram []byte) *mbc2 {
	return &mbc2{rom: rom, ram: ram, r: mbc2Regs{ROMBank: 1}}
}

func (m *mbc2) CPURead(addr uint16) byte {
	switch {
	case addr < 0x4000:
		return romByte(m.rom, 0, addr)
	case addr < 0x8000:
		return romByte(m.rom, int(m.r.ROMBank), addr-0x4000)
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.r.RAMEnabled || len(m.ram) == 0 {
			return 0xFF
		}
		// upper nibble is open bus
		return m.ram[addr&0x1FF] | 0xF0
	}
	return 0xFF
}

func (m *mbc2) CPUWrite(addr uint16, value byte) {
	switch {
	case addr < 0x4000:
		if addr&0x0100 == 0 {
			m.r.RAMEnabled = value&0x0F == 0x0A
			return
		}
		m.r.ROMBank = value & 0x0F
		if m.r.ROMBank == 0 {
			m.r.ROMBank = 1
		}
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.r.RAMEnabled || len(m.ram) == 0 {
			return
		}
		m.ram[addr&0x1FF] = value & 0x0F
	}
}

func (m *mbc2) saveRegs() []byte            { return encodeRegs(m.r) }
func (m *mbc2) loadRegs(data []byte) error { return decodeRegs(data, &m.r) }
