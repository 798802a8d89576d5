package cart

// mbc5 has a 9-bit ROM bank (bank 0 selectable) and up to 16 RAM banks.
type mbc5 struct {
	rom []byte
	ram []byte
	r   mbc5Regs
}

type mbc5Regs struct {
	ROMBank    uint16
	RAMBank    byte
	RAMEnabled bool
}

func newMBC5(rom, ram []byte) *mbc5 {
	return &mbc5{rom: rom, ram: ram, r: mbc5Regs{ROMBank: 1}}
}

func (m *mbc5) CPURead(addr uint16) byte {
	switch {
	case addr < 0x4000:
		return romByte(m.rom, 0, addr)
	case addr < 0x8000:
		return romByte(m.rom, int(m.r.ROMBank), addr-0x4000)
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.r.RAMEnabled {
			return 0xFF
		}
		if i := ramIndex(m.ram, int(m.r.RAMBank), addr); i >= 0 {
			return m.ram[i]
		}
	}
	return 0xFF
}

func (m *mbc5) CPUWrite(addr uint16, value byte) {
	switch {
	case addr < 0x2000:
		m.r.RAMEnabled = value&0x0F == 0x0A
	case addr < 0x3000:
		m.r.ROMBank = m.r.ROMBank&0x100 | uint16(value)
	case addr < 0x4000:
		m.r.ROMBank = m.r.ROMBank&0x0FF | uint16(value&0x01)<<8
	case addr < 0x6000:
		m.r.RAMBank = value & 0x0F
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.r.RAMEnabled {
			return
		}
		if i := ramIndex(m.ram, int(m.r.RAMBank), addr); i >= 0 {
			m.ram[i] = value
		}
	}
}

func (m *mbc5) saveRegs() []byte            { return encodeRegs(m.r) }
func (m *mbc5) loadRegs(data []byte) error { return decodeRegs(data, &m.r) }
