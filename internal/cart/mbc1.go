package cart

// mbc1 switches 16KB ROM banks through a 5-bit register plus a shared 2-bit
// register that holds either the upper ROM bank bits (ROM mode) or the RAM
// bank (RAM mode).
type mbc1 struct {
	rom []byte
	ram []byte
	r   mbc1Regs
}

type mbc1Regs struct {
	Lower      byte // 5 bits, 0 written as 1
	Upper      byte // 2 bits
	RAMMode    bool
	RAMEnabled bool
}

func newMBC1(rom, ram []byte) *mbc1 {
	return &mbc1{rom: rom, ram: ram, r: mbc1Regs{Lower: 1}}
}

func (m *mbc1) romBank() int {
	if m.r.RAMMode {
		return int(m.r.Lower)
	}
	return int(m.r.Lower) | int(m.r.Upper)<<5
}

func (m *mbc1) ramBank() int {
	if m.r.RAMMode {
		return int(m.r.Upper)
	}
	return 0
}

func (m *mbc1) CPURead(addr uint16) byte {
	switch {
	case addr < 0x4000:
		return romByte(m.rom, 0, addr)
	case addr < 0x8000:
		return romByte(m.rom, m.romBank(), addr-0x4000)
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.r.RAMEnabled {
			return 0xFF
		}
		if i := ramIndex(m.ram, m.ramBank(), addr); i >= 0 {
			return m.ram[i]
		}
	}
	return 0xFF
}

func (m *mbc1) CPUWrite(addr uint16, value byte) {
	switch {
	case addr < 0x2000:
		m.r.RAMEnabled = value&0x0F == 0x0A
	case addr < 0x4000:
		m.r.Lower = value & 0x1F
		if m.r.Lower == 0 {
			m.r.Lower = 1
		}
	case addr < 0x6000:
		m.r.Upper = value & 0x03
	case addr < 0x8000:
		m.r.RAMMode = value&0x01 != 0
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.r.RAMEnabled {
			return
		}
		if i := ramIndex(m.ram, m.ramBank(), addr); i >= 0 {
			m.ram[i] = value
		}
	}
}

func (m *mbc1) saveRegs() []byte            { return encodeRegs(m.r) }
func (m *mbc1) loadRegs(data []byte) error { return decodeRegs(data, &m.r) }
