package cart

// romOnly maps up to 32KB flat. Types 0x08/0x09 add an unbanked 8KB RAM.
type romOnly struct {
	rom []byte
	ram []byte
}

func newROMOnly(rom, ram []byte) *romOnly {
	return &romOnly{rom: rom, ram: ram}
}

func (c *romOnly) CPURead(addr uint16) byte {
	switch {
	case addr < 0x8000:
		if int(addr) < len(c.rom) {
			return c.rom[addr]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		if i := ramIndex(c.ram, 0, addr); i >= 0 {
			return c.ram[i]
		}
	}
	return 0xFF
}

// ROM writes are ignored.
func (c *romOnly) CPUWrite(addr uint16, value byte) {
	if addr >= 0xA000 && addr <= 0xBFFF {
		if i := ramIndex(c.ram, 0, addr); i >= 0 {
			c.ram[i] = value
		}
	}
}
