package cpu

import "fmt"

func init() {
	defineLoads()
	defineArithmetic()
	defineJumps()
	defineMisc()
	defineCB()
}

func defineLoads() {
	// LD r,r' fills 0x40-0x7F except 0x76, which is HALT.
	for op := 0x40; op < 0x80; op++ {
		if op == 0x76 {
			continue
		}
		dst, src := byte(op>>3)&7, byte(op)&7
		DefineInstruction(uint8(op), fmt.Sprintf("LD %s, %s", regNames[dst], regNames[src]), func(c *CPU) {
			c.setReg(dst, c.reg(src))
		})
	}
	for i := byte(0); i < 8; i++ {
		r := i
		DefineInstruction(0x06+r<<3, fmt.Sprintf("LD %s, d8", regNames[r]), func(c *CPU) {
			c.setReg(r, c.fetch8())
		})
	}
	for i := byte(0); i < 4; i++ {
		p := i
		DefineInstruction(0x01+p<<4, fmt.Sprintf("LD %s, d16", pairNames[p]), func(c *CPU) {
			c.setPair(p, c.fetch16())
		})
	}

	DefineInstruction(0x02, "LD (BC), A", func(c *CPU) { c.write8(c.BC.Uint16(), c.A) })
	DefineInstruction(0x12, "LD (DE), A", func(c *CPU) { c.write8(c.DE.Uint16(), c.A) })
	DefineInstruction(0x0A, "LD A, (BC)", func(c *CPU) { c.A = c.read8(c.BC.Uint16()) })
	DefineInstruction(0x1A, "LD A, (DE)", func(c *CPU) { c.A = c.read8(c.DE.Uint16()) })
	DefineInstruction(0x22, "LD (HL+), A", func(c *CPU) {
		hl := c.HL.Uint16()
		c.write8(hl, c.A)
		c.HL.SetUint16(hl + 1)
	})
	DefineInstruction(0x32, "LD (HL-), A", func(c *CPU) {
		hl := c.HL.Uint16()
		c.write8(hl, c.A)
		c.HL.SetUint16(hl - 1)
	})
	DefineInstruction(0x2A, "LD A, (HL+)", func(c *CPU) {
		hl := c.HL.Uint16()
		c.A = c.read8(hl)
		c.HL.SetUint16(hl + 1)
	})
	DefineInstruction(0x3A, "LD A, (HL-)", func(c *CPU) {
		hl := c.HL.Uint16()
		c.A = c.read8(hl)
		c.HL.SetUint16(hl - 1)
	})

	DefineInstruction(0x08, "LD (a16), SP", func(c *CPU) { c.write16(c.fetch16(), c.SP) })
	DefineInstruction(0xEA, "LD (a16), A", func(c *CPU) { c.write8(c.fetch16(), c.A) })
	DefineInstruction(0xFA, "LD A, (a16)", func(c *CPU) { c.A = c.read8(c.fetch16()) })
	DefineInstruction(0xE0, "LDH (a8), A", func(c *CPU) { c.write8(0xFF00|uint16(c.fetch8()), c.A) })
	DefineInstruction(0xF0, "LDH A, (a8)", func(c *CPU) { c.A = c.read8(0xFF00 | uint16(c.fetch8())) })
	DefineInstruction(0xE2, "LD (C), A", func(c *CPU) { c.write8(0xFF00|uint16(c.C), c.A) })
	DefineInstruction(0xF2, "LD A, (C)", func(c *CPU) { c.A = c.read8(0xFF00 | uint16(c.C)) })

	DefineInstruction(0xF9, "LD SP, HL", func(c *CPU) {
		c.idle()
		c.SP = c.HL.Uint16()
	})
	DefineInstruction(0xF8, "LD HL, SP+e8", func(c *CPU) {
		v := c.addSPe8(c.fetch8())
		c.idle()
		c.HL.SetUint16(v)
	})

	for i, name := range [4]string{"BC", "DE", "HL", "AF"} {
		p := byte(i)
		DefineInstruction(0xC5+p<<4, "PUSH "+name, func(c *CPU) {
			c.push16(c.stackPair(p).Uint16())
		})
		DefineInstruction(0xC1+p<<4, "POP "+name, func(c *CPU) {
			v := c.pop16()
			if p == 3 {
				v &= 0xFFF0
			}
			c.stackPair(p).SetUint16(v)
		})
	}
}

// stackPair maps the PUSH/POP encoding, where index 3 is AF instead of SP.
func (c *CPU) stackPair(i byte) *RegisterPair {
	switch i {
	case 0:
		return c.BC
	case 1:
		return c.DE
	case 2:
		return c.HL
	}
	return c.AF
}

func defineArithmetic() {
	for op := 0x80; op < 0xC0; op++ {
		kind, src := (op>>3)&7, byte(op)&7
		DefineInstruction(uint8(op), fmt.Sprintf("%s A, %s", aluOps[kind].name, regNames[src]), func(c *CPU) {
			c.alu(kind, c.reg(src))
		})
	}
	for k := 0; k < 8; k++ {
		kind := k
		DefineInstruction(uint8(0xC6+kind<<3), aluOps[kind].name+" A, d8", func(c *CPU) {
			c.alu(kind, c.fetch8())
		})
	}
	for i := byte(0); i < 8; i++ {
		r := i
		DefineInstruction(0x04+r<<3, "INC "+regNames[r], func(c *CPU) { c.setReg(r, c.inc8(c.reg(r))) })
		DefineInstruction(0x05+r<<3, "DEC "+regNames[r], func(c *CPU) { c.setReg(r, c.dec8(c.reg(r))) })
	}
	for i := byte(0); i < 4; i++ {
		p := i
		DefineInstruction(0x03+p<<4, "INC "+pairNames[p], func(c *CPU) {
			c.idle()
			c.setPair(p, c.pair(p)+1)
		})
		DefineInstruction(0x0B+p<<4, "DEC "+pairNames[p], func(c *CPU) {
			c.idle()
			c.setPair(p, c.pair(p)-1)
		})
		DefineInstruction(0x09+p<<4, "ADD HL, "+pairNames[p], func(c *CPU) {
			c.idle()
			c.addHL(c.pair(p))
		})
	}
	DefineInstruction(0xE8, "ADD SP, e8", func(c *CPU) {
		v := c.addSPe8(c.fetch8())
		c.idle()
		c.idle()
		c.SP = v
	})
	DefineInstruction(0x27, "DAA", (*CPU).daa)
	DefineInstruction(0x2F, "CPL", func(c *CPU) {
		c.A = ^c.A
		c.F |= flagN | flagH
	})
	DefineInstruction(0x37, "SCF", func(c *CPU) {
		c.setZNHC(c.flag(flagZ), false, false, true)
	})
	DefineInstruction(0x3F, "CCF", func(c *CPU) {
		c.setZNHC(c.flag(flagZ), false, false, !c.flag(flagC))
	})

	// Accumulator rotates always clear Z.
	DefineInstruction(0x07, "RLCA", func(c *CPU) { c.A = c.rlc(c.A); c.F &^= flagZ })
	DefineInstruction(0x0F, "RRCA", func(c *CPU) { c.A = c.rrc(c.A); c.F &^= flagZ })
	DefineInstruction(0x17, "RLA", func(c *CPU) { c.A = c.rl(c.A); c.F &^= flagZ })
	DefineInstruction(0x1F, "RRA", func(c *CPU) { c.A = c.rr(c.A); c.F &^= flagZ })
}

func defineJumps() {
	DefineInstruction(0xC3, "JP a16", func(c *CPU) {
		addr := c.fetch16()
		c.idle()
		c.PC = addr
	})
	DefineInstruction(0xE9, "JP HL", func(c *CPU) { c.PC = c.HL.Uint16() })
	DefineInstruction(0x18, "JR e8", func(c *CPU) { c.jumpRelative(true) })
	DefineInstruction(0xCD, "CALL a16", func(c *CPU) { c.call(true) })
	DefineInstruction(0xC9, "RET", func(c *CPU) {
		c.PC = c.pop16()
		c.idle()
	})
	DefineInstruction(0xD9, "RETI", func(c *CPU) {
		c.PC = c.pop16()
		c.idle()
		c.IME = true
	})

	for i := byte(0); i < 4; i++ {
		cc := i
		DefineInstruction(0xC2+cc<<3, "JP "+condNames[cc]+", a16", func(c *CPU) {
			addr := c.fetch16()
			if c.cond(cc) {
				c.idle()
				c.PC = addr
			}
		})
		DefineInstruction(0x20+cc<<3, "JR "+condNames[cc]+", e8", func(c *CPU) { c.jumpRelative(c.cond(cc)) })
		DefineInstruction(0xC4+cc<<3, "CALL "+condNames[cc]+", a16", func(c *CPU) { c.call(c.cond(cc)) })
		DefineInstruction(0xC0+cc<<3, "RET "+condNames[cc], func(c *CPU) {
			c.idle()
			if c.cond(cc) {
				c.PC = c.pop16()
				c.idle()
			}
		})
	}

	for i := byte(0); i < 8; i++ {
		vec := uint16(i) * 8
		DefineInstruction(0xC7+i<<3, fmt.Sprintf("RST %02XH", vec), func(c *CPU) {
			c.push16(c.PC)
			c.PC = vec
		})
	}
}

func (c *CPU) jumpRelative(taken bool) {
	e := int8(c.fetch8())
	if taken {
		c.idle()
		c.PC = uint16(int32(c.PC) + int32(e))
	}
}

func (c *CPU) call(taken bool) {
	addr := c.fetch16()
	if taken {
		c.push16(c.PC)
		c.PC = addr
	}
}

func defineMisc() {
	DefineInstruction(0x00, "NOP", func(c *CPU) {})
	// STOP skips its padding byte without a bus cycle.
	DefineInstruction(0x10, "STOP", func(c *CPU) { c.PC++ })
	DefineInstruction(0x76, "HALT", func(c *CPU) { c.halted = true })
	DefineInstruction(0xF3, "DI", func(c *CPU) { c.IME = false })
	DefineInstruction(0xFB, "EI", func(c *CPU) { c.IME = true })
	DefineInstruction(0xCB, "PREFIX CB", func(c *CPU) {
		InstructionSetCB[c.fetch8()].fn(c)
	})
}

var cbShiftOps = [8]struct {
	name string
	fn   func(c *CPU, v byte) byte
}{
	{"RLC", (*CPU).rlc},
	{"RRC", (*CPU).rrc},
	{"RL", (*CPU).rl},
	{"RR", (*CPU).rr},
	{"SLA", (*CPU).sla},
	{"SRA", (*CPU).sra},
	{"SWAP", (*CPU).swap},
	{"SRL", (*CPU).srl},
}

func defineCB() {
	for op := 0; op < 0x100; op++ {
		r := byte(op) & 7
		bit := byte(op>>3) & 7
		switch op >> 6 {
		case 0:
			shift := cbShiftOps[bit]
			DefineInstructionCB(uint8(op), shift.name+" "+regNames[r], func(c *CPU) {
				c.setReg(r, shift.fn(c, c.reg(r)))
			})
		case 1:
			DefineInstructionCB(uint8(op), fmt.Sprintf("BIT %d, %s", bit, regNames[r]), func(c *CPU) {
				v := c.reg(r)
				c.setZNHC(v&(1<<bit) == 0, false, true, c.flag(flagC))
			})
		case 2:
			DefineInstructionCB(uint8(op), fmt.Sprintf("RES %d, %s", bit, regNames[r]), func(c *CPU) {
				c.setReg(r, c.reg(r)&^(1<<bit))
			})
		case 3:
			DefineInstructionCB(uint8(op), fmt.Sprintf("SET %d, %s", bit, regNames[r]), func(c *CPU) {
				c.setReg(r, c.reg(r)|1<<bit)
			})
		}
	}
}
