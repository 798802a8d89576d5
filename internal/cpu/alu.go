package cpu

func (c *CPU) add8(a, b byte) (res byte, z, n, h, cy bool) {
	r := uint16(a) + uint16(b)
	res = byte(r)
	z = res == 0
	h = (a&0x0F)+(b&0x0F) > 0x0F
	cy = r > 0xFF
	return
}

func (c *CPU) adc8(a, b byte, carryIn bool) (res byte, z, n, h, cy bool) {
	ci := byte(0)
	if carryIn {
		ci = 1
	}
	r := uint16(a) + uint16(b) + uint16(ci)
	res = byte(r)
	z = res == 0
	h = (a&0x0F)+(b&0x0F)+ci > 0x0F
	cy = r > 0xFF
	return
}

func (c *CPU) sub8(a, b byte) (res byte, z, n, h, cy bool) {
	res = a - b
	z = res == 0
	n = true
	h = a&0x0F < b&0x0F
	cy = a < b
	return
}

func (c *CPU) sbc8(a, b byte, carryIn bool) (res byte, z, n, h, cy bool) {
	ci := byte(0)
	if carryIn {
		ci = 1
	}
	r := int16(a) - int16(b) - int16(ci)
	res = byte(r)
	z = res == 0
	n = true
	h = int16(a&0x0F)-int16(b&0x0F)-int16(ci) < 0
	cy = r < 0
	return
}

func (c *CPU) and8(a, b byte) (res byte, z, n, h, cy bool) {
	res = a & b
	return res, res == 0, false, true, false
}

func (c *CPU) xor8(a, b byte) (res byte, z, n, h, cy bool) {
	res = a ^ b
	return res, res == 0, false, false, false
}

func (c *CPU) or8(a, b byte) (res byte, z, n, h, cy bool) {
	res = a | b
	return res, res == 0, false, false, false
}

func (c *CPU) cp8(a, b byte) (res byte, z, n, h, cy bool) {
	_, z, n, h, cy = c.sub8(a, b)
	return a, z, n, h, cy
}

// aluOps is indexed by bits 3-5 of the 0x80-0xBF and 0xC6-0xFE opcodes.
var aluOps = [8]struct {
	name string
	fn   func(c *CPU, a, b byte) (byte, bool, bool, bool, bool)
}{
	{"ADD", func(c *CPU, a, b byte) (byte, bool, bool, bool, bool) { return c.add8(a, b) }},
	{"ADC", func(c *CPU, a, b byte) (byte, bool, bool, bool, bool) { return c.adc8(a, b, c.flag(flagC)) }},
	{"SUB", func(c *CPU, a, b byte) (byte, bool, bool, bool, bool) { return c.sub8(a, b) }},
	{"SBC", func(c *CPU, a, b byte) (byte, bool, bool, bool, bool) { return c.sbc8(a, b, c.flag(flagC)) }},
	{"AND", func(c *CPU, a, b byte) (byte, bool, bool, bool, bool) { return c.and8(a, b) }},
	{"XOR", func(c *CPU, a, b byte) (byte, bool, bool, bool, bool) { return c.xor8(a, b) }},
	{"OR", func(c *CPU, a, b byte) (byte, bool, bool, bool, bool) { return c.or8(a, b) }},
	{"CP", func(c *CPU, a, b byte) (byte, bool, bool, bool, bool) { return c.cp8(a, b) }},
}

func (c *CPU) alu(op int, v byte) {
	res, z, n, h, cy := aluOps[op].fn(c, c.A, v)
	c.A = res
	c.setZNHC(z, n, h, cy)
}

// inc8 and dec8 leave C untouched.
func (c *CPU) inc8(v byte) byte {
	r := v + 1
	c.setZNHC(r == 0, false, v&0x0F == 0x0F, c.flag(flagC))
	return r
}

func (c *CPU) dec8(v byte) byte {
	r := v - 1
	c.setZNHC(r == 0, true, v&0x0F == 0, c.flag(flagC))
	return r
}

// addHL keeps Z. H is the carry out of the low byte.
func (c *CPU) addHL(v uint16) {
	hl := c.HL.Uint16()
	sum := uint32(hl) + uint32(v)
	c.setZNHC(c.flag(flagZ), false, (hl&0xFF)+(v&0xFF) > 0xFF, sum > 0xFFFF)
	c.HL.SetUint16(uint16(sum))
}

// addSPe8 is shared by ADD SP,e8 and LD HL,SP+e8; flags come from the
// unsigned low-byte addition.
func (c *CPU) addSPe8(e byte) uint16 {
	sp := c.SP
	res := sp + uint16(int16(int8(e)))
	c.setZNHC(false, false, (sp&0x0F)+uint16(e&0x0F) > 0x0F, (sp&0xFF)+uint16(e) > 0xFF)
	return res
}

func (c *CPU) daa() {
	a := c.A
	corr := byte(0)
	cy := c.flag(flagC)
	if c.flag(flagH) || (!c.flag(flagN) && a&0x0F > 0x09) {
		corr |= 0x06
	}
	if cy || (!c.flag(flagN) && a > 0x99) {
		corr |= 0x60
		cy = true
	}
	if c.flag(flagN) {
		a -= corr
	} else {
		a += corr
	}
	c.A = a
	c.setZNHC(a == 0, c.flag(flagN), false, cy)
}

// Rotates and shifts used by the CB table. The unprefixed accumulator
// rotates reuse them and then clear Z.

func (c *CPU) rlc(v byte) byte {
	r := v<<1 | v>>7
	c.setZNHC(r == 0, false, false, v&0x80 != 0)
	return r
}

func (c *CPU) rrc(v byte) byte {
	r := v>>1 | v<<7
	c.setZNHC(r == 0, false, false, v&0x01 != 0)
	return r
}

func (c *CPU) rl(v byte) byte {
	r := v << 1
	if c.flag(flagC) {
		r |= 0x01
	}
	c.setZNHC(r == 0, false, false, v&0x80 != 0)
	return r
}

func (c *CPU) rr(v byte) byte {
	r := v >> 1
	if c.flag(flagC) {
		r |= 0x80
	}
	c.setZNHC(r == 0, false, false, v&0x01 != 0)
	return r
}

func (c *CPU) sla(v byte) byte {
	r := v << 1
	c.setZNHC(r == 0, false, false, v&0x80 != 0)
	return r
}

func (c *CPU) sra(v byte) byte {
	r := v>>1 | v&0x80
	c.setZNHC(r == 0, false, false, v&0x01 != 0)
	return r
}

func (c *CPU) swap(v byte) byte {
	r := v<<4 | v>>4
	c.setZNHC(r == 0, false, false, false)
	return r
}

func (c *CPU) srl(v byte) byte {
	r := v >> 1
	c.setZNHC(r == 0, false, false, v&0x01 != 0)
	return r
}
