package cpu

import "fmt"

// Instruction is one dispatch table entry.
type Instruction struct {
	name string
	fn   func(*CPU)
}

// Name returns the mnemonic, or "" for an unassigned opcode.
func (i Instruction) Name() string { return i.name }

// InstructionSet is the primary table; InstructionSetCB holds the 0xCB-prefixed opcodes.
var (
	InstructionSet   [256]Instruction
	InstructionSetCB [256]Instruction
)

// DefineInstruction installs fn for opcode in the primary table.
func DefineInstruction(opcode uint8, name string, fn func(*CPU)) {
	InstructionSet[opcode] = Instruction{name: name, fn: fn}
}

// DefineInstructionCB installs fn for opcode in the CB table.
func DefineInstructionCB(opcode uint8, name string, fn func(*CPU)) {
	InstructionSetCB[opcode] = Instruction{name: name, fn: fn}
}

// Disassemble names the instruction at the start of code, for tracing tools.
func Disassemble(code []byte) string {
	if len(code) == 0 {
		return ""
	}
	if code[0] == 0xCB && len(code) > 1 {
		return InstructionSetCB[code[1]].name
	}
	if n := InstructionSet[code[0]].name; n != "" {
		return n
	}
	return fmt.Sprintf("DB %02X", code[0])
}

var regNames = [8]string{"B", "C", "D", "E", "H", "L", "(HL)", "A"}

// reg reads operand i in the B,C,D,E,H,L,(HL),A encoding.
func (c *CPU) reg(i byte) byte {
	switch i {
	case 0:
		return c.B
	case 1:
		return c.C
	case 2:
		return c.D
	case 3:
		return c.E
	case 4:
		return c.H
	case 5:
		return c.L
	case 6:
		return c.read8(c.HL.Uint16())
	}
	return c.A
}

func (c *CPU) setReg(i, v byte) {
	switch i {
	case 0:
		c.B = v
	case 1:
		c.C = v
	case 2:
		c.D = v
	case 3:
		c.E = v
	case 4:
		c.H = v
	case 5:
		c.L = v
	case 6:
		c.write8(c.HL.Uint16(), v)
	default:
		c.A = v
	}
}

var pairNames = [4]string{"BC", "DE", "HL", "SP"}

func (c *CPU) pair(i byte) uint16 {
	switch i {
	case 0:
		return c.BC.Uint16()
	case 1:
		return c.DE.Uint16()
	case 2:
		return c.HL.Uint16()
	}
	return c.SP
}

func (c *CPU) setPair(i byte, v uint16) {
	switch i {
	case 0:
		c.BC.SetUint16(v)
	case 1:
		c.DE.SetUint16(v)
	case 2:
		c.HL.SetUint16(v)
	default:
		c.SP = v
	}
}

var condNames = [4]string{"NZ", "Z", "NC", "C"}

func (c *CPU) cond(i byte) bool {
	switch i {
	case 0:
		return !c.flag(flagZ)
	case 1:
		return c.flag(flagZ)
	case 2:
		return !c.flag(flagC)
	}
	return c.flag(flagC)
}
