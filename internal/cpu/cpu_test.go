package cpu

import (
	"errors"
	"testing"

	"github.com/FabianRolfMatthiasNoll/dmgcore/internal/bus"
)

// romStub maps a flat, read-only image over 0x0000-0x7FFF.
type romStub []byte

func (r romStub) CPURead(addr uint16) byte {
	if int(addr) < len(r) {
		return r[addr]
	}
	return 0x00
}

func (r romStub) CPUWrite(uint16, byte) {}

func newBusWithROM(rom []byte) *bus.Bus {
	b := bus.New(nil)
	b.RegisterRange(0x0000, 0x7FFF, romStub(rom))
	return b
}

func newCPUWithROM(code []byte) *CPU {
	rom := make([]byte, 0x8000)
	copy(rom, code)
	return New(newBusWithROM(rom))
}

func step(t *testing.T, c *CPU) int {
	t.Helper()
	cyc, err := c.Step()
	if err != nil {
		t.Fatalf("step at %04X: %v", c.PC, err)
	}
	return cyc
}

func TestCPU_NopAndPC(t *testing.T) {
	c := newCPUWithROM([]byte{0x00}) // NOP
	if cycles := step(t, c); cycles != 4 {
		t.Fatalf("NOP cycles got %d want 4", cycles)
	}
	if c.PC != 1 {
		t.Fatalf("PC after NOP got %#04x want 0x0001", c.PC)
	}
}

func TestCPU_RegisterPairsAliasBytes(t *testing.T) {
	c := newCPUWithROM(nil)
	c.BC.SetUint16(0x1234)
	if c.B != 0x12 || c.C != 0x34 {
		t.Fatalf("BC=1234 gave B=%02X C=%02X", c.B, c.C)
	}
	c.L = 0xCD
	c.H = 0xAB
	if got := c.HL.Uint16(); got != 0xABCD {
		t.Fatalf("HL got %04X want ABCD", got)
	}
}

func TestCPU_LD_A_d8_And_XOR_A(t *testing.T) {
	c := newCPUWithROM([]byte{0x3E, 0x12, 0xAF}) // LD A,0x12; XOR A
	if cyc := step(t, c); cyc != 8 || c.A != 0x12 {
		t.Fatalf("LD A,d8 got A=%02x cyc=%d", c.A, cyc)
	}
	step(t, c) // XOR A
	if c.A != 0x00 {
		t.Fatalf("A after XOR got %02x want 00", c.A)
	}
	if c.F != flagZ {
		t.Fatalf("XOR A flags got %02X want 80", c.F)
	}
}

func TestCPU_LD_a16_A_and_LD_A_a16(t *testing.T) {
	// LD A,0x77; LD (0xC000),A; LD A,0x00; LD A,(0xC000)
	prog := []byte{0x3E, 0x77, 0xEA, 0x00, 0xC0, 0x3E, 0x00, 0xFA, 0x00, 0xC0}
	c := newCPUWithROM(prog)
	step(t, c)
	if cyc := step(t, c); cyc != 16 {
		t.Fatalf("LD (a16),A cycles got %d want 16", cyc)
	}
	if a := c.bus.Read(0xC000); a != 0x77 {
		t.Fatalf("WRAM at C000 got %02x want 77", a)
	}
	step(t, c)
	step(t, c)
	if c.A != 0x77 {
		t.Fatalf("A after LD A,(C000) got %02x want 77", c.A)
	}
}

func TestCPU_JP_and_JR(t *testing.T) {
	rom := make([]byte, 0x8000)
	copy(rom, []byte{0xC3, 0x10, 0x00}) // JP 0x0010
	rom[0x0010] = 0x18                  // JR -2, back onto itself
	rom[0x0011] = 0xFE
	c := New(newBusWithROM(rom))
	cycles := step(t, c)
	if cycles != 16 || c.PC != 0x0010 {
		t.Fatalf("JP cycles=%d PC=%#04x want cycles=16 PC=0x0010", cycles, c.PC)
	}
	if cyc := step(t, c); c.PC != 0x0010 || cyc != 12 {
		t.Fatalf("JR -2 PC got %#04x cyc=%d want 0x0010/12", c.PC, cyc)
	}
}

func TestCPU_INC_B_Flags(t *testing.T) {
	c := newCPUWithROM([]byte{0x04, 0x04, 0x05}) // INC B; INC B; DEC B
	c.B = 0x0F
	c.F = flagC
	step(t, c)
	if c.B != 0x10 {
		t.Fatalf("INC B result got %02x want 10", c.B)
	}
	if c.F&flagH == 0 {
		t.Fatalf("INC B should set H flag")
	}
	if c.F&flagC == 0 {
		t.Fatalf("INC B should preserve C flag")
	}
	c.B = 0xFF
	step(t, c)
	if c.B != 0x00 || c.F&flagZ == 0 {
		t.Fatalf("INC B to 0 should set Z flag, B=%02x, F=%02x", c.B, c.F)
	}
	step(t, c) // DEC B: 00 -> FF borrows from bit 4
	if c.B != 0xFF || c.F != flagN|flagH|flagC {
		t.Fatalf("DEC B got B=%02X F=%02X", c.B, c.F)
	}
}

func TestCPU_LD_16bit_and_LDH(t *testing.T) {
	prog := []byte{
		0x21, 0x00, 0xC0, // LD HL, C000
		0x36, 0x5A, // LD (HL), 5A
		0x3E, 0xA7, // LD A, A7
		0xE0, 0x81, // LDH (FF81), A
		0x3E, 0x00, // LD A, 00
		0xF0, 0x80, // LDH A, (FF80)
	}
	c := newCPUWithROM(prog)
	c.Bus().Write(0xFF80, 0x3C)

	step(t, c)
	if cyc := step(t, c); cyc != 12 {
		t.Fatalf("LD (HL),d8 cycles got %d want 12", cyc)
	}
	step(t, c)
	if cyc := step(t, c); cyc != 12 {
		t.Fatalf("LDH (a8),A cycles got %d want 12", cyc)
	}
	step(t, c)
	step(t, c)
	if v := c.Bus().Read(0xC000); v != 0x5A {
		t.Fatalf("WRAM C000 got %02x want 5A", v)
	}
	if v := c.Bus().Read(0xFF81); v != 0xA7 {
		t.Fatalf("LDH (FF81),A wrote %02x want A7", v)
	}
	if c.A != 0x3C {
		t.Fatalf("LDH A,(FF80) got %02X want 3C", c.A)
	}
}

func TestCPU_CALL_RET(t *testing.T) {
	rom := make([]byte, 0x8000)
	rom[0x0000] = 0xCD // CALL 0005
	rom[0x0001] = 0x05
	rom[0x0002] = 0x00
	rom[0x0005] = 0xC9 // RET
	c := New(newBusWithROM(rom))
	if cyc := step(t, c); cyc != 24 || c.PC != 0x0005 {
		t.Fatalf("CALL got PC=%04x cyc=%d want 0005/24", c.PC, cyc)
	}
	if c.SP != 0xFFFC {
		t.Fatalf("SP after CALL got %04X want FFFC", c.SP)
	}
	// high byte pushed first, at the higher address
	if hi, lo := c.bus.Read(0xFFFD), c.bus.Read(0xFFFC); hi != 0x00 || lo != 0x03 {
		t.Fatalf("return address on stack got %02X%02X want 0003", hi, lo)
	}
	retCycles := step(t, c)
	if c.PC != 0x0003 || retCycles != 16 || c.SP != 0xFFFE {
		t.Fatalf("RET did not return to 0003; PC=%04x cyc=%d SP=%04X", c.PC, retCycles, c.SP)
	}
}

func TestCPU_PushPopRoundTrip(t *testing.T) {
	c := newCPUWithROM([]byte{0xC5, 0xD1}) // PUSH BC; POP DE
	c.BC.SetUint16(0xBEEF)
	if cyc := step(t, c); cyc != 16 {
		t.Fatalf("PUSH cycles got %d want 16", cyc)
	}
	if cyc := step(t, c); cyc != 12 {
		t.Fatalf("POP cycles got %d want 12", cyc)
	}
	if c.DE.Uint16() != 0xBEEF || c.SP != 0xFFFE {
		t.Fatalf("POP DE got %04X SP=%04X", c.DE.Uint16(), c.SP)
	}
}

func TestCPU_InterruptServiceAndHALT(t *testing.T) {
	c := newCPUWithROM(nil)
	b := c.Bus()
	c.SetPC(0x0100)

	c.IME = true
	b.Write(bus.AddrIE, 0x01)
	b.Write(bus.AddrIF, 0x01)

	cycles := step(t, c)
	if cycles != 20 {
		t.Fatalf("expected 20 cycles for interrupt service, got %d", cycles)
	}
	if c.PC != 0x0040 {
		t.Fatalf("expected PC at 0x0040 vector, got %04X", c.PC)
	}
	if c.IME {
		t.Fatal("IME should be cleared after interrupt service")
	}
	if b.Read(bus.AddrIF)&0x1F != 0 {
		t.Fatalf("IF bit should be acknowledged, IF=%02X", b.Read(bus.AddrIF))
	}

	// HALT wakes without IME once IF&IE != 0, and nothing is serviced
	c.halted = true
	if cyc := step(t, c); cyc != 4 || !c.halted {
		t.Fatalf("idle HALT step got cyc=%d halted=%v", cyc, c.halted)
	}
	b.Write(bus.AddrIE, 0x02)
	b.Write(bus.AddrIF, 0x02)
	if cyc := step(t, c); cyc != 4 {
		t.Fatalf("halt step without servicing should take 4 cycles, got %d", cyc)
	}
	if c.halted {
		t.Fatal("HALT should end when IF&IE != 0 even with IME=0")
	}
	if c.PC != 0x0040 {
		t.Fatalf("no dispatch expected with IME=0, PC=%04X", c.PC)
	}
}

func TestCPU_InterruptPriority(t *testing.T) {
	c := newCPUWithROM(nil)
	b := c.Bus()
	c.IME = true
	b.Write(bus.AddrIE, 0x1F)
	b.Write(bus.AddrIF, 0x14) // timer and joypad
	step(t, c)
	if c.PC != 0x0050 {
		t.Fatalf("timer should win over joypad, PC=%04X", c.PC)
	}
	if got := b.Read(bus.AddrIF) & 0x1F; got != 0x10 {
		t.Fatalf("only the serviced bit should clear, IF=%02X", got)
	}
}

func TestCPU_RequestInterruptWakesHalt(t *testing.T) {
	c := newCPUWithROM([]byte{0x76, 0x00}) // HALT; NOP
	b := c.Bus()
	step(t, c)
	if !c.Halted() {
		t.Fatal("HALT should suspend the CPU")
	}
	b.RequestInterrupt(bus.IntTimer) // not enabled in IE
	if !c.Halted() {
		t.Fatal("a masked request must not wake HALT")
	}
	b.Write(bus.AddrIE, 1<<bus.IntVBlank)
	b.RequestInterrupt(bus.IntVBlank)
	if c.Halted() {
		t.Fatal("an enabled request should wake HALT immediately")
	}
	step(t, c)
	if c.PC != 0x0002 {
		t.Fatalf("NOP after HALT should run, PC=%04X", c.PC)
	}
}

func TestCPU_DAA_AddAndSub(t *testing.T) {
	rom := make([]byte, 0x8000)
	copy(rom, []byte{0x3E, 0x45, 0xC6, 0x38, 0x27}) // LD A,45; ADD A,38; DAA
	c := New(newBusWithROM(rom))
	step(t, c)
	step(t, c)
	step(t, c)
	if c.A != 0x83 {
		t.Fatalf("DAA after add got A=%02X want 83", c.A)
	}
	if c.F != 0 {
		t.Fatalf("DAA flags unexpected F=%02X", c.F)
	}

	// 0x45 - 0x06 = 0x3F; DAA subtracts 6 because of H
	copy(rom[0x10:], []byte{0x3E, 0x45, 0xD6, 0x06, 0x27})
	c.PC = 0x0010
	step(t, c)
	step(t, c)
	step(t, c)
	if c.A != 0x39 || c.F&flagN == 0 {
		t.Fatalf("DAA after sub got A=%02X F=%02X", c.A, c.F)
	}
}

func TestCPU_EI_TakesEffectImmediately(t *testing.T) {
	c := newCPUWithROM([]byte{0xFB, 0x00}) // EI; NOP
	b := c.Bus()
	b.Write(bus.AddrIE, 0x01)
	b.Write(bus.AddrIF, 0x01)
	step(t, c)
	if !c.IME {
		t.Fatal("IME should be set right after EI")
	}
	if cyc := step(t, c); c.PC != 0x0040 || cyc != 20 {
		t.Fatalf("interrupt not serviced after EI; PC=%04X cyc=%d", c.PC, cyc)
	}
	if hi, lo := b.Read(0xFFFD), b.Read(0xFFFC); hi != 0x00 || lo != 0x01 {
		t.Fatalf("pushed PC got %02X%02X want 0001", hi, lo)
	}
}

func TestCPU_DI(t *testing.T) {
	c := newCPUWithROM([]byte{0xF3})
	c.IME = true
	step(t, c)
	if c.IME {
		t.Fatal("DI should clear IME")
	}
}

func TestCPU_STOP_ConsumesPadding(t *testing.T) {
	c := newCPUWithROM([]byte{0x10, 0x00, 0x00}) // STOP 00; NOP
	if cycles := step(t, c); cycles != 4 {
		t.Fatalf("STOP cycles got %d want 4", cycles)
	}
	if c.PC != 0x0002 {
		t.Fatalf("PC after STOP got %04X want 0002", c.PC)
	}
	step(t, c)
	if c.PC != 0x0003 {
		t.Fatalf("PC after NOP got %04X want 0003", c.PC)
	}
}

func TestCPU_HALT_PendingWithoutIME_DoesNotSuspend(t *testing.T) {
	c := newCPUWithROM([]byte{0x76, 0x00}) // HALT; NOP
	b := c.Bus()
	b.Write(bus.AddrIE, 0x01)
	b.Write(bus.AddrIF, 0x01)
	if cyc := step(t, c); cyc != 4 || !c.halted {
		t.Fatalf("HALT got cyc=%d halted=%v", cyc, c.halted)
	}
	step(t, c) // wake
	step(t, c) // NOP, fetched once
	if c.PC != 0x0002 {
		t.Fatalf("PC after wake and NOP got %04X want 0002", c.PC)
	}
}

func TestCPU_InvalidOpcode(t *testing.T) {
	for _, op := range []byte{0xD3, 0xDB, 0xDD, 0xE3, 0xE4, 0xEB, 0xEC, 0xED, 0xF4, 0xFC, 0xFD} {
		c := newCPUWithROM([]byte{op})
		_, err := c.Step()
		var inv *InvalidOpcodeError
		if !errors.As(err, &inv) {
			t.Fatalf("opcode %02X: got err %v want InvalidOpcodeError", op, err)
		}
		if inv.Opcode != op || inv.PC != 0 {
			t.Fatalf("opcode %02X: error carries %02X at %04X", op, inv.Opcode, inv.PC)
		}
	}
}

func TestCPU_TablesComplete(t *testing.T) {
	invalid := map[int]bool{0xD3: true, 0xDB: true, 0xDD: true, 0xE3: true, 0xE4: true, 0xEB: true,
		0xEC: true, 0xED: true, 0xF4: true, 0xFC: true, 0xFD: true}
	for op := 0; op < 0x100; op++ {
		if (InstructionSet[op].fn == nil) != invalid[op] {
			t.Errorf("primary %02X defined=%v", op, InstructionSet[op].fn != nil)
		}
		if InstructionSetCB[op].fn == nil {
			t.Errorf("CB %02X missing", op)
		}
	}
}

func TestCPU_CB_Prefix_CyclesAndBehavior(t *testing.T) {
	rom := make([]byte, 0x8000)
	i := 0
	emit := func(b ...byte) { copy(rom[i:], b); i += len(b) }
	emit(0x21, 0x00, 0xC0) // LD HL,C000
	emit(0x36, 0x80)       // LD (HL),80
	emit(0xCB, 0x7E)       // BIT 7,(HL)
	emit(0xCB, 0xBE)       // RES 7,(HL)
	emit(0xCB, 0xC6)       // SET 0,(HL)
	emit(0xCB, 0x00)       // RLC B
	emit(0xCB, 0x37)       // SWAP A

	c := New(newBusWithROM(rom))
	b := c.Bus()
	step(t, c)
	step(t, c)
	cyc := step(t, c)
	if cyc != 12 || c.F&flagZ != 0 {
		t.Fatalf("BIT 7,(HL) cycles/Z got cyc=%d F=%02X", cyc, c.F)
	}
	cyc = step(t, c)
	if cyc != 16 || b.Read(0xC000) != 0x00 {
		t.Fatalf("RES 7,(HL) got cyc=%d mem=%02X", cyc, b.Read(0xC000))
	}
	cyc = step(t, c)
	if cyc != 16 || b.Read(0xC000) != 0x01 {
		t.Fatalf("SET 0,(HL) got cyc=%d mem=%02X", cyc, b.Read(0xC000))
	}
	c.B = 0x80
	cyc = step(t, c)
	if cyc != 8 || c.B != 0x01 || c.F&flagC == 0 {
		t.Fatalf("RLC B got cyc=%d B=%02X F=%02X", cyc, c.B, c.F)
	}
	c.A = 0xF1
	step(t, c)
	if c.A != 0x1F || c.F != 0 {
		t.Fatalf("SWAP A got A=%02X F=%02X", c.A, c.F)
	}
}

func TestCPU_CB_Shifts(t *testing.T) {
	cases := []struct {
		op     byte
		in, f  byte
		out, z byte
		carry  bool
	}{
		{0x08, 0x01, 0, 0x80, 0, true},     // RRC B
		{0x10, 0x80, 0, 0x00, flagZ, true}, // RL B
		{0x18, 0x01, flagC, 0x80, 0, true}, // RR B
		{0x20, 0x81, 0, 0x02, 0, true},     // SLA B
		{0x28, 0x81, 0, 0xC0, 0, true},     // SRA B
		{0x38, 0x01, 0, 0x00, flagZ, true}, // SRL B
	}
	for _, tc := range cases {
		c := newCPUWithROM([]byte{0xCB, tc.op})
		c.B = tc.in
		c.F = tc.f
		step(t, c)
		if c.B != tc.out || c.F&flagZ != tc.z || (c.F&flagC != 0) != tc.carry {
			t.Errorf("CB %02X on %02X got B=%02X F=%02X", tc.op, tc.in, c.B, c.F)
		}
	}
}

func TestCPU_ADD_HL_LowByteHalfCarry(t *testing.T) {
	rom := make([]byte, 0x8000)
	i := 0
	emit := func(b ...byte) { copy(rom[i:], b); i += len(b) }
	emit(0x21, 0xFF, 0x00) // LD HL,0x00FF
	emit(0x01, 0x01, 0x00) // LD BC,0x0001
	emit(0x09)             // ADD HL,BC
	emit(0x21, 0x00, 0x0F) // LD HL,0x0F00
	emit(0x01, 0x00, 0x01) // LD BC,0x0100
	emit(0x09)             // ADD HL,BC
	emit(0x21, 0xFF, 0xFF) // LD HL,0xFFFF
	emit(0x01, 0x01, 0x00) // LD BC,0x0001
	emit(0x09)             // ADD HL,BC

	c := New(newBusWithROM(rom))
	step(t, c)
	step(t, c)
	c.F = flagZ
	if cyc := step(t, c); cyc != 8 {
		t.Fatalf("ADD HL,BC cycles got %d want 8", cyc)
	}
	if c.HL.Uint16() != 0x0100 || c.F != flagZ|flagH {
		t.Fatalf("ADD HL,BC #1 HL=%04X F=%02X (expect Z=1 N=0 H=1 C=0)", c.HL.Uint16(), c.F)
	}
	// H comes from the low byte, so a carry out of bit 11 alone leaves it clear
	step(t, c)
	step(t, c)
	c.F = 0
	step(t, c)
	if c.HL.Uint16() != 0x1000 || c.F != 0 {
		t.Fatalf("ADD HL,BC #2 HL=%04X F=%02X (expect no flags)", c.HL.Uint16(), c.F)
	}
	step(t, c)
	step(t, c)
	c.F = 0
	step(t, c)
	if c.HL.Uint16() != 0x0000 || c.F != flagH|flagC {
		t.Fatalf("ADD HL,BC #3 HL=%04X F=%02X (expect Z=0 H=1 C=1)", c.HL.Uint16(), c.F)
	}
}

func TestCPU_16bit_INC_DEC_DoNotAffectFlags(t *testing.T) {
	prog := []byte{0x03, 0x0B, 0x23, 0x2B, 0x13, 0x1B, 0x33, 0x3B}
	c := newCPUWithROM(prog)
	c.F = 0xF0
	for range prog {
		if cyc := step(t, c); cyc != 8 {
			t.Fatalf("16-bit INC/DEC cycles got %d want 8", cyc)
		}
		if c.F != 0xF0 {
			t.Fatalf("16-bit INC/DEC should not change flags; F=%02X", c.F)
		}
	}
	if c.SP != 0xFFFE || c.BC.Uint16() != 0 {
		t.Fatalf("INC/DEC pairs should cancel, SP=%04X BC=%04X", c.SP, c.BC.Uint16())
	}
}

func TestCPU_Conditional_Cycles(t *testing.T) {
	rom := make([]byte, 0x8000)
	copy(rom, []byte{0x20, 0x02, 0x00, 0x00}) // JR NZ,+2
	c := New(newBusWithROM(rom))
	c.F = 0x00
	if cyc := step(t, c); cyc != 12 || c.PC != 0x0004 {
		t.Fatalf("JR NZ taken cycles/PC: cyc=%d PC=%04X", cyc, c.PC)
	}
	c.PC = 0x0000
	c.F = flagZ
	if cyc := step(t, c); cyc != 8 || c.PC != 0x0002 {
		t.Fatalf("JR NZ not-taken cycles/PC: cyc=%d PC=%04X", cyc, c.PC)
	}

	copy(rom[0x10:], []byte{0xD2, 0x34, 0x12}) // JP NC,1234
	c.PC = 0x0010
	c.F = 0x00
	if cyc := step(t, c); cyc != 16 || c.PC != 0x1234 {
		t.Fatalf("JP NC taken cycles/PC: cyc=%d PC=%04X", cyc, c.PC)
	}
	c.PC = 0x0010
	c.F = flagC
	if cyc := step(t, c); cyc != 12 || c.PC != 0x0013 {
		t.Fatalf("JP NC not-taken cycles/PC: cyc=%d PC=%04X", cyc, c.PC)
	}

	copy(rom[0x20:], []byte{0xC4, 0x00, 0x40}) // CALL NZ,4000
	c.PC = 0x0020
	c.F = flagZ
	if cyc := step(t, c); cyc != 12 || c.PC != 0x0023 {
		t.Fatalf("CALL NZ not-taken cycles/PC: cyc=%d PC=%04X", cyc, c.PC)
	}
	c.PC = 0x0020
	c.F = 0x00
	if cyc := step(t, c); cyc != 24 || c.PC != 0x4000 {
		t.Fatalf("CALL NZ taken cycles/PC: cyc=%d PC=%04X", cyc, c.PC)
	}
	rom[0x4000] = 0xD8 // RET C
	c.F = 0x00
	if cyc := step(t, c); cyc != 8 || c.PC != 0x4001 {
		t.Fatalf("RET C not-taken cycles/PC: cyc=%d PC=%04X", cyc, c.PC)
	}
	c.PC = 0x4000
	c.F = flagC
	if cyc := step(t, c); cyc != 20 || c.PC != 0x0023 {
		t.Fatalf("RET C taken cycles/PC: cyc=%d PC=%04X", cyc, c.PC)
	}
}

func TestCPU_RST(t *testing.T) {
	rom := make([]byte, 0x8000)
	rom[0x0200] = 0xEF // RST 28H
	c := New(newBusWithROM(rom))
	c.PC = 0x0200
	if cyc := step(t, c); cyc != 16 || c.PC != 0x0028 {
		t.Fatalf("RST 28H got cyc=%d PC=%04X", cyc, c.PC)
	}
	if hi, lo := c.bus.Read(0xFFFD), c.bus.Read(0xFFFC); hi != 0x02 || lo != 0x01 {
		t.Fatalf("RST pushed %02X%02X want 0201", hi, lo)
	}
}

func TestCPU_ADC_SBC_HalfCarry(t *testing.T) {
	c := newCPUWithROM([]byte{0x3E, 0x0F, 0xCE, 0x00}) // LD A,0F; ADC A,00
	c.F = flagC
	step(t, c)
	step(t, c)
	if c.A != 0x10 || c.F&flagH == 0 || c.F&flagC != 0 {
		t.Fatalf("ADC half-carry failed: A=%02X F=%02X", c.A, c.F)
	}
	c2 := newCPUWithROM([]byte{0x3E, 0x10, 0xDE, 0x01}) // LD A,10; SBC A,01
	step(t, c2)
	step(t, c2)
	if c2.A != 0x0F || c2.F&flagH == 0 || c2.F&flagC != 0 {
		t.Fatalf("SBC half-borrow failed: A=%02X F=%02X", c2.A, c2.F)
	}
	c3 := newCPUWithROM([]byte{0x3E, 0x00, 0xDE, 0x01})
	step(t, c3)
	step(t, c3)
	if c3.A != 0xFF || c3.F&flagH == 0 || c3.F&flagC == 0 {
		t.Fatalf("SBC borrow flags failed: A=%02X F=%02X", c3.A, c3.F)
	}
	c4 := newCPUWithROM([]byte{0x3E, 0x3C, 0xFE, 0x3C}) // LD A,3C; CP 3C
	step(t, c4)
	step(t, c4)
	if c4.A != 0x3C || c4.F != flagZ|flagN {
		t.Fatalf("CP should only set flags: A=%02X F=%02X", c4.A, c4.F)
	}
}

// wantALU8 computes the documented result and flags of ADD/ADC/SUB/SBC/CP A,n.
func wantALU8(op, a, b byte, carryIn bool) (byte, byte) {
	cin := 0
	if carryIn && (op == 0xCE || op == 0xDE) {
		cin = 1
	}
	var r int
	var f byte
	switch op {
	case 0xC6, 0xCE:
		r = int(a) + int(b) + cin
		if int(a&0xF)+int(b&0xF)+cin > 0xF {
			f |= flagH
		}
		if r > 0xFF {
			f |= flagC
		}
	default:
		r = int(a) - int(b) - cin
		f |= flagN
		if int(a&0xF)-int(b&0xF)-cin < 0 {
			f |= flagH
		}
		if r < 0 {
			f |= flagC
		}
	}
	res := byte(r)
	if res == 0 {
		f |= flagZ
	}
	if op == 0xFE {
		res = a
	}
	return res, f
}

func TestCPU_ALU8_AllOperands(t *testing.T) {
	c := New(bus.New(nil))
	for _, op := range []byte{0xC6, 0xCE, 0xD6, 0xDE, 0xFE} {
		for a := 0; a < 0x100; a++ {
			for b := 0; b < 0x100; b++ {
				for _, carry := range []bool{false, true} {
					c.bus.Write(0xC000, op)
					c.bus.Write(0xC001, byte(b))
					c.PC = 0xC000
					c.A = byte(a)
					c.F = 0
					if carry {
						c.F = flagC
					}
					step(t, c)
					wantA, wantF := wantALU8(op, byte(a), byte(b), carry)
					if c.A != wantA || c.F != wantF {
						t.Fatalf("op %02X a=%02X b=%02X c=%v: got A=%02X F=%02X want A=%02X F=%02X",
							op, a, b, carry, c.A, c.F, wantA, wantF)
					}
				}
			}
		}
	}
}

func TestCPU_LD_HL_SP_plus_r8_and_ADD_SP_r8_Flags(t *testing.T) {
	c := newCPUWithROM([]byte{
		0x31, 0x0F, 0xFF, // LD SP,FF0F
		0xF8, 0xFF, // LD HL,SP-1
		0xE8, 0x01, // ADD SP,+1
		0xE8, 0xFE, // ADD SP,-2
	})
	step(t, c)
	if cyc := step(t, c); cyc != 12 || c.HL.Uint16() != 0xFF0E || c.F != flagH|flagC {
		t.Fatalf("LD HL,SP-1 got cyc=%d HL=%04X F=%02X", cyc, c.HL.Uint16(), c.F)
	}
	if cyc := step(t, c); cyc != 16 || c.SP != 0xFF10 || c.F != flagH {
		t.Fatalf("ADD SP,+1 got cyc=%d SP=%04X F=%02X", cyc, c.SP, c.F)
	}
	step(t, c)
	if c.SP != 0xFF0E || c.F != flagC {
		t.Fatalf("ADD SP,-2 flags/SP wrong: SP=%04X F=%02X", c.SP, c.F)
	}
}

func TestCPU_POP_AF_MasksFlagsLowNibble(t *testing.T) {
	c := newCPUWithROM([]byte{0xF5, 0xF1}) // PUSH AF; POP AF
	b := c.Bus()
	c.A = 0x12
	c.F = 0xF0
	step(t, c)
	b.Write(c.SP, 0x3F)   // F
	b.Write(c.SP+1, 0x12) // A
	step(t, c)
	if c.A != 0x12 || c.F != 0x30 {
		t.Fatalf("POP AF got A=%02X F=%02X want 12/30", c.A, c.F)
	}
}

func TestCPU_UnprefixedRotates_ClearZ(t *testing.T) {
	c := newCPUWithROM([]byte{0x07, 0x0F, 0x17, 0x1F}) // RLCA, RRCA, RLA, RRA
	c.A = 0x00
	c.F = flagZ
	step(t, c)
	if c.F&flagZ != 0 {
		t.Fatalf("RLCA should clear Z, F=%02X", c.F)
	}
	c.F = flagZ
	step(t, c)
	if c.F&flagZ != 0 {
		t.Fatalf("RRCA should clear Z, F=%02X", c.F)
	}
	c.F = flagZ | flagC
	step(t, c)
	if c.F&flagZ != 0 || c.A != 0x01 {
		t.Fatalf("RLA should clear Z and rotate carry in, A=%02X F=%02X", c.A, c.F)
	}
	c.F = flagC
	step(t, c)
	if c.F&flagZ != 0 || c.A != 0x80 || c.F&flagC == 0 {
		t.Fatalf("RRA got A=%02X F=%02X", c.A, c.F)
	}
}

func TestCPU_CCF_SCF_CPL_Flags(t *testing.T) {
	c := newCPUWithROM([]byte{0x3E, 0x00, 0x37, 0x3F, 0x2F}) // LD A,00; SCF; CCF; CPL
	c.F = flagZ
	step(t, c)
	step(t, c)
	if c.F != flagZ|flagC {
		t.Fatalf("SCF flags unexpected F=%02X", c.F)
	}
	step(t, c)
	if c.F != flagZ {
		t.Fatalf("CCF flags unexpected F=%02X", c.F)
	}
	step(t, c)
	if c.A != 0xFF || c.F != flagZ|flagN|flagH {
		t.Fatalf("CPL got A=%02X F=%02X", c.A, c.F)
	}
}

func TestCPU_RETI_EnablesIME_AndCycles(t *testing.T) {
	rom := make([]byte, 0x8000)
	rom[0x0040] = 0xD9 // RETI
	c := New(newBusWithROM(rom))
	b := c.Bus()
	c.SetPC(0x0100)
	c.IME = true
	b.Write(bus.AddrIE, 0x01)
	b.Write(bus.AddrIF, 0x01)
	if cyc := step(t, c); cyc != 20 || c.PC != 0x0040 {
		t.Fatalf("Interrupt service failed: cyc=%d PC=%04X", cyc, c.PC)
	}
	if cyc := step(t, c); cyc != 16 {
		t.Fatalf("RETI cycles got %d want 16", cyc)
	}
	if !c.IME || c.PC != 0x0100 {
		t.Fatalf("RETI should return to 0100 with IME set, PC=%04X IME=%v", c.PC, c.IME)
	}
}

func TestCPU_LD_r_from_HL_CyclesAndBehavior(t *testing.T) {
	rom := make([]byte, 0x8000)
	i := 0
	for _, op := range []byte{0x46, 0x4E, 0x56, 0x5E, 0x66, 0x6E, 0x7E} {
		copy(rom[i:], []byte{0x21, 0x00, 0xC0, op}) // LD HL,C000; LD r,(HL)
		i += 4
	}
	c := New(newBusWithROM(rom))
	c.Bus().Write(0xC000, 0x5A)

	dst := []*byte{&c.B, &c.C, &c.D, &c.E, &c.H, &c.L, &c.A}
	for n, r := range dst {
		if cyc := step(t, c); cyc != 12 || c.HL.Uint16() != 0xC000 {
			t.Fatalf("#%d LD HL,d16 failed: cyc=%d HL=%04X", n, cyc, c.HL.Uint16())
		}
		if cyc := step(t, c); cyc != 8 || *r != 0x5A {
			t.Fatalf("#%d LD r,(HL) cyc=%d r=%02X", n, cyc, *r)
		}
	}
}

func TestCPU_BootOverlayOnFetch(t *testing.T) {
	rom := make([]byte, 0x8000)
	rom[0] = 0x00 // NOP in the cartridge
	b := newBusWithROM(rom)
	boot := make([]byte, 0x100)
	boot[0] = 0x3E // LD A,42 in the firmware
	boot[1] = 0x42
	b.SetBootROM(boot)
	c := New(b)
	step(t, c)
	if c.A != 0x42 || c.PC != 2 {
		t.Fatalf("fetch should see firmware: A=%02X PC=%04X", c.A, c.PC)
	}
}

func TestCPU_ResetNoBoot(t *testing.T) {
	c := newCPUWithROM(nil)
	c.ResetNoBoot()
	if c.AF.Uint16() != 0x01B0 || c.BC.Uint16() != 0x0013 || c.DE.Uint16() != 0x00D8 ||
		c.HL.Uint16() != 0x014D || c.SP != 0xFFFE || c.PC != 0x0100 {
		t.Fatalf("post-boot registers AF=%04X BC=%04X DE=%04X HL=%04X SP=%04X PC=%04X",
			c.AF.Uint16(), c.BC.Uint16(), c.DE.Uint16(), c.HL.Uint16(), c.SP, c.PC)
	}
}

func TestCPU_SaveLoadState(t *testing.T) {
	c := newCPUWithROM(nil)
	c.ResetNoBoot()
	c.IME = true
	c.halted = true
	data := c.SaveState()

	d := newCPUWithROM(nil)
	if err := d.LoadState(data); err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if d.AF.Uint16() != 0x01B0 || d.PC != 0x0100 || !d.IME || !d.Halted() {
		t.Fatalf("restored AF=%04X PC=%04X IME=%v halted=%v", d.AF.Uint16(), d.PC, d.IME, d.Halted())
	}
	if err := d.LoadState([]byte("junk")); err == nil {
		t.Fatal("LoadState should reject garbage")
	}
}

func TestDisassemble(t *testing.T) {
	cases := map[string][]byte{
		"LD A, d8":    {0x3E, 0x00},
		"BIT 7, (HL)": {0xCB, 0x7E},
		"RST 38H":     {0xFF},
		"DB D3":       {0xD3},
	}
	for want, code := range cases {
		if got := Disassemble(code); got != want {
			t.Errorf("Disassemble(% X) got %q want %q", code, got, want)
		}
	}
}
