package bus

import "testing"

// mem is a flat peripheral used to claim address ranges in tests.
type mem struct {
	data   [0x10000]byte
	writes int
}

func (m *mem) CPURead(addr uint16) byte     { return m.data[addr] }
func (m *mem) CPUWrite(addr uint16, v byte) { m.data[addr] = v; m.writes++ }

func TestBus_WRAM_Echo_HRAM(t *testing.T) {
	b := New(nil)

	b.Write(0xC000, 0x99)
	if got := b.Read(0xC000); got != 0x99 {
		t.Fatalf("WRAM read got %02x, want 99", got)
	}

	// Echo mirrors C000-DDFF in both directions
	b.Write(0xE000, 0x55)
	if got := b.Read(0xC000); got != 0x55 {
		t.Fatalf("echo write did not mirror to WRAM: got %02x", got)
	}
	b.Write(0xDDFF, 0x66)
	if got := b.Read(0xFDFF); got != 0x66 {
		t.Fatalf("echo read got %02x, want 66", got)
	}

	b.Write(0xFF80, 0xAB)
	if got := b.Read(0xFF80); got != 0xAB {
		t.Fatalf("HRAM read got %02x, want AB", got)
	}
	b.Write(0xFFFE, 0xCD)
	if got := b.Read(0xFFFE); got != 0xCD {
		t.Fatalf("HRAM top read got %02x, want CD", got)
	}
}

func TestBus_UnclaimedAddressesAreHarmless(t *testing.T) {
	b := New(nil)
	b.Write(0x4000, 0x12) // nothing registered: bus drops it
	if got := b.Read(0x4000); got != 0xFF {
		t.Fatalf("unclaimed read got %02x, want FF", got)
	}
	if got := b.Read(0xFEA0); got != 0xFF {
		t.Fatalf("unusable region read got %02x, want FF", got)
	}
}

func TestBus_InterruptRegs(t *testing.T) {
	b := New(nil)

	b.Write(AddrIF, 0x3F) // bits 5-7 are not stored
	if got := b.Read(AddrIF); got != 0xE0|0x1F {
		t.Fatalf("IF read got %02x, want FF", got)
	}
	b.Write(AddrIE, 0x1B)
	if got := b.Read(AddrIE); got != 0x1B {
		t.Fatalf("IE read got %02x, want 1B", got)
	}
	if got := b.Pending(); got != 0x1B {
		t.Fatalf("pending got %02x, want 1B", got)
	}

	b.Write(AddrIF, 0)
	var seen []int
	b.OnInterrupt(func(bit int) { seen = append(seen, bit) })
	b.RequestInterrupt(IntTimer)
	b.RequestInterrupt(7) // out of range, ignored
	if got := b.Read(AddrIF) & 0x1F; got != 1<<IntTimer {
		t.Fatalf("IF after timer request got %02x, want 04", got)
	}
	if len(seen) != 1 || seen[0] != IntTimer {
		t.Fatalf("listener calls got %v, want [2]", seen)
	}
}

func TestBus_RegisterRange_LaterWins(t *testing.T) {
	b := New(nil)
	a, c := &mem{}, &mem{}
	b.RegisterRange(0x0000, 0x7FFF, a)
	b.RegisterRange(0x4000, 0x4FFF, c)

	b.Write(0x1000, 0x01)
	b.Write(0x4000, 0x02)
	if a.data[0x1000] != 0x01 || a.writes != 1 {
		t.Fatalf("first peripheral did not receive its write")
	}
	if c.data[0x4000] != 0x02 || a.data[0x4000] != 0 {
		t.Fatalf("overlapping registration did not take ownership")
	}
	if b.Owner(0x4FFF) != Peripheral(c) || b.Owner(0x5000) != Peripheral(a) {
		t.Fatalf("owner table boundaries wrong")
	}
	// the full range still reaches the top byte without wrapping
	b.RegisterRange(0xFF00, 0xFFFF, a)
	if b.Owner(0xFFFF) != Peripheral(a) {
		t.Fatalf("FFFF not registered")
	}
}

func TestBus_BootOverlay(t *testing.T) {
	b := New(nil)
	cartMem := &mem{}
	for i := range cartMem.data[:0x100] {
		cartMem.data[i] = 0xAA
	}
	b.RegisterRange(0x0000, 0x7FFF, cartMem)

	boot := make([]byte, 0x100)
	for i := range boot {
		boot[i] = byte(i)
	}
	b.SetBootROM(boot)

	if got := b.Fetch(0x0050); got != 0x50 {
		t.Fatalf("overlay read got %02x, want 50", got)
	}
	// peripherals see the real owner even while booting
	if got := b.Read(0x0050); got != 0xAA {
		t.Fatalf("direct read got %02x, want AA", got)
	}
	// writes always reach the real peripheral
	b.Write(0x0050, 0x77)
	if cartMem.data[0x0050] != 0x77 {
		t.Fatalf("write under overlay did not reach cartridge")
	}
	if got := b.Fetch(0x0100); got != 0xAA {
		t.Fatalf("read past overlay got %02x, want AA", got)
	}

	b.Write(AddrBootLock, 0x01)
	if b.BootActive() {
		t.Fatalf("boot still active after lock write")
	}
	if got := b.Fetch(0x0050); got != 0x77 {
		t.Fatalf("post-boot read got %02x, want 77", got)
	}

	// clearing the lock bit cannot bring the overlay back
	b.Write(AddrBootLock, 0x00)
	if b.BootActive() || b.Fetch(0x0050) != 0x77 {
		t.Fatalf("overlay reinstated by later write")
	}
	if got := b.Read(AddrBootLock) & 0x01; got != 0x01 {
		t.Fatalf("boot lock bit got %d, want 1", got)
	}
}

func TestBus_BootLockWithoutBitZeroKeepsOverlay(t *testing.T) {
	b := New(nil)
	b.SetBootROM(make([]byte, 0x100))
	b.Write(AddrBootLock, 0xFE)
	if !b.BootActive() {
		t.Fatalf("overlay removed by a write without bit 0")
	}
}

func TestBus_SaveLoadState(t *testing.T) {
	b := New(nil)
	b.Write(0xC123, 0x42)
	b.Write(0xFF90, 0x24)
	b.Write(AddrIE, 0x05)
	b.RequestInterrupt(IntVBlank)

	data := b.SaveState()
	n := New(nil)
	if err := n.LoadState(data); err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if n.Read(0xC123) != 0x42 || n.Read(0xFF90) != 0x24 || n.Pending() != 0x01 {
		t.Fatalf("state not restored: wram=%02x hram=%02x pending=%02x",
			n.Read(0xC123), n.Read(0xFF90), n.Pending())
	}
}
