package joypad

import (
	"bytes"
	"encoding/gob"
)

const AddrP1 uint16 = 0xFF00

const intJoypad = 4

// Group bits, one nibble each. A set bit means pressed.
const (
	Right = 1 << 0
	Left  = 1 << 1
	Up    = 1 << 2
	Down  = 1 << 3

	A      = 1 << 0
	B      = 1 << 1
	Select = 1 << 2
	Start  = 1 << 3
)

// Buttons is one snapshot of the physical controls.
type Buttons struct {
	Dpad    byte // Right, Left, Up, Down
	Actions byte // A, B, Select, Start
}

// Source is polled once per frame for the current button state.
type Source interface {
	Poll() Buttons
}

// SourceFunc adapts a function to Source.
type SourceFunc func() Buttons

func (f SourceFunc) Poll() Buttons { return f() }

// InterruptRequester raises an IF bit.
type InterruptRequester func(bit int)

// Joypad is the P1 register. Bit 4 low selects the directions, bit 5 low
// selects the action buttons; reads are active-low.
type Joypad struct {
	sel     byte
	pressed Buttons
	req     InterruptRequester
}

func New(req InterruptRequester) *Joypad {
	return &Joypad{sel: 0x30, req: req}
}

// Set stores a new snapshot and requests the Joypad interrupt when a button in
// a currently selected group goes from released to pressed.
func (j *Joypad) Set(b Buttons) {
	b.Dpad &= 0x0F
	b.Actions &= 0x0F
	var edges byte
	if j.sel&0x10 == 0 {
		edges |= b.Dpad &^ j.pressed.Dpad
	}
	if j.sel&0x20 == 0 {
		edges |= b.Actions &^ j.pressed.Actions
	}
	j.pressed = b
	if edges != 0 && j.req != nil {
		j.req(intJoypad)
	}
}

// Poll pulls a snapshot from src.
func (j *Joypad) Poll(src Source) {
	if src != nil {
		j.Set(src.Poll())
	}
}

func (j *Joypad) Pressed() Buttons { return j.pressed }

func (j *Joypad) CPURead(addr uint16) byte {
	if addr != AddrP1 {
		return 0xFF
	}
	var in byte
	if j.sel&0x10 == 0 {
		in |= j.pressed.Dpad
	}
	if j.sel&0x20 == 0 {
		in |= j.pressed.Actions
	}
	return 0xC0 | ((j.sel|0x0F)^in)&0x3F
}

func (j *Joypad) CPUWrite(addr uint16, value byte) {
	if addr == AddrP1 {
		j.sel = value & 0x30
	}
}

// --- Save/Load state ---
type joypadState struct {
	Sel     byte
	Pressed Buttons
}

func (j *Joypad) SaveState() []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(joypadState{Sel: j.sel, Pressed: j.pressed})
	return buf.Bytes()
}

func (j *Joypad) LoadState(data []byte) error {
	var s joypadState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return err
	}
	j.sel, j.pressed = s.Sel, s.Pressed
	return nil
}
