package ui

import (
	"github.com/hajimehoshi/ebiten/v2"

	"github.com/FabianRolfMatthiasNoll/dmgcore/internal/emu"
	"github.com/FabianRolfMatthiasNoll/dmgcore/internal/joypad"
)

// Keymap binds host keys to controller buttons. Any key in a list presses the button.
type Keymap struct {
	Up, Down, Left, Right []ebiten.Key
	A, B, Start, Select   []ebiten.Key
}

// DefaultKeymap is arrows, Z/X, Enter and right Shift.
var DefaultKeymap = Keymap{
	Up:     []ebiten.Key{ebiten.KeyArrowUp},
	Down:   []ebiten.Key{ebiten.KeyArrowDown},
	Left:   []ebiten.Key{ebiten.KeyArrowLeft},
	Right:  []ebiten.Key{ebiten.KeyArrowRight},
	A:      []ebiten.Key{ebiten.KeyZ},
	B:      []ebiten.Key{ebiten.KeyX},
	Start:  []ebiten.Key{ebiten.KeyEnter},
	Select: []ebiten.Key{ebiten.KeyShiftRight},
}

// Keyboard is the joypad.Source the machine polls once per frame.
type Keyboard struct {
	keys    Keymap
	blocked bool // menu open: the game sees nothing
}

func NewKeyboard(k Keymap) *Keyboard { return &Keyboard{keys: k} }

func anyPressed(keys []ebiten.Key) bool {
	for _, k := range keys {
		if ebiten.IsKeyPressed(k) {
			return true
		}
	}
	return false
}

func (k *Keyboard) Poll() joypad.Buttons {
	if k.blocked {
		return joypad.Buttons{}
	}
	return emu.Buttons{
		Up:     anyPressed(k.keys.Up),
		Down:   anyPressed(k.keys.Down),
		Left:   anyPressed(k.keys.Left),
		Right:  anyPressed(k.keys.Right),
		A:      anyPressed(k.keys.A),
		B:      anyPressed(k.keys.B),
		Start:  anyPressed(k.keys.Start),
		Select: anyPressed(k.keys.Select),
	}.Snapshot()
}
