package ui

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
)

var mainMenu = []string{
	"Save state",
	"Load state",
	"Select slot",
	"Switch ROM",
	"Keybindings",
	"Reset",
	"Close menu",
	"Quit",
}

func (a *App) drawMainMenu(screen *ebiten.Image) {
	ebitenutil.DebugPrintAt(screen, fmt.Sprintf("Menu (slot %d):", a.currentSlot+1), 10, 10)
	for i, s := range mainMenu {
		prefix := "  "
		if i == a.menuIdx {
			prefix = "> "
		}
		ebitenutil.DebugPrintAt(screen, prefix+s, 10, 24+i*14)
	}
	// quick hints, keep on-screen
	hint := "F5: Save  F9: Load  1-4: Slot  F11: Fullscreen  Esc: Back"
	ebitenutil.DebugPrintAt(screen, a.truncateText(hint, a.maxCharsForText(10)), 10, 24+len(mainMenu)*14+6)
}

func (a *App) drawSlotMenu(screen *ebiten.Image) {
	ebitenutil.DebugPrintAt(screen, "Select Slot:", 10, 10)
	for i := 0; i < 4; i++ {
		state := "[empty]"
		if fi, err := os.Stat(a.statePath(i)); err == nil {
			state = fi.ModTime().Format("2006-01-02 15:04")
		}
		prefix := "  "
		if i == a.menuIdx {
			prefix = "> "
		}
		ebitenutil.DebugPrintAt(screen, fmt.Sprintf("%s%d %s", prefix, i+1, state), 10, 24+i*14)
	}
}

func (a *App) drawRomMenu(screen *ebiten.Image) {
	ebitenutil.DebugPrintAt(screen, a.truncateText("Select ROM (Enter to load, Esc to return)", a.maxCharsForText(10)), 10, 10)
	ebitenutil.DebugPrintAt(screen, a.truncateText("Dir: "+a.cfg.ROMsDir, a.maxCharsForText(10)), 10, 24)
	if len(a.romList) == 0 {
		ebitenutil.DebugPrintAt(screen, "No ROMs found", 10, 40)
		return
	}
	baseY := 40
	end := a.romOff + a.romRows()
	if end > len(a.romList) {
		end = len(a.romList)
	}
	maxChars := a.maxCharsForText(10) - 2 // account for "> " prefix
	for i, p := range a.romList[a.romOff:end] {
		prefix := "  "
		if a.romOff+i == a.romSel {
			prefix = "> "
		}
		ebitenutil.DebugPrintAt(screen, prefix+a.truncateText(filepath.Base(p), maxChars), 10, baseY+i*14)
	}
	// scroll indicators
	if a.romOff > 0 {
		ebitenutil.DebugPrintAt(screen, "^", 2, baseY)
	}
	if end < len(a.romList) {
		ebitenutil.DebugPrintAt(screen, "v", 2, baseY+(a.romRows()-1)*14)
	}
}

// romRows is how many ROM entries fit under the header lines.
func (a *App) romRows() int {
	n := (a.curH - 40) / 14
	if n < 1 {
		n = 1
	}
	return n
}

var keyHelp = []string{
	"Z: A",
	"X: B",
	"Enter: Start",
	"RightShift: Select",
	"Arrows: D-Pad",
	"P: Pause",
	"N: Step (when paused)",
	"Tab: Fast-forward",
	"M: Mute",
	"R: Reset",
	"F5/F9: Save/Load state",
	"1-4: State slot",
	"F12: Screenshot",
	"Esc: Open/Close Menu",
}

func (a *App) drawKeysMenu(screen *ebiten.Image) {
	cursorY := 10
	for _, w := range a.wrapText("Keybindings (Up/Down to scroll, Esc to return)", a.maxCharsForText(10)) {
		ebitenutil.DebugPrintAt(screen, w, 10, cursorY)
		cursorY += 14
	}
	baseY := cursorY + 4
	maxRows := (a.curH - baseY) / 14
	if maxRows < 1 {
		maxRows = 1
	}
	if a.keysOff > len(keyHelp)-1 {
		a.keysOff = len(keyHelp) - 1
	}
	end := a.keysOff + maxRows
	if end > len(keyHelp) {
		end = len(keyHelp)
	}
	for i := a.keysOff; i < end; i++ {
		ebitenutil.DebugPrintAt(screen, a.truncateText(keyHelp[i], a.maxCharsForText(10)), 10, baseY+(i-a.keysOff)*14)
	}
	if a.keysOff > 0 {
		ebitenutil.DebugPrintAt(screen, "^", 2, baseY)
	}
	if end < len(keyHelp) {
		ebitenutil.DebugPrintAt(screen, "v", 2, baseY+(maxRows-1)*14)
	}
}
