package ui

import (
	"path/filepath"
	"strconv"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

func (a *App) updateMainMenu() {
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowUp) && a.menuIdx > 0 {
		a.menuIdx--
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowDown) && a.menuIdx < len(mainMenu)-1 {
		a.menuIdx++
	}
	if !inpututil.IsKeyJustPressed(ebiten.KeyEnter) {
		return
	}
	switch mainMenu[a.menuIdx] {
	case "Save state":
		a.reportSave(a.saveSlot(a.currentSlot))
	case "Load state":
		a.reportLoad(a.loadSlot(a.currentSlot))
	case "Select slot":
		a.menuMode = "slot"
		a.menuIdx = a.currentSlot
	case "Switch ROM":
		a.romList = a.findROMs()
		a.romSel, a.romOff = 0, 0
		a.menuMode = "rom"
	case "Keybindings":
		a.menuMode = "keys"
		a.keysOff = 0
	case "Reset":
		if err := a.m.Reset(); err != nil {
			a.toast("Reset failed: " + err.Error())
		}
		a.showMenu = false
	case "Close menu":
		a.showMenu = false
	case "Quit":
		a.quit = true
	}
}

// back returns to the main menu on Esc or Backspace.
func (a *App) back() bool {
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) || inpututil.IsKeyJustPressed(ebiten.KeyBackspace) {
		a.menuMode, a.menuIdx = "main", 0
		return true
	}
	return false
}

func (a *App) updateSlotMenu() {
	if a.back() {
		return
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowUp) && a.menuIdx > 0 {
		a.menuIdx--
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowDown) && a.menuIdx < 3 {
		a.menuIdx++
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEnter) {
		a.currentSlot = a.menuIdx
		a.toast("Slot set to " + strconv.Itoa(a.currentSlot+1))
		a.menuMode, a.menuIdx = "main", 0
	}
}

func (a *App) updateRomMenu() {
	if a.back() {
		return
	}
	n := len(a.romList)
	if n == 0 {
		if inpututil.IsKeyJustPressed(ebiten.KeyEnter) {
			a.menuMode, a.menuIdx = "main", 0
		}
		return
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowUp) && a.romSel > 0 {
		a.romSel--
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowDown) && a.romSel < n-1 {
		a.romSel++
	}
	// keep the selection visible
	rows := a.romRows()
	if a.romSel < a.romOff {
		a.romOff = a.romSel
	}
	if a.romSel >= a.romOff+rows {
		a.romOff = a.romSel - rows + 1
	}
	if !inpututil.IsKeyJustPressed(ebiten.KeyEnter) {
		return
	}
	a.switchROM(a.romList[a.romSel])
	a.menuMode, a.menuIdx = "main", 0
	a.showMenu = false
}

// switchROM flushes the current battery file and loads path with its own .sav.
func (a *App) switchROM(path string) {
	a.flushBattery()
	if err := a.m.LoadROMFromFile(path); err != nil {
		a.log.WithError(err).WithField("rom", path).Warn("ROM load failed")
		a.toast("ROM load failed: " + err.Error())
		return
	}
	if err := a.m.LoadBatteryFile(); err != nil {
		a.log.WithError(err).Warn("battery RAM not restored")
	}
	ebiten.SetWindowTitle(windowTitle(a.cfg.Title, a.m))
	a.toast("Loaded ROM: " + filepath.Base(path))
}

func (a *App) updateKeysMenu() {
	if a.back() || inpututil.IsKeyJustPressed(ebiten.KeyEnter) {
		a.menuMode, a.menuIdx = "main", 0
		return
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowUp) && a.keysOff > 0 {
		a.keysOff--
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowDown) {
		a.keysOff++
	}
}

func (a *App) flushBattery() {
	if err := a.m.SaveBatteryFile(); err != nil {
		a.log.WithError(err).Error("battery RAM not saved")
	}
}
