package ui

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/sirupsen/logrus"

	"github.com/FabianRolfMatthiasNoll/dmgcore/internal/apu"
	"github.com/FabianRolfMatthiasNoll/dmgcore/internal/emu"
	"github.com/FabianRolfMatthiasNoll/dmgcore/internal/ppu"
)

// App presents a Machine in an ebiten window. ebiten calls Update 60 times a
// second; each call runs one emulated frame.
type App struct {
	cfg Config
	m   *emu.Machine
	log logrus.FieldLogger
	kb  *Keyboard

	tex         *ebiten.Image
	shade       *ebiten.Image
	stream      *apu.Stream
	audioPlayer *audio.Player

	paused bool
	fast   bool
	quit   bool

	// overlay/menu
	showMenu    bool
	menuMode    string // "main", "slot", "rom", "keys"
	menuIdx     int
	currentSlot int
	romList     []string
	romSel      int
	romOff      int
	keysOff     int
	curW, curH  int
	toastMsg    string
	toastUntil  time.Time
}

func NewApp(cfg Config, m *emu.Machine, log logrus.FieldLogger) *App {
	cfg.Defaults()
	if log == nil {
		log = logrus.StandardLogger()
	}
	ebiten.SetWindowTitle(windowTitle(cfg.Title, m))
	ebiten.SetWindowSize(ppu.ScreenWidth*cfg.Scale, ppu.ScreenHeight*cfg.Scale)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowClosingHandled(true)
	a := &App{cfg: cfg, m: m, log: log, kb: NewKeyboard(DefaultKeymap), menuMode: "main"}
	m.SetInput(a.kb)
	return a
}

func windowTitle(base string, m *emu.Machine) string {
	if c := m.Cartridge(); c != nil && c.Header.Title != "" {
		return base + " - [" + c.Header.Title + "]"
	}
	return base
}

// Run opens the window and blocks until it is closed or emulation faults.
func (a *App) Run() error {
	if err := a.startAudio(); err != nil {
		a.log.WithError(err).Warn("audio disabled")
	}
	err := ebiten.RunGame(a)
	if err == ebiten.Termination {
		return nil
	}
	return err
}

// Continue reports false once the user has asked to close the window.
func (a *App) Continue() bool { return !a.quit && !ebiten.IsWindowBeingClosed() }

func (a *App) shutdown() {
	if a.audioPlayer != nil {
		a.audioPlayer.Pause()
	}
	a.flushBattery()
}

func (a *App) Update() error {
	if !a.Continue() {
		a.shutdown()
		return ebiten.Termination
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) && (!a.showMenu || a.menuMode == "main") {
		a.showMenu = !a.showMenu
		a.menuMode, a.menuIdx = "main", 0
	}
	a.kb.blocked = a.showMenu
	if a.showMenu {
		switch a.menuMode {
		case "slot":
			a.updateSlotMenu()
		case "rom":
			a.updateRomMenu()
		case "keys":
			a.updateKeysMenu()
		default:
			a.updateMainMenu()
		}
		return nil
	}
	if a.m.Cartridge() == nil {
		return nil
	}
	a.updateHotkeys()

	if a.paused && !inpututil.IsKeyJustPressed(ebiten.KeyN) {
		return nil
	}
	frames := 1
	if a.fast && !a.paused {
		frames = 5
	}
	for i := 0; i < frames; i++ {
		if err := a.m.RunFrame(); err != nil {
			a.shutdown()
			return fmt.Errorf("emulation stopped: %w", err)
		}
	}
	return nil
}

func (a *App) updateHotkeys() {
	if inpututil.IsKeyJustPressed(ebiten.KeyP) {
		a.paused = !a.paused
	}
	if fast := ebiten.IsKeyPressed(ebiten.KeyTab); fast != a.fast {
		a.fast = fast
		a.applyPlayerBufferSize()
		a.setMuted(a.cfg.Mute)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyM) {
		a.setMuted(!a.cfg.Mute)
		a.toast(map[bool]string{true: "Sound off", false: "Sound on"}[a.cfg.Mute])
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyR) {
		if err := a.m.Reset(); err != nil {
			a.toast("Reset failed: " + err.Error())
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF5) {
		a.reportSave(a.saveSlot(a.currentSlot))
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF9) {
		a.reportLoad(a.loadSlot(a.currentSlot))
	}
	for i, k := range []ebiten.Key{ebiten.Key1, ebiten.Key2, ebiten.Key3, ebiten.Key4} {
		if inpututil.IsKeyJustPressed(k) {
			a.currentSlot = i
			a.toast(fmt.Sprintf("Slot %d", i+1))
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF11) {
		ebiten.SetFullscreen(!ebiten.IsFullscreen())
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF12) {
		if path, err := a.saveScreenshot(); err != nil {
			a.toast("Screenshot failed: " + err.Error())
		} else {
			a.toast("Saved " + filepath.Base(path))
		}
	}
}

func (a *App) Draw(screen *ebiten.Image) {
	if a.tex == nil {
		a.tex = ebiten.NewImage(ppu.ScreenWidth, ppu.ScreenHeight)
	}
	a.tex.WritePixels(a.m.Framebuffer())

	// fit to the window, letterboxed
	sx := float64(a.curW) / ppu.ScreenWidth
	sy := float64(a.curH) / ppu.ScreenHeight
	s := sx
	if sy < s {
		s = sy
	}
	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(s, s)
	op.GeoM.Translate((float64(a.curW)-ppu.ScreenWidth*s)/2, (float64(a.curH)-ppu.ScreenHeight*s)/2)
	screen.DrawImage(a.tex, op)

	if a.showMenu {
		if a.shade == nil {
			a.shade = ebiten.NewImage(1, 1)
			a.shade.Fill(color.RGBA{0, 0, 0, 160})
		}
		sop := &ebiten.DrawImageOptions{}
		sop.GeoM.Scale(float64(a.curW), float64(a.curH))
		screen.DrawImage(a.shade, sop)
		switch a.menuMode {
		case "slot":
			a.drawSlotMenu(screen)
		case "rom":
			a.drawRomMenu(screen)
		case "keys":
			a.drawKeysMenu(screen)
		default:
			a.drawMainMenu(screen)
		}
	} else if a.m.Cartridge() == nil {
		ebitenutil.DebugPrintAt(screen, "No ROM loaded (Esc: menu, Switch ROM)", 4, 4)
	} else if a.paused {
		ebitenutil.DebugPrintAt(screen, "PAUSED (P resumes, N steps)", 4, 4)
	}
	if a.toastMsg != "" && time.Now().Before(a.toastUntil) {
		ebitenutil.DebugPrintAt(screen, a.truncateText(a.toastMsg, a.maxCharsForText(4)), 4, a.curH-18)
	}
}

func (a *App) Layout(outW, outH int) (int, int) {
	a.curW, a.curH = outW, outH
	return outW, outH
}

func (a *App) toast(msg string) {
	a.toastMsg = msg
	a.toastUntil = time.Now().Add(2 * time.Second)
}

// statePath is the save-state file for slot, next to the ROM.
func (a *App) statePath(slot int) string {
	base := a.m.ROMPath()
	if base == "" {
		base = "game"
	}
	return strings.TrimSuffix(base, filepath.Ext(base)) + fmt.Sprintf(".ss%d", slot+1)
}

func (a *App) saveSlot(slot int) error { return a.m.SaveStateToFile(a.statePath(slot)) }

func (a *App) loadSlot(slot int) error {
	if _, err := os.Stat(a.statePath(slot)); err != nil {
		return fmt.Errorf("slot %d is empty", slot+1)
	}
	return a.m.LoadStateFromFile(a.statePath(slot))
}

func (a *App) reportSave(err error) {
	if err != nil {
		a.log.WithError(err).Warn("save state")
		a.toast("Save failed: " + err.Error())
		return
	}
	a.toast(fmt.Sprintf("Saved slot %d", a.currentSlot+1))
}

func (a *App) reportLoad(err error) {
	if err != nil {
		a.log.WithError(err).Warn("load state")
		a.toast("Load failed: " + err.Error())
		return
	}
	a.toast(fmt.Sprintf("Loaded slot %d", a.currentSlot+1))
}

// findROMs lists loadable files in the configured directory.
func (a *App) findROMs() []string {
	var out []string
	_ = filepath.WalkDir(a.cfg.ROMsDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".gb", ".bin", ".zip", ".gz", ".7z", ".xz":
			out = append(out, path)
		}
		return nil
	})
	return out
}

// maxCharsForText is how many 6px debug-font glyphs fit right of x.
func (a *App) maxCharsForText(x int) int {
	n := (a.curW - x) / 6
	if n < 1 {
		n = 1
	}
	return n
}

func (a *App) truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

func (a *App) wrapText(s string, n int) []string {
	var lines []string
	var cur string
	for _, w := range strings.Fields(s) {
		switch {
		case cur == "":
			cur = w
		case len(cur)+1+len(w) <= n:
			cur += " " + w
		default:
			lines = append(lines, cur)
			cur = w
		}
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return lines
}
