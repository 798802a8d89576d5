package emu

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash"
	"github.com/sirupsen/logrus"

	"github.com/FabianRolfMatthiasNoll/dmgcore/internal/apu"
	"github.com/FabianRolfMatthiasNoll/dmgcore/internal/bus"
	"github.com/FabianRolfMatthiasNoll/dmgcore/internal/cart"
	"github.com/FabianRolfMatthiasNoll/dmgcore/internal/cpu"
	"github.com/FabianRolfMatthiasNoll/dmgcore/internal/joypad"
	"github.com/FabianRolfMatthiasNoll/dmgcore/internal/ppu"
	"github.com/FabianRolfMatthiasNoll/dmgcore/internal/romfile"
	"github.com/FabianRolfMatthiasNoll/dmgcore/internal/serial"
	"github.com/FabianRolfMatthiasNoll/dmgcore/internal/timer"
)

var (
	ErrNoCartridge   = errors.New("emu: no cartridge loaded")
	ErrStateMismatch = errors.New("emu: save state belongs to a different ROM")
)

// Buttons is the host-facing controller state.
type Buttons struct {
	A, B, Start, Select   bool
	Up, Down, Left, Right bool
}

// Snapshot packs the buttons into the two P1 groups.
func (b Buttons) Snapshot() joypad.Buttons {
	var s joypad.Buttons
	set := func(dst *byte, on bool, bit byte) {
		if on {
			*dst |= bit
		}
	}
	set(&s.Dpad, b.Right, joypad.Right)
	set(&s.Dpad, b.Left, joypad.Left)
	set(&s.Dpad, b.Up, joypad.Up)
	set(&s.Dpad, b.Down, joypad.Down)
	set(&s.Actions, b.A, joypad.A)
	set(&s.Actions, b.B, joypad.B)
	set(&s.Actions, b.Select, joypad.Select)
	set(&s.Actions, b.Start, joypad.Start)
	return s
}

// Host is the presentation side of the main loop, asked once per frame
// whether to keep running.
type Host interface {
	Continue() bool
}

// HostFunc adapts a function to Host.
type HostFunc func() bool

func (f HostFunc) Continue() bool { return f() }

// Machine wires the CPU, bus and peripherals of one DMG and drives them.
type Machine struct {
	cfg Config
	log logrus.FieldLogger

	// core components
	bus   *bus.Bus
	cpu   *cpu.CPU
	cart  *cart.Cartridge
	ppu   *ppu.PPU
	timer *timer.Timer
	joy   *joypad.Joypad
	ser   *serial.Port
	apu   *apu.APU
	fb    *ppu.FrameBuffer
	audio *apu.Ring

	input   joypad.Source
	romPath string
	bootROM []byte

	frameCycles int
	cycles      uint64
	frames      uint64
}

func New(cfg Config) *Machine {
	return &Machine{
		cfg:   cfg,
		log:   cfg.logger(),
		fb:    ppu.NewFrameBuffer(),
		audio: apu.NewRing(16384),
	}
}

// LoadCartridge builds a fresh machine around rom. When boot holds at least
// 256 bytes (and SkipBoot is off) execution starts in the boot image at $0000;
// otherwise the CPU and I/O registers are set to their post-boot values and
// execution starts at $0100. On error the previous state is left untouched.
func (m *Machine) LoadCartridge(rom []byte, boot []byte) error {
	c, err := cart.Load(rom, m.log)
	if err != nil {
		return fmt.Errorf("load cartridge: %w", err)
	}
	if len(boot) >= 0x100 {
		m.bootROM = append([]byte(nil), boot[:0x100]...)
	} else {
		m.bootROM = nil
	}
	m.wire(c)
	return nil
}

// wire registers every peripheral on a new bus and applies power-on state.
func (m *Machine) wire(c *cart.Cartridge) {
	b := bus.New(m.log)
	m.bus = b
	m.cart = c
	m.ppu = ppu.New(b, b.RequestInterrupt, m.fb)
	m.timer = timer.New(b.RequestInterrupt)
	m.joy = joypad.New(b.RequestInterrupt)
	m.ser = serial.New(m.cfg.SerialOut, b.RequestInterrupt)
	m.apu = apu.New(m.cfg.SampleRate)
	m.apu.SetOutput(m.audio)
	m.audio.Reset()

	b.RegisterRange(0x0000, 0x7FFF, c)
	b.RegisterRange(0xA000, 0xBFFF, c)
	b.RegisterRange(0x8000, 0x9FFF, m.ppu)
	b.RegisterRange(0xFE00, 0xFE9F, m.ppu)
	b.RegisterRange(ppu.AddrLCDC, ppu.AddrWX, m.ppu)
	b.RegisterRange(joypad.AddrP1, joypad.AddrP1, m.joy)
	b.RegisterRange(serial.AddrSB, serial.AddrSC, m.ser)
	b.RegisterRange(timer.AddrDIV, timer.AddrTAC, m.timer)
	b.RegisterRange(apu.AddrNR10, apu.AddrNR14, m.apu)
	b.RegisterRange(apu.AddrNR21, apu.AddrNR34, m.apu)
	b.RegisterRange(apu.AddrNR41, apu.AddrNR52, m.apu)
	b.RegisterRange(apu.AddrWave, 0xFF3F, m.apu)

	m.cpu = cpu.New(b)
	if m.cfg.Trace {
		if tl, ok := m.log.(logrus.Ext1FieldLogger); ok {
			m.cpu.SetTracer(tl)
		}
	}
	m.frameCycles, m.cycles = 0, 0
	m.powerOn()
	if m.bootROM != nil && !m.cfg.SkipBoot {
		b.SetBootROM(m.bootROM)
		m.cpu.SetPC(0x0000)
	} else {
		m.cpu.ResetNoBoot()
		m.applyPostBootIO()
	}
}

// powerOn performs the register writes done when the console is switched on.
// LY needs no write: the PPU starts on line 153.
func (m *Machine) powerOn() {
	b := m.bus
	b.Write(bus.AddrBootLock, 0)
	b.Write(ppu.AddrLCDC, 0)
	b.Write(ppu.AddrSTAT, 0x85)
	b.Write(ppu.AddrSCX, 0)
	b.Write(ppu.AddrSCY, 0)
	b.Write(timer.AddrTIMA, 0)
	b.Write(timer.AddrTMA, 0)
}

// postBootIO is the I/O state the DMG boot image leaves behind.
var postBootIO = []struct {
	addr  uint16
	value byte
}{
	{timer.AddrTIMA, 0x00},
	{timer.AddrTMA, 0x00},
	{timer.AddrTAC, 0x00},
	{apu.AddrNR10, 0x80},
	{apu.AddrNR11, 0xBF},
	{apu.AddrNR12, 0xF3},
	{apu.AddrNR14, 0xBF},
	{apu.AddrNR21, 0x3F},
	{apu.AddrNR22, 0x00},
	{apu.AddrNR24, 0xBF},
	{apu.AddrNR30, 0x7F},
	{apu.AddrNR31, 0xFF},
	{apu.AddrNR32, 0x9F},
	{apu.AddrNR33, 0xBF},
	{apu.AddrNR41, 0xFF},
	{apu.AddrNR42, 0x00},
	{apu.AddrNR43, 0x00},
	{apu.AddrNR44, 0xBF},
	{apu.AddrNR50, 0x77},
	{apu.AddrNR51, 0xF3},
	{apu.AddrNR52, 0xF1},
	{ppu.AddrLCDC, 0x91},
	{ppu.AddrSTAT, 0x85},
	{ppu.AddrSCY, 0x00},
	{ppu.AddrSCX, 0x00},
	{ppu.AddrLYC, 0x00},
	{ppu.AddrBGP, 0xFC},
	{ppu.AddrOBP0, 0xFF},
	{ppu.AddrOBP1, 0xFF},
	{ppu.AddrWY, 0x00},
	{ppu.AddrWX, 0x00},
	{bus.AddrIE, 0x00},
	{bus.AddrBootLock, 0x01},
}

func (m *Machine) applyPostBootIO() {
	for _, r := range postBootIO {
		m.bus.Write(r.addr, r.value)
	}
}

// LoadROMFromFile replaces the current cartridge with a ROM from disk,
// unpacking archives, and keeps the boot image setting.
func (m *Machine) LoadROMFromFile(path string) error {
	data, err := romfile.Load(path)
	if err != nil {
		return err
	}
	if err := m.LoadCartridge(data, m.bootROM); err != nil {
		return err
	}
	m.romPath = path
	return nil
}

// ROMPath returns the currently loaded ROM file path, if any.
func (m *Machine) ROMPath() string { return m.romPath }

// SetBootROM sets the boot image used by the next LoadCartridge or Reset.
func (m *Machine) SetBootROM(data []byte) {
	if len(data) >= 0x100 {
		m.bootROM = append([]byte(nil), data[:0x100]...)
	} else {
		m.bootROM = nil
	}
}

// HasBootROM reports whether a boot image is configured.
func (m *Machine) HasBootROM() bool { return m.bootROM != nil }

// Reset power-cycles the console. Bank registers return to their power-on
// values; cartridge RAM and the clock survive.
func (m *Machine) Reset() error {
	if m.cart == nil {
		return ErrNoCartridge
	}
	c, err := cart.Load(m.cart.ROM(), m.log)
	if err != nil {
		return err
	}
	if ram := m.cart.SaveRAM(); ram != nil {
		c.LoadRAM(ram)
	}
	m.wire(c)
	return nil
}

// Step runs one CPU step (an interrupt dispatch or one instruction) and
// feeds its cycle cost to the PPU, timer and APU, in that order.
func (m *Machine) Step() (int, error) {
	if m.cpu == nil {
		return 0, ErrNoCartridge
	}
	n, err := m.cpu.Step()
	if err != nil {
		var bad *cpu.InvalidOpcodeError
		if errors.As(err, &bad) {
			m.log.WithFields(logrus.Fields{
				"opcode": fmt.Sprintf("%02X", bad.Opcode),
				"pc":     fmt.Sprintf("%04X", bad.PC),
			}).Error("cpu fault")
		}
		return 0, err
	}
	m.cycles += uint64(n)
	m.frameCycles += n
	m.ppu.Update(n)
	m.timer.Update(n)
	m.apu.Update(n)
	return n, nil
}

// RunFrame steps until one video frame's worth of cycles has elapsed, then
// polls the input source.
func (m *Machine) RunFrame() error {
	if m.cpu == nil {
		return ErrNoCartridge
	}
	for m.frameCycles < ppu.FrameCycles {
		if _, err := m.Step(); err != nil {
			return err
		}
	}
	m.frameCycles = 0
	m.frames++
	m.joy.Poll(m.input)
	return nil
}

// Run executes frames until host asks to stop or the CPU faults. A nil host
// runs a single frame.
func (m *Machine) Run(host Host) error {
	for {
		if err := m.RunFrame(); err != nil {
			return err
		}
		if host == nil || !host.Continue() {
			return nil
		}
	}
}

// SetInput sets the source polled at the end of every frame.
func (m *Machine) SetInput(src joypad.Source) { m.input = src }

// SetButtons pushes a controller state immediately.
func (m *Machine) SetButtons(b Buttons) {
	if m.joy != nil {
		m.joy.Set(b.Snapshot())
	}
}

// SetSerialWriter connects w to the link port, for test ROMs that report
// over serial.
func (m *Machine) SetSerialWriter(w io.Writer) {
	m.cfg.SerialOut = w
	if m.ser != nil {
		m.ser.Out = w
	}
}

// Frame is the renderer that holds the last completed frame.
func (m *Machine) Frame() *ppu.FrameBuffer { return m.fb }

// Framebuffer returns the RGBA bytes of the last completed frame.
func (m *Machine) Framebuffer() []byte { return m.fb.Pixels() }

// FrameDigest hashes the last completed frame.
func (m *Machine) FrameDigest() uint64 { return xxhash.Sum64(m.fb.Pixels()) }

// Frames counts RunFrame calls since the machine was created.
func (m *Machine) Frames() uint64 { return m.frames }

// Cycles counts CPU cycles since the last power-on.
func (m *Machine) Cycles() uint64 { return m.cycles }

// Audio returns the APU, nil before a cartridge is loaded.
func (m *Machine) Audio() *apu.APU { return m.apu }

// AudioOutput is the stereo ring every APU of this machine mixes into. It
// stays valid across LoadCartridge and Reset.
func (m *Machine) AudioOutput() *apu.Ring { return m.audio }

// SampleRate is the audio output rate.
func (m *Machine) SampleRate() int {
	if m.cfg.SampleRate > 0 {
		return m.cfg.SampleRate
	}
	return 48000
}

// CPU returns the processor, nil before a cartridge is loaded.
func (m *Machine) CPU() *cpu.CPU { return m.cpu }

// Bus returns the address space, nil before a cartridge is loaded.
func (m *Machine) Bus() *bus.Bus { return m.bus }

// Cartridge returns the loaded cartridge.
func (m *Machine) Cartridge() *cart.Cartridge { return m.cart }

// SaveBattery returns external RAM (and clock) to persist, if the
// cartridge has a battery.
func (m *Machine) SaveBattery() ([]byte, bool) {
	if m.cart == nil || !m.cart.HasBattery() {
		return nil, false
	}
	data := m.cart.SaveRAM()
	return data, len(data) > 0
}

// LoadBattery restores external RAM saved by SaveBattery.
func (m *Machine) LoadBattery(data []byte) bool {
	if m.cart == nil || !m.cart.HasBattery() {
		return false
	}
	m.cart.LoadRAM(data)
	return true
}

// BatteryPath is the .sav file that belongs to a ROM path.
func BatteryPath(romPath string) string {
	return strings.TrimSuffix(romPath, filepath.Ext(romPath)) + ".sav"
}

// SaveBatteryFile writes battery RAM next to the loaded ROM file. Carts
// without a battery, machines not loaded from a file and machines configured
// with NoSaveFiles write nothing.
func (m *Machine) SaveBatteryFile() error {
	if m.cfg.NoSaveFiles {
		return nil
	}
	data, ok := m.SaveBattery()
	if !ok || m.romPath == "" {
		return nil
	}
	path := BatteryPath(m.romPath)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return err
	}
	m.log.WithFields(logrus.Fields{"path": path, "bytes": len(data)}).Debug("battery RAM saved")
	return nil
}

// LoadBatteryFile restores battery RAM saved by SaveBatteryFile. A missing
// file is not an error.
func (m *Machine) LoadBatteryFile() error {
	if m.cfg.NoSaveFiles || m.cart == nil || !m.cart.HasBattery() || m.romPath == "" {
		return nil
	}
	data, err := os.ReadFile(BatteryPath(m.romPath))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	m.LoadBattery(data)
	return nil
}

// --- Save/Load state ---
type machineState struct {
	ROMHash     uint64
	Bus         []byte
	CPU         []byte
	Cart        []byte
	PPU         []byte
	Timer       []byte
	Joypad      []byte
	Serial      []byte
	APU         []byte
	FrameCycles int
}

func (m *Machine) SaveState() []byte {
	if m.cpu == nil {
		return nil
	}
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	_ = enc.Encode(machineState{
		ROMHash:     xxhash.Sum64(m.cart.ROM()),
		Bus:         m.bus.SaveState(),
		CPU:         m.cpu.SaveState(),
		Cart:        m.cart.SaveState(),
		PPU:         m.ppu.SaveState(),
		Timer:       m.timer.SaveState(),
		Joypad:      m.joy.SaveState(),
		Serial:      m.ser.SaveState(),
		APU:         m.apu.SaveState(),
		FrameCycles: m.frameCycles,
	})
	return buf.Bytes()
}

func (m *Machine) LoadState(data []byte) error {
	if m.cpu == nil {
		return ErrNoCartridge
	}
	var s machineState
	dec := gob.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&s); err != nil {
		return fmt.Errorf("decode state: %w", err)
	}
	if s.ROMHash != xxhash.Sum64(m.cart.ROM()) {
		return ErrStateMismatch
	}
	parts := []struct {
		name string
		load func([]byte) error
		data []byte
	}{
		{"bus", m.bus.LoadState, s.Bus},
		{"cpu", m.cpu.LoadState, s.CPU},
		{"cartridge", m.cart.LoadState, s.Cart},
		{"ppu", m.ppu.LoadState, s.PPU},
		{"timer", m.timer.LoadState, s.Timer},
		{"joypad", m.joy.LoadState, s.Joypad},
		{"serial", m.ser.LoadState, s.Serial},
		{"apu", m.apu.LoadState, s.APU},
	}
	for _, p := range parts {
		if err := p.load(p.data); err != nil {
			return fmt.Errorf("restore %s: %w", p.name, err)
		}
	}
	m.frameCycles = s.FrameCycles
	return nil
}

func (m *Machine) SaveStateToFile(path string) error {
	data := m.SaveState()
	if len(data) == 0 {
		return ErrNoCartridge
	}
	return os.WriteFile(path, data, 0644)
}

func (m *Machine) LoadStateFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return m.LoadState(data)
}
