package apu

import (
	"bytes"
	"encoding/gob"
)

// CPU frequency in Hz (DMG)
const cpuHz = 4194304

// frame sequencer runs at 512 Hz
const sequencerPeriod = cpuHz / 512

// Register addresses.
const (
	AddrNR10 uint16 = 0xFF10
	AddrNR11 uint16 = 0xFF11
	AddrNR12 uint16 = 0xFF12
	AddrNR13 uint16 = 0xFF13
	AddrNR14 uint16 = 0xFF14
	AddrNR21 uint16 = 0xFF16
	AddrNR22 uint16 = 0xFF17
	AddrNR23 uint16 = 0xFF18
	AddrNR24 uint16 = 0xFF19
	AddrNR30 uint16 = 0xFF1A
	AddrNR31 uint16 = 0xFF1B
	AddrNR32 uint16 = 0xFF1C
	AddrNR33 uint16 = 0xFF1D
	AddrNR34 uint16 = 0xFF1E
	AddrNR41 uint16 = 0xFF20
	AddrNR42 uint16 = 0xFF21
	AddrNR43 uint16 = 0xFF22
	AddrNR44 uint16 = 0xFF23
	AddrNR50 uint16 = 0xFF24
	AddrNR51 uint16 = 0xFF25
	AddrNR52 uint16 = 0xFF26
	AddrWave uint16 = 0xFF30
)

// readMask holds the bits of FF10-FF2F that always read back as 1.
var readMask = [0x20]byte{
	0x80, 0x3F, 0x00, 0xFF, 0xBF, // NR10-NR14
	0xFF, 0x3F, 0x00, 0xFF, 0xBF, // -, NR21-NR24
	0x7F, 0xFF, 0x9F, 0xFF, 0xBF, // NR30-NR34
	0xFF, 0xFF, 0x00, 0x00, 0xBF, // -, NR41-NR44
	0x00, 0x00, 0x70, // NR50-NR52
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
}

// APU is the DMG sound block: two squares (the first with sweep), a wave
// channel and a noise channel, mixed to stereo at the configured sample rate.
// It never affects emulation timing; its only output is the sample ring.
type APU struct {
	power bool
	regs  [0x20]byte // last written FF10-FF2F, for readback

	ch1 square
	ch2 square
	ch3 wave
	ch4 noise

	seqTimer int
	seqStep  int

	sampleRate      int
	cyclesPerSample float64
	sampleAcc       float64
	gain            float64

	out *Ring
}

// New returns a powered APU producing stereo frames at sampleRate.
func New(sampleRate int) *APU {
	if sampleRate <= 0 {
		sampleRate = 48000
	}
	return &APU{
		power:           true,
		seqTimer:        sequencerPeriod,
		sampleRate:      sampleRate,
		cyclesPerSample: float64(cpuHz) / float64(sampleRate),
		gain:            0.25,
		out:             NewRing(16384),
	}
}

// SampleRate is the output rate in frames per second.
func (a *APU) SampleRate() int { return a.sampleRate }

// Output is the ring the mixer writes into.
func (a *APU) Output() *Ring { return a.out }

// SetOutput redirects the mixer into r, letting a ring outlive the APU.
func (a *APU) SetOutput(r *Ring) {
	if r != nil {
		a.out = r
	}
}

func (a *APU) CPURead(addr uint16) byte {
	switch {
	case addr >= AddrWave && addr <= 0xFF3F:
		return a.ch3.RAM[addr-AddrWave]
	case addr == AddrNR52:
		v := byte(0x70)
		if a.power {
			v |= 0x80
		}
		for i, on := range [4]bool{a.ch1.On, a.ch2.On, a.ch3.On, a.ch4.On} {
			if on {
				v |= 1 << uint(i)
			}
		}
		return v
	case addr >= AddrNR10 && addr < AddrWave:
		i := addr - AddrNR10
		return a.regs[i] | readMask[i]
	}
	return 0xFF
}

func (a *APU) CPUWrite(addr uint16, v byte) {
	switch {
	case addr >= AddrWave && addr <= 0xFF3F:
		a.ch3.RAM[addr-AddrWave] = v
		return
	case addr == AddrNR52:
		a.setPower(v&0x80 != 0)
		return
	case addr < AddrNR10 || addr > AddrNR51:
		return
	}
	if !a.power {
		return
	}
	a.regs[addr-AddrNR10] = v

	switch addr {
	case AddrNR10:
		a.ch1.SweepPeriod = v >> 4 & 0x07
		a.ch1.SweepDown = v&0x08 != 0
		a.ch1.SweepShift = v & 0x07
	case AddrNR11:
		a.ch1.Duty = v >> 6
		a.ch1.Length.load(64, int(v&0x3F))
	case AddrNR12:
		a.ch1.Env.write(v)
		if !a.ch1.Env.dacOn() {
			a.ch1.On = false
		}
	case AddrNR13:
		a.ch1.Freq = a.ch1.Freq&0x700 | uint16(v)
	case AddrNR14:
		a.ch1.Freq = a.ch1.Freq&0xFF | uint16(v&0x07)<<8
		a.ch1.Length.Enabled = v&0x40 != 0
		if v&0x80 != 0 {
			a.ch1.trigger()
		}

	case AddrNR21:
		a.ch2.Duty = v >> 6
		a.ch2.Length.load(64, int(v&0x3F))
	case AddrNR22:
		a.ch2.Env.write(v)
		if !a.ch2.Env.dacOn() {
			a.ch2.On = false
		}
	case AddrNR23:
		a.ch2.Freq = a.ch2.Freq&0x700 | uint16(v)
	case AddrNR24:
		a.ch2.Freq = a.ch2.Freq&0xFF | uint16(v&0x07)<<8
		a.ch2.Length.Enabled = v&0x40 != 0
		if v&0x80 != 0 {
			a.ch2.trigger()
		}

	case AddrNR30:
		a.ch3.DAC = v&0x80 != 0
		if !a.ch3.DAC {
			a.ch3.On = false
		}
	case AddrNR31:
		a.ch3.Length.load(256, int(v))
	case AddrNR32:
		a.ch3.VolCode = v >> 5 & 0x03
	case AddrNR33:
		a.ch3.Freq = a.ch3.Freq&0x700 | uint16(v)
	case AddrNR34:
		a.ch3.Freq = a.ch3.Freq&0xFF | uint16(v&0x07)<<8
		a.ch3.Length.Enabled = v&0x40 != 0
		if v&0x80 != 0 {
			a.ch3.trigger()
		}

	case AddrNR41:
		a.ch4.Length.load(64, int(v&0x3F))
	case AddrNR42:
		a.ch4.Env.write(v)
		if !a.ch4.Env.dacOn() {
			a.ch4.On = false
		}
	case AddrNR43:
		a.ch4.Shift = v >> 4
		a.ch4.Narrow = v&0x08 != 0
		a.ch4.Divisor = v & 0x07
	case AddrNR44:
		a.ch4.Length.Enabled = v&0x40 != 0
		if v&0x80 != 0 {
			a.ch4.trigger()
		}
	}
}

// setPower handles NR52 bit 7. Switching off clears every sound register
// but keeps wave RAM.
func (a *APU) setPower(on bool) {
	if a.power == on {
		return
	}
	a.power = on
	if on {
		a.seqTimer = sequencerPeriod
		a.seqStep = 0
		return
	}
	ram := a.ch3.RAM
	a.regs = [0x20]byte{}
	a.ch1, a.ch2, a.ch3, a.ch4 = square{}, square{}, wave{RAM: ram}, noise{}
}

// Update advances the channels and the frame sequencer by cycles and emits
// the stereo frames that fall due.
func (a *APU) Update(cycles int) {
	for cycles > 0 {
		n := cycles
		if n > 4 {
			n = 4
		}
		cycles -= n
		if a.power {
			a.clockSequencer(n)
			a.ch1.tick(n)
			a.ch2.tick(n)
			a.ch3.tick(n)
			a.ch4.tick(n)
		}
		a.sampleAcc += float64(n)
		for a.sampleAcc >= a.cyclesPerSample {
			a.sampleAcc -= a.cyclesPerSample
			a.out.Push(a.mix())
		}
	}
}

// clockSequencer steps the 512 Hz sequencer: length on even steps, sweep on
// 2 and 6, envelopes on 7.
func (a *APU) clockSequencer(cycles int) {
	a.seqTimer -= cycles
	if a.seqTimer > 0 {
		return
	}
	a.seqTimer += sequencerPeriod
	switch a.seqStep {
	case 0, 4:
		a.clockLength()
	case 2, 6:
		a.clockLength()
		a.ch1.clockSweep()
	case 7:
		a.ch1.Env.clock()
		a.ch2.Env.clock()
		a.ch4.Env.clock()
	}
	a.seqStep = (a.seqStep + 1) & 7
}

func (a *APU) clockLength() {
	if a.ch1.Length.clock() {
		a.ch1.On = false
	}
	if a.ch2.Length.clock() {
		a.ch2.On = false
	}
	if a.ch3.Length.clock() {
		a.ch3.On = false
	}
	if a.ch4.Length.clock() {
		a.ch4.On = false
	}
}

// dac maps a 4-bit channel output onto -1..1. A stopped channel is silent.
func dac(v byte, on bool) float64 {
	if !on {
		return 0
	}
	return float64(v)/7.5 - 1
}

// mix routes the channels through NR51 and scales each side by NR50.
func (a *APU) mix() (int16, int16) {
	if !a.power {
		return 0, 0
	}
	ch := [4]float64{
		dac(a.ch1.output(), a.ch1.On),
		dac(a.ch2.output(), a.ch2.On),
		dac(a.ch3.output(), a.ch3.On),
		dac(a.ch4.output(), a.ch4.On),
	}
	nr50 := a.regs[AddrNR50-AddrNR10]
	nr51 := a.regs[AddrNR51-AddrNR10]
	var l, r float64
	for i, v := range ch {
		if nr51&(0x10<<uint(i)) != 0 {
			l += v
		}
		if nr51&(0x01<<uint(i)) != 0 {
			r += v
		}
	}
	l *= float64(nr50>>4&0x07+1) / 8 * a.gain
	r *= float64(nr50&0x07+1) / 8 * a.gain
	return toPCM(l), toPCM(r)
}

func toPCM(v float64) int16 {
	switch {
	case v > 1:
		v = 1
	case v < -1:
		v = -1
	}
	return int16(v * 32767)
}

// --- Save/Load state ---
type apuState struct {
	Power    bool
	Regs     [0x20]byte
	Ch1, Ch2 square
	Ch3      wave
	Ch4      noise
	SeqTimer int
	SeqStep  int
}

func (a *APU) SaveState() []byte {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	_ = enc.Encode(apuState{
		Power: a.power, Regs: a.regs,
		Ch1: a.ch1, Ch2: a.ch2, Ch3: a.ch3, Ch4: a.ch4,
		SeqTimer: a.seqTimer, SeqStep: a.seqStep,
	})
	return buf.Bytes()
}

func (a *APU) LoadState(data []byte) error {
	var s apuState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return err
	}
	a.power, a.regs = s.Power, s.Regs
	a.ch1, a.ch2, a.ch3, a.ch4 = s.Ch1, s.Ch2, s.Ch3, s.Ch4
	a.seqTimer, a.seqStep = s.SeqTimer, s.SeqStep
	a.out.Reset()
	return nil
}
