package apu

var dutyTable = [4][8]byte{
	{0, 0, 0, 0, 0, 0, 0, 1}, // 12.5%
	{1, 0, 0, 0, 0, 0, 0, 1}, // 25%
	{1, 0, 0, 0, 0, 1, 1, 1}, // 50%
	{0, 1, 1, 1, 1, 1, 1, 0}, // 75%
}

var noiseDivisors = [8]int{8, 16, 32, 48, 64, 80, 96, 112}

// lengthCounter silences a channel after max-n frame sequencer length clocks.
type lengthCounter struct {
	Count   int
	Enabled bool
}

// load stores the remaining length for a write of n to the length register.
func (l *lengthCounter) load(max, n int) { l.Count = max - n }

func (l *lengthCounter) trigger(max int) {
	if l.Count == 0 {
		l.Count = max
	}
}

// clock reports true when the counter runs out.
func (l *lengthCounter) clock() bool {
	if !l.Enabled || l.Count == 0 {
		return false
	}
	l.Count--
	return l.Count == 0
}

// envelope is the NRx2 volume ramp shared by the squares and noise.
type envelope struct {
	Initial byte
	Up      bool
	Period  byte
	Volume  byte
	Timer   byte
}

func (e *envelope) write(v byte) {
	e.Initial = v >> 4
	e.Up = v&0x08 != 0
	e.Period = v & 0x07
}

// dacOn is false when the upper five bits of NRx2 are clear.
func (e *envelope) dacOn() bool { return e.Initial != 0 || e.Up }

func (e *envelope) trigger() {
	e.Volume = e.Initial
	e.Timer = e.Period
	if e.Timer == 0 {
		e.Timer = 8
	}
}

func (e *envelope) clock() {
	if e.Period == 0 {
		return
	}
	if e.Timer > 0 {
		e.Timer--
	}
	if e.Timer != 0 {
		return
	}
	e.Timer = e.Period
	switch {
	case e.Up && e.Volume < 15:
		e.Volume++
	case !e.Up && e.Volume > 0:
		e.Volume--
	}
}

// square is channels 1 and 2. Only channel 1 clocks its sweep unit.
type square struct {
	On     bool
	Duty   byte
	Freq   uint16
	Timer  int
	Phase  int
	Length lengthCounter
	Env    envelope

	SweepPeriod byte
	SweepDown   bool
	SweepShift  byte
	SweepTimer  byte
	SweepOn     bool
	Shadow      uint16
}

func (s *square) period() int { return int(2048-s.Freq&0x7FF) * 4 }

func (s *square) trigger() {
	s.On = s.Env.dacOn()
	s.Length.trigger(64)
	s.Timer = s.period()
	s.Env.trigger()

	s.Shadow = s.Freq
	s.SweepTimer = s.SweepPeriod
	if s.SweepTimer == 0 {
		s.SweepTimer = 8
	}
	s.SweepOn = s.SweepPeriod != 0 || s.SweepShift != 0
	if s.SweepShift != 0 && s.nextSweep() > 0x7FF {
		s.On = false
	}
}

func (s *square) nextSweep() uint16 {
	delta := s.Shadow >> s.SweepShift
	if s.SweepDown {
		return s.Shadow - delta
	}
	return s.Shadow + delta
}

func (s *square) clockSweep() {
	if !s.SweepOn {
		return
	}
	if s.SweepTimer > 0 {
		s.SweepTimer--
	}
	if s.SweepTimer != 0 {
		return
	}
	s.SweepTimer = s.SweepPeriod
	if s.SweepTimer == 0 {
		s.SweepTimer = 8
		return
	}
	f := s.nextSweep()
	if f > 0x7FF {
		s.On = false
		return
	}
	if s.SweepShift == 0 {
		return
	}
	s.Shadow = f
	s.Freq = f
	if s.nextSweep() > 0x7FF {
		s.On = false
	}
}

func (s *square) tick(cycles int) {
	s.Timer -= cycles
	for s.Timer <= 0 {
		s.Timer += s.period()
		s.Phase = (s.Phase + 1) & 7
	}
}

// output is the 4-bit DAC input.
func (s *square) output() byte {
	if !s.On || dutyTable[s.Duty][s.Phase] == 0 {
		return 0
	}
	return s.Env.Volume
}

// wave is channel 3, playing 32 4-bit samples from wave RAM.
type wave struct {
	On      bool
	DAC     bool
	VolCode byte
	Freq    uint16
	Timer   int
	Pos     int
	Length  lengthCounter
	RAM     [16]byte
}

func (w *wave) period() int { return int(2048-w.Freq&0x7FF) * 2 }

func (w *wave) trigger() {
	w.On = w.DAC
	w.Length.trigger(256)
	w.Timer = w.period()
	w.Pos = 0
}

func (w *wave) tick(cycles int) {
	w.Timer -= cycles
	for w.Timer <= 0 {
		w.Timer += w.period()
		w.Pos = (w.Pos + 1) & 31
	}
}

func (w *wave) output() byte {
	if !w.On || w.VolCode == 0 {
		return 0
	}
	b := w.RAM[w.Pos>>1]
	if w.Pos&1 == 0 {
		b >>= 4
	}
	return (b & 0x0F) >> (w.VolCode - 1)
}

// noise is channel 4, a 15- or 7-bit LFSR.
type noise struct {
	On      bool
	Shift   byte
	Narrow  bool
	Divisor byte
	Timer   int
	LFSR    uint16
	Length  lengthCounter
	Env     envelope
}

func (n *noise) period() int { return noiseDivisors[n.Divisor] << n.Shift }

func (n *noise) trigger() {
	n.On = n.Env.dacOn()
	n.Length.trigger(64)
	n.Timer = n.period()
	n.Env.trigger()
	n.LFSR = 0x7FFF
}

func (n *noise) tick(cycles int) {
	n.Timer -= cycles
	for n.Timer <= 0 {
		n.Timer += n.period()
		x := (n.LFSR ^ n.LFSR>>1) & 1
		n.LFSR = n.LFSR>>1 | x<<14
		if n.Narrow {
			n.LFSR = n.LFSR&^(1<<6) | x<<6
		}
	}
}

func (n *noise) output() byte {
	if !n.On || n.LFSR&1 != 0 {
		return 0
	}
	return n.Env.Volume
}
