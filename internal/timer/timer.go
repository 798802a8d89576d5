package timer

import (
	"bytes"
	"encoding/gob"
)

// Register addresses.
const (
	AddrDIV  uint16 = 0xFF04
	AddrTIMA uint16 = 0xFF05
	AddrTMA  uint16 = 0xFF06
	AddrTAC  uint16 = 0xFF07
)

// Periods in CPU cycles.
const (
	DividerPeriod = 256 // 16384 Hz

	period4096   = 1024
	period262144 = 16
	period65536  = 64
	period16384  = 256
)

var tacPeriods = [4]int{period4096, period262144, period65536, period16384}

// InterruptRequester raises an IF bit.
type InterruptRequester func(bit int)

const intTimer = 2

// Counter is an 8-bit register that increments every Period cycles.
type Counter struct {
	Value     byte
	Period    int
	Remaining int
	Running   bool
}

func NewCounter(period int) Counter {
	return Counter{Period: period, Remaining: period, Running: true}
}

// Tick spends cycles and reports whether the value wrapped from 0xFF to 0x00.
// It stops at a wrap so the caller can reload; increments still owed stay in
// Remaining and are applied by the next Tick.
func (c *Counter) Tick(cycles int) bool {
	if !c.Running {
		return false
	}
	c.Remaining -= cycles
	for c.Remaining <= 0 {
		c.Remaining += c.Period
		c.Value++
		if c.Value == 0 {
			return true
		}
	}
	return false
}

// SetPeriod changes the rate, restarting the countdown only when it differs.
func (c *Counter) SetPeriod(period int) {
	if c.Period != period {
		c.Period = period
		c.Remaining = period
	}
}

// Timer owns DIV, TIMA, TMA and TAC.
type Timer struct {
	div  Counter
	tima Counter
	tma  byte
	tac  byte
	req  InterruptRequester
}

func New(req InterruptRequester) *Timer {
	t := &Timer{
		div:  NewCounter(DividerPeriod),
		tima: NewCounter(period4096),
		req:  req,
	}
	t.tima.Running = false
	return t
}

// Update advances both counters. On TIMA overflow TMA is reloaded and the
// Timer interrupt is requested.
func (t *Timer) Update(cycles int) {
	t.div.Tick(cycles)
	if t.tima.Tick(cycles) {
		t.tima.Value = t.tma
		if t.req != nil {
			t.req(intTimer)
		}
	}
}

func (t *Timer) CPURead(addr uint16) byte {
	switch addr {
	case AddrDIV:
		return t.div.Value
	case AddrTIMA:
		return t.tima.Value
	case AddrTMA:
		return t.tma
	case AddrTAC:
		return 0xF8 | t.tac
	}
	return 0xFF
}

func (t *Timer) CPUWrite(addr uint16, value byte) {
	switch addr {
	case AddrDIV:
		t.div.Value = 0
	case AddrTIMA:
		t.tima.Value = value
	case AddrTMA:
		t.tma = value
	case AddrTAC:
		t.tac = value & 0x07
		t.tima.Running = value&0x04 != 0
		t.tima.SetPeriod(tacPeriods[value&0x03])
	}
}

// TIMA exposes the counter for tests and debuggers.
func (t *Timer) TIMA() *Counter { return &t.tima }

// --- Save/Load state ---
type timerState struct {
	DIV, TIMA Counter
	TMA, TAC  byte
}

func (t *Timer) SaveState() []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(timerState{DIV: t.div, TIMA: t.tima, TMA: t.tma, TAC: t.tac})
	return buf.Bytes()
}

func (t *Timer) LoadState(data []byte) error {
	var s timerState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return err
	}
	t.div, t.tima, t.tma, t.tac = s.DIV, s.TIMA, s.TMA, s.TAC
	return nil
}
