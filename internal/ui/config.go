package ui

// Config contains window/input/audio related settings.
type Config struct {
	Title         string // window title
	Scale         int    // integer upscaling factor
	AudioBufferMs int    // player buffer, approx
	Mute          bool   // start with sound off
	ROMsDir       string // directory to browse for ROMs
	ShotDir       string // where F12 screenshots go
}

// Defaults fills missing fields with reasonable defaults.
func (c *Config) Defaults() {
	if c.Title == "" {
		c.Title = "gbemu"
	}
	if c.Scale <= 0 {
		c.Scale = 3
	}
	if c.AudioBufferMs <= 0 {
		c.AudioBufferMs = 40
	}
	if c.ROMsDir == "" {
		c.ROMsDir = "roms"
	}
	if c.ShotDir == "" {
		c.ShotDir = "."
	}
}
