package emu

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Config contains settings that affect emulation behavior.
type Config struct {
	Logger      logrus.FieldLogger // nil means a warn-level logger on stderr
	Trace       bool               // log every CPU instruction at trace level
	SkipBoot    bool               // start at $0100 with post-boot registers even if a boot image is set
	SampleRate  int                // audio frames per second, 48000 when zero
	SerialOut   io.Writer          // receives bytes shifted out of the link port
	NoSaveFiles bool               // never read or write the .sav file next to the ROM
}

func (c Config) logger() logrus.FieldLogger {
	if c.Logger != nil {
		return c.Logger
	}
	l := logrus.New()
	l.SetLevel(logrus.WarnLevel)
	return l
}
