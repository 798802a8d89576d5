package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-audio/wav"
	"github.com/sirupsen/logrus"

	"github.com/FabianRolfMatthiasNoll/dmgcore/internal/emu"
	"github.com/FabianRolfMatthiasNoll/dmgcore/internal/ui"
)

type CLIFlags struct {
	ROMPath  string
	BootROM  string
	SkipBoot bool
	Scale    int
	Title    string
	Trace    bool
	Mute     bool
	SaveRAM  bool // persist battery RAM next to ROM (.sav)
	ROMsDir  string

	// headless
	Headless bool
	Frames   int
	PNGOut   string
	WAVOut   string
	Expect   string // expected framebuffer xxhash hex
}

func parseFlags() CLIFlags {
	var f CLIFlags
	flag.StringVar(&f.ROMPath, "rom", "", "path to ROM (.gb, .zip, .gz, .7z, .xz)")
	flag.StringVar(&f.BootROM, "bootrom", "", "optional DMG boot ROM")
	flag.BoolVar(&f.SkipBoot, "skipboot", false, "start at 0x0100 with post-boot registers even if a boot ROM is given")
	flag.IntVar(&f.Scale, "scale", 3, "window scale")
	flag.StringVar(&f.Title, "title", "gbemu", "window title")
	flag.BoolVar(&f.Trace, "trace", false, "CPU trace log")
	flag.BoolVar(&f.Mute, "mute", false, "start with sound off")
	flag.BoolVar(&f.SaveRAM, "save", true, "persist battery RAM to ROM.sav on exit and load on start")
	flag.StringVar(&f.ROMsDir, "romsdir", "roms", "directory listed by the Switch ROM menu")

	// headless options
	flag.BoolVar(&f.Headless, "headless", false, "run without a window")
	flag.IntVar(&f.Frames, "frames", 300, "frames to run in headless mode")
	flag.StringVar(&f.PNGOut, "outpng", "", "write last framebuffer to PNG at path")
	flag.StringVar(&f.WAVOut, "outwav", "", "record audio to a WAV file at path")
	flag.StringVar(&f.Expect, "expect", "", "assert framebuffer xxhash (hex)")
	flag.Parse()
	return f
}

func newLogger(trace bool) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetLevel(logrus.InfoLevel)
	if trace {
		log.SetLevel(logrus.TraceLevel)
	}
	return log
}

func runHeadless(m *emu.Machine, f CLIFlags, log logrus.FieldLogger) error {
	frames := f.Frames
	if frames <= 0 {
		frames = 1
	}

	var rec *wav.Encoder
	if f.WAVOut != "" {
		out, err := os.Create(f.WAVOut)
		if err != nil {
			return fmt.Errorf("create WAV: %w", err)
		}
		defer out.Close()
		rec = wav.NewEncoder(out, m.SampleRate(), 16, 2, 1)
	}

	start := time.Now()
	for i := 0; i < frames; i++ {
		if err := m.RunFrame(); err != nil {
			return err
		}
		if rec != nil {
			if err := rec.Write(m.AudioOutput().IntBuffer(m.AudioOutput().Len(), m.SampleRate())); err != nil {
				return fmt.Errorf("write WAV: %w", err)
			}
		}
	}
	dur := time.Since(start)

	digest := m.FrameDigest()
	log.WithFields(logrus.Fields{
		"frames":  frames,
		"elapsed": dur.Truncate(time.Millisecond),
		"fps":     fmt.Sprintf("%.2f", float64(frames)/dur.Seconds()),
		"fb_hash": fmt.Sprintf("%016x", digest),
	}).Info("headless run finished")

	if rec != nil {
		if err := rec.Close(); err != nil {
			return fmt.Errorf("finish WAV: %w", err)
		}
		log.Infof("wrote %s", f.WAVOut)
	}

	if f.PNGOut != "" {
		if err := savePNG(m, f.PNGOut, f.Scale); err != nil {
			return fmt.Errorf("write PNG: %w", err)
		}
		log.Infof("wrote %s", f.PNGOut)
	}

	if f.Expect != "" {
		want, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(f.Expect), "0x"), 16, 64)
		if err != nil {
			return fmt.Errorf("bad -expect value %q: %w", f.Expect, err)
		}
		if digest != want {
			return fmt.Errorf("checksum mismatch: got %016x, want %016x", digest, want)
		}
	}
	return nil
}

func savePNG(m *emu.Machine, path string, scale int) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := ui.WritePNG(out, m.Frame().Image(), scale); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func main() {
	f := parseFlags()
	log := newLogger(f.Trace)

	m := emu.New(emu.Config{Logger: log, Trace: f.Trace, SkipBoot: f.SkipBoot, NoSaveFiles: !f.SaveRAM})
	if f.BootROM != "" {
		boot, err := os.ReadFile(f.BootROM)
		if err != nil {
			log.WithError(err).Fatal("read boot ROM")
		}
		m.SetBootROM(boot)
	}
	if f.ROMPath != "" {
		if err := m.LoadROMFromFile(f.ROMPath); err != nil {
			log.WithError(err).Fatal("load cartridge")
		}
		if m.HasBootROM() && !f.SkipBoot {
			log.Debug("starting in boot ROM")
		}
		if err := m.LoadBatteryFile(); err != nil {
			log.WithError(err).Warn("battery RAM not restored")
		}
	}

	if f.Headless {
		if f.ROMPath == "" {
			log.Fatal("-headless needs -rom")
		}
		err := runHeadless(m, f, log)
		if serr := m.SaveBatteryFile(); serr != nil {
			log.WithError(serr).Error("battery RAM not saved")
		}
		if err != nil {
			log.WithError(err).Fatal("headless run failed")
		}
		return
	}

	uiCfg := ui.Config{Title: f.Title, Scale: f.Scale, Mute: f.Mute, ROMsDir: f.ROMsDir}
	app := ui.NewApp(uiCfg, m, log)
	if err := app.Run(); err != nil {
		log.WithError(err).Fatal("emulator stopped")
	}
}
