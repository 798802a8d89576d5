package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/FabianRolfMatthiasNoll/dmgcore/internal/emu"
)

// writerFunc adapts a function to io.Writer
type writerFunc func(p []byte) (n int, err error)

func (f writerFunc) Write(p []byte) (n int, err error) { return f(p) }

// traceRing keeps the most recent trace lines for a failure dump.
type traceRing struct {
	lines []string
	idx   int
	fill  int
}

func (r *traceRing) Levels() []logrus.Level { return []logrus.Level{logrus.TraceLevel} }

func (r *traceRing) Fire(e *logrus.Entry) error {
	line, err := e.String()
	if err != nil {
		return err
	}
	r.lines[r.idx] = strings.TrimRight(line, "\n")
	r.idx = (r.idx + 1) % len(r.lines)
	if r.fill < len(r.lines) {
		r.fill++
	}
	return nil
}

func (r *traceRing) dump(w io.Writer) {
	start := (r.idx - r.fill + len(r.lines)) % len(r.lines)
	for j := 0; j < r.fill; j++ {
		fmt.Fprintln(w, r.lines[(start+j)%len(r.lines)])
	}
}

func main() {
	romPath := flag.String("rom", "", "path to ROM (.gb, .zip, .gz, .7z, .xz)")
	bootPath := flag.String("bootrom", "", "optional DMG boot ROM to run from 0x0000 until FF50 disables it")
	frames := flag.Int("frames", 20_000, "max frames to run")
	trace := flag.Bool("trace", false, "print every executed instruction")
	until := flag.String("until", "Passed", "stop when serial output contains this substring (case-insensitive); empty to disable")
	auto := flag.Bool("auto", false, "auto-detect 'Passed' or 'Failed N tests' in serial output and exit with code 0/1")
	timeout := flag.Duration("timeout", 0, "optional wall-clock timeout (e.g. 30s, 2m); 0 disables")
	traceOnFail := flag.Bool("traceOnFail", false, "when -auto detects failure, print a recent trace window (slows down)")
	traceWindow := flag.Int("traceWindow", 200, "number of recent instructions to include in 'traceOnFail' dump")
	serialWindowFlag := flag.Int("serialWindow", 8192, "number of recent serial bytes to retain for diagnostics on fail")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if *romPath == "" {
		log.Fatal("-rom is required")
	}

	var ring *traceRing
	if *trace || *traceOnFail {
		log.SetLevel(logrus.TraceLevel)
		if !*trace {
			log.SetOutput(io.Discard)
		}
		if *traceOnFail && *traceWindow > 0 {
			ring = &traceRing{lines: make([]string, *traceWindow)}
			log.AddHook(ring)
		}
	}

	// Stream serial to stdout and capture in-memory for pattern detection
	var ser bytes.Buffer
	serialWindow := *serialWindowFlag
	if serialWindow < 256 {
		serialWindow = 256
	}
	serRing := make([]byte, serialWindow)
	serRingIdx := 0
	serRingFill := 0
	w := io.MultiWriter(os.Stdout, &ser, writerFunc(func(p []byte) (int, error) {
		for _, ch := range p {
			serRing[serRingIdx] = ch
			serRingIdx = (serRingIdx + 1) % serialWindow
			if serRingFill < serialWindow {
				serRingFill++
			}
		}
		return len(p), nil
	}))

	m := emu.New(emu.Config{Logger: log, Trace: *trace || *traceOnFail, SerialOut: w})
	if *bootPath != "" {
		boot, err := os.ReadFile(*bootPath)
		if err != nil {
			log.WithError(err).Fatal("read bootrom")
		}
		m.SetBootROM(boot)
	}
	if err := m.LoadROMFromFile(*romPath); err != nil {
		log.WithError(err).Fatal("load rom")
	}

	start := time.Now()
	var deadline time.Time
	if *timeout > 0 {
		deadline = start.Add(*timeout)
	}
	done := func(n int) {
		fmt.Printf("\nDone: frames=%d cycles=%d elapsed=%s\n", n, m.Cycles(), time.Since(start).Truncate(time.Millisecond))
	}
	// Regex for failure summary: "Failed <n> tests"
	failRe := regexp.MustCompile(`(?i)failed\s+(\d+)\s+tests?`)
	// Regex to capture test markers like "11:01"
	stageRe := regexp.MustCompile(`\b(\d{2}:\d{2})\b`)
	lastStage := ""

	for i := 0; i < *frames; i++ {
		if err := m.RunFrame(); err != nil {
			fmt.Printf("\nEmulation stopped: %v\n", err)
			if ring != nil {
				ring.dump(os.Stdout)
			}
			done(i + 1)
			os.Exit(1)
		}
		s := ser.String()
		if *auto {
			if mm := stageRe.FindAllString(s, -1); len(mm) > 0 {
				lastStage = mm[len(mm)-1]
			}
			if strings.Contains(strings.ToLower(s), "passed") {
				fmt.Printf("\nDetected PASS in serial output.\n")
				if lastStage != "" {
					fmt.Printf("Last stage seen: %s\n", lastStage)
				}
				done(i + 1)
				os.Exit(0)
			}
			if fm := failRe.FindStringSubmatch(s); fm != nil {
				fmt.Printf("\nDetected %s in serial output.\n", fm[0])
				if lastStage != "" {
					fmt.Printf("Last stage seen: %s\n", lastStage)
				}
				if ring != nil && ring.fill > 0 {
					fmt.Printf("\n--- recent trace (last %d instructions) ---\n", ring.fill)
					ring.dump(os.Stdout)
					fmt.Printf("--- end trace ---\n")
				}
				if serRingFill > 0 {
					fmt.Printf("\n--- recent serial (last %d bytes) ---\n", serRingFill)
					from := (serRingIdx - serRingFill + serialWindow) % serialWindow
					for j := 0; j < serRingFill; j++ {
						fmt.Printf("%c", serRing[(from+j)%serialWindow])
					}
					fmt.Printf("\n--- end serial ---\n")
				}
				done(i + 1)
				os.Exit(1)
			}
		} else if *until != "" {
			if strings.Contains(strings.ToLower(s), strings.ToLower(*until)) {
				fmt.Printf("\nDetected '%s' in serial output.\n", *until)
				done(i + 1)
				return
			}
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			fmt.Printf("\nTimeout after %s.\n", time.Since(start).Truncate(time.Millisecond))
			done(i + 1)
			os.Exit(2)
		}
	}
	done(*frames)
}
