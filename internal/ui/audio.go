package ui

import (
	"time"

	"github.com/hajimehoshi/ebiten/v2/audio"

	"github.com/FabianRolfMatthiasNoll/dmgcore/internal/apu"
)

// startAudio opens the ebiten audio context at the machine's rate and plays
// the APU ring through a player with a small buffer.
func (a *App) startAudio() error {
	ctx := audio.CurrentContext()
	if ctx == nil {
		ctx = audio.NewContext(a.m.SampleRate())
	}
	a.stream = apu.NewStream(a.m.AudioOutput())
	a.stream.SetMute(a.cfg.Mute)
	p, err := ctx.NewPlayer(a.stream)
	if err != nil {
		return err
	}
	a.audioPlayer = p
	a.applyPlayerBufferSize()
	p.Play()
	return nil
}

// applyPlayerBufferSize halves the buffer while fast-forwarding so sound
// catches up quickly when the key is released.
func (a *App) applyPlayerBufferSize() {
	if a.audioPlayer == nil {
		return
	}
	ms := a.cfg.AudioBufferMs
	if a.fast {
		ms /= 2
	}
	a.audioPlayer.SetBufferSize(time.Duration(ms) * time.Millisecond)
}

func (a *App) setMuted(on bool) {
	a.cfg.Mute = on
	if a.stream != nil {
		a.stream.SetMute(on || a.fast)
	}
}
