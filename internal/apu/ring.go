package apu

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/go-audio/audio"
)

// Ring is a fixed-size stereo frame buffer. The emulation loop pushes and
// the audio device pulls from its own goroutine, so every method locks.
// Frames pushed while full are dropped.
type Ring struct {
	mu   sync.Mutex
	l, r []int16
	head int
	tail int
}

// NewRing returns a ring holding size-1 frames; size must be a power of two.
func NewRing(size int) *Ring {
	return &Ring{l: make([]int16, size), r: make([]int16, size)}
}

func (b *Ring) mask() int { return len(b.l) - 1 }

// Push appends one frame.
func (b *Ring) Push(l, r int16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	next := (b.head + 1) & b.mask()
	if next == b.tail {
		return
	}
	b.l[b.head], b.r[b.head] = l, r
	b.head = next
}

// Len is the number of buffered frames.
func (b *Ring) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return (b.head - b.tail) & b.mask()
}

// Reset drops everything buffered.
func (b *Ring) Reset() {
	b.mu.Lock()
	b.head, b.tail = 0, 0
	b.mu.Unlock()
}

// PullStereo removes up to max frames and returns them interleaved L,R.
func (b *Ring) PullStereo(max int) []int16 {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []int16
	for ; max > 0 && b.tail != b.head; max-- {
		out = append(out, b.l[b.tail], b.r[b.tail])
		b.tail = (b.tail + 1) & b.mask()
	}
	return out
}

// IntBuffer drains up to max frames into a 16-bit stereo go-audio buffer.
func (b *Ring) IntBuffer(max, sampleRate int) *audio.IntBuffer {
	frames := b.PullStereo(max)
	data := make([]int, len(frames))
	for i, s := range frames {
		data[i] = int(s)
	}
	return &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
}

// Stream reads the ring as signed 16-bit little-endian interleaved stereo.
// When the ring runs dry it pads with silence so the reader never blocks.
type Stream struct {
	ring *Ring
	mute atomic.Bool
}

// NewStream wraps r as an io.Reader.
func NewStream(r *Ring) *Stream { return &Stream{ring: r} }

// SetMute discards buffered frames and plays silence while on.
func (s *Stream) SetMute(on bool) { s.mute.Store(on) }

func (s *Stream) Read(p []byte) (int, error) {
	frames := len(p) / 4
	if frames == 0 {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}
	var pcm []int16
	if !s.mute.Load() {
		pcm = s.ring.PullStereo(frames)
	} else {
		s.ring.Reset()
	}
	n := frames * 4
	for i := 0; i < frames*2; i++ {
		var v int16
		if i < len(pcm) {
			v = pcm[i]
		}
		binary.LittleEndian.PutUint16(p[i*2:], uint16(v))
	}
	return n, nil
}
