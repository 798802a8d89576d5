package ppu

import (
	"image"
	"image/color"
)

// FrameBuffer is a Renderer that keeps the last completed frame as RGBA pixels.
type FrameBuffer struct {
	back   *image.RGBA
	front  *image.RGBA
	frames uint64
	// OnFrame, if set, is called after each PresentFrame with the finished image.
	OnFrame func(img *image.RGBA)
}

func NewFrameBuffer() *FrameBuffer {
	r := image.Rect(0, 0, ScreenWidth, ScreenHeight)
	return &FrameBuffer{back: image.NewRGBA(r), front: image.NewRGBA(r)}
}

func (f *FrameBuffer) DrawScanline(ly int, line *Line) {
	if ly < 0 || ly >= ScreenHeight {
		return
	}
	off := ly * f.back.Stride
	for x, c := range line {
		i := off + x*4
		f.back.Pix[i+0] = c.R
		f.back.Pix[i+1] = c.G
		f.back.Pix[i+2] = c.B
		f.back.Pix[i+3] = c.A
	}
}

func (f *FrameBuffer) PresentFrame() {
	copy(f.front.Pix, f.back.Pix)
	f.frames++
	if f.OnFrame != nil {
		f.OnFrame(f.front)
	}
}

// Image returns the last presented frame. It is overwritten by the next PresentFrame.
func (f *FrameBuffer) Image() *image.RGBA { return f.front }

// Pixels returns the raw RGBA bytes of the last presented frame.
func (f *FrameBuffer) Pixels() []byte { return f.front.Pix }

// Frames counts PresentFrame calls.
func (f *FrameBuffer) Frames() uint64 { return f.frames }

// At is a convenience for tests and tools.
func (f *FrameBuffer) At(x, y int) color.RGBA { return f.front.RGBAAt(x, y) }
