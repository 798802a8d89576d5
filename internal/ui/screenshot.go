package ui

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/image/draw"
)

// Scale returns img enlarged by an integer factor with nearest-neighbour
// sampling, keeping pixels sharp.
func Scale(img image.Image, factor int) *image.RGBA {
	if factor < 1 {
		factor = 1
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// WritePNG encodes img scaled by factor.
func WritePNG(w io.Writer, img image.Image, factor int) error {
	return png.Encode(w, Scale(img, factor))
}

func (a *App) saveScreenshot() (string, error) {
	name := fmt.Sprintf("screenshot_%s.png", time.Now().Format("20060102_150405"))
	path := filepath.Join(a.cfg.ShotDir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := WritePNG(f, a.m.Frame().Image(), a.cfg.Scale); err != nil {
		return "", err
	}
	return path, nil
}
