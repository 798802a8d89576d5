package ppu

import "image/color"

// Line is one composed scanline.
type Line [ScreenWidth]color.RGBA

// Renderer consumes finished scanlines and the end-of-frame signal.
type Renderer interface {
	DrawScanline(ly int, line *Line)
	PresentFrame()
}

// Shades maps the four DMG gray levels, lightest first.
var Shades = [4]color.RGBA{
	{155, 188, 15, 255},
	{139, 172, 15, 255},
	{48, 98, 48, 255},
	{15, 56, 15, 255},
}

func shade(palette, ci byte) byte { return (palette >> (ci * 2)) & 0x03 }

// renderScanline composes background, window and sprites for the current LY.
func (p *PPU) renderScanline() {
	if int(p.ly) >= ScreenHeight {
		return
	}
	var bg [ScreenWidth]byte // color indices before the palette, for sprite priority
	drawn := false

	tileData8000 := p.lcdc&0x10 != 0
	if p.lcdc&0x01 != 0 {
		bgMap := uint16(0x9800)
		if p.lcdc&0x08 != 0 {
			bgMap = 0x9C00
		}
		bg = renderBGScanline(p, bgMap, tileData8000, p.scx, p.scy, p.ly)
		drawn = true

		if p.lcdc&0x20 != 0 && p.ly >= p.wy {
			winMap := uint16(0x9800)
			if p.lcdc&0x40 != 0 {
				winMap = 0x9C00
			}
			renderWindowScanline(p, winMap, tileData8000, int(p.wx)-7, p.ly-p.wy, &bg)
		}
	}

	for x := range p.line {
		if drawn {
			p.line[x] = Shades[shade(p.bgp, bg[x])]
		} else {
			p.line[x] = Shades[0]
		}
	}

	if p.lcdc&0x02 != 0 {
		p.drawSprites(&bg)
	}

	if p.renderer != nil {
		p.renderer.DrawScanline(int(p.ly), &p.line)
	}
}

// drawSprites walks OAM from the last slot to the first so lower slots end up
// on top. A sprite with the priority bit only shows over background color 0.
func (p *PPU) drawSprites(bg *[ScreenWidth]byte) {
	height := 8
	if p.lcdc&0x04 != 0 {
		height = 16
	}
	ly := int(p.ly)
	for i := len(p.oam) - 4; i >= 0; i -= 4 {
		y := int(p.oam[i]) - 16
		if ly < y || ly >= y+height {
			continue
		}
		x := int(p.oam[i+1]) - 8
		tile := p.oam[i+2]
		attr := p.oam[i+3]
		if height == 16 {
			tile &^= 0x01
		}

		row := ly - y
		if attr&0x40 != 0 {
			row = height - 1 - row
		}
		palette := p.obp0
		if attr&0x10 != 0 {
			palette = p.obp1
		}
		behindBG := attr&0x80 != 0

		addr := 0x8000 + uint16(tile)*16 + uint16(row)*2
		lo, hi := p.Read(addr), p.Read(addr+1)
		for px := 0; px < 8; px++ {
			sx := x + px
			if sx < 0 || sx >= ScreenWidth {
				continue
			}
			bit := byte(7 - px)
			if attr&0x20 != 0 {
				bit = byte(px)
			}
			ci := colorIndex(lo, hi, bit)
			if ci == 0 {
				continue
			}
			if behindBG && bg[sx] != 0 {
				continue
			}
			p.line[sx] = Shades[shade(palette, ci)]
		}
	}
}
