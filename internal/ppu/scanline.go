package ppu

// renderBGScanline returns 160 background color indices for line ly, applying
// SCX/SCY with wraparound at 256 pixels.
func renderBGScanline(mem VRAMReader, mapBase uint16, tileData8000 bool, scx, scy, ly byte) [ScreenWidth]byte {
	var out [ScreenWidth]byte
	var q fifo
	f := newTileFetcher(mem, &q)
	f.Configure(mapBase, tileData8000, ly+scy, uint16(scx>>3))
	f.Fetch()
	for i := byte(0); i < scx&7; i++ {
		_, _ = q.Pop()
	}
	for x := 0; x < ScreenWidth; x++ {
		if q.Len() == 0 {
			f.Fetch()
		}
		out[x], _ = q.Pop()
	}
	return out
}

// renderWindowScanline fills out from screen column startX (WX-7) with window
// row winY. Columns left of startX are untouched; a negative startX clips the
// window's first pixels. It reports whether anything was drawn.
func renderWindowScanline(mem VRAMReader, mapBase uint16, tileData8000 bool, startX int, winY byte, out *[ScreenWidth]byte) bool {
	if startX >= ScreenWidth {
		return false
	}
	var q fifo
	f := newTileFetcher(mem, &q)
	f.Configure(mapBase, tileData8000, winY, 0)
	for ; startX < 0; startX++ {
		if q.Len() == 0 {
			f.Fetch()
		}
		_, _ = q.Pop()
	}
	for x := startX; x < ScreenWidth; x++ {
		if q.Len() == 0 {
			f.Fetch()
		}
		out[x], _ = q.Pop()
	}
	return true
}
