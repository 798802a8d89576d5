package ppu

// VRAMReader gives the tile fetcher read access to 0x8000-0x9FFF.
type VRAMReader interface {
	Read(addr uint16) byte
}

// fifo is a ring buffer of 2-bit color indices.
type fifo struct {
	buf  [32]byte
	head int
	tail int
	size int
}

func (q *fifo) Clear()   { q.head, q.tail, q.size = 0, 0, 0 }
func (q *fifo) Len() int { return q.size }

func (q *fifo) Push(ci byte) bool {
	if q.size == len(q.buf) {
		return false
	}
	q.buf[q.tail] = ci & 0x03
	q.tail = (q.tail + 1) % len(q.buf)
	q.size++
	return true
}

func (q *fifo) Pop() (byte, bool) {
	if q.size == 0 {
		return 0, false
	}
	v := q.buf[q.head]
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	return v, true
}

// tileFetcher walks one row of a 32x32 tile map and pushes 8 pixels per tile.
type tileFetcher struct {
	mem          VRAMReader
	fifo         *fifo
	mapBase      uint16 // 0x9800 or 0x9C00
	tileData8000 bool   // false: signed indices around 0x9000
	mapY         uint16 // tile row, 0..31
	fineY        byte   // pixel row within the tile
	tileX        uint16 // next tile column, wraps at 32
}

func newTileFetcher(mem VRAMReader, f *fifo) *tileFetcher {
	return &tileFetcher{mem: mem, fifo: f}
}

// Configure points the fetcher at map row y (in pixels) starting from tile column tileX.
func (tf *tileFetcher) Configure(mapBase uint16, tileData8000 bool, y byte, tileX uint16) {
	tf.mapBase = mapBase
	tf.tileData8000 = tileData8000
	tf.mapY = uint16(y>>3) & 31
	tf.fineY = y & 7
	tf.tileX = tileX & 31
}

// Fetch pushes the next tile's row and advances to the following column.
func (tf *tileFetcher) Fetch() {
	tileNum := tf.mem.Read(tf.mapBase + tf.mapY*32 + tf.tileX)
	tf.tileX = (tf.tileX + 1) & 31
	row := tileRowAddr(tileNum, tf.tileData8000, tf.fineY)
	lo := tf.mem.Read(row)
	hi := tf.mem.Read(row + 1)
	for px := 0; px < 8; px++ {
		_ = tf.fifo.Push(colorIndex(lo, hi, 7-byte(px)))
	}
}

func tileRowAddr(tileNum byte, tileData8000 bool, fineY byte) uint16 {
	if tileData8000 {
		return 0x8000 + uint16(tileNum)*16 + uint16(fineY)*2
	}
	return uint16(int(0x9000) + int(int8(tileNum))*16 + int(fineY)*2)
}

// colorIndex combines bit b of the two bit planes.
func colorIndex(lo, hi, b byte) byte {
	return ((hi>>b)&1)<<1 | (lo>>b)&1
}
