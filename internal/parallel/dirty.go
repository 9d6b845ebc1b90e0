// Package parallel provides the worker pool and dirty-tile tracking used by
// the compositing cache.
package parallel

import (
	"image"
	"math/bits"
	"sync/atomic"
)

// TileSize is the edge length, in pixels, of a dirty-tracking tile.
const TileSize = 64

// DirtyTiles tracks which tiles of an image changed since the renderer last
// looked, using an atomic bitmap with one bit per tile.
//
// The bitmap uses one bit per tile, packed into uint64 words (64 tiles per word).
// All methods are safe for concurrent use without external synchronization.
type DirtyTiles struct {
	// words is the atomic bitmap. Bit index = ty * tilesX + tx.
	words []atomic.Uint64

	width, height  int
	tilesX, tilesY int
}

// NewDirtyTiles creates a tracker for an image of the given pixel size.
// All tiles start clean. Returns nil if either dimension is not positive.
func NewDirtyTiles(width, height int) *DirtyTiles {
	if width <= 0 || height <= 0 {
		return nil
	}
	tilesX := (width + TileSize - 1) / TileSize
	tilesY := (height + TileSize - 1) / TileSize
	return &DirtyTiles{
		words:  make([]atomic.Uint64, (tilesX*tilesY+63)/64),
		width:  width,
		height: height,
		tilesX: tilesX,
		tilesY: tilesY,
	}
}

// Size returns the pixel size of the tracked image.
func (d *DirtyTiles) Size() image.Point {
	return image.Pt(d.width, d.height)
}

func (d *DirtyTiles) mark(tx, ty int) {
	idx := ty*d.tilesX + tx
	d.words[idx/64].Or(1 << (idx & 63))
}

// Mark marks the tile containing pixel (x, y).
// Pixels outside the image are ignored.
func (d *DirtyTiles) Mark(x, y int) {
	if x < 0 || x >= d.width || y < 0 || y >= d.height {
		return
	}
	d.mark(x/TileSize, y/TileSize)
}

// MarkRect marks every tile intersecting r, clipped to the image.
func (d *DirtyTiles) MarkRect(r image.Rectangle) {
	r = r.Intersect(image.Rect(0, 0, d.width, d.height))
	if r.Empty() {
		return
	}
	for ty := r.Min.Y / TileSize; ty <= (r.Max.Y-1)/TileSize; ty++ {
		for tx := r.Min.X / TileSize; tx <= (r.Max.X-1)/TileSize; tx++ {
			d.mark(tx, ty)
		}
	}
}

// MarkAll marks every tile.
func (d *DirtyTiles) MarkAll() {
	total := d.tilesX * d.tilesY
	full := total / 64
	for i := 0; i < full; i++ {
		d.words[i].Store(^uint64(0))
	}
	if rem := total % 64; rem > 0 {
		d.words[full].Store(uint64(1)<<rem - 1)
	}
}

// Count returns the number of dirty tiles.
func (d *DirtyTiles) Count() int {
	n := 0
	for i := range d.words {
		n += bits.OnesCount64(d.words[i].Load())
	}
	return n
}

// IsEmpty reports whether no tile is dirty.
func (d *DirtyTiles) IsEmpty() bool {
	for i := range d.words {
		if d.words[i].Load() != 0 {
			return false
		}
	}
	return true
}

// Drain calls fn with the pixel rectangle of every dirty tile, clipped to the
// image, and clears them. Each word is swapped out atomically, so a tile
// marked while Drain runs is either reported now or left for the next call.
func (d *DirtyTiles) Drain(fn func(image.Rectangle)) {
	for wi := range d.words {
		word := d.words[wi].Swap(0)
		for word != 0 {
			b := bits.TrailingZeros64(word)
			word &^= 1 << b
			idx := wi*64 + b
			tx, ty := idx%d.tilesX, idx/d.tilesX
			r := image.Rect(tx*TileSize, ty*TileSize, (tx+1)*TileSize, (ty+1)*TileSize)
			fn(r.Intersect(image.Rect(0, 0, d.width, d.height)))
		}
	}
}
