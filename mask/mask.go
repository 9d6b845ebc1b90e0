// Package mask provides a dense binary bitmap for region and combined masks.
//
// A Mask stores one bit per pixel, packed into uint64 words. Every row starts
// on a word boundary, so row operations and word-wise boolean algebra between
// masks of the same size never need bit shifting. Bits past the right edge of
// a row are always zero.
//
// Masks are not safe for concurrent mutation. Concurrent reads are fine.
package mask

import (
	"errors"
	"image"
	"image/color"
	"math/bits"
	"slices"
)

// ErrSizeMismatch is returned by operations combining masks of different
// dimensions.
var ErrSizeMismatch = errors.New("mask: size mismatch")

const allOnes = ^uint64(0)

// Mask is a binary bitmap of fixed dimensions.
type Mask struct {
	width  int
	height int
	stride int // words per row
	words  []uint64
}

// New creates an empty mask with the given dimensions.
// Negative dimensions are treated as zero.
func New(width, height int) *Mask {
	width = max(width, 0)
	height = max(height, 0)
	stride := (width + 63) / 64
	return &Mask{
		width:  width,
		height: height,
		stride: stride,
		words:  make([]uint64, stride*height),
	}
}

// NewFromImage creates a mask from the coverage of img. A pixel is set when
// its alpha is non-zero; for *image.Gray sources the gray level is used
// instead, matching single-channel masks produced by segmentation tools.
func NewFromImage(img image.Image) *Mask {
	b := img.Bounds()
	m := New(b.Dx(), b.Dy())

	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < m.height; y++ {
			row := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]
			for x := 0; x < m.width; x++ {
				if row[x] != 0 {
					m.setBit(x, y)
				}
			}
		}
	case *image.Alpha:
		for y := 0; y < m.height; y++ {
			row := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]
			for x := 0; x < m.width; x++ {
				if row[x] != 0 {
					m.setBit(x, y)
				}
			}
		}
	default:
		for y := 0; y < m.height; y++ {
			for x := 0; x < m.width; x++ {
				_, _, _, a := img.At(x+b.Min.X, y+b.Min.Y).RGBA()
				if a>>8 != 0 {
					m.setBit(x, y)
				}
			}
		}
	}
	return m
}

// Width returns the mask width in pixels.
func (m *Mask) Width() int { return m.width }

// Height returns the mask height in pixels.
func (m *Mask) Height() int { return m.height }

// Stride returns the number of words per row.
func (m *Mask) Stride() int { return m.stride }

// Bounds returns the mask dimensions as an image.Rectangle.
func (m *Mask) Bounds() image.Rectangle {
	return image.Rect(0, 0, m.width, m.height)
}

// SameSize reports whether m and o have identical dimensions.
func (m *Mask) SameSize(o *Mask) bool {
	return o != nil && m.width == o.width && m.height == o.height
}

// At reports whether the pixel at (x, y) is set.
// Coordinates outside the mask are never set.
func (m *Mask) At(x, y int) bool {
	if x < 0 || x >= m.width || y < 0 || y >= m.height {
		return false
	}
	return m.words[y*m.stride+x>>6]&(1<<(x&63)) != 0
}

// Set sets or clears the pixel at (x, y).
// Coordinates outside the mask are ignored.
func (m *Mask) Set(x, y int, v bool) {
	if x < 0 || x >= m.width || y < 0 || y >= m.height {
		return
	}
	if v {
		m.setBit(x, y)
	} else {
		m.words[y*m.stride+x>>6] &^= 1 << (x & 63)
	}
}

func (m *Mask) setBit(x, y int) {
	m.words[y*m.stride+x>>6] |= 1 << (x & 63)
}

// Row returns the words of row y. The slice aliases the mask; callers must
// treat it as read-only.
func (m *Mask) Row(y int) []uint64 {
	if y < 0 || y >= m.height {
		return nil
	}
	return m.words[y*m.stride : (y+1)*m.stride]
}

// spanBits returns a word with bits a..b (inclusive) set.
func spanBits(a, b int) uint64 {
	return (allOnes << a) & (allOnes >> (63 - b))
}

// SetSpan sets pixels [x0, x1) of row y, clipped to the mask.
func (m *Mask) SetSpan(x0, x1, y int) {
	m.span(x0, x1, y, true)
}

// ClearSpan clears pixels [x0, x1) of row y, clipped to the mask.
func (m *Mask) ClearSpan(x0, x1, y int) {
	m.span(x0, x1, y, false)
}

func (m *Mask) span(x0, x1, y int, set bool) {
	if y < 0 || y >= m.height {
		return
	}
	x0 = max(x0, 0)
	x1 = min(x1, m.width)
	if x0 >= x1 {
		return
	}
	row := m.words[y*m.stride : (y+1)*m.stride]
	i0, i1 := x0>>6, (x1-1)>>6
	apply := func(i int, b uint64) {
		if set {
			row[i] |= b
		} else {
			row[i] &^= b
		}
	}
	if i0 == i1 {
		apply(i0, spanBits(x0&63, (x1-1)&63))
		return
	}
	apply(i0, allOnes<<(x0&63))
	for i := i0 + 1; i < i1; i++ {
		apply(i, allOnes)
	}
	apply(i1, allOnes>>(63-(x1-1)&63))
}

// SetRect sets every pixel inside r, clipped to the mask.
func (m *Mask) SetRect(r image.Rectangle) {
	r = r.Intersect(m.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		m.span(r.Min.X, r.Max.X, y, true)
	}
}

// ClearRect clears every pixel inside r, clipped to the mask.
func (m *Mask) ClearRect(r image.Rectangle) {
	r = r.Intersect(m.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		m.span(r.Min.X, r.Max.X, y, false)
	}
}

// Fill sets every pixel.
func (m *Mask) Fill() {
	m.SetRect(m.Bounds())
}

// Clear clears every pixel.
func (m *Mask) Clear() {
	clear(m.words)
}

// Clone returns a deep copy of m.
func (m *Mask) Clone() *Mask {
	return &Mask{
		width:  m.width,
		height: m.height,
		stride: m.stride,
		words:  slices.Clone(m.words),
	}
}

// Or sets every pixel that is set in src.
func (m *Mask) Or(src *Mask) error {
	if !m.SameSize(src) {
		return ErrSizeMismatch
	}
	for i, w := range src.words {
		m.words[i] |= w
	}
	return nil
}

// AndNot clears every pixel that is set in src.
func (m *Mask) AndNot(src *Mask) error {
	if !m.SameSize(src) {
		return ErrSizeMismatch
	}
	for i, w := range src.words {
		m.words[i] &^= w
	}
	return nil
}

// And clears every pixel that is not set in src.
func (m *Mask) And(src *Mask) error {
	if !m.SameSize(src) {
		return ErrSizeMismatch
	}
	for i, w := range src.words {
		m.words[i] &= w
	}
	return nil
}

// OrAt sets every pixel of src, translated by at, clipped to m.
// The two masks may have different sizes.
func (m *Mask) OrAt(src *Mask, at image.Point) {
	for y := 0; y < src.height; y++ {
		dy := y + at.Y
		if dy < 0 {
			continue
		}
		if dy >= m.height {
			break
		}
		src.Spans(y, func(x0, x1 int) {
			m.span(x0+at.X, x1+at.X, dy, true)
		})
	}
}

// Crop returns a new mask holding the part of m inside r. The result has the
// size of r clipped to the mask bounds.
func (m *Mask) Crop(r image.Rectangle) *Mask {
	r = r.Intersect(m.Bounds())
	out := New(r.Dx(), r.Dy())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		m.Spans(y, func(x0, x1 int) {
			out.span(x0-r.Min.X, x1-r.Min.X, y-r.Min.Y, true)
		})
	}
	return out
}

// Spans calls fn for every maximal run [x0, x1) of set pixels in row y,
// from left to right.
func (m *Mask) Spans(y int, fn func(x0, x1 int)) {
	row := m.Row(y)
	start := -1
	for wi, w := range row {
		base := wi * 64
		switch {
		case w == 0:
			if start >= 0 {
				fn(start, base)
				start = -1
			}
			continue
		case w == allOnes:
			if start < 0 {
				start = base
			}
			continue
		}
		pos := 0
		for pos < 64 {
			if start < 0 {
				rest := w >> pos
				if rest == 0 {
					break
				}
				pos += bits.TrailingZeros64(rest)
				start = base + pos
			} else {
				rest := ^w >> pos
				if rest == 0 {
					break
				}
				pos += bits.TrailingZeros64(rest)
				fn(start, base+pos)
				start = -1
			}
		}
	}
	if start >= 0 {
		fn(start, m.width)
	}
}

// IsEmpty reports whether no pixel is set.
func (m *Mask) IsEmpty() bool {
	for _, w := range m.words {
		if w != 0 {
			return false
		}
	}
	return true
}

// Count returns the number of set pixels.
func (m *Mask) Count() int {
	n := 0
	for _, w := range m.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// Equal reports whether m and o have the same size and the same pixels.
func (m *Mask) Equal(o *Mask) bool {
	return m.SameSize(o) && slices.Equal(m.words, o.words)
}

// BoundingBox returns the smallest rectangle containing every set pixel,
// or the empty rectangle if the mask is empty.
func (m *Mask) BoundingBox() image.Rectangle {
	return m.bounds(func(i int) uint64 { return m.words[i] })
}

// DiffBounds returns the smallest rectangle containing every pixel that
// differs between a and b. Masks of different sizes differ everywhere.
func DiffBounds(a, b *Mask) image.Rectangle {
	if !a.SameSize(b) {
		return a.Bounds().Union(b.Bounds())
	}
	return a.bounds(func(i int) uint64 { return a.words[i] ^ b.words[i] })
}

// bounds returns the bounding box of the bits produced by word(i) for every
// word index of m.
func (m *Mask) bounds(word func(i int) uint64) image.Rectangle {
	minX, minY := m.width, m.height
	maxX, maxY := -1, -1
	for y := 0; y < m.height; y++ {
		first, last := -1, -1
		for i := 0; i < m.stride; i++ {
			w := word(y*m.stride + i)
			if w == 0 {
				continue
			}
			if first < 0 {
				first = i*64 + bits.TrailingZeros64(w)
			}
			last = i*64 + 63 - bits.LeadingZeros64(w)
		}
		if first < 0 {
			continue
		}
		minY = min(minY, y)
		maxY = y
		minX = min(minX, first)
		maxX = max(maxX, last)
	}
	if maxY < 0 {
		return image.Rectangle{}
	}
	return image.Rect(minX, minY, maxX+1, maxY+1)
}

// ToAlpha converts the mask to an 8-bit alpha image (0 or 255).
func (m *Mask) ToAlpha() *image.Alpha {
	img := image.NewAlpha(m.Bounds())
	for y := 0; y < m.height; y++ {
		m.Spans(y, func(x0, x1 int) {
			for x := x0; x < x1; x++ {
				img.SetAlpha(x, y, color.Alpha{A: 0xff})
			}
		})
	}
	return img
}
