package maskview

import (
	"image/color"
	"math/bits"

	"github.com/gogpu/maskview/mask"
)

// Compose returns a new pixmap equal to original except that every pixel
// covered by at least one mask in active is set to fill.
//
// Masks that are nil or whose size differs from original are ignored. The
// inputs are not modified. Compose is the reference the Cache is measured
// against: a cached composite is always equal to Compose over the same masks.
func Compose(original *Pixmap, active map[Category]*mask.Mask, fill color.RGBA) *Pixmap {
	dst := NewPixmap(original.width, original.height)
	composeRows(dst, original, usableMasks(original, active), fill, 0, original.height)
	return dst
}

// usableMasks returns the masks of active that match the size of original.
func usableMasks(original *Pixmap, active map[Category]*mask.Mask) []*mask.Mask {
	masks := make([]*mask.Mask, 0, len(active))
	for _, m := range active {
		if m != nil && m.Width() == original.width && m.Height() == original.height {
			masks = append(masks, m)
		}
	}
	return masks
}

// composeRows writes rows [y0, y1) of the composite into dst.
// dst and src must have the same size, and every mask must match it.
func composeRows(dst, src *Pixmap, masks []*mask.Mask, fill color.RGBA, y0, y1 int) {
	rowBytes := src.width * 4
	copy(dst.data[y0*rowBytes:y1*rowBytes], src.data[y0*rowBytes:y1*rowBytes])
	if len(masks) == 0 {
		return
	}
	for y := y0; y < y1; y++ {
		row := dst.data[y*rowBytes : (y+1)*rowBytes]
		for wi := range masks[0].Row(y) {
			var w uint64
			for _, m := range masks {
				w |= m.Row(y)[wi]
			}
			fillBits(row, wi*64, w, fill)
		}
	}
}

// fillBits sets the pixel at x0+i in row to fill for every set bit i of w.
func fillBits(row []uint8, x0 int, w uint64, fill color.RGBA) {
	for w != 0 {
		b := bits.TrailingZeros64(w)
		w &= w - 1
		i := (x0 + b) * 4
		row[i+0] = fill.R
		row[i+1] = fill.G
		row[i+2] = fill.B
		row[i+3] = fill.A
	}
}

// restoreBits copies the pixel at x0+i from src to row for every set bit i
// of w.
func restoreBits(row, src []uint8, x0 int, w uint64) {
	for w != 0 {
		b := bits.TrailingZeros64(w)
		w &= w - 1
		i := (x0 + b) * 4
		copy(row[i:i+4], src[i:i+4])
	}
}
