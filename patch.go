package maskview

import (
	"math/bits"

	"github.com/gogpu/maskview/mask"
)

// changedWords calls fn for every word of ch's masks that differs, restricted
// to the rows and word columns spanned by ch.Region(). idx is the word's
// index in the mask.
func changedWords(ch MaskChange, fn func(y, wi, idx int, was, now uint64)) {
	before, after := ch.Old(), ch.New()
	r := ch.Region().Intersect(after.Bounds())
	if r.Empty() {
		return
	}
	w0, w1 := r.Min.X/64, (r.Max.X-1)/64
	stride := after.Stride()
	for y := r.Min.Y; y < r.Max.Y; y++ {
		was, now := before.Row(y), after.Row(y)
		for wi := w0; wi <= w1; wi++ {
			if was[wi] != now[wi] {
				fn(y, wi, y*stride+wi, was[wi], now[wi])
			}
		}
	}
}

// rehash returns h, the hash of ch.Old(), updated to the hash of ch.New().
func rehash(h uint64, ch MaskChange) uint64 {
	changedWords(ch, func(_, _, idx int, was, now uint64) {
		h = mask.UpdateHash(h, idx, was, now)
	})
	return h
}

// patch applies ch for the hidden category cat to the entry's composite and
// returns the number of words touched.
func (c *Cache) patch(e *entry, cat Category, ch MaskChange) int {
	var others []*mask.Mask
	if c.cfg.overlap == OverlapRecheck {
		for _, o := range e.key.vs.Hide.Categories() {
			if o != cat && c.categories.Contains(o) && e.masks[o] != nil {
				others = append(others, e.masks[o])
			}
		}
	}

	img, orig := e.img, e.original
	rowBytes := img.width * 4
	fill := c.cfg.fill
	hash := e.hashes[cat]
	touched := 0

	changedWords(ch, func(y, wi, idx int, was, now uint64) {
		touched++
		hash = mask.UpdateHash(hash, idx, was, now)
		row := img.data[y*rowBytes : (y+1)*rowBytes]
		src := orig.data[y*rowBytes : (y+1)*rowBytes]
		x0 := wi * 64

		added := now &^ was
		removed := was &^ now

		var restore uint64
		switch c.cfg.overlap {
		case OverlapRefCount:
			cov := e.coverage[y*img.width:]
			for w := added; w != 0; w &= w - 1 {
				cov[x0+bits.TrailingZeros64(w)]++
			}
			for w := removed; w != 0; w &= w - 1 {
				b := bits.TrailingZeros64(w)
				cov[x0+b]--
				if cov[x0+b] == 0 {
					restore |= 1 << b
				}
			}
		default:
			var cover uint64
			for _, o := range others {
				cover |= o.Row(y)[wi]
			}
			restore = removed &^ cover
		}

		fillBits(row, x0, added, fill)
		restoreBits(row, src, x0, restore)
		if c.dirty != nil {
			c.dirty.Mark(x0, y)
		}
	})

	e.hashes[cat] = hash
	return touched
}

// buildCoverage counts, for every pixel, how many of masks cover it.
func buildCoverage(w, h int, masks []*mask.Mask) []uint8 {
	cov := make([]uint8, w*h)
	for _, m := range masks {
		for y := 0; y < h; y++ {
			row := cov[y*w : (y+1)*w]
			for wi, word := range m.Row(y) {
				for ; word != 0; word &= word - 1 {
					row[wi*64+bits.TrailingZeros64(word)]++
				}
			}
		}
	}
	return cov
}
