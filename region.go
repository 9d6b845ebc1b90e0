package maskview

import (
	"fmt"
	"image"

	"github.com/gogpu/maskview/mask"
	"github.com/gogpu/maskview/rle"
)

// RegionID identifies a region within a page.
type RegionID string

// Region is one user-drawn member of a category. Its shape is kept in the
// compact region encoding of package rle: Data is the run-length encoding of
// the mask cropped to Bounds, in page coordinates.
type Region struct {
	ID       RegionID
	Category Category
	Bounds   image.Rectangle
	Data     []byte
}

// NewRegion encodes the set pixels of m, a page-sized mask, as a region.
func NewRegion(id RegionID, c Category, m *mask.Mask) Region {
	bounds, data := rle.EncodeRegion(m)
	return Region{ID: id, Category: c, Bounds: bounds, Data: data}
}

// RectRegion returns a region covering the rectangle r, as produced by
// automatic block detection. The encoding takes constant space whatever the
// size of r; callers should still clip r to the page, since pages decode
// region crops under a pixel limit (see rle.WithMaxPixels).
func RectRegion(id RegionID, c Category, r image.Rectangle) Region {
	r = r.Canon()
	return Region{ID: id, Category: c, Bounds: r, Data: rle.EncodeFull(r.Dx(), r.Dy())}
}

func (r Region) validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidRegion)
	}
	if len(r.Data) == 0 {
		return fmt.Errorf("%w: %q has no shape data", ErrInvalidRegion, r.ID)
	}
	return nil
}

// Mask returns the region as a width×height mask. Pixels outside that size
// are dropped.
func (r Region) Mask(width, height int, opts ...rle.DecodeOption) (*mask.Mask, error) {
	m := mask.New(width, height)
	if err := rle.OrRegion(m, r.Bounds, r.Data, opts...); err != nil {
		return nil, fmt.Errorf("maskview: region %q: %w", r.ID, err)
	}
	return m, nil
}

// Contains reports whether the pixel (x, y) belongs to the region.
// A region whose data cannot be decoded contains nothing.
func (r Region) Contains(x, y int) bool {
	if !image.Pt(x, y).In(r.Bounds) {
		return false
	}
	crop, err := rle.DecodeRegion(r.Bounds, r.Data)
	if err != nil {
		return false
	}
	return crop.At(x-r.Bounds.Min.X, y-r.Bounds.Min.Y)
}
