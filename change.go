package maskview

import (
	"fmt"
	"image"

	"github.com/gogpu/maskview/mask"
)

// MaskChange describes one mutation of a combined mask: the mask before and
// after, and a rectangle containing every pixel that differs.
//
// A MaskChange can only be built from two snapshots of equal size, so the
// "before" state always exists at the time of the change. The masks are
// treated as immutable once wrapped; Page hands out snapshots it will never
// write to again.
type MaskChange struct {
	before *mask.Mask
	after  *mask.Mask
	region image.Rectangle
}

// NewMaskChange returns the change from before to after. The changed region
// is computed from the masks.
//
// It returns ErrInvalidChange if either mask is nil and ErrSizeMismatch if
// their sizes differ. The caller must not modify either mask afterwards.
func NewMaskChange(before, after *mask.Mask) (MaskChange, error) {
	if before == nil || after == nil {
		return MaskChange{}, ErrInvalidChange
	}
	if !before.SameSize(after) {
		return MaskChange{}, fmt.Errorf("%w: change from %v to %v", ErrSizeMismatch, before.Bounds(), after.Bounds())
	}
	return MaskChange{before: before, after: after, region: mask.DiffBounds(before, after)}, nil
}

// makeChange builds a change whose region is already known to cover every
// differing pixel.
func makeChange(before, after *mask.Mask, region image.Rectangle) MaskChange {
	return MaskChange{before: before, after: after, region: region.Intersect(after.Bounds())}
}

// Old returns the mask before the change.
func (ch MaskChange) Old() *mask.Mask { return ch.before }

// New returns the mask after the change.
func (ch MaskChange) New() *mask.Mask { return ch.after }

// Region returns a rectangle containing every changed pixel. It may be
// larger than the exact difference.
func (ch MaskChange) Region() image.Rectangle { return ch.region }

// IsZero reports whether ch is the zero value, which carries no masks.
func (ch MaskChange) IsZero() bool { return ch.before == nil || ch.after == nil }

// Empty reports whether the change touches no pixel.
func (ch MaskChange) Empty() bool { return ch.region.Empty() }
