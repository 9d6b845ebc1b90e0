// Package rle implements the run-length codec used to persist region masks.
//
// # Format
//
// An encoded mask is a version byte followed by unsigned varints
// (encoding/binary uvarint):
//
//	0x01 | width | height | run0 | run1 | run2 | ...
//
// Runs cover the pixels in row-major order and alternate between clear and
// set pixels, starting with a run of clear pixels (which may be empty). The
// encoder never writes a trailing run of clear pixels; the decoder treats any
// pixels not covered by a run as clear. The format is stable: workspaces
// written by one version must load in every later version.
package rle

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/gogpu/maskview/mask"
)

// Version1 is the only format version defined so far.
const Version1 byte = 0x01

// DefaultMaxPixels is the largest mask, in pixels, that Decode materializes
// unless configured otherwise.
const DefaultMaxPixels = 1 << 28

var (
	// ErrCorrupt matches every error caused by structurally invalid input.
	ErrCorrupt = errors.New("rle: corrupt mask data")

	// ErrAllocation matches every error caused by a mask too large to
	// materialize.
	ErrAllocation = errors.New("rle: mask too large to allocate")
)

// DecodeError describes structurally invalid input.
type DecodeError struct {
	Offset int    // byte offset where decoding failed
	Reason string // what was wrong
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("rle: corrupt mask data at offset %d: %s", e.Offset, e.Reason)
}

// Unwrap returns ErrCorrupt.
func (e *DecodeError) Unwrap() error { return ErrCorrupt }

// AllocationError reports a mask whose dense form cannot be materialized.
type AllocationError struct {
	Width  uint64
	Height uint64
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("rle: cannot allocate %dx%d mask", e.Width, e.Height)
}

// Unwrap returns ErrAllocation.
func (e *AllocationError) Unwrap() error { return ErrAllocation }

// DecodeOption configures Decode.
type DecodeOption func(*decodeConfig)

type decodeConfig struct {
	maxPixels int
}

// WithMaxPixels limits the size of decoded masks. Values <= 0 select
// DefaultMaxPixels.
func WithMaxPixels(n int) DecodeOption {
	return func(c *decodeConfig) {
		if n <= 0 {
			n = DefaultMaxPixels
		}
		c.maxPixels = n
	}
}

// Encode returns the run-length encoding of m.
func Encode(m *mask.Mask) []byte {
	w, h := m.Width(), m.Height()
	buf := make([]byte, 0, 16)
	buf = append(buf, Version1)
	buf = binary.AppendUvarint(buf, uint64(w))
	buf = binary.AppendUvarint(buf, uint64(h))

	// A set run is kept pending so that spans touching across a row break
	// merge into one run.
	pos := 0
	start, end := -1, -1
	flush := func() {
		if start < 0 {
			return
		}
		buf = binary.AppendUvarint(buf, uint64(start-pos))
		buf = binary.AppendUvarint(buf, uint64(end-start))
		pos = end
		start, end = -1, -1
	}
	for y := 0; y < h; y++ {
		m.Spans(y, func(x0, x1 int) {
			s, e := y*w+x0, y*w+x1
			if s == end {
				end = e
				return
			}
			flush()
			start, end = s, e
		})
	}
	flush()
	return buf
}

// EncodeFull returns the encoding of a w×h mask with every pixel set,
// without materializing it.
func EncodeFull(w, h int) []byte {
	buf := make([]byte, 0, 16)
	buf = append(buf, Version1)
	buf = binary.AppendUvarint(buf, uint64(w))
	buf = binary.AppendUvarint(buf, uint64(h))
	if w > 0 && h > 0 {
		buf = binary.AppendUvarint(buf, 0)
		buf = binary.AppendUvarint(buf, uint64(w)*uint64(h))
	}
	return buf
}

type reader struct {
	data []byte
	off  int
}

func (r *reader) uvarint() (uint64, error) {
	v, n := binary.Uvarint(r.data[r.off:])
	switch {
	case n == 0:
		return 0, &DecodeError{Offset: r.off, Reason: "truncated varint"}
	case n < 0:
		return 0, &DecodeError{Offset: r.off, Reason: "varint overflows 64 bits"}
	}
	r.off += n
	return v, nil
}

// Decode expands data into a dense mask.
//
// Errors match ErrCorrupt for structurally invalid input and ErrAllocation
// when the mask is larger than the configured limit. Callers loading many
// masks should skip the offending mask on either error and continue.
func Decode(data []byte, opts ...DecodeOption) (*mask.Mask, error) {
	cfg := decodeConfig{maxPixels: DefaultMaxPixels}
	for _, opt := range opts {
		opt(&cfg)
	}

	if len(data) == 0 {
		return nil, &DecodeError{Offset: 0, Reason: "empty input"}
	}
	if data[0] != Version1 {
		return nil, &DecodeError{Offset: 0, Reason: fmt.Sprintf("unknown version %#x", data[0])}
	}
	r := &reader{data: data, off: 1}
	w64, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	h64, err := r.uvarint()
	if err != nil {
		return nil, err
	}

	m, err := allocate(w64, h64, cfg.maxPixels)
	if err != nil {
		return nil, err
	}

	w := int(w64)
	total := w * int(h64)
	pos := 0
	set := false
	for r.off < len(data) {
		off := r.off
		n64, err := r.uvarint()
		if err != nil {
			return nil, err
		}
		if n64 > uint64(total-pos) {
			return nil, &DecodeError{Offset: off, Reason: "run overshoots mask bounds"}
		}
		n := int(n64)
		if set {
			setLinear(m, w, pos, pos+n)
		}
		pos += n
		set = !set
	}
	return m, nil
}

func allocate(w, h uint64, maxPixels int) (m *mask.Mask, err error) {
	if w > math.MaxInt32 || h > math.MaxInt32 || (w != 0 && h > uint64(maxPixels)/w) {
		return nil, &AllocationError{Width: w, Height: h}
	}
	defer func() {
		if recover() != nil {
			m, err = nil, &AllocationError{Width: w, Height: h}
		}
	}()
	return mask.New(int(w), int(h)), nil
}

// setLinear sets the row-major pixel range [from, to).
func setLinear(m *mask.Mask, w, from, to int) {
	for from < to {
		y, x := from/w, from%w
		x1 := min(w, x+to-from)
		m.SetSpan(x, x1, y)
		from += x1 - x
	}
}

// EncodeRegion crops m to its bounding box and encodes the crop. The
// returned rectangle locates the crop in m; it is empty for an empty mask.
func EncodeRegion(m *mask.Mask) (image.Rectangle, []byte) {
	bb := m.BoundingBox()
	return bb, Encode(m.Crop(bb))
}

// DecodeRegion decodes a crop produced by EncodeRegion. The decoded
// dimensions must match the size of bounds.
func DecodeRegion(bounds image.Rectangle, data []byte, opts ...DecodeOption) (*mask.Mask, error) {
	crop, err := Decode(data, opts...)
	if err != nil {
		return nil, err
	}
	if crop.Width() != bounds.Dx() || crop.Height() != bounds.Dy() {
		return nil, &DecodeError{
			Offset: 0,
			Reason: fmt.Sprintf("crop is %dx%d, bounds are %v", crop.Width(), crop.Height(), bounds),
		}
	}
	return crop, nil
}

// OrRegion decodes a crop produced by EncodeRegion and ORs it into dst at
// bounds.Min, clipped to dst. On error dst is left unchanged.
func OrRegion(dst *mask.Mask, bounds image.Rectangle, data []byte, opts ...DecodeOption) error {
	crop, err := DecodeRegion(bounds, data, opts...)
	if err != nil {
		return err
	}
	dst.OrAt(crop, bounds.Min)
	return nil
}
