package rle

import (
	"bytes"
	"errors"
	"image"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gogpu/maskview/mask"
)

func TestEncodeFormat(t *testing.T) {
	tests := []struct {
		name string
		mask func() *mask.Mask
		want []byte
	}{
		{
			name: "mixed runs",
			mask: func() *mask.Mask {
				m := mask.New(4, 2)
				m.SetSpan(1, 3, 0)
				m.Set(0, 1, true)
				return m
			},
			want: []byte{0x01, 4, 2, 1, 2, 1, 1},
		},
		{
			name: "run across row break",
			mask: func() *mask.Mask {
				m := mask.New(2, 2)
				m.Set(1, 0, true)
				m.Set(0, 1, true)
				return m
			},
			want: []byte{0x01, 2, 2, 1, 2},
		},
		{
			name: "empty",
			mask: func() *mask.Mask { return mask.New(3, 3) },
			want: []byte{0x01, 3, 3},
		},
		{
			name: "full",
			mask: func() *mask.Mask {
				m := mask.New(3, 3)
				m.Fill()
				return m
			},
			want: []byte{0x01, 3, 3, 0, 9},
		},
		{
			name: "zero size",
			mask: func() *mask.Mask { return mask.New(0, 0) },
			want: []byte{0x01, 0, 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Encode(tt.mask())
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Encode() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEncodeFull(t *testing.T) {
	for _, sz := range []image.Point{{3, 3}, {64, 2}, {65, 7}, {0, 4}, {1, 1}} {
		full := mask.New(sz.X, sz.Y)
		full.Fill()
		if diff := cmp.Diff(Encode(full), EncodeFull(sz.X, sz.Y)); diff != "" {
			t.Errorf("EncodeFull(%d, %d) mismatch (-Encode +EncodeFull):\n%s", sz.X, sz.Y, diff)
		}
	}

	// Huge sizes encode in constant space; decoding them is refused.
	data := EncodeFull(1<<30, 1<<30)
	if len(data) > 16 {
		t.Errorf("EncodeFull of a huge mask is %d bytes", len(data))
	}
	if _, err := Decode(data); !errors.Is(err, ErrAllocation) {
		t.Errorf("Decode() error = %v, want ErrAllocation", err)
	}
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	shapes := []image.Point{{1, 1}, {63, 5}, {64, 64}, {65, 3}, {200, 130}, {1, 300}}
	for _, sz := range shapes {
		empty := mask.New(sz.X, sz.Y)
		full := mask.New(sz.X, sz.Y)
		full.Fill()
		random := mask.New(sz.X, sz.Y)
		for range sz.X * sz.Y / 3 {
			random.Set(rng.IntN(sz.X), rng.IntN(sz.Y), true)
		}
		rects := mask.New(sz.X, sz.Y)
		for range 5 {
			x, y := rng.IntN(sz.X), rng.IntN(sz.Y)
			rects.SetRect(image.Rect(x, y, x+rng.IntN(40)+1, y+rng.IntN(40)+1))
		}

		for _, m := range []*mask.Mask{empty, full, random, rects} {
			got, err := Decode(Encode(m))
			if err != nil {
				t.Fatalf("%v: Decode() error = %v", sz, err)
			}
			if !got.Equal(m) {
				t.Errorf("%v: round trip changed the mask (count %d, want %d)", sz, got.Count(), m.Count())
			}
		}
	}
}

func TestDecodeNonCanonical(t *testing.T) {
	// Empty runs in the middle and an explicit trailing clear run are
	// accepted even though Encode never writes them.
	data := []byte{0x01, 4, 1, 1, 0, 0, 2, 1}
	m, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if !m.At(1, 0) || !m.At(2, 0) || m.Count() != 2 {
		t.Errorf("unexpected pixels, count %d", m.Count())
	}
	if !bytes.Equal(Encode(m), []byte{0x01, 4, 1, 1, 2}) {
		t.Errorf("re-encoding should be canonical, got %v", Encode(m))
	}
}

func TestDecodeCorrupt(t *testing.T) {
	tests := []struct {
		name       string
		data       []byte
		wantOffset int
	}{
		{"empty input", nil, 0},
		{"unknown version", []byte{0x02, 1, 1}, 0},
		{"missing height", []byte{0x01, 4}, 2},
		{"truncated varint", []byte{0x01, 4, 4, 0x80}, 3},
		{"overshoot", []byte{0x01, 4, 4, 10, 7}, 4},
		{"overshoot zero size", []byte{0x01, 0, 5, 0, 1}, 4},
		{"varint overflow", []byte{0x01, 2, 2, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x7f}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			if !errors.Is(err, ErrCorrupt) {
				t.Fatalf("Decode() error = %v, want ErrCorrupt", err)
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("error %T is not a *DecodeError", err)
			}
			if de.Offset != tt.wantOffset {
				t.Errorf("Offset = %d, want %d", de.Offset, tt.wantOffset)
			}
		})
	}
}

func TestDecodeAllocation(t *testing.T) {
	big := []byte{0x01}
	big = append(big, 0x80, 0x80, 0x04) // 65536
	big = append(big, 0x80, 0x80, 0x04) // 65536

	_, err := Decode(big)
	if !errors.Is(err, ErrAllocation) {
		t.Fatalf("Decode() error = %v, want ErrAllocation", err)
	}
	var ae *AllocationError
	if !errors.As(err, &ae) || ae.Width != 65536 {
		t.Errorf("AllocationError = %+v", ae)
	}

	small := Encode(mask.New(100, 100))
	if _, err := Decode(small, WithMaxPixels(5000)); !errors.Is(err, ErrAllocation) {
		t.Errorf("Decode() with limit error = %v, want ErrAllocation", err)
	}
	if _, err := Decode(small, WithMaxPixels(10000)); err != nil {
		t.Errorf("Decode() at the limit error = %v", err)
	}
}

func TestRegion(t *testing.T) {
	m := mask.New(500, 400)
	m.SetRect(image.Rect(100, 120, 160, 150))
	m.Set(170, 121, true)

	bounds, data := EncodeRegion(m)
	if want := image.Rect(100, 120, 171, 150); bounds != want {
		t.Errorf("bounds = %v, want %v", bounds, want)
	}
	if full := Encode(m); len(data) >= len(full) {
		t.Errorf("cropped encoding (%d bytes) should be smaller than full (%d bytes)", len(data), len(full))
	}

	dst := mask.New(500, 400)
	if err := OrRegion(dst, bounds, data); err != nil {
		t.Fatal(err)
	}
	if !dst.Equal(m) {
		t.Error("OrRegion did not restore the mask")
	}

	// Shape mismatch between bounds and data is corrupt; dst stays unchanged.
	before := dst.Clone()
	err := OrRegion(dst, bounds.Inset(1), data)
	if !errors.Is(err, ErrCorrupt) {
		t.Errorf("OrRegion() error = %v, want ErrCorrupt", err)
	}
	if !dst.Equal(before) {
		t.Error("failed OrRegion must not modify dst")
	}
}

func TestRegionEmpty(t *testing.T) {
	bounds, data := EncodeRegion(mask.New(50, 50))
	if !bounds.Empty() {
		t.Errorf("bounds = %v, want empty", bounds)
	}
	dst := mask.New(50, 50)
	if err := OrRegion(dst, bounds, data); err != nil {
		t.Fatal(err)
	}
	if !dst.IsEmpty() {
		t.Error("empty region should not set pixels")
	}
}

func TestRegionClipped(t *testing.T) {
	crop := mask.New(10, 10)
	crop.Fill()
	data := Encode(crop)

	dst := mask.New(20, 20)
	if err := OrRegion(dst, image.Rect(15, 15, 25, 25), data); err != nil {
		t.Fatal(err)
	}
	if got := dst.Count(); got != 25 {
		t.Errorf("clipped region set %d pixels, want 25", got)
	}
}

func BenchmarkDecode(b *testing.B) {
	m := mask.New(2000, 1500)
	for i := range 50 {
		m.SetRect(image.Rect(i*35, i*25, i*35+60, i*25+40))
	}
	data := Encode(m)
	b.ReportAllocs()
	for b.Loop() {
		if _, err := Decode(data); err != nil {
			b.Fatal(err)
		}
	}
}
