package mask

import (
	"image"
	"image/color"
	"math/rand/v2"
	"testing"
)

func TestNew(t *testing.T) {
	m := New(100, 50)
	if m.Width() != 100 || m.Height() != 50 {
		t.Errorf("expected 100x50, got %dx%d", m.Width(), m.Height())
	}
	if m.Stride() != 2 {
		t.Errorf("Stride() = %d, want 2", m.Stride())
	}
	if !m.IsEmpty() {
		t.Error("new mask should be empty")
	}

	neg := New(-3, 4)
	if neg.Width() != 0 || neg.Count() != 0 {
		t.Errorf("negative width should yield an empty mask, got width %d", neg.Width())
	}
}

func TestMaskSetAt(t *testing.T) {
	m := New(130, 3)
	points := []image.Point{{0, 0}, {63, 1}, {64, 1}, {129, 2}}
	for _, p := range points {
		m.Set(p.X, p.Y, true)
	}
	for _, p := range points {
		if !m.At(p.X, p.Y) {
			t.Errorf("At(%d, %d) = false, want true", p.X, p.Y)
		}
	}
	if m.Count() != len(points) {
		t.Errorf("Count() = %d, want %d", m.Count(), len(points))
	}

	m.Set(64, 1, false)
	if m.At(64, 1) {
		t.Error("At(64, 1) should be cleared")
	}

	// Out of bounds is ignored and reads as unset.
	m.Set(-1, 0, true)
	m.Set(130, 0, true)
	if m.At(-1, 0) || m.At(130, 0) || m.At(0, 3) {
		t.Error("out of bounds pixels must read as unset")
	}
}

func TestMaskSpanEdges(t *testing.T) {
	tests := []struct {
		name   string
		width  int
		x0, x1 int
		want   int
	}{
		{"single word", 100, 3, 10, 7},
		{"word boundary", 200, 60, 70, 10},
		{"full words", 256, 0, 256, 256},
		{"exact word", 128, 64, 128, 64},
		{"clipped left", 100, -5, 5, 5},
		{"clipped right", 100, 95, 120, 5},
		{"empty", 100, 10, 10, 0},
		{"inverted", 100, 20, 10, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(tt.width, 1)
			m.SetSpan(tt.x0, tt.x1, 0)
			if got := m.Count(); got != tt.want {
				t.Errorf("Count() = %d, want %d", got, tt.want)
			}
			m.ClearSpan(tt.x0, tt.x1, 0)
			if !m.IsEmpty() {
				t.Error("ClearSpan should undo SetSpan")
			}
		})
	}
}

func TestMaskFillKeepsPadding(t *testing.T) {
	m := New(70, 2)
	m.Fill()
	if m.Count() != 140 {
		t.Errorf("Count() = %d, want 140", m.Count())
	}
	for y := 0; y < 2; y++ {
		row := m.Row(y)
		if row[1]>>6 != 0 {
			t.Errorf("row %d has bits set past the right edge: %#x", y, row[1])
		}
	}
}

func TestMaskSpans(t *testing.T) {
	m := New(200, 1)
	want := [][2]int{{0, 3}, {62, 66}, {100, 101}, {127, 192}, {195, 200}}
	for _, s := range want {
		m.SetSpan(s[0], s[1], 0)
	}

	var got [][2]int
	m.Spans(0, func(x0, x1 int) {
		got = append(got, [2]int{x0, x1})
	})
	if len(got) != len(want) {
		t.Fatalf("got %d spans %v, want %v", len(got), got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("span %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestMaskBooleanOps(t *testing.T) {
	a := New(80, 40)
	b := New(80, 40)
	a.SetRect(image.Rect(0, 0, 40, 40))
	b.SetRect(image.Rect(20, 0, 60, 40))

	or := a.Clone()
	if err := or.Or(b); err != nil {
		t.Fatal(err)
	}
	if or.Count() != 60*40 {
		t.Errorf("Or count = %d, want %d", or.Count(), 60*40)
	}

	andNot := a.Clone()
	if err := andNot.AndNot(b); err != nil {
		t.Fatal(err)
	}
	if andNot.Count() != 20*40 || andNot.At(25, 5) {
		t.Errorf("AndNot count = %d, want %d", andNot.Count(), 20*40)
	}

	and := a.Clone()
	if err := and.And(b); err != nil {
		t.Fatal(err)
	}
	if and.BoundingBox() != image.Rect(20, 0, 40, 40) {
		t.Errorf("And bbox = %v", and.BoundingBox())
	}

	if err := a.Or(New(10, 10)); err != ErrSizeMismatch {
		t.Errorf("Or with mismatched size = %v, want ErrSizeMismatch", err)
	}
}

func TestMaskOrAtAndCrop(t *testing.T) {
	src := New(10, 10)
	src.SetRect(image.Rect(2, 2, 8, 8))

	dst := New(100, 100)
	dst.OrAt(src, image.Pt(95, -3))
	if got, want := dst.BoundingBox(), image.Rect(97, 0, 100, 5); got != want {
		t.Errorf("OrAt bbox = %v, want %v", got, want)
	}

	dst.Clear()
	dst.OrAt(src, image.Pt(40, 50))
	crop := dst.Crop(image.Rect(40, 50, 50, 60))
	if !crop.Equal(src) {
		t.Error("Crop should recover the pasted mask")
	}
}

func TestMaskBoundingBox(t *testing.T) {
	m := New(300, 200)
	if !m.BoundingBox().Empty() {
		t.Error("empty mask should have empty bounding box")
	}
	m.Set(5, 190, true)
	m.Set(250, 7, true)
	if got, want := m.BoundingBox(), image.Rect(5, 7, 251, 191); got != want {
		t.Errorf("BoundingBox() = %v, want %v", got, want)
	}
}

func TestDiffBounds(t *testing.T) {
	a := New(200, 100)
	a.SetRect(image.Rect(10, 10, 50, 50))
	b := a.Clone()
	if !DiffBounds(a, b).Empty() {
		t.Error("equal masks should have empty diff bounds")
	}
	b.ClearRect(image.Rect(40, 20, 45, 30))
	b.Set(130, 70, true)
	if got, want := DiffBounds(a, b), image.Rect(40, 20, 131, 71); got != want {
		t.Errorf("DiffBounds() = %v, want %v", got, want)
	}
	if got, want := DiffBounds(a, New(10, 10)), a.Bounds(); got != want {
		t.Errorf("DiffBounds() of mismatched masks = %v, want %v", got, want)
	}
}

func TestNewFromImage(t *testing.T) {
	gray := image.NewGray(image.Rect(10, 10, 20, 20))
	gray.SetGray(12, 13, color.Gray{Y: 255})
	m := NewFromImage(gray)
	if m.Width() != 10 || !m.At(2, 3) || m.Count() != 1 {
		t.Errorf("gray mask: width %d, At(2,3)=%v, count %d", m.Width(), m.At(2, 3), m.Count())
	}

	rgba := image.NewRGBA(image.Rect(0, 0, 4, 4))
	rgba.Set(1, 1, color.RGBA{A: 255})
	if m := NewFromImage(rgba); !m.At(1, 1) || m.Count() != 1 {
		t.Error("rgba mask should use alpha")
	}

	back := NewFromImage(m.ToAlpha())
	if !back.Equal(m) {
		t.Error("ToAlpha round trip failed")
	}
}

func TestMaskHashIncremental(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	m := New(150, 40)
	for range 200 {
		m.Set(rng.IntN(150), rng.IntN(40), true)
	}
	h := m.Hash()

	before := m.Clone()
	m.SetRect(image.Rect(30, 10, 90, 20))
	m.ClearRect(image.Rect(0, 0, 10, 40))

	for i := range m.words {
		h = UpdateHash(h, i, before.words[i], m.words[i])
	}
	if h != m.Hash() {
		t.Errorf("incremental hash %#x != full hash %#x", h, m.Hash())
	}

	if New(10, 20).Hash() == New(20, 10).Hash() {
		t.Error("empty masks of different shapes should hash differently")
	}
}

func BenchmarkMaskOr(b *testing.B) {
	dst := New(2000, 1500)
	src := New(2000, 1500)
	src.SetRect(image.Rect(100, 100, 1900, 1400))
	b.ReportAllocs()
	for b.Loop() {
		_ = dst.Or(src)
	}
}
