package maskview

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"os"
)

// Pixmap represents a rectangular pixel buffer.
// Pixels are stored as premultiplied RGBA, 4 bytes per pixel, rows packed
// without padding, so the layout matches image.RGBA with Stride = 4*width.
type Pixmap struct {
	width  int
	height int
	data   []uint8
}

// NewPixmap creates a new, fully transparent pixmap with the given dimensions.
// Negative dimensions are treated as zero.
func NewPixmap(width, height int) *Pixmap {
	width, height = max(width, 0), max(height, 0)
	return &Pixmap{
		width:  width,
		height: height,
		data:   make([]uint8, width*height*4),
	}
}

// Width returns the width of the pixmap.
func (p *Pixmap) Width() int {
	return p.width
}

// Height returns the height of the pixmap.
func (p *Pixmap) Height() int {
	return p.height
}

// Data returns the raw pixel data (RGBA format).
func (p *Pixmap) Data() []uint8 {
	return p.data
}

// RGBAAt returns the color of a single pixel, or transparent black outside
// the pixmap.
func (p *Pixmap) RGBAAt(x, y int) color.RGBA {
	if x < 0 || x >= p.width || y < 0 || y >= p.height {
		return color.RGBA{}
	}
	i := (y*p.width + x) * 4
	return color.RGBA{R: p.data[i], G: p.data[i+1], B: p.data[i+2], A: p.data[i+3]}
}

// SetRGBA sets the color of a single pixel.
func (p *Pixmap) SetRGBA(x, y int, c color.RGBA) {
	if x < 0 || x >= p.width || y < 0 || y >= p.height {
		return
	}
	i := (y*p.width + x) * 4
	p.data[i+0] = c.R
	p.data[i+1] = c.G
	p.data[i+2] = c.B
	p.data[i+3] = c.A
}

// Fill sets every pixel to c.
func (p *Pixmap) Fill(c color.RGBA) {
	if len(p.data) == 0 {
		return
	}
	p.data[0], p.data[1], p.data[2], p.data[3] = c.R, c.G, c.B, c.A
	for n := 4; n < len(p.data); n *= 2 {
		copy(p.data[n:], p.data[:n])
	}
}

// Clone returns a deep copy of p.
func (p *Pixmap) Clone() *Pixmap {
	return &Pixmap{
		width:  p.width,
		height: p.height,
		data:   bytes.Clone(p.data),
	}
}

// Equal reports whether p and o have the same size and pixels.
func (p *Pixmap) Equal(o *Pixmap) bool {
	if p == nil || o == nil {
		return p == o
	}
	return p.width == o.width && p.height == o.height && bytes.Equal(p.data, o.data)
}

// ToImage converts the pixmap to an image.RGBA. The result is a copy.
func (p *Pixmap) ToImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, p.width, p.height))
	copy(img.Pix, p.data)
	return img
}

// rgba returns an image.RGBA sharing p's pixels.
func (p *Pixmap) rgba() *image.RGBA {
	return &image.RGBA{
		Pix:    p.data,
		Stride: p.width * 4,
		Rect:   image.Rect(0, 0, p.width, p.height),
	}
}

// FromImage creates a pixmap from an image. The result's origin is the
// top-left corner of img.Bounds().
func FromImage(img image.Image) *Pixmap {
	b := img.Bounds()
	pm := NewPixmap(b.Dx(), b.Dy())
	if src, ok := img.(*image.RGBA); ok {
		for y := 0; y < pm.height; y++ {
			i := src.PixOffset(b.Min.X, b.Min.Y+y)
			copy(pm.data[y*pm.width*4:(y+1)*pm.width*4], src.Pix[i:i+pm.width*4])
		}
		return pm
	}
	draw.Draw(pm.rgba(), pm.Bounds(), img, b.Min, draw.Src)
	return pm
}

// EncodePNG writes the pixmap to w in PNG format.
func (p *Pixmap) EncodePNG(w io.Writer) error {
	return png.Encode(w, p.rgba())
}

// SavePNG saves the pixmap to a PNG file.
func (p *Pixmap) SavePNG(path string) error {
	f, err := os.Create(path) //nolint:gosec // path is user-provided intentionally
	if err != nil {
		return err
	}
	if err := p.EncodePNG(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// At implements the image.Image interface.
func (p *Pixmap) At(x, y int) color.Color {
	return p.RGBAAt(x, y)
}

// Bounds implements the image.Image interface.
func (p *Pixmap) Bounds() image.Rectangle {
	return image.Rect(0, 0, p.width, p.height)
}

// ColorModel implements the image.Image interface.
func (p *Pixmap) ColorModel() color.Model {
	return color.RGBAModel
}
