package maskview

import (
	"fmt"
	"image"
	"io"

	// Scanned pages arrive as PNG, JPEG, TIFF or BMP.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// DecodeImage decodes a page image in any registered format and returns it
// as a Pixmap.
func DecodeImage(r io.Reader) (*Pixmap, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("maskview: decode image: %w", err)
	}
	Logger().Debug("decoded page image", "format", format, "bounds", img.Bounds())
	return FromImage(img), nil
}
