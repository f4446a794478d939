// Package imageio loads and stores the grayscale images the engine works on.
//
// Decoding accepts PNG, JPEG, GIF, TIFF, BMP and WebP. Everything is converted
// to *image.Gray on the way in; artifacts are always written as PNG.
package imageio

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"

	// Registered decoders.
	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"golang.org/x/image/draw"

	"sigilum/internal/fileutil"
)

// Extensions lists file suffixes accepted for reference galleries.
var Extensions = []string{".png", ".jpg", ".jpeg", ".gif", ".tif", ".tiff", ".bmp", ".webp"}

// Load reads and decodes an image file as grayscale.
func Load(path string) (*image.Gray, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image %s: %w", path, err)
	}
	img, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", path, err)
	}
	return img, nil
}

// Decode decodes any registered format into grayscale.
func Decode(data []byte) (*image.Gray, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return ToGray(img), nil
}

// ToGray converts img to an *image.Gray anchored at the origin. Gray inputs
// that already start at the origin are returned as-is.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Rect.Min == (image.Point{}) {
		return g
	}
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// EncodePNG renders img as PNG bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// WritePNG encodes img to path via a temp file and rename.
func WritePNG(path string, img image.Image) error {
	data, err := EncodePNG(img)
	if err != nil {
		return err
	}
	return fileutil.WriteFileAtomic(path, data)
}

// Resize scales img to width x height with bilinear interpolation. Images
// already at the target size are returned unchanged.
func Resize(img *image.Gray, width, height int) *image.Gray {
	if width <= 0 || height <= 0 {
		return img
	}
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return img
	}
	out := image.NewGray(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(out, out.Bounds(), img, b, draw.Src, nil)
	return out
}
