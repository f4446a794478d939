package imageio

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// EdgeColor marks candidate edges in overlays.
var EdgeColor = color.RGBA{R: 255, A: 255}

// EdgeMask returns a row-major mask of pixels whose Sobel gradient magnitude
// (|gx|+|gy|, 8-bit scale) reaches level. Borders replicate edge pixels.
func EdgeMask(img *image.Gray, level int) []bool {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	at := func(x, y int) int {
		x = min(max(x, 0), w-1)
		y = min(max(y, 0), h-1)
		return int(img.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
	}
	mask := make([]bool, w*h)
	for y := range h {
		for x := range w {
			gx := (at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1)) - (at(x-1, y-1) + 2*at(x-1, y) + at(x-1, y+1))
			gy := (at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)) - (at(x-1, y-1) + 2*at(x, y-1) + at(x+1, y-1))
			mask[y*w+x] = abs(gx)+abs(gy) >= level
		}
	}
	return mask
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Overlay paints the edges of candidate in EdgeColor over base. Both images
// are scaled to width x height first.
func Overlay(base, candidate *image.Gray, width, height, edgeLevel int) *image.RGBA {
	base = Resize(base, width, height)
	candidate = Resize(candidate, width, height)
	out := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(out, out.Bounds(), base, base.Bounds().Min, draw.Src)
	for i, edge := range EdgeMask(candidate, edgeLevel) {
		if edge {
			out.SetRGBA(i%width, i/width, EdgeColor)
		}
	}
	return out
}

// SideBySide places a and b next to each other, each scaled to width x height.
func SideBySide(a, b *image.Gray, width, height int) *image.Gray {
	out := image.NewGray(image.Rect(0, 0, 2*width, height))
	a = Resize(a, width, height)
	b = Resize(b, width, height)
	draw.Draw(out, image.Rect(0, 0, width, height), a, a.Bounds().Min, draw.Src)
	draw.Draw(out, image.Rect(width, 0, 2*width, height), b, b.Bounds().Min, draw.Src)
	return out
}
