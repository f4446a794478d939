package phase

import (
	"fmt"
	"image"

	"sigilum/internal/imageio"
	"sigilum/internal/recipe"
)

// Builtins returns a registry holding the phases shipped with sigilum.
func Builtins() *Registry {
	return NewRegistry().MustRegister(
		Func{ID: "Invert", Fn: invert},
		Func{ID: "Threshold", Fn: threshold},
		Func{ID: "BoxBlur", Fn: boxBlur},
		Func{ID: "AutoCrop", Fn: autoCrop},
		Func{ID: "Resize", Fn: resize},
	)
}

func invert(img *image.Gray, _ recipe.Params) (*image.Gray, error) {
	out := image.NewGray(img.Bounds())
	for i, v := range img.Pix {
		out.Pix[i] = 255 - v
	}
	return out, nil
}

// threshold maps pixels at or above level to white and the rest to black.
// invert swaps the two outputs.
func threshold(img *image.Gray, params recipe.Params) (*image.Gray, error) {
	level, err := params.Int("level", 128)
	if err != nil {
		return nil, err
	}
	if level < 0 || level > 255 {
		return nil, fmt.Errorf("threshold level %d outside 0..255", level)
	}
	inv, err := params.Bool("invert", false)
	if err != nil {
		return nil, err
	}
	hi, lo := uint8(255), uint8(0)
	if inv {
		hi, lo = lo, hi
	}
	out := image.NewGray(img.Bounds())
	for i, v := range img.Pix {
		if int(v) >= level {
			out.Pix[i] = hi
		} else {
			out.Pix[i] = lo
		}
	}
	return out, nil
}

// boxBlur averages each pixel over a (2r+1)^2 window clamped at the borders.
func boxBlur(img *image.Gray, params recipe.Params) (*image.Gray, error) {
	radius, err := params.Int("radius", 1)
	if err != nil {
		return nil, err
	}
	if radius < 0 {
		return nil, fmt.Errorf("blur radius %d is negative", radius)
	}
	b := img.Bounds()
	out := image.NewGray(b)
	if radius == 0 {
		copy(out.Pix, img.Pix)
		return out, nil
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			sum, n := 0, 0
			for dy := -radius; dy <= radius; dy++ {
				yy := y + dy
				if yy < b.Min.Y || yy >= b.Max.Y {
					continue
				}
				for dx := -radius; dx <= radius; dx++ {
					xx := x + dx
					if xx < b.Min.X || xx >= b.Max.X {
						continue
					}
					sum += int(img.GrayAt(xx, yy).Y)
					n++
				}
			}
			out.Pix[out.PixOffset(x, y)] = uint8((sum + n/2) / n)
		}
	}
	return out, nil
}

// autoCrop trims the image to the bounding box of pixels darker than
// ink_level, padded by pad pixels. Images with no ink are returned whole.
func autoCrop(img *image.Gray, params recipe.Params) (*image.Gray, error) {
	inkLevel, err := params.Int("ink_level", 128)
	if err != nil {
		return nil, err
	}
	pad, err := params.Int("pad", 0)
	if err != nil {
		return nil, err
	}
	if pad < 0 {
		return nil, fmt.Errorf("crop pad %d is negative", pad)
	}
	b := img.Bounds()
	box := image.Rectangle{}
	found := false
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if int(img.GrayAt(x, y).Y) >= inkLevel {
				continue
			}
			pt := image.Rect(x, y, x+1, y+1)
			if !found {
				box, found = pt, true
			} else {
				box = box.Union(pt)
			}
		}
	}
	if !found {
		return imageio.ToGray(clone(img)), nil
	}
	box = image.Rect(box.Min.X-pad, box.Min.Y-pad, box.Max.X+pad, box.Max.Y+pad).Intersect(b)
	return imageio.ToGray(clone(img).SubImage(box)), nil
}

func resize(img *image.Gray, params recipe.Params) (*image.Gray, error) {
	width, err := params.Int("width", 0)
	if err != nil {
		return nil, err
	}
	height, err := params.Int("height", 0)
	if err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("resize needs positive width and height, got %dx%d", width, height)
	}
	out := imageio.Resize(img, width, height)
	if out == img {
		return clone(img), nil
	}
	return out, nil
}

func clone(img *image.Gray) *image.Gray {
	out := image.NewGray(img.Bounds())
	for y := img.Rect.Min.Y; y < img.Rect.Max.Y; y++ {
		copy(out.Pix[out.PixOffset(img.Rect.Min.X, y):], img.Pix[img.PixOffset(img.Rect.Min.X, y):img.PixOffset(img.Rect.Max.X, y)])
	}
	return out
}
