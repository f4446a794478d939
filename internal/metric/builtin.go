package metric

import (
	"fmt"
	"image"
	"math"

	"gonum.org/v1/gonum/stat"

	"sigilum/internal/recipe"
)

// Builtins returns a registry with ncc, mse, ink_iou, ssim and chamfer.
func Builtins() *Registry {
	return NewRegistry().MustRegister(
		Func{ID: "ncc", Fn: ncc},
		Func{ID: "mse", Fn: mse},
		Func{ID: "ink_iou", Fn: inkIoU},
		Func{ID: "ssim", Fn: ssim},
		Func{ID: "chamfer", Fn: chamfer},
	)
}

func sameSize(a, b *image.Gray) error {
	if a.Bounds().Size() != b.Bounds().Size() {
		return fmt.Errorf("image sizes differ: %v vs %v", a.Bounds().Size(), b.Bounds().Size())
	}
	return nil
}

func floats(img *image.Gray) []float64 {
	b := img.Bounds()
	out := make([]float64, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out = append(out, float64(img.GrayAt(x, y).Y)/255)
		}
	}
	return out
}

// ncc maps the Pearson correlation of the pixel vectors from [-1, 1] onto
// [0, 1]. Flat images have no defined correlation; they score 1 against an
// identical image and 0 otherwise.
func ncc(a, b *image.Gray, _ recipe.Params) (float64, error) {
	if err := sameSize(a, b); err != nil {
		return 0, err
	}
	x, y := floats(a), floats(b)
	if len(x) == 0 {
		return 0, fmt.Errorf("empty images")
	}
	if stat.Variance(x, nil) == 0 || stat.Variance(y, nil) == 0 {
		for i := range x {
			if x[i] != y[i] {
				return 0, nil
			}
		}
		return 1, nil
	}
	r := stat.Correlation(x, y, nil)
	return clamp01((r + 1) / 2), nil
}

// mse scores 1/(1+MSE) over pixels normalized to [0, 1].
func mse(a, b *image.Gray, _ recipe.Params) (float64, error) {
	if err := sameSize(a, b); err != nil {
		return 0, err
	}
	x, y := floats(a), floats(b)
	if len(x) == 0 {
		return 0, fmt.Errorf("empty images")
	}
	var sum float64
	for i := range x {
		d := x[i] - y[i]
		sum += d * d
	}
	return 1 / (1 + sum/float64(len(x))), nil
}

// inkIoU is the intersection-over-union of pixels darker than ink_level.
func inkIoU(a, b *image.Gray, params recipe.Params) (float64, error) {
	if err := sameSize(a, b); err != nil {
		return 0, err
	}
	level, err := params.Int("ink_level", 128)
	if err != nil {
		return 0, err
	}
	ab, bb := a.Bounds(), b.Bounds()
	var inter, union int
	for dy := 0; dy < ab.Dy(); dy++ {
		for dx := 0; dx < ab.Dx(); dx++ {
			inkA := int(a.GrayAt(ab.Min.X+dx, ab.Min.Y+dy).Y) < level
			inkB := int(b.GrayAt(bb.Min.X+dx, bb.Min.Y+dy).Y) < level
			if inkA && inkB {
				inter++
			}
			if inkA || inkB {
				union++
			}
		}
	}
	if union == 0 {
		return 1, nil
	}
	return float64(inter) / float64(union), nil
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
