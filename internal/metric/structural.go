package metric

import (
	"fmt"
	"image"
	"math"

	"gonum.org/v1/gonum/stat"

	"sigilum/internal/imageio"
	"sigilum/internal/recipe"
)

const (
	ssimK1 = 0.01
	ssimK2 = 0.03
)

// ssim is the mean structural similarity over every win_size x win_size
// window (default 7) of pixels normalized to [0, 1], clamped to [0, 1].
// Images smaller than the window use the largest odd window that fits.
func ssim(a, b *image.Gray, params recipe.Params) (float64, error) {
	if err := sameSize(a, b); err != nil {
		return 0, err
	}
	win, err := params.Int("win_size", 7)
	if err != nil {
		return 0, err
	}
	if win < 1 {
		return 0, fmt.Errorf("win_size must be >= 1, got %d", win)
	}
	w, h := a.Bounds().Dx(), a.Bounds().Dy()
	if w == 0 || h == 0 {
		return 0, fmt.Errorf("empty images")
	}
	win = min(win, w, h)
	if win%2 == 0 {
		win--
	}
	x, y := floats(a), floats(b)
	c1, c2 := ssimK1*ssimK1, ssimK2*ssimK2
	n := float64(win * win)
	covNorm := 1.0
	if n > 1 {
		covNorm = n / (n - 1)
	}
	wx := make([]float64, 0, win*win)
	wy := make([]float64, 0, win*win)
	var total float64
	var windows int
	for top := 0; top+win <= h; top++ {
		for left := 0; left+win <= w; left++ {
			wx, wy = wx[:0], wy[:0]
			for r := top; r < top+win; r++ {
				wx = append(wx, x[r*w+left:r*w+left+win]...)
				wy = append(wy, y[r*w+left:r*w+left+win]...)
			}
			mx, my := stat.Mean(wx, nil), stat.Mean(wy, nil)
			var sxx, syy, sxy float64
			for i := range wx {
				dx, dy := wx[i]-mx, wy[i]-my
				sxx += dx * dx
				syy += dy * dy
				sxy += dx * dy
			}
			vx, vy, cov := covNorm*sxx/n, covNorm*syy/n, covNorm*sxy/n
			num := (2*mx*my + c1) * (2*cov + c2)
			den := (mx*mx + my*my + c1) * (vx + vy + c2)
			total += num / den
			windows++
		}
	}
	return clamp01(total / float64(windows)), nil
}

// chamfer scores 1/(1+d) where d is the mean of the two directed chamfer
// distances between the Sobel edge sets at edge_thresh (default 80). Two
// edgeless images score 1; an edgeless image against one with edges scores 0.
func chamfer(a, b *image.Gray, params recipe.Params) (float64, error) {
	if err := sameSize(a, b); err != nil {
		return 0, err
	}
	level, err := params.Int("edge_thresh", 80)
	if err != nil {
		return 0, err
	}
	w, h := a.Bounds().Dx(), a.Bounds().Dy()
	if w == 0 || h == 0 {
		return 0, fmt.Errorf("empty images")
	}
	ea, eb := imageio.EdgeMask(a, level), imageio.EdgeMask(b, level)
	na, nb := count(ea), count(eb)
	switch {
	case na == 0 && nb == 0:
		return 1, nil
	case na == 0 || nb == 0:
		return 0, nil
	}
	da, db := distanceTransform(ea, w, h), distanceTransform(eb, w, h)
	d := (meanAt(da, eb) + meanAt(db, ea)) / 2
	return 1 / (1 + d), nil
}

func count(mask []bool) int {
	n := 0
	for _, v := range mask {
		if v {
			n++
		}
	}
	return n
}

func meanAt(dist []float64, mask []bool) float64 {
	var vals []float64
	for i, v := range mask {
		if v {
			vals = append(vals, dist[i])
		}
	}
	return stat.Mean(vals, nil)
}

// distanceTransform approximates the Euclidean distance to the nearest set
// pixel with a two-pass 3x3 chamfer mask (1, √2).
func distanceTransform(mask []bool, w, h int) []float64 {
	inf := math.Inf(1)
	dist := make([]float64, w*h)
	for i, v := range mask {
		if !v {
			dist[i] = inf
		}
	}
	relax := func(x, y, dx, dy int, cost float64) {
		nx, ny := x+dx, y+dy
		if nx < 0 || ny < 0 || nx >= w || ny >= h {
			return
		}
		if d := dist[ny*w+nx] + cost; d < dist[y*w+x] {
			dist[y*w+x] = d
		}
	}
	for y := range h {
		for x := range w {
			relax(x, y, -1, 0, 1)
			relax(x, y, 0, -1, 1)
			relax(x, y, -1, -1, math.Sqrt2)
			relax(x, y, 1, -1, math.Sqrt2)
		}
	}
	for y := h - 1; y >= 0; y-- {
		for x := w - 1; x >= 0; x-- {
			relax(x, y, 1, 0, 1)
			relax(x, y, 0, 1, 1)
			relax(x, y, 1, 1, math.Sqrt2)
			relax(x, y, -1, 1, math.Sqrt2)
		}
	}
	return dist
}
