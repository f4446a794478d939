package imageio

import (
	"image"
	"image/color"
	"testing"
)

func halves(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := w / 2; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	return img
}

func uniformGray(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func TestEdgeMaskFindsBoundary(t *testing.T) {
	mask := EdgeMask(halves(6, 4), 80)
	for y := 0; y < 4; y++ {
		for x := 0; x < 6; x++ {
			want := x == 2 || x == 3
			if mask[y*6+x] != want {
				t.Fatalf("edge at (%d,%d) = %v, want %v", x, y, mask[y*6+x], want)
			}
		}
	}
	for _, edge := range EdgeMask(uniformGray(4, 4, 90), 1) {
		if edge {
			t.Fatal("flat image has no edges")
		}
	}
}

func TestOverlayMarksCandidateEdges(t *testing.T) {
	out := Overlay(uniformGray(6, 4, 128), halves(6, 4), 6, 4, 80)
	if got := out.RGBAAt(2, 1); got != EdgeColor {
		t.Fatalf("expected edge color at boundary, got %v", got)
	}
	if got := out.RGBAAt(0, 0); got != (color.RGBA{R: 128, G: 128, B: 128, A: 255}) {
		t.Fatalf("expected base pixel away from edges, got %v", got)
	}
}

func TestSideBySide(t *testing.T) {
	out := SideBySide(uniformGray(3, 2, 10), uniformGray(3, 2, 200), 3, 2)
	if out.Bounds().Dx() != 6 || out.Bounds().Dy() != 2 {
		t.Fatalf("unexpected bounds %v", out.Bounds())
	}
	if out.GrayAt(0, 0).Y != 10 || out.GrayAt(5, 1).Y != 200 {
		t.Fatalf("unexpected pixels %v", out.Pix)
	}
}
