package phase

import (
	"errors"
	"image"
	"testing"

	"sigilum/internal/faults"
	"sigilum/internal/recipe"
)

func gradient(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 255 / (len(img.Pix) - 1))
	}
	return img
}

func TestRegistryLookup(t *testing.T) {
	reg := Builtins()
	if _, err := reg.Lookup("Threshold"); err != nil {
		t.Fatalf("Lookup(Threshold): %v", err)
	}
	if _, err := reg.Lookup("Sharpen"); !errors.Is(err, faults.ErrLookup) {
		t.Fatalf("expected lookup error, got %v", err)
	}
	if err := reg.Register(Func{ID: "Invert"}); !errors.Is(err, faults.ErrConfiguration) {
		t.Fatalf("expected duplicate registration to fail, got %v", err)
	}
	for _, name := range []string{"Blur/Box", "Blur Box", "Blur:Box", ""} {
		if err := NewRegistry().Register(Func{ID: name}); !errors.Is(err, faults.ErrConfiguration) {
			t.Fatalf("expected %q to be rejected, got %v", name, err)
		}
	}
	if err := NewRegistry().Register(Func{ID: "Blur-Box_2.v1"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	names := reg.Names()
	if len(names) != 5 || names[0] != "AutoCrop" {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestBuiltinsDoNotMutateInput(t *testing.T) {
	reg := Builtins()
	params := map[string]recipe.Params{
		"Invert":    nil,
		"Threshold": {"level": 100, "invert": true},
		"BoxBlur":   {"radius": 2},
		"AutoCrop":  {"ink_level": 64, "pad": 1},
		"Resize":    {"width": 4, "height": 3},
	}
	for _, name := range reg.Names() {
		t.Run(name, func(t *testing.T) {
			src := gradient(6, 5)
			before := append([]uint8(nil), src.Pix...)
			p, _ := reg.Lookup(name)
			first, err := p.Apply(src, params[name])
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			second, err := p.Apply(src, params[name])
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if string(src.Pix) != string(before) {
				t.Fatal("input mutated")
			}
			if string(first.Pix) != string(second.Pix) {
				t.Fatal("phase is not deterministic")
			}
		})
	}
}

func TestThreshold(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 3, 1))
	src.Pix = []uint8{10, 128, 200}
	out, err := threshold(src, recipe.Params{"level": 128})
	if err != nil {
		t.Fatalf("threshold: %v", err)
	}
	if out.Pix[0] != 0 || out.Pix[1] != 255 || out.Pix[2] != 255 {
		t.Fatalf("unexpected pixels %v", out.Pix)
	}
	if _, err := threshold(src, recipe.Params{"level": 300}); err == nil {
		t.Fatal("expected out-of-range level error")
	}
}

func TestAutoCropFindsInk(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 10, 10))
	for i := range src.Pix {
		src.Pix[i] = 255
	}
	src.Pix[src.PixOffset(4, 5)] = 0
	src.Pix[src.PixOffset(6, 6)] = 10

	out, err := autoCrop(src, recipe.Params{"ink_level": 128, "pad": 1})
	if err != nil {
		t.Fatalf("autoCrop: %v", err)
	}
	if got := out.Bounds(); got != image.Rect(0, 0, 5, 4) {
		t.Fatalf("unexpected crop %v", got)
	}
	if out.GrayAt(1, 1).Y != 0 {
		t.Fatal("ink pixel not at expected offset")
	}

	blank := image.NewGray(image.Rect(0, 0, 3, 3))
	for i := range blank.Pix {
		blank.Pix[i] = 255
	}
	whole, err := autoCrop(blank, nil)
	if err != nil {
		t.Fatalf("autoCrop blank: %v", err)
	}
	if whole.Bounds() != blank.Bounds() {
		t.Fatalf("blank image should stay whole, got %v", whole.Bounds())
	}
}

func TestResizeRequiresDimensions(t *testing.T) {
	if _, err := resize(gradient(2, 2), recipe.Params{"width": 4}); err == nil {
		t.Fatal("expected error without height")
	}
}
