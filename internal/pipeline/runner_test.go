package pipeline

import (
	"context"
	"errors"
	"image"
	"sync/atomic"
	"testing"

	"sigilum/internal/faults"
	"sigilum/internal/logging"
	"sigilum/internal/phase"
	"sigilum/internal/recipe"
	"sigilum/internal/stagecache"
)

func input() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 4)
	}
	return img
}

func newRunner(t *testing.T, reg *phase.Registry) *Runner {
	t.Helper()
	backend, err := stagecache.NewDirBackend(t.TempDir(), logging.NewNop())
	if err != nil {
		t.Fatalf("NewDirBackend: %v", err)
	}
	return NewRunner(reg, stagecache.New(backend, logging.NewNop()), logging.NewNop())
}

var threeSteps = recipe.Definition{
	{Phase: "BoxBlur", Params: recipe.Params{"radius": 1}},
	{Phase: "Threshold", Params: recipe.Params{"level": 100}},
	{Phase: "Invert"},
}

func TestRunIsIdempotentAndSecondRunHits(t *testing.T) {
	runner := newRunner(t, phase.Builtins())
	ctx := context.Background()

	first, trace1, err := runner.Run(ctx, input(), threeSteps, true)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, trace2, err := runner.Run(ctx, input(), threeSteps, true)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if string(first.Pix) != string(second.Pix) {
		t.Fatal("outputs differ between runs")
	}
	if len(trace1) != 3 || len(trace2) != 3 {
		t.Fatalf("expected 3 trace steps, got %d and %d", len(trace1), len(trace2))
	}
	for i := range trace2 {
		if trace1[i].CacheHit {
			t.Fatalf("step %d of a cold run should miss", i+1)
		}
		if !trace2[i].CacheHit {
			t.Fatalf("step %d of the second run should hit", i+1)
		}
		if trace1[i].CacheKey != trace2[i].CacheKey {
			t.Fatalf("step %d key changed between runs", i+1)
		}
		if trace2[i].Index != i+1 || trace2[i].Phase != threeSteps[i].Phase {
			t.Fatalf("unexpected trace entry %+v", trace2[i])
		}
	}
}

func TestRunWithoutCacheStillStores(t *testing.T) {
	var calls atomic.Int32
	reg := phase.NewRegistry().MustRegister(phase.Func{ID: "Count", Fn: func(img *image.Gray, _ recipe.Params) (*image.Gray, error) {
		calls.Add(1)
		return img, nil
	}})
	runner := newRunner(t, reg)
	steps := recipe.Definition{{Phase: "Count"}}

	for range 2 {
		_, trace, err := runner.Run(context.Background(), input(), steps, false)
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if trace[0].CacheHit {
			t.Fatal("cache must not be read when disabled")
		}
	}
	_, trace, err := runner.Run(context.Background(), input(), steps, true)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !trace[0].CacheHit || calls.Load() != 2 {
		t.Fatalf("expected a hit from the stored entry, hit=%v calls=%d", trace[0].CacheHit, calls.Load())
	}
}

func TestRunUnknownPhase(t *testing.T) {
	runner := newRunner(t, phase.Builtins())
	_, _, err := runner.Run(context.Background(), input(), recipe.Definition{{Phase: "Deskew"}}, true)
	if !errors.Is(err, faults.ErrLookup) {
		t.Fatalf("expected lookup error, got %v", err)
	}
}

func TestRunPhaseFailureAborts(t *testing.T) {
	boom := errors.New("boom")
	reg := phase.Builtins().MustRegister(phase.Func{ID: "Fail", Fn: func(*image.Gray, recipe.Params) (*image.Gray, error) {
		return nil, boom
	}})
	runner := newRunner(t, reg)
	steps := recipe.Definition{{Phase: "Invert"}, {Phase: "Fail"}, {Phase: "Invert"}}

	_, trace, err := runner.Run(context.Background(), input(), steps, true)
	if !errors.Is(err, faults.ErrComputation) || !errors.Is(err, boom) {
		t.Fatalf("expected wrapped computation failure, got %v", err)
	}
	if len(trace) != 1 {
		t.Fatalf("expected trace up to the failing step, got %d", len(trace))
	}
}

func TestRunHonoursCancellation(t *testing.T) {
	runner := newRunner(t, phase.Builtins())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := runner.Run(ctx, input(), threeSteps, true); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}

func TestRunWithoutCache(t *testing.T) {
	runner := NewRunner(phase.Builtins(), nil, nil)
	out, trace, err := runner.Run(context.Background(), input(), threeSteps, true)
	if err != nil || out == nil || len(trace) != 3 {
		t.Fatalf("nil cache run: out=%v trace=%d err=%v", out, len(trace), err)
	}
}
