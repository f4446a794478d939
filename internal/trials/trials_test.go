package trials

import (
	"errors"
	"reflect"
	"testing"

	"sigilum/internal/faults"
	"sigilum/internal/recipe"
)

func baseDefinition() recipe.Definition {
	return recipe.Definition{
		{Phase: "Grayscale", Params: recipe.Params{}},
		{Phase: "Binarize", Params: recipe.Params{"mode": "adaptive", "block_size": 35}},
		{Phase: "AutoCrop", Params: recipe.Params{"pad": 4}},
	}
}

func binarizeSpace() SearchSpace {
	return SearchSpace{"Binarize": {{"block_size", []any{21, 29}}, {"c", []any{3, 5}}}}
}

func TestExpandTrialCountAndOrder(t *testing.T) {
	got, err := Expand(baseDefinition(), binarizeSpace(), 0)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 trials, got %d", len(got))
	}

	want := []recipe.Params{
		{"mode": "adaptive", "block_size": 21, "c": 3},
		{"mode": "adaptive", "block_size": 21, "c": 5},
		{"mode": "adaptive", "block_size": 29, "c": 3},
		{"mode": "adaptive", "block_size": 29, "c": 5},
	}
	for i, trial := range got {
		if trial.Index != i+1 {
			t.Fatalf("trial %d has index %d", i, trial.Index)
		}
		if !reflect.DeepEqual(trial.Steps[1].Params, want[i]) {
			t.Fatalf("trial %d binarize params = %v, want %v", i+1, trial.Steps[1].Params, want[i])
		}
		if !reflect.DeepEqual(trial.Steps[0], baseDefinition()[0]) || !reflect.DeepEqual(trial.Steps[2], baseDefinition()[2]) {
			t.Fatalf("trial %d changed an unvaried step", i+1)
		}
	}
}

func TestExpandMaxTrialsIsPrefix(t *testing.T) {
	all, err := Expand(baseDefinition(), binarizeSpace(), 0)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	limited, err := Expand(baseDefinition(), binarizeSpace(), 2)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected 2 trials, got %d", len(limited))
	}
	for i := range limited {
		if limited[i].Signature != all[i].Signature {
			t.Fatalf("trial %d is not a prefix of the full expansion", i+1)
		}
	}

	over, _ := Expand(baseDefinition(), binarizeSpace(), 100)
	if len(over) != 4 {
		t.Fatalf("limit above the product should not add trials, got %d", len(over))
	}
}

func TestExpandOuterProductLastStepFastest(t *testing.T) {
	space := SearchSpace{
		"Grayscale": {{"gamma", []any{1, 2}}},
		"AutoCrop":  {{"pad", []any{0, 8}}},
	}
	got, err := Expand(baseDefinition(), space, 0)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	var pairs [][2]any
	for _, trial := range got {
		pairs = append(pairs, [2]any{trial.Steps[0].Params["gamma"], trial.Steps[2].Params["pad"]})
	}
	want := [][2]any{{1, 0}, {1, 8}, {2, 0}, {2, 8}}
	if !reflect.DeepEqual(pairs, want) {
		t.Fatalf("got order %v, want %v", pairs, want)
	}
}

func TestExpandFollowsProfileParameterOrder(t *testing.T) {
	base := recipe.Definition{{Phase: "Binarize", Params: recipe.Params{}}}
	space := SearchSpace{"Binarize": {{"window", []any{21, 29}}, {"C", []any{3, 5}}}}
	got, err := Expand(base, space, 2)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	want := []recipe.Params{{"window": 21, "C": 3}, {"window": 21, "C": 5}}
	for i := range want {
		if !reflect.DeepEqual(got[i].Steps[0].Params, want[i]) {
			t.Fatalf("trial %d params = %v, want %v", i+1, got[i].Steps[0].Params, want[i])
		}
	}
}

func TestSignaturesAreStable(t *testing.T) {
	first, _ := Expand(baseDefinition(), binarizeSpace(), 0)
	second, _ := Expand(baseDefinition(), binarizeSpace(), 0)
	seen := map[string]bool{}
	for i := range first {
		if first[i].Signature != second[i].Signature {
			t.Fatalf("signature of trial %d changed between expansions", i+1)
		}
		seen[first[i].Signature] = true
	}
	if len(seen) != 4 {
		t.Fatalf("expected 4 distinct signatures, got %d", len(seen))
	}

	a := recipe.Definition{{Phase: "Binarize", Params: recipe.Params{"x": 1, "y": 2}}}
	b := recipe.Definition{{Phase: "Binarize", Params: recipe.Params{"y": 2, "x": 1}}}
	sigA, _ := Signature(a)
	sigB, _ := Signature(b)
	if sigA != sigB {
		t.Fatal("key insertion order must not affect the signature")
	}
}

func TestScalarsAreSingleCandidates(t *testing.T) {
	space := SearchSpace{"Binarize": {{"mode", "otsu"}, {"c", []any{1, 2}}}}
	got, err := Expand(baseDefinition(), space, 0)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(got) != 2 || got[0].Steps[1].Params["mode"] != "otsu" {
		t.Fatalf("unexpected expansion %+v", got)
	}
}

func TestTypedSliceCandidates(t *testing.T) {
	space := SearchSpace{"Binarize": {{"c", []int{1, 2, 3}}}}
	got, err := Expand(baseDefinition(), space, 0)
	if err != nil || len(got) != 3 {
		t.Fatalf("expected 3 trials, got %d err=%v", len(got), err)
	}
}

func TestValidateRejectsBadCandidates(t *testing.T) {
	cases := map[string]SearchSpace{
		"nested map":     {"Binarize": {{"c", map[string]any{"a": 1}}}},
		"empty list":     {"Binarize": {{"c", []any{}}}},
		"nested list":    {"Binarize": {{"c", []any{[]any{1}}}}},
		"duplicate name": {"Binarize": {{"c", 1}, {"c", 2}}},
		"empty name":     {"Binarize": {{"", 1}}},
	}
	for name, space := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Expand(baseDefinition(), space, 0); !errors.Is(err, faults.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestEmptyBaseYieldsNoTrials(t *testing.T) {
	got, err := Expand(nil, binarizeSpace(), 0)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected no trials, got %d err=%v", len(got), err)
	}
	single, err := Single(nil)
	if err != nil || single.Index != 1 || len(single.Steps) != 0 {
		t.Fatalf("unexpected fallback trial %+v err=%v", single, err)
	}
}

func TestSequenceIsLazyAndRestartable(t *testing.T) {
	seq, err := NewSequence(baseDefinition(), binarizeSpace(), 3)
	if err != nil {
		t.Fatalf("NewSequence: %v", err)
	}
	if seq.Len() != 3 {
		t.Fatalf("expected Len 3, got %d", seq.Len())
	}
	collect := func() []string {
		var sigs []string
		for _, trial := range seq.All() {
			sigs = append(sigs, trial.Signature)
		}
		return sigs
	}
	first, second := collect(), collect()
	if len(first) != 3 || !reflect.DeepEqual(first, second) {
		t.Fatalf("iteration not restartable: %v vs %v", first, second)
	}
	mid, err := seq.At(1)
	if err != nil || mid.Signature != first[1] || mid.Index != 2 {
		t.Fatalf("At(1) mismatch: %+v err=%v", mid, err)
	}
	if _, err := seq.At(3); err == nil {
		t.Fatal("expected out-of-range error")
	}

	count := 0
	for range seq.All() {
		count++
		break
	}
	if count != 1 {
		t.Fatal("early break not honoured")
	}
}

func TestTrialsDoNotShareParams(t *testing.T) {
	got, _ := Expand(baseDefinition(), binarizeSpace(), 0)
	got[0].Steps[1].Params["c"] = 99
	again, _ := Expand(baseDefinition(), binarizeSpace(), 0)
	if again[0].Steps[1].Params["c"] != 3 {
		t.Fatal("expansion leaked mutable state")
	}
	if got[1].Steps[1].Params["c"] == 99 {
		t.Fatal("trials share parameter maps")
	}
}

func TestVaryingAndUnusedPhases(t *testing.T) {
	got, _ := Expand(baseDefinition(), binarizeSpace(), 1)
	varying := Varying(got[0].Steps, binarizeSpace())
	if len(varying) != 1 || varying["Binarize"]["block_size"] != 21 {
		t.Fatalf("unexpected varying params %v", varying)
	}

	space := SearchSpace{"Binarize": {{"c", 1}}, "Deskew": {{"angle", []any{1, 2}}}}
	if unused := UnusedPhases(baseDefinition(), space); !reflect.DeepEqual(unused, []string{"Deskew"}) {
		t.Fatalf("unexpected unused phases %v", unused)
	}
}
