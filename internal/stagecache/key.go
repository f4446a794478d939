package stagecache

import (
	"image"
	"strings"

	"sigilum/internal/faults"
	"sigilum/internal/fingerprint"
	"sigilum/internal/recipe"
)

// ContentPrefix is the number of content-hash hex characters kept in a key.
const ContentPrefix = 16

// Key addresses one stage output.
type Key string

// ComputeKey derives the cache key for applying phase with params to img.
func ComputeKey(phase string, params recipe.Params, img *image.Gray) (Key, error) {
	phase = strings.TrimSpace(phase)
	if phase == "" {
		return "", faults.Configf("cache key needs a phase identifier")
	}
	if params == nil {
		params = recipe.Params{}
	}
	paramsFP, err := fingerprint.Of(params)
	if err != nil {
		return "", err
	}
	content := fingerprint.ContentHash(img)[:ContentPrefix]
	return Key(phase + "_" + paramsFP + "_" + content), nil
}

func (k Key) String() string { return string(k) }
