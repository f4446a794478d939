package scoring

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"sigilum/internal/faults"
	"sigilum/internal/imageio"
)

// LoadReferences reads every image in dir with a supported extension. The
// result is sorted by file name.
func LoadReferences(dir string) ([]Reference, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, faults.Wrap(faults.ErrConfiguration, "scoring", "list references", dir, err)
	}
	var refs []Reference
	for _, entry := range entries {
		if entry.IsDir() || !slices.Contains(imageio.Extensions, strings.ToLower(filepath.Ext(entry.Name()))) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		img, err := imageio.Load(path)
		if err != nil {
			return nil, faults.Wrap(faults.ErrConfiguration, "scoring", "load reference", path, err)
		}
		refs = append(refs, Reference{ID: ReferenceID(path), Path: path, Image: img})
	}
	slices.SortFunc(refs, func(a, b Reference) int { return strings.Compare(a.ID, b.ID) })
	return refs, nil
}
