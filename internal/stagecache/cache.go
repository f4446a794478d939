package stagecache

import (
	"context"
	"image"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"sigilum/internal/imageio"
	"sigilum/internal/logging"
)

// Cache decodes and encodes stage artifacts over a Backend and coalesces
// concurrent computations of the same key.
type Cache struct {
	backend Backend
	logger  *slog.Logger
	group   singleflight.Group
	hits    atomic.Int64
	misses  atomic.Int64
}

// Counters reports cache effectiveness since the Cache was created.
type Counters struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// New wraps backend. A nil backend yields a nil Cache, which computes every
// stage and stores nothing.
func New(backend Backend, logger *slog.Logger) *Cache {
	if backend == nil {
		return nil
	}
	return &Cache{
		backend: backend,
		logger:  logging.NewComponentLogger(logger, "stagecache"),
	}
}

// Backend returns the storage backend.
func (c *Cache) Backend() Backend {
	if c == nil {
		return nil
	}
	return c.backend
}

// Get returns the artifact under key. Entries that fail to decode are logged
// and reported absent so the stage is recomputed and the entry rewritten.
func (c *Cache) Get(ctx context.Context, key Key) (*image.Gray, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	data, ok, err := c.backend.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	img, err := imageio.Decode(data)
	if err != nil {
		logging.WarnWithContext(c.logger, "stage cache entry unreadable; recomputing", "stagecache_entry_corrupt",
			logging.String("cache_key", string(key)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the entry will be overwritten with a fresh result"),
		)
		return nil, false, nil
	}
	return img, true, nil
}

// Put stores img under key, overwriting any previous entry.
func (c *Cache) Put(ctx context.Context, key Key, img *image.Gray) error {
	if c == nil {
		return nil
	}
	data, err := imageio.EncodePNG(img)
	if err != nil {
		return err
	}
	return c.backend.Put(ctx, key, data)
}

type resolved struct {
	img *image.Gray
	hit bool
}

// Resolve returns the cached artifact for key or computes and stores it.
// Concurrent callers with the same key share one computation; callers that
// received another caller's result report a hit.
func (c *Cache) Resolve(ctx context.Context, key Key, compute func() (*image.Gray, error)) (*image.Gray, bool, error) {
	if c == nil {
		img, err := compute()
		return img, false, err
	}
	ran := false
	v, err, _ := c.group.Do(string(key), func() (any, error) {
		ran = true
		if img, ok, err := c.Get(ctx, key); err != nil {
			return nil, err
		} else if ok {
			return resolved{img: img, hit: true}, nil
		}
		img, err := compute()
		if err != nil {
			return nil, err
		}
		if err := c.Put(ctx, key, img); err != nil {
			return nil, err
		}
		return resolved{img: img}, nil
	})
	if err != nil {
		return nil, false, err
	}
	res := v.(resolved)
	hit := res.hit || !ran
	if hit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return res.img, hit, nil
}

// Counters returns hit and miss totals.
func (c *Cache) Counters() Counters {
	if c == nil {
		return Counters{}
	}
	return Counters{Hits: c.hits.Load(), Misses: c.misses.Load()}
}
