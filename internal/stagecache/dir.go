package stagecache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"sigilum/internal/faults"
	"sigilum/internal/fileutil"
	"sigilum/internal/logging"
)

const (
	entryExt     = ".png"
	pruneLockRel = ".prune.lock"
)

// DirBackend keeps one PNG file per key under root.
type DirBackend struct {
	root   string
	logger *slog.Logger
	now    func() time.Time
}

// Stats describes current directory cache usage.
type Stats struct {
	Root       string    `json:"root"`
	Entries    int       `json:"entries"`
	TotalBytes int64     `json:"total_bytes"`
	MaxBytes   int64     `json:"max_bytes"`
	FreeBytes  uint64    `json:"free_bytes"`
	Oldest     time.Time `json:"oldest,omitzero"`
	Newest     time.Time `json:"newest,omitzero"`
}

// PruneResult reports what a prune pass removed.
type PruneResult struct {
	Removed        int   `json:"removed"`
	FreedBytes     int64 `json:"freed_bytes"`
	RemainingBytes int64 `json:"remaining_bytes"`
	LockContended  bool  `json:"lock_contended"`
}

// NewDirBackend creates root if needed.
func NewDirBackend(root string, logger *slog.Logger) (*DirBackend, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, faults.Configf("cache directory is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, faults.Wrap(faults.ErrStorage, "stagecache", "create dir", root, err)
	}
	return &DirBackend{
		root:   root,
		logger: logging.NewComponentLogger(logger, "stagecache"),
		now:    time.Now,
	}, nil
}

func (d *DirBackend) Name() string { return "dir" }

// Root returns the cache directory.
func (d *DirBackend) Root() string { return d.root }

func (d *DirBackend) path(key Key) string {
	return filepath.Join(d.root, entryName(key)+entryExt)
}

// Get reads an entry and refreshes its modification time so pruning evicts
// the least recently used entries first.
func (d *DirBackend) Get(_ context.Context, key Key) ([]byte, bool, error) {
	path := d.path(key)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, faults.Wrap(faults.ErrStorage, "stagecache", "read entry", path, err)
	}
	now := d.now()
	_ = os.Chtimes(path, now, now)
	return data, true, nil
}

func (d *DirBackend) Put(_ context.Context, key Key, data []byte) error {
	if err := fileutil.WriteFileAtomic(d.path(key), data); err != nil {
		return faults.Wrap(faults.ErrStorage, "stagecache", "write entry", string(key), err)
	}
	return nil
}

type dirEntry struct {
	path    string
	size    int64
	modTime time.Time
}

func (d *DirBackend) scan() ([]dirEntry, int64, error) {
	items, err := os.ReadDir(d.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, faults.Wrap(faults.ErrStorage, "stagecache", "list root", d.root, err)
	}
	entries := make([]dirEntry, 0, len(items))
	var total int64
	for _, item := range items {
		if item.IsDir() || !strings.HasSuffix(item.Name(), entryExt) {
			continue
		}
		info, err := item.Info()
		if err != nil {
			d.logger.Warn("stagecache: skip entry; excluded from stats and pruning",
				logging.String("entry", item.Name()),
				logging.Error(err),
				logging.String(logging.FieldEventType, "stagecache_entry_skipped"),
				logging.String(logging.FieldErrorHint, "inspect cache directory permissions"),
			)
			continue
		}
		total += info.Size()
		entries = append(entries, dirEntry{
			path:    filepath.Join(d.root, item.Name()),
			size:    info.Size(),
			modTime: info.ModTime(),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].modTime.Equal(entries[j].modTime) {
			return entries[i].path < entries[j].path
		}
		return entries[i].modTime.Before(entries[j].modTime)
	})
	return entries, total, nil
}

// Stats returns entry counts, bytes used and filesystem free space.
func (d *DirBackend) Stats(_ context.Context, maxBytes int64) (Stats, error) {
	entries, total, err := d.scan()
	if err != nil {
		return Stats{}, err
	}
	s := Stats{Root: d.root, Entries: len(entries), TotalBytes: total, MaxBytes: maxBytes}
	if len(entries) > 0 {
		s.Oldest = entries[0].modTime
		s.Newest = entries[len(entries)-1].modTime
	}
	var fsStat unix.Statfs_t
	if err := unix.Statfs(d.root, &fsStat); err == nil {
		s.FreeBytes = fsStat.Bavail * uint64(fsStat.Bsize)
	}
	return s, nil
}

// Prune removes oldest entries until the directory fits in maxBytes. A
// non-positive budget is a no-op. When another process holds the prune lock
// the pass is skipped and LockContended is set.
func (d *DirBackend) Prune(ctx context.Context, maxBytes int64) (PruneResult, error) {
	var res PruneResult
	if maxBytes <= 0 {
		return res, nil
	}
	lock := flock.New(filepath.Join(d.root, pruneLockRel))
	locked, err := lock.TryLock()
	if err != nil {
		return res, faults.Wrap(faults.ErrStorage, "stagecache", "acquire prune lock", d.root, err)
	}
	if !locked {
		res.LockContended = true
		d.logger.InfoContext(ctx, "stage cache prune already running elsewhere; skipping")
		return res, nil
	}
	defer func() { _ = lock.Unlock() }()

	entries, total, err := d.scan()
	if err != nil {
		return res, err
	}
	for _, entry := range entries {
		if total <= maxBytes {
			break
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := os.Remove(entry.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return res, faults.Wrap(faults.ErrStorage, "stagecache", "remove entry", entry.path, err)
		}
		total -= entry.size
		res.Removed++
		res.FreedBytes += entry.size
	}
	res.RemainingBytes = total
	if res.Removed > 0 {
		d.logger.InfoContext(ctx, "pruned stage cache",
			logging.Int("removed", res.Removed),
			logging.Int64("freed_bytes", res.FreedBytes),
			logging.Int64("remaining_bytes", total),
			logging.Int64("max_bytes", maxBytes),
		)
	}
	return res, nil
}

// String implements fmt.Stringer for log output.
func (s Stats) String() string {
	return fmt.Sprintf("%d entries, %d bytes in %s", s.Entries, s.TotalBytes, s.Root)
}
