package stagecache

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"sigilum/internal/config"
)

// Backend stores encoded artifacts by key. A missing key is (nil, false, nil).
type Backend interface {
	Name() string
	Get(ctx context.Context, key Key) ([]byte, bool, error)
	Put(ctx context.Context, key Key, data []byte) error
}

// OpenBackend builds the backend selected in cfg. It returns nil when caching
// is disabled.
func OpenBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Backend, error) {
	if cfg == nil || !cfg.Cache.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Cache.Backend) {
	case config.CacheBackendDir, "":
		return NewDirBackend(cfg.Cache.Dir, logger)
	case config.CacheBackendMinio:
		return NewMinioBackend(ctx, cfg.Cache.Minio, logger)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

// entryName maps a key to a file or object name. Keys made only of
// [A-Za-z0-9_.-] are used as is; anything else is base64url-encoded behind a
// "~" marker, which plain names never contain, so distinct keys never share
// an entry.
func entryName(key Key) string {
	value := string(key)
	if isPlainName(value) {
		return value
	}
	return "~" + base64.RawURLEncoding.EncodeToString([]byte(value))
}

func isPlainName(value string) bool {
	if value == "" || value[0] == '.' {
		return false
	}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_', r == '-', r == '.':
		default:
			return false
		}
	}
	return true
}
