package preflight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"sigilum/internal/config"
	"sigilum/internal/stagecache"
)

// cacheCheckTimeout bounds remote cache checks.
const cacheCheckTimeout = 10 * time.Second

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckReadableFile verifies that path is a readable regular file.
func CheckReadableFile(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.Mode().IsRegular() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not a regular file)", path)}
	}
	if err := unix.Access(path, unix.R_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not readable: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

// CheckStore verifies that the ledger's directory is writable. The database
// file itself is created on first open.
func CheckStore(path string) Result {
	const name = "Run ledger"
	dir := filepath.Dir(path)
	if err := unix.Access(dir, unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: directory not writable: %v)", dir, err)}
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is a directory)", path)}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

// CheckCacheBackend opens the configured stage cache backend. For MinIO this
// confirms the endpoint answers and the bucket exists or can be created.
func CheckCacheBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) Result {
	const name = "Stage cache backend"

	checkCtx, cancel := context.WithTimeout(ctx, cacheCheckTimeout)
	defer cancel()

	backend, err := stagecache.OpenBackend(checkCtx, cfg, logger)
	if err != nil {
		return Result{Name: name, Detail: summarizeBackendError(err)}
	}
	if backend == nil {
		return Result{Name: name, Passed: true, Detail: "disabled"}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s backend ready", backend.Name())}
}

func summarizeBackendError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "check timed out (cache endpoint unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "check timed out (cache endpoint unreachable)"
	}
	return err.Error()
}
