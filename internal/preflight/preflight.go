package preflight

import (
	"context"
	"log/slog"

	"sigilum/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config, logger *slog.Logger) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Runs directory", cfg.Paths.RunsDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}

	for _, profile := range []struct{ name, path string }{
		{"Pipeline profile", cfg.Profiles.Pipeline},
		{"Search profile", cfg.Profiles.Search},
		{"Metrics profile", cfg.Profiles.Metrics},
	} {
		if profile.path != "" {
			results = append(results, CheckReadableFile(profile.name, profile.path))
		}
	}

	if cfg.Cache.Enabled {
		if cfg.Cache.Backend == config.CacheBackendDir {
			results = append(results, CheckDirectoryAccess("Stage cache", cfg.Cache.Dir))
		}
		results = append(results, CheckCacheBackend(ctx, cfg, logger))
	}

	if cfg.Store.Enabled {
		results = append(results, CheckStore(cfg.Store.Path))
	}
	return results
}
