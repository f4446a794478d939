package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sigilum/internal/faults"
	"sigilum/internal/logging"
	"sigilum/internal/stagecache"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the stage cache",
	}

	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCachePruneCommand(ctx))

	return cacheCmd
}

// dirCache opens the configured backend and requires the directory kind;
// object storage manages its own retention.
func dirCache(cmd *cobra.Command, ctx *commandContext) (*stagecache.DirBackend, int64, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, 0, err
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return nil, 0, err
	}
	backend, err := stagecache.OpenBackend(cmd.Context(), cfg, logging.NewComponentLogger(logger, "cli"))
	if err != nil {
		return nil, 0, err
	}
	if backend == nil {
		return nil, 0, faults.Configf("stage cache disabled (set cache.enabled = true)")
	}
	dir, ok := backend.(*stagecache.DirBackend)
	if !ok {
		return nil, 0, faults.Configf("cache %s backend does not support local stats or pruning; use bucket lifecycle rules", backend.Name())
	}
	return dir, cfg.CacheMaxBytes(), nil
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show stage cache usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, maxBytes, err := dirCache(cmd, ctx)
			if err != nil {
				return err
			}
			stats, err := dir.Stats(cmd.Context(), maxBytes)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			limit := "unbounded"
			if stats.MaxBytes > 0 {
				limit = humanBytes(stats.MaxBytes)
			}
			fmt.Fprintf(out, "Dir:     %s\n", stats.Root)
			fmt.Fprintf(out, "Entries: %d\n", stats.Entries)
			fmt.Fprintf(out, "Size:    %s / %s\n", humanBytes(stats.TotalBytes), limit)
			fmt.Fprintf(out, "Disk:    %s free\n", humanBytes(int64(stats.FreeBytes)))
			if stats.Entries > 0 {
				const stampLayout = "2006-01-02 15:04"
				fmt.Fprintf(out, "Oldest:  %s\n", stats.Oldest.Local().Format(stampLayout))
				fmt.Fprintf(out, "Newest:  %s\n", stats.Newest.Local().Format(stampLayout))
			}
			return nil
		},
	}
}

func newCachePruneCommand(ctx *commandContext) *cobra.Command {
	var maxMiB int64
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove least recently used cache entries beyond the size limit",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, maxBytes, err := dirCache(cmd, ctx)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("max-mib") {
				maxBytes = maxMiB * 1024 * 1024
			}
			if maxBytes <= 0 {
				return faults.Configf("no cache limit set (configure cache.max_mib or pass --max-mib)")
			}
			res, err := dir.Prune(cmd.Context(), maxBytes)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if res.LockContended {
				fmt.Fprintln(out, "Another prune is running; nothing removed")
				return nil
			}
			fmt.Fprintf(out, "Removed %d entries (%s); %s remain\n",
				res.Removed, humanBytes(res.FreedBytes), humanBytes(res.RemainingBytes))
			return nil
		},
	}
	cmd.Flags().Int64Var(&maxMiB, "max-mib", 0, "Size limit in MiB (overrides cache.max_mib)")
	return cmd
}
