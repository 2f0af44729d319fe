package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/runger/clipfix/internal/config"
)

var errNoPersistentCache = errors.New("persistent cache is disabled (cache.enabled or cache.persist is false)")

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the result cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache entries, hits and repair metrics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openCacheApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())
		return writeCacheStats(contextOf(cmd), cmd.OutOrStdout(), a)
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cached result",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openCacheApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		removed, err := a.cache.Clear(contextOf(cmd))
		if err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached result(s) from %s\n", removed, a.paths.CacheDatabase())
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}

// openCacheApp builds an app without generative backends and fails unless
// the persistent tier is open.
func openCacheApp(cmd *cobra.Command) (*app, error) {
	if err := applyColorMode(colorMode, cmd.OutOrStdout()); err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.AI.Enabled = false

	a, err := newApp(cfg, appOptions{Logger: newLogger(cmd.ErrOrStderr(), cfg.Log.Level)})
	if err != nil {
		return nil, err
	}
	if a.cache == nil || a.store == nil {
		a.Close(context.Background())
		return nil, errNoPersistentCache
	}
	return a, nil
}

func writeCacheStats(ctx context.Context, w io.Writer, a *app) error {
	stats, err := a.cache.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to read cache stats: %w", err)
	}

	fmt.Fprintln(w, styleBold.Render("Result cache"))
	fmt.Fprintln(w, rule())
	fmt.Fprintf(w, "  %s %s\n", styleKey.Render("database:"), a.paths.CacheDatabase())
	if s := stats.Stored; s != nil {
		fmt.Fprintf(w, "  %s %d (%d expired)\n", styleKey.Render("entries: "), s.TotalEntries, s.ExpiredEntries)
		hitRate := 0.0
		if lookups := s.TotalHits + s.TotalEntries; lookups > 0 {
			hitRate = float64(s.TotalHits) / float64(lookups)
		}
		fmt.Fprintf(w, "  %s %d (hit rate %.1f%%)\n", styleKey.Render("hits:    "), s.TotalHits, hitRate*100)
	}

	rows, err := a.store.RepairSummary(ctx)
	if err != nil {
		return fmt.Errorf("failed to read repair metrics: %w", err)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, styleBold.Render("Repairs"))
	fmt.Fprintln(w, rule())
	if len(rows) == 0 {
		fmt.Fprintln(w, styleDim.Render("  no repairs recorded"))
		return nil
	}
	fmt.Fprintf(w, "  %-12s %8s %9s %12s\n", "language", "attempts", "succeeded", "avg duration")
	for _, r := range rows {
		fmt.Fprintf(w, "  %-12s %8d %9d %10.0fms\n", r.Language, r.Attempts, r.Successes, r.AvgDurationMs)
	}
	return nil
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
