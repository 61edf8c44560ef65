package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the on-disk caches",
	}

	cacheCmd.AddCommand(newCacheSweepCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))

	return cacheCmd
}

func newCacheSweepCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Verify logos and remove stale temp files now",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			return runSweep(cmd.OutOrStdout(), a)
		},
	}
}

func runSweep(out io.Writer, a *app) error {
	stats, err := a.logos.Cache().Sweep()
	if err != nil {
		return fmt.Errorf("logo sweep: %w", err)
	}
	fmt.Fprintf(out, "Logos:  checked %d, expired %d, corrupt %d, orphaned files %d\n",
		stats.Checked, stats.Expired, stats.Corrupt, stats.Orphaned)

	removed, freed, err := a.store.CleanupTemp(a.cfg.Scheduler.TempMaxAge)
	if err != nil {
		return fmt.Errorf("temp cleanup: %w", err)
	}
	fmt.Fprintf(out, "Temp:   removed %d files older than %s (%s)\n",
		removed, a.cfg.Scheduler.TempMaxAge.Round(time.Second), humanize.IBytes(uint64(freed)))
	return nil
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	var keepImages bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every cached payload (settings are kept)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			return runClear(cmd.OutOrStdout(), a, keepImages)
		},
	}
	cmd.Flags().BoolVar(&keepImages, "keep-images", false, "Leave the image byte cache in place")
	return cmd
}

func runClear(out io.Writer, a *app, keepImages bool) error {
	plexEntries, err := a.plexData.Clear()
	if err != nil {
		return fmt.Errorf("clear plex cache: %w", err)
	}
	watchlists, err := a.watchlist.Clear()
	if err != nil {
		return fmt.Errorf("clear watchlist cache: %w", err)
	}
	if err := a.logos.Cache().Clear(); err != nil {
		return fmt.Errorf("clear logo cache: %w", err)
	}
	fmt.Fprintf(out, "Cleared %d plex entries, %d watchlists and all logos\n", plexEntries, watchlists)

	if keepImages {
		return nil
	}
	a.images.Purge()
	freed, err := a.imageDisk.Clear()
	if err != nil {
		return fmt.Errorf("clear image cache: %w", err)
	}
	fmt.Fprintf(out, "Freed %s of cached images\n", humanize.IBytes(uint64(freed)))
	return nil
}
