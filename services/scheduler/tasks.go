package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"plexfront/internal/storage"
	"plexfront/services/imagecache"
	"plexfront/services/logos"
)

// Task ids of the built-in maintenance jobs.
const (
	TaskLogoSweep   = "logo-sweep"
	TaskImagePrune  = "image-prune"
	TaskTempCleanup = "tmp-cleanup"
)

// LogoSweeper verifies cached logo files.
type LogoSweeper interface {
	Sweep() (logos.SweepStats, error)
}

// MemoryPruner drops expired in-memory entries.
type MemoryPruner interface {
	PruneMemory() int
	Stats() imagecache.Stats
}

// TempCleaner removes leftovers of interrupted atomic writes.
type TempCleaner interface {
	CleanupTemp(maxAge time.Duration) (int, int64, error)
}

var _ TempCleaner = (*storage.Store)(nil)

// LogoSweepTask checks every cached logo for corruption and prunes expired entries.
func LogoSweepTask(c LogoSweeper, every time.Duration) Task {
	return Task{
		ID:       TaskLogoSweep,
		Name:     "Logo cache sweep",
		Interval: every,
		Run: func(ctx context.Context) (Result, error) {
			stats, err := c.Sweep()
			if err != nil {
				return Result{}, err
			}
			return Result{
				Count: stats.Expired + stats.Corrupt + stats.Orphaned,
				Message: fmt.Sprintf("checked %d, expired %d, corrupt %d, orphaned %d",
					stats.Checked, stats.Expired, stats.Corrupt, stats.Orphaned),
			}, nil
		},
	}
}

// ImagePruneTask evicts expired entries from the image memory tier.
func ImagePruneTask(c MemoryPruner, every time.Duration) Task {
	return Task{
		ID:       TaskImagePrune,
		Name:     "Image memory prune",
		Interval: every,
		Run: func(ctx context.Context) (Result, error) {
			n := c.PruneMemory()
			return Result{Count: n, Message: c.Stats().String()}, nil
		},
	}
}

// TempCleanupTask removes temp files older than maxAge from the data dir.
func TempCleanupTask(c TempCleaner, maxAge, every time.Duration) Task {
	return Task{
		ID:       TaskTempCleanup,
		Name:     "Temp file cleanup",
		Interval: every,
		Run: func(ctx context.Context) (Result, error) {
			n, freed, err := c.CleanupTemp(maxAge)
			if err != nil {
				return Result{Count: n}, err
			}
			return Result{Count: n, Message: "freed " + humanize.IBytes(uint64(freed))}, nil
		},
	}
}
