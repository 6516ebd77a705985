package asset

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// SweepReport summarizes a single sweep pass.
type SweepReport struct {
	Scanned  int
	Orphaned int
	Removed  int
}

// SweepOptions controls an orphan sweep.
type SweepOptions struct {
	// Referenced tests whether a key is referenced by any live record.
	// Bloom false positives spare an orphan until a later pass; they never
	// delete a referenced file, which is the safe direction.
	Referenced *bloom.BloomFilter

	// MinAge excludes recently written files, so an upload racing the sweep
	// between file write and record commit is not collected.
	MinAge time.Duration

	// DryRun reports orphans without removing them.
	DryRun bool
}

// Sweep walks the store directory and removes files no record references.
// Orphans are the accepted residue of interrupted replace and create paths;
// this pass is their recovery mechanism.
func (s *DiskStore) Sweep(ctx context.Context, opts SweepOptions) (SweepReport, error) {
	lg := zctx.From(ctx)
	cutoff := time.Now().Add(-opts.MinAge)

	var report SweepReport
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == s.dir {
				return nil
			}
			return fs.SkipDir
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		report.Scanned++
		key := d.Name()
		if opts.Referenced.TestString(key) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return errors.Wrapf(err, "stat %q", key)
		}
		if info.ModTime().After(cutoff) {
			return nil
		}

		report.Orphaned++
		if opts.DryRun {
			lg.Info("orphaned file", zap.String("key", key), zap.Time("mod_time", info.ModTime()))
			return nil
		}

		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			lg.Warn("remove orphan failed", zap.String("key", key), zap.Error(err))
			return nil
		}
		report.Removed++
		lg.Info("orphan removed", zap.String("key", key))
		return nil
	})
	if err != nil {
		return report, errors.Wrap(err, "walk asset directory")
	}
	return report, nil
}
