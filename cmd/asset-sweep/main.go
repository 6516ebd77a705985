// Command asset-sweep removes orphaned image files: files in the asset
// directory that no merch record references. Orphans are the accepted
// residue of interrupted create/replace paths; this sweep is their
// out-of-band recovery mechanism.
//
// Referenced keys are collected into a bloom filter before the directory
// walk. False positives can only spare a file for a later pass, never
// delete a referenced one.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/avolkov/merch-store/internal/asset"
	"github.com/avolkov/merch-store/internal/storage/postgres"
)

const bloomFPR = 0.001

func main() {
	var (
		databaseURL string
		assetDir    string
		minAge      time.Duration
		dryRun      bool
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&assetDir, "asset-dir", "merch_images", "directory holding uploaded merch images")
	flag.DurationVar(&minAge, "min-age", time.Hour, "only remove files older than this")
	flag.BoolVar(&dryRun, "dry-run", false, "report orphans without removing them")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx = zctx.Base(ctx, lg)

	if err := run(ctx, databaseURL, assetDir, minAge, dryRun); err != nil {
		lg.Fatal("sweep failed", zap.Error(err))
	}
}

func run(ctx context.Context, databaseURL, assetDir string, minAge time.Duration, dryRun bool) error {
	lg := zctx.From(ctx)

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	repo := postgres.NewMerchRepository(pool)
	keys, err := repo.AllImageKeys(ctx)
	if err != nil {
		return errors.Wrap(err, "collect referenced keys")
	}

	capacity := uint(len(keys))
	if capacity < 1024 {
		capacity = 1024
	}
	referenced := bloom.NewWithEstimates(capacity, bloomFPR)
	for _, key := range keys {
		referenced.AddString(key)
	}
	lg.Info("referenced keys collected", zap.Int("count", len(keys)))

	store, err := asset.NewDiskStore(assetDir)
	if err != nil {
		return errors.Wrap(err, "open asset store")
	}

	report, err := store.Sweep(ctx, asset.SweepOptions{
		Referenced: referenced,
		MinAge:     minAge,
		DryRun:     dryRun,
	})
	if err != nil {
		return err
	}

	lg.Info("sweep finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("orphaned", report.Orphaned),
		zap.Int("removed", report.Removed),
		zap.Bool("dry_run", dryRun),
	)
	return nil
}
