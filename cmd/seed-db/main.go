// Command seed-db loads merch records from a JSON (optionally gzipped) seed
// file into the database. Referenced image files are copied from a source
// directory into the asset directory through the disk store, so every seeded
// record references files that actually exist.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/avolkov/merch-store/internal/asset"
	"github.com/avolkov/merch-store/internal/domain/merch"
	"github.com/avolkov/merch-store/internal/storage/postgres"
)

type merchJSON struct {
	Name        string           `json:"name"`
	DesignBy    string           `json:"designBy"`
	Description string           `json:"description"`
	Cost        *decimal.Decimal `json:"cost"`
	Images      []string         `json:"images"`
}

func main() {
	var (
		databaseURL string
		seedFile    string
		imagesDir   string
		assetDir    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedFile, "seed-file", "db/seed/merch.json", "path to merch seed file (.json or .json.gz)")
	flag.StringVar(&imagesDir, "images-dir", "db/seed/images", "directory holding the seed image files")
	flag.StringVar(&assetDir, "asset-dir", "merch_images", "directory uploaded merch images are served from")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, seedFile, imagesDir, assetDir); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, seedFile, imagesDir, assetDir string) error {
	items, err := readSeedFile(seedFile)
	if err != nil {
		return errors.Wrap(err, "read seed file")
	}
	if len(items) == 0 {
		slog.Info("no seed records to insert")
		return nil
	}

	store, err := asset.NewDiskStore(assetDir)
	if err != nil {
		return errors.Wrap(err, "create asset store")
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	repo := postgres.NewMerchRepository(pool)

	for _, item := range items {
		keys, err := copyImages(ctx, store, imagesDir, item.Images)
		if err != nil {
			return errors.Wrapf(err, "copy images for %q", item.Name)
		}

		cost := merch.DefaultCost
		if item.Cost != nil {
			cost = *item.Cost
		}

		rec := &merch.Record{
			ID:          uuid.New().String(),
			Name:        item.Name,
			DesignBy:    item.DesignBy,
			Description: item.Description,
			Cost:        cost,
			Images:      keys,
		}
		if err := repo.Create(ctx, rec); err != nil {
			return errors.Wrapf(err, "insert %q", item.Name)
		}
		slog.Info("seeded merch item",
			slog.String("id", rec.ID),
			slog.String("name", rec.Name),
			slog.Int("images", len(keys)),
		)
	}

	return nil
}

// readSeedFile decodes the seed JSON, transparently decompressing .gz
// files.
func readSeedFile(path string) ([]merchJSON, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "open gzip stream")
		}
		defer gz.Close()
		r = gz
	}

	var items []merchJSON
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return nil, errors.Wrap(err, "decode seed JSON")
	}
	return items, nil
}

// copyImages stores each named seed image through the disk store and
// returns the assigned storage keys.
func copyImages(ctx context.Context, store *asset.DiskStore, imagesDir string, names []string) ([]string, error) {
	keys := make([]string, 0, len(names))
	for _, name := range names {
		src, err := os.Open(filepath.Join(imagesDir, filepath.Base(name)))
		if err != nil {
			return nil, err
		}

		key, err := store.Save(ctx, merch.UploadField, name, src)
		src.Close()
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}
