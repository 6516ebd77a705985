package merch

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ImageCoordinator keeps a record's image references consistent with the
// files held by the blob store. The ordering rules it enforces guarantee
// that a committed record never references a file that does not exist; a
// crash at the wrong moment leaves an orphaned file (recoverable by the
// asset sweep), never a dangling reference.
type ImageCoordinator struct {
	blobs BlobStore
	repo  Repository
}

// NewImageCoordinator creates an ImageCoordinator over the given store and
// repository.
func NewImageCoordinator(blobs BlobStore, repo Repository) *ImageCoordinator {
	return &ImageCoordinator{blobs: blobs, repo: repo}
}

// CreateWithAssets stores all uploaded files first and only then creates the
// record referencing them. If any store call or the create itself fails, the
// files already written for this batch are removed before the error is
// surfaced.
func (c *ImageCoordinator) CreateWithAssets(ctx context.Context, rec *Record, uploads []Upload) (*Record, error) {
	keys, err := c.storeBatch(ctx, uploads)
	if err != nil {
		return nil, err
	}

	rec.Images = keys
	if err := c.repo.Create(ctx, rec); err != nil {
		c.discard(ctx, keys)
		return nil, errors.Wrap(err, "create merch record")
	}
	return rec, nil
}

// ReplaceAssets swaps the record's image set for newly uploaded files:
// store-new, then swap-reference, then delete-old. Old files are removed
// only after the record update is committed, so concurrent readers never
// observe references to deleted files.
func (c *ImageCoordinator) ReplaceAssets(ctx context.Context, id string, upd Update, uploads []Upload) (*Record, error) {
	prev, err := c.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	keys, err := c.storeBatch(ctx, uploads)
	if err != nil {
		return nil, err
	}

	upd.Images = keys
	rec, err := c.repo.Update(ctx, id, upd)
	if err != nil {
		c.discard(ctx, keys)
		return nil, err
	}

	// Point of no return passed: the record now references the new files.
	c.discard(ctx, prev.Images)
	return rec, nil
}

// DeleteWithAssets removes every asset the record references and then the
// record itself. Asset deletion is best effort: a failed file removal is
// logged and the cascade proceeds, because a leaked file is recoverable by
// the sweep while a half-deleted record is not.
func (c *ImageCoordinator) DeleteWithAssets(ctx context.Context, id string) error {
	rec, err := c.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	c.discard(ctx, rec.Images)

	if err := c.repo.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "delete merch record")
	}
	return nil
}

// storeBatch validates the upload count and writes every file to the blob
// store, in parallel. On any failure the files already written are removed
// and the first error is returned.
func (c *ImageCoordinator) storeBatch(ctx context.Context, uploads []Upload) ([]string, error) {
	if len(uploads) == 0 {
		return nil, &ValidationError{Field: UploadField, Reason: "at least one image is required"}
	}
	if len(uploads) > MaxImages {
		return nil, &ValidationError{Field: UploadField, Reason: fmt.Sprintf("at most %d images are allowed", MaxImages)}
	}

	keys := make([]string, len(uploads))

	g, gctx := errgroup.WithContext(ctx)
	for i, up := range uploads {
		g.Go(func() error {
			f, err := up.Open()
			if err != nil {
				return errors.Wrapf(err, "open upload %q", up.Filename)
			}
			defer f.Close()

			key, err := c.blobs.Save(gctx, UploadField, up.Filename, f)
			if err != nil {
				return errors.Wrapf(err, "store upload %q", up.Filename)
			}
			keys[i] = key
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		c.discard(ctx, keys)
		return nil, err
	}
	return keys, nil
}

// discard deletes the given keys from the blob store, logging failures
// instead of returning them. A key left behind becomes an orphaned file for
// the out-of-band sweep to collect.
func (c *ImageCoordinator) discard(ctx context.Context, keys []string) {
	lg := zctx.From(ctx)
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := c.blobs.Delete(ctx, key); err != nil {
			lg.Warn("asset left orphaned",
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}
}
