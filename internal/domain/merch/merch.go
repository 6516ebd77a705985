// Package merch holds the merchandise catalog domain: records, their
// attached image assets, and the like/unlike toggle.
package merch

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested merch item does not exist.
var ErrNotFound = errors.New("merch item not found")

// MaxImages bounds how many image files a single item may carry.
const MaxImages = 5

// UploadField is the multipart form field carrying image files.
const UploadField = "merch_images"

// DefaultCost is applied when an item is created without an explicit cost.
var DefaultCost = decimal.NewFromInt(500)

// ValidationError indicates a missing or malformed required field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Record represents a merchandise item. Images holds storage-relative asset
// keys, never absolute URLs; keys are resolved to client-facing URLs at
// response time so the catalog stays portable across hostnames.
type Record struct {
	ID          string
	Name        string
	DesignBy    string
	Description string
	Cost        decimal.Decimal
	Images      []string
	Likes       int
	LikedBy     []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Update holds a partial update. Nil fields are left untouched; a nil Images
// slice keeps the existing image set.
type Update struct {
	Name        *string
	DesignBy    *string
	Description *string
	Cost        *decimal.Decimal
	Images      []string
}

// Repository defines persistence operations for merch records. Every read
// reflects the latest committed write; implementations must not cache.
type Repository interface {
	Create(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context) ([]Record, error)
	SearchByName(ctx context.Context, key string) ([]Record, error)
	Update(ctx context.Context, id string, upd Update) (*Record, error)
	Delete(ctx context.Context, id string) error

	// ToggleLike atomically flips membership of userID in the record's
	// liked-by set and adjusts the like counter in the same operation.
	// The returned flag is true when the outcome is a like, false for an
	// unlike.
	ToggleLike(ctx context.Context, id, userID string) (*Record, bool, error)
}

// BlobStore persists uploaded image bytes under unique keys and deletes
// them by key. Deleting an absent key is not an error.
type BlobStore interface {
	Save(ctx context.Context, field, filename string, r io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
}

// Upload is a single pending image upload. Open is called at most once.
type Upload struct {
	Filename string
	Open     func() (io.ReadCloser, error)
}
