package merch

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateInput holds the fields for creating a merch item. A nil Cost falls
// back to DefaultCost.
type CreateInput struct {
	Name        string
	DesignBy    string
	Description string
	Cost        *decimal.Decimal
}

// Service implements the catalog operations by composing the repository,
// the image coordinator, and the like service.
type Service struct {
	repo   Repository
	images *ImageCoordinator
	likes  *LikeService
}

// NewService creates a catalog Service with the required collaborators.
func NewService(repo Repository, images *ImageCoordinator, likes *LikeService) *Service {
	return &Service{
		repo:   repo,
		images: images,
		likes:  likes,
	}
}

// Create validates the input, assigns an ID, and hands off to the image
// coordinator which stores the uploads before the record is persisted.
func (s *Service) Create(ctx context.Context, in CreateInput, uploads []Upload) (*Record, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	cost := DefaultCost
	if in.Cost != nil {
		cost = *in.Cost
	}

	rec := &Record{
		ID:          uuid.New().String(),
		Name:        strings.TrimSpace(in.Name),
		DesignBy:    strings.TrimSpace(in.DesignBy),
		Description: in.Description,
		Cost:        cost,
	}
	return s.images.CreateWithAssets(ctx, rec, uploads)
}

// Get returns a single record by ID.
func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	return s.repo.Get(ctx, id)
}

// List returns every record in the catalog.
func (s *Service) List(ctx context.Context) ([]Record, error) {
	return s.repo.List(ctx)
}

// Search returns records whose name contains key, case-insensitively.
func (s *Service) Search(ctx context.Context, key string) ([]Record, error) {
	return s.repo.SearchByName(ctx, key)
}

// Update applies a partial update. When uploads are supplied the image
// coordinator replaces the record's image set; otherwise only the supplied
// text fields change and the images are left untouched.
func (s *Service) Update(ctx context.Context, id string, upd Update, uploads []Upload) (*Record, error) {
	if err := upd.validate(); err != nil {
		return nil, err
	}

	if len(uploads) == 0 {
		return s.repo.Update(ctx, id, upd)
	}
	return s.images.ReplaceAssets(ctx, id, upd, uploads)
}

// Delete removes the record and cascades to its assets.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.images.DeleteWithAssets(ctx, id)
}

// ToggleLike flips the like state of the record for userID.
func (s *Service) ToggleLike(ctx context.Context, id, userID string) (*ToggleResult, error) {
	return s.likes.Toggle(ctx, id, userID)
}

func (in CreateInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return &ValidationError{Field: "name", Reason: "required"}
	}
	if strings.TrimSpace(in.DesignBy) == "" {
		return &ValidationError{Field: "designBy", Reason: "required"}
	}
	if in.Description == "" {
		return &ValidationError{Field: "description", Reason: "required"}
	}
	if in.Cost != nil && in.Cost.IsNegative() {
		return &ValidationError{Field: "cost", Reason: "must not be negative"}
	}
	return nil
}

func (u Update) validate() error {
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if u.DesignBy != nil && strings.TrimSpace(*u.DesignBy) == "" {
		return &ValidationError{Field: "designBy", Reason: "must not be empty"}
	}
	if u.Description != nil && *u.Description == "" {
		return &ValidationError{Field: "description", Reason: "must not be empty"}
	}
	if u.Cost != nil && u.Cost.IsNegative() {
		return &ValidationError{Field: "cost", Reason: "must not be negative"}
	}
	return nil
}
