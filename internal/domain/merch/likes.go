package merch

import (
	"context"
	"strings"
)

// ToggleResult describes the outcome of a like toggle.
type ToggleResult struct {
	// Liked is true when the toggle added the user to the liked-by set,
	// false when it removed them.
	Liked  bool
	Record *Record
}

// LikeService applies the like/unlike state transition with per-user
// idempotence. The flip itself happens inside the repository as a single
// atomic conditional update, so two racing toggles by the same user cannot
// desynchronize the counter from the liked-by set.
type LikeService struct {
	repo Repository
}

// NewLikeService creates a LikeService over the given repository.
func NewLikeService(repo Repository) *LikeService {
	return &LikeService{repo: repo}
}

// Toggle flips the like state of the record for userID.
func (s *LikeService) Toggle(ctx context.Context, id, userID string) (*ToggleResult, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, &ValidationError{Field: "userId", Reason: "required"}
	}

	rec, liked, err := s.repo.ToggleLike(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	return &ToggleResult{Liked: liked, Record: rec}, nil
}
