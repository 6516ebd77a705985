package merch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedRecord(t *testing.T, repo *memRepo) *Record {
	t.Helper()
	rec := &Record{
		ID:       "m1",
		Name:     "Logo Tee",
		DesignBy: "Mara",
		Images:   []string{"merch_images_1.jpg"},
	}
	require.NoError(t, repo.Create(context.Background(), rec))
	return rec
}

func TestToggle_LikeThenUnlike(t *testing.T) {
	repo := newMemRepo()
	seedRecord(t, repo)
	likes := NewLikeService(repo)
	ctx := context.Background()

	res, err := likes.Toggle(ctx, "m1", "user-a")
	require.NoError(t, err)
	assert.True(t, res.Liked)
	assert.Equal(t, 1, res.Record.Likes)
	assert.Equal(t, []string{"user-a"}, res.Record.LikedBy)

	res, err = likes.Toggle(ctx, "m1", "user-a")
	require.NoError(t, err)
	assert.False(t, res.Liked)
	assert.Zero(t, res.Record.Likes)
	assert.Empty(t, res.Record.LikedBy)
}

func TestToggle_RepeatedTogglesNeverDuplicate(t *testing.T) {
	repo := newMemRepo()
	seedRecord(t, repo)
	likes := NewLikeService(repo)
	ctx := context.Background()

	users := []string{"user-a", "user-b", "user-a", "user-c", "user-b", "user-a"}
	for _, u := range users {
		res, err := likes.Toggle(ctx, "m1", u)
		require.NoError(t, err)

		// The counter and the membership list must agree after every toggle,
		// and no user may appear twice.
		assert.Equal(t, len(res.Record.LikedBy), res.Record.Likes)
		seen := make(map[string]bool, len(res.Record.LikedBy))
		for _, liker := range res.Record.LikedBy {
			assert.False(t, seen[liker], "user %q listed twice", liker)
			seen[liker] = true
		}
	}

	// a: on, off, on. b: on, off. c: on.
	rec, err := repo.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Likes)
	assert.ElementsMatch(t, []string{"user-a", "user-c"}, rec.LikedBy)
}

func TestToggle_EmptyUser(t *testing.T) {
	repo := newMemRepo()
	seedRecord(t, repo)
	likes := NewLikeService(repo)

	_, err := likes.Toggle(context.Background(), "m1", "  ")

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "userId", vErr.Field)
}

func TestToggle_NotFound(t *testing.T) {
	likes := NewLikeService(newMemRepo())
	_, err := likes.Toggle(context.Background(), "missing", "user-a")
	require.ErrorIs(t, err, ErrNotFound)
}
