package merch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

// memRepo is an in-memory Repository with the same observable semantics as
// the postgres implementation.
type memRepo struct {
	mu        sync.Mutex
	records   map[string]*Record
	createErr error
	updateErr error
}

func newMemRepo() *memRepo {
	return &memRepo{records: make(map[string]*Record)}
}

func (m *memRepo) Create(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	now := time.Now()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if rec.LikedBy == nil {
		rec.LikedBy = []string{}
	}
	m.records[rec.ID] = cloneRecord(rec)
	return nil
}

func (m *memRepo) Get(_ context.Context, id string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (m *memRepo) List(_ context.Context) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, *cloneRecord(rec))
	}
	return out, nil
}

func (m *memRepo) SearchByName(_ context.Context, key string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, rec := range m.records {
		if strings.Contains(strings.ToLower(rec.Name), strings.ToLower(key)) {
			out = append(out, *cloneRecord(rec))
		}
	}
	return out, nil
}

func (m *memRepo) Update(_ context.Context, id string, upd Update) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.Name != nil {
		rec.Name = *upd.Name
	}
	if upd.DesignBy != nil {
		rec.DesignBy = *upd.DesignBy
	}
	if upd.Description != nil {
		rec.Description = *upd.Description
	}
	if upd.Cost != nil {
		rec.Cost = *upd.Cost
	}
	if upd.Images != nil {
		rec.Images = append([]string(nil), upd.Images...)
	}
	rec.UpdatedAt = time.Now()
	return cloneRecord(rec), nil
}

func (m *memRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return ErrNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *memRepo) ToggleLike(_ context.Context, id, userID string) (*Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, false, ErrNotFound
	}

	liked := true
	kept := rec.LikedBy[:0:0]
	for _, u := range rec.LikedBy {
		if u == userID {
			liked = false
			continue
		}
		kept = append(kept, u)
	}
	if liked {
		kept = append(kept, userID)
	}
	rec.LikedBy = kept
	rec.Likes = len(kept)
	rec.UpdatedAt = time.Now()
	return cloneRecord(rec), liked, nil
}

func cloneRecord(rec *Record) *Record {
	out := *rec
	out.Images = append([]string(nil), rec.Images...)
	out.LikedBy = append([]string(nil), rec.LikedBy...)
	return &out
}

// memBlobs is an in-memory BlobStore. saveErrAfter > 0 fails the n-th Save;
// deleteErr makes Delete fail without removing anything.
type memBlobs struct {
	mu           sync.Mutex
	files        map[string][]byte
	seq          int
	saveErrAfter int
	deleteErr    error
}

func newMemBlobs() *memBlobs {
	return &memBlobs{files: make(map[string][]byte)}
}

func (m *memBlobs) Save(_ context.Context, field, filename string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	if m.saveErrAfter > 0 && m.seq >= m.saveErrAfter {
		return "", errors.New("disk full")
	}
	key := fmt.Sprintf("%s_%d%s", field, m.seq, ext(filename))
	m.files[key] = data
	return key, nil
}

func (m *memBlobs) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.files, key)
	return nil
}

func (m *memBlobs) exists(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[key]
	return ok
}

func (m *memBlobs) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}

func ext(filename string) string {
	if i := strings.LastIndexByte(filename, '.'); i >= 0 {
		return filename[i:]
	}
	return ""
}

// --- Helpers ---

func newTestService(repo *memRepo, blobs *memBlobs) *Service {
	coordinator := NewImageCoordinator(blobs, repo)
	return NewService(repo, coordinator, NewLikeService(repo))
}

func textUpload(name, content string) Upload {
	return Upload{
		Filename: name,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader([]byte(content))), nil
		},
	}
}

func uploads(n int) []Upload {
	out := make([]Upload, n)
	for i := range out {
		out[i] = textUpload(fmt.Sprintf("img%d.jpg", i), "fake image bytes")
	}
	return out
}

func validInput() CreateInput {
	return CreateInput{
		Name:        "Logo Tee",
		DesignBy:    "Mara",
		Description: "Heavy cotton tee with the front logo print",
	}
}

// --- Tests ---

func TestCreate_MissingFields(t *testing.T) {
	tests := []struct {
		field  string
		mutate func(*CreateInput)
	}{
		{"name", func(in *CreateInput) { in.Name = "" }},
		{"name", func(in *CreateInput) { in.Name = "   " }},
		{"designBy", func(in *CreateInput) { in.DesignBy = "" }},
		{"description", func(in *CreateInput) { in.Description = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			svc := newTestService(newMemRepo(), newMemBlobs())

			in := validInput()
			tt.mutate(&in)

			_, err := svc.Create(context.Background(), in, uploads(1))

			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestCreate_NegativeCost(t *testing.T) {
	svc := newTestService(newMemRepo(), newMemBlobs())

	in := validInput()
	cost := decimal.NewFromInt(-1)
	in.Cost = &cost

	_, err := svc.Create(context.Background(), in, uploads(1))

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "cost", vErr.Field)
}

func TestCreate_DefaultCost(t *testing.T) {
	svc := newTestService(newMemRepo(), newMemBlobs())

	rec, err := svc.Create(context.Background(), validInput(), uploads(1))
	require.NoError(t, err)
	assert.True(t, rec.Cost.Equal(decimal.NewFromInt(500)), "cost = %s", rec.Cost)
}

func TestCreate_ExplicitCost(t *testing.T) {
	svc := newTestService(newMemRepo(), newMemBlobs())

	in := validInput()
	cost := decimal.RequireFromString("749.99")
	in.Cost = &cost

	rec, err := svc.Create(context.Background(), in, uploads(1))
	require.NoError(t, err)
	assert.True(t, rec.Cost.Equal(cost))
}

func TestCreate_PersistsRecordWithStoredImages(t *testing.T) {
	repo := newMemRepo()
	blobs := newMemBlobs()
	svc := newTestService(repo, blobs)

	rec, err := svc.Create(context.Background(), validInput(), uploads(3))
	require.NoError(t, err)
	require.NotEmpty(t, rec.ID)
	require.Len(t, rec.Images, 3)

	stored, err := repo.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Images, stored.Images)
	assert.Zero(t, stored.Likes)
	assert.Empty(t, stored.LikedBy)

	for _, key := range stored.Images {
		assert.True(t, blobs.exists(key), "stored record references missing file %q", key)
	}
}

func TestUpdate_EmptyFieldRejected(t *testing.T) {
	svc := newTestService(newMemRepo(), newMemBlobs())

	empty := ""
	_, err := svc.Update(context.Background(), "some-id", Update{Name: &empty}, nil)

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "name", vErr.Field)
}

func TestUpdate_TextOnlyLeavesImagesUntouched(t *testing.T) {
	repo := newMemRepo()
	blobs := newMemBlobs()
	svc := newTestService(repo, blobs)

	rec, err := svc.Create(context.Background(), validInput(), uploads(2))
	require.NoError(t, err)
	before := blobs.count()

	name := "Logo Tee v2"
	updated, err := svc.Update(context.Background(), rec.ID, Update{Name: &name}, nil)
	require.NoError(t, err)

	assert.Equal(t, "Logo Tee v2", updated.Name)
	assert.Equal(t, rec.Images, updated.Images)
	assert.Equal(t, rec.DesignBy, updated.DesignBy)
	assert.Equal(t, before, blobs.count())
}

func TestUpdate_NotFound(t *testing.T) {
	svc := newTestService(newMemRepo(), newMemBlobs())

	name := "anything"
	_, err := svc.Update(context.Background(), "missing", Update{Name: &name}, nil)
	require.ErrorIs(t, err, ErrNotFound)
}
