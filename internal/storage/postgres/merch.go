package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/avolkov/merch-store/internal/domain/merch"
)

const merchColumns = `id::text, name, design_by, description, cost, images, likes, liked_by, created_at, updated_at`

const (
	createMerchSQL = `INSERT INTO merch (id, name, design_by, description, cost, images)
		VALUES ($1::uuid, $2, $3, $4, $5, $6)
		RETURNING likes, liked_by, created_at, updated_at`

	getMerchSQL = `SELECT ` + merchColumns + ` FROM merch WHERE id = $1::uuid`

	listMerchSQL = `SELECT ` + merchColumns + ` FROM merch ORDER BY created_at`

	searchMerchSQL = `SELECT ` + merchColumns + ` FROM merch
		WHERE name ILIKE '%' || $1 || '%' ORDER BY created_at`

	updateMerchSQL = `UPDATE merch SET
			name        = COALESCE($2::text, name),
			design_by   = COALESCE($3::text, design_by),
			description = COALESCE($4::text, description),
			cost        = COALESCE($5::numeric, cost),
			images      = COALESCE($6::text[], images),
			updated_at  = now()
		WHERE id = $1::uuid
		RETURNING ` + merchColumns

	deleteMerchSQL = `DELETE FROM merch WHERE id = $1::uuid`

	// The CASE on liked_by membership makes the toggle a single atomic
	// conditional update: concurrent toggles by the same user serialize on
	// the row lock instead of racing a read-then-write. The likes column is
	// recomputed from the same expression, so it can never drift from the
	// set size. RETURNING evaluates on the new row: membership there means
	// the toggle was a like.
	toggleLikeSQL = `UPDATE merch SET
			liked_by = CASE WHEN $2::text = ANY(liked_by)
				THEN array_remove(liked_by, $2::text)
				ELSE array_append(liked_by, $2::text) END,
			likes = cardinality(CASE WHEN $2::text = ANY(liked_by)
				THEN array_remove(liked_by, $2::text)
				ELSE array_append(liked_by, $2::text) END),
			updated_at = now()
		WHERE id = $1::uuid
		RETURNING ` + merchColumns + `, $2::text = ANY(liked_by) AS liked`

	allImageKeysSQL = `SELECT unnest(images) FROM merch`
)

var _ merch.Repository = (*MerchRepository)(nil)

// MerchRepository implements merch.Repository backed by PostgreSQL.
type MerchRepository struct {
	pool *pgxpool.Pool
}

// NewMerchRepository returns a MerchRepository that uses the given pool.
func NewMerchRepository(pool *pgxpool.Pool) *MerchRepository {
	return &MerchRepository{pool: pool}
}

// Create persists a new record and fills in the database-assigned counter
// and timestamp fields.
func (r *MerchRepository) Create(ctx context.Context, rec *merch.Record) error {
	row := r.pool.QueryRow(ctx, createMerchSQL,
		rec.ID, rec.Name, rec.DesignBy, rec.Description, rec.Cost, rec.Images,
	)
	if err := row.Scan(&rec.Likes, &rec.LikedBy, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return fmt.Errorf("creating merch %q: %w", rec.ID, err)
	}
	return nil
}

// Record ids are UUIDs. An id that does not parse cannot match any row,
// so it is reported as not found instead of reaching the uuid cast in SQL,
// which would fail the whole query with 22P02.
func invalidID(id string) bool {
	_, err := uuid.Parse(id)
	return err != nil
}

// Get returns a single record by its identifier.
func (r *MerchRepository) Get(ctx context.Context, id string) (*merch.Record, error) {
	if invalidID(id) {
		return nil, merch.ErrNotFound
	}

	rows, err := r.pool.Query(ctx, getMerchSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting merch %q: %w", id, err)
	}

	rec, err := pgx.CollectExactlyOneRow(rows, scanMerch)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, merch.ErrNotFound
		}
		return nil, fmt.Errorf("getting merch %q: %w", id, err)
	}
	return &rec, nil
}

// List returns all records in insertion order.
func (r *MerchRepository) List(ctx context.Context) ([]merch.Record, error) {
	rows, err := r.pool.Query(ctx, listMerchSQL)
	if err != nil {
		return nil, fmt.Errorf("listing merch: %w", err)
	}
	return pgx.CollectRows(rows, scanMerch)
}

// SearchByName returns records whose name contains key as a
// case-insensitive substring. ILIKE wildcards in key are escaped so the
// match is a literal substring, not a pattern.
func (r *MerchRepository) SearchByName(ctx context.Context, key string) ([]merch.Record, error) {
	rows, err := r.pool.Query(ctx, searchMerchSQL, escapeLike(key))
	if err != nil {
		return nil, fmt.Errorf("searching merch by %q: %w", key, err)
	}
	return pgx.CollectRows(rows, scanMerch)
}

// Update merges only the supplied fields into the record; nil fields stay
// untouched.
func (r *MerchRepository) Update(ctx context.Context, id string, upd merch.Update) (*merch.Record, error) {
	if invalidID(id) {
		return nil, merch.ErrNotFound
	}

	rows, err := r.pool.Query(ctx, updateMerchSQL,
		id, upd.Name, upd.DesignBy, upd.Description, upd.Cost, upd.Images,
	)
	if err != nil {
		return nil, fmt.Errorf("updating merch %q: %w", id, err)
	}

	rec, err := pgx.CollectExactlyOneRow(rows, scanMerch)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, merch.ErrNotFound
		}
		return nil, fmt.Errorf("updating merch %q: %w", id, err)
	}
	return &rec, nil
}

// Delete removes a record by its identifier.
func (r *MerchRepository) Delete(ctx context.Context, id string) error {
	if invalidID(id) {
		return merch.ErrNotFound
	}

	tag, err := r.pool.Exec(ctx, deleteMerchSQL, id)
	if err != nil {
		return fmt.Errorf("deleting merch %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return merch.ErrNotFound
	}
	return nil
}

// ToggleLike flips membership of userID in the record's liked-by set and
// recomputes the counter in one statement.
func (r *MerchRepository) ToggleLike(ctx context.Context, id, userID string) (*merch.Record, bool, error) {
	if invalidID(id) {
		return nil, false, merch.ErrNotFound
	}

	rows, err := r.pool.Query(ctx, toggleLikeSQL, id, userID)
	if err != nil {
		return nil, false, fmt.Errorf("toggling like on merch %q: %w", id, err)
	}

	type likedRow struct {
		rec   merch.Record
		liked bool
	}
	result, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (likedRow, error) {
		var (
			out  likedRow
			cost decimal.Decimal
		)
		err := row.Scan(
			&out.rec.ID, &out.rec.Name, &out.rec.DesignBy, &out.rec.Description,
			&cost, &out.rec.Images, &out.rec.Likes, &out.rec.LikedBy,
			&out.rec.CreatedAt, &out.rec.UpdatedAt, &out.liked,
		)
		out.rec.Cost = cost
		return out, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, merch.ErrNotFound
		}
		return nil, false, fmt.Errorf("toggling like on merch %q: %w", id, err)
	}
	return &result.rec, result.liked, nil
}

// AllImageKeys returns every storage key referenced by any record. The
// asset sweep uses it to tell orphans from live files.
func (r *MerchRepository) AllImageKeys(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, allImageKeysSQL)
	if err != nil {
		return nil, fmt.Errorf("listing image keys: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func scanMerch(row pgx.CollectableRow) (merch.Record, error) {
	var (
		rec  merch.Record
		cost decimal.Decimal
	)
	err := row.Scan(
		&rec.ID, &rec.Name, &rec.DesignBy, &rec.Description,
		&cost, &rec.Images, &rec.Likes, &rec.LikedBy,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	rec.Cost = cost
	return rec, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
