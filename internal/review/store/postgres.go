package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"platbook/internal/review/models"
	id "platbook/pkg/domain"
	"platbook/pkg/platform/sentinel"
)

// PostgresStore persists review items in PostgreSQL. A partial unique index
// on listing_id enforces at most one pending item per listing.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS review_items (
			id UUID PRIMARY KEY,
			listing_id UUID NOT NULL,
			platform TEXT NOT NULL,
			candidates JSONB NOT NULL,
			status TEXT NOT NULL,
			resolved_group UUID,
			resolved_by TEXT NOT NULL DEFAULT '',
			resolved_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS review_items_pending_listing_idx
			ON review_items (listing_id) WHERE status = 'pending'`)
	if err != nil {
		return fmt.Errorf("migrate review_items: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, item *models.ReviewItem) error {
	candidates, err := json.Marshal(item.Candidates)
	if err != nil {
		return fmt.Errorf("marshal review candidates: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO review_items (id, listing_id, platform, candidates, status, resolved_group, resolved_by, resolved_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (listing_id) WHERE status = 'pending' DO NOTHING`,
		item.ID.String(), item.ListingID.String(), item.Platform.String(), candidates,
		string(item.Status), nullGroup(item.ResolvedGroup), item.ResolvedBy,
		nullTime(item.ResolvedAt), item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert review item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert review item: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, reviewID id.ReviewID) (*models.ReviewItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, listing_id, platform, candidates, status, resolved_group, resolved_by, resolved_at, created_at, updated_at
		FROM review_items WHERE id = $1`, reviewID.String())
	return scanItem(row)
}

func (s *PostgresStore) FindPendingByListing(ctx context.Context, listingID id.ListingID) (*models.ReviewItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, listing_id, platform, candidates, status, resolved_group, resolved_by, resolved_at, created_at, updated_at
		FROM review_items WHERE listing_id = $1 AND status = 'pending'`, listingID.String())
	return scanItem(row)
}

func (s *PostgresStore) Update(ctx context.Context, item *models.ReviewItem) error {
	candidates, err := json.Marshal(item.Candidates)
	if err != nil {
		return fmt.Errorf("marshal review candidates: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE review_items
		SET candidates = $2, status = $3, resolved_group = $4, resolved_by = $5, resolved_at = $6, updated_at = $7
		WHERE id = $1 AND status = 'pending'`,
		item.ID.String(), candidates, string(item.Status), nullGroup(item.ResolvedGroup),
		item.ResolvedBy, nullTime(item.ResolvedAt), item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update review item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update review item: %w", err)
	}
	if affected == 0 {
		var status string
		err := s.db.QueryRowContext(ctx, `
			SELECT status FROM review_items WHERE id = $1`,
			item.ID.String()).Scan(&status)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return sentinel.ErrNotFound
		case err != nil:
			return fmt.Errorf("check review status: %w", err)
		}
		return fmt.Errorf("review already resolved: %w", sentinel.ErrInvalidState)
	}
	return nil
}

func (s *PostgresStore) ListPending(ctx context.Context) ([]*models.ReviewItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, listing_id, platform, candidates, status, resolved_group, resolved_by, resolved_at, created_at, updated_at
		FROM review_items
		WHERE status = 'pending'
		ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list pending reviews: %w", err)
	}
	defer rows.Close()

	var out []*models.ReviewItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountPending(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM review_items WHERE status = 'pending'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending reviews: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*models.ReviewItem, error) {
	var (
		item          models.ReviewItem
		rawID         string
		rawListing    string
		rawPlatform   string
		rawStatus     string
		candidates    []byte
		resolvedGroup sql.NullString
		resolvedAt    sql.NullTime
	)
	err := row.Scan(&rawID, &rawListing, &rawPlatform, &candidates, &rawStatus,
		&resolvedGroup, &item.ResolvedBy, &resolvedAt, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan review item: %w", err)
	}

	if item.ID, err = id.ParseReviewID(rawID); err != nil {
		return nil, fmt.Errorf("scan review id: %w", err)
	}
	if item.ListingID, err = id.ParseListingID(rawListing); err != nil {
		return nil, fmt.Errorf("scan review listing id: %w", err)
	}
	item.Platform = id.Platform(rawPlatform)
	item.Status = models.Status(rawStatus)
	if err := json.Unmarshal(candidates, &item.Candidates); err != nil {
		return nil, fmt.Errorf("unmarshal review candidates: %w", err)
	}
	if resolvedGroup.Valid {
		if item.ResolvedGroup, err = id.ParseGroupID(resolvedGroup.String); err != nil {
			return nil, fmt.Errorf("scan resolved group: %w", err)
		}
	}
	if resolvedAt.Valid {
		item.ResolvedAt = resolvedAt.Time
	}
	return &item, nil
}

func nullGroup(groupID id.GroupID) sql.NullString {
	if groupID.IsNil() {
		return sql.NullString{}
	}
	return sql.NullString{String: groupID.String(), Valid: true}
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
