package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"platbook/internal/listing/models"
	id "platbook/pkg/domain"
	"platbook/pkg/platform/sentinel"
	txcontext "platbook/pkg/platform/tx"
)

// PostgresStore persists raw listings in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the raw_listings table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS raw_listings (
			id UUID PRIMARY KEY,
			platform TEXT NOT NULL,
			native_id TEXT NOT NULL,
			extracted_at TIMESTAMPTZ NOT NULL,
			fields JSONB NOT NULL,
			metadata JSONB NOT NULL,
			received_at TIMESTAMPTZ NOT NULL,
			UNIQUE (platform, native_id, extracted_at)
		)`)
	if err != nil {
		return fmt.Errorf("migrate raw_listings: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, rec *models.RawListingRecord) error {
	if rec == nil {
		return fmt.Errorf("raw listing record is required")
	}

	fields, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("marshal listing fields: %w", err)
	}
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("marshal listing metadata: %w", err)
	}

	res, err := txcontext.QuerierFrom(ctx, s.db).ExecContext(ctx, `
		INSERT INTO raw_listings (id, platform, native_id, extracted_at, fields, metadata, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (platform, native_id, extracted_at) DO NOTHING`,
		rec.ID.String(), rec.Platform.String(), rec.NativeID, rec.ExtractedAt, fields, meta, rec.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("insert raw listing: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert raw listing: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, listingID id.ListingID) (*models.RawListingRecord, error) {
	row := txcontext.QuerierFrom(ctx, s.db).QueryRowContext(ctx, `
		SELECT id, platform, native_id, extracted_at, fields, metadata, received_at
		FROM raw_listings WHERE id = $1`, listingID.String())
	return scanListing(row)
}

func (s *PostgresStore) FindBySource(ctx context.Context, platform id.Platform, nativeID string, extractedAt time.Time) (*models.RawListingRecord, error) {
	row := txcontext.QuerierFrom(ctx, s.db).QueryRowContext(ctx, `
		SELECT id, platform, native_id, extracted_at, fields, metadata, received_at
		FROM raw_listings WHERE platform = $1 AND native_id = $2 AND extracted_at = $3`,
		platform.String(), nativeID, extractedAt)
	return scanListing(row)
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var count int
	err := txcontext.QuerierFrom(ctx, s.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM raw_listings`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count raw listings: %w", err)
	}
	return count, nil
}

func scanListing(row *sql.Row) (*models.RawListingRecord, error) {
	var (
		rec      models.RawListingRecord
		rawID    string
		platform string
		fields   []byte
		meta     []byte
	)
	err := row.Scan(&rawID, &platform, &rec.NativeID, &rec.ExtractedAt, &fields, &meta, &rec.ReceivedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan raw listing: %w", err)
	}

	listingID, err := id.ParseListingID(rawID)
	if err != nil {
		return nil, fmt.Errorf("scan raw listing id: %w", err)
	}
	rec.ID = listingID
	rec.Platform = id.Platform(platform)

	if err := json.Unmarshal(fields, &rec.Fields); err != nil {
		return nil, fmt.Errorf("unmarshal listing fields: %w", err)
	}
	if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal listing metadata: %w", err)
	}
	return &rec, nil
}
