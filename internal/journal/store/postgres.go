package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"platbook/internal/journal"
	id "platbook/pkg/domain"
)

// PostgresStore persists the journal in PostgreSQL. Entries are immutable
// rows; nothing ever updates or deletes them.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS journal_events (
			id UUID PRIMARY KEY,
			kind TEXT NOT NULL,
			at TIMESTAMPTZ NOT NULL,
			subject TEXT NOT NULL DEFAULT '',
			listing_id UUID,
			group_id UUID,
			property_id UUID,
			platform TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS journal_events_property_idx
			ON journal_events (property_id, at DESC);
		CREATE INDEX IF NOT EXISTS journal_events_at_idx
			ON journal_events (at DESC)`)
	if err != nil {
		return fmt.Errorf("migrate journal_events: %w", err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, e journal.Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO journal_events (id, kind, at, subject, listing_id, group_id, property_id, platform, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.NewString(), string(e.Kind), e.At, e.Subject,
		nullID(e.ListingID.IsNil(), e.ListingID.String()),
		nullID(e.GroupID.IsNil(), e.GroupID.String()),
		nullID(e.PropertyID.IsNil(), e.PropertyID.String()),
		e.Platform.String(), e.Detail)
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByProperty(ctx context.Context, propertyID id.PropertyID) ([]journal.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, at, subject, listing_id, group_id, property_id, platform, detail
		FROM journal_events
		WHERE property_id = $1
		ORDER BY at ASC`, propertyID.String())
	if err != nil {
		return nil, fmt.Errorf("query journal by property: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]journal.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, at, subject, listing_id, group_id, property_id, platform, detail
		FROM journal_events
		ORDER BY at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent journal entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *PostgresStore) CountByKind(ctx context.Context) (map[journal.Kind]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, COUNT(*)
		FROM journal_events
		GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("count journal entries by kind: %w", err)
	}
	defer rows.Close()

	counts := make(map[journal.Kind]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("count journal entries by kind: %w", err)
		}
		counts[journal.Kind(kind)] = n
	}
	return counts, rows.Err()
}

func scanEntries(rows *sql.Rows) ([]journal.Entry, error) {
	var out []journal.Entry
	for rows.Next() {
		var (
			e          journal.Entry
			kind       string
			platform   string
			listingID  sql.NullString
			groupID    sql.NullString
			propertyID sql.NullString
		)
		err := rows.Scan(&kind, &e.At, &e.Subject, &listingID, &groupID, &propertyID, &platform, &e.Detail)
		if err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		e.Kind = journal.Kind(kind)
		e.Platform = id.Platform(platform)
		if listingID.Valid {
			if e.ListingID, err = id.ParseListingID(listingID.String); err != nil {
				return nil, fmt.Errorf("scan journal listing id: %w", err)
			}
		}
		if groupID.Valid {
			if e.GroupID, err = id.ParseGroupID(groupID.String); err != nil {
				return nil, fmt.Errorf("scan journal group id: %w", err)
			}
		}
		if propertyID.Valid {
			if e.PropertyID, err = id.ParsePropertyID(propertyID.String); err != nil {
				return nil, fmt.Errorf("scan journal property id: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullID(isNil bool, s string) sql.NullString {
	if isNil {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
