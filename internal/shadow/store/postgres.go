package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"platbook/internal/shadow/models"
	id "platbook/pkg/domain"
	"platbook/pkg/platform/sentinel"
)

// PostgresStore persists shadow groups in PostgreSQL. Group membership lives
// twice: as JSONB on the group row for cheap reads, and as rows in
// shadow_group_members whose primary key enforces one live group per listing.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS shadow_groups (
			id UUID PRIMARY KEY,
			merged_into UUID,
			members JSONB NOT NULL,
			reassignments JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS shadow_group_members (
			listing_id UUID PRIMARY KEY,
			group_id UUID NOT NULL REFERENCES shadow_groups(id)
		)`)
	if err != nil {
		return fmt.Errorf("migrate shadow_groups: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, g *models.ShadowGroup) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create group: %w", err)
	}
	defer tx.Rollback()

	if err := insertGroup(ctx, tx, g); err != nil {
		return err
	}
	if err := claimMembers(ctx, tx, g); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create group: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, groupID id.GroupID) (*models.ShadowGroup, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, merged_into, members, reassignments, created_at, updated_at
		FROM shadow_groups WHERE id = $1`, groupID.String())
	return scanGroup(row)
}

func (s *PostgresStore) FindByListing(ctx context.Context, listingID id.ListingID) (*models.ShadowGroup, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT g.id, g.merged_into, g.members, g.reassignments, g.created_at, g.updated_at
		FROM shadow_groups g
		JOIN shadow_group_members m ON m.group_id = g.id
		WHERE m.listing_id = $1`, listingID.String())
	return scanGroup(row)
}

func (s *PostgresStore) Update(ctx context.Context, g *models.ShadowGroup) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update group: %w", err)
	}
	defer tx.Rollback()

	if err := updateGroup(ctx, tx, g); err != nil {
		return err
	}
	if err := claimMembers(ctx, tx, g); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update group: %w", err)
	}
	return nil
}

func (s *PostgresStore) Merge(ctx context.Context, winner, loser *models.ShadowGroup) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin merge groups: %w", err)
	}
	defer tx.Rollback()

	if err := updateGroup(ctx, tx, winner); err != nil {
		return err
	}
	if err := updateGroup(ctx, tx, loser); err != nil {
		return err
	}
	// Repoint the loser's member claims, then claim any winner members that
	// are new to both groups.
	if _, err := tx.ExecContext(ctx, `
		UPDATE shadow_group_members SET group_id = $1 WHERE group_id = $2`,
		winner.ID.String(), loser.ID.String()); err != nil {
		return fmt.Errorf("repoint group members: %w", err)
	}
	if err := claimMembers(ctx, tx, winner); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit merge groups: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.ShadowGroup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, merged_into, members, reassignments, created_at, updated_at
		FROM shadow_groups`)
	if err != nil {
		return nil, fmt.Errorf("list shadow groups: %w", err)
	}
	defer rows.Close()

	var out []*models.ShadowGroup
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func insertGroup(ctx context.Context, tx *sql.Tx, g *models.ShadowGroup) error {
	members, reassignments, err := marshalGroup(g)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO shadow_groups (id, merged_into, members, reassignments, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		g.ID.String(), nullGroupID(g.MergedInto), members, reassignments, g.CreatedAt, g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert shadow group: %w", err)
	}
	return nil
}

func updateGroup(ctx context.Context, tx *sql.Tx, g *models.ShadowGroup) error {
	members, reassignments, err := marshalGroup(g)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE shadow_groups
		SET merged_into = $2, members = $3, reassignments = $4, updated_at = $5
		WHERE id = $1`,
		g.ID.String(), nullGroupID(g.MergedInto), members, reassignments, g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update shadow group: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update shadow group: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// claimMembers inserts membership claims, tolerating claims this group
// already holds. A claim held by another group surfaces as
// sentinel.ErrAlreadyAssigned.
func claimMembers(ctx context.Context, tx *sql.Tx, g *models.ShadowGroup) error {
	for _, m := range g.Members {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO shadow_group_members (listing_id, group_id)
			VALUES ($1, $2)
			ON CONFLICT (listing_id) DO NOTHING`,
			m.String(), g.ID.String())
		if err != nil {
			return fmt.Errorf("claim group member: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("claim group member: %w", err)
		}
		if affected == 0 {
			var owner string
			err := tx.QueryRowContext(ctx, `
				SELECT group_id FROM shadow_group_members WHERE listing_id = $1`,
				m.String()).Scan(&owner)
			if err != nil {
				return fmt.Errorf("check member claim: %w", err)
			}
			if owner != g.ID.String() {
				return sentinel.ErrAlreadyAssigned
			}
		}
	}
	return nil
}

func marshalGroup(g *models.ShadowGroup) (members, reassignments []byte, err error) {
	members, err = json.Marshal(g.Members)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal group members: %w", err)
	}
	if g.Reassignments == nil {
		reassignments = []byte("[]")
	} else if reassignments, err = json.Marshal(g.Reassignments); err != nil {
		return nil, nil, fmt.Errorf("marshal group reassignments: %w", err)
	}
	return members, reassignments, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGroup(row rowScanner) (*models.ShadowGroup, error) {
	var (
		g             models.ShadowGroup
		rawID         string
		mergedInto    sql.NullString
		members       []byte
		reassignments []byte
	)
	err := row.Scan(&rawID, &mergedInto, &members, &reassignments, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan shadow group: %w", err)
	}

	groupID, err := id.ParseGroupID(rawID)
	if err != nil {
		return nil, fmt.Errorf("scan shadow group id: %w", err)
	}
	g.ID = groupID

	if mergedInto.Valid {
		target, err := id.ParseGroupID(mergedInto.String)
		if err != nil {
			return nil, fmt.Errorf("scan merged_into: %w", err)
		}
		g.MergedInto = target
	}
	if err := json.Unmarshal(members, &g.Members); err != nil {
		return nil, fmt.Errorf("unmarshal group members: %w", err)
	}
	if err := json.Unmarshal(reassignments, &g.Reassignments); err != nil {
		return nil, fmt.Errorf("unmarshal group reassignments: %w", err)
	}
	return &g, nil
}

func nullGroupID(groupID id.GroupID) sql.NullString {
	if groupID.IsNil() {
		return sql.NullString{}
	}
	return sql.NullString{String: groupID.String(), Valid: true}
}
