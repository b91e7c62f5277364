package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"platbook/internal/property/models"
	id "platbook/pkg/domain"
	"platbook/pkg/platform/sentinel"
	txcontext "platbook/pkg/platform/tx"
)

// PostgresStore persists property entities in PostgreSQL. JSONB columns keep
// the consolidated field map, conflicts and collaborator blocks; a partial
// unique index enforces one live entity per shadow group.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS properties (
			id UUID PRIMARY KEY,
			group_id UUID NOT NULL,
			source_listings JSONB NOT NULL,
			fields JSONB NOT NULL,
			conflicts JSONB NOT NULL DEFAULT '[]',
			classification JSONB NOT NULL DEFAULT '{}',
			verification JSONB,
			enrichment JSONB,
			amplified_confidence BOOLEAN NOT NULL DEFAULT FALSE,
			merged_into UUID,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS properties_live_group
			ON properties (group_id) WHERE merged_into IS NULL;
		CREATE INDEX IF NOT EXISTS properties_verdict
			ON properties ((classification->>'verdict'))`)
	if err != nil {
		return fmt.Errorf("migrate properties: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, e *models.PropertyEntity) error {
	cols, err := marshalEntity(e)
	if err != nil {
		return err
	}

	res, err := txcontext.QuerierFrom(ctx, s.db).ExecContext(ctx, `
		INSERT INTO properties (id, group_id, source_listings, fields, conflicts,
			classification, verification, enrichment, amplified_confidence,
			merged_into, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (group_id) WHERE merged_into IS NULL DO NOTHING`,
		e.ID.String(), e.GroupID.String(), cols.sourceListings, cols.fields,
		cols.conflicts, cols.classification, cols.verification, cols.enrichment,
		e.AmplifiedConfidence, nullPropertyID(e.MergedInto), e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert property: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert property: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, propertyID id.PropertyID) (*models.PropertyEntity, error) {
	row := txcontext.QuerierFrom(ctx, s.db).QueryRowContext(ctx,
		selectEntity+` WHERE id = $1`, propertyID.String())
	return scanEntity(row)
}

func (s *PostgresStore) FindByGroup(ctx context.Context, groupID id.GroupID) (*models.PropertyEntity, error) {
	row := txcontext.QuerierFrom(ctx, s.db).QueryRowContext(ctx,
		selectEntity+` WHERE group_id = $1 AND merged_into IS NULL`, groupID.String())
	return scanEntity(row)
}

func (s *PostgresStore) Update(ctx context.Context, e *models.PropertyEntity) error {
	cols, err := marshalEntity(e)
	if err != nil {
		return err
	}

	res, err := txcontext.QuerierFrom(ctx, s.db).ExecContext(ctx, `
		UPDATE properties
		SET source_listings = $2, fields = $3, conflicts = $4, classification = $5,
			verification = $6, enrichment = $7, amplified_confidence = $8,
			merged_into = $9, updated_at = $10
		WHERE id = $1`,
		e.ID.String(), cols.sourceListings, cols.fields, cols.conflicts,
		cols.classification, cols.verification, cols.enrichment,
		e.AmplifiedConfidence, nullPropertyID(e.MergedInto), e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update property: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update property: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.PropertyEntity, error) {
	rows, err := txcontext.QuerierFrom(ctx, s.db).QueryContext(ctx,
		selectEntity+` ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list properties: %w", err)
	}
	defer rows.Close()
	return scanEntities(rows)
}

// ListPage returns one page of live entities matching the query. Filters on
// consolidated values reach into the fields JSONB the same way the
// comparable lookup does.
func (s *PostgresStore) ListPage(ctx context.Context, q ListQuery) ([]*models.PropertyEntity, string, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}

	where := []string{"merged_into IS NULL"}
	args := []any{}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if q.Verdict != "" {
		add("classification->>'verdict' = $%d", q.Verdict)
	}
	if q.State != "" {
		add("UPPER(fields->'state'->>'value') = UPPER($%d)", q.State)
	}
	if q.City != "" {
		add("LOWER(fields->'city'->>'value') = LOWER($%d)", q.City)
	}
	if q.PropertyType != "" {
		add("UPPER(fields->'property_type'->>'value') = UPPER($%d)", q.PropertyType)
	}
	if q.Cursor != "" {
		add("id > $%d::uuid", q.Cursor)
	}
	args = append(args, limit+1)

	rows, err := txcontext.QuerierFrom(ctx, s.db).QueryContext(ctx, selectEntity+`
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY id
		LIMIT $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, "", fmt.Errorf("list properties page: %w", err)
	}
	defer rows.Close()

	page, err := scanEntities(rows)
	if err != nil {
		return nil, "", err
	}
	next := ""
	if len(page) > limit {
		page = page[:limit]
		next = page[limit-1].ID.String()
	}
	return page, next, nil
}

func (s *PostgresStore) ListComparables(ctx context.Context, state, city, propertyType string) ([]*models.PropertyEntity, error) {
	rows, err := txcontext.QuerierFrom(ctx, s.db).QueryContext(ctx, selectEntity+`
		WHERE merged_into IS NULL
		  AND UPPER(fields->'state'->>'value') = UPPER($1)
		  AND LOWER(fields->'city'->>'value') = LOWER($2)
		  AND UPPER(fields->'property_type'->>'value') = UPPER($3)`,
		state, city, propertyType)
	if err != nil {
		return nil, fmt.Errorf("list comparable properties: %w", err)
	}
	defer rows.Close()
	return scanEntities(rows)
}

func (s *PostgresStore) CountByVerdict(ctx context.Context) (map[models.Verdict]int, error) {
	rows, err := txcontext.QuerierFrom(ctx, s.db).QueryContext(ctx, `
		SELECT COALESCE(classification->>'verdict', ''), COUNT(*)
		FROM properties
		WHERE merged_into IS NULL
		GROUP BY 1`)
	if err != nil {
		return nil, fmt.Errorf("count properties by verdict: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Verdict]int)
	for rows.Next() {
		var verdict string
		var n int
		if err := rows.Scan(&verdict, &n); err != nil {
			return nil, fmt.Errorf("count properties by verdict: %w", err)
		}
		counts[models.Verdict(verdict)] = n
	}
	return counts, rows.Err()
}

func (s *PostgresStore) CountDiscardReasons(ctx context.Context) (map[string]int, error) {
	rows, err := txcontext.QuerierFrom(ctx, s.db).QueryContext(ctx, `
		SELECT reason, COUNT(*)
		FROM properties,
			jsonb_array_elements_text(classification->'reasons') AS reason
		WHERE merged_into IS NULL
		  AND classification->>'verdict' = 'discarded'
		GROUP BY 1`)
	if err != nil {
		return nil, fmt.Errorf("count discard reasons: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var reason string
		var n int
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, fmt.Errorf("count discard reasons: %w", err)
		}
		counts[reason] = n
	}
	return counts, rows.Err()
}

func (s *PostgresStore) CountConflictsBySeverity(ctx context.Context) (map[models.Severity]int, error) {
	rows, err := txcontext.QuerierFrom(ctx, s.db).QueryContext(ctx, `
		SELECT conflict->>'severity', COUNT(*)
		FROM properties,
			jsonb_array_elements(conflicts) AS conflict
		WHERE merged_into IS NULL
		GROUP BY 1`)
	if err != nil {
		return nil, fmt.Errorf("count conflicts by severity: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Severity]int)
	for rows.Next() {
		var severity string
		var n int
		if err := rows.Scan(&severity, &n); err != nil {
			return nil, fmt.Errorf("count conflicts by severity: %w", err)
		}
		counts[models.Severity(severity)] = n
	}
	return counts, rows.Err()
}

const selectEntity = `
	SELECT id, group_id, source_listings, fields, conflicts, classification,
		verification, enrichment, amplified_confidence, merged_into,
		created_at, updated_at
	FROM properties`

type entityColumns struct {
	sourceListings []byte
	fields         []byte
	conflicts      []byte
	classification []byte
	verification   []byte
	enrichment     []byte
}

func marshalEntity(e *models.PropertyEntity) (entityColumns, error) {
	var cols entityColumns
	var err error

	if cols.sourceListings, err = json.Marshal(e.SourceListings); err != nil {
		return cols, fmt.Errorf("marshal source listings: %w", err)
	}
	if cols.fields, err = json.Marshal(e.Fields); err != nil {
		return cols, fmt.Errorf("marshal property fields: %w", err)
	}
	conflicts := e.Conflicts
	if conflicts == nil {
		conflicts = []models.ConflictRecord{}
	}
	if cols.conflicts, err = json.Marshal(conflicts); err != nil {
		return cols, fmt.Errorf("marshal conflicts: %w", err)
	}
	if cols.classification, err = json.Marshal(e.Classification); err != nil {
		return cols, fmt.Errorf("marshal classification: %w", err)
	}
	if e.Verification != nil {
		if cols.verification, err = json.Marshal(e.Verification); err != nil {
			return cols, fmt.Errorf("marshal verification: %w", err)
		}
	}
	if e.Enrichment != nil {
		if cols.enrichment, err = json.Marshal(e.Enrichment); err != nil {
			return cols, fmt.Errorf("marshal enrichment: %w", err)
		}
	}
	return cols, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*models.PropertyEntity, error) {
	var (
		e              models.PropertyEntity
		propertyID     string
		groupID        string
		sourceListings []byte
		fields         []byte
		conflicts      []byte
		classification []byte
		verification   []byte
		enrichment     []byte
		mergedInto     sql.NullString
	)
	err := row.Scan(&propertyID, &groupID, &sourceListings, &fields, &conflicts,
		&classification, &verification, &enrichment, &e.AmplifiedConfidence,
		&mergedInto, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan property: %w", err)
	}

	if e.ID, err = id.ParsePropertyID(propertyID); err != nil {
		return nil, fmt.Errorf("scan property: %w", err)
	}
	if e.GroupID, err = id.ParseGroupID(groupID); err != nil {
		return nil, fmt.Errorf("scan property: %w", err)
	}
	if mergedInto.Valid {
		if e.MergedInto, err = id.ParsePropertyID(mergedInto.String); err != nil {
			return nil, fmt.Errorf("scan property: %w", err)
		}
	}
	if err = json.Unmarshal(sourceListings, &e.SourceListings); err != nil {
		return nil, fmt.Errorf("scan property source listings: %w", err)
	}
	if err = json.Unmarshal(fields, &e.Fields); err != nil {
		return nil, fmt.Errorf("scan property fields: %w", err)
	}
	if err = json.Unmarshal(conflicts, &e.Conflicts); err != nil {
		return nil, fmt.Errorf("scan property conflicts: %w", err)
	}
	if err = json.Unmarshal(classification, &e.Classification); err != nil {
		return nil, fmt.Errorf("scan property classification: %w", err)
	}
	if len(verification) > 0 {
		if err = json.Unmarshal(verification, &e.Verification); err != nil {
			return nil, fmt.Errorf("scan property verification: %w", err)
		}
	}
	if len(enrichment) > 0 {
		if err = json.Unmarshal(enrichment, &e.Enrichment); err != nil {
			return nil, fmt.Errorf("scan property enrichment: %w", err)
		}
	}
	return &e, nil
}

func scanEntities(rows *sql.Rows) ([]*models.PropertyEntity, error) {
	var out []*models.PropertyEntity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullPropertyID(propertyID id.PropertyID) sql.NullString {
	if propertyID.IsNil() {
		return sql.NullString{}
	}
	return sql.NullString{String: propertyID.String(), Valid: true}
}
