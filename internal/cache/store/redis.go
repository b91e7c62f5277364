package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"platbook/internal/cache/models"
	id "platbook/pkg/domain"
	"platbook/pkg/platform/sentinel"
)

const (
	// Per-property hash of field name -> JSON entry
	cacheEntryKeyPrefix = "platbook:cache:entry:"
	// Set of property ids that have cached entries
	cachePropertyIndexKey = "platbook:cache:properties"
	// Dedup markers for invalidation event ids
	cacheEventKeyPrefix = "platbook:cache:event:"
	// In-flight refresh markers per property field
	cacheRefreshKeyPrefix = "platbook:cache:refresh:"
)

// RedisStore is a Redis-backed EntryStore for distributed deployments where
// multiple instances share cache state, event dedup marks and in-flight
// refresh markers.
type RedisStore struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed cache store. The client lifecycle is
// managed externally.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Upsert(ctx context.Context, e *models.Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, entryHashKey(e.PropertyID), string(e.Field), raw)
	pipe.SAdd(ctx, cachePropertyIndexKey, e.PropertyID.String())
	if !e.Stale {
		// Fresh data ends any in-flight refresh for the field.
		pipe.Del(ctx, refreshMarkerKey(e.PropertyID, e.Field))
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Get(ctx context.Context, propertyID id.PropertyID, field id.Field) (*models.Entry, error) {
	raw, err := s.client.HGet(ctx, entryHashKey(propertyID), string(field)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeEntry([]byte(raw))
}

func (s *RedisStore) ListByProperty(ctx context.Context, propertyID id.PropertyID) ([]*models.Entry, error) {
	fields, err := s.client.HGetAll(ctx, entryHashKey(propertyID)).Result()
	if err != nil {
		return nil, err
	}

	out := make([]*models.Entry, 0, len(fields))
	for _, raw := range fields {
		e, err := decodeEntry([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *RedisStore) ListProperties(ctx context.Context) ([]id.PropertyID, error) {
	members, err := s.client.SMembers(ctx, cachePropertyIndexKey).Result()
	if err != nil {
		return nil, err
	}
	out := make([]id.PropertyID, 0, len(members))
	for _, m := range members {
		propertyID, err := id.ParsePropertyID(m)
		if err != nil {
			continue
		}
		out = append(out, propertyID)
	}
	return out, nil
}

// ListExpired scans every cached property. The sweeper runs on a fixed
// interval, so the full scan is acceptable at this cadence.
func (s *RedisStore) ListExpired(ctx context.Context, now time.Time) ([]*models.Entry, error) {
	propertyIDs, err := s.client.SMembers(ctx, cachePropertyIndexKey).Result()
	if err != nil {
		return nil, err
	}

	var out []*models.Entry
	for _, member := range propertyIDs {
		propertyID, err := id.ParsePropertyID(member)
		if err != nil {
			continue
		}
		entries, err := s.ListByProperty(ctx, propertyID)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.Expired(now) {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

// SeenEvent reports whether an event id was already recorded, marking it
// as seen otherwise. SETNX makes the check-and-mark atomic across instances.
func (s *RedisStore) SeenEvent(ctx context.Context, eventID id.EventID, ttl time.Duration) (bool, error) {
	acquired, err := s.client.SetNX(ctx, cacheEventKeyPrefix+eventID.String(), "1", ttl).Result()
	if err != nil {
		return false, err
	}
	return !acquired, nil
}

// TryBeginRefresh acquires the in-flight marker for a field.
func (s *RedisStore) TryBeginRefresh(ctx context.Context, propertyID id.PropertyID, field id.Field, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, refreshMarkerKey(propertyID, field), "1", ttl).Result()
}

// EndRefresh releases the in-flight marker for a field.
func (s *RedisStore) EndRefresh(ctx context.Context, propertyID id.PropertyID, field id.Field) error {
	return s.client.Del(ctx, refreshMarkerKey(propertyID, field)).Err()
}

func (s *RedisStore) SetAmplified(ctx context.Context, propertyID id.PropertyID, on bool) error {
	entries, err := s.ListByProperty(ctx, propertyID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for _, e := range entries {
		e.AmplifiedConfidence = on
		raw, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal cache entry: %w", err)
		}
		pipe.HSet(ctx, entryHashKey(propertyID), string(e.Field), raw)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Close is a no-op since the client lifecycle is managed externally.
func (s *RedisStore) Close() {}

func entryHashKey(propertyID id.PropertyID) string {
	return cacheEntryKeyPrefix + propertyID.String()
}

func refreshMarkerKey(propertyID id.PropertyID, field id.Field) string {
	return cacheRefreshKeyPrefix + propertyID.String() + ":" + string(field)
}

func decodeEntry(raw []byte) (*models.Entry, error) {
	var e models.Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	return &e, nil
}
