package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultTTL    = 7 * 24 * time.Hour
	defaultPrefix = "barre"
)

// RedisStore provides a Redis-backed implementation of the Store interface.
// Drafts are stored as JSON with a TTL and indexed per user in a set.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL sets the time-to-live for drafts.
// Default is 7 days. Set to 0 for no expiration.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for Redis keys.
// Default is "barre".
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// NewRedisStore creates a new Redis-backed draft store.
//
// Example:
//
//	store := NewRedisStore(
//	    redis.NewClient(&redis.Options{Addr: "localhost:6379"}),
//	    WithTTL(24 * time.Hour),
//	)
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	store := &RedisStore{
		client: client,
		ttl:    defaultTTL,
		prefix: defaultPrefix,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// SaveDraft persists a draft with TTL.
// The SET and both index updates go out in a single pipeline.
func (s *RedisStore) SaveDraft(ctx context.Context, draft *Draft) error {
	if err := validate(draft); err != nil {
		return err
	}

	data, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("failed to marshal draft: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.draftKey(draft.ID()), data, s.ttl)
	pipe.SAdd(ctx, s.allIndexKey(), draft.ID())
	if draft.UserID() != "" {
		indexKey := s.userIndexKey(draft.UserID())
		pipe.SAdd(ctx, indexKey, draft.ID())
		if s.ttl > 0 {
			pipe.Expire(ctx, indexKey, s.ttl)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}

// LoadDraft retrieves a draft by session ID.
func (s *RedisStore) LoadDraft(ctx context.Context, id string) (*Draft, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	data, err := s.client.Get(ctx, s.draftKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var d Draft
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal draft: %w", err)
	}
	return &d, nil
}

// DeleteDraft removes a draft and its index entries.
func (s *RedisStore) DeleteDraft(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidID
	}

	d, err := s.LoadDraft(ctx, id)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.draftKey(id))
	pipe.SRem(ctx, s.allIndexKey(), id)
	if d.UserID() != "" {
		pipe.SRem(ctx, s.userIndexKey(d.UserID()), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}

// ListDrafts returns the drafts owned by userID, oldest first. Index
// entries whose draft has expired are pruned.
func (s *RedisStore) ListDrafts(ctx context.Context, userID string) ([]*Draft, error) {
	indexKey := s.allIndexKey()
	if userID != "" {
		indexKey = s.userIndexKey(userID)
	}

	ids, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers failed: %w", err)
	}
	if len(ids) == 0 {
		return []*Draft{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.draftKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget failed: %w", err)
	}

	drafts := make([]*Draft, 0, len(ids))
	var stale []any
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var d Draft
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			return nil, fmt.Errorf("failed to unmarshal draft %s: %w", ids[i], err)
		}
		drafts = append(drafts, &d)
	}

	if len(stale) > 0 {
		pipe := s.client.Pipeline()
		pipe.SRem(ctx, indexKey, stale...)
		pipe.SRem(ctx, s.allIndexKey(), stale...)
		_, _ = pipe.Exec(ctx)
	}

	sortDrafts(drafts)
	return drafts, nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) draftKey(id string) string {
	return fmt.Sprintf("%s:draft:%s", s.prefix, id)
}

func (s *RedisStore) userIndexKey(userID string) string {
	return fmt.Sprintf("%s:user:%s:drafts", s.prefix, userID)
}

func (s *RedisStore) allIndexKey() string {
	return fmt.Sprintf("%s:drafts", s.prefix)
}
