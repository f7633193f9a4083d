package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shalom-ormsby/sagestocks/internal/domain"
)

const keyPrefix = "workqueue:"

// RedisStore keeps one JSON-serialized StoredQueue per cycle under a
// TTL'd key. The TTL is set once at Save; Advance preserves the
// remaining lifetime so checkpoint updates never extend it.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Connect parses the connection URL and verifies the server responds.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (s *RedisStore) Save(ctx context.Context, q *domain.StoredQueue) error {
	payload, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("marshal queue %s: %w", q.CycleID, err)
	}
	if err := s.client.Set(ctx, keyPrefix+q.CycleID, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("save queue %s: %w", q.CycleID, err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, cycleID string) (*domain.StoredQueue, error) {
	payload, err := s.client.Get(ctx, keyPrefix+cycleID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNoQueue
	}
	if err != nil {
		return nil, fmt.Errorf("load queue %s: %w", cycleID, err)
	}

	var q domain.StoredQueue
	if err := json.Unmarshal(payload, &q); err != nil {
		return nil, fmt.Errorf("unmarshal queue %s: %w", cycleID, err)
	}
	return &q, nil
}

func (s *RedisStore) Advance(ctx context.Context, cycleID string, processed int) error {
	q, err := s.Load(ctx, cycleID)
	if err != nil {
		return err
	}
	if err := q.AdvanceTo(processed); err != nil {
		return err
	}

	payload, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("marshal queue %s: %w", cycleID, err)
	}
	// KeepTTL: the checkpoint update must not restart the expiry clock.
	if err := s.client.Set(ctx, keyPrefix+cycleID, payload, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("advance queue %s: %w", cycleID, err)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, cycleID string) error {
	if err := s.client.Del(ctx, keyPrefix+cycleID).Err(); err != nil {
		return fmt.Errorf("remove queue %s: %w", cycleID, err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
