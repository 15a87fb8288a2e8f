package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/ozarkconnect/linkpulse/internal/engine"
)

// RedisStore implements engine.Store over a single Redis keyspace, adapted
// from the teacher's RedisCacheAdapter: a key-per-result scheme plus a
// sorted set tracking insertion order for Recent, rather than the
// teacher's metadata-key-per-entry scheme (a completed test result has no
// separate metadata worth caching apart from the result itself).
type RedisStore struct {
	client     *redis.Client
	keyPrefix  string
	resultTTL  time.Duration
}

// NewRedisStore builds a RedisStore. resultTTL of 0 means results never
// expire.
func NewRedisStore(client *redis.Client, keyPrefix string, resultTTL time.Duration) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "linkpulse"
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix, resultTTL: resultTTL}
}

func (s *RedisStore) resultKey(id string) string {
	return fmt.Sprintf("%s:result:%s", s.keyPrefix, id)
}

func (s *RedisStore) recentKey() string {
	return fmt.Sprintf("%s:recent", s.keyPrefix)
}

func (s *RedisStore) Store(ctx context.Context, r engine.TestResult) error {
	data, err := marshalResult(r)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.resultKey(r.Basic.TestID), data, s.resultTTL)
	pipe.ZAdd(ctx, s.recentKey(), &redis.Z{Score: float64(r.Basic.Timestamp.Unix()), Member: r.Basic.TestID})
	pipe.ZRemRangeByRank(ctx, s.recentKey(), 0, -int64(MaxHistoryResults)-1)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store: redis pipeline failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Fetch(ctx context.Context, id string) (*engine.TestResult, bool, error) {
	data, err := s.client.Get(ctx, s.resultKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("store: redis get failed: %w", err)
	}

	r, err := unmarshalResult(data)
	if err != nil {
		return nil, false, err
	}
	return &r, true, nil
}

// Recent returns up to limit basic results, most recent first, by
// resolving the sorted-set index back to stored results.
func (s *RedisStore) Recent(ctx context.Context, limit int) ([]engine.BasicResult, error) {
	ids, err := s.client.ZRevRange(ctx, s.recentKey(), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("store: redis zrevrange failed: %w", err)
	}

	out := make([]engine.BasicResult, 0, len(ids))
	for _, id := range ids {
		result, ok, err := s.Fetch(ctx, id)
		if err != nil || !ok {
			continue
		}
		out = append(out, result.Basic)
	}
	return out, nil
}
