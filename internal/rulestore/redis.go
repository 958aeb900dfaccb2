package rulestore

import (
	"context"
	"errors"
	"time"

	"github.com/sedori-tools/repricer/internal/cache"
	"github.com/sedori-tools/repricer/internal/repricer"
)

// RedisStore keeps the rule document under a single Redis key so several
// repricer instances share one table.
type RedisStore struct {
	cache *cache.Cache
	key   string
	now   func() time.Time
}

func NewRedisStore(c *cache.Cache, key string) *RedisStore {
	return &RedisStore{cache: c, key: key, now: time.Now}
}

func (s *RedisStore) Load(ctx context.Context) (repricer.RuleConfig, error) {
	data, err := s.cache.GetRaw(ctx, s.key)
	if errors.Is(err, cache.ErrNotFound) {
		return repricer.DefaultRuleConfig(), nil
	}
	if err != nil {
		return repricer.RuleConfig{}, err
	}
	return decode(data)
}

func (s *RedisStore) Save(ctx context.Context, cfg repricer.RuleConfig) error {
	data, err := encode(cfg, s.now())
	if err != nil {
		return err
	}
	return s.cache.Client().Set(ctx, s.key, data, 0).Err()
}
