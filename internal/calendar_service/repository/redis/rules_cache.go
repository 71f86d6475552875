package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/numberport/golang_services/internal/core_porting/domain"
)

const keyPrefix = "porting_rules:"

// RulesCache stores porting rules as JSON under porting_rules:<circle>.
type RulesCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewRulesCache(client *goredis.Client, ttl time.Duration) *RulesCache {
	return &RulesCache{client: client, ttl: ttl}
}

// Get returns (nil, nil) on a cache miss.
func (c *RulesCache) Get(ctx context.Context, circleKey string) (*domain.PortingRules, error) {
	raw, err := c.client.Get(ctx, keyPrefix+circleKey).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get rules: %w", err)
	}
	var rules domain.PortingRules
	if err := json.Unmarshal(raw, &rules); err != nil {
		return nil, fmt.Errorf("decode cached rules: %w", err)
	}
	return &rules, nil
}

func (c *RulesCache) Set(ctx context.Context, rules *domain.PortingRules) error {
	raw, err := json.Marshal(rules)
	if err != nil {
		return fmt.Errorf("encode rules: %w", err)
	}
	if err := c.client.Set(ctx, keyPrefix+rules.CircleKey, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set rules: %w", err)
	}
	return nil
}

func (c *RulesCache) Invalidate(ctx context.Context, circleKey string) error {
	if err := c.client.Del(ctx, keyPrefix+circleKey).Err(); err != nil {
		return fmt.Errorf("redis del rules: %w", err)
	}
	return nil
}
