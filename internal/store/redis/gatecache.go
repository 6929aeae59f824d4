package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/blocchat/chainledger/internal/domain/model"
)

const gateKeyPrefix = "gate:"

// GateCache shares gate definitions across instances through Redis. The
// literal "null" payload marks conversations known to have no gate, so a
// cache hit can short-circuit the database either way.
type GateCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewGateCache(client *redis.Client, ttl time.Duration) *GateCache {
	return &GateCache{client: client, ttl: ttl}
}

func NewClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (c *GateCache) Get(ctx context.Context, conversationID string) (*model.TokenGate, bool, error) {
	raw, err := c.client.Get(ctx, gateKeyPrefix+conversationID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get cached gate: %w", err)
	}

	var gate *model.TokenGate
	if err := json.Unmarshal(raw, &gate); err != nil {
		return nil, false, fmt.Errorf("decode cached gate: %w", err)
	}
	return gate, true, nil
}

func (c *GateCache) Set(ctx context.Context, conversationID string, gate *model.TokenGate) error {
	payload, err := json.Marshal(gate)
	if err != nil {
		return fmt.Errorf("encode gate: %w", err)
	}
	if err := c.client.Set(ctx, gateKeyPrefix+conversationID, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache gate: %w", err)
	}
	return nil
}

func (c *GateCache) Invalidate(ctx context.Context, conversationID string) error {
	if err := c.client.Del(ctx, gateKeyPrefix+conversationID).Err(); err != nil {
		return fmt.Errorf("invalidate cached gate: %w", err)
	}
	return nil
}
