package cache

import (
	"context"
	"time"

	"github.com/blocchat/chainledger/internal/domain/model"
)

// GateCache keeps recently evaluated gate definitions in process memory.
// A nil gate value is cached too, marking conversations known to be ungated.
type GateCache struct {
	lru *LRU[string, *model.TokenGate]
}

func NewGateCache(capacity int, ttl time.Duration) *GateCache {
	return &GateCache{lru: NewLRU[string, *model.TokenGate](capacity, ttl)}
}

func (c *GateCache) Get(_ context.Context, conversationID string) (*model.TokenGate, bool, error) {
	gate, ok := c.lru.Get(conversationID)
	return gate, ok, nil
}

func (c *GateCache) Set(_ context.Context, conversationID string, gate *model.TokenGate) error {
	c.lru.Set(conversationID, gate)
	return nil
}

func (c *GateCache) Invalidate(_ context.Context, conversationID string) error {
	c.lru.Delete(conversationID)
	return nil
}
