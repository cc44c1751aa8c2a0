// Package cache holds the fingerprint -> analysis result stores.
package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/bryanwahyu/supplement-advisor/internal/domain/analysis"
)

const (
	DefaultSize = 1024
	DefaultTTL  = 24 * time.Hour
)

// LRU is a bounded, expiring, process-local cache. Safe for concurrent use.
type LRU struct {
	items *expirable.LRU[string, *analysis.Result]
}

func NewLRU(size int, ttl time.Duration) *LRU {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &LRU{items: expirable.NewLRU[string, *analysis.Result](size, nil, ttl)}
}

func (c *LRU) Get(_ context.Context, key string) (*analysis.Result, bool, error) {
	r, ok := c.items.Get(key)
	if !ok {
		return nil, false, nil
	}
	return r.Clone(), true, nil
}

func (c *LRU) Put(_ context.Context, key string, r *analysis.Result) error {
	c.items.Add(key, r.Clone())
	return nil
}

func (c *LRU) Delete(_ context.Context, key string) error {
	c.items.Remove(key)
	return nil
}

func (c *LRU) Clear(_ context.Context) error {
	c.items.Purge()
	return nil
}

// Len is the number of live entries.
func (c *LRU) Len() int { return c.items.Len() }
