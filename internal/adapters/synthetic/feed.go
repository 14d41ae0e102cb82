// Package synthetic provides an offline, seedable price source for local
// sessions and tests.
package synthetic

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

const minPrice = 1e-9

// Config controls the random walk.
type Config struct {
	Seed       int64   // 0 seeds from the clock
	StartPrice float64 // First price returned
	Volatility float64 // Max relative move per call, in [0, 1)
}

// Validate ensures the config is within supported ranges.
func (c Config) Validate() error {
	if c.StartPrice <= 0 {
		return fmt.Errorf("startPrice must be positive")
	}
	if c.Volatility < 0 || c.Volatility >= 1 {
		return fmt.Errorf("volatility must be in [0, 1)")
	}
	return nil
}

// Feed is a multiplicative random walk. Every call moves the price by a
// uniform relative step in [-Volatility, +Volatility]. Safe for concurrent use.
type Feed struct {
	mu    sync.Mutex
	rng   *rand.Rand
	price float64
	vol   float64
	first bool
}

// NewFeed creates a feed with validation.
func NewFeed(cfg Config) (*Feed, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UTC().UnixNano()
	}
	return &Feed{
		rng:   rand.New(rand.NewSource(cfg.Seed)),
		price: cfg.StartPrice,
		vol:   cfg.Volatility,
		first: true,
	}, nil
}

// CurrentPrice returns the next price of the walk. The first call returns
// StartPrice unchanged.
func (f *Feed) CurrentPrice(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.first {
		f.first = false
		return f.price, nil
	}
	step := (f.rng.Float64()*2 - 1) * f.vol
	f.price *= 1 + step
	if f.price < minPrice {
		f.price = minPrice
	}
	return f.price, nil
}
