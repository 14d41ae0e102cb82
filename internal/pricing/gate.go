// Package pricing wraps the external price source behind a bounded call.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"

	"tradingArena/internal/ports"
)

// Config holds the gate's dependencies and bounds.
type Config struct {
	Source   ports.PriceSource
	Logger   ports.Logger
	Timeout  time.Duration // Upper bound for one Price call including retries
	MaxTries uint          // Attempts before giving up
	Backoff  time.Duration // Initial retry interval
}

// Gate is the core's single access point to the price source. Every failure
// mode, including a stalled source, surfaces as ports.ErrPriceUnavailable.
type Gate struct {
	source   ports.PriceSource
	logger   ports.Logger
	timeout  time.Duration
	maxTries uint
	backoff  time.Duration
}

// NewGate creates a pricing gate.
func NewGate(cfg Config) (*Gate, error) {
	if cfg.Source == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("pricing gate requires a source and a logger")
	}
	g := &Gate{
		source:   cfg.Source,
		logger:   cfg.Logger,
		timeout:  cfg.Timeout,
		maxTries: cfg.MaxTries,
		backoff:  cfg.Backoff,
	}
	if g.timeout <= 0 {
		g.timeout = 5 * time.Second
	}
	if g.maxTries == 0 {
		g.maxTries = 3
	}
	if g.backoff <= 0 {
		g.backoff = 100 * time.Millisecond
	}
	return g, nil
}

// Price returns one positive price from the source.
func (g *Gate) Price(ctx context.Context) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = g.backoff
	policy.MaxInterval = g.backoff * 10

	notify := func(err error, wait time.Duration) {
		g.logger.Warn(ctx, "Price source call failed, retrying", map[string]interface{}{"error": err.Error(), "backoff": wait.String()})
	}

	operation := func() (float64, error) {
		price, err := g.source.CurrentPrice(ctx)
		if err != nil {
			return 0, err
		}
		if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
			return 0, backoff.Permanent(fmt.Errorf("source returned non-positive price %g", price))
		}
		return price, nil
	}

	price, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(g.maxTries),
		backoff.WithNotify(notify))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", ports.ErrTimeout, err)
		}
		g.logger.Error(ctx, err, "Price unavailable")
		return 0, fmt.Errorf("%w: %w", ports.ErrPriceUnavailable, err)
	}
	return price, nil
}
