package app

import (
	"math/rand"
	"sync"
	"time"
)

// FractionSampler supplies the spend/sell fraction for one trade.
type FractionSampler interface {
	Sample() float64
}

// UniformSampler draws fractions uniformly from [Min, Max). It is safe for
// concurrent use.
type UniformSampler struct {
	mu  sync.Mutex
	rng *rand.Rand
	min float64
	max float64
}

// NewUniformSampler returns a sampler over [min, max). A zero seed seeds from the clock.
func NewUniformSampler(min, max float64, seed int64) *UniformSampler {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &UniformSampler{rng: rand.New(rand.NewSource(seed)), min: min, max: max}
}

// Sample returns the next fraction.
func (u *UniformSampler) Sample() float64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.min + u.rng.Float64()*(u.max-u.min)
}

// FixedSampler always returns the same fraction.
type FixedSampler float64

// Sample returns f.
func (f FixedSampler) Sample() float64 { return float64(f) }
