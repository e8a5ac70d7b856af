package models

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultMaxAttempts     = 3
	DefaultInitialInterval = time.Second
	DefaultMultiplier      = 2.0
	DefaultMaxInterval     = 30 * time.Second
)

// RetryPolicy controls how the substrate retries a failing activity.
// Intervals are workflow duration strings so definitions stay plain JSON.
type RetryPolicy struct {
	MaxAttempts     int     `json:"maxAttempts"`
	InitialInterval string  `json:"initialInterval,omitempty"`
	Multiplier      float64 `json:"multiplier,omitempty"`
	MaxInterval     string  `json:"maxInterval,omitempty"`
}

func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{MaxAttempts: DefaultMaxAttempts}
}

func (p *RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("retryPolicy maxAttempts must be >= 1, got %d", p.MaxAttempts)
	}
	if p.InitialInterval != "" {
		if _, err := ParseDuration(p.InitialInterval); err != nil {
			return fmt.Errorf("retryPolicy initialInterval: %w", err)
		}
	}
	if p.MaxInterval != "" {
		if _, err := ParseDuration(p.MaxInterval); err != nil {
			return fmt.Errorf("retryPolicy maxInterval: %w", err)
		}
	}
	if p.Multiplier < 0 {
		return fmt.Errorf("retryPolicy multiplier must not be negative")
	}
	return nil
}

// Backoff builds the exponential backoff for one invocation. Unset fields
// fall back to the defaults (3 attempts, 1s initial, x2, capped at 30s).
func (p *RetryPolicy) Backoff() backoff.BackOff {
	initial := DefaultInitialInterval
	if p.InitialInterval != "" {
		if d, err := ParseDuration(p.InitialInterval); err == nil {
			initial = d
		}
	}
	maxIval := DefaultMaxInterval
	if p.MaxInterval != "" {
		if d, err := ParseDuration(p.MaxInterval); err == nil {
			maxIval = d
		}
	}
	mult := p.Multiplier
	if mult == 0 {
		mult = DefaultMultiplier
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = DefaultMaxAttempts
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initial
	bo.Multiplier = mult
	bo.MaxInterval = maxIval
	bo.MaxElapsedTime = 0
	bo.RandomizationFactor = 0
	return backoff.WithMaxRetries(bo, uint64(attempts-1))
}
