package relay

import (
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// Default backoff policy values.
const (
	DefaultBackoffBase       = 1 * time.Second
	DefaultBackoffMultiplier = 2.0
	DefaultBackoffMax        = 30 * time.Second
	DefaultMaxAttempts       = 5
)

// jitterPrecision is the granularity for crypto/rand jitter generation.
const jitterPrecision = 1000

// BackoffPolicy computes reconnect delays: Base * Multiplier^(attempt-1),
// capped at Max, with optional +-Jitter. MaxAttempts consecutive failed
// connection attempts exhaust the policy; zero means retry forever.
type BackoffPolicy struct {
	Base        time.Duration
	Multiplier  float64
	Max         time.Duration
	MaxAttempts int
	// Jitter is the fraction (0..1) of the delay to randomize by.
	Jitter float64
}

// DefaultBackoffPolicy returns the default policy: 1s doubling to 30s, five attempts.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		Base:        DefaultBackoffBase,
		Multiplier:  DefaultBackoffMultiplier,
		Max:         DefaultBackoffMax,
		MaxAttempts: DefaultMaxAttempts,
	}
}

func (p BackoffPolicy) withDefaults() BackoffPolicy {
	if p.Base <= 0 {
		p.Base = DefaultBackoffBase
	}
	if p.Multiplier < 1 {
		p.Multiplier = DefaultBackoffMultiplier
	}
	if p.Max <= 0 {
		p.Max = DefaultBackoffMax
	}
	if p.Max < p.Base {
		p.Max = p.Base
	}
	return p
}

// Delay returns the wait before the given attempt (1-based).
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	p = p.withDefaults()
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.Base) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.Max) || math.IsInf(delay, 0) {
		delay = float64(p.Max)
	}
	if p.Jitter > 0 {
		n, err := rand.Int(rand.Reader, big.NewInt(jitterPrecision))
		if err == nil {
			// Uniform in [-Jitter, +Jitter).
			delay += delay * p.Jitter * (2*float64(n.Int64())/jitterPrecision - 1)
		}
		delay = math.Min(math.Max(delay, 0), float64(p.Max))
	}
	return time.Duration(delay)
}

// Exhausted reports whether failedAttempts consecutive failures exceed the policy.
func (p BackoffPolicy) Exhausted(failedAttempts int) bool {
	return p.MaxAttempts > 0 && failedAttempts >= p.MaxAttempts
}
