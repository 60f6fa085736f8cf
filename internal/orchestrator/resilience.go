package orchestrator

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/aristath/agentflow/internal/agent"
)

// RetryConfig configures exponential backoff around generation calls.
type RetryConfig struct {
	InitialInterval     time.Duration // First retry delay (default 100ms)
	MaxInterval         time.Duration // Delay ceiling (default 10s)
	MaxElapsedTime      time.Duration // Total retry window (default 2min)
	Multiplier          float64       // Backoff growth factor (default 2.0)
	RandomizationFactor float64       // Jitter (default 0.5)
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		MaxElapsedTime:      2 * time.Minute,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// BreakerRegistry holds one circuit breaker per generation provider, so
// a flapping provider stops receiving calls without affecting agents on
// other providers.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreakerRegistry creates an empty registry.
func NewBreakerRegistry() *BreakerRegistry {
	return &BreakerRegistry{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Get returns the breaker for a provider, creating it on first use.
func (r *BreakerRegistry) Get(provider string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[provider]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        provider,
		MaxRequests: 3,                // Probe calls allowed in half-open state
		Interval:    0,                // Counts never reset while closed
		Timeout:     30 * time.Second, // Open duration before probing recovery
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %q: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellation is not a provider failure.
			if err == nil {
				return true
			}
			return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})

	r.breakers[provider] = cb
	return cb
}

// providerKey names the breaker for an agent: its provider, falling
// back to the agent name when no provider is configured.
func providerKey(ref agent.Ref) string {
	if ref.Provider != "" {
		return ref.Provider
	}
	return ref.Name
}

// actWithRetry invokes the generator with exponential backoff and
// circuit breaker protection. An open circuit and caller cancellation
// both stop the retry loop immediately.
func actWithRetry(ctx context.Context, gen agent.Generator, tc agent.TurnContext, cb *gobreaker.CircuitBreaker, cfg RetryConfig) ([]agent.Action, error) {
	var actions []agent.Action

	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		result, err := cb.Execute(func() (interface{}, error) {
			return gen.Act(ctx, tc)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}

		actions = result.([]agent.Action)
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = cfg.InitialInterval
	policy.MaxInterval = cfg.MaxInterval
	policy.MaxElapsedTime = cfg.MaxElapsedTime
	policy.Multiplier = cfg.Multiplier
	policy.RandomizationFactor = cfg.RandomizationFactor

	err := backoff.Retry(operation, backoff.WithContext(policy, ctx))
	return actions, err
}
