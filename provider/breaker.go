package provider

import (
	"context"
	"time"

	appErrors "memorybank/pkg/errors"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerConfig holds configuration for the provider circuit breakers.
type BreakerConfig struct {
	Name        string
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	// ReadyToTrip fires once failures pass FailureThreshold over at
	// least MinRequests observed calls.
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns a default breaker configuration.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

func newBreaker(config BreakerConfig, logger *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < config.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= config.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}

// BreakerEmbedder wraps an Embedder with a circuit breaker so a flapping
// embedding service stops absorbing retries and the backends drop to
// text-based fallbacks instead.
type BreakerEmbedder struct {
	inner   Embedder
	breaker *gobreaker.CircuitBreaker
}

var _ Embedder = (*BreakerEmbedder)(nil)

// NewBreakerEmbedder wraps the embedder with the given breaker config.
func NewBreakerEmbedder(inner Embedder, config BreakerConfig, logger *zap.Logger) *BreakerEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BreakerEmbedder{
		inner:   inner,
		breaker: newBreaker(config, logger),
	}
}

// Embed delegates through the breaker.
func (b *BreakerEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := b.breaker.Execute(func() (any, error) {
		return b.inner.Embed(ctx, text)
	})
	if err != nil {
		switch err {
		case gobreaker.ErrOpenState, gobreaker.ErrTooManyRequests:
			return nil, appErrors.NewUnavailable("embedding service circuit open", err)
		default:
			return nil, err
		}
	}
	return result.([]float32), nil
}

// Dimensions returns the wrapped embedder's vector size.
func (b *BreakerEmbedder) Dimensions() int {
	return b.inner.Dimensions()
}

// BreakerProvider wraps an LLMProvider with a circuit breaker.
type BreakerProvider struct {
	inner   LLMProvider
	breaker *gobreaker.CircuitBreaker
}

var _ LLMProvider = (*BreakerProvider)(nil)

// NewBreakerProvider wraps the provider with the given breaker config.
func NewBreakerProvider(inner LLMProvider, config BreakerConfig, logger *zap.Logger) *BreakerProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BreakerProvider{
		inner:   inner,
		breaker: newBreaker(config, logger),
	}
}

// Complete delegates through the breaker.
func (b *BreakerProvider) Complete(ctx context.Context, prompt string, options CompletionOptions) (string, error) {
	result, err := b.breaker.Execute(func() (any, error) {
		return b.inner.Complete(ctx, prompt, options)
	})
	if err != nil {
		switch err {
		case gobreaker.ErrOpenState, gobreaker.ErrTooManyRequests:
			return "", appErrors.NewUnavailable("llm circuit open", err)
		default:
			return "", err
		}
	}
	return result.(string), nil
}

// IsAvailable reports provider availability; an open circuit counts as
// unavailable so the extraction service takes the degraded path up front.
func (b *BreakerProvider) IsAvailable() bool {
	if b.breaker.State() == gobreaker.StateOpen {
		return false
	}
	return b.inner.IsAvailable()
}
