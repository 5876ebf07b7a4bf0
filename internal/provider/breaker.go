package provider

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// BreakerRegistry manages per-provider-type circuit breakers at the transport
// level. This is separate from the run-level stop policy in the dispatcher:
// the transport breaker sheds load off a backend that is hard-down, while the
// run breaker decides whether the run as a whole is still worth continuing.
type BreakerRegistry struct {
	log      zerolog.Logger
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreakerRegistry creates a new breaker registry.
func NewBreakerRegistry(log zerolog.Logger) *BreakerRegistry {
	return &BreakerRegistry{
		log:      log,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Get returns the circuit breaker for the given provider type, creating it on
// first use. Not safe for concurrent use; call during setup.
func (r *BreakerRegistry) Get(providerType string) *gobreaker.CircuitBreaker {
	if cb, ok := r.breakers[providerType]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        providerType,
		MaxRequests: 3,                // test requests allowed in half-open state
		Interval:    0,                // never clear counts automatically
		Timeout:     30 * time.Second, // stay open for 30s before probing recovery
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			r.log.Warn().
				Str("provider", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("transport circuit breaker state change")
		},
		IsSuccessful: func(err error) bool {
			// Caller-side cancellation is not a backend failure.
			if err == nil {
				return true
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return true
			}
			return false
		},
	})

	r.breakers[providerType] = cb
	return cb
}

// breakerProvider routes Send calls through a circuit breaker.
type breakerProvider struct {
	inner Provider
	cb    *gobreaker.CircuitBreaker
}

// WithBreaker wraps a provider so every Send executes through the given
// circuit breaker. While the breaker is open, Send fails fast with
// gobreaker.ErrOpenState instead of hitting the backend.
func WithBreaker(p Provider, cb *gobreaker.CircuitBreaker) Provider {
	return &breakerProvider{inner: p, cb: cb}
}

func (b *breakerProvider) Send(ctx context.Context, req Request) (string, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Send(ctx, req)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (b *breakerProvider) Close() error {
	return b.inner.Close()
}
