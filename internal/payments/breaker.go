package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrProviderUnavailable is returned while the breaker is open.
var ErrProviderUnavailable = errors.New("payments: provider unavailable")

// BreakerConfig tunes the circuit breaker wrapped around a provider.
type BreakerConfig struct {
	Name        string
	MaxFailures uint32
	OpenTimeout time.Duration
	CallTimeout time.Duration
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

// BreakerProvider bounds every provider call with a timeout and trips after consecutive
// failures.
type BreakerProvider struct {
	next    Provider
	breaker *gobreaker.CircuitBreaker[CheckoutSession]
	timeout time.Duration
}

var _ Provider = (*BreakerProvider)(nil)

// NewBreakerProvider wraps next with a circuit breaker.
func NewBreakerProvider(next Provider, cfg BreakerConfig) (*BreakerProvider, error) {
	if next == nil {
		return nil, errors.New("payments: breaker requires a provider")
	}
	if cfg.Name == "" {
		cfg.Name = "payments"
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	maxFailures := cfg.MaxFailures

	breaker := gobreaker.NewCircuitBreaker[CheckoutSession](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger(context.Background(), "payments.breaker.state", map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
	})
	return &BreakerProvider{next: next, breaker: breaker, timeout: cfg.CallTimeout}, nil
}

func (b *BreakerProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	session, err := b.breaker.Execute(func() (CheckoutSession, error) {
		callCtx, cancel := context.WithTimeout(ctx, b.timeout)
		defer cancel()
		return b.next.CreateCheckoutSession(callCtx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return CheckoutSession{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return session, err
}
