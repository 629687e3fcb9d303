package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"nse-agent/internal/analysis/indicators"
	apperrors "nse-agent/internal/errors"
	"nse-agent/internal/logging"
	"nse-agent/internal/models"
	"nse-agent/internal/resilience"
	"nse-agent/pkg/utils"
)

// GuardConfig bounds calls to the wrapped provider.
type GuardConfig struct {
	Timeout        time.Duration
	RequestsPerSec float64
	Burst          int
	Retry          utils.RetryConfig
	Breaker        resilience.CircuitBreakerConfig
}

// Guarded wraps a Provider with a per-call timeout, a shared rate limit,
// retries and a circuit breaker. Every failure it returns is a
// DataUnavailableError.
type Guarded struct {
	inner   Provider
	cfg     GuardConfig
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	logger  zerolog.Logger
}

// NewGuarded creates a guarded provider.
func NewGuarded(inner Provider, cfg GuardConfig, logger zerolog.Logger) *Guarded {
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	retryable := cfg.Retry.Retryable
	cfg.Retry.Retryable = func(err error) bool {
		if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, context.Canceled) ||
			errors.Is(err, context.DeadlineExceeded) || missingData(err) {
			return false
		}
		return retryable == nil || retryable(err)
	}

	return &Guarded{
		inner:   inner,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.Burst),
		breaker: resilience.NewCircuitBreaker("market_data", cfg.Breaker),
		logger:  logging.WithComponent(logger, "marketdata"),
	}
}

// Stats exposes the circuit breaker state.
func (g *Guarded) Stats() resilience.CircuitBreakerStats {
	return g.breaker.Stats()
}

// missingData reports a symbol-level gap in the data. The provider answered,
// so these neither retry nor count against the breaker.
func missingData(err error) bool {
	return errors.Is(err, errNoData) || errors.Is(err, indicators.ErrInsufficientData)
}

type outcome[T any] struct {
	value T
	err   error
}

func call[T any](g *Guarded, ctx context.Context, dataType, symbol string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	v, err := utils.RetryWithResult(ctx, g.cfg.Retry, func() (T, error) {
		if err := g.limiter.Wait(ctx); err != nil {
			return zero, err
		}
		res, err := resilience.Execute(g.breaker, ctx, func(ctx context.Context) (outcome[T], error) {
			v, err := fn(ctx)
			if missingData(err) {
				return outcome[T]{err: err}, nil
			}
			return outcome[T]{value: v}, err
		})
		if err != nil {
			return zero, err
		}
		return res.value, res.err
	})

	logging.LogAPICall(g.logger, dataType, symbol, time.Since(start), err)
	if err != nil {
		msg := "request failed"
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			msg = "request timed out"
			err = errors.Join(err, apperrors.ErrTimeout)
		case errors.Is(err, resilience.ErrCircuitOpen):
			msg = "provider circuit open"
		case errors.Is(err, errNoData):
			msg = "no data"
		case errors.Is(err, indicators.ErrInsufficientData):
			msg = "insufficient history"
		}
		return zero, apperrors.NewDataUnavailableError(dataType, symbol, msg, err)
	}
	return v, nil
}

// Quote implements Provider.
func (g *Guarded) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	return call(g, ctx, "quote", symbol, func(ctx context.Context) (*models.Quote, error) {
		return g.inner.Quote(ctx, symbol)
	})
}

// History implements Provider.
func (g *Guarded) History(ctx context.Context, symbol, period, interval string) ([]models.Bar, error) {
	return call(g, ctx, "history", symbol, func(ctx context.Context) ([]models.Bar, error) {
		return g.inner.History(ctx, symbol, period, interval)
	})
}

// Search implements Provider.
func (g *Guarded) Search(ctx context.Context, query string) ([]models.SymbolMatch, error) {
	return call(g, ctx, "search", query, func(ctx context.Context) ([]models.SymbolMatch, error) {
		return g.inner.Search(ctx, query)
	})
}
