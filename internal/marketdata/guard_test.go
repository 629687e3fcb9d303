package marketdata

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nse-agent/internal/analysis/indicators"
	apperrors "nse-agent/internal/errors"
	"nse-agent/internal/models"
	"nse-agent/internal/resilience"
	"nse-agent/pkg/utils"
)

type stubProvider struct {
	quoteCalls   int
	quoteErrs    []error
	historyCalls int
	historyErr   error
	block        chan struct{}
}

func (s *stubProvider) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	s.quoteCalls++
	if s.block != nil {
		<-s.block
	}
	if len(s.quoteErrs) > 0 {
		err := s.quoteErrs[0]
		s.quoteErrs = s.quoteErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &models.Quote{Symbol: symbol, LTP: 1500}, nil
}

func (s *stubProvider) History(ctx context.Context, symbol, period, interval string) ([]models.Bar, error) {
	s.historyCalls++
	if s.historyErr != nil {
		return nil, s.historyErr
	}
	return nil, errNoData
}

func (s *stubProvider) Search(ctx context.Context, query string) ([]models.SymbolMatch, error) {
	return []models.SymbolMatch{{Symbol: "INFY", Exchange: models.NSE}}, nil
}

func testGuardConfig() GuardConfig {
	return GuardConfig{
		Timeout:        50 * time.Millisecond,
		RequestsPerSec: 1000,
		Burst:          10,
		Retry:          utils.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1},
		Breaker:        resilience.CircuitBreakerConfig{FailureThreshold: 10, SuccessThreshold: 1, Timeout: time.Minute},
	}
}

func TestGuarded_RetriesTransientErrors(t *testing.T) {
	stub := &stubProvider{quoteErrs: []error{errors.New("502"), nil}}
	g := NewGuarded(stub, testGuardConfig(), zerolog.Nop())

	q, err := g.Quote(context.Background(), "INFY")
	require.NoError(t, err)
	assert.Equal(t, 1500.0, q.LTP)
	assert.Equal(t, 2, stub.quoteCalls)
}

func TestGuarded_NoDataIsDataUnavailableWithoutRetry(t *testing.T) {
	g := NewGuarded(&stubProvider{}, testGuardConfig(), zerolog.Nop())

	_, err := g.History(context.Background(), "INFY", "1mo", "1d")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrDataUnavailable))

	var due *apperrors.DataUnavailableError
	require.True(t, apperrors.As(err, &due))
	assert.Equal(t, "history", due.DataType)
	assert.Equal(t, "no data", due.Message)
}

func TestGuarded_ShortHistoryNeitherRetriesNorTripsBreaker(t *testing.T) {
	cfg := testGuardConfig()
	cfg.Breaker.FailureThreshold = 2
	stub := &stubProvider{historyErr: fmt.Errorf("history TCS (10 bars): %w", indicators.ErrInsufficientData)}
	g := NewGuarded(stub, cfg, zerolog.Nop())

	for i := 0; i < 3; i++ {
		_, err := g.History(context.Background(), "TCS", "1mo", "1d")
		require.Error(t, err)
		var due *apperrors.DataUnavailableError
		require.True(t, apperrors.As(err, &due))
		assert.Equal(t, "insufficient history", due.Message)
	}
	assert.Equal(t, 3, stub.historyCalls)

	stats := g.Stats()
	assert.Equal(t, resilience.CircuitClosed, stats.State)
	assert.Zero(t, stats.TotalFailures)

	_, err := g.Quote(context.Background(), "INFY")
	require.NoError(t, err)
}

func TestGuarded_TimeoutIsDataUnavailable(t *testing.T) {
	stub := &stubProvider{block: make(chan struct{})}
	defer close(stub.block)
	g := NewGuarded(stub, testGuardConfig(), zerolog.Nop())

	_, err := g.Quote(context.Background(), "INFY")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrDataUnavailable))
	assert.True(t, apperrors.Is(err, apperrors.ErrTimeout))
}

func TestParsePeriod(t *testing.T) {
	d, err := ParsePeriod("1mo")
	require.NoError(t, err)
	assert.Equal(t, 31*24*time.Hour, d)

	_, err = ParsePeriod("10y")
	assert.Error(t, err)
	assert.True(t, ValidInterval("1d"))
	assert.False(t, ValidInterval("7m"))
}
