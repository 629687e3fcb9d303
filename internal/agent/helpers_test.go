package agent

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"nse-agent/internal/broker"
	apperrors "nse-agent/internal/errors"
	"nse-agent/internal/models"
	"nse-agent/internal/store"
	"nse-agent/internal/stream"
)

// Monday 2024-03-04 10:00 IST, inside market hours.
var marketOpen = time.Date(2024, 3, 4, 4, 30, 0, 0, time.UTC)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeMarket struct {
	mu     sync.Mutex
	prices map[string]float64
	bars   map[string][]models.Bar
	fail   map[string]bool
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{
		prices: make(map[string]float64),
		bars:   make(map[string][]models.Bar),
		fail:   make(map[string]bool),
	}
}

func (m *fakeMarket) SetPrice(symbol string, price float64) {
	m.mu.Lock()
	m.prices[symbol] = price
	m.mu.Unlock()
}

func (m *fakeMarket) SetBars(symbol string, bars []models.Bar) {
	m.mu.Lock()
	m.bars[symbol] = bars
	m.mu.Unlock()
}

func (m *fakeMarket) SetFailing(symbol string, failing bool) {
	m.mu.Lock()
	m.fail[symbol] = failing
	m.mu.Unlock()
}

func (m *fakeMarket) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	price, ok := m.prices[symbol]
	if !ok || m.fail[symbol] {
		return nil, apperrors.NewDataUnavailableError("quote", symbol, "no quote", nil)
	}
	return &models.Quote{Symbol: symbol, LTP: price, Timestamp: marketOpen}, nil
}

func (m *fakeMarket) History(ctx context.Context, symbol, period, interval string) ([]models.Bar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail[symbol] {
		return nil, apperrors.NewDataUnavailableError("history", symbol, "timeout", context.DeadlineExceeded)
	}
	if bars, ok := m.bars[symbol]; ok {
		return bars, nil
	}
	price, ok := m.prices[symbol]
	if !ok {
		return nil, apperrors.NewDataUnavailableError("history", symbol, "no data", nil)
	}
	return bullishBars(price, 55), nil
}

func (m *fakeMarket) Search(ctx context.Context, query string) ([]models.SymbolMatch, error) {
	return []models.SymbolMatch{{Symbol: query, Exchange: models.NSE}}, nil
}

// bullishBars returns history whose last bar passes every indicator rule
// when rsi is within range.
func bullishBars(close, rsi float64) []models.Bar {
	bars := make([]models.Bar, 30)
	for i := range bars {
		bars[i] = models.Bar{Candle: models.Candle{
			Timestamp: marketOpen.AddDate(0, 0, i-30),
			Open:      close, High: close, Low: close, Close: close, Volume: 1000,
		}}
	}
	last := &bars[len(bars)-1]
	last.EMA9 = close * 0.99
	last.EMA21 = close * 0.98
	last.VWAP = close * 0.97
	last.RSI = rsi
	last.AvgVolume = 1000
	return bars
}

type fakeRouter struct {
	mu       sync.Mutex
	failSide models.OrderSide
	orders   []broker.Order
}

func (f *fakeRouter) Name() string { return "fake-live" }

func (f *fakeRouter) PlaceOrder(ctx context.Context, o *broker.Order) (*broker.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o.Side == f.failSide {
		return nil, errors.New("exchange rejected order")
	}
	f.orders = append(f.orders, *o)
	return &broker.OrderResult{
		OrderID:   fmt.Sprintf("LIVE-%d", len(f.orders)),
		Status:    "COMPLETE",
		FillPrice: o.Price,
	}, nil
}

type recordingPublisher struct {
	mu        sync.Mutex
	events    []stream.Event
	decisions []*models.DecisionLogEntry
}

func (r *recordingPublisher) Publish(ev stream.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recordingPublisher) PublishDecisions(entries []*models.DecisionLogEntry) {
	r.mu.Lock()
	r.decisions = append(r.decisions, entries...)
	r.mu.Unlock()
}

type testEnv struct {
	agent  *Agent
	market *fakeMarket
	clock  *testClock
	store  *store.SQLiteStore
	events *recordingPublisher
}

type envOption func(*Deps)

func withUniverse(symbols ...string) envOption {
	return func(d *Deps) { d.Universe = map[string][]string{"IT": symbols} }
}

func withLiveRouter(r broker.OrderRouter) envOption {
	return func(d *Deps) { d.Routers.Live = r }
}

func withDefaults(fn func(cfg *models.TradingConfig)) envOption {
	return func(d *Deps) { fn(&d.Settings.Defaults) }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	market := newFakeMarket()
	for _, sym := range []string{"INFY", "TCS", "WIPRO", "HCLTECH"} {
		market.SetPrice(sym, 1500)
	}

	clock := &testClock{t: marketOpen}
	events := &recordingPublisher{}

	settings := DefaultSettings()
	settings.Defaults.AllowedSectors = []string{"IT"}
	settings.Defaults.CapitalAvailable = decimal.NewFromInt(100000)
	settings.MinInterval = time.Hour
	settings.DefaultInterval = time.Hour

	deps := Deps{
		Store:    st,
		Market:   market,
		Universe: map[string][]string{"IT": {"INFY", "TCS", "WIPRO", "HCLTECH"}},
		Events:   events,
		Logger:   zerolog.Nop(),
		Settings: settings,
		Now:      clock.Now,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	a, err := New(context.Background(), deps)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	return &testEnv{agent: a, market: market, clock: clock, store: st, events: events}
}

func (e *testEnv) configure(t *testing.T, payload string) models.TradingConfig {
	t.Helper()
	cfg, err := e.agent.Config.Configure(context.Background(), []byte(payload))
	require.NoError(t, err)
	return cfg
}

func (e *testEnv) scan(t *testing.T) *ScanResult {
	t.Helper()
	res, err := e.agent.Engine.Scan(context.Background())
	require.NoError(t, err)
	return res
}

func signalFor(t *testing.T, res *ScanResult, symbol string) models.Signal {
	t.Helper()
	for _, s := range res.Signals {
		if s.Symbol == symbol {
			return s
		}
	}
	t.Fatalf("no signal for %s", symbol)
	return models.Signal{}
}

func countKind(t *testing.T, e *testEnv, kind models.DecisionKind) int {
	t.Helper()
	entries, err := e.agent.Log.Tail(context.Background(), MaxListLimit)
	require.NoError(t, err)
	n := 0
	for _, entry := range entries {
		if entry.Kind == kind {
			n++
		}
	}
	return n
}
