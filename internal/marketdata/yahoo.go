package marketdata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/quote"

	"nse-agent/internal/analysis/indicators"
	"nse-agent/internal/models"
)

var errNoData = errors.New("no data returned")

// YahooProvider reads quotes and history through finance-go and symbol
// search through the Yahoo search endpoint.
type YahooProvider struct {
	suffix    string
	searchURL string
	client    *resty.Client
	now       func() time.Time
}

// NewYahooProvider creates a provider. suffix is appended to NSE symbols,
// e.g. ".NS".
func NewYahooProvider(suffix, searchURL string, timeout time.Duration) *YahooProvider {
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("User-Agent", "Mozilla/5.0 (compatible; nse-agent)")

	return &YahooProvider{
		suffix:    suffix,
		searchURL: searchURL,
		client:    client,
		now:       time.Now,
	}
}

func (y *YahooProvider) ticker(symbol string) string {
	if y.suffix == "" || strings.HasSuffix(symbol, y.suffix) {
		return symbol
	}
	return symbol + y.suffix
}

// Quote returns the regular market price.
func (y *YahooProvider) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	q, err := quote.Get(y.ticker(symbol))
	if err != nil {
		return nil, fmt.Errorf("quote %s: %w", symbol, err)
	}
	if q == nil || q.RegularMarketPrice <= 0 {
		return nil, fmt.Errorf("quote %s: %w", symbol, errNoData)
	}

	return &models.Quote{
		Symbol:        symbol,
		LTP:           q.RegularMarketPrice,
		Open:          q.RegularMarketOpen,
		High:          q.RegularMarketDayHigh,
		Low:           q.RegularMarketDayLow,
		Close:         q.RegularMarketPreviousClose,
		Volume:        int64(q.RegularMarketVolume),
		Change:        q.RegularMarketChange,
		ChangePercent: q.RegularMarketChangePercent,
		Timestamp:     time.Unix(int64(q.RegularMarketTime), 0),
	}, nil
}

// History fetches candles for the period and annotates them.
func (y *YahooProvider) History(ctx context.Context, symbol, period, interval string) ([]models.Bar, error) {
	lookback, err := ParsePeriod(period)
	if err != nil {
		return nil, err
	}
	if !ValidInterval(interval) {
		return nil, fmt.Errorf("unsupported interval %q", interval)
	}

	end := y.now()
	start := end.Add(-lookback)
	iter := chart.Get(&chart.Params{
		Symbol:   y.ticker(symbol),
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Interval: datetime.Interval(interval),
	})

	var candles []models.Candle
	for iter.Next() {
		bar := iter.Bar()
		candles = append(candles, models.Candle{
			Timestamp: time.Unix(int64(bar.Timestamp), 0),
			Open:      bar.Open.InexactFloat64(),
			High:      bar.High.InexactFloat64(),
			Low:       bar.Low.InexactFloat64(),
			Close:     bar.Close.InexactFloat64(),
			Volume:    int64(bar.Volume),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("history %s: %w", symbol, err)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("history %s: %w", symbol, errNoData)
	}

	bars, err := indicators.Annotate(candles)
	if err != nil {
		return nil, fmt.Errorf("history %s (%d bars): %w", symbol, len(candles), err)
	}
	return bars, nil
}

type searchResponse struct {
	Quotes []struct {
		Symbol    string `json:"symbol"`
		ShortName string `json:"shortname"`
		LongName  string `json:"longname"`
		Exchange  string `json:"exchange"`
		QuoteType string `json:"quoteType"`
	} `json:"quotes"`
}

// Search returns NSE and BSE equities matching query.
func (y *YahooProvider) Search(ctx context.Context, query string) ([]models.SymbolMatch, error) {
	var out searchResponse
	resp, err := y.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":           query,
			"quotesCount": "10",
			"newsCount":   "0",
		}).
		SetResult(&out).
		Get(y.searchURL)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("search %q: status %d", query, resp.StatusCode())
	}

	matches := []models.SymbolMatch{}
	for _, q := range out.Quotes {
		if q.QuoteType != "EQUITY" {
			continue
		}
		var exchange models.Exchange
		symbol := q.Symbol
		switch {
		case strings.HasSuffix(symbol, ".NS"):
			exchange = models.NSE
			symbol = strings.TrimSuffix(symbol, ".NS")
		case strings.HasSuffix(symbol, ".BO"):
			exchange = models.BSE
			symbol = strings.TrimSuffix(symbol, ".BO")
		default:
			continue
		}
		name := q.LongName
		if name == "" {
			name = q.ShortName
		}
		matches = append(matches, models.SymbolMatch{
			Symbol:   symbol,
			Name:     name,
			Exchange: exchange,
			Type:     q.QuoteType,
		})
	}
	return matches, nil
}
