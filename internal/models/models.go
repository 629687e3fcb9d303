// Package models provides domain models for the trading agent.
package models

import (
	"time"
)

// Exchange represents a stock exchange.
type Exchange string

const (
	NSE Exchange = "NSE"
	BSE Exchange = "BSE"
)

// OrderSide represents the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderType represents the type of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// ProductType represents the product type of an order.
type ProductType string

const (
	ProductMIS ProductType = "MIS" // Intraday
	ProductCNC ProductType = "CNC" // Delivery
)

// Candle represents OHLCV data for a time period.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
}

// Bar is a candle annotated with the indicator values at that bar.
// Indicator fields are zero until enough history exists to compute them.
type Bar struct {
	Candle
	EMA9       float64 `json:"ema_9"`
	EMA21      float64 `json:"ema_21"`
	RSI        float64 `json:"rsi"`
	ATR        float64 `json:"atr"`
	VWAP       float64 `json:"vwap"`
	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
	AvgVolume  float64 `json:"avg_volume"`
}

// Quote represents a market quote.
type Quote struct {
	Symbol        string    `json:"symbol"`
	LTP           float64   `json:"ltp"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Close         float64   `json:"close"`
	Volume        int64     `json:"volume"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	Timestamp     time.Time `json:"timestamp"`
}

// SymbolMatch is a search result.
type SymbolMatch struct {
	Symbol   string   `json:"symbol"`
	Name     string   `json:"name"`
	Exchange Exchange `json:"exchange"`
	Type     string   `json:"type"`
}
