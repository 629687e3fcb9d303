package utils

import (
	"time"
)

// IndiaLocation is the timezone for Indian markets.
var IndiaLocation *time.Location

func init() {
	var err error
	IndiaLocation, err = time.LoadLocation("Asia/Kolkata")
	if err != nil {
		// Fallback to UTC+5:30
		IndiaLocation = time.FixedZone("IST", 5*60*60+30*60)
	}
}

// StartOfDay returns midnight IST of the trading day containing t.
func StartOfDay(t time.Time) time.Time {
	t = t.In(IndiaLocation)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, IndiaLocation)
}

// TradingDate returns the IST calendar date of t as YYYY-MM-DD.
func TradingDate(t time.Time) string {
	return t.In(IndiaLocation).Format("2006-01-02")
}
