package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFormatIndianCurrency(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "₹0.00"},
		{999.5, "₹999.50"},
		{1234567.5, "₹12,34,567.50"},
		{-95500, "-₹95,500.00"},
	}
	for _, tt := range tests {
		if got := FormatIndianCurrency(tt.in); got != tt.want {
			t.Errorf("FormatIndianCurrency(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStartOfDayUsesIST(t *testing.T) {
	// 20:00 UTC on the 2nd is 01:30 IST on the 3rd.
	ts := time.Date(2026, 3, 2, 20, 0, 0, 0, time.UTC)
	got := StartOfDay(ts)
	if got.Day() != 3 || got.Hour() != 0 {
		t.Errorf("StartOfDay = %v", got)
	}
	if TradingDate(ts) != "2026-03-03" {
		t.Errorf("TradingDate = %s", TradingDate(ts))
	}
}

func TestRetryWithResult_StopsOnNonRetryable(t *testing.T) {
	calls := 0
	permanent := errors.New("permanent")
	cfg := RetryConfig{
		MaxAttempts:   5,
		InitialDelay:  time.Millisecond,
		MaxDelay:      time.Millisecond,
		BackoffFactor: 1,
		Retryable:     func(err error) bool { return !errors.Is(err, permanent) },
	}

	_, err := RetryWithResult(context.Background(), cfg, func() (int, error) {
		calls++
		return 0, permanent
	})
	if !errors.Is(err, permanent) || calls != 1 {
		t.Fatalf("err = %v, calls = %d", err, calls)
	}
}

func TestRetryWithResult_EventuallySucceeds(t *testing.T) {
	calls := 0
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 2}

	v, err := RetryWithResult(context.Background(), cfg, func() (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	if err != nil || v != "ok" || calls != 3 {
		t.Fatalf("v = %q, err = %v, calls = %d", v, err, calls)
	}
}
