package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	apperrors "nse-agent/internal/errors"
	"nse-agent/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "agent.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testConfig() *models.TradingConfig {
	return &models.TradingConfig{
		AllowedSectors:     []string{"IT", "PHARMA"},
		MaxCapitalPerTrade: 5,
		RiskPerTrade:       2,
		MaxTradesPerDay:    3,
		StopLossRule:       models.Rule{Type: models.RuleFixedPercent, Value: 1.5},
		ProfitBookingRule:  models.Rule{Type: models.RuleTargetPercent, Value: 3},
		ExecutionMode:      models.ExecutionManualConfirm,
		TradingMode:        models.TradingPaper,
		AgentActive:        true,
		CapitalAvailable:   decimal.RequireFromString("95500.125"),
	}
}

func TestLoadState_EmptyReturnsNil(t *testing.T) {
	s := newTestStore(t)
	cfg, err := s.LoadState(context.Background())
	if err != nil {
		t.Fatalf("LoadState() error = %v", err)
	}
	if cfg != nil {
		t.Fatalf("expected nil config, got %+v", cfg)
	}
}

func TestSaveState_RoundTripKeepsCapitalExact(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	want := testConfig()

	if err := s.Update(ctx, func(tx *Tx) error { return tx.SaveState(want) }); err != nil {
		t.Fatalf("SaveState() error = %v", err)
	}

	got, err := s.LoadState(ctx)
	if err != nil {
		t.Fatalf("LoadState() error = %v", err)
	}
	if !got.CapitalAvailable.Equal(want.CapitalAvailable) {
		t.Errorf("capital = %s, want %s", got.CapitalAvailable, want.CapitalAvailable)
	}
	if len(got.AllowedSectors) != 2 || got.AllowedSectors[1] != "PHARMA" {
		t.Errorf("allowed sectors = %v", got.AllowedSectors)
	}
	if got.ExecutionMode != models.ExecutionManualConfirm || !got.AgentActive {
		t.Errorf("unexpected state %+v", got)
	}
}

func TestUpdate_RollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Update(ctx, func(tx *Tx) error {
		if err := tx.SaveState(testConfig()); err != nil {
			return err
		}
		return fmt.Errorf("boom")
	})
	if err == nil {
		t.Fatal("expected error")
	}

	cfg, err := s.LoadState(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if cfg != nil {
		t.Fatal("state should not be persisted after rollback")
	}
}

func sampleSignal(id, symbol string, status models.SignalStatus, at time.Time) models.Signal {
	instr := models.InstructionNone
	if status == models.SignalQualified {
		instr = models.InstructionWaitForUser
	}
	return models.Signal{
		ID:                   id,
		Symbol:               symbol,
		Sector:               "IT",
		EntryPrice:           1500,
		StopLoss:             1477.5,
		TargetPrice:          1545,
		RiskRewardRatio:      2,
		RuleChecks:           map[string]bool{"sector_allowed": true},
		SignalStatus:         status,
		ExecutionInstruction: instr,
		Rationale:            "test",
		Timestamp:            at,
	}
}

func TestSignals_LatestScanInScanOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 2, 4, 0, 0, 0, time.UTC)

	first := []models.Signal{sampleSignal("a-INFY", "INFY", models.SignalQualified, t0)}
	second := []models.Signal{
		sampleSignal("b-WIPRO", "WIPRO", models.SignalRejected, t0.Add(time.Minute)),
		sampleSignal("b-INFY", "INFY", models.SignalQualified, t0.Add(time.Minute)),
		sampleSignal("b-TCS", "TCS", models.SignalQualified, t0.Add(time.Minute)),
	}

	err := s.Update(ctx, func(tx *Tx) error {
		if err := tx.InsertScan(&ScanRecord{ID: "a", StartedAt: t0, Total: 1, Evaluated: 1}, first); err != nil {
			return err
		}
		return tx.InsertScan(&ScanRecord{ID: "b", StartedAt: t0.Add(time.Minute), Total: 3, Evaluated: 3}, second)
	})
	if err != nil {
		t.Fatalf("InsertScan() error = %v", err)
	}

	latest, err := s.LatestScan(ctx)
	if err != nil || latest == nil {
		t.Fatalf("LatestScan() = %v, %v", latest, err)
	}
	if latest.ID != "b" {
		t.Fatalf("latest scan = %s, want b", latest.ID)
	}

	signals, err := s.GetSignalsByScan(ctx, latest.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(signals) != 3 {
		t.Fatalf("got %d signals, want 3", len(signals))
	}
	for i, want := range []string{"WIPRO", "INFY", "TCS"} {
		if signals[i].Symbol != want {
			t.Errorf("signals[%d] = %s, want %s", i, signals[i].Symbol, want)
		}
	}

	// Older scans stay addressable until cleared.
	if _, err := s.GetSignal(ctx, "a-INFY"); err != nil {
		t.Errorf("GetSignal(a-INFY) error = %v", err)
	}

	stats, err := s.GetSignalStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 4 || stats.Qualified != 3 || stats.Rejected != 1 || stats.AwaitingInput != 3 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestSetUserAction_OnlyOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	err := s.Update(ctx, func(tx *Tx) error {
		return tx.InsertScan(&ScanRecord{ID: "s1", StartedAt: now}, []models.Signal{
			sampleSignal("s1-INFY", "INFY", models.SignalQualified, now),
		})
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Update(ctx, func(tx *Tx) error {
		return tx.SetUserAction("s1-INFY", models.ActionRejectedByUser)
	}); err != nil {
		t.Fatalf("first SetUserAction() error = %v", err)
	}

	err = s.Update(ctx, func(tx *Tx) error {
		return tx.SetUserAction("s1-INFY", models.ActionApproved)
	})
	if !apperrors.Is(err, apperrors.ErrPrecondition) {
		t.Fatalf("second SetUserAction() error = %v, want precondition", err)
	}

	sig, err := s.GetSignal(ctx, "s1-INFY")
	if err != nil {
		t.Fatal(err)
	}
	if sig.UserAction != models.ActionRejectedByUser {
		t.Errorf("user action = %s", sig.UserAction)
	}
}

func TestGetSignal_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetSignal(context.Background(), "missing")
	if !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func openPosition(id, symbol string, at time.Time) *models.Position {
	return &models.Position{
		ID:          id,
		SignalID:    "sig-" + id,
		Symbol:      symbol,
		Sector:      "IT",
		EntryPrice:  1500,
		StopLoss:    1477.5,
		TargetPrice: 1545,
		Quantity:    3,
		EntryTime:   at,
		TradingMode: models.TradingPaper,
		Status:      models.PositionOpen,
	}
}

func TestPositions_OneOpenPerSymbol(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := s.Update(ctx, func(tx *Tx) error { return tx.InsertPosition(openPosition("p1", "INFY", now)) }); err != nil {
		t.Fatalf("InsertPosition() error = %v", err)
	}
	if err := s.Update(ctx, func(tx *Tx) error { return tx.InsertPosition(openPosition("p2", "INFY", now)) }); err == nil {
		t.Fatal("expected second open INFY position to violate the unique index")
	}

	p, err := s.GetOpenPosition(ctx, "INFY")
	if err != nil || p == nil || p.ID != "p1" {
		t.Fatalf("GetOpenPosition() = %+v, %v", p, err)
	}

	exit := now.Add(time.Hour)
	p.Status = models.PositionClosed
	p.ExitPrice = 1545
	p.ExitTime = &exit
	p.ExitReason = models.ExitTargetHit
	p.PnL = 135
	if err := s.Update(ctx, func(tx *Tx) error { return tx.ClosePosition(p) }); err != nil {
		t.Fatalf("ClosePosition() error = %v", err)
	}

	// Symbol is free again once the first position is closed.
	if err := s.Update(ctx, func(tx *Tx) error { return tx.InsertPosition(openPosition("p3", "INFY", exit)) }); err != nil {
		t.Fatalf("InsertPosition() after close error = %v", err)
	}

	closed, err := s.GetPositions(ctx, PositionFilter{Status: models.PositionClosed})
	if err != nil {
		t.Fatal(err)
	}
	if len(closed) != 1 || closed[0].ExitReason != models.ExitTargetHit || closed[0].ExitTime == nil {
		t.Fatalf("closed = %+v", closed)
	}

	n, err := s.CountPositionsEntered(ctx, now.Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("CountPositionsEntered = %d, want 2", n)
	}
}

func TestClearSignalsAndLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	err := s.Update(ctx, func(tx *Tx) error {
		if err := tx.InsertScan(&ScanRecord{ID: "s1", StartedAt: now}, []models.Signal{
			sampleSignal("s1-INFY", "INFY", models.SignalQualified, now),
		}); err != nil {
			return err
		}
		return tx.AppendLog(&models.DecisionLogEntry{Timestamp: now, Kind: models.DecisionSignalEvaluated, Message: "x"})
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Update(ctx, func(tx *Tx) error {
		if err := tx.ClearSignals(); err != nil {
			return err
		}
		return tx.ClearDecisionLog()
	}); err != nil {
		t.Fatal(err)
	}

	if scan, _ := s.LatestScan(ctx); scan != nil {
		t.Errorf("expected no scans, got %+v", scan)
	}
	entries, err := s.TailDecisionLog(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty log, got %d entries", len(entries))
	}
}

// Property: For any number of appended entries and any limit, TailDecisionLog
// returns min(limit, total) entries with strictly decreasing IDs.
func TestProperty_DecisionLogTailNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("tail is bounded and newest first", prop.ForAll(
		func(count, limit int) bool {
			err := s.Update(ctx, func(tx *Tx) error {
				if err := tx.ClearDecisionLog(); err != nil {
					return err
				}
				for i := 0; i < count; i++ {
					e := &models.DecisionLogEntry{
						Timestamp: time.Now(),
						Kind:      models.DecisionSignalEvaluated,
						Message:   fmt.Sprintf("entry %d", i),
					}
					if err := tx.AppendLog(e); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				t.Logf("append failed: %v", err)
				return false
			}

			entries, err := s.TailDecisionLog(ctx, limit)
			if err != nil {
				return false
			}
			want := count
			if limit < want {
				want = limit
			}
			if len(entries) != want {
				return false
			}
			for i := 1; i < len(entries); i++ {
				if entries[i].ID >= entries[i-1].ID {
					return false
				}
			}
			if want > 0 && entries[0].Message != fmt.Sprintf("entry %d", count-1) {
				return false
			}
			return true
		},
		gen.IntRange(0, 25),
		gen.IntRange(1, 30),
	))

	properties.TestingRun(t)
}
