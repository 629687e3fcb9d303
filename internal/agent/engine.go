package agent

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"nse-agent/internal/analysis/indicators"
	apperrors "nse-agent/internal/errors"
	"nse-agent/internal/logging"
	"nse-agent/internal/marketdata"
	"nse-agent/internal/models"
	"nse-agent/internal/store"
	"nse-agent/internal/trading"
	"nse-agent/pkg/utils"
)

const scanIDLayout = "20060102T150405.000"

// ScanResult is the outcome of one scan cycle. Config is the trading
// configuration the signals were qualified against.
type ScanResult struct {
	Scan    *store.ScanRecord    `json:"scan"`
	Signals []models.Signal      `json:"signals"`
	Config  models.TradingConfig `json:"config"`
}

// Qualified returns the qualified signals in scan order.
func (r *ScanResult) Qualified() []models.Signal {
	var out []models.Signal
	for _, s := range r.Signals {
		if s.SignalStatus == models.SignalQualified {
			out = append(out, s)
		}
	}
	return out
}

// SignalsView is the latest scan with the cumulative signal counters.
type SignalsView struct {
	Scan    *store.ScanRecord  `json:"scan"`
	Signals []models.Signal    `json:"signals"`
	Stats   *store.SignalStats `json:"stats"`
}

// SignalEngine scans the allowed universe and qualifies signals.
type SignalEngine struct {
	state    *State
	market   marketdata.Provider
	universe Universe
	settings Settings
	logger   zerolog.Logger
}

type fetchResult struct {
	cand *candidate
	err  error
}

// Scan evaluates every symbol of the allowed sectors. Market data is
// fetched concurrently; qualification runs under the state lock so the
// daily trade count cannot race an execution. A symbol whose data cannot
// be fetched is logged and skipped.
func (e *SignalEngine) Scan(ctx context.Context) (*ScanResult, error) {
	snapshot := e.state.Config()
	targets := e.universe.Targets(snapshot.AllowedSectors)

	results := make([]fetchResult, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.settings.ScanConcurrency)
	for i, t := range targets {
		i, t := i, t
		g.Go(func() error {
			cand, err := e.fetch(gctx, t, &snapshot)
			results[i] = fetchResult{cand: cand, err: err}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewInternalError("scan", err)
	}

	e.state.mu.Lock()
	defer e.state.mu.Unlock()

	cfg := e.state.cfg.Clone()
	now := e.state.now()
	scanTime := e.state.nextScanTime()
	scanID := scanTime.Format(scanIDLayout)

	executedToday, err := e.state.store.CountPositionsEntered(ctx, utils.StartOfDay(now))
	if err != nil {
		return nil, apperrors.NewInternalError("scan", err)
	}

	rec := &store.ScanRecord{ID: scanID, StartedAt: scanTime, Total: len(targets)}
	var signals []models.Signal
	var entries []*models.DecisionLogEntry
	qualified := 0

	for i, t := range targets {
		r := results[i]
		if r.err != nil {
			rec.Skipped++
			l := logging.WithSymbol(e.logger, t.Symbol)
			l.Warn().Err(r.err).Msg("Skipping symbol")
			entries = append(entries, &models.DecisionLogEntry{
				Timestamp: now,
				Kind:      models.DecisionScanSkipped,
				Symbol:    t.Symbol,
				Message:   fmt.Sprintf("Skipped %s: %v", t.Symbol, r.err),
			})
			continue
		}

		c := r.cand
		checks := evaluateRules(&cfg, c, executedToday+qualified, e.settings.MinRiskReward)
		sig := models.Signal{
			ID:              scanID + "-" + t.Symbol,
			ScanID:          scanID,
			Symbol:          t.Symbol,
			Sector:          t.Sector,
			EntryPrice:      c.entry,
			StopLoss:        c.stop,
			TargetPrice:     c.tp,
			RiskRewardRatio: c.rr,
			RuleChecks:      checks,
			Rationale:       rationale(c, checks),
			Timestamp:       now,
		}
		if allPassed(checks) {
			qualified++
			sig.SignalStatus = models.SignalQualified
			sig.ExecutionInstruction = models.InstructionWaitForUser
			if cfg.ExecutionMode == models.ExecutionAutoRuled {
				sig.ExecutionInstruction = models.InstructionAutoExecute
			}
		} else {
			sig.SignalStatus = models.SignalRejected
			sig.ExecutionInstruction = models.InstructionNone
		}

		signals = append(signals, sig)
		rec.Evaluated++
		logging.LogSignal(e.logger, sig.ID, sig.Symbol, string(sig.SignalStatus), sig.RiskRewardRatio)
		entries = append(entries, &models.DecisionLogEntry{
			Timestamp: now,
			Kind:      models.DecisionSignalEvaluated,
			SignalID:  sig.ID,
			Symbol:    sig.Symbol,
			Status:    sig.SignalStatus,
			Message:   sig.Rationale,
		})
	}
	rec.Qualified = qualified
	rec.Rejected = rec.Evaluated - qualified

	err = e.state.commit(ctx, nil, entries, func(tx *store.Tx) error {
		return tx.InsertScan(rec, signals)
	})
	if err != nil {
		return nil, apperrors.NewInternalError("scan", err)
	}

	e.logger.Info().
		Str("scan_id", scanID).
		Int("total", rec.Total).
		Int("qualified", rec.Qualified).
		Int("rejected", rec.Rejected).
		Int("skipped", rec.Skipped).
		Msg("Scan complete")
	return &ScanResult{Scan: rec, Signals: signals, Config: cfg}, nil
}

// fetch loads the quote and indicator history for one target and computes
// its levels.
func (e *SignalEngine) fetch(ctx context.Context, t Target, cfg *models.TradingConfig) (*candidate, error) {
	quote, err := e.market.Quote(ctx, t.Symbol)
	if err != nil {
		return nil, err
	}
	if quote.LTP <= 0 {
		return nil, apperrors.NewDataUnavailableError("quote", t.Symbol, "no traded price", nil)
	}
	bars, err := e.market.History(ctx, t.Symbol, e.settings.HistoryPeriod, e.settings.HistoryInterval)
	if err != nil {
		return nil, err
	}
	if len(bars) < indicators.MinBars {
		return nil, apperrors.NewDataUnavailableError("history", t.Symbol,
			fmt.Sprintf("need %d bars, got %d", indicators.MinBars, len(bars)), nil)
	}

	c := &candidate{target: t, bar: bars[len(bars)-1], entry: quote.LTP}
	c.stop, c.tp, c.rr = trading.Levels(c.entry, cfg.StopLossRule.Value, cfg.ProfitBookingRule.Value)
	return c, nil
}

// Latest returns the signals of the most recent scan.
func (e *SignalEngine) Latest(ctx context.Context) (*SignalsView, error) {
	st := e.state.store
	view := &SignalsView{Signals: []models.Signal{}}

	rec, err := st.LatestScan(ctx)
	if err != nil {
		return nil, apperrors.NewInternalError("signals", err)
	}
	if rec != nil {
		signals, err := st.GetSignalsByScan(ctx, rec.ID)
		if err != nil {
			return nil, apperrors.NewInternalError("signals", err)
		}
		view.Scan = rec
		view.Signals = signals
	}

	if view.Stats, err = st.GetSignalStats(ctx); err != nil {
		return nil, apperrors.NewInternalError("signals", err)
	}
	return view, nil
}
