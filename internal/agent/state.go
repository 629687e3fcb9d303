// Package agent implements the trading-signal agent: configuration, the
// scan-and-qualify engine, execution, exit monitoring, the auto-trading
// scheduler and the kill switch.
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "nse-agent/internal/errors"
	"nse-agent/internal/models"
	"nse-agent/internal/store"
	"nse-agent/internal/stream"
)

// Publisher receives committed decision log entries and control events.
type Publisher interface {
	Publish(ev stream.Event)
	PublishDecisions(entries []*models.DecisionLogEntry)
}

// State is the single owner of the agent's mutable state. Every logical
// operation holds mu for its whole read-check-write sequence and persists
// through one store transaction; the in-memory config is swapped only after
// that transaction commits.
type State struct {
	mu       sync.Mutex
	store    store.DataStore
	cfg      models.TradingConfig
	lastScan time.Time
	now      func() time.Time
	events   Publisher
	logger   zerolog.Logger
}

// NewState loads the persisted config, seeding it with defaults on first run.
func NewState(ctx context.Context, st store.DataStore, defaults models.TradingConfig, now func() time.Time, events Publisher, logger zerolog.Logger) (*State, error) {
	if now == nil {
		now = time.Now
	}
	s := &State{store: st, now: now, events: events, logger: logger}

	saved, err := st.LoadState(ctx)
	if err != nil {
		return nil, apperrors.NewInternalError("load_state", err)
	}
	if saved == nil {
		cfg := defaults.Clone()
		if err := st.Update(ctx, func(tx *store.Tx) error { return tx.SaveState(&cfg) }); err != nil {
			return nil, apperrors.NewInternalError("seed_state", err)
		}
		s.cfg = cfg
	} else {
		s.cfg = *saved
	}

	if rec, err := st.LatestScan(ctx); err == nil && rec != nil {
		s.lastScan = rec.StartedAt
	}
	return s, nil
}

// Config returns a copy of the active trading config.
func (s *State) Config() models.TradingConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Clone()
}

// Store returns the backing store for read-only queries.
func (s *State) Store() store.DataStore {
	return s.store
}

// Now returns the current time from the agent clock.
func (s *State) Now() time.Time {
	return s.now()
}

// commit persists fn, the optional next config and the log entries in one
// transaction. The caller must hold mu.
func (s *State) commit(ctx context.Context, next *models.TradingConfig, entries []*models.DecisionLogEntry, fn func(tx *store.Tx) error) error {
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		if fn != nil {
			if err := fn(tx); err != nil {
				return err
			}
		}
		if next != nil {
			if next.CapitalAvailable.IsNegative() {
				return fmt.Errorf("capital would become negative: %s", next.CapitalAvailable)
			}
			if err := tx.SaveState(next); err != nil {
				return err
			}
		}
		return tx.AppendLog(entries...)
	})
	if err != nil {
		return err
	}
	if next != nil {
		s.cfg = next.Clone()
	}
	if s.events != nil && len(entries) > 0 {
		s.events.PublishDecisions(entries)
	}
	return nil
}

// nextScanTime returns a scan timestamp strictly after the previous one at
// millisecond resolution. The caller must hold mu.
func (s *State) nextScanTime() time.Time {
	t := s.now().UTC().Truncate(time.Millisecond)
	if !t.After(s.lastScan) {
		t = s.lastScan.Add(time.Millisecond)
	}
	s.lastScan = t
	return t
}
