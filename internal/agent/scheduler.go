package agent

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "nse-agent/internal/errors"
	"nse-agent/internal/models"
	"nse-agent/internal/security"
	"nse-agent/internal/store"
	"nse-agent/internal/trading"
	"nse-agent/pkg/utils"
)

// SchedulerState is the run state of the auto-trading loop.
type SchedulerState string

const (
	SchedulerStopped SchedulerState = "STOPPED"
	SchedulerRunning SchedulerState = "RUNNING"
)

// TickResult records one Scan, Execute, Monitor cycle.
type TickResult struct {
	StartedAt       time.Time `json:"scan_time"`
	ScanID          string    `json:"scan_id,omitempty"`
	TotalSignals    int       `json:"total_signals"`
	Qualified       int       `json:"qualified"`
	Executed        int       `json:"executed"`
	PositionsClosed int       `json:"positions_closed"`
	Skipped         string    `json:"skipped,omitempty"`
	Error           string    `json:"error,omitempty"`
}

// StartResult is returned by Start.
type StartResult struct {
	AlreadyRunning  bool `json:"already_running"`
	IntervalSeconds int  `json:"interval_seconds"`
}

// SchedulerStatus is the report behind /auto/status.
type SchedulerStatus struct {
	Running         bool           `json:"running"`
	State           SchedulerState `json:"state"`
	IntervalSeconds int            `json:"interval_seconds"`
	MarketHours     bool           `json:"market_hours"`
	Session         string         `json:"session"`
	TradesToday     int            `json:"trades_today"`
	OpenPositions   int            `json:"open_positions"`
	LastScanTime    *time.Time     `json:"last_scan_time"`
	LastResult      *TickResult    `json:"last_result"`
}

// Scheduler runs the auto-trading cycle on an interval. A tick and a
// forced run share one gate and never interleave.
type Scheduler struct {
	state      *State
	engine     *SignalEngine
	gateway    *ExecutionGateway
	controller *Controller
	sessions   *trading.SessionManager
	settings   Settings
	audit      *security.AuditLogger
	logger     zerolog.Logger

	tickMu sync.Mutex

	mu       sync.Mutex
	run      SchedulerState
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
	last     *TickResult
}

// Start begins periodic ticks. It requires AUTO_RULED. An interval of zero
// selects the default; shorter intervals are raised to the minimum. The
// first tick runs immediately.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) (*StartResult, error) {
	if s.state.Config().ExecutionMode != models.ExecutionAutoRuled {
		return nil, apperrors.NewPreconditionError("auto_start", "auto-trading requires AUTO_RULED execution mode")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == SchedulerRunning {
		return &StartResult{AlreadyRunning: true, IntervalSeconds: int(s.interval / time.Second)}, nil
	}

	if interval <= 0 {
		interval = s.settings.DefaultInterval
	}
	if interval < s.settings.MinInterval {
		interval = s.settings.MinInterval
	}
	s.startLocked(ctx, interval)
	return &StartResult{IntervalSeconds: int(interval / time.Second)}, nil
}

func (s *Scheduler) startLocked(ctx context.Context, interval time.Duration) {
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.run = SchedulerRunning
	s.interval = interval
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(loopCtx, interval, s.done)

	s.logger.Info().Dur("interval", interval).Msg("Auto-trading started")
	_ = s.audit.LogControl(ctx, security.AuditAutoStarted, map[string]interface{}{
		"interval_seconds": int(interval / time.Second),
	}, nil)
}

// Stop prevents future ticks. A tick already running finishes. It reports
// whether the scheduler was running.
func (s *Scheduler) Stop(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != SchedulerRunning {
		return false
	}
	s.stopLocked(ctx)
	return true
}

// pause stops ticks ahead of a kill and returns the interval to resume
// with if the kill fails.
func (s *Scheduler) pause(ctx context.Context) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != SchedulerRunning {
		return 0, false
	}
	interval := s.interval
	s.stopLocked(ctx)
	return interval, true
}

func (s *Scheduler) resume(ctx context.Context, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == SchedulerRunning {
		return
	}
	s.startLocked(ctx, interval)
}

func (s *Scheduler) stopLocked(ctx context.Context) {
	s.cancel()
	s.run = SchedulerStopped
	s.cancel = nil

	s.logger.Info().Msg("Auto-trading stopped")
	_ = s.audit.LogControl(ctx, security.AuditAutoStopped, nil, nil)
}

// Wait blocks until the loop goroutine of the last Start has exited or ctx
// is done.
func (s *Scheduler) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.scheduledTick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) scheduledTick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if !s.tickMu.TryLock() {
		s.logger.Warn().Msg("Previous tick still running, skipping")
		return
	}
	defer s.tickMu.Unlock()

	now := s.state.Now()
	if !s.state.Config().AgentActive {
		s.record(&TickResult{StartedAt: now, Skipped: "agent paused"})
		s.logger.Info().Msg("Agent inactive, tick skipped")
		return
	}
	if !s.sessions.IsMarketOpen(now) {
		s.record(&TickResult{StartedAt: now, Skipped: "market closed"})
		s.logger.Debug().Time("next_open", s.sessions.NextOpen(now)).Msg("Market closed, tick skipped")
		return
	}
	s.record(s.cycle(context.WithoutCancel(ctx)))
}

// ForceRun runs one tick now regardless of schedule and market hours. It
// requires an active agent and fails with ErrBusy while a tick runs.
func (s *Scheduler) ForceRun(ctx context.Context) (*TickResult, error) {
	if !s.state.Config().AgentActive {
		return nil, apperrors.NewPreconditionError("force_run", "agent is not active")
	}
	if !s.tickMu.TryLock() {
		return nil, apperrors.Wrap(apperrors.ErrBusy, "a tick is already running")
	}
	defer s.tickMu.Unlock()

	res := s.cycle(ctx)
	s.record(res)
	return res, nil
}

// cycle runs Scan, then auto-execution of qualified signals in scan order,
// then the exit check.
func (s *Scheduler) cycle(ctx context.Context) *TickResult {
	res := &TickResult{StartedAt: s.state.Now()}

	if s.settings.SyncCapital {
		if _, err := s.controller.SyncCapital(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Capital sync failed")
		}
	}

	scan, err := s.engine.Scan(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Scan failed")
		res.Error = err.Error()
		return res
	}
	res.ScanID = scan.Scan.ID
	res.TotalSignals = len(scan.Signals)
	qualified := scan.Qualified()
	res.Qualified = len(qualified)

	if s.state.Config().ExecutionMode == models.ExecutionAutoRuled {
		for _, sig := range qualified {
			if sig.ExecutionInstruction != models.InstructionAutoExecute {
				continue
			}
			if _, ok := s.gateway.AutoExecute(ctx, sig.ID); ok {
				res.Executed++
			}
		}
	}

	mon, err := s.gateway.MonitorExits(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Exit check failed")
		res.Error = err.Error()
		return res
	}
	res.PositionsClosed = len(mon.Closed)

	s.logger.Info().
		Int("signals", res.TotalSignals).
		Int("qualified", res.Qualified).
		Int("executed", res.Executed).
		Int("closed", res.PositionsClosed).
		Msg("Tick complete")
	return res
}

func (s *Scheduler) record(res *TickResult) {
	s.mu.Lock()
	s.last = res
	s.mu.Unlock()
}

// Status reports the scheduler state and today's activity.
func (s *Scheduler) Status(ctx context.Context) (*SchedulerStatus, error) {
	s.mu.Lock()
	st := &SchedulerStatus{
		Running:         s.run == SchedulerRunning,
		State:           s.run,
		IntervalSeconds: int(s.interval / time.Second),
		LastResult:      s.last,
	}
	s.mu.Unlock()
	if st.State == "" {
		st.State = SchedulerStopped
	}

	now := s.state.Now()
	info := s.sessions.GetSessionAt(now)
	st.MarketHours = info.Open
	st.Session = info.Session.String()

	ds := s.state.Store()
	var err error
	if st.TradesToday, err = ds.CountPositionsEntered(ctx, utils.StartOfDay(now)); err != nil {
		return nil, apperrors.NewInternalError("auto_status", err)
	}
	open, err := ds.GetPositions(ctx, store.PositionFilter{Status: models.PositionOpen})
	if err != nil {
		return nil, apperrors.NewInternalError("auto_status", err)
	}
	st.OpenPositions = len(open)

	rec, err := ds.LatestScan(ctx)
	if err != nil {
		return nil, apperrors.NewInternalError("auto_status", err)
	}
	if rec != nil {
		t := rec.StartedAt
		st.LastScanTime = &t
	}
	return st, nil
}
