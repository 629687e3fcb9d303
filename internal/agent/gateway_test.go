package agent

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "nse-agent/internal/errors"
	"nse-agent/internal/models"
	"nse-agent/internal/store"
)

func TestApprove_OpensPositionAndDebitsCapital(t *testing.T) {
	env := newTestEnv(t, withUniverse("INFY"))
	ctx := context.Background()

	sig := signalFor(t, env.scan(t), "INFY")
	pos, err := env.agent.Gateway.Approve(ctx, sig.ID)
	require.NoError(t, err)

	assert.Equal(t, 3, pos.Quantity)
	assert.Equal(t, models.PositionOpen, pos.Status)
	assert.Equal(t, models.TradingPaper, pos.TradingMode)
	assert.Equal(t, sig.ID, pos.SignalID)
	assert.NotEmpty(t, pos.EntryOrderID)
	assert.Equal(t, "95500", env.agent.State.Config().CapitalAvailable.String())

	stored, err := env.store.GetSignal(ctx, sig.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ActionApproved, stored.UserAction)
	assert.Equal(t, 1, countKind(t, env, models.DecisionUserApproved))

	_, err = env.agent.Gateway.Approve(ctx, sig.ID)
	assert.ErrorIs(t, err, apperrors.ErrPrecondition)
}

func TestReject_TwiceIsPreconditionWithoutDoubleLogging(t *testing.T) {
	env := newTestEnv(t, withUniverse("INFY"))
	ctx := context.Background()

	sig := signalFor(t, env.scan(t), "INFY")
	rejected, err := env.agent.Gateway.Reject(ctx, sig.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ActionRejectedByUser, rejected.UserAction)
	assert.Equal(t, 1, countKind(t, env, models.DecisionUserRejected))

	_, err = env.agent.Gateway.Reject(ctx, sig.ID)
	assert.ErrorIs(t, err, apperrors.ErrPrecondition)
	assert.Equal(t, 1, countKind(t, env, models.DecisionUserRejected))

	open, err := env.agent.Ledger.OpenPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
	assert.Equal(t, "100000", env.agent.State.Config().CapitalAvailable.String())
}

func TestApprove_UnknownSignal(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.agent.Gateway.Approve(context.Background(), "20240304T043000.000-NOPE")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestApprove_Preconditions(t *testing.T) {
	env := newTestEnv(t, withUniverse("INFY", "TCS"))
	ctx := context.Background()
	env.market.SetBars("TCS", bullishBars(1500, 20))

	res := env.scan(t)
	_, err := env.agent.Gateway.Approve(ctx, signalFor(t, res, "TCS").ID)
	assert.ErrorIs(t, err, apperrors.ErrPrecondition, "rejected signal")

	env.configure(t, `{"execution_mode": "AUTO_RULED"}`)
	auto := signalFor(t, env.scan(t), "INFY")
	_, err = env.agent.Gateway.Approve(ctx, auto.ID)
	assert.ErrorIs(t, err, apperrors.ErrPrecondition, "auto signal")
}

func TestApprove_RequiresActiveAgent(t *testing.T) {
	env := newTestEnv(t, withUniverse("INFY"), withDefaults(func(cfg *models.TradingConfig) { cfg.AgentActive = false }))
	ctx := context.Background()

	sig := signalFor(t, env.scan(t), "INFY")
	_, err := env.agent.Gateway.Approve(ctx, sig.ID)
	assert.ErrorIs(t, err, apperrors.ErrPrecondition)
	_, err = env.agent.Gateway.Reject(ctx, sig.ID)
	assert.ErrorIs(t, err, apperrors.ErrPrecondition)

	_, err = env.agent.Controller.Activate(ctx)
	require.NoError(t, err)
	_, err = env.agent.Gateway.Approve(ctx, sig.ID)
	assert.NoError(t, err)
}

func TestApprove_InsufficientCapitalKeepsSignalActionable(t *testing.T) {
	env := newTestEnv(t, withUniverse("INFY"))
	ctx := context.Background()

	sig := signalFor(t, env.scan(t), "INFY")
	env.configure(t, `{"capital_available": 1000}`)

	_, err := env.agent.Gateway.Approve(ctx, sig.ID)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientCapital)
	assert.Equal(t, 1, countKind(t, env, models.DecisionExecutionFailed))

	stored, err := env.store.GetSignal(ctx, sig.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ActionNone, stored.UserAction)
	assert.Equal(t, "1000", env.agent.State.Config().CapitalAvailable.String())

	env.configure(t, `{"capital_available": 100000}`)
	_, err = env.agent.Gateway.Approve(ctx, sig.ID)
	assert.NoError(t, err)
}

func TestApprove_LiveWithoutBrokerIsPrecondition(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.agent.Config.Configure(context.Background(), []byte(`{"trading_mode": "LIVE"}`))
	assert.ErrorIs(t, err, apperrors.ErrPrecondition)
}

func TestApprove_LiveRoutesThroughBroker(t *testing.T) {
	live := &fakeRouter{}
	env := newTestEnv(t, withUniverse("INFY"), withLiveRouter(live))
	env.configure(t, `{"trading_mode": "LIVE"}`)

	pos, err := env.agent.Gateway.Approve(context.Background(), signalFor(t, env.scan(t), "INFY").ID)
	require.NoError(t, err)
	assert.Equal(t, models.TradingLive, pos.TradingMode)
	assert.Equal(t, "LIVE-1", pos.EntryOrderID)

	require.Len(t, live.orders, 1)
	assert.Equal(t, models.OrderSideBuy, live.orders[0].Side)
	assert.Equal(t, models.ProductMIS, live.orders[0].Product)
	assert.Equal(t, 3, live.orders[0].Quantity)
}

func TestAutoExecute_ScenarioSizesAndDebits(t *testing.T) {
	env := newTestEnv(t, withUniverse("INFY"))
	ctx := context.Background()
	env.configure(t, `{"execution_mode": "AUTO_RULED"}`)

	res, err := env.agent.Scheduler.ForceRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalSignals)
	assert.Equal(t, 1, res.Qualified)
	assert.Equal(t, 1, res.Executed)

	open, err := env.agent.Ledger.OpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, 3, open[0].Quantity)
	assert.Equal(t, "95500", env.agent.State.Config().CapitalAvailable.String())

	stored, err := env.store.GetSignal(ctx, open[0].SignalID)
	require.NoError(t, err)
	assert.Equal(t, models.ActionAutoExecuted, stored.UserAction)
	assert.Equal(t, 1, countKind(t, env, models.DecisionAutoExecuted))
}

func TestAutoExecute_DuplicateSymbolIsSkippedAndLogged(t *testing.T) {
	env := newTestEnv(t, withUniverse("INFY"))
	ctx := context.Background()
	env.configure(t, `{"execution_mode": "AUTO_RULED"}`)

	first := signalFor(t, env.scan(t), "INFY")
	second := signalFor(t, env.scan(t), "INFY")

	_, ok := env.agent.Gateway.AutoExecute(ctx, first.ID)
	require.True(t, ok)
	_, ok = env.agent.Gateway.AutoExecute(ctx, second.ID)
	assert.False(t, ok)

	stored, err := env.store.GetSignal(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SignalQualified, stored.SignalStatus)
	assert.Equal(t, models.ActionNone, stored.UserAction)
	assert.Equal(t, 1, countKind(t, env, models.DecisionAutoSkipped))
}

func TestAutoExecute_IgnoredUnderManualConfirm(t *testing.T) {
	env := newTestEnv(t, withUniverse("INFY"))
	sig := signalFor(t, env.scan(t), "INFY")

	_, ok := env.agent.Gateway.AutoExecute(context.Background(), sig.ID)
	assert.False(t, ok)
	stored, err := env.store.GetSignal(context.Background(), sig.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ActionNone, stored.UserAction)
}

func TestMonitorExits_StopLossAndTarget(t *testing.T) {
	env := newTestEnv(t, withUniverse("INFY", "TCS"))
	ctx := context.Background()

	res := env.scan(t)
	_, err := env.agent.Gateway.Approve(ctx, signalFor(t, res, "INFY").ID)
	require.NoError(t, err)
	_, err = env.agent.Gateway.Approve(ctx, signalFor(t, res, "TCS").ID)
	require.NoError(t, err)
	assert.Equal(t, "91000", env.agent.State.Config().CapitalAvailable.String())

	env.market.SetPrice("INFY", 1477.5)
	env.market.SetPrice("TCS", 1500)
	mon, err := env.agent.Gateway.MonitorExits(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, mon.Checked)
	require.Len(t, mon.Closed, 1)
	assert.Equal(t, models.ExitStopLossHit, mon.Closed[0].ExitReason)
	assert.InDelta(t, -67.5, mon.Closed[0].PnL, 1e-9)
	assert.Equal(t, "95432.5", env.agent.State.Config().CapitalAvailable.String())

	env.market.SetPrice("TCS", 1550)
	mon, err = env.agent.Gateway.MonitorExits(ctx)
	require.NoError(t, err)
	require.Len(t, mon.Closed, 1)
	assert.Equal(t, models.ExitTargetHit, mon.Closed[0].ExitReason)
	assert.InDelta(t, 150.0, mon.Closed[0].PnL, 1e-9)
	assert.Equal(t, "100082.5", env.agent.State.Config().CapitalAvailable.String())

	closed, err := env.agent.Ledger.ClosedPositions(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, closed, 2)
	assert.Equal(t, 2, countKind(t, env, models.DecisionPositionClosed))
}

func TestMonitorExits_SkipsPositionsWithoutPrice(t *testing.T) {
	env := newTestEnv(t, withUniverse("INFY"))
	ctx := context.Background()

	_, err := env.agent.Gateway.Approve(ctx, signalFor(t, env.scan(t), "INFY").ID)
	require.NoError(t, err)

	env.market.SetFailing("INFY", true)
	mon, err := env.agent.Gateway.MonitorExits(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, mon.Skipped)
	assert.Empty(t, mon.Closed)
}

func TestApprove_ConcurrentWithScansKeepsOnePositionPerSymbol(t *testing.T) {
	env := newTestEnv(t, withUniverse("INFY"))
	ctx := context.Background()

	var ids []string
	for i := 0; i < 4; i++ {
		ids = append(ids, signalFor(t, env.scan(t), "INFY").ID)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for _, id := range ids {
		wg.Add(2)
		go func(id string) {
			defer wg.Done()
			if _, err := env.agent.Gateway.Approve(ctx, id); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(id)
		go func() {
			defer wg.Done()
			_, _ = env.agent.Engine.Scan(ctx)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	open, err := env.store.GetPositions(ctx, store.PositionFilter{Status: models.PositionOpen, Symbol: "INFY"})
	require.NoError(t, err)
	assert.Len(t, open, 1)
	assert.Equal(t, "95500", env.agent.State.Config().CapitalAvailable.String())
}
