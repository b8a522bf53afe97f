package risk

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacattac314/Titan-Finance/internal/bustest"
	"github.com/jacattac314/Titan-Finance/internal/domain"
)

func newTestGovernor(t *testing.T, engineCfg Config, govCfg GovernorConfig) (*Governor, *bustest.Bus) {
	t.Helper()
	bus := bustest.New()
	engine := NewEngine(engineCfg, testLogger())
	gov := NewGovernor(govCfg, bus, engine, nil, nil, testLogger())
	return gov, bus
}

func marshalSignal(t *testing.T, sig domain.TradeSignal) []byte {
	t.Helper()
	payload, err := json.Marshal(sig)
	require.NoError(t, err)
	return payload
}

func marshalFill(t *testing.T, fill domain.Fill) []byte {
	t.Helper()
	payload, err := json.Marshal(fill)
	require.NoError(t, err)
	return payload
}

func decodeRequests(t *testing.T, bus *bustest.Bus) []domain.ExecutionRequest {
	t.Helper()
	var out []domain.ExecutionRequest
	for _, payload := range bus.Published(domain.TopicExecutionRequests) {
		var req domain.ExecutionRequest
		require.NoError(t, json.Unmarshal(payload, &req))
		out = append(out, req)
	}
	return out
}

func decodeCommands(t *testing.T, bus *bustest.Bus) []domain.RiskCommand {
	t.Helper()
	var out []domain.RiskCommand
	for _, payload := range bus.Published(domain.TopicRiskCommands) {
		var cmd domain.RiskCommand
		require.NoError(t, json.Unmarshal(payload, &cmd))
		out = append(out, cmd)
	}
	return out
}

func TestHandleSignalHappyBuy(t *testing.T) {
	gov, bus := newTestGovernor(t,
		Config{RiskPerTradePct: 0.001, MaxConsecutiveLosses: 100},
		GovernorConfig{PerfCheckInterval: 100},
	)
	gov.Engine().UpdateAccountState(100_000, 0)

	ctx := context.Background()
	gov.HandleSignal(ctx, marshalSignal(t, domain.TradeSignal{
		ModelID:    "sma_spy",
		ModelName:  "SMA_Crossover_v1",
		Symbol:     "SPY",
		Signal:     domain.SignalBuy,
		Confidence: 0.82,
		Price:      150,
	}))

	reqs := decodeRequests(t, bus)
	require.Len(t, reqs, 1)
	req := reqs[0]
	assert.Equal(t, domain.OrderSideBuy, req.Side)
	assert.Equal(t, int64(33), req.Qty)
	assert.Equal(t, "market", req.Type)
	assert.Equal(t, "sma_spy", req.ModelID)
	assert.Equal(t, 0.82, req.Confidence)
	assert.True(t, req.Valid())
}

func TestHandleSignalSellIsLowercase(t *testing.T) {
	gov, bus := newTestGovernor(t,
		Config{RiskPerTradePct: 0.01, MaxConsecutiveLosses: 100},
		GovernorConfig{PerfCheckInterval: 100},
	)
	gov.Engine().UpdateAccountState(50_000, 0)

	gov.HandleSignal(context.Background(), marshalSignal(t, domain.TradeSignal{
		ModelID: "rsi_spy", Symbol: "SPY", Signal: domain.SignalSell, Confidence: 0.5, Price: 100,
	}))

	reqs := decodeRequests(t, bus)
	require.Len(t, reqs, 1)
	assert.Equal(t, domain.OrderSideSell, reqs[0].Side)
	assert.Positive(t, reqs[0].Qty)
}

func TestHandleSignalHoldEmitsNothing(t *testing.T) {
	gov, bus := newTestGovernor(t, Config{}, GovernorConfig{})
	gov.Engine().UpdateAccountState(100_000, 0)

	gov.HandleSignal(context.Background(), marshalSignal(t, domain.TradeSignal{
		ModelID: "m", Symbol: "SPY", Signal: domain.SignalHold, Confidence: 0.9, Price: 100,
	}))

	assert.Empty(t, bus.Published(domain.TopicExecutionRequests))
	assert.Empty(t, bus.Published(domain.TopicRiskCommands))
}

func TestHandleSignalPriceGate(t *testing.T) {
	gov, bus := newTestGovernor(t, Config{}, GovernorConfig{})
	gov.Engine().UpdateAccountState(100_000, 0)

	gov.HandleSignal(context.Background(), marshalSignal(t, domain.TradeSignal{
		ModelID: "m", Symbol: "SPY", Signal: domain.SignalBuy, Confidence: 0.9, Price: 0,
	}))

	assert.Empty(t, bus.Published(domain.TopicExecutionRequests))
}

func TestKillSwitchTripDropsSignalAndPublishesLiquidation(t *testing.T) {
	gov, bus := newTestGovernor(t,
		Config{MaxConsecutiveLosses: 3, RiskPerTradePct: 0.01},
		GovernorConfig{PerfCheckInterval: 100},
	)
	gov.Engine().UpdateAccountState(100_000, 0)

	ctx := context.Background()

	// Three losing fills: positive slippage is a cost, so the proxy return
	// is negative each time.
	for i := 0; i < 3; i++ {
		gov.HandleFill(ctx, marshalFill(t, domain.Fill{
			ModelID: "m", Symbol: "SPY", Side: domain.FillSideBuy,
			Qty: 1, Price: 100, Slippage: 0.5, Status: domain.FillStatusFilled,
		}))
	}

	gov.HandleSignal(ctx, marshalSignal(t, domain.TradeSignal{
		ModelID: "m", Symbol: "SPY", Signal: domain.SignalBuy, Confidence: 0.9, Price: 100,
	}))

	assert.Empty(t, decodeRequests(t, bus), "signal after the trip must be dropped")

	cmds := decodeCommands(t, bus)
	require.Len(t, cmds, 1)
	assert.Equal(t, domain.CommandLiquidateAll, cmds[0].Command)
	assert.True(t, gov.Engine().KillSwitchActive())
}

func TestModelRollbackBlocksSubsequentSignals(t *testing.T) {
	gov, bus := newTestGovernor(t,
		Config{
			RiskPerTradePct:      0.01,
			MaxConsecutiveLosses: 100,
			RollbackMinAccuracy:  0.5,
			RollbackMinSharpe:    0.5,
		},
		GovernorConfig{PerfCheckInterval: 1},
	)
	gov.Engine().UpdateAccountState(100_000, 0)

	ctx := context.Background()

	// 10 prediction results, 2 correct / 8 wrong. For a BUY, negative
	// slippage (price improvement) reads as a correct call.
	for i := 0; i < 10; i++ {
		slippage := 0.5
		if i < 2 {
			slippage = -0.5
		}
		gov.HandleFill(ctx, marshalFill(t, domain.Fill{
			ModelID: "m", Symbol: "SPY", Side: domain.FillSideBuy,
			Qty: 1, Price: 100, Slippage: slippage, Status: domain.FillStatusFilled,
		}))
	}

	// This signal is approved, then the periodic health check fires the
	// rollback.
	gov.HandleSignal(ctx, marshalSignal(t, domain.TradeSignal{
		ModelID: "m", Symbol: "SPY", Signal: domain.SignalBuy, Confidence: 0.9, Price: 100,
	}))
	require.Len(t, decodeRequests(t, bus), 1)

	cmds := decodeCommands(t, bus)
	require.Len(t, cmds, 1)
	assert.Equal(t, domain.CommandActivateManualApproval, cmds[0].Command)
	require.NotNil(t, cmds[0].RollingAccuracy)
	assert.InDelta(t, 0.2, *cmds[0].RollingAccuracy, 1e-9)

	// The next signal is blocked by manual-approval mode.
	gov.HandleSignal(ctx, marshalSignal(t, domain.TradeSignal{
		ModelID: "m", Symbol: "SPY", Signal: domain.SignalBuy, Confidence: 0.9, Price: 100,
	}))
	assert.Len(t, decodeRequests(t, bus), 1, "no new request while in manual approval mode")
}

func TestResetKillSwitchPublishesCommand(t *testing.T) {
	gov, bus := newTestGovernor(t, Config{MaxConsecutiveLosses: 1}, GovernorConfig{})
	gov.Engine().UpdateAccountState(100_000, 0)
	gov.Engine().RecordTradeResult(-1)
	require.True(t, gov.Engine().CheckKillSwitch())

	gov.ResetKillSwitch(context.Background())

	assert.False(t, gov.Engine().KillSwitchActive())
	cmds := decodeCommands(t, bus)
	require.Len(t, cmds, 1)
	assert.Equal(t, domain.CommandResetKillSwitch, cmds[0].Command)
}

func TestHandleSignalDecodeErrorIsDropped(t *testing.T) {
	gov, bus := newTestGovernor(t, Config{}, GovernorConfig{})
	gov.Engine().UpdateAccountState(100_000, 0)

	gov.HandleSignal(context.Background(), []byte("{not json"))
	assert.Empty(t, bus.Published(domain.TopicExecutionRequests))
}
