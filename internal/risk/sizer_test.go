package risk

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalTrader/internal/domain"
	"signalTrader/internal/ports"
)

// Mock implementations
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func testSpec() ports.SymbolSpec {
	return ports.SymbolSpec{
		Symbol:       "XAUUSD",
		Point:        0.01,
		ContractSize: 100,
		MinVolume:    0.01,
		MaxVolume:    50,
		VolumeStep:   0.01,
	}
}

func buySignal() *domain.ParsedSignal {
	return &domain.ParsedSignal{
		Symbol:      "XAUUSD",
		Action:      domain.Buy,
		EntryMin:    2360,
		EntryMax:    2370,
		StopLoss:    2355,
		TakeProfits: []float64{2380},
	}
}

func TestSize_FixedLot(t *testing.T) {
	s, err := NewSizer(Config{FixedLot: 0.01, BaseDeviationPoints: 10}, &mockLogger{})
	require.NoError(t, err)

	intent, err := s.Size(context.Background(), buySignal(), ports.Quote{Bid: 2364, Ask: 2365}, testSpec(), 1000)
	require.NoError(t, err)
	assert.InDelta(t, 0.01, intent.Volume, 1e-9)
	assert.InDelta(t, 2365.0, intent.Price, 1e-9, "entry is the midpoint of the parsed range")
	assert.InDelta(t, 2355.0, intent.StopLoss, 1e-9)
	assert.InDelta(t, 2380.0, intent.TakeProfit, 1e-9)
	assert.Equal(t, 10, intent.Deviation)
}

func TestSize_MarketEntryFallback(t *testing.T) {
	s, err := NewSizer(Config{FixedLot: 0.01, BaseDeviationPoints: 10}, &mockLogger{})
	require.NoError(t, err)

	sig := buySignal()
	sig.EntryMin, sig.EntryMax = 0, 0

	intent, err := s.Size(context.Background(), sig, ports.Quote{Bid: 2364, Ask: 2365}, testSpec(), 1000)
	require.NoError(t, err)
	assert.InDelta(t, 2365.0, intent.Price, 1e-9, "BUY without entry bounds trades at the ask")

	sig.Action = domain.Sell
	sig.StopLoss = 2375
	sig.TakeProfits = []float64{2350}
	intent, err = s.Size(context.Background(), sig, ports.Quote{Bid: 2364, Ask: 2365}, testSpec(), 1000)
	require.NoError(t, err)
	assert.InDelta(t, 2364.0, intent.Price, 1e-9, "SELL without entry bounds trades at the bid")
}

func TestSize_RiskSizing(t *testing.T) {
	s, err := NewSizer(Config{
		UseRiskSizing:       true,
		RiskFraction:        0.01,
		BaseDeviationPoints: 10,
	}, &mockLogger{})
	require.NoError(t, err)

	// Risk $100 over a $10 stop distance at contract size 100 -> 0.1 lots.
	intent, err := s.Size(context.Background(), buySignal(), ports.Quote{Bid: 2364, Ask: 2365}, testSpec(), 10000)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, intent.Volume, 1e-9)
}

func TestSize_VolumeRoundedDownToStep(t *testing.T) {
	s, err := NewSizer(Config{
		UseRiskSizing:       true,
		RiskFraction:        0.01,
		BaseDeviationPoints: 10,
	}, &mockLogger{})
	require.NoError(t, err)

	// 0.1234... lots must floor to the 0.01 step, never round up.
	intent, err := s.Size(context.Background(), buySignal(), ports.Quote{Bid: 2364, Ask: 2365}, testSpec(), 12345)
	require.NoError(t, err)
	assert.InDelta(t, 0.12, intent.Volume, 1e-9)
}

func TestSize_VolumeBelowMinimumFails(t *testing.T) {
	spec := testSpec()
	spec.MinVolume = 0.1

	s, err := NewSizer(Config{FixedLot: 0.01, BaseDeviationPoints: 10}, &mockLogger{})
	require.NoError(t, err)

	_, err = s.Size(context.Background(), buySignal(), ports.Quote{Bid: 2364, Ask: 2365}, spec, 1000)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrInvalidRequest))
}

func TestSize_StopTooCloseFails(t *testing.T) {
	spec := testSpec()
	spec.MinStopDistance = 50 // Stop distance in the test signal is 10.

	s, err := NewSizer(Config{FixedLot: 0.01, BaseDeviationPoints: 10}, &mockLogger{})
	require.NoError(t, err)

	_, err = s.Size(context.Background(), buySignal(), ports.Quote{Bid: 2364, Ask: 2365}, spec, 1000)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrStopsTooClose), "a too-close stop is an error, never clamped")
}

func TestSize_VolatilityDeviation(t *testing.T) {
	s, err := NewSizer(Config{
		FixedLot:             0.01,
		BaseDeviationPoints:  10,
		VolatilityMultiplier: 2.5,
		HighVolSymbols:       []string{"XAUUSD", "BTCUSD"},
	}, &mockLogger{})
	require.NoError(t, err)

	intent, err := s.Size(context.Background(), buySignal(), ports.Quote{Bid: 2364, Ask: 2365}, testSpec(), 1000)
	require.NoError(t, err)
	assert.Equal(t, 25, intent.Deviation)

	sig := buySignal()
	sig.Symbol = "EURUSD"
	intent, err = s.Size(context.Background(), sig, ports.Quote{Bid: 2364, Ask: 2365}, testSpec(), 1000)
	require.NoError(t, err)
	assert.Equal(t, 10, intent.Deviation)
}

func TestNewSizer_Validation(t *testing.T) {
	logger := &mockLogger{}

	_, err := NewSizer(Config{FixedLot: 0, BaseDeviationPoints: 10}, logger)
	require.Error(t, err)

	_, err = NewSizer(Config{UseRiskSizing: true, RiskFraction: 1.5, BaseDeviationPoints: 10}, logger)
	require.Error(t, err)

	_, err = NewSizer(Config{FixedLot: 0.01, BaseDeviationPoints: 0}, logger)
	require.Error(t, err)
}
