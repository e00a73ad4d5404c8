package parser

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalTrader/internal/domain"
)

// Mock implementations
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func newTestParser(t *testing.T, cfg Config) *Parser {
	t.Helper()
	p, err := New(cfg, &mockLogger{})
	require.NoError(t, err)
	return p
}

func TestParse_StrictMode(t *testing.T) {
	p := newTestParser(t, Config{Mode: ModeStrict})

	tests := []struct {
		name string
		raw  string
		want *domain.ParsedSignal
	}{
		{
			name: "entry range with two targets",
			raw:  "BUY XAUUSD Entry: 3372.48-3372.88 SL: 3371.53 TP1: 3373.62 TP2: 3375.12",
			want: &domain.ParsedSignal{
				Symbol:      "XAUUSD",
				Action:      domain.Buy,
				EntryMin:    3372.48,
				EntryMax:    3372.88,
				StopLoss:    3371.53,
				TakeProfits: []float64{3373.62, 3375.12},
			},
		},
		{
			name: "alias symbol with long-form keywords",
			raw:  "GOLD SELL @2365 Stop Loss: 2370 Take Profit: 2355",
			want: &domain.ParsedSignal{
				Symbol:      "XAUUSD",
				Action:      domain.Sell,
				EntryMin:    2365,
				EntryMax:    2365,
				StopLoss:    2370,
				TakeProfits: []float64{2355},
			},
		},
		{
			name: "en dash entry range",
			raw:  "BTCUSD LONG entry 64000–64200 sl 63500 tp 65000",
			want: &domain.ParsedSignal{
				Symbol:      "BTCUSD",
				Action:      domain.Buy,
				EntryMin:    64000,
				EntryMax:    64200,
				StopLoss:    63500,
				TakeProfits: []float64{65000},
			},
		},
		{
			name: "no entry price estimated between stop and target",
			raw:  "XAUUSD BUY SL 2345 TP 2360",
			want: &domain.ParsedSignal{
				Symbol:      "XAUUSD",
				Action:      domain.Buy,
				EntryMin:    2346.5,
				EntryMax:    2346.5,
				StopLoss:    2345,
				TakeProfits: []float64{2360},
			},
		},
		{
			name: "sell targets reordered nearest first",
			raw:  "SELL EURUSD @1.0850 SL 1.0900 TP1 1.0750 TP2 1.0800",
			want: &domain.ParsedSignal{
				Symbol:      "EURUSD",
				Action:      domain.Sell,
				EntryMin:    1.0850,
				EntryMax:    1.0850,
				StopLoss:    1.0900,
				TakeProfits: []float64{1.0800, 1.0750},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Parse(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want.Symbol, got.Symbol)
			assert.Equal(t, tt.want.Action, got.Action)
			assert.InDelta(t, tt.want.EntryMin, got.EntryMin, 1e-9)
			assert.InDelta(t, tt.want.EntryMax, got.EntryMax, 1e-9)
			assert.InDelta(t, tt.want.StopLoss, got.StopLoss, 1e-9)
			assert.Equal(t, tt.want.TakeProfits, got.TakeProfits)
			assert.Equal(t, tt.raw, got.RawText)
		})
	}
}

func TestParse_Failures(t *testing.T) {
	p := newTestParser(t, Config{Mode: ModeStrict})

	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty message", raw: ""},
		{name: "plain chatter", raw: "Good morning traders, big week ahead!"},
		{name: "no action keyword", raw: "XAUUSD Entry: 2365 SL: 2360 TP: 2370"},
		{name: "no instrument", raw: "BUY NOW @100 SL 95 TP 110"},
		{name: "no take profit", raw: "BUY XAUUSD @2365 SL 2360"},
		{name: "missing stop in strict mode", raw: "BUY XAUUSD @2365 TP 2370"},
		{name: "inverted ordering rejected", raw: "BUY XAUUSD @2340 SL 2345 TP 2360"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Parse(tt.raw)
			require.Error(t, err)
			assert.Nil(t, got)
			var pe *ParseError
			assert.True(t, errors.As(err, &pe), "expected a *ParseError, got %T", err)
		})
	}
}

func TestParse_EstimateMode(t *testing.T) {
	p := newTestParser(t, Config{Mode: ModeEstimate, EstimateStopOffset: 5})

	t.Run("missing stop estimated below entry for BUY", func(t *testing.T) {
		got, err := p.Parse("BUY XAUUSD @2345 TP 2350")
		require.NoError(t, err)
		assert.InDelta(t, 2340.0, got.StopLoss, 1e-9)
		assert.Equal(t, domain.SourceEstimated, got.StopSource)
	})

	t.Run("missing stop estimated above entry for SELL", func(t *testing.T) {
		got, err := p.Parse("SELL XAUUSD @2345 TP 2340")
		require.NoError(t, err)
		assert.InDelta(t, 2350.0, got.StopLoss, 1e-9)
		assert.Equal(t, domain.SourceEstimated, got.StopSource)
	})

	t.Run("no stop and no entry still fails", func(t *testing.T) {
		_, err := p.Parse("BUY XAUUSD TP 2350")
		require.Error(t, err)
	})
}

func TestParse_FallbackSymbol(t *testing.T) {
	p := newTestParser(t, Config{
		Mode:           ModeStrict,
		FallbackSymbol: "gold",
		FamilyHints:    []string{"oz"},
	})

	got, err := p.Parse("BUY 1 OZ @2345 SL 2340 TP 2350")
	require.NoError(t, err)
	assert.Equal(t, "XAUUSD", got.Symbol)
	assert.Equal(t, domain.SourceEstimated, got.SymbolSource)

	// Without the hint the fallback must not fire.
	_, err = p.Parse("BUY SOMETHING @2345 SL 2340 TP 2350")
	require.Error(t, err)
}

func TestParse_FieldProvenance(t *testing.T) {
	p := newTestParser(t, Config{Mode: ModeStrict})

	got, err := p.Parse("GOLD SELL @2365 Stop Loss: 2370 Take Profit: 2355")
	require.NoError(t, err)
	assert.Equal(t, domain.SourceAlias, got.SymbolSource)
	assert.Equal(t, domain.SourceExact, got.EntrySource)
	assert.Equal(t, domain.SourceExact, got.StopSource)

	got, err = p.Parse("XAUUSD BUY SL 2345 TP 2360")
	require.NoError(t, err)
	assert.Equal(t, domain.SourceExact, got.SymbolSource)
	assert.Equal(t, domain.SourceEstimated, got.EntrySource)
}

func TestParse_ColonlessFields(t *testing.T) {
	p := newTestParser(t, Config{Mode: ModeStrict})

	// A bare keyword followed by a space must capture the whole price, not
	// treat its leading digits as a level index.
	got, err := p.Parse("BUY XAUUSD @2365 SL 2360 TP1 2370 TP2 2375")
	require.NoError(t, err)
	assert.InDelta(t, 2360.0, got.StopLoss, 1e-9)
	assert.Equal(t, []float64{2370, 2375}, got.TakeProfits)

	got, err = p.Parse("SELL GOLD @2365 tp 2355 sl 2372")
	require.NoError(t, err)
	assert.InDelta(t, 2372.0, got.StopLoss, 1e-9)
	assert.Equal(t, []float64{2355}, got.TakeProfits)
}

func TestParse_StopLossRangeIsNotEntry(t *testing.T) {
	p := newTestParser(t, Config{Mode: ModeStrict})

	got, err := p.Parse("BUY XAUUSD STOP LOSS: 2360-2362 TP 2375")
	require.NoError(t, err)
	assert.InDelta(t, 2360.0, got.StopLoss, 1e-9)
	assert.Equal(t, domain.SourceEstimated, got.EntrySource, "a stop-loss range must not be taken as the entry range")
	assert.InDelta(t, 2361.5, got.Entry(), 1e-9)
}

func TestParse_TakeProfitCap(t *testing.T) {
	p := newTestParser(t, Config{Mode: ModeStrict})

	got, err := p.Parse("BUY XAUUSD @2365 SL 2360 TP1 2370 TP2 2375 TP3 2380 TP4 2390")
	require.NoError(t, err)
	assert.Equal(t, []float64{2370, 2375}, got.TakeProfits)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Mode: "aggressive"}, &mockLogger{})
	require.Error(t, err)

	_, err = New(Config{Mode: ModeEstimate}, &mockLogger{})
	require.Error(t, err, "estimate mode requires a positive stop offset")

	p, err := New(Config{}, &mockLogger{})
	require.NoError(t, err)
	assert.Equal(t, ModeStrict, p.cfg.Mode)
}
