package execution

import (
	"context"
	"errors"
	"testing"
	"time"

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

type mockBroker struct {
	connected    bool
	connectErr   error
	specErr      error
	quoteErr     error
	balance      float64
	balanceErr   error
	margin       float64
	marginErr    error
	submitErr    error
	rejectReason string // When set, submissions are rejected
	listErr      error
	verifyMisses bool // When set, accepted tickets never appear as open

	nextTicket  int64
	submitted   []domain.OrderIntent
	openTickets []int64
}

func (m *mockBroker) Connect(ctx context.Context) error {
	if m.connectErr != nil {
		return m.connectErr
	}
	m.connected = true
	return nil
}

func (m *mockBroker) IsConnected() bool { return m.connected }
func (m *mockBroker) Ping(ctx context.Context) error { return nil }

func (m *mockBroker) GetQuote(ctx context.Context, symbol string) (ports.Quote, error) {
	if m.quoteErr != nil {
		return ports.Quote{}, m.quoteErr
	}
	return ports.Quote{Bid: 2364, Ask: 2365}, nil
}

func (m *mockBroker) GetSymbolSpec(ctx context.Context, symbol string) (ports.SymbolSpec, error) {
	if m.specErr != nil {
		return ports.SymbolSpec{}, m.specErr
	}
	return ports.SymbolSpec{Symbol: symbol, ContractSize: 100, MinVolume: 0.01, MaxVolume: 50, VolumeStep: 0.01}, nil
}

func (m *mockBroker) SubmitOrder(ctx context.Context, intent domain.OrderIntent) (ports.OrderResult, error) {
	if m.submitErr != nil {
		return ports.OrderResult{}, m.submitErr
	}
	if m.rejectReason != "" {
		return ports.OrderResult{Accepted: false, Reason: m.rejectReason}, nil
	}
	m.nextTicket++
	m.submitted = append(m.submitted, intent)
	if !m.verifyMisses {
		m.openTickets = append(m.openTickets, m.nextTicket)
	}
	return ports.OrderResult{Accepted: true, Ticket: m.nextTicket}, nil
}

func (m *mockBroker) ListOpenPositions(ctx context.Context) ([]ports.BrokerPosition, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]ports.BrokerPosition, 0, len(m.openTickets))
	for _, ticket := range m.openTickets {
		out = append(out, ports.BrokerPosition{Ticket: ticket, Symbol: "XAUUSD", EntryPrice: 2365})
	}
	return out, nil
}

func (m *mockBroker) GetHistoricalDeals(ctx context.Context, from, to time.Time) ([]ports.Deal, error) {
	return nil, nil
}

func (m *mockBroker) AccountBalance(ctx context.Context) (float64, error) {
	return m.balance, m.balanceErr
}

func (m *mockBroker) MarginRequired(ctx context.Context, symbol string, volume float64) (float64, error) {
	return m.margin, m.marginErr
}

type mockSizer struct {
	err    error
	volume float64
}

func (m *mockSizer) Size(ctx context.Context, signal *domain.ParsedSignal, quote ports.Quote, spec ports.SymbolSpec, equity float64) (*domain.OrderIntent, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &domain.OrderIntent{
		Symbol:     signal.Symbol,
		Side:       signal.Action,
		Volume:     m.volume,
		Price:      signal.Entry(),
		StopLoss:   signal.StopLoss,
		TakeProfit: signal.TakeProfits[0],
	}, nil
}

type mockRegistry struct {
	tracked []domain.TrackedPosition
}

func (m *mockRegistry) Track(ctx context.Context, pos domain.TrackedPosition) {
	m.tracked = append(m.tracked, pos)
}

func testSignal() *domain.ParsedSignal {
	return &domain.ParsedSignal{
		Symbol:      "XAUUSD",
		Action:      domain.Buy,
		EntryMin:    2365,
		EntryMax:    2365,
		StopLoss:    2360,
		TakeProfits: []float64{2375},
	}
}

func newTestEngine(t *testing.T, broker *mockBroker, sizer *mockSizer, registry *mockRegistry, maxOrders int) *Engine {
	t.Helper()
	e, err := New(Config{FullMarginMaxOrders: maxOrders, VerifyDelay: time.Millisecond}, &mockLogger{}, broker, sizer, registry)
	require.NoError(t, err)
	return e
}

func TestExecute_StandardSuccess(t *testing.T) {
	broker := &mockBroker{connected: true, balance: 1000, margin: 10}
	registry := &mockRegistry{}
	e := newTestEngine(t, broker, &mockSizer{volume: 0.01}, registry, 10)

	outcome := e.Execute(context.Background(), testSignal(), ChannelContext{Name: "GoldSignals"})

	assert.True(t, outcome.Success)
	assert.Equal(t, []int64{1}, outcome.Tickets)
	assert.InDelta(t, 0.01, outcome.TotalVolume, 1e-9)
	require.Len(t, registry.tracked, 1)
	assert.Equal(t, int64(1), registry.tracked[0].Ticket)
	assert.Equal(t, "GoldSignals", registry.tracked[0].Channel)
}

func TestExecute_BrokerRejection(t *testing.T) {
	broker := &mockBroker{connected: true, balance: 1000, rejectReason: "market closed"}
	registry := &mockRegistry{}
	e := newTestEngine(t, broker, &mockSizer{volume: 0.01}, registry, 10)

	outcome := e.Execute(context.Background(), testSignal(), ChannelContext{Name: "GoldSignals"})

	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Reason, "market closed")
	assert.Empty(t, outcome.Tickets)
	assert.Empty(t, registry.tracked, "rejected orders are never tracked")
}

func TestExecute_VerificationFailure(t *testing.T) {
	broker := &mockBroker{connected: true, balance: 1000, verifyMisses: true}
	registry := &mockRegistry{}
	e := newTestEngine(t, broker, &mockSizer{volume: 0.01}, registry, 10)

	outcome := e.Execute(context.Background(), testSignal(), ChannelContext{Name: "GoldSignals"})

	assert.False(t, outcome.Success, "an accepted but unverifiable order is a failure")
	assert.Contains(t, outcome.Reason, "no open position found")
	assert.Empty(t, registry.tracked)
}

func TestExecute_SizingFailure(t *testing.T) {
	broker := &mockBroker{connected: true, balance: 1000}
	e := newTestEngine(t, broker, &mockSizer{err: errors.New("volume below minimum")}, &mockRegistry{}, 10)

	outcome := e.Execute(context.Background(), testSignal(), ChannelContext{})

	assert.False(t, outcome.Success)
	assert.Empty(t, broker.submitted, "nothing may be submitted after a sizing failure")
}

func TestExecute_SymbolNotTradable(t *testing.T) {
	broker := &mockBroker{connected: true, specErr: ports.ErrSymbolNotTradable}
	e := newTestEngine(t, broker, &mockSizer{volume: 0.01}, &mockRegistry{}, 10)

	outcome := e.Execute(context.Background(), testSignal(), ChannelContext{})

	assert.False(t, outcome.Success)
	assert.Empty(t, broker.submitted)
}

func TestExecute_FullMargin_CapNeverExceeded(t *testing.T) {
	// Margin never runs out: the iteration cap must stop the loop.
	broker := &mockBroker{connected: true, balance: 1e9, margin: 10}
	registry := &mockRegistry{}
	e := newTestEngine(t, broker, &mockSizer{volume: 0.01}, registry, 3)

	outcome := e.Execute(context.Background(), testSignal(), ChannelContext{Name: "GoldSignals", FullMargin: true})

	assert.True(t, outcome.Success)
	assert.Len(t, outcome.Tickets, 3)
	assert.Len(t, broker.submitted, 3)
	assert.Len(t, registry.tracked, 3)
	assert.InDelta(t, 0.03, outcome.TotalVolume, 1e-9)
}

func TestExecute_FullMargin_StopsOnInsufficientMargin(t *testing.T) {
	// Free balance covers exactly two orders and shrinks as they fill.
	orders := 0
	broker := &marginDrainBroker{
		mockBroker:   &mockBroker{connected: true, balance: 25, margin: 10},
		perOrder:     10,
		ordersFilled: &orders,
	}
	registry := &mockRegistry{}
	e, err := New(Config{FullMarginMaxOrders: 10, VerifyDelay: time.Millisecond}, &mockLogger{}, broker, &mockSizer{volume: 0.01}, registry)
	require.NoError(t, err)

	outcome := e.Execute(context.Background(), testSignal(), ChannelContext{FullMargin: true})

	assert.True(t, outcome.Success, "partial fill is overall success")
	assert.Len(t, outcome.Tickets, 2)
	assert.Contains(t, outcome.Reason, "insufficient margin")
}

// marginDrainBroker decrements free balance as orders fill so the margin
// pre-check eventually fails.
type marginDrainBroker struct {
	*mockBroker
	perOrder     float64
	ordersFilled *int
}

func (m *marginDrainBroker) AccountBalance(ctx context.Context) (float64, error) {
	return m.balance - float64(*m.ordersFilled)*m.perOrder, nil
}

func (m *marginDrainBroker) SubmitOrder(ctx context.Context, intent domain.OrderIntent) (ports.OrderResult, error) {
	res, err := m.mockBroker.SubmitOrder(ctx, intent)
	if err == nil && res.Accepted {
		*m.ordersFilled++
	}
	return res, err
}

func TestExecute_FullMargin_FirstRejectionIsFailure(t *testing.T) {
	broker := &mockBroker{connected: true, balance: 1000, margin: 10, rejectReason: "insufficient funds"}
	registry := &mockRegistry{}
	e := newTestEngine(t, broker, &mockSizer{volume: 0.01}, registry, 10)

	outcome := e.Execute(context.Background(), testSignal(), ChannelContext{FullMargin: true})

	assert.False(t, outcome.Success, "zero filled orders is overall failure")
	assert.Empty(t, outcome.Tickets)
	assert.Empty(t, registry.tracked)
}

func TestExecute_ConnectsWhenDisconnected(t *testing.T) {
	broker := &mockBroker{connected: false, balance: 1000}
	e := newTestEngine(t, broker, &mockSizer{volume: 0.01}, &mockRegistry{}, 10)

	outcome := e.Execute(context.Background(), testSignal(), ChannelContext{})

	assert.True(t, outcome.Success)
	assert.True(t, broker.connected)
}

func TestExecute_UnreachableBrokerIsFailure(t *testing.T) {
	broker := &mockBroker{connected: false, connectErr: ports.ErrBrokerUnavailable}
	e := newTestEngine(t, broker, &mockSizer{volume: 0.01}, &mockRegistry{}, 10)

	outcome := e.Execute(context.Background(), testSignal(), ChannelContext{})

	assert.False(t, outcome.Success)
	assert.Empty(t, broker.submitted)
}

func TestNew_Validation(t *testing.T) {
	broker := &mockBroker{}
	_, err := New(Config{FullMarginMaxOrders: 0}, &mockLogger{}, broker, &mockSizer{}, &mockRegistry{})
	require.Error(t, err, "the full-margin order cap is mandatory")

	_, err = New(Config{FullMarginMaxOrders: 5}, nil, broker, &mockSizer{}, &mockRegistry{})
	require.Error(t, err)
}
