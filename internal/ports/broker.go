package ports

import (
	"context"
	"time"

	"signalTrader/internal/domain"
)

// Quote is the current top-of-book for a symbol.
type Quote struct {
	Bid float64
	Ask float64
}

// SymbolSpec carries the broker-mandated trading constraints for a symbol.
type SymbolSpec struct {
	Symbol          string
	Point           float64 // Smallest price increment (e.g. 0.01 for XAUUSD)
	ContractSize    float64 // Units of the base instrument per 1.0 lot
	MinVolume       float64 // Smallest tradable lot
	MaxVolume       float64 // Largest tradable lot
	VolumeStep      float64 // Lot granularity
	MinStopDistance float64 // Minimum distance between price and SL/TP, in price units
}

// OrderResult is the broker's answer to one order submission.
type OrderResult struct {
	Accepted bool
	Ticket   int64  // Broker ticket when accepted
	Reason   string // Broker-side rejection reason when not accepted
}

// Deal is one entry from the broker's historical deal list.
type Deal struct {
	Ticket   int64 // Ticket of the position this deal belongs to
	Symbol   string
	Profit   float64
	ClosedAt time.Time
}

// BrokerPosition is an open-position record as reported by the broker.
type BrokerPosition struct {
	Ticket       int64
	Symbol       string
	Side         domain.OrderSide
	Volume       float64
	EntryPrice   float64
	CurrentPrice float64
	Profit       float64 // Unrealized profit
}

// Broker defines the interface for the single trading account shared by the
// execution engine and the position tracker. Implementations must be safe for
// use from multiple goroutines; the underlying connection is treated as a
// serialized resource.
type Broker interface {
	// Connect establishes the session. Safe to call again after a drop.
	Connect(ctx context.Context) error

	// IsConnected reports the last known session state without a round-trip.
	IsConnected() bool

	// Ping checks connectivity to the broker API.
	Ping(ctx context.Context) error

	// GetQuote retrieves the current bid/ask for a symbol.
	GetQuote(ctx context.Context, symbol string) (Quote, error)

	// GetSymbolSpec retrieves trading constraints for a symbol, selecting the
	// symbol for trading if the broker requires it.
	// Returns ErrSymbolNotTradable when the symbol cannot be traded.
	GetSymbolSpec(ctx context.Context, symbol string) (SymbolSpec, error)

	// SubmitOrder submits a single order with attached SL/TP levels.
	// A rejection is reported through OrderResult, not through the error.
	SubmitOrder(ctx context.Context, intent domain.OrderIntent) (OrderResult, error)

	// ListOpenPositions retrieves all currently open positions on the account.
	ListOpenPositions(ctx context.Context) ([]BrokerPosition, error)

	// GetHistoricalDeals retrieves closed deals in the given time window.
	GetHistoricalDeals(ctx context.Context, from, to time.Time) ([]Deal, error)

	// AccountBalance retrieves the free account balance.
	AccountBalance(ctx context.Context) (float64, error)

	// MarginRequired estimates the margin needed to open volume lots of symbol.
	MarginRequired(ctx context.Context, symbol string, volume float64) (float64, error)
}
