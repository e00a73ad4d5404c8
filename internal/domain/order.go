package domain

// OrderIntent is one concrete broker submission derived from a ParsedSignal.
// It is created by the execution engine, submitted once, and never reused.
type OrderIntent struct {
	Symbol     string
	Side       OrderSide
	Volume     float64 // Lots, already clamped and rounded to the broker's step
	Price      float64 // Intended fill price
	StopLoss   float64
	TakeProfit float64
	Deviation  int    // Max tolerated slippage, in points
	Tag        string // Execution request id, echoed back for reconciliation
}

// ExecutionOutcome is the result of one execution attempt for a signal.
// It is used for notification and audit, never persisted as state.
type ExecutionOutcome struct {
	Success     bool
	Reason      string  // Human-readable summary
	Tickets     []int64 // Broker tickets for every accepted order, in order
	TotalVolume float64 // Sum of lots committed across all accepted orders
}

// TicketCount returns the number of orders that were accepted.
func (o ExecutionOutcome) TicketCount() int { return len(o.Tickets) }
