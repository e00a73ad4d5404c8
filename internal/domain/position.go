package domain

import "time"

// TrackedPosition is a broker ticket under active supervision by the
// position tracker. It is created when the execution engine confirms a fill
// and destroyed when any closure is detected. Terminal states are final; a
// ticket removed from the active set is never reinstated.
type TrackedPosition struct {
	Ticket     int64 // Broker-assigned id, unique
	Symbol     string
	Side       OrderSide
	StopLoss   float64
	TakeProfit float64
	Volume     float64
	EntryPrice float64
	OpenedAt   time.Time
	Channel    string // Display name of the originating channel
}

// PositionEvent is emitted by the tracker when a tracked position reaches a
// terminal state.
type PositionEvent struct {
	Position TrackedPosition
	Reason   CloseReason
	Price    float64 // Price observed at detection (0 for manual closes)
	Profit   float64 // Realized profit where known
	Duration time.Duration
}
