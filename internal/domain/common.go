package domain

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// Opposite returns the closing side for a position opened on this side.
func (s OrderSide) Opposite() OrderSide {
	if s == Buy {
		return Sell
	}
	return Buy
}

// CloseReason indicates why a tracked position left the active set.
type CloseReason string

const (
	CloseReasonTakeProfit CloseReason = "CLOSED_TP"
	CloseReasonStopLoss   CloseReason = "CLOSED_SL"
	CloseReasonManual     CloseReason = "CLOSED_MANUAL"
)

// FieldSource records which extraction path produced a parsed value.
// Used for audit only, never for execution decisions.
type FieldSource string

const (
	SourceExact     FieldSource = "exact"     // matched an explicit pattern
	SourceAlias     FieldSource = "alias"     // resolved through the symbol alias table
	SourceEstimated FieldSource = "estimated" // derived from other fields
)
