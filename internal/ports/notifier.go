package ports

import "context"

// Notifier delivers operator-facing event notifications. Delivery is
// best-effort: implementations log failures and never propagate them into
// the trading flow.
type Notifier interface {
	Send(ctx context.Context, message, title string)
}
