package tracker

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"signalTrader/internal/domain"
	"signalTrader/internal/ports"
)

// Config holds configuration for the position tracker.
type Config struct {
	// Interval between sweeps of the open-position set.
	Interval time.Duration
	// HistoryLookback bounds the deal-history query used to recover the
	// realized profit of a manually closed position.
	HistoryLookback time.Duration
}

// Tracker supervises open broker tickets. It owns the active-position set
// exclusively: the execution engine registers fills via Track, and only the
// tracker's sweep removes entries. The tracker reports closures; the broker's
// own resting SL/TP orders are the actual closers of positions.
type Tracker struct {
	cfg      Config
	logger   ports.Logger
	broker   ports.Broker
	notifier ports.Notifier

	mu     sync.Mutex
	active map[int64]domain.TrackedPosition
}

// New creates a new position tracker.
func New(cfg Config, logger ports.Logger, broker ports.Broker, notifier ports.Notifier) (*Tracker, error) {
	if logger == nil || broker == nil || notifier == nil {
		return nil, fmt.Errorf("missing required dependencies for tracker")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.HistoryLookback <= 0 {
		cfg.HistoryLookback = 7 * 24 * time.Hour
	}
	return &Tracker{
		cfg:      cfg,
		logger:   logger,
		broker:   broker,
		notifier: notifier,
		active:   make(map[int64]domain.TrackedPosition),
	}, nil
}

// Track registers a confirmed fill for supervision.
func (t *Tracker) Track(ctx context.Context, pos domain.TrackedPosition) {
	t.mu.Lock()
	t.active[pos.Ticket] = pos
	count := len(t.active)
	t.mu.Unlock()
	t.logger.Info(ctx, "Position added to tracking", map[string]interface{}{
		"ticket": pos.Ticket,
		"symbol": pos.Symbol,
		"side":   pos.Side,
		"active": count,
	})
}

// ActiveCount returns the number of positions currently supervised.
func (t *Tracker) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// Run drives Tick on the configured interval until the context is canceled.
func (t *Tracker) Run(ctx context.Context) {
	t.logger.Info(ctx, "Position tracker started", map[string]interface{}{"interval": t.cfg.Interval.String()})
	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			t.logger.Info(ctx, "Position tracker stopped")
			return
		case <-ticker.C:
			if err := t.Tick(ctx); err != nil {
				// A failed poll is retried on the next tick. Tracked
				// positions are never dropped on poll failure so real
				// exposure stays supervised.
				t.logger.Error(ctx, err, "Position sweep failed, will retry next tick")
			}
		}
	}
}

// Tick performs one sweep: polls open positions, detects TP/SL threshold
// crossings and manual closures, emits exactly one terminal event per ticket,
// and removes closed tickets from the active set.
func (t *Tracker) Tick(ctx context.Context) error {
	t.mu.Lock()
	if len(t.active) == 0 {
		t.mu.Unlock()
		return nil
	}
	tracked := make([]domain.TrackedPosition, 0, len(t.active))
	for _, pos := range t.active {
		tracked = append(tracked, pos)
	}
	t.mu.Unlock()

	open, err := t.broker.ListOpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list open positions: %w", err)
	}
	byTicket := make(map[int64]ports.BrokerPosition, len(open))
	for _, bp := range open {
		byTicket[bp.Ticket] = bp
	}

	for _, pos := range tracked {
		bp, stillOpen := byTicket[pos.Ticket]
		if !stillOpen {
			t.handleManualClosure(ctx, pos)
			continue
		}
		if reason, hit := checkThreshold(pos, bp.CurrentPrice); hit {
			t.closeAndNotify(ctx, pos, reason, bp.CurrentPrice, bp.Profit)
		}
	}
	return nil
}

// checkThreshold applies the direction-aware TP/SL comparison.
// BUY: TP hit if price >= tp, SL hit if price <= sl; SELL mirrored.
func checkThreshold(pos domain.TrackedPosition, price float64) (domain.CloseReason, bool) {
	if pos.Side == domain.Buy {
		if price >= pos.TakeProfit {
			return domain.CloseReasonTakeProfit, true
		}
		if price <= pos.StopLoss {
			return domain.CloseReasonStopLoss, true
		}
		return "", false
	}
	if price <= pos.TakeProfit {
		return domain.CloseReasonTakeProfit, true
	}
	if price >= pos.StopLoss {
		return domain.CloseReasonStopLoss, true
	}
	return "", false
}

func (t *Tracker) handleManualClosure(ctx context.Context, pos domain.TrackedPosition) {
	profit, err := t.realizedProfit(ctx, pos.Ticket)
	if err != nil {
		// A bad history lookup never blocks closure detection; report the
		// closure with unknown profit and continue the sweep.
		t.logger.Error(ctx, err, "Failed to fetch realized profit for closed ticket", map[string]interface{}{"ticket": pos.Ticket})
	}
	t.closeAndNotify(ctx, pos, domain.CloseReasonManual, 0, profit)
}

// closeAndNotify removes the ticket and emits its single terminal event.
// Removal happens before notification so a slow notifier cannot cause a
// second event for the same ticket.
func (t *Tracker) closeAndNotify(ctx context.Context, pos domain.TrackedPosition, reason domain.CloseReason, price, profit float64) {
	t.mu.Lock()
	_, present := t.active[pos.Ticket]
	delete(t.active, pos.Ticket)
	t.mu.Unlock()
	if !present {
		return
	}

	event := domain.PositionEvent{
		Position: pos,
		Reason:   reason,
		Price:    price,
		Profit:   profit,
		Duration: time.Since(pos.OpenedAt),
	}
	t.logger.Info(ctx, "Tracked position closed", map[string]interface{}{
		"ticket": pos.Ticket,
		"symbol": pos.Symbol,
		"reason": reason,
		"profit": profit,
	})
	message, title := formatEvent(event)
	t.notifier.Send(ctx, message, title)
}

// realizedProfit sums the history deals belonging to the ticket over the
// configured lookback window.
func (t *Tracker) realizedProfit(ctx context.Context, ticket int64) (float64, error) {
	now := time.Now().UTC()
	deals, err := t.broker.GetHistoricalDeals(ctx, now.Add(-t.cfg.HistoryLookback), now)
	if err != nil {
		return 0, err
	}
	var profit float64
	for _, d := range deals {
		if d.Ticket == ticket {
			profit += d.Profit
		}
	}
	return profit, nil
}

func formatEvent(ev domain.PositionEvent) (message, title string) {
	switch ev.Reason {
	case domain.CloseReasonTakeProfit:
		message = fmt.Sprintf("🎯 TP Hit on %s\nEntry: %.5g\nExit: %.5f\nProfit: $%.2f",
			ev.Position.Symbol, ev.Position.EntryPrice, ev.Price, ev.Profit)
		title = "✅ TP Hit"
	case domain.CloseReasonStopLoss:
		message = fmt.Sprintf("🛑 SL Hit on %s\nEntry: %.5g\nExit: %.5f\nLoss: $%.2f",
			ev.Position.Symbol, ev.Position.EntryPrice, ev.Price, math.Abs(ev.Profit))
		title = "❌ SL Hit"
	default:
		message = fmt.Sprintf("ℹ️ Trade Manually Closed\nSymbol: %s %s\nProfit/Loss: $%.2f\nDuration: %s",
			ev.Position.Symbol, ev.Position.Side, ev.Profit, ev.Duration.Round(time.Second))
		title = "ℹ️ Trade Closed"
	}
	return message, title
}
