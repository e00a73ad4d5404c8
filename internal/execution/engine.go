package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"signalTrader/internal/domain"
	"signalTrader/internal/ports"
)

// ChannelContext describes the signal's source as resolved by the channel
// monitor. The trust tier of the channel decides whether full-margin mode
// applies to its signals.
type ChannelContext struct {
	ChannelID  int64
	Name       string
	FullMargin bool
}

// OrderSizer computes a submittable OrderIntent for a signal.
type OrderSizer interface {
	Size(ctx context.Context, signal *domain.ParsedSignal, quote ports.Quote, spec ports.SymbolSpec, equity float64) (*domain.OrderIntent, error)
}

// PositionRegistry receives confirmed fills for supervision.
type PositionRegistry interface {
	Track(ctx context.Context, pos domain.TrackedPosition)
}

// Config holds configuration for the execution engine.
type Config struct {
	// FullMarginMaxOrders bounds the number of orders one signal may produce
	// in full-margin mode, regardless of how much margin remains.
	FullMarginMaxOrders int
	// VerifyDelay is the single short delay before polling the broker to
	// confirm a submitted order actually produced an open position.
	VerifyDelay time.Duration
}

// Engine turns a parsed signal into one (standard mode) or several
// (full-margin mode) broker orders. Every state is terminal after one pass:
// there is no retry-with-backoff inside a single execution call, because
// submission retries risk duplicate fills. Connectivity retries belong to
// the monitor layer.
type Engine struct {
	cfg      Config
	logger   ports.Logger
	broker   ports.Broker
	sizer    OrderSizer
	registry PositionRegistry
}

// New creates a new execution engine.
func New(cfg Config, logger ports.Logger, broker ports.Broker, sizer OrderSizer, registry PositionRegistry) (*Engine, error) {
	if logger == nil || broker == nil || sizer == nil || registry == nil {
		return nil, fmt.Errorf("missing required dependencies for execution engine")
	}
	if cfg.FullMarginMaxOrders <= 0 {
		return nil, fmt.Errorf("%w: FullMarginMaxOrders must be positive", ports.ErrConfigurationError)
	}
	if cfg.VerifyDelay <= 0 {
		cfg.VerifyDelay = 2 * time.Second
	}
	return &Engine{cfg: cfg, logger: logger, broker: broker, sizer: sizer, registry: registry}, nil
}

// Execute runs the VALIDATE -> SIZE -> SUBMIT -> VERIFY state machine for one
// signal and reports a structured outcome. The outcome is reported exactly
// once per signal; failures are returned, never raised.
func (e *Engine) Execute(ctx context.Context, signal *domain.ParsedSignal, channel ChannelContext) domain.ExecutionOutcome {
	op := "Execute"
	requestID := uuid.NewString()

	// VALIDATE: connectivity and symbol tradability.
	if !e.broker.IsConnected() {
		if err := e.broker.Connect(ctx); err != nil {
			e.logger.Error(ctx, err, op+": Broker unreachable", map[string]interface{}{"requestID": requestID})
			return failure("broker unreachable: " + err.Error())
		}
	}
	spec, err := e.broker.GetSymbolSpec(ctx, signal.Symbol)
	if err != nil {
		e.logger.Error(ctx, err, op+": Symbol not tradable", map[string]interface{}{"symbol": signal.Symbol, "requestID": requestID})
		return failure(fmt.Sprintf("symbol %s not tradable: %v", signal.Symbol, err))
	}
	quote, err := e.broker.GetQuote(ctx, signal.Symbol)
	if err != nil {
		e.logger.Error(ctx, err, op+": Quote lookup failed", map[string]interface{}{"symbol": signal.Symbol, "requestID": requestID})
		return failure("quote lookup failed: " + err.Error())
	}
	equity, err := e.broker.AccountBalance(ctx)
	if err != nil {
		e.logger.Error(ctx, err, op+": Balance lookup failed", map[string]interface{}{"requestID": requestID})
		return failure("balance lookup failed: " + err.Error())
	}

	// SIZE.
	intent, err := e.sizer.Size(ctx, signal, quote, spec, equity)
	if err != nil {
		e.logger.Error(ctx, err, op+": Sizing failed", map[string]interface{}{"symbol": signal.Symbol, "requestID": requestID})
		return failure("sizing failed: " + err.Error())
	}
	intent.Tag = requestID

	e.logger.Info(ctx, op+": Submitting signal", map[string]interface{}{
		"requestID":  requestID,
		"symbol":     intent.Symbol,
		"side":       intent.Side,
		"volume":     intent.Volume,
		"channel":    channel.Name,
		"fullMargin": channel.FullMargin,
	})

	if channel.FullMargin {
		return e.submitFullMargin(ctx, channel, *intent)
	}
	return e.submitStandard(ctx, channel, *intent)
}

// submitStandard submits exactly one order and verifies the resulting
// position exists.
func (e *Engine) submitStandard(ctx context.Context, channel ChannelContext, intent domain.OrderIntent) domain.ExecutionOutcome {
	ticket, reason, ok := e.submitAndVerify(ctx, channel, intent)
	if !ok {
		return failure(reason)
	}
	return domain.ExecutionOutcome{
		Success:     true,
		Reason:      fmt.Sprintf("order filled, ticket %d", ticket),
		Tickets:     []int64{ticket},
		TotalVolume: intent.Volume,
	}
}

// submitFullMargin repeatedly submits identical-lot orders while the
// projected margin for one more stays within free balance. It stops on the
// first submission failure, insufficient margin, or the configured order
// cap. Partial success is overall success.
func (e *Engine) submitFullMargin(ctx context.Context, channel ChannelContext, intent domain.OrderIntent) domain.ExecutionOutcome {
	op := "submitFullMargin"
	var tickets []int64
	var totalVolume float64
	stopReason := fmt.Sprintf("order cap reached (%d)", e.cfg.FullMarginMaxOrders)

	for i := 0; i < e.cfg.FullMarginMaxOrders; i++ {
		needed, err := e.broker.MarginRequired(ctx, intent.Symbol, intent.Volume)
		if err != nil {
			stopReason = "margin query failed: " + err.Error()
			break
		}
		free, err := e.broker.AccountBalance(ctx)
		if err != nil {
			stopReason = "balance query failed: " + err.Error()
			break
		}
		if needed > free {
			stopReason = fmt.Sprintf("insufficient margin (need %.2f, free %.2f)", needed, free)
			break
		}

		ticket, reason, ok := e.submitAndVerify(ctx, channel, intent)
		if !ok {
			stopReason = reason
			break
		}
		tickets = append(tickets, ticket)
		totalVolume += intent.Volume
	}

	if len(tickets) == 0 {
		e.logger.Warn(ctx, op+": No orders filled", map[string]interface{}{"symbol": intent.Symbol, "reason": stopReason})
		return failure("full-margin submission filled no orders: " + stopReason)
	}
	e.logger.Info(ctx, op+": Finished", map[string]interface{}{
		"symbol":  intent.Symbol,
		"orders":  len(tickets),
		"volume":  totalVolume,
		"stopped": stopReason,
	})
	return domain.ExecutionOutcome{
		Success:     true,
		Reason:      fmt.Sprintf("%d orders filled (stopped: %s), last ticket %d", len(tickets), stopReason, tickets[len(tickets)-1]),
		Tickets:     tickets,
		TotalVolume: totalVolume,
	}
}

// submitAndVerify performs one SUBMIT -> VERIFY transition: submit the order,
// wait one short delay, and confirm the broker reports an open position for
// the ticket. A verified fill is registered with the position tracker.
func (e *Engine) submitAndVerify(ctx context.Context, channel ChannelContext, intent domain.OrderIntent) (ticket int64, failReason string, ok bool) {
	op := "submitAndVerify"

	result, err := e.broker.SubmitOrder(ctx, intent)
	if err != nil {
		e.logger.Error(ctx, err, op+": Submission error", map[string]interface{}{"symbol": intent.Symbol})
		return 0, "submission error: " + err.Error(), false
	}
	if !result.Accepted {
		e.logger.Warn(ctx, op+": Order rejected by broker", map[string]interface{}{"symbol": intent.Symbol, "reason": result.Reason})
		return 0, "order rejected: " + result.Reason, false
	}

	select {
	case <-time.After(e.cfg.VerifyDelay):
	case <-ctx.Done():
		return 0, "canceled during verification: " + ctx.Err().Error(), false
	}

	open, err := e.broker.ListOpenPositions(ctx)
	if err != nil {
		// Accepted but unverifiable: treated as failure, not silently
		// ignored, since it indicates broker/client state divergence.
		e.logger.Error(ctx, err, op+": Verification poll failed", map[string]interface{}{"ticket": result.Ticket})
		return 0, fmt.Sprintf("verification poll failed for ticket %d: %v", result.Ticket, err), false
	}
	var found *ports.BrokerPosition
	for i := range open {
		if open[i].Ticket == result.Ticket {
			found = &open[i]
			break
		}
	}
	if found == nil {
		e.logger.Error(ctx, ports.ErrVerificationFailed, op+": No position for accepted order", map[string]interface{}{"ticket": result.Ticket})
		return 0, fmt.Sprintf("no open position found for accepted ticket %d", result.Ticket), false
	}

	entryPrice := found.EntryPrice
	if entryPrice == 0 {
		entryPrice = intent.Price
	}
	e.registry.Track(ctx, domain.TrackedPosition{
		Ticket:     result.Ticket,
		Symbol:     intent.Symbol,
		Side:       intent.Side,
		StopLoss:   intent.StopLoss,
		TakeProfit: intent.TakeProfit,
		Volume:     intent.Volume,
		EntryPrice: entryPrice,
		OpenedAt:   time.Now().UTC(),
		Channel:    channel.Name,
	})
	e.logger.Info(ctx, op+": Order filled and verified", map[string]interface{}{
		"ticket": result.Ticket,
		"symbol": intent.Symbol,
		"volume": intent.Volume,
	})
	return result.Ticket, "", true
}

func failure(reason string) domain.ExecutionOutcome {
	return domain.ExecutionOutcome{Success: false, Reason: reason}
}
