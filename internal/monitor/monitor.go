package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"

	"signalTrader/internal/domain"
	"signalTrader/internal/execution"
	"signalTrader/internal/ports"
)

// Channel is one allow-listed signal source, loaded from configuration at
// startup. The mapping from channel id to Channel is immutable afterwards.
type Channel struct {
	Name       string
	Tier       string // Trust tier; "trusted" channels may enable full margin
	FullMargin bool
}

// SignalParser extracts a trade signal from raw message text.
type SignalParser interface {
	Parse(raw string) (*domain.ParsedSignal, error)
}

// Executor turns a parsed signal into broker orders.
type Executor interface {
	Execute(ctx context.Context, signal *domain.ParsedSignal, channel execution.ChannelContext) domain.ExecutionOutcome
}

// Config holds configuration for the channel monitor.
type Config struct {
	// Channels maps allow-listed source ids to their display metadata.
	Channels map[int64]Channel
	// ReconnectBaseDelay is the first reconnect delay after a stream drop.
	ReconnectBaseDelay time.Duration
	// ReconnectMaxDelay caps the exponential backoff.
	ReconnectMaxDelay time.Duration
	// MaxReconnectAttempts bounds consecutive failed reconnects before the
	// monitor enters its terminal FAILED state.
	MaxReconnectAttempts int
	// DedupWindow drops identical text from the same channel within this
	// window (signal channels frequently re-post the same message).
	DedupWindow time.Duration
}

// Monitor consumes the inbound message stream, filters by allow-listed
// source, hands text to the parser, and dispatches parsed signals to the
// execution engine. It owns reconnection to the message source.
type Monitor struct {
	cfg      Config
	logger   ports.Logger
	source   ports.MessageSource
	parser   SignalParser
	executor Executor
	notifier ports.Notifier
	audit    ports.AuditRepository

	// recent is owned by the message-consumption flow; the mutex covers the
	// async full-margin dispatch path.
	mu     sync.Mutex
	recent map[string]time.Time

	execCh chan execRequest
	wg     sync.WaitGroup
}

type execRequest struct {
	signal  *domain.ParsedSignal
	channel execution.ChannelContext
	record  *domain.AuditRecord
}

// New creates a new channel monitor.
func New(cfg Config, logger ports.Logger, source ports.MessageSource, parser SignalParser, executor Executor, notifier ports.Notifier, audit ports.AuditRepository) (*Monitor, error) {
	if logger == nil || source == nil || parser == nil || executor == nil || notifier == nil || audit == nil {
		return nil, fmt.Errorf("missing required dependencies for monitor")
	}
	if len(cfg.Channels) == 0 {
		return nil, fmt.Errorf("%w: no channels configured", ports.ErrConfigurationError)
	}
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = time.Second
	}
	if cfg.ReconnectMaxDelay <= 0 {
		cfg.ReconnectMaxDelay = 30 * time.Second
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = 10
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = 2 * time.Minute
	}
	return &Monitor{
		cfg:      cfg,
		logger:   logger,
		source:   source,
		parser:   parser,
		executor: executor,
		notifier: notifier,
		audit:    audit,
		recent:   make(map[string]time.Time),
		execCh:   make(chan execRequest, 64),
	}, nil
}

// Run consumes the message stream until the context is canceled or the
// reconnect attempt cap is exceeded. Exceeding the cap is terminal: the
// operator is notified and ErrReconnectLimitReached is returned — the
// monitor never retries forever silently.
func (m *Monitor) Run(ctx context.Context) error {
	op := "Run"

	// Standard-mode executions run on one worker so signals are executed in
	// arrival order. Full-margin loops are dispatched as their own units of
	// work so a burst of signals is not blocked behind them. The worker is
	// canceled on every Run exit path, including the terminal FAILED state.
	workerCtx, stopWorker := context.WithCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case <-workerCtx.Done():
				return
			case req := <-m.execCh:
				m.runExecution(workerCtx, req)
			}
		}
	}()
	defer m.wg.Wait()
	defer stopWorker()

	b := &backoff.Backoff{
		Min:    m.cfg.ReconnectBaseDelay,
		Max:    m.cfg.ReconnectMaxDelay,
		Factor: 2,
		Jitter: true,
	}
	attempts := 0
	for {
		connectedAt := time.Now()
		err := m.source.Start(ctx, m.handleMessage)
		if ctx.Err() != nil {
			m.logger.Info(ctx, op+": Context canceled, monitor shutting down")
			return nil
		}

		// A stream that stayed up past the backoff ceiling counts as a
		// recovered connection: reset the attempt budget.
		if time.Since(connectedAt) > m.cfg.ReconnectMaxDelay {
			attempts = 0
			b.Reset()
		}
		attempts++
		if attempts > m.cfg.MaxReconnectAttempts {
			m.logger.Error(ctx, err, op+": Reconnect attempt limit reached, entering FAILED state", map[string]interface{}{"attempts": attempts - 1})
			m.notifier.Send(ctx, fmt.Sprintf("Channel monitor FAILED: message source unreachable after %d reconnect attempts. Manual restart required.", m.cfg.MaxReconnectAttempts), "🚨 Monitor Failed")
			stopWorker()
			m.wg.Wait()
			m.drainPending(ctx)
			return fmt.Errorf("%w after %d attempts: %v", ports.ErrReconnectLimitReached, m.cfg.MaxReconnectAttempts, err)
		}

		delay := b.Duration()
		m.logger.Warn(ctx, op+": Message stream dropped, reconnecting", map[string]interface{}{
			"error":   fmt.Sprintf("%v", err),
			"attempt": attempts,
			"delay":   delay.String(),
		})
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil
		}
	}
}

// handleMessage processes one inbound message. It never blocks longer than
// the parse itself; execution is handed off. Every failure here is caught
// and logged — nothing may crash the consumption loop.
func (m *Monitor) handleMessage(msg ports.InboundMessage) {
	ctx := context.Background()

	ch, allowed := m.cfg.Channels[msg.ChannelID]
	if !allowed {
		m.logger.Debug(ctx, "Message from non-monitored channel dropped", map[string]interface{}{"channelID": msg.ChannelID})
		return
	}
	if m.isDuplicate(msg) {
		m.logger.Info(ctx, "Duplicate message dropped", map[string]interface{}{"channel": ch.Name})
		return
	}

	m.logger.Info(ctx, "Message received", map[string]interface{}{"channel": ch.Name, "length": len(msg.Text)})

	record := &domain.AuditRecord{
		ID:        uuid.NewString(),
		Channel:   ch.Name,
		RawText:   msg.Text,
		CreatedAt: time.Now().UTC(),
	}

	signal, err := m.parser.Parse(msg.Text)
	if err != nil {
		// Not a recognizable signal: dropped silently, no order attempted,
		// no operator notification.
		record.ParsedOK = false
		record.ParseReason = err.Error()
		m.logger.Debug(ctx, "Message rejected by parser", map[string]interface{}{"channel": ch.Name, "reason": err.Error()})
		m.appendAudit(ctx, record)
		return
	}
	record.ParsedOK = true
	record.Signal = signal

	req := execRequest{
		signal: signal,
		channel: execution.ChannelContext{
			ChannelID:  msg.ChannelID,
			Name:       ch.Name,
			FullMargin: ch.FullMargin,
		},
		record: record,
	}
	if ch.FullMargin {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.runExecution(ctx, req)
		}()
		return
	}
	m.execCh <- req
}

// runExecution drives one execution request end to end: execute, audit,
// notify. Outcomes are reported exactly once per signal.
func (m *Monitor) runExecution(ctx context.Context, req execRequest) {
	outcome := m.executor.Execute(ctx, req.signal, req.channel)
	req.record.Executed = true
	req.record.Outcome = &outcome
	m.appendAudit(ctx, req.record)

	summary := fmt.Sprintf("%s %s sl=%.5g tp=%.5g", req.signal.Action, req.signal.Symbol, req.signal.StopLoss, req.signal.TakeProfits[0])
	if outcome.Success {
		m.notifier.Send(ctx, fmt.Sprintf("Trade executed (%s): %s\n%s", req.channel.Name, summary, outcome.Reason), "✅ Trade Executed")
	} else {
		// Submission and connectivity failures are always surfaced to the
		// operator, unlike parse failures.
		m.notifier.Send(ctx, fmt.Sprintf("Trade FAILED (%s): %s\n%s", req.channel.Name, summary, outcome.Reason), "❌ Trade Failed")
	}
}

// drainPending audits execution requests still queued when the monitor dies,
// so every accepted message leaves an audit trail even if it never reached
// the execution engine.
func (m *Monitor) drainPending(ctx context.Context) {
	for {
		select {
		case req := <-m.execCh:
			req.record.Outcome = &domain.ExecutionOutcome{
				Success: false,
				Reason:  "not executed: monitor entered FAILED state before dispatch",
			}
			m.appendAudit(ctx, req.record)
		default:
			return
		}
	}
}

// isDuplicate records the message and reports whether the same text was seen
// from the same channel inside the dedup window.
func (m *Monitor) isDuplicate(msg ports.InboundMessage) bool {
	key := fmt.Sprintf("%d|%s", msg.ChannelID, msg.Text)
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	if seen, ok := m.recent[key]; ok && now.Sub(seen) < m.cfg.DedupWindow {
		return true
	}
	m.recent[key] = now
	// Drop expired entries so the map does not grow without bound.
	for k, at := range m.recent {
		if now.Sub(at) >= m.cfg.DedupWindow {
			delete(m.recent, k)
		}
	}
	return false
}

func (m *Monitor) appendAudit(ctx context.Context, rec *domain.AuditRecord) {
	if err := m.audit.Append(ctx, rec); err != nil {
		m.logger.Error(ctx, err, "Failed to append audit record", map[string]interface{}{"recordID": rec.ID})
	}
}
