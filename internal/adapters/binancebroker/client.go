package binancebroker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"signalTrader/internal/domain"
	"signalTrader/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"
)

// Client implements the ports.Broker interface on Binance USD-M futures.
//
// Binance aggregates exposure into one position per symbol, while the core
// model supervises individual tickets. The client bridges the two: every
// accepted entry order becomes a ticket, remembered together with its
// protective SL/TP order ids, and open-position queries report a ticket as
// open while its symbol still carries aggregate exposure.
type Client struct {
	futuresClient *futures.Client
	logger        ports.Logger
	marginAsset   string
	leverage      int

	mu            sync.Mutex
	connected     bool
	specs         map[string]ports.SymbolSpec // Symbols already selected and configured
	openTickets   map[int64]*ticketInfo
	closedTickets map[int64]*ticketInfo
}

type ticketInfo struct {
	symbol     string
	side       domain.OrderSide
	volume     float64
	entryPrice float64
	slOrderID  int64
	tpOrderID  int64
	closedAt   time.Time
}

// Config holds configuration specific to the Binance broker adapter.
type Config struct {
	APIKey      string
	SecretKey   string
	UseTestnet  bool
	Logger      ports.Logger
	MarginAsset string // Asset balances are reported in (default "USDT")
	Leverage    int    // Leverage applied to each traded symbol (default 1)
}

// New creates a new Binance broker adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance broker")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("%w: APIKey and SecretKey are required", ports.ErrConfigurationError)
	}
	if cfg.MarginAsset == "" {
		cfg.MarginAsset = "USDT"
	}
	if cfg.Leverage <= 0 {
		cfg.Leverage = 1
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
		cfg.Logger.Info(context.Background(), "Binance broker configured for Testnet", map[string]interface{}{"baseURL": client.BaseURL})
	} else {
		client.BaseURL = baseURLProduction
		cfg.Logger.Info(context.Background(), "Binance broker configured for Production", map[string]interface{}{"baseURL": client.BaseURL})
	}

	return &Client{
		futuresClient: client,
		logger:        cfg.Logger,
		marginAsset:   cfg.MarginAsset,
		leverage:      cfg.Leverage,
		specs:         make(map[string]ports.SymbolSpec),
		openTickets:   make(map[int64]*ticketInfo),
		closedTickets: make(map[int64]*ticketInfo),
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp outside of recvWindow
			mappedErr = ports.ErrTimeout
		case -1022: // Invalid signature
			mappedErr = ports.ErrAuthenticationFailed
		case -1121: // Invalid symbol
			mappedErr = ports.ErrSymbolNotTradable
		case -2010: // New order rejected
			mappedErr = ports.ErrOrderRejected
		case -2013: // Order does not exist
			mappedErr = ports.ErrNotFound
		case -2014, -2015: // API key format / permissions
			mappedErr = ports.ErrInvalidAPIKeys
		case -2019, -3005: // Insufficient margin / balance
			mappedErr = ports.ErrInsufficientMargin
		case -4003, -4014: // Quantity / price outside permissible range
			mappedErr = ports.ErrInvalidRequest
		case -4044: // Position not found
			mappedErr = ports.ErrPositionNotFound
		default:
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "no such host") ||
		strings.Contains(err.Error(), "use of closed network connection") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrBrokerUnavailable, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}
	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// Connect establishes the session: synchronizes server time and verifies the
// API keys with an authenticated call.
func (c *Client) Connect(ctx context.Context) error {
	op := "Connect"
	if _, err := c.futuresClient.NewSetServerTimeService().Do(ctx); err != nil {
		return c.handleError(ctx, err, op+" (server time)")
	}
	if _, err := c.futuresClient.NewGetBalanceService().Do(ctx); err != nil {
		return c.handleError(ctx, err, op+" (auth check)")
	}
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	c.logger.Info(ctx, "Connected to Binance futures")
	return nil
}

// IsConnected reports the last known session state.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Ping checks the connectivity to the broker API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	if err := c.futuresClient.NewPingService().Do(ctx); err != nil {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		return c.handleError(ctx, err, op)
	}
	return nil
}

// GetQuote retrieves the current best bid/ask for a symbol.
func (c *Client) GetQuote(ctx context.Context, symbol string) (ports.Quote, error) {
	op := "GetQuote"
	tickers, err := c.futuresClient.NewListBookTickersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return ports.Quote{}, c.handleError(ctx, err, op)
	}
	if len(tickers) == 0 {
		return ports.Quote{}, fmt.Errorf("%s: %w: no book ticker for %s", op, ports.ErrNotFound, symbol)
	}
	bid, _ := strconv.ParseFloat(tickers[0].BidPrice, 64)
	ask, _ := strconv.ParseFloat(tickers[0].AskPrice, 64)
	if bid <= 0 || ask <= 0 {
		return ports.Quote{}, fmt.Errorf("%s: %w: empty book for %s", op, ports.ErrNotFound, symbol)
	}
	return ports.Quote{Bid: bid, Ask: ask}, nil
}

// GetSymbolSpec retrieves trading constraints for a symbol and selects it for
// trading by applying the configured leverage. Specs are cached after the
// first successful lookup.
func (c *Client) GetSymbolSpec(ctx context.Context, symbol string) (ports.SymbolSpec, error) {
	op := "GetSymbolSpec"

	c.mu.Lock()
	if spec, ok := c.specs[symbol]; ok {
		c.mu.Unlock()
		return spec, nil
	}
	c.mu.Unlock()

	info, err := c.futuresClient.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return ports.SymbolSpec{}, c.handleError(ctx, err, op)
	}

	var found *futures.Symbol
	for i := range info.Symbols {
		if info.Symbols[i].Symbol == symbol {
			found = &info.Symbols[i]
			break
		}
	}
	if found == nil || found.Status != "TRADING" {
		return ports.SymbolSpec{}, fmt.Errorf("%s: %w: %s", op, ports.ErrSymbolNotTradable, symbol)
	}

	spec := ports.SymbolSpec{
		Symbol:       symbol,
		ContractSize: 1, // Linear contracts: 1 lot = 1 unit of the base asset
	}
	if lot := found.LotSizeFilter(); lot != nil {
		spec.MinVolume, _ = strconv.ParseFloat(lot.MinQuantity, 64)
		spec.MaxVolume, _ = strconv.ParseFloat(lot.MaxQuantity, 64)
		spec.VolumeStep, _ = strconv.ParseFloat(lot.StepSize, 64)
	}
	if pf := found.PriceFilter(); pf != nil {
		spec.Point, _ = strconv.ParseFloat(pf.TickSize, 64)
	}

	if _, err := c.futuresClient.NewChangeLeverageService().Symbol(symbol).Leverage(c.leverage).Do(ctx); err != nil {
		// A leverage mismatch is not fatal; trade at whatever is set.
		c.logger.Warn(ctx, op+": Failed to set leverage, continuing with current", map[string]interface{}{"symbol": symbol, "leverage": c.leverage})
	}

	c.mu.Lock()
	c.specs[symbol] = spec
	c.mu.Unlock()
	c.logger.Info(ctx, op+": Symbol selected", map[string]interface{}{
		"symbol":     symbol,
		"minVolume":  spec.MinVolume,
		"volumeStep": spec.VolumeStep,
	})
	return spec, nil
}

// SubmitOrder places the entry market order and attaches close-position
// STOP_MARKET and TAKE_PROFIT_MARKET orders. If a protective order cannot be
// placed the fresh exposure is closed immediately and the submission is
// reported as rejected: a position without its stop must never survive.
func (c *Client) SubmitOrder(ctx context.Context, intent domain.OrderIntent) (ports.OrderResult, error) {
	op := "SubmitOrder"
	qty := formatVolume(intent.Volume)
	side := futures.SideType(intent.Side)
	closeSide := futures.SideType(intent.Side.Opposite())

	entry, err := c.futuresClient.NewCreateOrderService().
		Symbol(intent.Symbol).
		Side(side).
		Type(futures.OrderTypeMarket).
		Quantity(qty).
		NewClientOrderID(clientOrderID(intent.Tag)).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT).
		Do(ctx)
	if err != nil {
		if rejection, ok := asRejection(err); ok {
			c.logger.Warn(ctx, op+": Entry order rejected", map[string]interface{}{"symbol": intent.Symbol, "reason": rejection})
			return ports.OrderResult{Accepted: false, Reason: rejection}, nil
		}
		return ports.OrderResult{}, c.handleError(ctx, err, op+" (entry)")
	}

	entryPrice, _ := strconv.ParseFloat(entry.AvgPrice, 64)
	if entryPrice == 0 {
		entryPrice = intent.Price
	}
	c.logger.Info(ctx, op+": Entry order filled", map[string]interface{}{
		"symbol":  intent.Symbol,
		"side":    intent.Side,
		"orderID": entry.OrderID,
		"avgPrice": entryPrice,
	})

	slOrder, err := c.futuresClient.NewCreateOrderService().
		Symbol(intent.Symbol).
		Side(closeSide).
		Type(futures.OrderTypeStopMarket).
		StopPrice(formatPrice(intent.StopLoss)).
		ClosePosition(true).
		Do(ctx)
	if err != nil {
		c.logger.Error(ctx, err, op+": Failed to place stop order, closing exposure", map[string]interface{}{"symbol": intent.Symbol, "entryOrderID": entry.OrderID})
		c.emergencyClose(ctx, intent.Symbol, closeSide, qty)
		return ports.OrderResult{Accepted: false, Reason: "stop order placement failed: " + err.Error()}, nil
	}

	tpOrder, err := c.futuresClient.NewCreateOrderService().
		Symbol(intent.Symbol).
		Side(closeSide).
		Type(futures.OrderTypeTakeProfitMarket).
		StopPrice(formatPrice(intent.TakeProfit)).
		ClosePosition(true).
		Do(ctx)
	if err != nil {
		c.logger.Error(ctx, err, op+": Failed to place take-profit order, closing exposure", map[string]interface{}{"symbol": intent.Symbol, "entryOrderID": entry.OrderID})
		c.cancelOrderWarn(ctx, intent.Symbol, slOrder.OrderID)
		c.emergencyClose(ctx, intent.Symbol, closeSide, qty)
		return ports.OrderResult{Accepted: false, Reason: "take-profit order placement failed: " + err.Error()}, nil
	}

	c.mu.Lock()
	c.openTickets[entry.OrderID] = &ticketInfo{
		symbol:     intent.Symbol,
		side:       intent.Side,
		volume:     intent.Volume,
		entryPrice: entryPrice,
		slOrderID:  slOrder.OrderID,
		tpOrderID:  tpOrder.OrderID,
	}
	c.mu.Unlock()

	return ports.OrderResult{Accepted: true, Ticket: entry.OrderID}, nil
}

// ListOpenPositions reports one record per remembered ticket whose symbol
// still carries aggregate exposure. Tickets whose symbol exposure is gone
// are moved to the closed set and omitted.
func (c *Client) ListOpenPositions(ctx context.Context) ([]ports.BrokerPosition, error) {
	op := "ListOpenPositions"
	risks, err := c.futuresClient.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	type aggregate struct {
		amount     float64
		markPrice  float64
		unrealized float64
	}
	bySymbol := make(map[string]aggregate, len(risks))
	for _, r := range risks {
		amt, _ := strconv.ParseFloat(r.PositionAmt, 64)
		if amt == 0 {
			continue
		}
		mark, _ := strconv.ParseFloat(r.MarkPrice, 64)
		pnl, _ := strconv.ParseFloat(r.UnRealizedProfit, 64)
		agg := bySymbol[r.Symbol]
		agg.amount += amt
		agg.markPrice = mark
		agg.unrealized += pnl
		bySymbol[r.Symbol] = agg
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	var out []ports.BrokerPosition
	for ticket, info := range c.openTickets {
		agg, stillOpen := bySymbol[info.symbol]
		if !stillOpen {
			info.closedAt = time.Now().UTC()
			c.closedTickets[ticket] = info
			delete(c.openTickets, ticket)
			continue
		}
		share := 1.0
		if total := absFloat(agg.amount); total > 0 && info.volume < total {
			share = info.volume / total
		}
		out = append(out, ports.BrokerPosition{
			Ticket:       ticket,
			Symbol:       info.symbol,
			Side:         info.side,
			Volume:       info.volume,
			EntryPrice:   info.entryPrice,
			CurrentPrice: agg.markPrice,
			Profit:       agg.unrealized * share,
		})
	}
	return out, nil
}

// GetHistoricalDeals retrieves closed deals in the time window for every
// symbol this client has traded, attributing each fill to the ticket whose
// protective orders produced it (falling back to any closed ticket on the
// same symbol for manual closes).
func (c *Client) GetHistoricalDeals(ctx context.Context, from, to time.Time) ([]ports.Deal, error) {
	op := "GetHistoricalDeals"

	c.mu.Lock()
	symbols := make(map[string]bool)
	byProtectiveOrder := make(map[int64]int64) // sl/tp order id -> ticket
	closedBySymbol := make(map[string]int64)
	for ticket, info := range c.openTickets {
		symbols[info.symbol] = true
		byProtectiveOrder[info.slOrderID] = ticket
		byProtectiveOrder[info.tpOrderID] = ticket
	}
	for ticket, info := range c.closedTickets {
		symbols[info.symbol] = true
		byProtectiveOrder[info.slOrderID] = ticket
		byProtectiveOrder[info.tpOrderID] = ticket
		closedBySymbol[info.symbol] = ticket
	}
	c.mu.Unlock()

	var deals []ports.Deal
	for symbol := range symbols {
		trades, err := c.futuresClient.NewListAccountTradeService().
			Symbol(symbol).
			StartTime(from.UnixMilli()).
			EndTime(to.UnixMilli()).
			Do(ctx)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		for _, t := range trades {
			pnl, _ := strconv.ParseFloat(t.RealizedPnl, 64)
			if pnl == 0 {
				continue // Opening fills carry no realized profit
			}
			ticket, ok := byProtectiveOrder[t.OrderID]
			if !ok {
				ticket = closedBySymbol[t.Symbol]
			}
			deals = append(deals, ports.Deal{
				Ticket:   ticket,
				Symbol:   t.Symbol,
				Profit:   pnl,
				ClosedAt: time.UnixMilli(t.Time).UTC(),
			})
		}
	}
	return deals, nil
}

// AccountBalance retrieves the available balance of the margin asset.
func (c *Client) AccountBalance(ctx context.Context) (float64, error) {
	op := "AccountBalance"
	balances, err := c.futuresClient.NewGetBalanceService().Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	for _, b := range balances {
		if b.Asset == c.marginAsset {
			available, _ := strconv.ParseFloat(b.AvailableBalance, 64)
			return available, nil
		}
	}
	return 0, fmt.Errorf("%s: %w: no %s balance", op, ports.ErrNotFound, c.marginAsset)
}

// MarginRequired estimates the margin to open volume lots of symbol at the
// current ask under the configured leverage.
func (c *Client) MarginRequired(ctx context.Context, symbol string, volume float64) (float64, error) {
	quote, err := c.GetQuote(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return quote.Ask * volume / float64(c.leverage), nil
}

// emergencyClose places a reduce-only market order to flatten fresh exposure
// after a protective order failed.
func (c *Client) emergencyClose(ctx context.Context, symbol string, closeSide futures.SideType, qty string) {
	op := "emergencyClose"
	_, err := c.futuresClient.NewCreateOrderService().
		Symbol(symbol).
		Side(closeSide).
		Type(futures.OrderTypeMarket).
		Quantity(qty).
		ReduceOnly(true).
		Do(ctx)
	if err != nil {
		// Manual intervention is required at this point; the error is
		// surfaced loudly but there is nothing further to do here.
		c.logger.Error(ctx, err, op+": FAILED TO CLOSE UNPROTECTED EXPOSURE", map[string]interface{}{"symbol": symbol, "quantity": qty})
		return
	}
	c.logger.Warn(ctx, op+": Unprotected exposure closed", map[string]interface{}{"symbol": symbol, "quantity": qty})
}

// cancelOrderWarn attempts to cancel an order and logs a warning on failure.
func (c *Client) cancelOrderWarn(ctx context.Context, symbol string, orderID int64) {
	_, err := c.futuresClient.NewCancelOrderService().Symbol(symbol).OrderID(orderID).Do(ctx)
	if err != nil {
		c.logger.Warn(ctx, "Failed to cancel order during cleanup", map[string]interface{}{"symbol": symbol, "orderID": orderID, "error": err.Error()})
	}
}

// asRejection reports whether the error is a broker-side order rejection
// (as opposed to a transport failure).
func asRejection(err error) (string, bool) {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case -2010, -2019, -3005, -4003, -4014:
			return apiErr.Message, true
		}
	}
	return "", false
}

func formatVolume(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

// clientOrderID derives a broker-visible client order id from the execution
// request tag.
func clientOrderID(tag string) string {
	id := strings.ReplaceAll(tag, "-", "")
	if len(id) > 32 {
		id = id[:32]
	}
	return "sig" + id[:min(len(id), 29)]
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
