package risk

import (
	"context"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"signalTrader/internal/domain"
	"signalTrader/internal/ports"
)

// Config holds configuration for order sizing.
type Config struct {
	// FixedLot is the lot size used when risk-based sizing is disabled.
	FixedLot float64
	// UseRiskSizing switches volume to equity * RiskFraction / stop distance.
	UseRiskSizing bool
	// RiskFraction is the fraction of account equity risked per trade.
	RiskFraction float64
	// BaseDeviationPoints is the base slippage tolerance in points.
	BaseDeviationPoints int
	// VolatilityMultiplier scales the deviation for high-volatility symbols.
	VolatilityMultiplier float64
	// HighVolSymbols lists symbols that get the volatility multiplier.
	HighVolSymbols []string
}

// Sizer computes a concrete OrderIntent from a parsed signal, the current
// quote, and the broker's constraints for the symbol.
type Sizer struct {
	cfg    Config
	logger ports.Logger
}

// NewSizer creates a new order sizer.
func NewSizer(cfg Config, logger ports.Logger) (*Sizer, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for sizer")
	}
	if cfg.UseRiskSizing {
		if cfg.RiskFraction <= 0 || cfg.RiskFraction >= 1 {
			return nil, fmt.Errorf("%w: RiskFraction must be between 0 and 1 (exclusive)", ports.ErrConfigurationError)
		}
	} else if cfg.FixedLot <= 0 {
		return nil, fmt.Errorf("%w: FixedLot must be positive", ports.ErrConfigurationError)
	}
	if cfg.BaseDeviationPoints <= 0 {
		return nil, fmt.Errorf("%w: BaseDeviationPoints must be positive", ports.ErrConfigurationError)
	}
	if cfg.VolatilityMultiplier < 1 {
		cfg.VolatilityMultiplier = 1
	}
	return &Sizer{cfg: cfg, logger: logger}, nil
}

// Size validates the signal against broker constraints and computes the order
// to submit. A stop closer than the broker minimum is reported as an error,
// never silently clamped: moving a trader-specified stop changes risk
// exposure without consent.
func (s *Sizer) Size(ctx context.Context, signal *domain.ParsedSignal, quote ports.Quote, spec ports.SymbolSpec, equity float64) (*domain.OrderIntent, error) {
	entry := signal.Entry()
	if entry == 0 {
		// No entry bounds survived parsing: trade at the current market.
		if signal.Action == domain.Buy {
			entry = quote.Ask
		} else {
			entry = quote.Bid
		}
	}
	if entry <= 0 {
		return nil, fmt.Errorf("%w: no usable entry price for %s", ports.ErrInvalidRequest, signal.Symbol)
	}

	stopDistance := math.Abs(entry - signal.StopLoss)
	if spec.MinStopDistance > 0 && stopDistance < spec.MinStopDistance {
		return nil, fmt.Errorf("%w: stop distance %.5f below broker minimum %.5f for %s",
			ports.ErrStopsTooClose, stopDistance, spec.MinStopDistance, signal.Symbol)
	}

	volume, err := s.computeVolume(stopDistance, spec, equity)
	if err != nil {
		return nil, err
	}

	deviation := s.cfg.BaseDeviationPoints
	if s.isHighVolatility(signal.Symbol) {
		deviation = int(float64(deviation) * s.cfg.VolatilityMultiplier)
	}

	intent := &domain.OrderIntent{
		Symbol:     signal.Symbol,
		Side:       signal.Action,
		Volume:     volume,
		Price:      entry,
		StopLoss:   signal.StopLoss,
		TakeProfit: signal.TakeProfits[0],
		Deviation:  deviation,
	}
	s.logger.Debug(ctx, "Order sized", map[string]interface{}{
		"symbol":    intent.Symbol,
		"side":      intent.Side,
		"volume":    intent.Volume,
		"price":     intent.Price,
		"deviation": intent.Deviation,
	})
	return intent, nil
}

// computeVolume returns the lot size, clamped to broker min/max and rounded
// down to the broker's lot step.
func (s *Sizer) computeVolume(stopDistance float64, spec ports.SymbolSpec, equity float64) (float64, error) {
	volume := s.cfg.FixedLot
	if s.cfg.UseRiskSizing {
		if stopDistance <= 0 || spec.ContractSize <= 0 {
			return 0, fmt.Errorf("%w: cannot risk-size with zero stop distance or contract size", ports.ErrInvalidRequest)
		}
		volume = equity * s.cfg.RiskFraction / (stopDistance * spec.ContractSize)
	}

	if spec.MaxVolume > 0 && volume > spec.MaxVolume {
		volume = spec.MaxVolume
	}
	if spec.VolumeStep > 0 {
		step := decimal.NewFromFloat(spec.VolumeStep)
		rounded := decimal.NewFromFloat(volume).Div(step).Floor().Mul(step)
		volume, _ = rounded.Float64()
	}
	if volume < spec.MinVolume || volume <= 0 {
		return 0, fmt.Errorf("%w: computed volume %.4f below broker minimum %.4f",
			ports.ErrInvalidRequest, volume, spec.MinVolume)
	}
	return volume, nil
}

func (s *Sizer) isHighVolatility(symbol string) bool {
	for _, hv := range s.cfg.HighVolSymbols {
		if hv == symbol {
			return true
		}
	}
	return false
}
