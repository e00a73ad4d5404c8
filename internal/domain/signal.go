package domain

import "fmt"

// ParsedSignal is the immutable result of parsing one channel message.
// It is created per inbound message, consumed once by the execution engine,
// and never mutated afterwards.
type ParsedSignal struct {
	Symbol      string    // Canonical instrument identifier (e.g. "XAUUSD")
	Action      OrderSide // BUY or SELL
	EntryMin    float64   // Lower entry bound (equals EntryMax for a single price)
	EntryMax    float64   // Upper entry bound
	StopLoss    float64   // Stop-loss price, always set on a valid signal
	TakeProfits []float64 // 1-2 levels, nearest target first

	// Provenance per field, for the audit trail.
	SymbolSource FieldSource
	EntrySource  FieldSource
	StopSource   FieldSource
	RawText      string // Original message text, kept for the audit record
}

// Entry returns the single effective entry price (midpoint of the bounds).
func (s *ParsedSignal) Entry() float64 {
	return (s.EntryMin + s.EntryMax) / 2
}

// Validate checks the price ordering invariant:
// BUY:  stop_loss < entry <= take_profits[0]
// SELL: take_profits[0] <= entry < stop_loss
// and that the take-profit list is ordered nearest-first.
func (s *ParsedSignal) Validate() error {
	if s.Symbol == "" {
		return fmt.Errorf("signal has no symbol")
	}
	if s.Action != Buy && s.Action != Sell {
		return fmt.Errorf("signal has invalid action %q", s.Action)
	}
	if len(s.TakeProfits) == 0 {
		return fmt.Errorf("signal has no take-profit levels")
	}
	if s.StopLoss <= 0 {
		return fmt.Errorf("signal has non-positive stop-loss %.5f", s.StopLoss)
	}
	if s.EntryMin > s.EntryMax {
		return fmt.Errorf("entry bounds inverted: %.5f > %.5f", s.EntryMin, s.EntryMax)
	}
	entry := s.Entry()
	switch s.Action {
	case Buy:
		if !(s.StopLoss < entry && entry <= s.TakeProfits[0]) {
			return fmt.Errorf("BUY ordering violated: sl=%.5f entry=%.5f tp=%.5f", s.StopLoss, entry, s.TakeProfits[0])
		}
		for i := 1; i < len(s.TakeProfits); i++ {
			if s.TakeProfits[i] < s.TakeProfits[i-1] {
				return fmt.Errorf("BUY take-profits not ascending: %v", s.TakeProfits)
			}
		}
	case Sell:
		if !(s.TakeProfits[0] <= entry && entry < s.StopLoss) {
			return fmt.Errorf("SELL ordering violated: tp=%.5f entry=%.5f sl=%.5f", s.TakeProfits[0], entry, s.StopLoss)
		}
		for i := 1; i < len(s.TakeProfits); i++ {
			if s.TakeProfits[i] > s.TakeProfits[i-1] {
				return fmt.Errorf("SELL take-profits not descending: %v", s.TakeProfits)
			}
		}
	}
	return nil
}
