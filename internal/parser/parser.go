package parser

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"signalTrader/internal/domain"
	"signalTrader/internal/ports"
)

// Mode selects the extraction heuristic for incomplete signals.
type Mode string

const (
	// ModeStrict drops any signal that does not carry an explicit stop-loss.
	ModeStrict Mode = "strict"
	// ModeEstimate derives a missing stop-loss at a fixed offset from entry
	// in the trade's adverse direction.
	ModeEstimate Mode = "estimate"
)

// Config holds configuration for the signal parser.
type Config struct {
	Mode Mode
	// FallbackSymbol is used when no instrument token is found but the
	// message context indicates that instrument family (see FamilyHints).
	// Empty disables the fallback.
	FallbackSymbol string
	// FamilyHints are tokens that indicate the fallback instrument's family
	// without naming a tradable symbol (e.g. "OZ" for gold).
	FamilyHints []string
	// EstimateStopOffset is the distance, in price units, used to derive a
	// missing stop-loss in ModeEstimate.
	EstimateStopOffset float64
}

// Parser turns raw channel text into a normalized ParsedSignal.
type Parser struct {
	cfg    Config
	logger ports.Logger
}

// ParseError reports why a message was not accepted as a signal.
// Parse failures are terminal and local: the message is dropped, no order
// is attempted, and no operator notification is sent.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return "signal parse failed: " + e.Reason }

func parseFailf(format string, args ...interface{}) error {
	return &ParseError{Reason: fmt.Sprintf(format, args...)}
}

// New creates a new signal parser.
func New(cfg Config, logger ports.Logger) (*Parser, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for parser")
	}
	switch cfg.Mode {
	case ModeStrict, ModeEstimate:
	case "":
		cfg.Mode = ModeStrict
	default:
		return nil, fmt.Errorf("%w: unknown parser mode %q", ports.ErrConfigurationError, cfg.Mode)
	}
	if cfg.Mode == ModeEstimate && cfg.EstimateStopOffset <= 0 {
		return nil, fmt.Errorf("%w: EstimateStopOffset must be positive in estimate mode", ports.ErrConfigurationError)
	}
	if cfg.FallbackSymbol != "" {
		cfg.FallbackSymbol = Canonicalize(cfg.FallbackSymbol)
	}
	return &Parser{cfg: cfg, logger: logger}, nil
}

var (
	num = `(\d+(?:\.\d+)?)`

	actionRe = regexp.MustCompile(`\b(BUY|LONG|SELL|SHORT)\b`)

	entryRangeRe  = regexp.MustCompile(num + `\s*-\s*` + num)
	entrySingleRe = regexp.MustCompile(`(?:@|\b(?:AT|NOW|ENTRY|PRICE)\b)\s*:?\s*` + num)

	// Ordered stop-loss patterns, most explicit first. Level indices (SL2,
	// TP3) must sit flush against the keyword: whitespace before the index
	// digits would let them consume the leading digits of the price itself.
	stopRes = []*regexp.Regexp{
		regexp.MustCompile(`\bSTOP\s*LOSS\s*:?\s*` + num),
		regexp.MustCompile(`\bSL\d*\s*:?\s*` + num),
		regexp.MustCompile(`\bSTOP\s*:?\s*` + num),
		regexp.MustCompile(`[🛑❌]\s*:?\s*` + num),
	}

	// Ordered take-profit patterns; the first pattern that matches anything
	// supplies all levels.
	tpRes = []*regexp.Regexp{
		regexp.MustCompile(`\bTP\d*\s*:?\s*` + num),
		regexp.MustCompile(`\bTAKE\s*PROFIT\d*\s*:?\s*` + num),
		regexp.MustCompile(`\bTARGET\d*\s*:?\s*` + num),
		regexp.MustCompile(`[✅🎯]\s*:?\s*` + num),
	}

	// Keywords that disqualify a number range from being an entry range when
	// they appear immediately before it. LOSS covers the tail of "STOP LOSS".
	rangeExclusionRe = regexp.MustCompile(`(?:SL|STOP|LOSS|TP|TARGET|PROFIT)\d*\s*:?\s*$`)
)

// Parse extracts a trade signal from raw message text.
// The pipeline short-circuits on irrecoverable absence of required fields and
// always validates the price ordering invariant before returning a signal.
func (p *Parser) Parse(raw string) (*domain.ParsedSignal, error) {
	ctx := context.Background()
	text := normalize(raw)
	if text == "" {
		return nil, parseFailf("empty message")
	}

	symbol, symbolSource, err := p.extractSymbol(text)
	if err != nil {
		return nil, err
	}

	action, err := extractAction(text)
	if err != nil {
		return nil, err
	}

	entryMin, entryMax, entryFound := extractEntry(text)

	stop, stopFound := extractStop(text)

	takeProfits := extractTakeProfits(text, action)
	if len(takeProfits) == 0 {
		return nil, parseFailf("no take-profit level found")
	}

	stopSource := domain.SourceExact
	if !stopFound {
		if p.cfg.Mode == ModeStrict {
			return nil, parseFailf("no stop-loss found (strict mode)")
		}
		if !entryFound {
			return nil, parseFailf("cannot estimate stop-loss without an entry price")
		}
		entry := (entryMin + entryMax) / 2
		if action == domain.Buy {
			stop = entry - p.cfg.EstimateStopOffset
		} else {
			stop = entry + p.cfg.EstimateStopOffset
		}
		stopSource = domain.SourceEstimated
	}

	entrySource := domain.SourceExact
	if !entryFound {
		// Deliberate design choice: rather than discarding an otherwise
		// valid signal that omits price but includes stop and target,
		// estimate the entry a small step from the stop toward TP1.
		entry := stop + 0.10*(takeProfits[0]-stop)
		entryMin, entryMax = entry, entry
		entrySource = domain.SourceEstimated
	}

	signal := &domain.ParsedSignal{
		Symbol:       symbol,
		Action:       action,
		EntryMin:     entryMin,
		EntryMax:     entryMax,
		StopLoss:     stop,
		TakeProfits:  takeProfits,
		SymbolSource: symbolSource,
		EntrySource:  entrySource,
		StopSource:   stopSource,
		RawText:      raw,
	}
	if err := signal.Validate(); err != nil {
		return nil, parseFailf("invalid price ordering: %v", err)
	}

	p.logger.Debug(ctx, "Signal parsed", map[string]interface{}{
		"symbol":   signal.Symbol,
		"action":   signal.Action,
		"entryMin": signal.EntryMin,
		"entryMax": signal.EntryMax,
		"stopLoss": signal.StopLoss,
		"tps":      signal.TakeProfits,
	})
	return signal, nil
}

// extractSymbol resolves the instrument via the canonical table, falling back
// to the configured instrument only when the message carries a family hint.
func (p *Parser) extractSymbol(text string) (string, domain.FieldSource, error) {
	for _, token := range strings.Fields(text) {
		if knownSymbol(token) {
			source := domain.SourceExact
			if Canonicalize(token) != token {
				source = domain.SourceAlias
			}
			return Canonicalize(token), source, nil
		}
	}
	if p.cfg.FallbackSymbol != "" {
		for _, hint := range p.cfg.FamilyHints {
			if containsToken(text, strings.ToUpper(hint)) {
				return p.cfg.FallbackSymbol, domain.SourceEstimated, nil
			}
		}
	}
	return "", "", parseFailf("no recognizable instrument")
}

func extractAction(text string) (domain.OrderSide, error) {
	m := actionRe.FindString(text)
	switch m {
	case "BUY", "LONG":
		return domain.Buy, nil
	case "SELL", "SHORT":
		return domain.Sell, nil
	}
	return "", parseFailf("no BUY/SELL action found")
}

// extractEntry prefers an explicit two-number range, then a single tagged
// price. Ranges directly preceded by SL/TP keywords belong to those fields
// and are skipped.
func extractEntry(text string) (entryMin, entryMax float64, found bool) {
	for _, loc := range entryRangeRe.FindAllStringSubmatchIndex(text, -1) {
		prefix := text[:loc[0]]
		if rangeExclusionRe.MatchString(prefix) {
			continue
		}
		lo := mustFloat(text[loc[2]:loc[3]])
		hi := mustFloat(text[loc[4]:loc[5]])
		if lo > hi {
			lo, hi = hi, lo
		}
		return lo, hi, true
	}
	if m := entrySingleRe.FindStringSubmatch(text); m != nil {
		price := mustFloat(m[1])
		return price, price, true
	}
	return 0, 0, false
}

func extractStop(text string) (float64, bool) {
	for _, re := range stopRes {
		if m := re.FindStringSubmatch(text); m != nil {
			return mustFloat(m[1]), true
		}
	}
	return 0, false
}

// extractTakeProfits collects levels from the first matching pattern,
// deduplicates, caps to the first two, and orders them nearest-first.
func extractTakeProfits(text string, action domain.OrderSide) []float64 {
	var levels []float64
	for _, re := range tpRes {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			levels = append(levels, mustFloat(m[1]))
		}
		if len(levels) > 0 {
			break
		}
	}
	levels = dedupe(levels)
	if len(levels) > 2 {
		levels = levels[:2]
	}
	if len(levels) == 2 {
		ascending := levels[0] < levels[1]
		if (action == domain.Buy && !ascending) || (action == domain.Sell && ascending) {
			levels[0], levels[1] = levels[1], levels[0]
		}
	}
	return levels
}

func dedupe(values []float64) []float64 {
	seen := make(map[float64]bool, len(values))
	out := values[:0]
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func containsToken(text, token string) bool {
	for _, t := range strings.Fields(text) {
		if t == token {
			return true
		}
	}
	return false
}

func mustFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
