package parser

import "strings"

// canonicalSymbols maps every recognized spelling of an instrument to its
// canonical broker identifier. Canonicalization is table-driven, not
// inferred, to avoid ambiguous instrument guesses. Canonical names map to
// themselves so Canonicalize is idempotent.
var canonicalSymbols = map[string]string{
	// Metals
	"XAUUSD":  "XAUUSD",
	"XAU/USD": "XAUUSD",
	"XAU":     "XAUUSD",
	"GOLD":    "XAUUSD",
	"XAGUSD":  "XAGUSD",
	"XAG/USD": "XAGUSD",
	"SILVER":  "XAGUSD",

	// Energy
	"XTIUSD": "XTIUSD",
	"USOIL":  "XTIUSD",
	"WTI":    "XTIUSD",

	// Crypto
	"BTCUSD":  "BTCUSD",
	"BTC/USD": "BTCUSD",
	"BITCOIN": "BTCUSD",
	"ETHUSD":  "ETHUSD",
	"ETH/USD": "ETHUSD",

	// Majors
	"EURUSD":  "EURUSD",
	"EUR/USD": "EURUSD",
	"GBPUSD":  "GBPUSD",
	"GBP/USD": "GBPUSD",
	"USDJPY":  "USDJPY",
	"USD/JPY": "USDJPY",
	"GBPJPY":  "GBPJPY",
	"GBP/JPY": "GBPJPY",
	"USDCAD":  "USDCAD",
	"USD/CAD": "USDCAD",
	"AUDUSD":  "AUDUSD",
	"AUD/USD": "AUDUSD",

	// Indices
	"US30":   "US30",
	"DOW":    "US30",
	"NAS100": "NAS100",
	"NASDAQ": "NAS100",
	"SPX500": "SPX500",
	"SP500":  "SPX500",
}

// Canonicalize resolves an instrument token to its canonical identifier.
// Unknown tokens are returned unchanged (uppercased), which keeps the
// function idempotent for any input.
func Canonicalize(token string) string {
	upper := strings.ToUpper(strings.TrimSpace(token))
	if canonical, ok := canonicalSymbols[upper]; ok {
		return canonical
	}
	return upper
}

// knownSymbol reports whether the token resolves through the canonical table.
func knownSymbol(token string) bool {
	_, ok := canonicalSymbols[strings.ToUpper(strings.TrimSpace(token))]
	return ok
}
