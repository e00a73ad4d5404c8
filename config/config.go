package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"signalTrader/internal/adapters/logger" // Import the logger package for LogLevel
	"signalTrader/internal/monitor"
	"signalTrader/internal/parser"
)

// Config holds all application configuration.
type Config struct {
	// Telegram
	TelegramToken  string
	OperatorChatID int64

	// Monitored channels, keyed by channel id.
	Channels map[int64]monitor.Channel

	// Parser
	ParserMode         parser.Mode
	FallbackSymbol     string
	FamilyHints        []string
	EstimateStopOffset float64

	// Sizing
	FixedLot             float64
	UseRiskSizing        bool
	RiskFraction         float64
	BaseDeviationPoints  int
	VolatilityMultiplier float64
	HighVolSymbols       []string

	// Execution
	FullMarginMaxOrders int
	VerifyDelay         time.Duration

	// Position tracking
	TrackerInterval time.Duration
	HistoryLookback time.Duration

	// Reconnection
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	MaxReconnectAttempts int
	DedupWindow          time.Duration

	// Broker (Binance futures)
	APIKey      string
	SecretKey   string
	IsTestnet   bool
	MarginAsset string
	Leverage    int

	// Database
	DBPath string

	// Logging
	LogLevel logger.LogLevel // Use the LogLevel type from the logger adapter
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Telegram
	cfg.TelegramToken = getEnv("TELEGRAM_BOT_TOKEN", "")
	if cfg.TelegramToken == "" {
		errs = append(errs, "TELEGRAM_BOT_TOKEN must be set")
	}
	operatorChatStr := getEnv("OPERATOR_CHAT_ID", "")
	if operatorChatStr == "" {
		errs = append(errs, "OPERATOR_CHAT_ID must be set")
	} else if cfg.OperatorChatID, err = strconv.ParseInt(operatorChatStr, 10, 64); err != nil {
		errs = append(errs, fmt.Sprintf("invalid OPERATOR_CHAT_ID: %v", err))
	}

	// Monitored channels
	cfg.Channels, err = parseChannels(getEnv("MONITORED_CHANNELS", ""))
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MONITORED_CHANNELS: %v", err))
	} else if len(cfg.Channels) == 0 {
		errs = append(errs, "MONITORED_CHANNELS must list at least one channel")
	}

	// Parser
	cfg.ParserMode = parser.Mode(getEnv("PARSER_MODE", string(parser.ModeStrict)))
	switch cfg.ParserMode {
	case parser.ModeStrict, parser.ModeEstimate:
	default:
		errs = append(errs, fmt.Sprintf("PARSER_MODE must be %q or %q", parser.ModeStrict, parser.ModeEstimate))
	}
	cfg.FallbackSymbol = getEnv("FALLBACK_SYMBOL", "")
	cfg.FamilyHints = splitList(getEnv("FAMILY_HINTS", ""))
	cfg.EstimateStopOffset, err = getEnvAsFloatRequired("ESTIMATE_STOP_OFFSET", 5.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid ESTIMATE_STOP_OFFSET: %v", err))
	} else if cfg.ParserMode == parser.ModeEstimate && cfg.EstimateStopOffset <= 0 {
		errs = append(errs, "ESTIMATE_STOP_OFFSET must be positive in estimate mode")
	}

	// Sizing
	cfg.FixedLot, err = getEnvAsFloatRequired("FIXED_LOT_SIZE", 0.01)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid FIXED_LOT_SIZE: %v", err))
	} else if cfg.FixedLot <= 0 {
		errs = append(errs, "FIXED_LOT_SIZE must be positive")
	}
	cfg.UseRiskSizing = getEnvAsBool("USE_RISK_SIZING", false)
	cfg.RiskFraction, err = getEnvAsFloatRequired("RISK_FRACTION", 0.01)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RISK_FRACTION: %v", err))
	} else if cfg.UseRiskSizing && (cfg.RiskFraction <= 0 || cfg.RiskFraction >= 1.0) {
		errs = append(errs, "RISK_FRACTION must be between 0.0 and 1.0 (exclusive)")
	}
	cfg.BaseDeviationPoints, err = getEnvAsIntRequired("MAX_SLIPPAGE_POINTS", 10)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_SLIPPAGE_POINTS: %v", err))
	} else if cfg.BaseDeviationPoints <= 0 {
		errs = append(errs, "MAX_SLIPPAGE_POINTS must be positive")
	}
	cfg.VolatilityMultiplier = getEnvAsFloat("VOLATILITY_MULTIPLIER", 2.0)
	cfg.HighVolSymbols = splitList(getEnv("HIGH_VOLATILITY_SYMBOLS", "XAUUSD,BTCUSD"))

	// Execution
	cfg.FullMarginMaxOrders, err = getEnvAsIntRequired("FULL_MARGIN_MAX_ORDERS", 10)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid FULL_MARGIN_MAX_ORDERS: %v", err))
	} else if cfg.FullMarginMaxOrders <= 0 {
		errs = append(errs, "FULL_MARGIN_MAX_ORDERS must be positive")
	}
	cfg.VerifyDelay = getEnvAsDuration("VERIFY_DELAY_SECONDS", 2*time.Second)

	// Position tracking
	cfg.TrackerInterval = getEnvAsDuration("TRACKER_INTERVAL_SECONDS", 10*time.Second)
	if cfg.TrackerInterval <= 0 {
		errs = append(errs, "TRACKER_INTERVAL_SECONDS must be positive")
	}
	cfg.HistoryLookback = getEnvAsDuration("HISTORY_LOOKBACK_HOURS", 7*24*time.Hour)

	// Reconnection
	cfg.ReconnectBaseDelay = getEnvAsDuration("RECONNECT_BASE_DELAY_SECONDS", time.Second)
	cfg.ReconnectMaxDelay = getEnvAsDuration("RECONNECT_MAX_DELAY_SECONDS", 30*time.Second)
	cfg.MaxReconnectAttempts = getEnvAsInt("MAX_RECONNECT_ATTEMPTS", 10)
	if cfg.MaxReconnectAttempts < 0 {
		errs = append(errs, "MAX_RECONNECT_ATTEMPTS cannot be negative")
	}
	cfg.DedupWindow = getEnvAsDuration("DEDUP_WINDOW_SECONDS", 2*time.Minute)

	// Broker
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety
	if cfg.APIKey == "" {
		errs = append(errs, "BINANCE_API_KEY must be set")
	}
	if cfg.SecretKey == "" {
		errs = append(errs, "BINANCE_API_SECRET must be set")
	}
	cfg.MarginAsset = getEnv("MARGIN_ASSET", "USDT")
	cfg.Leverage, err = getEnvAsIntRequired("LEVERAGE", 1)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid LEVERAGE: %v", err))
	} else if cfg.Leverage <= 0 {
		errs = append(errs, "LEVERAGE must be positive")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/signal_audit.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// parseChannels parses the MONITORED_CHANNELS value. The format is a
// comma-separated list of entries:
//
//	<channelID>=<name>[:<tier>[:fullmargin]]
//
// e.g. "-1001234=GoldSignals:trusted:fullmargin,-1005678=FxAlerts".
// Tier defaults to "standard". Full margin may only be enabled on channels
// whose tier is "trusted".
func parseChannels(raw string) (map[int64]monitor.Channel, error) {
	channels := make(map[int64]monitor.Channel)
	if strings.TrimSpace(raw) == "" {
		return channels, nil
	}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		idPart, meta, found := strings.Cut(entry, "=")
		if !found {
			return nil, fmt.Errorf("entry %q is missing '='", entry)
		}
		id, err := strconv.ParseInt(strings.TrimSpace(idPart), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("entry %q has invalid channel id: %w", entry, err)
		}

		parts := strings.Split(meta, ":")
		ch := monitor.Channel{Name: strings.TrimSpace(parts[0]), Tier: "standard"}
		if ch.Name == "" {
			return nil, fmt.Errorf("entry %q has an empty channel name", entry)
		}
		if len(parts) > 1 && strings.TrimSpace(parts[1]) != "" {
			ch.Tier = strings.ToLower(strings.TrimSpace(parts[1]))
		}
		if len(parts) > 2 {
			switch strings.ToLower(strings.TrimSpace(parts[2])) {
			case "fullmargin":
				ch.FullMargin = true
			case "":
			default:
				return nil, fmt.Errorf("entry %q has unknown flag %q", entry, parts[2])
			}
		}
		if ch.FullMargin && ch.Tier != "trusted" {
			return nil, fmt.Errorf("entry %q enables full margin on non-trusted tier %q", entry, ch.Tier)
		}
		if _, dup := channels[id]; dup {
			return nil, fmt.Errorf("channel id %d listed twice", id)
		}
		channels[id] = ch
	}
	return channels, nil
}

// splitList parses a comma-separated list, trimming blanks.
func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Log warning? For non-required fields, default is often acceptable.
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration reads a numeric env var scaled by the default's unit:
// keys suffixed _SECONDS are whole seconds, _HOURS whole hours.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil || value <= 0 {
		return defaultValue
	}
	if strings.HasSuffix(key, "_HOURS") {
		return time.Duration(value) * time.Hour
	}
	return time.Duration(value) * time.Second
}
