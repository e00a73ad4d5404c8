package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Broker Specific Errors
	ErrBrokerUnavailable     = errors.New("broker API is unavailable")
	ErrConnectionFailed      = errors.New("failed to connect to the broker")
	ErrRateLimited           = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed  = errors.New("broker authentication failed (check API keys)")
	ErrInvalidAPIKeys        = errors.New("invalid API keys or permissions")
	ErrInsufficientMargin    = errors.New("insufficient margin for operation")
	ErrOrderRejected         = errors.New("broker rejected the order")
	ErrPositionNotFound      = errors.New("position not found on the broker")
	ErrSymbolNotTradable     = errors.New("symbol is not available for trading")
	ErrStopsTooClose         = errors.New("stop level violates minimum broker distance")
	ErrVerificationFailed    = errors.New("order accepted but no resulting position found")
	ErrSourceDisconnected    = errors.New("message source is disconnected")
	ErrReconnectLimitReached = errors.New("reconnect attempt limit reached")

	// Audit Specific Errors
	ErrAuditWriteFailed = errors.New("failed to append audit record")
)
