package ports

import (
	"context"
	"time"
)

// InboundMessage is one raw message received from a monitored channel.
type InboundMessage struct {
	ChannelID  int64
	Text       string
	ReceivedAt time.Time
}

// MessageHandler processes one inbound message. Handlers must not block for
// longer than one broker round-trip; long work is dispatched elsewhere.
type MessageHandler func(msg InboundMessage)

// MessageSource defines the interface for the inbound message stream.
// Transport-level reconnection belongs to the implementation; the core only
// observes connection state and restarts the stream when it reports failure.
type MessageSource interface {
	// Start connects and begins delivering messages to handler until the
	// context is canceled or the stream fails. It blocks while the stream is
	// healthy and returns a non-nil error on stream failure.
	Start(ctx context.Context, handler MessageHandler) error

	// IsConnected reports whether the stream is currently established.
	IsConnected() bool
}
