package telegramsource

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"signalTrader/internal/ports"
)

// Source implements the ports.MessageSource interface over the Telegram Bot
// API using long polling.
//
// Polling is driven directly through GetUpdates rather than the library's
// internal update channel: the internal channel swallows transport errors and
// retries forever, while the monitor layer needs stream failures surfaced so
// it can apply its own bounded reconnect policy.
type Source struct {
	bot         *tgbotapi.BotAPI
	logger      ports.Logger
	pollTimeout int
	offset      int
	connected   atomic.Bool
}

// Config holds configuration for the Telegram message source.
type Config struct {
	Token       string
	Logger      ports.Logger
	PollTimeout time.Duration // Long-poll hold time (default 30s)
}

// New creates a new Telegram message source and verifies the token.
func New(cfg Config) (*Source, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Telegram source")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("%w: Telegram token is required", ports.ErrConfigurationError)
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 30 * time.Second
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrAuthenticationFailed, err)
	}
	cfg.Logger.Info(context.Background(), "Telegram source authorized", map[string]interface{}{"account": bot.Self.UserName})

	return &Source{
		bot:         bot,
		logger:      cfg.Logger,
		pollTimeout: int(cfg.PollTimeout.Seconds()),
	}, nil
}

// Start consumes updates until the context is canceled or the stream fails.
// It returns a non-nil error on stream failure so the caller can reconnect;
// a canceled context returns ctx.Err().
func (s *Source) Start(ctx context.Context, handler ports.MessageHandler) error {
	op := "Start"
	s.connected.Store(true)
	defer s.connected.Store(false)

	s.logger.Info(ctx, op+": Listening for channel posts", map[string]interface{}{"offset": s.offset})
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		u := tgbotapi.NewUpdate(s.offset)
		u.Timeout = s.pollTimeout
		u.AllowedUpdates = []string{"channel_post", "message"}

		updates, err := s.bot.GetUpdates(u)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %v", ports.ErrSourceDisconnected, err)
		}

		for _, update := range updates {
			if update.UpdateID >= s.offset {
				s.offset = update.UpdateID + 1
			}
			msg := update.ChannelPost
			if msg == nil {
				msg = update.Message
			}
			if msg == nil || msg.Text == "" {
				continue
			}
			handler(ports.InboundMessage{
				ChannelID:  msg.Chat.ID,
				Text:       msg.Text,
				ReceivedAt: time.Unix(int64(msg.Date), 0).UTC(),
			})
		}
	}
}

// IsConnected reports whether the source is currently consuming updates.
func (s *Source) IsConnected() bool {
	return s.connected.Load()
}
