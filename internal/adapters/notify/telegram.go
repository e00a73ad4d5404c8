package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"signalTrader/internal/ports"
)

// TelegramNotifier implements the ports.Notifier interface by sending
// messages to the operator's chat. Delivery is best-effort: failures are
// logged and never propagate into trading flows.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger ports.Logger
}

// Config holds configuration for the Telegram notifier.
type Config struct {
	Token  string
	ChatID int64 // Operator chat that receives notifications
	Logger ports.Logger
}

// New creates a new Telegram notifier.
func New(cfg Config) (*TelegramNotifier, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Telegram notifier")
	}
	if cfg.Token == "" || cfg.ChatID == 0 {
		return nil, fmt.Errorf("%w: Telegram token and operator chat id are required", ports.ErrConfigurationError)
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrAuthenticationFailed, err)
	}
	return &TelegramNotifier{bot: bot, chatID: cfg.ChatID, logger: cfg.Logger}, nil
}

// Send delivers one notification to the operator chat. Errors are swallowed
// after logging.
func (n *TelegramNotifier) Send(ctx context.Context, message, title string) {
	text := message
	if title != "" {
		text = title + "\n" + message
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		n.logger.Warn(ctx, "Operator notification failed", map[string]interface{}{"title": title, "error": err.Error()})
	}
}
