package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/m3rciful/gatebot/core/logger"

	tele "gopkg.in/telebot.v4"
)

// Sender is the Bot API call used for notices.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Queue runs sends asynchronously with retries.
type Queue interface {
	Enqueue(ctx context.Context, action, endpoint string, run func() error) error
}

// Notifier tells users they left the channel.
type Notifier struct {
	sender  Sender
	queue   Queue
	channel string
}

// NewNotifier builds a Notifier. With a nil queue sends are synchronous.
func NewNotifier(sender Sender, queue Queue, channel string) *Notifier {
	return &Notifier{sender: sender, queue: queue, channel: strings.TrimPrefix(channel, "@")}
}

// NotifyUnsubscribed enqueues the unsubscribe notice for userID. Delivery
// failures after enqueueing are logged by the queue.
func (n *Notifier) NotifyUnsubscribed(ctx context.Context, userID int64) error {
	text := UnsubscribedMessage(n.channel)
	opts := &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		ReplyMarkup:           SubscribeKeyboard(n.channel),
		DisableWebPagePreview: true,
	}
	run := func() error {
		_, err := n.sender.Send(tele.ChatID(userID), text, opts)
		return err
	}

	ctx = logger.WithUpdateMeta(ctx, 0, userID, userID)
	if n.queue == nil {
		if err := run(); err != nil {
			return fmt.Errorf("bot: notify %d: %w", userID, err)
		}
		return nil
	}
	if err := n.queue.Enqueue(ctx, "notify.unsubscribed", "sendMessage", run); err != nil {
		return fmt.Errorf("bot: notify %d: %w", userID, err)
	}
	logger.Debug(ctx, component, "notify.queued", slog.Int64("user_id", userID))
	return nil
}
