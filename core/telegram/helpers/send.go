package helpers

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/topupbot/core/logger"
	"github.com/m3rciful/topupbot/core/telegram/sender"
)

var globalDispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher wires the asynchronous sender used by helper functions.
func SetDispatcher(d *sender.Dispatcher) {
	globalDispatcher.Store(d)
}

func currentDispatcher() *sender.Dispatcher {
	return globalDispatcher.Load()
}

// sendAsync queues run on the dispatcher, or calls it directly when no
// dispatcher is wired. A job the dispatcher cannot accept is never run out of
// order: it is reported through the dispatcher's failure path instead.
func sendAsync(ctx context.Context, action, endpoint string, run func() error) error {
	disp := currentDispatcher()
	if disp == nil {
		return run()
	}

	err := disp.Enqueue(ctx, action, endpoint, run)
	if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
		logger.Warn(ctx, "tg.sender", "queue.rejected",
			slog.String("action", action),
			slog.String("endpoint", endpoint),
			slog.String("err", err.Error()),
		)
		disp.Reject(ctx, action, endpoint, err)
	}
	return err
}

// SendTo sends raw text to chatID outside of an update context, e.g. from a
// component that only knows the chat identity. action tags the dispatcher job.
func SendTo(ctx context.Context, bot *tele.Bot, action string, chatID int64, text string, opts *tele.SendOptions) error {
	if bot == nil {
		return errors.New("telegram helpers: bot is not running")
	}
	return sendAsync(ctx, action, "sendMessage", func() error {
		if opts != nil {
			_, err := bot.Send(tele.ChatID(chatID), text, opts)
			return err
		}
		_, err := bot.Send(tele.ChatID(chatID), text)
		return err
	})
}
