package app

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/topupbot/core/logger"
	coretelegram "github.com/m3rciful/topupbot/core/telegram"
	"github.com/m3rciful/topupbot/core/telegram/helpers"
	"github.com/m3rciful/topupbot/core/telegram/keyboard"
	"github.com/m3rciful/topupbot/core/telegram/router"
	"github.com/m3rciful/topupbot/core/telegram/sender"
	"github.com/m3rciful/topupbot/internal/topup"
)

// Dispatcher actions of outbound messages.
const (
	actionReply  = "send.reply"
	actionNotice = "send.notice"
)

func (a *App) registry() *coretelegram.Registry {
	reg := coretelegram.NewRegistry()
	reg.RegisterCommand("/start", coretelegram.Command{
		Handler:     a.onStart,
		Description: "Start",
	})
	return reg
}

func (a *App) routes(reg *coretelegram.Registry) []coretelegram.Route {
	routes := router.CommandRoutes(reg)
	return append(routes, router.MessageRoutes(reg, router.MessageOptions{
		Contact: a.onContact,
		Text:    a.onText,
	})...)
}

func (a *App) dispatcherOptions() sender.Options {
	return sender.Options{
		MaxRetries: 2,
		OnFailure:  a.onDeliveryFailure,
	}
}

func chatID(c tele.Context) (int64, bool) {
	chat := c.Chat()
	if chat == nil {
		return 0, false
	}
	return chat.ID, true
}

func (a *App) onStart(c tele.Context) error {
	id, ok := chatID(c)
	if !ok {
		return nil
	}
	return a.engine.HandleStart(helpers.BuildContext(c), id)
}

func (a *App) onContact(c tele.Context) error {
	id, ok := chatID(c)
	msg := c.Message()
	if !ok || msg == nil || msg.Contact == nil {
		return nil
	}
	return a.engine.HandleContact(helpers.BuildContext(c), id, msg.Contact.PhoneNumber)
}

func (a *App) onText(c tele.Context) error {
	id, ok := chatID(c)
	if !ok {
		return nil
	}
	return a.engine.HandleText(helpers.BuildContext(c), id, c.Text())
}

func (a *App) onLimited(c tele.Context) error {
	logger.FromContext(helpers.BuildContext(c)).Debug("update dropped",
		slog.String("event", "rate_limited"),
		slog.String("status", "rate_limited"),
	)
	return nil
}

// onError receives handler errors. Faults the engine already reported are
// only logged; anything else gets the generic notice.
func (a *App) onError(err error, c tele.Context) {
	if c == nil {
		logger.TG.Error("update failed", slog.String("event", "update.error"), slog.String("err", err.Error()))
		return
	}
	ctx := helpers.BuildContext(c)
	if errors.Is(err, topup.ErrUserNotified) {
		return
	}
	id, ok := chatID(c)
	if !ok {
		logger.FromContext(ctx).Error("update failed",
			slog.String("event", "update.error"),
			slog.String("err", err.Error()),
		)
		return
	}
	a.engine.HandleDeliveryError(ctx, id, err)
}

// onDeliveryFailure runs when the dispatcher gave up on a message.
func (a *App) onDeliveryFailure(ctx context.Context, action string, err error) {
	if action == actionNotice {
		return
	}
	id := logger.ChatIDFrom(ctx)
	if id == 0 {
		return
	}
	a.engine.HandleDeliveryError(ctx, id, err)
}

// messenger delivers engine messages through the running bot.
type messenger struct {
	bot atomic.Pointer[tele.Bot]
}

func (m *messenger) bind(b *tele.Bot) {
	m.bot.Store(b)
}

func (m *messenger) Send(ctx context.Context, chatID int64, msg topup.Message) error {
	action := actionReply
	if msg.Notice {
		action = actionNotice
	}
	if logger.ChatIDFrom(ctx) != chatID {
		ctx = logger.WithUpdateMeta(ctx, logger.UpdateIDFrom(ctx), logger.UserIDFrom(ctx), chatID)
	}
	var opts *tele.SendOptions
	if markup := replyMarkup(msg); markup != nil {
		opts = &tele.SendOptions{ReplyMarkup: markup}
	}
	return helpers.SendTo(ctx, m.bot.Load(), action, chatID, msg.Text, opts)
}

func replyMarkup(msg topup.Message) *tele.ReplyMarkup {
	switch msg.Keyboard {
	case topup.KeyboardContact:
		if len(msg.Buttons) == 0 {
			return nil
		}
		return keyboard.ContactRequest(msg.Buttons[0])
	case topup.KeyboardMenu:
		if len(msg.Buttons) == 0 {
			return nil
		}
		return keyboard.ReplyButtons(msg.Buttons)
	default:
		return nil
	}
}
