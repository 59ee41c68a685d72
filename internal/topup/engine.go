package topup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/m3rciful/topupbot/core/logger"
	"github.com/m3rciful/topupbot/core/telegram/state"
	"github.com/m3rciful/topupbot/internal/click"
	"github.com/m3rciful/topupbot/internal/metrics"
)

// ErrUserNotified wraps faults the engine has already reported to the user.
var ErrUserNotified = errors.New("topup: user notified")

// Gateway is the subset of the payment gateway client used by the flow.
type Gateway interface {
	CreateCardToken(ctx context.Context, serviceID int64, cardNumber, expireDate string, temporary bool) (click.Result, error)
	VerifyCardToken(ctx context.Context, serviceID int64, cardToken, smsCode string) (click.Result, error)
	PaymentWithToken(ctx context.Context, serviceID int64, cardToken string, amount decimal.Decimal, merchantTransID string) (click.Result, error)
}

// Messenger delivers messages to a chat.
type Messenger interface {
	Send(ctx context.Context, chatID int64, msg Message) error
}

// Texts resolves message ids to localized text.
type Texts interface {
	Text(id string, data map[string]any) string
}

// Journal stores top-up attempts.
type Journal interface {
	Record(ctx context.Context, a Attempt) error
}

type nopJournal struct{}

func (nopJournal) Record(context.Context, Attempt) error { return nil }

// Options configure an Engine.
type Options struct {
	ServiceID int64
	Gateway   Gateway
	Messenger Messenger
	Texts     Texts
	// Journal is optional.
	Journal Journal
}

// Engine runs the conversation of every chat. Events of one chat are
// processed one at a time; different chats proceed in parallel.
type Engine struct {
	serviceID int64
	gateway   Gateway
	messenger Messenger
	texts     Texts
	journal   Journal
	sessions  *state.Store[Session]
}

// NewEngine validates opts and builds an Engine.
func NewEngine(opts Options) (*Engine, error) {
	switch {
	case opts.Gateway == nil:
		return nil, errors.New("topup: gateway is required")
	case opts.Messenger == nil:
		return nil, errors.New("topup: messenger is required")
	case opts.Texts == nil:
		return nil, errors.New("topup: texts are required")
	}
	journal := opts.Journal
	if journal == nil {
		journal = nopJournal{}
	}
	return &Engine{
		serviceID: opts.ServiceID,
		gateway:   opts.Gateway,
		messenger: opts.Messenger,
		texts:     opts.Texts,
		journal:   journal,
		sessions:  state.NewStore[Session](),
	}, nil
}

// Session returns a snapshot of the session of chatID.
func (e *Engine) Session(chatID int64) Session {
	return e.sessions.Get(chatID)
}

// HandleStart greets the user and asks for their contact.
func (e *Engine) HandleStart(ctx context.Context, chatID int64) error {
	return e.handle(ctx, chatID, Event{Kind: EventStart})
}

// HandleContact records the shared phone number and shows the menu.
func (e *Engine) HandleContact(ctx context.Context, chatID int64, phone string) error {
	return e.handle(ctx, chatID, Event{Kind: EventContact, Text: phone})
}

// HandleText routes a text message: menu selections first, then the current step.
func (e *Engine) HandleText(ctx context.Context, chatID int64, text string) error {
	return e.handle(ctx, chatID, e.classify(text))
}

// HandleDeliveryError is called by the transport when a message to chatID
// could not be delivered or an update failed outside the engine. The
// session is left untouched and the user gets the generic failure notice.
func (e *Engine) HandleDeliveryError(ctx context.Context, chatID int64, cause error) {
	attrs := []slog.Attr{
		slog.String("event", "topup.delivery_error"),
		slog.Int64("chat_id", chatID),
	}
	if cause != nil {
		attrs = append(attrs, slog.String("err", cause.Error()))
	}
	logger.Topup.LogAttrs(ctx, slog.LevelWarn, "delivery failed", attrs...)
	e.notify(ctx, chatID)
}

func (e *Engine) classify(text string) Event {
	label := strings.TrimSpace(text)
	switch label {
	case LabelTopUp, e.texts.Text(MsgButtonTopUp, nil):
		return Event{Kind: EventTopUp}
	case LabelWithdraw, e.texts.Text(MsgButtonWithdraw, nil):
		return Event{Kind: EventWithdraw}
	}
	return Event{Kind: EventText, Text: text}
}

// handle is the per-event boundary: any fault escaping the step is logged and
// turned into one generic notice.
func (e *Engine) handle(ctx context.Context, chatID int64, ev Event) error {
	notified := false
	err := e.sessions.Update(chatID, func(s *Session) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				notified = e.abandon(ctx, chatID, s, err)
			}
		}()
		return e.run(ctx, chatID, s, ev)
	})
	if err == nil {
		return nil
	}
	logger.Topup.LogAttrs(ctx, slog.LevelError, "event failed",
		slog.String("event", "topup.fault"),
		slog.Int64("chat_id", chatID),
		slog.String("op", ev.Kind.String()),
		slog.String("err", err.Error()),
	)
	if !notified {
		e.notify(ctx, chatID)
	}
	return fmt.Errorf("%w: %w", ErrUserNotified, err)
}

// abandon settles a session interrupted by a panic at the SMS step as a
// gateway fault: the session and its card token are cleared and the attempt
// is recorded. It reports whether the generic notice went out.
func (e *Engine) abandon(ctx context.Context, chatID int64, s *Session, cause error) (notified bool) {
	if s.state != StateAwaitingSMSCode {
		return false
	}
	next, effects := Transition(*s, Event{Kind: EventGatewayFault, Err: cause})
	*s = next

	defer func() {
		if r := recover(); r != nil {
			logger.Topup.LogAttrs(ctx, slog.LevelError, "abandon failed",
				slog.String("event", "topup.fault"),
				slog.Int64("chat_id", chatID),
				slog.Any("err", r),
			)
			notified = false
		}
	}()
	for _, eff := range effects {
		switch eff.Kind {
		case EffectReply:
			e.reply(ctx, chatID, eff.Reply)
			notified = notified || eff.Reply.MessageID == MsgGenericError
		case EffectRecord:
			eff.Attempt.ChatID = chatID
			e.record(ctx, eff.Attempt)
		}
	}
	return notified
}

func (e *Engine) run(ctx context.Context, chatID int64, s *Session, first Event) error {
	queue := []Event{first}
	for len(queue) > 0 {
		ev := queue[0]
		queue = queue[1:]

		prev := s.state
		next, effects := Transition(*s, ev)
		*s = next
		e.logTransition(ctx, chatID, ev, prev, next.state, len(effects))

		for _, eff := range effects {
			switch eff.Kind {
			case EffectReply:
				e.reply(ctx, chatID, eff.Reply)
			case EffectCall:
				queue = append(queue, e.call(ctx, chatID, eff.Call))
			case EffectRecord:
				eff.Attempt.ChatID = chatID
				e.record(ctx, eff.Attempt)
			default:
				return fmt.Errorf("unknown effect %d", eff.Kind)
			}
		}
	}
	return nil
}

func (e *Engine) logTransition(ctx context.Context, chatID int64, ev Event, from, to State, effects int) {
	outcome := "ok"
	if effects == 0 {
		outcome = "ignored"
	}
	logger.Topup.LogAttrs(ctx, slog.LevelDebug, "transition",
		slog.String("event", "topup.transition"),
		slog.Int64("chat_id", chatID),
		slog.String("op", ev.Kind.String()),
		slog.String("state", from.String()),
		slog.String("next_state", to.String()),
		slog.String("outcome", outcome),
	)
}

// call performs a gateway operation and converts its outcome into an event.
func (e *Engine) call(ctx context.Context, chatID int64, c Call) Event {
	var (
		res  click.Result
		err  error
		kind EventKind
	)
	switch c.Op {
	case click.OpCreateCardToken:
		kind = EventCardToken
		res, err = e.gateway.CreateCardToken(ctx, e.serviceID, c.CardNumber, c.ExpireDate, true)
	case click.OpVerifyCardToken:
		kind = EventVerified
		res, err = e.gateway.VerifyCardToken(ctx, e.serviceID, c.CardToken, c.SMSCode)
	case click.OpPaymentWithToken:
		kind = EventCharged
		res, err = e.gateway.PaymentWithToken(ctx, e.serviceID, c.CardToken, c.Amount, c.SpinbetID)
	default:
		err = fmt.Errorf("unsupported gateway op %q", c.Op)
	}
	if err != nil {
		logger.Topup.LogAttrs(ctx, slog.LevelError, "gateway fault",
			slog.String("event", "topup.gateway_fault"),
			slog.Int64("chat_id", chatID),
			slog.String("op", c.Op),
			slog.Bool("transport", click.IsTransport(err)),
			slog.String("err", err.Error()),
		)
		return Event{Kind: EventGatewayFault, Err: err}
	}
	return Event{Kind: kind, Result: res}
}

func (e *Engine) reply(ctx context.Context, chatID int64, r Reply) {
	msg := e.render(r)
	metrics.ObserveReply(r.MessageID)
	if err := e.messenger.Send(ctx, chatID, msg); err != nil {
		logger.Topup.LogAttrs(ctx, slog.LevelWarn, "reply not queued",
			slog.String("event", "topup.reply"),
			slog.Int64("chat_id", chatID),
			slog.String("message_id", r.MessageID),
			slog.String("err", err.Error()),
		)
	}
}

func (e *Engine) render(r Reply) Message {
	msg := Message{
		Text:     e.texts.Text(r.MessageID, r.Data),
		Keyboard: r.Keyboard,
		Notice:   r.MessageID == MsgGenericError,
	}
	switch r.Keyboard {
	case KeyboardContact:
		msg.Buttons = []string{e.texts.Text(MsgButtonContact, nil)}
	case KeyboardMenu:
		msg.Buttons = []string{e.texts.Text(MsgButtonTopUp, nil), e.texts.Text(MsgButtonWithdraw, nil)}
	}
	return msg
}

func (e *Engine) notify(ctx context.Context, chatID int64) {
	e.reply(ctx, chatID, Reply{MessageID: MsgGenericError})
}

func (e *Engine) record(ctx context.Context, a Attempt) {
	metrics.ObservePayment(a.Status)
	level := slog.LevelInfo
	if a.Status != AttemptSuccess {
		level = slog.LevelWarn
	}
	logger.Topup.LogAttrs(ctx, level, "top-up finished",
		slog.String("event", "topup.attempt"),
		slog.Int64("chat_id", a.ChatID),
		slog.String("spinbet_id", a.SpinbetID),
		slog.String("amount", a.Amount.String()),
		slog.String("card", a.MaskedCard),
		slog.String("status", a.Status),
		slog.Int("error_code", a.ErrorCode),
		slog.String("error_note", a.ErrorNote),
		slog.Int64("payment_id", a.PaymentID),
	)
	if err := e.journal.Record(ctx, a); err != nil {
		logger.Journal.LogAttrs(ctx, slog.LevelError, "journal write failed",
			slog.String("event", "journal.write"),
			slog.Int64("chat_id", a.ChatID),
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}
}
