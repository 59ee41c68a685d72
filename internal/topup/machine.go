package topup

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/m3rciful/topupbot/internal/click"
)

// EventKind enumerates the inputs of Transition.
type EventKind int

const (
	// EventStart is the /start command.
	EventStart EventKind = iota + 1
	// EventContact carries a shared phone number in Text.
	EventContact
	// EventTopUp is the "top up balance" selection.
	EventTopUp
	// EventWithdraw is the "withdraw funds" selection.
	EventWithdraw
	// EventText is any other free text.
	EventText
	// EventCardToken carries the createCardToken result.
	EventCardToken
	// EventVerified carries the verifyCardToken result.
	EventVerified
	// EventCharged carries the paymentWithToken result.
	EventCharged
	// EventGatewayFault reports a gateway call without a verdict.
	EventGatewayFault
)

var eventNames = map[EventKind]string{
	EventStart:        "start",
	EventContact:      "contact",
	EventTopUp:        "top_up",
	EventWithdraw:     "withdraw",
	EventText:         "text",
	EventCardToken:    "card_token",
	EventVerified:     "verified",
	EventCharged:      "charged",
	EventGatewayFault: "gateway_fault",
}

func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event is one input of the state machine.
type Event struct {
	Kind   EventKind
	Text   string
	Result click.Result
	Err    error
}

// EffectKind enumerates the side effects requested by Transition.
type EffectKind int

const (
	// EffectReply sends Reply to the chat.
	EffectReply EffectKind = iota + 1
	// EffectCall invokes the gateway; its outcome is fed back as an event.
	EffectCall
	// EffectRecord writes Attempt to the payment journal.
	EffectRecord
)

// Call describes a gateway operation requested by the state machine.
type Call struct {
	Op         string
	CardNumber string
	ExpireDate string
	CardToken  string
	SMSCode    string
	Amount     decimal.Decimal
	SpinbetID  string
}

// Effect is one side effect requested by Transition.
type Effect struct {
	Kind    EffectKind
	Reply   Reply
	Call    Call
	Attempt Attempt
}

// Attempt statuses.
const (
	AttemptSuccess      = "success"
	AttemptDeclined     = "declined"
	AttemptVerifyFailed = "verify_failed"
	AttemptError        = "error"
)

// Attempt describes the outcome of the SMS step of one top-up.
type Attempt struct {
	ChatID      int64
	PhoneNumber string
	SpinbetID   string
	Amount      decimal.Decimal
	MaskedCard  string
	Status      string
	ErrorCode   int
	ErrorNote   string
	PaymentID   int64
}

func reply(id string, kb Keyboard) Effect {
	return Effect{Kind: EffectReply, Reply: Reply{MessageID: id, Keyboard: kb}}
}

func replyNote(id string, res click.Result, kb Keyboard) Effect {
	return Effect{Kind: EffectReply, Reply: Reply{MessageID: id, Data: noteData(res), Keyboard: kb}}
}

func call(c Call) Effect {
	return Effect{Kind: EffectCall, Call: c}
}

func record(s Session, status string, res click.Result) Effect {
	return Effect{Kind: EffectRecord, Attempt: Attempt{
		PhoneNumber: s.phone,
		SpinbetID:   s.spinbetID,
		Amount:      s.amount,
		MaskedCard:  s.maskedCard(),
		Status:      status,
		ErrorCode:   res.ErrorCode,
		ErrorNote:   res.ErrorNote,
		PaymentID:   res.PaymentID,
	}}
}

// Transition applies ev to s and returns the next session along with the
// side effects to perform, in order. It performs no I/O.
func Transition(s Session, ev Event) (Session, []Effect) {
	switch ev.Kind {
	case EventStart:
		return Session{}, []Effect{reply(MsgWelcome, KeyboardContact)}

	case EventContact:
		return Session{state: StateMenu, phone: strings.TrimSpace(ev.Text)},
			[]Effect{reply(MsgMenu, KeyboardMenu)}

	case EventTopUp:
		return Session{state: StateAwaitingSpinbetID, phone: s.phone},
			[]Effect{reply(MsgPromptSpinbetID, KeyboardNone)}

	case EventWithdraw:
		return s, []Effect{reply(MsgWithdrawUnavailable, KeyboardNone)}

	case EventText:
		return onText(s, ev.Text)

	case EventCardToken:
		if s.state != StateAwaitingExpiry {
			return s, nil
		}
		if !ev.Result.OK() {
			return Session{}, []Effect{replyNote(MsgCardTokenError, ev.Result, KeyboardMenu)}
		}
		next := s
		next.state = StateAwaitingSMSCode
		next.cardToken = ev.Result.CardToken
		return next, []Effect{reply(MsgPromptSMSCode, KeyboardNone)}

	case EventVerified:
		if s.state != StateAwaitingSMSCode {
			return s, nil
		}
		if !ev.Result.OK() {
			return Session{}, []Effect{
				replyNote(MsgVerifyError, ev.Result, KeyboardMenu),
				record(s, AttemptVerifyFailed, ev.Result),
			}
		}
		return s, []Effect{call(Call{
			Op:        click.OpPaymentWithToken,
			CardToken: s.cardToken,
			Amount:    s.amount,
			SpinbetID: s.spinbetID,
		})}

	case EventCharged:
		if s.state != StateAwaitingSMSCode {
			return s, nil
		}
		if !ev.Result.OK() {
			return Session{}, []Effect{
				replyNote(MsgPaymentError, ev.Result, KeyboardMenu),
				record(s, AttemptDeclined, ev.Result),
			}
		}
		return Session{}, []Effect{
			reply(MsgPaymentSuccess, KeyboardMenu),
			record(s, AttemptSuccess, ev.Result),
		}

	case EventGatewayFault:
		fault := Effect{Kind: EffectReply, Reply: Reply{MessageID: MsgGenericError}}
		if s.state == StateAwaitingSMSCode {
			fault.Reply.Keyboard = KeyboardMenu
			return Session{}, []Effect{fault, record(s, AttemptError, click.Result{})}
		}
		return s, []Effect{fault}
	}
	return s, nil
}

func onText(s Session, text string) (Session, []Effect) {
	next := s
	switch s.state {
	case StateAwaitingSpinbetID:
		id := strings.TrimSpace(text)
		if id == "" {
			return s, []Effect{reply(MsgPromptSpinbetID, KeyboardNone)}
		}
		next.spinbetID = id
		next.state = StateAwaitingAmount
		return next, []Effect{reply(MsgPromptAmount, KeyboardNone)}

	case StateAwaitingAmount:
		amount, err := ParseAmount(text)
		if err != nil {
			return s, []Effect{reply(MsgInvalidAmount, KeyboardNone)}
		}
		next.amount = amount
		next.state = StateAwaitingCardNumber
		return next, []Effect{reply(MsgPromptCardNumber, KeyboardNone)}

	case StateAwaitingCardNumber:
		pan, err := NormalizeCardNumber(text)
		if err != nil {
			return s, []Effect{reply(MsgInvalidCardNumber, KeyboardNone)}
		}
		next.cardNumber = pan
		next.state = StateAwaitingExpiry
		return next, []Effect{reply(MsgPromptExpiry, KeyboardNone)}

	case StateAwaitingExpiry:
		return s, []Effect{call(Call{
			Op:         click.OpCreateCardToken,
			CardNumber: s.cardNumber,
			ExpireDate: strings.TrimSpace(text),
		})}

	case StateAwaitingSMSCode:
		return s, []Effect{call(Call{
			Op:        click.OpVerifyCardToken,
			CardToken: s.cardToken,
			SMSCode:   strings.TrimSpace(text),
		})}
	}
	// No step in progress: unmatched input is dropped.
	return s, nil
}
