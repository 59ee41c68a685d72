package topup

import (
	"strings"

	"github.com/m3rciful/topupbot/internal/click"
)

// Message ids resolved through Texts.
const (
	MsgWelcome             = "welcome"
	MsgMenu                = "menu"
	MsgButtonContact       = "button_request_contact"
	MsgButtonTopUp         = "button_top_up"
	MsgButtonWithdraw      = "button_withdraw"
	MsgWithdrawUnavailable = "withdraw_unavailable"
	MsgPromptSpinbetID     = "prompt_spinbet_id"
	MsgPromptAmount        = "prompt_amount"
	MsgPromptCardNumber    = "prompt_card_number"
	MsgPromptExpiry        = "prompt_expiry"
	MsgPromptSMSCode       = "prompt_sms_code"
	MsgInvalidAmount       = "invalid_amount"
	MsgInvalidCardNumber   = "invalid_card_number"
	MsgCardTokenError      = "card_token_error"
	MsgVerifyError         = "verify_error"
	MsgPaymentError        = "payment_error"
	MsgPaymentSuccess      = "payment_success"
	MsgGenericError        = "generic_error"
)

// Literal labels of the reply buttons. They are always recognized as menu
// selections, whatever the configured language.
const (
	LabelRequestContact = "request contact"
	LabelTopUp          = "top up balance"
	LabelWithdraw       = "withdraw funds"
)

// Keyboard selects the reply keyboard attached to an outbound message.
type Keyboard int

const (
	// KeyboardNone leaves the keyboard the user already has.
	KeyboardNone Keyboard = iota
	// KeyboardContact asks the user to share their phone number.
	KeyboardContact
	// KeyboardMenu offers the top-up and withdraw selections.
	KeyboardMenu
)

func (k Keyboard) String() string {
	switch k {
	case KeyboardContact:
		return "contact"
	case KeyboardMenu:
		return "menu"
	default:
		return "none"
	}
}

// Reply is an outbound message before localization.
type Reply struct {
	MessageID string
	Data      map[string]any
	Keyboard  Keyboard
}

// Message is a localized outbound message.
type Message struct {
	Text     string
	Keyboard Keyboard
	// Buttons holds the localized labels of Keyboard, one per button.
	Buttons []string
	// Notice marks a failure notification. Delivery failures of a notice
	// must not trigger another notice.
	Notice bool
}

// noteData carries a gateway failure into an error text. Note is blank when
// the gateway sent none; catalogs then show Code.
func noteData(res click.Result) map[string]any {
	return map[string]any{"Note": strings.TrimSpace(res.ErrorNote), "Code": res.ErrorCode}
}
