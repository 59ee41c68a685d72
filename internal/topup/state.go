// Package topup implements the balance top-up conversation: a per-chat state
// machine that collects the destination account, amount and card, obtains a
// card token, verifies it with an SMS code and charges it.
package topup

import "fmt"

// State is the step a chat is at. The zero value is the initial state.
type State int

const (
	StateAwaitingContact State = iota
	StateMenu
	StateAwaitingSpinbetID
	StateAwaitingAmount
	StateAwaitingCardNumber
	StateAwaitingExpiry
	StateAwaitingSMSCode
)

var stateNames = [...]string{
	StateAwaitingContact:    "awaiting_contact",
	StateMenu:               "menu",
	StateAwaitingSpinbetID:  "awaiting_spinbet_id",
	StateAwaitingAmount:     "awaiting_amount",
	StateAwaitingCardNumber: "awaiting_card_number",
	StateAwaitingExpiry:     "awaiting_expiry",
	StateAwaitingSMSCode:    "awaiting_sms_code",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// InFlow reports whether s is one of the multi-step top-up states.
func (s State) InFlow() bool {
	return s >= StateAwaitingSpinbetID && s <= StateAwaitingSMSCode
}
