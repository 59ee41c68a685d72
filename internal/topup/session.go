package topup

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrFieldUnavailable is returned by Session accessors for fields the
// current state has not collected.
var ErrFieldUnavailable = errors.New("topup: field not available in current state")

// Session is the conversation record of one chat. Fields are filled in
// order as the flow advances; the zero value is an empty session.
type Session struct {
	state      State
	phone      string
	spinbetID  string
	amount     decimal.Decimal
	cardNumber string
	cardToken  string
}

// State returns the current step.
func (s Session) State() State { return s.state }

// PhoneNumber returns the shared contact phone, empty until one is shared.
func (s Session) PhoneNumber() string { return s.phone }

// SpinbetID returns the destination account id.
func (s Session) SpinbetID() (string, error) {
	if s.state < StateAwaitingAmount {
		return "", s.unavailable("spinbet_id")
	}
	return s.spinbetID, nil
}

// Amount returns the validated top-up amount.
func (s Session) Amount() (decimal.Decimal, error) {
	if s.state < StateAwaitingCardNumber {
		return decimal.Decimal{}, s.unavailable("amount")
	}
	return s.amount, nil
}

// CardNumber returns the normalized 16-digit card number.
func (s Session) CardNumber() (string, error) {
	if s.state < StateAwaitingExpiry {
		return "", s.unavailable("card_number")
	}
	return s.cardNumber, nil
}

// CardToken returns the gateway token issued for the card.
func (s Session) CardToken() (string, error) {
	if s.state != StateAwaitingSMSCode {
		return "", s.unavailable("card_token")
	}
	return s.cardToken, nil
}

// Empty reports whether every field holds its initial value.
func (s Session) Empty() bool {
	return s.state == StateAwaitingContact &&
		s.phone == "" &&
		s.spinbetID == "" &&
		s.amount.IsZero() &&
		s.cardNumber == "" &&
		s.cardToken == ""
}

func (s Session) unavailable(field string) error {
	return fmt.Errorf("%w: %s in %s", ErrFieldUnavailable, field, s.state)
}

// maskedCard is the loggable form of the card number.
func (s Session) maskedCard() string {
	if s.cardNumber == "" {
		return ""
	}
	return maskCard(s.cardNumber)
}
