package topup

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/m3rciful/topupbot/core/logger"
)

const (
	cardNumberLength = 16

	// Amounts carry at most two fractional digits and fifteen integer digits.
	// Bounding the exponent first keeps formatting of hostile inputs such as
	// "1e2000000000" from allocating one byte per digit.
	maxAmountScale     = 2
	maxAmountIntDigits = 15
	maxAmountExponent  = 18
)

var (
	// ErrInvalidAmount reports an amount that is not a number greater than zero.
	ErrInvalidAmount = errors.New("amount must be a number greater than zero")
	// ErrInvalidCardNumber reports a card number that is not 16 digits.
	ErrInvalidCardNumber = errors.New("card number must be 16 digits")
)

// ParseAmount parses s as a decimal strictly greater than zero, with at most
// two fractional digits and fifteen integer digits.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, ErrInvalidAmount
	}
	if exp := d.Exponent(); exp > maxAmountExponent || exp < -maxAmountExponent {
		return decimal.Decimal{}, ErrInvalidAmount
	}
	if !d.IsPositive() || !d.Equal(d.Round(maxAmountScale)) {
		return decimal.Decimal{}, ErrInvalidAmount
	}
	if d.NumDigits()+int(d.Exponent()) > maxAmountIntDigits {
		return decimal.Decimal{}, ErrInvalidAmount
	}
	return d, nil
}

// ValidateAmount reports whether s parses as a number greater than zero.
func ValidateAmount(s string) bool {
	_, err := ParseAmount(s)
	return err == nil
}

// NormalizeCardNumber removes spaces and checks that exactly 16 ASCII digits remain.
func NormalizeCardNumber(s string) (string, error) {
	digits := strings.ReplaceAll(s, " ", "")
	if len(digits) != cardNumberLength {
		return "", ErrInvalidCardNumber
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return "", ErrInvalidCardNumber
		}
	}
	return digits, nil
}

// ValidateCardNumber reports whether s is 16 digits once spaces are removed.
func ValidateCardNumber(s string) bool {
	_, err := NormalizeCardNumber(s)
	return err == nil
}

func maskCard(pan string) string {
	return logger.MaskPAN(pan)
}
