package razorpay

import (
	"github.com/shopspring/decimal"
)

// CurrencyScale is the number of minor-unit digits (paise for INR).
const CurrencyScale int32 = 2

type AmountError struct {
	Code    string
	Message string
}

func (e AmountError) Error() string { return e.Message }

var hundred = decimal.NewFromInt(100)

// ToMinorUnits converts a major-unit amount (rupees) into the integer minor
// units the gateway expects. Fractions below one paisa are rejected rather
// than rounded so the charged amount always matches the booking.
func ToMinorUnits(amount decimal.Decimal) (int64, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return 0, AmountError{Code: "AMOUNT_INVALID", Message: "amount must be > 0"}
	}
	if !amount.Round(CurrencyScale).Equal(amount) {
		return 0, AmountError{Code: "AMOUNT_PRECISION", Message: "amount has more than 2 decimal places"}
	}
	minor := amount.Mul(hundred)
	if !minor.IsInteger() {
		return 0, AmountError{Code: "AMOUNT_PRECISION", Message: "amount has more than 2 decimal places"}
	}
	return minor.IntPart(), nil
}

// FromMinorUnits is the inverse of ToMinorUnits.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -CurrencyScale)
}
