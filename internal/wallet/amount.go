package wallet

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Allowed amount range for a single operation, inclusive on both ends.
var (
	minAmount = decimal.New(1, -2)        // 0.01
	maxAmount = decimal.New(1_000_000, 0) // 1,000,000.00
)

// validateAmount rejects amounts before any storage access: the amount must
// be positive, carry at most two fractional digits and fit the allowed range.
func validateAmount(amount decimal.Decimal) error {
	if !amount.Equal(amount.Truncate(2)) {
		return fmt.Errorf("%w: %s has more than two fractional digits", ErrInvalidAmount, amount)
	}
	if amount.LessThan(minAmount) || amount.GreaterThan(maxAmount) {
		return fmt.Errorf("%w: %s is outside [%s, %s]",
			ErrInvalidAmount, amount, minAmount.StringFixed(2), maxAmount.StringFixed(2))
	}
	return nil
}
