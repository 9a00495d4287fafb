package model

import (
	"github.com/shopspring/decimal"

	"github.com/meridianpay/tokenvault/internal/errors"
)

// MinorUnitScale is the number of decimal places carried in minor units.
const MinorUnitScale = 2

// ParseAmount converts a client-submitted decimal string into minor units.
// The parse is exact: floating point is never involved, and amounts with
// more than MinorUnitScale fractional digits are rejected rather than
// rounded.
func ParseAmount(s string) (int64, error) {
	if s == "" {
		return 0, errors.Validationf("Missing required fields: amount")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, errors.Validationf("Invalid amount")
	}
	if d.Exponent() < -MinorUnitScale {
		return 0, errors.Validationf("Invalid amount")
	}
	minor := d.Shift(MinorUnitScale)
	if !minor.IsInteger() {
		return 0, errors.Validationf("Invalid amount")
	}
	if !minor.IsPositive() {
		return 0, errors.Validationf("Invalid amount")
	}
	if !minor.BigInt().IsInt64() {
		return 0, errors.Validationf("Invalid amount")
	}
	return minor.IntPart(), nil
}

// FormatAmount renders minor units back to a decimal string, e.g. 10050 →
// "100.50".
func FormatAmount(minor int64) string {
	return decimal.New(minor, -MinorUnitScale).StringFixed(MinorUnitScale)
}
