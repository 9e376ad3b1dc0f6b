package util

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// SatsPerBtc is the number of base units in one bitcoin.
const SatsPerBtc = 100_000_000

var satsPerBtcDec = decimal.NewFromInt(SatsPerBtc)

// BtcToSats converts a human-readable BTC amount ("0.0002") to satoshis.
// Amounts with more than 8 decimal places or outside (0, 21M] are rejected.
func BtcToSats(amount string) (uint64, error) {
	if amount == "" {
		return 0, fmt.Errorf("amount cannot be empty")
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return 0, fmt.Errorf("failed to parse amount: %w", err)
	}
	if d.Exponent() < -8 {
		return 0, fmt.Errorf("amount %s has more than 8 decimal places", amount)
	}
	if !d.IsPositive() {
		return 0, fmt.Errorf("amount must be positive, got %s", amount)
	}

	sats := d.Mul(satsPerBtcDec)
	if !sats.IsInteger() {
		return 0, fmt.Errorf("amount %s is not representable in satoshis", amount)
	}
	if sats.GreaterThan(decimal.NewFromInt(21_000_000 * SatsPerBtc)) {
		return 0, fmt.Errorf("amount %s exceeds total supply", amount)
	}

	return uint64(sats.IntPart()), nil
}

// SatsToBtc formats satoshis as a BTC decimal string.
func SatsToBtc(sats uint64) string {
	return decimal.NewFromUint64(sats).Div(satsPerBtcDec).String()
}
