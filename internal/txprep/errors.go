package txprep

import "errors"

// Preparation failure kinds. Each is surfaced to the user with its own
// message and none is retried automatically.
var (
	// ErrInscriptionsDetected: one or more candidate inputs carry
	// inscriptions and must not be spent as plain sats.
	ErrInscriptionsDetected = errors.New("selected inputs carry inscriptions")

	// ErrTooManySmallUTXOs: the wallet's UTXO set is too fragmented to
	// assemble the amount within standardness limits.
	ErrTooManySmallUTXOs = errors.New("too many small utxos to assemble transaction")

	// ErrInsufficientFunds: the amount plus fees exceeds the spendable
	// balance. Also the interpretation of an unclassified server error.
	ErrInsufficientFunds = errors.New("insufficient funds for amount plus fees")
)

// UnsupportedAddressTypeError signals that the assembly service cannot derive
// the spend script for the sender's address type server-side. When
// NeedsFrontendInputHandling is set the caller may resolve and inject the
// inputs itself before signing.
type UnsupportedAddressTypeError struct {
	AddressType                string
	NeedsFrontendInputHandling bool
}

func (e *UnsupportedAddressTypeError) Error() string {
	return "unsupported address type for redeem-script derivation: " + e.AddressType
}

const (
	codeInscriptions       = "inscriptions_detected"
	codeTooManySmallUTXOs  = "too_many_small_utxos"
	codeUnsupportedAddress = "unsupported_address_type"
	codeInsufficientFunds  = "insufficient_funds"
)
