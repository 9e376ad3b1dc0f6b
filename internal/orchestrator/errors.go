package orchestrator

import (
	"errors"

	"github.com/daobridge/deposit/internal/redeem"
	"github.com/daobridge/deposit/internal/txprep"
	"github.com/daobridge/deposit/internal/wallet"
)

// ErrAmountOutOfBounds rejects an amount outside the configured deposit
// bounds before any network call.
var ErrAmountOutOfBounds = errors.New("deposit amount out of bounds")

// UserMessage maps a failed attempt to the discrete, human-readable message
// surfaced to the user. The generic fallback is used only when no specific
// kind matches and never claims success.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var unsupported *txprep.UnsupportedAddressTypeError
	var rejected *wallet.RejectedError

	switch {
	case errors.Is(err, wallet.ErrNoWalletPresent):
		return "No wallet integration is configured. Connect a wallet and try again."
	case errors.Is(err, ErrAmountOutOfBounds):
		return "The deposit amount is outside the allowed range."
	case errors.Is(err, txprep.ErrInscriptionsDetected):
		return "Some of the selected coins carry inscriptions and were not spent. Move them to another address and try again."
	case errors.Is(err, txprep.ErrTooManySmallUTXOs):
		return "Your balance is spread across too many small outputs to assemble this deposit. Consolidate your coins and try again."
	case errors.Is(err, txprep.ErrInsufficientFunds):
		return "Insufficient funds to cover the deposit amount plus network fees."
	case errors.As(err, &unsupported):
		return "Your wallet can't sign deposits from this address type. Fund the deposit from a native segwit address instead."
	case errors.Is(err, redeem.ErrNoPublicKey):
		return "Your wallet doesn't expose the public key needed for this address type. Use a different address type."
	case errors.Is(err, redeem.ErrPermissionDenied):
		return "The wallet denied the account access needed to sign from this address."
	case errors.As(err, &rejected):
		return "The wallet rejected the signing request: " + rejected.Message
	case errors.Is(err, wallet.ErrMalformedSignedTx):
		return "The wallet did not return a valid signed transaction."
	}
	return "The deposit could not be completed."
}
