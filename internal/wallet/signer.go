package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// SighashType names a signature-hash mode declared to the wallet.
type SighashType string

const (
	SighashAll    SighashType = "ALL"
	SighashNone   SighashType = "NONE"
	SighashSingle SighashType = "SINGLE"

	SighashAllAnyoneCanPay    SighashType = "ALL|ANYONECANPAY"
	SighashNoneAnyoneCanPay   SighashType = "NONE|ANYONECANPAY"
	SighashSingleAnyoneCanPay SighashType = "SINGLE|ANYONECANPAY"
)

// AllowedSighashes returns the sighash modes declared for a signing request.
// Transactions carrying third-party-contributed inputs additionally declare
// the any-can-pay forms.
func AllowedSighashes(thirdPartyInputs bool) []SighashType {
	base := []SighashType{SighashAll, SighashNone, SighashSingle}
	if !thirdPartyInputs {
		return base
	}
	return append(base, SighashAllAnyoneCanPay, SighashNoneAnyoneCanPay, SighashSingleAnyoneCanPay)
}

// ErrNoWalletPresent is reported before any signing attempt begins when no
// wallet integration is configured.
var ErrNoWalletPresent = errors.New("no wallet integration is configured")

// ErrMalformedSignedTx covers a signing response whose result field is
// missing or unusable.
var ErrMalformedSignedTx = errors.New("wallet did not return a valid signed transaction")

// ErrPermissionRequired is returned by account lookups the wallet gates
// behind an explicit permission grant.
var ErrPermissionRequired = errors.New("wallet permission required")

// ErrPermissionDenied is terminal for the deposit attempt.
var ErrPermissionDenied = errors.New("wallet permission denied")

// RejectedError is the wallet's normal failure path: a populated error
// object (or non-"success" status), distinct from a transport-level failure.
type RejectedError struct {
	Code    string
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("wallet rejected signing request: %s (%s)", e.Message, e.Code)
}

// SignRequest carries one unsigned funding transaction to a wallet variant.
// Both encodings of the same transaction are present; each variant consumes
// the one its integration contract expects.
type SignRequest struct {
	UnsignedTxHex    string
	PsbtBase64       string
	SignInputs       map[string][]uint32
	ThirdPartyInputs bool
}

// SignResult is the normalized outcome of a signing call. Exactly one of
// SignedTxHex (deferred-broadcast) or TxID (auto-broadcast) is populated.
type SignResult struct {
	SignedTxHex string
	TxID        string
	Broadcasted bool
}

// Signer is the wallet strategy interface. The active implementation is
// selected once at the start of a deposit attempt and used for every wallet
// interaction of that attempt.
type Signer interface {
	Name() string

	// ResolvesRedeemScripts reports whether the integration derives
	// legacy-wrapped-segwit redeem scripts itself. When false, inputs for
	// such addresses must be injected before Sign is called.
	ResolvesRedeemScripts() bool

	Sign(ctx context.Context, req SignRequest) (SignResult, error)
}

const PurposePayment = "payment"

// AccountAddress is one entry of a wallet's account descriptor.
type AccountAddress struct {
	Address   string `json:"address"`
	Purpose   string `json:"purpose"`
	PublicKey string `json:"publicKey"`
}

// AccountProvider exposes the wallet's account descriptor to the redeem
// script resolver.
type AccountProvider interface {
	Accounts(ctx context.Context) ([]AccountAddress, error)
	RequestPermissions(ctx context.Context) error
}

// Registry holds the configured wallet integrations and selects the active
// one. Selection is a pure function of which integrations are present; no
// per-step re-checking happens downstream.
type Registry struct {
	deferred *DeferredSigner
	indexed  *IndexedSigner
}

func NewRegistry(deferred *DeferredSigner, indexed *IndexedSigner) *Registry {
	return &Registry{
		deferred: deferred,
		indexed:  indexed,
	}
}

// Active returns the signer handling this runtime's requests. The deferred
// integration wins if both are somehow configured; absence of both is a
// configuration failure surfaced before any signing attempt.
func (r *Registry) Active() (Signer, error) {
	if r.deferred != nil {
		return r.deferred, nil
	}
	if r.indexed != nil {
		return r.indexed, nil
	}
	return nil, ErrNoWalletPresent
}

type rpcError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const rpcTimeout = 120 * time.Second

// post sends one JSON request to a wallet RPC endpoint. Signing can block on
// user interaction inside the wallet, hence the long timeout.
func post[T any](ctx context.Context, httpc *http.Client, url string, body any) (T, error) {
	var out T

	payload, err := json.Marshal(body)
	if err != nil {
		return out, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return out, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := httpc.Do(req)
	if err != nil {
		return out, fmt.Errorf("wallet rpc call failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return out, fmt.Errorf("wallet rpc returned status %d", res.StatusCode)
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("failed to decode wallet response: %w", err)
	}
	return out, nil
}
