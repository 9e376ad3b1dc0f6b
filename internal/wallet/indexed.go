package wallet

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

const statusSuccess = "success"

const codePermissionRequired = "permission_required"

// IndexedSigner is the address-indexed, auto-broadcast wallet integration:
// it signs the inputs listed per address and can broadcast on the caller's
// behalf. It does not resolve wrapped-segwit redeem scripts server-side, so
// it also exposes the account descriptor the resolver needs.
type IndexedSigner struct {
	url    string
	http   *http.Client
	logger *logrus.Logger
}

func NewIndexedSigner(url string, logger *logrus.Logger) *IndexedSigner {
	return &IndexedSigner{
		url:    url,
		http:   &http.Client{Timeout: rpcTimeout},
		logger: logger.WithField("pkg", "wallet.IndexedSigner").Logger,
	}
}

func (s *IndexedSigner) Name() string                { return "indexed" }
func (s *IndexedSigner) ResolvesRedeemScripts() bool { return false }

type indexedSignRequest struct {
	PsbtBase64       string              `json:"psbtBase64"`
	SignInputs       map[string][]uint32 `json:"signInputs"`
	Broadcast        bool                `json:"broadcast"`
	AllowedSighashes []SighashType       `json:"allowedSighashes"`
	Options          map[string]any      `json:"options,omitempty"`
}

type indexedSignResponse struct {
	Status string `json:"status"`
	Result *struct {
		TxID string `json:"txid"`
	} `json:"result"`
	Error *rpcError `json:"error"`
}

func (s *IndexedSigner) Sign(ctx context.Context, req SignRequest) (SignResult, error) {
	res, err := post[indexedSignResponse](ctx, s.http, s.url+"/sign", indexedSignRequest{
		PsbtBase64:       req.PsbtBase64,
		SignInputs:       req.SignInputs,
		Broadcast:        true,
		AllowedSighashes: AllowedSighashes(req.ThirdPartyInputs),
	})
	if err != nil {
		return SignResult{}, err
	}

	// A non-"success" status with a populated error object is the normal
	// failure path, not a transport fault.
	if res.Status != statusSuccess {
		if res.Error != nil {
			return SignResult{}, &RejectedError{Code: res.Error.Code, Message: res.Error.Message}
		}
		return SignResult{}, fmt.Errorf("wallet returned status %q with no error detail", res.Status)
	}
	if res.Result == nil || res.Result.TxID == "" {
		return SignResult{}, ErrMalformedSignedTx
	}

	return SignResult{
		TxID:        res.Result.TxID,
		Broadcasted: true,
	}, nil
}

type accountsResponse struct {
	Result *struct {
		Addresses []AccountAddress `json:"addresses"`
	} `json:"result"`
	Error *rpcError `json:"error"`
}

// Accounts fetches the wallet's account descriptor. A permission-gated
// denial maps to ErrPermissionRequired so the caller can request access and
// retry once.
func (s *IndexedSigner) Accounts(ctx context.Context) ([]AccountAddress, error) {
	res, err := post[accountsResponse](ctx, s.http, s.url+"/accounts", map[string]any{})
	if err != nil {
		return nil, err
	}

	if res.Error != nil {
		if res.Error.Code == codePermissionRequired {
			return nil, ErrPermissionRequired
		}
		return nil, fmt.Errorf("account lookup failed: %s (%s)", res.Error.Message, res.Error.Code)
	}
	if res.Result == nil {
		return nil, fmt.Errorf("account lookup returned no result")
	}
	return res.Result.Addresses, nil
}

type permissionsResponse struct {
	Status string    `json:"status"`
	Error  *rpcError `json:"error"`
}

// RequestPermissions asks the wallet to grant account access.
func (s *IndexedSigner) RequestPermissions(ctx context.Context) error {
	res, err := post[permissionsResponse](ctx, s.http, s.url+"/permissions/request", map[string]any{})
	if err != nil {
		return err
	}
	if res.Status != statusSuccess {
		return ErrPermissionDenied
	}
	return nil
}
