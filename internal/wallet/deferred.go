package wallet

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"
)

// DeferredSigner is the deferred-broadcast wallet integration: it signs and
// hands the bytes back, and the caller finalizes and broadcasts. Its backend
// resolves redeem scripts for wrapped-segwit inputs itself.
type DeferredSigner struct {
	url     string
	network string
	http    *http.Client
	logger  *logrus.Logger
}

func NewDeferredSigner(url, network string, logger *logrus.Logger) *DeferredSigner {
	return &DeferredSigner{
		url:     url,
		network: network,
		http:    &http.Client{Timeout: rpcTimeout},
		logger:  logger.WithField("pkg", "wallet.DeferredSigner").Logger,
	}
}

func (s *DeferredSigner) Name() string                { return "deferred" }
func (s *DeferredSigner) ResolvesRedeemScripts() bool { return true }

type deferredSignRequest struct {
	Hex                 string        `json:"hex"`
	Network             string        `json:"network"`
	Broadcast           bool          `json:"broadcast"`
	AllowedSighashes    []SighashType `json:"allowedSighashes"`
	AllowUnknownOutputs bool          `json:"allowUnknownOutputs"`
}

type deferredSignResponse struct {
	Result *struct {
		Hex string `json:"hex"`
	} `json:"result"`
	Error *rpcError `json:"error"`
}

func (s *DeferredSigner) Sign(ctx context.Context, req SignRequest) (SignResult, error) {
	res, err := post[deferredSignResponse](ctx, s.http, s.url+"/sign", deferredSignRequest{
		Hex:       req.UnsignedTxHex,
		Network:   s.network,
		Broadcast: false,
		// The instruction payload rides in an OP_RETURN output the wallet
		// cannot classify.
		AllowUnknownOutputs: true,
		AllowedSighashes:    AllowedSighashes(req.ThirdPartyInputs),
	})
	if err != nil {
		return SignResult{}, err
	}

	if res.Error != nil {
		return SignResult{}, &RejectedError{Code: res.Error.Code, Message: res.Error.Message}
	}
	if res.Result == nil || res.Result.Hex == "" {
		return SignResult{}, ErrMalformedSignedTx
	}

	return SignResult{
		SignedTxHex: res.Result.Hex,
		Broadcasted: false,
	}, nil
}
