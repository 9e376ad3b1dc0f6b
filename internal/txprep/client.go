package txprep

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

const requestTimeout = 30 * time.Second

// Params is the assembly request for one signing attempt.
type Params struct {
	AmountSats               uint64 `json:"amountInSatoshis"`
	SenderAddress            string `json:"senderAddress"`
	ReceiverAddress          string `json:"receiverAddress"`
	SecondaryReceiverAddress string `json:"secondaryReceiverAddress,omitempty"`
	FeeRateSatsPerVByte      uint64 `json:"feeRate"`
	MinOutputAmount          string `json:"minOutputAmount"`
	SwapType                 string `json:"swapType"`
	PoolID                   string `json:"poolId"`
	DexID                    string `json:"dexId"`
}

// UTXO is one unspent output selected by the assembly service.
type UTXO struct {
	TxID      string `json:"txid"`
	Vout      uint32 `json:"vout"`
	ValueSats uint64 `json:"value"`
}

// PreparedTransaction is the assembly service's answer: an unsigned funding
// transaction plus the embedded swap instruction payload. It is consumed by
// exactly one signing attempt and never reused.
type PreparedTransaction struct {
	UTXOs                      []UTXO `json:"utxos"`
	PsbtBase64                 string `json:"psbtBase64"`
	OpReturnData               string `json:"opReturnData"`
	DepositAddress             string `json:"depositAddress"`
	FeeSats                    uint64 `json:"fee"`
	ChangeAmountSats           uint64 `json:"changeAmount"`
	AmountSats                 uint64 `json:"amountInSatoshis"`
	FeeRate                    uint64 `json:"feeRate"`
	InputCount                 int    `json:"inputCount"`
	OutputCount                int    `json:"outputCount"`
	InscriptionCount           int    `json:"inscriptionCount"`
	ThirdPartyInputCount       int    `json:"thirdPartyInputCount"`
	NeedsFrontendInputHandling bool   `json:"needsFrontendInputHandling"`
}

type errorBody struct {
	Error struct {
		Code        string `json:"code"`
		Message     string `json:"message"`
		AddressType string `json:"addressType"`

		NeedsFrontendInputHandling bool `json:"needsFrontendInputHandling"`
	} `json:"error"`
}

// Client talks to the external transaction-preparation service.
type Client struct {
	url    string
	http   *http.Client
	logger *logrus.Logger
}

func NewClient(url string, logger *logrus.Logger) *Client {
	return &Client{
		url:    url,
		http:   &http.Client{Timeout: requestTimeout},
		logger: logger.WithField("pkg", "txprep.Client").Logger,
	}
}

// Prepare requests a fresh unsigned funding transaction. Fee rates and UTXO
// availability are time-sensitive, so a result from a prior attempt must
// never be passed in again.
func (c *Client) Prepare(ctx context.Context, params Params) (*PreparedTransaction, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal prepare request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/v1/prepare", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build prepare request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("prepare request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, c.classify(res)
	}

	var prepared PreparedTransaction
	if err := json.NewDecoder(res.Body).Decode(&prepared); err != nil {
		return nil, fmt.Errorf("failed to decode prepare response: %w", err)
	}
	if len(prepared.UTXOs) == 0 && !prepared.NeedsFrontendInputHandling {
		return nil, fmt.Errorf("prepare response selected no inputs")
	}
	return &prepared, nil
}

// classify maps an error response to one of the distinguishable failure
// kinds. A generic server error with no recognizable code is treated as
// insufficient funds, the only condition the service reports that way.
func (c *Client) classify(res *http.Response) error {
	var body errorBody
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		c.logger.WithField("status", res.StatusCode).Debug("unclassifiable prepare error body")
	}

	switch body.Error.Code {
	case codeInscriptions:
		return ErrInscriptionsDetected
	case codeTooManySmallUTXOs:
		return ErrTooManySmallUTXOs
	case codeUnsupportedAddress:
		return &UnsupportedAddressTypeError{
			AddressType:                body.Error.AddressType,
			NeedsFrontendInputHandling: body.Error.NeedsFrontendInputHandling,
		}
	case codeInsufficientFunds:
		return ErrInsufficientFunds
	}

	if res.StatusCode >= http.StatusInternalServerError {
		return ErrInsufficientFunds
	}
	return fmt.Errorf("prepare failed with status %d: %s", res.StatusCode, body.Error.Message)
}
