package broadcast

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const requestTimeout = 30 * time.Second

// TxStatus is the explorer's view of a transaction.
type TxStatus struct {
	Confirmed   bool   `json:"confirmed"`
	BlockHeight int64  `json:"block_height"`
	BlockTime   int64  `json:"block_time"`
}

// Client talks to an esplora-style block explorer API: raw transaction
// submission plus the read-only endpoints the pre-flight checks and the
// fallback poll need.
type Client struct {
	url  string
	http *http.Client
}

func NewClient(url string) *Client {
	return &Client{
		url:  url,
		http: &http.Client{Timeout: requestTimeout},
	}
}

// Broadcast submits a serialized transaction and returns its txid. The
// endpoint answers plain text; a non-2xx body is surfaced verbatim since it
// carries the mempool rejection reason.
func (c *Client) Broadcast(ctx context.Context, rawTx []byte) (string, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.url+"/tx",
		strings.NewReader(hex.EncodeToString(rawTx)),
	)
	if err != nil {
		return "", fmt.Errorf("failed to build broadcast request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	res, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("broadcast request failed: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read broadcast response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return "", fmt.Errorf("broadcast rejected with status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	txid := strings.TrimSpace(string(body))
	if txid == "" {
		return "", fmt.Errorf("broadcast endpoint returned no txid")
	}
	return txid, nil
}

// TxStatus fetches the confirmation status of a transaction.
func (c *Client) TxStatus(ctx context.Context, txID string) (TxStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/tx/"+txID+"/status", nil)
	if err != nil {
		return TxStatus{}, fmt.Errorf("failed to build status request: %w", err)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return TxStatus{}, fmt.Errorf("status request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return TxStatus{}, fmt.Errorf("status endpoint returned %d", res.StatusCode)
	}

	var status TxStatus
	if err := json.NewDecoder(res.Body).Decode(&status); err != nil {
		return TxStatus{}, fmt.Errorf("failed to decode status response: %w", err)
	}
	return status, nil
}

type addressResponse struct {
	ChainStats   addressStats `json:"chain_stats"`
	MempoolStats addressStats `json:"mempool_stats"`
}

type addressStats struct {
	FundedSum uint64 `json:"funded_txo_sum"`
	SpentSum  uint64 `json:"spent_txo_sum"`
}

// AddressBalance returns the spendable balance of an address, counting
// unconfirmed mempool movements.
func (c *Client) AddressBalance(ctx context.Context, address string) (uint64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/address/"+address, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build address request: %w", err)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("address request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("address endpoint returned %d", res.StatusCode)
	}

	var info addressResponse
	if err := json.NewDecoder(res.Body).Decode(&info); err != nil {
		return 0, fmt.Errorf("failed to decode address response: %w", err)
	}

	funded := info.ChainStats.FundedSum + info.MempoolStats.FundedSum
	spent := info.ChainStats.SpentSum + info.MempoolStats.SpentSum
	if spent > funded {
		return 0, nil
	}
	return funded - spent, nil
}
