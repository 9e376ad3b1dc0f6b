package txprep

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func prepServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/prepare", r.URL.Path)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func TestClient_Prepare(t *testing.T) {
	var gotParams Params
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotParams))
		_, _ = w.Write([]byte(`{
			"utxos":[{"txid":"aa","vout":1,"value":50000}],
			"psbtBase64":"cHNidA==",
			"opReturnData":"6a1473776170",
			"depositAddress":"bc1qdeposit",
			"fee":700,
			"changeAmount":29300,
			"amountInSatoshis":20000,
			"feeRate":2,
			"inputCount":1,
			"outputCount":3,
			"inscriptionCount":0,
			"thirdPartyInputCount":0,
			"needsFrontendInputHandling":false
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, logrus.New())
	prepared, err := c.Prepare(context.Background(), Params{
		AmountSats:          20_000,
		SenderAddress:       "bc1qsender",
		ReceiverAddress:     "bc1qreceiver",
		FeeRateSatsPerVByte: 2,
		MinOutputAmount:     "960000",
		SwapType:            "buy",
		PoolID:              "pool-1",
		DexID:               "dex-1",
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(20_000), gotParams.AmountSats)
	assert.Equal(t, "960000", gotParams.MinOutputAmount)

	require.Len(t, prepared.UTXOs, 1)
	assert.Equal(t, "aa", prepared.UTXOs[0].TxID)
	assert.Equal(t, uint64(50_000), prepared.UTXOs[0].ValueSats)
	assert.Equal(t, "cHNidA==", prepared.PsbtBase64)
	assert.Equal(t, uint64(700), prepared.FeeSats)
	assert.False(t, prepared.NeedsFrontendInputHandling)
}

func TestClient_Prepare_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{
			name:   "inscriptions detected",
			status: http.StatusUnprocessableEntity,
			body:   `{"error":{"code":"inscriptions_detected","message":"ordinals present"}}`,
			want:   ErrInscriptionsDetected,
		},
		{
			name:   "too many small utxos",
			status: http.StatusUnprocessableEntity,
			body:   `{"error":{"code":"too_many_small_utxos","message":"dust"}}`,
			want:   ErrTooManySmallUTXOs,
		},
		{
			name:   "explicit insufficient funds",
			status: http.StatusUnprocessableEntity,
			body:   `{"error":{"code":"insufficient_funds","message":"not enough"}}`,
			want:   ErrInsufficientFunds,
		},
		{
			name:   "opaque server error maps to insufficient funds",
			status: http.StatusInternalServerError,
			body:   `oops`,
			want:   ErrInsufficientFunds,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := prepServer(t, tt.status, tt.body)
			defer srv.Close()

			c := NewClient(srv.URL, logrus.New())
			_, err := c.Prepare(context.Background(), Params{AmountSats: 1})
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestClient_Prepare_UnsupportedAddressType(t *testing.T) {
	srv := prepServer(t, http.StatusUnprocessableEntity,
		`{"error":{"code":"unsupported_address_type","message":"p2sh","addressType":"p2sh","needsFrontendInputHandling":true}}`)
	defer srv.Close()

	c := NewClient(srv.URL, logrus.New())
	_, err := c.Prepare(context.Background(), Params{AmountSats: 1})

	var unsupported *UnsupportedAddressTypeError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "p2sh", unsupported.AddressType)
	assert.True(t, unsupported.NeedsFrontendInputHandling)
}

func TestClient_Prepare_ClientErrorIsNotInsufficientFunds(t *testing.T) {
	srv := prepServer(t, http.StatusBadRequest, `{"error":{"code":"validation","message":"bad poolId"}}`)
	defer srv.Close()

	c := NewClient(srv.URL, logrus.New())
	_, err := c.Prepare(context.Background(), Params{AmountSats: 1})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInsufficientFunds))
	assert.Contains(t, err.Error(), "bad poolId")
}

func TestClient_Prepare_RejectsEmptySelection(t *testing.T) {
	srv := prepServer(t, http.StatusOK, `{"utxos":[],"psbtBase64":"cHNidA=="}`)
	defer srv.Close()

	c := NewClient(srv.URL, logrus.New())
	_, err := c.Prepare(context.Background(), Params{AmountSats: 1})
	require.Error(t, err)
}
