package quote

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	ecommon "github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplySlippage(t *testing.T) {
	tests := []struct {
		name   string
		quoted int64
		bps    uint64
		want   int64
	}{
		{name: "400 bps", quoted: 1_000_000, bps: 400, want: 960_000},
		{name: "zero bps keeps quote", quoted: 1_000_000, bps: 0, want: 1_000_000},
		{name: "1500 bps", quoted: 1_000_000, bps: 1500, want: 850_000},
		{name: "floors against the user", quoted: 999, bps: 1, want: 998},
		{name: "tiny quote", quoted: 1, bps: 9999, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ApplySlippage(big.NewInt(tt.quoted), tt.bps)
			assert.Equal(t, tt.want, got.Int64())
		})
	}
}

func TestApplySlippage_NeverExceedsQuote(t *testing.T) {
	for _, quoted := range []int64{1, 999, 1_000_000, 123_456_789} {
		for _, bps := range []uint64{0, 1, 400, 1500, 9999} {
			got := ApplySlippage(big.NewInt(quoted), bps)
			require.LessOrEqual(t, got.Int64(), quoted, "quoted=%d bps=%d", quoted, bps)
			if bps == 0 {
				require.Equal(t, quoted, got.Int64())
			}
		}
	}
}

type fakeCaller struct {
	calls     int
	tokensOut *big.Int
	raw       []byte
	err       error
}

func (f *fakeCaller) CallContract(_ context.Context, _ ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.raw != nil {
		return f.raw, nil
	}
	out, err := pricingABI.Methods["getAmountOut"].Outputs.Pack(f.tokensOut, big.NewInt(0))
	if err != nil {
		panic(err)
	}
	return out, nil
}

func newTestEngine(caller contractCaller) *Engine {
	logger := logrus.New()
	return NewEngine(caller, ecommon.HexToAddress("0x1"), logger)
}

func TestEngine_GetQuote(t *testing.T) {
	caller := &fakeCaller{tokensOut: big.NewInt(1_000_000)}
	engine := newTestEngine(caller)

	q, err := engine.GetQuote(context.Background(), 20_000, 400)
	require.NoError(t, err)

	assert.Equal(t, uint64(20_000), q.RequestedAmount)
	assert.Equal(t, int64(1_000_000), q.QuotedOutputAmount.Int64())
	assert.Equal(t, int64(960_000), q.MinOutputAmount.Int64())
	assert.LessOrEqual(t, q.MinOutputAmount.Cmp(q.QuotedOutputAmount), 0)
}

func TestEngine_GetQuote_NoAmount(t *testing.T) {
	caller := &fakeCaller{tokensOut: big.NewInt(1)}
	engine := newTestEngine(caller)

	_, err := engine.GetQuote(context.Background(), 0, 400)
	require.ErrorIs(t, err, ErrNoAmount)
	assert.Zero(t, caller.calls, "no pricing call for a non-positive amount")
}

func TestEngine_GetQuote_SlippageOutOfRange(t *testing.T) {
	engine := newTestEngine(&fakeCaller{tokensOut: big.NewInt(1)})

	_, err := engine.GetQuote(context.Background(), 100, 10_000)
	require.Error(t, err)
}

func TestEngine_GetQuote_Debounced(t *testing.T) {
	caller := &fakeCaller{tokensOut: big.NewInt(1_000_000)}
	engine := newTestEngine(caller)

	_, err := engine.GetQuote(context.Background(), 20_000, 400)
	require.NoError(t, err)
	_, err = engine.GetQuote(context.Background(), 20_000, 400)
	require.NoError(t, err)

	assert.Equal(t, 1, caller.calls, "same amount twice in quick succession is one pricing call")

	// A changed amount always discards the cached read.
	_, err = engine.GetQuote(context.Background(), 30_000, 400)
	require.NoError(t, err)
	assert.Equal(t, 2, caller.calls)
}

func TestEngine_GetQuote_MissingOutputField(t *testing.T) {
	// Zero tokensOut decodes fine but fails validation: "no quote", not an error.
	caller := &fakeCaller{tokensOut: big.NewInt(0)}
	engine := newTestEngine(caller)

	_, err := engine.GetQuote(context.Background(), 20_000, 400)
	require.ErrorIs(t, err, ErrNoQuote)
}

func TestEngine_GetQuote_UndecodableResponse(t *testing.T) {
	caller := &fakeCaller{raw: []byte{0x01, 0x02}}
	engine := newTestEngine(caller)

	_, err := engine.GetQuote(context.Background(), 20_000, 400)
	require.ErrorIs(t, err, ErrNoQuote)
}

func TestEngine_GetQuote_TransportError(t *testing.T) {
	caller := &fakeCaller{err: errors.New("connection refused")}
	engine := newTestEngine(caller)

	_, err := engine.GetQuote(context.Background(), 20_000, 400)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNoQuote)
}
