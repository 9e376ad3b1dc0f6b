package quote

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	ecommon "github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// ErrNoAmount is returned for a non-positive requested amount. Callers
// suppress the lookup instead of surfacing this as a failure.
var ErrNoAmount = errors.New("no amount requested")

// ErrNoQuote is returned when the pricing function answered but did not
// carry the expected output field. This is "no quote available", not a
// transport failure.
var ErrNoQuote = errors.New("no quote available")

// BpsDenominator is the basis-point scale used for slippage math.
const BpsDenominator = 10_000

const (
	callTimeout = 15 * time.Second

	// debounceWindow bounds how often the pricing function is consulted
	// for an unchanged amount.
	debounceWindow = 500 * time.Millisecond
)

// DepositQuote is a slippage-protected quote for one requested amount.
type DepositQuote struct {
	RequestedAmount    uint64   `json:"requestedAmount"`
	QuotedOutputAmount *big.Int `json:"quotedOutputAmount"`
	SlippageBps        uint64   `json:"slippageBps"`
	MinOutputAmount    *big.Int `json:"minOutputAmount"`
}

// ApplySlippage computes floor(quoted * (10000 - bps) / 10000). Integer
// floor division, so rounding never lands in the user's favor.
func ApplySlippage(quoted *big.Int, bps uint64) *big.Int {
	keep := new(big.Int).SetUint64(BpsDenominator - bps)
	out := new(big.Int).Mul(quoted, keep)
	return out.Div(out, big.NewInt(BpsDenominator))
}

const pricingABIJSON = `[{
	"name": "getAmountOut",
	"type": "function",
	"stateMutability": "view",
	"inputs": [{"name": "amountIn", "type": "uint256"}],
	"outputs": [
		{"name": "tokensOut", "type": "uint256"},
		{"name": "feeOut", "type": "uint256"}
	]
}]`

var pricingABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(pricingABIJSON))
	if err != nil {
		panic(fmt.Sprintf("invalid pricing abi: %v", err))
	}
	return parsed
}()

// contractCaller is the read-only subset of ethclient.Client the engine needs.
type contractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// readOutcome is the result of one decode-then-validate pass over the
// pricing function's duck-typed response.
type readOutcome struct {
	tokensOut *big.Int
	missing   string
}

// Engine reads the destination chain's pricing function and applies
// slippage protection.
type Engine struct {
	rpc    contractCaller
	pool   ecommon.Address
	logger *logrus.Logger

	mu         sync.Mutex
	lastAmount uint64
	lastOut    *big.Int
	lastAt     time.Time
}

func NewEngine(rpc contractCaller, pool ecommon.Address, logger *logrus.Logger) *Engine {
	return &Engine{
		rpc:    rpc,
		pool:   pool,
		logger: logger.WithField("pkg", "quote.Engine").Logger,
	}
}

// GetQuote converts a requested amount into a quoted output and the
// slippage-adjusted minimum. A repeat request for the same amount inside the
// debounce window reuses the previous pricing read; a changed amount always
// discards it.
func (e *Engine) GetQuote(ctx context.Context, amountSats uint64, slippageBps uint64) (DepositQuote, error) {
	if amountSats == 0 {
		return DepositQuote{}, ErrNoAmount
	}
	if slippageBps >= BpsDenominator {
		return DepositQuote{}, fmt.Errorf("slippage %d bps out of range [0, %d)", slippageBps, BpsDenominator)
	}

	out, err := e.quotedOut(ctx, amountSats)
	if err != nil {
		return DepositQuote{}, err
	}

	return DepositQuote{
		RequestedAmount:    amountSats,
		QuotedOutputAmount: out,
		SlippageBps:        slippageBps,
		MinOutputAmount:    ApplySlippage(out, slippageBps),
	}, nil
}

func (e *Engine) quotedOut(ctx context.Context, amountSats uint64) (*big.Int, error) {
	e.mu.Lock()
	if e.lastOut != nil && e.lastAmount == amountSats && time.Since(e.lastAt) < debounceWindow {
		out := new(big.Int).Set(e.lastOut)
		e.mu.Unlock()
		return out, nil
	}
	e.mu.Unlock()

	outcome, err := e.read(ctx, amountSats)
	if err != nil {
		return nil, err
	}
	if outcome.missing != "" {
		e.logger.WithField("reason", outcome.missing).Debug("pricing function returned no quote")
		return nil, ErrNoQuote
	}

	e.mu.Lock()
	e.lastAmount = amountSats
	e.lastOut = new(big.Int).Set(outcome.tokensOut)
	e.lastAt = time.Now()
	e.mu.Unlock()

	return outcome.tokensOut, nil
}

// read performs the read-only pricing call and decodes the response into a
// generic key/value structure before validating it in one place. The shape
// of the result varies across pool deployments; a missing output field means
// "no quote", never a thrown error.
func (e *Engine) read(ctx context.Context, amountSats uint64) (readOutcome, error) {
	data, err := pricingABI.Pack("getAmountOut", new(big.Int).SetUint64(amountSats))
	if err != nil {
		return readOutcome{}, fmt.Errorf("failed to pack pricing call: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	raw, err := e.rpc.CallContract(callCtx, ethereum.CallMsg{
		To:   &e.pool,
		Data: data,
	}, nil)
	if err != nil {
		return readOutcome{}, fmt.Errorf("pricing call failed: %w", err)
	}

	fields := map[string]any{}
	if err := pricingABI.UnpackIntoMap(fields, "getAmountOut", raw); err != nil {
		return readOutcome{missing: fmt.Sprintf("undecodable response: %v", err)}, nil
	}

	return validate(fields), nil
}

func validate(fields map[string]any) readOutcome {
	val, ok := fields["tokensOut"]
	if !ok || val == nil {
		return readOutcome{missing: "tokensOut absent"}
	}
	out, ok := val.(*big.Int)
	if !ok {
		return readOutcome{missing: fmt.Sprintf("tokensOut has unexpected type %T", val)}
	}
	if out.Sign() <= 0 {
		return readOutcome{missing: "tokensOut is zero"}
	}
	return readOutcome{tokensOut: out}
}
