package orchestrator

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/daobridge/deposit/internal/broadcast"
	"github.com/daobridge/deposit/internal/deposit"
	"github.com/daobridge/deposit/internal/fees"
	"github.com/daobridge/deposit/internal/metrics"
	"github.com/daobridge/deposit/internal/monitor"
	"github.com/daobridge/deposit/internal/quote"
	"github.com/daobridge/deposit/internal/redeem"
	"github.com/daobridge/deposit/internal/txprep"
	"github.com/daobridge/deposit/internal/wallet"
)

// Bitcoin standardness cap for a single OP_RETURN payload.
const maxOpReturnBytes = 80

// Config bounds a deposit attempt.
type Config struct {
	MinDepositSats     uint64
	MaxDepositSats     uint64
	DefaultSlippageBps uint64
}

// Request is one user-initiated deposit attempt.
type Request struct {
	AmountSats               uint64    `json:"amountSats"`
	SlippageBps              uint64    `json:"slippageBps"`
	FeeTier                  fees.Tier `json:"feeTier"`
	SenderAddress            string    `json:"senderAddress"`
	ReceiverAddress          string    `json:"receiverAddress"`
	SecondaryReceiverAddress string    `json:"secondaryReceiverAddress,omitempty"`
	SwapType                 string    `json:"swapType"`
	PoolID                   string    `json:"poolId"`
	DexID                    string    `json:"dexId"`
}

// Result reports a broadcast deposit.
type Result struct {
	RecordID string             `json:"recordId"`
	TxID     string             `json:"txId"`
	Quote    quote.DepositQuote `json:"quote"`
}

// Orchestrator sequences one deposit attempt across both networks:
// quote → record create → fee refresh → prepare → (resolve) → sign →
// broadcast → record update → confirmation watch.
type Orchestrator struct {
	logger    *logrus.Logger
	quotes    *quote.Engine
	fees      *fees.Manager
	prep      *txprep.Client
	wallets   *wallet.Registry
	resolver  *redeem.Resolver
	lifecycle *deposit.Lifecycle
	explorer  *broadcast.Client
	watcher   *monitor.Monitor
	params    *chaincfg.Params
	cfg       Config

	workerMetrics  *metrics.WorkerMetrics
	monitorMetrics *metrics.MonitorMetrics
}

func New(
	logger *logrus.Logger,
	quotes *quote.Engine,
	feeManager *fees.Manager,
	prep *txprep.Client,
	wallets *wallet.Registry,
	resolver *redeem.Resolver,
	lifecycle *deposit.Lifecycle,
	explorer *broadcast.Client,
	watcher *monitor.Monitor,
	params *chaincfg.Params,
	cfg Config,
) *Orchestrator {
	return &Orchestrator{
		logger:         logger.WithField("pkg", "orchestrator.Orchestrator").Logger,
		quotes:         quotes,
		fees:           feeManager,
		prep:           prep,
		wallets:        wallets,
		resolver:       resolver,
		lifecycle:      lifecycle,
		explorer:       explorer,
		watcher:        watcher,
		params:         params,
		cfg:            cfg,
		workerMetrics:  metrics.NewWorkerMetrics(),
		monitorMetrics: metrics.NewMonitorMetrics(),
	}
}

// Execute runs one deposit attempt end to end. Failures before the deposit
// record exists never touch the store; every failure after creation moves
// the record to canceled before the error is surfaced.
func (o *Orchestrator) Execute(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	log := o.logger.WithFields(logrus.Fields{
		"sender":   req.SenderAddress,
		"receiver": req.ReceiverAddress,
		"amount":   req.AmountSats,
	})

	signer, q, err := o.preflight(ctx, req, log)
	if err != nil {
		o.workerMetrics.RecordDepositAttempt(metrics.OutcomeRejected, time.Since(start))
		return nil, err
	}

	fields := deposit.CreateFields{
		SourceAmountSats:         req.AmountSats,
		DestinationReceiver:      req.ReceiverAddress,
		SourceSender:             req.SenderAddress,
		SwapType:                 req.SwapType,
		MinOutputAmount:          q.MinOutputAmount.String(),
		PoolID:                   req.PoolID,
		DexID:                    req.DexID,
		SecondaryReceiverAddress: req.SecondaryReceiverAddress,
	}

	recordID, txID, err := o.lifecycle.RunAttempt(ctx, fields, func(ctx context.Context) (string, error) {
		return o.signingAttempt(ctx, req, q, signer, log)
	})
	if err != nil {
		o.workerMetrics.RecordDepositAttempt(metrics.OutcomeCanceled, time.Since(start))
		return nil, err
	}

	o.workerMetrics.RecordDepositAttempt(metrics.OutcomeBroadcast, time.Since(start))
	log.WithFields(logrus.Fields{"record": recordID, "txid": txID}).Info("deposit broadcast")

	// The watch outlives the attempt; closing the caller's context only
	// stops observing, never the broadcast transaction itself.
	go o.watch(context.WithoutCancel(ctx), txID)

	return &Result{
		RecordID: recordID,
		TxID:     txID,
		Quote:    q,
	}, nil
}

// preflight runs every validation that must pass before a record is created:
// wallet presence, amount bounds, quote availability, and the local balance
// check including fee head-room.
func (o *Orchestrator) preflight(ctx context.Context, req Request, log *logrus.Entry) (wallet.Signer, quote.DepositQuote, error) {
	signer, err := o.wallets.Active()
	if err != nil {
		return nil, quote.DepositQuote{}, err
	}

	if req.AmountSats < o.cfg.MinDepositSats || req.AmountSats > o.cfg.MaxDepositSats {
		return nil, quote.DepositQuote{}, fmt.Errorf(
			"%w: amount %d outside [%d, %d] sats",
			ErrAmountOutOfBounds, req.AmountSats, o.cfg.MinDepositSats, o.cfg.MaxDepositSats,
		)
	}

	slippage := req.SlippageBps
	if slippage == 0 {
		slippage = o.cfg.DefaultSlippageBps
	}

	// The quote and the balance lookup hit independent backends.
	var (
		q          quote.DepositQuote
		balance    uint64
		balanceErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var er error
		q, er = o.quotes.GetQuote(gctx, req.AmountSats, slippage)
		if er != nil {
			return fmt.Errorf("failed to get quote: %w", er)
		}
		return nil
	})
	g.Go(func() error {
		balance, balanceErr = o.explorer.AddressBalance(gctx, req.SenderAddress)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, quote.DepositQuote{}, err
	}

	// Balance check against the display schedule; the authoritative check
	// is the preparation service's own selection.
	if balanceErr != nil {
		log.WithError(balanceErr).Warn("balance pre-check unavailable, deferring to preparation service")
	} else {
		headroom := o.fees.Current().Rate(req.FeeTier).EstimatedFeeSats
		if balance < req.AmountSats+headroom {
			return nil, quote.DepositQuote{}, txprep.ErrInsufficientFunds
		}
	}

	return signer, q, nil
}

// signingAttempt covers everything between record creation and a transaction
// id: fee refresh, preparation, optional input resolution, signing, and
// broadcast when the wallet defers it.
func (o *Orchestrator) signingAttempt(
	ctx context.Context,
	req Request,
	q quote.DepositQuote,
	signer wallet.Signer,
	log *logrus.Entry,
) (string, error) {
	// Never sign against rates from the passive refresh loop.
	sched := o.fees.ForSigning(ctx)
	rate := sched.Rate(req.FeeTier).SatsPerVByte

	prepared, err := o.prep.Prepare(ctx, txprep.Params{
		AmountSats:               req.AmountSats,
		SenderAddress:            req.SenderAddress,
		ReceiverAddress:          req.ReceiverAddress,
		SecondaryReceiverAddress: req.SecondaryReceiverAddress,
		FeeRateSatsPerVByte:      rate,
		MinOutputAmount:          q.MinOutputAmount.String(),
		SwapType:                 req.SwapType,
		PoolID:                   req.PoolID,
		DexID:                    req.DexID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to prepare transaction: %w", err)
	}

	packet, err := psbt.NewFromRawBytes(strings.NewReader(prepared.PsbtBase64), true)
	if err != nil {
		return "", fmt.Errorf("failed to decode prepared psbt: %w", err)
	}

	if prepared.NeedsFrontendInputHandling {
		if err := o.resolveInputs(ctx, req.SenderAddress, signer, prepared, packet); err != nil {
			return "", err
		}
	}

	signReq, err := o.buildSignRequest(req.SenderAddress, prepared, packet)
	if err != nil {
		return "", err
	}

	res, err := signer.Sign(ctx, signReq)
	if err != nil {
		return "", fmt.Errorf("signing failed: %w", err)
	}
	if res.Broadcasted {
		return res.TxID, nil
	}

	txID, err := o.finalizeAndBroadcast(ctx, res.SignedTxHex)
	if err != nil {
		return "", err
	}
	log.WithField("txid", txID).Debug("deferred-broadcast transaction submitted")
	return txID, nil
}

// resolveInputs runs the wrapped-segwit resolver pass when preparation
// signaled that input handling is on us. It must complete for every selected
// UTXO before the signing call is issued.
func (o *Orchestrator) resolveInputs(
	ctx context.Context,
	sender string,
	signer wallet.Signer,
	prepared *txprep.PreparedTransaction,
	packet *psbt.Packet,
) error {
	if signer.ResolvesRedeemScripts() {
		// The wallet's backend fills these in during signing.
		return nil
	}
	if !redeem.IsWrappedSegwit(sender, o.params) {
		return &txprep.UnsupportedAddressTypeError{AddressType: "unknown"}
	}

	accounts, ok := signer.(wallet.AccountProvider)
	if !ok {
		return &txprep.UnsupportedAddressTypeError{AddressType: "p2sh"}
	}
	if err := o.resolver.Resolve(ctx, accounts, sender, prepared.UTXOs, packet); err != nil {
		return fmt.Errorf("failed to resolve wrapped-segwit inputs: %w", err)
	}
	return nil
}

func (o *Orchestrator) buildSignRequest(
	sender string,
	prepared *txprep.PreparedTransaction,
	packet *psbt.Packet,
) (wallet.SignRequest, error) {
	b64, err := packet.B64Encode()
	if err != nil {
		return wallet.SignRequest{}, fmt.Errorf("failed to encode psbt: %w", err)
	}

	var rawBuf bytes.Buffer
	if err := packet.Serialize(&rawBuf); err != nil {
		return wallet.SignRequest{}, fmt.Errorf("failed to serialize psbt: %w", err)
	}

	indexes := make([]uint32, len(packet.UnsignedTx.TxIn))
	for i := range indexes {
		indexes[i] = uint32(i)
	}

	return wallet.SignRequest{
		UnsignedTxHex:    hex.EncodeToString(rawBuf.Bytes()),
		PsbtBase64:       b64,
		SignInputs:       map[string][]uint32{sender: indexes},
		ThirdPartyInputs: prepared.ThirdPartyInputCount > 0,
	}, nil
}

// finalizeAndBroadcast handles the deferred-broadcast variant's tail:
// decode the signed result, finalize all inputs, re-encode to wire format,
// and submit to the public broadcast endpoint.
func (o *Orchestrator) finalizeAndBroadcast(ctx context.Context, signedHex string) (string, error) {
	raw, err := hex.DecodeString(signedHex)
	if err != nil {
		return "", fmt.Errorf("%w: %v", wallet.ErrMalformedSignedTx, err)
	}
	packet, err := psbt.NewFromRawBytes(bytes.NewReader(raw), false)
	if err != nil {
		return "", fmt.Errorf("%w: %v", wallet.ErrMalformedSignedTx, err)
	}

	if err := psbt.MaybeFinalizeAll(packet); err != nil {
		return "", fmt.Errorf("failed to finalize signed transaction: %w", err)
	}
	final, err := psbt.Extract(packet)
	if err != nil {
		return "", fmt.Errorf("failed to extract final transaction: %w", err)
	}

	if err := checkOpReturn(final.TxOut); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := final.Serialize(&buf); err != nil {
		return "", fmt.Errorf("failed to serialize final transaction: %w", err)
	}

	txID, err := o.explorer.Broadcast(ctx, buf.Bytes())
	if err != nil {
		return "", fmt.Errorf("failed to broadcast transaction: %w", err)
	}
	return txID, nil
}

// checkOpReturn rejects instruction payloads that would make the funding
// transaction non-standard.
func checkOpReturn(outs []*wire.TxOut) error {
	for _, out := range outs {
		if txscript.GetScriptClass(out.PkScript) != txscript.NullDataTy {
			continue
		}
		// Script is OP_RETURN plus push opcode(s); the cap applies to the
		// whole script minus the OP_RETURN byte.
		if len(out.PkScript)-1 > maxOpReturnBytes+2 {
			return fmt.Errorf("instruction payload exceeds %d byte standardness limit", maxOpReturnBytes)
		}
	}
	return nil
}

// watch observes the broadcast transaction until a terminal chain state and
// records the outcome. Watch failures degrade monitoring only; the deposit
// is already on the wire.
func (o *Orchestrator) watch(ctx context.Context, txID string) {
	ctx, cancel := context.WithTimeout(ctx, 24*time.Hour)
	defer cancel()

	log := o.logger.WithField("txid", txID)
	for update := range o.watcher.Watch(ctx, txID) {
		log.WithFields(logrus.Fields{
			"status": update.Status,
			"height": update.BlockHeight,
		}).Info("deposit status update")

		if monitor.IsTerminal(update.Status) {
			o.monitorMetrics.RecordWatchOutcome(string(update.Status))
			return
		}
	}
	log.Debug("confirmation watch ended without a terminal status")
	o.monitorMetrics.RecordDegraded()
}
