package redeem

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/sirupsen/logrus"

	"github.com/daobridge/deposit/internal/txprep"
	"github.com/daobridge/deposit/internal/wallet"
)

// ErrNoPublicKey is terminal for the deposit attempt: the wallet does not
// expose the public key needed for this address type and the user must fund
// from a different address type.
var ErrNoPublicKey = errors.New("wallet doesn't expose the public key needed for this address type; use a different address type")

// ErrPermissionDenied is the second denial after a permission request.
var ErrPermissionDenied = errors.New("wallet denied account access needed to resolve redeem scripts")

// IsWrappedSegwit reports whether addr is a legacy-wrapped-segwit (P2SH)
// address on the given network.
func IsWrappedSegwit(addr string, params *chaincfg.Params) bool {
	decoded, err := btcutil.DecodeAddress(addr, params)
	if err != nil {
		return false
	}
	_, ok := decoded.(*btcutil.AddressScriptHash)
	return ok
}

// Resolver injects fully-specified wrapped-segwit inputs into an unsigned
// transaction for wallet integrations that cannot resolve redeem scripts
// server-side.
type Resolver struct {
	params *chaincfg.Params
	logger *logrus.Logger
}

func NewResolver(params *chaincfg.Params, logger *logrus.Logger) *Resolver {
	return &Resolver{
		params: params,
		logger: logger.WithField("pkg", "redeem.Resolver").Logger,
	}
}

// Resolve derives the redeem script for senderAddr from the wallet's account
// descriptor and adds one fully-specified input per selected UTXO to the
// packet. Injection is all-or-nothing: on any failure the packet is left
// untouched and the attempt must abort before signing.
func (r *Resolver) Resolve(
	ctx context.Context,
	accounts wallet.AccountProvider,
	senderAddr string,
	utxos []txprep.UTXO,
	packet *psbt.Packet,
) error {
	pubKey, err := r.fetchPubKey(ctx, accounts, senderAddr)
	if err != nil {
		return err
	}

	redeemScript, pkScript, err := r.deriveScripts(pubKey, senderAddr)
	if err != nil {
		return err
	}

	// Build every input before mutating the packet so a failing UTXO can
	// never leave a partially-injected transaction for the signer.
	txIns := make([]*wire.TxIn, 0, len(utxos))
	pIns := make([]psbt.PInput, 0, len(utxos))
	for _, u := range utxos {
		hash, er := chainhash.NewHashFromStr(u.TxID)
		if er != nil {
			return fmt.Errorf("failed to parse utxo txid %s: %w", u.TxID, er)
		}

		txIns = append(txIns, wire.NewTxIn(wire.NewOutPoint(hash, u.Vout), nil, nil))
		pIns = append(pIns, psbt.PInput{
			WitnessUtxo: &wire.TxOut{
				Value:    int64(u.ValueSats),
				PkScript: pkScript,
			},
			RedeemScript: redeemScript,
			SighashType:  txscript.SigHashAll,
		})
	}

	packet.UnsignedTx.TxIn = append(packet.UnsignedTx.TxIn, txIns...)
	packet.Inputs = append(packet.Inputs, pIns...)

	r.logger.WithFields(logrus.Fields{
		"sender": senderAddr,
		"inputs": len(utxos),
	}).Debug("injected wrapped-segwit inputs")
	return nil
}

// fetchPubKey locates the payment-purpose entry matching senderAddr in the
// wallet's account descriptor. On a permission-gated denial it requests
// access and retries the fetch once; a second denial is terminal.
func (r *Resolver) fetchPubKey(ctx context.Context, accounts wallet.AccountProvider, senderAddr string) ([]byte, error) {
	addrs, err := accounts.Accounts(ctx)
	if errors.Is(err, wallet.ErrPermissionRequired) {
		if er := accounts.RequestPermissions(ctx); er != nil {
			return nil, ErrPermissionDenied
		}
		addrs, err = accounts.Accounts(ctx)
		if err != nil {
			return nil, ErrPermissionDenied
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to fetch account descriptor: %w", err)
	}

	for _, a := range addrs {
		if a.Purpose != wallet.PurposePayment || a.Address != senderAddr {
			continue
		}
		if a.PublicKey == "" {
			return nil, ErrNoPublicKey
		}
		pubKey, er := hex.DecodeString(a.PublicKey)
		if er != nil {
			return nil, fmt.Errorf("failed to decode account public key: %w", er)
		}
		return pubKey, nil
	}
	return nil, ErrNoPublicKey
}

// deriveScripts builds the P2WPKH redeem script from the public key and the
// P2SH script wrapping it, verifying the wrap hashes back to senderAddr.
func (r *Resolver) deriveScripts(pubKey []byte, senderAddr string) (redeemScript, pkScript []byte, err error) {
	redeemScript, err = txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(btcutil.Hash160(pubKey)).
		Script()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build redeem script: %w", err)
	}

	p2shAddr, err := btcutil.NewAddressScriptHash(redeemScript, r.params)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to derive wrapping address: %w", err)
	}
	if p2shAddr.EncodeAddress() != senderAddr {
		return nil, nil, fmt.Errorf("derived address %s does not match sender %s", p2shAddr.EncodeAddress(), senderAddr)
	}

	pkScript, err = txscript.PayToAddrScript(p2shAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build wrapping script: %w", err)
	}
	return redeemScript, pkScript, nil
}
