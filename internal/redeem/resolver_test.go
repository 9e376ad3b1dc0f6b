package redeem

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daobridge/deposit/internal/txprep"
	"github.com/daobridge/deposit/internal/wallet"
)

// testKey derives the wrapped-segwit fixture used across the tests: a
// compressed public key, its P2WPKH redeem script, and the P2SH address
// wrapping it.
func testKey(t *testing.T) (pubKeyHex, senderAddr string, redeemScript []byte) {
	t.Helper()

	pubKey := make([]byte, 33)
	pubKey[0] = 0x02
	for i := 1; i < len(pubKey); i++ {
		pubKey[i] = byte(i)
	}

	redeemScript, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(btcutil.Hash160(pubKey)).
		Script()
	require.NoError(t, err)

	p2sh, err := btcutil.NewAddressScriptHash(redeemScript, &chaincfg.MainNetParams)
	require.NoError(t, err)

	return hex.EncodeToString(pubKey), p2sh.EncodeAddress(), redeemScript
}

type fakeAccounts struct {
	addresses []wallet.AccountAddress

	accountsErrs  []error
	permissionErr error

	accountsCalls   int
	permissionCalls int
}

func (f *fakeAccounts) Accounts(context.Context) ([]wallet.AccountAddress, error) {
	f.accountsCalls++
	if len(f.accountsErrs) > 0 {
		err := f.accountsErrs[0]
		f.accountsErrs = f.accountsErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.addresses, nil
}

func (f *fakeAccounts) RequestPermissions(context.Context) error {
	f.permissionCalls++
	return f.permissionErr
}

func emptyPacket(t *testing.T) *psbt.Packet {
	t.Helper()
	packet, err := psbt.NewFromUnsignedTx(wire.NewMsgTx(wire.TxVersion))
	require.NoError(t, err)
	return packet
}

func TestIsWrappedSegwit(t *testing.T) {
	_, p2sh, _ := testKey(t)

	tests := []struct {
		name string
		addr string
		want bool
	}{
		{name: "p2sh", addr: p2sh, want: true},
		{name: "native segwit", addr: "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4", want: false},
		{name: "legacy p2pkh", addr: "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", want: false},
		{name: "garbage", addr: "not-an-address", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsWrappedSegwit(tt.addr, &chaincfg.MainNetParams))
		})
	}
}

func TestResolver_Resolve(t *testing.T) {
	pubKeyHex, sender, redeemScript := testKey(t)

	accounts := &fakeAccounts{
		addresses: []wallet.AccountAddress{
			{Address: "bc1pordinals", Purpose: "ordinals", PublicKey: "02ff"},
			{Address: sender, Purpose: wallet.PurposePayment, PublicKey: pubKeyHex},
		},
	}

	utxos := []txprep.UTXO{
		{TxID: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Vout: 0, ValueSats: 30_000},
		{TxID: "5df6e0e2761359d30a8275058e299fcc0381534545f55cf43e41983f5d4c9456", Vout: 2, ValueSats: 15_000},
	}

	packet := emptyPacket(t)
	r := NewResolver(&chaincfg.MainNetParams, logrus.New())
	require.NoError(t, r.Resolve(context.Background(), accounts, sender, utxos, packet))

	require.Len(t, packet.UnsignedTx.TxIn, 2)
	require.Len(t, packet.Inputs, 2)

	assert.Equal(t, uint32(0), packet.UnsignedTx.TxIn[0].PreviousOutPoint.Index)
	assert.Equal(t, uint32(2), packet.UnsignedTx.TxIn[1].PreviousOutPoint.Index)
	assert.Equal(t, utxos[0].TxID, packet.UnsignedTx.TxIn[0].PreviousOutPoint.Hash.String())

	for i, pin := range packet.Inputs {
		require.NotNil(t, pin.WitnessUtxo)
		assert.Equal(t, int64(utxos[i].ValueSats), pin.WitnessUtxo.Value)
		assert.Equal(t, redeemScript, pin.RedeemScript)
		assert.Equal(t, txscript.SigHashAll, pin.SighashType)
	}
}

func TestResolver_Resolve_AllOrNothing(t *testing.T) {
	pubKeyHex, sender, _ := testKey(t)

	accounts := &fakeAccounts{
		addresses: []wallet.AccountAddress{
			{Address: sender, Purpose: wallet.PurposePayment, PublicKey: pubKeyHex},
		},
	}

	utxos := []txprep.UTXO{
		{TxID: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Vout: 0, ValueSats: 30_000},
		{TxID: "zz-not-a-txid", Vout: 1, ValueSats: 10_000},
	}

	packet := emptyPacket(t)
	r := NewResolver(&chaincfg.MainNetParams, logrus.New())
	err := r.Resolve(context.Background(), accounts, sender, utxos, packet)
	require.Error(t, err)

	assert.Empty(t, packet.UnsignedTx.TxIn, "a failing input must not leave a partially-injected transaction")
	assert.Empty(t, packet.Inputs)
}

func TestResolver_Resolve_PermissionRetry(t *testing.T) {
	pubKeyHex, sender, _ := testKey(t)

	accounts := &fakeAccounts{
		addresses: []wallet.AccountAddress{
			{Address: sender, Purpose: wallet.PurposePayment, PublicKey: pubKeyHex},
		},
		accountsErrs: []error{wallet.ErrPermissionRequired},
	}

	packet := emptyPacket(t)
	r := NewResolver(&chaincfg.MainNetParams, logrus.New())
	err := r.Resolve(context.Background(), accounts, sender, []txprep.UTXO{
		{TxID: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Vout: 0, ValueSats: 30_000},
	}, packet)
	require.NoError(t, err)

	assert.Equal(t, 1, accounts.permissionCalls)
	assert.Equal(t, 2, accounts.accountsCalls, "one retry after the grant, no more")
	assert.Len(t, packet.Inputs, 1)
}

func TestResolver_Resolve_PermissionDenied(t *testing.T) {
	_, sender, _ := testKey(t)

	t.Run("grant refused", func(t *testing.T) {
		accounts := &fakeAccounts{
			accountsErrs:  []error{wallet.ErrPermissionRequired},
			permissionErr: wallet.ErrPermissionDenied,
		}

		r := NewResolver(&chaincfg.MainNetParams, logrus.New())
		err := r.Resolve(context.Background(), accounts, sender, nil, emptyPacket(t))
		require.ErrorIs(t, err, ErrPermissionDenied)
		assert.Equal(t, 1, accounts.accountsCalls)
	})

	t.Run("second lookup still gated", func(t *testing.T) {
		accounts := &fakeAccounts{
			accountsErrs: []error{wallet.ErrPermissionRequired, wallet.ErrPermissionRequired},
		}

		r := NewResolver(&chaincfg.MainNetParams, logrus.New())
		err := r.Resolve(context.Background(), accounts, sender, nil, emptyPacket(t))
		require.ErrorIs(t, err, ErrPermissionDenied)
		assert.Equal(t, 2, accounts.accountsCalls, "a second denial is terminal, never a loop")
	})
}

func TestResolver_Resolve_NoPublicKey(t *testing.T) {
	pubKeyHex, sender, _ := testKey(t)

	tests := []struct {
		name      string
		addresses []wallet.AccountAddress
	}{
		{
			name: "matching entry without a key",
			addresses: []wallet.AccountAddress{
				{Address: sender, Purpose: wallet.PurposePayment, PublicKey: ""},
			},
		},
		{
			name: "no payment entry for sender",
			addresses: []wallet.AccountAddress{
				{Address: "3SomeOtherAddr", Purpose: wallet.PurposePayment, PublicKey: pubKeyHex},
				{Address: sender, Purpose: "ordinals", PublicKey: pubKeyHex},
			},
		},
		{
			name:      "empty descriptor",
			addresses: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accounts := &fakeAccounts{addresses: tt.addresses}
			r := NewResolver(&chaincfg.MainNetParams, logrus.New())
			err := r.Resolve(context.Background(), accounts, sender, nil, emptyPacket(t))
			require.ErrorIs(t, err, ErrNoPublicKey)
		})
	}
}

func TestResolver_Resolve_KeyAddressMismatch(t *testing.T) {
	// Descriptor advertises a key that does not hash back to the sender
	// address: injection must refuse rather than sign against the wrong
	// script.
	_, sender, _ := testKey(t)

	otherKey := make([]byte, 33)
	otherKey[0] = 0x03
	accounts := &fakeAccounts{
		addresses: []wallet.AccountAddress{
			{Address: sender, Purpose: wallet.PurposePayment, PublicKey: hex.EncodeToString(otherKey)},
		},
	}

	r := NewResolver(&chaincfg.MainNetParams, logrus.New())
	err := r.Resolve(context.Background(), accounts, sender, nil, emptyPacket(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match sender")
}
