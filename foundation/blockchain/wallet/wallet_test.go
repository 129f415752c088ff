package wallet_test

import (
	"testing"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/wallet"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	pkHexKey = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	owner    = "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4"
	to       = "0xF01813E4B85e178A83e29B8E7bF26BD830a25f32"
)

func utxos() []database.UTXO {
	return []database.UTXO{
		{Ref: database.OutputRef{TxID: "a", Index: 0}, Output: database.NewOutput(owner, 600)},
		{Ref: database.OutputRef{TxID: "b", Index: 1}, Output: database.NewOutput(to, 5000)},
		{Ref: database.OutputRef{TxID: "c", Index: 0}, Output: database.NewOutput(owner, 700)},
		{Ref: database.OutputRef{TxID: "d", Index: 2}, Output: database.NewOutput(owner, 900)},
	}
}

func TestBuild_ChangeOutput(t *testing.T) {
	pk, err := crypto.HexToECDSA(pkHexKey)
	require.NoError(t, err)

	tx, err := wallet.Build(wallet.SpendRequest{To: to, Amount: 1000, Fee: 50}, utxos(), pk)
	require.NoError(t, err)

	require.Len(t, tx.Inputs, 2, "outputs are selected in order until covered")
	assert.Equal(t, "a:0", tx.Inputs[0].String())
	assert.Equal(t, "c:0", tx.Inputs[1].String())

	require.Len(t, tx.Outputs, 2)
	assert.Equal(t, to, tx.Outputs[0].Recipient)
	assert.Equal(t, uint64(1000), tx.Outputs[0].Value)
	assert.Equal(t, owner, tx.Outputs[1].Recipient)
	assert.Equal(t, uint64(250), tx.Outputs[1].Value)

	assert.NotZero(t, tx.Nonce)
	require.NoError(t, tx.VerifySignature())

	signer, err := tx.SignerAddress()
	require.NoError(t, err)
	assert.Equal(t, owner, signer)
}

func TestBuild_ExactAmount(t *testing.T) {
	pk, err := crypto.HexToECDSA(pkHexKey)
	require.NoError(t, err)

	tx, err := wallet.Build(wallet.SpendRequest{To: to, Amount: 550, Fee: 50, Nonce: 7}, utxos(), pk)
	require.NoError(t, err)

	require.Len(t, tx.Outputs, 1, "no change output when the inputs match exactly")
	assert.Equal(t, uint64(7), tx.Nonce)
}

func TestBuild_InsufficientFunds(t *testing.T) {
	pk, err := crypto.HexToECDSA(pkHexKey)
	require.NoError(t, err)

	_, err = wallet.Build(wallet.SpendRequest{To: to, Amount: 2200, Fee: 50}, utxos(), pk)
	require.ErrorIs(t, err, wallet.ErrInsufficientFunds)

	_, err = wallet.Build(wallet.SpendRequest{To: to, Amount: 0}, utxos(), pk)
	require.Error(t, err)
}
