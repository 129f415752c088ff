package validator_test

import (
	"crypto/ecdsa"
	"testing"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/ledger"
	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
	"github.com/ardanlabs/utxochain/foundation/blockchain/storage/disk"
	"github.com/ardanlabs/utxochain/foundation/blockchain/validator"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minFee = 50

type fakeChain map[string]bool

func (fc fakeChain) ContainsTransaction(id string) (bool, error) {
	return fc[id], nil
}

type fakePool struct {
	txs     map[string]bool
	claimed map[database.OutputRef]bool
}

func newFakePool() *fakePool {
	return &fakePool{
		txs:     make(map[string]bool),
		claimed: make(map[database.OutputRef]bool),
	}
}

func (fp *fakePool) Contains(id string) bool {
	return fp.txs[id]
}

func (fp *fakePool) Claimed(ref database.OutputRef) bool {
	return fp.claimed[ref]
}

func (fp *fakePool) admit(tx database.Transaction) {
	fp.txs[tx.ID] = true
	for _, in := range tx.Inputs {
		fp.claimed[in] = true
	}
}

type fixture struct {
	ledger *ledger.Ledger
	chain  fakeChain
	pool   *fakePool
	val    *validator.Validator

	alice, bob, carol             *ecdsa.PrivateKey
	aliceAddr, bobAddr, carolAddr string
}

func newFixture(t *testing.T, nonces validator.NonceSource) *fixture {
	t.Helper()

	store, err := disk.NewMemoryUTXOs()
	require.NoError(t, err)

	l, err := ledger.New(store)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	f := fixture{
		ledger: l,
		chain:  make(fakeChain),
		pool:   newFakePool(),
	}

	f.alice = genKey(t)
	f.bob = genKey(t)
	f.carol = genKey(t)
	f.aliceAddr = signature.PrivateKeyAddress(f.alice)
	f.bobAddr = signature.PrivateKeyAddress(f.bob)
	f.carolAddr = signature.PrivateKeyAddress(f.carol)

	f.val = validator.New(validator.Config{
		Ledger: l,
		Chain:  f.chain,
		Pool:   f.pool,
		MinFee: minFee,
		Nonces: nonces,
	})

	return &f
}

func genKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()

	pk, err := crypto.GenerateKey()
	require.NoError(t, err)
	return pk
}

func (f *fixture) fund(t *testing.T, txID string, out database.Output) database.OutputRef {
	t.Helper()

	ref := database.OutputRef{TxID: txID, Index: 0}
	require.NoError(t, f.ledger.Add(database.UTXO{Ref: ref, Output: out}))
	return ref
}

func signed(t *testing.T, pk *ecdsa.PrivateKey, inputs []database.OutputRef, outputs []database.Output, fee, nonce uint64) database.Transaction {
	t.Helper()

	tx := database.NewTransaction(inputs, outputs, fee, nonce)
	require.NoError(t, tx.Sign(pk))
	return tx
}

// =============================================================================

func TestValidate_AcceptThenDuplicate(t *testing.T) {
	f := newFixture(t, nil)

	ref := f.fund(t, "funding", database.NewOutput(f.aliceAddr, 1000))

	tx := signed(t, f.alice, []database.OutputRef{ref}, []database.Output{database.NewOutput(f.bobAddr, 950)}, 50, 1)

	checked, err := f.val.Validate(tx)
	require.NoError(t, err)
	assert.Equal(t, f.aliceAddr, checked.Signer)
	assert.Equal(t, uint64(1000), checked.InputSum)

	f.pool.admit(tx)

	_, err = f.val.Validate(tx)
	require.ErrorIs(t, err, validator.ErrDuplicateTransaction)

	// Once committed the duplicate is found in the chain instead.
	delete(f.pool.txs, tx.ID)
	f.chain[tx.ID] = true

	_, err = f.val.Validate(tx)
	require.ErrorIs(t, err, validator.ErrDuplicateTransaction)
}

func TestValidate_InsufficientFunds(t *testing.T) {
	f := newFixture(t, nil)

	ref := f.fund(t, "funding", database.NewOutput(f.aliceAddr, 100))

	tx := signed(t, f.alice, []database.OutputRef{ref}, []database.Output{database.NewOutput(f.bobAddr, 150)}, minFee, 1)

	_, err := f.val.Validate(tx)
	require.ErrorIs(t, err, validator.ErrInsufficientFunds)
	assert.True(t, validator.IsValidationError(err))
	assert.False(t, f.pool.Contains(tx.ID))
}

func TestValidate_Signatures(t *testing.T) {
	f := newFixture(t, nil)

	ref := f.fund(t, "funding", database.NewOutput(f.aliceAddr, 1000))
	outputs := []database.Output{database.NewOutput(f.bobAddr, 900)}

	tx := signed(t, f.alice, []database.OutputRef{ref}, outputs, minFee, 1)

	tampered := tx
	tampered.Fee = 1
	_, err := f.val.Validate(tampered)
	require.ErrorIs(t, err, validator.ErrInvalidSignature, "changing a field must break the id")

	forged := tx
	forged.Signature = append([]byte{}, tx.Signature...)
	forged.Signature[10] ^= 0xff
	_, err = f.val.Validate(forged)
	require.ErrorIs(t, err, validator.ErrInvalidSignature)

	badCosigner := tx
	require.NoError(t, badCosigner.Cosign(f.bob))
	badCosigner.Cosigners[0].PublicKey = signature.PublicKeyBytes(&f.carol.PublicKey)
	_, err = f.val.Validate(badCosigner)
	require.ErrorIs(t, err, validator.ErrInvalidSignature)
}

func TestValidate_Inputs(t *testing.T) {
	f := newFixture(t, nil)

	ref := f.fund(t, "funding", database.NewOutput(f.aliceAddr, 1000))
	outputs := []database.Output{database.NewOutput(f.bobAddr, 900)}

	missing := signed(t, f.alice, []database.OutputRef{{TxID: "nowhere", Index: 3}}, outputs, minFee, 1)
	_, err := f.val.Validate(missing)
	require.ErrorIs(t, err, validator.ErrOutputNotFound)

	repeated := signed(t, f.alice, []database.OutputRef{ref, ref}, outputs, minFee, 1)
	_, err = f.val.Validate(repeated)
	require.ErrorIs(t, err, validator.ErrOutputNotFound)

	first := signed(t, f.alice, []database.OutputRef{ref}, outputs, minFee, 1)
	_, err = f.val.Validate(first)
	require.NoError(t, err)
	f.pool.admit(first)

	conflict := signed(t, f.alice, []database.OutputRef{ref}, outputs, minFee, 2)
	_, err = f.val.Validate(conflict)
	require.ErrorIs(t, err, validator.ErrOutputNotFound, "an input claimed by a pending transaction is not spendable")
}

func TestValidate_Authorization(t *testing.T) {
	f := newFixture(t, nil)

	bobs := f.fund(t, "bobs", database.NewOutput(f.bobAddr, 1000))
	outputs := []database.Output{database.NewOutput(f.aliceAddr, 900)}

	theft := signed(t, f.alice, []database.OutputRef{bobs}, outputs, minFee, 1)
	_, err := f.val.Validate(theft)
	require.ErrorIs(t, err, validator.ErrUnauthorized)

	shared := f.fund(t, "shared", database.Output{
		Recipient: f.aliceAddr,
		Value:     1000,
		Lock:      database.MultiSig(2, f.aliceAddr, f.bobAddr, f.carolAddr),
	})

	alone := signed(t, f.alice, []database.OutputRef{shared}, outputs, minFee, 1)
	_, err = f.val.Validate(alone)
	require.ErrorIs(t, err, validator.ErrUnauthorized)

	// A repeated cosignature from the primary signer does not count twice.
	self := alone
	require.NoError(t, self.Cosign(f.alice))
	_, err = f.val.Validate(self)
	require.ErrorIs(t, err, validator.ErrUnauthorized)

	together := alone
	require.NoError(t, together.Cosign(f.carol))
	_, err = f.val.Validate(together)
	require.NoError(t, err)
}

func TestValidate_FeeAndNonce(t *testing.T) {
	f := newFixture(t, nil)

	ref := f.fund(t, "funding", database.NewOutput(f.aliceAddr, 1000))
	outputs := []database.Output{database.NewOutput(f.bobAddr, 900)}

	cheap := signed(t, f.alice, []database.OutputRef{ref}, outputs, minFee-1, 1)
	_, err := f.val.Validate(cheap)
	require.ErrorIs(t, err, validator.ErrFeeTooLow)

	zero := signed(t, f.alice, []database.OutputRef{ref}, outputs, minFee, 0)
	_, err = f.val.Validate(zero)
	require.ErrorIs(t, err, validator.ErrInvalidNonce)
}

func TestValidate_StrictNonce(t *testing.T) {
	nonces := validator.NewNonceLedger()
	f := newFixture(t, nonces)

	ref := f.fund(t, "funding", database.NewOutput(f.aliceAddr, 1000))
	outputs := []database.Output{database.NewOutput(f.bobAddr, 900)}

	nonces.Record(f.aliceAddr, 5)
	nonces.Record(f.aliceAddr, 3)

	last, exists := nonces.LastNonce(f.aliceAddr)
	require.True(t, exists)
	assert.Equal(t, uint64(5), last)

	replay := signed(t, f.alice, []database.OutputRef{ref}, outputs, minFee, 5)
	_, err := f.val.Validate(replay)
	require.ErrorIs(t, err, validator.ErrInvalidNonce)

	next := signed(t, f.alice, []database.OutputRef{ref}, outputs, minFee, 6)
	_, err = f.val.Validate(next)
	require.NoError(t, err)
}

func TestValidate_Malformed(t *testing.T) {
	f := newFixture(t, nil)

	ref := f.fund(t, "funding", database.NewOutput(f.aliceAddr, 1000))

	tests := map[string]database.Transaction{
		"no inputs":  signed(t, f.alice, nil, []database.Output{database.NewOutput(f.bobAddr, 1)}, minFee, 1),
		"no outputs": signed(t, f.alice, []database.OutputRef{ref}, nil, minFee, 1),
		"zero value": signed(t, f.alice, []database.OutputRef{ref}, []database.Output{database.NewOutput(f.bobAddr, 0)}, minFee, 1),
		"no id":      {},
	}

	for name, tx := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := f.val.Validate(tx)
			require.ErrorIs(t, err, validator.ErrMalformed)
		})
	}
}
