package database_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
	"github.com/ardanlabs/utxochain/foundation/blockchain/storage/disk"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	pkHexKey    = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	beneficiary = "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4"
	difficulty  = 1
)

// seal brute forces a nonce for the block. A difficulty of 1 needs about
// sixteen attempts.
func seal(t *testing.T, b database.Block) database.Block {
	t.Helper()

	s, err := database.NewSeal(b.Header)
	require.NoError(t, err)

	for nonce := uint64(1); ; nonce++ {
		sum := s.Sum(nonce)
		if database.MeetsDifficulty(sum, b.Header.Difficulty) {
			b.Header.Nonce = nonce
			hash, err := b.Header.ComputeHash()
			require.NoError(t, err)

			sealed, err := b.Sealed(nonce, hash, 0)
			require.NoError(t, err)
			return sealed
		}
	}
}

func signedTx(t *testing.T, input string, nonce uint64) database.Transaction {
	t.Helper()

	pk, err := crypto.HexToECDSA(pkHexKey)
	require.NoError(t, err)

	tx := database.NewTransaction(
		[]database.OutputRef{{TxID: input, Index: 0}},
		[]database.Output{database.NewOutput(beneficiary, 100)},
		1000,
		nonce,
	)
	require.NoError(t, tx.Sign(pk))

	return tx
}

func newChain(t *testing.T) (*database.Database, *disk.Blocks) {
	t.Helper()

	store, err := disk.NewMemoryBlocks()
	require.NoError(t, err)

	db, err := database.New(store, nil)
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })

	return db, store
}

func appendBlocks(t *testing.T, db *database.Database, n int) []database.Block {
	t.Helper()

	genesis := seal(t, database.NewGenesis(beneficiary, difficulty, 50))
	require.NoError(t, db.Append(genesis))

	blocks := []database.Block{genesis}
	prev := genesis
	for i := 1; i < n; i++ {
		txs := []database.Transaction{signedTx(t, prev.Hash, uint64(i))}

		candidate, err := database.NewCandidate(prev, beneficiary, difficulty, 50, txs)
		require.NoError(t, err)

		block := seal(t, candidate)
		require.NoError(t, db.Append(block))

		blocks = append(blocks, block)
		prev = block
	}

	return blocks
}

// inflated returns a copy of the block whose first transaction pays out far
// more than it was signed for.
func inflated(b database.Block) database.Block {
	txs := append([]database.Transaction{}, b.Transactions...)

	tx := txs[0]
	tx.Outputs = append([]database.Output{}, tx.Outputs...)
	tx.Outputs[0].Value = 1_000_000_000
	txs[0] = tx

	b.Transactions = txs
	return b
}

// =============================================================================

func TestDatabase_EmptyChain(t *testing.T) {
	db, _ := newChain(t)

	assert.True(t, db.IsEmpty())
	assert.True(t, db.VerifyIntegrity(), "an empty chain is intact")

	_, err := db.Tip()
	require.ErrorIs(t, err, database.ErrChainEmpty)
}

func TestDatabase_AppendAndQuery(t *testing.T) {
	db, _ := newChain(t)

	blocks := appendBlocks(t, db, 4)

	tip, err := db.Tip()
	require.NoError(t, err)
	assert.Equal(t, blocks[3].Hash, tip.Hash)
	assert.Equal(t, uint64(3), db.Height())

	num, exists := db.HeightOf(blocks[2].Hash)
	require.True(t, exists)
	assert.Equal(t, uint64(2), num)

	byHash, err := db.BlockByHash(blocks[1].Hash)
	require.NoError(t, err)
	assert.Equal(t, blocks[1].Header, byHash.Header)

	txID := blocks[2].Transactions[0].ID

	found, err := db.ContainsTransaction(txID)
	require.NoError(t, err)
	assert.True(t, found)

	found, err = db.ContainsTransaction(signature.ZeroHash)
	require.NoError(t, err)
	assert.False(t, found)

	tx, err := db.GetTransaction(txID)
	require.NoError(t, err)
	assert.Equal(t, txID, tx.ID)

	assert.True(t, db.VerifyIntegrity())
	assert.True(t, db.VerifyIntegrity(), "verification must not change the chain")
}

func TestDatabase_AppendRejectsBadLinks(t *testing.T) {
	db, _ := newChain(t)

	notGenesis := seal(t, database.NewGenesis(beneficiary, difficulty, 50))
	notGenesis.Header.PrevHash = signature.HashBytes([]byte("elsewhere"))
	require.ErrorIs(t, db.Append(notGenesis), database.ErrPrevHashMismatch)

	blocks := appendBlocks(t, db, 2)

	orphan, err := database.NewCandidate(blocks[0], beneficiary, difficulty, 50, nil)
	require.NoError(t, err)
	require.ErrorIs(t, db.Append(seal(t, orphan)), database.ErrNumberMismatch)

	next, err := database.NewCandidate(blocks[1], beneficiary, difficulty, 50, nil)
	require.NoError(t, err)
	next.Header.PrevHash = blocks[0].Hash
	require.ErrorIs(t, db.Append(seal(t, next)), database.ErrPrevHashMismatch)

	assert.Equal(t, uint64(1), db.Height())
}

func TestDatabase_IntegrityDetectsTampering(t *testing.T) {
	db, store := newChain(t)

	blocks := appendBlocks(t, db, 3)
	require.True(t, db.VerifyIntegrity())

	// Rewrite block 1 with changed content but keep the declared hash.
	tampered := blocks[1]
	tampered.Header.Timestamp++

	data, err := database.EncodeBlock(tampered)
	require.NoError(t, err)
	require.NoError(t, store.PutRaw(1, data))

	assert.False(t, db.VerifyIntegrity())

	// Restoring the original bytes restores integrity.
	data, err = database.EncodeBlock(blocks[1])
	require.NoError(t, err)
	require.NoError(t, store.PutRaw(1, data))

	assert.True(t, db.VerifyIntegrity())

	require.NoError(t, store.PutRaw(2, []byte("not a block")))
	assert.False(t, db.VerifyIntegrity())
}

func TestDatabase_IntegrityDetectsMissingBlocks(t *testing.T) {
	db, store := newChain(t)

	blocks := appendBlocks(t, db, 4)
	require.True(t, db.VerifyIntegrity())

	require.NoError(t, store.DeleteRaw(2))
	assert.Equal(t, uint64(3), db.Height())
	assert.False(t, db.VerifyIntegrity(), "a gap in the middle of the chain")

	data, err := database.EncodeBlock(blocks[2])
	require.NoError(t, err)
	require.NoError(t, store.PutRaw(2, data))
	require.True(t, db.VerifyIntegrity())

	require.NoError(t, store.DeleteRaw(3))
	assert.False(t, db.VerifyIntegrity(), "the tip block is gone")
}

func TestDatabase_IntegrityDetectsEditedOutputs(t *testing.T) {
	db, store := newChain(t)

	blocks := appendBlocks(t, db, 3)
	require.True(t, db.VerifyIntegrity())

	// The header and merkle root stay the same, only the output value moves.
	data, err := database.EncodeBlock(inflated(blocks[1]))
	require.NoError(t, err)
	require.NoError(t, store.PutRaw(1, data))

	assert.False(t, db.VerifyIntegrity())
}

func TestDatabase_Reload(t *testing.T) {
	store, err := disk.NewMemoryBlocks()
	require.NoError(t, err)

	db, err := database.New(store, nil)
	require.NoError(t, err)

	blocks := appendBlocks(t, db, 3)

	reloaded, err := database.New(store, nil)
	require.NoError(t, err)

	tip, err := reloaded.Tip()
	require.NoError(t, err)
	assert.Equal(t, blocks[2].Hash, tip.Hash)

	found, err := reloaded.ContainsTransaction(blocks[1].Transactions[0].ID)
	require.NoError(t, err)
	assert.True(t, found)
}

// =============================================================================

func TestBlock_EncodingIsStable(t *testing.T) {
	db, _ := newChain(t)
	blocks := appendBlocks(t, db, 2)

	data, err := database.EncodeBlock(blocks[1])
	require.NoError(t, err)

	decoded, err := database.DecodeBlock(data)
	require.NoError(t, err)

	again, err := database.EncodeBlock(decoded)
	require.NoError(t, err)

	assert.True(t, bytes.Equal(data, again), "re-encoding must reproduce the stored bytes")
	assert.Equal(t, uint64(len(data)), blocks[1].Size)

	require.NoError(t, decoded.ValidateSeal())
}

func TestBlock_ValidateSeal(t *testing.T) {
	db, _ := newChain(t)
	blocks := appendBlocks(t, db, 2)

	b := blocks[1]
	require.NoError(t, b.ValidateSeal())

	wrongHash := b
	wrongHash.Hash = signature.ZeroHash
	require.ErrorIs(t, wrongHash.ValidateSeal(), database.ErrHashMismatch)

	wrongRoot := b
	wrongRoot.Transactions = append([]database.Transaction{}, b.Transactions...)
	wrongRoot.Transactions = append(wrongRoot.Transactions, signedTx(t, b.Hash, 99))
	err := wrongRoot.ValidateSeal()
	require.True(t, errors.Is(err, database.ErrMerkleMismatch), "got %v", err)

	require.ErrorIs(t, inflated(b).ValidateSeal(), database.ErrTxIDMismatch)

	ref, out, err := b.RewardOutput()
	require.NoError(t, err)
	assert.Equal(t, database.OutputRef{TxID: b.Hash, Index: 0}, ref)
	assert.Equal(t, uint64(50+1000), out.Value)
	assert.Equal(t, beneficiary, out.Recipient)
}

func TestBlock_MeetsDifficulty(t *testing.T) {
	var sum [32]byte
	sum[0] = 0x00
	sum[1] = 0x0f

	assert.True(t, database.MeetsDifficulty(sum, 2))
	assert.True(t, database.MeetsDifficulty(sum, 3))
	assert.False(t, database.MeetsDifficulty(sum, 4))

	assert.True(t, database.IsHashSolved(3, "000f"+signature.ZeroHash[4:]))
	assert.False(t, database.IsHashSolved(4, "000f"+signature.ZeroHash[4:]))
	assert.False(t, database.IsHashSolved(1, "0abc"))
}

func TestAddValues(t *testing.T) {
	total, err := database.AddValues(1, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), total)

	_, err = database.AddValues(^uint64(0), 1)
	require.ErrorIs(t, err, database.ErrValueOverflow)
}
