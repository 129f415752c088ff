package database

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/ardanlabs/utxochain/foundation/blockchain/merkle"
	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
)

// Set of errors for block validation.
var (
	ErrHashNotSolved    = errors.New("block hash does not meet the difficulty")
	ErrHashMismatch     = errors.New("block hash does not match its content")
	ErrMerkleMismatch   = errors.New("merkle root does not match transactions")
	ErrPrevHashMismatch = errors.New("previous hash does not match the chain tip")
	ErrNumberMismatch   = errors.New("block number is not the next number")
	ErrTxIDMismatch     = errors.New("transaction id does not match its content")
)

// =============================================================================

// BlockHeader represents the content of a block that is sealed by the proof
// of work.
type BlockHeader struct {
	Number      uint64 `json:"number"`      // Sequence number starting at 0.
	Timestamp   int64  `json:"timestamp"`   // Unix nanoseconds the block was assembled.
	PrevHash    string `json:"prev_hash"`   // Content hash of the previous block.
	MerkleRoot  string `json:"merkle_root"` // Merkle root over the transaction ids.
	Difficulty  uint   `json:"difficulty"`  // Number of leading 0 hex characters required.
	Beneficiary string `json:"beneficiary"` // Address credited with the reward and fees.
	Nonce       uint64 `json:"nonce"`       // Value identified to solve the hash solution.
}

// sealContent is everything in the header except the nonce.
type sealContent struct {
	PrevHash    string `json:"prev_hash"`
	Number      uint64 `json:"number"`
	Timestamp   int64  `json:"timestamp"`
	MerkleRoot  string `json:"merkle_root"`
	Difficulty  uint   `json:"difficulty"`
	Beneficiary string `json:"beneficiary"`
}

// ComputeHash returns the content hash for the header with its nonce.
func (h BlockHeader) ComputeHash() (string, error) {
	seal, err := NewSeal(h)
	if err != nil {
		return "", err
	}

	sum := seal.Sum(h.Nonce)
	return hex.EncodeToString(sum[:]), nil
}

// =============================================================================

// Seal holds the hashing input for one header: the encoded header content
// followed by room for the nonce. A Seal is not safe for concurrent use,
// use Clone to give each goroutine its own copy.
type Seal struct {
	buf []byte
	n   int
}

// NewSeal encodes the header content once so many nonces can be tried.
func NewSeal(h BlockHeader) (Seal, error) {
	content := sealContent{
		PrevHash:    h.PrevHash,
		Number:      h.Number,
		Timestamp:   h.Timestamp,
		MerkleRoot:  h.MerkleRoot,
		Difficulty:  h.Difficulty,
		Beneficiary: h.Beneficiary,
	}

	prefix, err := signature.Encode(content)
	if err != nil {
		return Seal{}, fmt.Errorf("encoding header: %w", err)
	}

	buf := make([]byte, len(prefix)+8)
	copy(buf, prefix)

	return Seal{buf: buf, n: len(prefix)}, nil
}

// Clone returns a copy of the seal with its own buffer.
func (s Seal) Clone() Seal {
	buf := make([]byte, len(s.buf))
	copy(buf, s.buf)
	return Seal{buf: buf, n: s.n}
}

// Sum returns the sha256 of the header content with the nonce appended.
func (s Seal) Sum(nonce uint64) [32]byte {
	binary.BigEndian.PutUint64(s.buf[s.n:], nonce)
	return sha256.Sum256(s.buf)
}

// MeetsDifficulty reports whether the hash starts with difficulty zero
// hex characters.
func MeetsDifficulty(sum [32]byte, difficulty uint) bool {
	if difficulty > 64 {
		return false
	}

	full := difficulty / 2
	for i := uint(0); i < full; i++ {
		if sum[i] != 0 {
			return false
		}
	}

	if difficulty%2 == 1 && sum[full]>>4 != 0 {
		return false
	}

	return true
}

// IsHashSolved checks the hex hash to make sure it complies with
// the POW rules. We need to match a difficulty number of 0's.
func IsHashSolved(difficulty uint, hash string) bool {
	if len(hash) != 64 || difficulty > 64 {
		return false
	}

	for i := uint(0); i < difficulty; i++ {
		if hash[i] != '0' {
			return false
		}
	}

	return true
}

// =============================================================================

// ProofOfWork records how the block was sealed.
type ProofOfWork struct {
	Difficulty uint   `json:"difficulty"`
	Nonce      uint64 `json:"nonce"`
	Reward     uint64 `json:"reward"`
	HashRate   uint64 `json:"hash_rate"` // Attempts per second observed while mining.
}

// Block represents a group of transactions batched together.
type Block struct {
	Header       BlockHeader   `json:"header"`
	Hash         string        `json:"hash"`
	Transactions []Transaction `json:"transactions"`
	PoW          ProofOfWork   `json:"pow"`
	Size         uint64        `json:"size"`
}

// NewGenesis constructs the unsealed first block of the chain.
func NewGenesis(beneficiary string, difficulty uint, reward uint64) Block {
	return Block{
		Header: BlockHeader{
			Number:      0,
			Timestamp:   time.Now().UTC().UnixNano(),
			PrevHash:    signature.ZeroHash,
			MerkleRoot:  signature.ZeroHash,
			Difficulty:  difficulty,
			Beneficiary: beneficiary,
		},
		PoW: ProofOfWork{
			Difficulty: difficulty,
			Reward:     reward,
		},
	}
}

// NewCandidate constructs the unsealed block that follows the previous block
// with the specified transactions.
func NewCandidate(prev Block, beneficiary string, difficulty uint, reward uint64, txs []Transaction) (Block, error) {
	tree, err := merkle.NewTree(txs)
	if err != nil {
		return Block{}, err
	}

	// Make sure the block is assembled after its parent even if the clock
	// has not moved forward.
	ts := time.Now().UTC().UnixNano()
	if ts <= prev.Header.Timestamp {
		ts = prev.Header.Timestamp + 1
	}

	b := Block{
		Header: BlockHeader{
			Number:      prev.Header.Number + 1,
			Timestamp:   ts,
			PrevHash:    prev.Hash,
			MerkleRoot:  tree.RootHex(),
			Difficulty:  difficulty,
			Beneficiary: beneficiary,
		},
		Transactions: txs,
		PoW: ProofOfWork{
			Difficulty: difficulty,
			Reward:     reward,
		},
	}

	return b, nil
}

// Sealed returns a copy of the block with the discovered nonce, hash and
// observed hash rate applied and its encoded size computed.
func (b Block) Sealed(nonce uint64, hash string, hashRate uint64) (Block, error) {
	b.Header.Nonce = nonce
	b.Hash = hash
	b.PoW.Nonce = nonce
	b.PoW.HashRate = hashRate

	size, err := b.EncodedSize()
	if err != nil {
		return Block{}, err
	}
	b.Size = size

	return b, nil
}

// EncodedSize returns the number of bytes the block occupies in storage
// without counting the size field itself.
func (b Block) EncodedSize() (uint64, error) {
	b.Size = 0

	data, err := EncodeBlock(b)
	if err != nil {
		return 0, err
	}

	return uint64(len(data)), nil
}

// MerkleRoot recomputes the merkle root over the block transactions.
func (b Block) MerkleRoot() (string, error) {
	tree, err := merkle.NewTree(b.Transactions)
	if err != nil {
		return "", err
	}

	return tree.RootHex(), nil
}

// Fees returns the sum of the transaction fees in the block.
func (b Block) Fees() (uint64, error) {
	fees := make([]uint64, len(b.Transactions))
	for i, tx := range b.Transactions {
		fees[i] = tx.Fee
	}

	return AddValues(fees...)
}

// RewardOutput returns the reference and output that credit the
// beneficiary with the block reward plus fees.
func (b Block) RewardOutput() (OutputRef, Output, error) {
	fees, err := b.Fees()
	if err != nil {
		return OutputRef{}, Output{}, err
	}

	value, err := AddValues(b.PoW.Reward, fees)
	if err != nil {
		return OutputRef{}, Output{}, err
	}

	return OutputRef{TxID: b.Hash, Index: 0}, NewOutput(b.Header.Beneficiary, value), nil
}

// ValidateSeal checks the block content against its own hash, difficulty
// and merkle root, and every transaction against its id. It doesn't look at
// the chain the block belongs to.
func (b Block) ValidateSeal() error {
	hash, err := b.Header.ComputeHash()
	if err != nil {
		return err
	}

	if hash != b.Hash {
		return fmt.Errorf("%w: got %s, exp %s", ErrHashMismatch, b.Hash, hash)
	}

	if !IsHashSolved(b.Header.Difficulty, b.Hash) {
		return fmt.Errorf("%w: %s", ErrHashNotSolved, b.Hash)
	}

	// The merkle leaves commit to the ids only.
	for _, tx := range b.Transactions {
		id, err := tx.ComputeID()
		if err != nil {
			return err
		}

		if id != tx.ID {
			return fmt.Errorf("%w: got %s, exp %s", ErrTxIDMismatch, tx.ID, id)
		}
	}

	root, err := b.MerkleRoot()
	if err != nil {
		return err
	}

	if root != b.Header.MerkleRoot {
		return fmt.Errorf("%w: got %s, exp %s", ErrMerkleMismatch, root, b.Header.MerkleRoot)
	}

	return nil
}

// ValidateLink checks the block is the next block after the previous block.
func (b Block) ValidateLink(prev Block) error {
	if b.Header.Number != prev.Header.Number+1 {
		return fmt.Errorf("%w: got %d, exp %d", ErrNumberMismatch, b.Header.Number, prev.Header.Number+1)
	}

	if b.Header.PrevHash != prev.Hash {
		return fmt.Errorf("%w: got %s, exp %s", ErrPrevHashMismatch, b.Header.PrevHash, prev.Hash)
	}

	return nil
}

// ValidateGenesis checks the block can be the first block of a chain.
func (b Block) ValidateGenesis() error {
	if b.Header.Number != 0 {
		return fmt.Errorf("%w: got %d, exp 0", ErrNumberMismatch, b.Header.Number)
	}

	if b.Header.PrevHash != signature.ZeroHash {
		return fmt.Errorf("%w: genesis must reference the zero hash", ErrPrevHashMismatch)
	}

	return nil
}
