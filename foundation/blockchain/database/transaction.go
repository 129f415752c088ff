package database

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/bits"
	"strconv"
	"strings"
	"time"

	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrValueOverflow is returned when summing values would wrap around.
var ErrValueOverflow = errors.New("value overflow")

// AddValues sums the values and fails instead of wrapping around.
func AddValues(values ...uint64) (uint64, error) {
	var total uint64
	for _, v := range values {
		sum, carry := bits.Add64(total, v, 0)
		if carry != 0 {
			return 0, ErrValueOverflow
		}
		total = sum
	}

	return total, nil
}

// =============================================================================

// LockKind identifies how an output may be spent.
type LockKind uint8

// Set of spending descriptor kinds. Locks are modeled but never executed as
// scripts.
const (
	PayToPublicKey LockKind = iota + 1
	PayToMultiSig
	PayToScriptHash
)

var lockKindNames = map[LockKind]string{
	PayToPublicKey:  "p2pk",
	PayToMultiSig:   "multisig",
	PayToScriptHash: "p2sh",
}

// String implements the fmt.Stringer interface.
func (k LockKind) String() string {
	if name, exists := lockKindNames[k]; exists {
		return name
	}
	return "unknown(" + strconv.Itoa(int(k)) + ")"
}

// ParseLockKind converts the name of a lock kind into its value.
func ParseLockKind(name string) (LockKind, error) {
	for k, n := range lockKindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("lock kind %q does not exist", name)
}

// MarshalText implements the encoding.TextMarshaler interface.
func (k LockKind) MarshalText() ([]byte, error) {
	name, exists := lockKindNames[k]
	if !exists {
		return nil, fmt.Errorf("lock kind %d does not exist", k)
	}
	return []byte(name), nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (k *LockKind) UnmarshalText(data []byte) error {
	kind, err := ParseLockKind(string(data))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// Lock is the spending-authorization descriptor attached to an output.
type Lock struct {
	Kind     LockKind `json:"kind"`
	Required uint8    `json:"required"`
	Keys     []string `json:"keys"`
}

// PayTo constructs a lock that can be spent by the single address.
func PayTo(address string) Lock {
	return Lock{
		Kind:     PayToPublicKey,
		Required: 1,
		Keys:     []string{address},
	}
}

// MultiSig constructs a lock that needs required signatures from the
// set of addresses.
func MultiSig(required uint8, addresses ...string) Lock {
	return Lock{
		Kind:     PayToMultiSig,
		Required: required,
		Keys:     addresses,
	}
}

// =============================================================================

// OutputRef points at one output of a transaction.
type OutputRef struct {
	TxID  string `json:"tx_id"`
	Index uint32 `json:"index"`
}

// String returns the "{txid}:{index}" key form of the reference.
func (r OutputRef) String() string {
	return r.TxID + ":" + strconv.FormatUint(uint64(r.Index), 10)
}

// ParseOutputRef converts the "{txid}:{index}" key form into a reference.
func ParseOutputRef(key string) (OutputRef, error) {
	i := strings.LastIndexByte(key, ':')
	if i <= 0 {
		return OutputRef{}, fmt.Errorf("invalid output reference %q", key)
	}

	idx, err := strconv.ParseUint(key[i+1:], 10, 32)
	if err != nil {
		return OutputRef{}, fmt.Errorf("invalid output index %q: %w", key, err)
	}

	return OutputRef{TxID: key[:i], Index: uint32(idx)}, nil
}

// Output is an amount of value locked to a recipient.
type Output struct {
	Recipient string `json:"recipient"`
	Value     uint64 `json:"value"`
	Lock      Lock   `json:"lock"`
}

// NewOutput constructs an output paying value to the address.
func NewOutput(address string, value uint64) Output {
	return Output{
		Recipient: address,
		Value:     value,
		Lock:      PayTo(address),
	}
}

// UTXO pairs an unspent output with its reference.
type UTXO struct {
	Ref    OutputRef `json:"ref"`
	Output Output    `json:"output"`
}

// =============================================================================

// Cosignature is an additional signature over the transaction used to
// satisfy multi-signature locks.
type Cosignature struct {
	PublicKey hexutil.Bytes `json:"public_key"`
	Signature hexutil.Bytes `json:"signature"`
}

// Transaction moves value from unspent outputs to new outputs.
type Transaction struct {
	ID        string        `json:"id"`
	Inputs    []OutputRef   `json:"inputs"`
	Outputs   []Output      `json:"outputs"`
	Fee       uint64        `json:"fee"`
	Timestamp int64         `json:"timestamp"`
	Nonce     uint64        `json:"nonce"`
	PublicKey hexutil.Bytes `json:"public_key"`
	Signature hexutil.Bytes `json:"signature"`
	Cosigners []Cosignature `json:"cosigners,omitempty"`
}

// txBody is the content the transaction id commits to.
type txBody struct {
	Inputs    []OutputRef   `json:"inputs"`
	Outputs   []Output      `json:"outputs"`
	Fee       uint64        `json:"fee"`
	Timestamp int64         `json:"timestamp"`
	Nonce     uint64        `json:"nonce"`
	PublicKey hexutil.Bytes `json:"public_key"`
}

// txSignable is every field of the transaction except the signatures.
type txSignable struct {
	ID   string `json:"id"`
	Body txBody `json:"body"`
}

// NewTransaction constructs an unsigned transaction stamped with the
// current time.
func NewTransaction(inputs []OutputRef, outputs []Output, fee uint64, nonce uint64) Transaction {
	return Transaction{
		Inputs:    inputs,
		Outputs:   outputs,
		Fee:       fee,
		Timestamp: time.Now().UTC().UnixNano(),
		Nonce:     nonce,
	}
}

func (tx Transaction) body() txBody {
	return txBody{
		Inputs:    tx.Inputs,
		Outputs:   tx.Outputs,
		Fee:       tx.Fee,
		Timestamp: tx.Timestamp,
		Nonce:     tx.Nonce,
		PublicKey: tx.PublicKey,
	}
}

// ComputeID returns the id the transaction content commits to.
func (tx Transaction) ComputeID() (string, error) {
	data, err := signature.Encode(tx.body())
	if err != nil {
		return "", fmt.Errorf("encoding transaction body: %w", err)
	}

	return signature.HashBytes(data), nil
}

// SigningPayload returns the value that signatures are produced over.
func (tx Transaction) SigningPayload() any {
	return txSignable{
		ID:   tx.ID,
		Body: tx.body(),
	}
}

// Sign sets the signer public key and id, then signs the transaction.
func (tx *Transaction) Sign(privateKey *ecdsa.PrivateKey) error {
	tx.PublicKey = signature.PublicKeyBytes(&privateKey.PublicKey)

	id, err := tx.ComputeID()
	if err != nil {
		return err
	}
	tx.ID = id

	sig, err := signature.Sign(tx.SigningPayload(), privateKey)
	if err != nil {
		return err
	}
	tx.Signature = sig

	return nil
}

// Cosign adds a cosignature from the key. The transaction must already be
// signed by its primary signer.
func (tx *Transaction) Cosign(privateKey *ecdsa.PrivateKey) error {
	if tx.ID == "" {
		return errors.New("transaction must be signed before cosigning")
	}

	sig, err := signature.Sign(tx.SigningPayload(), privateKey)
	if err != nil {
		return err
	}

	tx.Cosigners = append(tx.Cosigners, Cosignature{
		PublicKey: signature.PublicKeyBytes(&privateKey.PublicKey),
		Signature: sig,
	})

	return nil
}

// VerifySignature checks the id matches the content and the signature
// verifies against the signer public key.
func (tx Transaction) VerifySignature() error {
	id, err := tx.ComputeID()
	if err != nil {
		return err
	}

	if id != tx.ID {
		return fmt.Errorf("%w: id does not match content", signature.ErrInvalidSignature)
	}

	return signature.Verify(tx.SigningPayload(), tx.Signature, tx.PublicKey)
}

// SignerAddress returns the address of the signer public key.
func (tx Transaction) SignerAddress() (string, error) {
	return signature.Address(tx.PublicKey)
}

// TotalOut returns the sum of the output values.
func (tx Transaction) TotalOut() (uint64, error) {
	values := make([]uint64, len(tx.Outputs))
	for i, out := range tx.Outputs {
		values[i] = out.Value
	}

	return AddValues(values...)
}

// Hash implements the merkle Hashable interface. Leaves commit to the
// transaction id.
func (tx Transaction) Hash() ([]byte, error) {
	h := sha256.Sum256([]byte(tx.ID))
	return h[:], nil
}

// Equals implements the merkle Hashable interface.
func (tx Transaction) Equals(otherTx Transaction) bool {
	return tx.ID == otherTx.ID
}

// String implements the fmt.Stringer interface for logging.
func (tx Transaction) String() string {
	return fmt.Sprintf("%s:%d:%d", tx.ID, len(tx.Inputs), tx.Fee)
}
