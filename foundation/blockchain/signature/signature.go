// Package signature provides helper functions for handling the blockchain
// hashing and signature needs.
package signature

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fxamacker/cbor/v2"
)

// ZeroHash represents a hash code of zeros. It is the previous hash of the
// genesis block and the merkle root of an empty transaction list.
const ZeroHash string = "0000000000000000000000000000000000000000000000000000000000000000"

// ErrInvalidSignature is returned when a signature does not verify against
// the provided public key and data.
var ErrInvalidSignature = errors.New("invalid signature")

// encMode produces the canonical encoding used for hashing and signing.
// Core deterministic encoding sorts map keys and uses the shortest forms so
// the same value always produces the same bytes.
var encMode cbor.EncMode

func init() {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("constructing canonical encoder: %s", err))
	}
	encMode = em
}

// =============================================================================

// Encode returns the canonical byte encoding for the value.
func Encode(value any) ([]byte, error) {
	return encMode.Marshal(value)
}

// Hash returns a unique string for the value. An encoding failure produces
// the zero hash.
func Hash(value any) string {
	data, err := Encode(value)
	if err != nil {
		return ZeroHash
	}

	return HashBytes(data)
}

// HashBytes returns the hex encoded sha256 of the data.
func HashBytes(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// Sign uses the specified private key to sign the data. The 65 byte
// [R|S|V] signature is returned.
func Sign(value any, privateKey *ecdsa.PrivateKey) ([]byte, error) {

	// Prepare the data for signing.
	data, err := stamp(value)
	if err != nil {
		return nil, err
	}

	// Sign the hash with the private key to produce a signature.
	sig, err := crypto.Sign(data, privateKey)
	if err != nil {
		return nil, err
	}

	// Check the signature against the key that produced it.
	rs := sig[:crypto.RecoveryIDOffset]
	if !crypto.VerifySignature(PublicKeyBytes(&privateKey.PublicKey), data, rs) {
		return nil, ErrInvalidSignature
	}

	return sig, nil
}

// Verify checks the signature was produced over the value by the private
// key matching the specified compressed or uncompressed public key.
func Verify(value any, sig []byte, publicKey []byte) error {
	if len(sig) < crypto.RecoveryIDOffset {
		return fmt.Errorf("%w: signature length %d", ErrInvalidSignature, len(sig))
	}

	if len(publicKey) == 0 {
		return fmt.Errorf("%w: missing public key", ErrInvalidSignature)
	}

	data, err := stamp(value)
	if err != nil {
		return err
	}

	if !crypto.VerifySignature(publicKey, data, sig[:crypto.RecoveryIDOffset]) {
		return ErrInvalidSignature
	}

	return nil
}

// PublicKeyBytes returns the 33 byte compressed form of the public key.
func PublicKeyBytes(publicKey *ecdsa.PublicKey) []byte {
	return crypto.CompressPubkey(publicKey)
}

// Address returns the account address for the public key in its compressed
// or uncompressed form.
func Address(publicKey []byte) (string, error) {
	var pk *ecdsa.PublicKey
	var err error

	switch len(publicKey) {
	case 33:
		pk, err = crypto.DecompressPubkey(publicKey)
	default:
		pk, err = crypto.UnmarshalPubkey(publicKey)
	}
	if err != nil {
		return "", fmt.Errorf("parsing public key: %w", err)
	}

	return crypto.PubkeyToAddress(*pk).Hex(), nil
}

// PrivateKeyAddress returns the account address for the private key.
func PrivateKeyAddress(privateKey *ecdsa.PrivateKey) string {
	return crypto.PubkeyToAddress(privateKey.PublicKey).Hex()
}

// =============================================================================

// stamp returns a hash of 32 bytes that represents this data with
// the ledger stamp embedded into the final hash.
func stamp(value any) ([]byte, error) {

	// Encode the data canonically.
	v, err := Encode(value)
	if err != nil {
		return nil, err
	}

	// Hash the data into a 32 byte array. This will provide
	// a data length consistency with all data.
	txHash := crypto.Keccak256(v)

	// This stamp is used so signatures we produce when signing data
	// are always unique to this ledger.
	stamp := []byte("\x19UTXO Signed Message:\n32")

	// Hash the stamp and txHash together in a final 32 byte array
	// that represents the data.
	return crypto.Keccak256(stamp, txHash), nil
}
