package database

import (
	"fmt"

	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
	"github.com/fxamacker/cbor/v2"
)

// decMode rejects anything the canonical encoder would not have produced
// so stored bytes always re-encode to the same bytes.
var decMode cbor.DecMode

func init() {
	dm, err := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("constructing decoder: %s", err))
	}
	decMode = dm
}

// EncodeBlock returns the canonical bytes for the block.
func EncodeBlock(b Block) ([]byte, error) {
	data, err := signature.Encode(b)
	if err != nil {
		return nil, fmt.Errorf("encoding block %d: %w", b.Header.Number, err)
	}
	return data, nil
}

// DecodeBlock converts canonical bytes back into a block.
func DecodeBlock(data []byte) (Block, error) {
	var b Block
	if err := decMode.Unmarshal(data, &b); err != nil {
		return Block{}, fmt.Errorf("decoding block: %w", err)
	}
	return b, nil
}

// EncodeTransaction returns the canonical bytes for the transaction.
func EncodeTransaction(tx Transaction) ([]byte, error) {
	data, err := signature.Encode(tx)
	if err != nil {
		return nil, fmt.Errorf("encoding transaction %s: %w", tx.ID, err)
	}
	return data, nil
}

// DecodeTransaction converts canonical bytes back into a transaction.
func DecodeTransaction(data []byte) (Transaction, error) {
	var tx Transaction
	if err := decMode.Unmarshal(data, &tx); err != nil {
		return Transaction{}, fmt.Errorf("decoding transaction: %w", err)
	}
	return tx, nil
}

// EncodeOutput returns the canonical bytes for the output.
func EncodeOutput(out Output) ([]byte, error) {
	data, err := signature.Encode(out)
	if err != nil {
		return nil, fmt.Errorf("encoding output: %w", err)
	}
	return data, nil
}

// DecodeOutput converts canonical bytes back into an output.
func DecodeOutput(data []byte) (Output, error) {
	var out Output
	if err := decMode.Unmarshal(data, &out); err != nil {
		return Output{}, fmt.Errorf("decoding output: %w", err)
	}
	return out, nil
}
