// Package wallet constructs signed transactions from a spend request and
// the unspent outputs owned by the signing key.
package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
)

// ErrInsufficientFunds is returned when the spendable outputs do not cover
// the amount plus the fee.
var ErrInsufficientFunds = errors.New("insufficient funds")

// SpendRequest describes a transfer of value to a recipient.
type SpendRequest struct {
	To     string `json:"to" validate:"required"`
	Amount uint64 `json:"amount" validate:"required,gt=0"`
	Fee    uint64 `json:"fee"`
	Nonce  uint64 `json:"nonce"`
}

// Build selects outputs covering the amount plus fee in the order given,
// pays the recipient, returns any change to the signer and signs the
// result. A zero nonce is replaced by the current time in nanoseconds.
func Build(req SpendRequest, utxos []database.UTXO, privateKey *ecdsa.PrivateKey) (database.Transaction, error) {
	if req.To == "" {
		return database.Transaction{}, errors.New("recipient is required")
	}
	if req.Amount == 0 {
		return database.Transaction{}, errors.New("amount must be greater than zero")
	}

	required, err := database.AddValues(req.Amount, req.Fee)
	if err != nil {
		return database.Transaction{}, err
	}

	from := signature.PrivateKeyAddress(privateKey)

	var inputs []database.OutputRef
	var total uint64
	for _, utxo := range utxos {
		if !spendable(utxo.Output, from) {
			continue
		}

		inputs = append(inputs, utxo.Ref)

		total, err = database.AddValues(total, utxo.Output.Value)
		if err != nil {
			return database.Transaction{}, err
		}

		if total >= required {
			break
		}
	}

	if total < required {
		return database.Transaction{}, fmt.Errorf("%w: required %d, available %d", ErrInsufficientFunds, required, total)
	}

	outputs := []database.Output{database.NewOutput(req.To, req.Amount)}
	if change := total - required; change > 0 {
		outputs = append(outputs, database.NewOutput(from, change))
	}

	nonce := req.Nonce
	if nonce == 0 {
		nonce = uint64(time.Now().UTC().UnixNano())
	}

	tx := database.NewTransaction(inputs, outputs, req.Fee, nonce)
	if err := tx.Sign(privateKey); err != nil {
		return database.Transaction{}, err
	}

	return tx, nil
}

// spendable reports whether a single signature from the address unlocks
// the output.
func spendable(out database.Output, address string) bool {
	switch out.Lock.Kind {
	case database.PayToPublicKey, database.PayToScriptHash:
		if strings.EqualFold(out.Recipient, address) {
			return true
		}
		for _, key := range out.Lock.Keys {
			if strings.EqualFold(key, address) {
				return true
			}
		}

	case database.PayToMultiSig:
		if out.Lock.Required > 1 {
			return false
		}
		for _, key := range out.Lock.Keys {
			if strings.EqualFold(key, address) {
				return true
			}
		}
	}

	return false
}
