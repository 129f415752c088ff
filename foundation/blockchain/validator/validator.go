// Package validator checks pending transactions against the unspent output
// set and the cryptographic rules before they are admitted to the pool.
package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/ledger"
	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
)

// Set of errors a transaction can be rejected with. The checks run in the
// order the errors are listed and the first failure is returned.
var (
	ErrMalformed            = errors.New("malformed transaction")
	ErrInvalidSignature     = signature.ErrInvalidSignature
	ErrDuplicateTransaction = errors.New("duplicate transaction")
	ErrOutputNotFound       = ledger.ErrOutputNotFound
	ErrUnauthorized         = errors.New("signer is not authorized to spend output")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrValueOverflow        = database.ErrValueOverflow
	ErrFeeTooLow            = errors.New("fee too low")
	ErrInvalidNonce         = errors.New("invalid nonce")
)

// IsValidationError reports whether the error rejects only the transaction
// and leaves every other piece of state untouched.
func IsValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrMalformed),
		errors.Is(err, ErrInvalidSignature),
		errors.Is(err, ErrDuplicateTransaction),
		errors.Is(err, ErrOutputNotFound),
		errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrValueOverflow),
		errors.Is(err, ErrFeeTooLow),
		errors.Is(err, ErrInvalidNonce):
		return true
	}

	return false
}

// =============================================================================

// Ledger represents the unspent output lookups the validator needs.
type Ledger interface {
	FindUnspent(ref database.OutputRef) (database.Output, bool)
}

// Chain represents the committed transaction lookups the validator needs.
type Chain interface {
	ContainsTransaction(id string) (bool, error)
}

// Pool represents the pending transaction lookups the validator needs.
type Pool interface {
	Contains(id string) bool
	Claimed(ref database.OutputRef) bool
}

// NonceSource provides the last nonce used by an identity. When set, nonces
// must strictly increase per identity.
type NonceSource interface {
	LastNonce(identity string) (uint64, bool)
}

// Config represents the collaborators and rules for validation.
type Config struct {
	Ledger Ledger
	Chain  Chain
	Pool   Pool
	MinFee uint64
	Nonces NonceSource
}

// Validator performs the admission checks for a transaction.
type Validator struct {
	ledger Ledger
	chain  Chain
	pool   Pool
	minFee uint64
	nonces NonceSource
}

// New constructs a validator for the configured collaborators.
func New(cfg Config) *Validator {
	return &Validator{
		ledger: cfg.Ledger,
		chain:  cfg.Chain,
		pool:   cfg.Pool,
		minFee: cfg.MinFee,
		nonces: cfg.Nonces,
	}
}

// Checked describes a transaction that passed validation.
type Checked struct {
	Signer   string
	InputSum uint64
	Spent    []database.Output
}

// Validate runs every check against the transaction. Nothing is modified,
// admitting the transaction is up to the caller.
func (v *Validator) Validate(tx database.Transaction) (Checked, error) {
	if err := structure(tx); err != nil {
		return Checked{}, err
	}

	// (a) signatures.
	if err := tx.VerifySignature(); err != nil {
		return Checked{}, fmt.Errorf("tx %s: %w", tx.ID, err)
	}

	signer, err := tx.SignerAddress()
	if err != nil {
		return Checked{}, fmt.Errorf("tx %s: %w: %w", tx.ID, ErrInvalidSignature, err)
	}

	cosigners, err := verifyCosigners(tx)
	if err != nil {
		return Checked{}, fmt.Errorf("tx %s: %w", tx.ID, err)
	}

	// (b) uniqueness across the chain and the pool.
	if v.pool != nil && v.pool.Contains(tx.ID) {
		return Checked{}, fmt.Errorf("tx %s: %w: pending", tx.ID, ErrDuplicateTransaction)
	}

	if v.chain != nil {
		committed, err := v.chain.ContainsTransaction(tx.ID)
		if err != nil {
			return Checked{}, fmt.Errorf("tx %s: looking up chain: %w", tx.ID, err)
		}
		if committed {
			return Checked{}, fmt.Errorf("tx %s: %w: committed", tx.ID, ErrDuplicateTransaction)
		}
	}

	// (c) every input resolves to an output nobody else is spending.
	spent := make([]database.Output, len(tx.Inputs))
	seen := make(map[database.OutputRef]struct{}, len(tx.Inputs))
	for i, ref := range tx.Inputs {
		if _, dup := seen[ref]; dup {
			return Checked{}, fmt.Errorf("tx %s: %w: %s spent twice", tx.ID, ErrOutputNotFound, ref)
		}
		seen[ref] = struct{}{}

		out, exists := v.ledger.FindUnspent(ref)
		if !exists {
			return Checked{}, fmt.Errorf("tx %s: %w: %s", tx.ID, ErrOutputNotFound, ref)
		}

		if v.pool != nil && v.pool.Claimed(ref) {
			return Checked{}, fmt.Errorf("tx %s: %w: %s claimed by a pending transaction", tx.ID, ErrOutputNotFound, ref)
		}

		spent[i] = out
	}

	// (d) the signers satisfy every spending descriptor.
	signers := append([]string{signer}, cosigners...)
	for i, out := range spent {
		if err := authorize(out, signers); err != nil {
			return Checked{}, fmt.Errorf("tx %s: input %s: %w", tx.ID, tx.Inputs[i], err)
		}
	}

	// (e) the inputs cover the outputs and the fee.
	values := make([]uint64, len(spent))
	for i, out := range spent {
		values[i] = out.Value
	}

	inputSum, err := database.AddValues(values...)
	if err != nil {
		return Checked{}, fmt.Errorf("tx %s: summing inputs: %w", tx.ID, err)
	}

	outputSum, err := tx.TotalOut()
	if err != nil {
		return Checked{}, fmt.Errorf("tx %s: summing outputs: %w", tx.ID, err)
	}

	required, err := database.AddValues(outputSum, tx.Fee)
	if err != nil {
		return Checked{}, fmt.Errorf("tx %s: adding fee: %w", tx.ID, err)
	}

	if inputSum < required {
		return Checked{}, fmt.Errorf("tx %s: %w: inputs %d, outputs %d, fee %d", tx.ID, ErrInsufficientFunds, inputSum, outputSum, tx.Fee)
	}

	// (f) fee floor.
	if tx.Fee < v.minFee {
		return Checked{}, fmt.Errorf("tx %s: %w: got %d, min %d", tx.ID, ErrFeeTooLow, tx.Fee, v.minFee)
	}

	// (g) replay nonce.
	if tx.Nonce == 0 {
		return Checked{}, fmt.Errorf("tx %s: %w: nonce must not be zero", tx.ID, ErrInvalidNonce)
	}

	if v.nonces != nil {
		if last, exists := v.nonces.LastNonce(signer); exists && tx.Nonce <= last {
			return Checked{}, fmt.Errorf("tx %s: %w: got %d, last %d", tx.ID, ErrInvalidNonce, tx.Nonce, last)
		}
	}

	return Checked{Signer: signer, InputSum: inputSum, Spent: spent}, nil
}

// =============================================================================

// structure checks the shape of the transaction before any lookups.
func structure(tx database.Transaction) error {
	switch {
	case tx.ID == "":
		return fmt.Errorf("%w: missing id", ErrMalformed)
	case len(tx.Inputs) == 0:
		return fmt.Errorf("tx %s: %w: no inputs", tx.ID, ErrMalformed)
	case len(tx.Outputs) == 0:
		return fmt.Errorf("tx %s: %w: no outputs", tx.ID, ErrMalformed)
	}

	for i, out := range tx.Outputs {
		switch {
		case out.Value == 0:
			return fmt.Errorf("tx %s: %w: output %d has no value", tx.ID, ErrMalformed, i)
		case out.Recipient == "":
			return fmt.Errorf("tx %s: %w: output %d has no recipient", tx.ID, ErrMalformed, i)
		case out.Lock.Kind == database.PayToMultiSig && int(out.Lock.Required) > len(out.Lock.Keys):
			return fmt.Errorf("tx %s: %w: output %d requires more keys than it lists", tx.ID, ErrMalformed, i)
		}
	}

	return nil
}

// verifyCosigners returns the addresses of the cosigners after checking
// each signature is over the same payload as the primary signature.
func verifyCosigners(tx database.Transaction) ([]string, error) {
	if len(tx.Cosigners) == 0 {
		return nil, nil
	}

	payload := tx.SigningPayload()

	addrs := make([]string, len(tx.Cosigners))
	for i, co := range tx.Cosigners {
		if err := signature.Verify(payload, co.Signature, co.PublicKey); err != nil {
			return nil, fmt.Errorf("cosigner %d: %w", i, err)
		}

		addr, err := signature.Address(co.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("cosigner %d: %w: %w", i, ErrInvalidSignature, err)
		}
		addrs[i] = addr
	}

	return addrs, nil
}

// authorize checks the signers satisfy the output's spending descriptor.
// Descriptors are evaluated, never executed.
func authorize(out database.Output, signers []string) error {
	matches := func(key string) bool {
		for _, s := range signers {
			if strings.EqualFold(s, key) {
				return true
			}
		}
		return false
	}

	switch out.Lock.Kind {
	case database.PayToPublicKey, database.PayToScriptHash:
		if matches(out.Recipient) {
			return nil
		}
		for _, key := range out.Lock.Keys {
			if matches(key) {
				return nil
			}
		}
		return ErrUnauthorized

	case database.PayToMultiSig:
		required := int(out.Lock.Required)
		if required == 0 {
			required = 1
		}

		distinct := make(map[string]struct{}, len(out.Lock.Keys))
		for _, key := range out.Lock.Keys {
			if matches(key) {
				distinct[strings.ToLower(key)] = struct{}{}
			}
		}

		if len(distinct) < required {
			return fmt.Errorf("%w: %d of %d signatures", ErrUnauthorized, len(distinct), required)
		}
		return nil
	}

	return fmt.Errorf("%w: unknown lock kind %s", ErrUnauthorized, out.Lock.Kind)
}
