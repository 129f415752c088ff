package state

import (
	"crypto/ecdsa"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
	"github.com/ardanlabs/utxochain/foundation/blockchain/wallet"
)

// SubmitWalletTransaction accepts a transaction from a wallet for inclusion
// and shares it with the network.
func (s *State) SubmitWalletTransaction(tx database.Transaction) error {
	if err := s.admit(tx); err != nil {
		return err
	}

	s.Worker.SignalShareTx(tx)
	s.Worker.SignalStartMining()

	return nil
}

// SubmitNodeTransaction accepts a transaction that another node shared.
func (s *State) SubmitNodeTransaction(tx database.Transaction) error {
	if err := s.admit(tx); err != nil {
		return err
	}

	s.Worker.SignalStartMining()

	return nil
}

// BuildTransaction constructs and signs a transaction for the key from its
// unspent outputs. Outputs already claimed by pending transactions are
// skipped.
func (s *State) BuildTransaction(privateKey *ecdsa.PrivateKey, req wallet.SpendRequest) (database.Transaction, error) {
	owned := s.ledger.OutputsFor(signature.PrivateKeyAddress(privateKey))

	free := make([]database.UTXO, 0, len(owned))
	for _, utxo := range owned {
		if !s.mempool.Claimed(utxo.Ref) {
			free = append(free, utxo)
		}
	}

	return wallet.Build(req, free, privateKey)
}

// SendFromNode builds a transaction paid for by the node's own key and
// submits it.
func (s *State) SendFromNode(req wallet.SpendRequest) (database.Transaction, error) {
	tx, err := s.BuildTransaction(s.minerKey, req)
	if err != nil {
		return database.Transaction{}, err
	}

	if err := s.SubmitWalletTransaction(tx); err != nil {
		return database.Transaction{}, err
	}

	return tx, nil
}

// =============================================================================

// admit validates the transaction and adds it to the mempool. Nothing changes
// when validation fails.
func (s *State) admit(tx database.Transaction) error {
	if !s.IsRunning() {
		return ErrNotRunning
	}

	checked, err := s.validator.Validate(tx)
	if err != nil {
		s.evHandler("state: admit: rejected tx[%s]: %s", tx.ID, err)
		prometheusTransactions.WithLabelValues("rejected").Inc()
		return err
	}

	if _, err := s.mempool.Upsert(tx); err != nil {
		s.evHandler("state: admit: mempool tx[%s]: %s", tx.ID, err)
		prometheusTransactions.WithLabelValues("rejected").Inc()
		return err
	}

	if s.nonces != nil {
		s.nonces.Record(checked.Signer, tx.Nonce)
	}

	prometheusTransactions.WithLabelValues("accepted").Inc()
	prometheusMempoolSize.Set(float64(s.mempool.Count()))

	s.evHandler("state: admit: accepted tx[%s] signer[%s] fee[%d]", tx.ID, checked.Signer, tx.Fee)

	return nil
}
