// Package selector provides different transaction selecting algorithms.
package selector

import (
	"fmt"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
)

// List of different select strategies.
const (
	StrategyFee      = "fee"
	StrategyFeeNonce = "fee-nonce"
	StrategyFIFO     = "fifo"
)

// Map of different select strategies with functions.
var strategies = map[string]Func{
	StrategyFee:      feeSelect,
	StrategyFeeNonce: feeNonceSelect,
	StrategyFIFO:     fifoSelect,
}

// Func defines a function that takes a pool of transactions grouped by
// signer address and selects howMany of them in an order based on the
// functions strategy. Receiving -1 for howMany must return all the
// transactions in the strategies ordering.
type Func func(transactions map[string][]database.Transaction, howMany int) []database.Transaction

// Retrieve returns the specified select strategy function.
func Retrieve(strategy string) (Func, error) {
	fn, exists := strategies[strategy]
	if !exists {
		return nil, fmt.Errorf("strategy %q does not exist", strategy)
	}
	return fn, nil
}

// =============================================================================

// flatten collects the grouped transactions into one list and resolves the
// -1 request into the total count.
func flatten(m map[string][]database.Transaction, howMany int) ([]database.Transaction, int) {
	var all []database.Transaction
	for _, txs := range m {
		all = append(all, txs...)
	}

	if howMany < 0 || howMany > len(all) {
		howMany = len(all)
	}

	return all, howMany
}

// =============================================================================

// byNonce provides sorting support by the transaction nonce value.
type byNonce []database.Transaction

// Len returns the number of transactions in the list.
func (bn byNonce) Len() int {
	return len(bn)
}

// Less helps to sort the list by nonce in ascending order to keep the
// transactions in the right order of processing.
func (bn byNonce) Less(i, j int) bool {
	return bn[i].Nonce < bn[j].Nonce
}

// Swap moves transactions in the order of the nonce value.
func (bn byNonce) Swap(i, j int) {
	bn[i], bn[j] = bn[j], bn[i]
}

// =============================================================================

// byFee provides sorting support by the transaction fee value. Equal fees
// fall back to arrival time and then the id so the order is total.
type byFee []database.Transaction

// Len returns the number of transactions in the list.
func (bf byFee) Len() int {
	return len(bf)
}

// Less helps to sort the list by fee in decending order to pick the
// transactions that provide the best reward.
func (bf byFee) Less(i, j int) bool {
	if bf[i].Fee != bf[j].Fee {
		return bf[i].Fee > bf[j].Fee
	}
	if bf[i].Timestamp != bf[j].Timestamp {
		return bf[i].Timestamp < bf[j].Timestamp
	}
	return bf[i].ID < bf[j].ID
}

// Swap moves transactions in the order of the fee value.
func (bf byFee) Swap(i, j int) {
	bf[i], bf[j] = bf[j], bf[i]
}

// =============================================================================

// byTimestamp provides sorting support by arrival time.
type byTimestamp []database.Transaction

// Len returns the number of transactions in the list.
func (bt byTimestamp) Len() int {
	return len(bt)
}

// Less sorts the oldest transactions first.
func (bt byTimestamp) Less(i, j int) bool {
	if bt[i].Timestamp != bt[j].Timestamp {
		return bt[i].Timestamp < bt[j].Timestamp
	}
	return bt[i].ID < bt[j].ID
}

// Swap moves transactions in the order of arrival.
func (bt byTimestamp) Swap(i, j int) {
	bt[i], bt[j] = bt[j], bt[i]
}
