package selector

import (
	"sort"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
)

// feeSelect returns the transactions paying the highest fee regardless of
// who signed them.
var feeSelect = func(m map[string][]database.Transaction, howMany int) []database.Transaction {
	all, howMany := flatten(m, howMany)

	sort.Sort(byFee(all))

	return all[:howMany]
}

// fifoSelect returns the transactions in the order they were created.
var fifoSelect = func(m map[string][]database.Transaction, howMany int) []database.Transaction {
	all, howMany := flatten(m, howMany)

	sort.Sort(byTimestamp(all))

	return all[:howMany]
}
