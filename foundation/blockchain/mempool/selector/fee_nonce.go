package selector

import (
	"sort"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
)

// feeNonceSelect returns transactions with the best fee while respecting
// the nonce order of each signer.
var feeNonceSelect = func(m map[string][]database.Transaction, howMany int) []database.Transaction {
	if howMany < 0 {
		_, howMany = flatten(m, howMany)
	}

	/*
		Bill: {Nonce: 2, Fee: 250},
			  {Nonce: 1, Fee: 150},
		Pavl: {Nonce: 2, Fee: 200},
			  {Nonce: 1, Fee: 75},
		Edua: {Nonce: 2, Fee: 75},
			  {Nonce: 1, Fee: 100},
	*/

	// Sort the transactions per signer by nonce.
	for key := range m {
		if len(m[key]) > 1 {
			sort.Sort(byNonce(m[key]))
		}
	}

	// Pick the first transaction in the slice for each signer. Each iteration
	// represents a new row of selections. Keep doing that until all the
	// transactions have been selected.
	var rows [][]database.Transaction
	for {
		var row []database.Transaction
		for key := range m {
			if len(m[key]) > 0 {
				row = append(row, m[key][0])
				m[key] = m[key][1:]
			}
		}
		if row == nil {
			break
		}
		rows = append(rows, row)
	}

	/*
		0: Bill: {Nonce: 1, Fee: 150},
		0: Pavl: {Nonce: 1, Fee: 75},
		0: Edua: {Nonce: 1, Fee: 100},
		1: Bill: {Nonce: 2, Fee: 250},
		1: Pavl: {Nonce: 2, Fee: 200},
		1: Edua: {Nonce: 2, Fee: 75},
	*/

	// Sort each row by fee unless we will take all transactions from that row
	// anyway. Then try to select the number of requested transactions. Keep
	// pulling transactions from each row until the amount is fulfilled or
	// there are no more transactions.
	final := []database.Transaction{}
done:
	for _, row := range rows {
		need := howMany - len(final)
		if len(row) > need {
			sort.Sort(byFee(row))
			final = append(final, row[:need]...)
			break done
		}
		final = append(final, row...)
	}

	return final
}
