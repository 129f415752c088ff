package selector_test

import (
	"testing"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/mempool/selector"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const (
	signPavel = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	signBill  = "9f332e3700d8fc2446eaf6d15034cf96e0c2745e40353deef032a5dbf1dfed93"
	signEd    = "aed31b6b5a341af8f27e66fb0b7633cf20fc27049e3eb7f6f623a4655b719ebb"
)

func sign(t *testing.T, hexKey string, nonce uint64, fee uint64, ts int64) database.Transaction {
	const to = "0xbEE6ACE826eC3DE1B6349888B9151B92522F7F76"

	pk, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to load the private key: %s", failed, err)
	}

	tx := database.NewTransaction(
		[]database.OutputRef{{TxID: hexKey, Index: uint32(nonce)}},
		[]database.Output{database.NewOutput(to, 10)},
		fee,
		nonce,
	)
	tx.Timestamp = ts

	if err := tx.Sign(pk); err != nil {
		t.Fatalf("\t%s\tShould be able to sign transaction: %s", failed, err)
	}

	return tx
}

func group(t *testing.T, txs []database.Transaction) map[string][]database.Transaction {
	m := make(map[string][]database.Transaction)
	for _, tx := range txs {
		from, err := tx.SignerAddress()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to get the signer address: %s", failed, err)
		}
		m[from] = append(m[from], tx)
	}
	return m
}

type pick struct {
	key   string
	nonce uint64
}

func TestSelect(t *testing.T) {
	type test struct {
		name     string
		strategy string
		txs      func(t *testing.T) []database.Transaction
		howMany  int
		best     []pick
		ordered  bool
	}

	spread := func(t *testing.T) []database.Transaction {
		return []database.Transaction{
			sign(t, signPavel, 1, 25, 1),
			sign(t, signPavel, 2, 75, 2),
			sign(t, signPavel, 3, 50, 3),

			sign(t, signBill, 1, 10, 4),
			sign(t, signBill, 2, 5, 5),
			sign(t, signBill, 3, 75, 6),

			sign(t, signEd, 1, 5, 7),
			sign(t, signEd, 2, 50, 8),
			sign(t, signEd, 3, 25, 9),
		}
	}

	tt := []test{
		{
			name:     "fee highest first",
			strategy: selector.StrategyFee,
			txs:      spread,
			howMany:  3,
			best:     []pick{{signPavel, 2}, {signBill, 3}, {signPavel, 3}},
			ordered:  true,
		},
		{
			name:     "fee take all",
			strategy: selector.StrategyFee,
			txs:      spread,
			howMany:  -1,
			best: []pick{
				{signPavel, 2}, {signBill, 3}, {signPavel, 3}, {signEd, 2},
				{signPavel, 1}, {signEd, 3}, {signBill, 1}, {signBill, 2}, {signEd, 1},
			},
			ordered: true,
		},
		{
			name:     "fee nonce one from second cycle",
			strategy: selector.StrategyFeeNonce,
			txs:      spread,
			howMany:  4,
			best:     []pick{{signPavel, 1}, {signPavel, 2}, {signBill, 1}, {signEd, 1}},
		},
		{
			name:     "fee nonce first two",
			strategy: selector.StrategyFeeNonce,
			txs:      spread,
			howMany:  2,
			best:     []pick{{signPavel, 1}, {signBill, 1}},
		},
		{
			name:     "fifo",
			strategy: selector.StrategyFIFO,
			txs:      spread,
			howMany:  4,
			best:     []pick{{signPavel, 1}, {signPavel, 2}, {signPavel, 3}, {signBill, 1}},
			ordered:  true,
		},
	}

	t.Log("Given the need to pick best transactions from the pool.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen handling a set of transaction.", testID)
			{
				f := func(t *testing.T) {
					grouped := group(t, tst.txs(t))

					addrOf := func(hexKey string) string {
						pk, err := crypto.HexToECDSA(hexKey)
						if err != nil {
							t.Fatalf("\t%s\tTest %d:\tShould be able to load the private key: %s", failed, testID, err)
						}
						return crypto.PubkeyToAddress(pk.PublicKey).Hex()
					}

					selectFn, err := selector.Retrieve(tst.strategy)
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to get select strategy function: %s", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould be able to get select strategy function.", success, testID)

					txs := selectFn(grouped, tst.howMany)
					if len(txs) != len(tst.best) {
						t.Fatalf("\t%s\tTest %d:\tShould get back %d transactions, got %d.", failed, testID, len(tst.best), len(txs))
					}
					t.Logf("\t%s\tTest %d:\tShould get back %d transactions.", success, testID, len(tst.best))

					for i, exp := range tst.best {
						expFrom := addrOf(exp.key)

						found := false
						for j, tx := range txs {
							if tst.ordered && j != i {
								continue
							}

							gotFrom, err := tx.SignerAddress()
							if err != nil {
								t.Fatalf("\t%s\tTest %d:\tShould be able to get from address: %s", failed, testID, err)
							}

							if exp.nonce == tx.Nonce && expFrom == gotFrom {
								found = true
								break
							}
						}

						if !found {
							t.Fatalf("\t%s\tTest %d:\tShould get back the right from/nonce at %d: %s/%d", failed, testID, i, expFrom, exp.nonce)
						}
						t.Logf("\t%s\tTest %d:\tShould get back the right from/nonce: %s/%d", success, testID, expFrom, exp.nonce)
					}
				}

				t.Run(tst.name, f)
			}
		}
	}
}

func TestRetrieveUnknown(t *testing.T) {
	t.Log("Given the need to reject unknown strategies.")
	{
		if _, err := selector.Retrieve("lottery"); err == nil {
			t.Fatalf("\t%s\tShould get an error for an unknown strategy.", failed)
		}
		t.Logf("\t%s\tShould get an error for an unknown strategy.", success)
	}
}
