package public

import (
	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
)

type balance struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Balance uint64 `json:"balance"`
	Outputs int    `json:"outputs"`
}

type output struct {
	TxID      string `json:"tx_id"`
	Index     uint32 `json:"index"`
	Recipient string `json:"recipient"`
	Name      string `json:"name"`
	Value     uint64 `json:"value"`
	Lock      string `json:"lock"`
}

type outputs struct {
	Address     string   `json:"address"`
	Name        string   `json:"name"`
	LatestBlock string   `json:"latest_block"`
	Outputs     []output `json:"outputs"`
}

type tx struct {
	ID        string               `json:"id"`
	From      string               `json:"from"`
	FromName  string               `json:"from_name"`
	Inputs    []database.OutputRef `json:"inputs"`
	Outputs   []output             `json:"outputs"`
	Fee       uint64               `json:"fee"`
	Nonce     uint64               `json:"nonce"`
	Timestamp int64                `json:"timestamp"`
}

type block struct {
	Number       uint64 `json:"number"`
	Hash         string `json:"hash"`
	PrevHash     string `json:"prev_hash"`
	MerkleRoot   string `json:"merkle_root"`
	Beneficiary  string `json:"beneficiary"`
	Difficulty   uint   `json:"difficulty"`
	Nonce        uint64 `json:"nonce"`
	Reward       uint64 `json:"reward"`
	HashRate     uint64 `json:"hash_rate"`
	Size         uint64 `json:"size"`
	Timestamp    int64  `json:"timestamp"`
	Transactions []tx   `json:"transactions"`
}

type integrity struct {
	Valid      bool   `json:"valid"`
	Height     uint64 `json:"height"`
	LatestHash string `json:"latest_hash"`
}
