package cmd

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var client = http.Client{Timeout: 10 * time.Second}

type output struct {
	TxID      string `json:"tx_id"`
	Index     uint32 `json:"index"`
	Recipient string `json:"recipient"`
	Value     uint64 `json:"value"`
	Lock      string `json:"lock"`
}

type outputs struct {
	Address     string   `json:"address"`
	Name        string   `json:"name"`
	LatestBlock string   `json:"latest_block"`
	Outputs     []output `json:"outputs"`
}

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// fetchOutputs asks the node for the unspent outputs paid to the address.
func fetchOutputs(address string) (outputs, error) {
	resp, err := client.Get(fmt.Sprintf("%s/v1/accounts/outputs/%s", url, address))
	if err != nil {
		return outputs{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return outputs{}, nodeError(resp)
	}

	var outs outputs
	if err := json.NewDecoder(resp.Body).Decode(&outs); err != nil {
		return outputs{}, err
	}

	return outs, nil
}

// submit posts a signed transaction to the node.
func submit(tx database.Transaction) error {
	data, err := json.Marshal(tx)
	if err != nil {
		return err
	}

	resp, err := client.Post(fmt.Sprintf("%s/v1/tx/submit", url), "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nodeError(resp)
	}

	return nil
}

func nodeError(resp *http.Response) error {
	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("node returned %s", resp.Status)
	}

	if len(er.Fields) > 0 {
		return fmt.Errorf("node returned %s: %s: %v", resp.Status, er.Error, er.Fields)
	}

	return fmt.Errorf("node returned %s: %s", resp.Status, er.Error)
}
