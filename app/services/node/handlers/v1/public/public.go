// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ardanlabs/utxochain/business/web/errs"
	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/state"
	"github.com/ardanlabs/utxochain/foundation/events"
	"github.com/ardanlabs/utxochain/foundation/nameservice"
	"github.com/ardanlabs/utxochain/foundation/validate"
	"github.com/ardanlabs/utxochain/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of ledger endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	// Need this to handle CORS on the websocket.
	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	// This upgrades the HTTP connection to a websocket connection.
	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	// This provides a channel for receiving events from the blockchain.
	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	// Starting a ticker to send a ping message over the websocket.
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	// Block waiting for events from the blockchain or ticker.
	for {
		select {
		case msg, wd := <-ch:

			// If the channel is closed, release the websocket.
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// SubmitWalletTransaction adds a signed wallet transaction to the mempool.
func (h Handlers) SubmitWalletTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	// Decode the JSON in the post call into a signed transaction.
	var tx database.Transaction
	if err := web.Decode(r, &tx); err != nil {
		return errs.NewTrusted(fmt.Errorf("unable to decode payload: %w", err), http.StatusBadRequest)
	}

	h.Log.Infow("add tran", "traceid", v.TraceID, "tx", tx.ID, "inputs", len(tx.Inputs), "outputs", len(tx.Outputs), "fee", tx.Fee)

	// Ask the state package to add this transaction to the mempool. Only
	// the checks a client can fix are reported back.
	if err := h.State.SubmitWalletTransaction(tx); err != nil {
		return Trust(err)
	}

	resp := struct {
		Status string `json:"status"`
		ID     string `json:"id"`
	}{
		Status: "transaction added to mempool",
		ID:     tx.ID,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Status returns the current status of the node.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.Status(), http.StatusOK)
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.Genesis(), http.StatusOK)
}

// Integrity re-verifies the chain and reports the result.
func (h Handlers) Integrity(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	resp := integrity{
		Valid:      h.State.VerifyIntegrity(),
		Height:     h.State.Height(),
		LatestHash: h.State.LatestHash(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Balance returns the spendable balance of an address. A known account name
// can be used in place of the address.
func (h Handlers) Balance(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	address, err := h.address(r)
	if err != nil {
		return err
	}

	value, err := h.State.BalanceOf(address)
	if err != nil {
		return err
	}

	resp := balance{
		Address: address,
		Name:    h.NS.Lookup(address),
		Balance: value,
		Outputs: len(h.State.OutputsFor(address)),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Outputs returns the unspent outputs paid to an address.
func (h Handlers) Outputs(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	address, err := h.address(r)
	if err != nil {
		return err
	}

	utxos := h.State.OutputsFor(address)

	resp := outputs{
		Address:     address,
		Name:        h.NS.Lookup(address),
		LatestBlock: h.State.LatestHash(),
		Outputs:     make([]output, len(utxos)),
	}
	for i, utxo := range utxos {
		resp.Outputs[i] = h.toOutput(utxo.Ref, utxo.Output)
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// BlocksByNumber returns all the blocks based on the specified to/from values.
func (h Handlers) BlocksByNumber(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	from, err := blockNumber(web.Param(r, "from"))
	if err != nil {
		return err
	}

	to, err := blockNumber(web.Param(r, "to"))
	if err != nil {
		return err
	}

	if from != state.QueryLatest && to != state.QueryLatest && from > to {
		return errs.NewTrusted(errors.New("from greater than to"), http.StatusBadRequest)
	}

	dbBlocks, err := h.State.Blocks(from, to)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if len(dbBlocks) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	blocks := make([]block, len(dbBlocks))
	for i, blk := range dbBlocks {
		blocks[i] = h.toBlock(blk)
	}

	return web.Respond(ctx, w, blocks, http.StatusOK)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	pending := h.State.Mempool()

	txs := make([]tx, len(pending))
	for i, tran := range pending {
		txs[i] = h.toTx(tran)
	}

	return web.Respond(ctx, w, txs, http.StatusOK)
}

// =============================================================================

// address resolves the address parameter, accepting a known account name.
func (h Handlers) address(r *http.Request) (string, error) {
	req := struct {
		Address string `json:"address" validate:"required,address"`
	}{
		Address: h.NS.Resolve(web.Param(r, "address")),
	}

	if err := validate.Check(req); err != nil {
		return "", err
	}

	return req.Address, nil
}

func (h Handlers) toOutput(ref database.OutputRef, out database.Output) output {
	return output{
		TxID:      ref.TxID,
		Index:     ref.Index,
		Recipient: out.Recipient,
		Name:      h.NS.Lookup(out.Recipient),
		Value:     out.Value,
		Lock:      out.Lock.Kind.String(),
	}
}

func (h Handlers) toTx(tran database.Transaction) tx {
	from, _ := tran.SignerAddress()

	outs := make([]output, len(tran.Outputs))
	for i, out := range tran.Outputs {
		outs[i] = h.toOutput(database.OutputRef{TxID: tran.ID, Index: uint32(i)}, out)
	}

	return tx{
		ID:        tran.ID,
		From:      from,
		FromName:  h.NS.Lookup(from),
		Inputs:    tran.Inputs,
		Outputs:   outs,
		Fee:       tran.Fee,
		Nonce:     tran.Nonce,
		Timestamp: tran.Timestamp,
	}
}

func (h Handlers) toBlock(blk database.Block) block {
	txs := make([]tx, len(blk.Transactions))
	for i, tran := range blk.Transactions {
		txs[i] = h.toTx(tran)
	}

	return block{
		Number:       blk.Header.Number,
		Hash:         blk.Hash,
		PrevHash:     blk.Header.PrevHash,
		MerkleRoot:   blk.Header.MerkleRoot,
		Beneficiary:  blk.Header.Beneficiary,
		Difficulty:   blk.Header.Difficulty,
		Nonce:        blk.Header.Nonce,
		Reward:       blk.PoW.Reward,
		HashRate:     blk.PoW.HashRate,
		Size:         blk.Size,
		Timestamp:    blk.Header.Timestamp,
		Transactions: txs,
	}
}

// blockNumber parses a block number where "latest" or nothing means the
// latest block.
func blockNumber(s string) (uint64, error) {
	if s == "latest" || s == "" {
		return state.QueryLatest, nil
	}

	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errs.NewTrusted(fmt.Errorf("invalid block number %q", s), http.StatusBadRequest)
	}

	return n, nil
}

// Trust marks the errors a client can act on as trusted so their message is
// returned. Anything else stays an internal error.
func Trust(err error) error {
	switch state.Resolve(err) {
	case state.RejectTransaction, state.ReturnToSender:
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if errors.Is(err, state.ErrNotRunning) {
		return errs.NewTrusted(err, http.StatusServiceUnavailable)
	}

	return err
}
