// Package private maintains the group of handlers for node to node access.
package private

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ardanlabs/utxochain/app/services/node/handlers/v1/public"
	"github.com/ardanlabs/utxochain/business/web/errs"
	"github.com/ardanlabs/utxochain/foundation/blockchain/network"
	"github.com/ardanlabs/utxochain/foundation/blockchain/state"
	"github.com/ardanlabs/utxochain/foundation/blockchain/wallet"
	"github.com/ardanlabs/utxochain/foundation/nameservice"
	"github.com/ardanlabs/utxochain/foundation/validate"
	"github.com/ardanlabs/utxochain/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of node endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
}

// SendFromNode builds and signs a transaction with the node's key and adds
// it to the mempool.
func (h Handlers) SendFromNode(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var req wallet.SpendRequest
	if err := web.Decode(r, &req); err != nil {
		return errs.NewTrusted(fmt.Errorf("unable to decode payload: %w", err), http.StatusBadRequest)
	}

	// Allow the recipient to be named by a known account.
	req.To = h.NS.Resolve(req.To)

	send := struct {
		To     string `json:"to" validate:"required,address"`
		Amount uint64 `json:"amount" validate:"required,gt=0"`
	}{
		To:     req.To,
		Amount: req.Amount,
	}
	if err := validate.Check(send); err != nil {
		return err
	}

	h.Log.Infow("send from node", "traceid", v.TraceID, "to", req.To, "amount", req.Amount, "fee", req.Fee)

	tx, err := h.State.SendFromNode(req)
	if err != nil {
		return public.Trust(err)
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

// SubmitMessage hands a message from another node to the network.
func (h Handlers) SubmitMessage(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var msg network.Message
	if err := web.Decode(r, &msg); err != nil {
		return errs.NewTrusted(fmt.Errorf("unable to decode payload: %w", err), http.StatusBadRequest)
	}

	h.Log.Infow("node message", "traceid", v.TraceID, "id", msg.ID, "kind", msg.Kind, "from", msg.From)

	if err := h.State.Network().OnReceive(msg); err != nil {
		switch {
		case errors.Is(err, network.ErrMissingID),
			errors.Is(err, network.ErrUnknownKind),
			errors.Is(err, network.ErrEmptyBody):
			return errs.NewTrusted(err, http.StatusBadRequest)
		}

		return public.Trust(err)
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "accepted",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Peers returns the known peers and how far this node is behind them.
func (h Handlers) Peers(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	resp := struct {
		Host  string             `json:"host"`
		Peers []string           `json:"peers"`
		Sync  network.SyncStatus `json:"sync"`
	}{
		Host: h.State.Host(),
		Sync: h.State.Network().SyncStatus(),
	}

	for _, p := range h.State.KnownPeers() {
		resp.Peers = append(resp.Peers, p.Host)
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}
