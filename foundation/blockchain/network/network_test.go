package network_test

import (
	"errors"
	"testing"
	"time"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/network"
	"github.com/ardanlabs/utxochain/foundation/blockchain/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

func newStub(t *testing.T, cfg network.Config) *network.Stub {
	t.Helper()

	if cfg.Host == "" {
		cfg.Host = "localhost:9080"
	}
	if cfg.Rate == 0 {
		cfg.Rate = time.Millisecond
	}

	s := network.NewStub(cfg)
	t.Cleanup(s.Shutdown)

	return s
}

func TestOnReceive_ForwardsTransactionsOnce(t *testing.T) {
	var submitted []database.Transaction

	s := newStub(t, network.Config{
		Submit: func(tx database.Transaction) error {
			submitted = append(submitted, tx)
			return nil
		},
	})

	tx := database.NewTransaction(nil, nil, 10, 1)
	tx.ID = "tx1"
	msg := network.Message{ID: "m1", Kind: network.KindNewTransaction, From: "10.0.0.2:9080", Transaction: &tx}

	require.NoError(t, s.OnReceive(msg))
	require.NoError(t, s.OnReceive(msg))

	require.Len(t, submitted, 1, "a repeated message id must be ignored")
	assert.Equal(t, "tx1", submitted[0].ID)
	assert.Equal(t, []peer.Peer{peer.New("10.0.0.2:9080")}, s.Peers())
}

func TestOnReceive_ConcurrentCopiesHandledOnce(t *testing.T) {
	var submitted atomic.Int64

	s := newStub(t, network.Config{
		Submit: func(database.Transaction) error {
			submitted.Inc()
			return nil
		},
	})

	tx := database.NewTransaction(nil, nil, 10, 1)
	msg := network.Message{ID: "m1", Kind: network.KindNewTransaction, Transaction: &tx}

	var g errgroup.Group
	for range 32 {
		g.Go(func() error {
			return s.OnReceive(msg)
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int64(1), submitted.Load())
}

func TestOnReceive_SubmitErrorsPropagate(t *testing.T) {
	rejected := errors.New("rejected")

	s := newStub(t, network.Config{
		Submit: func(database.Transaction) error { return rejected },
	})

	tx := database.NewTransaction(nil, nil, 10, 1)
	err := s.OnReceive(network.Message{ID: "m1", Kind: network.KindNewTransaction, Transaction: &tx})
	require.ErrorIs(t, err, rejected)
}

func TestOnReceive_BadMessages(t *testing.T) {
	s := newStub(t, network.Config{})

	err := s.OnReceive(network.Message{Kind: network.KindHeartbeat})
	require.ErrorIs(t, err, network.ErrMissingID)

	err = s.OnReceive(network.Message{ID: "m1", Kind: "gossip"})
	require.ErrorIs(t, err, network.ErrUnknownKind)

	err = s.OnReceive(network.Message{ID: "m2", Kind: network.KindNewBlock})
	require.ErrorIs(t, err, network.ErrEmptyBody)
}

func TestOnReceive_PeerListIsBounded(t *testing.T) {
	s := newStub(t, network.Config{
		Host:       "10.0.0.1:9080",
		MaxPeers:   2,
		KnownPeers: []peer.Peer{peer.New("10.0.0.1:9080"), peer.New("10.0.0.2:9080")},
	})

	require.Len(t, s.Peers(), 1, "the node never lists itself")

	err := s.OnReceive(network.Message{
		ID:   "m1",
		Kind: network.KindPeerList,
		Peers: []peer.Peer{
			peer.New("10.0.0.3:9080"),
			peer.New("10.0.0.4:9080"),
			peer.New("10.0.0.5:9080"),
		},
	})
	require.NoError(t, err)

	assert.Len(t, s.Peers(), 2)
}

func TestSyncStatus(t *testing.T) {
	var height uint64 = 5

	s := newStub(t, network.Config{
		Height: func() uint64 { return height },
	})

	status := s.SyncStatus()
	assert.False(t, status.Syncing)
	assert.Equal(t, 1.0, status.Progress)

	err := s.OnReceive(network.Message{
		ID:     "m1",
		Kind:   network.KindHeartbeat,
		Status: &peer.PeerStatus{LatestBlockNumber: 10},
	})
	require.NoError(t, err)

	status = s.SyncStatus()
	assert.True(t, status.Syncing)
	assert.Equal(t, uint64(10), status.Target)
	assert.InDelta(t, 0.5, status.Progress, 0.0001)

	height = 10
	assert.False(t, s.SyncStatus().Syncing)
}

func TestBroadcast_DrainsThroughQueue(t *testing.T) {
	s := newStub(t, network.Config{})

	s.BroadcastTransaction(database.NewTransaction(nil, nil, 10, 1))
	s.BroadcastBlock(database.NewGenesis("0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4", 1, 50))
	s.RequestSync(3)

	require.Eventually(t, func() bool { return s.Sent() == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, s.Dropped())
}

func TestBroadcast_FullQueueNeverBlocks(t *testing.T) {
	s := newStub(t, network.Config{QueueSize: 1, Rate: time.Hour})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			s.RequestSync(uint64(i))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a full queue")
	}

	// At most one message is sent, one is waiting on the limiter and one
	// sits in the queue.
	assert.GreaterOrEqual(t, s.Dropped(), uint64(7))
}
