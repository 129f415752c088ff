// Package network provides the collaborator the node uses to talk to other
// nodes. The only implementation is a stub: outbound messages are queued,
// rate limited and logged, inbound messages are deduplicated and dispatched
// to handlers by kind. No bytes ever leave the process.
package network

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/peer"
	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/atomic"
	"golang.org/x/time/rate"
)

// Set of errors returned when handling inbound messages.
var (
	ErrMissingID   = errors.New("message has no id")
	ErrUnknownKind = errors.New("unknown message kind")
	ErrEmptyBody   = errors.New("message is missing its payload")
)

// Kind identifies the payload carried by a message.
type Kind string

// Set of message kinds the node understands.
const (
	KindNewTransaction Kind = "new_transaction"
	KindNewBlock       Kind = "new_block"
	KindSyncRequest    Kind = "sync_request"
	KindSyncResponse   Kind = "sync_response"
	KindPeerList       Kind = "peer_list"
	KindHeartbeat      Kind = "heartbeat"
)

// Message is the envelope exchanged between nodes. Only the fields that
// belong to the kind are set.
type Message struct {
	ID          string                `json:"id"`
	Kind        Kind                  `json:"kind"`
	From        string                `json:"from"`
	Transaction *database.Transaction `json:"transaction,omitempty"`
	Block       *database.Block       `json:"block,omitempty"`
	FromHeight  uint64                `json:"from_height,omitempty"`
	Blocks      []database.Block      `json:"blocks,omitempty"`
	Peers       []peer.Peer           `json:"peers,omitempty"`
	Status      *peer.PeerStatus      `json:"status,omitempty"`
}

// Network represents the behavior the node needs from its transport.
type Network interface {
	BroadcastTransaction(tx database.Transaction)
	BroadcastBlock(block database.Block)
	RequestSync(fromHeight uint64)
	OnReceive(msg Message) error
}

// SyncStatus reports how far behind the best known peer the node is.
type SyncStatus struct {
	Syncing  bool    `json:"syncing"`
	Current  uint64  `json:"current"`
	Target   uint64  `json:"target"`
	Progress float64 `json:"progress"`
}

// =============================================================================

// Default values used when the config leaves them unset.
const (
	DefaultQueueSize = 1000
	DefaultRate      = 100 * time.Millisecond
	DefaultDedupeTTL = 10 * time.Minute
)

// Config represents the configuration for the stub.
type Config struct {
	Host       string
	MaxPeers   int
	ListenPort int
	KnownPeers []peer.Peer
	QueueSize  int
	Rate       time.Duration
	DedupeTTL  time.Duration
	EvHandler  func(v string, args ...any)

	// Submit receives transactions that arrive from other nodes.
	Submit func(tx database.Transaction) error

	// Height reports the local chain height.
	Height func() uint64
}

// Stub implements Network without a transport.
type Stub struct {
	host       string
	listenPort int
	evHandler  func(v string, args ...any)
	submit     func(tx database.Transaction) error
	height     func() uint64

	peers    *peer.PeerSet
	queue    chan Message
	limiter  *rate.Limiter
	seen     *ttlcache.Cache[string, struct{}]
	handlers map[Kind]func(msg Message) error

	mu     sync.RWMutex
	target uint64

	sent    atomic.Uint64
	dropped atomic.Uint64

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	shutOnce sync.Once
}

// NewStub constructs the stub and starts the goroutine draining the
// outbound queue.
func NewStub(cfg Config) *Stub {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	every := cfg.Rate
	if every <= 0 {
		every = DefaultRate
	}

	ttl := cfg.DedupeTTL
	if ttl <= 0 {
		ttl = DefaultDedupeTTL
	}

	height := cfg.Height
	if height == nil {
		height = func() uint64 { return 0 }
	}

	seen := ttlcache.New[string, struct{}](
		ttlcache.WithTTL[string, struct{}](ttl),
		ttlcache.WithDisableTouchOnHit[string, struct{}](),
	)
	go seen.Start()

	ctx, cancel := context.WithCancel(context.Background())

	s := Stub{
		host:       cfg.Host,
		listenPort: cfg.ListenPort,
		evHandler:  ev,
		submit:     cfg.Submit,
		height:     height,
		peers:      peer.NewPeerSet(cfg.MaxPeers),
		queue:      make(chan Message, queueSize),
		limiter:    rate.NewLimiter(rate.Every(every), 1),
		seen:       seen,
		cancel:     cancel,
	}

	s.handlers = map[Kind]func(msg Message) error{
		KindNewTransaction: s.handleNewTransaction,
		KindNewBlock:       s.handleNewBlock,
		KindSyncRequest:    s.handleSyncRequest,
		KindSyncResponse:   s.handleSyncResponse,
		KindPeerList:       s.handlePeerList,
		KindHeartbeat:      s.handleHeartbeat,
	}

	for _, p := range cfg.KnownPeers {
		if p.Match(cfg.Host) {
			continue
		}
		if _, err := s.peers.Add(p); err != nil {
			ev("network: NewStub: known peer[%s]: %s", p.Host, err)
		}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.drain(ctx)
	}()

	ev("network: NewStub: started: host[%s] port[%d] peers[%d]", cfg.Host, cfg.ListenPort, s.peers.Count())

	return &s
}

// Shutdown stops the drain goroutine and the dedupe cache. Messages still
// queued are discarded.
func (s *Stub) Shutdown() {
	s.shutOnce.Do(func() {
		s.evHandler("network: Shutdown: started")
		defer s.evHandler("network: Shutdown: completed")

		s.cancel()
		s.wg.Wait()
		s.seen.Stop()
	})
}

// BroadcastTransaction queues the transaction for the known peers.
func (s *Stub) BroadcastTransaction(tx database.Transaction) {
	s.enqueue(Message{Kind: KindNewTransaction, Transaction: &tx})
}

// BroadcastBlock queues the block for the known peers.
func (s *Stub) BroadcastBlock(block database.Block) {
	s.enqueue(Message{Kind: KindNewBlock, Block: &block})
}

// RequestSync queues a request for the blocks starting at the height.
func (s *Stub) RequestSync(fromHeight uint64) {
	s.enqueue(Message{Kind: KindSyncRequest, FromHeight: fromHeight})
}

// OnReceive handles a message that arrived from another node. Messages seen
// recently are ignored.
func (s *Stub) OnReceive(msg Message) error {
	if msg.ID == "" {
		return ErrMissingID
	}

	handler, exists := s.handlers[msg.Kind]
	if !exists {
		return fmt.Errorf("%w: %q", ErrUnknownKind, msg.Kind)
	}

	if _, found := s.seen.GetOrSet(msg.ID, struct{}{}); found {
		s.evHandler("network: OnReceive: duplicate: id[%s] kind[%s]", msg.ID, msg.Kind)
		return nil
	}

	if msg.From != "" && msg.From != s.host {
		from := peer.New(msg.From)
		if _, err := s.peers.Add(from); err != nil {
			s.evHandler("network: OnReceive: peer[%s]: %s", msg.From, err)
		} else {
			s.peers.Touch(from)
		}
	}

	s.evHandler("network: OnReceive: id[%s] kind[%s] from[%s]", msg.ID, msg.Kind, msg.From)

	return handler(msg)
}

// SyncStatus returns the progress towards the highest height reported by a
// peer.
func (s *Stub) SyncStatus() SyncStatus {
	s.mu.RLock()
	target := s.target
	s.mu.RUnlock()

	current := s.height()
	if target <= current {
		return SyncStatus{Current: current, Target: current, Progress: 1}
	}

	return SyncStatus{
		Syncing:  true,
		Current:  current,
		Target:   target,
		Progress: float64(current) / float64(target),
	}
}

// Peers returns the known peers.
func (s *Stub) Peers() []peer.Peer {
	return s.peers.Copy(s.host)
}

// Sent returns the number of messages the stub has pushed out.
func (s *Stub) Sent() uint64 {
	return s.sent.Load()
}

// Dropped returns the number of messages discarded because the queue was full.
func (s *Stub) Dropped() uint64 {
	return s.dropped.Load()
}

// =============================================================================

// enqueue adds the message to the outbound queue without blocking.
func (s *Stub) enqueue(msg Message) {
	msg.ID = uuid.NewString()
	msg.From = s.host

	select {
	case s.queue <- msg:
	default:
		s.dropped.Inc()
		s.evHandler("network: enqueue: queue full: dropped: kind[%s]", msg.Kind)
	}
}

// drain pulls messages off the queue at the configured rate.
func (s *Stub) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.queue:
			if err := s.limiter.Wait(ctx); err != nil {
				return
			}

			s.sent.Inc()
			s.evHandler("network: send: id[%s] kind[%s] peers[%d]", msg.ID, msg.Kind, s.peers.Count())
		}
	}
}

func (s *Stub) handleNewTransaction(msg Message) error {
	if msg.Transaction == nil {
		return fmt.Errorf("%s: %w", msg.Kind, ErrEmptyBody)
	}

	if s.submit == nil {
		return nil
	}

	return s.submit(*msg.Transaction)
}

func (s *Stub) handleNewBlock(msg Message) error {
	if msg.Block == nil {
		return fmt.Errorf("%s: %w", msg.Kind, ErrEmptyBody)
	}

	s.raiseTarget(msg.Block.Header.Number)
	return nil
}

func (s *Stub) handleSyncRequest(msg Message) error {
	s.enqueue(Message{
		Kind: KindSyncResponse,
		Status: &peer.PeerStatus{
			LatestBlockNumber: s.height(),
			KnownPeers:        s.Peers(),
		},
	})
	return nil
}

func (s *Stub) handleSyncResponse(msg Message) error {
	for _, b := range msg.Blocks {
		s.raiseTarget(b.Header.Number)
	}

	if msg.Status != nil {
		s.raiseTarget(msg.Status.LatestBlockNumber)
	}

	return nil
}

func (s *Stub) handlePeerList(msg Message) error {
	for _, p := range msg.Peers {
		if p.Match(s.host) {
			continue
		}

		if _, err := s.peers.Add(p); err != nil {
			if errors.Is(err, peer.ErrTooManyPeers) {
				return nil
			}
			return err
		}
	}

	return nil
}

func (s *Stub) handleHeartbeat(msg Message) error {
	if msg.Status != nil {
		s.raiseTarget(msg.Status.LatestBlockNumber)
	}

	return nil
}

func (s *Stub) raiseTarget(height uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if height > s.target {
		s.target = height
	}
}
