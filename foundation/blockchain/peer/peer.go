// Package peer maintains the peer related information such as the set
// of known peers and their status.
package peer

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrTooManyPeers is returned when the set already holds the maximum number
// of peers.
var ErrTooManyPeers = errors.New("peer set is full")

// Peer represents information about a Node in the network.
type Peer struct {
	Host string `json:"host"`
}

// New contructs a new info value.
func New(host string) Peer {
	return Peer{
		Host: host,
	}
}

// Match validates if the specified host matches this node.
func (p Peer) Match(host string) bool {
	return p.Host == host
}

// =============================================================================

// PeerStatus represents information about the status
// of any given peer.
type PeerStatus struct {
	LatestBlockHash   string `json:"latest_block_hash"`
	LatestBlockNumber uint64 `json:"latest_block_number"`
	KnownPeers        []Peer `json:"known_peers"`
}

// =============================================================================

// PeerSet represents the data representation to maintain a set of known
// peers and when each was last heard from.
type PeerSet struct {
	mu  sync.RWMutex
	set map[Peer]time.Time
	max int
}

// NewPeerSet constructs a new info set to manage node peer information. A
// max of zero or less leaves the set unbounded.
func NewPeerSet(max int) *PeerSet {
	return &PeerSet{
		set: make(map[Peer]time.Time),
		max: max,
	}
}

// Add adds a new node to the set. It reports false when the peer was
// already known.
func (ps *PeerSet) Add(peer Peer) (bool, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if _, exists := ps.set[peer]; exists {
		return false, nil
	}

	if ps.max > 0 && len(ps.set) >= ps.max {
		return false, ErrTooManyPeers
	}

	ps.set[peer] = time.Now()
	return true, nil
}

// Touch records that the peer was heard from. Unknown peers are ignored.
func (ps *PeerSet) Touch(peer Peer) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if _, exists := ps.set[peer]; exists {
		ps.set[peer] = time.Now()
	}
}

// LastSeen returns when the peer was last heard from.
func (ps *PeerSet) LastSeen(peer Peer) (time.Time, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	seen, exists := ps.set[peer]
	return seen, exists
}

// Remove removes a node from the set.
func (ps *PeerSet) Remove(peer Peer) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	delete(ps.set, peer)
}

// Count returns the number of known peers.
func (ps *PeerSet) Count() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	return len(ps.set)
}

// Copy returns a list of the known peers, excluding the specified host,
// ordered by host.
func (ps *PeerSet) Copy(host string) []Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	var peers []Peer
	for peer := range ps.set {
		if !peer.Match(host) {
			peers = append(peers, peer)
		}
	}

	sort.Slice(peers, func(i, j int) bool {
		return peers[i].Host < peers[j].Host
	})

	return peers
}
