package validator

import (
	"strings"
	"sync"
)

// NonceLedger tracks the highest nonce used by each identity. It backs the
// strict nonce rule and is rebuilt from the chain at startup.
type NonceLedger struct {
	mu   sync.RWMutex
	last map[string]uint64
}

// NewNonceLedger constructs an empty nonce ledger.
func NewNonceLedger() *NonceLedger {
	return &NonceLedger{
		last: make(map[string]uint64),
	}
}

// LastNonce implements the NonceSource interface.
func (nl *NonceLedger) LastNonce(identity string) (uint64, bool) {
	nl.mu.RLock()
	defer nl.mu.RUnlock()

	nonce, exists := nl.last[strings.ToLower(identity)]
	return nonce, exists
}

// Record stores the nonce for the identity if it is higher than the one
// already recorded.
func (nl *NonceLedger) Record(identity string, nonce uint64) {
	nl.mu.Lock()
	defer nl.mu.Unlock()

	key := strings.ToLower(identity)
	if nonce > nl.last[key] {
		nl.last[key] = nonce
	}
}
