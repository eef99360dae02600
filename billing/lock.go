/*
lock.go - Per-farmer mutual exclusion

PURPOSE:
  Two concurrent GenerateBill calls for the same farmer would both read
  the same carry-forward and both clamp against the same feed balance;
  whichever write lands last silently drops the other's contribution to
  the chain. The engine therefore serializes Generate and UpdatePayment
  per farmer. Different farmers share no mutable state and proceed in
  parallel.
*/
package billing

import "sync"

// farmerLocks is a mutex keyed by farmer id. Locks are created on first
// use and never released from the map; the set of farmers is small and
// bounded by the cooperative's membership.
type farmerLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newFarmerLocks() *farmerLocks {
	return &farmerLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the farmer's mutex and returns its unlock function.
func (f *farmerLocks) Lock(farmerID string) func() {
	f.mu.Lock()
	l, ok := f.locks[farmerID]
	if !ok {
		l = &sync.Mutex{}
		f.locks[farmerID] = l
	}
	f.mu.Unlock()

	l.Lock()
	return l.Unlock
}
