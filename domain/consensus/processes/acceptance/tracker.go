package acceptance

import (
	"sync"

	"github.com/jet-cloud/constellation/domain/consensus/model"
	"github.com/jet-cloud/constellation/domain/consensus/model/externalapi"
)

// Tracker implements model.AcceptedCbTracker: the list of base hashes
// accepted since the last snapshot, read by the snapshot service's
// preconditions (spec.md §4.8) and trimmed either by a successful seal or
// by the in-memory cap's self-healing trim.
type Tracker struct {
	mu     sync.Mutex
	hashes []externalapi.Hash
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Append implements model.AcceptedCbTracker.
func (t *Tracker) Append(baseHash externalapi.Hash) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hashes = append(t.hashes, baseHash)
}

// Snapshot implements model.AcceptedCbTracker.
func (t *Tracker) Snapshot() []externalapi.Hash {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]externalapi.Hash, len(t.hashes))
	copy(out, t.hashes)
	return out
}

// TrimTo implements model.AcceptedCbTracker: keeps only the newest n
// entries, used when the in-memory cap (spec.md §6
// snapshot.maxAcceptedCbHashesInMemory) is exceeded.
func (t *Tracker) TrimTo(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n < 0 {
		n = 0
	}
	if len(t.hashes) <= n {
		return
	}
	t.hashes = append([]externalapi.Hash{}, t.hashes[len(t.hashes)-n:]...)
}

// RemoveAll implements model.AcceptedCbTracker: drops exactly the given
// hashes, used after a successful snapshot seal removes its sealed blocks.
func (t *Tracker) RemoveAll(hashes []externalapi.Hash) {
	t.mu.Lock()
	defer t.mu.Unlock()

	remove := make(map[externalapi.Hash]struct{}, len(hashes))
	for _, h := range hashes {
		remove[h] = struct{}{}
	}
	kept := t.hashes[:0]
	for _, h := range t.hashes {
		if _, drop := remove[h]; !drop {
			kept = append(kept, h)
		}
	}
	t.hashes = kept
}

var _ model.AcceptedCbTracker = (*Tracker)(nil)
