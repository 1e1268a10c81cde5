// Package checkpointstore implements C4, the checkpoint block DAG store,
// and its companion Tip Service (spec.md §4.4), kept in the same package
// since the teacher keeps tip/virtual bookkeeping alongside block storage
// in domain/blockdag rather than as a separate package.
//
// Grounded on daglabs-btcd/domain/blockdag/reachabilitystore.go: one
// struct wrapping internal maps, generalized here from that store's
// single coarse mutex to a lock striped by hash, per spec.md §5's "C4
// storage: internal locks per entry; batch operations atomic over their
// list."
package checkpointstore

import (
	"sync"

	"github.com/jet-cloud/constellation/domain/consensus/model"
	"github.com/jet-cloud/constellation/domain/consensus/model/externalapi"
)

const stripeCount = 32

// Store is C4: the map of accepted checkpoint blocks keyed by soe hash,
// their computed heights, and the transaction-ownership index used for
// conflict detection.
type Store struct {
	stripes [stripeCount]*sync.RWMutex
	entries map[externalapi.Hash]*externalapi.CheckpointCache

	mapMu sync.RWMutex // guards entries' map structure itself (inserts/deletes)

	usageMu sync.Mutex
	usage   map[externalapi.Hash]int

	ownerMu sync.RWMutex
	owners  map[externalapi.Hash]externalapi.Hash // txHash -> soeHash of the accepting block

	baseMu sync.RWMutex
	byBase map[externalapi.Hash]externalapi.Hash // baseHash -> soeHash
}

// New returns an empty Store.
func New() *Store {
	s := &Store{
		entries: make(map[externalapi.Hash]*externalapi.CheckpointCache),
		usage:   make(map[externalapi.Hash]int),
		owners:  make(map[externalapi.Hash]externalapi.Hash),
		byBase:  make(map[externalapi.Hash]externalapi.Hash),
	}
	for i := range s.stripes {
		s.stripes[i] = &sync.RWMutex{}
	}
	return s
}

func (s *Store) stripeFor(hash externalapi.Hash) *sync.RWMutex {
	return s.stripes[int(hash[0])%stripeCount]
}

// Put implements model.CheckpointStore.
func (s *Store) Put(cache *externalapi.CheckpointCache) {
	hash := cache.Block.SoeHash
	stripe := s.stripeFor(hash)
	stripe.Lock()
	defer stripe.Unlock()

	s.mapMu.Lock()
	s.entries[hash] = cache
	s.mapMu.Unlock()

	s.ownerMu.Lock()
	for _, tx := range cache.Block.Transactions {
		s.owners[tx.Hash] = hash
	}
	s.ownerMu.Unlock()

	s.baseMu.Lock()
	s.byBase[cache.Block.BaseHash] = hash
	s.baseMu.Unlock()
}

// Lookup implements model.CheckpointStore.
func (s *Store) Lookup(soeHash externalapi.Hash) (*externalapi.CheckpointCache, bool) {
	stripe := s.stripeFor(soeHash)
	stripe.RLock()
	defer stripe.RUnlock()

	s.mapMu.RLock()
	defer s.mapMu.RUnlock()
	cache, ok := s.entries[soeHash]
	return cache, ok
}

// Contains implements model.CheckpointStore.
func (s *Store) Contains(soeHash externalapi.Hash) bool {
	_, ok := s.Lookup(soeHash)
	return ok
}

// BatchRemove implements model.CheckpointStore: removes every hash in the
// list atomically with respect to Put/Lookup of those same hashes.
func (s *Store) BatchRemove(hashes []externalapi.Hash) {
	s.mapMu.Lock()
	removed := make([]*externalapi.CheckpointCache, 0, len(hashes))
	for _, h := range hashes {
		if cache, ok := s.entries[h]; ok {
			removed = append(removed, cache)
		}
		delete(s.entries, h)
	}
	s.mapMu.Unlock()

	s.baseMu.Lock()
	for _, cache := range removed {
		delete(s.byBase, cache.Block.BaseHash)
	}
	s.baseMu.Unlock()
}

// LookupByBaseHash implements model.CheckpointStore.
func (s *Store) LookupByBaseHash(baseHash externalapi.Hash) (*externalapi.CheckpointCache, bool) {
	s.baseMu.RLock()
	soeHash, ok := s.byBase[baseHash]
	s.baseMu.RUnlock()
	if !ok {
		return nil, false
	}
	return s.Lookup(soeHash)
}

// CalculateHeight implements model.CheckpointStore.
func (s *Store) CalculateHeight(block *externalapi.CheckpointBlock) (externalapi.Height, bool) {
	if block.IsGenesis() {
		return 0, true
	}

	var maxParentHeight externalapi.Height
	for _, parent := range block.Parents {
		var zero externalapi.Hash
		if parent.SoeHash.Equal(&zero) {
			continue
		}
		cache, ok := s.Lookup(parent.SoeHash)
		if !ok {
			return 0, false
		}
		if cache.Height > maxParentHeight {
			maxParentHeight = cache.Height
		}
	}
	return maxParentHeight + 1, true
}

// RegisterUsage implements model.CheckpointStore.
func (s *Store) RegisterUsage(soeHash externalapi.Hash) {
	s.usageMu.Lock()
	defer s.usageMu.Unlock()
	s.usage[soeHash]++
}

// UsageCount implements model.CheckpointStore.
func (s *Store) UsageCount(soeHash externalapi.Hash) int {
	s.usageMu.Lock()
	defer s.usageMu.Unlock()
	return s.usage[soeHash]
}

// TransactionOwner implements model.CheckpointStore.
func (s *Store) TransactionOwner(txHash externalapi.Hash) (externalapi.Hash, bool) {
	s.ownerMu.RLock()
	defer s.ownerMu.RUnlock()
	owner, ok := s.owners[txHash]
	return owner, ok
}

var _ model.CheckpointStore = (*Store)(nil)
