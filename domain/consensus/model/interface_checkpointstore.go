package model

import "github.com/jet-cloud/constellation/domain/consensus/model/externalapi"

// CheckpointStore is C4: the DAG of accepted checkpoint blocks, its height
// index, and its conflict lookup.
type CheckpointStore interface {
	// Put inserts or overwrites cache by its block's soe hash.
	Put(cache *externalapi.CheckpointCache)
	// Lookup returns the cache entry for soeHash, if present.
	Lookup(soeHash externalapi.Hash) (*externalapi.CheckpointCache, bool)
	// Contains reports whether soeHash is stored.
	Contains(soeHash externalapi.Hash) bool
	// BatchRemove atomically removes every hash in the list.
	BatchRemove(hashes []externalapi.Hash)
	// CalculateHeight returns 1+max(parent heights) if both parents are
	// known and their heights known, else (0, false).
	CalculateHeight(block *externalapi.CheckpointBlock) (externalapi.Height, bool)
	// RegisterUsage increments the usage counter for soeHash, used by the
	// tip service to cap reuse of a tip as a parent.
	RegisterUsage(soeHash externalapi.Hash)
	// UsageCount returns the current usage counter for soeHash.
	UsageCount(soeHash externalapi.Hash) int
	// TransactionOwner returns the soe hash of the block that already
	// accepted txHash, if any.
	TransactionOwner(txHash externalapi.Hash) (externalapi.Hash, bool)
	// LookupByBaseHash returns the cache entry whose block's base hash is
	// baseHash, if present. Used by the snapshot service to resolve the
	// base-hash-keyed acceptedCBSinceSnapshot list (§4.8) back to full
	// cache entries.
	LookupByBaseHash(baseHash externalapi.Hash) (*externalapi.CheckpointCache, bool)
}

// TipService is §4.4: the bounded set of accepted blocks eligible to be
// referenced as parents by new blocks.
type TipService interface {
	// Update processes a newly accepted block: its parents' usage
	// counters are incremented and retired past maxTipUsage, and the new
	// block is inserted if the tip set has spare capacity.
	Update(block *externalapi.CheckpointBlock)
	// Pull selects two tip references whose joint facilitator set covers
	// minFacilitators from readyFacilitators, returning both references
	// and the covering peer set. Pairs are tried in ascending soe-hash
	// order, each tip first paired with itself, so both references can
	// name the same tip.
	Pull(readyFacilitators externalapi.IdSet) (tipsSoe [2]externalapi.ParentReference, peers externalapi.IdSet, ok bool)
	// Tips returns a snapshot of the current tip set.
	Tips() []*externalapi.TipData
	// MinTipHeight returns the lowest height among current tips, used by
	// the snapshot service's height-interval precondition.
	MinTipHeight(store CheckpointStore) (externalapi.Height, bool)
}
