package model

import "github.com/jet-cloud/constellation/domain/consensus/model/externalapi"

// PendingTransactionPool is C2: the per-sender-ordered, fee-biased
// transaction pool consensus rounds pull candidates from.
type PendingTransactionPool interface {
	// Put inserts or overwrites a transaction by hash.
	Put(data *externalapi.TransactionCacheData)
	// Lookup returns the cached entry for hash, if present.
	Lookup(hash externalapi.Hash) (*externalapi.TransactionCacheData, bool)
	// Contains reports whether hash is present.
	Contains(hash externalapi.Hash) bool
	// PullForConsensus atomically selects and removes up to maxCount
	// transactions per the prefix-validity and fee-ordering rules of
	// spec.md §4.2.
	PullForConsensus(maxCount int) []*externalapi.Transaction
	// Remove deletes the given hashes from the pool, if present.
	Remove(hashes []externalapi.Hash)
}

// PendingObservationPool is C3: the same pull contract as C2, without the
// ordinal/chain prefix constraint.
type PendingObservationPool interface {
	Put(data *externalapi.ObservationCacheData)
	Lookup(hash externalapi.Hash) (*externalapi.ObservationCacheData, bool)
	Contains(hash externalapi.Hash) bool
	PullForConsensus(maxCount int) []*externalapi.Observation
	Remove(hashes []externalapi.Hash)
}
