// Package pendingpool implements C2 (Pending Transactions MemPool) and C3
// (Observation Service). Both share a single core engine: group by
// sender/observer key, sort by ordinal, keep prefix-valid chains,
// concatenate and fee-sort, take-and-remove atomically under one lock.
//
// Grounded on daglabs-btcd/domain/mempool/mempool.go's TxPool: a flat
// map[hash]entry behind one sync.RWMutex, with all multi-step mutations
// (there: removeOrphan/limitNumOrphans; here: pullForConsensus) performed
// with the write lock held for their entire duration so no concurrent Put
// can observe or split a half-finished operation. The teacher duplicates
// this shape once for transactions (domain/mempool) and once for mining
// candidates (domain/miningmanager/mempool); here the duplication is
// collapsed into one engine shared by both concrete pools, since C2 and
// C3 differ only in whether the prefix-chain constraint applies.
package pendingpool

import "sync"

// entry is the engine's internal representation of one pooled item,
// however it is actually stored by the caller (Transaction or
// Observation).
type entry struct {
	hash      [32]byte
	senderKey string
	ordinal   uint64
	fee       uint64
	insertSeq uint64
	payload   interface{}
}

// engine is the shared core behind both PendingTransactionPool and
// PendingObservationPool.
type engine struct {
	mu          sync.RWMutex
	entries     map[[32]byte]*entry
	insertCount uint64
	chained     bool

	// lastAcceptedOrdinal is consulted only when chained is true: it
	// reports the sender's current chain head so a pulled group's oldest
	// entry can be checked against it.
	lastAcceptedOrdinal func(senderKey string) (ordinal uint64, hasRef bool, refHash [32]byte)
}

func newEngine(chained bool, lastAcceptedOrdinal func(senderKey string) (uint64, bool, [32]byte)) *engine {
	return &engine{
		entries:             make(map[[32]byte]*entry),
		chained:             chained,
		lastAcceptedOrdinal: lastAcceptedOrdinal,
	}
}

func (e *engine) put(hash [32]byte, senderKey string, ordinal, fee uint64, payload interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.insertCount++
	e.entries[hash] = &entry{
		hash:      hash,
		senderKey: senderKey,
		ordinal:   ordinal,
		fee:       fee,
		insertSeq: e.insertCount,
		payload:   payload,
	}
}

func (e *engine) lookup(hash [32]byte) (interface{}, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ent, ok := e.entries[hash]
	if !ok {
		return nil, false
	}
	return ent.payload, true
}

func (e *engine) contains(hash [32]byte) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	_, ok := e.entries[hash]
	return ok
}

func (e *engine) size() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return len(e.entries)
}

func (e *engine) remove(hashes [][32]byte) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, h := range hashes {
		delete(e.entries, h)
	}
}

// senderGroup is one sender's (or observer's) pooled entries, sorted by
// ordinal, with the bookkeeping pull needs to rank groups by fee.
type senderGroup struct {
	senderKey string
	entries   []*entry
	totalFee  uint64
	firstSeq  uint64
}

// pull implements spec.md §4.2 steps 1-5, atomically: group by sender,
// sort ascending by ordinal per sender, keep only prefix-valid groups,
// concatenate in fee-descending sender order (fee ties broken by
// insertion order), take the first maxCount, and remove exactly those
// entries from the pool.
func (e *engine) pull(maxCount int) []interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()

	byKey := make(map[string][]*entry)
	for _, ent := range e.entries {
		byKey[ent.senderKey] = append(byKey[ent.senderKey], ent)
	}

	groups := make([]*senderGroup, 0, len(byKey))
	for senderKey, entries := range byKey {
		sortEntriesByOrdinal(entries)

		if e.chained {
			refOrdinal, hasRef, refHash := e.lastAcceptedOrdinal(senderKey)
			if !chainHeadMatchesRef(entries[0], hasRef, refOrdinal, refHash) {
				continue
			}
		}

		var totalFee uint64
		minSeq := entries[0].insertSeq
		for _, ent := range entries {
			totalFee += ent.fee
			if ent.insertSeq < minSeq {
				minSeq = ent.insertSeq
			}
		}
		groups = append(groups, &senderGroup{senderKey: senderKey, entries: entries, totalFee: totalFee, firstSeq: minSeq})
	}

	sortGroupsByFeeDescending(groups)

	var selected []*entry
	for _, group := range groups {
		if len(selected) >= maxCount {
			break
		}
		for _, ent := range group.entries {
			if len(selected) >= maxCount {
				break
			}
			selected = append(selected, ent)
		}
	}

	payloads := make([]interface{}, len(selected))
	for i, ent := range selected {
		payloads[i] = ent.payload
		delete(e.entries, ent.hash)
	}
	return payloads
}

// chainHeadMatchesRef reports whether a sender's oldest pooled entry
// chains directly from its current last-accepted reference. Observation
// groups (engine.chained == false) never call this.
func chainHeadMatchesRef(head *entry, hasRef bool, refOrdinal uint64, refHash [32]byte) bool {
	headRef, ok := head.payload.(interface {
		LastTxRefParts() (hash [32]byte, ordinal uint64)
	})
	if !ok {
		return false
	}
	lastRefHash, lastRefOrdinal := headRef.LastTxRefParts()

	if !hasRef {
		refOrdinal, refHash = 0, [32]byte{}
	}
	return lastRefHash == refHash && lastRefOrdinal == refOrdinal && head.ordinal == refOrdinal+1
}

func sortEntriesByOrdinal(entries []*entry) {
	// insertion sort: pools are small per sender (a few dozen at most),
	// and this keeps ties stable, which should never arise but is
	// harmless if it does.
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j-1].ordinal > entries[j].ordinal; j-- {
			entries[j-1], entries[j] = entries[j], entries[j-1]
		}
	}
}

func sortGroupsByFeeDescending(groups []*senderGroup) {
	for i := 1; i < len(groups); i++ {
		for j := i; j > 0 && groupLess(groups[j], groups[j-1]); j-- {
			groups[j-1], groups[j] = groups[j], groups[j-1]
		}
	}
}

func groupLess(a, b *senderGroup) bool {
	if a.totalFee != b.totalFee {
		return a.totalFee > b.totalFee
	}
	return a.firstSeq < b.firstSeq
}
