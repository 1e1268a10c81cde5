package pendingpool

import (
	"github.com/jet-cloud/constellation/domain/consensus/model"
	"github.com/jet-cloud/constellation/domain/consensus/model/externalapi"
)

// transactionRefAdapter lets the shared engine check chain-prefix validity
// without importing externalapi.Transaction directly.
type transactionRefAdapter struct {
	tx *externalapi.Transaction
}

func (a transactionRefAdapter) LastTxRefParts() (hash [32]byte, ordinal uint64) {
	return a.tx.LastTxRef.Hash, a.tx.LastTxRef.Ordinal
}

type transactionPool struct {
	engine *engine
	chain  model.TransactionChainService
}

// NewTransactionPool returns C2, the pending transaction pool. chain is
// consulted during PullForConsensus to check that each sender's oldest
// pooled transaction chains from its current accepted reference.
func NewTransactionPool(chain model.TransactionChainService) model.PendingTransactionPool {
	pool := &transactionPool{chain: chain}
	pool.engine = newEngine(true, pool.lastAcceptedOrdinal)
	return pool
}

func (p *transactionPool) lastAcceptedOrdinal(senderKey string) (uint64, bool, [32]byte) {
	ref := p.chain.GetLastAcceptedTransactionRef(externalapi.Address(senderKey))
	return ref.Ordinal, true, ref.Hash
}

// Put implements model.PendingTransactionPool.
func (p *transactionPool) Put(data *externalapi.TransactionCacheData) {
	tx := data.Transaction
	fee := uint64(0)
	if tx.HasFee {
		fee = tx.Fee
	}
	payload := &externalapi.TransactionCacheData{Transaction: tx, Status: data.Status}
	p.engine.put(tx.Hash, string(tx.Sender), tx.Ordinal, fee, transactionPayload{cache: payload, ref: transactionRefAdapter{tx: tx}})
}

// Lookup implements model.PendingTransactionPool.
func (p *transactionPool) Lookup(hash externalapi.Hash) (*externalapi.TransactionCacheData, bool) {
	raw, ok := p.engine.lookup(hash)
	if !ok {
		return nil, false
	}
	return raw.(transactionPayload).cache, true
}

// Contains implements model.PendingTransactionPool.
func (p *transactionPool) Contains(hash externalapi.Hash) bool {
	return p.engine.contains(hash)
}

// PullForConsensus implements model.PendingTransactionPool.
func (p *transactionPool) PullForConsensus(maxCount int) []*externalapi.Transaction {
	raw := p.engine.pull(maxCount)
	txs := make([]*externalapi.Transaction, len(raw))
	for i, r := range raw {
		txs[i] = r.(transactionPayload).cache.Transaction
	}
	return txs
}

// Remove implements model.PendingTransactionPool.
func (p *transactionPool) Remove(hashes []externalapi.Hash) {
	p.engine.remove(toRawHashes(hashes))
}

// transactionPayload is what the shared engine stores per transaction: the
// cache entry plus a thin adapter satisfying the engine's chain-check
// interface, so the engine package never needs to import externalapi.
type transactionPayload struct {
	cache *externalapi.TransactionCacheData
	ref   transactionRefAdapter
}

// LastTxRefParts satisfies the interface chainHeadMatchesRef asserts on
// payloads of chained pools.
func (p transactionPayload) LastTxRefParts() (hash [32]byte, ordinal uint64) {
	return p.ref.LastTxRefParts()
}

func toRawHashes(hashes []externalapi.Hash) [][32]byte {
	raw := make([][32]byte, len(hashes))
	for i, h := range hashes {
		raw[i] = h
	}
	return raw
}
