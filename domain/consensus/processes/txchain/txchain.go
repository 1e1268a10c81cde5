// Package txchain implements C1, the Transaction Chain Service: it
// tracks, per sender address, the reference of the last transaction that
// address had accepted into the DAG.
//
// Grounded on daglabs-btcd/domain/blockdag/reachabilitystore.go's shape
// (one struct, one internal map, one coarse mutex over the whole map)
// rather than the teacher's full reachability tree machinery, since C1's
// data is flat (one TxRef per address) rather than tree-shaped.
package txchain

import (
	"sync"

	"github.com/jet-cloud/constellation/domain/consensus/consensuserrors"
	"github.com/jet-cloud/constellation/domain/consensus/model"
	"github.com/jet-cloud/constellation/domain/consensus/model/externalapi"
)

type service struct {
	mu   sync.RWMutex
	refs map[externalapi.Address]externalapi.TxRef
}

// New instantiates a new TransactionChainService.
func New() model.TransactionChainService {
	return &service{refs: make(map[externalapi.Address]externalapi.TxRef)}
}

// GetLastAcceptedTransactionRef implements model.TransactionChainService.
func (s *service) GetLastAcceptedTransactionRef(addr externalapi.Address) externalapi.TxRef {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if ref, ok := s.refs[addr]; ok {
		return ref
	}
	return externalapi.GenesisTxRef(addr)
}

// ApplyAfterAcceptance implements model.TransactionChainService.
func (s *service) ApplyAfterAcceptance(tx *externalapi.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.refs[tx.Sender]
	if !ok {
		current = externalapi.GenesisTxRef(tx.Sender)
	}

	if !tx.LastTxRef.Equal(current) || tx.Ordinal != current.Ordinal+1 {
		return &consensuserrors.BrokenChainError{Sender: tx.Sender, TxHash: tx.Hash, Ordinal: tx.Ordinal}
	}

	s.refs[tx.Sender] = externalapi.TxRef{Hash: tx.Hash, Ordinal: tx.Ordinal}
	return nil
}
