package model

import "github.com/jet-cloud/constellation/domain/consensus/model/externalapi"

// TransactionChainService is C1: it tracks, per sender address, the
// reference of the last transaction that address had accepted into the
// DAG.
type TransactionChainService interface {
	// GetLastAcceptedTransactionRef returns addr's last-accepted
	// reference, defaulting to the address's genesis reference if addr
	// has never had a transaction accepted.
	GetLastAcceptedTransactionRef(addr externalapi.Address) externalapi.TxRef

	// ApplyAfterAcceptance advances addr's last-accepted reference to tx,
	// provided tx.LastTxRef equals the current reference and tx.Ordinal
	// is exactly one more than the current ordinal. Otherwise it fails
	// with BrokenChainError and leaves the chain untouched.
	ApplyAfterAcceptance(tx *externalapi.Transaction) error
}
