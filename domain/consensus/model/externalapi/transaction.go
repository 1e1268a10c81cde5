package externalapi

// Address is an account address, the key a sender/receiver is identified by.
type Address string

// TxRef is a reference to a transaction by hash and ordinal, used as the
// "last transaction reference" every transaction chains to.
type TxRef struct {
	Hash    Hash
	Ordinal uint64
}

// Equal returns whether ref equals other.
func (ref TxRef) Equal(other TxRef) bool {
	return ref.Ordinal == other.Ordinal && ref.Hash.Equal(&other.Hash)
}

// GenesisTxRef returns the deterministic genesis reference for an address,
// the reference a sender's very first transaction must chain to.
func GenesisTxRef(addr Address) TxRef {
	return TxRef{Hash: Hash{}, Ordinal: 0}
}

// Transaction is a signed value transfer between two addresses.
//
// Hash is a pure function of every other field (computed by
// consensushashing.TransactionHash); Ordinal is strictly increasing per
// sender and LastTxRef must point at the sender's previous accepted
// transaction (or its genesis reference).
type Transaction struct {
	Sender               Address
	Receiver             Address
	Amount               uint64
	Fee                  uint64
	HasFee               bool
	Ordinal              uint64
	LastTxRef            TxRef
	SenderSignature      []byte
	CounterPartySignature []byte
	HasCounterPartySig   bool

	Hash Hash
}

// Clone returns a deep copy of the transaction.
func (tx *Transaction) Clone() *Transaction {
	if tx == nil {
		return nil
	}
	clone := *tx
	clone.SenderSignature = cloneBytes(tx.SenderSignature)
	clone.CounterPartySignature = cloneBytes(tx.CounterPartySignature)
	return &clone
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	clone := make([]byte, len(b))
	copy(clone, b)
	return clone
}

// TransactionStatus is the lifecycle state of a transaction as tracked by
// the pending pool / acceptance pipeline.
type TransactionStatus uint8

const (
	// StatusUnknown is a transaction the node has only heard referenced,
	// not yet received or validated.
	StatusUnknown TransactionStatus = iota
	// StatusPending is a transaction sitting in the mempool, eligible for
	// selection into a round.
	StatusPending
	// StatusInConsensus is a transaction currently part of an in-flight
	// round's proposal.
	StatusInConsensus
	// StatusAccepted is a transaction admitted into an accepted checkpoint
	// block.
	StatusAccepted
)

// String implements fmt.Stringer.
func (s TransactionStatus) String() string {
	switch s {
	case StatusUnknown:
		return "Unknown"
	case StatusPending:
		return "Pending"
	case StatusInConsensus:
		return "InConsensus"
	case StatusAccepted:
		return "Accepted"
	default:
		return "<unknown status>"
	}
}

// TransactionCacheData wraps a transaction with its pending-pool lifecycle
// status.
type TransactionCacheData struct {
	Transaction *Transaction
	Status      TransactionStatus
}

// Clone returns a deep copy.
func (data *TransactionCacheData) Clone() *TransactionCacheData {
	if data == nil {
		return nil
	}
	return &TransactionCacheData{
		Transaction: data.Transaction.Clone(),
		Status:      data.Status,
	}
}
