package externalapi

// CloneTransactions returns a deep copy of a transaction slice, used by the
// round state machine to hand out copy-safe views of RoundData's
// immutable candidate list across the updateSemaphore boundary.
func CloneTransactions(txs []*Transaction) []*Transaction {
	clone := make([]*Transaction, len(txs))
	for i, tx := range txs {
		clone[i] = tx.Clone()
	}
	return clone
}

// CloneObservations returns a deep copy of an observation slice, same
// rationale as CloneTransactions.
func CloneObservations(obs []*Observation) []*Observation {
	clone := make([]*Observation, len(obs))
	for i, ob := range obs {
		clone[i] = ob.Clone()
	}
	return clone
}
