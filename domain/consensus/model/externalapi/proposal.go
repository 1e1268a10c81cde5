package externalapi

// RoundId is an opaque, unique identifier for one run of the round state
// machine.
type RoundId string

// ConsensusDataProposal is the phase-1 payload of a round: the
// transactions, observations, messages and notifications one facilitator
// proposes be included in the union block.
type ConsensusDataProposal struct {
	RoundId       RoundId
	Facilitator   *Id
	Transactions  []*Transaction
	Observations  []*Observation
	Messages      [][]byte
	Notifications [][]byte
}

// Clone returns a deep copy.
func (p *ConsensusDataProposal) Clone() *ConsensusDataProposal {
	if p == nil {
		return nil
	}
	clone := &ConsensusDataProposal{RoundId: p.RoundId, Facilitator: p.Facilitator.Clone()}
	clone.Transactions = make([]*Transaction, len(p.Transactions))
	for i, tx := range p.Transactions {
		clone.Transactions[i] = tx.Clone()
	}
	clone.Observations = make([]*Observation, len(p.Observations))
	for i, obs := range p.Observations {
		clone.Observations[i] = obs.Clone()
	}
	clone.Messages = make([][]byte, len(p.Messages))
	for i, m := range p.Messages {
		clone.Messages[i] = cloneBytes(m)
	}
	clone.Notifications = make([][]byte, len(p.Notifications))
	for i, n := range p.Notifications {
		clone.Notifications[i] = cloneBytes(n)
	}
	return clone
}

// UnionBlockProposal is the phase-2 payload of a round: one facilitator's
// union of every phase-1 proposal it has seen so far, already assembled
// into a (not yet agreed-upon) checkpoint block.
type UnionBlockProposal struct {
	RoundId     RoundId
	Facilitator *Id
	Block       *CheckpointBlock
}

// Clone returns a deep copy.
func (p *UnionBlockProposal) Clone() *UnionBlockProposal {
	if p == nil {
		return nil
	}
	return &UnionBlockProposal{RoundId: p.RoundId, Facilitator: p.Facilitator.Clone(), Block: p.Block.Clone()}
}

// SelectedUnionBlock is the phase-3 payload of a round: the merged,
// majority-selected block one facilitator is voting to finally accept.
type SelectedUnionBlock struct {
	RoundId     RoundId
	Facilitator *Id
	Block       *CheckpointBlock
}

// Clone returns a deep copy.
func (p *SelectedUnionBlock) Clone() *SelectedUnionBlock {
	if p == nil {
		return nil
	}
	return &SelectedUnionBlock{RoundId: p.RoundId, Facilitator: p.Facilitator.Clone(), Block: p.Block.Clone()}
}

// RoundData is the immutable context a round is created with: the peer
// set, the facilitator that initiated it, the candidate transactions and
// observations pulled for phase 1, and the two parent tip references the
// resulting block will chain to.
type RoundData struct {
	RoundId       RoundId
	Peers         IdSet
	LightPeers    IdSet
	FacilitatorId *Id
	Transactions  []*Transaction
	Observations  []*Observation
	TipsSoe       [2]ParentReference
	Messages      [][]byte
}

// Clone returns a deep copy.
func (data *RoundData) Clone() *RoundData {
	if data == nil {
		return nil
	}
	clone := &RoundData{
		RoundId:       data.RoundId,
		Peers:         data.Peers.Clone(),
		LightPeers:    data.LightPeers.Clone(),
		FacilitatorId: data.FacilitatorId.Clone(),
		TipsSoe:       data.TipsSoe,
	}
	clone.Transactions = make([]*Transaction, len(data.Transactions))
	for i, tx := range data.Transactions {
		clone.Transactions[i] = tx.Clone()
	}
	clone.Observations = make([]*Observation, len(data.Observations))
	for i, obs := range data.Observations {
		clone.Observations[i] = obs.Clone()
	}
	clone.Messages = make([][]byte, len(data.Messages))
	for i, m := range data.Messages {
		clone.Messages[i] = cloneBytes(m)
	}
	return clone
}

// FacilitatorCount returns F, the number of participants counted for phase
// 2/3 thresholds: peers plus self.
func (data *RoundData) FacilitatorCount() int {
	return data.Peers.Len() + 1
}
