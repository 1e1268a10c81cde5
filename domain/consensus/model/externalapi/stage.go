package externalapi

// ConsensusStage is the totally ordered stage of a round's state machine.
// Transitions are monotonic: a round's stage never regresses, and a
// message targeted at a stage the round has already passed is rejected
// with a PreviousStage error rather than silently applied.
type ConsensusStage uint8

const (
	// StageStarting is the initial stage of a freshly created round.
	StageStarting ConsensusStage = iota
	// StageWaitingForProposals is phase 1: waiting for
	// ConsensusDataProposal from every peer.
	StageWaitingForProposals
	// StageWaitingForBlockProposals is phase 2: waiting for
	// UnionBlockProposal from every facilitator (including self).
	StageWaitingForBlockProposals
	// StageResolvingMajorityCb is the computation step following phase 2:
	// grouping union proposals by BaseHash and picking the majority.
	StageResolvingMajorityCb
	// StageWaitingForSelectedBlocks is phase 3: waiting for
	// SelectedUnionBlock from every facilitator (including self).
	StageWaitingForSelectedBlocks
	// StageAcceptingMajorityCb is the terminal computation step: grouping
	// selected blocks by SoeHash, picking the majority, and admitting it.
	StageAcceptingMajorityCb
)

// String implements fmt.Stringer.
func (stage ConsensusStage) String() string {
	switch stage {
	case StageStarting:
		return "STARTING"
	case StageWaitingForProposals:
		return "WAITING_FOR_PROPOSALS"
	case StageWaitingForBlockProposals:
		return "WAITING_FOR_BLOCK_PROPOSALS"
	case StageResolvingMajorityCb:
		return "RESOLVING_MAJORITY_CB"
	case StageWaitingForSelectedBlocks:
		return "WAITING_FOR_SELECTED_BLOCKS"
	case StageAcceptingMajorityCb:
		return "ACCEPTING_MAJORITY_CB"
	default:
		return "<unknown stage>"
	}
}

// AtLeast reports whether stage has progressed at least as far as other.
func (stage ConsensusStage) AtLeast(other ConsensusStage) bool {
	return stage >= other
}
