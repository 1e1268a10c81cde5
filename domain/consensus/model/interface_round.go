package model

import (
	"context"

	"github.com/jet-cloud/constellation/domain/consensus/model/externalapi"
)

// RoundStateMachine is C6: one instance per active RoundId, driving a
// three-phase proposal/union/selection protocol to completion.
type RoundStateMachine interface {
	RoundId() externalapi.RoundId
	Stage() externalapi.ConsensusStage

	// StartConsensusDataProposal runs the self phase-1 action: pulling
	// candidates, building this node's own ConsensusDataProposal,
	// broadcasting it, and recording it locally.
	StartConsensusDataProposal(ctx context.Context) error

	// AddConsensusDataProposal records a (possibly re-delivered) phase-1
	// proposal and, once every peer has been heard from, advances to
	// phase 2.
	AddConsensusDataProposal(ctx context.Context, proposal *externalapi.ConsensusDataProposal) error

	// AddBlockProposal records a phase-2 union proposal and, once every
	// facilitator has been heard from, advances to the majority-resolve
	// step.
	AddBlockProposal(ctx context.Context, proposal *externalapi.UnionBlockProposal) error

	// AddSelectedBlockProposal records a phase-3 selected-block proposal
	// and, once every facilitator has been heard from, advances to the
	// accept-majority step.
	AddSelectedBlockProposal(ctx context.Context, proposal *externalapi.SelectedUnionBlock) error

	// ForceUnion is the timeout escape hatch: a round still in phase 1
	// unions whatever phase-1 proposals are present if the 51% threshold
	// is met. Otherwise, and for a round already past phase 1, it ends the
	// round itself and returns EmptyProposals/NotEnoughProposals.
	ForceUnion(ctx context.Context) error
}

// RoundOutcome is what a round reports back to the consensus manager when
// it terminates, successfully or not.
type RoundOutcome struct {
	AcceptedCache        *externalapi.CheckpointCache
	TransactionsToReturn []*externalapi.Transaction
	ObservationsToReturn []*externalapi.Observation
	Facilitators         externalapi.IdSet
	Err                  error
}

// RoundContext is the narrow set of collaborators a Round needs, supplied
// by the Consensus Manager. Grounded on the teacher's
// app/protocol/flows/blockrelay "Context interface" pattern: a flow (here,
// a round) depends only on this interface, never on the manager's
// concrete type.
type RoundContext interface {
	Gossip() Gossip
	PeerClient() PeerClient
	PendingTransactionPool() PendingTransactionPool
	PendingObservationPool() PendingObservationPool
	AcceptancePipeline() AcceptancePipeline
	Signer() Signer
	SelfId() *externalapi.Id
	Logger() Logger
	Metrics() MetricsSink
	Clock() Clock

	// HandleRoundOutcome is called exactly once by a round when it
	// terminates; the manager removes the round and, on failure, returns
	// the outcome's transactions/observations to the pending pools.
	HandleRoundOutcome(ctx context.Context, roundId externalapi.RoundId, outcome RoundOutcome)
}
