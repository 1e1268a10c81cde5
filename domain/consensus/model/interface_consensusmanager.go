package model

import (
	"context"

	"github.com/jet-cloud/constellation/domain/consensus/model/externalapi"
)

// ConsensusManager is C7: it creates and destroys rounds, handles
// per-stage timeouts, and routes incoming phase messages to the matching
// round.
type ConsensusManager interface {
	// StartOwnRound allocates a RoundId, pulls two tips and their
	// covering peer set, builds RoundData, instantiates a round, and
	// broadcasts StartConsensusRound. It is a no-op returning
	// (false, nil) if maxParallelRoundsPerNode or the per-node cooldown
	// would be violated.
	StartOwnRound(ctx context.Context) (started bool, err error)

	// HandleStartConsensusRound creates a round from a peer-initiated
	// RoundData, applying any phase-1 proposals that were buffered
	// before the round existed.
	HandleStartConsensusRound(ctx context.Context, data *externalapi.RoundData) error

	// HandleConsensusDataProposal routes a phase-1 message to its round,
	// buffering briefly if the round does not exist yet.
	HandleConsensusDataProposal(ctx context.Context, proposal *externalapi.ConsensusDataProposal) error
	// HandleUnionBlockProposal routes a phase-2 message to its round.
	HandleUnionBlockProposal(ctx context.Context, proposal *externalapi.UnionBlockProposal) error
	// HandleSelectedUnionBlock routes a phase-3 message to its round.
	HandleSelectedUnionBlock(ctx context.Context, proposal *externalapi.SelectedUnionBlock) error

	// TickTimeouts inspects every active round's stage deadline and
	// forces a union or ends the round as appropriate. Called
	// periodically by the owning goroutine.
	TickTimeouts(ctx context.Context)

	// Shutdown ends every active round, returning their transactions and
	// observations to the pending pools.
	Shutdown(ctx context.Context)

	// ActiveRoundCount reports how many rounds are currently in flight on
	// this node.
	ActiveRoundCount() int
}

// Clock abstracts wall-clock time so round timeouts are testable without
// sleeping.
type Clock interface {
	Now() int64
	After(seconds float64) <-chan int64
}

// Gossip is the narrow out-of-scope transport collaborator described in
// spec.md §6: it delivers messages at-least-once, with duplicate
// suppression by (roundId, facilitatorId, phase) left to the transport.
type Gossip interface {
	Broadcast(ctx context.Context, msg interface{}) error
	SendTo(ctx context.Context, peer *externalapi.Id, msg interface{}) error
}

// PeerClient is the narrow out-of-scope collaborator used for parent
// resolution during acceptance (§4.5 step 5) and signature requests.
type PeerClient interface {
	RequestCheckpointBlock(ctx context.Context, peer *externalapi.Id, soeHash externalapi.Hash) (*externalapi.CheckpointBlock, error)
}

// Signer is the narrow out-of-scope collaborator for producing this
// node's signature over a base hash.
type Signer interface {
	Sign(baseHash externalapi.Hash) (*externalapi.HashSignature, error)
}

// Verifier is the narrow out-of-scope collaborator for checking a claimed
// signer's signature over a base hash.
type Verifier interface {
	Verify(baseHash externalapi.Hash, sig *externalapi.HashSignature) bool
}

// ReputationScorer is the narrow out-of-scope collaborator supplying
// public reputation values for the snapshot service's active-pool
// rotation (§4.8).
type ReputationScorer interface {
	PublicReputation(id *externalapi.Id) float64
}

// MetricsSink is the narrow out-of-scope collaborator for counters/gauges.
// Left uninstantiated by a concrete exporter: spec.md §1 lists metric
// sinks as an external collaborator Non-goal.
type MetricsSink interface {
	IncCounter(name string, labels map[string]string)
	ObserveValue(name string, value float64, labels map[string]string)
}

// Logger is the narrow logging collaborator every component takes,
// grounded on the teacher's per-subsystem *logs.Logger (see
// infrastructure/logger).
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}
