// Package consensuserrors defines the tagged error variants of spec.md §7:
// small structs implementing error, carrying exactly the data their
// caller needs to retry or recover. Grounded on the teacher's
// typed-error-constructor idiom (e.g. domain/blockdag/reachabilitystore.go's
// reachabilityNotFoundError), generalized from one-off unexported error
// types to a shared package since these errors cross package boundaries
// (acceptance -> round -> consensus manager) and callers need to
// type-switch on them.
package consensuserrors

import (
	"fmt"

	"github.com/jet-cloud/constellation/domain/consensus/model/externalapi"
)

// Round-level errors (spec.md §7 "Round-level").

// EmptyProposalsError is returned when a round is forced to union with no
// phase-1 proposals present at all.
type EmptyProposalsError struct{}

func (e *EmptyProposalsError) Error() string { return "no proposals received for round" }

// NotEnoughProposalsError is returned when a majority-resolve step sees
// fewer proposals than the required threshold.
type NotEnoughProposalsError struct {
	Count int
	Total int
}

func (e *NotEnoughProposalsError) Error() string {
	return fmt.Sprintf("not enough proposals: got %d of %d", e.Count, e.Total)
}

// PreviousStageError is returned when a message targets a stage the round
// has already passed.
type PreviousStageError struct {
	Stage externalapi.ConsensusStage
}

func (e *PreviousStageError) Error() string {
	return fmt.Sprintf("round has already passed stage %s", e.Stage)
}

// HeightMissingError is returned when a selected block's height cannot be
// computed even after parent resolution.
type HeightMissingError struct{}

func (e *HeightMissingError) Error() string { return "height could not be computed for selected block" }

// Acceptance errors (spec.md §7 "Acceptance").

// AlreadyStoredError is returned when the block is already present in
// checkpoint storage. Informational: never logged as an error (§7).
type AlreadyStoredError struct {
	SoeHash externalapi.Hash
}

func (e *AlreadyStoredError) Error() string {
	return fmt.Sprintf("checkpoint block %s already stored", e.SoeHash)
}

// PendingAcceptanceError is returned when another goroutine is already
// accepting this block. Informational: never logged as an error (§7).
type PendingAcceptanceError struct {
	BaseHash externalapi.Hash
}

func (e *PendingAcceptanceError) Error() string {
	return fmt.Sprintf("checkpoint block %s is already being accepted", e.BaseHash)
}

// MissingTransactionReferenceError is returned when a transaction's
// LastTxRef cannot be resolved against the transaction chain service.
type MissingTransactionReferenceError struct {
	TxHash externalapi.Hash
}

func (e *MissingTransactionReferenceError) Error() string {
	return fmt.Sprintf("transaction %s references an unknown last transaction", e.TxHash)
}

// MissingParentsError is returned when a block's parents cannot be
// resolved even after bounded recursive fetch. Transient: the caller
// should retry.
type MissingParentsError struct {
	SoeHash externalapi.Hash
}

func (e *MissingParentsError) Error() string {
	return fmt.Sprintf("checkpoint block %s has unresolved parents", e.SoeHash)
}

// TipConflictError is returned when one or more of the block's
// transactions are already accepted in another block.
type TipConflictError struct {
	ConflictingTxs []externalapi.Hash
}

func (e *TipConflictError) Error() string {
	return fmt.Sprintf("%d transactions conflict with already-accepted blocks", len(e.ConflictingTxs))
}

// ContainsInvalidTransactionsError is returned when structural validation
// fails for one or more transactions.
type ContainsInvalidTransactionsError struct {
	TxsToExclude []externalapi.Hash
}

func (e *ContainsInvalidTransactionsError) Error() string {
	return fmt.Sprintf("%d transactions failed structural validation", len(e.TxsToExclude))
}

// MissingCheckpointBlockError is returned when the cache passed to Accept
// has no block.
type MissingCheckpointBlockError struct{}

func (e *MissingCheckpointBlockError) Error() string { return "checkpoint cache has no block" }

// BrokenChainError is returned by the transaction chain service when a
// transaction's ordinal/lastTxRef doesn't match the current chain head.
type BrokenChainError struct {
	Sender  externalapi.Address
	TxHash  externalapi.Hash
	Ordinal uint64
}

func (e *BrokenChainError) Error() string {
	return fmt.Sprintf("transaction %s (ordinal %d) breaks %s's chain", e.TxHash, e.Ordinal, e.Sender)
}

// Snapshot errors (spec.md §7 "Snapshot").

// MaxCbHashesInMemoryError is returned when acceptedCBSinceSnapshot
// exceeds maxAcceptedCBHashesInMemory. Self-healing: the tracker is
// trimmed as a side effect of detecting this.
type MaxCbHashesInMemoryError struct {
	Count int
	Max   int
}

func (e *MaxCbHashesInMemoryError) Error() string {
	return fmt.Sprintf("accepted checkpoint block count %d exceeds in-memory max %d", e.Count, e.Max)
}

// NoAcceptedCbsSinceSnapshotError is returned when there is nothing to
// seal.
type NoAcceptedCbsSinceSnapshotError struct{}

func (e *NoAcceptedCbsSinceSnapshotError) Error() string {
	return "no checkpoint blocks accepted since last snapshot"
}

// HeightIntervalConditionNotMetError is returned when the DAG hasn't
// advanced far enough past the seal point yet.
type HeightIntervalConditionNotMetError struct {
	MinTipHeight       externalapi.Height
	RequiredMinHeight  externalapi.Height
}

func (e *HeightIntervalConditionNotMetError) Error() string {
	return fmt.Sprintf("min tip height %d has not passed required height %d", e.MinTipHeight, e.RequiredMinHeight)
}

// NoBlocksWithinHeightIntervalError is returned when the height window
// contains no accepted blocks.
type NoBlocksWithinHeightIntervalError struct {
	From externalapi.Height
	To   externalapi.Height
}

func (e *NoBlocksWithinHeightIntervalError) Error() string {
	return fmt.Sprintf("no accepted blocks with height in (%d, %d]", e.From, e.To)
}

// NotEnoughSpaceError is returned when local disk usable space is below
// the required minimum.
type NotEnoughSpaceError struct {
	AvailableBytes uint64
	RequiredBytes  uint64
}

func (e *NotEnoughSpaceError) Error() string {
	return fmt.Sprintf("only %d bytes available, need %d", e.AvailableBytes, e.RequiredBytes)
}

// StorageCapacityError is returned by the local snapshot disk store when
// writing an artifact would exceed the operator-configured storage budget
// (snapshot.sizeDiskLimit). Distinct from NotEnoughSpaceError, which
// checks the filesystem's actual free space against a fixed floor.
type StorageCapacityError struct {
	UsedBytes  uint64
	AddedBytes uint64
	LimitBytes uint64
}

func (e *StorageCapacityError) Error() string {
	return fmt.Sprintf("writing %d bytes would bring local snapshot storage to %d bytes, over the %d byte limit",
		e.AddedBytes, e.UsedBytes+e.AddedBytes, e.LimitBytes)
}

// SnapshotIllegalStateError is returned when the snapshot service's
// internal bookkeeping is inconsistent (e.g. a negative interval).
type SnapshotIllegalStateError struct {
	Reason string
}

func (e *SnapshotIllegalStateError) Error() string {
	return fmt.Sprintf("illegal snapshot state: %s", e.Reason)
}

// NodeNotPartOfL0FacilitatorsPoolError is returned when this node is not
// a member of the last snapshot's full active pool.
type NodeNotPartOfL0FacilitatorsPoolError struct{}

func (e *NodeNotPartOfL0FacilitatorsPoolError) Error() string {
	return "node is not part of the L0 facilitators pool"
}

// ActiveBetweenHeightsConditionNotMetError is returned when this node
// hasn't been continuously active across the interval being sealed.
type ActiveBetweenHeightsConditionNotMetError struct {
	NextHeight externalapi.Height
	Joined     externalapi.Height
	Left       externalapi.Height
}

func (e *ActiveBetweenHeightsConditionNotMetError) Error() string {
	return fmt.Sprintf("node active window [%d,%d] does not cover height %d", e.Joined, e.Left, e.NextHeight)
}

// SnapshotIOError wraps a disk or cloud I/O failure encountered while
// sealing a snapshot.
type SnapshotIOError struct {
	Cause error
}

func (e *SnapshotIOError) Error() string { return fmt.Sprintf("snapshot I/O error: %s", e.Cause) }
func (e *SnapshotIOError) Unwrap() error { return e.Cause }

// Rollback errors (spec.md §7 "Rollback").

// InvalidBalancesError is returned when a restored SnapshotInfo contains
// a negative address balance.
type InvalidBalancesError struct {
	Address externalapi.Address
}

func (e *InvalidBalancesError) Error() string {
	return fmt.Sprintf("address %s has a negative restored balance", e.Address)
}

// CloudReadError wraps a failed read from one ordered cloud backend,
// carrying the backend name so the rollback service can fall back to the
// next one in order.
type CloudReadError struct {
	Backend string
	Cause   error
}

func (e *CloudReadError) Error() string {
	return fmt.Sprintf("cloud backend %q read failed: %s", e.Backend, e.Cause)
}
func (e *CloudReadError) Unwrap() error { return e.Cause }

// MigrationError wraps a failure migrating a legacy V1 snapshot-info
// schema to the current shape.
type MigrationError struct {
	Cause error
}

func (e *MigrationError) Error() string { return fmt.Sprintf("v1 schema migration failed: %s", e.Cause) }
func (e *MigrationError) Unwrap() error { return e.Cause }
