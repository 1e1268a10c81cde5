package model

import (
	"context"

	"github.com/jet-cloud/constellation/domain/consensus/model/externalapi"
)

// RollbackService is C9: it restores node state from an external object
// store, either at a specified (height, hash) or by finding the highest
// available in the ordered cloud backends.
type RollbackService interface {
	// RestoreAt restores the node to the snapshot identified by
	// (height, hash).
	RestoreAt(ctx context.Context, height externalapi.Height, hash externalapi.Hash) (*externalapi.SnapshotInfo, error)
	// RestoreHighest finds and restores the highest snapshot available
	// across the ordered cloud backends.
	RestoreHighest(ctx context.Context) (*externalapi.SnapshotInfo, error)
}

// GenesisObservation is the bootstrap input read during rollback,
// specified in spec.md §4.9 step 2. Its construction is out of scope
// (§1, "Non-goals ... the genesis-observation bootstrap beyond its role
// as a restore input").
type GenesisObservation struct {
	GenesisBalances map[externalapi.Address]uint64
}

// GenesisObservationReader is the narrow out-of-scope collaborator that
// supplies the genesis observation during rollback.
type GenesisObservationReader interface {
	ReadGenesisObservation(ctx context.Context) (*GenesisObservation, error)
}

// LastMajorityStatePersister is the narrow out-of-scope collaborator that
// records the last majority (height, hash) pair after a successful
// rollback (§4.9 step 4).
type LastMajorityStatePersister interface {
	PersistLastMajorityState(ctx context.Context, height externalapi.Height, hash externalapi.Hash) error
}
