package model

import (
	"context"

	"github.com/jet-cloud/constellation/domain/consensus/model/externalapi"
)

// AcceptancePipeline is C5: the single-writer admission gate for the DAG.
type AcceptancePipeline interface {
	// Accept runs the full §4.5 1-10 sequence against cache, admitting it
	// into the CheckpointStore on success.
	Accept(ctx context.Context, cache *externalapi.CheckpointCache) (*externalapi.CheckpointCache, error)
	// SetSyncing toggles admission buffering. The snapshot service sets
	// this briefly while sealing (§5: "acceptLock is re-acquired briefly
	// during sealing to block new admissions"), so a block accepted
	// mid-seal can't race the set of blocks being swept into the
	// snapshot.
	SetSyncing(syncing bool)
	// DrainSyncBuffer returns and clears whatever Accept buffered while
	// syncing was set, for replay once it clears.
	DrainSyncBuffer() []*externalapi.CheckpointCache
}

// AcceptedCbTracker is the part of the snapshot/round bookkeeping that
// tracks base hashes accepted since the last snapshot. It is owned by the
// acceptance pipeline (step 9 of §4.5 appends to it) and read by the
// snapshot service (§4.8 preconditions 4,5,7).
type AcceptedCbTracker interface {
	Append(baseHash externalapi.Hash)
	Snapshot() []externalapi.Hash
	TrimTo(n int)
	RemoveAll(hashes []externalapi.Hash)
}
