// Package rollback implements C9, the disaster-recovery path that rebuilds
// a node's snapshot state from an ordered list of cloud object-storage
// backends rather than the peer network.
//
// Grounded structurally on daglabs-btcd/database/ffldb's block-index
// recovery path (scanning store files back to a consistent point after an
// unclean shutdown), generalized here to spec.md §4.9's cloud-failover,
// schema-migration and genesis-acceptance sequence.
package rollback

import (
	"context"
	"math"
	"sort"

	"github.com/jet-cloud/constellation/domain/consensus/consensuserrors"
	"github.com/jet-cloud/constellation/domain/consensus/model"
	"github.com/jet-cloud/constellation/domain/consensus/model/externalapi"
	"github.com/jet-cloud/constellation/infrastructure/persist"
	"github.com/pkg/errors"
)

// Config holds Service's schema-migration tunable, sourced from spec.md
// §6's "schema.v1.snapshotInfo" key.
type Config struct {
	// V1MaxHeight is the highest height still written in the legacy V1
	// snapshot-info schema. A restore target at or below this height is
	// decoded with persist.DecodeSnapshotInfoV1 and migrated.
	V1MaxHeight externalapi.Height
	// HeightInterval is snapshot.snapshotHeightInterval, needed to derive
	// ownJoinedHeight (§4.9 step 4: "height - snapshotHeightInterval").
	HeightInterval externalapi.Height
}

// Service is C9.
type Service struct {
	backends  []model.CloudBackend
	disk      model.SnapshotDiskStore
	genesis   model.GenesisObservationReader
	persister model.LastMajorityStatePersister
	logger    model.Logger

	v1MaxHeight    externalapi.Height
	heightInterval externalapi.Height

	participatedInRollback bool
	lastSnapshotHeight     externalapi.Height
	ownJoinedHeight        externalapi.Height
}

// New returns a Service wired to its collaborators. backends is the
// ordered list C9 fails over across: spec.md §4.9 step 1 tries the head
// first, then falls back toward the tail.
func New(
	backends []model.CloudBackend,
	disk model.SnapshotDiskStore,
	genesis model.GenesisObservationReader,
	persister model.LastMajorityStatePersister,
	logger model.Logger,
	cfg Config,
) *Service {
	return &Service{
		backends:  backends,
		disk:      disk,
		genesis:   genesis,
		persister: persister,
		logger:    logger,

		v1MaxHeight:    cfg.V1MaxHeight,
		heightInterval: cfg.HeightInterval,
	}
}

// ParticipatedInRollback reports whether this node has ever completed a
// restore.
func (s *Service) ParticipatedInRollback() bool { return s.participatedInRollback }

// LastSnapshotHeight is the height of the most recently restored snapshot.
func (s *Service) LastSnapshotHeight() externalapi.Height { return s.lastSnapshotHeight }

// OwnJoinedHeight is the height this node is considered to have joined the
// active pool as of the most recent restore (§4.9 step 4: "ownJoinedHeight
// = height - snapshotHeightInterval").
func (s *Service) OwnJoinedHeight() externalapi.Height { return s.ownJoinedHeight }

// RestoreAt implements model.RollbackService.
func (s *Service) RestoreAt(ctx context.Context, height externalapi.Height, hash externalapi.Hash) (*externalapi.SnapshotInfo, error) {
	stored, info, err := s.readFromCloud(ctx, height, hash)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, height, hash, stored, info)
}

// RestoreHighest implements model.RollbackService: it lists every backend
// for the highest (height, hash) pair it can find and restores that one.
func (s *Service) RestoreHighest(ctx context.Context) (*externalapi.SnapshotInfo, error) {
	height, hash, err := s.findHighest(ctx)
	if err != nil {
		return nil, err
	}
	return s.RestoreAt(ctx, height, hash)
}

// findHighest lists every backend under the shared snapshot prefix and
// returns the highest height for which both a snapshot and an info blob
// were found, per the "cloud layout: <height>-<hash> naming" of spec.md
// §6. A backend that fails to list is skipped, not fatal: the remaining
// backends still get a chance.
func (s *Service) findHighest(ctx context.Context) (externalapi.Height, externalapi.Hash, error) {
	type candidate struct {
		height      externalapi.Height
		hash        externalapi.Hash
		hasSnapshot bool
		hasInfo     bool
	}
	byKey := make(map[string]*candidate)

	var lastErr error
	for _, backend := range s.backends {
		keys, err := backend.ListKeysWithPrefix(ctx, "snapshots/")
		if err != nil {
			lastErr = err
			s.logger.Warnf("rollback: %s: failed to list snapshots: %s", backend.Name(), err)
			continue
		}
		for _, key := range keys {
			height, hash, kind, ok := persist.ParseSnapshotObjectKey(key)
			if !ok {
				continue
			}
			id := hash.String()
			c, found := byKey[id]
			if !found {
				c = &candidate{height: height, hash: hash}
				byKey[id] = c
			}
			switch kind {
			case "snapshot":
				c.hasSnapshot = true
			case "info":
				c.hasInfo = true
			}
		}
	}

	complete := make([]*candidate, 0, len(byKey))
	for _, c := range byKey {
		if c.hasSnapshot && c.hasInfo {
			complete = append(complete, c)
		}
	}
	if len(complete) == 0 {
		if lastErr != nil {
			return 0, externalapi.Hash{}, &consensuserrors.CloudReadError{Backend: "all", Cause: lastErr}
		}
		return 0, externalapi.Hash{}, errors.New("rollback: no complete snapshot found in any cloud backend")
	}
	sort.Slice(complete, func(i, j int) bool { return complete[i].height > complete[j].height })
	best := complete[0]
	return best.height, best.hash, nil
}

// readFromCloud implements §4.9 step 1: try each backend head to tail,
// deserializing the legacy V1 shape when height falls at or below the
// configured migration threshold.
func (s *Service) readFromCloud(ctx context.Context, height externalapi.Height, hash externalapi.Hash) (*externalapi.StoredSnapshot, *externalapi.SnapshotInfo, error) {
	snapshotKey := persist.SnapshotObjectKey(height, hash)
	infoKey := persist.SnapshotInfoObjectKey(height, hash)

	var lastErr error
	for _, backend := range s.backends {
		snapshotBytes, err := backend.GetObject(ctx, snapshotKey)
		if err != nil {
			lastErr = &consensuserrors.CloudReadError{Backend: backend.Name(), Cause: err}
			s.logger.Warnf("rollback: %s", lastErr)
			continue
		}
		infoBytes, err := backend.GetObject(ctx, infoKey)
		if err != nil {
			lastErr = &consensuserrors.CloudReadError{Backend: backend.Name(), Cause: err}
			s.logger.Warnf("rollback: %s", lastErr)
			continue
		}

		stored, err := persist.DecodeStoredSnapshot(snapshotBytes)
		if err != nil {
			lastErr = &consensuserrors.MigrationError{Cause: err}
			continue
		}

		var info *externalapi.SnapshotInfo
		if height <= s.v1MaxHeight {
			info, err = persist.DecodeSnapshotInfoV1(infoBytes)
		} else {
			info, err = persist.DecodeSnapshotInfo(infoBytes)
		}
		if err != nil {
			lastErr = &consensuserrors.MigrationError{Cause: err}
			continue
		}
		return stored, info, nil
	}
	return nil, nil, lastErr
}

// apply implements §4.9 steps 2-4.
func (s *Service) apply(ctx context.Context, height externalapi.Height, hash externalapi.Hash, stored *externalapi.StoredSnapshot, info *externalapi.SnapshotInfo) (*externalapi.SnapshotInfo, error) {
	genesis, err := s.genesis.ReadGenesisObservation(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "rollback: failed to read genesis observation")
	}

	if err := validateBalances(info); err != nil {
		return nil, err
	}

	acceptGenesis(info, genesis)

	if err := s.disk.PutSnapshot(hash, stored); err != nil {
		return nil, &consensuserrors.SnapshotIOError{Cause: err}
	}
	if err := s.disk.PutSnapshotInfo(hash, info); err != nil {
		return nil, &consensuserrors.SnapshotIOError{Cause: err}
	}

	if err := s.persister.PersistLastMajorityState(ctx, height, hash); err != nil {
		return nil, errors.Wrap(err, "rollback: failed to persist last majority state")
	}

	s.participatedInRollback = true
	s.lastSnapshotHeight = height
	s.ownJoinedHeight = height - s.heightInterval

	return info, nil
}

// validateBalances implements §4.9 step 3. Balances travel the wire as
// uint64 (there is no signed wire type for a quantity that is never
// legitimately negative), so a restored balance above int64's range is
// the representation of what would have been a negative value before
// serialization, and is rejected the same way.
func validateBalances(info *externalapi.SnapshotInfo) error {
	for addr, cache := range info.AddressCacheData {
		if cache.Balance > math.MaxInt64 {
			return &consensuserrors.InvalidBalancesError{Address: addr}
		}
	}
	return nil
}

// acceptGenesis seeds any address present in the genesis observation but
// absent from the restored balance cache. Addresses the restored snapshot
// already tracks keep their restored balance: genesis only backfills
// accounts the restored interval never saw a transaction for.
func acceptGenesis(info *externalapi.SnapshotInfo, genesis *model.GenesisObservation) {
	if info.AddressCacheData == nil {
		info.AddressCacheData = make(map[externalapi.Address]*externalapi.AddressCache, len(genesis.GenesisBalances))
	}
	for addr, balance := range genesis.GenesisBalances {
		if _, ok := info.AddressCacheData[addr]; !ok {
			info.AddressCacheData[addr] = &externalapi.AddressCache{Balance: balance}
		}
	}
}

var _ model.RollbackService = (*Service)(nil)
