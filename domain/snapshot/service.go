// Package snapshot implements C8, the periodic driver that atomically
// seals a height interval of accepted checkpoint blocks into a signed,
// hash-chained snapshot.
//
// Grounded structurally on daglabs-btcd/domain/blockdag's UTXO-diff
// pruning driver (domain/blockdag/dag.go's finality-point bookkeeping): a
// single owning struct behind one mutex, periodically invoked and
// self-healing on its own capacity violations, generalized here to the
// full precondition/commit-sequence contract of spec.md §4.8.
package snapshot

import (
	"context"
	"sort"
	"sync"

	"github.com/jet-cloud/constellation/domain/consensus/consensuserrors"
	"github.com/jet-cloud/constellation/domain/consensus/model"
	"github.com/jet-cloud/constellation/domain/consensus/model/externalapi"
	"github.com/jet-cloud/constellation/domain/consensus/utils/consensushashing"
	"github.com/jet-cloud/constellation/infrastructure/persist"
)

const bytesPerGiB = 1 << 30
const maxSnapshotPutRetries = 3

var unboundedHeight = externalapi.Height(^uint64(0))

// Config holds Service's interval, capacity and bootstrap tunables,
// sourced from spec.md §6's "snapshot.*" configuration keys.
type Config struct {
	HeightInterval              externalapi.Height
	HeightDelayInterval         externalapi.Height
	ActivePeersRotationInterval uint64
	MaxAcceptedCbHashesInMemory int
	// MinUsableBytes is precondition 3's disk floor. Zero defaults to the
	// spec's 1 GiB.
	MinUsableBytes uint64
	// InitialActiveFullNodeIds seeds nextActiveNodes.full before any real
	// snapshot exists (the "snapshotZero" bootstrap case).
	InitialActiveFullNodeIds []*externalapi.Id
	// StorageEnabled gates the best-effort cloud off-load after a local
	// seal succeeds (spec.md §6 "storage.enabled").
	StorageEnabled bool
	// CloudBackends is the ordered off-load target list, only consulted
	// when StorageEnabled is true.
	CloudBackends []model.CloudBackend
}

// Service is C8.
type Service struct {
	selfId     *externalapi.Id
	store      model.CheckpointStore
	tips       model.TipService
	tracker    model.AcceptedCbTracker
	pipeline   model.AcceptancePipeline
	disk       model.SnapshotDiskStore
	reputation model.ReputationScorer
	obsPool    model.PendingObservationPool
	signer     model.Signer
	clock      model.Clock
	logger     model.Logger

	heightInterval              externalapi.Height
	heightDelayInterval         externalapi.Height
	activePeersRotationInterval uint64
	maxAcceptedCbHashesInMemory int
	minUsableBytes              uint64
	initialActiveFullNodes      externalapi.IdSet
	storageEnabled              bool
	cloudBackends               []model.CloudBackend

	// attemptMu serializes AttemptSnapshot calls: spec.md §5 calls for "a
	// snapshot semaphore" preventing two concurrent seals.
	attemptMu sync.Mutex

	mu                   sync.Mutex
	lastSnapshotHeight   externalapi.Height
	lastStored           *externalapi.StoredSnapshot
	snapshotHashes       []externalapi.Hash
	totalAcceptedCbCount uint64
	balances             map[externalapi.Address]uint64
	lastAcceptedTxRef    map[externalapi.Address]externalapi.TxRef
	activeWindow         externalapi.ActiveBetweenHeights
	offline              externalapi.IdSet
}

// New returns a Service wired to its collaborators.
func New(
	selfId *externalapi.Id,
	store model.CheckpointStore,
	tips model.TipService,
	tracker model.AcceptedCbTracker,
	pipeline model.AcceptancePipeline,
	disk model.SnapshotDiskStore,
	reputation model.ReputationScorer,
	obsPool model.PendingObservationPool,
	signer model.Signer,
	clock model.Clock,
	logger model.Logger,
	cfg Config,
) *Service {
	minUsable := cfg.MinUsableBytes
	if minUsable == 0 {
		minUsable = bytesPerGiB
	}
	return &Service{
		selfId:                      selfId,
		store:                       store,
		tips:                        tips,
		tracker:                     tracker,
		pipeline:                    pipeline,
		disk:                        disk,
		reputation:                  reputation,
		obsPool:                     obsPool,
		signer:                      signer,
		clock:                       clock,
		logger:                      logger,
		heightInterval:              cfg.HeightInterval,
		heightDelayInterval:         cfg.HeightDelayInterval,
		activePeersRotationInterval: cfg.ActivePeersRotationInterval,
		maxAcceptedCbHashesInMemory: cfg.MaxAcceptedCbHashesInMemory,
		minUsableBytes:              minUsable,
		initialActiveFullNodes:      externalapi.NewIdSet(cfg.InitialActiveFullNodeIds...),
		storageEnabled:              cfg.StorageEnabled,
		cloudBackends:               cfg.CloudBackends,
		balances:                    make(map[externalapi.Address]uint64),
		lastAcceptedTxRef:           make(map[externalapi.Address]externalapi.TxRef),
		activeWindow:                externalapi.ActiveBetweenHeights{Joined: 0, Left: unboundedHeight},
		offline:                     externalapi.NewIdSet(),
	}
}

// SetActiveWindow records the height range across which this node has been
// continuously active in the facilitator pool, read back by precondition
// 2. Nothing in scope owns pool-membership bookkeeping end to end (spec.md
// §1 Non-goals), so the caller driving join/leave events is expected to
// keep this current.
func (s *Service) SetActiveWindow(window externalapi.ActiveBetweenHeights) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeWindow = window
}

// LastSnapshotHeight implements model.SnapshotService.
func (s *Service) LastSnapshotHeight() externalapi.Height {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSnapshotHeight
}

// CurrentSnapshot implements model.SnapshotService.
func (s *Service) CurrentSnapshot() *externalapi.StoredSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastStored.Clone()
}

// AttemptSnapshot implements model.SnapshotService.
func (s *Service) AttemptSnapshot(ctx context.Context) error {
	s.attemptMu.Lock()
	defer s.attemptMu.Unlock()

	s.mu.Lock()
	lastSnapshotHeight := s.lastSnapshotHeight
	prevStored := s.lastStored
	activeWindow := s.activeWindow
	s.mu.Unlock()

	nextHeightInterval := lastSnapshotHeight + s.heightInterval
	currentFull, currentLight := s.currentActiveNodes(prevStored)

	// Precondition 1.
	if !currentFull.Contains(s.selfId) {
		return &consensuserrors.NodeNotPartOfL0FacilitatorsPoolError{}
	}

	// Precondition 2.
	if nextHeightInterval < activeWindow.Joined || nextHeightInterval > activeWindow.Left {
		return &consensuserrors.ActiveBetweenHeightsConditionNotMetError{
			NextHeight: nextHeightInterval,
			Joined:     activeWindow.Joined,
			Left:       activeWindow.Left,
		}
	}

	// Precondition 3.
	usable, err := s.disk.UsableBytes()
	if err != nil {
		return &consensuserrors.SnapshotIOError{Cause: err}
	}
	if usable < s.minUsableBytes {
		return &consensuserrors.NotEnoughSpaceError{AvailableBytes: usable, RequiredBytes: s.minUsableBytes}
	}

	// Precondition 4: self-healing trim on violation.
	pendingBaseHashes := s.tracker.Snapshot()
	if len(pendingBaseHashes) > s.maxAcceptedCbHashesInMemory {
		s.tracker.TrimTo(100)
		return &consensuserrors.MaxCbHashesInMemoryError{Count: len(pendingBaseHashes), Max: s.maxAcceptedCbHashesInMemory}
	}

	// Precondition 5.
	if len(pendingBaseHashes) < 1 {
		return &consensuserrors.NoAcceptedCbsSinceSnapshotError{}
	}

	// Precondition 6.
	minTipHeight, ok := s.tips.MinTipHeight(s.store)
	requiredMinHeight := nextHeightInterval + s.heightDelayInterval
	if !ok || minTipHeight <= requiredMinHeight {
		return &consensuserrors.HeightIntervalConditionNotMetError{
			MinTipHeight:      minTipHeight,
			RequiredMinHeight: requiredMinHeight,
		}
	}

	// Precondition 7: resolve the tracked base hashes to cache entries and
	// keep only those within the height window being sealed.
	allBlocks := make([]*externalapi.CheckpointCache, 0, len(pendingBaseHashes))
	for _, baseHash := range pendingBaseHashes {
		cache, found := s.store.LookupByBaseHash(baseHash)
		if !found {
			continue
		}
		if cache.Height > lastSnapshotHeight && cache.Height <= nextHeightInterval {
			allBlocks = append(allBlocks, cache)
		}
	}
	if len(allBlocks) == 0 {
		return &consensuserrors.NoBlocksWithinHeightIntervalError{From: lastSnapshotHeight, To: nextHeightInterval}
	}
	sort.Slice(allBlocks, func(i, j int) bool {
		return lessHash(allBlocks[i].Block.BaseHash, allBlocks[j].Block.BaseHash)
	})

	s.logger.Infof("snapshot: sealing %d checkpoint blocks through height %d", len(allBlocks), nextHeightInterval)

	// Block new admissions from racing the sweep below; replay whatever
	// arrives meanwhile once the seal either commits or aborts.
	s.pipeline.SetSyncing(true)
	defer func() {
		s.pipeline.SetSyncing(false)
		for _, buffered := range s.pipeline.DrainSyncBuffer() {
			if _, acceptErr := s.pipeline.Accept(ctx, buffered); acceptErr != nil {
				s.logger.Warnf("snapshot: replaying admission buffered during seal failed: %s", acceptErr)
			}
		}
	}()

	soeHashes := make([]externalapi.Hash, len(allBlocks))
	baseHashes := make([]externalapi.Hash, len(allBlocks))
	for i, cache := range allBlocks {
		soeHashes[i] = cache.Block.SoeHash
		baseHashes[i] = cache.Block.BaseHash
	}

	nextActiveNodes := s.computeNextActiveNodes(nextHeightInterval, prevStored, allBlocks, currentFull, currentLight)
	reputationTable := s.computeReputationTable(nextActiveNodes, allBlocks)

	var lastHash externalapi.Hash
	if prevStored != nil {
		lastHash = prevStored.Snapshot.Hash
	}
	nextSnapshot := &externalapi.Snapshot{
		LastSnapshot:     lastHash,
		CheckpointBlocks: baseHashes,
		PublicReputation: reputationTable,
		NextActiveNodes:  nextActiveNodes,
	}
	nextSnapshot.Hash = *consensushashing.SnapshotHash(nextSnapshot)

	// (a) persist address balances and tips via acceptSnapshot.
	s.applyBalances(allBlocks)
	tips := s.snapshotTips()

	// (b) increment total CB counter.
	s.mu.Lock()
	s.totalAcceptedCbCount += uint64(len(allBlocks))
	s.mu.Unlock()

	// (c) remove the sealed blocks from C4 and their SOE entries.
	s.store.BatchRemove(soeHashes)

	// (d) set storedSnapshot := {nextSnapshot, allBlocks}.
	stored := &externalapi.StoredSnapshot{Snapshot: nextSnapshot, CheckpointCaches: allBlocks}

	// (e) advance lastSnapshotHeight.
	s.mu.Lock()
	s.lastSnapshotHeight = nextHeightInterval
	s.lastStored = stored
	s.snapshotHashes = append(s.snapshotHashes, nextSnapshot.Hash)
	s.mu.Unlock()

	// (f) remove sealed hashes from acceptedCBSinceSnapshot.
	s.tracker.RemoveAll(baseHashes)

	// (g) serialize StoredSnapshot to local disk, honoring the disk-limit
	// policy with up to 3 retries, deleting old snapshots between them.
	if err := s.putSnapshotWithRetry(nextSnapshot.Hash, stored); err != nil {
		return &consensuserrors.SnapshotIOError{Cause: err}
	}

	// (h) serialize SnapshotInfo.
	info := s.buildSnapshotInfo(stored, tips)
	if err := s.disk.PutSnapshotInfo(nextSnapshot.Hash, info); err != nil {
		return &consensuserrors.SnapshotIOError{Cause: err}
	}

	// Best-effort cloud off-load, gated on storage.enabled. Local disk has
	// already been sealed by this point, so a backend failure here is logged
	// and swallowed rather than failing the snapshot outright.
	if s.storageEnabled {
		s.offloadToCloud(ctx, nextHeightInterval, nextSnapshot.Hash, stored, info)
	}

	// (i) mark leaving peers offline; remove offline peers.
	s.markLeavingPeersOffline(currentFull, currentLight, nextActiveNodes)

	// (j) emit active-pool observations for all known peers.
	s.emitActivePoolObservations(nextActiveNodes, currentFull, currentLight)

	return nil
}

func (s *Service) currentActiveNodes(prevStored *externalapi.StoredSnapshot) (externalapi.IdSet, externalapi.IdSet) {
	if prevStored == nil {
		return s.initialActiveFullNodes.Clone(), externalapi.NewIdSet()
	}
	nodes := prevStored.Snapshot.NextActiveNodes
	return nodes.Full.Clone(), nodes.Light.Clone()
}

// computeNextActiveNodes implements spec.md §4.8's nextActiveNodes rule.
// Neither spec.md nor the original component set carries a dedicated
// registry of which known peers are even candidates for full vs. light
// membership, so each pool's own current membership (plus, for full
// membership, whoever signed a block in this interval) stands in as the
// candidate set reselected from by reputation.
func (s *Service) computeNextActiveNodes(
	nextHeightInterval externalapi.Height,
	prevStored *externalapi.StoredSnapshot,
	allBlocks []*externalapi.CheckpointCache,
	currentFull, currentLight externalapi.IdSet,
) externalapi.ActiveNodes {
	rotationSpan := uint64(s.heightInterval) * s.activePeersRotationInterval
	if rotationSpan > 0 && uint64(nextHeightInterval)%rotationSpan == 0 {
		fullCandidates := currentFull.Clone()
		for _, id := range blockSigners(allBlocks).Slice() {
			fullCandidates.Add(id)
		}
		return externalapi.ActiveNodes{
			Full:  s.topByReputation(fullCandidates, 3),
			Light: s.topByReputation(currentLight, 3),
		}
	}
	if prevStored == nil {
		return externalapi.ActiveNodes{Full: s.initialActiveFullNodes.Clone(), Light: externalapi.NewIdSet()}
	}
	return prevStored.Snapshot.NextActiveNodes.Clone()
}

func (s *Service) topByReputation(candidates externalapi.IdSet, n int) externalapi.IdSet {
	ids := candidates.Slice()
	sort.Slice(ids, func(i, j int) bool {
		ri, rj := s.reputation.PublicReputation(ids[i]), s.reputation.PublicReputation(ids[j])
		if ri != rj {
			return ri > rj
		}
		return ids[i].String() < ids[j].String()
	})
	if len(ids) > n {
		ids = ids[:n]
	}
	return externalapi.NewIdSet(ids...)
}

func (s *Service) computeReputationTable(nodes externalapi.ActiveNodes, allBlocks []*externalapi.CheckpointCache) map[string]float64 {
	universe := externalapi.NewIdSet()
	for _, id := range nodes.Full.Slice() {
		universe.Add(id)
	}
	for _, id := range nodes.Light.Slice() {
		universe.Add(id)
	}
	for _, id := range blockSigners(allBlocks).Slice() {
		universe.Add(id)
	}
	table := make(map[string]float64, len(universe))
	for _, id := range universe.Slice() {
		table[id.String()] = s.reputation.PublicReputation(id)
	}
	return table
}

func blockSigners(allBlocks []*externalapi.CheckpointCache) externalapi.IdSet {
	set := externalapi.NewIdSet()
	for _, cache := range allBlocks {
		for _, id := range cache.Block.SignerIds().Slice() {
			set.Add(id)
		}
	}
	return set
}

// applyBalances replays the sealed blocks' transactions into the running
// ledger. Fees are treated as burned rather than credited to any
// recipient: spec.md doesn't name a fee-recipient address, and a burn is
// the simplest rule that can't silently invent one (see DESIGN.md).
func (s *Service) applyBalances(allBlocks []*externalapi.CheckpointCache) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cache := range allBlocks {
		for _, tx := range cache.Block.Transactions {
			debit := tx.Amount
			if tx.HasFee {
				debit += tx.Fee
			}
			s.balances[tx.Sender] -= debit
			s.balances[tx.Receiver] += tx.Amount
			s.lastAcceptedTxRef[tx.Sender] = externalapi.TxRef{Hash: tx.Hash, Ordinal: tx.Ordinal}
		}
	}
}

func (s *Service) snapshotTips() map[externalapi.Hash]*externalapi.TipData {
	tips := s.tips.Tips()
	out := make(map[externalapi.Hash]*externalapi.TipData, len(tips))
	for _, tip := range tips {
		out[tip.SoeHash] = tip.Clone()
	}
	return out
}

func (s *Service) putSnapshotWithRetry(hash externalapi.Hash, stored *externalapi.StoredSnapshot) error {
	var lastErr error
	for attempt := 0; attempt < maxSnapshotPutRetries; attempt++ {
		if err := s.disk.PutSnapshot(hash, stored); err == nil {
			return nil
		} else {
			lastErr = err
		}

		s.mu.Lock()
		var oldest externalapi.Hash
		haveOldest := len(s.snapshotHashes) > 1
		if haveOldest {
			oldest = s.snapshotHashes[0]
			s.snapshotHashes = s.snapshotHashes[1:]
		}
		s.mu.Unlock()

		if !haveOldest {
			break
		}
		if err := s.disk.DeleteSnapshot(oldest); err != nil {
			s.logger.Warnf("snapshot: failed deleting %s to reclaim disk space: %s", oldest, err)
		}
	}
	return lastErr
}

// offloadToCloud uploads the sealed snapshot and its info blob to every
// configured backend in order, under the key scheme C9 discovers snapshots
// by (persist.SnapshotObjectKey / SnapshotInfoObjectKey). A backend that
// fails to encode or upload only gets a warning: the seal already succeeded
// locally, and the remaining backends and the next interval's off-load still
// get a chance.
func (s *Service) offloadToCloud(ctx context.Context, height externalapi.Height, hash externalapi.Hash, stored *externalapi.StoredSnapshot, info *externalapi.SnapshotInfo) {
	snapshotBytes, err := persist.EncodeStoredSnapshot(stored)
	if err != nil {
		s.logger.Warnf("snapshot: failed to encode snapshot %s for cloud off-load: %s", hash, err)
		return
	}
	infoBytes, err := persist.EncodeSnapshotInfo(info)
	if err != nil {
		s.logger.Warnf("snapshot: failed to encode snapshot info %s for cloud off-load: %s", hash, err)
		return
	}

	snapshotKey := persist.SnapshotObjectKey(height, hash)
	infoKey := persist.SnapshotInfoObjectKey(height, hash)

	for _, backend := range s.cloudBackends {
		if err := backend.PutObject(ctx, snapshotKey, snapshotBytes); err != nil {
			s.logger.Warnf("snapshot: %s: failed to off-load snapshot %s: %s", backend.Name(), hash, err)
			continue
		}
		if err := backend.PutObject(ctx, infoKey, infoBytes); err != nil {
			s.logger.Warnf("snapshot: %s: failed to off-load snapshot info %s: %s", backend.Name(), hash, err)
		}
	}
}

func (s *Service) buildSnapshotInfo(stored *externalapi.StoredSnapshot, tips map[externalapi.Hash]*externalapi.TipData) *externalapi.SnapshotInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := &externalapi.SnapshotInfo{
		Snapshot:                stored,
		AcceptedCbSinceSnapshot: s.tracker.Snapshot(),
		LastSnapshotHeight:      s.lastSnapshotHeight,
		SnapshotHashes:          append([]externalapi.Hash{}, s.snapshotHashes...),
		Tips:                    tips,
		AddressCacheData:        make(map[externalapi.Address]*externalapi.AddressCache, len(s.balances)),
		LastAcceptedTxRef:       make(map[externalapi.Address]externalapi.TxRef, len(s.lastAcceptedTxRef)),
	}
	for addr, balance := range s.balances {
		info.AddressCacheData[addr] = &externalapi.AddressCache{Balance: balance}
	}
	for addr, ref := range s.lastAcceptedTxRef {
		info.LastAcceptedTxRef[addr] = ref
	}
	return info
}

func (s *Service) markLeavingPeersOffline(prevFull, prevLight externalapi.IdSet, next externalapi.ActiveNodes) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range prevFull.Slice() {
		if !next.Full.Contains(id) {
			s.offline.Add(id)
		}
	}
	for _, id := range prevLight.Slice() {
		if !next.Light.Contains(id) {
			s.offline.Add(id)
		}
	}
	for _, id := range next.Full.Slice() {
		s.offline.Remove(id)
	}
	for _, id := range next.Light.Slice() {
		s.offline.Remove(id)
	}
}

func (s *Service) emitActivePoolObservations(next externalapi.ActiveNodes, prevFull, prevLight externalapi.IdSet) {
	known := externalapi.NewIdSet()
	for _, id := range prevFull.Slice() {
		known.Add(id)
	}
	for _, id := range prevLight.Slice() {
		known.Add(id)
	}
	for _, id := range next.Full.Slice() {
		known.Add(id)
	}
	for _, id := range next.Light.Slice() {
		known.Add(id)
	}

	now := s.clock.Now()
	for _, peer := range known.Slice() {
		kind := externalapi.EventNodeNotMemberOfActivePool
		if next.Full.Contains(peer) || next.Light.Contains(peer) {
			kind = externalapi.EventNodeMemberOfActivePool
		}
		obs := &externalapi.Observation{
			ObserverId:   s.selfId,
			SubjectId:    peer,
			EventKind:    kind,
			EpochSeconds: now,
		}
		obs.Hash = *consensushashing.ObservationHash(obs)
		sig, err := s.signer.Sign(obs.Hash)
		if err != nil {
			s.logger.Warnf("snapshot: failed signing active-pool observation for %s: %s", peer, err)
			continue
		}
		obs.Signature = sig.Signature
		s.obsPool.Put(&externalapi.ObservationCacheData{Observation: obs, Status: externalapi.StatusPending})
	}
}

func lessHash(a, b externalapi.Hash) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

var _ model.SnapshotService = (*Service)(nil)
