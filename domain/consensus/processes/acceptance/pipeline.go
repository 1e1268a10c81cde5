// Package acceptance implements C5, the Checkpoint Acceptance Pipeline:
// the single-writer admission gate for the checkpoint block DAG.
//
// Grounded structurally on daglabs-btcd/domain/blockprocessor's
// constructor-injected collaborator list (store, txChain, tip, tracker,
// verifier, peer client, logger), but with real bodies: the teacher's
// ValidateAndInsertBlock returns (nil, nil) as a stub; this implements
// the full spec.md §4.5 steps 1-10.
package acceptance

import (
	"context"
	"sync"

	"github.com/jet-cloud/constellation/domain/consensus/consensuserrors"
	"github.com/jet-cloud/constellation/domain/consensus/model"
	"github.com/jet-cloud/constellation/domain/consensus/model/externalapi"
)

// Pipeline is C5.
type Pipeline struct {
	store      model.CheckpointStore
	tipService model.TipService
	txChain    model.TransactionChainService
	tracker    model.AcceptedCbTracker
	verifier   model.Verifier
	peerClient model.PeerClient
	logger     model.Logger
	maxDepth   int

	acceptLock sync.Mutex

	pendingMu sync.Mutex
	pending   map[externalapi.Hash]struct{}

	syncMu     sync.Mutex
	syncing    bool
	syncBuffer []*externalapi.CheckpointCache
}

// New returns a Pipeline wired to its collaborators. maxDepth bounds the
// recursive parent-resolution fetch of step 5 (spec.md default 10).
func New(
	store model.CheckpointStore,
	tipService model.TipService,
	txChain model.TransactionChainService,
	tracker model.AcceptedCbTracker,
	verifier model.Verifier,
	peerClient model.PeerClient,
	logger model.Logger,
	maxDepth int,
) *Pipeline {
	return &Pipeline{
		store:      store,
		tipService: tipService,
		txChain:    txChain,
		tracker:    tracker,
		verifier:   verifier,
		peerClient: peerClient,
		logger:     logger,
		maxDepth:   maxDepth,
		pending:    make(map[externalapi.Hash]struct{}),
	}
}

// SetSyncing toggles step 2's DownloadCompleteAwaitingFinalSync gate. While
// syncing is true, Accept buffers incoming caches instead of admitting
// them; DrainSyncBuffer returns the buffered backlog for replay.
func (p *Pipeline) SetSyncing(syncing bool) {
	p.syncMu.Lock()
	defer p.syncMu.Unlock()
	p.syncing = syncing
}

// DrainSyncBuffer returns and clears whatever Accept buffered while
// syncing was set, so the caller can replay it through Accept once sync
// completes.
func (p *Pipeline) DrainSyncBuffer() []*externalapi.CheckpointCache {
	p.syncMu.Lock()
	defer p.syncMu.Unlock()
	buffered := p.syncBuffer
	p.syncBuffer = nil
	return buffered
}

// Accept implements model.AcceptancePipeline.
func (p *Pipeline) Accept(ctx context.Context, cache *externalapi.CheckpointCache) (*externalapi.CheckpointCache, error) {
	// Step 1.
	if cache == nil || cache.Block == nil {
		return nil, &consensuserrors.MissingCheckpointBlockError{}
	}
	block := cache.Block

	// Step 2.
	p.syncMu.Lock()
	if p.syncing {
		p.syncBuffer = append(p.syncBuffer, cache)
		p.syncMu.Unlock()
		return nil, nil
	}
	p.syncMu.Unlock()

	// Step 3.
	p.pendingMu.Lock()
	if _, inFlight := p.pending[block.BaseHash]; inFlight {
		p.pendingMu.Unlock()
		return nil, &consensuserrors.PendingAcceptanceError{BaseHash: block.BaseHash}
	}
	p.pending[block.BaseHash] = struct{}{}
	p.pendingMu.Unlock()
	defer func() {
		// Step 10: remove from pending-accept set on any terminal outcome.
		p.pendingMu.Lock()
		delete(p.pending, block.BaseHash)
		p.pendingMu.Unlock()
	}()

	// Step 4.
	if p.store.Contains(block.SoeHash) {
		return nil, &consensuserrors.AlreadyStoredError{SoeHash: block.SoeHash}
	}

	// Step 5: resolve parents, recursively accepting anything missing.
	if err := p.resolveParents(ctx, block, p.maxDepth); err != nil {
		return nil, err
	}

	// Step 6: conflict check.
	var conflicting []externalapi.Hash
	for _, tx := range block.Transactions {
		if owner, ok := p.store.TransactionOwner(tx.Hash); ok && !owner.Equal(&block.SoeHash) {
			conflicting = append(conflicting, tx.Hash)
		}
	}
	if len(conflicting) > 0 {
		p.logger.Warnf("checkpoint block %s conflicts on %d transactions", block.SoeHash, len(conflicting))
		return nil, &consensuserrors.TipConflictError{ConflictingTxs: conflicting}
	}

	// Step 7: structural validation.
	if invalid := p.structurallyInvalidTxs(block); len(invalid) > 0 {
		return nil, &consensuserrors.ContainsInvalidTransactionsError{TxsToExclude: invalid}
	}
	if !p.signaturesValid(block) {
		return nil, &consensuserrors.ContainsInvalidTransactionsError{TxsToExclude: flattenHashes(block.TransactionHashes())}
	}

	// Step 8: compute height.
	height, ok := p.store.CalculateHeight(block)
	if !ok {
		return nil, &consensuserrors.MissingParentsError{SoeHash: block.SoeHash}
	}

	// Step 9: single-writer admission.
	p.acceptLock.Lock()
	defer p.acceptLock.Unlock()

	if p.store.Contains(block.SoeHash) {
		return nil, &consensuserrors.AlreadyStoredError{SoeHash: block.SoeHash}
	}

	// Step 6, re-checked: a concurrent Accept for a different block sharing
	// one of these transactions may have committed (and called store.Put,
	// which records ownership) between the step-6 check above and this
	// goroutine reaching acceptLock. spec.md §5 resolves that race by
	// acceptLock acquisition order: whichever Accept gets here second loses
	// with TipConflictError, not a txChain apply failure.
	var lateConflicts []externalapi.Hash
	for _, tx := range block.Transactions {
		if owner, ok := p.store.TransactionOwner(tx.Hash); ok && !owner.Equal(&block.SoeHash) {
			lateConflicts = append(lateConflicts, tx.Hash)
		}
	}
	if len(lateConflicts) > 0 {
		p.logger.Warnf("checkpoint block %s lost the acceptLock race on %d transactions", block.SoeHash, len(lateConflicts))
		return nil, &consensuserrors.TipConflictError{ConflictingTxs: lateConflicts}
	}

	for _, tx := range block.Transactions {
		if err := p.txChain.ApplyAfterAcceptance(tx); err != nil {
			return nil, err
		}
	}

	cache.Height = height
	if cache.Children == nil {
		cache.Children = externalapi.NewHashSet()
	}
	p.store.Put(cache)
	p.linkAsChild(block)
	p.tipService.Update(block)
	p.tracker.Append(block.BaseHash)

	p.logger.Debugf("accepted checkpoint block %s at height %d", block.SoeHash, height)
	return cache, nil
}

// resolveParents fetches each unknown parent from peers and accepts it
// recursively, bounded by depth.
func (p *Pipeline) resolveParents(ctx context.Context, block *externalapi.CheckpointBlock, depth int) error {
	var zero externalapi.Hash
	for _, parent := range block.Parents {
		if parent.SoeHash.Equal(&zero) {
			continue
		}
		if p.store.Contains(parent.SoeHash) {
			continue
		}
		if depth <= 0 {
			return &consensuserrors.MissingParentsError{SoeHash: parent.SoeHash}
		}
		if p.peerClient == nil {
			return &consensuserrors.MissingParentsError{SoeHash: parent.SoeHash}
		}

		parentBlock, err := p.fetchFromAnyPeer(ctx, parent.SoeHash)
		if err != nil || parentBlock == nil {
			return &consensuserrors.MissingParentsError{SoeHash: parent.SoeHash}
		}
		if err := p.resolveParents(ctx, parentBlock, depth-1); err != nil {
			return err
		}
		if _, err := p.Accept(ctx, &externalapi.CheckpointCache{Block: parentBlock}); err != nil {
			if !isInformational(err) {
				return err
			}
		}
	}
	return nil
}

// fetchFromAnyPeer is a seam for a future multi-peer fan-out; the single
// PeerClient collaborator is asked directly since spec.md §1 scopes peer
// selection policy out of this component.
func (p *Pipeline) fetchFromAnyPeer(ctx context.Context, soeHash externalapi.Hash) (*externalapi.CheckpointBlock, error) {
	return p.peerClient.RequestCheckpointBlock(ctx, nil, soeHash)
}

func isInformational(err error) bool {
	switch err.(type) {
	case *consensuserrors.AlreadyStoredError, *consensuserrors.PendingAcceptanceError:
		return true
	default:
		return false
	}
}

// structurallyInvalidTxs validates each sender's intra-block ordinal
// chain, starting from the chain's current accepted head.
func (p *Pipeline) structurallyInvalidTxs(block *externalapi.CheckpointBlock) []externalapi.Hash {
	heads := make(map[externalapi.Address]externalapi.TxRef)
	var invalid []externalapi.Hash
	for _, tx := range block.Transactions {
		head, ok := heads[tx.Sender]
		if !ok {
			head = p.txChain.GetLastAcceptedTransactionRef(tx.Sender)
		}
		if !tx.LastTxRef.Equal(head) || tx.Ordinal != head.Ordinal+1 {
			invalid = append(invalid, tx.Hash)
			continue
		}
		heads[tx.Sender] = externalapi.TxRef{Hash: tx.Hash, Ordinal: tx.Ordinal}
	}
	return invalid
}

// signaturesValid verifies every claimed signature over the block's base
// hash.
func (p *Pipeline) signaturesValid(block *externalapi.CheckpointBlock) bool {
	if len(block.Signatures) == 0 {
		return block.IsGenesis()
	}
	for _, sig := range block.Signatures {
		if !p.verifier.Verify(block.BaseHash, sig) {
			return false
		}
	}
	return true
}

// linkAsChild records block as a child of each of its resolved parents, so
// CheckpointCache.Children stays accurate for callers that walk the DAG
// forward.
func (p *Pipeline) linkAsChild(block *externalapi.CheckpointBlock) {
	var zero externalapi.Hash
	for _, parent := range block.Parents {
		if parent.SoeHash.Equal(&zero) {
			continue
		}
		parentCache, ok := p.store.Lookup(parent.SoeHash)
		if !ok {
			continue
		}
		if parentCache.Children == nil {
			parentCache.Children = externalapi.NewHashSet()
		}
		parentCache.Children.Add(block.SoeHash)
		p.store.Put(parentCache)
	}
}

func flattenHashes(hashes []*externalapi.Hash) []externalapi.Hash {
	flat := make([]externalapi.Hash, len(hashes))
	for i, h := range hashes {
		flat[i] = *h
	}
	return flat
}

var _ model.AcceptancePipeline = (*Pipeline)(nil)
