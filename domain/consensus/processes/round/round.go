// Package round implements C6, the Round State Machine: one instance per
// active RoundId driving a three-phase proposal/union/selection protocol
// to completion.
//
// Grounded structurally on daglabs-btcd/app/protocol/flows/blockrelay's
// "Context interface embedded in a flow struct" pattern
// (handle_relay_invs.go's handleRelayInvsFlow embeds RelayInvsContext so
// the flow gets its collaborators for free); here RoundContext plays the
// same role (domain/consensus/model/interface_round.go), and Round embeds
// it the same way. updateSemaphore is the teacher's per-round single
// mutex equivalent (spec.md §4.6, §5): every state mutation across the
// three proposal maps goes through it.
package round

import (
	"context"
	"sort"
	"sync"

	"github.com/jet-cloud/constellation/app/appmessage"
	"github.com/jet-cloud/constellation/domain/consensus/consensuserrors"
	"github.com/jet-cloud/constellation/domain/consensus/model"
	"github.com/jet-cloud/constellation/domain/consensus/model/externalapi"
	"github.com/jet-cloud/constellation/domain/consensus/utils/consensushashing"
)

// Round is C6.
type Round struct {
	model.RoundContext
	data *externalapi.RoundData

	maxTransactionThreshold int
	maxObservationThreshold int

	updateSemaphore sync.Mutex
	stage           externalapi.ConsensusStage
	finished        bool

	consensusDataProposals   map[string]*externalapi.ConsensusDataProposal
	checkpointBlockProposals map[string]*externalapi.UnionBlockProposal
	selectedCheckpointBlocks map[string]*externalapi.SelectedUnionBlock

	selfIdStr string
}

// New returns a Round ready to be driven through its three phases. data
// must already carry the two tip parent references and facilitator set
// the round was created with (spec.md §4.6 "RoundData... Immutable for a
// round's lifetime").
func New(ctx model.RoundContext, data *externalapi.RoundData, maxTransactionThreshold, maxObservationThreshold int) *Round {
	return &Round{
		RoundContext:             ctx,
		data:                     data,
		maxTransactionThreshold:  maxTransactionThreshold,
		maxObservationThreshold:  maxObservationThreshold,
		stage:                    externalapi.StageStarting,
		consensusDataProposals:   make(map[string]*externalapi.ConsensusDataProposal),
		checkpointBlockProposals: make(map[string]*externalapi.UnionBlockProposal),
		selectedCheckpointBlocks: make(map[string]*externalapi.SelectedUnionBlock),
		selfIdStr:                ctx.SelfId().String(),
	}
}

// RoundId implements model.RoundStateMachine.
func (r *Round) RoundId() externalapi.RoundId { return r.data.RoundId }

// Stage implements model.RoundStateMachine.
func (r *Round) Stage() externalapi.ConsensusStage {
	r.updateSemaphore.Lock()
	defer r.updateSemaphore.Unlock()
	return r.stage
}

// StartConsensusDataProposal implements model.RoundStateMachine: the self
// phase-1 action of spec.md §4.6.
func (r *Round) StartConsensusDataProposal(ctx context.Context) error {
	txs := r.PendingTransactionPool().PullForConsensus(r.maxTransactionThreshold)
	obs := r.PendingObservationPool().PullForConsensus(r.maxObservationThreshold)

	proposal := &externalapi.ConsensusDataProposal{
		RoundId:      r.data.RoundId,
		Facilitator:  r.SelfId(),
		Transactions: txs,
		Observations: obs,
		Messages:     r.data.Messages,
	}

	if err := r.Gossip().Broadcast(ctx, appmessage.NewConsensusDataProposalMessage(proposal)); err != nil {
		r.Logger().Warnf("round %s: failed broadcasting own data proposal: %s", r.data.RoundId, err)
	}
	return r.AddConsensusDataProposal(ctx, proposal)
}

// AddConsensusDataProposal implements model.RoundStateMachine.
func (r *Round) AddConsensusDataProposal(ctx context.Context, p *externalapi.ConsensusDataProposal) error {
	r.updateSemaphore.Lock()

	if r.stage.AtLeast(externalapi.StageWaitingForBlockProposals) {
		r.updateSemaphore.Unlock()
		return &consensuserrors.PreviousStageError{Stage: r.stage}
	}
	if r.stage == externalapi.StageStarting {
		r.stage = externalapi.StageWaitingForProposals
	}

	r.rememberUnknownData(p.Transactions, p.Observations)
	r.mergeConsensusDataProposal(p)

	complete := r.phase1CompleteLocked()
	if complete {
		r.stage = externalapi.StageWaitingForBlockProposals
	}
	r.updateSemaphore.Unlock()

	if complete {
		return r.union(ctx)
	}
	return nil
}

// rememberUnknownData persists any tx/obs the round hasn't seen yet into
// C2/C3 as Unknown, per spec.md §4.6: "Persist unknown txs/obs into C2/C3
// ... so they become reachable."
func (r *Round) rememberUnknownData(txs []*externalapi.Transaction, obs []*externalapi.Observation) {
	pool := r.PendingTransactionPool()
	for _, tx := range txs {
		if !pool.Contains(tx.Hash) {
			pool.Put(&externalapi.TransactionCacheData{Transaction: tx, Status: externalapi.StatusUnknown})
		}
	}
	obsPool := r.PendingObservationPool()
	for _, ob := range obs {
		if !obsPool.Contains(ob.Hash) {
			obsPool.Put(&externalapi.ObservationCacheData{Observation: ob, Status: externalapi.StatusUnknown})
		}
	}
}

// mergeConsensusDataProposal unions p into any existing proposal from the
// same facilitator, supporting idempotent re-delivery (spec.md §4.6:
// "Merge by facilitator... union its transaction/observation/message/
// notification seqs").
func (r *Round) mergeConsensusDataProposal(p *externalapi.ConsensusDataProposal) {
	key := p.Facilitator.String()
	existing, ok := r.consensusDataProposals[key]
	if !ok {
		r.consensusDataProposals[key] = p
		return
	}
	merged := &externalapi.ConsensusDataProposal{
		RoundId:     existing.RoundId,
		Facilitator: existing.Facilitator,
	}
	merged.Transactions = unionTransactions(existing.Transactions, p.Transactions)
	merged.Observations = unionObservations(existing.Observations, p.Observations)
	merged.Messages = unionBytes(existing.Messages, p.Messages)
	merged.Notifications = unionBytes(existing.Notifications, p.Notifications)
	r.consensusDataProposals[key] = merged
}

// phase1CompleteLocked reports whether every peer (self excluded per
// spec.md §9's resolution of the facilitator-accounting open question)
// has been heard from. Must be called with updateSemaphore held.
func (r *Round) phase1CompleteLocked() bool {
	count := 0
	for key := range r.consensusDataProposals {
		if key == r.selfIdStr {
			continue
		}
		count++
	}
	return count >= r.data.Peers.Len()
}

// union runs spec.md §4.6's union step: build the candidate checkpoint
// block from everything received in phase 1, broadcast it, and record it
// locally as this node's own phase-2 proposal.
func (r *Round) union(ctx context.Context) error {
	transactions := externalapi.CloneTransactions(r.data.Transactions)
	observations := externalapi.CloneObservations(r.data.Observations)
	for _, p := range r.consensusDataProposals {
		transactions = unionTransactions(transactions, p.Transactions)
		observations = unionObservations(observations, p.Observations)
	}

	block := &externalapi.CheckpointBlock{
		Transactions: transactions,
		Observations: observations,
		Parents:      r.data.TipsSoe,
		Messages:     r.data.Messages,
	}
	block.BaseHash = *consensushashing.BlockBaseHash(block)

	sig, err := r.Signer().Sign(block.BaseHash)
	if err != nil {
		return err
	}
	block.Signatures = []*externalapi.HashSignature{sig}
	block.SoeHash = *consensushashing.BlockSoeHash(block)

	proposal := &externalapi.UnionBlockProposal{
		RoundId:     r.data.RoundId,
		Facilitator: r.SelfId(),
		Block:       block,
	}

	if err := r.Gossip().Broadcast(ctx, appmessage.NewUnionBlockProposalMessage(proposal)); err != nil {
		r.Logger().Warnf("round %s: failed broadcasting own union proposal: %s", r.data.RoundId, err)
	}
	return r.AddBlockProposal(ctx, proposal)
}

// AddBlockProposal implements model.RoundStateMachine.
func (r *Round) AddBlockProposal(ctx context.Context, p *externalapi.UnionBlockProposal) error {
	r.updateSemaphore.Lock()

	switch r.stage {
	case externalapi.StageResolvingMajorityCb, externalapi.StageWaitingForSelectedBlocks, externalapi.StageAcceptingMajorityCb:
		r.updateSemaphore.Unlock()
		return &consensuserrors.PreviousStageError{Stage: r.stage}
	}

	r.checkpointBlockProposals[p.Facilitator.String()] = p

	complete := len(r.checkpointBlockProposals) >= r.data.FacilitatorCount()
	if complete {
		r.stage = externalapi.StageResolvingMajorityCb
	}
	r.updateSemaphore.Unlock()

	if complete {
		return r.resolveMajority(ctx)
	}
	return nil
}

// resolveMajority runs spec.md §4.6's resolve-majority step: group phase-2
// proposals by BaseHash, require >=51% of F, merge the winning group by
// edge addition (signature union), and broadcast the result as this
// node's phase-3 vote.
func (r *Round) resolveMajority(ctx context.Context) error {
	r.updateSemaphore.Lock()
	proposals := make([]*externalapi.UnionBlockProposal, 0, len(r.checkpointBlockProposals))
	for _, p := range r.checkpointBlockProposals {
		proposals = append(proposals, p)
	}
	total := r.data.FacilitatorCount()
	r.updateSemaphore.Unlock()

	if len(proposals)*100 < total*51 {
		err := &consensuserrors.NotEnoughProposalsError{Count: len(proposals), Total: total}
		r.endRound(ctx, err)
		return err
	}

	winner := majorityBlockGroup(proposals)
	merged := plusEdgeBlocks(winner)

	selected := &externalapi.SelectedUnionBlock{
		RoundId:     r.data.RoundId,
		Facilitator: r.SelfId(),
		Block:       merged,
	}

	r.updateSemaphore.Lock()
	r.stage = externalapi.StageWaitingForSelectedBlocks
	r.updateSemaphore.Unlock()

	if err := r.Gossip().Broadcast(ctx, appmessage.NewSelectedUnionBlockMessage(selected)); err != nil {
		r.Logger().Warnf("round %s: failed broadcasting own selected block: %s", r.data.RoundId, err)
	}
	return r.AddSelectedBlockProposal(ctx, selected)
}

// AddSelectedBlockProposal implements model.RoundStateMachine.
func (r *Round) AddSelectedBlockProposal(ctx context.Context, p *externalapi.SelectedUnionBlock) error {
	r.updateSemaphore.Lock()

	if r.finished {
		r.updateSemaphore.Unlock()
		return &consensuserrors.PreviousStageError{Stage: r.stage}
	}

	r.selectedCheckpointBlocks[p.Facilitator.String()] = p

	complete := len(r.selectedCheckpointBlocks) >= r.data.FacilitatorCount()
	if complete {
		r.stage = externalapi.StageAcceptingMajorityCb
	}
	r.updateSemaphore.Unlock()

	if complete {
		return r.acceptMajority(ctx)
	}
	return nil
}

// acceptMajority runs spec.md §4.6's accept-majority step: group phase-3
// votes by SoeHash, require every facilitator's vote (100% of F), admit
// the winning block through the acceptance pipeline, and end the round.
func (r *Round) acceptMajority(ctx context.Context) error {
	r.updateSemaphore.Lock()
	votes := make([]*externalapi.SelectedUnionBlock, 0, len(r.selectedCheckpointBlocks))
	for _, v := range r.selectedCheckpointBlocks {
		votes = append(votes, v)
	}
	total := r.data.FacilitatorCount()
	r.updateSemaphore.Unlock()

	if len(votes) < total {
		err := &consensuserrors.NotEnoughProposalsError{Count: len(votes), Total: total}
		r.endRound(ctx, err)
		return err
	}

	block := majoritySelectedGroup(votes)

	cache := &externalapi.CheckpointCache{Block: block, Children: externalapi.NewHashSet()}
	accepted, err := r.AcceptancePipeline().Accept(ctx, cache)
	outcome := model.RoundOutcome{Facilitators: r.data.Peers.Clone()}
	outcome.Facilitators.Add(r.SelfId())

	switch e := err.(type) {
	case nil:
		outcome.AcceptedCache = accepted
		if err := r.Gossip().Broadcast(ctx, appmessage.NewFinishedCheckpointMessage(accepted, outcome.Facilitators)); err != nil {
			r.Logger().Warnf("round %s: failed spreading finished checkpoint: %s", r.data.RoundId, err)
		}
	case *consensuserrors.AlreadyStoredError, *consensuserrors.PendingAcceptanceError:
		// Already in the pipeline via another round; nothing to return.
	case *consensuserrors.MissingParentsError:
		// Transient; nothing to return, the caller may retry the round.
	case *consensuserrors.BrokenChainError, *consensuserrors.MissingTransactionReferenceError:
		// A transaction's ordinal/lastTxRef no longer matches the chain
		// head at commit time. §4.6 finalizes with cb=None here rather
		// than returning the block's transactions for requeue: a tx
		// already accepted under another facilitator's block must not be
		// handed back to C2.
	case *consensuserrors.TipConflictError:
		outcome.TransactionsToReturn = excludeTransactions(block.Transactions, e.ConflictingTxs)
		outcome.ObservationsToReturn = block.Observations
	case *consensuserrors.ContainsInvalidTransactionsError:
		outcome.TransactionsToReturn = excludeTransactions(block.Transactions, e.TxsToExclude)
		outcome.ObservationsToReturn = block.Observations
	default:
		outcome.TransactionsToReturn = block.Transactions
		outcome.ObservationsToReturn = block.Observations
	}
	outcome.Err = err

	r.finish(ctx, outcome)
	return err
}

// ForceUnion implements model.RoundStateMachine: the per-stage timeout
// escape hatch of spec.md §4.7, run by the consensus manager on every
// round whose deadline has passed. A round already past phase 1 is ended
// with NotEnoughProposals rather than moved back to phase 2.
func (r *Round) ForceUnion(ctx context.Context) error {
	r.updateSemaphore.Lock()
	stage := r.stage
	count := len(r.consensusDataProposals)
	total := r.data.FacilitatorCount()
	if stage.AtLeast(externalapi.StageWaitingForSelectedBlocks) {
		count = len(r.selectedCheckpointBlocks)
	} else if stage.AtLeast(externalapi.StageWaitingForBlockProposals) {
		count = len(r.checkpointBlockProposals)
	}
	r.updateSemaphore.Unlock()

	if stage.AtLeast(externalapi.StageWaitingForBlockProposals) {
		err := &consensuserrors.NotEnoughProposalsError{Count: count, Total: total}
		r.endRound(ctx, err)
		return err
	}
	if count == 0 {
		err := &consensuserrors.EmptyProposalsError{}
		r.endRound(ctx, err)
		return err
	}
	if count*100 < total*51 {
		err := &consensuserrors.NotEnoughProposalsError{Count: count, Total: total}
		r.endRound(ctx, err)
		return err
	}

	r.updateSemaphore.Lock()
	r.stage = externalapi.StageWaitingForBlockProposals
	r.updateSemaphore.Unlock()
	return r.union(ctx)
}

// endRound reports a round-level error outcome, returning every
// transaction/observation this round was holding back to the pending
// pools (spec.md §7: "Each carries the txs/obs that must be returned").
func (r *Round) endRound(ctx context.Context, err error) {
	r.updateSemaphore.Lock()
	txs := externalapi.CloneTransactions(r.data.Transactions)
	obs := externalapi.CloneObservations(r.data.Observations)
	for _, p := range r.consensusDataProposals {
		txs = unionTransactions(txs, p.Transactions)
		obs = unionObservations(obs, p.Observations)
	}
	r.updateSemaphore.Unlock()

	r.finish(ctx, model.RoundOutcome{TransactionsToReturn: txs, ObservationsToReturn: obs, Err: err})
}

func (r *Round) finish(ctx context.Context, outcome model.RoundOutcome) {
	r.updateSemaphore.Lock()
	if r.finished {
		r.updateSemaphore.Unlock()
		return
	}
	r.finished = true
	r.updateSemaphore.Unlock()

	r.HandleRoundOutcome(ctx, r.data.RoundId, outcome)
}

// majorityBlockGroup groups proposals by their block's BaseHash and
// returns the largest group, ties broken by lexicographically-smallest
// base hash (spec.md §4.6 "Tie-breaks").
func majorityBlockGroup(proposals []*externalapi.UnionBlockProposal) []*externalapi.CheckpointBlock {
	groups := make(map[externalapi.Hash][]*externalapi.CheckpointBlock)
	for _, p := range proposals {
		groups[p.Block.BaseHash] = append(groups[p.Block.BaseHash], p.Block)
	}
	return largestGroup(groups)
}

// majoritySelectedGroup groups phase-3 votes by SoeHash and returns the
// merged winner, same tie-break rule as resolveMajority.
func majoritySelectedGroup(votes []*externalapi.SelectedUnionBlock) *externalapi.CheckpointBlock {
	groups := make(map[externalapi.Hash][]*externalapi.CheckpointBlock)
	for _, v := range votes {
		groups[v.Block.SoeHash] = append(groups[v.Block.SoeHash], v.Block)
	}
	return plusEdgeBlocks(largestGroup(groups))
}

func largestGroup(groups map[externalapi.Hash][]*externalapi.CheckpointBlock) []*externalapi.CheckpointBlock {
	keys := make([]externalapi.Hash, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return lessHash(keys[i], keys[j]) })

	var best []*externalapi.CheckpointBlock
	bestSize := -1
	for _, k := range keys {
		g := groups[k]
		if len(g) > bestSize {
			best = g
			bestSize = len(g)
		}
	}
	return best
}

// plusEdgeBlocks merges a group of blocks sharing the same content hash
// into one, unioning their signer sets (spec.md §4.6 "reduce via
// plusEdge... signatures are unioned").
func plusEdgeBlocks(blocks []*externalapi.CheckpointBlock) *externalapi.CheckpointBlock {
	if len(blocks) == 0 {
		return nil
	}
	merged := blocks[0].Clone()
	bySigner := make(map[string]*externalapi.HashSignature, len(merged.Signatures))
	for _, sig := range merged.Signatures {
		bySigner[sig.SignerId.String()] = sig
	}
	for _, b := range blocks[1:] {
		for _, sig := range b.Signatures {
			key := sig.SignerId.String()
			if _, ok := bySigner[key]; !ok {
				bySigner[key] = sig
				merged.Signatures = append(merged.Signatures, sig.Clone())
			}
		}
	}
	// SoeHash covers the signer set (spec.md §3 "Soe Hash... identifier
	// including the signer set"), so it must be recomputed once the
	// merge has unioned every group member's signers.
	merged.SoeHash = *consensushashing.BlockSoeHash(merged)
	return merged
}

func excludeTransactions(txs []*externalapi.Transaction, excluded []externalapi.Hash) []*externalapi.Transaction {
	excludeSet := externalapi.NewHashSet(excluded...)
	kept := make([]*externalapi.Transaction, 0, len(txs))
	for _, tx := range txs {
		if !excludeSet.Contains(tx.Hash) {
			kept = append(kept, tx)
		}
	}
	return kept
}

func unionTransactions(a, b []*externalapi.Transaction) []*externalapi.Transaction {
	seen := make(map[externalapi.Hash]struct{}, len(a)+len(b))
	out := make([]*externalapi.Transaction, 0, len(a)+len(b))
	for _, tx := range a {
		if _, ok := seen[tx.Hash]; !ok {
			seen[tx.Hash] = struct{}{}
			out = append(out, tx)
		}
	}
	for _, tx := range b {
		if _, ok := seen[tx.Hash]; !ok {
			seen[tx.Hash] = struct{}{}
			out = append(out, tx)
		}
	}
	return out
}

func unionObservations(a, b []*externalapi.Observation) []*externalapi.Observation {
	seen := make(map[externalapi.Hash]struct{}, len(a)+len(b))
	out := make([]*externalapi.Observation, 0, len(a)+len(b))
	for _, ob := range a {
		if _, ok := seen[ob.Hash]; !ok {
			seen[ob.Hash] = struct{}{}
			out = append(out, ob)
		}
	}
	for _, ob := range b {
		if _, ok := seen[ob.Hash]; !ok {
			seen[ob.Hash] = struct{}{}
			out = append(out, ob)
		}
	}
	return out
}

func unionBytes(a, b [][]byte) [][]byte {
	out := make([][]byte, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}

func lessHash(a, b externalapi.Hash) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

var _ model.RoundStateMachine = (*Round)(nil)
