// Package consensusmanager implements C7, the Consensus Manager: it
// creates and destroys Round instances, routes incoming phase messages to
// the round they belong to, and enforces the per-node round-creation
// limits and stage timeouts of spec.md §4.7.
//
// Grounded structurally on daglabs-btcd/app/protocol/flows/blockrelay's
// "Context interface embedded in a flow struct" pattern, the same shape
// domain/consensus/processes/round builds on: Manager plays the role the
// teacher's node/server type plays for a flow, supplying RoundContext to
// every Round it creates.
package consensusmanager

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"

	"github.com/jet-cloud/constellation/app/appmessage"
	"github.com/jet-cloud/constellation/domain/consensus/model"
	"github.com/jet-cloud/constellation/domain/consensus/model/externalapi"
	"github.com/jet-cloud/constellation/domain/consensus/processes/round"
	"github.com/pkg/errors"
)

// roundEntry bundles a Round with the data it was created from, needed to
// recompute return sets on a timeout/shutdown without re-deriving them
// from the round's internals.
type roundEntry struct {
	round     *round.Round
	data      *externalapi.RoundData
	createdAt int64
	ownRound  bool
}

// bufferedMessage is a phase-1/2/3 message that arrived before its round
// existed locally, held briefly per spec.md §4.7 "buffer briefly and
// create one on StartConsensusRound".
type bufferedMessage struct {
	dataProposal   *externalapi.ConsensusDataProposal
	blockProposal  *externalapi.UnionBlockProposal
	selectedBlock  *externalapi.SelectedUnionBlock
}

// Manager is C7.
type Manager struct {
	selfId     *externalapi.Id
	gossip     model.Gossip
	peerClient model.PeerClient
	txPool     model.PendingTransactionPool
	obsPool    model.PendingObservationPool
	pipeline   model.AcceptancePipeline
	tips       model.TipService
	signer     model.Signer
	clock      model.Clock
	logger     model.Logger
	metrics    model.MetricsSink

	maxTransactionThreshold int
	maxObservationThreshold int
	maxParallelRounds       int
	roundCooldownSeconds    float64
	stageTimeoutSeconds     float64

	mu           sync.RWMutex
	activeRounds map[externalapi.RoundId]*roundEntry
	buffered     map[externalapi.RoundId]*bufferedMessage
	lastOwnRound int64
	ownRounds    int
}

// Config bundles the round-level tunables a Manager is constructed with,
// mirroring infrastructure/config.ConsensusConfig's fields without
// depending on the config package directly.
type Config struct {
	MaxTransactionThreshold int
	MaxObservationThreshold int
	MaxParallelRounds       int
	RoundCooldownSeconds    float64
	StageTimeoutSeconds     float64
}

// New returns a Manager ready to create and route rounds.
func New(
	selfId *externalapi.Id,
	gossip model.Gossip,
	peerClient model.PeerClient,
	txPool model.PendingTransactionPool,
	obsPool model.PendingObservationPool,
	pipeline model.AcceptancePipeline,
	tips model.TipService,
	signer model.Signer,
	clock model.Clock,
	logger model.Logger,
	metrics model.MetricsSink,
	cfg Config,
) *Manager {
	return &Manager{
		selfId:                  selfId,
		gossip:                  gossip,
		peerClient:              peerClient,
		txPool:                  txPool,
		obsPool:                 obsPool,
		pipeline:                pipeline,
		tips:                    tips,
		signer:                  signer,
		clock:                   clock,
		logger:                  logger,
		metrics:                 metrics,
		maxTransactionThreshold: cfg.MaxTransactionThreshold,
		maxObservationThreshold: cfg.MaxObservationThreshold,
		maxParallelRounds:       cfg.MaxParallelRounds,
		roundCooldownSeconds:    cfg.RoundCooldownSeconds,
		stageTimeoutSeconds:     cfg.StageTimeoutSeconds,
		activeRounds:            make(map[externalapi.RoundId]*roundEntry),
		buffered:                make(map[externalapi.RoundId]*bufferedMessage),
	}
}

// RoundContext collaborators, supplied to every Round this Manager
// creates. Manager implements model.RoundContext directly rather than via
// a wrapper type, since its collaborator set is exactly a Round's.

// Gossip implements model.RoundContext.
func (m *Manager) Gossip() model.Gossip { return m.gossip }

// PeerClient implements model.RoundContext.
func (m *Manager) PeerClient() model.PeerClient { return m.peerClient }

// PendingTransactionPool implements model.RoundContext.
func (m *Manager) PendingTransactionPool() model.PendingTransactionPool { return m.txPool }

// PendingObservationPool implements model.RoundContext.
func (m *Manager) PendingObservationPool() model.PendingObservationPool { return m.obsPool }

// AcceptancePipeline implements model.RoundContext.
func (m *Manager) AcceptancePipeline() model.AcceptancePipeline { return m.pipeline }

// Signer implements model.RoundContext.
func (m *Manager) Signer() model.Signer { return m.signer }

// SelfId implements model.RoundContext.
func (m *Manager) SelfId() *externalapi.Id { return m.selfId }

// Logger implements model.RoundContext.
func (m *Manager) Logger() model.Logger { return m.logger }

// Metrics implements model.RoundContext.
func (m *Manager) Metrics() model.MetricsSink { return m.metrics }

// Clock implements model.RoundContext.
func (m *Manager) Clock() model.Clock { return m.clock }

// HandleRoundOutcome implements model.RoundContext: it is called exactly
// once by a Round when it terminates.
func (m *Manager) HandleRoundOutcome(ctx context.Context, roundId externalapi.RoundId, outcome model.RoundOutcome) {
	m.stopRound(roundId, outcome)
}

// StartOwnRound implements model.ConsensusManager.
func (m *Manager) StartOwnRound(ctx context.Context) (bool, error) {
	m.mu.Lock()
	if m.ownRounds >= m.maxParallelRounds {
		m.mu.Unlock()
		return false, nil
	}
	if m.lastOwnRound != 0 {
		elapsed := m.clock.Now() - m.lastOwnRound
		if float64(elapsed) < m.roundCooldownSeconds {
			m.mu.Unlock()
			return false, nil
		}
	}
	m.mu.Unlock()

	readyFacilitators := externalapi.NewIdSet()
	m.mu.RLock()
	for _, entry := range m.activeRounds {
		readyFacilitators.Add(entry.data.FacilitatorId)
	}
	m.mu.RUnlock()

	tipsSoe, peers, ok := m.tips.Pull(readyFacilitators)
	if !ok {
		return false, nil
	}

	roundId, err := newRoundId()
	if err != nil {
		return false, err
	}

	data := &externalapi.RoundData{
		RoundId:       roundId,
		Peers:         peers,
		FacilitatorId: m.selfId,
		TipsSoe:       tipsSoe,
	}

	r := round.New(m, data, m.maxTransactionThreshold, m.maxObservationThreshold)

	m.mu.Lock()
	m.activeRounds[roundId] = &roundEntry{round: r, data: data, createdAt: m.clock.Now(), ownRound: true}
	m.ownRounds++
	m.lastOwnRound = m.clock.Now()
	m.mu.Unlock()

	if err := m.gossip.Broadcast(ctx, appmessage.NewStartConsensusRoundMessage(data)); err != nil {
		m.logger.Warnf("consensus manager: failed broadcasting round start %s: %s", roundId, err)
	}

	m.applyBuffered(ctx, r, roundId)

	if err := r.StartConsensusDataProposal(ctx); err != nil {
		m.logger.Warnf("consensus manager: round %s failed to start: %s", roundId, err)
	}
	return true, nil
}

// HandleStartConsensusRound implements model.ConsensusManager.
func (m *Manager) HandleStartConsensusRound(ctx context.Context, data *externalapi.RoundData) error {
	m.mu.Lock()
	if _, ok := m.activeRounds[data.RoundId]; ok {
		m.mu.Unlock()
		return nil
	}
	data = data.Clone()
	r := round.New(m, data, m.maxTransactionThreshold, m.maxObservationThreshold)
	m.activeRounds[data.RoundId] = &roundEntry{round: r, data: data, createdAt: m.clock.Now()}
	m.mu.Unlock()

	m.applyBuffered(ctx, r, data.RoundId)

	return r.StartConsensusDataProposal(ctx)
}

// HandleConsensusDataProposal implements model.ConsensusManager.
func (m *Manager) HandleConsensusDataProposal(ctx context.Context, proposal *externalapi.ConsensusDataProposal) error {
	r, ok := m.lookupRound(proposal.RoundId)
	if !ok {
		m.bufferDataProposal(proposal)
		return nil
	}
	return r.AddConsensusDataProposal(ctx, proposal)
}

// HandleUnionBlockProposal implements model.ConsensusManager.
func (m *Manager) HandleUnionBlockProposal(ctx context.Context, proposal *externalapi.UnionBlockProposal) error {
	r, ok := m.lookupRound(proposal.RoundId)
	if !ok {
		m.bufferBlockProposal(proposal)
		return nil
	}
	return r.AddBlockProposal(ctx, proposal)
}

// HandleSelectedUnionBlock implements model.ConsensusManager.
func (m *Manager) HandleSelectedUnionBlock(ctx context.Context, proposal *externalapi.SelectedUnionBlock) error {
	r, ok := m.lookupRound(proposal.RoundId)
	if !ok {
		m.bufferSelectedBlock(proposal)
		return nil
	}
	return r.AddSelectedBlockProposal(ctx, proposal)
}

// TickTimeouts implements model.ConsensusManager: it is driven
// periodically by the owning goroutine (spec.md §5 "Round total: 30s,
// Per-stage: stage-dependent").
func (m *Manager) TickTimeouts(ctx context.Context) {
	now := m.clock.Now()

	m.mu.RLock()
	var stale []*round.Round
	for _, entry := range m.activeRounds {
		if float64(now-entry.createdAt) >= m.stageTimeoutSeconds {
			stale = append(stale, entry.round)
		}
	}
	m.mu.RUnlock()

	for _, r := range stale {
		if err := r.ForceUnion(ctx); err != nil {
			m.logger.Warnf("consensus manager: round %s timed out: %s", r.RoundId(), err)
		}
	}
}

// Shutdown implements model.ConsensusManager: every active round's
// transactions and observations are returned to the pending pools
// (spec.md §5 "manager shutdown -> all pending rounds have their
// txs/obs returned to mempools").
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	entries := make([]*roundEntry, 0, len(m.activeRounds))
	for _, entry := range m.activeRounds {
		entries = append(entries, entry)
	}
	m.activeRounds = make(map[externalapi.RoundId]*roundEntry)
	m.buffered = make(map[externalapi.RoundId]*bufferedMessage)
	m.ownRounds = 0
	m.mu.Unlock()

	for _, entry := range entries {
		m.returnToPools(entry.data.Transactions, entry.data.Observations)
	}
}

// ActiveRoundCount implements model.ConsensusManager.
func (m *Manager) ActiveRoundCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.activeRounds)
}

// stopRound implements spec.md §4.7's handleRoundError/
// stopBlockCreationRound: remove the round and, on failure, return its
// transactions/observations to C2/C3 as Unknown.
func (m *Manager) stopRound(roundId externalapi.RoundId, outcome model.RoundOutcome) {
	m.mu.Lock()
	entry, ok := m.activeRounds[roundId]
	if ok {
		delete(m.activeRounds, roundId)
		delete(m.buffered, roundId)
		if entry.ownRound {
			m.ownRounds--
		}
	}
	m.mu.Unlock()

	if outcome.Err != nil {
		m.logger.Infof("consensus manager: round %s ended with error: %s", roundId, outcome.Err)
	} else {
		m.logger.Infof("consensus manager: round %s accepted a checkpoint block", roundId)
	}
	m.returnToPools(outcome.TransactionsToReturn, outcome.ObservationsToReturn)
}

func (m *Manager) returnToPools(txs []*externalapi.Transaction, obs []*externalapi.Observation) {
	for _, tx := range txs {
		m.txPool.Put(&externalapi.TransactionCacheData{Transaction: tx, Status: externalapi.StatusUnknown})
	}
	for _, ob := range obs {
		m.obsPool.Put(&externalapi.ObservationCacheData{Observation: ob, Status: externalapi.StatusUnknown})
	}
}

func (m *Manager) lookupRound(roundId externalapi.RoundId) (*round.Round, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.activeRounds[roundId]
	if !ok {
		return nil, false
	}
	return entry.round, true
}

func (m *Manager) bufferDataProposal(p *externalapi.ConsensusDataProposal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := m.buffered[p.RoundId]
	if buf == nil {
		buf = &bufferedMessage{}
		m.buffered[p.RoundId] = buf
	}
	buf.dataProposal = p
}

func (m *Manager) bufferBlockProposal(p *externalapi.UnionBlockProposal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := m.buffered[p.RoundId]
	if buf == nil {
		buf = &bufferedMessage{}
		m.buffered[p.RoundId] = buf
	}
	buf.blockProposal = p
}

func (m *Manager) bufferSelectedBlock(p *externalapi.SelectedUnionBlock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := m.buffered[p.RoundId]
	if buf == nil {
		buf = &bufferedMessage{}
		m.buffered[p.RoundId] = buf
	}
	buf.selectedBlock = p
}

// applyBuffered replays any message that arrived before r's round existed.
func (m *Manager) applyBuffered(ctx context.Context, r *round.Round, roundId externalapi.RoundId) {
	m.mu.Lock()
	buf, ok := m.buffered[roundId]
	if ok {
		delete(m.buffered, roundId)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	if buf.dataProposal != nil {
		if err := r.AddConsensusDataProposal(ctx, buf.dataProposal); err != nil {
			m.logger.Warnf("consensus manager: round %s buffered data proposal rejected: %s", roundId, err)
		}
	}
	if buf.blockProposal != nil {
		if err := r.AddBlockProposal(ctx, buf.blockProposal); err != nil {
			m.logger.Warnf("consensus manager: round %s buffered block proposal rejected: %s", roundId, err)
		}
	}
	if buf.selectedBlock != nil {
		if err := r.AddSelectedBlockProposal(ctx, buf.selectedBlock); err != nil {
			m.logger.Warnf("consensus manager: round %s buffered selected block rejected: %s", roundId, err)
		}
	}
}

// newRoundId generates an opaque, collision-resistant round identifier,
// grounded on the teacher's crypto/rand-based nonce generation
// (cmd/kaspawallet/keys/create.go).
func newRoundId() (externalapi.RoundId, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "failed generating round id")
	}
	return externalapi.RoundId(hex.EncodeToString(buf)), nil
}

var _ model.ConsensusManager = (*Manager)(nil)
var _ model.RoundContext = (*Manager)(nil)
