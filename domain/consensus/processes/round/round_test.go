package round_test

import (
	"context"
	"crypto/ed25519"
	"sync"
	"testing"

	"github.com/jet-cloud/constellation/app/appmessage"
	"github.com/jet-cloud/constellation/domain/consensus/consensuserrors"
	"github.com/jet-cloud/constellation/domain/consensus/model"
	"github.com/jet-cloud/constellation/domain/consensus/model/externalapi"
	"github.com/jet-cloud/constellation/domain/consensus/processes/acceptance"
	"github.com/jet-cloud/constellation/domain/consensus/processes/checkpointstore"
	"github.com/jet-cloud/constellation/domain/consensus/processes/pendingpool"
	"github.com/jet-cloud/constellation/domain/consensus/processes/round"
	"github.com/jet-cloud/constellation/domain/consensus/processes/txchain"
	"github.com/jet-cloud/constellation/domain/consensus/utils/consensushashing"
)

type noopLogger struct{}

func (noopLogger) Debugf(string, ...interface{}) {}
func (noopLogger) Infof(string, ...interface{})  {}
func (noopLogger) Warnf(string, ...interface{})  {}
func (noopLogger) Errorf(string, ...interface{}) {}

type noopMetrics struct{}

func (noopMetrics) IncCounter(string, map[string]string)            {}
func (noopMetrics) ObserveValue(string, float64, map[string]string) {}

type noopClock struct{}

func (noopClock) Now() int64 { return 0 }
func (noopClock) After(float64) <-chan int64 {
	return make(chan int64)
}

type ed25519Signer struct {
	id  *externalapi.Id
	key ed25519.PrivateKey
}

func newSigner() *ed25519Signer {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		panic(err)
	}
	return &ed25519Signer{id: externalapi.NewId(pub), key: priv}
}

func (s *ed25519Signer) Sign(baseHash externalapi.Hash) (*externalapi.HashSignature, error) {
	return &externalapi.HashSignature{SignerId: s.id, Signature: ed25519.Sign(s.key, baseHash[:])}, nil
}

type ed25519Verifier struct{}

func (ed25519Verifier) Verify(baseHash externalapi.Hash, sig *externalapi.HashSignature) bool {
	return ed25519.Verify(ed25519.PublicKey(sig.SignerId.Bytes()), baseHash[:], sig.Signature)
}

// testNode bundles a single facilitator's round collaborators. Gossip
// fans a Round's broadcast calls directly into every peer node's own
// Round instance rather than over a transport, since transport is out of
// scope per spec.md §1; wrap() unpacks a Round's appmessage envelopes
// into markers deliver() type-switches on.
type testNode struct {
	selfId   *externalapi.Id
	signer   *ed25519Signer
	txPool   model.PendingTransactionPool
	obsPool  model.PendingObservationPool
	pipeline model.AcceptancePipeline

	round *round.Round
	peers []*testNode

	mu      sync.Mutex
	outcome *model.RoundOutcome
	done    chan struct{}
}

func newTestNode(signer *ed25519Signer, chain model.TransactionChainService, pipeline model.AcceptancePipeline) *testNode {
	return &testNode{
		selfId:   signer.id,
		signer:   signer,
		txPool:   pendingpool.NewTransactionPool(chain),
		obsPool:  pendingpool.NewObservationPool(),
		pipeline: pipeline,
		done:     make(chan struct{}),
	}
}

func (n *testNode) Gossip() model.Gossip                                 { return nodeGossip{n} }
func (n *testNode) PeerClient() model.PeerClient                         { return nil }
func (n *testNode) PendingTransactionPool() model.PendingTransactionPool { return n.txPool }
func (n *testNode) PendingObservationPool() model.PendingObservationPool { return n.obsPool }
func (n *testNode) AcceptancePipeline() model.AcceptancePipeline         { return n.pipeline }
func (n *testNode) Signer() model.Signer                                { return n.signer }
func (n *testNode) SelfId() *externalapi.Id                             { return n.selfId }
func (n *testNode) Logger() model.Logger                                { return noopLogger{} }
func (n *testNode) Metrics() model.MetricsSink                          { return noopMetrics{} }
func (n *testNode) Clock() model.Clock                                  { return noopClock{} }

func (n *testNode) HandleRoundOutcome(ctx context.Context, roundId externalapi.RoundId, outcome model.RoundOutcome) {
	n.mu.Lock()
	defer n.mu.Unlock()
	o := outcome
	n.outcome = &o
	close(n.done)
}

type nodeGossip struct{ n *testNode }

func (g nodeGossip) Broadcast(ctx context.Context, msg interface{}) error {
	wrapped := wrap(msg)
	for _, peer := range g.n.peers {
		deliver(ctx, peer, wrapped)
	}
	return nil
}

func (g nodeGossip) SendTo(ctx context.Context, peer *externalapi.Id, msg interface{}) error {
	wrapped := wrap(msg)
	for _, p := range g.n.peers {
		if p.selfId.Equal(peer) {
			deliver(ctx, p, wrapped)
		}
	}
	return nil
}

type wrappedDataProposal struct{ p *externalapi.ConsensusDataProposal }
type wrappedBlockProposal struct{ p *externalapi.UnionBlockProposal }
type wrappedSelectedBlock struct{ p *externalapi.SelectedUnionBlock }

func wrap(msg interface{}) interface{} {
	switch m := msg.(type) {
	case *appmessage.ConsensusDataProposalMessage:
		return &wrappedDataProposal{p: m.Proposal}
	case *appmessage.UnionBlockProposalMessage:
		return &wrappedBlockProposal{p: m.Proposal}
	case *appmessage.SelectedUnionBlockMessage:
		return &wrappedSelectedBlock{p: m.Proposal}
	default:
		return msg
	}
}

func deliver(ctx context.Context, n *testNode, raw interface{}) {
	switch msg := raw.(type) {
	case *wrappedDataProposal:
		_ = n.round.AddConsensusDataProposal(ctx, msg.p)
	case *wrappedBlockProposal:
		_ = n.round.AddBlockProposal(ctx, msg.p)
	case *wrappedSelectedBlock:
		_ = n.round.AddSelectedBlockProposal(ctx, msg.p)
	}
}

func newGenesisTip(t *testing.T, pipeline model.AcceptancePipeline) externalapi.ParentReference {
	t.Helper()
	genesis := &externalapi.CheckpointBlock{}
	genesis.BaseHash = *consensushashing.BlockBaseHash(genesis)
	genesis.SoeHash = *consensushashing.BlockSoeHash(genesis)
	if _, err := pipeline.Accept(context.Background(), &externalapi.CheckpointCache{Block: genesis}); err != nil {
		t.Fatalf("unexpected error accepting genesis: %+v", err)
	}
	return externalapi.ParentReference{SoeHash: genesis.SoeHash, BaseHash: genesis.BaseHash}
}

func TestRoundHappyPathThreeFacilitatorsAgree(t *testing.T) {
	store := checkpointstore.New()
	tips := checkpointstore.NewTipSet(store, 6, 10, 1)
	chain := txchain.New()
	tracker := acceptance.NewTracker()
	pipeline := acceptance.New(store, tips, chain, tracker, ed25519Verifier{}, nil, noopLogger{}, 10)

	tipRef := newGenesisTip(t, pipeline)
	tipsSoe := [2]externalapi.ParentReference{tipRef, tipRef}

	signers := []*ed25519Signer{newSigner(), newSigner(), newSigner()}
	nodes := make([]*testNode, len(signers))
	for i, s := range signers {
		nodes[i] = newTestNode(s, chain, pipeline)
	}
	for i, n := range nodes {
		for j, other := range nodes {
			if i != j {
				n.peers = append(n.peers, other)
			}
		}
	}

	peerSet := externalapi.NewIdSet()
	for _, s := range signers[1:] {
		peerSet.Add(s.id)
	}
	data := &externalapi.RoundData{
		RoundId:       externalapi.RoundId("round-happy"),
		Peers:         peerSet,
		FacilitatorId: signers[0].id,
		TipsSoe:       tipsSoe,
	}

	for _, n := range nodes {
		n.round = round.New(n, data.Clone(), 50, 50)
	}

	for i, n := range nodes {
		if err := n.round.StartConsensusDataProposal(context.Background()); err != nil {
			t.Fatalf("unexpected error starting round for node %d: %+v", i, err)
		}
	}

	for i, n := range nodes {
		select {
		case <-n.done:
		default:
			t.Fatalf("node %d round did not finish", i)
		}
		if n.outcome == nil {
			t.Fatalf("node %d has no recorded outcome", i)
		}
		if n.outcome.Err != nil {
			if _, ok := n.outcome.Err.(*consensuserrors.AlreadyStoredError); !ok {
				t.Fatalf("node %d unexpected outcome error: %+v", i, n.outcome.Err)
			}
		}
	}

	if got := len(tracker.Snapshot()); got != 1 {
		t.Fatalf("expected exactly one block accepted since snapshot, got %d", got)
	}
}

func TestAddConsensusDataProposalRejectsPastStage(t *testing.T) {
	store := checkpointstore.New()
	tips := checkpointstore.NewTipSet(store, 6, 10, 1)
	chain := txchain.New()
	tracker := acceptance.NewTracker()
	pipeline := acceptance.New(store, tips, chain, tracker, ed25519Verifier{}, nil, noopLogger{}, 10)

	selfSigner := newSigner()
	node := newTestNode(selfSigner, chain, pipeline)

	data := &externalapi.RoundData{
		RoundId: externalapi.RoundId("round-guard"),
		Peers:   externalapi.NewIdSet(),
	}
	node.round = round.New(node, data, 50, 50)

	if err := node.round.StartConsensusDataProposal(context.Background()); err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}

	err := node.round.AddConsensusDataProposal(context.Background(), &externalapi.ConsensusDataProposal{
		RoundId:     data.RoundId,
		Facilitator: externalapi.NewId([]byte{9, 9}),
	})
	if _, ok := err.(*consensuserrors.PreviousStageError); !ok {
		t.Fatalf("expected PreviousStageError, got %T: %v", err, err)
	}
}
