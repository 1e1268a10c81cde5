package consensusmanager_test

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/jet-cloud/constellation/app/appmessage"
	"github.com/jet-cloud/constellation/domain/consensus/model"
	"github.com/jet-cloud/constellation/domain/consensus/model/externalapi"
	"github.com/jet-cloud/constellation/domain/consensus/processes/acceptance"
	"github.com/jet-cloud/constellation/domain/consensus/processes/checkpointstore"
	"github.com/jet-cloud/constellation/domain/consensus/processes/consensusmanager"
	"github.com/jet-cloud/constellation/domain/consensus/processes/pendingpool"
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

// fakeClock never advances, so none of TickTimeouts's deadlines ever
// elapse in this happy-path test.
type fakeClock struct{}

func (fakeClock) Now() int64 { return 0 }
func (fakeClock) After(float64) <-chan int64 {
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

// testNode bundles a Manager with the gossip fan-out needed to exercise it
// without a real transport, matching round_test.go's harness shape.
type testNode struct {
	manager *consensusmanager.Manager
	peers   []*testNode
}

func (n *testNode) Broadcast(ctx context.Context, msg interface{}) error {
	for _, peer := range n.peers {
		deliver(ctx, peer.manager, msg)
	}
	return nil
}

func (n *testNode) SendTo(ctx context.Context, peer *externalapi.Id, msg interface{}) error {
	for _, p := range n.peers {
		deliver(ctx, p.manager, msg)
	}
	return nil
}

func deliver(ctx context.Context, m *consensusmanager.Manager, raw interface{}) {
	switch msg := raw.(type) {
	case *appmessage.StartConsensusRoundMessage:
		_ = m.HandleStartConsensusRound(ctx, msg.RoundData)
	case *appmessage.ConsensusDataProposalMessage:
		_ = m.HandleConsensusDataProposal(ctx, msg.Proposal)
	case *appmessage.UnionBlockProposalMessage:
		_ = m.HandleUnionBlockProposal(ctx, msg.Proposal)
	case *appmessage.SelectedUnionBlockMessage:
		_ = m.HandleSelectedUnionBlock(ctx, msg.Proposal)
	}
}

func newGenesisTip(t *testing.T, pipeline model.AcceptancePipeline) {
	t.Helper()
	genesis := &externalapi.CheckpointBlock{}
	genesis.BaseHash = *consensushashing.BlockBaseHash(genesis)
	genesis.SoeHash = *consensushashing.BlockSoeHash(genesis)
	if _, err := pipeline.Accept(context.Background(), &externalapi.CheckpointCache{Block: genesis}); err != nil {
		t.Fatalf("unexpected error accepting genesis: %+v", err)
	}
}

func TestStartOwnRoundDrivesThreeNodesToAcceptance(t *testing.T) {
	store := checkpointstore.New()
	tips := checkpointstore.NewTipSet(store, 6, 10, 0)
	chain := txchain.New()
	tracker := acceptance.NewTracker()
	pipeline := acceptance.New(store, tips, chain, tracker, ed25519Verifier{}, nil, noopLogger{}, 10)

	newGenesisTip(t, pipeline)

	signers := []*ed25519Signer{newSigner(), newSigner(), newSigner()}
	nodes := make([]*testNode, len(signers))
	cfg := consensusmanager.Config{
		MaxTransactionThreshold: 50,
		MaxObservationThreshold: 50,
		MaxParallelRounds:       4,
		RoundCooldownSeconds:    0,
		StageTimeoutSeconds:     10,
	}

	for i, s := range signers {
		n := &testNode{}
		txPool := pendingpool.NewTransactionPool(chain)
		obsPool := pendingpool.NewObservationPool()
		n.manager = consensusmanager.New(s.id, n, nil, txPool, obsPool, pipeline, tips, s, fakeClock{}, noopLogger{}, noopMetrics{}, cfg)
		nodes[i] = n
	}
	for i, n := range nodes {
		for j, other := range nodes {
			if i != j {
				n.peers = append(n.peers, other)
			}
		}
	}

	started, err := nodes[0].manager.StartOwnRound(context.Background())
	if err != nil {
		t.Fatalf("unexpected error starting round: %+v", err)
	}
	if !started {
		t.Fatalf("expected StartOwnRound to start a round")
	}

	if got := len(tracker.Snapshot()); got != 1 {
		t.Fatalf("expected exactly one block accepted since snapshot, got %d", got)
	}
	for i, n := range nodes {
		if got := n.manager.ActiveRoundCount(); got != 0 {
			t.Fatalf("node %d: expected round to have been cleaned up, got %d active", i, got)
		}
	}
}

func TestStartOwnRoundRespectsMaxParallelRounds(t *testing.T) {
	store := checkpointstore.New()
	tips := checkpointstore.NewTipSet(store, 6, 10, 1)
	chain := txchain.New()
	tracker := acceptance.NewTracker()
	pipeline := acceptance.New(store, tips, chain, tracker, ed25519Verifier{}, nil, noopLogger{}, 10)

	newGenesisTip(t, pipeline)

	s := newSigner()
	n := &testNode{}
	txPool := pendingpool.NewTransactionPool(chain)
	obsPool := pendingpool.NewObservationPool()
	cfg := consensusmanager.Config{
		MaxTransactionThreshold: 50,
		MaxObservationThreshold: 50,
		MaxParallelRounds:       0,
		RoundCooldownSeconds:    0,
		StageTimeoutSeconds:     10,
	}
	n.manager = consensusmanager.New(s.id, n, nil, txPool, obsPool, pipeline, tips, s, fakeClock{}, noopLogger{}, noopMetrics{}, cfg)

	started, err := n.manager.StartOwnRound(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
	if started {
		t.Fatalf("expected StartOwnRound to be a no-op at the parallel-round cap")
	}
}
