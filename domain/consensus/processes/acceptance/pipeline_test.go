package acceptance_test

import (
	"context"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/jet-cloud/constellation/domain/consensus/consensuserrors"
	"github.com/jet-cloud/constellation/domain/consensus/model/externalapi"
	"github.com/jet-cloud/constellation/domain/consensus/processes/acceptance"
	"github.com/jet-cloud/constellation/domain/consensus/processes/checkpointstore"
	"github.com/jet-cloud/constellation/domain/consensus/processes/txchain"
)

type allowVerifier struct{}

func (allowVerifier) Verify(externalapi.Hash, *externalapi.HashSignature) bool { return true }

type denyVerifier struct{}

func (denyVerifier) Verify(externalapi.Hash, *externalapi.HashSignature) bool { return false }

type noopLogger struct{}

func (noopLogger) Debugf(string, ...interface{}) {}
func (noopLogger) Infof(string, ...interface{})  {}
func (noopLogger) Warnf(string, ...interface{})  {}
func (noopLogger) Errorf(string, ...interface{}) {}

func newPipeline(verifier interface {
	Verify(externalapi.Hash, *externalapi.HashSignature) bool
}) (*acceptance.Pipeline, *checkpointstore.Store) {
	store := checkpointstore.New()
	tips := checkpointstore.NewTipSet(store, 6, 3, 2)
	chain := txchain.New()
	tracker := acceptance.NewTracker()
	return acceptance.New(store, tips, chain, tracker, verifier, nil, noopLogger{}, 10), store
}

func genesisCache() *externalapi.CheckpointCache {
	genesis := &externalapi.CheckpointBlock{
		SoeHash:  externalapi.Hash{0xA0},
		BaseHash: externalapi.Hash{0xA1},
	}
	return &externalapi.CheckpointCache{Block: genesis}
}

func TestAcceptGenesisBlock(t *testing.T) {
	pipeline, store := newPipeline(allowVerifier{})

	accepted, err := pipeline.Accept(context.Background(), genesisCache())
	if err != nil {
		t.Fatalf("unexpected error accepting genesis: %+v", err)
	}
	if accepted.Height != 0 {
		t.Fatalf("expected genesis height 0, got %d", accepted.Height)
	}
	if !store.Contains(accepted.Block.SoeHash) {
		t.Fatal("expected genesis block stored")
	}
}

func TestAcceptRejectsMissingBlock(t *testing.T) {
	pipeline, _ := newPipeline(allowVerifier{})

	_, err := pipeline.Accept(context.Background(), &externalapi.CheckpointCache{})
	if _, ok := err.(*consensuserrors.MissingCheckpointBlockError); !ok {
		t.Fatalf("expected MissingCheckpointBlockError, got %T: %v", err, err)
	}
}

func TestAcceptRejectsAlreadyStored(t *testing.T) {
	pipeline, _ := newPipeline(allowVerifier{})

	cache := genesisCache()
	if _, err := pipeline.Accept(context.Background(), cache); err != nil {
		t.Fatalf("unexpected error on first accept: %+v", err)
	}

	_, err := pipeline.Accept(context.Background(), genesisCache())
	if _, ok := err.(*consensuserrors.AlreadyStoredError); !ok {
		t.Fatalf("expected AlreadyStoredError, got %T: %v", err, err)
	}
}

func TestAcceptRejectsInvalidSignature(t *testing.T) {
	pipeline, _ := newPipeline(denyVerifier{})

	genesis := &externalapi.CheckpointBlock{
		SoeHash:    externalapi.Hash{0xB0},
		BaseHash:   externalapi.Hash{0xB1},
		Signatures: []*externalapi.HashSignature{{SignerId: externalapi.NewId([]byte{1}), Signature: []byte{9}}},
	}
	_, err := pipeline.Accept(context.Background(), &externalapi.CheckpointCache{Block: genesis})
	if _, ok := err.(*consensuserrors.ContainsInvalidTransactionsError); !ok {
		t.Fatalf("expected ContainsInvalidTransactionsError, got %T: %v", err, err)
	}
}

func TestAcceptRejectsConflictingTransaction(t *testing.T) {
	pipeline, _ := newPipeline(allowVerifier{})

	tx := &externalapi.Transaction{
		Sender: "alice", Ordinal: 1, LastTxRef: externalapi.GenesisTxRef("alice"), Hash: externalapi.Hash{1},
	}
	first := &externalapi.CheckpointBlock{
		SoeHash: externalapi.Hash{0xC0}, BaseHash: externalapi.Hash{0xC1},
		Transactions: []*externalapi.Transaction{tx},
	}
	if _, err := pipeline.Accept(context.Background(), &externalapi.CheckpointCache{Block: first}); err != nil {
		t.Fatalf("unexpected error on first block: %+v", err)
	}

	second := &externalapi.CheckpointBlock{
		SoeHash: externalapi.Hash{0xD0}, BaseHash: externalapi.Hash{0xD1},
		Transactions: []*externalapi.Transaction{tx},
	}
	_, err := pipeline.Accept(context.Background(), &externalapi.CheckpointCache{Block: second})
	conflict, ok := err.(*consensuserrors.TipConflictError)
	if !ok {
		t.Fatalf("expected TipConflictError, got %T: %v", err, err)
	}
	if len(conflict.ConflictingTxs) != 1 || !conflict.ConflictingTxs[0].Equal(&tx.Hash) {
		t.Fatalf("expected conflicting tx %s reported, got:\n%s", tx.Hash, spew.Sdump(conflict.ConflictingTxs))
	}
}

// raceStore wraps a real checkpointstore.Store but reports a transaction
// as unowned the first time it's asked, then defers to the real store
// from then on. This reproduces the window a true data race would open
// between Accept's step-6 pre-check (outside acceptLock) and its
// re-check once acceptLock is held: a concurrent Accept's Put can land
// in between, and only the re-check under the lock is positioned to
// catch it. The winner's chain advance runs from onHeight, i.e. at step 8,
// after step 7 has validated against the chain head and before acceptLock.
type raceStore struct {
	*checkpointstore.Store
	txHash      externalapi.Hash
	firstLookup bool
	onHeight    func()
}

func (s *raceStore) CalculateHeight(block *externalapi.CheckpointBlock) (externalapi.Height, bool) {
	if hook := s.onHeight; hook != nil {
		s.onHeight = nil
		hook()
	}
	return s.Store.CalculateHeight(block)
}

func (s *raceStore) TransactionOwner(txHash externalapi.Hash) (externalapi.Hash, bool) {
	if txHash.Equal(&s.txHash) && !s.firstLookup {
		s.firstLookup = true
		return externalapi.Hash{}, false
	}
	return s.Store.TransactionOwner(txHash)
}

func TestAcceptRecheckUnderLockCatchesRaceMissedAtStepSix(t *testing.T) {
	store := checkpointstore.New()
	tips := checkpointstore.NewTipSet(store, 6, 3, 2)
	chain := txchain.New()
	tracker := acceptance.NewTracker()

	tx := &externalapi.Transaction{
		Sender: "alice", Ordinal: 1, LastTxRef: externalapi.GenesisTxRef("alice"), Hash: externalapi.Hash{1},
	}
	winner := &externalapi.CheckpointBlock{
		SoeHash: externalapi.Hash{0xE0}, BaseHash: externalapi.Hash{0xE1},
		Transactions: []*externalapi.Transaction{tx},
	}
	store.Put(&externalapi.CheckpointCache{Block: winner, Children: externalapi.NewHashSet()})

	raced := &raceStore{Store: store, txHash: tx.Hash, onHeight: func() {
		if err := chain.ApplyAfterAcceptance(tx); err != nil {
			t.Fatalf("failed to seed winning chain state: %s", err)
		}
	}}
	pipeline := acceptance.New(raced, tips, chain, tracker, allowVerifier{}, nil, noopLogger{}, 10)

	loser := &externalapi.CheckpointBlock{
		SoeHash: externalapi.Hash{0xE2}, BaseHash: externalapi.Hash{0xE3},
		Transactions: []*externalapi.Transaction{tx},
	}
	_, err := pipeline.Accept(context.Background(), &externalapi.CheckpointCache{Block: loser})
	conflict, ok := err.(*consensuserrors.TipConflictError)
	if !ok {
		t.Fatalf("expected the loser to fail with TipConflictError once the race is caught under acceptLock, got %T: %v", err, err)
	}
	if len(conflict.ConflictingTxs) != 1 || !conflict.ConflictingTxs[0].Equal(&tx.Hash) {
		t.Fatalf("expected conflicting tx %s reported, got:\n%s", tx.Hash, spew.Sdump(conflict.ConflictingTxs))
	}
}

func TestAcceptComputesHeightFromParents(t *testing.T) {
	pipeline, store := newPipeline(allowVerifier{})

	genesis := genesisCache()
	if _, err := pipeline.Accept(context.Background(), genesis); err != nil {
		t.Fatalf("unexpected error accepting genesis: %+v", err)
	}

	child := &externalapi.CheckpointBlock{
		SoeHash:    externalapi.Hash{0xB2},
		BaseHash:   externalapi.Hash{0xB3},
		Parents:    [2]externalapi.ParentReference{{SoeHash: genesis.Block.SoeHash, BaseHash: genesis.Block.BaseHash}, {}},
		Signatures: []*externalapi.HashSignature{{SignerId: externalapi.NewId([]byte{1}), Signature: []byte{9}}},
	}
	accepted, err := pipeline.Accept(context.Background(), &externalapi.CheckpointCache{Block: child})
	if err != nil {
		t.Fatalf("unexpected error accepting child: %+v", err)
	}
	if accepted.Height != 1 {
		t.Fatalf("expected child height 1, got %d", accepted.Height)
	}

	parentCache, ok := store.Lookup(genesis.Block.SoeHash)
	if !ok || !parentCache.Children.Contains(child.SoeHash) {
		t.Fatal("expected genesis cache to record the child as a descendant")
	}
}
