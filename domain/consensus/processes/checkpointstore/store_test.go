package checkpointstore_test

import (
	"testing"

	"github.com/jet-cloud/constellation/domain/consensus/model/externalapi"
	"github.com/jet-cloud/constellation/domain/consensus/processes/checkpointstore"
)

func genesisBlock() *externalapi.CheckpointBlock {
	return &externalapi.CheckpointBlock{SoeHash: externalapi.Hash{0xAA}, BaseHash: externalapi.Hash{0xAB}}
}

func childBlock(soe, base byte, parent externalapi.ParentReference) *externalapi.CheckpointBlock {
	return &externalapi.CheckpointBlock{
		SoeHash:  externalapi.Hash{soe},
		BaseHash: externalapi.Hash{base},
		Parents:  [2]externalapi.ParentReference{parent, {}},
	}
}

func TestCalculateHeightGenesisIsZero(t *testing.T) {
	store := checkpointstore.New()
	height, ok := store.CalculateHeight(genesisBlock())
	if !ok || height != 0 {
		t.Fatalf("expected genesis height (0, true), got (%d, %v)", height, ok)
	}
}

func TestCalculateHeightAdvancesByOnePastParents(t *testing.T) {
	store := checkpointstore.New()
	genesis := genesisBlock()
	store.Put(&externalapi.CheckpointCache{Block: genesis, Height: 0})

	child := childBlock(1, 2, externalapi.ParentReference{SoeHash: genesis.SoeHash, BaseHash: genesis.BaseHash})
	height, ok := store.CalculateHeight(child)
	if !ok || height != 1 {
		t.Fatalf("expected height (1, true), got (%d, %v)", height, ok)
	}
}

func TestCalculateHeightMissingParentFails(t *testing.T) {
	store := checkpointstore.New()
	child := childBlock(1, 2, externalapi.ParentReference{SoeHash: externalapi.Hash{0xFF}, BaseHash: externalapi.Hash{0xFE}})
	_, ok := store.CalculateHeight(child)
	if ok {
		t.Fatal("expected missing parent to fail height calculation")
	}
}

func TestTransactionOwnerTracksAcceptingBlock(t *testing.T) {
	store := checkpointstore.New()
	tx := &externalapi.Transaction{Hash: externalapi.Hash{5}}
	block := &externalapi.CheckpointBlock{SoeHash: externalapi.Hash{1}, Transactions: []*externalapi.Transaction{tx}}
	store.Put(&externalapi.CheckpointCache{Block: block})

	owner, ok := store.TransactionOwner(tx.Hash)
	if !ok || !owner.Equal(&block.SoeHash) {
		t.Fatalf("expected owner %s, got %s (%v)", block.SoeHash, owner, ok)
	}
}

func TestBatchRemoveDropsAllListedHashes(t *testing.T) {
	store := checkpointstore.New()
	h1, h2 := externalapi.Hash{1}, externalapi.Hash{2}
	store.Put(&externalapi.CheckpointCache{Block: &externalapi.CheckpointBlock{SoeHash: h1}})
	store.Put(&externalapi.CheckpointCache{Block: &externalapi.CheckpointBlock{SoeHash: h2}})

	store.BatchRemove([]externalapi.Hash{h1, h2})

	if store.Contains(h1) || store.Contains(h2) {
		t.Fatal("expected both hashes removed")
	}
}

func TestLookupByBaseHashResolvesToSoeKeyedEntry(t *testing.T) {
	store := checkpointstore.New()
	block := &externalapi.CheckpointBlock{SoeHash: externalapi.Hash{7}, BaseHash: externalapi.Hash{8}}
	store.Put(&externalapi.CheckpointCache{Block: block})

	cache, ok := store.LookupByBaseHash(block.BaseHash)
	if !ok || !cache.Block.SoeHash.Equal(&block.SoeHash) {
		t.Fatalf("expected lookup by base hash to resolve to soe hash %s, got %+v (%v)", block.SoeHash, cache, ok)
	}

	if _, ok := store.LookupByBaseHash(externalapi.Hash{9}); ok {
		t.Fatal("expected unknown base hash to miss")
	}
}

func TestBatchRemoveAlsoDropsBaseHashIndex(t *testing.T) {
	store := checkpointstore.New()
	block := &externalapi.CheckpointBlock{SoeHash: externalapi.Hash{10}, BaseHash: externalapi.Hash{11}}
	store.Put(&externalapi.CheckpointCache{Block: block})

	store.BatchRemove([]externalapi.Hash{block.SoeHash})

	if _, ok := store.LookupByBaseHash(block.BaseHash); ok {
		t.Fatal("expected base hash index entry to be removed alongside the soe-keyed entry")
	}
}

func TestUsageCountIncrements(t *testing.T) {
	store := checkpointstore.New()
	h := externalapi.Hash{3}
	store.RegisterUsage(h)
	store.RegisterUsage(h)
	if got := store.UsageCount(h); got != 2 {
		t.Fatalf("expected usage count 2, got %d", got)
	}
}
