package pendingpool_test

import (
	"testing"

	"github.com/jet-cloud/constellation/domain/consensus/model/externalapi"
	"github.com/jet-cloud/constellation/domain/consensus/processes/pendingpool"
	"github.com/jet-cloud/constellation/domain/consensus/processes/txchain"
)

func cacheOf(tx *externalapi.Transaction) *externalapi.TransactionCacheData {
	return &externalapi.TransactionCacheData{Transaction: tx, Status: externalapi.StatusPending}
}

func TestTransactionPoolPullForConsensusOrdersBySenderFeeAndSkipsBrokenChains(t *testing.T) {
	chain := txchain.New()
	pool := pendingpool.NewTransactionPool(chain)

	// alice: two-transaction chain off genesis, total fee 15.
	aliceTx1 := &externalapi.Transaction{
		Sender: "alice", Ordinal: 1, LastTxRef: externalapi.GenesisTxRef("alice"),
		Fee: 10, HasFee: true, Hash: externalapi.Hash{1},
	}
	aliceTx2 := &externalapi.Transaction{
		Sender: "alice", Ordinal: 2, LastTxRef: externalapi.TxRef{Hash: aliceTx1.Hash, Ordinal: 1},
		Fee: 5, HasFee: true, Hash: externalapi.Hash{2},
	}
	// bob: chain does not start from genesis, so the whole group must be
	// excluded regardless of fee.
	bobTx := &externalapi.Transaction{
		Sender: "bob", Ordinal: 9, LastTxRef: externalapi.TxRef{Hash: externalapi.Hash{99}, Ordinal: 8},
		Fee: 1000, HasFee: true, Hash: externalapi.Hash{3},
	}
	// charlie: valid single transaction, lower fee than alice's group.
	charlieTx := &externalapi.Transaction{
		Sender: "charlie", Ordinal: 1, LastTxRef: externalapi.GenesisTxRef("charlie"),
		Fee: 2, HasFee: true, Hash: externalapi.Hash{4},
	}

	// Insert out of ordinal order to exercise the per-sender sort.
	pool.Put(cacheOf(aliceTx2))
	pool.Put(cacheOf(aliceTx1))
	pool.Put(cacheOf(bobTx))
	pool.Put(cacheOf(charlieTx))

	pulled := pool.PullForConsensus(10)
	if len(pulled) != 3 {
		t.Fatalf("expected 3 transactions (bob's broken chain excluded), got %d: %+v", len(pulled), pulled)
	}
	if !pulled[0].Hash.Equal(&aliceTx1.Hash) || !pulled[1].Hash.Equal(&aliceTx2.Hash) {
		t.Fatalf("expected alice's chain first in ordinal order, got %+v, %+v", pulled[0], pulled[1])
	}
	if !pulled[2].Hash.Equal(&charlieTx.Hash) {
		t.Fatalf("expected charlie's transaction last, got %+v", pulled[2])
	}

	if !pool.Contains(bobTx.Hash) {
		t.Fatal("pull must not remove entries it did not select")
	}
	if pool.Contains(aliceTx1.Hash) || pool.Contains(charlieTx.Hash) {
		t.Fatal("pull must remove every entry it selected")
	}
}

func TestTransactionPoolLookupAndRemove(t *testing.T) {
	chain := txchain.New()
	pool := pendingpool.NewTransactionPool(chain)

	tx := &externalapi.Transaction{
		Sender: "dana", Ordinal: 1, LastTxRef: externalapi.GenesisTxRef("dana"), Hash: externalapi.Hash{7},
	}
	pool.Put(cacheOf(tx))

	got, ok := pool.Lookup(tx.Hash)
	if !ok || !got.Transaction.Hash.Equal(&tx.Hash) {
		t.Fatalf("expected lookup to find the inserted transaction, got %+v, %v", got, ok)
	}

	pool.Remove([]externalapi.Hash{tx.Hash})
	if pool.Contains(tx.Hash) {
		t.Fatal("expected transaction to be gone after Remove")
	}
}

func TestTransactionPoolPullRespectsMaxCount(t *testing.T) {
	chain := txchain.New()
	pool := pendingpool.NewTransactionPool(chain)

	for i := uint64(1); i <= 3; i++ {
		var last externalapi.TxRef
		if i == 1 {
			last = externalapi.GenesisTxRef("eve")
		} else {
			last = externalapi.TxRef{Hash: externalapi.Hash{byte(i - 1)}, Ordinal: i - 1}
		}
		pool.Put(cacheOf(&externalapi.Transaction{
			Sender: "eve", Ordinal: i, LastTxRef: last, Hash: externalapi.Hash{byte(i)},
		}))
	}

	pulled := pool.PullForConsensus(2)
	if len(pulled) != 2 {
		t.Fatalf("expected maxCount to cap the pull at 2, got %d", len(pulled))
	}
	if pulled[0].Ordinal != 1 || pulled[1].Ordinal != 2 {
		t.Fatalf("expected the two oldest transactions in order, got ordinals %d, %d", pulled[0].Ordinal, pulled[1].Ordinal)
	}
}
