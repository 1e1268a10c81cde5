package pendingpool_test

import (
	"testing"

	"github.com/jet-cloud/constellation/domain/consensus/model/externalapi"
	"github.com/jet-cloud/constellation/domain/consensus/processes/pendingpool"
)

func obsCacheOf(obs *externalapi.Observation) *externalapi.ObservationCacheData {
	return &externalapi.ObservationCacheData{Observation: obs, Status: externalapi.StatusPending}
}

func TestObservationPoolPullForConsensusHasNoChainConstraint(t *testing.T) {
	pool := pendingpool.NewObservationPool()

	observer := externalapi.NewId([]byte{1, 2, 3})
	subject := externalapi.NewId([]byte{4, 5, 6})

	obs1 := &externalapi.Observation{
		ObserverId: observer, SubjectId: subject, EventKind: externalapi.EventNodeOffline,
		EpochSeconds: 200, Hash: externalapi.Hash{1},
	}
	obs2 := &externalapi.Observation{
		ObserverId: observer, SubjectId: subject, EventKind: externalapi.EventNodeMemberOfActivePool,
		EpochSeconds: 100, Hash: externalapi.Hash{2},
	}

	// Inserted newest-first; pull must still return them without rejecting
	// either, since observations carry no prefix-chain requirement.
	pool.Put(obsCacheOf(obs1))
	pool.Put(obsCacheOf(obs2))

	pulled := pool.PullForConsensus(10)
	if len(pulled) != 2 {
		t.Fatalf("expected both observations to be pulled, got %d", len(pulled))
	}
	if !pulled[0].Hash.Equal(&obs2.Hash) || !pulled[1].Hash.Equal(&obs1.Hash) {
		t.Fatalf("expected observations ordered by epoch ascending, got %+v, %+v", pulled[0], pulled[1])
	}
}

func TestObservationPoolLookupContainsRemove(t *testing.T) {
	pool := pendingpool.NewObservationPool()

	obs := &externalapi.Observation{
		ObserverId: externalapi.NewId([]byte{9}), SubjectId: externalapi.NewId([]byte{8}),
		EventKind: externalapi.EventNodeOffline, EpochSeconds: 1, Hash: externalapi.Hash{3},
	}
	pool.Put(obsCacheOf(obs))

	if !pool.Contains(obs.Hash) {
		t.Fatal("expected Contains to report the inserted observation")
	}
	got, ok := pool.Lookup(obs.Hash)
	if !ok || !got.Observation.Hash.Equal(&obs.Hash) {
		t.Fatalf("expected lookup to find the inserted observation, got %+v, %v", got, ok)
	}

	pool.Remove([]externalapi.Hash{obs.Hash})
	if pool.Contains(obs.Hash) {
		t.Fatal("expected observation to be gone after Remove")
	}
}
