package db_test

import (
	"testing"

	"github.com/jet-cloud/constellation/domain/consensus/model/externalapi"
	"github.com/jet-cloud/constellation/infrastructure/db"
)

func TestPutGetSnapshotRoundTrips(t *testing.T) {
	store, err := db.New(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("failed to open store: %s", err)
	}
	defer store.Close()

	hash := externalapi.Hash{1, 2, 3}
	stored := &externalapi.StoredSnapshot{
		Snapshot: &externalapi.Snapshot{
			CheckpointBlocks: []externalapi.Hash{{9}},
			PublicReputation: map[string]float64{"abc": 1.5},
			Hash:             hash,
		},
	}

	if err := store.PutSnapshot(hash, stored); err != nil {
		t.Fatalf("PutSnapshot failed: %s", err)
	}

	got, err := store.GetSnapshot(hash)
	if err != nil {
		t.Fatalf("GetSnapshot failed: %s", err)
	}
	if !got.Snapshot.Hash.Equal(&hash) {
		t.Fatalf("expected round-tripped hash %s, got %s", hash, got.Snapshot.Hash)
	}
	if got.Snapshot.PublicReputation["abc"] != 1.5 {
		t.Fatalf("expected reputation 1.5, got %v", got.Snapshot.PublicReputation["abc"])
	}
}

func TestPutGetSnapshotInfoRoundTrips(t *testing.T) {
	store, err := db.New(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("failed to open store: %s", err)
	}
	defer store.Close()

	hash := externalapi.Hash{4, 5, 6}
	info := &externalapi.SnapshotInfo{
		LastSnapshotHeight: 7,
		AddressCacheData: map[externalapi.Address]*externalapi.AddressCache{
			"alice": {Balance: 100},
		},
	}

	if err := store.PutSnapshotInfo(hash, info); err != nil {
		t.Fatalf("PutSnapshotInfo failed: %s", err)
	}

	got, err := store.GetSnapshotInfo(hash)
	if err != nil {
		t.Fatalf("GetSnapshotInfo failed: %s", err)
	}
	if got.LastSnapshotHeight != 7 {
		t.Fatalf("expected height 7, got %d", got.LastSnapshotHeight)
	}
	if got.AddressCacheData["alice"].Balance != 100 {
		t.Fatalf("expected balance 100, got %d", got.AddressCacheData["alice"].Balance)
	}
}

func TestDeleteSnapshotDropsBothBlobs(t *testing.T) {
	store, err := db.New(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("failed to open store: %s", err)
	}
	defer store.Close()

	hash := externalapi.Hash{7}
	stored := &externalapi.StoredSnapshot{Snapshot: &externalapi.Snapshot{Hash: hash}}
	info := &externalapi.SnapshotInfo{LastSnapshotHeight: 1}
	if err := store.PutSnapshot(hash, stored); err != nil {
		t.Fatalf("PutSnapshot failed: %s", err)
	}
	if err := store.PutSnapshotInfo(hash, info); err != nil {
		t.Fatalf("PutSnapshotInfo failed: %s", err)
	}

	if err := store.DeleteSnapshot(hash); err != nil {
		t.Fatalf("DeleteSnapshot failed: %s", err)
	}

	if _, err := store.GetSnapshot(hash); err == nil {
		t.Fatal("expected snapshot to be gone after delete")
	}
	if _, err := store.GetSnapshotInfo(hash); err == nil {
		t.Fatal("expected snapshot info to be gone after delete")
	}
}

func TestPutSnapshotRejectsOverCapacity(t *testing.T) {
	store, err := db.New(t.TempDir(), 64)
	if err != nil {
		t.Fatalf("failed to open store: %s", err)
	}
	defer store.Close()

	hash := externalapi.Hash{1}
	stored := &externalapi.StoredSnapshot{
		Snapshot: &externalapi.Snapshot{
			Hash:             hash,
			PublicReputation: map[string]float64{"abc": 1.5, "def": 2.5, "ghi": 3.5, "jkl": 4.5},
		},
	}

	if err := store.PutSnapshot(hash, stored); err == nil {
		t.Fatal("expected PutSnapshot to reject a write over the configured capacity")
	}
	if _, err := store.GetSnapshot(hash); err == nil {
		t.Fatal("expected rejected write to leave nothing behind")
	}
}

func TestUsableBytesReportsNonzero(t *testing.T) {
	store, err := db.New(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("failed to open store: %s", err)
	}
	defer store.Close()

	usable, err := store.UsableBytes()
	if err != nil {
		t.Fatalf("UsableBytes failed: %s", err)
	}
	if usable == 0 {
		t.Fatal("expected nonzero usable bytes on a real filesystem")
	}
}
