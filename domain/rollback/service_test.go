package rollback_test

import (
	"context"
	"testing"

	"github.com/jet-cloud/constellation/domain/consensus/model"
	"github.com/jet-cloud/constellation/domain/consensus/model/externalapi"
	"github.com/jet-cloud/constellation/domain/rollback"
	"github.com/jet-cloud/constellation/infrastructure/persist"
)

type noopLogger struct{}

func (noopLogger) Debugf(string, ...interface{}) {}
func (noopLogger) Infof(string, ...interface{})  {}
func (noopLogger) Warnf(string, ...interface{})  {}
func (noopLogger) Errorf(string, ...interface{}) {}

type fakeBackend struct {
	name    string
	objects map[string][]byte
	failGet bool
}

func newFakeBackend(name string) *fakeBackend {
	return &fakeBackend{name: name, objects: make(map[string][]byte)}
}

func (b *fakeBackend) Name() string { return b.name }

func (b *fakeBackend) PutObject(ctx context.Context, key string, data []byte) error {
	b.objects[key] = data
	return nil
}

func (b *fakeBackend) GetObject(ctx context.Context, key string) ([]byte, error) {
	if b.failGet {
		return nil, errFakeBackendDown
	}
	data, ok := b.objects[key]
	if !ok {
		return nil, errFakeBackendMissing
	}
	return data, nil
}

func (b *fakeBackend) ListKeysWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for key := range b.objects {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

const (
	errFakeBackendDown    = fakeErr("backend down")
	errFakeBackendMissing = fakeErr("object missing")
)

type fakeDisk struct {
	snapshots map[externalapi.Hash]*externalapi.StoredSnapshot
	infos     map[externalapi.Hash]*externalapi.SnapshotInfo
}

func newFakeDisk() *fakeDisk {
	return &fakeDisk{
		snapshots: make(map[externalapi.Hash]*externalapi.StoredSnapshot),
		infos:     make(map[externalapi.Hash]*externalapi.SnapshotInfo),
	}
}

func (d *fakeDisk) PutSnapshot(hash externalapi.Hash, s *externalapi.StoredSnapshot) error {
	d.snapshots[hash] = s
	return nil
}
func (d *fakeDisk) GetSnapshot(hash externalapi.Hash) (*externalapi.StoredSnapshot, error) {
	return d.snapshots[hash], nil
}
func (d *fakeDisk) PutSnapshotInfo(hash externalapi.Hash, i *externalapi.SnapshotInfo) error {
	d.infos[hash] = i
	return nil
}
func (d *fakeDisk) GetSnapshotInfo(hash externalapi.Hash) (*externalapi.SnapshotInfo, error) {
	return d.infos[hash], nil
}
func (d *fakeDisk) DeleteSnapshot(hash externalapi.Hash) error {
	delete(d.snapshots, hash)
	delete(d.infos, hash)
	return nil
}
func (d *fakeDisk) UsableBytes() (uint64, error) { return 1 << 40, nil }

type fakeGenesis struct {
	balances map[externalapi.Address]uint64
}

func (g *fakeGenesis) ReadGenesisObservation(ctx context.Context) (*model.GenesisObservation, error) {
	return &model.GenesisObservation{GenesisBalances: g.balances}, nil
}

type fakePersister struct {
	height externalapi.Height
	hash   externalapi.Hash
}

func (p *fakePersister) PersistLastMajorityState(ctx context.Context, height externalapi.Height, hash externalapi.Hash) error {
	p.height = height
	p.hash = hash
	return nil
}

func seedSnapshot(t *testing.T, backend *fakeBackend, height externalapi.Height, hash externalapi.Hash, info *externalapi.SnapshotInfo) {
	t.Helper()
	stored := &externalapi.StoredSnapshot{Snapshot: &externalapi.Snapshot{Hash: hash}}
	snapshotBytes, err := persist.EncodeStoredSnapshot(stored)
	if err != nil {
		t.Fatalf("failed to encode stored snapshot: %s", err)
	}
	infoBytes, err := persist.EncodeSnapshotInfo(info)
	if err != nil {
		t.Fatalf("failed to encode snapshot info: %s", err)
	}
	backend.objects[persist.SnapshotObjectKey(height, hash)] = snapshotBytes
	backend.objects[persist.SnapshotInfoObjectKey(height, hash)] = infoBytes
}

func TestRestoreAtSealsHeightAndAcceptsGenesis(t *testing.T) {
	backend := newFakeBackend("primary")
	hash := externalapi.Hash{7}
	info := &externalapi.SnapshotInfo{
		LastSnapshotHeight: 10,
		AddressCacheData: map[externalapi.Address]*externalapi.AddressCache{
			"alice": {Balance: 500},
		},
	}
	seedSnapshot(t, backend, 10, hash, info)

	disk := newFakeDisk()
	persister := &fakePersister{}
	genesis := &fakeGenesis{balances: map[externalapi.Address]uint64{
		"alice": 999, // already present in the restored snapshot, stays as restored
		"bob":   50,  // absent from the restored snapshot, backfilled
	}}

	svc := rollback.New([]model.CloudBackend{backend}, disk, genesis, persister, noopLogger{}, rollback.Config{HeightInterval: 2})

	got, err := svc.RestoreAt(context.Background(), 10, hash)
	if err != nil {
		t.Fatalf("RestoreAt failed: %s", err)
	}

	if got.AddressCacheData["alice"].Balance != 500 {
		t.Fatalf("expected alice's restored balance 500 to win over genesis, got %d", got.AddressCacheData["alice"].Balance)
	}
	if got.AddressCacheData["bob"].Balance != 50 {
		t.Fatalf("expected bob backfilled from genesis with 50, got %d", got.AddressCacheData["bob"].Balance)
	}
	if svc.LastSnapshotHeight() != 10 {
		t.Fatalf("expected lastSnapshotHeight 10, got %d", svc.LastSnapshotHeight())
	}
	if svc.OwnJoinedHeight() != 8 {
		t.Fatalf("expected ownJoinedHeight 10-2=8, got %d", svc.OwnJoinedHeight())
	}
	if !svc.ParticipatedInRollback() {
		t.Fatalf("expected node to be marked as having participated in rollback")
	}
	if persister.height != 10 || persister.hash != hash {
		t.Fatalf("expected last majority state persisted as (10, %s), got (%d, %s)", hash, persister.height, persister.hash)
	}
	if _, ok := disk.snapshots[hash]; !ok {
		t.Fatalf("expected stored snapshot to be written locally")
	}
	if _, ok := disk.infos[hash]; !ok {
		t.Fatalf("expected snapshot info to be written locally")
	}
}

func TestRestoreAtFailsOverToNextBackend(t *testing.T) {
	down := &fakeBackend{name: "down", objects: make(map[string][]byte), failGet: true}
	up := newFakeBackend("up")
	hash := externalapi.Hash{3}
	info := &externalapi.SnapshotInfo{LastSnapshotHeight: 4}
	seedSnapshot(t, up, 4, hash, info)

	disk := newFakeDisk()
	svc := rollback.New(
		[]model.CloudBackend{down, up},
		disk,
		&fakeGenesis{},
		&fakePersister{},
		noopLogger{},
		rollback.Config{HeightInterval: 2},
	)

	_, err := svc.RestoreAt(context.Background(), 4, hash)
	if err != nil {
		t.Fatalf("expected failover to the second backend to succeed, got %s", err)
	}
}

func TestRestoreAtRejectsNegativeBalances(t *testing.T) {
	backend := newFakeBackend("primary")
	hash := externalapi.Hash{9}
	info := &externalapi.SnapshotInfo{
		AddressCacheData: map[externalapi.Address]*externalapi.AddressCache{
			"carol": {Balance: 1<<64 - 1}, // wraps below zero as a signed quantity
		},
	}
	seedSnapshot(t, backend, 2, hash, info)

	svc := rollback.New(
		[]model.CloudBackend{backend},
		newFakeDisk(),
		&fakeGenesis{},
		&fakePersister{},
		noopLogger{},
		rollback.Config{HeightInterval: 2},
	)

	_, err := svc.RestoreAt(context.Background(), 2, hash)
	if err == nil {
		t.Fatalf("expected RestoreAt to reject a negative-looking balance")
	}
}

func TestRestoreHighestPicksHighestCompleteSnapshot(t *testing.T) {
	backend := newFakeBackend("primary")
	lowHash := externalapi.Hash{1}
	highHash := externalapi.Hash{2}
	seedSnapshot(t, backend, 2, lowHash, &externalapi.SnapshotInfo{LastSnapshotHeight: 2})
	seedSnapshot(t, backend, 8, highHash, &externalapi.SnapshotInfo{LastSnapshotHeight: 8})

	svc := rollback.New(
		[]model.CloudBackend{backend},
		newFakeDisk(),
		&fakeGenesis{},
		&fakePersister{},
		noopLogger{},
		rollback.Config{HeightInterval: 2},
	)

	got, err := svc.RestoreHighest(context.Background())
	if err != nil {
		t.Fatalf("RestoreHighest failed: %s", err)
	}
	if got.LastSnapshotHeight != 8 {
		t.Fatalf("expected to restore the height-8 snapshot, got height %d", got.LastSnapshotHeight)
	}
	if svc.LastSnapshotHeight() != 8 {
		t.Fatalf("expected service lastSnapshotHeight 8, got %d", svc.LastSnapshotHeight())
	}
}
