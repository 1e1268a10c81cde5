package model

import (
	"context"

	"github.com/jet-cloud/constellation/domain/consensus/model/externalapi"
)

// SnapshotService is C8: the periodic driver that atomically seals a
// height interval of accepted checkpoint blocks into a signed snapshot.
type SnapshotService interface {
	// AttemptSnapshot runs the §4.8 precondition checks 1-7 and, on
	// success, the sealing sequence (a)-(j). Precondition failures are
	// typed and returned, never swallowed.
	AttemptSnapshot(ctx context.Context) error
	// LastSnapshotHeight returns the height of the most recently sealed
	// interval.
	LastSnapshotHeight() externalapi.Height
	// CurrentSnapshot returns the most recently stored snapshot.
	CurrentSnapshot() *externalapi.StoredSnapshot
}

// SnapshotDiskStore is the narrow out-of-scope collaborator for local
// on-disk persistence of snapshot/snapshot-info artifacts (§6).
type SnapshotDiskStore interface {
	PutSnapshot(hash externalapi.Hash, snapshot *externalapi.StoredSnapshot) error
	GetSnapshot(hash externalapi.Hash) (*externalapi.StoredSnapshot, error)
	PutSnapshotInfo(hash externalapi.Hash, info *externalapi.SnapshotInfo) error
	GetSnapshotInfo(hash externalapi.Hash) (*externalapi.SnapshotInfo, error)
	DeleteSnapshot(hash externalapi.Hash) error
	UsableBytes() (uint64, error)
}

// CloudBackend is the narrow out-of-scope collaborator for one ordered
// cloud object-storage backend used by C8's off-load path and C9's
// restore path (§4.9, §6 "multiple cloud backends tried in order").
type CloudBackend interface {
	Name() string
	PutObject(ctx context.Context, key string, data []byte) error
	GetObject(ctx context.Context, key string) ([]byte, error)
	ListKeysWithPrefix(ctx context.Context, prefix string) ([]string, error)
}
