// Package db implements model.SnapshotDiskStore over a local goleveldb
// instance, grounded on the teacher's database/ffldb/ldb wrapper (a thin
// struct around *leveldb.DB exposing Put/Get/Delete/Cursor), generalized
// here from ffldb's raw byte-slice metadata store to the two keyed
// artifact kinds of spec.md §6: a node's local snapshot and snapshot-info
// files.
package db

import (
	"sync"
	"syscall"

	"github.com/jet-cloud/constellation/domain/consensus/consensuserrors"
	"github.com/jet-cloud/constellation/domain/consensus/model"
	"github.com/jet-cloud/constellation/domain/consensus/model/externalapi"
	"github.com/jet-cloud/constellation/infrastructure/persist"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
)

const (
	snapshotKeyPrefix     = "snapshot:"
	snapshotInfoKeyPrefix = "snapshotinfo:"
)

// Store is a local goleveldb-backed model.SnapshotDiskStore.
type Store struct {
	db   *leveldb.DB
	path string

	// maxBytes is snapshot.sizeDiskLimit (spec.md §6), the operator's
	// storage-capacity budget for this store; zero disables the check.
	// This is the step-(g) policy knob, separate from precondition 3's
	// fixed physical-disk floor (see UsableBytes).
	maxBytes uint64

	sizeMu     sync.Mutex
	keyBytes   map[string]int
	totalBytes uint64
}

// New opens (creating if absent) a goleveldb instance rooted at path.
// maxBytes caps the total size of snapshot/snapshot-info blobs this store
// will accept; zero means unlimited.
func New(path string, maxBytes uint64) (*Store, error) {
	ldb, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open leveldb at %s", path)
	}
	return &Store{db: ldb, path: path, maxBytes: maxBytes, keyBytes: make(map[string]int)}, nil
}

// reserve admits size additional bytes under key, failing with
// StorageCapacityError if that would exceed maxBytes. Call before writing
// so a rejected write never touches the database.
func (s *Store) reserve(key string, size int) error {
	if s.maxBytes == 0 {
		return nil
	}
	s.sizeMu.Lock()
	defer s.sizeMu.Unlock()

	prospective := s.totalBytes - uint64(s.keyBytes[key]) + uint64(size)
	if prospective > s.maxBytes {
		return &consensuserrors.StorageCapacityError{
			UsedBytes:  s.totalBytes - uint64(s.keyBytes[key]),
			AddedBytes: uint64(size),
			LimitBytes: s.maxBytes,
		}
	}
	s.totalBytes = prospective
	s.keyBytes[key] = size
	return nil
}

func (s *Store) forget(key string) {
	s.sizeMu.Lock()
	defer s.sizeMu.Unlock()
	s.totalBytes -= uint64(s.keyBytes[key])
	delete(s.keyBytes, key)
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func snapshotKey(hash externalapi.Hash) []byte {
	return []byte(snapshotKeyPrefix + hash.String())
}

func snapshotInfoKey(hash externalapi.Hash) []byte {
	return []byte(snapshotInfoKeyPrefix + hash.String())
}

// PutSnapshot implements model.SnapshotDiskStore.
func (s *Store) PutSnapshot(hash externalapi.Hash, snapshot *externalapi.StoredSnapshot) error {
	data, err := persist.EncodeStoredSnapshot(snapshot)
	if err != nil {
		return err
	}
	key := string(snapshotKey(hash))
	if err := s.reserve(key, len(data)); err != nil {
		return err
	}
	if err := s.db.Put(snapshotKey(hash), data, nil); err != nil {
		s.forget(key)
		return errors.Wrap(err, "failed to write snapshot to local store")
	}
	return nil
}

// GetSnapshot implements model.SnapshotDiskStore.
func (s *Store) GetSnapshot(hash externalapi.Hash) (*externalapi.StoredSnapshot, error) {
	data, err := s.db.Get(snapshotKey(hash), nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read snapshot %s from local store", hash)
	}
	return persist.DecodeStoredSnapshot(data)
}

// PutSnapshotInfo implements model.SnapshotDiskStore.
func (s *Store) PutSnapshotInfo(hash externalapi.Hash, info *externalapi.SnapshotInfo) error {
	data, err := persist.EncodeSnapshotInfo(info)
	if err != nil {
		return err
	}
	key := string(snapshotInfoKey(hash))
	if err := s.reserve(key, len(data)); err != nil {
		return err
	}
	if err := s.db.Put(snapshotInfoKey(hash), data, nil); err != nil {
		s.forget(key)
		return errors.Wrap(err, "failed to write snapshot info to local store")
	}
	return nil
}

// GetSnapshotInfo implements model.SnapshotDiskStore.
func (s *Store) GetSnapshotInfo(hash externalapi.Hash) (*externalapi.SnapshotInfo, error) {
	data, err := s.db.Get(snapshotInfoKey(hash), nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read snapshot info %s from local store", hash)
	}
	return persist.DecodeSnapshotInfo(data)
}

// DeleteSnapshot implements model.SnapshotDiskStore: it drops both the
// snapshot blob and its paired info blob, since nothing restores a
// snapshot without the other.
func (s *Store) DeleteSnapshot(hash externalapi.Hash) error {
	batch := new(leveldb.Batch)
	batch.Delete(snapshotKey(hash))
	batch.Delete(snapshotInfoKey(hash))
	if err := s.db.Write(batch, nil); err != nil {
		return errors.Wrapf(err, "failed to delete snapshot %s from local store", hash)
	}
	s.forget(string(snapshotKey(hash)))
	s.forget(string(snapshotInfoKey(hash)))
	return nil
}

// UsableBytes implements model.SnapshotDiskStore's disk-space precondition
// (spec.md §4.8 precondition 3). No library in the pack probes filesystem
// capacity; this is an OS syscall concern rather than a generic-Go-library
// one (the same reasoning that keeps infrastructure/crypto on stdlib
// ed25519 — see DESIGN.md), so it calls syscall.Statfs directly.
func (s *Store) UsableBytes() (uint64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(s.path, &stat); err != nil {
		return 0, errors.Wrapf(err, "failed to stat filesystem at %s", s.path)
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}

var _ model.SnapshotDiskStore = (*Store)(nil)
