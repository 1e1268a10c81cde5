// Package persist encodes the node's durable artifacts (StoredSnapshot,
// SnapshotInfo) to and from bytes, shared by infrastructure/db's local
// goleveldb store and infrastructure/cloud's object-storage backends so
// both sides agree on one wire shape.
//
// No pack library offers a generic Go struct codec fit for this opaque,
// purely-internal persistence concern (protobuf/grpc are deliberately
// not wired — see DESIGN.md, peer RPC transport is out of scope); gob is
// one of three places (with infrastructure/crypto's ed25519 and
// infrastructure/db's syscall.Statfs) where this rewrite reaches for the
// standard library proper, since every other candidate
// either targets wire-protocol interop this node doesn't need or would
// require hand-writing a (de)serializer for a dozen nested struct types
// with maps and pointers, which is exactly the bug surface gob exists to
// remove.
package persist

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"strconv"
	"strings"

	"github.com/jet-cloud/constellation/domain/consensus/model/externalapi"
	"github.com/pkg/errors"
)

const (
	snapshotObjectPrefix = "snapshots/"
	snapshotObjectKind   = "snapshot"
	infoObjectKind       = "info"
)

// SnapshotObjectKey is the cloud object key C8 writes a StoredSnapshot
// under when storage.enabled, and the key C9 reads back from. Height is
// zero-padded so lexicographic listing order matches height order;
// RestoreHighest parses the height back out and compares it numerically.
func SnapshotObjectKey(height externalapi.Height, hash externalapi.Hash) string {
	return objectKey(height, hash, snapshotObjectKind)
}

// SnapshotInfoObjectKey is the paired key for a SnapshotInfo blob.
func SnapshotInfoObjectKey(height externalapi.Height, hash externalapi.Hash) string {
	return objectKey(height, hash, infoObjectKind)
}

func objectKey(height externalapi.Height, hash externalapi.Hash, kind string) string {
	return fmt.Sprintf("%s%020d/%s/%s", snapshotObjectPrefix, uint64(height), hash.String(), kind)
}

// ParseSnapshotObjectKey extracts the height, hash and kind ("snapshot" or
// "info") encoded in a key built by SnapshotObjectKey/SnapshotInfoObjectKey.
func ParseSnapshotObjectKey(key string) (height externalapi.Height, hash externalapi.Hash, kind string, ok bool) {
	trimmed := strings.TrimPrefix(key, snapshotObjectPrefix)
	parts := strings.Split(trimmed, "/")
	if len(parts) != 3 {
		return 0, externalapi.Hash{}, "", false
	}
	h, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, externalapi.Hash{}, "", false
	}
	parsedHash, err := externalapi.NewHashFromString(parts[1])
	if err != nil {
		return 0, externalapi.Hash{}, "", false
	}
	return externalapi.Height(h), *parsedHash, parts[2], true
}

// EncodeStoredSnapshot serializes a StoredSnapshot.
func EncodeStoredSnapshot(stored *externalapi.StoredSnapshot) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(stored); err != nil {
		return nil, errors.Wrap(err, "failed to encode stored snapshot")
	}
	return buf.Bytes(), nil
}

// DecodeStoredSnapshot deserializes a StoredSnapshot.
func DecodeStoredSnapshot(data []byte) (*externalapi.StoredSnapshot, error) {
	stored := &externalapi.StoredSnapshot{}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(stored); err != nil {
		return nil, errors.Wrap(err, "failed to decode stored snapshot")
	}
	return stored, nil
}

// EncodeSnapshotInfo serializes a SnapshotInfo.
func EncodeSnapshotInfo(info *externalapi.SnapshotInfo) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(info); err != nil {
		return nil, errors.Wrap(err, "failed to encode snapshot info")
	}
	return buf.Bytes(), nil
}

// DecodeSnapshotInfo deserializes a SnapshotInfo in the current schema.
func DecodeSnapshotInfo(data []byte) (*externalapi.SnapshotInfo, error) {
	info := &externalapi.SnapshotInfo{}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(info); err != nil {
		return nil, errors.Wrap(err, "failed to decode snapshot info")
	}
	return info, nil
}

// SnapshotInfoV1 is the legacy schema used up through schema.v1.snapshotInfo,
// predating the Tips and LastAcceptedTxRef fields and keying balances by a
// raw string rather than externalapi.Address.
type SnapshotInfoV1 struct {
	Snapshot                *externalapi.StoredSnapshot
	AcceptedCbSinceSnapshot []externalapi.Hash
	LastSnapshotHeight      externalapi.Height
	SnapshotHashes          []externalapi.Hash
	Balances                map[string]uint64
}

// DecodeSnapshotInfoV1 deserializes the legacy shape and migrates it into
// the current SnapshotInfo, per spec.md §4.9 step 1. V1 payloads carry no
// tip bookkeeping or per-sender last-transaction references, so those come
// back empty; a freshly-restored node rebuilds them from the DAG as new
// checkpoint blocks arrive.
func DecodeSnapshotInfoV1(data []byte) (*externalapi.SnapshotInfo, error) {
	v1 := &SnapshotInfoV1{}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v1); err != nil {
		return nil, errors.Wrap(err, "failed to decode v1 snapshot info")
	}

	info := &externalapi.SnapshotInfo{
		Snapshot:                v1.Snapshot,
		AcceptedCbSinceSnapshot: v1.AcceptedCbSinceSnapshot,
		LastSnapshotHeight:      v1.LastSnapshotHeight,
		SnapshotHashes:          v1.SnapshotHashes,
		AddressCacheData:        make(map[externalapi.Address]*externalapi.AddressCache, len(v1.Balances)),
		Tips:                    make(map[externalapi.Hash]*externalapi.TipData),
		LastAcceptedTxRef:       make(map[externalapi.Address]externalapi.TxRef),
	}
	for addr, balance := range v1.Balances {
		info.AddressCacheData[externalapi.Address(addr)] = &externalapi.AddressCache{Balance: balance}
	}
	return info, nil
}
